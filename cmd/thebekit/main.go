// Command thebekit serves and builds documentation pages whose code cells run
// on a remote kernel.
package main

import (
	"os"

	"github.com/livetemplate/thebekit/cmd/thebekit/commands"
)

func main() {
	os.Exit(commands.Main())
}
