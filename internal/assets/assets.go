// Package assets embeds the browser shim and its stylesheet.
package assets

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"
)

//go:embed client/*
var clientFS embed.FS

var (
	clientTmpl = template.Must(template.ParseFS(clientFS, "client/thebekit.js"))
	staticTmpl = template.Must(template.ParseFS(clientFS, "client/static.js"))
)

// ClientParams are substituted into the browser shim.
type ClientParams struct {
	WSPath         string // websocket endpoint, e.g. "/ws"
	LaunchSelector string // launch buttons, e.g. ".thebe-launch-button"
	RetryMillis    int64  // wait between checks for the widget library
}

// GetClientJS renders the browser shim for the given parameters.
func GetClientJS(p ClientParams) ([]byte, error) {
	var buf bytes.Buffer
	if err := clientTmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("failed to render client script: %w", err)
	}
	return buf.Bytes(), nil
}

// StaticParams configure the standalone bootstrap used by built pages.
type StaticParams struct {
	LaunchButton    string `json:"launchButton"`
	ActivatedMarker string `json:"activatedMarker"`
	Cell            string `json:"cell"`
	Input           string `json:"input"`
	Output          string `json:"output"`
	InitCell        string `json:"initCell"`
	RunTrigger      string `json:"runTrigger"`
	LaunchMessage   string `json:"launchMessage"`
	KernelName      string `json:"kernelName"`
	RetryMillis     int64  `json:"retryMs"`
	Decorate        bool   `json:"decorate"` // false when cells were decorated at build time
}

// GetStaticJS renders the standalone bootstrap for the given parameters.
func GetStaticJS(p StaticParams) ([]byte, error) {
	// json.Marshal escapes <, > and &, so selectors cannot close a script tag.
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode static options: %w", err)
	}
	var buf bytes.Buffer
	if err := staticTmpl.Execute(&buf, struct{ JSON string }{string(data)}); err != nil {
		return nil, fmt.Errorf("failed to render static script: %w", err)
	}
	return buf.Bytes(), nil
}

// GetClientCSS returns the launch button and spinner styles.
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/thebekit.css")
}
