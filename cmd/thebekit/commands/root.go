// Package commands implements the thebekit command line.
package commands

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/livetemplate/thebekit/internal/config"
)

// Version information set at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

// NewRootCmd returns the thebekit command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "thebekit",
		Short: "Interactive code cells for static documentation",
		Long: `thebekit serves markdown and HTML documentation pages and wires their
code cells to a Jupyter kernel launched on Binder.

Pages are activated when a reader presses a launch button: cells are
marked executable, kernel status is mirrored on the button, and cells
tagged thebe-init run as soon as the kernel is ready.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		buildCmd(),
		versionCmd(),
	)

	return rootCmd
}

// Main runs the command line and returns the process exit code.
func Main() int {
	log.SetFlags(0) // Remove timestamp from logs

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// siteDir resolves the optional directory argument.
func siteDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory does not exist: %s", dir)
		}
		return "", fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", dir)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absDir, nil
}

// loadConfig reads configPath when set, otherwise the site's own config file.
func loadConfig(cmd *cobra.Command, configPath, dir string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Using config: %s\n", configPath)
		return cfg, nil
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
