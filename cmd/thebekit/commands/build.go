package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/livetemplate/thebekit/internal/server"
)

func buildCmd() *cobra.Command {
	var (
		outDir     string
		configPath string
		activate   bool
	)

	cmd := &cobra.Command{
		Use:   "build [directory]",
		Short: "Render markdown pages to static HTML",
		Long: `Render every markdown page to a standalone HTML file.

With --activate the code cells are decorated at build time (ids, kernel
language, output placement) so the pages also work with a plain widget
bootstrap and no thebekit server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := siteDir(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, configPath, dir)
			if err != nil {
				return err
			}

			if !filepath.IsAbs(outDir) {
				outDir = filepath.Join(dir, outDir)
			}
			// Keep the output out of discovery on the next build.
			cfg.Ignore = append(cfg.Ignore, filepath.ToSlash(relOrSelf(dir, outDir))+"/**")

			srv := server.NewWithConfig(dir, cfg)
			defer srv.Close()

			if err := srv.Discover(); err != nil {
				return fmt.Errorf("failed to discover pages: %w", err)
			}

			results, err := srv.Build(outDir, activate)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if activate {
					fmt.Fprintf(out, "  %-30s -> %s (%d cells)\n", r.Source, r.Output, r.Cells)
				} else {
					fmt.Fprintf(out, "  %-30s -> %s\n", r.Source, r.Output)
				}
			}
			fmt.Fprintf(out, "Built %d page(s) into %s\n", len(results), outDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "_build", "Output directory")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().BoolVar(&activate, "activate", false, "Decorate code cells at build time")

	return cmd
}

func relOrSelf(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return rel
}
