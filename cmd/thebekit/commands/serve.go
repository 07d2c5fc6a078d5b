package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetemplate/thebekit/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		port       int
		host       string
		configPath string
		watch      bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve [directory]",
		Short: "Start the documentation server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := siteDir(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, configPath, dir)
			if err != nil {
				return err
			}

			// CLI flags override config
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("watch") {
				cfg.Features.HotReload = watch
			}
			if debug {
				cfg.Server.Debug = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "thebekit development server\n\n")
			fmt.Fprintf(out, "Serving: %s\n", dir)

			srv := server.NewWithConfig(dir, cfg)
			defer srv.Close()

			if err := srv.Discover(); err != nil {
				return fmt.Errorf("failed to discover pages: %w", err)
			}

			fmt.Fprintf(out, "\nPages discovered:\n")
			printRoutes(out, srv.Routes())

			if cfg.Features.HotReload {
				if err := srv.EnableWatch(cfg.Server.Debug); err != nil {
					return fmt.Errorf("failed to enable watch mode: %w", err)
				}
				fmt.Fprintf(out, "\nWatch mode enabled - pages reload on changes\n")
			}

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			fmt.Fprintf(out, "\nServer running at http://%s\n", addr)
			if cfg.Features.Metrics {
				fmt.Fprintf(out, "Metrics at http://%s/metrics\n", addr)
			}
			fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           server.WithCompression(srv),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&host, "host", "localhost", "Host to bind")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "Reload pages when files change")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

// printRoutes lists discovered pages with their cell and output counts.
func printRoutes(out io.Writer, routes []*server.Route) {
	for _, route := range routes {
		if route.Page == nil {
			fmt.Fprintf(out, "  %-30s %s\n", route.Pattern, route.FilePath)
			continue
		}
		outputs := 0
		for _, cell := range route.Page.Cells {
			if cell.HasOutput {
				outputs++
			}
		}
		fmt.Fprintf(out, "  %-30s %s (%d cells, %d outputs)\n",
			route.Pattern, route.FilePath, len(route.Page.Cells), outputs)
	}
}
