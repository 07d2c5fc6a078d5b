package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/livetemplate/thebekit"
	"github.com/livetemplate/thebekit/internal/assets"
)

// BuildResult describes one page written by Build.
type BuildResult struct {
	Source string // relative .md path
	Output string // relative .html path
	Cells  int    // cells decorated; zero unless activating
}

// Build renders every markdown page to static HTML under outDir, next to an
// assets/ directory holding the stylesheet and a standalone bootstrap. Built
// pages need no server session. When activate is set, cells are decorated
// ahead of time; otherwise the bootstrap decorates them in the browser.
func (s *Server) Build(outDir string, activate bool) ([]BuildResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := s.writeStaticAssets(filepath.Join(outDir, "assets"), !activate); err != nil {
		return nil, err
	}

	var results []BuildResult
	for _, route := range s.Routes() {
		if route.Page == nil {
			continue
		}

		res := BuildResult{
			Source: route.FilePath,
			Output: strings.TrimSuffix(route.FilePath, ".md") + ".html",
		}

		html, err := renderLayout(s.config, route.Page, headOptions{
			Kernel:  route.Page.Kernel,
			Config:  true,
			Library: true,
			Static:  true,
			Assets:  strings.Repeat("../", strings.Count(res.Output, "/")) + "assets/",
		})
		if err != nil {
			return results, fmt.Errorf("failed to render %s: %w", route.FilePath, err)
		}

		if activate {
			html, res.Cells, err = s.activateStatic(route, html)
			if err != nil {
				return results, fmt.Errorf("failed to activate %s: %w", route.FilePath, err)
			}
		}

		dest := filepath.Join(outDir, filepath.FromSlash(res.Output))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return results, fmt.Errorf("failed to create directory for %s: %w", res.Output, err)
		}
		if err := os.WriteFile(dest, []byte(html), 0644); err != nil {
			return results, fmt.Errorf("failed to write %s: %w", res.Output, err)
		}
		results = append(results, res)
	}

	return results, nil
}

// writeStaticAssets writes the stylesheet and the standalone bootstrap.
func (s *Server) writeStaticAssets(dir string, decorate bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create assets directory: %w", err)
	}

	opts := s.config.ActivationOptions("")
	js, err := assets.GetStaticJS(assets.StaticParams{
		LaunchButton:    opts.LaunchButton,
		ActivatedMarker: opts.ActivatedMarker,
		Cell:            opts.Selectors.Cell,
		Input:           opts.Selectors.Input,
		Output:          opts.Selectors.Output,
		InitCell:        opts.InitCell,
		RunTrigger:      opts.RunTrigger,
		LaunchMessage:   opts.LaunchMessage,
		KernelName:      opts.KernelName,
		RetryMillis:     opts.RetryInterval.Milliseconds(),
		Decorate:        decorate,
	})
	if err != nil {
		return err
	}
	css, err := assets.GetClientCSS()
	if err != nil {
		return fmt.Errorf("failed to read stylesheet: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, staticScript), js, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", staticScript, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "thebekit.css"), css, 0644); err != nil {
		return fmt.Errorf("failed to write thebekit.css: %w", err)
	}
	return nil
}

func (s *Server) activateStatic(route *Route, src string) (string, int, error) {
	doc, err := thebekit.ParseDocumentString(src)
	if err != nil {
		return "", 0, err
	}
	opts := s.config.ActivationOptions(route.Kernel())
	n := doc.DecorateCells(opts.Selectors, thebekit.DetectLanguage(opts.KernelName))
	html, err := doc.HTML()
	return html, n, err
}
