package server

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livetemplate/thebekit"
	"github.com/livetemplate/thebekit/internal/assets"
	"github.com/livetemplate/thebekit/internal/cache"
	"github.com/livetemplate/thebekit/internal/config"
)

// Route represents a discovered page route.
type Route struct {
	Pattern  string         // URL pattern (e.g., "/intro")
	FilePath string         // Relative file path (e.g., "intro.md")
	Page     *thebekit.Page // Rendered markdown; nil for .html files

	kernel string // from the thebe config tag of an .html page
}

// Kernel returns the kernel name set by the page, if any.
func (r *Route) Kernel() string {
	if r.Page == nil {
		return r.kernel
	}
	return r.Page.Kernel
}

// Server is the thebekit documentation server.
type Server struct {
	rootDir string
	config  *config.Config
	router  chi.Router
	cache   *cache.MemoryCache
	metrics *metrics
	reg     *prometheus.Registry

	mu     sync.RWMutex
	routes []*Route

	sessMu   sync.RWMutex
	sessions map[*session]bool

	watcher *Watcher

	stopLimiter context.CancelFunc
}

// New creates a new server for the given root directory with default configuration.
func New(rootDir string) *Server {
	return NewWithConfig(rootDir, config.DefaultConfig())
}

// NewWithConfig creates a new server with a specific configuration.
func NewWithConfig(rootDir string, cfg *config.Config) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		rootDir:  rootDir,
		config:   cfg,
		cache:    cache.NewMemoryCache(),
		metrics:  newMetrics(reg),
		reg:      reg,
		routes:   make([]*Route, 0),
		sessions: make(map[*session]bool),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())

	ctx, cancel := context.WithCancel(context.Background())
	s.stopLimiter = cancel
	limiter, _ := RateLimitMiddleware(ctx, s.config.Limits.GetWSRate(), s.config.Limits.GetWSBurst(), 0)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/assets/{name}", s.serveAsset)
	r.With(limiter).Get("/ws", s.serveWebSocket)
	if s.config.Features.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
	r.Get("/*", s.servePage)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources and closes live sessions.
func (s *Server) Close() error {
	s.stopLimiter()
	s.cache.Stop()

	s.sessMu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.sessMu.Unlock()

	return s.StopWatch()
}

// Discover scans the directory for .md and .html files and creates routes.
func (s *Server) Discover() error {
	routes := make([]*Route, 0)
	seen := make(map[string]bool)

	err := filepath.WalkDir(s.rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if p != s.rootDir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".md" && ext != ".html" {
			return nil
		}

		relPath, err := filepath.Rel(s.rootDir, p)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if s.ignored(relPath) {
			return nil
		}

		route := &Route{
			Pattern:  toPattern(relPath),
			FilePath: relPath,
		}
		if ext == ".md" {
			page, err := thebekit.ParseFile(p)
			if err != nil {
				log.Printf("Warning: Failed to parse %s: %v", relPath, err)
				return nil
			}
			route.Page = page
			for _, w := range cellWarnings(page, s.config.ActivationOptions(page.Kernel).KernelName) {
				log.Printf("Warning: %s: %s", relPath, w)
			}
		} else {
			data, err := os.ReadFile(p)
			if err != nil {
				log.Printf("Warning: Failed to read %s: %v", relPath, err)
				return nil
			}
			if doc, err := thebekit.ParseDocumentString(string(data)); err == nil {
				route.kernel = configKernel(doc)
			}
		}

		// Markdown sources win over rendered HTML at the same path.
		if seen[route.Pattern] && ext == ".html" {
			return nil
		}
		if seen[route.Pattern] {
			routes = removePattern(routes, route.Pattern)
		}
		seen[route.Pattern] = true
		routes = append(routes, route)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	sortRoutes(routes)

	s.mu.Lock()
	s.routes = routes
	s.mu.Unlock()
	s.cache.InvalidateAll()

	return nil
}

func (s *Server) ignored(relPath string) bool {
	base := path.Base(relPath)
	for _, pattern := range s.config.Ignore {
		if strings.HasSuffix(pattern, "/**") {
			if strings.HasPrefix(relPath, strings.TrimSuffix(pattern, "**")) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// Routes returns the discovered routes.
func (s *Server) Routes() []*Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.routes
}

// Route returns the route serving pattern.
func (s *Server) Route(pattern string) (*Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, route := range s.routes {
		if route.Pattern == pattern {
			return route, true
		}
	}
	return nil, false
}

// serveAsset serves the embedded browser shim and stylesheet.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "name") {
	case "thebekit.js":
		js, err := assets.GetClientJS(assets.ClientParams{
			WSPath:         "/ws",
			LaunchSelector: thebekit.DefaultLaunchButton,
			RetryMillis:    s.config.Thebe.GetRetryInterval().Milliseconds(),
		})
		if err != nil {
			http.Error(w, "Asset not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write(js)
	case "thebekit.css":
		css, err := assets.GetClientCSS()
		if err != nil {
			http.Error(w, "Asset not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write(css)
	default:
		http.NotFound(w, r)
	}
}

// servePage serves a rendered page, from cache when possible.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	route, ok := s.Route(r.URL.Path)
	if !ok {
		if r.URL.Path != "/" {
			if _, ok := s.Route("/"); ok {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
		}
		http.NotFound(w, r)
		return
	}

	if entry, ok := s.cache.Get(route.Pattern); ok {
		w.Header().Set("Content-Type", entry.ContentType)
		_, _ = w.Write(entry.Body)
		return
	}

	html, err := s.renderRoute(route)
	if err != nil {
		log.Printf("[Server] Failed to render %s: %v", route.FilePath, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	const contentType = "text/html; charset=utf-8"
	s.cache.Set(route.Pattern, []byte(html), contentType, s.config.Cache.GetTTL())
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write([]byte(html))
}

// renderRoute renders the full HTML served for a route.
func (s *Server) renderRoute(route *Route) (string, error) {
	if route.Page != nil {
		return renderMarkdownPage(s.config, route.Page)
	}

	data, err := os.ReadFile(filepath.Join(s.rootDir, filepath.FromSlash(route.FilePath)))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", route.FilePath, err)
	}
	return injectClient(s.config, string(data))
}

// toPattern converts a relative file path to a URL pattern.
func toPattern(relPath string) string {
	if strings.HasSuffix(relPath, ".md") {
		p := strings.TrimSuffix(relPath, ".md")
		if p == "index" {
			return "/"
		}
		p = strings.TrimSuffix(p, "/index")
		return "/" + p
	}
	if relPath == "index.html" {
		return "/"
	}
	if strings.HasSuffix(relPath, "/index.html") {
		return "/" + strings.TrimSuffix(relPath, "/index.html")
	}
	return "/" + strings.TrimSuffix(relPath, ".html")
}

func removePattern(routes []*Route, pattern string) []*Route {
	out := routes[:0]
	for _, r := range routes {
		if r.Pattern != pattern {
			out = append(out, r)
		}
	}
	return out
}

// sortRoutes orders routes with the index first, then alphabetically.
func sortRoutes(routes []*Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Pattern == "/" {
			return routes[j].Pattern != "/"
		}
		if routes[j].Pattern == "/" {
			return false
		}
		return routes[i].Pattern < routes[j].Pattern
	})
}

func (s *Server) registerSession(sess *session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[sess] = true
	s.metrics.sessionsActive.Set(float64(len(s.sessions)))
	if s.config.Server.Debug {
		log.Printf("[Server] Session registered: %d active sessions", len(s.sessions))
	}
}

func (s *Server) unregisterSession(sess *session) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, sess)
	s.metrics.sessionsActive.Set(float64(len(s.sessions)))
	if s.config.Server.Debug {
		log.Printf("[Server] Session unregistered: %d active sessions", len(s.sessions))
	}
}

// BroadcastReload asks every connected page to reload.
func (s *Server) BroadcastReload(filePath string) {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()

	if len(s.sessions) == 0 {
		return
	}

	log.Printf("[Server] Broadcasting reload for %s to %d sessions", filePath, len(s.sessions))
	for sess := range s.sessions {
		if err := sess.send(Message{Action: "reload", FilePath: filePath}); err != nil {
			log.Printf("[Server] Failed to send reload: %v", err)
		}
	}
}

// EnableWatch enables file watching for live reload.
func (s *Server) EnableWatch(debug bool) error {
	watcher, err := NewWatcher(s.rootDir, func(filePath string) error {
		log.Printf("[Watch] File changed: %s", filePath)

		if err := s.Discover(); err != nil {
			return fmt.Errorf("failed to re-discover pages: %w", err)
		}

		s.BroadcastReload(filePath)
		return nil
	}, debug)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	log.Printf("[Watch] File watcher started for %s", s.rootDir)
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		w := s.watcher
		s.watcher = nil
		return w.Stop()
	}
	return nil
}
