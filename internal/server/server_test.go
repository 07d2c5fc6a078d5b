package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/thebekit"
	"github.com/livetemplate/thebekit/internal/config"
)

const notebookPage = "---\n" +
	"title: \"Notebook\"\n" +
	"kernel: ir\n" +
	"---\n" +
	"# Notebook\n\n" +
	"```{code-cell} r\n" +
	":tags: [thebe-init]\n" +
	"x <- 1\n" +
	"```\n\n" +
	"```{code-cell} r\n" +
	"print(x)\n" +
	"```\n\n" +
	"```{output}\n" +
	"[1] 1\n" +
	"```\n"

const staticPage = `<!DOCTYPE html>
<html><head><title>Static</title></head>
<body>
<button class="thebe-launch-button">Launch</button>
<div class="cell"><pre>1 + 1</pre><div class="output">2</div></div>
</body></html>`

// writeSite creates files under a temp dir and returns it.
func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}
	return dir
}

func newTestServer(t *testing.T, cfg *config.Config, files map[string]string) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	srv := NewWithConfig(writeSite(t, files), cfg)
	require.NoError(t, srv.Discover())
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestToPattern(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"index.md", "/"},
		{"intro.md", "/intro"},
		{"tutorials/intro.md", "/tutorials/intro"},
		{"tutorials/index.md", "/tutorials"},
		{"index.html", "/"},
		{"static.html", "/static"},
		{"book/index.html", "/book"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, toPattern(tt.input))
		})
	}
}

func TestServerDiscover(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{
		"index.md":           "# Home",
		"notebook.md":        notebookPage,
		"notebook.html":      staticPage, // shadowed by notebook.md
		"static.html":        staticPage,
		"tutorials/intro.md": "# Intro",
		"_build/out.html":    staticPage,
		".cache/page.md":     "# Hidden",
		"drafts/wip.md":      "# WIP",
	})

	var patterns []string
	for _, r := range srv.Routes() {
		patterns = append(patterns, r.Pattern)
	}
	assert.Equal(t, []string{"/", "/notebook", "/static", "/tutorials/intro"}, patterns)

	route, ok := srv.Route("/notebook")
	require.True(t, ok)
	assert.Equal(t, "notebook.md", route.FilePath)
	assert.Equal(t, "ir", route.Kernel())

	route, ok = srv.Route("/static")
	require.True(t, ok)
	assert.Nil(t, route.Page)
	assert.Equal(t, "", route.Kernel())
}

func TestServeMarkdownPage(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"notebook.md": notebookPage})

	w := get(t, srv, "/notebook")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "<title>Notebook</title>")
	assert.Contains(t, body, `class="thebe-launch-button"`)
	assert.Contains(t, body, `<script type="text/x-thebe-config">`)
	assert.Contains(t, body, `"name":"ir"`)
	assert.Contains(t, body, `id="thebe-lib"`)
	assert.Contains(t, body, `src="/assets/thebekit.js"`)
	assert.Contains(t, body, "tag_thebe-init")
	assert.Contains(t, body, "[1] 1")
	// Cells are decorated when the session activates, not when served.
	assert.NotContains(t, body, "data-executable")
}

func TestServeHTMLPageInjectsClient(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"static.html": staticPage})

	w := get(t, srv, "/static")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `src="/assets/thebekit.js"`)
	assert.Contains(t, body, `id="thebe-lib"`)
	assert.Contains(t, body, `"name":"python3"`)
	assert.Contains(t, body, "1 + 1")
}

const configuredPage = `<!DOCTYPE html>
<html><head><title>R</title>
<script type="text/x-thebe-config">{ requestKernel: true, kernelOptions: { name: "ir" } }</script>
</head>
<body><div class="cell"><pre>1 + 1</pre></div></body></html>`

func TestHTMLPageKernelFromConfigTag(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{
		"r.html":      configuredPage,
		"static.html": staticPage,
	})

	route, ok := srv.Route("/r")
	require.True(t, ok)
	assert.Equal(t, "ir", route.Kernel())

	route, ok = srv.Route("/static")
	require.True(t, ok)
	assert.Equal(t, "", route.Kernel())

	body := get(t, srv, "/r").Body.String()
	assert.Equal(t, 1, strings.Count(body, "text/x-thebe-config"))
	assert.Contains(t, body, `src="/assets/thebekit.js"`)
}

func TestConfigKernel(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"json", `<script type="text/x-thebe-config">{"kernelOptions":{"name":"julia-1.9"}}</script>`, "julia-1.9"},
		{"object literal", `<script type="text/x-thebe-config">{kernelOptions: {path: "x", name: 'ir'}}</script>`, "ir"},
		{"no kernel", `<script type="text/x-thebe-config">{requestKernel: true}</script>`, ""},
		{"no config", `<p>plain</p>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := thebekit.ParseDocumentString("<html><head>" + tt.page + "</head><body></body></html>")
			require.NoError(t, err)
			assert.Equal(t, tt.want, configKernel(doc))
		})
	}
}

func TestCellWarnings(t *testing.T) {
	page, err := thebekit.ParseMarkdown([]byte(notebookPage))
	require.NoError(t, err)

	assert.Empty(t, cellWarnings(page, "ir"))

	warnings := cellWarnings(page, "python3")
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "line 8: r cell runs on the python3 kernel")
}

func TestInjectClient(t *testing.T) {
	cfg := config.DefaultConfig()

	t.Run("keeps existing library", func(t *testing.T) {
		src := `<html><head><script src="https://unpkg.com/thebelab@0.4.0/lib/index.js"></script></head><body></body></html>`
		out, err := injectClient(cfg, src)
		require.NoError(t, err)
		assert.NotContains(t, out, `id="thebe-lib"`)
		assert.Contains(t, out, `src="/assets/thebekit.js"`)
	})

	t.Run("already injected", func(t *testing.T) {
		src := `<html><head><script src="/assets/thebekit.js" defer></script></head><body></body></html>`
		out, err := injectClient(cfg, src)
		require.NoError(t, err)
		assert.Equal(t, src, out)
	})
}

func TestServePageRedirectsUnknown(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"index.md": "# Home"})

	w := get(t, srv, "/missing")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestServePageNotFoundWithoutIndex(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"intro.md": "# Intro"})

	w := get(t, srv, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServePageCaches(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"static.html": staticPage})

	require.Equal(t, http.StatusOK, get(t, srv, "/static").Code)
	assert.Equal(t, 1, srv.cache.Len())

	// Served from cache even after the file is gone.
	require.NoError(t, os.Remove(filepath.Join(srv.rootDir, "static.html")))
	w := get(t, srv, "/static")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1 + 1")

	require.NoError(t, srv.Discover())
	assert.Equal(t, 0, srv.cache.Len())
}

func TestServeAssets(t *testing.T) {
	srv := newTestServer(t, nil, map[string]string{"index.md": "# Home"})

	w := get(t, srv, "/assets/thebekit.js")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/javascript", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `var wsPath = "/ws";`)

	w = get(t, srv, "/assets/thebekit.css")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/css", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/assets/other.js").Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, nil, map[string]string{"index.md": "# Home"})
		// Falls through to the page handler, which redirects to the index.
		assert.Equal(t, http.StatusSeeOther, get(t, srv, "/metrics").Code)
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Features.Metrics = true
		srv := newTestServer(t, cfg, nil)
		srv.metrics.statusEvents.WithLabelValues("ready").Inc()

		ts := httptest.NewServer(srv)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		body := string(data)
		assert.True(t, strings.Contains(body, `thebekit_status_events_total{status="ready"} 1`), body)
		assert.Contains(t, body, "thebekit_sessions_active 0")
	})
}
