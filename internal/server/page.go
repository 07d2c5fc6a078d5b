package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/livetemplate/thebekit"
	"github.com/livetemplate/thebekit/internal/config"
)

// staticScript is the standalone bootstrap written next to built pages.
const staticScript = "thebekit-static.js"

// thebeConfig is the JSON read by the widget from <script type="text/x-thebe-config">.
type thebeConfig struct {
	RequestKernel bool `json:"requestKernel"`
	BinderOptions struct {
		Repo      string `json:"repo,omitempty"`
		Ref       string `json:"ref,omitempty"`
		BinderURL string `json:"binderUrl,omitempty"`
	} `json:"binderOptions"`
	KernelOptions struct {
		Name string `json:"name"`
	} `json:"kernelOptions"`
}

// headOptions select the tags headTags emits.
type headOptions struct {
	Kernel  string // page kernel, overrides the configured one
	Config  bool   // emit the text/x-thebe-config tag
	Library bool   // emit the widget library script
	Static  bool   // standalone bootstrap instead of the session shim
	Assets  string // prefix of the asset URLs, "/assets/" when served
}

// headTags returns the tags wiring a page to the widget and the browser shim.
func headTags(cfg *config.Config, o headOptions) (string, error) {
	if o.Assets == "" {
		o.Assets = "/assets/"
	}

	var b bytes.Buffer
	b.WriteString(`<link rel="stylesheet" href="` + template.HTMLEscapeString(o.Assets) + `thebekit.css">` + "\n")
	if o.Config {
		tc := thebeConfig{RequestKernel: true}
		tc.BinderOptions.Repo = cfg.Thebe.Binder.Repo
		tc.BinderOptions.Ref = cfg.Thebe.Binder.GetRef()
		tc.BinderOptions.BinderURL = cfg.Thebe.Binder.GetURL()
		tc.KernelOptions.Name = cfg.ActivationOptions(o.Kernel).KernelName

		// json.Marshal escapes <, > and &, so the payload cannot close the script tag.
		data, err := json.Marshal(tc)
		if err != nil {
			return "", fmt.Errorf("failed to encode thebe config: %w", err)
		}
		b.WriteString(`<script type="text/x-thebe-config">` + string(data) + `</script>` + "\n")
	}
	if o.Library {
		b.WriteString(`<script id="thebe-lib" src="` + template.HTMLEscapeString(cfg.Thebe.GetLibraryURL()) + `" async></script>` + "\n")
	}
	script := "thebekit.js"
	if o.Static {
		script = staticScript
	}
	b.WriteString(`<script src="` + template.HTMLEscapeString(o.Assets+script) + `" defer></script>` + "\n")
	return b.String(), nil
}

// configKernelRe matches kernelOptions.name inside a thebe config tag. The
// widget accepts JavaScript object literals there, so keys may be unquoted.
var configKernelRe = regexp.MustCompile(`kernelOptions["']?\s*:\s*\{[^}]*?["']?name["']?\s*:\s*["']([^"']+)["']`)

// configKernel returns the kernel named by the page's own thebe config tag,
// or "" when it has none.
func configKernel(doc *thebekit.Document) string {
	var kernel string
	doc.Find(`script[type="text/x-thebe-config"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := configKernelRe.FindStringSubmatch(s.Text()); m != nil {
			kernel = m[1]
			return false
		}
		return true
	})
	return kernel
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{.Head}}</head>
<body>
<nav class="thebe-toolbar">
<button class="thebe-launch-button" title="Launch interactive code" onclick="initThebelab()">Launch</button>
</nav>
<main>
{{.Content}}</main>
</body>
</html>
`))

// renderMarkdownPage wraps a rendered markdown page in the site layout.
func renderMarkdownPage(cfg *config.Config, page *thebekit.Page) (string, error) {
	return renderLayout(cfg, page, headOptions{Kernel: page.Kernel, Config: true, Library: true})
}

// renderLayout wraps page in the site layout with the given head tags.
func renderLayout(cfg *config.Config, page *thebekit.Page, o headOptions) (string, error) {
	head, err := headTags(cfg, o)
	if err != nil {
		return "", err
	}

	title := page.Title
	if title == "" {
		title = cfg.Title
	}

	var buf bytes.Buffer
	err = pageTmpl.Execute(&buf, struct {
		Title   string
		Head    template.HTML
		Content template.HTML
	}{
		Title:   title,
		Head:    template.HTML(head),
		Content: template.HTML(page.HTML),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render page template: %w", err)
	}
	return buf.String(), nil
}

// injectClient adds the widget wiring to a pre-rendered HTML page. The widget
// library and the thebe config are only added when the page lacks them.
func injectClient(cfg *config.Config, src string) (string, error) {
	doc, err := thebekit.ParseDocumentString(src)
	if err != nil {
		return "", err
	}

	if doc.Find(`script[src="/assets/thebekit.js"]`).Length() > 0 {
		return src, nil
	}

	hasLibrary := doc.Find(`script#thebe-lib, script[src*="thebelab"], script[src*="thebe.js"]`).Length() > 0
	hasConfig := doc.Find(`script[type="text/x-thebe-config"]`).Length() > 0
	head, err := headTags(cfg, headOptions{Config: !hasConfig, Library: !hasLibrary})
	if err != nil {
		return "", err
	}
	doc.Find("head").AppendHtml(head)

	return doc.HTML()
}

// cellWarnings reports code cells written for a different language than the
// page kernel; the widget runs every cell with that kernel.
func cellWarnings(page *thebekit.Page, kernel string) []string {
	want := thebekit.DetectLanguage(kernel)
	var warnings []string
	for _, cell := range page.Cells {
		if cell.Language == "" {
			continue
		}
		if got := thebekit.DetectLanguage(cell.Language); got != want {
			warnings = append(warnings, fmt.Sprintf("line %d: %s cell runs on the %s kernel", cell.Line, cell.Language, kernel))
		}
	}
	return warnings
}
