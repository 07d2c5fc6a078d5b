package thebekit

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"gopkg.in/yaml.v3"
)

// Frontmatter holds page-level settings from the YAML header of a markdown file.
type Frontmatter struct {
	Title  string `yaml:"title"`
	Kernel string `yaml:"kernel"` // overrides the site kernel name
}

// Page is a markdown document rendered to cell markup.
type Page struct {
	Title      string
	Kernel     string
	SourceFile string
	HTML       string // body content, cells rendered as div.cell
	Cells      []Cell
}

// Cell describes one code cell found while rendering.
type Cell struct {
	Language  string
	Tags      []string
	HasOutput bool
	Line      int
}

const (
	cellInfo   = "{code-cell}"
	outputInfo = "{output}"
)

// ParseFile reads and renders a markdown file.
func ParseFile(path string) (*Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	page, err := ParseMarkdown(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	page.SourceFile = path
	return page, nil
}

// ParseMarkdown renders markdown to HTML. Fences tagged {code-cell} become
// executable cells and a directly following {output} fence becomes their output.
func ParseMarkdown(content []byte) (*Page, error) {
	fm, remaining, err := extractFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	cr := &cellRenderer{}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(cr, 100)),
		),
	)

	doc := md.Parser().Parse(text.NewReader(remaining))
	lineOffset := bytes.Count(content[:len(content)-len(remaining)], []byte("\n"))

	page := &Page{
		Title:  fm.Title,
		Kernel: fm.Kernel,
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if page.Title == "" {
			if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
				page.Title = string(segmentsValue(h.Lines(), remaining))
			}
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok || !isCell(fenced, remaining) {
			return ast.WalkContinue, nil
		}
		lang, tags, _ := cellMeta(fenced, remaining)
		cell := Cell{
			Language:  lang,
			Tags:      tags,
			HasOutput: isOutput(fenced.NextSibling(), remaining),
		}
		if fenced.Lines().Len() > 0 {
			cell.Line = lineOffset + bytes.Count(remaining[:fenced.Lines().At(0).Start], []byte("\n")) + 1
		}
		page.Cells = append(page.Cells, cell)
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk AST: %w", err)
	}

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, remaining, doc); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}
	page.HTML = buf.String()

	return page, nil
}

// extractFrontmatter extracts YAML frontmatter from the beginning of content.
// Returns the parsed frontmatter and the remaining content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		return nil, nil, fmt.Errorf("unclosed frontmatter")
	}

	yamlContent := content[4 : 4+endIdx]
	remaining := content[4+endIdx+5:]

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &fm, remaining, nil
}

func infoFields(fenced *ast.FencedCodeBlock, source []byte) []string {
	if fenced.Info == nil {
		return nil
	}
	return strings.Fields(string(fenced.Info.Segment.Value(source)))
}

func isCell(n ast.Node, source []byte) bool {
	fenced, ok := n.(*ast.FencedCodeBlock)
	if !ok {
		return false
	}
	fields := infoFields(fenced, source)
	return len(fields) > 0 && fields[0] == cellInfo
}

func isOutput(n ast.Node, source []byte) bool {
	fenced, ok := n.(*ast.FencedCodeBlock)
	if !ok {
		return false
	}
	fields := infoFields(fenced, source)
	return len(fields) > 0 && fields[0] == outputInfo
}

// cellMeta returns the language, the tags from leading ":tags: [...]" option
// lines, and the code with option lines stripped.
func cellMeta(fenced *ast.FencedCodeBlock, source []byte) (string, []string, []byte) {
	lang := ""
	if fields := infoFields(fenced, source); len(fields) > 1 {
		lang = fields[1]
	}

	var tags []string
	var code bytes.Buffer
	options := true
	lines := fenced.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		line := segment.Value(source)
		if options {
			trimmed := strings.TrimSpace(string(line))
			if strings.HasPrefix(trimmed, ":") {
				if value, ok := strings.CutPrefix(trimmed, ":tags:"); ok {
					tags = append(tags, parseTagList(value)...)
				}
				continue
			}
			options = false
		}
		code.Write(line)
	}
	return lang, tags, code.Bytes()
}

func parseTagList(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")

	var tags []string
	for _, t := range strings.Split(value, ",") {
		t = strings.Trim(strings.TrimSpace(t), `"'`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// cellRenderer renders fenced code blocks, turning {code-cell} fences into
// Jupyter Book style cell markup.
type cellRenderer struct{}

func (r *cellRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *cellRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	fenced := node.(*ast.FencedCodeBlock)

	switch {
	case isCell(fenced, source):
		lang, tags, code := cellMeta(fenced, source)

		class := "cell docutils container"
		for _, t := range tags {
			class += " tag_" + t
		}
		_, _ = w.WriteString(`<div class="` + string(util.EscapeHTML([]byte(class))) + `">` + "\n")
		_, _ = w.WriteString(`<div class="cell_input docutils container">`)
		_, _ = w.WriteString(`<pre class="highlight-` + string(util.EscapeHTML([]byte(lang))) + `">`)
		_, _ = w.Write(util.EscapeHTML(code))
		_, _ = w.WriteString("</pre></div>\n")

		if next, ok := fenced.NextSibling().(*ast.FencedCodeBlock); ok && isOutput(next, source) {
			_, _ = w.WriteString(`<div class="cell_output docutils container"><pre>`)
			_, _ = w.Write(util.EscapeHTML(fenceContent(next, source)))
			_, _ = w.WriteString("</pre></div>\n")
		}
		_, _ = w.WriteString("</div>\n")

	case isOutput(fenced, source) && isCell(fenced.PreviousSibling(), source):
		// rendered inside the preceding cell

	default:
		_, _ = w.WriteString("<pre><code")
		if lang := fenced.Language(source); lang != nil {
			_, _ = w.WriteString(` class="language-` + string(util.EscapeHTML(lang)) + `"`)
		}
		_, _ = w.WriteString(">")
		_, _ = w.Write(util.EscapeHTML(fenceContent(fenced, source)))
		_, _ = w.WriteString("</code></pre>\n")
	}

	return ast.WalkSkipChildren, nil
}

func fenceContent(fenced *ast.FencedCodeBlock, source []byte) []byte {
	return segmentsValue(fenced.Lines(), source)
}

func segmentsValue(lines *text.Segments, source []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.Bytes()
}
