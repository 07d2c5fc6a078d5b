package thebekit

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// ParseDocument parses a full HTML page.
func ParseDocument(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseDocumentString parses a page held in a string.
func ParseDocumentString(s string) (*Document, error) {
	return ParseDocument(strings.NewReader(s))
}

// Find returns the elements matching selector in document order.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Render writes the whole page.
func (d *Document) Render(w io.Writer) error {
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("failed to render HTML: %w", err)
		}
	}
	return nil
}

// HTML renders the whole page to a string.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BodyHTML returns the inner HTML of <body>.
func (d *Document) BodyHTML() (string, error) {
	body := d.doc.Find("body").First()
	if body.Length() == 0 {
		return "", nil
	}
	return body.Html()
}

// Clone returns an independent copy of the document.
func (d *Document) Clone() (*Document, error) {
	s, err := d.HTML()
	if err != nil {
		return nil, err
	}
	return ParseDocumentString(s)
}

// ButtonState is the rendered state of one launch button.
type ButtonState struct {
	Class string `json:"class"`
	HTML  string `json:"html"`
}

// ButtonStates returns the class attribute and inner HTML of every element
// matching selector, in document order.
func (d *Document) ButtonStates(selector string) []ButtonState {
	var states []ButtonState
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		inner, _ := s.Html()
		states = append(states, ButtonState{
			Class: s.AttrOr("class", ""),
			HTML:  inner,
		})
	})
	return states
}

// DecorateCells prepares every cell for the widget. Cells get sequential ids
// codecell0, codecell1, ... and their input gets data-language and
// data-executable. An output is marked with data-output and moved to directly
// follow the input. It returns the number of cells visited.
func (d *Document) DecorateCells(sel Selectors, language string) int {
	cells := d.doc.Find(sel.Cell)
	cells.Each(func(i int, cell *goquery.Selection) {
		cell.SetAttr("id", CellID(i))

		input := cell.Find(sel.Input).First()
		if input.Length() == 0 {
			return
		}
		output := cell.Find(sel.Output).First()

		input.SetAttr("data-language", language)
		input.SetAttr("data-executable", "true")

		if output.Length() == 0 {
			return
		}
		output.SetAttr("data-output", "")
		if output.Get(0) == input.Get(0) || output.Contains(input.Get(0)) {
			return
		}
		input.AfterSelection(output)
	})
	return cells.Length()
}

// CellID returns the id assigned to the cell at the given 0-based position.
func CellID(index int) string {
	return fmt.Sprintf("codecell%d", index)
}
