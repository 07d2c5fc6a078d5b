package thebekit

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cellsPage = `<!DOCTYPE html>
<html><head><title>Cells</title></head>
<body>
<button class="thebe-launch-button">Launch</button>
<div class="cell" id="original">
  <div class="cell_output"><span>42</span></div>
  <div class="cell_input"><pre>print(42)</pre></div>
</div>
<div class="cell">
  <div class="cell_input"><pre>x = 1</pre></div>
</div>
<div class="cell">
  <p>no input here</p>
  <div class="cell_output">orphan</div>
</div>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseDocumentString(s)
	require.NoError(t, err)
	return doc
}

func TestDecorateCellsAssignsSequentialIDs(t *testing.T) {
	doc := mustParse(t, cellsPage)

	n := doc.DecorateCells(DefaultOptions().Selectors, "python")
	assert.Equal(t, 3, n)

	seen := map[string]bool{}
	doc.Find("div.cell").Each(func(i int, s *goquery.Selection) {
		id := s.AttrOr("id", "")
		assert.Equal(t, CellID(i), id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	})
}

func TestDecorateCellsMarksInput(t *testing.T) {
	doc := mustParse(t, cellsPage)
	doc.DecorateCells(DefaultOptions().Selectors, "r")

	input := doc.Find("#codecell1 pre")
	assert.Equal(t, "r", input.AttrOr("data-language", ""))
	assert.Equal(t, "true", input.AttrOr("data-executable", ""))
	assert.Equal(t, 0, doc.Find("#codecell1 [data-output]").Length())
}

func TestDecorateCellsMovesOutputAfterInput(t *testing.T) {
	doc := mustParse(t, cellsPage)
	doc.DecorateCells(DefaultOptions().Selectors, "python")

	input := doc.Find("#codecell0 pre").First()
	require.Equal(t, 1, input.Length())

	next := input.Next()
	assert.True(t, next.HasClass("cell_output"))
	_, ok := next.Attr("data-output")
	assert.True(t, ok)
}

func TestDecorateCellsSkipsCellWithoutInput(t *testing.T) {
	doc := mustParse(t, cellsPage)
	doc.DecorateCells(DefaultOptions().Selectors, "python")

	orphan := doc.Find("#codecell2 .cell_output")
	require.Equal(t, 1, orphan.Length())
	_, ok := orphan.Attr("data-output")
	assert.False(t, ok)
	assert.Equal(t, 0, doc.Find("#codecell2 [data-executable]").Length())
}

func TestDecorateCellsOutputFollowsInputInOrder(t *testing.T) {
	page := `<html><body>
<div class="cell">
  <div class="cell_output">out</div>
  <pre>code</pre>
  <p>trailing</p>
</div>
</body></html>`
	doc := mustParse(t, page)
	doc.DecorateCells(DefaultOptions().Selectors, "python")

	children := doc.Find("#codecell0").Children()
	require.Equal(t, 3, children.Length())
	assert.Equal(t, "pre", goquery.NodeName(children.Eq(0)))
	assert.True(t, children.Eq(1).HasClass("cell_output"))
	assert.Equal(t, "p", goquery.NodeName(children.Eq(2)))
}

func TestDecorateCellsKeepsOutputContainingInput(t *testing.T) {
	doc := mustParse(t, `<html><body>
<div class="cell"><div class="output"><pre>nested</pre></div></div>
</body></html>`)
	doc.DecorateCells(DefaultOptions().Selectors, "python")

	pre := doc.Find("#codecell0 pre")
	require.Equal(t, 1, pre.Length())
	assert.True(t, pre.Parent().HasClass("output"))
	assert.Equal(t, "true", pre.AttrOr("data-executable", ""))
}

func TestButtonStates(t *testing.T) {
	doc := mustParse(t, `<html><body>
<a class="thebe-launch-button a">one</a>
<a class="thebe-launch-button b"><b>two</b></a>
</body></html>`)

	states := doc.ButtonStates(".thebe-launch-button")
	require.Len(t, states, 2)
	assert.Equal(t, "thebe-launch-button a", states[0].Class)
	assert.Equal(t, "one", states[0].HTML)
	assert.Equal(t, "<b>two</b>", states[1].HTML)
}

func TestDocumentRenderRoundTrip(t *testing.T) {
	doc := mustParse(t, cellsPage)
	doc.DecorateCells(DefaultOptions().Selectors, "python")

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `id="codecell0"`)
	assert.Contains(t, out, `data-executable="true"`)

	clone, err := doc.Clone()
	require.NoError(t, err)
	assert.Equal(t, 3, clone.Find("[id^=codecell]").Length())

	body, err := doc.BodyHTML()
	require.NoError(t, err)
	assert.NotContains(t, body, "<body")
	assert.Contains(t, body, "thebe-launch-button")
}
