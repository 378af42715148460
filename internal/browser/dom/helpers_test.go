package dom_test

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/surfer/internal/browser/dom"
)

// parseLaidOut parses markup and gives every element a 100x20 box stacked
// vertically, except elements marked with data-hidden which get a zero box.
func parseLaidOut(t *testing.T, markup, url string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(markup), url)
	require.NoError(t, err)

	y := 0.0
	goquery.NewDocumentFromNode(doc.Root).Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if _, hidden := s.Attr("data-hidden"); hidden {
			doc.SetBox(n, dom.Rect{X: 10, Y: y})
			return
		}
		doc.SetBox(n, dom.Rect{X: 10, Y: y, Width: 100, Height: 20})
		y += 20
	})
	return doc
}

// find returns the single element matching selector.
func find(t *testing.T, doc *dom.Document, selector string) *html.Node {
	t.Helper()
	sel := goquery.NewDocumentFromNode(doc.Root).Find(selector)
	require.Equal(t, 1, sel.Length(), "test setup: %q should match exactly one node", selector)
	return sel.Get(0)
}
