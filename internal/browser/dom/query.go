// internal/browser/dom/query.go
package dom

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// QueryAll returns every element of doc (frames excluded) matching selector,
// in document order.
func QueryAll(doc *Document, selector string) ([]*html.Node, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("dom: invalid selector %q: %w", selector, err)
	}
	return goquery.NewDocumentFromNode(doc.Root).FindMatcher(matcher).Nodes, nil
}

// Resolve behaves like document.querySelector: the first match, or nil.
func Resolve(doc *Document, selector string) (*html.Node, error) {
	nodes, err := QueryAll(doc, selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Verification is the outcome of re-resolving one candidate's selector.
type Verification struct {
	Idx        int
	Selector   string
	Matches    int
	RoundTrips bool
	Err        error
}

// Verify re-resolves each candidate selector against the document the
// candidates were minified from and reports whether the first match is the
// node that produced it. Candidates from frame documents are checked against
// their own frame.
func Verify(doc *Document, opts MinifyOptions) []Verification {
	owners := make(map[int]*Document)
	nodes := make(map[int]*html.Node)
	idx := 0
	for _, d := range flatten(doc) {
		walkElements(d.Root, func(n *html.Node) bool {
			owners[idx], nodes[idx] = d, n
			idx++
			return true
		})
	}

	var out []Verification
	for _, e := range collect(doc, opts) {
		c := e.candidate
		v := Verification{Idx: c.Idx, Selector: c.Meta.QuerySelector}
		matches, err := QueryAll(owners[c.Idx], c.Meta.QuerySelector)
		if err != nil {
			v.Err = err
		} else {
			v.Matches = len(matches)
			v.RoundTrips = len(matches) > 0 && matches[0] == nodes[c.Idx]
		}
		out = append(out, v)
	}
	return out
}
