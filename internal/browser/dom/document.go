// internal/browser/dom/document.go
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Rect is a rendered layout box in CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// Empty reports whether the box has no rendered area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Center returns the midpoint of the box.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Point is a viewport coordinate.
type Point struct {
	X, Y float64
}

// Document is a parsed page together with the layout boxes of its elements
// and the documents of its same-origin frames.
type Document struct {
	Root   *html.Node
	URL    string
	Frames []*Document

	layout map[*html.Node]Rect
}

// NewDocument wraps an existing node tree. Boxes are added with SetBox.
func NewDocument(root *html.Node, docURL string) *Document {
	return &Document{Root: root, URL: docURL, layout: make(map[*html.Node]Rect)}
}

// Parse reads HTML into a Document without layout information.
func Parse(r io.Reader, docURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: failed to parse document: %w", err)
	}
	return NewDocument(root, docURL), nil
}

// SetBox records the rendered box of n.
func (d *Document) SetBox(n *html.Node, r Rect) {
	d.layout[n] = r
}

// Box returns the rendered box of n. Nodes without layout are reported as
// not rendered.
func (d *Document) Box(n *html.Node) (Rect, bool) {
	r, ok := d.layout[n]
	return r, ok
}

// AddFrame attaches the document of a nested frame. Frames from a different
// origin than d are ignored, since their contents are not reachable from
// the embedding page.
func (d *Document) AddFrame(f *Document) bool {
	if f == nil || !SameOrigin(d.URL, f.URL) {
		return false
	}
	d.Frames = append(d.Frames, f)
	return true
}

// Body returns the <body> element of the document, if any.
func (d *Document) Body() *html.Node {
	var found *html.Node
	walkElements(d.Root, func(n *html.Node) bool {
		if n.DataAtom == atom.Body {
			found = n
			return false
		}
		return true
	})
	return found
}

// SameOrigin compares the scheme, host and port of two URLs. about:blank and
// srcdoc frames inherit the origin of their parent.
func SameOrigin(a, b string) bool {
	if b == "" || strings.HasPrefix(b, "about:") {
		return true
	}
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// walkElements visits element nodes in document order. Returning false from
// fn stops the walk.
func walkElements(n *html.Node, fn func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if n.Type == html.ElementNode && !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}

// attr returns the value of the named attribute and whether it is present.
func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attrVal(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}
