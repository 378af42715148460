// internal/browser/session/snapshot.go
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/domsnapshot"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/surfer/internal/browser/dom"
)

// CDP node types kept when rebuilding the tree.
const (
	nodeElement  = 1
	nodeText     = 3
	nodeDocument = 9
)

func captureSnapshot(ctx context.Context) ([]*domsnapshot.DocumentSnapshot, []string, error) {
	return domsnapshot.CaptureSnapshot([]string{}).Do(ctx)
}

// fromSnapshot rebuilds the main document and its frames from a flattened
// DOMSnapshot. Layout bounds are converted to viewport coordinates. Shadow
// roots, comments and pseudo elements are left out, matching what
// querySelector can reach.
func fromSnapshot(docs []*domsnapshot.DocumentSnapshot, strs []string) (*dom.Document, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("snapshot contains no documents")
	}

	built := make([]*dom.Document, len(docs))
	for i, d := range docs {
		built[i] = buildDocument(d, strs)
	}

	// Attach each frame document to the document that hosts its iframe, in
	// host order, so the frame tree is traversed depth first.
	attached := make([]bool, len(docs))
	var attach func(i int)
	attach = func(i int) {
		nodes := docs[i].Nodes
		if nodes == nil || nodes.ContentDocumentIndex == nil {
			return
		}
		for _, child := range nodes.ContentDocumentIndex.Value {
			c := int(child)
			if c <= 0 || c >= len(built) || attached[c] {
				continue
			}
			attached[c] = true
			if built[i].AddFrame(built[c]) {
				attach(c)
			}
		}
	}
	attach(0)
	return built[0], nil
}

func buildDocument(d *domsnapshot.DocumentSnapshot, strs []string) *dom.Document {
	lookup := func(idx domsnapshot.StringIndex) string {
		if idx < 0 || int(idx) >= len(strs) {
			return ""
		}
		return strs[idx]
	}

	root := &html.Node{Type: html.DocumentNode}
	doc := dom.NewDocument(root, lookup(d.DocumentURL))
	if d.Nodes == nil {
		return doc
	}

	t := d.Nodes
	nodes := make([]*html.Node, len(t.NodeType))
	for i, typ := range t.NodeType {
		parent := -1
		if i < len(t.ParentIndex) {
			parent = int(t.ParentIndex[i])
		}

		var n *html.Node
		switch typ {
		case nodeDocument:
			if parent < 0 {
				n = root
			}
		case nodeElement:
			name := strings.ToLower(lookup(nameAt(t, i)))
			if name == "" || strings.HasPrefix(name, "::") {
				break
			}
			n = &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
			if i < len(t.Attributes) {
				attrs := t.Attributes[i]
				for k := 0; k+1 < len(attrs); k += 2 {
					n.Attr = append(n.Attr, html.Attribute{Key: lookup(domsnapshot.StringIndex(attrs[k])), Val: lookup(domsnapshot.StringIndex(attrs[k+1]))})
				}
			}
		case nodeText:
			if i < len(t.NodeValue) {
				n = &html.Node{Type: html.TextNode, Data: lookup(t.NodeValue[i])}
			}
		}
		nodes[i] = n
		if n == nil || n == root {
			continue
		}
		// A node whose parent was dropped is dropped with it.
		if parent < 0 || parent >= i || nodes[parent] == nil {
			nodes[i] = nil
			continue
		}
		nodes[parent].AppendChild(n)
	}

	if l := d.Layout; l != nil {
		for k, ni := range l.NodeIndex {
			if k >= len(l.Bounds) || int(ni) >= len(nodes) || nodes[ni] == nil {
				continue
			}
			b := l.Bounds[k]
			if len(b) < 4 {
				continue
			}
			doc.SetBox(nodes[ni], dom.Rect{
				X:      b[0] - d.ScrollOffsetX,
				Y:      b[1] - d.ScrollOffsetY,
				Width:  b[2],
				Height: b[3],
			})
		}
	}
	return doc
}

func nameAt(t *domsnapshot.NodeTreeSnapshot, i int) domsnapshot.StringIndex {
	if i < len(t.NodeName) {
		return t.NodeName[i]
	}
	return -1
}
