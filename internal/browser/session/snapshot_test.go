package session

import (
	"testing"

	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/surfer/internal/browser/dom"
)

// snapshotBuilder assembles a DocumentSnapshot with a shared string table.
type snapshotBuilder struct {
	strs  []string
	index map[string]domsnapshot.StringIndex
}

func newSnapshotBuilder() *snapshotBuilder {
	return &snapshotBuilder{index: make(map[string]domsnapshot.StringIndex)}
}

func (b *snapshotBuilder) str(s string) domsnapshot.StringIndex {
	if i, ok := b.index[s]; ok {
		return i
	}
	i := domsnapshot.StringIndex(len(b.strs))
	b.strs = append(b.strs, s)
	b.index[s] = i
	return i
}

type snapNode struct {
	parent int64
	typ    int64
	name   string
	value  string
	attrs  []string
	bounds []float64
}

func (b *snapshotBuilder) document(url string, nodes []snapNode, frames map[int64]int64, scrollY float64) *domsnapshot.DocumentSnapshot {
	tree := &domsnapshot.NodeTreeSnapshot{}
	layout := &domsnapshot.LayoutTreeSnapshot{}
	for i, n := range nodes {
		tree.ParentIndex = append(tree.ParentIndex, n.parent)
		tree.NodeType = append(tree.NodeType, n.typ)
		tree.NodeName = append(tree.NodeName, b.str(n.name))
		tree.NodeValue = append(tree.NodeValue, b.str(n.value))
		var attrs domsnapshot.ArrayOfStrings
		for _, a := range n.attrs {
			attrs = append(attrs, int64(b.str(a)))
		}
		tree.Attributes = append(tree.Attributes, attrs)
		if n.bounds != nil {
			layout.NodeIndex = append(layout.NodeIndex, int64(i))
			layout.Bounds = append(layout.Bounds, domsnapshot.Rectangle(n.bounds))
		}
	}
	if len(frames) > 0 {
		tree.ContentDocumentIndex = &domsnapshot.RareIntegerData{}
		for node, doc := range frames {
			tree.ContentDocumentIndex.Index = append(tree.ContentDocumentIndex.Index, node)
			tree.ContentDocumentIndex.Value = append(tree.ContentDocumentIndex.Value, doc)
		}
	}
	return &domsnapshot.DocumentSnapshot{
		DocumentURL:   b.str(url),
		Nodes:         tree,
		Layout:        layout,
		ScrollOffsetY: scrollY,
	}
}

func TestFromSnapshot(t *testing.T) {
	b := newSnapshotBuilder()
	main := b.document("https://example.com/", []snapNode{
		{parent: -1, typ: 9, name: "#document"},
		{parent: 0, typ: 1, name: "HTML", bounds: []float64{0, 0, 800, 600}},
		{parent: 1, typ: 1, name: "BODY", bounds: []float64{0, 0, 800, 600}},
		{parent: 2, typ: 1, name: "BUTTON", attrs: []string{"id", "go", "class", "primary"}, bounds: []float64{10, 120, 80, 20}},
		{parent: 3, typ: 3, name: "#text", value: "Go"},
		{parent: 2, typ: 8, name: "#comment", value: "ignored"},
		{parent: 2, typ: 1, name: "::before", bounds: []float64{0, 0, 5, 5}},
		{parent: 2, typ: 1, name: "IFRAME", bounds: []float64{0, 200, 300, 100}},
		{parent: 2, typ: 1, name: "IFRAME", bounds: []float64{0, 300, 300, 100}},
	}, map[int64]int64{7: 1, 8: 2}, 100)
	same := b.document("https://example.com/frame", []snapNode{
		{parent: -1, typ: 9, name: "#document"},
		{parent: 0, typ: 1, name: "HTML", bounds: []float64{0, 0, 300, 100}},
		{parent: 1, typ: 1, name: "BODY", bounds: []float64{0, 0, 300, 100}},
		{parent: 2, typ: 1, name: "A", attrs: []string{"href", "/inner"}, bounds: []float64{0, 0, 50, 10}},
	}, nil, 0)
	cross := b.document("https://ads.example.net/", []snapNode{
		{parent: -1, typ: 9, name: "#document"},
		{parent: 0, typ: 1, name: "HTML", bounds: []float64{0, 0, 300, 100}},
	}, nil, 0)

	doc, err := fromSnapshot([]*domsnapshot.DocumentSnapshot{main, same, cross}, b.strs)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", doc.URL)

	t.Run("elements and attributes", func(t *testing.T) {
		button, err := dom.Resolve(doc, "button#go.primary")
		require.NoError(t, err)
		require.NotNil(t, button)
		assert.Equal(t, atom.Button, button.DataAtom)
		require.NotNil(t, button.FirstChild)
		assert.Equal(t, "Go", button.FirstChild.Data)
	})

	t.Run("bounds are relative to the viewport", func(t *testing.T) {
		button, _ := dom.Resolve(doc, "button")
		box, ok := doc.Box(button)
		require.True(t, ok)
		assert.Equal(t, dom.Rect{X: 10, Y: 20, Width: 80, Height: 20}, box)
	})

	t.Run("comments and pseudo elements are dropped", func(t *testing.T) {
		body := doc.Body()
		require.NotNil(t, body)
		var names []string
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			names = append(names, c.Data)
		}
		assert.Equal(t, []string{"button", "iframe", "iframe"}, names)
	})

	t.Run("only same origin frames are attached", func(t *testing.T) {
		require.Len(t, doc.Frames, 1)
		assert.Equal(t, "https://example.com/frame", doc.Frames[0].URL)

		cands := dom.Minify(doc, dom.MinifyOptions{IncludeIDInQuerySelector: true})
		var topics []string
		for _, c := range cands {
			topics = append(topics, c.Topic)
		}
		assert.Contains(t, topics, "/inner")
	})
}

func TestFromSnapshotEmpty(t *testing.T) {
	_, err := fromSnapshot(nil, nil)
	assert.Error(t, err)
}
