// internal/browser/dom/minify.go
package dom

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// DefaultMaxTopicLen caps the label text sent to the oracle per candidate.
const DefaultMaxTopicLen = 250

// structuralRoles mark containers rather than actionable targets.
var structuralRoles = map[string]struct{}{
	"style":         {},
	"script":        {},
	"main":          {},
	"grid":          {},
	"table":         {},
	"contentinfo":   {},
	"complementary": {},
	"banner":        {},
	"navigation":    {},
	"tabpanel":      {},
}

// topicAttributes are tried in order before falling back to text content.
var topicAttributes = []string{"href", "aria-label", "title", "placeholder", "data-testid"}

// MinifyOptions carries the per-site policy for a minification pass.
type MinifyOptions struct {
	IncludeIDInQuerySelector bool
	MaxTopicLen              int
}

// OptionsFor derives minifier options from a page policy.
func OptionsFor(p schemas.PageOptions) MinifyOptions {
	return MinifyOptions{IncludeIDInQuerySelector: p.IncludeIDInQuerySelector}
}

// skipReason explains why a node produced no candidate. The zero value means
// the node was kept.
type skipReason string

const (
	kept           skipReason = ""
	skipRole       skipReason = "structural role"
	skipUnrendered skipReason = "zero size"
	skipNoTopic    skipReason = "no topic"
	skipFault      skipReason = "fault"
)

// entry is a candidate together with the box it was derived from.
type entry struct {
	candidate schemas.CandidateElement
	box       Rect
}

// Minify compresses doc and its same-origin frames into an ordered list of
// distinct interactive candidates. Idx is the position of the node in the
// combined traversal, so it is stable for an unchanged document.
func Minify(doc *Document, opts MinifyOptions) []schemas.CandidateElement {
	entries := collect(doc, opts)
	out := make([]schemas.CandidateElement, len(entries))
	for i, e := range entries {
		out[i] = e.candidate
	}
	return out
}

// collect runs the per-node fold and returns the surviving entries.
func collect(doc *Document, opts MinifyOptions) []entry {
	if opts.MaxTopicLen <= 0 {
		opts.MaxTopicLen = DefaultMaxTopicLen
	}

	var (
		out  []entry
		seen = make(map[string]struct{})
		idx  = 0
	)
	for _, d := range flatten(doc) {
		walkElements(d.Root, func(n *html.Node) bool {
			e, reason := safeCandidate(d, n, idx, opts)
			idx++
			if reason != kept {
				return true
			}
			key := e.candidate.Tag + "|" + e.candidate.ID + "|" + e.candidate.Topic
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			e.candidate.Meta.InFrame = d != doc
			out = append(out, e)
			return true
		})
	}
	return out
}

// flatten lists doc followed by its frame documents, depth first.
func flatten(doc *Document) []*Document {
	if doc == nil {
		return nil
	}
	docs := []*Document{doc}
	for _, f := range doc.Frames {
		docs = append(docs, flatten(f)...)
	}
	return docs
}

// safeCandidate isolates faults on a single node so they never abort a pass.
func safeCandidate(d *Document, n *html.Node, idx int, opts MinifyOptions) (e entry, reason skipReason) {
	defer func() {
		if r := recover(); r != nil {
			e, reason = entry{}, skipFault
		}
	}()
	return candidateFor(d, n, idx, opts)
}

func candidateFor(d *Document, n *html.Node, idx int, opts MinifyOptions) (entry, skipReason) {
	role := attrVal(n, "role")
	if _, structural := structuralRoles[role]; structural {
		return entry{}, skipRole
	}

	box, ok := d.Box(n)
	if !ok || box.Empty() {
		return entry{}, skipUnrendered
	}

	tag := role
	if tag == "" {
		tag = attrVal(n, "type")
	}
	if tag == "" {
		tag = "div"
	}

	topic := truncateRunes(topicOf(n), opts.MaxTopicLen)
	if topic == "" {
		return entry{}, skipNoTopic
	}
	if name := strings.ToLower(n.Data); name == "input" || name == "checkbox" {
		if checked, present := attr(n, "checked"); present {
			topic += fmt.Sprintf(` checked="%s"`, checked)
		}
	}

	return entry{
		candidate: schemas.CandidateElement{
			Tag:   tag,
			ID:    attrVal(n, "id"),
			Topic: topic,
			Idx:   idx,
			Meta: schemas.CandidateMeta{
				QuerySelector: Synthesize(n, opts.IncludeIDInQuerySelector),
			},
		},
		box: box,
	}, kept
}

func topicOf(n *html.Node) string {
	for _, key := range topicAttributes {
		if v := attrVal(n, key); v != "" {
			return v
		}
	}
	return stripSpace(goquery.NewDocumentFromNode(n).Text())
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
