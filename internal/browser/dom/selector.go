// internal/browser/dom/selector.go
package dom

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var errInvalidIdent = errors.New("dom: identifier is not valid UTF-8")

// Synthesize builds a CSS path that re-locates n, walking up to (but not
// including) <body>. With includeID set, the first ancestor carrying an id
// anchors the path and ends the walk. Otherwise each step is the escaped
// tag plus its class list.
//
// The result reflects the tree at the time of the call. Callers must not
// reuse it after the page changes.
func Synthesize(n *html.Node, includeID bool) string {
	var path []string
	for cur := n; cur != nil && cur.Type == html.ElementNode && cur.DataAtom != atom.Body; cur = cur.Parent {
		step, err := cssEscape(strings.ToLower(cur.Data))
		if err != nil {
			step = "*"
		}

		if includeID {
			if id := attrVal(cur, "id"); id != "" {
				path = append(path, step+idSelector(id))
				break
			}
		}

		for _, class := range strings.Fields(attrVal(cur, "class")) {
			escaped, err := cssEscape(class)
			if err != nil {
				continue
			}
			step += "." + escaped
		}
		path = append(path, step)
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " > ")
}

// idSelector renders the id part of a step. Ids containing ':' (common in
// generated markup) use attribute equality instead of an escaped hash.
func idSelector(id string) string {
	if strings.Contains(id, ":") {
		return `[id="` + escapeAttrValue(id) + `"]`
	}
	escaped, err := cssEscape(id)
	if err != nil {
		return `[id="` + escapeAttrValue(id) + `"]`
	}
	return "#" + escaped
}

func escapeAttrValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}

// cssEscape serializes s as a CSS identifier following the CSSOM
// "serialize an identifier" algorithm.
func cssEscape(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", errInvalidIdent
	}
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune(utf8.RuneError)
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			fmt.Fprintf(&b, `\%x `, r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, `\%x `, r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, `\%x `, r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}
