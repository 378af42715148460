package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/config"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		action schemas.Action
		want   string
	}{
		{schemas.NewNavigate("https://a.example/"), "navigating to https://a.example/..."},
		{schemas.NewClarify("Which one?"), "Which one?"},
		{schemas.NewClick(1, "Buy now"), `clicking "Buy now"...`},
		{schemas.NewInput(2, "socks", true), "typing socks..."},
		{schemas.NewRefresh(), "refreshing page"},
		{schemas.NewBack(), "going back"},
		{schemas.NewDone("Ordered."), "Ordered."},
	}
	for _, tt := range tests {
		t.Run(string(tt.action.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.action))
		})
	}
}

func TestSummarize(t *testing.T) {
	rec := func(a schemas.Action, selector string) schemas.ActionRecord {
		return schemas.ActionRecord{Action: a, QuerySelector: selector}
	}
	assert.Equal(t, "Attempt navigate to https://a.example/", Summarize(rec(schemas.NewNavigate("https://a.example/"), ""), true))
	assert.Equal(t, `Attempt click on "Buy now" (failed)`, Summarize(rec(schemas.NewClick(1, "Buy now"), "button"), false))
	assert.Equal(t, `Attempt enter "socks" into #search`, Summarize(rec(schemas.NewInput(2, "socks", true), "#search"), true))
	assert.Equal(t, "Attempt refresh the page", Summarize(rec(schemas.NewRefresh(), ""), true))
	assert.Equal(t, "Attempt go back to the previous page (failed)", Summarize(rec(schemas.NewBack(), ""), false))
	assert.Equal(t, "Task completed", Summarize(rec(schemas.NewDone("x"), ""), true))
}

func TestFoldClarification(t *testing.T) {
	assert.Equal(t, "book a table\nUser clarification: \"for 4 at 7pm\"", FoldClarification("book a table", "for 4 at 7pm"))
}

func TestSitePolicy_Resolve(t *testing.T) {
	p := NewSitePolicy([]config.SiteConfig{
		{Match: "amazon.com", IncludeIDInQuerySelector: false, UseWithSubmit: true},
		{Match: "opentable.com", IncludeIDInQuerySelector: true, UseWithSubmit: false},
		{Match: "table.com", IncludeIDInQuerySelector: false, UseWithSubmit: false},
	})

	tests := []struct {
		url  string
		want schemas.PageOptions
	}{
		{"https://www.amazon.com/s?k=socks", schemas.PageOptions{Href: "https://www.amazon.com/s?k=socks", Hostname: "www.amazon.com", UseWithSubmit: true}},
		{"https://www.opentable.com/r/x", schemas.PageOptions{Href: "https://www.opentable.com/r/x", Hostname: "www.opentable.com", IncludeIDInQuerySelector: true}},
		{"https://example.org/", schemas.PageOptions{Href: "https://example.org/", Hostname: "example.org", IncludeIDInQuerySelector: true, UseWithSubmit: true}},
		{"about:blank", schemas.PageOptions{Href: "about:blank", IncludeIDInQuerySelector: true, UseWithSubmit: true}},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Resolve(tt.url))
		})
	}
}
