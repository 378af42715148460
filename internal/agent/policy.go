package agent

import (
	"net/url"
	"strings"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/config"
)

// SitePolicy maps a page URL onto its PageOptions.
type SitePolicy struct {
	sites []config.SiteConfig
}

// NewSitePolicy returns a policy consulting sites in order.
func NewSitePolicy(sites []config.SiteConfig) *SitePolicy {
	return &SitePolicy{sites: append([]config.SiteConfig(nil), sites...)}
}

// Resolve returns the options for rawURL. Both flags default to true and
// the first site whose Match is contained in the hostname overrides them.
func (p *SitePolicy) Resolve(rawURL string) schemas.PageOptions {
	opts := schemas.PageOptions{
		Href:                     rawURL,
		IncludeIDInQuerySelector: true,
		UseWithSubmit:            true,
	}
	if u, err := url.Parse(rawURL); err == nil {
		opts.Hostname = u.Hostname()
	}
	if opts.Hostname == "" {
		return opts
	}
	for _, s := range p.sites {
		if s.Match != "" && strings.Contains(opts.Hostname, s.Match) {
			opts.IncludeIDInQuerySelector = s.IncludeIDInQuerySelector
			opts.UseWithSubmit = s.UseWithSubmit
			break
		}
	}
	return opts
}
