package tracker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/runnerr0/tabtime/internal/model"
)

// Filter decides which URLs are recorded at all. Non-http(s) URLs and
// denylisted domains are never stored.
type Filter struct {
	domains []string
	regexes []*regexp.Regexp
}

// NewFilter builds a Filter from denylisted domains and regular expressions.
// A domain entry also covers its subdomains. Expressions are matched against
// both the domain and the full URL.
func NewFilter(domains, patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			f.domains = append(f.domains, d)
		}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile denylist pattern %q: %w", p, err)
		}
		f.regexes = append(f.regexes, re)
	}
	return f, nil
}

// Allow reports whether rawURL should be recorded.
func (f *Filter) Allow(rawURL string) bool {
	if !model.IsTrackable(rawURL) {
		return false
	}
	return !f.isExcluded(model.ExtractDomain(rawURL), rawURL)
}

func (f *Filter) isExcluded(domain, rawURL string) bool {
	for _, d := range f.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	for _, re := range f.regexes {
		if re.MatchString(domain) || re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
