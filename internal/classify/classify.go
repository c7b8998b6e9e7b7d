// Package classify maps visited domains to a coarse category.
package classify

import (
	"strings"

	"github.com/runnerr0/tabtime/internal/model"
)

// Confidence levels reported by the classifier.
const (
	DomainConfidence  = 0.9
	KeywordConfidence = 0.6
	DefaultConfidence = 0.5
)

// Result is the outcome of classifying one URL.
type Result struct {
	Category   model.Category
	Confidence float64
}

// Classifier matches domains against work and social lists. The zero value
// is not usable; call New or use Default.
type Classifier struct {
	work   []string
	social []string
}

var defaultClassifier = New(nil, nil)

// Default returns the classifier built from the curated lists only.
func Default() *Classifier {
	return defaultClassifier
}

// Classify uses the default classifier.
func Classify(rawURL, domain string) Result {
	return defaultClassifier.Classify(rawURL, domain)
}

// New returns a Classifier over the curated lists extended with the given
// domains. Entries are lowercased and a leading "www." is dropped.
func New(extraWork, extraSocial []string) *Classifier {
	return &Classifier{
		work:   merge(workDomains, extraWork),
		social: merge(socialDomains, extraSocial),
	}
}

func merge(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, d := range extra {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Classify returns the category of a visit. Domain lists win over URL
// keywords; anything unmatched is "other".
func (c *Classifier) Classify(rawURL, domain string) Result {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	if canonical, ok := synonyms[domain]; ok {
		domain = canonical
	}

	if domain != "" {
		if matchesAny(domain, c.work) {
			return Result{Category: model.CategoryWork, Confidence: DomainConfidence}
		}
		if matchesAny(domain, c.social) {
			return Result{Category: model.CategorySocial, Confidence: DomainConfidence}
		}
	}

	lower := strings.ToLower(rawURL)
	if containsAny(lower, workKeywords) {
		return Result{Category: model.CategoryWork, Confidence: KeywordConfidence}
	}
	if containsAny(lower, socialKeywords) {
		return Result{Category: model.CategorySocial, Confidence: KeywordConfidence}
	}

	return Result{Category: model.CategoryOther, Confidence: DefaultConfidence}
}

// matchesAny reports whether domain contains any of the entries.
func matchesAny(domain string, entries []string) bool {
	for _, e := range entries {
		if strings.Contains(domain, e) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
