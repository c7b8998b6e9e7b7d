package tracker

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/runnerr0/tabtime/internal/model"
)

// PendingSource is the visit that was open in an opener tab when the host
// reported a link opening a new tab.
type PendingSource struct {
	URL     string
	VisitID string
	TabID   int
}

// Resolver decides how each new visit was reached. Pending link sources and
// native navigation causes are kept in bounded caches keyed by destination
// tab; entries leave on consumption, on tab removal, by capacity or by age.
type Resolver struct {
	pending *expirable.LRU[int, PendingSource]
	causes  *expirable.LRU[int, model.NavigationType]
}

// NewResolver returns a Resolver holding at most capacity entries per cache,
// each expiring after ttl. A zero ttl disables expiry.
func NewResolver(capacity int, ttl time.Duration) *Resolver {
	return &Resolver{
		pending: expirable.NewLRU[int, PendingSource](capacity, nil, ttl),
		causes:  expirable.NewLRU[int, model.NavigationType](capacity, nil, ttl),
	}
}

// RecordLinkOpen remembers source as the origin of the next visit in
// newTabID. It reports false when the opener had no open visit.
func (r *Resolver) RecordLinkOpen(newTabID int, source *model.URLVisit) bool {
	if source == nil {
		return false
	}
	r.pending.Add(newTabID, PendingSource{
		URL:     source.URL,
		VisitID: source.ID,
		TabID:   source.TabID,
	})
	return true
}

// NoteCause records the host's own transition type for the next visit in
// tabID. Types the host cannot report (chain, hyperlink) are ignored.
func (r *Resolver) NoteCause(tabID int, cause model.NavigationType) {
	switch cause {
	case model.NavChain, model.NavHyperlink, "":
		return
	}
	r.causes.Add(tabID, cause)
}

// Resolve consumes whatever is known about tabID and returns the source of
// its new visit. previous is the visit the tab showed before, if any.
func (r *Resolver) Resolve(tabID int, previous *model.URLVisit) model.NavigationSource {
	cause, hasCause := r.causes.Get(tabID)
	r.causes.Remove(tabID)

	if src, ok := r.pending.Get(tabID); ok {
		r.pending.Remove(tabID)
		return model.NavigationSource{
			Type:         model.NavHyperlink,
			SourceURL:    src.URL,
			SourceTabID:  src.TabID,
			SourceNodeID: src.VisitID,
		}
	}

	if previous != nil {
		return model.NavigationSource{
			Type:         model.NavChain,
			SourceURL:    previous.URL,
			SourceTabID:  previous.TabID,
			SourceNodeID: previous.ID,
		}
	}

	if hasCause {
		return model.NavigationSource{Type: cause}
	}
	return model.NavigationSource{Type: model.NavTyped}
}

// Forget drops everything pending for a removed tab.
func (r *Resolver) Forget(tabID int) {
	r.pending.Remove(tabID)
	r.causes.Remove(tabID)
}

// Pending reports how many link sources are waiting for their destination.
func (r *Resolver) Pending() int {
	return r.pending.Len()
}
