package model

import (
	"errors"
	"fmt"
)

const msPerHour = float64(60 * 60 * 1000)

// ComputeStats derives the day aggregates from the tab sessions alone.
// Only visits marked active contribute; their durations are bucketed by
// category.
func ComputeStats(tabs []TabSession) Stats {
	var st Stats
	domains := make(map[string]struct{})
	var work, social, other int64

	for _, t := range tabs {
		for _, v := range t.Visits {
			if !v.IsActive {
				continue
			}
			st.TotalURLs++
			if v.Domain != "" {
				domains[v.Domain] = struct{}{}
			}
			switch v.Category {
			case CategoryWork:
				work += v.Duration
			case CategorySocial:
				social += v.Duration
			default:
				other += v.Duration
			}
		}
	}

	st.UniqueDomains = len(domains)
	st.WorkTime = float64(work) / msPerHour
	st.SocialTime = float64(social) / msPerHour
	st.OtherTime = float64(other) / msPerHour
	return st
}

// activeDuration sums the durations of the tab's active visits.
func (t *TabSession) activeDuration() int64 {
	var total int64
	for _, v := range t.Visits {
		if v.IsActive {
			total += v.Duration
		}
	}
	return total
}

// Recompute rebuilds every derived field of the session from its visits:
// per-tab and per-day active totals and the stats block.
func (s *BrowsingSession) Recompute() {
	var total int64
	for i := range s.TabSessions {
		t := &s.TabSessions[i]
		t.TotalActiveTime = t.activeDuration()
		total += t.TotalActiveTime
	}
	s.TotalActiveTime = total
	s.Stats = ComputeStats(s.TabSessions)
}

// Tally counts what a day recorded regardless of focus: every visit, every
// distinct domain and all focused time credited to visits.
type Tally struct {
	Visits  int
	Domains int
	Focused int64
}

// FocusedTime sums the focused time credited to the tab's visits.
func (t *TabSession) FocusedTime() int64 {
	var total int64
	for _, v := range t.Visits {
		total += v.ActiveTime
	}
	return total
}

// Tally summarizes every visit of the session.
func (s *BrowsingSession) Tally() Tally {
	var out Tally
	domains := make(map[string]struct{})
	for i := range s.TabSessions {
		t := &s.TabSessions[i]
		out.Visits += len(t.Visits)
		out.Focused += t.FocusedTime()
		for _, v := range t.Visits {
			if v.Domain != "" {
				domains[v.Domain] = struct{}{}
			}
		}
	}
	out.Domains = len(domains)
	return out
}

// Validate checks the structural invariants of a persisted session and
// returns every violation found.
func (s *BrowsingSession) Validate() error {
	var errs []error
	openTabs := make(map[int]bool)

	for ti, t := range s.TabSessions {
		if !t.IsClosed() {
			if openTabs[t.TabID] {
				errs = append(errs, fmt.Errorf("tab %d: more than one open tab session", t.TabID))
			}
			openTabs[t.TabID] = true
		}

		for i, v := range t.Visits {
			if v.Duration < 0 {
				errs = append(errs, fmt.Errorf("tab %d visit %s: negative duration", t.TabID, v.ID))
			}
			if v.EndTime != nil && *v.EndTime < v.StartTime {
				errs = append(errs, fmt.Errorf("tab %d visit %s: ends before it starts", t.TabID, v.ID))
			}
			if v.IsOpen() && i != len(t.Visits)-1 {
				errs = append(errs, fmt.Errorf("tab %d visit %s: open visit is not the latest", t.TabID, v.ID))
			}
			if v.IsOpen() && t.IsClosed() {
				errs = append(errs, fmt.Errorf("tab %d visit %s: open visit in closed tab", t.TabID, v.ID))
			}
			if i > 0 {
				prev := t.Visits[i-1]
				if prev.EndTime == nil || *prev.EndTime > v.StartTime {
					errs = append(errs, fmt.Errorf("tab %d visits %s and %s overlap", t.TabID, prev.ID, v.ID))
				}
			}
		}
		if active := t.activeDuration(); active != t.TotalActiveTime {
			errs = append(errs, fmt.Errorf("tab session %d (tab %d): active time %d does not match active visits %d",
				ti, t.TabID, t.TotalActiveTime, active))
		}
	}

	if got := ComputeStats(s.TabSessions); got != s.Stats {
		errs = append(errs, fmt.Errorf("stored stats %+v differ from recomputed %+v", s.Stats, got))
	}

	return errors.Join(errs...)
}
