// Package model defines the browsing activity records shared by the tracker,
// the session store and the daemon.
package model

import "time"

// Category is the coarse bucket a visited domain is classified into.
type Category string

const (
	CategoryWork   Category = "work"
	CategorySocial Category = "social"
	CategoryOther  Category = "other"
)

// NavigationType describes how a visit was reached.
type NavigationType string

const (
	NavTyped        NavigationType = "typed"
	NavLink         NavigationType = "link"
	NavReload       NavigationType = "reload"
	NavBackForward  NavigationType = "back_forward"
	NavAutoBookmark NavigationType = "auto_bookmark"
	NavGenerated    NavigationType = "generated"
	NavChain        NavigationType = "chain"
	NavHyperlink    NavigationType = "hyperlink"
)

// ParseNavigationType maps a host transition name to a NavigationType.
// Unknown names report false.
func ParseNavigationType(s string) (NavigationType, bool) {
	switch t := NavigationType(s); t {
	case NavTyped, NavLink, NavReload, NavBackForward, NavAutoBookmark,
		NavGenerated, NavChain, NavHyperlink:
		return t, true
	}
	return "", false
}

// NavigationSource records how a visit was reached and, when known, the
// visit it originated from.
type NavigationSource struct {
	Type         NavigationType `json:"type"`
	SourceURL    string         `json:"sourceUrl,omitempty"`
	SourceTabID  int            `json:"sourceTabId,omitempty"`
	SourceNodeID string         `json:"sourceNodeId,omitempty"`
}

// URLVisit is one contiguous period a URL occupied a tab. Times are
// milliseconds since the Unix epoch.
type URLVisit struct {
	ID                 string           `json:"id"`
	URL                string           `json:"url"`
	Domain             string           `json:"domain"`
	Title              string           `json:"title,omitempty"`
	StartTime          int64            `json:"startTime"`
	EndTime            *int64           `json:"endTime,omitempty"`
	Duration           int64            `json:"duration"`
	ActiveTime         int64            `json:"activeTime"`
	TabID              int              `json:"tabId"`
	WindowID           int              `json:"windowId"`
	IsActive           bool             `json:"isActive"`
	Category           Category         `json:"category"`
	CategoryConfidence float64          `json:"categoryConfidence"`
	NavigationSource   NavigationSource `json:"navigationSource"`
}

// IsOpen reports whether the visit has not been closed yet.
func (v *URLVisit) IsOpen() bool {
	return v.EndTime == nil
}

// Close stamps the end time and recomputes the wall-clock duration. An end
// time earlier than the start is clamped to the start.
func (v *URLVisit) Close(at int64) {
	if at < v.StartTime {
		at = v.StartTime
	}
	v.EndTime = &at
	v.Duration = at - v.StartTime
	v.IsActive = false
}

// AddActiveTime credits focused time to an open visit.
func (v *URLVisit) AddActiveTime(ms int64) {
	if ms <= 0 {
		return
	}
	v.ActiveTime += ms
	if v.IsOpen() {
		v.Duration += ms
	}
}

// TabSession is the ordered sequence of visits of one browser tab instance.
type TabSession struct {
	TabID           int        `json:"tabId"`
	WindowID        int        `json:"windowId"`
	OpenedAt        int64      `json:"openedAt"`
	ClosedAt        *int64     `json:"closedAt,omitempty"`
	TotalActiveTime int64      `json:"totalActiveTime"`
	Visits          []URLVisit `json:"visits"`
	DisplayNumber   int        `json:"displayNumber,omitempty"`
}

// IsClosed reports whether the host has removed the tab.
func (t *TabSession) IsClosed() bool {
	return t.ClosedAt != nil
}

// OpenVisit returns the tab's open visit, or nil.
func (t *TabSession) OpenVisit() *URLVisit {
	if len(t.Visits) == 0 {
		return nil
	}
	last := &t.Visits[len(t.Visits)-1]
	if last.IsOpen() {
		return last
	}
	return nil
}

// Visit returns the visit with the given id, or nil.
func (t *TabSession) Visit(id string) *URLVisit {
	for i := range t.Visits {
		if t.Visits[i].ID == id {
			return &t.Visits[i]
		}
	}
	return nil
}

// Stats are the per-day aggregates. Times are in hours.
type Stats struct {
	TotalURLs     int     `json:"totalUrls"`
	UniqueDomains int     `json:"uniqueDomains"`
	WorkTime      float64 `json:"workTime"`
	SocialTime    float64 `json:"socialTime"`
	OtherTime     float64 `json:"otherTime"`
}

// BrowsingSession is the aggregate root for one calendar day.
type BrowsingSession struct {
	Date            string       `json:"date"`
	StartTime       int64        `json:"startTime"`
	EndTime         int64        `json:"endTime"`
	TotalActiveTime int64        `json:"totalActiveTime"`
	TabSessions     []TabSession `json:"tabSessions"`
	Stats           Stats        `json:"stats"`
}

// ActiveTabInfo describes the one tab currently accumulating active time.
type ActiveTabInfo struct {
	TabID     int       `json:"tabId"`
	WindowID  int       `json:"windowId"`
	StartTime time.Time `json:"startTime"`
}

// DateLayout is the layout of BrowsingSession.Date.
const DateLayout = "2006-01-02"

// DateKey returns the local calendar date of t.
func DateKey(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// Millis converts t to milliseconds since the Unix epoch.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// NewBrowsingSession returns an empty session for the day containing now.
func NewBrowsingSession(now time.Time) *BrowsingSession {
	ms := Millis(now)
	return &BrowsingSession{
		Date:        DateKey(now),
		StartTime:   ms,
		EndTime:     ms,
		TabSessions: []TabSession{},
	}
}

// OpenTab returns the open TabSession for tabID, or nil.
func (s *BrowsingSession) OpenTab(tabID int) *TabSession {
	for i := len(s.TabSessions) - 1; i >= 0; i-- {
		t := &s.TabSessions[i]
		if t.TabID == tabID && !t.IsClosed() {
			return t
		}
	}
	return nil
}

// EnsureOpenTab returns the open TabSession for tabID, creating it when the
// tab has not been seen yet or its previous instance was closed.
func (s *BrowsingSession) EnsureOpenTab(tabID, windowID int, openedAt int64) *TabSession {
	if t := s.OpenTab(tabID); t != nil {
		return t
	}
	s.TabSessions = append(s.TabSessions, TabSession{
		TabID:    tabID,
		WindowID: windowID,
		OpenedAt: openedAt,
		Visits:   []URLVisit{},
	})
	return &s.TabSessions[len(s.TabSessions)-1]
}
