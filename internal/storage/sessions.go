package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/tabtime/internal/model"
)

// SessionKeyPrefix prefixes every day record key.
const SessionKeyPrefix = "session:"

// SessionKey returns the KV key of the record for date (YYYY-MM-DD).
func SessionKey(date string) string {
	return SessionKeyPrefix + date
}

// SessionStore owns the per-day BrowsingSession records. Every mutation
// re-reads the day record, patches it, recomputes the aggregates and writes
// the whole record back; concurrent writers must serialize themselves.
type SessionStore struct {
	kv    KV
	now   func() time.Time
	newID func() string
}

// NewSessionStore creates a SessionStore over kv. A nil clock uses time.Now.
func NewSessionStore(kv KV, clock func() time.Time) *SessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &SessionStore{kv: kv, now: clock, newID: uuid.NewString}
}

// TodaySession returns the record for the current local day, creating and
// persisting it when absent.
func (s *SessionStore) TodaySession(ctx context.Context) (*model.BrowsingSession, error) {
	now := s.now()
	sess, err := s.read(ctx, model.DateKey(now))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.mutate(ctx, func(*model.BrowsingSession, int64) error { return nil })
}

// Session returns the stored record for date without creating it.
func (s *SessionStore) Session(ctx context.Context, date string) (*model.BrowsingSession, error) {
	return s.read(ctx, date)
}

// Dates lists the days that have a stored record, oldest first.
func (s *SessionStore) Dates(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, SessionKeyPrefix)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(keys))
	for _, k := range keys {
		dates = append(dates, strings.TrimPrefix(k, SessionKeyPrefix))
	}
	return dates, nil
}

// AddURLVisit upserts visit by id into its tab's session. A new visit is
// appended to the tab's open TabSession, created if needed, and closes any
// visit still open there. For a known visit only the descriptive fields are
// replaced; timing bookkeeping stays with the store.
func (s *SessionStore) AddURLVisit(ctx context.Context, visit model.URLVisit) error {
	_, err := s.mutate(ctx, func(sess *model.BrowsingSession, _ int64) error {
		for i := range sess.TabSessions {
			t := &sess.TabSessions[i]
			if t.TabID != visit.TabID {
				continue
			}
			if existing := t.Visit(visit.ID); existing != nil {
				existing.URL = visit.URL
				existing.Domain = visit.Domain
				existing.Title = visit.Title
				existing.WindowID = visit.WindowID
				existing.Category = visit.Category
				existing.CategoryConfidence = visit.CategoryConfidence
				existing.NavigationSource = visit.NavigationSource
				return nil
			}
		}
		appendVisit(sess, visit)
		return nil
	})
	return err
}

// TransitionVisit closes the tab's open visit at next.StartTime and opens
// next in a single write, so no snapshot ever holds two open visits.
func (s *SessionStore) TransitionVisit(ctx context.Context, next model.URLVisit) (*model.URLVisit, error) {
	next.EndTime = nil
	next.Duration = 0

	var stored model.URLVisit
	_, err := s.mutate(ctx, func(sess *model.BrowsingSession, _ int64) error {
		stored = appendVisit(sess, next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// appendVisit closes the open visit of the tab and appends v after it. The
// start is pushed forward when it would overlap the previous visit.
func appendVisit(sess *model.BrowsingSession, v model.URLVisit) model.URLVisit {
	tab := sess.EnsureOpenTab(v.TabID, v.WindowID, v.StartTime)
	tab.WindowID = v.WindowID

	if n := len(tab.Visits); n > 0 {
		last := &tab.Visits[n-1]
		if last.IsOpen() {
			last.Close(v.StartTime)
		}
		if end := *last.EndTime; v.StartTime < end {
			v.StartTime = end
		}
	}

	if v.EndTime != nil {
		v.Close(*v.EndTime)
	}
	tab.Visits = append(tab.Visits, v)
	return v
}

// CloseVisit closes the tab's open visit without opening another one.
func (s *SessionStore) CloseVisit(ctx context.Context, tabID int, at int64) error {
	_, err := s.mutate(ctx, func(sess *model.BrowsingSession, _ int64) error {
		if tab := sess.OpenTab(tabID); tab != nil {
			if v := tab.OpenVisit(); v != nil {
				v.Close(at)
			}
		}
		return nil
	})
	return err
}

// CloseTab force-closes the tab's open visit and marks its TabSession
// closed. Unknown tabs are ignored.
func (s *SessionStore) CloseTab(ctx context.Context, tabID int, at int64) error {
	_, err := s.mutate(ctx, func(sess *model.BrowsingSession, _ int64) error {
		tab := sess.OpenTab(tabID)
		if tab == nil {
			return nil
		}
		if v := tab.OpenVisit(); v != nil {
			v.Close(at)
		}
		closedAt := at
		if closedAt < tab.OpenedAt {
			closedAt = tab.OpenedAt
		}
		if n := len(tab.Visits); n > 0 && *tab.Visits[n-1].EndTime > closedAt {
			closedAt = *tab.Visits[n-1].EndTime
		}
		tab.ClosedAt = &closedAt
		return nil
	})
	return err
}

// UpdateTabActiveTime credits ms of focused time to the tab's latest visit
// and clears its active flag.
func (s *SessionStore) UpdateTabActiveTime(ctx context.Context, tabID int, ms int64) error {
	_, err := s.mutate(ctx, func(sess *model.BrowsingSession, _ int64) error {
		tab := sess.OpenTab(tabID)
		if tab == nil || len(tab.Visits) == 0 {
			return nil
		}
		v := &tab.Visits[len(tab.Visits)-1]
		v.AddActiveTime(ms)
		v.IsActive = false
		return nil
	})
	return err
}

// SetVisitActive flips the active flag of the tab's open visit.
func (s *SessionStore) SetVisitActive(ctx context.Context, tabID int, active bool) error {
	_, err := s.mutate(ctx, func(sess *model.BrowsingSession, _ int64) error {
		if tab := sess.OpenTab(tabID); tab != nil {
			if v := tab.OpenVisit(); v != nil {
				v.IsActive = active
			}
		}
		return nil
	})
	return err
}

// BrowsingTimeline returns the tab sessions with visits that started within
// the last hoursBack hours, across every day record the window touches.
// Each tab keeps only those visits and is numbered from 1 in insertion
// order; the numbering is only meaningful within one call.
func (s *SessionStore) BrowsingTimeline(ctx context.Context, hoursBack int) ([]model.TabSession, error) {
	if hoursBack <= 0 {
		return nil, fmt.Errorf("hours back must be positive, got %d", hoursBack)
	}

	now := s.now()
	cutoff := model.Millis(now.Add(-time.Duration(hoursBack) * time.Hour))

	var out []model.TabSession
	for _, date := range datesBetween(now.Add(-time.Duration(hoursBack)*time.Hour), now) {
		sess, err := s.read(ctx, date)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, t := range sess.TabSessions {
			var visits []model.URLVisit
			for _, v := range t.Visits {
				if v.StartTime >= cutoff {
					visits = append(visits, v)
				}
			}
			if len(visits) == 0 {
				continue
			}
			t.Visits = visits
			t.DisplayNumber = len(out) + 1
			out = append(out, t)
		}
	}

	if out == nil {
		out = []model.TabSession{}
	}
	return out, nil
}

// datesBetween lists the local calendar dates from..to inclusive.
func datesBetween(from, to time.Time) []string {
	from, to = from.Local(), to.Local()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)

	var dates []string
	for !day.After(to) {
		dates = append(dates, model.DateKey(day))
		day = day.AddDate(0, 0, 1)
	}
	return dates
}

// RecoverOpenVisits handles visits a previous process left open. With
// RestartClose every open visit is closed at its record's last write time
// and its TabSession is closed too; the number of closed visits is
// returned. RestartLeave changes nothing.
func (s *SessionStore) RecoverOpenVisits(ctx context.Context, policy RestartPolicy) (int, error) {
	if policy == RestartLeave {
		return 0, nil
	}

	dates, err := s.Dates(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, date := range dates {
		sess, err := s.read(ctx, date)
		if err != nil {
			return closed, err
		}

		if !hasOpenTabs(sess) {
			continue
		}
		closed += closeAllOpen(sess, sess.EndTime)
		if err := s.write(ctx, sess); err != nil {
			return closed, err
		}
	}
	return closed, nil
}

// closeAllOpen closes every open visit and tab of sess at the given time.
func closeAllOpen(sess *model.BrowsingSession, at int64) int {
	n := 0
	for i := range sess.TabSessions {
		t := &sess.TabSessions[i]
		if t.IsClosed() {
			continue
		}
		closedAt := at
		if v := t.OpenVisit(); v != nil {
			v.Close(at)
			closedAt = *v.EndTime
			n++
		}
		if closedAt < t.OpenedAt {
			closedAt = t.OpenedAt
		}
		t.ClosedAt = &closedAt
	}
	return n
}

func hasOpenTabs(sess *model.BrowsingSession) bool {
	for _, t := range sess.TabSessions {
		if !t.IsClosed() {
			return true
		}
	}
	return false
}

// Purge deletes every day record and returns how many were removed.
func (s *SessionStore) Purge(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, SessionKeyPrefix)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			return i, fmt.Errorf("purge %s: %w", k, err)
		}
	}
	return len(keys), nil
}

// CutoffDate returns the oldest date inside a window of days days ending
// today.
func CutoffDate(now time.Time, days int) string {
	return model.DateKey(now.AddDate(0, 0, -(days - 1)))
}

// PruneBefore deletes the day records older than cutoff (YYYY-MM-DD) and
// returns their dates. With dryRun nothing is deleted. Today's record is
// never removed.
func (s *SessionStore) PruneBefore(ctx context.Context, cutoff string, dryRun bool) ([]string, error) {
	dates, err := s.Dates(ctx)
	if err != nil {
		return nil, err
	}
	today := model.DateKey(s.now())

	pruned := []string{}
	for _, d := range dates {
		if d >= cutoff || d == today {
			continue
		}
		if !dryRun {
			if err := s.kv.Delete(ctx, SessionKey(d)); err != nil && !errors.Is(err, ErrNotFound) {
				return pruned, fmt.Errorf("prune %s: %w", d, err)
			}
		}
		pruned = append(pruned, d)
	}
	return pruned, nil
}

// mutate runs fn against today's record and persists the result with
// freshly recomputed aggregates.
func (s *SessionStore) mutate(ctx context.Context, fn func(sess *model.BrowsingSession, now int64) error) (*model.BrowsingSession, error) {
	now := s.now()
	ms := model.Millis(now)

	sess, err := s.read(ctx, model.DateKey(now))
	if errors.Is(err, ErrNotFound) {
		sess, err = s.startDay(ctx, now)
	}
	if err != nil {
		return nil, err
	}

	if err := fn(sess, ms); err != nil {
		return nil, err
	}

	if ms > sess.EndTime {
		sess.EndTime = ms
	}
	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// startDay creates the record for the day containing now. Tabs still open
// in the previous day's record are closed at midnight and continued in the
// new record, so a visit that spans midnight is split at the day boundary.
func (s *SessionStore) startDay(ctx context.Context, now time.Time) (*model.BrowsingSession, error) {
	sess := model.NewBrowsingSession(now)

	local := now.Local()
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
	prev, err := s.read(ctx, model.DateKey(midnight.Add(-time.Hour)))
	if errors.Is(err, ErrNotFound) {
		return sess, nil
	}
	if err != nil {
		return nil, err
	}
	if !hasOpenTabs(prev) {
		return sess, nil
	}

	boundary := model.Millis(midnight)
	var carried []model.URLVisit
	for _, t := range prev.TabSessions {
		if t.IsClosed() {
			continue
		}
		if v := t.OpenVisit(); v != nil {
			next := *v
			next.ID = s.newID()
			next.StartTime = boundary
			next.EndTime = nil
			next.Duration = 0
			next.ActiveTime = 0
			next.NavigationSource = model.NavigationSource{
				Type:         model.NavChain,
				SourceURL:    v.URL,
				SourceTabID:  v.TabID,
				SourceNodeID: v.ID,
			}
			carried = append(carried, next)
		}
	}

	closeAllOpen(prev, boundary)
	if err := s.write(ctx, prev); err != nil {
		return nil, err
	}

	for _, v := range carried {
		appendVisit(sess, v)
	}
	if len(carried) > 0 {
		sess.StartTime = boundary
	}
	return sess, nil
}

func (s *SessionStore) read(ctx context.Context, date string) (*model.BrowsingSession, error) {
	data, err := s.kv.Get(ctx, SessionKey(date))
	if err != nil {
		return nil, err
	}

	var sess model.BrowsingSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", date, err)
	}
	if sess.TabSessions == nil {
		sess.TabSessions = []model.TabSession{}
	}
	return &sess, nil
}

func (s *SessionStore) write(ctx context.Context, sess *model.BrowsingSession) error {
	sess.Recompute()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.Date, err)
	}
	return s.kv.Set(ctx, SessionKey(sess.Date), data)
}
