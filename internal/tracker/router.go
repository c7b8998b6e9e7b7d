// Package tracker turns the browser host's event stream into visit records.
// A Router serializes every event through one Accumulator, one Resolver and
// the session store.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/tabtime/internal/classify"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

// Options configures a Router. Zero fields get defaults.
type Options struct {
	Resolver      *Resolver
	Classifier    *classify.Classifier
	Filter        *Filter
	Logger        *slog.Logger
	Clock         func() time.Time
	RestartPolicy storage.RestartPolicy
}

// Router applies host events to the session store one at a time.
type Router struct {
	mu sync.Mutex

	store      *storage.SessionStore
	resolver   *Resolver
	acc        *Accumulator
	classifier *classify.Classifier
	filter     *Filter
	log        *slog.Logger
	now        func() time.Time
	newID      func() string
	policy     storage.RestartPolicy

	// open caches the open visit of each tab as last written.
	open map[int]*model.URLVisit
	// left holds the visit a tab closed when it navigated somewhere
	// untracked, so the tab's next tracked visit still chains to it.
	left map[int]*model.URLVisit
	day  string
}

// NewRouter creates a Router writing to store.
func NewRouter(store *storage.SessionStore, opts Options) *Router {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Resolver == nil {
		opts.Resolver = NewResolver(256, 5*time.Minute)
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.Default()
	}
	if opts.Filter == nil {
		opts.Filter = &Filter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RestartPolicy == "" {
		opts.RestartPolicy = storage.RestartClose
	}

	return &Router{
		store:      store,
		resolver:   opts.Resolver,
		acc:        NewAccumulator(opts.Clock),
		classifier: opts.Classifier,
		filter:     opts.Filter,
		log:        opts.Logger,
		now:        opts.Clock,
		newID:      uuid.NewString,
		policy:     opts.RestartPolicy,
		open:       make(map[int]*model.URLVisit),
		left:       make(map[int]*model.URLVisit),
	}
}

// Start applies the restart policy to visits a previous process left open
// and loads the visits that are still open.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed, err := r.store.RecoverOpenVisits(ctx, r.policy)
	if err != nil {
		return fmt.Errorf("recover open visits: %w", err)
	}
	if closed > 0 {
		r.log.Info("closed visits left open by previous run", "count", closed, "policy", r.policy)
	}
	r.day = ""
	return r.syncDay(ctx)
}

// Run consumes events until ctx is done or events is closed. Failed events
// are logged and dropped. Pending active time is flushed on return.
func (r *Router) Run(ctx context.Context, events <-chan HostEvent) error {
	defer func() {
		if err := r.Shutdown(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("flush on shutdown failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, e); err != nil {
				r.log.Warn("event dropped", "type", e.Type, "tab", e.TabID, "error", err)
			}
		}
	}
}

// Shutdown credits the current active period so no focused time is lost.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credit(ctx, r.acc.Suspend())
}

// TodaySession returns today's record. It is serialized with event
// handling because reading an absent day creates it.
func (r *Router) TodaySession(ctx context.Context) (*model.BrowsingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.TodaySession(ctx)
}

// Active returns the tab currently accumulating active time.
func (r *Router) Active() (model.ActiveTabInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acc.Active()
}

// Handle applies a single event.
func (r *Router) Handle(ctx context.Context, e HostEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.syncDay(ctx); err != nil {
		return err
	}

	switch e.Type {
	case EventTabCreated, EventTabUpdated:
		return r.tabUpdated(ctx, e)
	case EventTabActivated:
		return r.apply(ctx, r.acc.TabActivated(e.TabID, e.WindowID))
	case EventWindowFocus:
		return r.apply(ctx, r.acc.WindowFocusChanged(e.WindowID, e.ActiveTabID))
	case EventIdleState:
		return r.apply(ctx, r.acc.IdleStateChanged(e.State))
	case EventTabRemoved:
		return r.tabRemoved(ctx, e)
	case EventNavigationTarget:
		if !r.resolver.RecordLinkOpen(e.NewTabID, r.open[e.OpenerTabID]) {
			r.log.Debug("link opened from tab without visit", "opener", e.OpenerTabID, "tab", e.NewTabID)
		}
		return nil
	case EventBeforeNavigate:
		if e.FrameID != 0 {
			return nil
		}
		if cause, ok := model.ParseNavigationType(e.TransitionType); ok {
			r.resolver.NoteCause(e.TabID, cause)
		}
		return nil
	}
	return nil
}

func (r *Router) tabUpdated(ctx context.Context, e HostEvent) error {
	prev := r.open[e.TabID]
	if e.URL == "" || (prev != nil && prev.URL == e.URL) {
		if prev != nil && e.Title != "" && e.Title != prev.Title {
			return r.retitle(ctx, prev, e.Title)
		}
		return nil
	}

	if !r.filter.Allow(e.URL) {
		return r.leaveTracking(ctx, e.TabID)
	}

	if prev == nil {
		prev = r.left[e.TabID]
	}
	windowID := e.WindowID
	if windowID == 0 && prev != nil {
		windowID = prev.WindowID
	}

	src := r.resolver.Resolve(e.TabID, prev)
	if err := r.credit(ctx, r.acc.Restart(e.TabID)); err != nil {
		return err
	}

	domain := model.ExtractDomain(e.URL)
	class := r.classifier.Classify(e.URL, domain)
	next := model.URLVisit{
		ID:                 r.newID(),
		URL:                e.URL,
		Domain:             domain,
		Title:              e.Title,
		StartTime:          model.Millis(r.now()),
		TabID:              e.TabID,
		WindowID:           windowID,
		IsActive:           r.acc.IsActive(e.TabID),
		Category:           class.Category,
		CategoryConfidence: class.Confidence,
		NavigationSource:   src,
	}

	stored, err := r.store.TransitionVisit(ctx, next)
	if err != nil {
		return fmt.Errorf("open visit for tab %d: %w", e.TabID, err)
	}
	r.open[e.TabID] = stored
	delete(r.left, e.TabID)
	r.log.Debug("visit opened", "tab", e.TabID, "domain", domain, "source", src.Type, "category", class.Category)
	return nil
}

func (r *Router) retitle(ctx context.Context, v *model.URLVisit, title string) error {
	updated := *v
	updated.Title = title
	if err := r.store.AddURLVisit(ctx, updated); err != nil {
		return fmt.Errorf("update title for tab %d: %w", v.TabID, err)
	}
	v.Title = title
	return nil
}

// leaveTracking closes the tab's visit when it navigates somewhere that is
// not recorded. Focused time until now goes to the closed visit.
func (r *Router) leaveTracking(ctx context.Context, tabID int) error {
	v := r.open[tabID]
	if v == nil {
		return nil
	}
	if err := r.credit(ctx, r.acc.Restart(tabID)); err != nil {
		return err
	}
	if err := r.store.CloseVisit(ctx, tabID, model.Millis(r.now())); err != nil {
		return fmt.Errorf("close visit for tab %d: %w", tabID, err)
	}
	delete(r.open, tabID)
	r.left[tabID] = v
	return nil
}

func (r *Router) tabRemoved(ctx context.Context, e HostEvent) error {
	if err := r.apply(ctx, r.acc.TabRemoved(e.TabID)); err != nil {
		return err
	}
	r.resolver.Forget(e.TabID)
	delete(r.open, e.TabID)
	delete(r.left, e.TabID)

	if err := r.store.CloseTab(ctx, e.TabID, model.Millis(r.now())); err != nil {
		return fmt.Errorf("close tab %d: %w", e.TabID, err)
	}
	return nil
}

func (r *Router) apply(ctx context.Context, tr Transition) error {
	if err := r.credit(ctx, tr.Flushed); err != nil {
		return err
	}
	if tr.Entered != nil && r.open[tr.Entered.TabID] != nil {
		if err := r.store.SetVisitActive(ctx, tr.Entered.TabID, true); err != nil {
			return fmt.Errorf("mark tab %d active: %w", tr.Entered.TabID, err)
		}
	}
	return nil
}

// credit persists a finished active period. Periods of tabs without an open
// visit have nowhere to go and are dropped.
func (r *Router) credit(ctx context.Context, f *Flush) error {
	if f == nil || r.open[f.TabID] == nil {
		return nil
	}
	if err := r.store.UpdateTabActiveTime(ctx, f.TabID, f.Millis()); err != nil {
		return fmt.Errorf("update active time for tab %d: %w", f.TabID, err)
	}
	return nil
}

// syncDay reloads the open visits when the local day changes, since the
// store carries visits open at midnight into the new day under new ids.
func (r *Router) syncDay(ctx context.Context) error {
	day := model.DateKey(r.now())
	if day == r.day {
		return nil
	}

	sess, err := r.store.TodaySession(ctx)
	if err != nil {
		return fmt.Errorf("load today's session: %w", err)
	}
	open := make(map[int]*model.URLVisit)
	for i := range sess.TabSessions {
		t := &sess.TabSessions[i]
		if t.IsClosed() {
			continue
		}
		if v := t.OpenVisit(); v != nil {
			cp := *v
			open[t.TabID] = &cp
		}
	}
	r.open = open
	r.day = day
	return nil
}
