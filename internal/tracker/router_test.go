package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

type routerFixture struct {
	clk    *fakeClock
	store  *storage.SessionStore
	router *Router
}

func newRouterFixture(t *testing.T, opts Options) *routerFixture {
	t.Helper()
	clk := newFakeClock()
	store := storage.NewSessionStore(storage.NewMemoryStore(), clk.Now)
	opts.Clock = clk.Now
	r := NewRouter(store, opts)
	require.NoError(t, r.Start(context.Background()))
	return &routerFixture{clk: clk, store: store, router: r}
}

func (f *routerFixture) send(t *testing.T, events ...HostEvent) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, f.router.Handle(context.Background(), e))
	}
}

func (f *routerFixture) today(t *testing.T) *model.BrowsingSession {
	t.Helper()
	sess, err := f.store.TodaySession(context.Background())
	require.NoError(t, err)
	require.NoError(t, sess.Validate())
	return sess
}

func navigate(tab int, url string) HostEvent {
	return HostEvent{Type: EventTabUpdated, TabID: tab, WindowID: 1, URL: url}
}

func activate(tab int) HostEvent {
	return HostEvent{Type: EventTabActivated, TabID: tab, WindowID: 1}
}

func TestRouter_ChainNavigation(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://github.com/golang/go"))
	f.clk.Advance(10 * time.Second)
	f.send(t, navigate(1, "https://go.dev/doc"))

	sess := f.today(t)
	require.Len(t, sess.TabSessions, 1)
	visits := sess.TabSessions[0].Visits
	require.Len(t, visits, 2)

	first, second := visits[0], visits[1]
	assert.Equal(t, model.NavTyped, first.NavigationSource.Type)
	require.NotNil(t, first.EndTime)
	assert.Equal(t, second.StartTime, *first.EndTime)
	assert.Equal(t, int64(10000), first.Duration)

	assert.Equal(t, model.NavigationSource{
		Type:         model.NavChain,
		SourceURL:    "https://github.com/golang/go",
		SourceTabID:  1,
		SourceNodeID: first.ID,
	}, second.NavigationSource)
	assert.True(t, second.IsOpen())
	assert.Equal(t, "go.dev", second.Domain)
	assert.Equal(t, model.CategoryWork, second.Category)
}

func TestRouter_HyperlinkIntoNewTab(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t,
		navigate(1, "https://news.ycombinator.com/"),
		HostEvent{Type: EventTabCreated, TabID: 2, WindowID: 1},
		HostEvent{Type: EventNavigationTarget, OpenerTabID: 1, NewTabID: 2},
		navigate(2, "https://example.com/article"),
	)

	sess := f.today(t)
	require.Len(t, sess.TabSessions, 2)
	opener := sess.TabSessions[0].Visits[0]
	opened := sess.TabSessions[1].Visits[0]

	assert.Equal(t, model.NavHyperlink, opened.NavigationSource.Type)
	assert.Equal(t, "https://news.ycombinator.com/", opened.NavigationSource.SourceURL)
	assert.Equal(t, 1, opened.NavigationSource.SourceTabID)
	assert.Equal(t, opener.ID, opened.NavigationSource.SourceNodeID)
	assert.True(t, opener.IsOpen(), "opener keeps its visit")
}

func TestRouter_IdleFlushesActiveTime(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://github.com/"), activate(1))
	assert.True(t, f.today(t).TabSessions[0].Visits[0].IsActive)

	f.clk.Advance(time.Minute)
	f.send(t, HostEvent{Type: EventIdleState, State: IdleIdle})

	sess := f.today(t)
	v := sess.TabSessions[0].Visits[0]
	assert.Equal(t, int64(60000), v.Duration)
	assert.Equal(t, int64(60000), v.ActiveTime)
	assert.False(t, v.IsActive)
	assert.Zero(t, sess.TabSessions[0].TotalActiveTime)
	assert.Equal(t, model.Stats{}, sess.Stats)

	// idle time is not counted
	f.clk.Advance(time.Hour)
	f.send(t, HostEvent{Type: EventIdleState, State: IdleActive})

	sess = f.today(t)
	require.True(t, sess.TabSessions[0].Visits[0].IsActive)
	assert.Equal(t, int64(60000), sess.TabSessions[0].TotalActiveTime)
	assert.Equal(t, 1, sess.Stats.TotalURLs)
	assert.InDelta(t, 60000.0/3600000.0, sess.Stats.WorkTime, 1e-9)

	f.clk.Advance(time.Second)
	f.send(t, HostEvent{Type: EventIdleState, State: IdleLocked})

	sess = f.today(t)
	assert.Equal(t, int64(61000), sess.TabSessions[0].Visits[0].Duration)
	assert.Equal(t, int64(61000), sess.TabSessions[0].Visits[0].ActiveTime)
	assert.Equal(t, int64(61000), sess.Tally().Focused)
	assert.Zero(t, sess.TotalActiveTime)
}

func TestRouter_ActiveTimeConservation(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://github.com/"), navigate(2, "https://twitter.com/home"), activate(1))
	f.clk.Advance(20 * time.Second)
	f.send(t, activate(2))
	f.clk.Advance(5 * time.Second)
	f.send(t, activate(1))
	f.clk.Advance(7 * time.Second)
	f.send(t, navigate(1, "https://go.dev/"))

	sess := f.today(t)
	for _, tab := range sess.TabSessions {
		var sum int64
		for _, v := range tab.Visits {
			if v.IsActive {
				sum += v.Duration
			}
		}
		assert.Equal(t, sum, tab.TotalActiveTime, "tab %d", tab.TabID)
	}
	assert.Equal(t, model.ComputeStats(sess.TabSessions), sess.Stats)
	assert.Equal(t, int64(32000), sess.Tally().Focused)
}

func TestRouter_TabRemovalFlushesThenCloses(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://github.com/"), activate(1))
	f.clk.Advance(30 * time.Second)
	f.send(t, HostEvent{Type: EventTabRemoved, TabID: 1, WindowID: 1})

	sess := f.today(t)
	tab := sess.TabSessions[0]
	require.NotNil(t, tab.ClosedAt)
	require.Len(t, tab.Visits, 1)
	assert.Equal(t, int64(30000), tab.Visits[0].ActiveTime)
	assert.Equal(t, int64(30000), tab.FocusedTime())
	assert.Zero(t, tab.TotalActiveTime)
	assert.False(t, tab.Visits[0].IsOpen())
	_, active := f.router.Active()
	assert.False(t, active)

	// a later event for the same id starts a new tab instance
	f.send(t, navigate(1, "https://go.dev/"))
	sess = f.today(t)
	require.Len(t, sess.TabSessions, 2)
	assert.Len(t, sess.TabSessions[0].Visits, 1)
}

func TestRouter_SwitchingTabsSplitsActiveTime(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://github.com/"), navigate(2, "https://twitter.com/home"))
	f.send(t, activate(1))
	f.clk.Advance(20 * time.Second)
	f.send(t, activate(2))
	f.clk.Advance(5 * time.Second)
	f.send(t, HostEvent{Type: EventWindowFocus, WindowID: WindowNone})

	sess := f.today(t)
	assert.Equal(t, int64(20000), sess.TabSessions[0].Visits[0].ActiveTime)
	assert.Equal(t, int64(5000), sess.TabSessions[1].Visits[0].ActiveTime)
	assert.Equal(t, model.CategorySocial, sess.TabSessions[1].Visits[0].Category)
	assert.Equal(t, int64(25000), sess.Tally().Focused)
}

func TestRouter_NavigationOfActiveTabCreditsOldVisit(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://github.com/"), activate(1))
	f.clk.Advance(15 * time.Second)
	f.send(t, navigate(1, "https://go.dev/"))
	f.clk.Advance(5 * time.Second)
	f.send(t, HostEvent{Type: EventTabRemoved, TabID: 1})

	visits := f.today(t).TabSessions[0].Visits
	require.Len(t, visits, 2)
	assert.Equal(t, int64(15000), visits[0].ActiveTime)
	assert.Equal(t, int64(5000), visits[1].ActiveTime)
}

func TestRouter_TitleUpdateKeepsVisit(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "https://go.dev/"))
	f.send(t, HostEvent{Type: EventTabUpdated, TabID: 1, WindowID: 1, Title: "The Go Programming Language"})
	f.send(t, HostEvent{Type: EventTabUpdated, TabID: 1, WindowID: 1, URL: "https://go.dev/", Title: "Go"})

	visits := f.today(t).TabSessions[0].Visits
	require.Len(t, visits, 1)
	assert.Equal(t, "Go", visits[0].Title)
}

func TestRouter_UntrackableURLClosesVisit(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t, navigate(1, "chrome://newtab/"))
	assert.Empty(t, f.today(t).TabSessions)

	f.send(t, navigate(1, "https://github.com/"))
	f.clk.Advance(time.Second)
	f.send(t, navigate(1, "chrome://settings/"))

	tab := f.today(t).TabSessions[0]
	require.Len(t, tab.Visits, 1)
	assert.False(t, tab.Visits[0].IsOpen())
	assert.Nil(t, tab.ClosedAt)

	// the tab still chains from the visit it left
	f.send(t, navigate(1, "https://go.dev/"))
	visits := f.today(t).TabSessions[0].Visits
	require.Len(t, visits, 2)
	assert.Equal(t, model.NavigationSource{
		Type:         model.NavChain,
		SourceURL:    "https://github.com/",
		SourceTabID:  1,
		SourceNodeID: visits[0].ID,
	}, visits[1].NavigationSource)
}

func TestRouter_DenylistedDomainClosesVisit(t *testing.T) {
	filter, err := NewFilter([]string{"chase.com"}, nil)
	require.NoError(t, err)
	f := newRouterFixture(t, Options{Filter: filter})

	f.send(t, navigate(1, "https://github.com/"))
	f.send(t, navigate(1, "https://secure.chase.com/account"))

	sess := f.today(t)
	require.Len(t, sess.TabSessions[0].Visits, 1)
	assert.False(t, sess.TabSessions[0].Visits[0].IsOpen())
	for _, v := range sess.TabSessions[0].Visits {
		assert.NotContains(t, v.URL, "chase.com")
	}

	f.send(t,
		HostEvent{Type: EventBeforeNavigate, TabID: 1, TransitionType: "typed"},
		navigate(1, "https://go.dev/"),
	)
	visits := f.today(t).TabSessions[0].Visits
	require.Len(t, visits, 2)
	assert.Equal(t, model.NavChain, visits[1].NavigationSource.Type)
	assert.Equal(t, visits[0].ID, visits[1].NavigationSource.SourceNodeID)
}

func TestRouter_RemovedTabDoesNotChainFromLeftVisit(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t,
		navigate(1, "https://github.com/"),
		navigate(1, "chrome://newtab/"),
		HostEvent{Type: EventTabRemoved, TabID: 1, WindowID: 1},
		navigate(1, "https://go.dev/"),
	)

	sess := f.today(t)
	require.Len(t, sess.TabSessions, 2)
	assert.Equal(t, model.NavTyped, sess.TabSessions[1].Visits[0].NavigationSource.Type)
}

func TestRouter_BeforeNavigateMainFrameOnly(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t,
		HostEvent{Type: EventBeforeNavigate, TabID: 1, FrameID: 3, TransitionType: "reload"},
		navigate(1, "https://go.dev/"),
		HostEvent{Type: EventBeforeNavigate, TabID: 2, FrameID: 0, TransitionType: "auto_bookmark"},
		navigate(2, "https://github.com/"),
	)

	sess := f.today(t)
	assert.Equal(t, model.NavTyped, sess.TabSessions[0].Visits[0].NavigationSource.Type)
	assert.Equal(t, model.NavAutoBookmark, sess.TabSessions[1].Visits[0].NavigationSource.Type)
}

func TestRouter_LinkFromTabWithoutVisit(t *testing.T) {
	f := newRouterFixture(t, Options{})

	f.send(t,
		HostEvent{Type: EventNavigationTarget, OpenerTabID: 7, NewTabID: 8},
		navigate(8, "https://go.dev/"),
	)
	assert.Equal(t, model.NavTyped, f.today(t).TabSessions[0].Visits[0].NavigationSource.Type)
}

func TestRouter_RejectsInvalidEvent(t *testing.T) {
	f := newRouterFixture(t, Options{})
	err := f.router.Handle(context.Background(), HostEvent{Type: "tab-exploded", TabID: 1})
	assert.Error(t, err)
}

func TestRouter_RunConsumesUntilClosed(t *testing.T) {
	f := newRouterFixture(t, Options{})

	events := make(chan HostEvent, 4)
	events <- navigate(1, "https://github.com/")
	events <- activate(1)
	events <- HostEvent{Type: "bogus"}
	close(events)

	require.NoError(t, f.router.Run(context.Background(), events))

	sess := f.today(t)
	require.Len(t, sess.TabSessions, 1)
	_, active := f.router.Active()
	assert.False(t, active, "run flushes the active period on return")
}

func TestRouter_RunStopsOnCancel(t *testing.T) {
	f := newRouterFixture(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.router.Run(ctx, make(chan HostEvent))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouter_StartClosesStaleVisits(t *testing.T) {
	clk := newFakeClock()
	store := storage.NewSessionStore(storage.NewMemoryStore(), clk.Now)

	first := NewRouter(store, Options{Clock: clk.Now})
	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, first.Handle(context.Background(), navigate(1, "https://github.com/")))

	clk.Advance(time.Hour)
	second := NewRouter(store, Options{Clock: clk.Now})
	require.NoError(t, second.Start(context.Background()))

	sess, err := store.TodaySession(context.Background())
	require.NoError(t, err)
	require.NoError(t, sess.Validate())
	assert.NotNil(t, sess.TabSessions[0].ClosedAt)
	assert.False(t, sess.TabSessions[0].Visits[0].IsOpen())
}

func TestRouter_StartLeavePolicyResumes(t *testing.T) {
	clk := newFakeClock()
	store := storage.NewSessionStore(storage.NewMemoryStore(), clk.Now)

	first := NewRouter(store, Options{Clock: clk.Now})
	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, first.Handle(context.Background(), navigate(1, "https://github.com/")))

	second := NewRouter(store, Options{Clock: clk.Now, RestartPolicy: storage.RestartLeave})
	require.NoError(t, second.Start(context.Background()))
	require.NoError(t, second.Handle(context.Background(), navigate(1, "https://go.dev/")))

	sess, err := store.TodaySession(context.Background())
	require.NoError(t, err)
	visits := sess.TabSessions[0].Visits
	require.Len(t, visits, 2)
	assert.Equal(t, model.NavChain, visits[1].NavigationSource.Type)
	assert.Equal(t, visits[0].ID, visits[1].NavigationSource.SourceNodeID)
}

func TestRouter_MidnightReloadsOpenVisits(t *testing.T) {
	f := newRouterFixture(t, Options{})
	f.clk.t = time.Date(2026, 3, 10, 23, 59, 0, 0, time.Local)

	f.send(t, navigate(1, "https://github.com/"), activate(1))
	f.clk.Advance(2 * time.Minute)
	f.send(t, navigate(1, "https://go.dev/"))

	sess := f.today(t)
	assert.Equal(t, "2026-03-11", sess.Date)
	visits := sess.TabSessions[0].Visits
	require.Len(t, visits, 2)
	carried := visits[0]
	assert.Equal(t, "https://github.com/", carried.URL)
	assert.Equal(t, model.NavChain, visits[1].NavigationSource.Type)
	assert.Equal(t, carried.ID, visits[1].NavigationSource.SourceNodeID)
}
