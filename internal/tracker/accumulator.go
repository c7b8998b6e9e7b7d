package tracker

import (
	"time"

	"github.com/runnerr0/tabtime/internal/model"
)

// IdleState is the user presence reported by the host.
type IdleState string

const (
	IdleActive IdleState = "active"
	IdleIdle   IdleState = "idle"
	IdleLocked IdleState = "locked"
)

// WindowNone is the window id the host reports when no browser window has
// OS focus.
const WindowNone = -1

// windowUnknown is the focus state before the host has said anything about
// window focus.
const windowUnknown = -2

// Flush is one finished active period.
type Flush struct {
	TabID    int
	WindowID int
	Elapsed  time.Duration
	At       time.Time
}

// Millis returns the elapsed time in milliseconds.
func (f *Flush) Millis() int64 {
	return f.Elapsed.Milliseconds()
}

// Transition is the effect of one signal: the period that ended, the period
// that started, or both. The zero value means nothing changed.
type Transition struct {
	Flushed *Flush
	Entered *model.ActiveTabInfo
}

// Accumulator decides which single tab is accumulating active time. A tab
// is active only while its window has OS focus, the user is not idle and it
// is the front-most tab of that window. It performs no I/O; callers persist
// the returned transitions. Not safe for concurrent use.
type Accumulator struct {
	now           func() time.Time
	focusedWindow int
	idle          IdleState
	front         map[int]int // window id -> front-most tab id
	active        *model.ActiveTabInfo
}

// NewAccumulator returns an Accumulator with no active tab. A nil clock uses
// time.Now.
func NewAccumulator(clock func() time.Time) *Accumulator {
	if clock == nil {
		clock = time.Now
	}
	return &Accumulator{
		now:           clock,
		focusedWindow: windowUnknown,
		idle:          IdleActive,
		front:         make(map[int]int),
	}
}

// Active returns the currently active tab, if any.
func (a *Accumulator) Active() (model.ActiveTabInfo, bool) {
	if a.active == nil {
		return model.ActiveTabInfo{}, false
	}
	return *a.active, true
}

// IsActive reports whether tabID is the active tab.
func (a *Accumulator) IsActive(tabID int) bool {
	return a.active != nil && a.active.TabID == tabID
}

// TabActivated records tabID as the front-most tab of windowID. Unless the
// browser as a whole has lost focus, the activation also moves focus to
// windowID: the latest observed window/tab pair wins.
func (a *Accumulator) TabActivated(tabID, windowID int) Transition {
	a.front[windowID] = tabID
	if a.focusedWindow != WindowNone {
		a.focusedWindow = windowID
	}
	return a.evaluate()
}

// WindowFocusChanged records which window has OS focus. frontTab, when
// positive, is the window's front-most tab as reported alongside the event.
func (a *Accumulator) WindowFocusChanged(windowID, frontTab int) Transition {
	if windowID < 0 {
		a.focusedWindow = WindowNone
	} else {
		a.focusedWindow = windowID
		if frontTab > 0 {
			a.front[windowID] = frontTab
		}
	}
	return a.evaluate()
}

// IdleStateChanged records the user's presence.
func (a *Accumulator) IdleStateChanged(state IdleState) Transition {
	a.idle = state
	return a.evaluate()
}

// TabRemoved forgets tabID; if it was active its period is flushed.
func (a *Accumulator) TabRemoved(tabID int) Transition {
	for w, t := range a.front {
		if t == tabID {
			delete(a.front, w)
		}
	}
	return a.evaluate()
}

// Restart ends the current period of tabID and immediately starts a new one,
// used when the active tab navigates to a new visit. It returns nil when
// tabID is not active.
func (a *Accumulator) Restart(tabID int) *Flush {
	if !a.IsActive(tabID) {
		return nil
	}
	info := *a.active
	f := a.flush(a.now())
	info.StartTime = f.At
	a.active = &info
	return f
}

// Suspend ends the current period without changing any signal state, used
// on shutdown.
func (a *Accumulator) Suspend() *Flush {
	if a.active == nil {
		return nil
	}
	return a.flush(a.now())
}

func (a *Accumulator) evaluate() Transition {
	tabID, windowID, ok := a.desired()
	if a.active != nil && ok && a.active.TabID == tabID && a.active.WindowID == windowID {
		return Transition{}
	}

	now := a.now()
	var tr Transition
	if a.active != nil {
		tr.Flushed = a.flush(now)
	}
	if ok {
		a.active = &model.ActiveTabInfo{TabID: tabID, WindowID: windowID, StartTime: now}
		entered := *a.active
		tr.Entered = &entered
	}
	return tr
}

func (a *Accumulator) desired() (tabID, windowID int, ok bool) {
	if a.idle != IdleActive || a.focusedWindow < 0 {
		return 0, 0, false
	}
	tabID, ok = a.front[a.focusedWindow]
	return tabID, a.focusedWindow, ok
}

// flush clears the active cell before returning its period, so the same
// period can never be reported twice.
func (a *Accumulator) flush(now time.Time) *Flush {
	info := a.active
	a.active = nil

	elapsed := now.Sub(info.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	return &Flush{
		TabID:    info.TabID,
		WindowID: info.WindowID,
		Elapsed:  elapsed,
		At:       now,
	}
}
