package tracker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType names a host browser event.
type EventType string

const (
	EventTabCreated       EventType = "tab-created"
	EventTabRemoved       EventType = "tab-removed"
	EventTabActivated     EventType = "tab-activated"
	EventTabUpdated       EventType = "tab-updated"
	EventWindowFocus      EventType = "window-focus-changed"
	EventIdleState        EventType = "idle-state-changed"
	EventNavigationTarget EventType = "navigation-target-created"
	EventBeforeNavigate   EventType = "before-navigate"
)

// HostEvent is one event forwarded by the browser host. Fields that do not
// apply to a type are left zero.
type HostEvent struct {
	Type           EventType `json:"type"`
	TabID          int       `json:"tabId,omitempty"`
	WindowID       int       `json:"windowId,omitempty"`
	OpenerTabID    int       `json:"openerTabId,omitempty"`
	NewTabID       int       `json:"newTabId,omitempty"`
	FrameID        int       `json:"frameId,omitempty"`
	URL            string    `json:"url,omitempty"`
	Title          string    `json:"title,omitempty"`
	State          IdleState `json:"state,omitempty"`
	TransitionType string    `json:"transitionType,omitempty"`
	ActiveTabID    int       `json:"activeTabId,omitempty"`
}

// Validate checks that the fields the event type depends on are present.
func (e HostEvent) Validate() error {
	switch e.Type {
	case EventTabCreated, EventTabRemoved, EventTabActivated, EventTabUpdated, EventBeforeNavigate:
		if e.TabID <= 0 {
			return fmt.Errorf("%s: tabId is required", e.Type)
		}
	case EventNavigationTarget:
		if e.NewTabID <= 0 || e.OpenerTabID <= 0 {
			return fmt.Errorf("%s: openerTabId and newTabId are required", e.Type)
		}
	case EventIdleState:
		switch e.State {
		case IdleActive, IdleIdle, IdleLocked:
		default:
			return fmt.Errorf("%s: unknown state %q", e.Type, e.State)
		}
	case EventWindowFocus:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// DecodeEvents parses a request body holding either a single event object
// or an array of events.
func DecodeEvents(data []byte) ([]HostEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty event payload")
	}

	var events []HostEvent
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	} else {
		var e HostEvent
		if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = []HostEvent{e}
	}

	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return events, nil
}
