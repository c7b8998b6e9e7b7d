package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// memoryConfig returns the default config on the in-memory backend.
func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = config.BackendMemory
	return cfg
}

// fixedClock returns a clock stuck at 2026-03-10 09:00 local time.
func fixedClock() func() time.Time {
	return fixedClockAt(9, 0)
}

func fixedClockAt(hour, minute int) func() time.Time {
	now := time.Date(2026, 3, 10, hour, minute, 0, 0, time.Local)
	return func() time.Time { return now }
}

func testVisit(id string, tabID int, url, title string, start int64, src model.NavigationSource) model.URLVisit {
	return model.URLVisit{
		ID:               id,
		URL:              url,
		Domain:           model.ExtractDomain(url),
		Title:            title,
		StartTime:        start,
		TabID:            tabID,
		WindowID:         1,
		Category:         model.CategoryOther,
		NavigationSource: src,
	}
}

// seedDay stores a small day as of clock: tab 1 goes from example.com to
// docs.example.org, tab 2 holds a social visit. Tab 1 has a minute of
// active time.
func seedDay(t *testing.T, kv storage.KV, clock func() time.Time) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewSessionStore(kv, clock)
	start := model.Millis(clock())

	_, err := store.TransitionVisit(ctx, testVisit("v1", 1, "https://example.com/home", "Example Home", start-120000,
		model.NavigationSource{Type: model.NavTyped}))
	require.NoError(t, err)

	v2 := testVisit("v2", 1, "https://docs.example.org/guide", "Guide Docs", start-60000,
		model.NavigationSource{Type: model.NavChain, SourceURL: "https://example.com/home", SourceTabID: 1, SourceNodeID: "v1"})
	v2.Category = model.CategoryWork
	_, err = store.TransitionVisit(ctx, v2)
	require.NoError(t, err)
	require.NoError(t, store.UpdateTabActiveTime(ctx, 1, 60000))

	v3 := testVisit("v3", 2, "https://social.example.net/feed", "Feed", start-30000,
		model.NavigationSource{Type: model.NavHyperlink, SourceURL: "https://docs.example.org/guide", SourceTabID: 1, SourceNodeID: "v2"})
	v3.Category = model.CategorySocial
	_, err = store.TransitionVisit(ctx, v3)
	require.NoError(t, err)
}
