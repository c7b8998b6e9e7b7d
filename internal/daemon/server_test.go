package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/logging"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
	"github.com/runnerr0/tabtime/internal/tracker"
)

type testDaemon struct {
	store   *storage.SessionStore
	router  *tracker.Router
	events  chan tracker.HostEvent
	handler http.Handler
}

func newTestDaemon(t *testing.T, mutate func(*config.DaemonConfig)) *testDaemon {
	t.Helper()
	cfg := config.DefaultConfig().Daemon
	if mutate != nil {
		mutate(&cfg)
	}

	store := storage.NewSessionStore(storage.NewMemoryStore(), nil)
	router := tracker.NewRouter(store, tracker.Options{Logger: logging.Discard()})
	require.NoError(t, router.Start(context.Background()))

	events := make(chan tracker.HostEvent, 16)
	srv := NewServer(cfg, router, store, events, logging.Discard(), "test")
	return &testDaemon{store: store, router: router, events: events, handler: srv.Handler()}
}

func (d *testDaemon) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	d.handler.ServeHTTP(w, req)
	return w
}

// drain feeds everything queued so far to the router.
func (d *testDaemon) drain(t *testing.T) {
	t.Helper()
	for {
		select {
		case e := <-d.events:
			require.NoError(t, d.router.Handle(context.Background(), e))
		default:
			return
		}
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestStatus(t *testing.T) {
	d := newTestDaemon(t, func(c *config.DaemonConfig) { c.AuthToken = "secret" })

	w := d.do(t, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Nil(t, resp.ActiveTab)
}

func TestEvents_SingleAndArray(t *testing.T) {
	d := newTestDaemon(t, nil)

	w := d.do(t, http.MethodPost, "/v1/events",
		`{"type":"tab-updated","tabId":1,"windowId":1,"url":"https://go.dev/"}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = d.do(t, http.MethodPost, "/v1/events", `[
		{"type":"tab-activated","tabId":1,"windowId":1},
		{"type":"window-focus-changed","windowId":-1}
	]`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":2}`, w.Body.String())
	assert.Len(t, d.events, 3)

	d.drain(t)
	sess, err := d.store.TodaySession(context.Background())
	require.NoError(t, err)
	require.Len(t, sess.TabSessions, 1)
	assert.Equal(t, "go.dev", sess.TabSessions[0].Visits[0].Domain)
}

func TestEvents_Rejected(t *testing.T) {
	d := newTestDaemon(t, nil)

	for name, body := range map[string]string{
		"empty":        "",
		"not json":     "{nope",
		"unknown type": `{"type":"tab-teleported","tabId":1}`,
		"missing tab":  `{"type":"tab-updated","url":"https://go.dev"}`,
		"bad idle":     `{"type":"idle-state-changed","state":"asleep"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := d.do(t, http.MethodPost, "/v1/events", body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, d.events)
}

func TestEvents_TooLarge(t *testing.T) {
	d := newTestDaemon(t, func(c *config.DaemonConfig) { c.MaxRequestSize = 32 })

	body := `{"type":"tab-updated","tabId":1,"url":"https://example.com/` + strings.Repeat("a", 64) + `"}`
	w := d.do(t, http.MethodPost, "/v1/events", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAuth(t *testing.T) {
	d := newTestDaemon(t, func(c *config.DaemonConfig) { c.AuthToken = "secret" })
	msg := `{"type":"getStats"}`

	w := d.do(t, http.MethodPost, "/v1/message", msg, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = d.do(t, http.MethodPost, "/v1/message", msg, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = d.do(t, http.MethodPost, "/v1/message", msg, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = d.do(t, http.MethodPost, "/v1/message", msg, map[string]string{"X-Auth-Token": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflightForExtension(t *testing.T) {
	d := newTestDaemon(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	d.handler.ServeHTTP(w, req)

	assert.Equal(t, "chrome-extension://abcdefghijklmnop", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	d.handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMessage_GetTodaySession(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.do(t, http.MethodPost, "/v1/events", `{"type":"tab-updated","tabId":4,"windowId":1,"url":"https://github.com/"}`, nil)
	d.drain(t)

	w := d.do(t, http.MethodPost, "/v1/message", `{"type":"getTodaySession"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Data    model.BrowsingSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, model.DateKey(time.Now()), resp.Data.Date)
	require.Len(t, resp.Data.TabSessions, 1)
	assert.Equal(t, 4, resp.Data.TabSessions[0].TabID)
}

func TestMessage_GetSession(t *testing.T) {
	d := newTestDaemon(t, nil)

	w := d.do(t, http.MethodPost, "/v1/message", `{"type":"getSession","date":"1999-01-01"}`, nil)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "no session")

	w = d.do(t, http.MethodPost, "/v1/message", `{"type":"getSession","date":"yesterday"}`, nil)
	resp = decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "YYYY-MM-DD")

	today := model.DateKey(time.Now())
	w = d.do(t, http.MethodPost, "/v1/message", `{"type":"getSession","date":"`+today+`"}`, nil)
	resp = decodeResponse(t, w)
	assert.True(t, resp.Success, resp.Error)
}

func TestMessage_GetBrowsingTimeline(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.do(t, http.MethodPost, "/v1/events", `[
		{"type":"tab-updated","tabId":1,"windowId":1,"url":"https://go.dev/"},
		{"type":"tab-updated","tabId":2,"windowId":1,"url":"https://github.com/"}
	]`, nil)
	d.drain(t)

	w := d.do(t, http.MethodPost, "/v1/message", `{"type":"getBrowsingTimeline","hoursBack":2}`, nil)
	var resp struct {
		Success bool               `json:"success"`
		Data    []model.TabSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 1, resp.Data[0].DisplayNumber)
	assert.Equal(t, 2, resp.Data[1].DisplayNumber)

	w = d.do(t, http.MethodPost, "/v1/message", `{"type":"getBrowsingTimeline","hoursBack":-3}`, nil)
	assert.False(t, decodeResponse(t, w).Success)
}

func TestMessage_GetStats(t *testing.T) {
	d := newTestDaemon(t, nil)

	w := d.do(t, http.MethodPost, "/v1/message", `{"type":"getStats"}`, nil)
	var resp struct {
		Success bool      `json:"success"`
		Data    StatsData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, model.DateKey(time.Now()), resp.Data.Date)
	assert.Zero(t, resp.Data.Stats.TotalURLs)
}

func TestMessage_Unknown(t *testing.T) {
	d := newTestDaemon(t, nil)

	w := d.do(t, http.MethodPost, "/v1/message", `{"type":"blockSite"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown type")

	w = d.do(t, http.MethodPost, "/v1/message", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents_BlockedSenderReleasedOnStop(t *testing.T) {
	store := storage.NewSessionStore(storage.NewMemoryStore(), nil)
	router := tracker.NewRouter(store, tracker.Options{Logger: logging.Discard()})
	events := make(chan tracker.HostEvent, 1)
	srv := NewServer(config.DefaultConfig().Daemon, router, store, events, logging.Discard(), "test")
	handler := srv.Handler()

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/events",
			strings.NewReader(`{"type":"tab-updated","tabId":1,"windowId":1,"url":"https://go.dev/"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusAccepted, post().Code)

	// The queue is full, so this request blocks until the server stops.
	blocked := make(chan int, 1)
	go func() { blocked <- post().Code }()
	time.Sleep(50 * time.Millisecond)

	srv.closeQueue()

	select {
	case code := <-blocked:
		assert.Equal(t, http.StatusServiceUnavailable, code)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked request was not released")
	}

	assert.Equal(t, http.StatusServiceUnavailable, post().Code)
	srv.closeQueue()

	// The event queued before the stop is still delivered.
	_, ok := <-events
	assert.True(t, ok)
	_, ok = <-events
	assert.False(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig().Daemon
	cfg.Port = 0

	store := storage.NewSessionStore(storage.NewMemoryStore(), nil)
	router := tracker.NewRouter(store, tracker.Options{Logger: logging.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, 8, router, store, logging.Discard(), "test") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
