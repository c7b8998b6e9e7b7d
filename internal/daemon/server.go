// Package daemon exposes the tracker over a local HTTP service: host events
// in, session queries out.
package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/logging"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
	"github.com/runnerr0/tabtime/internal/tracker"
)

// Server handles the HTTP API. Events are queued for the router's single
// consumer; queries read the session store directly.
type Server struct {
	cfg     config.DaemonConfig
	router  *tracker.Router
	store   *storage.SessionStore
	events  chan<- tracker.HostEvent
	log     *slog.Logger
	version string
	started time.Time

	accepted atomic.Int64

	// sendMu is held shared by handlers sending on events and exclusively
	// while the queue is closed.
	sendMu   sync.RWMutex
	stopping chan struct{}
	stopOnce sync.Once
}

var errStopping = errors.New("daemon is shutting down")

// NewServer creates a Server that enqueues host events on events.
func NewServer(cfg config.DaemonConfig, router *tracker.Router, store *storage.SessionStore,
	events chan<- tracker.HostEvent, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		router:   router,
		store:    store,
		events:   events,
		log:      logger,
		version:  version,
		started:  time.Now(),
		stopping: make(chan struct{}),
	}
}

// Handler returns the routed handler with CORS, request ids and auth.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withRequestID)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.withAuth)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodPost)
	api.HandleFunc("/message", s.handleMessage).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Auth-Token"},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

// Run serves until ctx is done, feeding events to router. The router's
// queue is drained and its active period flushed before Run returns.
func Run(ctx context.Context, cfg config.DaemonConfig, buffer int, router *tracker.Router,
	store *storage.SessionStore, logger *slog.Logger, version string) error {
	if err := router.Start(ctx); err != nil {
		return err
	}

	events := make(chan tracker.HostEvent, buffer)
	srv := NewServer(cfg, router, store, events, logger, version)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	routerCtx, stopRouter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRouter()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := router.Run(routerCtx, events); err != nil && !errors.Is(err, context.Canceled) {
			srv.log.Error("router stopped", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		srv.log.Info("daemon listening", "addr", ln.Addr().String(), "version", version)
		serveErr <- httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
		srv.log.Warn("http shutdown", "error", shutdownErr)
	}

	// Handlers still blocked on a full queue give up; the router drains
	// what is queued.
	srv.closeQueue()
	wg.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	srv.log.Info("daemon stopped", "events", srv.accepted.Load())
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Events:  s.accepted.Load(),
		Queued:  len(s.events),
	}
	if s.router != nil {
		if info, ok := s.router.Active(); ok {
			resp.ActiveTab = &info
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	events, err := tracker.DecodeEvents(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	n, err := s.enqueue(r.Context(), events)
	switch {
	case errors.Is(err, errStopping):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		logging.FromContext(r.Context(), s.log).Warn("client gone before events were queued",
			"queued", n, "total", len(events))
		return
	}
	writeJSON(w, http.StatusAccepted, eventsResponse{Accepted: n})
}

// enqueue hands events to the router in order and returns how many were
// queued before the server stopped or ctx ended.
func (s *Server) enqueue(ctx context.Context, events []tracker.HostEvent) (int, error) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	select {
	case <-s.stopping:
		return 0, errStopping
	default:
	}

	for i, e := range events {
		select {
		case s.events <- e:
			s.accepted.Add(1)
		case <-s.stopping:
			return i, errStopping
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(events), nil
}

// closeQueue stops accepting events and closes the queue once no handler
// is sending on it.
func (s *Server) closeQueue() {
	s.stopOnce.Do(func() {
		close(s.stopping)
		s.sendMu.Lock()
		close(s.events)
		s.sendMu.Unlock()
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if s.cfg.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxRequestSize))
	}
	return io.ReadAll(r.Body)
}

// withAuth requires the configured token as a bearer token or in
// X-Auth-Token. Without a configured token every request passes.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			token = bearer
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithRequestID(r.Context(), id)

		next.ServeHTTP(w, r.WithContext(ctx))

		logging.FromContext(ctx, s.log).Debug("request",
			"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusResponse struct {
	Status    string               `json:"status"`
	Version   string               `json:"version"`
	Uptime    string               `json:"uptime"`
	Events    int64                `json:"events"`
	Queued    int                  `json:"queued"`
	ActiveTab *model.ActiveTabInfo `json:"activeTab,omitempty"`
}

type eventsResponse struct {
	Accepted int `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}
