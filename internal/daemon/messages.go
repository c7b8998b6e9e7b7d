package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/runnerr0/tabtime/internal/logging"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

// Message types answered by /v1/message.
const (
	MsgGetTodaySession     = "getTodaySession"
	MsgGetSession          = "getSession"
	MsgGetBrowsingTimeline = "getBrowsingTimeline"
	MsgGetStats            = "getStats"
)

const defaultHoursBack = 24

// Message is a read request from another feature.
type Message struct {
	Type      string `json:"type"`
	Date      string `json:"date,omitempty"`
	HoursBack int    `json:"hoursBack,omitempty"`
}

// Response is the reply envelope for every message.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatsData answers getStats.
type StatsData struct {
	Date            string      `json:"date"`
	TotalActiveTime int64       `json:"totalActiveTime"`
	Stats           model.Stats `json:"stats"`
}

// errBadMessage marks failures caused by the request itself.
var errBadMessage = errors.New("bad message")

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: fmt.Sprintf("decode message: %v", err)})
		return
	}

	data, err := s.answer(r, msg)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
	case errors.Is(err, errBadMessage), errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusOK, Response{Error: err.Error()})
	default:
		logging.FromContext(r.Context(), s.log).Error("message failed", "type", msg.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: err.Error()})
	}
}

func (s *Server) answer(r *http.Request, msg Message) (any, error) {
	ctx := r.Context()

	switch msg.Type {
	case MsgGetTodaySession:
		return s.todaySession(r)

	case MsgGetSession:
		if _, err := time.Parse(model.DateLayout, msg.Date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", errBadMessage, msg.Date)
		}
		sess, err := s.store.Session(ctx, msg.Date)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no session for %s: %w", msg.Date, err)
		}
		return sess, err

	case MsgGetBrowsingTimeline:
		hours := msg.HoursBack
		if hours == 0 {
			hours = defaultHoursBack
		}
		if hours < 0 {
			return nil, fmt.Errorf("%w: hoursBack must be positive", errBadMessage)
		}
		return s.store.BrowsingTimeline(ctx, hours)

	case MsgGetStats:
		sess, err := s.todaySession(r)
		if err != nil {
			return nil, err
		}
		return StatsData{Date: sess.Date, TotalActiveTime: sess.TotalActiveTime, Stats: sess.Stats}, nil
	}

	return nil, fmt.Errorf("%w: unknown type %q", errBadMessage, msg.Type)
}

func (s *Server) todaySession(r *http.Request) (*model.BrowsingSession, error) {
	if s.router != nil {
		return s.router.TodaySession(r.Context())
	}
	return s.store.TodaySession(r.Context())
}
