// Package server is the UI boundary: a small JSON API over the evaluation
// service plus per-session websocket event streams for the board layer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hailam/endgamelab/internal/chess"
	"github.com/hailam/endgamelab/internal/tablebase"
	"github.com/hailam/endgamelab/internal/trainer"
)

// Evaluator is the slice of the evaluation service the handlers use.
type Evaluator interface {
	GetEvaluation(ctx context.Context, pos *chess.Position) (*tablebase.Evaluation, error)
	GetTopMoves(ctx context.Context, pos *chess.Position, limit int) ([]tablebase.Candidate, error)
	Stats() tablebase.CacheStats
}

// Server routes the HTTP API and owns the live sessions.
type Server struct {
	evals Evaluator
	rules chess.Rules
	log   *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*trainer.Session
}

// New creates a server around the evaluator and rules collaborator.
func New(evals Evaluator, rules chess.Rules, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		evals:    evals,
		rules:    rules,
		log:      log.WithField("component", "http"),
		sessions: make(map[string]*trainer.Session),
	}
}

// Router builds the chi handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/eval", s.handleEval)
	r.Get("/api/topmoves", s.handleTopMoves)
	r.Get("/api/stats", s.handleStats)

	r.Post("/api/session", s.handleCreateSession)
	r.Get("/api/session/{id}", s.handleGetSession)
	r.Post("/api/session/{id}/move", s.handleMove)
	r.Post("/api/session/{id}/reset", s.handleReset)
	r.Get("/api/session/{id}/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	pos, ok := s.parseFENParam(w, r)
	if !ok {
		return
	}
	record, err := s.evals.GetEvaluation(r.Context(), pos)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleTopMoves(w http.ResponseWriter, r *http.Request) {
	pos, ok := s.parseFENParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		limit = n
	}
	moves, err := s.evals.GetTopMoves(r.Context(), pos, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"moves": moves})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.evals.Stats()
	s.mu.Lock()
	live := len(s.sessions)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_entries": stats.Entries,
		"cache_hits":    stats.Hits,
		"cache_misses":  stats.Misses,
		"sessions":      live,
	})
}

type createSessionRequest struct {
	FEN string `json:"fen"`
}

type sessionResponse struct {
	ID     string                `json:"id"`
	FEN    string                `json:"fen"`
	State  string                `json:"state"`
	Epoch  uint64                `json:"epoch"`
	Record *tablebase.Evaluation `json:"record,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func snapshotResponse(id string, snap trainer.Snapshot) sessionResponse {
	resp := sessionResponse{
		ID:     id,
		FEN:    snap.FEN,
		State:  snap.State.String(),
		Epoch:  snap.Epoch,
		Record: snap.Record,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.FEN == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("fen is required"))
		return
	}

	session, err := trainer.NewSession(s.rules, s.evals, req.FEN, s.log)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	// Evaluate the starting position right away so the UI has a verdict.
	if err := session.Reset(r.Context(), req.FEN); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse(id, session.Snapshot()))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *trainer.Session, bool) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	session, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown session"))
		return "", nil, false
	}
	return id, session, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(id, session.Snapshot()))
}

type moveRequest struct {
	Move string `json:"move"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Move == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("move is required"))
		return
	}
	if err := session.Play(r.Context(), req.Move); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(id, session.Snapshot()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FEN == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("fen is required"))
		return
	}
	if err := session.Reset(r.Context(), req.FEN); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(id, session.Snapshot()))
}

func (s *Server) parseFENParam(w http.ResponseWriter, r *http.Request) (*chess.Position, bool) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing fen parameter"))
		return nil, false
	}
	pos, err := chess.ParseFEN(fen)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return pos, true
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var invalidPos *chess.InvalidPositionError
	var illegalMove *chess.IllegalMoveError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalidPos), errors.As(err, &illegalMove):
		status = http.StatusBadRequest
	case errors.Is(err, tablebase.ErrOracleRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, tablebase.ErrRateLimited):
		status = http.StatusServiceUnavailable
	case errors.Is(err, tablebase.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, tablebase.ErrMalformedResponse):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
