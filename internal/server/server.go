// Package server exposes mqjs sessions over HTTP and websockets. Each
// session is named by its client: the REST routes take the name from the
// URL, and every websocket connection gets a session of its own that is
// cleaned up when the connection closes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cryguy/mqjs"
	"github.com/cryguy/mqjs/internal/config"
	"github.com/cryguy/mqjs/internal/history"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const (
	maxSourceBytes  = 1 << 20
	shutdownTimeout = 5 * time.Second
	historyLimit    = 50
	maxIDBytes      = 128
)

// Server routes requests to the sessions of one Manager.
type Server struct {
	mgr  *mqjs.Manager
	cfg  config.Server
	hist *history.Store
	log  *zap.Logger
	mux  *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and connections.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHistory records every evaluation in store.
func WithHistory(store *history.Store) Option {
	return func(s *Server) { s.hist = store }
}

// New returns a Server for mgr.
func New(mgr *mqjs.Manager, cfg config.Server, opts ...Option) *Server {
	s := &Server{
		mgr: mgr,
		cfg: cfg,
		log: zap.NewNop(),
		mux: http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}

	s.mux.HandleFunc("GET /api/info", s.handleInfo)
	s.mux.HandleFunc("GET /api/sessions", s.handleList)
	s.mux.HandleFunc("POST /api/sessions/{id}/run", s.handleRun)
	s.mux.HandleFunc("GET /api/sessions/{id}/output", s.handleOutput)
	s.mux.HandleFunc("POST /api/sessions/{id}/clear", s.handleClear)
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// Handler returns the server's routes wrapped in request logging and, if
// enabled, response compression.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.cfg.Compress {
		h = compress(h)
	}
	return s.logRequests(h)
}

// ListenAndServe listens on the configured address and serves until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and cleans up every session.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.mgr.RunSweeper(sweepCtx, s.cfg.SweepInterval)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		s.mgr.Shutdown()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.mgr.Shutdown()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

type runRequest struct {
	Source string `json:"source"`
}

type runResponse struct {
	Text            string `json:"text"`
	Kind            string `json:"kind"`
	OutputTruncated bool   `json:"output_truncated"`
	ResultTruncated bool   `json:"result_truncated"`
	DurationUS      int64  `json:"duration_us"`
}

func newRunResponse(r mqjs.Result) runResponse {
	return runResponse{
		Text:            r.Text,
		Kind:            r.Kind.String(),
		OutputTruncated: r.OutputTruncated,
		ResultTruncated: r.ResultTruncated,
		DurationUS:      r.Duration.Microseconds(),
	}
}

type infoResponse struct {
	Version      string `json:"version"`
	MemoryBudget int    `json:"memory_budget"`
	Sessions     int    `json:"sessions"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Version:      mqjs.Version(),
		MemoryBudget: s.mgr.MemoryBudget(),
		Sessions:     s.mgr.Len(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids := []string{}
	for _, id := range s.mgr.IDs() {
		if !strings.HasPrefix(id, wsPrefix) {
			ids = append(ids, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, status, err := sessionID(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSourceBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	sess, err := s.mgr.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	res := sess.Exec(r.Context(), req.Source)
	s.record(id, req.Source, res)
	writeJSON(w, http.StatusOK, newRunResponse(res))
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"output":    sess.Output(),
		"truncated": sess.OutputTruncated(),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.ClearOutput()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, status, err := sessionID(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	if !s.mgr.Remove(id) {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, status, err := sessionID(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	if s.hist == nil {
		writeError(w, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	entries, err := s.hist.Recent(id, historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) record(id, source string, res mqjs.Result) {
	if s.hist == nil {
		return
	}
	err := s.hist.Record(&history.Entry{
		SessionID:  id,
		Source:     source,
		Result:     res.Text,
		Kind:       res.Kind.String(),
		DurationUS: res.Duration.Microseconds(),
	})
	if err != nil {
		s.log.Warn("recording history", zap.String("session", id), zap.Error(err))
	}
}

var (
	errSessionNotFound = errors.New("session not found")
	errReservedID      = errors.New("session ids starting with " + wsPrefix + " belong to websocket connections")
	errBadID           = fmt.Errorf("session id must be 1 to %d bytes", maxIDBytes)
)

// sessionID returns the {id} path value. Websocket session names are
// rejected so a REST client can never reach a connection's session.
func sessionID(r *http.Request) (string, int, error) {
	id := r.PathValue("id")
	switch {
	case id == "" || len(id) > maxIDBytes:
		return "", http.StatusBadRequest, errBadID
	case strings.HasPrefix(id, wsPrefix):
		return "", http.StatusForbidden, errReservedID
	}
	return id, 0, nil
}

// lookup resolves the {id} path value to an existing session, writing the
// error response itself when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*mqjs.Session, bool) {
	id, status, err := sessionID(r)
	if err != nil {
		writeError(w, status, err)
		return nil, false
	}
	sess, ok := s.mgr.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return nil, false
	}
	return sess, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mqjs.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, mqjs.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
