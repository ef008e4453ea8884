package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/state"
	"github.com/floorcast/floorcast/internal/storage"
)

// Server hosts the subscriber websocket endpoint, the timeline query, and
// a liveness probe.
type Server struct {
	addr     string
	sessions *SessionManager
	states   *state.Reconstructor
	events   storage.EventStore
	log      *zap.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer assembles the HTTP surface.
func NewServer(addr string, sessions *SessionManager, states *state.Reconstructor, events storage.EventStore, log *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		sessions: sessions,
		states:   states,
		events:   events,
		log:      log,
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. Websocket upgrades bypass the write timeout.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/events/live", s.sessions)
	mux.HandleFunc("/timeline", s.handleTimeline)
	mux.HandleFunc("/healthz", s.handleHealth)

	httpServer := &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("server listening", zap.String("addr", listener.Addr().String()))
	if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start has been called.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

type timelineResponse struct {
	Snapshot *domain.ReconstructedState `json:"snapshot"`
	Events   []domain.CompactEvent      `json:"events"`
}

// handleTimeline answers GET /timeline?start_time=RFC3339[&end_time=RFC3339]
// with the reconstructed state at start_time and the compact events between
// that state's anchor and end_time (default: now).
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	startRaw := r.URL.Query().Get("start_time")
	if startRaw == "" {
		s.writeError(w, http.StatusBadRequest, "start_time is required")
		return
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "start_time must be RFC 3339")
		return
	}

	end := time.Now().UTC()
	if endRaw := r.URL.Query().Get("end_time"); endRaw != "" {
		end, err = time.Parse(time.RFC3339, endRaw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "end_time must be RFC 3339")
			return
		}
	}

	snapshot, err := s.states.GetStateAt(r.Context(), start)
	if err != nil {
		s.log.Error("timeline snapshot failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "state reconstruction failed")
		return
	}

	var afterSerial int64
	if snapshot.LastEventID != nil {
		afterSerial = *snapshot.LastEventID
	}
	events, err := s.events.GetTimelineBetween(r.Context(), afterSerial, end)
	if err != nil {
		s.log.Error("timeline query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "timeline query failed")
		return
	}
	if events == nil {
		events = []domain.CompactEvent{}
	}

	s.writeJSON(w, http.StatusOK, timelineResponse{Snapshot: snapshot, Events: events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.SessionCount(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
