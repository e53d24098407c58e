// Package server is the remote-procedure boundary the presentation layer
// talks to: JSON request endpoints for reads and explicit actions, and a
// websocket feed rebroadcasting pipeline events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/zhanBoss/claude-pulse/internal/events"
	"github.com/zhanBoss/claude-pulse/internal/logstore"
	"github.com/zhanBoss/claude-pulse/internal/monitor"
)

// Server exposes the monitor over HTTP and websocket.
type Server struct {
	mon  *monitor.Monitor
	http *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a server around a running monitor and subscribes it to the
// event bus so every pipeline event reaches connected clients.
func New(mon *monitor.Monitor, addr string) *Server {
	s := &Server{
		mon:     mon,
		clients: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/session/stats", s.handleSessionStats)
	mux.HandleFunc("/api/record", s.handleRecord)
	mux.HandleFunc("/api/cleanup", s.handleCleanup)
	mux.HandleFunc("/api/retention", s.handleRetention)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.Handle("/ws/events", websocket.Handler(s.wsHandler))

	s.http = &http.Server{Addr: addr, Handler: mux}

	mon.Bus().Subscribe(func(ev events.Event) error {
		s.broadcast(ev)
		return nil
	})
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	return s.http.Shutdown(ctx)
}

// response is the uniform success-discriminated envelope: nothing on
// this boundary surfaces as an unhandled fault.
type response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, response{OK: false, Error: err.Error()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := queryInt(r, "limit", s.mon.Config().MetadataRecordCap)
	entries, err := s.mon.Store().ReadAll(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, entries)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	max := queryInt(r, "max", s.mon.Config().MetadataRecordCap)
	writeData(w, s.mon.Aggregator().ListMetadata(max))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing key parameter"))
		return
	}
	sess, ok := s.mon.Aggregator().Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	writeData(w, sess)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	project := q.Get("project")
	if sessionID == "" || project == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing sessionId or project parameter"))
		return
	}
	// Extraction never fails: a missing transcript yields zeroed stats.
	writeData(w, s.mon.Extractor().Extract(project, sessionID))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	timestamp := q.Get("timestamp")
	if timestamp == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing timestamp parameter"))
		return
	}
	if err := s.mon.DeleteRecord(sessionID, timestamp); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, logstore.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeData(w, map[string]bool{"deleted": true})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.mon.Scheduler().TriggerCleanup(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeData(w, s.mon.Scheduler().State())
}

type retentionRequest struct {
	Enabled    bool  `json:"enabled"`
	IntervalMs int64 `json:"intervalMs"`
	RetainMs   int64 `json:"retainMs"`
}

func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeData(w, s.mon.Scheduler().State())

	case http.MethodPost:
		var req retentionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
		if !req.Enabled {
			s.mon.DisableRetention()
			writeData(w, s.mon.Scheduler().State())
			return
		}
		if err := s.mon.EnableRetention(req.IntervalMs, req.RetainMs); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeData(w, s.mon.Scheduler().State())

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeData(w, s.mon.MetricsSnapshot())
}

func (s *Server) wsHandler(ws *websocket.Conn) {
	s.mu.Lock()
	s.clients[ws] = struct{}{}
	s.mu.Unlock()

	// Send the retention state on connect so a reconnecting UI can
	// render the countdown without waiting for the next tick.
	if data, err := json.Marshal(events.Event{
		Name:    events.CleanupConfigUpdated,
		Payload: s.mon.Scheduler().State(),
	}); err == nil {
		websocket.Message.Send(ws, string(data))
	}

	// Block until the client goes away.
	for {
		var buf string
		if err := websocket.Message.Receive(ws, &buf); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, ws)
	s.mu.Unlock()
}

func (s *Server) broadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := websocket.Message.Send(c, string(data)); err != nil {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			c.Close()
		}
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	// Zero or negative would disable the bound entirely; fall back to the
	// configured cap instead.
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
