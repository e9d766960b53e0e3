// Package gateway exposes the host over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/editthread/internal/events"
	"github.com/dohr-michael/editthread/internal/gateway/ws"
	"github.com/dohr-michael/editthread/internal/host"
	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/scheduler"
	"github.com/dohr-michael/editthread/internal/storage"
	"github.com/dohr-michael/editthread/internal/tasks"
)

// Options configures a Server.
type Options struct {
	Host     *host.Host
	Tasks    tasks.Store
	Bus      *events.Bus
	Tracker  *storage.OutcomeTracker // optional
	EventLog *storage.EventLogger    // optional, serves /api/tasks/{id}/events
	Schedule Schedule                // optional, serves /api/schedule
	Addr     string
	Port     int
}

// Schedule lists and fires schedule entries. *scheduler.Scheduler implements it.
type Schedule interface {
	Entries() []scheduler.Entry
	Trigger(name string) (string, error)
}

// Server is the editthread gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	host       *host.Host
	tasks      *TaskHandler
	tracker    *storage.OutcomeTracker
	eventLog   *storage.EventLogger
	schedule   Schedule
}

// NewServer creates a new gateway server.
func NewServer(opts Options) *Server {
	th := NewTaskHandler(opts.Host, opts.Tasks)
	hub := ws.NewHub(opts.Bus, th)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:      hub,
		bus:      opts.Bus,
		host:     opts.Host,
		tasks:    th,
		tracker:  opts.Tracker,
		eventLog: opts.EventLog,
		schedule: opts.Schedule,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleSubmitTask)
		r.Get("/{id}", s.handleGetTask)
		r.Post("/{id}/cancel", s.handleCancelTask)
		r.Get("/{id}/events", s.handleTaskEvents)
	})

	if s.schedule != nil {
		r.Get("/api/schedule", s.handleListSchedule)
		r.Post("/api/schedule/{name}/trigger", s.handleTriggerSchedule)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Addr, opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("editthread gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Status())
}

type statsResponse struct {
	Worker        messages.StatsSnapshot `json:"worker"`
	Totals        *storage.Totals        `json:"totals,omitempty"`
	EventsDropped uint64                 `json:"events_dropped"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Worker: s.host.Stats(), EventsDropped: s.bus.Dropped()}
	if s.tracker != nil {
		t := s.tracker.Totals()
		resp.Totals = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	history := s.bus.History(queryInt(r, "limit", 50))
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.tasks.List(tasks.ListFilter{
		Status: tasks.TaskStatus(q.Get("status")),
		Type:   q.Get("type"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*tasks.Record{}
	}
	writeJSON(w, http.StatusOK, list)
}

type submitResponse struct {
	TaskID  string        `json:"task_id"`
	Outcome *host.Outcome `json:"outcome,omitempty"`
}

// handleSubmitTask queues an edit. With ?wait=1 it answers once the task
// has finished or the client went away.
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var sub host.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode submission: %w", err))
		return
	}

	id, err := s.tasks.Submit(sub)
	switch {
	case errors.Is(err, host.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err)
		return
	case errors.Is(err, host.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if r.URL.Query().Get("wait") == "" {
		writeJSON(w, http.StatusAccepted, submitResponse{TaskID: id})
		return
	}
	o, err := s.tasks.Wait(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusAccepted, submitResponse{TaskID: id})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{TaskID: id, Outcome: &o})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	d, err := s.tasks.Detail(chi.URLParam(r, "id"))
	if errors.Is(err, tasks.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.tasks.Cancel(id)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, host.ErrFinished):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "cancelling"})
	}
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event log not available"))
		return
	}
	list, err := s.eventLog.ReadTaskEvents(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrBadTaskID) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListSchedule(w http.ResponseWriter, r *http.Request) {
	entries := s.schedule.Entries()
	if entries == nil {
		entries = []scheduler.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := s.schedule.Trigger(chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, scheduler.ErrUnknownEntry):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, host.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err)
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
	}
}
