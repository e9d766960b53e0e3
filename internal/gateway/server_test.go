package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dohr-michael/editthread/internal/config"
	"github.com/dohr-michael/editthread/internal/events"
	"github.com/dohr-michael/editthread/internal/host"
	"github.com/dohr-michael/editthread/internal/scheduler"
	"github.com/dohr-michael/editthread/internal/storage"
	"github.com/dohr-michael/editthread/internal/tasks"
	"github.com/dohr-michael/editthread/internal/worker"
	"github.com/dohr-michael/editthread/internal/world"
)

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

type testServer struct {
	*Server
	store *tasks.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bus := events.NewBus(64)
	store := tasks.NewMemoryStore()
	reg := tasks.NewRegistry()

	w := worker.New(worker.Config{Registry: reg, Throttle: 10 * time.Millisecond})
	h := host.New(host.Config{
		Worker:   w,
		World:    world.NewMemoryStore(),
		Tasks:    store,
		Bus:      bus,
		Registry: reg,
		Tick:     2 * time.Millisecond,
	})
	w.Start()

	tracker := storage.NewOutcomeTracker(bus)
	el := storage.NewEventLogger(t.TempDir(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	sched := scheduler.New(scheduler.Config{Submitter: h, Bus: bus, Entries: []config.ScheduleEntry{{
		Name:   "nightly-count",
		Cron:   "@daily",
		Type:   "count",
		Params: tasks.EditParams{Region: world.Region{Max: world.BlockPos{X: 3, Y: 0, Z: 3}}},
	}}})

	srv := NewServer(Options{Host: h, Tasks: store, Bus: bus, Tracker: tracker, EventLog: el, Schedule: sched, Addr: "localhost"})
	t.Cleanup(func() {
		sched.Stop()
		srv.hub.Close()
		cancel()
		<-done
		h.Close()
		el.Close()
		tracker.Close()
		bus.Close()
	})
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func fillSubmission() host.Submission {
	return host.Submission{Type: "fill", Name: "pad", Params: tasks.EditParams{
		Region: world.Region{Max: world.BlockPos{X: 1, Y: 0, Z: 1}},
		Block:  7,
	}}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestHandleEvents_Empty(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleEvents_LimitParam(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewEvent(events.EventScheduleTrigger, events.SourceScheduler, map[string]any{"i": i}))
	}
	waitForEvents(srv.bus, 10)

	w := srv.do(t, http.MethodGet, "/api/events?limit=5", nil)
	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}
}

func TestSubmitAndWait(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/tasks?wait=1", fillSubmission())
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp submitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome == nil || resp.Outcome.Status != tasks.TaskCompleted {
		t.Fatalf("unexpected outcome %+v", resp.Outcome)
	}
	if resp.Outcome.Result == nil || resp.Outcome.Result.Affected != 4 {
		t.Fatalf("unexpected result %+v", resp.Outcome.Result)
	}

	w = srv.do(t, http.MethodGet, "/api/tasks/"+resp.TaskID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get task: %d", w.Code)
	}
	var d TaskDetail
	if err := json.NewDecoder(w.Body).Decode(&d); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if d.Record == nil || d.Status != tasks.TaskCompleted || d.Name != "pad" {
		t.Fatalf("unexpected detail %+v", d.Record)
	}

	w = srv.do(t, http.MethodGet, "/api/tasks?status=completed", nil)
	var list []*tasks.Record
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != resp.TaskID {
		t.Fatalf("unexpected list %+v", list)
	}

	// The event log is written from the bus goroutine.
	var evs []events.Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w = srv.do(t, http.MethodGet, "/api/tasks/"+resp.TaskID+"/events", nil)
		evs = nil
		if err := json.NewDecoder(w.Body).Decode(&evs); err != nil {
			t.Fatalf("decode events: %v", err)
		}
		if len(evs) > 0 && evs[len(evs)-1].Type == events.EventTaskCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(evs) == 0 || evs[0].Type != events.EventTaskSubmitted || evs[len(evs)-1].Type != events.EventTaskCompleted {
		t.Fatalf("unexpected task events %+v", evs)
	}
}

func TestSubmitAsync(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/tasks", fillSubmission())
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var resp submitResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.TaskID == "" || resp.Outcome != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/tasks", host.Submission{Type: "explode"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestSubmitRejectsOversizedRegion(t *testing.T) {
	srv := newTestServer(t)

	sub := host.Submission{Type: "fill", Params: tasks.EditParams{
		Region: world.Region{Min: world.BlockPos{X: -1 << 30, Z: -1 << 30}, Max: world.BlockPos{X: 1 << 30, Z: 1 << 30}},
		Block:  7,
	}}
	w := srv.do(t, http.MethodPost, "/api/tasks", sub)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if recs, _ := srv.store.List(tasks.ListFilter{}); len(recs) != 0 {
		t.Errorf("rejected submission left %d records", len(recs))
	}
}

func TestGetAndCancelUnknownTask(t *testing.T) {
	srv := newTestServer(t)

	if w := srv.do(t, http.MethodGet, "/api/tasks/task_nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get: expected 404, got %d", w.Code)
	}
	if w := srv.do(t, http.MethodPost, "/api/tasks/task_nope/cancel", nil); w.Code != http.StatusNotFound {
		t.Fatalf("cancel: expected 404, got %d", w.Code)
	}
}

func TestCancelFinishedTaskConflicts(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/tasks?wait=1", fillSubmission())
	var resp submitResponse
	json.NewDecoder(w.Body).Decode(&resp)

	w = srv.do(t, http.MethodPost, "/api/tasks/"+resp.TaskID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestStatusAndStats(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/tasks?wait=1", fillSubmission())

	w := srv.do(t, http.MethodGet, "/api/status", nil)
	var st host.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.WorkerState == "" || len(st.Queued) != 0 {
		t.Fatalf("unexpected status %+v", st)
	}

	var stats statsResponse
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w = srv.do(t, http.MethodGet, "/api/stats", nil)
		stats = statsResponse{}
		if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
			t.Fatalf("decode stats: %v", err)
		}
		if stats.Totals != nil && stats.Totals.Completed > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if stats.Totals == nil || stats.Totals.Completed != 1 || stats.Totals.BlocksChanged != 4 {
		t.Fatalf("unexpected totals %+v", stats.Totals)
	}
}

func TestSchedule(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/schedule", nil)
	var entries []scheduler.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "nightly-count" || entries[0].RunCount != 0 {
		t.Fatalf("unexpected schedule %+v", entries)
	}

	w = srv.do(t, http.MethodPost, "/api/schedule/nightly-count/trigger", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("trigger: status %d, body %s", w.Code, w.Body)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["task_id"] == "" {
		t.Fatalf("trigger returned no task id: %v", resp)
	}
	if _, err := srv.store.Get(resp["task_id"]); err != nil {
		t.Errorf("triggered task not stored: %v", err)
	}

	if w := srv.do(t, http.MethodPost, "/api/schedule/missing/trigger", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown entry: status %d, want 404", w.Code)
	}
}
