// Package scheduler submits configured edits on cron schedules and in
// reaction to bus events.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/editthread/internal/config"
	"github.com/dohr-michael/editthread/internal/events"
	"github.com/dohr-michael/editthread/internal/host"
)

// ErrUnknownEntry is returned by Trigger for a name not in the schedule.
var ErrUnknownEntry = errors.New("schedule entry not found")

// DefaultCooldown is the minimum interval between two triggers of the same entry.
const DefaultCooldown = 60 * time.Second

// Submitter queues edits. *host.Host implements it.
type Submitter interface {
	Submit(sub host.Submission) (string, error)
}

// Config holds dependencies for the scheduler.
type Config struct {
	Submitter Submitter
	Bus       *events.Bus
	Entries   []config.ScheduleEntry
	Now       func() time.Time // defaults to time.Now
}

// Entry is a snapshot of one schedule entry.
type Entry struct {
	Name     string               `json:"name"`
	Cron     string               `json:"cron,omitempty"`
	OnEvent  *config.EventTrigger `json:"on_event,omitempty"`
	Type     string               `json:"type"`
	Cooldown time.Duration        `json:"cooldown"`
	MaxRuns  int                  `json:"max_runs,omitempty"`
	RunCount int                  `json:"run_count"`
	Enabled  bool                 `json:"enabled"`
	LastRun  time.Time            `json:"last_run,omitempty"`
	LastTask string               `json:"last_task,omitempty"`
	NextRun  time.Time            `json:"next_run,omitempty"`
}

type runtimeEntry struct {
	spec     config.ScheduleEntry
	cron     *cronSchedule
	cooldown time.Duration
	runCount int
	enabled  bool
	lastRun  time.Time
	lastTask string
	checked  time.Time // end of the last cron window looked at
}

func (r *runtimeEntry) snapshot() Entry {
	e := Entry{
		Name:     r.spec.Name,
		Cron:     r.spec.Cron,
		OnEvent:  r.spec.OnEvent,
		Type:     r.spec.Type,
		Cooldown: r.cooldown,
		MaxRuns:  r.spec.MaxRuns,
		RunCount: r.runCount,
		Enabled:  r.enabled,
		LastRun:  r.lastRun,
		LastTask: r.lastTask,
	}
	if r.cron != nil && r.enabled {
		e.NextRun = r.cron.next(r.checked)
	}
	return e
}

func newRuntimeEntry(spec config.ScheduleEntry, now time.Time) (*runtimeEntry, error) {
	re := &runtimeEntry{
		spec:     spec,
		cooldown: spec.Cooldown.Duration(),
		enabled:  true,
		checked:  now,
	}
	if spec.Cron != "" {
		expr, err := parseCron(spec.Cron)
		if err != nil {
			return nil, err
		}
		re.cron = expr
	}
	if re.cooldown == 0 {
		re.cooldown = DefaultCooldown
	}
	return re, nil
}

// Scheduler manages cron-based and event-triggered submissions.
type Scheduler struct {
	submitter Submitter
	bus       *events.Bus
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	startOnce   sync.Once
	stopOnce    sync.Once
	done        chan struct{}
	unsubscribe func()
}

// New creates a new Scheduler. Entries with an invalid cron expression are
// logged and skipped.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		submitter: cfg.Submitter,
		bus:       cfg.Bus,
		now:       cfg.Now,
		entries:   make(map[string]*runtimeEntry),
		done:      make(chan struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.SetEntries(cfg.Entries)
	return s
}

// Start begins the cron ticker and the event subscription.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.unsubscribe = s.bus.Subscribe(s.handleEvent)
		go s.cronLoop()
		slog.Info("scheduler started", "entries", len(s.Entries()))
	})
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		slog.Info("scheduler stopped")
	})
}

// SetEntries replaces the schedule. Run counters of entries whose name
// survives are kept.
func (s *Scheduler) SetEntries(specs []config.ScheduleEntry) {
	now := s.now()
	next := make(map[string]*runtimeEntry, len(specs))
	for _, spec := range specs {
		re, err := newRuntimeEntry(spec, now)
		if err != nil {
			slog.Warn("scheduler: skipping entry", "entry", spec.Name, "error", err)
			continue
		}
		next[spec.Name] = re
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, re := range next {
		if old, ok := s.entries[name]; ok {
			re.runCount = old.runCount
			re.lastRun = old.lastRun
			re.lastTask = old.lastTask
			re.checked = old.checked
			re.enabled = re.spec.MaxRuns == 0 || re.runCount < re.spec.MaxRuns
		}
	}
	s.entries = next
}

// Entries returns a snapshot of all entries sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, e.snapshot())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Trigger submits an entry now, ignoring its schedule and cooldown.
func (s *Scheduler) Trigger(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	re, ok := s.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	return s.triggerEntry(re, "manual")
}

func (s *Scheduler) cronLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.checkCron(s.now())
		}
	}
}

// checkCron fires every enabled entry with an activation since its previous
// check, so a late tick never loses one.
func (s *Scheduler) checkCron(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.cron == nil || !entry.enabled {
			continue
		}
		since := entry.checked
		if !now.After(since) {
			continue
		}
		entry.checked = now
		if !entry.cron.due(since, now) {
			continue
		}
		if now.Sub(entry.lastRun) < entry.cooldown {
			continue
		}

		s.triggerEntry(entry, "cron")
	}
}

func (s *Scheduler) handleEvent(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, entry := range s.entries {
		if entry.spec.OnEvent == nil || !entry.enabled {
			continue
		}
		if !matchTrigger(e, entry.spec.OnEvent) {
			continue
		}
		if now.Sub(entry.lastRun) < entry.cooldown {
			continue
		}

		s.triggerEntry(entry, "event:"+string(e.Type))
	}
}

// triggerEntry submits the entry's edit. Caller must hold s.mu.
func (s *Scheduler) triggerEntry(re *runtimeEntry, trigger string) (string, error) {
	re.lastRun = s.now()

	id, err := s.submitter.Submit(host.Submission{
		Type:   re.spec.Type,
		Name:   re.spec.Name,
		Params: re.spec.Params,
	})
	if err != nil {
		slog.Error("scheduler: submit task", "entry", re.spec.Name, "error", err)
		return "", err
	}
	re.runCount++
	re.lastTask = id

	if re.spec.MaxRuns > 0 && re.runCount >= re.spec.MaxRuns {
		re.enabled = false
		slog.Info("scheduler: entry reached max runs, disabled", "entry", re.spec.Name, "runs", re.runCount)
	}

	s.bus.Publish(events.NewTaskEvent(events.SourceScheduler, events.ScheduleTriggerPayload{
		Entry:   re.spec.Name,
		Trigger: trigger,
		TaskID:  id,
	}, id))

	slog.Info("scheduler: triggered", "entry", re.spec.Name, "trigger", trigger, "task_id", id)
	return id, nil
}
