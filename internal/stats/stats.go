// Package stats collects worker statistics through side-channel callbacks.
package stats

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dohr-michael/editthread/internal/messages"
)

// Hook receives worker lifecycle callbacks. Implementations must not block.
type Hook interface {
	OnMemorySample()
	OnTaskStart(taskID, name string)
	OnTaskEnd(taskID string)
	OnBeforeSend(m messages.Message, size int)
}

// Nop ignores every callback.
type Nop struct{}

func (Nop) OnMemorySample()                    {}
func (Nop) OnTaskStart(string, string)         {}
func (Nop) OnTaskEnd(string)                   {}
func (Nop) OnBeforeSend(messages.Message, int) {}

// Collector keeps counters for every callback and can produce a snapshot.
type Collector struct {
	minSampleInterval time.Duration

	heapAlloc   atomic.Uint64
	heapPeak    atomic.Uint64
	numGC       atomic.Uint32
	lastSample  atomic.Int64
	tasks       atomic.Uint64
	inMessages  atomic.Uint64
	inBytes     atomic.Uint64
	outMessages atomic.Uint64
	outBytes    atomic.Uint64

	mu          sync.Mutex
	currentID   string
	currentName string
	startedAt   time.Time
}

// NewCollector creates a Collector. Memory is sampled at most once per
// minSampleInterval since reading memory stats briefly stops the world.
func NewCollector(minSampleInterval time.Duration) *Collector {
	return &Collector{minSampleInterval: minSampleInterval}
}

// OnMemorySample records heap usage.
func (c *Collector) OnMemorySample() {
	now := time.Now().UnixNano()
	last := c.lastSample.Load()
	if last != 0 && time.Duration(now-last) < c.minSampleInterval {
		return
	}
	if !c.lastSample.CompareAndSwap(last, now) {
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	c.heapAlloc.Store(ms.HeapAlloc)
	c.numGC.Store(ms.NumGC)
	for {
		peak := c.heapPeak.Load()
		if ms.HeapAlloc <= peak || c.heapPeak.CompareAndSwap(peak, ms.HeapAlloc) {
			break
		}
	}
}

// OnTaskStart records the running task.
func (c *Collector) OnTaskStart(taskID, name string) {
	c.tasks.Add(1)
	c.mu.Lock()
	c.currentID = taskID
	c.currentName = name
	c.startedAt = time.Now()
	c.mu.Unlock()
}

// OnTaskEnd clears the running task.
func (c *Collector) OnTaskEnd(taskID string) {
	c.mu.Lock()
	if c.currentID == taskID {
		c.currentID = ""
		c.currentName = ""
		c.startedAt = time.Time{}
	}
	c.mu.Unlock()
}

// OnBeforeSend counts a message about to be appended to a channel.
func (c *Collector) OnBeforeSend(m messages.Message, size int) {
	if m.Kind().Direction() == messages.Input {
		c.inMessages.Add(1)
		c.inBytes.Add(uint64(size))
		return
	}
	c.outMessages.Add(1)
	c.outBytes.Add(uint64(size))
}

// Snapshot returns the current values.
func (c *Collector) Snapshot() messages.StatsSnapshot {
	c.mu.Lock()
	id, name, started := c.currentID, c.currentName, c.startedAt
	c.mu.Unlock()

	return messages.StatsSnapshot{
		SampledAt:        time.Now(),
		HeapAlloc:        c.heapAlloc.Load(),
		HeapPeak:         c.heapPeak.Load(),
		NumGC:            c.numGC.Load(),
		TasksStarted:     c.tasks.Load(),
		CurrentTask:      id,
		CurrentTaskName:  name,
		TaskStartedAt:    started,
		InboundMessages:  c.inMessages.Load(),
		InboundBytes:     c.inBytes.Load(),
		OutboundMessages: c.outMessages.Load(),
		OutboundBytes:    c.outBytes.Load(),
	}
}

var (
	_ Hook = Nop{}
	_ Hook = (*Collector)(nil)
)
