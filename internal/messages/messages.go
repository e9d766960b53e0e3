// Package messages defines the closed set of messages exchanged between the
// main side and the edit worker, and their wire encoding.
//
// A message travels as the payload of one frame: a single kind byte followed by
// a CBOR body. Input messages flow main→worker and are handled on the worker;
// output messages flow worker→main and are handled on the main side.
package messages

import (
	"errors"
	"fmt"
	"time"

	"github.com/dohr-michael/editthread/internal/world"
)

var (
	ErrEmpty       = errors.New("empty message")
	ErrUnknownKind = errors.New("unknown message kind")
)

// Kind tags the concrete message type on the wire.
type Kind uint8

const (
	KindAssignTask Kind = iota + 1
	KindCancelTask
	KindChunkData
	KindConfigUpdate
	KindStatsRequest
)

// Output kinds start at 64 so the direction can be read off the tag.
const (
	KindTaskResult Kind = iota + 64
	KindChunkRequest
	KindNotification
	KindStatsReport
)

// Direction tells which side of the worker handles a message.
type Direction string

const (
	Input  Direction = "in"
	Output Direction = "out"
)

var kindNames = map[Kind]string{
	KindAssignTask:   "assign_task",
	KindCancelTask:   "cancel_task",
	KindChunkData:    "chunk_data",
	KindConfigUpdate: "config_update",
	KindStatsRequest: "stats_request",
	KindTaskResult:   "task_result",
	KindChunkRequest: "chunk_request",
	KindNotification: "notification",
	KindStatsReport:  "stats_report",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Direction returns the direction messages of this kind travel.
func (k Kind) Direction() Direction {
	if k >= KindTaskResult {
		return Output
	}
	return Input
}

// Kinds returns every known kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		out = append(out, k)
	}
	return out
}

// Message is implemented only by the types in this package.
type Message interface {
	Kind() Kind
	sealed()
}

// =============================================================================
// INPUT (main → worker)
// =============================================================================

// AssignTask hands a task to the worker. Params are decoded by the task factory
// registered for Type.
type AssignTask struct {
	TaskID string `cbor:"1,keyasint"`
	Type   string `cbor:"2,keyasint"`
	Name   string `cbor:"3,keyasint,omitempty"`
	Params []byte `cbor:"4,keyasint,omitempty"`
}

// CancelTask asks the worker to abort the running task. An empty TaskID
// cancels whatever is running.
type CancelTask struct {
	TaskID string `cbor:"1,keyasint,omitempty"`
}

// ChunkData answers a ChunkRequest.
type ChunkData struct {
	RequestID uint64        `cbor:"1,keyasint"`
	Chunks    []world.Chunk `cbor:"2,keyasint"`
}

// ConfigUpdate pushes runtime settings to the worker.
type ConfigUpdate struct {
	Debug bool `cbor:"1,keyasint"`
}

// StatsRequest asks the worker for a StatsReport.
type StatsRequest struct{}

// =============================================================================
// OUTPUT (worker → main)
// =============================================================================

// TaskResult is emitted exactly once per assigned task.
type TaskResult struct {
	TaskID    string `cbor:"1,keyasint"`
	Payload   []byte `cbor:"2,keyasint,omitempty"`
	Succeeded bool   `cbor:"3,keyasint"`
	Error     string `cbor:"4,keyasint,omitempty"`
}

// Cancelled reports whether the task stopped without succeeding or failing.
func (r TaskResult) Cancelled() bool {
	return !r.Succeeded && r.Error == ""
}

// ChunkRequest asks the main side to load chunks for the running task.
type ChunkRequest struct {
	RequestID uint64           `cbor:"1,keyasint"`
	TaskID    string           `cbor:"2,keyasint"`
	Positions []world.ChunkPos `cbor:"3,keyasint"`
}

// Notification carries a human readable progress line for a task.
type Notification struct {
	TaskID string `cbor:"1,keyasint,omitempty"`
	Text   string `cbor:"2,keyasint"`
}

// StatsSnapshot is a point-in-time view of worker statistics.
type StatsSnapshot struct {
	SampledAt        time.Time `cbor:"1,keyasint" json:"sampled_at"`
	HeapAlloc        uint64    `cbor:"2,keyasint" json:"heap_alloc"`
	HeapPeak         uint64    `cbor:"3,keyasint" json:"heap_peak"`
	NumGC            uint32    `cbor:"4,keyasint" json:"num_gc"`
	TasksStarted     uint64    `cbor:"5,keyasint" json:"tasks_started"`
	CurrentTask      string    `cbor:"6,keyasint,omitempty" json:"current_task,omitempty"`
	CurrentTaskName  string    `cbor:"7,keyasint,omitempty" json:"current_task_name,omitempty"`
	TaskStartedAt    time.Time `cbor:"8,keyasint,omitempty" json:"task_started_at,omitempty"`
	InboundMessages  uint64    `cbor:"9,keyasint" json:"inbound_messages"`
	InboundBytes     uint64    `cbor:"10,keyasint" json:"inbound_bytes"`
	OutboundMessages uint64    `cbor:"11,keyasint" json:"outbound_messages"`
	OutboundBytes    uint64    `cbor:"12,keyasint" json:"outbound_bytes"`
}

// StatsReport answers a StatsRequest.
type StatsReport struct {
	Snapshot StatsSnapshot `cbor:"1,keyasint"`
}

func (AssignTask) Kind() Kind   { return KindAssignTask }
func (CancelTask) Kind() Kind   { return KindCancelTask }
func (ChunkData) Kind() Kind    { return KindChunkData }
func (ConfigUpdate) Kind() Kind { return KindConfigUpdate }
func (StatsRequest) Kind() Kind { return KindStatsRequest }
func (TaskResult) Kind() Kind   { return KindTaskResult }
func (ChunkRequest) Kind() Kind { return KindChunkRequest }
func (Notification) Kind() Kind { return KindNotification }
func (StatsReport) Kind() Kind  { return KindStatsReport }

func (AssignTask) sealed()   {}
func (CancelTask) sealed()   {}
func (ChunkData) sealed()    {}
func (ConfigUpdate) sealed() {}
func (StatsRequest) sealed() {}
func (TaskResult) sealed()   {}
func (ChunkRequest) sealed() {}
func (Notification) sealed() {}
func (StatsReport) sealed()  {}
