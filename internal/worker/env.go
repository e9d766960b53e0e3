package worker

import (
	"fmt"

	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/world"
)

// taskEnv is the tasks.Env handed to a running task.
type taskEnv struct {
	w      *Worker
	taskID string
}

func (e *taskEnv) CheckExecution() error {
	return e.w.CheckExecution()
}

// LoadChunks sends a ChunkRequest and keeps parsing input until the answer
// arrives, so cancellation and shutdown are still observed while waiting.
func (e *taskEnv) LoadChunks(positions []world.ChunkPos) (map[world.ChunkPos]*world.Chunk, error) {
	req := e.w.chunks.Request(e.taskID, positions)
	e.w.sendOutput(req)

	for {
		if err := e.w.CheckExecution(); err != nil {
			return nil, err
		}
		if data, ok := e.w.chunks.Take(req.RequestID); ok {
			return data, nil
		}
		if !e.w.chunks.Outstanding(req.RequestID) {
			return nil, fmt.Errorf("chunk request %d dropped", req.RequestID)
		}
		e.w.input.WaitForData(0)
		e.w.parseInput()
	}
}

func (e *taskEnv) Notify(text string) {
	e.w.sendOutput(messages.Notification{TaskID: e.taskID, Text: text})
}
