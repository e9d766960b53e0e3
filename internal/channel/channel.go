// Package channel provides the one-directional byte buffer connecting the main
// side to the edit worker.
package channel

import (
	"sync"
	"time"
)

// Channel is an append-only byte buffer guarded by a mutex and a condition
// variable. Producers append encoded frames; the single consumer detaches the
// whole buffer at once, so a drain never observes half of an append.
type Channel struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

// New creates an empty channel. The name only shows up in logs.
func New(name string) *Channel {
	c := &Channel{name: name}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Append adds an encoded frame to the buffer and wakes the consumer if the
// buffer was empty. It never blocks on the consumer.
func (c *Channel) Append(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	first := len(c.buf) == 0
	c.buf = append(c.buf, frame...)
	if first {
		c.cond.Signal()
	}
}

// DrainAll takes everything appended so far and leaves the buffer empty.
// Returns nil when nothing is pending.
func (c *Channel) DrainAll() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = nil
	return out
}

// Pending returns the number of buffered bytes.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// WaitForData blocks until data is pending, the channel is shut down, or
// timeout elapses. A timeout <= 0 waits without limit. It reports whether data
// is pending on return.
func (c *Channel) WaitForData(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) > 0 || c.closed {
		return len(c.buf) > 0
	}

	expired := false
	if timeout > 0 {
		t := time.AfterFunc(timeout, func() {
			c.mu.Lock()
			expired = true
			c.cond.Broadcast()
			c.mu.Unlock()
		})
		defer t.Stop()
	}

	for len(c.buf) == 0 && !c.closed && !expired {
		c.cond.Wait()
	}
	return len(c.buf) > 0
}

// Shutdown wakes every waiter; later waits return immediately.
// Appends are still accepted so in-flight results can be drained.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// IsShutdown reports whether Shutdown was called.
func (c *Channel) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
