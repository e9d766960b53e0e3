// Package ws provides a WebSocket client for the editthread gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/editthread/internal/gateway/ws"
)

// ErrClosed is returned by Call once the connection is gone.
var ErrClosed = errors.New("ws client closed")

// Client multiplexes request/response calls and the event stream over one
// gateway connection. A background reader routes responses to their caller
// and events to Events.
type Client struct {
	conn   *websocket.Conn
	seq    atomic.Uint64
	events chan wsprotocol.Frame
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan wsprotocol.Frame
	err     error
}

// Dial connects to the gateway WebSocket endpoint, e.g.
// ws://127.0.0.1:18420/api/ws.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		events:  make(chan wsprotocol.Frame, 64),
		done:    make(chan struct{}),
		cancel:  cancel,
		pending: make(map[string]chan wsprotocol.Frame),
	}
	go c.readLoop(readCtx)
	return c, nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.events)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.fail(err)
			return
		}
		f, err := wsprotocol.UnmarshalFrame(data)
		if err != nil {
			continue
		}

		switch f.Type {
		case wsprotocol.FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case wsprotocol.FrameTypeEvent:
			select {
			case c.events <- f:
			case <-ctx.Done():
				c.fail(ctx.Err())
				return
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
		close(c.done)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call sends a request and waits for its response. A response with ok=false
// becomes an error carrying the gateway's message. out, when non-nil,
// receives the decoded payload.
func (c *Client) Call(ctx context.Context, method wsprotocol.Method, params, out any) error {
	id := "req-" + strconv.FormatUint(c.seq.Add(1), 10)
	req, err := wsprotocol.NewRequestFrame(id, method, params)
	if err != nil {
		return err
	}
	data, err := wsprotocol.MarshalFrame(req)
	if err != nil {
		return err
	}

	reply := make(chan wsprotocol.Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("ws write: %w", err)
	}

	select {
	case f, ok := <-reply:
		if !ok {
			return ErrClosed
		}
		if f.OK == nil || !*f.OK {
			return fmt.Errorf("%s: %s", method, f.Error)
		}
		if out != nil && len(f.Payload) > 0 {
			return json.Unmarshal(f.Payload, out)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Watch narrows the event stream to one task.
func (c *Client) Watch(ctx context.Context, taskID string) error {
	return c.Call(ctx, wsprotocol.MethodWatchTask, wsprotocol.TaskIDParams{TaskID: taskID}, nil)
}

// Events delivers event frames in arrival order. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Events() <-chan wsprotocol.Frame {
	return c.events
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection and stops the reader.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	<-c.done
	return err
}
