package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/editthread/internal/gateway/ws"
)

// fakeGateway answers every request. Requests for check_task fail; the
// others succeed with the request params echoed as payload, preceded by an
// event frame naming the method.
func fakeGateway(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		send := func(f wsprotocol.Frame) error {
			data, _ := wsprotocol.MarshalFrame(f)
			return conn.Write(r.Context(), websocket.MessageText, data)
		}
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			req, err := wsprotocol.UnmarshalFrame(data)
			if err != nil {
				return
			}
			ev, _ := wsprotocol.NewEventFrame("task.submitted", "task_1", map[string]string{"method": req.Method})
			if send(ev) != nil {
				return
			}
			ok := req.Method != string(wsprotocol.MethodCheckTask)
			res := wsprotocol.Frame{Type: wsprotocol.FrameTypeResponse, ID: req.ID, OK: &ok}
			if ok {
				res.Payload = req.Params
			} else {
				res.Error = "task not found"
			}
			if send(res) != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T) (*Client, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	c, err := Dial(ctx, fakeGateway(t))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c, ctx
}

func TestClient_CallDecodesPayload(t *testing.T) {
	c, ctx := dial(t)
	defer c.Close()

	var got wsprotocol.TaskIDParams
	if err := c.Call(ctx, wsprotocol.MethodCancelTask, wsprotocol.TaskIDParams{TaskID: "task_7"}, &got); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got.TaskID != "task_7" {
		t.Errorf("payload = %+v", got)
	}
	if err := c.Watch(ctx, "task_7"); err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestClient_CallError(t *testing.T) {
	c, ctx := dial(t)
	defer c.Close()

	err := c.Call(ctx, wsprotocol.MethodCheckTask, wsprotocol.TaskIDParams{TaskID: "nope"}, nil)
	if err == nil || !strings.Contains(err.Error(), "task not found") {
		t.Fatalf("err = %v, want gateway error", err)
	}
}

func TestClient_EventsInterleaveWithCalls(t *testing.T) {
	c, ctx := dial(t)
	defer c.Close()

	for _, m := range []wsprotocol.Method{wsprotocol.MethodListTasks, wsprotocol.MethodSubmitTask} {
		if err := c.Call(ctx, m, nil, nil); err != nil {
			t.Fatalf("Call %s: %v", m, err)
		}
	}
	for _, want := range []string{"list_tasks", "submit_task"} {
		select {
		case f := <-c.Events():
			if f.Event != "task.submitted" || f.TaskID != "task_1" || !strings.Contains(string(f.Payload), want) {
				t.Errorf("event = %+v, want one for %s", f, want)
			}
		case <-ctx.Done():
			t.Fatal("missing event")
		}
	}
}

func TestClient_CloseEndsEvents(t *testing.T) {
	c, ctx := dial(t)
	if err := c.Close(); err != nil {
		t.Logf("Close: %v", err)
	}

	for range c.Events() {
	}
	if c.Err() == nil {
		t.Error("Err is nil after close")
	}
	if err := c.Call(ctx, wsprotocol.MethodListTasks, nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Call after close = %v, want ErrClosed", err)
	}
}

func TestDialFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1/api/ws"); err == nil {
		t.Fatal("expected dial error")
	}
}
