package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/editthread/internal/config"
	"github.com/dohr-michael/editthread/internal/events"
	wsprotocol "github.com/dohr-michael/editthread/internal/gateway/ws"
	"github.com/dohr-michael/editthread/internal/scheduler"
	"github.com/dohr-michael/editthread/internal/world"
)

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in      string
		want    world.Region
		wantErr bool
	}{
		{in: "0,0,0:15,63,15", want: world.Region{Max: world.BlockPos{X: 15, Y: 63, Z: 15}}},
		{in: "-4, 2, -4:4,2,4", want: world.Region{
			Min: world.BlockPos{X: -4, Y: 2, Z: -4},
			Max: world.BlockPos{X: 4, Y: 2, Z: 4},
		}},
		{in: "0,0,0", wantErr: true},
		{in: "0,0:1,1,1", wantErr: true},
		{in: "a,0,0:1,1,1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseRegion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRegion(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseRegion(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestBlockID(t *testing.T) {
	if id, err := blockID(65535); err != nil || id != 65535 {
		t.Errorf("blockID(65535) = %d, %v", id, err)
	}
	if _, err := blockID(65536); err == nil {
		t.Error("expected error above uint16")
	}
	if _, err := blockID(-1); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestFormatFrame(t *testing.T) {
	note := events.NewTaskEvent(events.SourceWorker, events.WorkerNotificationPayload{TaskID: "task_1", Text: "chunk 3/8"}, "task_1")
	f, err := wsprotocol.NewEventFrame(string(note.Type), note.TaskID, note)
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	if got := formatFrame(f); got != "worker.notification task_1: chunk 3/8" {
		t.Errorf("notification line = %q", got)
	}

	done := events.NewTaskEvent(events.SourceHost, events.TaskCompletedPayload{TaskID: "task_1", Affected: 9}, "task_1")
	f, _ = wsprotocol.NewEventFrame(string(done.Type), done.TaskID, done)
	got := formatFrame(f)
	if !strings.HasPrefix(got, "task.completed task_1 ") || !strings.Contains(got, `"affected":9`) {
		t.Errorf("completed line = %q", got)
	}
}

func TestScheduleColumns(t *testing.T) {
	tests := []struct {
		entry        scheduler.Entry
		trigger, run string
	}{
		{scheduler.Entry{Cron: "@daily", RunCount: 3, Enabled: true}, "@daily", "3"},
		{scheduler.Entry{OnEvent: &config.EventTrigger{Event: "task.failed"}, MaxRuns: 2, RunCount: 2}, "on task.failed", "2/2 (done)"},
		{scheduler.Entry{Cron: "0 4 * * *", OnEvent: &config.EventTrigger{Event: "task.completed"}, Enabled: true}, "0 4 * * * | task.completed", "0"},
	}
	for _, tt := range tests {
		if got := entryTrigger(tt.entry); got != tt.trigger {
			t.Errorf("entryTrigger = %q, want %q", got, tt.trigger)
		}
		if got := entryRuns(tt.entry); got != tt.run {
			t.Errorf("entryRuns = %q, want %q", got, tt.run)
		}
	}
	if optionalTime(time.Time{}) != "-" {
		t.Error("zero time not rendered as -")
	}
}
