package scheduler

import (
	"fmt"

	"github.com/dohr-michael/editthread/internal/config"
	"github.com/dohr-michael/editthread/internal/events"
)

// matchTrigger reports whether e fires trigger. Events published by the
// scheduler never match, so an entry cannot feed itself.
//
// Filter keys are looked up in the payload and compared in their printed
// form, so {"affected": "12"} matches a numeric 12. The key "task_id" also
// matches the event's own task id.
func matchTrigger(e events.Event, trigger *config.EventTrigger) bool {
	if trigger == nil || e.Source == events.SourceScheduler {
		return false
	}
	if string(e.Type) != trigger.Event {
		return false
	}
	for key, want := range trigger.Filter {
		if got, ok := filterValue(e, key); !ok || got != want {
			return false
		}
	}
	return true
}

func filterValue(e events.Event, key string) (string, bool) {
	if v, ok := e.Payload[key]; ok && v != nil {
		return fmt.Sprint(v), true
	}
	if key == "task_id" && e.TaskID != "" {
		return e.TaskID, true
	}
	return "", false
}
