package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronSchedule is a parsed five-field expression or descriptor ("@daily").
type cronSchedule struct {
	expr  string
	sched cron.Schedule
}

func parseCron(expr string) (*cronSchedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &cronSchedule{expr: expr, sched: sched}, nil
}

// due reports whether an activation falls in (since, now]. Several missed
// activations in that window count once.
func (c *cronSchedule) due(since, now time.Time) bool {
	return !c.sched.Next(since).After(now)
}

func (c *cronSchedule) next(after time.Time) time.Time {
	return c.sched.Next(after)
}
