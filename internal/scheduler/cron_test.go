package scheduler

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 4 * * 1-5", "@hourly", "@daily"} {
		if _, err := parseCron(expr); err != nil {
			t.Errorf("parseCron(%q): %v", expr, err)
		}
	}
	for _, expr := range []string{"", "not a cron", "* * * *", "0 0 0 * * *"} {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("parseCron(%q) accepted", expr)
		}
	}
}

func TestCronSchedule_Due(t *testing.T) {
	c, err := parseCron("30 14 * * *")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		since, now time.Time
		want       bool
	}{
		{"before activation", at(14, 0), at(14, 29), false},
		{"activation is now", at(14, 29), at(14, 30), true},
		{"activation skipped by a late tick", at(14, 29), at(14, 33), true},
		{"activation equals since", at(14, 30), at(14, 31), false},
		{"after activation", at(14, 31), at(23, 59), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.due(tt.since, tt.now); got != tt.want {
				t.Errorf("due(%s, %s) = %v, want %v", tt.since.Format("15:04"), tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestCronSchedule_Next(t *testing.T) {
	c, err := parseCron("*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.next(at(9, 7)); !got.Equal(at(9, 15)) {
		t.Errorf("next = %v, want 09:15", got)
	}
	if got := c.next(at(9, 45)); !got.Equal(at(10, 0)) {
		t.Errorf("next = %v, want 10:00", got)
	}
}
