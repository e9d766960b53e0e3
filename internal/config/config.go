package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/editthread/internal/tasks"
)

// Config is the root configuration for editthread.
type Config struct {
	Debug    bool            `json:"debug" yaml:"debug"`
	Worker   WorkerConfig    `json:"worker" yaml:"worker"`
	Gateway  GatewayConfig   `json:"gateway" yaml:"gateway"`
	Storage  StorageConfig   `json:"storage" yaml:"storage"`
	Events   EventsConfig    `json:"events" yaml:"events"`
	Log      LogConfig       `json:"log" yaml:"log"`
	Schedule []ScheduleEntry `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// WorkerConfig tunes the edit worker and the host loop driving it.
type WorkerConfig struct {
	Throttle      Duration `json:"throttle" yaml:"throttle"`             // pause after a failed task (default 10s)
	Tick          Duration `json:"tick" yaml:"tick"`                     // host output poll interval (default 50ms)
	QueueSize     int      `json:"queue_size" yaml:"queue_size"`         // max queued submissions (default 256)
	StatsInterval Duration `json:"stats_interval" yaml:"stats_interval"` // stats request period, 0 disables (default 5s)
	MaxChunks     int      `json:"max_chunks" yaml:"max_chunks"`         // chunks one submission may touch (default 4096)
}

// GatewayConfig holds the HTTP server settings.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// StorageConfig locates persistent data.
type StorageConfig struct {
	Path        string `json:"path" yaml:"path"`                   // SQLite file (default: $EDITTHREAD_PATH/editthread.db)
	EventLogDir string `json:"event_log_dir" yaml:"event_log_dir"` // JSONL event logs (default: $EDITTHREAD_PATH/logs/events)
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format     string `json:"format" yaml:"format"` // text | json
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// ScheduleEntry submits an edit on a cron schedule or when a matching
// event is published.
type ScheduleEntry struct {
	Name     string           `json:"name" yaml:"name"`
	Cron     string           `json:"cron,omitempty" yaml:"cron,omitempty"`
	OnEvent  *EventTrigger    `json:"on_event,omitempty" yaml:"on_event,omitempty"`
	Cooldown Duration         `json:"cooldown,omitempty" yaml:"cooldown,omitempty"` // default 60s
	MaxRuns  int              `json:"max_runs,omitempty" yaml:"max_runs,omitempty"`
	Type     string           `json:"type" yaml:"type"`
	Params   tasks.EditParams `json:"params" yaml:"params"`
}

// EventTrigger matches bus events by type and payload string fields.
type EventTrigger struct {
	Event  string            `json:"event" yaml:"event"`
	Filter map[string]string `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Validate reports the first structural problem in the config.
func (c *Config) Validate() error {
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker.queue_size must not be negative")
	}
	if c.Worker.MaxChunks < 0 {
		return fmt.Errorf("worker.max_chunks must not be negative")
	}
	seen := make(map[string]bool, len(c.Schedule))
	for i, e := range c.Schedule {
		if e.Name == "" {
			return fmt.Errorf("schedule[%d]: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("schedule[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if e.Type == "" {
			return fmt.Errorf("schedule %q: type is required", e.Name)
		}
		if e.Cron == "" && e.OnEvent == nil {
			return fmt.Errorf("schedule %q: cron or on_event is required", e.Name)
		}
		if e.MaxRuns < 0 {
			return fmt.Errorf("schedule %q: max_runs must not be negative", e.Name)
		}
	}
	return nil
}

// Duration wraps time.Duration for JSON and YAML unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
