package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage backs the trigger catalog, user profiles and completion
	// state consumed by the engine.
	Storage StorageConfig `json:"storage"`

	// Sweep controls the batch run that computes next fire times for
	// all active triggers.
	Sweep SweepConfig `json:"sweep"`

	Notify NotifyConfig `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./nudge.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// SweepConfig controls the periodic occurrence sweep.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - schedule: "@every 1m"
//   - workers: 4
//   - rate_per_sec: 0 (unlimited)
//   - deadline: "30s"
//   - due_within: "1m"
//   - cache_ttl: "5m"
type SweepConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Workers  int    `json:"workers,omitempty"`

	// RatePerSec caps trigger computations per second across workers.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// Deadline bounds one whole sweep; in-flight per-trigger
	// computations past it are abandoned (they have no partial effects).
	Deadline string `json:"deadline,omitempty"`

	// DueWithin is how close an occurrence must be before the sweep
	// hands it to the notifier.
	DueWithin string `json:"due_within,omitempty"`

	// CacheTTL bounds staleness of the timezone/completion read-through
	// cache used during a sweep.
	CacheTTL string `json:"cache_ttl,omitempty"`

	// Timezone is the IANA zone the sweep schedule itself runs in.
	Timezone string `json:"timezone,omitempty"`
}

// NotifyConfig selects the delivery adapter.
//
// Driver values: "log" (default) or "telegram".
type NotifyConfig struct {
	Driver   string          `json:"driver,omitempty"`
	Telegram *TelegramNotify `json:"telegram,omitempty"`
}

type TelegramNotify struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}
