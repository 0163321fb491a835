package config

// Config is the full runtime configuration. Files may be JSON or YAML; both
// go through the same strict decoder (unknown fields are rejected).
//
// All duration-like fields are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig  `json:"telegram"`
	Logging  LoggingConfig   `json:"logging"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Dispatch DispatchConfig  `json:"dispatch"`
	Calendar *CalendarConfig `json:"calendar,omitempty"`
	Planner  PlannerConfig   `json:"planner,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// OwnerUserIDs may manage any user's cadence; everyone else only their own.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // TRACE..ERROR, default INFO
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the persistence driver. Dispatch requires storage;
// with storage disabled the daemon only serves day planning.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig controls the check-in dispatch service.
//
// Defaults (when fields are omitted/zero):
//   - interval: "1m"
//   - workers: 2
//   - queue_size: 256
//   - claim_ttl: "5m"
//   - max_attempts: 3
//   - rate_per_sec: 3
//   - retention_days: 7
type DispatchConfig struct {
	Enabled       bool   `json:"enabled"`
	Interval      string `json:"interval,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	ClaimTTL      string `json:"claim_ttl,omitempty"`
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
	Timezone      string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Paris"
}

// CalendarConfig points at the free/busy endpoint. Omitted section means no
// calendar backend: day planning always uses the fallback window.
type CalendarConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// PlannerConfig holds day-planning defaults for users without stored
// preferences.
type PlannerConfig struct {
	WorkStart     string `json:"work_start,omitempty"` // default "08:00"
	WorkEnd       string `json:"work_end,omitempty"`   // default "18:00"
	MaxCandidates int    `json:"max_candidates,omitempty"`
	SnoozeMinutes int    `json:"snooze_minutes,omitempty"`
}
