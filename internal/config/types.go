package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("1500ms", "10s"). Zero values fall back
// to defaults when the app maps a section onto its component config.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Notifier  NotifierConfig  `json:"notifier"`
	Digest    DigestConfig    `json:"digest"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminIDs are the operators allowed to upload and broadcast.
	AdminIDs    []int64 `json:"admin_ids"`
	PollTimeout string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	JSON    bool          `json:"json,omitempty"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts forwards error logs to admin chats.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the snapshot backend.
//
//	"storage": { "driver": "file", "path": "./data.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type BroadcastConfig struct {
	BatchSize     int     `json:"batch_size,omitempty"`
	BatchPause    string  `json:"batch_pause,omitempty"`
	ProgressEvery int     `json:"progress_every,omitempty"`
	ErrorMaxLen   int     `json:"error_max_len,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Workers       int     `json:"workers,omitempty"`
	QueueSize     int     `json:"queue_size,omitempty"`
	StatusTTL     string  `json:"status_ttl,omitempty"`
}

type NotifierConfig struct {
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`
	// Spacing is the minimum gap between two alerts to different admins.
	Spacing string `json:"spacing,omitempty"`
}

// DigestConfig schedules the periodic statistics digest sent to admins.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "0 9 * * 1"
	Timezone string `json:"timezone,omitempty"`
}

// OpsConfig controls the ops HTTP API (health, metrics, reports).
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8080"
	// Pprof mounts /debug/pprof on the same listener. A non-loopback addr
	// requires PprofToken.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}
