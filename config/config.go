// Package config holds the DonWatcher configuration: viper-loaded TOML with
// environment overrides under the DONWATCHER_ prefix.
package config

// Config represents the full DonWatcher configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Status    StatusConfig    `mapstructure:"status"`
	CheckIn   CheckInConfig   `mapstructure:"checkin"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Agent     AgentConfig     `mapstructure:"agent"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	JSONLogs bool   `mapstructure:"json_logs"`
}

// StatusConfig holds the liveness inference thresholds.
// A beacon is active within the active window, dormant within the dormant
// window, dead beyond it. Killed beacons report killed regardless of timing.
type StatusConfig struct {
	ActiveWindowMinutes  int `mapstructure:"active_window_minutes"`
	DormantWindowMinutes int `mapstructure:"dormant_window_minutes"`
}

// CheckInConfig configures the beacon check-in endpoint
type CheckInConfig struct {
	MaxJobs            int     `mapstructure:"max_jobs"`             // Max jobs dispatched per check-in
	RatePerMinute      float64 `mapstructure:"rate_per_minute"`      // Token-bucket refill per beacon
	RateBurst          int     `mapstructure:"rate_burst"`           // Token-bucket burst per beacon
	DefaultPollSeconds int     `mapstructure:"default_poll_seconds"` // Poll interval handed to new beacons
	DefaultJitterPct   int     `mapstructure:"default_jitter_pct"`   // Jitter handed to new beacons
}

// SchedulerConfig configures the recurring-work scheduler
type SchedulerConfig struct {
	TickIntervalSeconds int `mapstructure:"tick_interval_seconds"` // How often to look for due schedules
}

// ReaperConfig configures the stale-job reaper
type ReaperConfig struct {
	TickIntervalSeconds int `mapstructure:"tick_interval_seconds"`
	IntervalMultiplier  int `mapstructure:"interval_multiplier"` // Missed poll intervals before a dispatched job is failed
}

// IngestConfig configures the report ingestion collaborator
type IngestConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AgentConfig configures the beacon-side poll loop
type AgentConfig struct {
	ServerURL          string `mapstructure:"server_url"`
	PollSeconds        int    `mapstructure:"poll_seconds"`
	JitterPct          int    `mapstructure:"jitter_pct"`
	ExecTimeoutSeconds int    `mapstructure:"exec_timeout_seconds"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
