package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "donwatcher.db")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8443)
	v.SetDefault("server.json_logs", false)

	// Status inference thresholds
	v.SetDefault("status.active_window_minutes", 5)
	v.SetDefault("status.dormant_window_minutes", 30)

	// Check-in defaults
	v.SetDefault("checkin.max_jobs", 5)
	v.SetDefault("checkin.rate_per_minute", 30.0)
	v.SetDefault("checkin.rate_burst", 10)
	v.SetDefault("checkin.default_poll_seconds", 60)
	v.SetDefault("checkin.default_jitter_pct", 20)

	// Scheduler defaults
	v.SetDefault("scheduler.tick_interval_seconds", 15)

	// Reaper defaults
	v.SetDefault("reaper.tick_interval_seconds", 60)
	v.SetDefault("reaper.interval_multiplier", 10)

	// Ingest defaults (disabled until a parser endpoint is configured)
	v.SetDefault("ingest.enabled", false)
	v.SetDefault("ingest.url", "")
	v.SetDefault("ingest.timeout_seconds", 30)

	// Agent defaults
	v.SetDefault("agent.server_url", "http://localhost:8443")
	v.SetDefault("agent.poll_seconds", 60)
	v.SetDefault("agent.jitter_pct", 20)
	v.SetDefault("agent.exec_timeout_seconds", 300)
}
