package model

import "time"

// Queue backends understood by the worker.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// AppConfig holds service-wide preferences and default settings.
type AppConfig struct {
	// Placement defaults applied to every job
	Placement PlacementSettings `json:"placement" yaml:"placement"`

	// Job queue
	Backend     string `json:"backend" yaml:"backend"`           // "sqlite" or "postgres"
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path"`   // Used when Backend is sqlite
	DatabaseURL string `json:"database_url" yaml:"database_url"` // Used when Backend is postgres; DATABASE_URL wins

	// Worker
	Workers          int `json:"workers" yaml:"workers"`
	PollIntervalSecs int `json:"poll_interval_secs" yaml:"poll_interval_secs"`
	StaleAfterMins   int `json:"stale_after_mins" yaml:"stale_after_mins"` // 0 = never requeue

	// Exports
	ExportDir string `json:"export_dir" yaml:"export_dir"`
}

// DefaultAppConfig returns an AppConfig populated with sensible defaults.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Placement:        DefaultSettings(),
		Backend:          BackendSQLite,
		SQLitePath:       "stowplan.db",
		Workers:          1,
		PollIntervalSecs: 2,
		StaleAfterMins:   10,
		ExportDir:        ".",
	}
}

// PollInterval returns the idle sleep between claim attempts.
func (c AppConfig) PollInterval() time.Duration {
	if c.PollIntervalSecs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// StaleAfter returns how long a job may stay PROCESSING before it is requeued.
func (c AppConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMins) * time.Minute
}
