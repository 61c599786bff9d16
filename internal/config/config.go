// Package config defines service configuration structures and loading hooks.
package config

import (
	"time"

	"github.com/fortuna/volleysync/internal/store"
)

// Config contains process configuration for both binaries.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile sends JSON logs to a file instead of stdout when set.
	LogFile string `koanf:"log_file"`

	// APIAddr configures the status API listen address, e.g. ":8085".
	APIAddr string `koanf:"api_addr"`

	// WSAddr is the WebSocket listen address. Empty disables it.
	WSAddr string `koanf:"ws_addr"`

	// CORSOrigins lists origins allowed to call the status API.
	CORSOrigins []string `koanf:"cors_origins"`

	// MetricsEnabled mounts /metrics on the status API.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// RedisURL enables the run-report stream and, optionally, Redis state.
	RedisURL string `koanf:"redis_url"`

	// RunStream names the Redis stream receiving run reports.
	RunStream string `koanf:"run_stream"`

	// StateBackend is "docstore" (state collection) or "redis".
	StateBackend string `koanf:"state_backend"`

	// Hasher is "md5" or "xxhash".
	Hasher string `koanf:"hasher"`

	// Environment selects the active entry of Environments.
	Environment  string                 `koanf:"environment"`
	Environments map[string]Environment `koanf:"environments"`

	Collections Collections     `koanf:"collections"`
	Precheck    PrecheckConfig  `koanf:"precheck"`
	Scheduler   SchedulerConfig `koanf:"scheduler"`
	HTTP        HTTPConfig      `koanf:"http"`
	Sources     []SourceConfig  `koanf:"sources"`
}

// Environment is one document store instance.
type Environment struct {
	// Driver is "postgres", "sqlite" or "memory".
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// Collections names the document collections.
type Collections struct {
	Teams   string `koanf:"teams"`
	Matches string `koanf:"matches"`
	State   string `koanf:"state"`
}

// PrecheckConfig toggles the sample precheck in front of the engine.
type PrecheckConfig struct {
	Enabled    bool `koanf:"enabled"`
	SampleSize int  `koanf:"sample_size"`
}

// SchedulerConfig mirrors scheduler.Config.
type SchedulerConfig struct {
	Tick       time.Duration `koanf:"tick"`
	RunOnStart bool          `koanf:"run_on_start"`
	MaxRetries int           `koanf:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// HTTPConfig configures the HTTP and browser fetchers.
type HTTPConfig struct {
	UserAgent   string        `koanf:"user_agent"`
	Timeout     time.Duration `koanf:"timeout"`
	MinInterval time.Duration `koanf:"min_interval"`
}

// SourceConfig is one scraped league.
type SourceConfig struct {
	ID         string        `koanf:"id"`
	GroupID    string        `koanf:"group_id"`
	URL        string        `koanf:"url"`
	MatchesURL string        `koanf:"matches_url"`
	Kind       string        `koanf:"kind"`
	Encoding   string        `koanf:"encoding"`
	Render     string        `koanf:"render"`
	MinRecords int           `koanf:"min_records"`
	Strict     bool          `koanf:"strict"`
	Interval   time.Duration `koanf:"interval"`
	Layout     LayoutConfig  `koanf:"layout"`
}

// LayoutConfig overrides the default table layout. Zero values keep the
// default.
type LayoutConfig struct {
	HeaderMarkers    []string       `koanf:"header_markers"`
	MinStandingCells int            `koanf:"min_standing_cells"`
	StandingColumns  map[string]int `koanf:"standing_columns"`
	RoundPattern     string         `koanf:"round_pattern"`
	MinMatchCells    int            `koanf:"min_match_cells"`
	MatchColumns     map[string]int `koanf:"match_columns"`
	PlayedSelector   string         `koanf:"played_selector"`
	Placeholders     []string       `koanf:"placeholders"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		APIAddr:        ":8085",
		WSAddr:         ":8086",
		CORSOrigins:    []string{"*"},
		MetricsEnabled: true,
		StateBackend:   "docstore",
		Hasher:         "md5",
		Environment:    "local",
		Environments: map[string]Environment{
			"local": {Driver: "sqlite", DSN: "file:volleysync.db?_pragma=busy_timeout(5000)"},
		},
		Collections: Collections{
			Teams:   store.CollectionTeams,
			Matches: store.CollectionMatches,
			State:   store.CollectionState,
		},
		Precheck: PrecheckConfig{Enabled: false, SampleSize: 4},
		Scheduler: SchedulerConfig{
			Tick:       30 * time.Second,
			RunOnStart: true,
			MaxRetries: 3,
			RetryDelay: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			UserAgent:   "volleysync/1.0 (+results sync)",
			Timeout:     30 * time.Second,
			MinInterval: 2 * time.Second,
		},
	}
}

// Active returns the selected environment.
func (c *Config) Active() (Environment, bool) {
	env, ok := c.Environments[c.Environment]
	return env, ok
}

// Source looks up a configured source by ID.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}
