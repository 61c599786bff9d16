package config

import (
	"regexp"
	"slices"
	"strings"

	"github.com/fortuna/volleysync/internal/ingest"
	"github.com/fortuna/volleysync/internal/ingest/fetch"
	"github.com/fortuna/volleysync/internal/logger"
)

var (
	standingKeys = []string{"rank", "name", "points", "played", "won", "lost", "sets_for", "sets_against"}
	matchKeys    = []string{"date", "time", "home", "away", "home_score", "away_score", "set_detail"}
)

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch logger.Level(strings.ToUpper(c.LogLevel)) {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		return invalid("unknown log_level %q", c.LogLevel)
	}

	switch c.StateBackend {
	case "docstore":
	case "redis":
		if c.RedisURL == "" {
			return invalid("state_backend redis requires redis_url")
		}
	default:
		return invalid("unknown state_backend %q", c.StateBackend)
	}

	switch c.Hasher {
	case "", "md5", "xxhash":
	default:
		return invalid("unknown hasher %q", c.Hasher)
	}

	for name, env := range c.Environments {
		switch env.Driver {
		case "postgres", "sqlite":
			if env.DSN == "" {
				return invalid("environment %s: dsn must not be empty", name)
			}
		case DriverMemory:
		default:
			return invalid("environment %s: unknown driver %q", name, env.Driver)
		}
	}
	if _, ok := c.Active(); !ok {
		return invalid("environment %q is not defined", c.Environment)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return invalid("sources[%d]: id must not be empty", i)
		}
		if seen[s.ID] {
			return invalid("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s SourceConfig) validate() error {
	if s.URL == "" {
		return invalid("source %s: url must not be empty", s.ID)
	}
	switch ingest.Kind(s.Kind) {
	case "", ingest.KindStandings, ingest.KindMatches, ingest.KindBoth:
	default:
		return invalid("source %s: unknown kind %q", s.ID, s.Kind)
	}
	switch ingest.Render(s.Render) {
	case "", ingest.RenderHTTP, ingest.RenderBrowser:
	default:
		return invalid("source %s: unknown render %q", s.ID, s.Render)
	}
	if !fetch.ValidEncoding(s.Encoding) {
		return invalid("source %s: unknown encoding %q", s.ID, s.Encoding)
	}
	if s.MinRecords < 0 {
		return invalid("source %s: min_records must not be negative", s.ID)
	}
	if s.Layout.RoundPattern != "" {
		re, err := regexp.Compile(s.Layout.RoundPattern)
		if err != nil {
			return invalid("source %s: round_pattern: %v", s.ID, err)
		}
		if re.NumSubexp() < 1 {
			return invalid("source %s: round_pattern needs a capture group", s.ID)
		}
	}
	if err := checkColumns(s.ID, "standing_columns", s.Layout.StandingColumns, standingKeys); err != nil {
		return err
	}
	return checkColumns(s.ID, "match_columns", s.Layout.MatchColumns, matchKeys)
}

func checkColumns(id, field string, cols map[string]int, allowed []string) error {
	for key := range cols {
		if !slices.Contains(allowed, key) {
			return invalid("source %s: %s: unknown column %q", id, field, key)
		}
	}
	return nil
}
