package ingest

import (
	"time"

	"github.com/fortuna/volleysync/internal/ingest/extract"
)

// Kind selects which sections a source carries.
type Kind string

const (
	KindStandings Kind = "standings"
	KindMatches   Kind = "matches"
	KindBoth      Kind = "both"
)

// Render selects the fetcher used for a source.
type Render string

const (
	RenderHTTP    Render = "http"
	RenderBrowser Render = "browser"
)

// Section names, also used as gate key suffixes.
const (
	SectionStandings = "standings"
	SectionMatches   = "matches"
)

// Source is the per-league configuration record driving one job.
type Source struct {
	ID         string
	GroupID    string
	URL        string
	MatchesURL string
	Kind       Kind
	Encoding   string
	Render     Render
	Layout     extract.Layout
	MinRecords int
	Strict     bool
	Interval   time.Duration
}

// Group returns GroupID, falling back to ID.
func (s Source) Group() string {
	if s.GroupID != "" {
		return s.GroupID
	}
	return s.ID
}

// Sections lists the sections to process, standings first.
func (s Source) Sections() []string {
	switch s.Kind {
	case KindStandings:
		return []string{SectionStandings}
	case KindMatches:
		return []string{SectionMatches}
	default:
		return []string{SectionStandings, SectionMatches}
	}
}

// SectionURL returns the page holding section.
func (s Source) SectionURL(section string) string {
	if section == SectionMatches && s.MatchesURL != "" {
		return s.MatchesURL
	}
	return s.URL
}
