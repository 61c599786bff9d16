package config

import (
	"regexp"

	"github.com/fortuna/volleysync/internal/ingest"
	"github.com/fortuna/volleysync/internal/ingest/extract"
)

// IngestSources converts every configured source. Call after Validate.
func (c *Config) IngestSources() []ingest.Source {
	out := make([]ingest.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, s.Ingest())
	}
	return out
}

// Ingest builds the job configuration of one source.
func (s SourceConfig) Ingest() ingest.Source {
	src := ingest.Source{
		ID:         s.ID,
		GroupID:    s.GroupID,
		URL:        s.URL,
		MatchesURL: s.MatchesURL,
		Kind:       ingest.Kind(s.Kind),
		Encoding:   s.Encoding,
		Render:     ingest.Render(s.Render),
		Layout:     s.Layout.build(),
		MinRecords: s.MinRecords,
		Strict:     s.Strict,
		Interval:   s.Interval,
	}
	if src.Kind == "" {
		src.Kind = ingest.KindBoth
	}
	if src.Render == "" {
		src.Render = ingest.RenderHTTP
	}
	return src
}

func (l LayoutConfig) build() extract.Layout {
	layout := extract.DefaultLayout()
	if len(l.HeaderMarkers) > 0 {
		layout.HeaderMarkers = l.HeaderMarkers
	}
	if l.MinStandingCells > 0 {
		layout.MinStandingCells = l.MinStandingCells
	}
	if l.RoundPattern != "" {
		layout.RoundPattern = regexp.MustCompile(l.RoundPattern)
	}
	if l.MinMatchCells > 0 {
		layout.MinMatchCells = l.MinMatchCells
	}
	if l.PlayedSelector != "" {
		layout.PlayedSelector = l.PlayedSelector
	}
	if l.Placeholders != nil {
		layout.Placeholders = l.Placeholders
	}

	st := &layout.Standing
	standing := map[string]*int{
		"rank": &st.Rank, "name": &st.Name, "points": &st.Points, "played": &st.Played,
		"won": &st.Won, "lost": &st.Lost, "sets_for": &st.SetsFor, "sets_against": &st.SetsAgainst,
	}
	for key, idx := range l.StandingColumns {
		if p, ok := standing[key]; ok {
			*p = idx
		}
	}

	mc := &layout.Match
	match := map[string]*int{
		"date": &mc.Date, "time": &mc.Time, "home": &mc.Home, "away": &mc.Away,
		"home_score": &mc.HomeScore, "away_score": &mc.AwayScore, "set_detail": &mc.SetDetail,
	}
	for key, idx := range l.MatchColumns {
		if p, ok := match[key]; ok {
			*p = idx
		}
	}
	return layout
}
