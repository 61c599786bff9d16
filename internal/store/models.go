package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fortuna/volleysync/internal/textnorm"
)

// Default collection names
const (
	CollectionTeams   = "teams"
	CollectionMatches = "matches"
	CollectionState   = "scrape_state"
)

// MatchStatus is the lifecycle state of a match. Scheduled may become
// Final, never the reverse.
type MatchStatus string

const (
	StatusScheduled MatchStatus = "scheduled"
	StatusFinal     MatchStatus = "final"
)

// Team represents a club's standing within one source group
type Team struct {
	ID            string  `json:"id"`
	CanonicalName string  `json:"canonicalName"`
	LogoRef       *string `json:"logoRef,omitempty"`
	SourceGroupID string  `json:"sourceGroupId"`
	Rank          int     `json:"rank"`
	Points        int     `json:"points"`
	Played        int     `json:"played"`
	Won           int     `json:"won"`
	Lost          int     `json:"lost"`
	SetsFor       int     `json:"setsFor"`
	SetsAgainst   int     `json:"setsAgainst"`
}

// NaturalKey identifies a team independent of its storage ID.
func (t *Team) NaturalKey() string {
	return t.SourceGroupID + "/" + textnorm.NormalizeTeamName(t.CanonicalName)
}

// ToDocument renders the team as a store document. Empty ID and nil
// LogoRef are left out.
func (t *Team) ToDocument() Document {
	doc := Document{
		"canonicalName":  t.CanonicalName,
		"normalizedName": textnorm.NormalizeTeamName(t.CanonicalName),
		"sourceGroupId":  t.SourceGroupID,
		"rank":           t.Rank,
		"points":         t.Points,
		"played":         t.Played,
		"won":            t.Won,
		"lost":           t.Lost,
		"setsFor":        t.SetsFor,
		"setsAgainst":    t.SetsAgainst,
	}
	if t.ID != "" {
		doc["id"] = t.ID
	}
	if t.LogoRef != nil {
		doc["logoRef"] = *t.LogoRef
	}
	return doc
}

// TeamFromDocument decodes a stored team.
func TeamFromDocument(id string, doc Document) *Team {
	t := &Team{
		ID:            id,
		CanonicalName: stringField(doc, "canonicalName"),
		SourceGroupID: stringField(doc, "sourceGroupId"),
		Rank:          intField(doc, "rank"),
		Points:        intField(doc, "points"),
		Played:        intField(doc, "played"),
		Won:           intField(doc, "won"),
		Lost:          intField(doc, "lost"),
		SetsFor:       intField(doc, "setsFor"),
		SetsAgainst:   intField(doc, "setsAgainst"),
	}
	if v, ok := doc["logoRef"].(string); ok {
		t.LogoRef = &v
	}
	return t
}

// Match represents one fixture inside a source group
type Match struct {
	SourceGroupID string      `json:"sourceGroupId"`
	Round         int         `json:"round"`
	Date          string      `json:"date"`
	Time          *string     `json:"time,omitempty"`
	HomeTeamName  string      `json:"homeTeamName"`
	HomeTeamID    *string     `json:"homeTeamId,omitempty"`
	AwayTeamName  string      `json:"awayTeamName"`
	AwayTeamID    *string     `json:"awayTeamId,omitempty"`
	HomeScore     *int        `json:"homeScore,omitempty"`
	AwayScore     *int        `json:"awayScore,omitempty"`
	SetDetail     []string    `json:"setDetail,omitempty"`
	Status        MatchStatus `json:"status"`
}

// NaturalKey is (group, round, home, away) joined for display.
func (m *Match) NaturalKey() string {
	return fmt.Sprintf("%s/%d/%s/%s", m.SourceGroupID, m.Round, m.HomeTeamName, m.AwayTeamName)
}

// DocumentID derives the stable storage ID from the natural key.
func (m *Match) DocumentID() string {
	return fmt.Sprintf("%s_%d_%s_%s", m.SourceGroupID, m.Round, textnorm.Slug(m.HomeTeamName), textnorm.Slug(m.AwayTeamName))
}

// ToDocument renders only the fields the match actually defines.
func (m *Match) ToDocument() Document {
	doc := Document{
		"sourceGroupId": m.SourceGroupID,
		"round":         m.Round,
		"homeTeamName":  m.HomeTeamName,
		"awayTeamName":  m.AwayTeamName,
		"status":        string(m.Status),
	}
	if m.Date != "" {
		doc["date"] = m.Date
	}
	if m.Time != nil {
		doc["time"] = *m.Time
	}
	if m.HomeTeamID != nil {
		doc["homeTeamId"] = *m.HomeTeamID
	}
	if m.AwayTeamID != nil {
		doc["awayTeamId"] = *m.AwayTeamID
	}
	if m.HomeScore != nil {
		doc["homeScore"] = *m.HomeScore
	}
	if m.AwayScore != nil {
		doc["awayScore"] = *m.AwayScore
	}
	if m.SetDetail != nil {
		sets := make([]any, len(m.SetDetail))
		for i, s := range m.SetDetail {
			sets[i] = s
		}
		doc["setDetail"] = sets
	}
	return doc
}

// MatchFromDocument decodes a stored match.
func MatchFromDocument(doc Document) *Match {
	m := &Match{
		SourceGroupID: stringField(doc, "sourceGroupId"),
		Round:         intField(doc, "round"),
		Date:          stringField(doc, "date"),
		HomeTeamName:  stringField(doc, "homeTeamName"),
		AwayTeamName:  stringField(doc, "awayTeamName"),
		Status:        MatchStatus(stringField(doc, "status")),
	}
	if v, ok := doc["time"].(string); ok {
		m.Time = &v
	}
	if v, ok := doc["homeTeamId"].(string); ok {
		m.HomeTeamID = &v
	}
	if v, ok := doc["awayTeamId"].(string); ok {
		m.AwayTeamID = &v
	}
	if _, ok := doc["homeScore"]; ok {
		v := intField(doc, "homeScore")
		m.HomeScore = &v
	}
	if _, ok := doc["awayScore"]; ok {
		v := intField(doc, "awayScore")
		m.AwayScore = &v
	}
	if sets, ok := doc["setDetail"].([]any); ok {
		m.SetDetail = make([]string, 0, len(sets))
		for _, s := range sets {
			if str, ok := s.(string); ok {
				m.SetDetail = append(m.SetDetail, str)
			}
		}
	}
	return m
}

// ScrapeState tracks change detection for one source key
type ScrapeState struct {
	LastHash            string    `json:"lastHash"`
	LastUpdate          time.Time `json:"lastUpdate"`
	LastChangeDetected  time.Time `json:"lastChangeDetected"`
	ConsecutiveNoChange int       `json:"consecutiveNoChange"`
	TotalChecks         int       `json:"totalChecks"`
	TotalUpdates        int       `json:"totalUpdates"`
}

// ToDocument renders the state; zero timestamps are omitted.
func (s *ScrapeState) ToDocument() Document {
	doc := Document{
		"lastHash":            s.LastHash,
		"consecutiveNoChange": s.ConsecutiveNoChange,
		"totalChecks":         s.TotalChecks,
		"totalUpdates":        s.TotalUpdates,
	}
	if !s.LastUpdate.IsZero() {
		doc["lastUpdate"] = s.LastUpdate.UTC().Format(time.RFC3339Nano)
	}
	if !s.LastChangeDetected.IsZero() {
		doc["lastChangeDetected"] = s.LastChangeDetected.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

// ScrapeStateFromDocument decodes a stored state.
func ScrapeStateFromDocument(doc Document) ScrapeState {
	return ScrapeState{
		LastHash:            stringField(doc, "lastHash"),
		LastUpdate:          timeField(doc, "lastUpdate"),
		LastChangeDetected:  timeField(doc, "lastChangeDetected"),
		ConsecutiveNoChange: intField(doc, "consecutiveNoChange"),
		TotalChecks:         intField(doc, "totalChecks"),
		TotalUpdates:        intField(doc, "totalUpdates"),
	}
}

func stringField(doc Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func intField(doc Document, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func timeField(doc Document, key string) time.Time {
	s, ok := doc[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
