// Package service provides read-side views over the synced collections.
package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/store/repository"
)

// LeagueService answers standings and fixture queries for one group.
type LeagueService struct {
	teamRepo  *repository.TeamRepository
	matchRepo *repository.MatchRepository
}

// NewLeagueService creates a new league service
func NewLeagueService(teams *repository.TeamRepository, matches *repository.MatchRepository) *LeagueService {
	return &LeagueService{teamRepo: teams, matchRepo: matches}
}

// MatchFilter narrows Matches. Zero fields match everything.
type MatchFilter struct {
	Round  int
	Status store.MatchStatus
	TeamID string
}

func (f MatchFilter) keep(m *store.Match) bool {
	if f.Round != 0 && m.Round != f.Round {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.TeamID != "" && !plays(m, f.TeamID) {
		return false
	}
	return true
}

func plays(m *store.Match, teamID string) bool {
	return (m.HomeTeamID != nil && *m.HomeTeamID == teamID) ||
		(m.AwayTeamID != nil && *m.AwayTeamID == teamID)
}

// MatchSummary contains match details with team information
type MatchSummary struct {
	ID       string       `json:"id"`
	Match    *store.Match `json:"match"`
	HomeTeam *store.Team  `json:"homeTeam,omitempty"`
	AwayTeam *store.Team  `json:"awayTeam,omitempty"`
}

// GroupSummary is a compact overview of one group.
type GroupSummary struct {
	GroupID   string      `json:"groupId"`
	Teams     int         `json:"teams"`
	Played    int         `json:"played"`
	Scheduled int         `json:"scheduled"`
	LastRound int         `json:"lastRound"`
	Leader    *store.Team `json:"leader,omitempty"`
}

// Standings returns the teams of a group ordered by rank.
func (s *LeagueService) Standings(ctx context.Context, groupID string) ([]*store.Team, error) {
	teams, err := s.teamRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetching standings: %w", err)
	}
	slices.SortFunc(teams, func(a, b *store.Team) int {
		return cmp.Or(cmp.Compare(a.Rank, b.Rank), cmp.Compare(a.CanonicalName, b.CanonicalName))
	})
	return teams, nil
}

// Matches returns the fixtures of a group in round order, enriched with
// the resolved teams.
func (s *LeagueService) Matches(ctx context.Context, groupID string, f MatchFilter) ([]*MatchSummary, error) {
	matches, err := s.matchRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetching matches: %w", err)
	}
	teams, err := s.teamRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetching teams: %w", err)
	}

	byID := make(map[string]*store.Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}

	summaries := make([]*MatchSummary, 0, len(matches))
	for _, m := range matches {
		if !f.keep(m) {
			continue
		}
		summaries = append(summaries, &MatchSummary{
			ID:       m.DocumentID(),
			Match:    m,
			HomeTeam: lookup(byID, m.HomeTeamID),
			AwayTeam: lookup(byID, m.AwayTeamID),
		})
	}
	slices.SortFunc(summaries, func(a, b *MatchSummary) int {
		return cmp.Or(
			cmp.Compare(a.Match.Round, b.Match.Round),
			cmp.Compare(a.Match.Date, b.Match.Date),
			cmp.Compare(a.Match.HomeTeamName, b.Match.HomeTeamName),
		)
	})
	return summaries, nil
}

// TeamSchedule returns every match of one team.
func (s *LeagueService) TeamSchedule(ctx context.Context, groupID, teamID string) ([]*MatchSummary, error) {
	return s.Matches(ctx, groupID, MatchFilter{TeamID: teamID})
}

// Summary counts played and scheduled matches and picks the leader.
func (s *LeagueService) Summary(ctx context.Context, groupID string) (*GroupSummary, error) {
	standings, err := s.Standings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetching matches: %w", err)
	}

	sum := &GroupSummary{GroupID: groupID, Teams: len(standings)}
	if len(standings) > 0 {
		sum.Leader = standings[0]
	}
	for _, m := range matches {
		switch m.Status {
		case store.StatusFinal:
			sum.Played++
			sum.LastRound = max(sum.LastRound, m.Round)
		default:
			sum.Scheduled++
		}
	}
	return sum, nil
}

func lookup(byID map[string]*store.Team, id *string) *store.Team {
	if id == nil {
		return nil
	}
	return byID[*id]
}
