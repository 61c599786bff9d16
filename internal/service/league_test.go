package service

import (
	"context"
	"testing"

	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/store/repository"
)

func ptr[T any](v T) *T { return &v }

func seedLeague(t *testing.T) *LeagueService {
	t.Helper()
	ctx := context.Background()
	docs := store.NewMemoryStore()
	teams := repository.NewTeamRepository(docs, "")
	matches := repository.NewMatchRepository(docs, "")

	for _, team := range []*store.Team{
		{ID: "t-b", CanonicalName: "TEAM B", SourceGroupID: "n2f-a", Rank: 2, Points: 6},
		{ID: "t-a", CanonicalName: "TEAM A", SourceGroupID: "n2f-a", Rank: 1, Points: 9},
		{ID: "t-c", CanonicalName: "TEAM C", SourceGroupID: "n2f-a", Rank: 3},
		{ID: "t-x", CanonicalName: "OTHER", SourceGroupID: "n3-b", Rank: 1},
	} {
		if err := teams.Create(ctx, team); err != nil {
			t.Fatal(err)
		}
	}
	for _, m := range []*store.Match{
		{SourceGroupID: "n2f-a", Round: 5, Date: "12/10/2024", HomeTeamName: "TEAM C", HomeTeamID: ptr("t-c"), AwayTeamName: "TEAM A", AwayTeamID: ptr("t-a"), Status: store.StatusScheduled},
		{SourceGroupID: "n2f-a", Round: 4, Date: "05/10/2024", HomeTeamName: "TEAM A", HomeTeamID: ptr("t-a"), AwayTeamName: "TEAM B", AwayTeamID: ptr("t-b"), HomeScore: ptr(3), AwayScore: ptr(1), Status: store.StatusFinal},
		{SourceGroupID: "n2f-a", Round: 4, Date: "05/10/2024", HomeTeamName: "TEAM C", HomeTeamID: ptr("t-c"), AwayTeamName: "A DEFINIR", Status: store.StatusScheduled},
	} {
		if err := matches.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	return NewLeagueService(teams, matches)
}

func TestStandingsOrderedByRank(t *testing.T) {
	svc := seedLeague(t)
	got, err := svc.Standings(context.Background(), "n2f-a")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, team := range got {
		names = append(names, team.CanonicalName)
	}
	if len(names) != 3 || names[0] != "TEAM A" || names[1] != "TEAM B" || names[2] != "TEAM C" {
		t.Errorf("standings = %v", names)
	}
}

func TestMatchesFilterAndEnrich(t *testing.T) {
	svc := seedLeague(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter MatchFilter
		want   int
	}{
		{"all", MatchFilter{}, 3},
		{"round", MatchFilter{Round: 4}, 2},
		{"final", MatchFilter{Status: store.StatusFinal}, 1},
		{"team", MatchFilter{TeamID: "t-a"}, 2},
		{"unknown team", MatchFilter{TeamID: "nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Matches(ctx, "n2f-a", tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	all, _ := svc.Matches(ctx, "n2f-a", MatchFilter{})
	if all[0].Match.Round != 4 || all[2].Match.Round != 5 {
		t.Errorf("not in round order: %d, %d", all[0].Match.Round, all[2].Match.Round)
	}
	first := all[0]
	if first.HomeTeam == nil || first.HomeTeam.ID != "t-a" || first.AwayTeam.ID != "t-b" {
		t.Errorf("first match not enriched: %+v", first)
	}
	if placeholder := all[1]; placeholder.AwayTeam != nil {
		t.Errorf("placeholder opponent resolved to %+v", placeholder.AwayTeam)
	}
}

func TestSummary(t *testing.T) {
	sum, err := seedLeague(t).Summary(context.Background(), "n2f-a")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Teams != 3 || sum.Played != 1 || sum.Scheduled != 2 || sum.LastRound != 4 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Leader == nil || sum.Leader.CanonicalName != "TEAM A" {
		t.Errorf("leader = %+v", sum.Leader)
	}
}
