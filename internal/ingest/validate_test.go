package ingest

import (
	"errors"
	"testing"

	"github.com/fortuna/volleysync/internal/store"
)

func TestValidateMatchesRejectsDocumentIDCollisions(t *testing.T) {
	src := Source{ID: "N2F-A", GroupID: "g"}
	match := func(round int, home, away string) *store.Match {
		return &store.Match{SourceGroupID: "g", Round: round, HomeTeamName: home, AwayTeamName: away}
	}

	tests := []struct {
		name    string
		matches []*store.Match
		wantErr bool
	}{
		{"distinct", []*store.Match{match(1, "Team A", "Team B"), match(1, "Team C", "Team D")}, false},
		{"same pair other round", []*store.Match{match(1, "Team A", "Team B"), match(2, "Team A", "Team B")}, false},
		{"identical rows", []*store.Match{match(1, "Team A", "Team B"), match(1, "Team A", "Team B")}, true},
		{"punctuation only", []*store.Match{match(1, "Team-A", "Team B"), match(1, "Team A", "Team B")}, true},
		{"accents only", []*store.Match{match(1, "Sète VB", "Team B"), match(1, "Sete VB", "Team B")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMatches(src, tt.matches)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateMatches() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidationFailed) {
				t.Errorf("error %v does not wrap ErrValidationFailed", err)
			}
		})
	}
}

func TestValidateTeamsMinRecords(t *testing.T) {
	src := Source{ID: "N2F-A", GroupID: "g", MinRecords: 2}
	err := validateTeams(src, []*store.Team{{CanonicalName: "Team A", SourceGroupID: "g"}})

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Count != 1 || verr.Min != 2 {
		t.Fatalf("validateTeams() error = %v, want too few records", err)
	}
}
