package reconciliation

import (
	"context"
	"fmt"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/store"
)

// CreateResult counts the outcome of an explicit creation run.
type CreateResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// CreateTeams stores teams that do not exist yet in groupID and assigns
// their IDs. Reconcile never creates records; this is the only path that
// does.
func (e *Engine) CreateTeams(ctx context.Context, groupID string, teams []*store.Team) (CreateResult, error) {
	var res CreateResult
	for _, t := range teams {
		_, _, found, err := e.teams.FindByName(ctx, groupID, t.CanonicalName)
		if err != nil {
			return res, err
		}
		if found {
			res.Existing++
			continue
		}

		team := *t
		team.ID = ""
		team.SourceGroupID = groupID
		if err := e.teams.Create(ctx, &team); err != nil {
			return res, fmt.Errorf("creating teams for %s: %w", groupID, err)
		}
		t.ID = team.ID
		res.Created++
		e.log.Info("Team created", logger.Fields{"group": groupID, "team": team.CanonicalName, "id": team.ID})
	}
	return res, nil
}

// CreateMatches stores fixtures missing from groupID.
func (e *Engine) CreateMatches(ctx context.Context, groupID string, matches []*store.Match) (CreateResult, error) {
	var res CreateResult
	for _, m := range matches {
		match := *m
		match.SourceGroupID = groupID

		_, _, found, err := e.matches.Find(ctx, &match)
		if err != nil {
			return res, err
		}
		if found {
			res.Existing++
			continue
		}
		if err := e.matches.Create(ctx, &match); err != nil {
			return res, fmt.Errorf("creating matches for %s: %w", groupID, err)
		}
		res.Created++
	}
	e.log.Info("Matches created", logger.Fields{"group": groupID, "created": res.Created, "existing": res.Existing})
	return res, nil
}
