package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/textnorm"
	"github.com/google/uuid"
)

// TeamRepository handles team data access
type TeamRepository struct {
	docs       store.DocumentStore
	collection string
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(docs store.DocumentStore, collection string) *TeamRepository {
	if collection == "" {
		collection = store.CollectionTeams
	}
	return &TeamRepository{docs: docs, collection: collection}
}

// Collection returns the collection the repository writes to
func (r *TeamRepository) Collection() string {
	return r.collection
}

// GetByGroup returns all teams of a source group, ordered by ID
func (r *TeamRepository) GetByGroup(ctx context.Context, groupID string) ([]*store.Team, error) {
	snaps, err := r.docs.Query(ctx, r.collection, store.Filter{Field: "sourceGroupId", Value: groupID})
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", err)
	}

	teams := make([]*store.Team, 0, len(snaps))
	for _, snap := range snaps {
		teams = append(teams, store.TeamFromDocument(snap.ID, snap.Data))
	}
	return teams, nil
}

// FindByName looks a team up by its natural key.
// Returns the ID and raw document, or ok=false.
func (r *TeamRepository) FindByName(ctx context.Context, groupID, name string) (string, store.Document, bool, error) {
	snaps, err := r.docs.Query(ctx, r.collection,
		store.Filter{Field: "sourceGroupId", Value: groupID},
		store.Filter{Field: "normalizedName", Value: textnorm.NormalizeTeamName(name)},
	)
	if err != nil {
		return "", nil, false, fmt.Errorf("querying team %q: %w", name, err)
	}
	if len(snaps) == 0 {
		return "", nil, false, nil
	}
	return snaps[0].ID, snaps[0].Data, true, nil
}

// Create stores a new team, assigning it an ID when it has none
func (r *TeamRepository) Create(ctx context.Context, team *store.Team) error {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if err := r.docs.Set(ctx, r.collection, team.ID, team.ToDocument(), false); err != nil {
		return fmt.Errorf("creating team %s: %w", team.CanonicalName, err)
	}
	return nil
}

// Update merges fields into an existing team
func (r *TeamRepository) Update(ctx context.Context, id string, fields store.Document) error {
	if err := r.docs.Set(ctx, r.collection, id, fields, true); err != nil {
		return fmt.Errorf("updating team %s: %w", id, err)
	}
	return nil
}
