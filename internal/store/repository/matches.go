package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/volleysync/internal/store"
)

// MatchRepository handles match data access
type MatchRepository struct {
	docs       store.DocumentStore
	collection string
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(docs store.DocumentStore, collection string) *MatchRepository {
	if collection == "" {
		collection = store.CollectionMatches
	}
	return &MatchRepository{docs: docs, collection: collection}
}

// Collection returns the collection the repository writes to
func (r *MatchRepository) Collection() string {
	return r.collection
}

// GetByGroup returns all matches for a source group
func (r *MatchRepository) GetByGroup(ctx context.Context, groupID string) ([]*store.Match, error) {
	snaps, err := r.docs.Query(ctx, r.collection, store.Filter{Field: "sourceGroupId", Value: groupID})
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}

	matches := make([]*store.Match, 0, len(snaps))
	for _, snap := range snaps {
		matches = append(matches, store.MatchFromDocument(snap.Data))
	}
	return matches, nil
}

// Find looks a match up by its natural key
func (r *MatchRepository) Find(ctx context.Context, m *store.Match) (string, store.Document, bool, error) {
	id := m.DocumentID()
	doc, ok, err := r.docs.Get(ctx, r.collection, id)
	if err != nil {
		return "", nil, false, fmt.Errorf("querying match %s: %w", m.NaturalKey(), err)
	}
	return id, doc, ok, nil
}

// Create stores a new match under its natural-key ID
func (r *MatchRepository) Create(ctx context.Context, m *store.Match) error {
	if err := r.docs.Set(ctx, r.collection, m.DocumentID(), m.ToDocument(), false); err != nil {
		return fmt.Errorf("creating match %s: %w", m.NaturalKey(), err)
	}
	return nil
}

// Update merges fields into an existing match
func (r *MatchRepository) Update(ctx context.Context, id string, fields store.Document) error {
	if err := r.docs.Set(ctx, r.collection, id, fields, true); err != nil {
		return fmt.Errorf("updating match %s: %w", id, err)
	}
	return nil
}
