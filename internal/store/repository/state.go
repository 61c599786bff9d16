package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/volleysync/internal/store"
)

// StateRepository persists scrape state, one document per source key
type StateRepository struct {
	docs       store.DocumentStore
	collection string
}

// NewStateRepository creates a new state repository
func NewStateRepository(docs store.DocumentStore, collection string) *StateRepository {
	if collection == "" {
		collection = store.CollectionState
	}
	return &StateRepository{docs: docs, collection: collection}
}

// LoadState returns the stored state for key, or ok=false
func (r *StateRepository) LoadState(ctx context.Context, key string) (store.ScrapeState, bool, error) {
	doc, ok, err := r.docs.Get(ctx, r.collection, key)
	if err != nil {
		return store.ScrapeState{}, false, fmt.Errorf("loading state %s: %w", key, err)
	}
	if !ok {
		return store.ScrapeState{}, false, nil
	}
	return store.ScrapeStateFromDocument(doc), true, nil
}

// SaveState replaces the stored state for key
func (r *StateRepository) SaveState(ctx context.Context, key string, state store.ScrapeState) error {
	if err := r.docs.Set(ctx, r.collection, key, state.ToDocument(), false); err != nil {
		return fmt.Errorf("saving state %s: %w", key, err)
	}
	return nil
}
