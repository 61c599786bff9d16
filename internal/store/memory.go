package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process DocumentStore. Documents are normalized on
// write so reads behave like the SQL backend.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

// Get returns a copy of the document with the given ID.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return Merge(doc, nil), true, nil
}

// Query returns every document matching filters, ordered by ID.
func (m *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Snapshot
	for _, id := range ids {
		if matches(docs[id], filters) {
			out = append(out, Snapshot{ID: id, Data: Merge(docs[id], nil)})
		}
	}
	return out, nil
}

// Set writes data under id, merging into an existing document when merge is set.
func (m *MemoryStore) Set(ctx context.Context, collection, id string, data Document, merge bool) error {
	doc, err := Normalize(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, doc, merge)
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

// BatchWrite applies ops atomically.
func (m *MemoryStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if err := validateBatch(ops); err != nil {
		return err
	}

	normalized := make([]Document, len(ops))
	for i, op := range ops {
		if op.Kind != OpSet {
			continue
		}
		doc, err := Normalize(op.Data)
		if err != nil {
			return err
		}
		normalized[i] = doc
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, op := range ops {
		switch op.Kind {
		case OpSet:
			m.setLocked(op.Collection, op.ID, normalized[i], op.Merge)
		case OpDelete:
			delete(m.collections[op.Collection], op.ID)
		}
	}
	return nil
}

func (m *MemoryStore) setLocked(collection, id string, doc Document, merge bool) {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		m.collections[collection] = docs
	}
	if existing, ok := docs[id]; ok && merge {
		doc = Merge(existing, doc)
	}
	docs[id] = doc
}
