package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// MaxBatchSize is the upper bound on operations in one BatchWrite call.
const MaxBatchSize = 500

// ErrBatchTooLarge is returned by BatchWrite when ops exceed MaxBatchSize.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// Document is a schemaless record as held by a DocumentStore.
type Document map[string]any

// Snapshot is a document together with its ID.
type Snapshot struct {
	ID   string
	Data Document
}

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// OpKind identifies a batched write operation.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpDelete OpKind = "delete"
)

// WriteOp is one operation inside a BatchWrite.
type WriteOp struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       Document
	Merge      bool
}

// DocumentStore is the persistence boundary used by every writer in the
// service. Set with merge=true leaves fields absent from data untouched.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	Set(ctx context.Context, collection, id string, data Document, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// Normalize round-trips a document through JSON so that values compare
// the same way regardless of which backend produced them.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	doc, err := Normalize(Document{"v": v})
	if err != nil {
		return v
	}
	return doc["v"]
}

// Equal reports whether two documents hold the same normalized content.
func Equal(a, b Document) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// Diff returns the fields of fresh whose values differ from existing.
// Keys absent from fresh are never part of the result.
func Diff(existing, fresh Document) Document {
	changed := Document{}
	for key, value := range fresh {
		old, ok := existing[key]
		if !ok || !reflect.DeepEqual(normalizeValue(old), normalizeValue(value)) {
			changed[key] = value
		}
	}
	return changed
}

// Merge applies patch over base and returns the result.
func Merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !reflect.DeepEqual(normalizeValue(v), normalizeValue(f.Value)) {
			return false
		}
	}
	return true
}

func validateBatch(ops []WriteOp) error {
	if len(ops) > MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ops), MaxBatchSize)
	}
	for _, op := range ops {
		if op.Kind != OpSet && op.Kind != OpDelete {
			return fmt.Errorf("unknown batch op %q", op.Kind)
		}
	}
	return nil
}
