package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openSQLite(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func backends(t *testing.T) map[string]DocumentStore {
	return map[string]DocumentStore{
		"memory": NewMemoryStore(),
		"sqlite": openSQLite(t),
	}
}

func TestDocumentStoreSetMerge(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "teams", "t1", Document{"name": "Team A", "points": 3}, false); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, "teams", "t1", Document{"points": 6}, true); err != nil {
				t.Fatalf("Set(merge) error = %v", err)
			}

			doc, ok, err := s.Get(ctx, "teams", "t1")
			if err != nil || !ok {
				t.Fatalf("Get() = %v, %v, %v", doc, ok, err)
			}
			if doc["name"] != "Team A" {
				t.Errorf("name = %v, merge dropped an untouched field", doc["name"])
			}
			if doc["points"] != float64(6) {
				t.Errorf("points = %v, want 6", doc["points"])
			}

			if err := s.Set(ctx, "teams", "t1", Document{"points": 9}, false); err != nil {
				t.Fatalf("Set(replace) error = %v", err)
			}
			doc, _, _ = s.Get(ctx, "teams", "t1")
			if _, ok := doc["name"]; ok {
				t.Errorf("replace kept field name: %v", doc)
			}
		})
	}
}

func TestDocumentStoreQueryAndDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed := map[string]Document{
				"b": {"group": "N2F", "round": 1},
				"a": {"group": "N2F", "round": 2},
				"c": {"group": "N3M", "round": 1},
			}
			for id, doc := range seed {
				if err := s.Set(ctx, "matches", id, doc, false); err != nil {
					t.Fatalf("Set(%s) error = %v", id, err)
				}
			}

			got, err := s.Query(ctx, "matches", Filter{Field: "group", Value: "N2F"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
				t.Errorf("Query() = %+v, want [a b]", got)
			}

			got, _ = s.Query(ctx, "matches", Filter{Field: "round", Value: 1})
			if len(got) != 2 {
				t.Errorf("Query(round=1) returned %d docs, want 2", len(got))
			}

			if err := s.Delete(ctx, "matches", "a"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := s.Get(ctx, "matches", "a"); ok {
				t.Error("document a still present after Delete")
			}
			if err := s.Delete(ctx, "matches", "missing"); err != nil {
				t.Errorf("Delete(missing) error = %v", err)
			}
		})
	}
}

func TestDocumentStoreBatchWrite(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Set(ctx, "teams", "old", Document{"x": 1}, false)

			ops := []WriteOp{
				{Kind: OpSet, Collection: "teams", ID: "t1", Data: Document{"x": 1}},
				{Kind: OpSet, Collection: "teams", ID: "t2", Data: Document{"x": 2}},
				{Kind: OpDelete, Collection: "teams", ID: "old"},
			}
			if err := s.BatchWrite(ctx, ops); err != nil {
				t.Fatalf("BatchWrite() error = %v", err)
			}

			all, _ := s.Query(ctx, "teams")
			if len(all) != 2 {
				t.Errorf("after batch: %d docs, want 2", len(all))
			}

			tooMany := make([]WriteOp, MaxBatchSize+1)
			for i := range tooMany {
				tooMany[i] = WriteOp{Kind: OpDelete, Collection: "teams", ID: "x"}
			}
			if err := s.BatchWrite(ctx, tooMany); !errors.Is(err, ErrBatchTooLarge) {
				t.Errorf("BatchWrite(oversized) error = %v, want ErrBatchTooLarge", err)
			}
		})
	}
}

func TestDiffKeepsOnlyChangedDefinedFields(t *testing.T) {
	existing := Document{"status": "final", "homeScore": float64(3), "awayScore": float64(1), "date": "2024-10-05"}
	fresh := Document{"status": "final", "homeScore": 3, "date": "2024-10-06"}

	changed := Diff(existing, fresh)
	if len(changed) != 1 || changed["date"] != "2024-10-06" {
		t.Errorf("Diff() = %v, want only date", changed)
	}
	if _, ok := changed["awayScore"]; ok {
		t.Error("Diff() emitted a key the fresh document left undefined")
	}
}

func TestEqual(t *testing.T) {
	a := Document{"n": 1, "sets": []string{"25-20"}}
	b := Document{"n": float64(1), "sets": []any{"25-20"}}
	if !Equal(a, b) {
		t.Error("Equal() = false for documents with identical normalized content")
	}
	if Equal(a, Document{"n": 2}) {
		t.Error("Equal() = true for different documents")
	}
}

func TestMatchDocumentRoundTrip(t *testing.T) {
	home, away := 3, 1
	m := &Match{
		SourceGroupID: "N2F-A",
		Round:         4,
		Date:          "2024-10-05",
		HomeTeamName:  "Team A",
		AwayTeamName:  "Team B",
		HomeScore:     &home,
		AwayScore:     &away,
		SetDetail:     []string{"25-20", "25-18"},
		Status:        StatusFinal,
	}

	doc, err := Normalize(m.ToDocument())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	got := MatchFromDocument(doc)
	if got.HomeScore == nil || *got.HomeScore != 3 || got.AwayScore == nil || *got.AwayScore != 1 {
		t.Errorf("scores = %v/%v, want 3/1", got.HomeScore, got.AwayScore)
	}
	if got.Time != nil || got.HomeTeamID != nil {
		t.Errorf("undefined optional fields came back set: %+v", got)
	}
	if m.DocumentID() != "N2F-A_4_team-a_team-b" {
		t.Errorf("DocumentID() = %q", m.DocumentID())
	}

	scheduled := &Match{SourceGroupID: "N2F-A", Round: 4, HomeTeamName: "Team A", AwayTeamName: "Team B", Status: StatusScheduled}
	for _, key := range []string{"homeScore", "awayScore", "setDetail", "date"} {
		if _, ok := scheduled.ToDocument()[key]; ok {
			t.Errorf("scheduled match document contains %s", key)
		}
	}
}

func TestScrapeStateDocumentRoundTrip(t *testing.T) {
	now := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	st := ScrapeState{LastHash: "abc", LastChangeDetected: now, TotalChecks: 3, TotalUpdates: 1, ConsecutiveNoChange: 2}

	doc, _ := Normalize(st.ToDocument())
	got := ScrapeStateFromDocument(doc)
	if got.LastHash != "abc" || !got.LastChangeDetected.Equal(now) || got.TotalChecks != 3 || got.ConsecutiveNoChange != 2 {
		t.Errorf("round trip = %+v", got)
	}
	if !got.LastUpdate.IsZero() {
		t.Errorf("LastUpdate = %v, want zero", got.LastUpdate)
	}
}
