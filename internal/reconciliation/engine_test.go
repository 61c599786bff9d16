package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/store/repository"
)

// recordingStore wraps a MemoryStore, records every Set and fails Sets
// whose ID is listed in failIDs.
type recordingStore struct {
	*store.MemoryStore
	failIDs map[string]bool
	writes  []store.Document
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore(), failIDs: map[string]bool{}}
}

func (s *recordingStore) Set(ctx context.Context, collection, id string, data store.Document, merge bool) error {
	if s.failIDs[id] {
		return errors.New("write quota exceeded")
	}
	s.writes = append(s.writes, data)
	return s.MemoryStore.Set(ctx, collection, id, data, merge)
}

type fixture struct {
	docs    *recordingStore
	teams   *repository.TeamRepository
	matches *repository.MatchRepository
	engine  *Engine
	events  *logger.Capture
}

func newFixture() *fixture {
	docs := newRecordingStore()
	events := logger.NewCapture()
	teams := repository.NewTeamRepository(docs, "")
	matches := repository.NewMatchRepository(docs, "")
	return &fixture{
		docs:    docs,
		teams:   teams,
		matches: matches,
		engine:  NewEngine(teams, matches, logger.New(logger.LevelDebug, events)),
		events:  events,
	}
}

func intp(n int) *int { return &n }

func scheduled(round int, home, away string) *store.Match {
	return &store.Match{Round: round, Date: "2024-10-05", HomeTeamName: home, AwayTeamName: away, Status: store.StatusScheduled}
}

func final(round int, home, away string, h, a int) *store.Match {
	m := scheduled(round, home, away)
	m.Status = store.StatusFinal
	m.HomeScore, m.AwayScore = intp(h), intp(a)
	m.SetDetail = []string{"25-20", "25-18", "20-25", "25-22"}
	return m
}

func (f *fixture) seedMatches(t *testing.T, group string, ms ...*store.Match) {
	t.Helper()
	if _, err := f.engine.CreateMatches(context.Background(), group, ms); err != nil {
		t.Fatalf("CreateMatches() error = %v", err)
	}
	f.docs.writes = nil
}

func TestReconcileMatchScheduledToFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMatches(t, "N2F-A", scheduled(4, "Team A", "Team B"))

	res, err := f.engine.ReconcileMatches(ctx, "N2F-A", []*store.Match{final(4, "Team A", "Team B", 3, 1)})
	if err != nil {
		t.Fatalf("ReconcileMatches() error = %v", err)
	}
	if res.Updated != 1 || res.NotFound != 0 {
		t.Errorf("result = %+v, want one update", res)
	}

	all, _ := f.matches.GetByGroup(ctx, "N2F-A")
	if len(all) != 1 {
		t.Fatalf("matches in store = %d, want 1 (update, not insert)", len(all))
	}
	got := all[0]
	if got.Status != store.StatusFinal || *got.HomeScore != 3 || *got.AwayScore != 1 {
		t.Errorf("stored match = %+v", got)
	}
}

func TestReconcileNeverNullsPersistedScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMatches(t, "N2F-A", final(4, "Team A", "Team B", 3, 1))

	res, err := f.engine.ReconcileMatches(ctx, "N2F-A", []*store.Match{scheduled(4, "Team A", "Team B")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged != 1 || res.Updated != 0 {
		t.Errorf("result = %+v, want unchanged", res)
	}
	if len(f.docs.writes) != 0 {
		t.Errorf("writes = %v, want none", f.docs.writes)
	}

	all, _ := f.matches.GetByGroup(ctx, "N2F-A")
	if all[0].Status != store.StatusFinal || all[0].HomeScore == nil {
		t.Errorf("final match regressed: %+v", all[0])
	}
}

func TestReconcileWritesOnlyDefinedChangedFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMatches(t, "N2F-A", final(4, "Team A", "Team B", 3, 1))

	fresh := scheduled(4, "Team A", "Team B")
	fresh.Date = "2024-10-06"
	if _, err := f.engine.ReconcileMatches(ctx, "N2F-A", []*store.Match{fresh}); err != nil {
		t.Fatal(err)
	}

	if len(f.docs.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(f.docs.writes))
	}
	w := f.docs.writes[0]
	if len(w) != 1 || w["date"] != "2024-10-06" {
		t.Errorf("write = %v, want only date", w)
	}
}

func TestReconcileBatchFailureIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var seeds, fresh []*store.Match
	for i := 1; i <= 10; i++ {
		home, away := fmt.Sprintf("Home %02d", i), fmt.Sprintf("Away %02d", i)
		seeds = append(seeds, scheduled(1, home, away))
		fresh = append(fresh, final(1, home, away, 3, i%3))
	}
	f.seedMatches(t, "N2F-A", seeds...)

	fourth := fresh[3]
	fourth.SourceGroupID = "N2F-A"
	f.docs.failIDs[fourth.DocumentID()] = true

	res, err := f.engine.ReconcileMatches(ctx, "N2F-A", fresh)

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("error = %v, want *BatchError", err)
	}
	if res.Updated != 9 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(err.Error(), fourth.NaturalKey()) {
		t.Errorf("error %q does not name %s", err.Error(), fourth.NaturalKey())
	}
	if res.Errors[0].Key != fourth.NaturalKey() {
		t.Errorf("error key = %q", res.Errors[0].Key)
	}

	finals := 0
	all, _ := f.matches.GetByGroup(ctx, "N2F-A")
	for _, m := range all {
		if m.Status == store.StatusFinal {
			finals++
		}
	}
	if finals != 9 {
		t.Errorf("committed finals = %d, want 9", finals)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seedMatches(t, "N2F-A", scheduled(1, "Team A", "Team B"), scheduled(1, "Team C", "Team D"))

	batch := []*store.Match{final(1, "Team A", "Team B", 3, 0), final(1, "Team C", "Team D", 1, 3)}
	if _, err := f.engine.ReconcileMatches(ctx, "N2F-A", batch); err != nil {
		t.Fatal(err)
	}
	res, err := f.engine.ReconcileMatches(ctx, "N2F-A", batch)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 0 || res.Unchanged != 2 {
		t.Errorf("second run = %+v, want updated=0 unchanged=2", res)
	}
}

func TestReconcileNotFoundDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	res, err := f.engine.ReconcileMatches(ctx, "N2F-A", []*store.Match{scheduled(2, "Team X", "Team Y")})
	if err != nil {
		t.Fatal(err)
	}
	if res.NotFound != 1 {
		t.Errorf("NotFound = %d, want 1", res.NotFound)
	}
	if all, _ := f.matches.GetByGroup(ctx, "N2F-A"); len(all) != 0 {
		t.Errorf("reconcile created %d matches", len(all))
	}
	if len(f.events.Find(logger.LevelWarn, "Record not found, not creating it")) != 1 {
		t.Error("missing not-found warning")
	}
}

func TestReconcileTeams(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	created, err := f.engine.CreateTeams(ctx, "N2F-A", []*store.Team{
		{CanonicalName: "SETE VOLLEY-BALL"},
		{CanonicalName: "Team A"},
	})
	if err != nil || created.Created != 2 {
		t.Fatalf("CreateTeams() = %+v, %v", created, err)
	}
	again, _ := f.engine.CreateTeams(ctx, "N2F-A", []*store.Team{{CanonicalName: "team a"}})
	if again.Created != 0 || again.Existing != 1 {
		t.Errorf("second CreateTeams() = %+v", again)
	}

	fresh := []*store.Team{
		{CanonicalName: "Sète Volley-Ball", Rank: 1, Points: 9, Played: 3, Won: 3, SetsFor: 9, SetsAgainst: 1},
		{CanonicalName: "Team A"},
		{CanonicalName: "Unknown Club", Points: 3},
	}
	res, err := f.engine.ReconcileTeams(ctx, "N2F-A", fresh)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Unchanged != 1 || res.NotFound != 1 {
		t.Errorf("result = %+v", res)
	}

	_, doc, _, _ := f.teams.FindByName(ctx, "N2F-A", "SETE VOLLEY-BALL")
	if doc["canonicalName"] != "SETE VOLLEY-BALL" || doc["points"] != float64(9) {
		t.Errorf("team doc = %v", doc)
	}
}

func TestSamplePrecheck(t *testing.T) {
	ctx := context.Background()

	seed := func(f *fixture) []*store.Match {
		var ms []*store.Match
		for i := 0; i < 8; i++ {
			ms = append(ms, final(1, fmt.Sprintf("Home %d", i), fmt.Sprintf("Away %d", i), 3, 0))
		}
		f.seedMatches(t, "N2F-A", ms...)
		return ms
	}

	t.Run("unchanged sample skips batch", func(t *testing.T) {
		f := newFixture()
		batch := seed(f)
		batch[7] = final(1, "Home 7", "Away 7", 0, 3)

		res, err := NewSamplePrecheck(f.engine, 4).ReconcileMatches(ctx, "N2F-A", batch)
		if err != nil {
			t.Fatal(err)
		}
		if !res.SkippedByPrecheck || res.Updated != 0 || len(f.docs.writes) != 0 {
			t.Errorf("result = %+v, writes = %d", res, len(f.docs.writes))
		}
	})

	t.Run("changed sample runs full reconcile", func(t *testing.T) {
		f := newFixture()
		batch := seed(f)
		batch[1] = final(1, "Home 1", "Away 1", 2, 3)
		batch[7] = final(1, "Home 7", "Away 7", 0, 3)

		res, err := NewSamplePrecheck(f.engine, 4).ReconcileMatches(ctx, "N2F-A", batch)
		if err != nil {
			t.Fatal(err)
		}
		if res.SkippedByPrecheck || res.Updated != 2 || res.Unchanged != 6 {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestBatchErrorUnwrap(t *testing.T) {
	cause := errors.New("quota")
	err := &BatchError{Collection: "matches", GroupID: "g", Total: 2, Failures: []RecordError{{Key: "k", Message: "quota", Err: cause}}}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach the record cause")
	}
}
