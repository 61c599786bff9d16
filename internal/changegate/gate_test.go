package changegate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/store/repository"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newGate(t *testing.T, opts ...Option) (*Gate, *fixedClock) {
	t.Helper()
	clock := &fixedClock{t: time.Date(2024, 10, 5, 20, 0, 0, 0, time.UTC)}
	states := repository.NewStateRepository(store.NewMemoryStore(), "")
	return New(states, append([]Option{WithClock(clock.now)}, opts...)...), clock
}

func TestCheckAndAdvanceFirstRun(t *testing.T) {
	g, clock := newGate(t)

	res, err := g.CheckAndAdvance(context.Background(), "N2F-A", []byte("<table>v1</table>"))
	if err != nil {
		t.Fatalf("CheckAndAdvance() error = %v", err)
	}
	if !res.Changed {
		t.Error("first check reported unchanged")
	}
	st := res.State
	if st.TotalChecks != 1 || st.TotalUpdates != 1 || st.ConsecutiveNoChange != 0 {
		t.Errorf("state = %+v", st)
	}
	if !st.LastChangeDetected.Equal(clock.t) {
		t.Errorf("LastChangeDetected = %v, want %v", st.LastChangeDetected, clock.t)
	}
	if !st.LastUpdate.IsZero() {
		t.Errorf("gate set LastUpdate = %v", st.LastUpdate)
	}
}

func TestCheckAndAdvanceIdempotent(t *testing.T) {
	ctx := context.Background()
	g, _ := newGate(t)
	content := []byte("<table>standings</table>")

	if _, err := g.CheckAndAdvance(ctx, "N2F-A", content); err != nil {
		t.Fatal(err)
	}
	res, err := g.CheckAndAdvance(ctx, "N2F-A", content)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("second identical check reported changed")
	}
	if res.State.TotalUpdates != 1 || res.State.TotalChecks != 2 || res.State.ConsecutiveNoChange != 1 {
		t.Errorf("state = %+v", res.State)
	}

	// persisted, not just returned
	st, _ := g.State(ctx, "N2F-A")
	if st.TotalChecks != 2 || st.ConsecutiveNoChange != 1 {
		t.Errorf("persisted state = %+v", st)
	}
}

func TestCheckAndAdvanceChangeResetsCounter(t *testing.T) {
	ctx := context.Background()
	g, clock := newGate(t)

	for i := 0; i < 3; i++ {
		_, _ = g.CheckAndAdvance(ctx, "k", []byte("same"))
	}
	clock.t = clock.t.Add(time.Hour)
	res, _ := g.CheckAndAdvance(ctx, "k", []byte("different"))

	if !res.Changed || res.State.ConsecutiveNoChange != 0 || res.State.TotalUpdates != 2 || res.State.TotalChecks != 4 {
		t.Errorf("state = %+v", res.State)
	}
	if !res.State.LastChangeDetected.Equal(clock.t) {
		t.Errorf("LastChangeDetected = %v", res.State.LastChangeDetected)
	}
	if res.State.TotalUpdates > res.State.TotalChecks {
		t.Error("TotalUpdates exceeds TotalChecks")
	}
}

func TestSectionKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	g, _ := newGate(t)

	_, _ = g.CheckAndAdvance(ctx, SectionKey("N2F-A", "standings"), []byte("s1"))
	_, _ = g.CheckAndAdvance(ctx, SectionKey("N2F-A", "matches"), []byte("m1"))

	res, _ := g.CheckAndAdvance(ctx, SectionKey("N2F-A", "standings"), []byte("s1"))
	if res.Changed {
		t.Error("matches section change leaked into standings key")
	}
}

func TestMarkUpdatedAndStale(t *testing.T) {
	ctx := context.Background()
	g, clock := newGate(t)

	res, _ := g.CheckAndAdvance(ctx, "k", []byte("v1"))
	if !Stale(res.State) {
		t.Error("changed state without LastUpdate should be stale")
	}

	clock.t = clock.t.Add(time.Minute)
	st, err := g.MarkUpdated(ctx, "k")
	if err != nil {
		t.Fatalf("MarkUpdated() error = %v", err)
	}
	if Stale(st) {
		t.Errorf("state still stale after MarkUpdated: %+v", st)
	}
	if st.TotalChecks != 1 {
		t.Errorf("MarkUpdated changed counters: %+v", st)
	}
}

func TestHashers(t *testing.T) {
	for name, h := range map[string]Hasher{"md5": MD5Hasher, "xxhash": XXHasher} {
		t.Run(name, func(t *testing.T) {
			if h([]byte("a")) != h([]byte("a")) {
				t.Error("hash not deterministic")
			}
			if h([]byte("a")) == h([]byte("b")) {
				t.Error("distinct content hashed equal")
			}
		})
	}

	g, _ := newGate(t, WithHasher(XXHasher))
	res, _ := g.CheckAndAdvance(context.Background(), "k", []byte("x"))
	if res.State.LastHash != XXHasher([]byte("x")) {
		t.Errorf("LastHash = %q, WithHasher ignored", res.State.LastHash)
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Minute},
		{2, 5 * time.Minute},
		{3, 10 * time.Minute},
		{6, 20 * time.Minute},
		{12, 30 * time.Minute},
		{24, 60 * time.Minute},
		{500, 60 * time.Minute},
	}

	prev := time.Duration(0)
	for _, tt := range tests {
		got := NextDelay(tt.n)
		if got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.n, got, tt.want)
		}
		if got < prev {
			t.Errorf("NextDelay not monotonic at %d", tt.n)
		}
		prev = got
	}
}

type brokenStates struct{}

func (brokenStates) LoadState(ctx context.Context, key string) (store.ScrapeState, bool, error) {
	return store.ScrapeState{}, false, nil
}

func (brokenStates) SaveState(ctx context.Context, key string, state store.ScrapeState) error {
	return errors.New("quota exceeded")
}

func TestCheckAndAdvancePersistFailure(t *testing.T) {
	g := New(brokenStates{})
	if _, err := g.CheckAndAdvance(context.Background(), "k", []byte("x")); err == nil {
		t.Error("CheckAndAdvance() succeeded with a failing state store")
	}
}
