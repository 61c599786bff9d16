// Package changegate decides whether fetched content differs from what was
// seen on the previous run of a source, and keeps the per-source counters.
package changegate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fortuna/volleysync/internal/store"
)

// StateStore persists scrape state per key.
type StateStore interface {
	LoadState(ctx context.Context, key string) (store.ScrapeState, bool, error)
	SaveState(ctx context.Context, key string, state store.ScrapeState) error
}

// Hasher digests content into a comparable string.
type Hasher func(content []byte) string

// MD5Hasher is the default hasher.
func MD5Hasher(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// XXHasher is a faster non-cryptographic alternative.
func XXHasher(content []byte) string {
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}

// Result is the outcome of one check.
type Result struct {
	Changed bool
	State   store.ScrapeState
}

// Gate owns the scrape state of every source key.
type Gate struct {
	states StateStore
	hash   Hasher
	now    func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithHasher replaces the MD5 hasher.
func WithHasher(h Hasher) Option {
	return func(g *Gate) { g.hash = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate backed by states.
func New(states StateStore, opts ...Option) *Gate {
	g := &Gate{states: states, hash: MD5Hasher, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckAndAdvance hashes content, compares it with the stored hash for
// key and persists the advanced state in both outcomes. LastUpdate is
// never touched here; see MarkUpdated.
func (g *Gate) CheckAndAdvance(ctx context.Context, key string, content []byte) (Result, error) {
	state, err := g.State(ctx, key)
	if err != nil {
		return Result{}, err
	}

	hash := g.hash(content)
	state.TotalChecks++

	changed := hash != state.LastHash
	if changed {
		state.LastHash = hash
		state.LastChangeDetected = g.now().UTC()
		state.ConsecutiveNoChange = 0
		state.TotalUpdates++
	} else {
		state.ConsecutiveNoChange++
	}

	if err := g.states.SaveState(ctx, key, state); err != nil {
		return Result{}, fmt.Errorf("persisting state for %s: %w", key, err)
	}
	return Result{Changed: changed, State: state}, nil
}

// MarkUpdated records a successful downstream write for key.
func (g *Gate) MarkUpdated(ctx context.Context, key string) (store.ScrapeState, error) {
	state, err := g.State(ctx, key)
	if err != nil {
		return store.ScrapeState{}, err
	}
	state.LastUpdate = g.now().UTC()
	if err := g.states.SaveState(ctx, key, state); err != nil {
		return store.ScrapeState{}, fmt.Errorf("persisting state for %s: %w", key, err)
	}
	return state, nil
}

// State returns the stored state for key, or the zero state.
func (g *Gate) State(ctx context.Context, key string) (store.ScrapeState, error) {
	state, _, err := g.states.LoadState(ctx, key)
	if err != nil {
		return store.ScrapeState{}, fmt.Errorf("loading state for %s: %w", key, err)
	}
	return state, nil
}

// Stale reports a detected change that never reached a successful write:
// the hash advanced but LastUpdate is older than LastChangeDetected.
func Stale(state store.ScrapeState) bool {
	return !state.LastChangeDetected.IsZero() && state.LastUpdate.Before(state.LastChangeDetected)
}

// SectionKey derives the state key of one page section.
func SectionKey(sourceID, section string) string {
	if section == "" {
		return sourceID
	}
	return sourceID + ":" + section
}

var delaySteps = []struct {
	below int
	delay time.Duration
}{
	{3, 5 * time.Minute},
	{6, 10 * time.Minute},
	{12, 20 * time.Minute},
	{24, 30 * time.Minute},
}

// NextDelay suggests how long to wait before checking again. Advisory;
// the gate itself never enforces it.
func NextDelay(consecutiveNoChange int) time.Duration {
	for _, step := range delaySteps {
		if consecutiveNoChange < step.below {
			return step.delay
		}
	}
	return 60 * time.Minute
}
