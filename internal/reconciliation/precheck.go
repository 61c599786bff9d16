package reconciliation

import (
	"context"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/store"
)

// DefaultSampleSize is the number of leading records the precheck inspects.
const DefaultSampleSize = 4

// SamplePrecheck wraps an Engine with a best-effort early exit: when the
// first few records of a batch match the store exactly, the whole batch
// is skipped without writes.
//
// This is a heuristic, not a correctness guarantee. A page whose changed
// rows all sit outside the sample is skipped until a later run samples a
// difference. It relies on the change gate having already established
// that the page content moved.
type SamplePrecheck struct {
	engine *Engine
	size   int
}

// NewSamplePrecheck wraps engine. size <= 0 selects DefaultSampleSize.
func NewSamplePrecheck(engine *Engine, size int) *SamplePrecheck {
	if size <= 0 {
		size = DefaultSampleSize
	}
	return &SamplePrecheck{engine: engine, size: size}
}

// ReconcileTeams runs the precheck, then the full team reconcile.
func (p *SamplePrecheck) ReconcileTeams(ctx context.Context, groupID string, teams []*store.Team) (Result, error) {
	if p.sampleUnchanged(ctx, p.engine.teamCandidates(groupID, teams)) {
		return p.skipped(p.engine.teams.Collection(), groupID, len(teams)), nil
	}
	return p.engine.ReconcileTeams(ctx, groupID, teams)
}

// ReconcileMatches runs the precheck, then the full match reconcile.
func (p *SamplePrecheck) ReconcileMatches(ctx context.Context, groupID string, matches []*store.Match) (Result, error) {
	if p.sampleUnchanged(ctx, p.engine.matchCandidates(groupID, matches)) {
		return p.skipped(p.engine.matches.Collection(), groupID, len(matches)), nil
	}
	return p.engine.ReconcileMatches(ctx, groupID, matches)
}

// sampleUnchanged is true only when every sampled record exists and has
// nothing to write. Any lookup error or miss sends the batch through.
func (p *SamplePrecheck) sampleUnchanged(ctx context.Context, cands []candidate) bool {
	if len(cands) == 0 {
		return false
	}
	n := min(p.size, len(cands))
	for _, c := range cands[:n] {
		_, existing, found, err := c.find(ctx)
		if err != nil || !found {
			return false
		}
		if len(c.changes(existing)) > 0 {
			return false
		}
	}
	return true
}

func (p *SamplePrecheck) skipped(collection, groupID string, total int) Result {
	p.engine.log.Info("Sample unchanged, batch skipped", logger.Fields{
		"collection": collection,
		"group":      groupID,
		"sample":     min(p.size, total),
		"total":      total,
	})
	return Result{Collection: collection, SkippedByPrecheck: true}
}
