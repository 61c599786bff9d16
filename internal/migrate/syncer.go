package migrate

import (
	"context"
	"fmt"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/metrics"
	"github.com/fortuna/volleysync/internal/store"
)

// Syncer moves documents from src to dst in bounded batches. Batches are
// committed in order, so a failed run leaves a complete prefix behind.
type Syncer struct {
	src       store.DocumentStore
	dst       store.DocumentStore
	batchSize int
	dryRun    bool
	reporter  Reporter
	metrics   *metrics.Manager
	log       *logger.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithBatchSize caps documents per batch at n, never above store.MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 && n <= store.MaxBatchSize {
			s.batchSize = n
		}
	}
}

// WithDryRun computes stats without writing.
func WithDryRun(dry bool) Option {
	return func(s *Syncer) { s.dryRun = dry }
}

// WithReporter attaches progress callbacks.
func WithReporter(r Reporter) Option {
	return func(s *Syncer) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithMetrics attaches a metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithLogger sets the event logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSyncer creates a syncer from src to dst.
func NewSyncer(src, dst store.DocumentStore, opts ...Option) *Syncer {
	s := &Syncer{
		src:       src,
		dst:       dst,
		batchSize: store.MaxBatchSize,
		reporter:  nopReporter{},
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync copies each collection in turn and stops at the first failure.
// Stats for every collection attempted are returned, including the
// failed one.
func (s *Syncer) Sync(ctx context.Context, collections []string, mode Mode) ([]CollectionStats, error) {
	var all []CollectionStats
	for _, coll := range collections {
		stats, err := s.syncCollection(ctx, coll, mode)
		all = append(all, stats)
		if err != nil {
			s.reporter.OnError(coll, err)
			s.log.Error("Collection sync failed", logger.Fields{"collection": coll, "written": stats.Written}, err)
			return all, fmt.Errorf("syncing %s: %w", coll, err)
		}
	}
	return all, nil
}

func (s *Syncer) syncCollection(ctx context.Context, coll string, mode Mode) (CollectionStats, error) {
	stats := CollectionStats{Collection: coll, DryRun: s.dryRun}

	snaps, err := s.src.Query(ctx, coll)
	if err != nil {
		return stats, fmt.Errorf("reading source: %w", err)
	}
	stats.Read = len(snaps)
	s.reporter.OnCollectionStart(coll, mode, len(snaps))

	batch := make([]store.WriteOp, 0, s.batchSize)
	for _, snap := range snaps {
		if mode == ModeIncremental {
			existing, found, err := s.dst.Get(ctx, coll, snap.ID)
			if err != nil {
				return stats, fmt.Errorf("reading target %s: %w", snap.ID, err)
			}
			if found && store.Equal(existing, snap.Data) {
				stats.Skipped++
				continue
			}
		}

		batch = append(batch, store.WriteOp{Kind: store.OpSet, Collection: coll, ID: snap.ID, Data: snap.Data})
		if len(batch) == s.batchSize {
			if err := s.commit(ctx, &stats, batch); err != nil {
				return stats, err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.commit(ctx, &stats, batch); err != nil {
			return stats, err
		}
	}

	s.metrics.ObserveSync(coll, stats.Written, stats.Skipped)
	s.reporter.OnCollectionComplete(stats)
	s.log.Info("Collection synced", logger.Fields{
		"collection": coll,
		"mode":       string(mode),
		"read":       stats.Read,
		"written":    stats.Written,
		"skipped":    stats.Skipped,
		"batches":    stats.Batches,
		"dry_run":    s.dryRun,
	})
	return stats, nil
}

// Replace deletes every target document of coll and copies the source
// collection over it. Nothing is touched unless confirm approves.
func (s *Syncer) Replace(ctx context.Context, coll string, confirm Confirmer) (CollectionStats, error) {
	stats := CollectionStats{Collection: coll, DryRun: s.dryRun}

	targets, err := s.dst.Query(ctx, coll)
	if err != nil {
		return stats, fmt.Errorf("reading target: %w", err)
	}
	sources, err := s.src.Query(ctx, coll)
	if err != nil {
		return stats, fmt.Errorf("reading source: %w", err)
	}

	prompt := fmt.Sprintf("Delete all %d documents of %q in the target and copy %d from the source? This cannot be undone.",
		len(targets), coll, len(sources))
	ok, err := confirm.Confirm(prompt)
	if err != nil {
		return stats, fmt.Errorf("confirmation: %w", err)
	}
	if !ok {
		s.log.Warn("Replace declined", logger.Fields{"collection": coll})
		return stats, ErrAborted
	}

	s.reporter.OnCollectionStart(coll, ModeOverwrite, len(sources))

	ops := make([]store.WriteOp, 0, len(targets))
	for _, snap := range targets {
		ops = append(ops, store.WriteOp{Kind: store.OpDelete, Collection: coll, ID: snap.ID})
	}
	if err := s.commitAll(ctx, &stats, ops); err != nil {
		return stats, err
	}
	stats.Read = len(sources)
	ops = ops[:0]
	for _, snap := range sources {
		ops = append(ops, store.WriteOp{Kind: store.OpSet, Collection: coll, ID: snap.ID, Data: snap.Data})
	}
	if err := s.commitAll(ctx, &stats, ops); err != nil {
		return stats, err
	}

	s.metrics.ObserveSync(coll, stats.Written, 0)
	s.reporter.OnCollectionComplete(stats)
	s.log.Warn("Collection replaced", logger.Fields{
		"collection": coll,
		"deleted":    stats.Deleted,
		"written":    stats.Written,
		"dry_run":    s.dryRun,
	})
	return stats, nil
}

func (s *Syncer) commitAll(ctx context.Context, stats *CollectionStats, ops []store.WriteOp) error {
	for start := 0; start < len(ops); start += s.batchSize {
		end := min(start+s.batchSize, len(ops))
		if err := s.commit(ctx, stats, ops[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) commit(ctx context.Context, stats *CollectionStats, batch []store.WriteOp) error {
	if !s.dryRun {
		if err := s.dst.BatchWrite(ctx, batch); err != nil {
			return fmt.Errorf("committing batch %d: %w", stats.Batches+1, err)
		}
	}
	stats.Batches++
	for _, op := range batch {
		if op.Kind == store.OpDelete {
			stats.Deleted++
		} else {
			stats.Written++
		}
	}
	s.reporter.OnBatchCommitted(stats.Collection, stats.Batches, stats.Written)
	return nil
}

type nopReporter struct{}

func (nopReporter) OnCollectionStart(string, Mode, int)  {}
func (nopReporter) OnBatchCommitted(string, int, int)    {}
func (nopReporter) OnCollectionComplete(CollectionStats) {}
func (nopReporter) OnError(string, error)                {}
