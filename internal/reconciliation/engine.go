// Package reconciliation maps scraped records onto persisted ones and
// writes only the fields that changed.
package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/store/repository"
)

// Reconciler is implemented by Engine and by the sample precheck layer.
type Reconciler interface {
	ReconcileTeams(ctx context.Context, groupID string, teams []*store.Team) (Result, error)
	ReconcileMatches(ctx context.Context, groupID string, matches []*store.Match) (Result, error)
}

// RecordError describes one record whose lookup or write failed.
type RecordError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e RecordError) Error() string {
	return e.Key + ": " + e.Message
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// BatchError aggregates every record failure of one batch. It is returned
// only after the whole batch has been attempted.
type BatchError struct {
	Collection string
	GroupID    string
	Total      int
	Failures   []RecordError
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s)", f.Key, f.Message)
	}
	return fmt.Sprintf("%d of %d %s failed in %s: %s",
		len(e.Failures), e.Total, e.Collection, e.GroupID, strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Result summarizes one reconcile call
type Result struct {
	Collection        string        `json:"collection"`
	Updated           int           `json:"updated"`
	Unchanged         int           `json:"unchanged"`
	NotFound          int           `json:"notFound"`
	Failed            int           `json:"failed"`
	Errors            []RecordError `json:"errors,omitempty"`
	SkippedByPrecheck bool          `json:"skippedByPrecheck,omitempty"`
}

// Metrics tracks reconciliation statistics
type Metrics struct {
	TotalReconciliations int
	Updated              int
	Unchanged            int
	NotFound             int
	Failed               int
	LastReconciliation   time.Time
}

// Engine reconciles scraped teams and matches against the store
type Engine struct {
	teams   *repository.TeamRepository
	matches *repository.MatchRepository
	log     *logger.Logger

	mu      sync.Mutex
	metrics Metrics
}

// NewEngine creates a new reconciliation engine
func NewEngine(teams *repository.TeamRepository, matches *repository.MatchRepository, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{teams: teams, matches: matches, log: log}
}

// GetMetrics returns a snapshot of the cumulative counters
func (e *Engine) GetMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// candidate is one fresh record prepared for the reconcile loop.
type candidate struct {
	key    string
	fields store.Document
	find   func(ctx context.Context) (string, store.Document, bool, error)
	write  func(ctx context.Context, id string, changed store.Document) error
	// patch may drop fields from changed that must not be written.
	patch func(existing, changed store.Document)
}

func (c candidate) changes(existing store.Document) store.Document {
	changed := store.Diff(existing, c.fields)
	if c.patch != nil {
		c.patch(existing, changed)
	}
	return changed
}

// ReconcileTeams updates standings of teams already known in groupID.
func (e *Engine) ReconcileTeams(ctx context.Context, groupID string, teams []*store.Team) (Result, error) {
	return e.reconcile(ctx, e.teams.Collection(), groupID, e.teamCandidates(groupID, teams))
}

// ReconcileMatches updates fixtures already known in groupID.
func (e *Engine) ReconcileMatches(ctx context.Context, groupID string, matches []*store.Match) (Result, error) {
	return e.reconcile(ctx, e.matches.Collection(), groupID, e.matchCandidates(groupID, matches))
}

func (e *Engine) teamCandidates(groupID string, teams []*store.Team) []candidate {
	out := make([]candidate, 0, len(teams))
	for _, t := range teams {
		t := *t
		t.SourceGroupID = groupID
		out = append(out, candidate{
			key:    t.NaturalKey(),
			fields: teamFields(&t),
			find: func(ctx context.Context) (string, store.Document, bool, error) {
				return e.teams.FindByName(ctx, groupID, t.CanonicalName)
			},
			write: e.teams.Update,
		})
	}
	return out
}

// teamFields are the mutable fields of a team; identity fields are
// excluded so a write never renames or regroups a team.
func teamFields(t *store.Team) store.Document {
	doc := t.ToDocument()
	for _, k := range []string{"id", "canonicalName", "normalizedName", "sourceGroupId"} {
		delete(doc, k)
	}
	return doc
}

func (e *Engine) matchCandidates(groupID string, matches []*store.Match) []candidate {
	out := make([]candidate, 0, len(matches))
	for _, m := range matches {
		m := *m
		m.SourceGroupID = groupID
		out = append(out, candidate{
			key:    m.NaturalKey(),
			fields: m.ToDocument(),
			find: func(ctx context.Context) (string, store.Document, bool, error) {
				return e.matches.Find(ctx, &m)
			},
			write: e.matches.Update,
			patch: keepFinalStatus,
		})
	}
	return out
}

// keepFinalStatus stops a scheduled scrape from reopening a final match.
func keepFinalStatus(existing, changed store.Document) {
	if existing["status"] == string(store.StatusFinal) && changed["status"] == string(store.StatusScheduled) {
		delete(changed, "status")
	}
}

func (e *Engine) reconcile(ctx context.Context, collection, groupID string, cands []candidate) (Result, error) {
	res := Result{Collection: collection}
	log := e.log.With(logger.Fields{"collection": collection, "group": groupID})

	for _, c := range cands {
		id, existing, found, err := c.find(ctx)
		if err != nil {
			res.fail(c.key, err)
			log.Error("Record lookup failed", logger.Fields{"key": c.key}, err)
			continue
		}
		if !found {
			res.NotFound++
			log.Warn("Record not found, not creating it", logger.Fields{"key": c.key})
			continue
		}

		changed := c.changes(existing)
		if len(changed) == 0 {
			res.Unchanged++
			continue
		}

		if err := c.write(ctx, id, changed); err != nil {
			res.fail(c.key, err)
			log.Error("Record write failed", logger.Fields{"key": c.key, "id": id}, err)
			continue
		}
		res.Updated++
		log.Debug("Record updated", logger.Fields{"key": c.key, "fields": len(changed)})
	}

	e.record(res)
	log.Info("Reconciliation complete", logger.Fields{
		"total":     len(cands),
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
		"not_found": res.NotFound,
		"failed":    res.Failed,
	})

	if len(res.Errors) > 0 {
		return res, &BatchError{Collection: collection, GroupID: groupID, Total: len(cands), Failures: res.Errors}
	}
	return res, nil
}

func (r *Result) fail(key string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RecordError{Key: key, Message: err.Error(), Err: err})
}

func (e *Engine) record(res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics.TotalReconciliations++
	e.metrics.Updated += res.Updated
	e.metrics.Unchanged += res.Unchanged
	e.metrics.NotFound += res.NotFound
	e.metrics.Failed += res.Failed
	e.metrics.LastReconciliation = time.Now()
}
