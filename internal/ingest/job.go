// Package ingest runs one scrape-and-sync job per configured source:
// fetch, extract, change gate, resolve, validate, reconcile.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/volleysync/internal/changegate"
	"github.com/fortuna/volleysync/internal/ingest/extract"
	"github.com/fortuna/volleysync/internal/ingest/fetch"
	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/metrics"
	"github.com/fortuna/volleysync/internal/reconciliation"
	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/store/repository"
)

// ReportSink receives every finished run report.
type ReportSink interface {
	PublishRun(ctx context.Context, report interface{}) error
}

// SectionReport is the outcome of one page section.
type SectionReport struct {
	Section    string                 `json:"section"`
	Key        string                 `json:"key"`
	Records    int                    `json:"records"`
	Changed    bool                   `json:"changed"`
	Stale      bool                   `json:"stale,omitempty"`
	Skipped    bool                   `json:"skipped"`
	Unresolved int                    `json:"unresolved,omitempty"`
	Result     *reconciliation.Result `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorKind  string                 `json:"errorKind,omitempty"`
}

// Report is the outcome of one run of one source.
type Report struct {
	SourceID   string          `json:"sourceId"`
	GroupID    string          `json:"groupId"`
	Forced     bool            `json:"forced"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Sections   []SectionReport `json:"sections"`
}

// Failed reports whether any section ended with an error.
func (r *Report) Failed() bool {
	for _, s := range r.Sections {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// Creator performs explicit record creation for seeding.
type Creator interface {
	CreateTeams(ctx context.Context, groupID string, teams []*store.Team) (reconciliation.CreateResult, error)
	CreateMatches(ctx context.Context, groupID string, matches []*store.Match) (reconciliation.CreateResult, error)
}

// Runner executes source jobs. A Runner is not meant to run two jobs for
// the same source concurrently; the scheduler serializes calls.
type Runner struct {
	gate       *changegate.Gate
	teams      *repository.TeamRepository
	reconciler reconciliation.Reconciler
	creator    Creator
	fetchers   map[Render]fetch.Fetcher
	sinks      []ReportSink
	metrics    *metrics.Manager
	log        *logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithFetcher registers the fetcher used for render mode r.
func WithFetcher(r Render, f fetch.Fetcher) Option {
	return func(rn *Runner) { rn.fetchers[r] = f }
}

// WithReportSink adds a destination for run reports.
func WithReportSink(s ReportSink) Option {
	return func(rn *Runner) { rn.sinks = append(rn.sinks, s) }
}

// WithMetrics attaches a metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(rn *Runner) { rn.metrics = m }
}

// WithCreator enables Seed.
func WithCreator(c Creator) Option {
	return func(rn *Runner) { rn.creator = c }
}

// NewRunner creates a job runner. teams is the canonical registry used by
// the resolver.
func NewRunner(gate *changegate.Gate, teams *repository.TeamRepository, reconciler reconciliation.Reconciler, log *logger.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		gate:       gate,
		teams:      teams,
		reconciler: reconciler,
		fetchers:   make(map[Render]fetch.Fetcher),
		log:        log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every section of src. Unchanged sections are skipped
// unless force is set or the previous change never reached the store.
// The returned error joins every section error; the report is always
// returned.
func (r *Runner) Run(ctx context.Context, src Source, force bool) (*Report, error) {
	report := &Report{
		SourceID:  src.ID,
		GroupID:   src.Group(),
		Forced:    force,
		StartedAt: time.Now().UTC(),
	}
	log := r.log.With(logger.Fields{"source": src.ID, "group": src.Group()})
	pages := make(map[string]*goquery.Document)

	var errs []error
	sections := src.Sections()
	for i, section := range sections {
		sr := SectionReport{Section: section, Key: changegate.SectionKey(src.ID, section)}
		err := r.runSection(ctx, src, section, force, pages, &sr, log)
		if err != nil {
			sr.Error = err.Error()
			sr.ErrorKind = ErrorKind(err)
			errs = append(errs, err)
			r.logFailure(log, sr, err)
		}
		report.Sections = append(report.Sections, sr)
		if err != nil && halts(src, section, sections[i+1:], err) {
			break
		}
	}

	report.FinishedAt = time.Now().UTC()
	err := errors.Join(errs...)
	r.metrics.ObserveRun(src.ID, report.FinishedAt.Sub(report.StartedAt), ErrorKind(err))
	r.publish(ctx, report, log)

	return report, err
}

// halts reports whether err on section ends the run. An empty extraction
// only ends it when a remaining section reads the same page.
func halts(src Source, section string, rest []string, err error) bool {
	if !fatal(err) {
		return false
	}
	if ErrorKind(err) != ErrKindExtractionEmpty {
		return true
	}
	url := src.SectionURL(section)
	for _, next := range rest {
		if src.SectionURL(next) == url {
			return true
		}
	}
	return false
}

func (r *Runner) runSection(ctx context.Context, src Source, section string, force bool, pages map[string]*goquery.Document, sr *SectionReport, log *logger.Logger) error {
	doc, err := r.load(ctx, src, section, pages)
	if err != nil {
		return err
	}

	var content []byte
	switch section {
	case SectionStandings:
		rows := extract.CollectStandings(doc, src.Layout)
		sr.Records = len(rows)
		content, err = json.Marshal(rows)
	default:
		rows := extract.CollectMatches(doc, src.Layout)
		sr.Records = len(rows)
		content, err = json.Marshal(rows)
	}
	if err != nil {
		return fmt.Errorf("encoding %s records: %w", section, err)
	}
	if sr.Records == 0 {
		return fmt.Errorf("%w: %s %s", ErrExtractionEmpty, src.ID, section)
	}

	check, err := r.gate.CheckAndAdvance(ctx, sr.Key, content)
	if err != nil {
		return err
	}
	sr.Changed = check.Changed
	sr.Stale = !check.Changed && changegate.Stale(check.State)
	r.metrics.ObserveCheck(src.ID, section, check.Changed)

	if !check.Changed && !sr.Stale && !force {
		sr.Skipped = true
		log.Debug("Section unchanged, skipping", logger.Fields{
			"section":               section,
			"consecutive_no_change": check.State.ConsecutiveNoChange,
		})
		return nil
	}
	if sr.Stale {
		log.Warn("Reprocessing stale section", logger.Fields{"section": section})
	}

	registry, err := r.registry(ctx, src)
	if err != nil {
		return err
	}
	resolver := reconciliation.NewResolver(src.Strict)

	var res reconciliation.Result
	switch section {
	case SectionStandings:
		teams, unresolved := r.buildTeams(doc, src, resolver, registry, log)
		sr.Unresolved = unresolved
		if err := validateTeams(src, teams); err != nil {
			return err
		}
		res, err = r.reconciler.ReconcileTeams(ctx, src.Group(), teams)
	default:
		matches, unresolved := r.buildMatches(doc, src, resolver, registry, log)
		sr.Unresolved = unresolved
		if err := validateMatches(src, matches); err != nil {
			return err
		}
		res, err = r.reconciler.ReconcileMatches(ctx, src.Group(), matches)
	}
	sr.Result = &res
	r.metrics.ObserveRecords(src.ID, res.Collection, res.Updated, res.Unchanged, res.NotFound, res.Failed)
	if err != nil {
		return err
	}

	if _, err := r.gate.MarkUpdated(ctx, sr.Key); err != nil {
		return err
	}
	return nil
}

// load fetches and parses the page of section, once per URL per run.
func (r *Runner) load(ctx context.Context, src Source, section string, pages map[string]*goquery.Document) (*goquery.Document, error) {
	url := src.SectionURL(section)
	if doc, ok := pages[url]; ok {
		return doc, nil
	}

	render := src.Render
	if render == "" {
		render = RenderHTTP
	}
	fetcher, ok := r.fetchers[render]
	if !ok {
		return nil, &fetch.FetchError{URL: url, Err: fmt.Errorf("no fetcher for render mode %q", render)}
	}

	page, err := fetcher.Fetch(ctx, fetch.Request{URL: url, Encoding: src.Encoding})
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse(page.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, url, err)
	}
	pages[url] = doc
	return doc, nil
}

func (r *Runner) registry(ctx context.Context, src Source) (*reconciliation.Registry, error) {
	teams, err := r.teams.GetByGroup(ctx, src.Group())
	if err != nil {
		return nil, fmt.Errorf("loading team registry for %s: %w", src.Group(), err)
	}
	return reconciliation.RegistryFromTeams(teams), nil
}

func (r *Runner) buildTeams(doc *goquery.Document, src Source, resolver *reconciliation.Resolver, registry *reconciliation.Registry, log *logger.Logger) ([]*store.Team, int) {
	var teams []*store.Team
	unresolved := 0
	for row := range extract.Standings(doc, src.Layout) {
		name := row.Name
		if res := resolver.Resolve(name, registry); res.Resolved() {
			name = res.Name
		} else {
			unresolved++
			log.Info("Unresolved team name", logger.Fields{"name": row.Name, "section": SectionStandings})
		}
		teams = append(teams, &store.Team{
			CanonicalName: name,
			SourceGroupID: src.Group(),
			Rank:          row.Rank,
			Points:        row.Points,
			Played:        row.Played,
			Won:           row.Won,
			Lost:          row.Lost,
			SetsFor:       row.SetsFor,
			SetsAgainst:   row.SetsAgainst,
		})
	}
	return teams, unresolved
}

func (r *Runner) buildMatches(doc *goquery.Document, src Source, resolver *reconciliation.Resolver, registry *reconciliation.Registry, log *logger.Logger) ([]*store.Match, int) {
	var matches []*store.Match
	unresolved := 0
	resolve := func(scraped string) (string, *string) {
		res := resolver.Resolve(scraped, registry)
		if !res.Resolved() {
			unresolved++
			log.Info("Unresolved team name", logger.Fields{"name": scraped, "section": SectionMatches})
			return scraped, nil
		}
		id := res.ID
		return res.Name, &id
	}

	for f := range extract.Matches(doc, src.Layout) {
		m := &store.Match{
			SourceGroupID: src.Group(),
			Round:         f.Round,
			Date:          f.Date,
			Time:          f.Time,
			Status:        store.StatusScheduled,
		}
		m.HomeTeamName, m.HomeTeamID = resolve(f.Home)
		m.AwayTeamName, m.AwayTeamID = resolve(f.Away)
		if f.Played {
			m.Status = store.StatusFinal
			m.HomeScore = f.HomeScore
			m.AwayScore = f.AwayScore
			m.SetDetail = f.SetDetail
		}
		matches = append(matches, m)
	}
	return matches, unresolved
}

func (r *Runner) logFailure(log *logger.Logger, sr SectionReport, err error) {
	fields := logger.Fields{"section": sr.Section, "error_kind": sr.ErrorKind}
	switch sr.ErrorKind {
	case ErrKindExtractionEmpty:
		log.Warn("Page yielded no records, layout may have changed", fields)
	case ErrKindValidation:
		log.Warn("Extracted records failed validation, nothing written", fields)
	default:
		log.Error("Section failed", fields, err)
	}
}

func (r *Runner) publish(ctx context.Context, report *Report, log *logger.Logger) {
	for _, sink := range r.sinks {
		if err := sink.PublishRun(ctx, report); err != nil {
			log.Warn("Failed to publish run report", logger.Fields{"error": err.Error()})
		}
	}
}
