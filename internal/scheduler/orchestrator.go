package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortuna/volleysync/internal/changegate"
	"github.com/fortuna/volleysync/internal/ingest"
	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/store"
)

var (
	// ErrUnknownSource is returned when a trigger names no configured source.
	ErrUnknownSource = errors.New("unknown source")

	// ErrNotRunning is returned by Trigger when the loop is stopped.
	ErrNotRunning = errors.New("scheduler is not running")
)

// JobRunner runs one source job.
type JobRunner interface {
	Run(ctx context.Context, src ingest.Source, force bool) (*ingest.Report, error)
}

// StateReader reads gate state per key.
type StateReader interface {
	State(ctx context.Context, key string) (store.ScrapeState, error)
}

// Config holds scheduler configuration
type Config struct {
	Tick       time.Duration // Default: 30s
	RunOnStart bool          // Default: true
	MaxRetries int           // Default: 3, fetch errors only
	RetryDelay time.Duration // Default: 10s
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Tick:       30 * time.Second,
		RunOnStart: true,
		MaxRetries: 3,
		RetryDelay: 10 * time.Second,
	}
}

type trigger struct {
	id    string
	force bool
	reply chan triggerResult
}

type triggerResult struct {
	report *ingest.Report
	err    error
}

// Orchestrator walks the configured sources from a single goroutine, so
// two jobs for the same source never overlap. Manual triggers are handed
// to that goroutine instead of running on the caller's.
type Orchestrator struct {
	runner  JobRunner
	states  StateReader
	sources []ingest.Source
	config  *Config
	log     *logger.Logger
	now     func() time.Time

	triggers chan trigger
	running  chan struct{}
	cancel   context.CancelFunc

	mu   sync.RWMutex
	next map[string]time.Time
	last map[string]*ingest.Report
}

// NewOrchestrator creates a new scheduler orchestrator
func NewOrchestrator(runner JobRunner, states StateReader, sources []ingest.Source, config *Config, log *logger.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		runner:   runner,
		states:   states,
		sources:  sources,
		config:   config,
		log:      log.With(logger.Fields{"component": "scheduler"}),
		now:      time.Now,
		triggers: make(chan trigger),
		next:     make(map[string]time.Time),
		last:     make(map[string]*ingest.Report),
	}
}

// Start runs the scheduling loop until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.running = make(chan struct{})
	running := o.running
	o.mu.Unlock()
	defer close(running)

	o.log.Info("Scheduler started", logger.Fields{
		"sources":      len(o.sources),
		"tick":         o.config.Tick.String(),
		"run_on_start": o.config.RunOnStart,
	})

	if !o.config.RunOnStart {
		for _, src := range o.sources {
			o.schedule(ctx, src, nil)
		}
	}
	o.runDue(ctx)

	ticker := time.NewTicker(o.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("Scheduler stopped", nil)
			return
		case <-ticker.C:
			o.runDue(ctx)
		case t := <-o.triggers:
			src, _ := o.Source(t.id)
			report, err := o.runOne(ctx, src, t.force)
			t.reply <- triggerResult{report: report, err: err}
		}
	}
}

// Stop gracefully stops the scheduler
func (o *Orchestrator) Stop() {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Trigger asks the loop to run source id now and waits for the report.
func (o *Orchestrator) Trigger(ctx context.Context, id string, force bool) (*ingest.Report, error) {
	if _, ok := o.Source(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	o.mu.RLock()
	running := o.running
	o.mu.RUnlock()
	if running == nil {
		return nil, ErrNotRunning
	}

	t := trigger{id: id, force: force, reply: make(chan triggerResult, 1)}
	select {
	case o.triggers <- t:
	case <-running:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-t.reply:
		return res.report, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sources returns the configured sources.
func (o *Orchestrator) Sources() []ingest.Source {
	return o.sources
}

// Source looks up one source by ID.
func (o *Orchestrator) Source(id string) (ingest.Source, bool) {
	for _, src := range o.sources {
		if src.ID == id {
			return src, true
		}
	}
	return ingest.Source{}, false
}

// State returns the gate state of every section of source id.
func (o *Orchestrator) State(ctx context.Context, id string) (map[string]store.ScrapeState, error) {
	src, ok := o.Source(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	states := make(map[string]store.ScrapeState)
	for _, section := range src.Sections() {
		st, err := o.states.State(ctx, changegate.SectionKey(src.ID, section))
		if err != nil {
			return nil, err
		}
		states[section] = st
	}
	return states, nil
}

// NextRun returns when source id is due.
func (o *Orchestrator) NextRun(id string) time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.next[id]
}

// LastReport returns the latest report of source id, or nil.
func (o *Orchestrator) LastReport(id string) *ingest.Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last[id]
}

// LastReports returns the latest report of every source that ran.
func (o *Orchestrator) LastReports() []*ingest.Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reports := make([]*ingest.Report, 0, len(o.last))
	for _, src := range o.sources {
		if r, ok := o.last[src.ID]; ok {
			reports = append(reports, r)
		}
	}
	return reports
}

func (o *Orchestrator) runDue(ctx context.Context) {
	for _, src := range o.sources {
		if ctx.Err() != nil {
			return
		}
		if o.now().Before(o.NextRun(src.ID)) {
			continue
		}
		o.runOne(ctx, src, false)
	}
}

// runOne runs src, retrying fetch failures, and schedules its next run.
func (o *Orchestrator) runOne(ctx context.Context, src ingest.Source, force bool) (*ingest.Report, error) {
	log := o.log.With(logger.Fields{"source": src.ID})

	var report *ingest.Report
	var err error
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		report, err = o.runner.Run(ctx, src, force)
		if err == nil || ingest.ErrorKind(err) != ingest.ErrKindFetch {
			break
		}

		log.Warn("Fetch attempt failed", logger.Fields{
			"attempt":      attempt,
			"max_attempts": o.config.MaxRetries,
			"error":        err.Error(),
		})
		if attempt < o.config.MaxRetries {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(o.config.RetryDelay):
			}
		}
	}

	o.mu.Lock()
	if report != nil {
		o.last[src.ID] = report
	}
	o.mu.Unlock()

	o.schedule(ctx, src, err)
	return report, err
}

// schedule sets the next due time from the source's interval override or
// from the gate backoff of its most active section.
func (o *Orchestrator) schedule(ctx context.Context, src ingest.Source, runErr error) {
	delay := src.Interval
	if delay <= 0 {
		delay = changegate.NextDelay(0)
		if runErr == nil {
			delay = o.backoff(ctx, src)
		}
	}

	next := o.now().Add(delay)
	o.mu.Lock()
	o.next[src.ID] = next
	o.mu.Unlock()

	o.log.Debug("Next run scheduled", logger.Fields{
		"source": src.ID,
		"next":   next.Format(time.RFC3339),
		"delay":  delay.String(),
	})
}

func (o *Orchestrator) backoff(ctx context.Context, src ingest.Source) time.Duration {
	states, err := o.State(ctx, src.ID)
	if err != nil || len(states) == 0 {
		return changegate.NextDelay(0)
	}
	fewest := -1
	for _, st := range states {
		if fewest < 0 || st.ConsecutiveNoChange < fewest {
			fewest = st.ConsecutiveNoChange
		}
	}
	return changegate.NextDelay(fewest)
}
