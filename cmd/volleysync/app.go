package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortuna/volleysync/internal/api/rest"
	"github.com/fortuna/volleysync/internal/api/websocket"
	"github.com/fortuna/volleysync/internal/cache"
	"github.com/fortuna/volleysync/internal/changegate"
	"github.com/fortuna/volleysync/internal/config"
	"github.com/fortuna/volleysync/internal/ingest"
	"github.com/fortuna/volleysync/internal/ingest/fetch"
	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/metrics"
	"github.com/fortuna/volleysync/internal/publisher"
	"github.com/fortuna/volleysync/internal/reconciliation"
	"github.com/fortuna/volleysync/internal/service"
	"github.com/fortuna/volleysync/internal/store/repository"
)

// app holds every wired component of one process.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	docs    *config.Store
	redis   *cache.RedisCache
	gate    *changegate.Gate
	league  *service.LeagueService
	runner  *ingest.Runner
	metrics *metrics.Manager
	hub     *websocket.Hub
	sources []ingest.Source
	health  []rest.HealthChecker

	closers []func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, hub: websocket.NewHub()}

	zapSink, err := logger.NewZapSink(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { zapSink.Sync(); return nil })
	a.log = logger.New(logger.ParseLevel(cfg.LogLevel), logger.Multi(zapSink, a.hub))

	env, _ := cfg.Active()
	a.docs, err = env.Open(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.docs.Close)
	a.health = append(a.health, a.docs)
	a.log.Info("Connected to document store", logger.Fields{"environment": cfg.Environment, "driver": env.Driver})

	if cfg.RedisURL != "" {
		a.redis, err = cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, a.redis.Close)
		a.health = append(a.health, a.redis)
		a.log.Info("Connected to Redis", nil)
	}

	var states changegate.StateStore = repository.NewStateRepository(a.docs, cfg.Collections.State)
	if cfg.StateBackend == "redis" {
		states = a.redis
	}

	var gateOpts []changegate.Option
	if cfg.Hasher == "xxhash" {
		gateOpts = append(gateOpts, changegate.WithHasher(changegate.XXHasher))
	}
	a.gate = changegate.New(states, gateOpts...)

	teams := repository.NewTeamRepository(a.docs, cfg.Collections.Teams)
	matches := repository.NewMatchRepository(a.docs, cfg.Collections.Matches)
	engine := reconciliation.NewEngine(teams, matches, a.log)
	a.league = service.NewLeagueService(teams, matches)

	var reconciler reconciliation.Reconciler = engine
	if cfg.Precheck.Enabled {
		reconciler = reconciliation.NewSamplePrecheck(engine, cfg.Precheck.SampleSize)
	}

	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	a.sources = cfg.IngestSources()

	opts := []ingest.Option{
		ingest.WithCreator(engine),
		ingest.WithMetrics(a.metrics),
		ingest.WithReportSink(a.hub),
		ingest.WithFetcher(ingest.RenderHTTP, fetch.NewHTTPClient(
			fetch.WithUserAgent(cfg.HTTP.UserAgent),
			fetch.WithTimeout(cfg.HTTP.Timeout),
			fetch.WithMinInterval(cfg.HTTP.MinInterval),
		)),
	}
	if needsBrowser(a.sources) {
		browser := fetch.NewBrowserClient(cfg.HTTP.UserAgent, cfg.HTTP.MinInterval)
		a.closers = append(a.closers, func() error { browser.Close(); return nil })
		opts = append(opts, ingest.WithFetcher(ingest.RenderBrowser, browser))
	}
	if a.redis != nil {
		opts = append(opts, ingest.WithReportSink(publisher.NewRedisStreamPublisher(a.redis.Client(), cfg.RunStream)))
	}

	a.runner = ingest.NewRunner(a.gate, teams, reconciler, a.log, opts...)
	return a, nil
}

func needsBrowser(sources []ingest.Source) bool {
	for _, src := range sources {
		if src.Render == ingest.RenderBrowser {
			return true
		}
	}
	return false
}

func (a *app) source(id string) (ingest.Source, error) {
	for _, src := range a.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return ingest.Source{}, fmt.Errorf("unknown source %q", id)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
