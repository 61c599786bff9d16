package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/volleysync/internal/logger"
	"github.com/fortuna/volleysync/internal/reconciliation"
)

// SeedResult counts records created by Seed.
type SeedResult struct {
	Teams   reconciliation.CreateResult `json:"teams"`
	Matches reconciliation.CreateResult `json:"matches"`
}

// Seed scrapes src and explicitly creates the teams and fixtures that do
// not exist yet. It bypasses the change gate and never updates existing
// records.
func (r *Runner) Seed(ctx context.Context, src Source) (SeedResult, error) {
	var res SeedResult
	if r.creator == nil {
		return res, errors.New("seeding requires a creator")
	}
	log := r.log.With(logger.Fields{"source": src.ID, "group": src.Group(), "op": "seed"})
	pages := make(map[string]*goquery.Document)
	resolver := reconciliation.NewResolver(src.Strict)

	for _, section := range src.Sections() {
		doc, err := r.load(ctx, src, section, pages)
		if err != nil {
			return res, err
		}
		registry, err := r.registry(ctx, src)
		if err != nil {
			return res, err
		}

		switch section {
		case SectionStandings:
			teams, _ := r.buildTeams(doc, src, resolver, registry, log)
			if len(teams) == 0 {
				return res, fmt.Errorf("%w: %s %s", ErrExtractionEmpty, src.ID, section)
			}
			if err := validateTeams(src, teams); err != nil {
				return res, err
			}
			if res.Teams, err = r.creator.CreateTeams(ctx, src.Group(), teams); err != nil {
				return res, err
			}
		default:
			matches, _ := r.buildMatches(doc, src, resolver, registry, log)
			if len(matches) == 0 {
				return res, fmt.Errorf("%w: %s %s", ErrExtractionEmpty, src.ID, section)
			}
			if err := validateMatches(src, matches); err != nil {
				return res, err
			}
			if res.Matches, err = r.creator.CreateMatches(ctx, src.Group(), matches); err != nil {
				return res, err
			}
		}
	}

	log.Info("Seed complete", logger.Fields{
		"teams_created":   res.Teams.Created,
		"matches_created": res.Matches.Created,
	})
	return res, nil
}

var _ Creator = (*reconciliation.Engine)(nil)
