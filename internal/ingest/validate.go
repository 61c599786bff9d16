package ingest

import (
	"fmt"

	"github.com/fortuna/volleysync/internal/store"
)

func validateTeams(src Source, teams []*store.Team) error {
	keys := make([]string, len(teams))
	for i, t := range teams {
		keys[i] = t.NaturalKey()
	}
	return validateKeys(src, SectionStandings, keys)
}

func validateMatches(src Source, matches []*store.Match) error {
	keys := make([]string, len(matches))
	for i, m := range matches {
		keys[i] = m.DocumentID()
	}
	return validateKeys(src, SectionMatches, keys)
}

// validateKeys checks the record count floor and key uniqueness. Matches
// are keyed by document ID, so names that slug alike collide.
func validateKeys(src Source, section string, keys []string) error {
	if len(keys) < src.MinRecords {
		return &ValidationError{
			Source:  src.ID,
			Section: section,
			Reason:  "too few records",
			Count:   len(keys),
			Min:     src.MinRecords,
		}
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return &ValidationError{
				Source:  src.ID,
				Section: section,
				Reason:  fmt.Sprintf("duplicate key %s", k),
				Count:   len(keys),
			}
		}
		seen[k] = struct{}{}
	}
	return nil
}
