package reconciliation

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/fortuna/volleysync/internal/store"
	"github.com/fortuna/volleysync/internal/textnorm"
)

const (
	// minContainmentRatio is the shorter/longer length floor for strict
	// containment matches.
	minContainmentRatio = 0.7
	// maxEditRatio is the Levenshtein distance ceiling, relative to the
	// longer name.
	maxEditRatio = 0.2
)

// Tier names the rule that produced a match.
type Tier string

const (
	TierNone         Tier = ""
	TierExact        Tier = "exact"
	TierContainment  Tier = "containment"
	TierEditDistance Tier = "edit_distance"
)

type registryEntry struct {
	name       string
	normalized string
	id         string
}

// Registry maps canonical team names to IDs.
type Registry struct {
	entries []registryEntry
}

// NewRegistry builds a registry from canonical name -> id.
func NewRegistry(names map[string]string) *Registry {
	r := &Registry{}
	for name, id := range names {
		r.entries = append(r.entries, registryEntry{
			name:       name,
			normalized: textnorm.NormalizeTeamName(name),
			id:         id,
		})
	}
	// deterministic tie-breaking inside a tier
	sort.Slice(r.entries, func(i, j int) bool {
		return r.entries[i].normalized < r.entries[j].normalized
	})
	return r
}

// RegistryFromTeams builds a registry from stored teams.
func RegistryFromTeams(teams []*store.Team) *Registry {
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.CanonicalName] = t.ID
	}
	return NewRegistry(names)
}

// Len returns the number of registered teams.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Resolution is the outcome of resolving one scraped name.
type Resolution struct {
	ID   string
	Name string
	Tier Tier
}

// Resolved reports whether a registry entry matched.
func (r Resolution) Resolved() bool {
	return r.Tier != TierNone
}

// Resolver matches scraped team names against a Registry
type Resolver struct {
	// Strict enables the cross-league rules: containment requires the
	// shorter name to be at least 70% of the longer, and an edit-distance
	// tier is tried last.
	Strict bool
}

// NewResolver creates a resolver.
func NewResolver(strict bool) *Resolver {
	return &Resolver{Strict: strict}
}

// Resolve finds the registry entry for scraped. An unresolved name comes
// back with its scraped spelling and an empty ID.
func (m *Resolver) Resolve(scraped string, registry *Registry) Resolution {
	miss := Resolution{Name: scraped}
	if registry == nil {
		return miss
	}

	name := textnorm.NormalizeTeamName(scraped)
	if name == "" {
		return miss
	}

	for _, e := range registry.entries {
		if e.normalized == name {
			return Resolution{ID: e.id, Name: e.name, Tier: TierExact}
		}
	}

	for _, e := range registry.entries {
		if m.contains(name, e.normalized) {
			return Resolution{ID: e.id, Name: e.name, Tier: TierContainment}
		}
	}

	if !m.Strict {
		return miss
	}

	for _, e := range registry.entries {
		longer := max(len([]rune(name)), len([]rune(e.normalized)))
		if float64(levenshtein.ComputeDistance(name, e.normalized)) < maxEditRatio*float64(longer) {
			return Resolution{ID: e.id, Name: e.name, Tier: TierEditDistance}
		}
	}

	return miss
}

func (m *Resolver) contains(a, b string) bool {
	if b == "" {
		return false
	}
	shorter, longer := a, b
	if len([]rune(shorter)) > len([]rune(longer)) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return false
	}
	if m.Strict {
		return float64(len([]rune(shorter))) >= minContainmentRatio*float64(len([]rune(longer)))
	}
	return true
}
