package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/localpro/backend/internal/models"
)

// MatchConfig tunes the orchestrator. Reference defaults in
// DefaultMatchConfig; the bands and ordering are the contract, not the exact
// constants.
type MatchConfig struct {
	// MinimumScore is the inclusive score threshold a match must reach.
	MinimumScore int
	// MaxProviders caps the returned match list.
	MaxProviders int
	// FallbackThreshold: fewer surviving intelligent matches than this
	// trigger an automatic location-only rerun.
	FallbackThreshold int
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MinimumScore:      40,
		MaxProviders:      20,
		FallbackThreshold: 3,
	}
}

// scoreWorkers bounds the parallel scoring fan-out per matching run.
const scoreWorkers = 8

// MatchResult is the outcome of one matching run.
type MatchResult struct {
	Matches []models.ProviderMatch
	// Strategy actually used, after any fallback.
	Strategy        string
	Fallback        bool
	SearchTerms     []string
	CategoryMatched bool
}

// Criteria returns the audit snapshot recorded on the task.
func (r *MatchResult) Criteria() *models.MatchingCriteria {
	return &models.MatchingCriteria{
		Strategy:        r.Strategy,
		SearchTerms:     r.SearchTerms,
		CategoryMatched: r.CategoryMatched,
		UseLocationOnly: r.Strategy == models.StrategyLocationOnly,
	}
}

// Matcher runs candidate selection and scoring and decides when to fall back
// from intelligent matching to location-only. Callers never retry: the
// fallback happens automatically.
type Matcher struct {
	Selector *Selector
	Scorer   *Scorer
	Config   MatchConfig
}

func NewMatcher(selector *Selector, scorer *Scorer, cfg MatchConfig) *Matcher {
	return &Matcher{Selector: selector, Scorer: scorer, Config: cfg}
}

// Match executes the requested strategy for the task.
func (m *Matcher) Match(ctx context.Context, task *models.Task, strategy string) (*MatchResult, error) {
	switch strategy {
	case "", models.StrategyIntelligent:
		return m.matchIntelligent(ctx, task)
	case models.StrategyLocationOnly:
		return m.matchLocationOnly(ctx, task, false, nil)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrValidation, strategy)
	}
}

func (m *Matcher) matchIntelligent(ctx context.Context, task *models.Task) (*MatchResult, error) {
	candidates, err := m.Selector.Select(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	if !candidates.CatalogMatched {
		// No catalog overlap anywhere in the system; only geography can rank.
		return m.matchLocationOnly(ctx, task, true, candidates.SearchTerms)
	}

	// Scoring is independent per candidate; results land at fixed indexes so
	// parallel execution cannot perturb ordering.
	scored := make([]models.ProviderMatch, len(candidates.Providers))
	categoryHits := make([]bool, len(candidates.Providers))
	sem := make(chan struct{}, scoreWorkers)
	var wg sync.WaitGroup
	for i, p := range candidates.Providers {
		wg.Add(1)
		go func(i int, p *models.Provider) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			catalog := candidates.ServicesByProvider[p.ID]
			scored[i] = m.Scorer.Score(task, p, catalog)
			_, _, categoryHits[i] = relevantServices(task, catalog)
		}(i, p)
	}
	wg.Wait()

	categoryMatched := false
	var matches []models.ProviderMatch
	for i, match := range scored {
		if match.Score < m.Config.MinimumScore {
			continue
		}
		matches = append(matches, match)
		if categoryHits[i] {
			categoryMatched = true
		}
	}

	if len(matches) < m.Config.FallbackThreshold {
		return m.matchLocationOnly(ctx, task, true, candidates.SearchTerms)
	}

	sortMatches(matches)
	return &MatchResult{
		Matches:         truncate(matches, m.Config.MaxProviders),
		Strategy:        models.StrategyIntelligent,
		SearchTerms:     candidates.SearchTerms,
		CategoryMatched: categoryMatched,
	}, nil
}

// matchLocationOnly scores every provider in the task's area purely on the
// proximity bands, spread over the full 100-point scale.
func (m *Matcher) matchLocationOnly(ctx context.Context, task *models.Task, fallback bool, terms []string) (*MatchResult, error) {
	providers, err := m.Selector.SelectByLocation(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("select by location: %w", err)
	}

	var matches []models.ProviderMatch
	for _, p := range providers {
		frac, dist := LocationScore(task.Location, task.Remote, task.MaxDistanceKm, p.Location)
		score := int(math.Round(frac * 100))
		if score <= 0 {
			continue
		}
		reason := "serves your area"
		if dist != nil {
			reason = fmt.Sprintf("nearby (%.1f km away)", *dist)
		}
		matches = append(matches, models.ProviderMatch{
			ProviderID: p.ID,
			Score:      score,
			Reasons:    []string{reason},
			DistanceKm: dist,
		})
	}

	sortMatches(matches)
	return &MatchResult{
		Matches:     truncate(matches, m.Config.MaxProviders),
		Strategy:    models.StrategyLocationOnly,
		Fallback:    fallback,
		SearchTerms: terms,
	}, nil
}

// sortMatches orders by score descending, ties broken by provider id so
// results are deterministic regardless of scoring order.
func sortMatches(matches []models.ProviderMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ProviderID.String() < matches[j].ProviderID.String()
	})
}

func truncate(matches []models.ProviderMatch, max int) []models.ProviderMatch {
	if max > 0 && len(matches) > max {
		return matches[:max]
	}
	return matches
}
