package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/models"
)

// ScoreWeights is the point budget of each scoring slot. Weights are
// configuration, not law; DefaultScoreWeights sums to 100.
type ScoreWeights struct {
	ServiceRelevance float64
	TagOverlap       float64
	Location         float64
	Budget           float64
	Experience       float64
	Certification    float64
	Availability     float64
	Deposit          float64
}

// DefaultScoreWeights is the reference weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		ServiceRelevance: 30,
		TagOverlap:       20,
		Location:         20,
		Budget:           15,
		Experience:       5,
		Certification:    4,
		Availability:     3,
		Deposit:          3,
	}
}

// Budget bands: within each percentage difference the slot is worth the
// given fraction of its maximum.
var budgetBands = []struct {
	maxDiff  float64
	fraction float64
}{
	{0.10, 1.0},
	{0.20, 0.75},
	{0.30, 0.5},
	{0.50, 0.25},
}

const budgetMinimalFraction = 0.1

// meaningfulFraction is the slot fraction above which a human-readable
// reason is emitted. Reasons are for display only, never for ranking.
const meaningfulFraction = 0.5

// Scorer computes a composite match score for one (task, provider) pair.
type Scorer struct {
	Weights ScoreWeights
}

func NewScorer(weights ScoreWeights) *Scorer {
	return &Scorer{Weights: weights}
}

// Score ranks a candidate provider against a task across its pre-filtered
// service catalog. The result is deterministic for identical input.
func (s *Scorer) Score(task *models.Task, provider *models.Provider, services []*models.Service) models.ProviderMatch {
	w := s.Weights

	// A task with no tags and no category has nothing to fail against:
	// tag/category slots score full rather than penalizing sparse tasks.
	sparse := len(task.Tags) == 0 && task.CategoryID == nil

	relevant, matchedTags, categoryMatched := relevantServices(task, services)
	if sparse {
		relevant = services
	}

	relevanceFrac := 0.0
	switch {
	case sparse:
		relevanceFrac = 1.0
	case categoryMatched:
		relevanceFrac = 1.0
	case len(relevant) > 0:
		relevanceFrac = 0.75
	}

	tagFrac := 1.0
	if len(task.Tags) > 0 {
		tagFrac = float64(len(matchedTags)) / float64(len(task.Tags))
	}

	locFrac, distance := LocationScore(task.Location, task.Remote, task.MaxDistanceKm, provider.Location)

	budgetFrac := budgetFraction(task.Budget, relevant)

	experienceFrac := boolFraction(provider.CompanyTrained)
	certificationFrac := boolFraction(provider.IDVerified)
	if task.RequiresVerified && !provider.IDVerified {
		certificationFrac = 0
	}
	availabilityFrac := boolFraction(provider.AlwaysAvailable)
	depositFrac := boolFraction(provider.RequiresDeposit)

	breakdown := models.ScoreBreakdown{
		ServiceRelevance: relevanceFrac * w.ServiceRelevance,
		TagOverlap:       tagFrac * w.TagOverlap,
		Location:         locFrac * w.Location,
		Budget:           budgetFrac * w.Budget,
		Experience:       experienceFrac * w.Experience,
		Certification:    certificationFrac * w.Certification,
		Availability:     availabilityFrac * w.Availability,
		Deposit:          depositFrac * w.Deposit,
	}

	total := breakdown.ServiceRelevance + breakdown.TagOverlap + breakdown.Location +
		breakdown.Budget + breakdown.Experience + breakdown.Certification +
		breakdown.Availability + breakdown.Deposit
	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	// Display order: service relevance, proximity, skill/tag match, category
	// match, trust attributes.
	var reasons []string
	if relevanceFrac >= meaningfulFraction && len(relevant) > 0 {
		reasons = append(reasons, "offers relevant services")
	}
	if locFrac >= meaningfulFraction {
		if distance != nil {
			reasons = append(reasons, fmt.Sprintf("nearby (%.1f km away)", *distance))
		} else {
			reasons = append(reasons, "serves your area")
		}
	}
	if len(task.Tags) > 0 && tagFrac >= meaningfulFraction {
		reasons = append(reasons, fmt.Sprintf("matches %d of %d requested skills", len(matchedTags), len(task.Tags)))
	}
	if categoryMatched {
		reasons = append(reasons, "works in your category")
	}
	if experienceFrac > 0 {
		reasons = append(reasons, "company trained")
	}
	if certificationFrac > 0 {
		reasons = append(reasons, "identity verified")
	}
	if availabilityFrac > 0 {
		reasons = append(reasons, "available any time")
	}

	ids := make([]uuid.UUID, 0, len(relevant))
	for _, svc := range relevant {
		ids = append(ids, svc.ID)
	}

	return models.ProviderMatch{
		ProviderID:        provider.ID,
		Score:             score,
		MatchedServiceIDs: ids,
		Reasons:           reasons,
		DistanceKm:        distance,
		Breakdown:         &breakdown,
	}
}

// relevantServices returns the services whose category matches the task's or
// whose tags intersect the task's, along with the set of task tags covered
// and whether any category matched.
func relevantServices(task *models.Task, services []*models.Service) ([]*models.Service, map[string]bool, bool) {
	taskTags := make(map[string]bool, len(task.Tags))
	for _, tag := range task.Tags {
		taskTags[normalizeTag(tag)] = true
	}

	matchedTags := make(map[string]bool)
	categoryMatched := false
	var relevant []*models.Service
	for _, svc := range services {
		hit := false
		if task.CategoryID != nil && svc.CategoryID != nil && *svc.CategoryID == *task.CategoryID {
			hit = true
			categoryMatched = true
		}
		for _, tag := range svc.Tags {
			if taskTags[normalizeTag(tag)] {
				hit = true
				matchedTags[normalizeTag(tag)] = true
			}
		}
		if hit {
			relevant = append(relevant, svc)
		}
	}
	return relevant, matchedTags, categoryMatched
}

// budgetFraction scores how far the provider's average relevant price sits
// from the task's target budget. Without a budget or priced services there is
// nothing to compare, which counts as compatible.
func budgetFraction(budget *models.BudgetRange, services []*models.Service) float64 {
	if budget == nil || len(services) == 0 {
		return 1.0
	}
	target := budget.Target()
	if target <= 0 {
		return 1.0
	}
	var sum float64
	for _, svc := range services {
		sum += svc.BasePrice
	}
	avg := sum / float64(len(services))
	diff := math.Abs(avg-target) / target
	for _, band := range budgetBands {
		if diff <= band.maxDiff {
			return band.fraction
		}
	}
	return budgetMinimalFraction
}

func boolFraction(b bool) float64 {
	if b {
		return 1.0
	}
	return 0
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
