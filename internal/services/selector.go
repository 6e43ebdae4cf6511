package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/models"
)

// SelectorProviderRepo is the provider lookup capability candidate selection
// needs.
type SelectorProviderRepo interface {
	FindActiveByRegion(ctx context.Context, region string) ([]*models.Provider, error)
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Provider, error)
	FindAllActive(ctx context.Context) ([]*models.Provider, error)
}

// SelectorServiceRepo is the catalog lookup capability candidate selection
// needs.
type SelectorServiceRepo interface {
	SearchActive(ctx context.Context, keywords []string, tags []string, categoryID *uuid.UUID) ([]*models.Service, error)
	FindActiveByProviderIDs(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID][]*models.Service, error)
}

// CandidateSet is the bounded provider population handed to the scoring
// engine. CatalogMatched false tells the orchestrator that no service in the
// system plausibly matches, so location-only is the only viable strategy.
type CandidateSet struct {
	Providers          []*models.Provider
	ServicesByProvider map[uuid.UUID][]*models.Service
	SearchTerms        []string
	CatalogMatched     bool
}

// Selector bounds the scoring engine's input: scoring every provider in the
// system is wasteful and noisy, so only candidates with any plausible match
// get scored.
type Selector struct {
	Providers SelectorProviderRepo
	Services  SelectorServiceRepo
}

func NewSelector(providers SelectorProviderRepo, services SelectorServiceRepo) *Selector {
	return &Selector{Providers: providers, Services: services}
}

// Select unions the location-filtered and service-matched provider sets for
// the task and loads their catalogs.
func (s *Selector) Select(ctx context.Context, task *models.Task) (*CandidateSet, error) {
	byID := make(map[uuid.UUID]*models.Provider)

	located, err := s.SelectByLocation(ctx, task)
	if err != nil {
		return nil, err
	}
	for _, p := range located {
		byID[p.ID] = p
	}

	terms := ExtractKeywords(task.Title + " " + task.Description)
	matchedServices, err := s.Services.SearchActive(ctx, terms, task.Tags, task.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("search services: %w", err)
	}

	var serviceProviderIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, svc := range matchedServices {
		if !seen[svc.ProviderID] {
			seen[svc.ProviderID] = true
			serviceProviderIDs = append(serviceProviderIDs, svc.ProviderID)
		}
	}
	if len(serviceProviderIDs) > 0 {
		matched, err := s.Providers.FindActiveByIDs(ctx, serviceProviderIDs)
		if err != nil {
			return nil, fmt.Errorf("load matched providers: %w", err)
		}
		for _, p := range matched {
			byID[p.ID] = p
		}
	}

	providers := make([]*models.Provider, 0, len(byID))
	for _, p := range byID {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].ID.String() < providers[j].ID.String()
	})

	catalogs := make(map[uuid.UUID][]*models.Service)
	if len(providers) > 0 {
		ids := make([]uuid.UUID, len(providers))
		for i, p := range providers {
			ids[i] = p.ID
		}
		catalogs, err = s.Services.FindActiveByProviderIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load catalogs: %w", err)
		}
	}

	return &CandidateSet{
		Providers:          providers,
		ServicesByProvider: catalogs,
		SearchTerms:        terms,
		CatalogMatched:     len(matchedServices) > 0,
	}, nil
}

// SelectByLocation filters providers to the task's area: all of them for a
// remote task, the task's region otherwise, tightened by the max-travel
// constraint when both sides carry coordinates.
func (s *Selector) SelectByLocation(ctx context.Context, task *models.Task) ([]*models.Provider, error) {
	if task.Remote {
		providers, err := s.Providers.FindAllActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("load providers: %w", err)
		}
		return providers, nil
	}

	providers, err := s.Providers.FindActiveByRegion(ctx, task.Location.Region)
	if err != nil {
		return nil, fmt.Errorf("load providers by region: %w", err)
	}

	if task.MaxDistanceKm == nil || !task.Location.HasCoordinates() {
		return providers, nil
	}
	var within []*models.Provider
	for _, p := range providers {
		if !p.Location.HasCoordinates() {
			within = append(within, p)
			continue
		}
		dist := HaversineKm(*task.Location.Latitude, *task.Location.Longitude, *p.Location.Latitude, *p.Location.Longitude)
		if dist <= *task.MaxDistanceKm {
			within = append(within, p)
		}
	}
	return within, nil
}

// stopwords excluded from extracted search terms.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "need": true,
	"needs": true, "needed": true, "want": true, "looking": true,
	"have": true, "has": true, "this": true, "that": true, "from": true,
	"some": true, "someone": true, "help": true, "please": true,
	"will": true, "would": true, "can": true, "could": true, "should": true,
	"must": true, "about": true, "very": true, "our": true, "your": true,
	"their": true, "them": true, "they": true, "are": true, "was": true,
	"were": true, "been": true, "being": true, "into": true, "out": true,
	"who": true, "what": true, "when": true, "where": true, "how": true,
	"any": true, "all": true, "not": true, "but": true, "its": true,
}

// ExtractKeywords tokenizes free text into case-folded search terms,
// dropping stopwords and tokens shorter than three characters. Order follows
// first appearance; duplicates collapse.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
