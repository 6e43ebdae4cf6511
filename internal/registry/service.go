package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/models"
)

// ErrNoProfile is returned when a provider operation runs for an account that
// has not created a provider profile yet.
var ErrNoProfile = errors.New("no provider profile for account")

// ErrNotOwner is returned when a provider edits a catalog entry owned by
// someone else.
var ErrNotOwner = errors.New("service not owned by provider")

// ProviderRepo is the provider persistence the registry needs. Shared with
// candidate selection so registration and matching see the same rows.
type ProviderRepo interface {
	Create(ctx context.Context, p *models.Provider) error
	Update(ctx context.Context, p *models.Provider) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Provider, error)
}

// ServiceRepo is the catalog persistence the registry needs.
type ServiceRepo interface {
	Create(ctx context.Context, s *models.Service) error
	Update(ctx context.Context, s *models.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	FindActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Service, error)
}

type CreateProfileInput struct {
	DisplayName     string          `json:"display_name"`
	Location        models.Location `json:"location"`
	AlwaysAvailable bool            `json:"always_available"`
	WorkingHours    json.RawMessage `json:"working_hours,omitempty"`
	CompanyTrained  bool            `json:"company_trained"`
	IDVerified      bool            `json:"id_verified"`
	RequiresDeposit bool            `json:"requires_deposit"`
}

type RegisterServiceInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	BasePrice   float64    `json:"base_price"`
	Currency    string     `json:"currency"`
}

type Service interface {
	CreateProfile(ctx context.Context, accountID uuid.UUID, in CreateProfileInput) (*models.Provider, error)
	GetProfile(ctx context.Context, accountID uuid.UUID) (*models.Provider, error)
	RegisterService(ctx context.Context, accountID uuid.UUID, in RegisterServiceInput) (*models.Service, error)
	ListServices(ctx context.Context, accountID uuid.UUID) ([]*models.Service, error)
	DeactivateService(ctx context.Context, accountID, serviceID uuid.UUID) error
}

type service struct {
	providers ProviderRepo
	services  ServiceRepo
}

func NewService(providers ProviderRepo, services ServiceRepo) Service {
	return &service{providers: providers, services: services}
}

// normalizeTags lowercases each tag so matching is case-insensitive.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *service) CreateProfile(ctx context.Context, accountID uuid.UUID, in CreateProfileInput) (*models.Provider, error) {
	p := &models.Provider{
		ID:              uuid.New(),
		AccountID:       accountID,
		DisplayName:     in.DisplayName,
		Location:        in.Location,
		AlwaysAvailable: in.AlwaysAvailable,
		WorkingHours:    in.WorkingHours,
		CompanyTrained:  in.CompanyTrained,
		IDVerified:      in.IDVerified,
		RequiresDeposit: in.RequiresDeposit,
		Active:          true,
	}
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) GetProfile(ctx context.Context, accountID uuid.UUID) (*models.Provider, error) {
	p, err := s.providers.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoProfile
	}
	return p, nil
}

func (s *service) RegisterService(ctx context.Context, accountID uuid.UUID, in RegisterServiceInput) (*models.Service, error) {
	p, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	svc := &models.Service{
		ID:          uuid.New(),
		ProviderID:  p.ID,
		Title:       in.Title,
		Description: in.Description,
		Tags:        normalizeTags(in.Tags),
		CategoryID:  in.CategoryID,
		BasePrice:   in.BasePrice,
		Currency:    in.Currency,
		Active:      true,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *service) ListServices(ctx context.Context, accountID uuid.UUID) ([]*models.Service, error) {
	p, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.services.FindActiveByProvider(ctx, p.ID)
}

func (s *service) DeactivateService(ctx context.Context, accountID, serviceID uuid.UUID) error {
	p, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return err
	}
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return err
	}
	if svc.ProviderID != p.ID {
		return ErrNotOwner
	}
	svc.Active = false
	return s.services.Update(ctx, svc)
}
