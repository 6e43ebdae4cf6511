package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Provider is a service provider profile, read-only input to matching.
type Provider struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Location    Location  `json:"location"`

	// Availability: either always available or structured working hours.
	// Working hours are opaque to matching; only the flag scores.
	AlwaysAvailable bool            `json:"always_available"`
	WorkingHours    json.RawMessage `json:"working_hours,omitempty"`

	// Trust signals.
	CompanyTrained  bool `json:"company_trained"`
	IDVerified      bool `json:"id_verified"`
	RequiresDeposit bool `json:"requires_deposit"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service is one catalog entry a provider offers.
type Service struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"provider_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	BasePrice   float64    `json:"base_price"`
	Currency    string     `json:"currency"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
