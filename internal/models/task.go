package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status enum. A task lives in the discovery phase only; execution is a
// Booking. Converted, cancelled and expired are terminal.
const (
	TaskStatusPending   = "pending"
	TaskStatusMatched   = "matched"
	TaskStatusFloating  = "floating"
	TaskStatusRequested = "requested"
	TaskStatusAccepted  = "accepted"
	TaskStatusConverted = "converted"
	TaskStatusExpired   = "expired"
	TaskStatusCancelled = "cancelled"
)

// Matching strategy names.
const (
	StrategyIntelligent  = "intelligent"
	StrategyLocationOnly = "location-only"
)

// Task priority enum.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// Actor roles used on cancellations and booking history entries.
const (
	ActorRoleCustomer = "customer"
	ActorRoleProvider = "provider"
	ActorRoleSystem   = "system"
)

// DefaultTaskTTL is how long a task stays open before the expiry sweep
// retires it, unless the customer sets an explicit deadline.
const DefaultTaskTTL = 30 * 24 * time.Hour

// BudgetRange is the customer's optional price expectation. Min == Max means
// a fixed amount.
type BudgetRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// Target returns the midpoint of the range, the value budget scoring
// compares provider prices against.
func (b BudgetRange) Target() float64 {
	return (b.Min + b.Max) / 2
}

// TimeSlot is a preferred window within a day, HH:MM strings, Start < End.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ScoreBreakdown records the points each scoring slot contributed.
type ScoreBreakdown struct {
	ServiceRelevance float64 `json:"service_relevance"`
	TagOverlap       float64 `json:"tag_overlap"`
	Location         float64 `json:"location"`
	Budget           float64 `json:"budget"`
	Experience       float64 `json:"experience"`
	Certification    float64 `json:"certification"`
	Availability     float64 `json:"availability"`
	Deposit          float64 `json:"deposit"`
}

// ProviderMatch is one scored candidate, as stored on the task.
type ProviderMatch struct {
	ProviderID        uuid.UUID       `json:"provider_id"`
	Score             int             `json:"score"`
	MatchedServiceIDs []uuid.UUID     `json:"matched_service_ids,omitempty"`
	Reasons           []string        `json:"reasons,omitempty"`
	DistanceKm        *float64        `json:"distance_km,omitempty"`
	Breakdown         *ScoreBreakdown `json:"breakdown,omitempty"`
}

// MatchingCriteria is the audit snapshot of how the last matching run was
// performed, kept for rematch requests.
type MatchingCriteria struct {
	Strategy        string   `json:"strategy"`
	SearchTerms     []string `json:"search_terms,omitempty"`
	CategoryMatched bool     `json:"category_matched"`
	UseLocationOnly bool     `json:"use_location_only"`
}

// ProviderInterest is an unsolicited expression of interest on a floating task.
type ProviderInterest struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	Message     string    `json:"message,omitempty"`
	ExpressedAt time.Time `json:"expressed_at"`
}

// ProviderRequest is the customer's selection of one provider.
type ProviderRequest struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	Message     string    `json:"message,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ProviderAcceptance is the requested provider's acceptance.
type ProviderAcceptance struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Message    string    `json:"message,omitempty"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// ProviderRejection records the most recent rejection, kept as context on the
// task after the request is cleared.
type ProviderRejection struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Reason     string    `json:"reason,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`

	Location      Location `json:"location"`
	Remote        bool     `json:"remote"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`

	Priority      string     `json:"priority"`
	PreferredDate *time.Time `json:"preferred_date,omitempty"`
	TimeSlot      *TimeSlot  `json:"time_slot,omitempty"`

	Budget           *BudgetRange `json:"budget,omitempty"`
	RequiresVerified bool         `json:"requires_verified"`

	Status string `json:"status"`

	MatchedProviders    []ProviderMatch   `json:"matched_providers,omitempty"`
	MatchingAttemptedAt *time.Time        `json:"matching_attempted_at,omitempty"`
	MatchingCriteria    *MatchingCriteria `json:"matching_criteria,omitempty"`

	InterestedProviders []ProviderInterest  `json:"interested_providers,omitempty"`
	RequestedProvider   *ProviderRequest    `json:"requested_provider,omitempty"`
	AcceptedProvider    *ProviderAcceptance `json:"accepted_provider,omitempty"`
	LastRejection       *ProviderRejection  `json:"last_rejection,omitempty"`

	ConvertedToBookingID *uuid.UUID `json:"converted_to_booking_id,omitempty"`
	ConvertedAt          *time.Time `json:"converted_at,omitempty"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`

	ExpiresAt time.Time  `json:"expires_at"`
	Deleted   bool       `json:"-"`
	DeletedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the task accepts no further transitions.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskStatusConverted, TaskStatusCancelled, TaskStatusExpired:
		return true
	}
	return false
}

// InDiscovery reports whether descriptive fields may still be edited and
// matching may still run.
func (t *Task) InDiscovery() bool {
	switch t.Status {
	case TaskStatusPending, TaskStatusMatched, TaskStatusFloating:
		return true
	}
	return false
}

// MatchedProvider returns the match entry for the given provider, or nil.
func (t *Task) MatchedProvider(providerID uuid.UUID) *ProviderMatch {
	for i := range t.MatchedProviders {
		if t.MatchedProviders[i].ProviderID == providerID {
			return &t.MatchedProviders[i]
		}
	}
	return nil
}

// InterestedProvider returns the interest entry for the given provider, or nil.
func (t *Task) InterestedProvider(providerID uuid.UUID) *ProviderInterest {
	for i := range t.InterestedProviders {
		if t.InterestedProviders[i].ProviderID == providerID {
			return &t.InterestedProviders[i]
		}
	}
	return nil
}
