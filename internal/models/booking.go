package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking status enum. A booking only exists once both sides have agreed, so
// the lifecycle starts at confirmed.
const (
	BookingStatusConfirmed  = "confirmed"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// BookingStatusChange is one append-only history entry. The history is the
// single source of truth for workflow timestamps.
type BookingStatusChange struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   uuid.UUID `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// BookingPricing is the price snapshot taken at conversion. Final is set on
// completion when the provider overrides the estimate.
type BookingPricing struct {
	Estimated float64  `json:"estimated"`
	Final     *float64 `json:"final,omitempty"`
	Deposit   *float64 `json:"deposit,omitempty"`
	Currency  string   `json:"currency"`
}

// Booking is a confirmed unit of work created from exactly one task. The
// service fields are copied, not referenced, so later catalog edits cannot
// change what was agreed.
type Booking struct {
	ID            uuid.UUID `json:"id"`
	BookingNumber string    `json:"booking_number"`

	TaskID     uuid.UUID `json:"task_id"`
	ClientID   uuid.UUID `json:"client_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	ServiceID  uuid.UUID `json:"service_id"`

	ServiceLocation    Location   `json:"service_location"`
	ScheduledDate      *time.Time `json:"scheduled_date,omitempty"`
	ScheduledTimeSlot  *TimeSlot  `json:"scheduled_time_slot,omitempty"`
	ServiceDescription string     `json:"service_description,omitempty"`

	Pricing BookingPricing `json:"pricing"`

	Status        string                `json:"status"`
	StatusHistory []BookingStatusChange `json:"status_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the booking accepts no further transitions.
func (b *Booking) Terminal() bool {
	return b.Status == BookingStatusCompleted || b.Status == BookingStatusCancelled
}

// AppendStatus records a history entry and moves the booking to its status.
func (b *Booking) AppendStatus(change BookingStatusChange) {
	b.Status = change.Status
	b.StatusHistory = append(b.StatusHistory, change)
}

// ConfirmedAt is the timestamp of the first confirmed entry, derived from
// the history.
func (b *Booking) ConfirmedAt() *time.Time {
	return b.firstAt(BookingStatusConfirmed)
}

// StartedAt is the timestamp of the first in_progress entry.
func (b *Booking) StartedAt() *time.Time {
	return b.firstAt(BookingStatusInProgress)
}

// CompletedAt is the timestamp of the first completed entry.
func (b *Booking) CompletedAt() *time.Time {
	return b.firstAt(BookingStatusCompleted)
}

// CancelledAt is the timestamp of the first cancelled entry.
func (b *Booking) CancelledAt() *time.Time {
	return b.firstAt(BookingStatusCancelled)
}

func (b *Booking) firstAt(status string) *time.Time {
	for i := range b.StatusHistory {
		if b.StatusHistory[i].Status == status {
			ts := b.StatusHistory[i].Timestamp
			return &ts
		}
	}
	return nil
}
