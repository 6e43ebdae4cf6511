package services

import (
	"context"

	"github.com/google/uuid"
)

// Event kinds published on task/booking transitions.
const (
	EventTaskMatched      = "task.matched"
	EventTaskFloating     = "task.floating"
	EventTaskInterest     = "task.interest"
	EventTaskRequested    = "task.requested"
	EventTaskRejected     = "task.request_rejected"
	EventTaskCancelled    = "task.cancelled"
	EventTaskExpired      = "task.expired"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingStarted   = "booking.started"
	EventBookingCompleted = "booking.completed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingMoved     = "booking.rescheduled"
)

// Event is a fire-and-forget notification of a committed transition.
type Event struct {
	Kind      string     `json:"kind"`
	TaskID    uuid.UUID  `json:"task_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	// ActorID is nil for system transitions such as expiry.
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
}

// NotifySink accepts events after a transition has committed. Implementations
// must not block, and a delivery failure must never surface to the caller:
// the transition already happened.
type NotifySink interface {
	Publish(ctx context.Context, e Event)
}
