package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localpro/backend/internal/models"
)

// BookingRepo is the persistence port for bookings, with the same
// optimistic-write contract as TaskRepo.
type BookingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdateIfStatus(ctx context.Context, b *models.Booking, expectedStatus string) (bool, error)
}

// BookingFlow owns the execution lifecycle of a booking:
// confirmed → in_progress → completed, with cancellation until completion
// and rescheduling before the service starts.
type BookingFlow struct {
	Bookings BookingRepo
	Notify   NotifySink
	Clock    func() time.Time
	Logger   *slog.Logger
}

func NewBookingFlow(bookings BookingRepo, notify NotifySink, logger *slog.Logger) *BookingFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingFlow{
		Bookings: bookings,
		Notify:   notify,
		Clock:    time.Now,
		Logger:   logger,
	}
}

// Start marks the service as underway. Only the booking's provider may start.
func (f *BookingFlow) Start(ctx context.Context, bookingID, actorID uuid.UUID, message string) (*models.Booking, error) {
	b, err := f.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != actorID {
		return nil, fmt.Errorf("only the booking's provider can start: %w", ErrForbidden)
	}
	if b.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("start on %s booking: %w", b.Status, ErrStateConflict)
	}

	b.AppendStatus(models.BookingStatusChange{
		Status:    models.BookingStatusInProgress,
		Timestamp: f.Clock(),
		ActorID:   actorID,
		ActorRole: models.ActorRoleProvider,
		Message:   message,
	})
	if err := f.save(ctx, b, models.BookingStatusConfirmed); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventBookingStarted, TaskID: b.TaskID, BookingID: &b.ID, ActorID: &actorID})
	return b, nil
}

// Complete closes out the work. Only the provider may complete; finalPrice,
// when given, overrides the estimate.
func (f *BookingFlow) Complete(ctx context.Context, bookingID, actorID uuid.UUID, finalPrice *float64, message string) (*models.Booking, error) {
	b, err := f.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != actorID {
		return nil, fmt.Errorf("only the booking's provider can complete: %w", ErrForbidden)
	}
	if b.Status != models.BookingStatusInProgress {
		return nil, fmt.Errorf("complete on %s booking: %w", b.Status, ErrStateConflict)
	}
	if finalPrice != nil {
		if *finalPrice < 0 {
			return nil, fmt.Errorf("final price must not be negative: %w", ErrValidation)
		}
		b.Pricing.Final = finalPrice
	}

	b.AppendStatus(models.BookingStatusChange{
		Status:    models.BookingStatusCompleted,
		Timestamp: f.Clock(),
		ActorID:   actorID,
		ActorRole: models.ActorRoleProvider,
		Message:   message,
	})
	if err := f.save(ctx, b, models.BookingStatusInProgress); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventBookingCompleted, TaskID: b.TaskID, BookingID: &b.ID, ActorID: &actorID})
	return b, nil
}

// Cancel may be called by either party until the work is completed.
func (f *BookingFlow) Cancel(ctx context.Context, bookingID, actorID uuid.UUID, actorRole, reason string) (*models.Booking, error) {
	b, err := f.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := f.authorizeParty(b, actorID, actorRole); err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusInProgress {
		return nil, fmt.Errorf("cancel on %s booking: %w", b.Status, ErrStateConflict)
	}

	expected := b.Status
	b.AppendStatus(models.BookingStatusChange{
		Status:    models.BookingStatusCancelled,
		Timestamp: f.Clock(),
		ActorID:   actorID,
		ActorRole: actorRole,
		Reason:    reason,
	})
	if err := f.save(ctx, b, expected); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventBookingCancelled, TaskID: b.TaskID, BookingID: &b.ID, ActorID: &actorID})
	return b, nil
}

// Reschedule moves the date or time slot. Allowed to either party, but only
// before the service has started; the change lands in the history.
func (f *BookingFlow) Reschedule(ctx context.Context, bookingID, actorID uuid.UUID, actorRole string, newDate *time.Time, newSlot *models.TimeSlot) (*models.Booking, error) {
	b, err := f.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := f.authorizeParty(b, actorID, actorRole); err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("reschedule on %s booking: %w", b.Status, ErrStateConflict)
	}
	if newDate == nil && newSlot == nil {
		return nil, fmt.Errorf("nothing to reschedule: %w", ErrValidation)
	}
	if newSlot != nil {
		if err := validateTimeSlot(newSlot); err != nil {
			return nil, err
		}
		b.ScheduledTimeSlot = newSlot
	}
	if newDate != nil {
		b.ScheduledDate = newDate
	}

	b.AppendStatus(models.BookingStatusChange{
		Status:    models.BookingStatusConfirmed,
		Timestamp: f.Clock(),
		ActorID:   actorID,
		ActorRole: actorRole,
		Reason:    "rescheduled",
		Message:   describeSchedule(b.ScheduledDate, b.ScheduledTimeSlot),
	})
	if err := f.save(ctx, b, models.BookingStatusConfirmed); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventBookingMoved, TaskID: b.TaskID, BookingID: &b.ID, ActorID: &actorID})
	return b, nil
}

// Get returns a booking, mapping missing rows to ErrNotFound.
func (f *BookingFlow) Get(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return f.load(ctx, bookingID)
}

func (f *BookingFlow) authorizeParty(b *models.Booking, actorID uuid.UUID, actorRole string) error {
	switch actorRole {
	case models.ActorRoleCustomer:
		if b.ClientID != actorID {
			return fmt.Errorf("actor is not the booking's client: %w", ErrForbidden)
		}
	case models.ActorRoleProvider:
		if b.ProviderID != actorID {
			return fmt.Errorf("actor is not the booking's provider: %w", ErrForbidden)
		}
	default:
		return fmt.Errorf("unknown actor role %q: %w", actorRole, ErrValidation)
	}
	return nil
}

func (f *BookingFlow) load(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	b, err := f.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

func (f *BookingFlow) save(ctx context.Context, b *models.Booking, expectedStatus string) error {
	ok, err := f.Bookings.UpdateIfStatus(ctx, b, expectedStatus)
	if err != nil {
		return fmt.Errorf("save booking: %w", err)
	}
	if !ok {
		return fmt.Errorf("booking %s is no longer %s: %w", b.ID, expectedStatus, ErrStateConflict)
	}
	return nil
}

func (f *BookingFlow) publish(ctx context.Context, e Event) {
	if f.Notify == nil {
		return
	}
	f.Notify.Publish(ctx, e)
}

func describeSchedule(date *time.Time, slot *models.TimeSlot) string {
	switch {
	case date != nil && slot != nil:
		return fmt.Sprintf("moved to %s %s-%s", date.Format("2006-01-02"), slot.Start, slot.End)
	case date != nil:
		return fmt.Sprintf("moved to %s", date.Format("2006-01-02"))
	case slot != nil:
		return fmt.Sprintf("moved to %s-%s", slot.Start, slot.End)
	}
	return ""
}
