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

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ConverterTaskRepo is the transactional task write the conversion needs.
type ConverterTaskRepo interface {
	UpdateIfStatusTx(ctx context.Context, tx pgx.Tx, t *models.Task, expectedStatus string) (bool, error)
}

// ConverterBookingRepo creates the booking and allocates its day sequence.
// NextSequenceTx must be atomic: concurrent conversions on the same day must
// never observe the same number.
type ConverterBookingRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	NextSequenceTx(ctx context.Context, tx pgx.Tx, day string) (int, error)
}

// ConverterServiceRepo resolves the service the booking attaches to.
type ConverterServiceRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	FindActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Service, error)
}

// Converter performs the one-way Task→Booking handoff. The whole operation
// runs in a single transaction: either the booking exists and the task is
// converted, or neither happened and the task is still requested.
type Converter struct {
	Pool     TxBeginner
	Tasks    ConverterTaskRepo
	Bookings ConverterBookingRepo
	Services ConverterServiceRepo
	Clock    func() time.Time
	Logger   *slog.Logger
}

func NewConverter(pool TxBeginner, tasks ConverterTaskRepo, bookings ConverterBookingRepo, services ConverterServiceRepo, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		Pool:     pool,
		Tasks:    tasks,
		Bookings: bookings,
		Services: services,
		Clock:    time.Now,
		Logger:   logger,
	}
}

// Convert turns a requested task into a confirmed booking for the accepting
// provider. The conditional requested→accepted write is the race gate: of
// two concurrent accepts exactly one passes it, the other gets a state
// conflict and no second booking is ever created.
func (c *Converter) Convert(ctx context.Context, task *models.Task, providerID uuid.UUID, message string) (*models.Task, *models.Booking, error) {
	now := c.Clock()
	if task.Status != models.TaskStatusRequested {
		return nil, nil, fmt.Errorf("convert on %s task: %w", task.Status, ErrStateConflict)
	}
	if task.RequestedProvider == nil || task.RequestedProvider.ProviderID != providerID {
		return nil, nil, fmt.Errorf("only the requested provider may accept: %w", ErrForbidden)
	}
	if now.After(task.ExpiresAt) {
		return nil, nil, fmt.Errorf("task expired at %s: %w", task.ExpiresAt.Format(time.RFC3339), ErrStateConflict)
	}

	svc, err := c.resolveService(ctx, task, providerID)
	if err != nil {
		return nil, nil, err
	}

	tx, err := c.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin conversion tx: %w", err)
	}
	defer tx.Rollback(ctx)

	task.Status = models.TaskStatusAccepted
	task.AcceptedProvider = &models.ProviderAcceptance{
		ProviderID: providerID,
		Message:    message,
		AcceptedAt: now,
	}
	ok, err := c.Tasks.UpdateIfStatusTx(ctx, tx, task, models.TaskStatusRequested)
	if err != nil {
		return nil, nil, fmt.Errorf("accept task: %w", err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("task %s was already responded to: %w", task.ID, ErrStateConflict)
	}

	day := now.Format("20060102")
	seq, err := c.Bookings.NextSequenceTx(ctx, tx, day)
	if err != nil {
		return nil, nil, fmt.Errorf("allocate booking number: %w", err)
	}

	booking := &models.Booking{
		ID:                 uuid.New(),
		BookingNumber:      fmt.Sprintf("BK-%s-%04d", day, seq),
		TaskID:             task.ID,
		ClientID:           task.CustomerID,
		ProviderID:         providerID,
		ServiceID:          svc.ID,
		ServiceLocation:    task.Location,
		ScheduledDate:      task.PreferredDate,
		ScheduledTimeSlot:  task.TimeSlot,
		ServiceDescription: svc.Title,
		Pricing: models.BookingPricing{
			Estimated: svc.BasePrice,
			Currency:  svc.Currency,
		},
		Status: models.BookingStatusConfirmed,
		StatusHistory: []models.BookingStatusChange{{
			Status:    models.BookingStatusConfirmed,
			Timestamp: now,
			ActorID:   providerID,
			ActorRole: models.ActorRoleProvider,
			Reason:    "provider accepted request",
			Message:   message,
		}},
	}
	if err := c.Bookings.CreateTx(ctx, tx, booking); err != nil {
		return nil, nil, fmt.Errorf("create booking: %w", err)
	}

	task.Status = models.TaskStatusConverted
	task.ConvertedToBookingID = &booking.ID
	task.ConvertedAt = &now
	ok, err = c.Tasks.UpdateIfStatusTx(ctx, tx, task, models.TaskStatusAccepted)
	if err != nil {
		return nil, nil, fmt.Errorf("convert task: %w", err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("task %s moved during conversion: %w", task.ID, ErrStateConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit conversion: %w", err)
	}

	c.Logger.Info("task converted",
		"task_id", task.ID, "booking_id", booking.ID, "booking_number", booking.BookingNumber)
	return task, booking, nil
}

// resolveService picks the service the booking references: the one matching
// found during scoring, else an active catalog service in the task's
// category, else any active catalog service. A booking cannot exist without
// a service reference.
func (c *Converter) resolveService(ctx context.Context, task *models.Task, providerID uuid.UUID) (*models.Service, error) {
	if m := task.MatchedProvider(providerID); m != nil {
		for _, id := range m.MatchedServiceIDs {
			svc, err := c.Services.GetByID(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					continue
				}
				return nil, fmt.Errorf("load matched service: %w", err)
			}
			if svc.Active && svc.ProviderID == providerID {
				return svc, nil
			}
		}
	}

	catalog, err := c.Services.FindActiveByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider catalog: %w", err)
	}
	if task.CategoryID != nil {
		for _, svc := range catalog {
			if svc.CategoryID != nil && *svc.CategoryID == *task.CategoryID {
				return svc, nil
			}
		}
	}
	if len(catalog) > 0 {
		return catalog[0], nil
	}
	return nil, fmt.Errorf("provider %s has no usable service: %w", providerID, ErrServiceResolution)
}
