package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localpro/backend/internal/models"
)

type BookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo {
	return &BookingRepo{pool: pool}
}

const bookingColumns = `
	id, booking_number, task_id, client_id, provider_id, service_id,
	service_location, scheduled_date, scheduled_time_slot, service_description,
	pricing, status, status_history, created_at, updated_at`

// NextSequenceTx reserves the next booking number suffix for the given day
// (YYYYMMDD). The upsert row-locks the day counter, so two conversions
// committing on the same day can never draw the same value.
func (r *BookingRepo) NextSequenceTx(ctx context.Context, tx pgx.Tx, day string) (int, error) {
	var seq int
	err := tx.QueryRow(ctx, `
		INSERT INTO booking_sequences (day, seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = booking_sequences.seq + 1
		RETURNING seq
	`, day).Scan(&seq)
	return seq, err
}

func (r *BookingRepo) CreateTx(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	return tx.QueryRow(ctx, `
		INSERT INTO bookings (
			id, booking_number, task_id, client_id, provider_id, service_id,
			service_location, scheduled_date, scheduled_time_slot, service_description,
			pricing, status, status_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, b.ID, b.BookingNumber, b.TaskID, b.ClientID, b.ProviderID, b.ServiceID,
		b.ServiceLocation, b.ScheduledDate, b.ScheduledTimeSlot, b.ServiceDescription,
		b.Pricing, b.Status, b.StatusHistory).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings WHERE id = $1
	`, id)
	return scanBooking(row)
}

// UpdateIfStatus writes the booking conditioned on its stored status still
// being expectedStatus, the same race gate tasks use.
func (r *BookingRepo) UpdateIfStatus(ctx context.Context, b *models.Booking, expectedStatus string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings SET
			scheduled_date = $3, scheduled_time_slot = $4,
			pricing = $5, status = $6, status_history = $7,
			updated_at = now()
		WHERE id = $1 AND status = $2
	`, b.ID, expectedStatus,
		b.ScheduledDate, b.ScheduledTimeSlot,
		b.Pricing, b.Status, b.StatusHistory)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BookingRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Booking, error) {
	return r.list(ctx, `client_id`, clientID)
}

func (r *BookingRepo) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Booking, error) {
	return r.list(ctx, `provider_id`, providerID)
}

func (r *BookingRepo) list(ctx context.Context, column string, id uuid.UUID) ([]*models.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings WHERE `+column+` = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.BookingNumber, &b.TaskID, &b.ClientID, &b.ProviderID, &b.ServiceID,
		&b.ServiceLocation, &b.ScheduledDate, &b.ScheduledTimeSlot, &b.ServiceDescription,
		&b.Pricing, &b.Status, &b.StatusHistory, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
