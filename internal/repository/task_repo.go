package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localpro/backend/internal/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx so repo methods can run
// inside or outside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `
	id, customer_id, title, description, tags, category_id,
	location, remote, max_distance_km,
	priority, preferred_date, time_slot, budget, requires_verified,
	status, matched_providers, matching_attempted_at, matching_criteria,
	interested_providers, requested_provider, accepted_provider, last_rejection,
	converted_to_booking_id, converted_at,
	cancelled_at, cancellation_reason, cancelled_by,
	expires_at, deleted, deleted_at, created_at, updated_at`

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (
			id, customer_id, title, description, tags, category_id,
			location, remote, max_distance_km,
			priority, preferred_date, time_slot, budget, requires_verified,
			status, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`, t.ID, t.CustomerID, t.Title, t.Description, t.Tags, t.CategoryID,
		t.Location, t.Remote, t.MaxDistanceKm,
		t.Priority, t.PreferredDate, t.TimeSlot, t.Budget, t.RequiresVerified,
		t.Status, t.ExpiresAt).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id = $1 AND deleted = FALSE
	`, id)
	return scanTask(row)
}

// UpdateIfStatus writes the task conditioned on its stored status still
// being expectedStatus. Returns false when the row has moved, so a lost race
// surfaces as a conflict instead of a silent overwrite.
func (r *TaskRepo) UpdateIfStatus(ctx context.Context, t *models.Task, expectedStatus string) (bool, error) {
	return updateTaskIfStatus(ctx, r.pool, t, expectedStatus)
}

// UpdateIfStatusTx is UpdateIfStatus inside an existing transaction.
func (r *TaskRepo) UpdateIfStatusTx(ctx context.Context, tx pgx.Tx, t *models.Task, expectedStatus string) (bool, error) {
	return updateTaskIfStatus(ctx, tx, t, expectedStatus)
}

func updateTaskIfStatus(ctx context.Context, db dbtx, t *models.Task, expectedStatus string) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE tasks SET
			title = $3, description = $4, tags = $5, category_id = $6,
			location = $7, remote = $8, max_distance_km = $9,
			priority = $10, preferred_date = $11, time_slot = $12, budget = $13, requires_verified = $14,
			status = $15, matched_providers = $16, matching_attempted_at = $17, matching_criteria = $18,
			interested_providers = $19, requested_provider = $20, accepted_provider = $21, last_rejection = $22,
			converted_to_booking_id = $23, converted_at = $24,
			cancelled_at = $25, cancellation_reason = $26, cancelled_by = $27,
			expires_at = $28, deleted = $29, deleted_at = $30,
			updated_at = now()
		WHERE id = $1 AND status = $2 AND deleted = FALSE
	`, t.ID, expectedStatus,
		t.Title, t.Description, t.Tags, t.CategoryID,
		t.Location, t.Remote, t.MaxDistanceKm,
		t.Priority, t.PreferredDate, t.TimeSlot, t.Budget, t.RequiresVerified,
		t.Status, t.MatchedProviders, t.MatchingAttemptedAt, t.MatchingCriteria,
		t.InterestedProviders, t.RequestedProvider, t.AcceptedProvider, t.LastRejection,
		t.ConvertedToBookingID, t.ConvertedAt,
		t.CancelledAt, t.CancellationReason, t.CancelledBy,
		t.ExpiresAt, t.Deleted, t.DeletedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TaskRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE customer_id = $1 AND deleted = FALSE
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListFloatingByRegion returns open floating tasks in a region, the feed
// providers browse for unsolicited interest.
func (r *TaskRepo) ListFloatingByRegion(ctx context.Context, region string) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = 'floating' AND deleted = FALSE
		  AND (location->>'region') ILIKE $1
		ORDER BY created_at DESC
	`, region)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (r *TaskRepo) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE expires_at < $1 AND deleted = FALSE
		  AND status NOT IN ('converted', 'cancelled', 'expired')
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// CountOpenByCustomer counts a customer's non-terminal tasks, used by the
// open-task quota check.
func (r *TaskRepo) CountOpenByCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE customer_id = $1 AND deleted = FALSE
		  AND status NOT IN ('converted', 'cancelled', 'expired')
	`, customerID).Scan(&n)
	return n, err
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.CustomerID, &t.Title, &t.Description, &t.Tags, &t.CategoryID,
		&t.Location, &t.Remote, &t.MaxDistanceKm,
		&t.Priority, &t.PreferredDate, &t.TimeSlot, &t.Budget, &t.RequiresVerified,
		&t.Status, &t.MatchedProviders, &t.MatchingAttemptedAt, &t.MatchingCriteria,
		&t.InterestedProviders, &t.RequestedProvider, &t.AcceptedProvider, &t.LastRejection,
		&t.ConvertedToBookingID, &t.ConvertedAt,
		&t.CancelledAt, &t.CancellationReason, &t.CancelledBy,
		&t.ExpiresAt, &t.Deleted, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
