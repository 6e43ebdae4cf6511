package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localpro/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.PasswordHash, a.DisplayName, a.Role).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

// GetByEmail returns the account for login, or nil when the email is unknown.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, role, max_open_tasks, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email)
	return scanAccount(row)
}

// GetByID returns the account, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, role, max_open_tasks, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Role,
		&a.MaxOpenTasks, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
