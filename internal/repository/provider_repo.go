package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localpro/backend/internal/models"
)

type ProviderRepo struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) *ProviderRepo {
	return &ProviderRepo{pool: pool}
}

const providerColumns = `
	id, account_id, display_name, location,
	always_available, working_hours,
	company_trained, id_verified, requires_deposit,
	active, created_at, updated_at`

func (r *ProviderRepo) Create(ctx context.Context, p *models.Provider) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO providers (
			id, account_id, display_name, location,
			always_available, working_hours,
			company_trained, id_verified, requires_deposit, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, p.ID, p.AccountID, p.DisplayName, p.Location,
		p.AlwaysAvailable, p.WorkingHours,
		p.CompanyTrained, p.IDVerified, p.RequiresDeposit, p.Active).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProviderRepo) Update(ctx context.Context, p *models.Provider) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE providers SET
			display_name = $2, location = $3,
			always_available = $4, working_hours = $5,
			company_trained = $6, id_verified = $7, requires_deposit = $8,
			active = $9, updated_at = now()
		WHERE id = $1
	`, p.ID, p.DisplayName, p.Location,
		p.AlwaysAvailable, p.WorkingHours,
		p.CompanyTrained, p.IDVerified, p.RequiresDeposit, p.Active)
	return err
}

func (r *ProviderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers WHERE id = $1
	`, id)
	return scanProvider(row)
}

// GetByAccountID returns the account's provider profile, or nil when the
// account has none.
func (r *ProviderRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers WHERE account_id = $1
	`, accountID)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// FindActiveByRegion is the geographic pre-filter for candidate selection.
// The region comparison is case-insensitive, matching the in-memory location
// comparisons used for scoring.
func (r *ProviderRepo) FindActiveByRegion(ctx context.Context, region string) ([]*models.Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE active = TRUE AND (location->>'region') ILIKE $1
		ORDER BY id
	`, region)
	if err != nil {
		return nil, err
	}
	return collectProviders(rows)
}

func (r *ProviderRepo) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE active = TRUE AND id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	return collectProviders(rows)
}

func (r *ProviderRepo) FindAllActive(ctx context.Context) ([]*models.Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE active = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return collectProviders(rows)
}

// DisplayNames resolves provider ids to display names, active or not, for
// read-model enrichment.
func (r *ProviderRepo) DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_name FROM providers WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func scanProvider(row pgx.Row) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.ID, &p.AccountID, &p.DisplayName, &p.Location,
		&p.AlwaysAvailable, &p.WorkingHours,
		&p.CompanyTrained, &p.IDVerified, &p.RequiresDeposit,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProviders(rows pgx.Rows) ([]*models.Provider, error) {
	defer rows.Close()
	var list []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
