package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localpro/backend/internal/models"
)

type ServiceRepo struct {
	pool *pgxpool.Pool
}

func NewServiceRepo(pool *pgxpool.Pool) *ServiceRepo {
	return &ServiceRepo{pool: pool}
}

const serviceColumns = `
	id, provider_id, title, description, tags, category_id,
	base_price, currency, active, created_at, updated_at`

func (r *ServiceRepo) Create(ctx context.Context, s *models.Service) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO services (
			id, provider_id, title, description, tags, category_id,
			base_price, currency, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, s.ID, s.ProviderID, s.Title, s.Description, s.Tags, s.CategoryID,
		s.BasePrice, s.Currency, s.Active).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *ServiceRepo) Update(ctx context.Context, s *models.Service) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE services SET
			title = $2, description = $3, tags = $4, category_id = $5,
			base_price = $6, currency = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Title, s.Description, s.Tags, s.CategoryID,
		s.BasePrice, s.Currency, s.Active)
	return err
}

func (r *ServiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *ServiceRepo) FindActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE active = TRUE AND provider_id = $1
		ORDER BY created_at
	`, providerID)
	if err != nil {
		return nil, err
	}
	return collectServices(rows)
}

func (r *ServiceRepo) FindActiveByProviderIDs(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID][]*models.Service, error) {
	out := make(map[uuid.UUID][]*models.Service)
	if len(providerIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE active = TRUE AND provider_id = ANY($1)
		ORDER BY provider_id, created_at
	`, providerIDs)
	if err != nil {
		return nil, err
	}
	list, err := collectServices(rows)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		out[s.ProviderID] = append(out[s.ProviderID], s)
	}
	return out, nil
}

// SearchActive finds active services matching any of the given keywords,
// tags or category. Conditions are OR-ed; with no criteria at all the search
// matches nothing, the caller falls back to location-only.
func (r *ServiceRepo) SearchActive(ctx context.Context, keywords []string, tags []string, categoryID *uuid.UUID) ([]*models.Service, error) {
	var conds []string
	var args []any

	if len(keywords) > 0 {
		patterns := make([]string, len(keywords))
		for i, kw := range keywords {
			patterns[i] = "%" + kw + "%"
		}
		args = append(args, patterns)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE ANY($%d) OR description ILIKE ANY($%d))", n, n))
	}
	if len(tags) > 0 {
		lowered := make([]string, len(tags))
		for i, tag := range tags {
			lowered[i] = strings.ToLower(strings.TrimSpace(tag))
		}
		args = append(args, lowered)
		conds = append(conds, fmt.Sprintf("tags && $%d", len(args)))
	}
	if categoryID != nil {
		args = append(args, *categoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE active = TRUE AND (`+strings.Join(conds, " OR ")+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, err
	}
	return collectServices(rows)
}

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	err := row.Scan(
		&s.ID, &s.ProviderID, &s.Title, &s.Description, &s.Tags, &s.CategoryID,
		&s.BasePrice, &s.Currency, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectServices(rows pgx.Rows) ([]*models.Service, error) {
	defer rows.Close()
	var list []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
