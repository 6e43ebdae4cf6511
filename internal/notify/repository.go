package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscription is one webhook endpoint. Kinds filters which events the
// endpoint receives; empty means all.
type Subscription struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	URL       string
	Kinds     []string
	Active    bool
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, s *Subscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions (id, account_id, url, kinds, active)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.AccountID, s.URL, s.Kinds, s.Active)
	return err
}

// Deactivate turns an endpoint off. Returns false when the subscription does
// not exist, is not owned by the account, or is already inactive.
func (r *Repository) Deactivate(ctx context.Context, accountID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_subscriptions SET active = FALSE
		WHERE id = $1 AND account_id = $2 AND active = TRUE
	`, id, accountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindActiveForKind returns endpoints subscribed to the given event kind.
func (r *Repository) FindActiveForKind(ctx context.Context, kind string) ([]*Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, url, kinds, active
		FROM webhook_subscriptions
		WHERE active = TRUE AND (kinds = '{}' OR $1 = ANY(kinds))
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.AccountID, &s.URL, &s.Kinds, &s.Active); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
