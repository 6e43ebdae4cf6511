package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxOpenTasks caps concurrently open tasks per customer when the
// account carries no explicit limit.
const DefaultMaxOpenTasks = 10

// QuotaCheck rejects task creation when the customer already has their
// maximum number of open tasks. Runs after BearerAuth.
func QuotaCheck(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromCtx(r.Context())
			if acc == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			limit := DefaultMaxOpenTasks
			if acc.MaxOpenTasks != nil {
				limit = *acc.MaxOpenTasks
			}

			open, err := openTaskCountFn(r.Context(), pool, acc.ID)
			if err != nil {
				http.Error(w, `{"error":"failed to check open tasks"}`, http.StatusInternalServerError)
				return
			}
			if open >= limit {
				http.Error(w, fmt.Sprintf(`{"error":"open task limit %d reached"}`, limit), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// openTaskCountFn counts the customer's open tasks.
// Tests can replace this to avoid hitting a real database.
var openTaskCountFn = defaultOpenTaskCount

func defaultOpenTaskCount(ctx context.Context, pool *pgxpool.Pool, customerID uuid.UUID) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE customer_id = $1 AND deleted = FALSE
		  AND status NOT IN ('converted', 'cancelled', 'expired')
	`, customerID).Scan(&n)
	return n, err
}
