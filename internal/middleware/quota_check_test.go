package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localpro/backend/internal/models"
)

func withCount(t *testing.T, n int) {
	t.Helper()
	orig := openTaskCountFn
	openTaskCountFn = func(context.Context, *pgxpool.Pool, uuid.UUID) (int, error) {
		return n, nil
	}
	t.Cleanup(func() { openTaskCountFn = orig })
}

func quotaRequest(acc *models.Account) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	if acc != nil {
		req = req.WithContext(WithAccount(req.Context(), acc))
	}
	return req
}

// ---------------------------------------------------------------------------
// 1. TestQuotaCheck_UnderLimit
// ---------------------------------------------------------------------------

func TestQuotaCheck_UnderLimit(t *testing.T) {
	withCount(t, DefaultMaxOpenTasks-1)
	handler := QuotaCheck(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, quotaRequest(&models.Account{ID: uuid.New(), Role: "customer"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 2. TestQuotaCheck_AtLimit
// ---------------------------------------------------------------------------

func TestQuotaCheck_AtLimit(t *testing.T) {
	withCount(t, DefaultMaxOpenTasks)
	handler := QuotaCheck(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("next handler must not run at the limit")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, quotaRequest(&models.Account{ID: uuid.New(), Role: "customer"}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "open task limit") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 3. TestQuotaCheck_AccountOverride
// ---------------------------------------------------------------------------

func TestQuotaCheck_AccountOverride(t *testing.T) {
	withCount(t, 3)
	limit := 3
	handler := QuotaCheck(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("next handler must not run at the account's own limit")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, quotaRequest(&models.Account{ID: uuid.New(), MaxOpenTasks: &limit}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 at per-account limit, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 4. TestQuotaCheck_NoAccount
// ---------------------------------------------------------------------------

func TestQuotaCheck_NoAccount(t *testing.T) {
	withCount(t, 0)
	handler := QuotaCheck(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("next handler must not run without an account")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, quotaRequest(nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
