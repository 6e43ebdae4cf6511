package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/middleware"
	"github.com/localpro/backend/internal/models"
	"github.com/localpro/backend/internal/services"
)

type mockSubscriptionStore struct {
	created       *Subscription
	createErr     error
	deactivated   bool
	gotAccountID  uuid.UUID
	gotID         uuid.UUID
	deactivateErr error
}

func (m *mockSubscriptionStore) Create(_ context.Context, s *Subscription) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = s
	return nil
}

func (m *mockSubscriptionStore) Deactivate(_ context.Context, accountID, id uuid.UUID) (bool, error) {
	m.gotAccountID = accountID
	m.gotID = id
	return m.deactivated, m.deactivateErr
}

func subscriberAccount() *models.Account {
	return &models.Account{ID: uuid.New(), Role: models.AccountRoleCustomer}
}

func authedRequest(method, target, body string, acc *models.Account) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if acc != nil {
		req = req.WithContext(middleware.WithAccount(req.Context(), acc))
	}
	return req
}

// ---------------------------------------------------------------------------
// 1. TestWebhookCreate
// ---------------------------------------------------------------------------

func TestWebhookCreate(t *testing.T) {
	store := &mockSubscriptionStore{}
	h := NewHandler(store, nil)
	acc := subscriberAccount()

	body := `{"url": "https://hooks.example.com/localpro", "kinds": ["task.matched", "booking.confirmed"]}`
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, authedRequest(http.MethodPost, "/v1/webhooks", body, acc))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created == nil {
		t.Fatal("subscription not persisted")
	}
	if store.created.AccountID != acc.ID {
		t.Errorf("subscription must belong to the caller, got %s", store.created.AccountID)
	}
	if store.created.URL != "https://hooks.example.com/localpro" {
		t.Errorf("wrong url stored: %s", store.created.URL)
	}
	if !store.created.Active {
		t.Error("new subscription must start active")
	}
	if len(store.created.Kinds) != 2 || store.created.Kinds[0] != services.EventTaskMatched {
		t.Errorf("kinds not stored: %v", store.created.Kinds)
	}
}

func TestWebhookCreate_EmptyKindsSubscribesToAll(t *testing.T) {
	store := &mockSubscriptionStore{}
	h := NewHandler(store, nil)

	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, authedRequest(http.MethodPost, "/v1/webhooks",
		`{"url": "http://localhost:9090/hook"}`, subscriberAccount()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created.Kinds == nil || len(store.created.Kinds) != 0 {
		t.Errorf("omitted kinds must store an empty list, got %#v", store.created.Kinds)
	}
}

// ---------------------------------------------------------------------------
// 2. TestWebhookCreate_Rejections
// ---------------------------------------------------------------------------

func TestWebhookCreate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		acc  *models.Account
		body string
		want int
	}{
		{"no account", nil, `{"url": "https://ok.example.com"}`, http.StatusUnauthorized},
		{"malformed JSON", subscriberAccount(), `{"url":`, http.StatusBadRequest},
		{"missing url", subscriberAccount(), `{"kinds": ["task.matched"]}`, http.StatusBadRequest},
		{"relative url", subscriberAccount(), `{"url": "/hooks/here"}`, http.StatusBadRequest},
		{"wrong scheme", subscriberAccount(), `{"url": "ftp://hooks.example.com"}`, http.StatusBadRequest},
		{"unknown kind", subscriberAccount(), `{"url": "https://ok.example.com", "kinds": ["task.vanished"]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockSubscriptionStore{}
			h := NewHandler(store, nil)

			rec := httptest.NewRecorder()
			h.CreateSubscription(rec, authedRequest(http.MethodPost, "/v1/webhooks", tt.body, tt.acc))

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if store.created != nil {
				t.Error("rejected request must not persist a subscription")
			}
		})
	}
}

func TestWebhookCreate_StoreFailure(t *testing.T) {
	store := &mockSubscriptionStore{createErr: errors.New("boom")}
	h := NewHandler(store, nil)

	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, authedRequest(http.MethodPost, "/v1/webhooks",
		`{"url": "https://ok.example.com"}`, subscriberAccount()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 3. TestWebhookDelete
// ---------------------------------------------------------------------------

func TestWebhookDelete(t *testing.T) {
	store := &mockSubscriptionStore{deactivated: true}
	h := NewHandler(store, nil)
	acc := subscriberAccount()
	subID := uuid.New()

	req := authedRequest(http.MethodDelete, "/v1/webhooks/"+subID.String(), "", acc)
	req.SetPathValue("id", subID.String())
	rec := httptest.NewRecorder()
	h.DeleteSubscription(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.gotAccountID != acc.ID || store.gotID != subID {
		t.Errorf("deactivate called with wrong ids: account=%s id=%s", store.gotAccountID, store.gotID)
	}
}

func TestWebhookDelete_Rejections(t *testing.T) {
	acc := subscriberAccount()

	t.Run("not found", func(t *testing.T) {
		store := &mockSubscriptionStore{deactivated: false}
		h := NewHandler(store, nil)

		subID := uuid.New()
		req := authedRequest(http.MethodDelete, "/v1/webhooks/"+subID.String(), "", acc)
		req.SetPathValue("id", subID.String())
		rec := httptest.NewRecorder()
		h.DeleteSubscription(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		h := NewHandler(&mockSubscriptionStore{}, nil)

		req := authedRequest(http.MethodDelete, "/v1/webhooks/not-a-uuid", "", acc)
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()
		h.DeleteSubscription(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("no account", func(t *testing.T) {
		h := NewHandler(&mockSubscriptionStore{}, nil)

		req := authedRequest(http.MethodDelete, "/v1/webhooks/"+uuid.NewString(), "", nil)
		rec := httptest.NewRecorder()
		h.DeleteSubscription(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}
