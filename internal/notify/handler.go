package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/middleware"
	"github.com/localpro/backend/internal/services"
)

// SubscriptionStore persists webhook subscriptions.
type SubscriptionStore interface {
	Create(ctx context.Context, s *Subscription) error
	Deactivate(ctx context.Context, accountID, id uuid.UUID) (bool, error)
}

// Handler manages an account's webhook subscriptions.
type Handler struct {
	store SubscriptionStore
	log   *slog.Logger
}

func NewHandler(store SubscriptionStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

var knownKinds = map[string]bool{
	services.EventTaskMatched:      true,
	services.EventTaskFloating:     true,
	services.EventTaskInterest:     true,
	services.EventTaskRequested:    true,
	services.EventTaskRejected:     true,
	services.EventTaskCancelled:    true,
	services.EventTaskExpired:      true,
	services.EventBookingConfirmed: true,
	services.EventBookingStarted:   true,
	services.EventBookingCompleted: true,
	services.EventBookingCancelled: true,
	services.EventBookingMoved:     true,
}

type CreateSubscriptionInput struct {
	URL   string   `json:"url"`
	Kinds []string `json:"kinds"`
}

type SubscriptionResponse struct {
	ID     uuid.UUID `json:"id"`
	URL    string    `json:"url"`
	Kinds  []string  `json:"kinds"`
	Active bool      `json:"active"`
}

// POST /v1/webhooks
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in CreateSubscriptionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	for _, k := range in.Kinds {
		if !knownKinds[k] {
			http.Error(w, fmt.Sprintf("unknown event kind %q", k), http.StatusBadRequest)
			return
		}
	}

	sub := &Subscription{
		ID:        uuid.New(),
		AccountID: acc.ID,
		URL:       in.URL,
		Kinds:     in.Kinds,
		Active:    true,
	}
	// An empty kinds list subscribes to everything.
	if sub.Kinds == nil {
		sub.Kinds = []string{}
	}
	if err := h.store.Create(r.Context(), sub); err != nil {
		h.log.Error("create webhook subscription failed", "error", err)
		http.Error(w, "create subscription failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, SubscriptionResponse{
		ID:     sub.ID,
		URL:    sub.URL,
		Kinds:  sub.Kinds,
		Active: sub.Active,
	})
}

// DELETE /v1/webhooks/{id}
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid subscription id", http.StatusBadRequest)
		return
	}
	ok, err := h.store.Deactivate(r.Context(), acc.ID, id)
	if err != nil {
		h.log.Error("deactivate webhook subscription failed", "error", err)
		http.Error(w, "deactivate subscription failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
