package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/middleware"
	"github.com/localpro/backend/internal/models"
)

// BookingService is the slice of the booking flow the HTTP layer uses.
type BookingService interface {
	Get(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	Start(ctx context.Context, bookingID, actorID uuid.UUID, message string) (*models.Booking, error)
	Complete(ctx context.Context, bookingID, actorID uuid.UUID, finalPrice *float64, message string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, actorID uuid.UUID, actorRole, reason string) (*models.Booking, error)
	Reschedule(ctx context.Context, bookingID, actorID uuid.UUID, actorRole string, newDate *time.Time, newSlot *models.TimeSlot) (*models.Booking, error)
}

// BookingLister covers the read-only listings the handler serves directly.
type BookingLister interface {
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Booking, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Booking, error)
}

type BookingHandler struct {
	svc       BookingService
	lister    BookingLister
	providers ProviderLookup
	log       *slog.Logger
}

func NewBookingHandler(svc BookingService, lister BookingLister, providers ProviderLookup, log *slog.Logger) *BookingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BookingHandler{svc: svc, lister: lister, providers: providers, log: log}
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var (
		bookings []*models.Booking
		err      error
	)
	if acc.Role == models.AccountRoleProvider {
		provider, perr := h.providers.GetByAccountID(r.Context(), acc.ID)
		if perr != nil || provider == nil {
			http.Error(w, "no provider profile", http.StatusForbidden)
			return
		}
		bookings, err = h.lister.ListByProvider(r.Context(), provider.ID)
	} else {
		bookings, err = h.lister.ListByClient(r.Context(), acc.ID)
	}
	if err != nil {
		respondError(w, h.log, "list bookings", err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.svc.Get(r.Context(), bookingID)
	if err != nil {
		respondError(w, h.log, "get booking", err)
		return
	}
	if !h.isParty(r, acc, booking) {
		http.Error(w, "not a party to this booking", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type startRequest struct {
	Message string `json:"message"`
}

func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.requireProvider(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req startRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	booking, err := h.svc.Start(r.Context(), bookingID, provider.ID, req.Message)
	if err != nil {
		respondError(w, h.log, "start booking", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type completeRequest struct {
	FinalPrice *float64 `json:"final_price"`
	Message    string   `json:"message"`
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.requireProvider(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	booking, err := h.svc.Complete(r.Context(), bookingID, provider.ID, req.FinalPrice, req.Message)
	if err != nil {
		respondError(w, h.log, "complete booking", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	actorID, actorRole, ok := h.resolveActor(w, r, acc)
	if !ok {
		return
	}
	booking, err := h.svc.Cancel(r.Context(), bookingID, actorID, actorRole, req.Reason)
	if err != nil {
		respondError(w, h.log, "cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type rescheduleRequest struct {
	ScheduledDate *time.Time       `json:"scheduled_date"`
	TimeSlot      *models.TimeSlot `json:"time_slot"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	actorID, actorRole, ok := h.resolveActor(w, r, acc)
	if !ok {
		return
	}
	booking, err := h.svc.Reschedule(r.Context(), bookingID, actorID, actorRole, req.ScheduledDate, req.TimeSlot)
	if err != nil {
		respondError(w, h.log, "reschedule booking", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// resolveActor maps the authenticated account to the booking-side actor:
// customers act under their account id, providers under their profile id.
func (h *BookingHandler) resolveActor(w http.ResponseWriter, r *http.Request, acc *models.Account) (uuid.UUID, string, bool) {
	if acc.Role == models.AccountRoleProvider {
		provider, err := h.providers.GetByAccountID(r.Context(), acc.ID)
		if err != nil || provider == nil {
			http.Error(w, "no provider profile", http.StatusForbidden)
			return uuid.Nil, "", false
		}
		return provider.ID, models.ActorRoleProvider, true
	}
	return acc.ID, models.ActorRoleCustomer, true
}

func (h *BookingHandler) requireProvider(w http.ResponseWriter, r *http.Request) (*models.Provider, bool) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil || acc.Role != models.AccountRoleProvider {
		http.Error(w, "provider account required", http.StatusForbidden)
		return nil, false
	}
	provider, err := h.providers.GetByAccountID(r.Context(), acc.ID)
	if err != nil {
		respondError(w, h.log, "load provider profile", err)
		return nil, false
	}
	if provider == nil {
		http.Error(w, "create a provider profile first", http.StatusForbidden)
		return nil, false
	}
	return provider, true
}

func (h *BookingHandler) isParty(r *http.Request, acc *models.Account, b *models.Booking) bool {
	if acc.ID == b.ClientID {
		return true
	}
	if acc.Role != models.AccountRoleProvider {
		return false
	}
	provider, err := h.providers.GetByAccountID(r.Context(), acc.ID)
	if err != nil || provider == nil {
		return false
	}
	return provider.ID == b.ProviderID
}
