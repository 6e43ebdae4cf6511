package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/middleware"
	"github.com/localpro/backend/internal/models"
	"github.com/localpro/backend/internal/repository"
)

// Handler serves the read-model views the web dashboard renders: account
// info plus task and booking summaries enriched with provider names.
type Handler struct {
	taskR     *repository.TaskRepo
	bookingR  *repository.BookingRepo
	providerR *repository.ProviderRepo
	log       *slog.Logger
}

func NewHandler(taskR *repository.TaskRepo, bookingR *repository.BookingRepo, providerR *repository.ProviderRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{taskR: taskR, bookingR: bookingR, providerR: providerR, log: log}
}

type MatchSummary struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Score       int       `json:"score"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	Reasons     []string  `json:"reasons,omitempty"`
}

type TaskSummary struct {
	ID                uuid.UUID      `json:"id"`
	Title             string         `json:"title"`
	Status            string         `json:"status"`
	Priority          string         `json:"priority"`
	Matches           []MatchSummary `json:"matches,omitempty"`
	RequestedProvider *MatchSummary  `json:"requested_provider,omitempty"`
	ExpiresAt         time.Time      `json:"expires_at"`
	CreatedAt         time.Time      `json:"created_at"`
}

type BookingSummary struct {
	ID                 uuid.UUID             `json:"id"`
	BookingNumber      string                `json:"booking_number"`
	Status             string                `json:"status"`
	ServiceDescription string                `json:"service_description,omitempty"`
	ProviderID         uuid.UUID             `json:"provider_id"`
	ProviderName       string                `json:"provider_name,omitempty"`
	ScheduledDate      *time.Time            `json:"scheduled_date,omitempty"`
	Pricing            models.BookingPricing `json:"pricing"`
	CreatedAt          time.Time             `json:"created_at"`
}

type Overview struct {
	Tasks    []TaskSummary    `json:"tasks"`
	Bookings []BookingSummary `json:"bookings"`
}

// GET /v1/dashboard/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	out := map[string]any{
		"id":           acc.ID,
		"email":        acc.Email,
		"display_name": acc.DisplayName,
		"role":         acc.Role,
		"created_at":   acc.CreatedAt,
	}
	if acc.Role == models.AccountRoleProvider {
		provider, err := h.providerR.GetByAccountID(r.Context(), acc.ID)
		if err != nil {
			h.log.Error("load provider profile failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if provider != nil {
			out["provider_profile"] = provider
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /v1/dashboard/overview
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var (
		tasks    []*models.Task
		bookings []*models.Booking
		err      error
	)
	if acc.Role == models.AccountRoleProvider {
		provider, perr := h.providerR.GetByAccountID(r.Context(), acc.ID)
		if perr != nil || provider == nil {
			http.Error(w, "no provider profile", http.StatusForbidden)
			return
		}
		bookings, err = h.bookingR.ListByProvider(r.Context(), provider.ID)
		if err == nil {
			tasks, err = h.taskR.ListFloatingByRegion(r.Context(), provider.Location.Region)
		}
	} else {
		tasks, err = h.taskR.ListByCustomer(r.Context(), acc.ID)
		if err == nil {
			bookings, err = h.bookingR.ListByClient(r.Context(), acc.ID)
		}
	}
	if err != nil {
		h.log.Error("load overview failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	names, err := h.providerR.DisplayNames(r.Context(), providerIDs(tasks, bookings))
	if err != nil {
		h.log.Error("resolve provider names failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ov := Overview{Tasks: []TaskSummary{}, Bookings: []BookingSummary{}}
	for _, t := range tasks {
		ov.Tasks = append(ov.Tasks, taskSummary(t, names))
	}
	for _, b := range bookings {
		ov.Bookings = append(ov.Bookings, BookingSummary{
			ID:                 b.ID,
			BookingNumber:      b.BookingNumber,
			Status:             b.Status,
			ServiceDescription: b.ServiceDescription,
			ProviderID:         b.ProviderID,
			ProviderName:       names[b.ProviderID],
			ScheduledDate:      b.ScheduledDate,
			Pricing:            b.Pricing,
			CreatedAt:          b.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ov)
}

func taskSummary(t *models.Task, names map[uuid.UUID]string) TaskSummary {
	s := TaskSummary{
		ID:        t.ID,
		Title:     t.Title,
		Status:    t.Status,
		Priority:  t.Priority,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
	for _, m := range t.MatchedProviders {
		s.Matches = append(s.Matches, MatchSummary{
			ProviderID:  m.ProviderID,
			DisplayName: names[m.ProviderID],
			Score:       m.Score,
			DistanceKm:  m.DistanceKm,
			Reasons:     m.Reasons,
		})
	}
	if t.RequestedProvider != nil {
		rp := &MatchSummary{ProviderID: t.RequestedProvider.ProviderID, DisplayName: names[t.RequestedProvider.ProviderID]}
		if m := t.MatchedProvider(rp.ProviderID); m != nil {
			rp.Score = m.Score
			rp.DistanceKm = m.DistanceKm
		}
		s.RequestedProvider = rp
	}
	return s
}

func providerIDs(tasks []*models.Task, bookings []*models.Booking) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, t := range tasks {
		for _, m := range t.MatchedProviders {
			add(m.ProviderID)
		}
		if t.RequestedProvider != nil {
			add(t.RequestedProvider.ProviderID)
		}
	}
	for _, b := range bookings {
		add(b.ProviderID)
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
