package registry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localpro/backend/internal/middleware"
	"github.com/localpro/backend/internal/models"
	"github.com/localpro/backend/internal/services"
)

// PayloadValidator checks request payloads against the published JSON schemas.
type PayloadValidator interface {
	ValidatePayload(kind string, payload []byte) error
}

type Handler struct {
	svc       Service
	validator PayloadValidator
	log       *slog.Logger
}

func NewHandler(svc Service, validator PayloadValidator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

type ProviderResponse struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"display_name"`
	Location        models.Location `json:"location"`
	AlwaysAvailable bool            `json:"always_available"`
	CompanyTrained  bool            `json:"company_trained"`
	IDVerified      bool            `json:"id_verified"`
	RequiresDeposit bool            `json:"requires_deposit"`
}

func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil || acc.Role != models.AccountRoleProvider {
		http.Error(w, "provider account required", http.StatusForbidden)
		return
	}
	var in CreateProfileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if in.DisplayName == "" || in.Location.Region == "" {
		http.Error(w, "display_name and location.region are required", http.StatusBadRequest)
		return
	}
	p, err := h.svc.CreateProfile(r.Context(), acc.ID, in)
	if err != nil {
		h.log.Error("create profile failed", "error", err)
		http.Error(w, "create profile failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, providerToResponse(p))
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, err := h.svc.GetProfile(r.Context(), acc.ID)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			http.Error(w, "no provider profile", http.StatusNotFound)
			return
		}
		h.log.Error("get profile failed", "error", err)
		http.Error(w, "get profile failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, providerToResponse(p))
}

func (h *Handler) RegisterService(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil || acc.Role != models.AccountRoleProvider {
		http.Error(w, "provider account required", http.StatusForbidden)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if err := h.validator.ValidatePayload(services.PayloadRegisterService, body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	var in RegisterServiceInput
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	svc, err := h.svc.RegisterService(r.Context(), acc.ID, in)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			http.Error(w, "create a provider profile first", http.StatusConflict)
			return
		}
		h.log.Error("register service failed", "error", err)
		http.Error(w, "register service failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListServices(r.Context(), acc.ID)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			http.Error(w, "no provider profile", http.StatusNotFound)
			return
		}
		h.log.Error("list services failed", "error", err)
		http.Error(w, "list services failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Service{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil || acc.Role != models.AccountRoleProvider {
		http.Error(w, "provider account required", http.StatusForbidden)
		return
	}
	serviceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid service id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeactivateService(r.Context(), acc.ID, serviceID); err != nil {
		switch {
		case errors.Is(err, ErrNoProfile):
			http.Error(w, "no provider profile", http.StatusNotFound)
		case errors.Is(err, pgx.ErrNoRows):
			http.Error(w, "service not found", http.StatusNotFound)
		case errors.Is(err, ErrNotOwner):
			http.Error(w, "service not owned by provider", http.StatusForbidden)
		default:
			h.log.Error("deactivate service failed", "error", err)
			http.Error(w, "deactivate service failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func providerToResponse(p *models.Provider) ProviderResponse {
	return ProviderResponse{
		ID:              p.ID.String(),
		DisplayName:     p.DisplayName,
		Location:        p.Location,
		AlwaysAvailable: p.AlwaysAvailable,
		CompanyTrained:  p.CompanyTrained,
		IDVerified:      p.IDVerified,
		RequiresDeposit: p.RequiresDeposit,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
