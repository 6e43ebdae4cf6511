package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/localpro/backend/internal/middleware"
	"github.com/localpro/backend/internal/models"
	"github.com/localpro/backend/internal/services"
)

// TaskService is the slice of the task flow the HTTP layer uses.
type TaskService interface {
	Create(ctx context.Context, customerID uuid.UUID, in services.CreateTaskInput) (*models.Task, error)
	Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	UpdateDetails(ctx context.Context, taskID, customerID uuid.UUID, in services.UpdateTaskInput) (*models.Task, error)
	SoftDelete(ctx context.Context, taskID, customerID uuid.UUID) error
	ExpressInterest(ctx context.Context, taskID, providerID uuid.UUID, message string) (*models.Task, error)
	RequestProvider(ctx context.Context, taskID, customerID, providerID uuid.UUID, message string) (*models.Task, error)
	RespondToRequest(ctx context.Context, taskID, providerID uuid.UUID, action, message string) (*models.Task, *models.Booking, error)
	Cancel(ctx context.Context, taskID, actorID uuid.UUID, actorRole, reason string) (*models.Task, error)
}

// TaskLister covers the read-only listings the handler serves directly.
type TaskLister interface {
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Task, error)
	ListFloatingByRegion(ctx context.Context, region string) ([]*models.Task, error)
}

// ProviderLookup resolves the provider profile behind an authenticated
// provider account.
type ProviderLookup interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Provider, error)
}

// EnqueueMatchFunc queues an asynchronous matching run for a task. Provided
// by main as a closure over the river client.
type EnqueueMatchFunc func(ctx context.Context, taskID uuid.UUID, strategy string) error

type TaskHandler struct {
	svc          TaskService
	lister       TaskLister
	providers    ProviderLookup
	validator    PayloadValidator
	enqueueMatch EnqueueMatchFunc
	log          *slog.Logger
}

// PayloadValidator checks request payloads against the published JSON schemas.
type PayloadValidator interface {
	ValidatePayload(kind string, payload []byte) error
}

func NewTaskHandler(svc TaskService, lister TaskLister, providers ProviderLookup, validator PayloadValidator, enqueueMatch EnqueueMatchFunc, log *slog.Logger) *TaskHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{
		svc:          svc,
		lister:       lister,
		providers:    providers,
		validator:    validator,
		enqueueMatch: enqueueMatch,
		log:          log,
	}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil || acc.Role != models.AccountRoleCustomer {
		http.Error(w, "customer account required", http.StatusForbidden)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if err := h.validator.ValidatePayload(services.PayloadCreateTask, body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	var in services.CreateTaskInput
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	task, err := h.svc.Create(r.Context(), acc.ID, in)
	if err != nil {
		respondError(w, h.log, "create task", err)
		return
	}
	if err := h.enqueueMatch(r.Context(), task.ID, models.StrategyIntelligent); err != nil {
		// The task exists either way; matching can be retriggered.
		h.log.Error("enqueue matching failed", "task_id", task.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tasks, err := h.lister.ListByCustomer(r.Context(), acc.ID)
	if err != nil {
		respondError(w, h.log, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ListOpen is the provider-facing feed of floating tasks in the provider's
// own region.
func (h *TaskHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.requireProvider(w, r)
	if !ok {
		return
	}
	tasks, err := h.lister.ListFloatingByRegion(r.Context(), provider.Location.Region)
	if err != nil {
		respondError(w, h.log, "list open tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		respondError(w, h.log, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.UpdateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	task, err := h.svc.UpdateDetails(r.Context(), taskID, acc.ID, in)
	if err != nil {
		respondError(w, h.log, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SoftDelete(r.Context(), taskID, acc.ID); err != nil {
		respondError(w, h.log, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type matchRequest struct {
	Strategy string `json:"strategy"`
}

// Rematch queues a fresh matching run for the owner's task.
func (h *TaskHandler) Rematch(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		respondError(w, h.log, "get task", err)
		return
	}
	if task.CustomerID != acc.ID {
		http.Error(w, "only the task owner can trigger matching", http.StatusForbidden)
		return
	}
	var req matchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Strategy == "" {
		req.Strategy = models.StrategyIntelligent
	}
	if err := h.enqueueMatch(r.Context(), taskID, req.Strategy); err != nil {
		respondError(w, h.log, "enqueue matching", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type interestRequest struct {
	Message string `json:"message"`
}

func (h *TaskHandler) ExpressInterest(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.requireProvider(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req interestRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	task, err := h.svc.ExpressInterest(r.Context(), taskID, provider.ID, req.Message)
	if err != nil {
		respondError(w, h.log, "express interest", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type requestProviderRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Message    string    `json:"message"`
}

func (h *TaskHandler) RequestProvider(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req requestProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ProviderID == uuid.Nil {
		http.Error(w, "provider_id is required", http.StatusBadRequest)
		return
	}
	task, err := h.svc.RequestProvider(r.Context(), taskID, acc.ID, req.ProviderID, req.Message)
	if err != nil {
		respondError(w, h.log, "request provider", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type respondRequest struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

type respondResponse struct {
	Task    *models.Task    `json:"task"`
	Booking *models.Booking `json:"booking,omitempty"`
}

func (h *TaskHandler) Respond(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.requireProvider(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	task, booking, err := h.svc.RespondToRequest(r.Context(), taskID, provider.ID, req.Action, req.Message)
	if err != nil {
		respondError(w, h.log, "respond to request", err)
		return
	}
	writeJSON(w, http.StatusOK, respondResponse{Task: task, Booking: booking})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	actorID := acc.ID
	actorRole := models.ActorRoleCustomer
	if acc.Role == models.AccountRoleProvider {
		provider, err := h.providers.GetByAccountID(r.Context(), acc.ID)
		if err != nil || provider == nil {
			http.Error(w, "no provider profile", http.StatusForbidden)
			return
		}
		actorID = provider.ID
		actorRole = models.ActorRoleProvider
	}
	task, err := h.svc.Cancel(r.Context(), taskID, actorID, actorRole, req.Reason)
	if err != nil {
		respondError(w, h.log, "cancel task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) requireProvider(w http.ResponseWriter, r *http.Request) (*models.Provider, bool) {
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

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps service sentinels onto HTTP statuses.
func respondError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrStateConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrServiceResolution):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error(op+" failed", "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}
