package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localpro/backend/internal/models"
)

// TaskRepo is the persistence port for tasks. UpdateIfStatus performs an
// optimistic write: it succeeds only while the stored status still equals
// expectedStatus, and reports false when the row moved underneath us.
type TaskRepo interface {
	Create(ctx context.Context, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	UpdateIfStatus(ctx context.Context, t *models.Task, expectedStatus string) (bool, error)
	ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*models.Task, error)
}

// CreateTaskInput is the payload for posting a new task.
type CreateTaskInput struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Tags             []string            `json:"tags"`
	CategoryID       *uuid.UUID          `json:"category_id"`
	Location         models.Location     `json:"location"`
	Remote           bool                `json:"remote"`
	MaxDistanceKm    *float64            `json:"max_distance_km"`
	Priority         string              `json:"priority"`
	PreferredDate    *time.Time          `json:"preferred_date"`
	TimeSlot         *models.TimeSlot    `json:"time_slot"`
	Budget           *models.BudgetRange `json:"budget"`
	RequiresVerified bool                `json:"requires_verified"`
	ExpiresAt        *time.Time          `json:"expires_at"`
}

// UpdateTaskInput carries partial edits to descriptive fields. Nil fields are
// left unchanged.
type UpdateTaskInput struct {
	Title         *string             `json:"title"`
	Description   *string             `json:"description"`
	Tags          []string            `json:"tags"`
	Location      *models.Location    `json:"location"`
	Priority      *string             `json:"priority"`
	PreferredDate *time.Time          `json:"preferred_date"`
	TimeSlot      *models.TimeSlot    `json:"time_slot"`
	Budget        *models.BudgetRange `json:"budget"`
}

// TaskFlow owns every legal task transition. Tasks are mutated only through
// these methods, never by direct field assignment from outside; every write
// is conditioned on the expected current status.
type TaskFlow struct {
	Tasks     TaskRepo
	Matcher   *Matcher
	Converter *Converter
	Notify    NotifySink
	Clock     func() time.Time
	Logger    *slog.Logger
}

func NewTaskFlow(tasks TaskRepo, matcher *Matcher, converter *Converter, notify NotifySink, logger *slog.Logger) *TaskFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskFlow{
		Tasks:     tasks,
		Matcher:   matcher,
		Converter: converter,
		Notify:    notify,
		Clock:     time.Now,
		Logger:    logger,
	}
}

// Create validates the input and persists a new pending task. Matching is
// the first mutation and runs separately.
func (f *TaskFlow) Create(ctx context.Context, customerID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	if err := validateTaskInput(&in); err != nil {
		return nil, err
	}
	now := f.Clock()
	expires := now.Add(models.DefaultTaskTTL)
	if in.ExpiresAt != nil {
		expires = *in.ExpiresAt
	}
	task := &models.Task{
		ID:               uuid.New(),
		CustomerID:       customerID,
		Title:            in.Title,
		Description:      in.Description,
		Tags:             in.Tags,
		CategoryID:       in.CategoryID,
		Location:         in.Location,
		Remote:           in.Remote,
		MaxDistanceKm:    in.MaxDistanceKm,
		Priority:         in.Priority,
		PreferredDate:    in.PreferredDate,
		TimeSlot:         in.TimeSlot,
		Budget:           in.Budget,
		RequiresVerified: in.RequiresVerified,
		Status:           models.TaskStatusPending,
		ExpiresAt:        expires,
	}
	if err := f.Tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// RunMatching executes the matcher and moves the task to matched or
// floating. Legal while the task is still in discovery; a rematch simply
// replaces the previous artifacts.
func (f *TaskFlow) RunMatching(ctx context.Context, taskID uuid.UUID, strategy string) (*models.Task, *MatchResult, error) {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if !task.InDiscovery() {
		return nil, nil, fmt.Errorf("matching on %s task: %w", task.Status, ErrStateConflict)
	}

	result, err := f.Matcher.Match(ctx, task, strategy)
	if err != nil {
		return nil, nil, err
	}

	expected := task.Status
	now := f.Clock()
	task.MatchedProviders = result.Matches
	task.MatchingAttemptedAt = &now
	task.MatchingCriteria = result.Criteria()
	if len(result.Matches) > 0 {
		task.Status = models.TaskStatusMatched
	} else {
		task.Status = models.TaskStatusFloating
	}
	if err := f.save(ctx, task, expected); err != nil {
		return nil, nil, err
	}

	if task.Status == models.TaskStatusMatched {
		f.publish(ctx, Event{Kind: EventTaskMatched, TaskID: task.ID})
	} else {
		f.publish(ctx, Event{Kind: EventTaskFloating, TaskID: task.ID})
	}
	return task, result, nil
}

// ExpressInterest appends a provider to a floating task's interest set.
// Duplicate interest is a no-op, not an error.
func (f *TaskFlow) ExpressInterest(ctx context.Context, taskID, providerID uuid.UUID, message string) (*models.Task, error) {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusFloating {
		return nil, fmt.Errorf("interest on %s task: %w", task.Status, ErrStateConflict)
	}
	if task.InterestedProvider(providerID) != nil {
		return task, nil
	}
	task.InterestedProviders = append(task.InterestedProviders, models.ProviderInterest{
		ProviderID:  providerID,
		Message:     message,
		ExpressedAt: f.Clock(),
	})
	if err := f.save(ctx, task, models.TaskStatusFloating); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventTaskInterest, TaskID: task.ID, ActorID: &providerID})
	return task, nil
}

// RequestProvider is the customer selecting one provider from the matched or
// interested sets, moving the task to requested.
func (f *TaskFlow) RequestProvider(ctx context.Context, taskID, customerID, providerID uuid.UUID, message string) (*models.Task, error) {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.CustomerID != customerID {
		return nil, fmt.Errorf("only the task owner can request a provider: %w", ErrForbidden)
	}
	if task.Status != models.TaskStatusMatched && task.Status != models.TaskStatusFloating {
		return nil, fmt.Errorf("request on %s task: %w", task.Status, ErrStateConflict)
	}
	if task.MatchedProvider(providerID) == nil && task.InterestedProvider(providerID) == nil {
		return nil, fmt.Errorf("provider %s was neither matched nor interested: %w", providerID, ErrValidation)
	}

	expected := task.Status
	task.RequestedProvider = &models.ProviderRequest{
		ProviderID:  providerID,
		Message:     message,
		RequestedAt: f.Clock(),
	}
	task.Status = models.TaskStatusRequested
	if err := f.save(ctx, task, expected); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventTaskRequested, TaskID: task.ID, ActorID: &providerID})
	return task, nil
}

// RespondToRequest is the requested provider accepting or rejecting. Accept
// converts the task into a booking; reject reverts the task to the richest
// still-populated discovery state.
func (f *TaskFlow) RespondToRequest(ctx context.Context, taskID, providerID uuid.UUID, action, message string) (*models.Task, *models.Booking, error) {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != models.TaskStatusRequested {
		return nil, nil, fmt.Errorf("response on %s task: %w", task.Status, ErrStateConflict)
	}
	if task.RequestedProvider == nil || task.RequestedProvider.ProviderID != providerID {
		return nil, nil, fmt.Errorf("only the requested provider may respond: %w", ErrForbidden)
	}

	switch action {
	case "accept":
		task, booking, err := f.Converter.Convert(ctx, task, providerID, message)
		if err != nil {
			return nil, nil, err
		}
		f.publish(ctx, Event{Kind: EventBookingConfirmed, TaskID: task.ID, BookingID: &booking.ID, ActorID: &providerID})
		return task, booking, nil

	case "reject":
		task.LastRejection = &models.ProviderRejection{
			ProviderID: providerID,
			Reason:     message,
			RejectedAt: f.Clock(),
		}
		task.RequestedProvider = nil
		switch {
		case len(task.MatchedProviders) > 0:
			task.Status = models.TaskStatusMatched
		case len(task.InterestedProviders) > 0:
			task.Status = models.TaskStatusFloating
		default:
			task.Status = models.TaskStatusPending
		}
		if err := f.save(ctx, task, models.TaskStatusRequested); err != nil {
			return nil, nil, err
		}
		f.publish(ctx, Event{Kind: EventTaskRejected, TaskID: task.ID, ActorID: &providerID})
		return task, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown response action %q: %w", action, ErrValidation)
	}
}

// Cancel retires a non-terminal task. Allowed to the owning customer, or to
// the provider currently requested or accepted.
func (f *TaskFlow) Cancel(ctx context.Context, taskID, actorID uuid.UUID, actorRole, reason string) (*models.Task, error) {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Terminal() {
		return nil, fmt.Errorf("cancel on %s task: %w", task.Status, ErrStateConflict)
	}

	switch actorRole {
	case models.ActorRoleCustomer:
		if task.CustomerID != actorID {
			return nil, fmt.Errorf("only the task owner can cancel: %w", ErrForbidden)
		}
	case models.ActorRoleProvider:
		requested := task.RequestedProvider != nil && task.RequestedProvider.ProviderID == actorID
		accepted := task.AcceptedProvider != nil && task.AcceptedProvider.ProviderID == actorID
		if !requested && !accepted {
			return nil, fmt.Errorf("provider %s is not engaged on this task: %w", actorID, ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("unknown actor role %q: %w", actorRole, ErrValidation)
	}

	expected := task.Status
	now := f.Clock()
	task.Status = models.TaskStatusCancelled
	task.CancelledAt = &now
	task.CancellationReason = reason
	task.CancelledBy = actorRole
	if err := f.save(ctx, task, expected); err != nil {
		return nil, err
	}
	f.publish(ctx, Event{Kind: EventTaskCancelled, TaskID: task.ID, ActorID: &actorID})
	return task, nil
}

// UpdateDetails edits descriptive fields during discovery. A title or
// description change invalidates the match set, so matching reruns as a side
// effect.
func (f *TaskFlow) UpdateDetails(ctx context.Context, taskID, customerID uuid.UUID, in UpdateTaskInput) (*models.Task, error) {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.CustomerID != customerID {
		return nil, fmt.Errorf("only the task owner can edit: %w", ErrForbidden)
	}
	if !task.InDiscovery() {
		return nil, fmt.Errorf("edit on %s task: %w", task.Status, ErrStateConflict)
	}

	rematch := false
	if in.Title != nil && *in.Title != task.Title {
		if *in.Title == "" {
			return nil, fmt.Errorf("title must not be empty: %w", ErrValidation)
		}
		task.Title = *in.Title
		rematch = true
	}
	if in.Description != nil && *in.Description != task.Description {
		task.Description = *in.Description
		rematch = true
	}
	if in.Tags != nil {
		task.Tags = in.Tags
	}
	if in.Location != nil {
		task.Location = *in.Location
	}
	if in.Priority != nil {
		if !validPriority(*in.Priority) {
			return nil, fmt.Errorf("unknown priority %q: %w", *in.Priority, ErrValidation)
		}
		task.Priority = *in.Priority
	}
	if in.PreferredDate != nil {
		task.PreferredDate = in.PreferredDate
	}
	if in.TimeSlot != nil {
		if err := validateTimeSlot(in.TimeSlot); err != nil {
			return nil, err
		}
		task.TimeSlot = in.TimeSlot
	}
	if in.Budget != nil {
		if err := validateBudget(in.Budget); err != nil {
			return nil, err
		}
		task.Budget = in.Budget
	}

	if err := f.save(ctx, task, task.Status); err != nil {
		return nil, err
	}

	if rematch {
		updated, _, err := f.RunMatching(ctx, task.ID, models.StrategyIntelligent)
		if err != nil {
			// The edit is committed; a failed rematch is logged, not
			// surfaced as an edit failure.
			f.Logger.Warn("rematch after edit failed", "task_id", task.ID, "error", err)
			return task, nil
		}
		return updated, nil
	}
	return task, nil
}

// SoftDelete hides a task from all reads. Only the owner may delete, and
// only while no provider has been committed.
func (f *TaskFlow) SoftDelete(ctx context.Context, taskID, customerID uuid.UUID) error {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return err
	}
	if task.CustomerID != customerID {
		return fmt.Errorf("only the task owner can delete: %w", ErrForbidden)
	}
	if !task.InDiscovery() {
		return fmt.Errorf("delete on %s task: %w", task.Status, ErrStateConflict)
	}
	now := f.Clock()
	task.Deleted = true
	task.DeletedAt = &now
	return f.save(ctx, task, task.Status)
}

// ExpireDue retires tasks whose deadline has passed. Races with concurrent
// transitions lose gracefully: a task that just moved is skipped.
func (f *TaskFlow) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := f.Clock()
	due, err := f.Tasks.ListDueForExpiry(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due tasks: %w", err)
	}
	expired := 0
	for _, task := range due {
		if task.Terminal() {
			continue
		}
		expected := task.Status
		task.Status = models.TaskStatusExpired
		ok, err := f.Tasks.UpdateIfStatus(ctx, task, expected)
		if err != nil {
			return expired, fmt.Errorf("expire task %s: %w", task.ID, err)
		}
		if !ok {
			continue
		}
		expired++
		f.publish(ctx, Event{Kind: EventTaskExpired, TaskID: task.ID})
	}
	return expired, nil
}

// Get returns a task, mapping missing rows to ErrNotFound.
func (f *TaskFlow) Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return f.load(ctx, taskID)
}

func (f *TaskFlow) load(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := f.Tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

func (f *TaskFlow) save(ctx context.Context, task *models.Task, expectedStatus string) error {
	ok, err := f.Tasks.UpdateIfStatus(ctx, task, expectedStatus)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s is no longer %s: %w", task.ID, expectedStatus, ErrStateConflict)
	}
	return nil
}

func (f *TaskFlow) publish(ctx context.Context, e Event) {
	if f.Notify == nil {
		return
	}
	f.Notify.Publish(ctx, e)
}

func validateTaskInput(in *CreateTaskInput) error {
	if in.Title == "" {
		return fmt.Errorf("title is required: %w", ErrValidation)
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !validPriority(in.Priority) {
		return fmt.Errorf("unknown priority %q: %w", in.Priority, ErrValidation)
	}
	if err := validateTimeSlot(in.TimeSlot); err != nil {
		return err
	}
	if err := validateBudget(in.Budget); err != nil {
		return err
	}
	if in.MaxDistanceKm != nil && *in.MaxDistanceKm <= 0 {
		return fmt.Errorf("max_distance_km must be positive: %w", ErrValidation)
	}
	return nil
}

func validPriority(p string) bool {
	return p == models.PriorityLow || p == models.PriorityNormal || p == models.PriorityUrgent
}

func validateTimeSlot(slot *models.TimeSlot) error {
	if slot == nil {
		return nil
	}
	start, err := time.Parse("15:04", slot.Start)
	if err != nil {
		return fmt.Errorf("bad time slot start %q: %w", slot.Start, ErrValidation)
	}
	end, err := time.Parse("15:04", slot.End)
	if err != nil {
		return fmt.Errorf("bad time slot end %q: %w", slot.End, ErrValidation)
	}
	if !start.Before(end) {
		return fmt.Errorf("time slot start must precede end: %w", ErrValidation)
	}
	return nil
}

func validateBudget(b *models.BudgetRange) error {
	if b == nil {
		return nil
	}
	if b.Min < 0 || b.Max < 0 {
		return fmt.Errorf("budget must not be negative: %w", ErrValidation)
	}
	if b.Min > b.Max {
		return fmt.Errorf("budget min exceeds max: %w", ErrValidation)
	}
	return nil
}
