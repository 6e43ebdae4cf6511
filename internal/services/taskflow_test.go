package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/localpro/backend/internal/models"
)

// mockTaskRepo is a map-backed TaskRepo with the same conditional-write
// contract as the real one. conflictOn forces the optimistic write to report
// a lost race for specific tasks.
type mockTaskRepo struct {
	mu         sync.Mutex
	tasks      map[uuid.UUID]*models.Task
	conflictOn map[uuid.UUID]bool
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{
		tasks:      make(map[uuid.UUID]*models.Task),
		conflictOn: make(map[uuid.UUID]bool),
	}
}

func (m *mockTaskRepo) Create(_ context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Deleted {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepo) UpdateIfStatus(_ context.Context, t *models.Task, expectedStatus string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictOn[t.ID] {
		return false, nil
	}
	stored, ok := m.tasks[t.ID]
	if !ok || stored.Deleted || stored.Status != expectedStatus {
		return false, nil
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return true, nil
}

func (m *mockTaskRepo) ListDueForExpiry(_ context.Context, now time.Time, limit int) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, t := range m.tasks {
		if t.Deleted || !t.ExpiresAt.Before(now) {
			continue
		}
		cp := *t
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// recordSink captures published events in order.
type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Publish(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

var flowNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// newFlowFixture wires a TaskFlow over the mock repo with a fixed clock and
// one matchable provider in the North region offering a cleaning service.
func newFlowFixture() (*TaskFlow, *mockTaskRepo, *recordSink, *models.Provider) {
	provider := &models.Provider{ID: uuid.New(), Active: true, Location: models.Location{Region: "North"}}
	providers := &mockProviderRepo{providers: []*models.Provider{provider}}
	services := &mockServiceRepo{services: []*models.Service{
		makeService(provider.ID, []string{"cleaning"}, nil, 40),
	}}
	matcher := newTestMatcher(providers, services, DefaultScoreWeights(), DefaultMatchConfig())

	repo := newMockTaskRepo()
	sink := &recordSink{}
	flow := NewTaskFlow(repo, matcher, nil, sink, nil)
	flow.Clock = func() time.Time { return flowNow }
	return flow, repo, sink, provider
}

func cleaningInput() CreateTaskInput {
	return CreateTaskInput{
		Title:    "Apartment cleaning",
		Tags:     []string{"cleaning"},
		Location: models.Location{Region: "North"},
	}
}

// ---------------------------------------------------------------------------
// 1. TestTaskFlowCreate_Defaults
// ---------------------------------------------------------------------------

func TestTaskFlowCreate_Defaults(t *testing.T) {
	flow, _, _, _ := newFlowFixture()
	customer := uuid.New()

	task, err := flow.Create(context.Background(), customer, cleaningInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("new task must be pending, got %s", task.Status)
	}
	if task.Priority != models.PriorityNormal {
		t.Errorf("priority defaults to normal, got %s", task.Priority)
	}
	if want := flowNow.Add(models.DefaultTaskTTL); !task.ExpiresAt.Equal(want) {
		t.Errorf("expiry defaults to 30 days out, got %s", task.ExpiresAt)
	}
	if task.CustomerID != customer {
		t.Errorf("customer not recorded")
	}
}

// ---------------------------------------------------------------------------
// 2. TestTaskFlowCreate_Validation
// ---------------------------------------------------------------------------

func TestTaskFlowCreate_Validation(t *testing.T) {
	flow, _, _, _ := newFlowFixture()
	bad := -1.0
	cases := []struct {
		name string
		in   CreateTaskInput
	}{
		{"empty title", CreateTaskInput{}},
		{"unknown priority", CreateTaskInput{Title: "x", Priority: "asap"}},
		{"bad slot format", CreateTaskInput{Title: "x", TimeSlot: &models.TimeSlot{Start: "nine", End: "10:00"}}},
		{"inverted slot", CreateTaskInput{Title: "x", TimeSlot: &models.TimeSlot{Start: "14:00", End: "09:00"}}},
		{"negative budget", CreateTaskInput{Title: "x", Budget: &models.BudgetRange{Min: -5, Max: 10}}},
		{"inverted budget", CreateTaskInput{Title: "x", Budget: &models.BudgetRange{Min: 50, Max: 10}}},
		{"non-positive distance", CreateTaskInput{Title: "x", MaxDistanceKm: &bad}},
	}
	for _, tc := range cases {
		if _, err := flow.Create(context.Background(), uuid.New(), tc.in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

// ---------------------------------------------------------------------------
// 3. TestRunMatching_Transitions
// ---------------------------------------------------------------------------

func TestRunMatching_Transitions(t *testing.T) {
	flow, _, sink, _ := newFlowFixture()
	task, err := flow.Create(context.Background(), uuid.New(), cleaningInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	matched, result, err := flow.RunMatching(context.Background(), task.ID, "")
	if err != nil {
		t.Fatalf("matching: %v", err)
	}
	if matched.Status != models.TaskStatusMatched {
		t.Fatalf("expected matched, got %s", matched.Status)
	}
	if len(matched.MatchedProviders) != len(result.Matches) || len(result.Matches) == 0 {
		t.Fatalf("match artifacts not recorded: %+v", matched.MatchedProviders)
	}
	if matched.MatchingAttemptedAt == nil || matched.MatchingCriteria == nil {
		t.Fatal("matching audit fields not set")
	}
	if kinds := sink.kinds(); len(kinds) != 1 || kinds[0] != EventTaskMatched {
		t.Fatalf("expected task.matched event, got %v", kinds)
	}
}

func TestRunMatching_FloatingWhenNoCandidates(t *testing.T) {
	repo := newMockTaskRepo()
	sink := &recordSink{}
	matcher := newTestMatcher(&mockProviderRepo{}, &mockServiceRepo{}, DefaultScoreWeights(), DefaultMatchConfig())
	flow := NewTaskFlow(repo, matcher, nil, sink, nil)
	flow.Clock = func() time.Time { return flowNow }

	task, err := flow.Create(context.Background(), uuid.New(), cleaningInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	floating, _, err := flow.RunMatching(context.Background(), task.ID, "")
	if err != nil {
		t.Fatalf("matching: %v", err)
	}
	if floating.Status != models.TaskStatusFloating {
		t.Fatalf("no candidates must float the task, got %s", floating.Status)
	}
	if kinds := sink.kinds(); len(kinds) != 1 || kinds[0] != EventTaskFloating {
		t.Fatalf("expected task.floating event, got %v", kinds)
	}
}

func TestRunMatching_OutsideDiscovery(t *testing.T) {
	flow, repo, _, _ := newFlowFixture()
	task, _ := flow.Create(context.Background(), uuid.New(), cleaningInput())
	repo.tasks[task.ID].Status = models.TaskStatusConverted

	if _, _, err := flow.RunMatching(context.Background(), task.ID, ""); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRunMatching_NotFound(t *testing.T) {
	flow, _, _, _ := newFlowFixture()
	if _, _, err := flow.RunMatching(context.Background(), uuid.New(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 4. TestExpressInterest
// ---------------------------------------------------------------------------

func TestExpressInterest(t *testing.T) {
	flow, repo, sink, provider := newFlowFixture()
	task, _ := flow.Create(context.Background(), uuid.New(), cleaningInput())
	repo.tasks[task.ID].Status = models.TaskStatusFloating

	got, err := flow.ExpressInterest(context.Background(), task.ID, provider.ID, "happy to help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.InterestedProviders) != 1 || got.InterestedProviders[0].ProviderID != provider.ID {
		t.Fatalf("interest not recorded: %+v", got.InterestedProviders)
	}

	// Duplicate interest is a silent no-op.
	again, err := flow.ExpressInterest(context.Background(), task.ID, provider.ID, "me again")
	if err != nil {
		t.Fatalf("duplicate interest must not error: %v", err)
	}
	if len(again.InterestedProviders) != 1 {
		t.Fatalf("duplicate interest must not append, got %d entries", len(again.InterestedProviders))
	}
	if kinds := sink.kinds(); len(kinds) != 1 || kinds[0] != EventTaskInterest {
		t.Fatalf("expected exactly one interest event, got %v", kinds)
	}
}

func TestExpressInterest_RequiresFloating(t *testing.T) {
	flow, _, _, provider := newFlowFixture()
	task, _ := flow.Create(context.Background(), uuid.New(), cleaningInput())

	if _, err := flow.ExpressInterest(context.Background(), task.ID, provider.ID, ""); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("interest on a pending task must conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 5. TestRequestProvider
// ---------------------------------------------------------------------------

func TestRequestProvider(t *testing.T) {
	flow, _, sink, provider := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())
	if _, _, err := flow.RunMatching(context.Background(), task.ID, ""); err != nil {
		t.Fatalf("matching: %v", err)
	}

	got, err := flow.RequestProvider(context.Background(), task.ID, customer, provider.ID, "can you come friday")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != models.TaskStatusRequested {
		t.Fatalf("expected requested, got %s", got.Status)
	}
	if got.RequestedProvider == nil || got.RequestedProvider.ProviderID != provider.ID {
		t.Fatalf("request not recorded: %+v", got.RequestedProvider)
	}
	if kinds := sink.kinds(); kinds[len(kinds)-1] != EventTaskRequested {
		t.Fatalf("expected task.requested event, got %v", kinds)
	}
}

func TestRequestProvider_Rejections(t *testing.T) {
	flow, _, _, provider := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())
	if _, _, err := flow.RunMatching(context.Background(), task.ID, ""); err != nil {
		t.Fatalf("matching: %v", err)
	}

	// Not the owner.
	if _, err := flow.RequestProvider(context.Background(), task.ID, uuid.New(), provider.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger request: expected forbidden, got %v", err)
	}
	// Provider neither matched nor interested.
	if _, err := flow.RequestProvider(context.Background(), task.ID, customer, uuid.New(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("unmatched provider: expected validation error, got %v", err)
	}

	// Already requested.
	if _, err := flow.RequestProvider(context.Background(), task.ID, customer, provider.ID, ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := flow.RequestProvider(context.Background(), task.ID, customer, provider.ID, ""); !errors.Is(err, ErrStateConflict) {
		t.Errorf("double request: expected state conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 6. TestRespondToRequest_Reject
// ---------------------------------------------------------------------------

func TestRespondToRequest_Reject(t *testing.T) {
	flow, _, sink, provider := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())
	if _, _, err := flow.RunMatching(context.Background(), task.ID, ""); err != nil {
		t.Fatalf("matching: %v", err)
	}
	if _, err := flow.RequestProvider(context.Background(), task.ID, customer, provider.ID, ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	got, booking, err := flow.RespondToRequest(context.Background(), task.ID, provider.ID, "reject", "fully booked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking != nil {
		t.Fatal("a rejection must not create a booking")
	}
	if got.Status != models.TaskStatusMatched {
		t.Fatalf("rejection with surviving matches reverts to matched, got %s", got.Status)
	}
	if got.RequestedProvider != nil {
		t.Fatal("request must be cleared after rejection")
	}
	if got.LastRejection == nil || got.LastRejection.Reason != "fully booked" {
		t.Fatalf("rejection context not kept: %+v", got.LastRejection)
	}
	if kinds := sink.kinds(); kinds[len(kinds)-1] != EventTaskRejected {
		t.Fatalf("expected rejection event, got %v", kinds)
	}
}

func TestRespondToRequest_RejectRevertChain(t *testing.T) {
	flow, repo, _, provider := newFlowFixture()
	customer := uuid.New()

	prime := func(matches []models.ProviderMatch, interests []models.ProviderInterest) uuid.UUID {
		task, _ := flow.Create(context.Background(), customer, cleaningInput())
		stored := repo.tasks[task.ID]
		stored.Status = models.TaskStatusRequested
		stored.MatchedProviders = matches
		stored.InterestedProviders = interests
		stored.RequestedProvider = &models.ProviderRequest{ProviderID: provider.ID, RequestedAt: flowNow}
		return task.ID
	}

	interest := []models.ProviderInterest{{ProviderID: provider.ID, ExpressedAt: flowNow}}

	id := prime(nil, interest)
	got, _, err := flow.RespondToRequest(context.Background(), id, provider.ID, "reject", "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.TaskStatusFloating {
		t.Fatalf("interest but no matches must revert to floating, got %s", got.Status)
	}

	id = prime(nil, nil)
	got, _, err = flow.RespondToRequest(context.Background(), id, provider.ID, "reject", "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.TaskStatusPending {
		t.Fatalf("no discovery artifacts must revert to pending, got %s", got.Status)
	}
}

func TestRespondToRequest_Guards(t *testing.T) {
	flow, repo, _, provider := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())

	// Not requested yet.
	if _, _, err := flow.RespondToRequest(context.Background(), task.ID, provider.ID, "reject", ""); !errors.Is(err, ErrStateConflict) {
		t.Errorf("response on pending task: expected conflict, got %v", err)
	}

	stored := repo.tasks[task.ID]
	stored.Status = models.TaskStatusRequested
	stored.RequestedProvider = &models.ProviderRequest{ProviderID: provider.ID, RequestedAt: flowNow}

	// Wrong provider.
	if _, _, err := flow.RespondToRequest(context.Background(), task.ID, uuid.New(), "reject", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("wrong provider: expected forbidden, got %v", err)
	}
	// Unknown action.
	if _, _, err := flow.RespondToRequest(context.Background(), task.ID, provider.ID, "maybe", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown action: expected validation error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 7. TestCancel
// ---------------------------------------------------------------------------

func TestCancel(t *testing.T) {
	flow, repo, sink, provider := newFlowFixture()
	customer := uuid.New()

	newTask := func(status string, requested bool) uuid.UUID {
		task, _ := flow.Create(context.Background(), customer, cleaningInput())
		stored := repo.tasks[task.ID]
		stored.Status = status
		if requested {
			stored.RequestedProvider = &models.ProviderRequest{ProviderID: provider.ID, RequestedAt: flowNow}
		}
		return task.ID
	}

	// Owner cancels.
	id := newTask(models.TaskStatusMatched, false)
	got, err := flow.Cancel(context.Background(), id, customer, models.ActorRoleCustomer, "found help elsewhere")
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if got.Status != models.TaskStatusCancelled || got.CancelledAt == nil || got.CancelledBy != models.ActorRoleCustomer {
		t.Fatalf("cancellation fields wrong: %+v", got)
	}
	if got.CancellationReason != "found help elsewhere" {
		t.Fatalf("reason not kept: %q", got.CancellationReason)
	}
	if kinds := sink.kinds(); kinds[len(kinds)-1] != EventTaskCancelled {
		t.Fatalf("expected cancellation event, got %v", kinds)
	}

	// Stranger customer.
	id = newTask(models.TaskStatusMatched, false)
	if _, err := flow.Cancel(context.Background(), id, uuid.New(), models.ActorRoleCustomer, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger cancel: expected forbidden, got %v", err)
	}

	// Requested provider may cancel.
	id = newTask(models.TaskStatusRequested, true)
	if _, err := flow.Cancel(context.Background(), id, provider.ID, models.ActorRoleProvider, "double booked"); err != nil {
		t.Errorf("requested provider cancel: %v", err)
	}

	// Unengaged provider may not.
	id = newTask(models.TaskStatusRequested, true)
	if _, err := flow.Cancel(context.Background(), id, uuid.New(), models.ActorRoleProvider, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("unengaged provider cancel: expected forbidden, got %v", err)
	}

	// Terminal task.
	id = newTask(models.TaskStatusConverted, false)
	if _, err := flow.Cancel(context.Background(), id, customer, models.ActorRoleCustomer, ""); !errors.Is(err, ErrStateConflict) {
		t.Errorf("terminal cancel: expected conflict, got %v", err)
	}

	// Unknown role.
	id = newTask(models.TaskStatusMatched, false)
	if _, err := flow.Cancel(context.Background(), id, customer, "auditor", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown role: expected validation error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 8. TestUpdateDetails
// ---------------------------------------------------------------------------

func TestUpdateDetails_RematchOnTitleChange(t *testing.T) {
	flow, _, _, _ := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())

	title := "Deep apartment cleaning"
	got, err := flow.UpdateDetails(context.Background(), task.ID, customer, UpdateTaskInput{Title: &title})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != title {
		t.Fatalf("title not updated: %q", got.Title)
	}
	if got.Status != models.TaskStatusMatched {
		t.Fatalf("title change must rerun matching, status %s", got.Status)
	}
}

func TestUpdateDetails_NoRematchForSchedule(t *testing.T) {
	flow, _, _, _ := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())

	date := flowNow.Add(48 * time.Hour)
	got, err := flow.UpdateDetails(context.Background(), task.ID, customer, UpdateTaskInput{PreferredDate: &date})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != models.TaskStatusPending {
		t.Fatalf("schedule edit must not rerun matching, status %s", got.Status)
	}
	if got.PreferredDate == nil || !got.PreferredDate.Equal(date) {
		t.Fatalf("preferred date not updated: %v", got.PreferredDate)
	}
}

func TestUpdateDetails_Guards(t *testing.T) {
	flow, repo, _, _ := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())

	empty := ""
	if _, err := flow.UpdateDetails(context.Background(), task.ID, customer, UpdateTaskInput{Title: &empty}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty title: expected validation error, got %v", err)
	}
	title := "New title"
	if _, err := flow.UpdateDetails(context.Background(), task.ID, uuid.New(), UpdateTaskInput{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger edit: expected forbidden, got %v", err)
	}

	repo.tasks[task.ID].Status = models.TaskStatusRequested
	if _, err := flow.UpdateDetails(context.Background(), task.ID, customer, UpdateTaskInput{Title: &title}); !errors.Is(err, ErrStateConflict) {
		t.Errorf("edit after request: expected conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 9. TestSoftDelete
// ---------------------------------------------------------------------------

func TestSoftDelete(t *testing.T) {
	flow, _, _, _ := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())

	if err := flow.SoftDelete(context.Background(), task.ID, customer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := flow.Get(context.Background(), task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted task must read as not found, got %v", err)
	}
}

func TestSoftDelete_Guards(t *testing.T) {
	flow, repo, _, _ := newFlowFixture()
	customer := uuid.New()
	task, _ := flow.Create(context.Background(), customer, cleaningInput())

	if err := flow.SoftDelete(context.Background(), task.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger delete: expected forbidden, got %v", err)
	}
	repo.tasks[task.ID].Status = models.TaskStatusRequested
	if err := flow.SoftDelete(context.Background(), task.ID, customer); !errors.Is(err, ErrStateConflict) {
		t.Errorf("delete after request: expected conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 10. TestExpireDue
// ---------------------------------------------------------------------------

func TestExpireDue(t *testing.T) {
	flow, repo, sink, _ := newFlowFixture()
	customer := uuid.New()

	past := flowNow.Add(-time.Hour)
	due, _ := flow.Create(context.Background(), customer, CreateTaskInput{
		Title: "stale", Location: models.Location{Region: "North"}, ExpiresAt: &past,
	})
	fresh, _ := flow.Create(context.Background(), customer, cleaningInput())
	raced, _ := flow.Create(context.Background(), customer, CreateTaskInput{
		Title: "raced", Location: models.Location{Region: "North"}, ExpiresAt: &past,
	})
	repo.conflictOn[raced.ID] = true

	n, err := flow.ExpireDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expiry, got %d", n)
	}
	if repo.tasks[due.ID].Status != models.TaskStatusExpired {
		t.Errorf("due task not expired: %s", repo.tasks[due.ID].Status)
	}
	if repo.tasks[fresh.ID].Status != models.TaskStatusPending {
		t.Errorf("fresh task must be untouched: %s", repo.tasks[fresh.ID].Status)
	}
	if repo.tasks[raced.ID].Status != models.TaskStatusPending {
		t.Errorf("lost race must leave the task alone: %s", repo.tasks[raced.ID].Status)
	}
	if kinds := sink.kinds(); len(kinds) != 1 || kinds[0] != EventTaskExpired {
		t.Fatalf("expected one expiry event, got %v", kinds)
	}
}

// ---------------------------------------------------------------------------
// 11. TestEventActor
// ---------------------------------------------------------------------------

func TestEventActor(t *testing.T) {
	flow, repo, sink, provider := newFlowFixture()
	customer := uuid.New()

	task, _ := flow.Create(context.Background(), customer, cleaningInput())
	repo.tasks[task.ID].Status = models.TaskStatusFloating
	if _, err := flow.ExpressInterest(context.Background(), task.ID, provider.ID, "happy to help"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	past := flowNow.Add(-time.Hour)
	flow.Create(context.Background(), customer, CreateTaskInput{
		Title: "stale", Location: models.Location{Region: "North"}, ExpiresAt: &past,
	})
	if _, err := flow.ExpireDue(context.Background(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %v", sink.kinds())
	}
	actor := sink.events[0]
	if actor.ActorID == nil || *actor.ActorID != provider.ID {
		t.Errorf("interest event must carry the provider as actor, got %v", actor.ActorID)
	}
	system := sink.events[1]
	if system.ActorID != nil {
		t.Errorf("expiry has no actor, got %v", system.ActorID)
	}

	// System events serialize without an actor_id key at all.
	body, err := json.Marshal(system)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if strings.Contains(string(body), "actor_id") {
		t.Errorf("system event payload must omit actor_id: %s", body)
	}
}
