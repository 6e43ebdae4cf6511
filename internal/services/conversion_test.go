package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/localpro/backend/internal/models"
)

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// mockTaskRepo doubles as the converter's transactional port; the mock has no
// real transactions, so the conditional write itself is the gate.
func (m *mockTaskRepo) UpdateIfStatusTx(ctx context.Context, _ pgx.Tx, t *models.Task, expectedStatus string) (bool, error) {
	return m.UpdateIfStatus(ctx, t, expectedStatus)
}

// --- booking repo mock with a per-day sequence counter ---

type convBookingRepo struct {
	mu       sync.Mutex
	seq      map[string]int
	bookings []*models.Booking
}

func newConvBookingRepo() *convBookingRepo {
	return &convBookingRepo{seq: make(map[string]int)}
}

func (m *convBookingRepo) CreateTx(_ context.Context, _ pgx.Tx, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings = append(m.bookings, &cp)
	return nil
}

func (m *convBookingRepo) NextSequenceTx(_ context.Context, _ pgx.Tx, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[day]++
	return m.seq[day], nil
}

// --- service repo mock ---

type convServiceRepo struct {
	services map[uuid.UUID]*models.Service
}

func newConvServiceRepo(services ...*models.Service) *convServiceRepo {
	m := &convServiceRepo{services: make(map[uuid.UUID]*models.Service)}
	for _, svc := range services {
		m.services[svc.ID] = svc
	}
	return m
}

func (m *convServiceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return svc, nil
}

func (m *convServiceRepo) FindActiveByProvider(_ context.Context, providerID uuid.UUID) ([]*models.Service, error) {
	var out []*models.Service
	for _, svc := range m.services {
		if svc.Active && svc.ProviderID == providerID {
			out = append(out, svc)
		}
	}
	return out, nil
}

// requestedTask builds a task in requested state for the given provider, with
// the provider's service recorded in the match set.
func requestedTask(providerID uuid.UUID, serviceID uuid.UUID) *models.Task {
	return &models.Task{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Title:      "Apartment cleaning",
		Location:   models.Location{Region: "North", City: "Kiel"},
		Status:     models.TaskStatusRequested,
		MatchedProviders: []models.ProviderMatch{{
			ProviderID:        providerID,
			Score:             80,
			MatchedServiceIDs: []uuid.UUID{serviceID},
		}},
		RequestedProvider: &models.ProviderRequest{ProviderID: providerID, RequestedAt: flowNow},
		ExpiresAt:         flowNow.Add(24 * time.Hour),
	}
}

func newConverterFixture(services ...*models.Service) (*Converter, *mockTaskRepo, *convBookingRepo) {
	tasks := newMockTaskRepo()
	bookings := newConvBookingRepo()
	conv := NewConverter(mockPool{}, tasks, bookings, newConvServiceRepo(services...), nil)
	conv.Clock = func() time.Time { return flowNow }
	return conv, tasks, bookings
}

// ---------------------------------------------------------------------------
// 1. TestConvert_Success
// ---------------------------------------------------------------------------

func TestConvert_Success(t *testing.T) {
	provider := uuid.New()
	svc := makeService(provider, []string{"cleaning"}, nil, 60)
	conv, tasks, bookings := newConverterFixture(svc)

	task := requestedTask(provider, svc.ID)
	date := flowNow.Add(48 * time.Hour)
	task.PreferredDate = &date
	task.TimeSlot = &models.TimeSlot{Start: "09:00", End: "12:00"}
	tasks.Create(context.Background(), task)

	got, booking, err := conv.Convert(context.Background(), task, provider, "see you friday")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if booking.BookingNumber != "BK-20260314-0001" {
		t.Errorf("booking number %q", booking.BookingNumber)
	}
	if booking.TaskID != task.ID || booking.ClientID != task.CustomerID || booking.ProviderID != provider {
		t.Errorf("party fields wrong: %+v", booking)
	}
	if booking.ServiceID != svc.ID || booking.ServiceDescription != svc.Title {
		t.Errorf("service snapshot wrong: %+v", booking)
	}
	if booking.Pricing.Estimated != 60 || booking.Pricing.Currency != "EUR" {
		t.Errorf("pricing snapshot wrong: %+v", booking.Pricing)
	}
	if booking.ServiceLocation.City != "Kiel" {
		t.Errorf("location snapshot wrong: %+v", booking.ServiceLocation)
	}
	if booking.ScheduledDate == nil || !booking.ScheduledDate.Equal(date) || booking.ScheduledTimeSlot == nil {
		t.Errorf("schedule snapshot wrong: %v %v", booking.ScheduledDate, booking.ScheduledTimeSlot)
	}
	if booking.Status != models.BookingStatusConfirmed || len(booking.StatusHistory) != 1 {
		t.Errorf("initial status wrong: %s %v", booking.Status, booking.StatusHistory)
	}

	if got.Status != models.TaskStatusConverted {
		t.Errorf("task must end converted, got %s", got.Status)
	}
	if got.ConvertedToBookingID == nil || *got.ConvertedToBookingID != booking.ID || got.ConvertedAt == nil {
		t.Errorf("conversion backlink wrong: %+v", got)
	}
	if got.AcceptedProvider == nil || got.AcceptedProvider.ProviderID != provider || got.AcceptedProvider.Message != "see you friday" {
		t.Errorf("acceptance not recorded: %+v", got.AcceptedProvider)
	}
	if len(bookings.bookings) != 1 {
		t.Fatalf("expected exactly one stored booking, got %d", len(bookings.bookings))
	}
}

// ---------------------------------------------------------------------------
// 2. TestConvert_SequencePerDay
// ---------------------------------------------------------------------------

func TestConvert_SequencePerDay(t *testing.T) {
	provider := uuid.New()
	svc := makeService(provider, []string{"cleaning"}, nil, 60)
	conv, tasks, _ := newConverterFixture(svc)

	for i, want := range []string{"BK-20260314-0001", "BK-20260314-0002"} {
		task := requestedTask(provider, svc.ID)
		tasks.Create(context.Background(), task)
		_, booking, err := conv.Convert(context.Background(), task, provider, "")
		if err != nil {
			t.Fatalf("convert %d: %v", i, err)
		}
		if booking.BookingNumber != want {
			t.Errorf("convert %d: booking number %q, want %q", i, booking.BookingNumber, want)
		}
	}
}

// ---------------------------------------------------------------------------
// 3. TestConvert_Guards
// ---------------------------------------------------------------------------

func TestConvert_Guards(t *testing.T) {
	provider := uuid.New()
	svc := makeService(provider, []string{"cleaning"}, nil, 60)
	conv, tasks, _ := newConverterFixture(svc)

	// Wrong status.
	task := requestedTask(provider, svc.ID)
	task.Status = models.TaskStatusMatched
	if _, _, err := conv.Convert(context.Background(), task, provider, ""); !errors.Is(err, ErrStateConflict) {
		t.Errorf("unrequested task: expected conflict, got %v", err)
	}

	// Wrong provider.
	task = requestedTask(provider, svc.ID)
	if _, _, err := conv.Convert(context.Background(), task, uuid.New(), ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("wrong provider: expected forbidden, got %v", err)
	}

	// Expired task.
	task = requestedTask(provider, svc.ID)
	task.ExpiresAt = flowNow.Add(-time.Minute)
	tasks.Create(context.Background(), task)
	if _, _, err := conv.Convert(context.Background(), task, provider, ""); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expired task: expected conflict, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 4. TestConvert_ServiceResolution
// ---------------------------------------------------------------------------

func TestConvert_ServiceResolution(t *testing.T) {
	provider := uuid.New()
	category := uuid.New()

	inactive := makeService(provider, []string{"cleaning"}, nil, 50)
	inactive.Active = false
	inCategory := makeService(provider, nil, &category, 70)
	other := makeService(provider, []string{"garden"}, nil, 30)

	// The matched service is gone; the category service wins over the rest of
	// the catalog.
	conv, tasks, _ := newConverterFixture(inactive, inCategory, other)
	task := requestedTask(provider, inactive.ID)
	task.CategoryID = &category
	tasks.Create(context.Background(), task)
	_, booking, err := conv.Convert(context.Background(), task, provider, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ServiceID != inCategory.ID {
		t.Errorf("expected category service, got %s", booking.ServiceID)
	}

	// Empty catalog: the conversion fails and the task stays requested.
	empty, tasks2, _ := newConverterFixture()
	task = requestedTask(provider, uuid.New())
	tasks2.Create(context.Background(), task)
	if _, _, err := empty.Convert(context.Background(), task, provider, ""); !errors.Is(err, ErrServiceResolution) {
		t.Fatalf("expected service resolution failure, got %v", err)
	}
	stored, _ := tasks2.GetByID(context.Background(), task.ID)
	if stored.Status != models.TaskStatusRequested {
		t.Fatalf("failed conversion must leave the task requested, got %s", stored.Status)
	}
}

// ---------------------------------------------------------------------------
// 5. TestConvert_ConcurrentAccepts
// ---------------------------------------------------------------------------

// Two simultaneous accepts of the same request must produce exactly one
// booking; the loser sees a state conflict.
func TestConvert_ConcurrentAccepts(t *testing.T) {
	provider := uuid.New()
	svc := makeService(provider, []string{"cleaning"}, nil, 60)
	conv, tasks, bookings := newConverterFixture(svc)

	task := requestedTask(provider, svc.ID)
	tasks.Create(context.Background(), task)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local, err := tasks.GetByID(context.Background(), task.ID)
			if err != nil {
				errs <- fmt.Errorf("load: %w", err)
				return
			}
			_, _, err = conv.Convert(context.Background(), local, provider, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	won, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrStateConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != attempts-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d/%d", attempts-1, won, lost)
	}
	if len(bookings.bookings) != 1 {
		t.Fatalf("expected exactly one booking, got %d", len(bookings.bookings))
	}
}

// ---------------------------------------------------------------------------
// 6. TestRespondToRequest_Accept
// ---------------------------------------------------------------------------

// End to end through the task flow: the provider's accept converts the task
// and publishes a booking confirmation.
func TestRespondToRequest_Accept(t *testing.T) {
	flow, repo, sink, provider := newFlowFixture()
	customer := uuid.New()

	svc := makeService(provider.ID, []string{"cleaning"}, nil, 40)
	converter := NewConverter(mockPool{}, repo, newConvBookingRepo(), newConvServiceRepo(svc), nil)
	converter.Clock = flow.Clock
	flow.Converter = converter

	task, _ := flow.Create(context.Background(), customer, cleaningInput())
	if _, _, err := flow.RunMatching(context.Background(), task.ID, ""); err != nil {
		t.Fatalf("matching: %v", err)
	}
	if _, err := flow.RequestProvider(context.Background(), task.ID, customer, provider.ID, ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	got, booking, err := flow.RespondToRequest(context.Background(), task.ID, provider.ID, "accept", "on it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking == nil || booking.ProviderID != provider.ID {
		t.Fatalf("accept must create a booking: %+v", booking)
	}
	if got.Status != models.TaskStatusConverted {
		t.Fatalf("task must be converted, got %s", got.Status)
	}
	if kinds := sink.kinds(); kinds[len(kinds)-1] != EventBookingConfirmed {
		t.Fatalf("expected booking.confirmed event, got %v", kinds)
	}
}
