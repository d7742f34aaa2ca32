package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hilom-backend/internal/models"
)

// memStore is an in-memory Store with the same conditional-write contract as
// the database: a transition applies only if the row's current status matches,
// and a mismatch returns ErrStaleState.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
}

func newMemStore(bookings ...*models.Booking) *memStore {
	s := &memStore{bookings: make(map[string]*models.Booking)}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
	return s
}

func (s *memStore) ListPending(ctx context.Context) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Booking
	for _, b := range s.bookings {
		if b.Status == models.BookingStatusPending {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *memStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	snapshot := *b
	return &snapshot, nil
}

func (s *memStore) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, change StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	if b.Status != from {
		return fmt.Errorf("%w: booking %s is %s, expected %s", ErrStaleState, id, b.Status, from)
	}

	b.Status = to
	if change.TherapistID != nil {
		b.TherapistID = change.TherapistID
	}
	if change.StartedAt != nil {
		b.StartedAt = change.StartedAt
	}
	if change.EndedAt != nil {
		b.EndedAt = change.EndedAt
	}
	b.UpdatedAt = time.Now().Unix()
	return nil
}

// fakePresence marks a fixed set of therapists online.
type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) IsOnline(ctx context.Context, workerID string) (bool, error) {
	return p.online[workerID], nil
}

func allOnline(ids ...string) *fakePresence {
	p := &fakePresence{online: make(map[string]bool)}
	for _, id := range ids {
		p.online[id] = true
	}
	return p
}

func pendingBooking(id string) *models.Booking {
	return &models.Booking{
		ID:       id,
		ClientID: "client-1",
		Status:   models.BookingStatusPending,
	}
}

func TestClaimBooking(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))

	booking, err := svc.ClaimBooking(context.Background(), "b1", "t1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if booking.Status != models.BookingStatusClaimed {
		t.Errorf("status = %s, want claimed", booking.Status)
	}
	if booking.TherapistID == nil || *booking.TherapistID != "t1" {
		t.Errorf("therapist_id = %v, want t1", booking.TherapistID)
	}
}

func TestClaimBookingRequiresAuth(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))

	if _, err := svc.ClaimBooking(context.Background(), "b1", ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty worker: got %v, want ErrUnauthorized", err)
	}
}

func TestClaimBookingOfflineTherapist(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline()) // nobody online

	_, err := svc.ClaimBooking(context.Background(), "b1", "t1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("offline claim: got %v, want ErrUnauthorized", err)
	}

	fresh, _ := store.GetBooking(context.Background(), "b1")
	if fresh.Status != models.BookingStatusPending {
		t.Errorf("booking should stay pending, got %s", fresh.Status)
	}
}

func TestClaimBookingAlreadyClaimed(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1", "t2"))

	if _, err := svc.ClaimBooking(context.Background(), "b1", "t1"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	_, err := svc.ClaimBooking(context.Background(), "b1", "t2")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim: got %v, want ErrAlreadyClaimed", err)
	}

	fresh, _ := store.GetBooking(context.Background(), "b1")
	if fresh.TherapistID == nil || *fresh.TherapistID != "t1" {
		t.Errorf("owner = %v, want t1", fresh.TherapistID)
	}
}

func TestClaimBookingNotFound(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, allOnline("t1"))

	// A vanished booking looks the same as a lost race to the caller:
	// pick another one.
	_, err := svc.ClaimBooking(context.Background(), "missing", "t1")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("got %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimBookingConcurrentSingleWinner(t *testing.T) {
	const workers = 50

	store := newMemStore(pendingBooking("b1"))
	ids := make([]string, workers)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	svc := NewService(store, allOnline(ids...))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		lost    int
	)

	for _, id := range ids {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			_, err := svc.ClaimBooking(context.Background(), "b1", workerID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, workerID)
			case errors.Is(err, ErrAlreadyClaimed):
				lost++
			default:
				t.Errorf("worker %s: unexpected error %v", workerID, err)
			}
		}(id)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	if lost != workers-1 {
		t.Errorf("losers = %d, want %d", lost, workers-1)
	}

	fresh, _ := store.GetBooking(context.Background(), "b1")
	if fresh.TherapistID == nil || *fresh.TherapistID != winners[0] {
		t.Errorf("recorded owner %v does not match winner %s", fresh.TherapistID, winners[0])
	}
}

func TestAdvanceFullLifecycle(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))
	ctx := context.Background()

	if _, err := svc.ClaimBooking(ctx, "b1", "t1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	want := []models.BookingStatus{
		models.BookingStatusArrived,
		models.BookingStatusInProgress,
		models.BookingStatusCompleted,
	}
	for _, expected := range want {
		booking, err := svc.Advance(ctx, "b1", "t1")
		if err != nil {
			t.Fatalf("advance to %s: %v", expected, err)
		}
		if booking.Status != expected {
			t.Fatalf("status = %s, want %s", booking.Status, expected)
		}
	}

	final, _ := store.GetBooking(ctx, "b1")
	if final.StartedAt == nil {
		t.Fatal("started_at not set")
	}
	if final.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
	if *final.EndedAt < *final.StartedAt {
		t.Errorf("ended_at %d before started_at %d", *final.EndedAt, *final.StartedAt)
	}
}

func TestAdvanceSetsStartedAtOnce(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return base }

	svc.ClaimBooking(ctx, "b1", "t1")
	svc.Advance(ctx, "b1", "t1") // → arrived
	svc.Advance(ctx, "b1", "t1") // → in_progress, stamps started_at

	afterStart, _ := store.GetBooking(ctx, "b1")
	if afterStart.StartedAt == nil || *afterStart.StartedAt != base.Unix() {
		t.Fatalf("started_at = %v, want %d", afterStart.StartedAt, base.Unix())
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	svc.Advance(ctx, "b1", "t1") // → completed

	final, _ := store.GetBooking(ctx, "b1")
	if *final.StartedAt != base.Unix() {
		t.Errorf("started_at changed to %d after completion", *final.StartedAt)
	}
	if final.EndedAt == nil || *final.EndedAt != base.Add(time.Hour).Unix() {
		t.Errorf("ended_at = %v, want %d", final.EndedAt, base.Add(time.Hour).Unix())
	}
}

func TestAdvanceByNonOwner(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1", "t2"))
	ctx := context.Background()

	svc.ClaimBooking(ctx, "b1", "t1")

	if _, err := svc.Advance(ctx, "b1", "t2"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-owner advance: got %v, want ErrUnauthorized", err)
	}

	fresh, _ := store.GetBooking(ctx, "b1")
	if fresh.Status != models.BookingStatusClaimed {
		t.Errorf("status = %s, non-owner must not move the booking", fresh.Status)
	}
}

func TestAdvancePastCompletedIsStale(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))
	ctx := context.Background()

	svc.ClaimBooking(ctx, "b1", "t1")
	for i := 0; i < 3; i++ {
		if _, err := svc.Advance(ctx, "b1", "t1"); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}

	if _, err := svc.Advance(ctx, "b1", "t1"); !errors.Is(err, ErrStaleState) {
		t.Errorf("advance past completed: got %v, want ErrStaleState", err)
	}
}

func TestTransitionStatusRejectsStaleExpectation(t *testing.T) {
	// The conditional write itself must refuse a transition whose
	// expectation no longer holds, no matter who asks.
	store := newMemStore(pendingBooking("b1"))
	ctx := context.Background()

	t1 := "t1"
	change := StatusChange{TherapistID: &t1}
	if err := store.TransitionStatus(ctx, "b1", models.BookingStatusPending, models.BookingStatusClaimed, change); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	err := store.TransitionStatus(ctx, "b1", models.BookingStatusPending, models.BookingStatusClaimed, change)
	if !errors.Is(err, ErrStaleState) {
		t.Errorf("replayed transition: got %v, want ErrStaleState", err)
	}
}

func TestCancel(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))
	ctx := context.Background()

	svc.ClaimBooking(ctx, "b1", "t1")

	booking, err := svc.Cancel(ctx, "b1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if booking.Status != models.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", booking.Status)
	}
}

func TestCancelAfterSessionStarted(t *testing.T) {
	store := newMemStore(pendingBooking("b1"))
	svc := NewService(store, allOnline("t1"))
	ctx := context.Background()

	svc.ClaimBooking(ctx, "b1", "t1")
	svc.Advance(ctx, "b1", "t1") // arrived
	svc.Advance(ctx, "b1", "t1") // in_progress

	if _, err := svc.Cancel(ctx, "b1"); !errors.Is(err, ErrStaleState) {
		t.Errorf("cancel of running session: got %v, want ErrStaleState", err)
	}

	fresh, _ := store.GetBooking(ctx, "b1")
	if fresh.Status != models.BookingStatusInProgress {
		t.Errorf("status = %s, session must keep running", fresh.Status)
	}
}

// timeoutStore fails every read with a deadline error.
type timeoutStore struct{ memStore }

func (s *timeoutStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return nil, context.DeadlineExceeded
}

func TestStoreTimeoutSurfacesAsErrTimeout(t *testing.T) {
	svc := NewService(&timeoutStore{}, allOnline("t1"))

	_, err := svc.Advance(context.Background(), "b1", "t1")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
}
