package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hilom-backend/internal/models"
)

// StatusChange carries the field writes that ride along with one conditional
// status transition. Nil pointers leave the column untouched.
type StatusChange struct {
	TherapistID *string
	StartedAt   *int64
	EndedAt     *int64
}

// Store is the persistence boundary for bookings. TransitionStatus is the
// sole mutation primitive for status changes: it must apply atomically,
// succeeding only if the row's current status equals from, and return
// ErrStaleState otherwise. Implementations back it with a single conditional
// UPDATE so concurrent transitions against the same row serialize on the
// database.
type Store interface {
	ListPending(ctx context.Context) ([]models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, change StatusChange) error
}

// Presence reports whether a therapist is currently online. Claiming and
// location reporting both require the therapist to be online.
type Presence interface {
	IsOnline(ctx context.Context, workerID string) (bool, error)
}

// Service coordinates the claim race and drives the booking lifecycle.
type Service struct {
	store    Store
	presence Presence
	now      func() time.Time
}

func NewService(store Store, presence Presence) *Service {
	return &Service{
		store:    store,
		presence: presence,
		now:      time.Now,
	}
}

// ListPendingBookings returns a finite snapshot of unclaimed bookings,
// newest first.
func (s *Service) ListPendingBookings(ctx context.Context) ([]models.Booking, error) {
	bookings, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return bookings, nil
}

// ClaimBooking attempts to assign the pending booking to workerID. The
// conditional write expecting status=pending is the serialization point: at
// most one concurrent caller wins, everyone else gets ErrAlreadyClaimed and
// must pick a different booking. The same id is never retried automatically.
func (s *Service) ClaimBooking(ctx context.Context, bookingID, workerID string) (*models.Booking, error) {
	if workerID == "" {
		return nil, ErrUnauthorized
	}

	online, err := s.presence.IsOnline(ctx, workerID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !online {
		return nil, fmt.Errorf("%w: therapist is offline", ErrUnauthorized)
	}

	change := StatusChange{TherapistID: &workerID}
	err = s.store.TransitionStatus(ctx, bookingID, models.BookingStatusPending, models.BookingStatusClaimed, change)
	if errors.Is(err, ErrStaleState) || errors.Is(err, ErrNotFound) {
		// Lost the race, or the booking was cancelled/removed underneath us.
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	// Re-read after the write so the caller observes the authoritative
	// owner and status, not the pre-write view.
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("✅ Booking %s claimed by therapist %s", bookingID, workerID)
	return booking, nil
}

// Advance moves the booking owned by workerID to the next status in the
// fixed order. The target is derived from the current status, never chosen
// by the caller. A rejected conditional write surfaces as ErrStaleState and
// is fatal to this attempt: the caller re-reads to resync instead of
// blindly retrying.
func (s *Service) Advance(ctx context.Context, bookingID, workerID string) (*models.Booking, error) {
	if workerID == "" {
		return nil, ErrUnauthorized
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !booking.OwnedBy(workerID) {
		return nil, fmt.Errorf("%w: not the owner of booking %s", ErrUnauthorized, bookingID)
	}

	next, ok := models.NextStatus(booking.Status)
	if !ok {
		return nil, fmt.Errorf("%w: no transition from %s", ErrStaleState, booking.Status)
	}

	var change StatusChange
	now := s.now().Unix()
	switch next {
	case models.BookingStatusInProgress:
		change.StartedAt = &now
	case models.BookingStatusCompleted:
		change.EndedAt = &now
	}

	err = s.store.TransitionStatus(ctx, bookingID, booking.Status, next, change)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	fresh, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("✅ Booking %s advanced %s → %s by therapist %s", bookingID, booking.Status, next, workerID)
	return fresh, nil
}

// Cancel moves a booking to cancelled on behalf of a manager. Only claimed
// and arrived bookings can be cancelled; once the session has started the
// booking runs to completion.
func (s *Service) Cancel(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !models.CanCancel(booking.Status) {
		return nil, fmt.Errorf("%w: cannot cancel booking in status %s", ErrStaleState, booking.Status)
	}

	err = s.store.TransitionStatus(ctx, bookingID, booking.Status, models.BookingStatusCancelled, StatusChange{})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	fresh, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	log.Printf("🛑 Booking %s cancelled (was %s)", bookingID, booking.Status)
	return fresh, nil
}

// wrapStoreErr maps context deadline failures onto the retryable timeout
// error so callers never see a raw infrastructure hang.
func wrapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
