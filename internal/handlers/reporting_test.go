package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/middleware"
	"hilom-backend/internal/models"
	"hilom-backend/internal/tracker"

	"github.com/go-chi/chi/v5"
)

// fakeBookingReader serves a single booking.
type fakeBookingReader struct {
	booking *models.Booking
}

func (f *fakeBookingReader) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if f.booking == nil || f.booking.ID != id {
		return nil, dispatch.ErrNotFound
	}
	snapshot := *f.booking
	return &snapshot, nil
}

// fakePresence marks a fixed set of therapists online.
type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) IsOnline(ctx context.Context, workerID string) (bool, error) {
	return p.online[workerID], nil
}

type noopLocationStore struct{}

func (noopLocationStore) UpdateBookingLocation(ctx context.Context, id string, lat, lng float64, reportedAt int64) error {
	return nil
}

func (noopLocationStore) ClearBookingLocation(ctx context.Context, id string) error {
	return nil
}

type stubSampler struct{}

func (stubSampler) SampleOnce(ctx context.Context) (float64, float64, error) { return 0, 0, nil }
func (stubSampler) PermissionGranted() bool                                  { return false }

func newTestTracker() *tracker.Manager {
	return tracker.NewManager(noopLocationStore{}, nil, func(workerID string) tracker.Sampler {
		return stubSampler{}
	})
}

func claimedBooking(id, therapistID string) *models.Booking {
	return &models.Booking{
		ID:          id,
		ClientID:    "client-1",
		Status:      models.BookingStatusClaimed,
		TherapistID: &therapistID,
	}
}

// authedRequest builds a request carrying auth claims and the {id} route
// parameter, as the middleware and router would.
func authedRequest(method, target, userID, role, bookingID string) *http.Request {
	r := httptest.NewRequest(method, target, nil)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", bookingID)

	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserContextKey, middleware.UserClaims{
		UserID: userID,
		Role:   role,
	})
	return r.WithContext(ctx)
}

func TestStartLocationReportingRejectsOfflineTherapist(t *testing.T) {
	store := &fakeBookingReader{booking: claimedBooking("b1", "t1")}
	trk := newTestTracker()
	defer trk.StopAll()

	handler := StartLocationReporting(store, &fakePresence{online: map[string]bool{}}, trk)

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(http.MethodPost, "/api/worker/bookings/b1/reporting/start", "t1", "therapist", "b1"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d for offline therapist", rec.Code, http.StatusUnauthorized)
	}
	if trk.IsTracking("b1") {
		t.Error("reporting must not start while the therapist is offline")
	}
}

func TestStartLocationReportingOnlineOwner(t *testing.T) {
	store := &fakeBookingReader{booking: claimedBooking("b1", "t1")}
	trk := newTestTracker()
	defer trk.StopAll()

	handler := StartLocationReporting(store, &fakePresence{online: map[string]bool{"t1": true}}, trk)

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(http.MethodPost, "/api/worker/bookings/b1/reporting/start", "t1", "therapist", "b1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !trk.IsTracking("b1") {
		t.Error("reporting should be running for the online owner")
	}
}

func TestStartLocationReportingRejectsNonOwner(t *testing.T) {
	store := &fakeBookingReader{booking: claimedBooking("b1", "t1")}
	trk := newTestTracker()
	defer trk.StopAll()

	handler := StartLocationReporting(store, &fakePresence{online: map[string]bool{"t2": true}}, trk)

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(http.MethodPost, "/api/worker/bookings/b1/reporting/start", "t2", "therapist", "b1"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d for non-owner", rec.Code, http.StatusUnauthorized)
	}
	if trk.IsTracking("b1") {
		t.Error("reporting must not start for a non-owner")
	}
}

func TestStartLocationReportingFinishedBooking(t *testing.T) {
	booking := claimedBooking("b1", "t1")
	booking.Status = models.BookingStatusCompleted
	store := &fakeBookingReader{booking: booking}
	trk := newTestTracker()
	defer trk.StopAll()

	handler := StartLocationReporting(store, &fakePresence{online: map[string]bool{"t1": true}}, trk)

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(http.MethodPost, "/api/worker/bookings/b1/reporting/start", "t1", "therapist", "b1"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d for finished booking", rec.Code, http.StatusConflict)
	}
}

func TestStopLocationReportingRequiresOwnership(t *testing.T) {
	store := &fakeBookingReader{booking: claimedBooking("b1", "t1")}
	trk := newTestTracker()
	defer trk.StopAll()

	trk.Start("b1", "t1")

	handler := StopLocationReporting(store, trk)

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(http.MethodPost, "/api/worker/bookings/b1/reporting/stop", "t2", "therapist", "b1"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d for non-owner", rec.Code, http.StatusUnauthorized)
	}
	if !trk.IsTracking("b1") {
		t.Error("a non-owner must not be able to halt another therapist's reporting")
	}
}

func TestStopLocationReportingByOwner(t *testing.T) {
	store := &fakeBookingReader{booking: claimedBooking("b1", "t1")}
	trk := newTestTracker()
	defer trk.StopAll()

	trk.Start("b1", "t1")

	handler := StopLocationReporting(store, trk)

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(http.MethodPost, "/api/worker/bookings/b1/reporting/stop", "t1", "therapist", "b1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if trk.IsTracking("b1") {
		t.Error("owner stop should halt reporting")
	}
}
