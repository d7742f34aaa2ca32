package handlers

import (
	"context"
	"errors"
	"net/http"

	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/middleware"
	"hilom-backend/internal/models"
	"hilom-backend/internal/tracker"
	"hilom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// BookingReader is the slice of the booking store the reporting endpoints
// need.
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

// ownedActiveBooking loads the booking and verifies the caller owns it.
// Writes the error response itself when the check fails.
func ownedActiveBooking(ctx context.Context, w http.ResponseWriter, store BookingReader, bookingID, workerID string) (*models.Booking, bool) {
	booking, err := store.GetBooking(ctx, bookingID)
	if errors.Is(err, dispatch.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Booking not found")
		return nil, false
	}
	if err != nil {
		respondDispatchError(w, err)
		return nil, false
	}

	if !booking.OwnedBy(workerID) {
		utils.RespondError(w, http.StatusUnauthorized, "Not the owner of this booking")
		return nil, false
	}
	return booking, true
}

// StartLocationReporting begins the periodic position loop for the
// caller's booking. The therapist must be online: an offline device has no
// position to sample. Idempotent: starting an already-tracked booking is a
// no-op.
func StartLocationReporting(store BookingReader, presenceStore dispatch.Presence, trk *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		bookingID := chi.URLParam(r, "id")

		ctx, cancel := storeContext(r)
		defer cancel()

		booking, ok := ownedActiveBooking(ctx, w, store, bookingID, userClaims.UserID)
		if !ok {
			return
		}
		if models.IsTerminal(booking.Status) {
			utils.RespondError(w, http.StatusConflict, "Booking is already finished")
			return
		}

		online, err := presenceStore.IsOnline(ctx, userClaims.UserID)
		if err != nil {
			respondDispatchError(w, err)
			return
		}
		if !online {
			utils.RespondError(w, http.StatusUnauthorized, "Therapist is offline")
			return
		}

		trk.Start(bookingID, userClaims.UserID)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"tracking": true,
		})
	}
}

// StopLocationReporting halts the loop and clears the booking's position
// fields. Only the owning therapist may stop reporting on a booking.
// Idempotent: stopping an untracked booking is a no-op.
func StopLocationReporting(store BookingReader, trk *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		bookingID := chi.URLParam(r, "id")

		ctx, cancel := storeContext(r)
		defer cancel()

		if _, ok := ownedActiveBooking(ctx, w, store, bookingID, userClaims.UserID); !ok {
			return
		}

		trk.Stop(bookingID)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"tracking": false,
		})
	}
}
