package handlers

import (
	"context"
	"log"
	"net/http"

	"hilom-backend/internal/database"
	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/models"
	"hilom-backend/internal/presence"
	"hilom-backend/internal/tracker"
	"hilom-backend/internal/websocket"
	"hilom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

// CancelBooking is the cancellation collaborator: a manager cancels a
// claimed or arrived booking. In-progress sessions cannot be cancelled.
func CancelBooking(svc *dispatch.Service, trk *tracker.Manager, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID := chi.URLParam(r, "id")

		ctx, cancel := storeContext(r)
		defer cancel()

		booking, err := svc.Cancel(ctx, bookingID)
		if err != nil {
			respondDispatchError(w, err)
			return
		}

		trk.Stop(booking.ID)
		notifyBookingUpdate(hub, booking)
		if booking.TherapistID != nil {
			hub.BroadcastToUser(*booking.TherapistID, map[string]interface{}{
				"type": "booking_cancelled",
				"data": booking,
			})
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    booking,
		})
	}
}

// GetAllBookings returns every booking, optionally filtered by ?status=
func GetAllBookings(store *database.BookingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := storeContext(r)
		defer cancel()

		bookings, err := store.ListAll(ctx, r.URL.Query().Get("status"))
		if err != nil {
			respondDispatchError(w, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    bookings,
		})
	}
}

// TherapistStatus is one row on the manager's live fleet view
type TherapistStatus struct {
	TherapistID   string           `json:"therapist_id"`
	Name          string           `json:"name"`
	Presence      *presence.Status `json:"presence"`
	ActiveBooking *models.Booking  `json:"active_booking,omitempty"`
}

// GetActiveTherapists returns every therapist with their presence and any
// booking they are currently working.
func GetActiveTherapists(db *sqlx.DB, store *database.BookingStore, presenceStore *presence.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := storeContext(r)
		defer cancel()

		var therapists []models.User
		query := `SELECT * FROM users WHERE role = 'therapist' ORDER BY name`
		if err := db.SelectContext(ctx, &therapists, query); err != nil {
			log.Printf("❌ Error fetching therapists: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		statuses := make([]TherapistStatus, 0, len(therapists))
		for _, t := range therapists {
			status := TherapistStatus{
				TherapistID: t.ID,
				Name:        t.Name,
			}

			if p, err := presenceStore.Get(ctx, t.ID); err == nil {
				status.Presence = p
			} else {
				log.Printf("⚠️  Failed to get presence for %s: %v", t.ID, err)
			}

			booking, err := store.ActiveBookingForWorker(ctx, t.ID)
			if err == nil {
				status.ActiveBooking = booking
			} else if ctx.Err() == context.DeadlineExceeded {
				respondDispatchError(w, dispatch.ErrTimeout)
				return
			}

			statuses = append(statuses, status)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    statuses,
		})
	}
}
