package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"hilom-backend/internal/database"
	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/middleware"
	"hilom-backend/internal/models"
	"hilom-backend/internal/tracker"
	"hilom-backend/internal/websocket"
	"hilom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

// storeTimeout bounds every store call made on behalf of a request so a
// slow database surfaces as a retryable timeout instead of a hang.
const storeTimeout = 5 * time.Second

func storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}

// respondDispatchError maps the dispatch error taxonomy onto HTTP statuses.
func respondDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrUnauthorized):
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, dispatch.ErrAlreadyClaimed):
		utils.RespondError(w, http.StatusConflict, "Booking already claimed, pick another")
	case errors.Is(err, dispatch.ErrStaleState):
		utils.RespondError(w, http.StatusConflict, "Booking state changed, re-fetch and retry")
	case errors.Is(err, dispatch.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "Booking not found")
	case errors.Is(err, dispatch.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusGatewayTimeout, "Operation timed out, safe to retry")
	default:
		log.Printf("❌ Internal error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// GetServices returns the bookable service catalog
func GetServices(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := []models.Service{}
		query := `SELECT * FROM services ORDER BY category, price`

		if err := db.Select(&services, query); err != nil {
			log.Printf("❌ Error fetching services: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    services,
		})
	}
}

type CreateBookingRequest struct {
	ServiceType        string  `json:"service_type"`
	ServiceDurationMin int     `json:"service_duration_min"`
	TotalPrice         float64 `json:"total_price"`
	Address            string  `json:"address"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	PaymentMethod      string  `json:"payment_method"`
}

// CreateBooking is the booking-intake surface: a client creates a pending
// booking, which shows up on every online therapist's feed.
func CreateBooking(store *database.BookingStore, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if req.ServiceType == "" || req.Address == "" || req.TotalPrice <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "service_type, address and total_price are required")
			return
		}
		if req.PaymentMethod == "" {
			req.PaymentMethod = "cash"
		}
		if req.ServiceDurationMin <= 0 {
			req.ServiceDurationMin = 60
		}

		booking := &models.Booking{
			ClientID:           userClaims.UserID,
			ServiceType:        req.ServiceType,
			ServiceDurationMin: req.ServiceDurationMin,
			TotalPrice:         req.TotalPrice,
			Address:            req.Address,
			Latitude:           req.Latitude,
			Longitude:          req.Longitude,
			PaymentMethod:      req.PaymentMethod,
		}

		ctx, cancel := storeContext(r)
		defer cancel()

		if err := store.CreateBooking(ctx, booking); err != nil {
			log.Printf("❌ Error creating booking: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create booking")
			return
		}

		log.Printf("📦 New booking %s (%s, ₱%.0f) from client %s",
			booking.ID, booking.ServiceType, booking.TotalPrice, userClaims.UserID)

		// Nudge online therapists to refresh their feed
		hub.BroadcastToRole("therapist", map[string]interface{}{
			"type": "booking_created",
			"data": booking,
		})

		utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"data":    booking,
		})
	}
}

// GetPendingBookings returns the claimable feed, newest first. The list is a
// finite snapshot; winners race on claim, not on read.
func GetPendingBookings(svc *dispatch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := storeContext(r)
		defer cancel()

		bookings, err := svc.ListPendingBookings(ctx)
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

// ClaimBooking races to assign the booking to the calling therapist. At
// most one concurrent caller wins; losers get 409 and should pick a
// different booking. On success location reporting starts immediately.
func ClaimBooking(svc *dispatch.Service, trk *tracker.Manager, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		bookingID := chi.URLParam(r, "id")

		ctx, cancel := storeContext(r)
		defer cancel()

		booking, err := svc.ClaimBooking(ctx, bookingID, userClaims.UserID)
		if err != nil {
			respondDispatchError(w, err)
			return
		}

		trk.Start(booking.ID, userClaims.UserID)
		notifyBookingUpdate(hub, booking)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    booking,
		})
	}
}

// AdvanceBooking moves the caller's booking to the next lifecycle status.
// The target status is derived from the current one, never chosen by the
// caller.
func AdvanceBooking(svc *dispatch.Service, trk *tracker.Manager, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		bookingID := chi.URLParam(r, "id")

		ctx, cancel := storeContext(r)
		defer cancel()

		booking, err := svc.Advance(ctx, bookingID, userClaims.UserID)
		if err != nil {
			respondDispatchError(w, err)
			return
		}

		if models.IsTerminal(booking.Status) {
			trk.Stop(booking.ID)
		}
		notifyBookingUpdate(hub, booking)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    booking,
		})
	}
}

// GetCurrentBooking returns the caller's active booking plus the derived
// session timer. Elapsed time is recomputed from started_at on every call,
// so a suspended app resyncs instead of drifting.
func GetCurrentBooking(store *database.BookingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx, cancel := storeContext(r)
		defer cancel()

		booking, err := store.ActiveBookingForWorker(ctx, userClaims.UserID)
		if errors.Is(err, dispatch.ErrNotFound) {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    nil,
			})
			return
		}
		if err != nil {
			respondDispatchError(w, err)
			return
		}

		var elapsedSeconds *int64
		if booking.Status == models.BookingStatusInProgress {
			elapsed := int64(booking.ElapsedSession(time.Now()).Seconds())
			elapsedSeconds = &elapsed
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"booking":         booking,
				"elapsed_seconds": elapsedSeconds,
			},
		})
	}
}

// GetBookingHistory returns the caller's finished bookings, newest first
func GetBookingHistory(store *database.BookingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx, cancel := storeContext(r)
		defer cancel()

		bookings, err := store.HistoryForWorker(ctx, userClaims.UserID, 50)
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

// notifyBookingUpdate pushes the fresh booking snapshot to the client who
// owns it and to any watching admins.
func notifyBookingUpdate(hub *websocket.Hub, booking *models.Booking) {
	update := map[string]interface{}{
		"type": "booking_update",
		"data": booking,
	}
	hub.BroadcastToUser(booking.ClientID, update)
	hub.BroadcastToRole("admin", update)
}
