package handlers

import (
	"context"
	"log"

	"hilom-backend/internal/database"
	"hilom-backend/internal/websocket"
)

// PositionPublisher fans fresh therapist positions out over the websocket
// hub: to the client who owns the booking and to watching admins.
type PositionPublisher struct {
	store *database.BookingStore
	hub   *websocket.Hub
}

func NewPositionPublisher(store *database.BookingStore, hub *websocket.Hub) *PositionPublisher {
	return &PositionPublisher{store: store, hub: hub}
}

func (p *PositionPublisher) PublishPosition(bookingID, workerID string, lat, lng float64, reportedAt int64) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	booking, err := p.store.GetBooking(ctx, bookingID)
	if err != nil {
		log.Printf("⚠️  Cannot publish position for booking %s: %v", bookingID, err)
		return
	}

	update := map[string]interface{}{
		"type": "therapist_position",
		"data": map[string]interface{}{
			"booking_id":   bookingID,
			"therapist_id": workerID,
			"latitude":     lat,
			"longitude":    lng,
			"reported_at":  reportedAt,
		},
	}

	p.hub.BroadcastToUser(booking.ClientID, update)
	p.hub.BroadcastToRole("admin", update)
}
