package models

import (
	"database/sql"
	"time"
)

// BookingStatus represents where a booking is in its lifecycle
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"     // Created by a client, nobody has taken it yet
	BookingStatusClaimed    BookingStatus = "claimed"     // A therapist won the claim, travelling to client
	BookingStatusArrived    BookingStatus = "arrived"     // Therapist at the client's location
	BookingStatusInProgress BookingStatus = "in_progress" // Session running, timer derived from started_at
	BookingStatusCompleted  BookingStatus = "completed"   // Session done, booking is read-only
	BookingStatusCancelled  BookingStatus = "cancelled"   // Cancelled by a manager before the session started
)

// forwardOrder is the strict lifecycle order. No skipping, no going back.
var forwardOrder = map[BookingStatus]BookingStatus{
	BookingStatusClaimed:    BookingStatusArrived,
	BookingStatusArrived:    BookingStatusInProgress,
	BookingStatusInProgress: BookingStatusCompleted,
}

// NextStatus returns the next lifecycle status after s. The caller never picks
// the target status itself. ok is false for pending and for terminal states.
func NextStatus(s BookingStatus) (BookingStatus, bool) {
	next, ok := forwardOrder[s]
	return next, ok
}

// CanCancel reports whether a booking in status s may still be cancelled.
// Once the session has started the booking can only run to completion.
func CanCancel(s BookingStatus) bool {
	return s == BookingStatusClaimed || s == BookingStatusArrived
}

// IsTerminal reports whether s is a final status.
func IsTerminal(s BookingStatus) bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Booking represents one service request moving from creation to completion
type Booking struct {
	ID                 string        `json:"id" db:"id"`
	ClientID           string        `json:"client_id" db:"client_id"`
	ServiceType        string        `json:"service_type" db:"service_type"`
	ServiceDurationMin int           `json:"service_duration_min" db:"service_duration_min"`
	TotalPrice         float64       `json:"total_price" db:"total_price"`
	Address            string        `json:"address" db:"address"`
	Latitude           float64       `json:"latitude" db:"latitude"`
	Longitude          float64       `json:"longitude" db:"longitude"`
	PaymentMethod      string        `json:"payment_method" db:"payment_method"`
	Status             BookingStatus `json:"status" db:"status"`
	TherapistID        *string       `json:"therapist_id" db:"therapist_id"`

	// Last reported therapist position. Overwritten in place every tick and
	// cleared when reporting stops, so stale coordinates are never shown.
	TherapistLatitude          *float64 `json:"therapist_latitude" db:"therapist_latitude"`
	TherapistLongitude         *float64 `json:"therapist_longitude" db:"therapist_longitude"`
	TherapistLocationUpdatedAt *int64   `json:"therapist_location_updated_at" db:"therapist_location_updated_at"`

	StartedAt *int64 `json:"started_at" db:"started_at"`
	EndedAt   *int64 `json:"ended_at" db:"ended_at"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
	UpdatedAt int64  `json:"updated_at" db:"updated_at"`
}

// ElapsedSession returns how long the session has been running as of now.
// It is derived from started_at each time rather than counted per tick, so a
// suspended caller re-derives the correct value on resume instead of drifting.
func (b *Booking) ElapsedSession(now time.Time) time.Duration {
	if b.StartedAt == nil {
		return 0
	}
	end := now.Unix()
	if b.EndedAt != nil {
		end = *b.EndedAt
	}
	elapsed := end - *b.StartedAt
	if elapsed < 0 {
		elapsed = 0
	}
	return time.Duration(elapsed) * time.Second
}

// OwnedBy reports whether workerID is the recorded owner of the booking.
func (b *Booking) OwnedBy(workerID string) bool {
	return b.TherapistID != nil && *b.TherapistID == workerID
}

// ToNullInt64 converts a pointer to int64 to sql.NullInt64
func ToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// FromNullInt64 converts sql.NullInt64 to pointer to int64
func FromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

// ToNullString converts a pointer to string to sql.NullString
func ToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// FromNullString converts sql.NullString to pointer to string
func FromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}
