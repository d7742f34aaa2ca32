package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BookingStore is the Postgres-backed source of truth for bookings. Every
// status change funnels through TransitionStatus; there are no partial field
// writes outside that contract (position columns excepted, which never touch
// status).
type BookingStore struct {
	db *sqlx.DB
}

func NewBookingStore(db *sqlx.DB) *BookingStore {
	return &BookingStore{db: db}
}

// ListPending returns all unclaimed bookings, newest first.
func (s *BookingStore) ListPending(ctx context.Context) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT * FROM bookings
	          WHERE status = 'pending'
	          ORDER BY created_at DESC`

	if err := s.db.SelectContext(ctx, &bookings, query); err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	return bookings, nil
}

// GetBooking retrieves a single booking by id.
func (s *BookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings WHERE id = $1`

	err := s.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// TransitionStatus applies "from → to" to a single row only if the row's
// current status equals from. The WHERE clause on (id, status) makes the
// write a compare-and-swap: concurrent transitions against the same row
// serialize inside Postgres and all but one see zero rows affected, which
// surfaces as ErrStaleState.
func (s *BookingStore) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, change dispatch.StatusChange) error {
	query := `UPDATE bookings
	          SET status = $1,
	              therapist_id = COALESCE($2, therapist_id),
	              started_at = COALESCE($3, started_at),
	              ended_at = COALESCE($4, ended_at),
	              updated_at = $5
	          WHERE id = $6 AND status = $7`

	result, err := s.db.ExecContext(ctx, query,
		to,
		models.ToNullString(change.TherapistID),
		models.ToNullInt64(change.StartedAt),
		models.ToNullInt64(change.EndedAt),
		time.Now().Unix(),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to transition booking %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: booking %s is not in status %s", dispatch.ErrStaleState, id, from)
	}
	return nil
}

// UpdateBookingLocation overwrites the therapist position on the booking
// row in place. One row per booking bounds storage regardless of how long
// the job runs.
func (s *BookingStore) UpdateBookingLocation(ctx context.Context, id string, lat, lng float64, reportedAt int64) error {
	query := `UPDATE bookings
	          SET therapist_latitude = $1,
	              therapist_longitude = $2,
	              therapist_location_updated_at = $3
	          WHERE id = $4
	          AND status IN ('claimed', 'arrived', 'in_progress')`

	result, err := s.db.ExecContext(ctx, query, lat, lng, reportedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update booking location: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Booking finished under us; the reporter will be stopped shortly.
		return fmt.Errorf("%w: booking %s is not active", dispatch.ErrStaleState, id)
	}
	return nil
}

// ClearBookingLocation removes the therapist position so stale coordinates
// are never shown after the job ends.
func (s *BookingStore) ClearBookingLocation(ctx context.Context, id string) error {
	query := `UPDATE bookings
	          SET therapist_latitude = NULL,
	              therapist_longitude = NULL,
	              therapist_location_updated_at = NULL
	          WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear booking location: %w", err)
	}
	return nil
}

// CreateBooking inserts a new pending booking on behalf of a client.
func (s *BookingStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.Status = models.BookingStatusPending
	now := time.Now().Unix()
	b.CreatedAt = now
	b.UpdatedAt = now

	query := `INSERT INTO bookings (
	              id, client_id, service_type, service_duration_min, total_price,
	              address, latitude, longitude, payment_method, status,
	              created_at, updated_at
	          ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.ClientID, b.ServiceType, b.ServiceDurationMin, b.TotalPrice,
		b.Address, b.Latitude, b.Longitude, b.PaymentMethod, b.Status,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// ActiveBookingForWorker returns the booking the therapist is currently
// working, if any.
func (s *BookingStore) ActiveBookingForWorker(ctx context.Context, workerID string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings
	          WHERE therapist_id = $1
	          AND status IN ('claimed', 'arrived', 'in_progress')
	          ORDER BY updated_at DESC
	          LIMIT 1`

	err := s.db.GetContext(ctx, &booking, query, workerID)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active booking: %w", err)
	}
	return &booking, nil
}

// HistoryForWorker returns the therapist's finished bookings, newest first.
func (s *BookingStore) HistoryForWorker(ctx context.Context, workerID string, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}

	bookings := []models.Booking{}
	query := `SELECT * FROM bookings
	          WHERE therapist_id = $1
	          AND status IN ('completed', 'cancelled')
	          ORDER BY updated_at DESC
	          LIMIT $2`

	if err := s.db.SelectContext(ctx, &bookings, query, workerID, limit); err != nil {
		return nil, fmt.Errorf("failed to get booking history: %w", err)
	}
	return bookings, nil
}

// ListAll returns every booking, newest first, optionally filtered by status.
func (s *BookingStore) ListAll(ctx context.Context, status string) ([]models.Booking, error) {
	bookings := []models.Booking{}

	if status != "" {
		query := `SELECT * FROM bookings WHERE status = $1 ORDER BY created_at DESC`
		if err := s.db.SelectContext(ctx, &bookings, query, status); err != nil {
			return nil, fmt.Errorf("failed to list bookings: %w", err)
		}
		return bookings, nil
	}

	query := `SELECT * FROM bookings ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &bookings, query); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}
