package tracker

import (
	"context"
	"errors"
	"log"
	"math"
	"time"
)

const (
	// DefaultInterval is the regular reporting cadence.
	DefaultInterval = 10 * time.Second

	// DefaultMinMoveMeters triggers an out-of-cadence write when the
	// therapist has moved at least this far since the last write.
	DefaultMinMoveMeters = 10.0

	// pollEvery is how often the loop samples to evaluate the movement
	// trigger between regular writes.
	pollEvery = 2 * time.Second

	// writeTimeout bounds each store write so a slow database can never
	// hang the reporting loop.
	writeTimeout = 5 * time.Second
)

// Sampler is the position-sampling collaborator. SampleOnce returns an
// error (conventionally dispatch.ErrUnavailable) when no fix can be
// acquired; the reporter skips that tick and keeps going.
type Sampler interface {
	SampleOnce(ctx context.Context) (lat, lng float64, err error)
	PermissionGranted() bool
}

// LocationStore is the slice of the booking store the reporter writes to.
type LocationStore interface {
	UpdateBookingLocation(ctx context.Context, id string, lat, lng float64, reportedAt int64) error
	ClearBookingLocation(ctx context.Context, id string) error
}

// Publisher fans a fresh position out to live observers. Optional.
type Publisher interface {
	PublishPosition(bookingID, workerID string, lat, lng float64, reportedAt int64)
}

// Reporter periodically samples the therapist's position and writes it onto
// the active booking row. It runs concurrently with, but is never
// coordinated through shared memory with, the lifecycle path: the booking
// row is the only thing they share.
type Reporter struct {
	BookingID string
	WorkerID  string

	sampler   Sampler
	store     LocationStore
	publisher Publisher

	interval time.Duration
	minMove  float64
	poll     time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReporter(bookingID, workerID string, sampler Sampler, store LocationStore, publisher Publisher) *Reporter {
	return &Reporter{
		BookingID: bookingID,
		WorkerID:  workerID,
		sampler:   sampler,
		store:     store,
		publisher: publisher,
		interval:  DefaultInterval,
		minMove:   DefaultMinMoveMeters,
		poll:      pollEvery,
	}
}

// SetInterval overrides the reporting cadence. Must be called before Start.
func (r *Reporter) SetInterval(interval time.Duration) {
	if interval > 0 {
		r.interval = interval
	}
}

// SetMinMove overrides the movement threshold in meters. Must be called
// before Start.
func (r *Reporter) SetMinMove(meters float64) {
	if meters > 0 {
		r.minMove = meters
	}
}

// Start launches the reporting loop.
func (r *Reporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop cancels the loop, waits for it to exit, then clears the booking's
// position fields. When Stop returns, no further position write can land on
// the booking.
func (r *Reporter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.ClearBookingLocation(ctx, r.BookingID); err != nil {
		log.Printf("⚠️  Failed to clear position for booking %s: %v", r.BookingID, err)
	}
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)

	log.Printf("📍 Location reporting started for booking %s (every %s, min move %.0fm)",
		r.BookingID, r.interval, r.minMove)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	var (
		lastWrite     time.Time
		lastLat       float64
		lastLng       float64
		wroteAnything bool
	)

	// First sample immediately rather than waiting a full interval.
	if lat, lng, ok := r.sample(ctx); ok {
		if r.write(ctx, lat, lng) {
			lastWrite, lastLat, lastLng, wroteAnything = time.Now(), lat, lng, true
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("📍 Location reporting stopped for booking %s", r.BookingID)
			return
		case <-ticker.C:
		}

		lat, lng, ok := r.sample(ctx)
		if !ok {
			continue
		}

		due := time.Since(lastWrite) >= r.interval
		moved := wroteAnything && distanceMeters(lastLat, lastLng, lat, lng) >= r.minMove
		if !due && !moved {
			continue
		}

		if r.write(ctx, lat, lng) {
			lastWrite, lastLat, lastLng, wroteAnything = time.Now(), lat, lng, true
		}
	}
}

// sample takes one position fix. Failures are logged and skipped; they never
// interrupt the lifecycle.
func (r *Reporter) sample(ctx context.Context) (float64, float64, bool) {
	if !r.sampler.PermissionGranted() {
		log.Printf("⚠️  Location permission not granted for booking %s, skipping tick", r.BookingID)
		return 0, 0, false
	}

	sampleCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	lat, lng, err := r.sampler.SampleOnce(sampleCtx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("⚠️  Position sample failed for booking %s: %v", r.BookingID, err)
		}
		return 0, 0, false
	}
	return lat, lng, true
}

func (r *Reporter) write(ctx context.Context, lat, lng float64) bool {
	reportedAt := time.Now().Unix()

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.store.UpdateBookingLocation(writeCtx, r.BookingID, lat, lng, reportedAt); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("⚠️  Failed to write position for booking %s: %v", r.BookingID, err)
		}
		return false
	}

	if r.publisher != nil {
		r.publisher.PublishPosition(r.BookingID, r.WorkerID, lat, lng, reportedAt)
	}
	return true
}

// distanceMeters calculates the distance between two GPS coordinates using
// the haversine formula.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0 // meters

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
