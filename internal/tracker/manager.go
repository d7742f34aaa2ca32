package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hilom-backend/internal/dispatch"
	"hilom-backend/internal/presence"
)

// Manager owns one Reporter per actively tracked booking and makes
// Start/Stop idempotent. The reporter handle lives here, alongside the
// session, and is torn down deterministically when the booking finishes.
type Manager struct {
	store      LocationStore
	publisher  Publisher
	newSampler func(workerID string) Sampler
	interval   time.Duration

	mu        sync.Mutex
	reporters map[string]*Reporter
}

func NewManager(store LocationStore, publisher Publisher, newSampler func(workerID string) Sampler) *Manager {
	return &Manager{
		store:      store,
		publisher:  publisher,
		newSampler: newSampler,
		interval:   DefaultInterval,
		reporters:  make(map[string]*Reporter),
	}
}

// SetInterval overrides the cadence applied to reporters started after the
// call. Used by tests.
func (m *Manager) SetInterval(interval time.Duration) {
	m.interval = interval
}

// Start begins location reporting for the booking. Starting an
// already-tracked booking is a no-op.
func (m *Manager) Start(bookingID, workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.reporters[bookingID]; running {
		return
	}

	reporter := NewReporter(bookingID, workerID, m.newSampler(workerID), m.store, m.publisher)
	reporter.SetInterval(m.interval)
	reporter.Start(context.Background())
	m.reporters[bookingID] = reporter
}

// Stop halts reporting for the booking and clears its position fields.
// Stopping an untracked booking is a no-op. When Stop returns, no further
// position write can land on the booking.
func (m *Manager) Stop(bookingID string) {
	m.mu.Lock()
	reporter, running := m.reporters[bookingID]
	if running {
		delete(m.reporters, bookingID)
	}
	m.mu.Unlock()

	if running {
		reporter.Stop()
	}
}

// IsTracking reports whether the booking currently has a live reporter.
func (m *Manager) IsTracking(bookingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.reporters[bookingID]
	return running
}

// StopAll tears down every live reporter. Called on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	reporters := m.reporters
	m.reporters = make(map[string]*Reporter)
	m.mu.Unlock()

	for id, reporter := range reporters {
		reporter.Stop()
		log.Printf("📍 Stopped reporter for booking %s on shutdown", id)
	}
}

// PresenceSampler reads the therapist's latest device-reported position
// from the presence store. The mobile device is the real sensor; its most
// recent report stands in for a direct GPS read on the backend.
type PresenceSampler struct {
	Presence *presence.Store
	WorkerID string
}

func (p *PresenceSampler) SampleOnce(ctx context.Context) (float64, float64, error) {
	status, err := p.Presence.Get(ctx, p.WorkerID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", dispatch.ErrUnavailable, err)
	}
	if status.Latitude == nil || status.Longitude == nil {
		return 0, 0, fmt.Errorf("%w: no position reported yet", dispatch.ErrUnavailable)
	}
	return *status.Latitude, *status.Longitude, nil
}

// PermissionGranted is true once the device has reported any position; the
// actual OS permission prompt lives on the device, not the backend.
func (p *PresenceSampler) PermissionGranted() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := p.Presence.Get(ctx, p.WorkerID)
	if err != nil {
		return false
	}
	return status.Latitude != nil && status.Longitude != nil
}
