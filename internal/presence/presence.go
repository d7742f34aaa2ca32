package presence

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a therapist's availability record. Coordinates are only
// meaningful while Online is true; going offline does not retroactively
// invalidate a booking already in progress.
type Status struct {
	WorkerID  string   `json:"worker_id"`
	Online    bool     `json:"online"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	UpdatedAt int64    `json:"updated_at"`
}

// Store keeps therapist presence in Redis. Presence is ephemeral state with
// a high write rate (every availability toggle plus every device position
// report), which is why it lives outside Postgres.
type Store struct {
	rdb *redis.Client
}

func Connect(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &Store{rdb: rdb}, nil
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(workerID string) string {
	return "presence:" + workerID
}

// SetOnline marks the therapist available and records their position.
func (s *Store) SetOnline(ctx context.Context, workerID string, lat, lng float64) error {
	fields := map[string]interface{}{
		"online":     1,
		"latitude":   lat,
		"longitude":  lng,
		"updated_at": time.Now().Unix(),
	}
	if err := s.rdb.HSet(ctx, key(workerID), fields).Err(); err != nil {
		return fmt.Errorf("failed to set presence online: %w", err)
	}
	return nil
}

// SetOffline marks the therapist unavailable. The record is never deleted,
// only toggled.
func (s *Store) SetOffline(ctx context.Context, workerID string) error {
	fields := map[string]interface{}{
		"online":     0,
		"updated_at": time.Now().Unix(),
	}
	if err := s.rdb.HSet(ctx, key(workerID), fields).Err(); err != nil {
		return fmt.Errorf("failed to set presence offline: %w", err)
	}
	return nil
}

// UpdatePosition records the latest device-reported position without
// touching the availability flag.
func (s *Store) UpdatePosition(ctx context.Context, workerID string, lat, lng float64) error {
	fields := map[string]interface{}{
		"latitude":   lat,
		"longitude":  lng,
		"updated_at": time.Now().Unix(),
	}
	if err := s.rdb.HSet(ctx, key(workerID), fields).Err(); err != nil {
		return fmt.Errorf("failed to update presence position: %w", err)
	}
	return nil
}

// Get returns the therapist's presence record. A worker who never went
// online comes back as offline with no coordinates.
func (s *Store) Get(ctx context.Context, workerID string) (*Status, error) {
	values, err := s.rdb.HGetAll(ctx, key(workerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	status := &Status{WorkerID: workerID}
	if len(values) == 0 {
		return status, nil
	}

	status.Online = values["online"] == "1"
	if v, err := strconv.ParseFloat(values["latitude"], 64); err == nil {
		status.Latitude = &v
	}
	if v, err := strconv.ParseFloat(values["longitude"], 64); err == nil {
		status.Longitude = &v
	}
	if v, err := strconv.ParseInt(values["updated_at"], 10, 64); err == nil {
		status.UpdatedAt = v
	}
	return status, nil
}

// IsOnline reports whether the therapist is currently available.
func (s *Store) IsOnline(ctx context.Context, workerID string) (bool, error) {
	online, err := s.rdb.HGet(ctx, key(workerID), "online").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return online == "1", nil
}
