package alarming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smukkama/flood-monitor/internal/cache"
	"github.com/smukkama/flood-monitor/internal/protocol"
)

const stateTTL = 7 * 24 * time.Hour

// AlertState is the alert level currently held by a camera
type AlertState struct {
	Level          string    `json:"level"` // CLEAR, MEDIUM, FLOODED
	Since          time.Time `json:"since"`
	LastChecked    time.Time `json:"last_checked"`
	LastConfidence float64   `json:"last_confidence"`
	NotificationID string    `json:"notification_id,omitempty"`
}

// StateStore keeps one AlertState per camera
type StateStore interface {
	GetState(ctx context.Context, cameraID string) (*AlertState, error)
	SetState(ctx context.Context, cameraID string, state *AlertState) error
	DeleteState(ctx context.Context, cameraID string) error
}

// RedisStateStore manages alert states in Redis
type RedisStateStore struct {
	kv cache.KV
}

// NewRedisStateStore creates a new state store
func NewRedisStateStore(kv cache.KV) *RedisStateStore {
	return &RedisStateStore{kv: kv}
}

func stateKey(cameraID string) string {
	return fmt.Sprintf("flood_alert_state:%s", cameraID)
}

// GetState retrieves the alert state of a camera; a missing state is CLEAR
func (s *RedisStateStore) GetState(ctx context.Context, cameraID string) (*AlertState, error) {
	data, err := s.kv.Get(ctx, stateKey(cameraID)).Result()
	if errors.Is(err, redis.Nil) {
		return &AlertState{Level: protocol.LevelClear}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var state AlertState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// SetState saves the alert state of a camera
func (s *RedisStateStore) SetState(ctx context.Context, cameraID string, state *AlertState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// stale states of removed cameras expire on their own
	if err := s.kv.Set(ctx, stateKey(cameraID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}

	return nil
}

// DeleteState removes the alert state (returns to CLEAR)
func (s *RedisStateStore) DeleteState(ctx context.Context, cameraID string) error {
	return s.kv.Del(ctx, stateKey(cameraID)).Err()
}
