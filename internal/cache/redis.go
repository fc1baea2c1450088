// Package cache fronts the prediction store with Redis.
// A nil client turns every operation into a no-op so Redis stays optional.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loschorros/backend/internal/config"
)

// PredictionsChannel receives an event each time a forecast day is computed or invalidated
const PredictionsChannel = "loschorros:predictions"

// CacheService wraps a go-redis client with JSON helpers
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheService connects to Redis and pings it once
func NewCacheService(ctx context.Context, cfg config.RedisConfig) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return &CacheService{client: client, ttl: cfg.TTL}, nil
}

// NewFromClient wraps an existing client; a nil client yields a disabled cache
func NewFromClient(client *redis.Client, ttl time.Duration) *CacheService {
	return &CacheService{client: client, ttl: ttl}
}

// Available reports whether a Redis client is configured
func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// TTL is the default expiration used by Set
func (s *CacheService) TTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.ttl
}

// Get decodes the value at key into dest. It reports false on a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("cache: failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON; ttl <= 0 uses the configured default
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if !s.Available() || len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete: %w", err)
	}
	return nil
}

// Publish sends message as JSON on channel
func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("cache: failed to encode message: %w", err)
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("cache: failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a subscription to channel, or nil when Redis is disabled
func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if !s.Available() {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

// Ping checks Redis connectivity
func (s *CacheService) Ping(ctx context.Context) error {
	if !s.Available() {
		return nil
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return nil
}

// Close closes the client
func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}

// DayKey is the cache key of a forecast day
func DayKey(segmentID int, day string) string {
	return fmt.Sprintf("loschorros:prediccion:%d:%s", segmentID, day)
}

// PredictionEvent is published on PredictionsChannel
type PredictionEvent struct {
	SegmentID int    `json:"segmento_id"`
	Day       string `json:"fecha"`
	Action    string `json:"accion"`
	Version   string `json:"version,omitempty"`
}

// Event actions
const (
	EventComputed    = "computed"
	EventInvalidated = "invalidated"
)

// DecodeEvent parses a PredictionsChannel payload
func DecodeEvent(payload string) (PredictionEvent, error) {
	var ev PredictionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return PredictionEvent{}, fmt.Errorf("cache: failed to decode event: %w", err)
	}
	return ev, nil
}
