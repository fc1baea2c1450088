package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/config"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*CacheService{nil, NewFromClient(nil, time.Hour)} {
		assert.False(t, c.Available())

		var dest map[string]int
		found, err := c.Get(ctx, "k", &dest)
		require.NoError(t, err)
		assert.False(t, found)

		assert.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, 0))
		assert.NoError(t, c.Delete(ctx, "k"))
		assert.NoError(t, c.Publish(ctx, PredictionsChannel, PredictionEvent{SegmentID: 1}))
		assert.Nil(t, c.Subscribe(ctx, PredictionsChannel))
		assert.NoError(t, c.Ping(ctx))
		assert.NoError(t, c.Close())
	}
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "loschorros:prediccion:3:2024-03-11", DayKey(3, "2024-03-11"))
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := NewCacheService(ctx, config.RedisConfig{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	key := DayKey(99, "2024-03-11")
	require.NoError(t, c.Set(ctx, key, PredictionEvent{SegmentID: 99, Day: "2024-03-11"}, 0))

	var got PredictionEvent
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 99, got.SegmentID)

	require.NoError(t, c.Delete(ctx, key))
	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent(`{"segmento_id":4,"fecha":"2024-03-11","accion":"invalidated"}`)
	require.NoError(t, err)
	assert.Equal(t, PredictionEvent{SegmentID: 4, Day: "2024-03-11", Action: EventInvalidated}, ev)

	_, err = DecodeEvent("not json")
	assert.Error(t, err)
}
