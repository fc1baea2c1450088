package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository/storetest"
	"github.com/loschorros/backend/pkg/logx"
)

func TestMeasurementIngestAndList(t *testing.T) {
	h := newHarness(t, constantModels(3))
	svc := NewMeasurementService(h.repo, h.registry, salvador, logx.Discard())
	ctx := context.Background()

	// spans more than one storage chunk
	var obs []domain.Observation
	for _, id := range h.registry.IDs() {
		obs = append(obs, storetest.Observations(id, "2024-03-01", 9*24, 2.5)...)
	}
	n, err := svc.Ingest(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, 2160, n)

	// loading again replaces rather than duplicates
	n, err = svc.Ingest(ctx, obs[:10])
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seg := 5
	rows, err := svc.List(ctx, &seg, from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 24)
	assert.Equal(t, "Los Chorros - Tramo 5", rows[0].SegmentName)
	assert.Equal(t, salvador, rows[0].Timestamp.Location())
	assert.True(t, from.Equal(rows[0].Timestamp))

	all, err := svc.List(ctx, nil, from, from.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 240)
}

func TestMeasurementValidation(t *testing.T) {
	h := newHarness(t, constantModels(3))
	svc := NewMeasurementService(h.repo, h.registry, salvador, logx.Discard())
	ctx := context.Background()
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Ingest(ctx, storetest.Observations(11, "2024-03-01", 2, 2))
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)

	bad := 42
	_, err = svc.List(ctx, &bad, from, from.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)

	_, err = svc.List(ctx, nil, from, from)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
	_, err = svc.List(ctx, nil, from, from.Add(MaxMeasurementRange+time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
	assert.True(t, domain.IsClientError(err))
}
