package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loschorros/backend/internal/domain"
)

func seeded(t *testing.T) *Registry {
	t.Helper()
	r, err := New(SeedSegments(), SeedRoutes())
	require.NoError(t, err)
	return r
}

func TestSeedCatalogue(t *testing.T) {
	r := seeded(t)
	require.Len(t, r.List(), 10)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, r.IDs())

	seg1, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 12.755, seg1.LengthKM)
	assert.Equal(t, 6, seg1.StopCount)
	assert.True(t, seg1.Construction)
	assert.True(t, seg1.TransitHeavy)

	seg10, err := r.Get(10)
	require.NoError(t, err)
	assert.Equal(t, 41.974, seg10.LengthKM)
	assert.False(t, seg10.Construction)

	for _, s := range r.List()[1:] {
		assert.False(t, s.Construction, "segment %d", s.ID)
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := seeded(t).Get(11)
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)
}

func TestForClass(t *testing.T) {
	r := seeded(t)
	ids := func(segs []domain.Segment) []int {
		var out []int
		for _, s := range segs {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []int{1, 2}, ids(r.ForClass(domain.VehicleBus)))
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9}, ids(r.ForClass(domain.VehicleCar)))
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10}, ids(r.ForClass(domain.VehicleMoto)))
}

func TestRoutes(t *testing.T) {
	r := seeded(t)
	assert.Len(t, r.Routes(false), 5)
	active := r.Routes(true)
	assert.Len(t, active, 4)
	for _, rt := range active {
		assert.True(t, rt.Active)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New([]domain.Segment{{ID: 1, LengthKM: 0}}, nil)
	assert.Error(t, err)

	_, err = New([]domain.Segment{{ID: 1, LengthKM: 1}, {ID: 1, LengthKM: 2}}, nil)
	assert.Error(t, err)

	_, err = New([]domain.Segment{{ID: 1, LengthKM: 1}}, []domain.CandidateRoute{{ID: 1, SegmentIDs: []int{2}}})
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)

	// empty routes are kept; scoring skips them
	r, err := New([]domain.Segment{{ID: 1, LengthKM: 1}}, []domain.CandidateRoute{{ID: 9, Active: true}})
	require.NoError(t, err)
	assert.Len(t, r.Routes(true), 1)
}

func TestNearest(t *testing.T) {
	r := seeded(t)
	seg, d, ok := r.Nearest(13.7150, -89.3420)
	require.True(t, ok)
	assert.Equal(t, 10, seg.ID)
	assert.InDelta(t, 0, d, 1e-9)

	empty, err := New([]domain.Segment{{ID: 1, LengthKM: 1}}, nil)
	require.NoError(t, err)
	_, _, ok = empty.Nearest(13.7, -89.3)
	assert.False(t, ok)
}
