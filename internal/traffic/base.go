// Package traffic holds the hand-authored congestion curve and the metrics derived from a congestion level
package traffic

import (
	"math/rand"
	"sync"
	"time"
)

// Congestion scale bounds
const (
	MinCongestion = 1.0
	MaxCongestion = 5.0
)

// Rand is the random source behind every jittered value. Tests inject fixed sources.
type Rand interface {
	Float64() float64
}

// LockedRand is a goroutine-safe math/rand source
type LockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRand seeds a LockedRand; seed 0 uses the current time
func NewRand(seed int64) *LockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LockedRand{rnd: rand.New(rand.NewSource(seed))}
}

// Float64 returns a value in [0, 1)
func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

type band struct {
	from, to int
	lo, hi   float64
}

var baseBands = []band{
	{0, 4, 1.0, 1.5},
	{5, 5, 2.5, 3.5},
	{6, 6, 3.5, 4.5},
	{7, 8, 4.5, 5.0},
	{9, 15, 2.5, 3.5},
	{16, 16, 3.5, 4.5},
	{17, 19, 4.3, 5.0},
	{20, 21, 3.0, 4.0},
	{22, 22, 2.0, 3.0},
	{23, 23, 1.0, 2.0},
}

// NormalizeHour maps any integer onto 0..23
func NormalizeHour(hour int) int {
	return ((hour % 24) + 24) % 24
}

// BaseBand returns the congestion range of the diurnal curve for an hour
func BaseBand(hour int) (lo, hi float64) {
	h := NormalizeHour(hour)
	for _, b := range baseBands {
		if h >= b.from && h <= b.to {
			return b.lo, b.hi
		}
	}
	// unreachable: the bands cover 0..23
	return MinCongestion, MinCongestion
}

// BaseCongestion draws the diurnal base congestion for an hour, always inside BaseBand(hour)
func BaseCongestion(hour int, rng Rand) float64 {
	lo, hi := BaseBand(hour)
	return uniform(rng, lo, hi)
}

func uniform(rng Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
