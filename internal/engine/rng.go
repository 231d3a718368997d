package engine

import (
	"math/rand"
	"time"
)

// Source is the engine's randomness dependency. The default is a seeded
// math/rand generator; tests substitute deterministic stub sequences.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// newSource builds the default Source for a seed. Seed zero means the
// session is not reproducible: the generator is seeded from the clock.
func newSource(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
