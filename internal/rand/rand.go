// Package rand is a mutex-guarded PCG source seeded from crypto/rand, used
// where randomness is needed but not security sensitive.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"
)

var defaultSource = newSource()

func newSource() *source {
	seed := make([]byte, 16)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}
	return &source{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

type source struct {
	mut sync.Mutex
	rng *rand.Rand
}

func (s *source) float64() float64 {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.rng.Float64()
}

// Float64 returns a number in [0.0, 1.0).
func Float64() float64 {
	return defaultSource.float64()
}

// Jitter spreads d by up to ±factor×d. The result is never negative.
func Jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * factor * (2*Float64() - 1)
	return max(time.Duration(float64(d)+spread), 0)
}
