// Package random provides the injectable randomness behind volatility, trade jitter
// and forecast noise.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Source draws uniformly distributed numbers.
type Source interface {
	// Uniform returns a number in [low, high). It returns low when high <= low.
	Uniform(low, high float64) float64
}

// Seeded is a reproducible Source. It is safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Source whose sequence is fully determined by seed.
func New(seed int64) *Seeded {
	return &Seeded{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// NewEntropy returns a Source seeded from crypto/rand.
func NewEntropy() *Seeded {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return New(int64(binary.LittleEndian.Uint64(buf[:])))
}

func (s *Seeded) Uniform(low, high float64) float64 {
	if high <= low {
		return low
	}
	s.mu.Lock()
	f := s.rng.Float64()
	s.mu.Unlock()
	return low + f*(high-low)
}

// Sequence replays fixed fractions in [0,1], cycling when exhausted.
// Uniform(low, high) maps fraction f to low + f*(high-low), so 0.5 always yields the midpoint.
type Sequence struct {
	mu        sync.Mutex
	fractions []float64
	next      int
}

// NewSequence returns a Source replaying the given fractions. With no fractions every draw is 0.5.
func NewSequence(fractions ...float64) *Sequence {
	if len(fractions) == 0 {
		fractions = []float64{0.5}
	}
	return &Sequence{fractions: fractions}
}

func (s *Sequence) Uniform(low, high float64) float64 {
	if high <= low {
		return low
	}
	s.mu.Lock()
	f := s.fractions[s.next%len(s.fractions)]
	s.next++
	s.mu.Unlock()
	return low + f*(high-low)
}

// Draws returns how many non-degenerate draws were taken.
func (s *Sequence) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
