package rng

import "math/rand"

// Seeded is a deterministic generator for tests and replay tooling
type Seeded struct {
	rand *rand.Rand
}

// NewSeeded returns a generator producing a repeatable sequence
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rand: rand.New(rand.NewSource(seed))}
}

// Intn returns a random number in [0, n)
func (s *Seeded) Intn(n int) int {
	return s.rand.Intn(n)
}
