package padding

import (
	"math/rand/v2"
	"strings"
	"sync"
	"unicode/utf8"
)

// Scatterer distributes filler units across the positions of a base string.
// It is safe for concurrent use.
type Scatterer struct {
	mu       sync.Mutex
	rng      *rand.Rand
	alphabet []rune
}

// NewScatterer creates a Scatterer drawing from src.
func NewScatterer(src rand.Source) *Scatterer {
	return &Scatterer{
		rng:      rand.New(src),
		alphabet: Alphabet,
	}
}

// NewSeededScatterer creates a Scatterer with a reproducible PCG source.
func NewSeededScatterer(seed uint64) *Scatterer {
	return NewScatterer(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewRandomScatterer creates a Scatterer seeded from the runtime's entropy.
func NewRandomScatterer() *Scatterer {
	return NewSeededScatterer(rand.Uint64())
}

// Reseed replaces the randomness source.
func (s *Scatterer) Reseed(seed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Distribution returns how many filler units each of length positions
// receives: every position gets per, and the first extra positions get one more.
func Distribution(length, n int) (per, extra int) {
	if length <= 0 || n <= 0 {
		return 0, 0
	}
	return n / length, n % length
}

// Scatter inserts exactly n filler units into base, spread as evenly as
// possible after each character. Lengths are counted in runes.
func (s *Scatterer) Scatter(base string, n int) string {
	if n <= 0 || base == "" {
		return base
	}

	length := utf8.RuneCountInString(base)
	per, extra := Distribution(length, n)

	var b strings.Builder
	b.Grow(len(base) + n*3)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	for _, r := range base {
		b.WriteRune(r)
		count := per
		if i < extra {
			count++
		}
		for j := 0; j < count; j++ {
			b.WriteRune(s.alphabet[s.rng.IntN(len(s.alphabet))])
		}
		i++
	}
	return b.String()
}
