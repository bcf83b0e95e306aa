package padding

import (
	"fmt"
	"strings"
)

// InterferenceLevel selects how many filler units the legacy interference
// mode appends after every character.
type InterferenceLevel string

const (
	InterferenceLight  InterferenceLevel = "light"
	InterferenceMedium InterferenceLevel = "medium"
	InterferenceHeavy  InterferenceLevel = "heavy"
)

// InterferenceTarget selects which outputs receive interference.
type InterferenceTarget string

const (
	// TargetTranslation applies interference to translation output only.
	TargetTranslation InterferenceTarget = "translation"
	// TargetAll applies interference to every text result.
	TargetAll InterferenceTarget = "all"
)

// Range returns the inclusive bounds of the per-character run length.
func (l InterferenceLevel) Range() (lo, hi int) {
	switch l {
	case InterferenceLight:
		return 10, 50
	case InterferenceMedium:
		return 154, 158
	case InterferenceHeavy:
		return 500, 1000
	default:
		return 0, 0
	}
}

// Valid reports whether l is a known level.
func (l InterferenceLevel) Valid() bool {
	switch l {
	case InterferenceLight, InterferenceMedium, InterferenceHeavy:
		return true
	}
	return false
}

// ParseInterferenceLevel parses a level name.
func ParseInterferenceLevel(s string) (InterferenceLevel, error) {
	l := InterferenceLevel(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown interference level %q", s)
	}
	return l, nil
}

// Valid reports whether t is a known target.
func (t InterferenceTarget) Valid() bool {
	return t == TargetTranslation || t == TargetAll
}

// Applies reports whether output of the given kind should receive interference.
func (t InterferenceTarget) Applies(kind InterferenceTarget) bool {
	return t == TargetAll || t == kind
}

// Interfere appends a random-length run of filler after every character of
// text, with run lengths drawn uniformly from the level's range. Unlike
// Scatter it is not calibrated against any tokenizer.
func (s *Scatterer) Interfere(text string, level InterferenceLevel) string {
	lo, hi := level.Range()
	if hi == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) * (hi*3 + 1))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range text {
		b.WriteRune(r)
		n := lo + s.rng.IntN(hi-lo+1)
		for j := 0; j < n; j++ {
			b.WriteRune(s.alphabet[s.rng.IntN(len(s.alphabet))])
		}
	}
	return b.String()
}
