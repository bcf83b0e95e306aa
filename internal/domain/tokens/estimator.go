// Package tokens contains the domain contract for token estimation.
package tokens

// Estimator converts text into an estimated token count.
// Implementations are chosen at construction time (exact BPE tokenizers,
// HuggingFace tokenizers, or a fixed-ratio heuristic) so the rest of the
// domain never needs to know which one it is talking to.
type Estimator interface {
	// CountTokens returns the estimated token count for the given text.
	// It must be deterministic for a fixed estimator and input.
	CountTokens(text string) int

	// Identity names the tokenizer, e.g. "tiktoken:cl100k_base".
	// Cached observations are only reused for the same identity.
	Identity() string

	// Exact reports whether counts come from a real tokenizer rather
	// than a character-ratio heuristic.
	Exact() bool
}

// Kind identifies a tokenizer family. The family decides the heuristic
// ratio and how aggressively calibration widens its search range.
type Kind string

const (
	KindQwen      Kind = "qwen"
	KindOpenAI    Kind = "openai"
	KindHeuristic Kind = "heuristic"
)

// Valid reports whether k is a known tokenizer family.
func (k Kind) Valid() bool {
	switch k {
	case KindQwen, KindOpenAI, KindHeuristic:
		return true
	}
	return false
}

// HeuristicRatio returns the characters-per-token divisor used when no
// exact tokenizer is available. Qwen packs CJK densely, so it gets the
// smaller divisor.
func (k Kind) HeuristicRatio() int {
	if k == KindQwen {
		return 2
	}
	return 4
}

// Kinded is implemented by estimators that know their tokenizer family.
type Kinded interface {
	Kind() Kind
}

// KindOf returns the family of e, or KindHeuristic when e does not say.
func KindOf(e Estimator) Kind {
	if k, ok := e.(Kinded); ok {
		return k.Kind()
	}
	return KindHeuristic
}
