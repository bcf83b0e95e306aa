// Package tokenizer provides token counting infrastructure backed by real
// subword tokenizers (tiktoken, HuggingFace tokenizer.json) with a
// character-ratio heuristic as the last resort. Every estimator implements
// tokens.Estimator.
package tokenizer

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	domainErrors "github.com/jbctechsolutions/tokenpad/internal/domain/errors"
	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
)

// DefaultEncoding is the tiktoken encoding used for the openai family.
const DefaultEncoding = "cl100k_base"

// TiktokenEstimator counts tokens with a tiktoken BPE encoding.
// The encoding is loaded lazily on first use.
type TiktokenEstimator struct {
	encoding string
	logger   *logging.Logger

	once     sync.Once
	enc      *tiktoken.Tiktoken
	loadErr  error
	fallback *HeuristicEstimator
}

// Ensure TiktokenEstimator implements tokens.Estimator.
var _ tokens.Estimator = (*TiktokenEstimator)(nil)

// NewTiktokenEstimator creates an estimator for the named encoding.
// An empty name selects cl100k_base.
func NewTiktokenEstimator(encoding string, logger *logging.Logger) *TiktokenEstimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TiktokenEstimator{
		encoding: encoding,
		logger:   logger,
		fallback: NewHeuristicEstimator(tokens.KindOpenAI),
	}
}

// Load fetches the BPE ranks. It is safe to call repeatedly.
func (e *TiktokenEstimator) Load() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.loadErr = domainErrors.NewError(domainErrors.CodeTokenizer,
				fmt.Sprintf("load tiktoken encoding %s", e.encoding),
				fmt.Errorf("%w: %v", domainErrors.ErrTokenizerUnavailable, err))
			return
		}
		e.enc = enc
	})
	return e.loadErr
}

// CountTokens returns the token count for text. If the encoding cannot be
// loaded or encoding panics, the heuristic answers for that call.
func (e *TiktokenEstimator) CountTokens(text string) (n int) {
	if text == "" {
		return 0
	}
	if err := e.Load(); err != nil {
		e.logger.Warn("tiktoken unavailable, using heuristic", "error", err.Error())
		return e.fallback.CountTokens(text)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("tiktoken encode failed, using heuristic", "panic", fmt.Sprint(r))
			n = e.fallback.CountTokens(text)
		}
	}()

	// Text spelling a special token such as <|endoftext|> encodes as that one
	// special token instead of panicking on disallowed special text.
	return len(e.enc.Encode(text, []string{"all"}, nil))
}

// Identity implements tokens.Estimator.
func (e *TiktokenEstimator) Identity() string {
	return "tiktoken:" + e.encoding
}

// Exact implements tokens.Estimator.
func (e *TiktokenEstimator) Exact() bool { return true }

// Kind implements tokens.Kinded.
func (e *TiktokenEstimator) Kind() tokens.Kind { return tokens.KindOpenAI }

// HeuristicEstimator estimates tokens as rune count divided by a
// family-specific ratio, plus one.
type HeuristicEstimator struct {
	kind    tokens.Kind
	divisor int
}

// Ensure HeuristicEstimator implements tokens.Estimator.
var _ tokens.Estimator = (*HeuristicEstimator)(nil)

// NewHeuristicEstimator creates a heuristic estimator for a family.
// This is useful for testing or when no tokenizer is available.
func NewHeuristicEstimator(kind tokens.Kind) *HeuristicEstimator {
	if !kind.Valid() {
		kind = tokens.KindHeuristic
	}
	return &HeuristicEstimator{kind: kind, divisor: kind.HeuristicRatio()}
}

// CountTokens returns runes/divisor + 1.
func (e *HeuristicEstimator) CountTokens(text string) int {
	return utf8.RuneCountInString(text)/e.divisor + 1
}

// Identity implements tokens.Estimator.
func (e *HeuristicEstimator) Identity() string {
	return fmt.Sprintf("heuristic:%s/%d", e.kind, e.divisor)
}

// Exact implements tokens.Estimator.
func (e *HeuristicEstimator) Exact() bool { return false }

// Kind implements tokens.Kinded.
func (e *HeuristicEstimator) Kind() tokens.Kind { return e.kind }
