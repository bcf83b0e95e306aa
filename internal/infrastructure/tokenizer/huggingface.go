package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	hftokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	domainErrors "github.com/jbctechsolutions/tokenpad/internal/domain/errors"
	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
)

// TokenizerFile is the file name looked up inside a model directory.
const TokenizerFile = "tokenizer.json"

// HuggingFaceEstimator counts tokens with a local HuggingFace tokenizer.json,
// such as the one shipped with Qwen models. Special tokens are not added.
type HuggingFaceEstimator struct {
	path     string
	tk       *hftokenizer.Tokenizer
	logger   *logging.Logger
	fallback *HeuristicEstimator
}

// Ensure HuggingFaceEstimator implements tokens.Estimator.
var _ tokens.Estimator = (*HuggingFaceEstimator)(nil)

// ResolveTokenizerPath accepts either a tokenizer.json path or a model
// directory containing one.
func ResolveTokenizerPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		path = filepath.Join(path, TokenizerFile)
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// NewHuggingFaceEstimator loads the tokenizer at path (file or model directory).
func NewHuggingFaceEstimator(path string, logger *logging.Logger) (*HuggingFaceEstimator, error) {
	if logger == nil {
		logger = logging.Default()
	}

	resolved, err := ResolveTokenizerPath(path)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeTokenizer,
			fmt.Sprintf("locate tokenizer at %s", path),
			fmt.Errorf("%w: %v", domainErrors.ErrTokenizerUnavailable, err))
	}

	tk, err := pretrained.FromFile(resolved)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeTokenizer,
			fmt.Sprintf("load tokenizer %s", resolved),
			fmt.Errorf("%w: %v", domainErrors.ErrTokenizerUnavailable, err))
	}

	return &HuggingFaceEstimator{
		path:     resolved,
		tk:       tk,
		logger:   logger,
		fallback: NewHeuristicEstimator(tokens.KindQwen),
	}, nil
}

// CountTokens returns the number of ids produced for text. Encode errors
// and panics fall back to the heuristic for that call.
func (e *HuggingFaceEstimator) CountTokens(text string) (n int) {
	if text == "" {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("tokenizer encode panicked, using heuristic", "panic", fmt.Sprint(r))
			n = e.fallback.CountTokens(text)
		}
	}()

	en, err := e.tk.EncodeSingle(text, false)
	if err != nil {
		e.logger.Warn("tokenizer encode failed, using heuristic", "error", err.Error())
		return e.fallback.CountTokens(text)
	}
	return len(en.Ids)
}

// Identity implements tokens.Estimator.
func (e *HuggingFaceEstimator) Identity() string {
	return "hf:" + e.path
}

// Exact implements tokens.Estimator.
func (e *HuggingFaceEstimator) Exact() bool { return true }

// Kind implements tokens.Kinded.
func (e *HuggingFaceEstimator) Kind() tokens.Kind { return tokens.KindQwen }
