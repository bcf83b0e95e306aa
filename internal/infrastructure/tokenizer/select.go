package tokenizer

import (
	"context"
	"strings"

	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
)

// Options chooses and configures a tokenizer.
type Options struct {
	// Method is qwen, openai or heuristic.
	Method string
	// ModelPath is a tokenizer.json file or a model directory for qwen.
	ModelPath string
	// Encoding is the tiktoken encoding for openai.
	Encoding string
	Logger   *logging.Logger
}

// Selection is the outcome of tokenizer selection.
type Selection struct {
	Estimator tokens.Estimator
	Requested string
	// Fallbacks lists the methods that failed, in order.
	Fallbacks []string
}

// Exact reports whether the selected estimator is a real tokenizer.
func (s Selection) Exact() bool {
	return s.Estimator != nil && s.Estimator.Exact()
}

// Degraded reports whether selection fell back from the requested method.
func (s Selection) Degraded() bool {
	return len(s.Fallbacks) > 0
}

// Loaders builds concrete estimators. Tests replace them to avoid touching
// the network or the filesystem.
type Loaders struct {
	HuggingFace func(path string, logger *logging.Logger) (tokens.Estimator, error)
	Tiktoken    func(encoding string, logger *logging.Logger) (tokens.Estimator, error)
}

// DefaultLoaders returns loaders backed by the real tokenizer libraries.
func DefaultLoaders() Loaders {
	return Loaders{
		HuggingFace: func(path string, logger *logging.Logger) (tokens.Estimator, error) {
			return NewHuggingFaceEstimator(path, logger)
		},
		Tiktoken: func(encoding string, logger *logging.Logger) (tokens.Estimator, error) {
			e := NewTiktokenEstimator(encoding, logger)
			if err := e.Load(); err != nil {
				return nil, err
			}
			return e, nil
		},
	}
}

// Select picks an estimator using the default loaders.
func Select(opts Options) Selection {
	return DefaultLoaders().Select(opts)
}

// Select walks the chain qwen → openai → heuristic starting at the requested
// method. The heuristic keeps the requested family's ratio.
func (l Loaders) Select(opts Options) Selection {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	ctx := context.Background()

	method := tokens.Kind(strings.ToLower(strings.TrimSpace(opts.Method)))
	sel := Selection{Requested: string(method)}

	heuristicKind := method
	if !method.Valid() {
		logging.LogTokenizerFallback(ctx, logger, string(method), string(tokens.KindHeuristic), nil)
		sel.Fallbacks = append(sel.Fallbacks, string(method))
		heuristicKind = tokens.KindHeuristic
		method = tokens.KindHeuristic
	}

	if method == tokens.KindQwen {
		est, err := l.HuggingFace(opts.ModelPath, logger)
		if err == nil {
			sel.Estimator = est
			return sel
		}
		logging.LogTokenizerFallback(ctx, logger, string(tokens.KindQwen), string(tokens.KindOpenAI), err)
		sel.Fallbacks = append(sel.Fallbacks, string(tokens.KindQwen))
		method = tokens.KindOpenAI
	}

	if method == tokens.KindOpenAI {
		est, err := l.Tiktoken(opts.Encoding, logger)
		if err == nil {
			sel.Estimator = est
			return sel
		}
		logging.LogTokenizerFallback(ctx, logger, string(tokens.KindOpenAI), string(tokens.KindHeuristic), err)
		sel.Fallbacks = append(sel.Fallbacks, string(tokens.KindOpenAI))
	}

	sel.Estimator = NewHeuristicEstimator(heuristicKind)
	return sel
}
