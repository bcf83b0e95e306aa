package padding

import (
	"math"

	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
)

// ExitReason names why a calibration stopped.
type ExitReason string

const (
	// ExitNoPaddingNeeded means the base text already meets the target.
	ExitNoPaddingNeeded ExitReason = "no_padding_needed"
	// ExitToleranceMet means a probe landed within tolerance of the target.
	ExitToleranceMet ExitReason = "tolerance_met"
	// ExitBracketExhausted means the bracket shrank to a few candidates,
	// all of which were evaluated.
	ExitBracketExhausted ExitReason = "bracket_exhausted"
	// ExitBracketCrossed means the bracket bounds crossed.
	ExitBracketCrossed ExitReason = "bracket_crossed"
	// ExitStagnation means several consecutive probes failed to improve.
	ExitStagnation ExitReason = "stagnation"
	// ExitIterationCap means the probe budget ran out.
	ExitIterationCap ExitReason = "iteration_cap"

	// ExitDisabled means calibration is switched off.
	ExitDisabled ExitReason = "disabled"
	// ExitNoExactTokenizer means an exact tokenizer was required but unavailable.
	ExitNoExactTokenizer ExitReason = "no_exact_tokenizer"
	// ExitNoHeadroom means the context window has no room left for filler.
	ExitNoHeadroom ExitReason = "no_headroom"
)

// Searched reports whether the reason came out of the binary search itself.
func (r ExitReason) Searched() bool {
	switch r {
	case ExitToleranceMet, ExitBracketExhausted, ExitBracketCrossed, ExitStagnation, ExitIterationCap:
		return true
	}
	return false
}

// Default search limits.
const (
	DefaultMaxIterations   = 30
	DefaultStagnationLimit = 5
	DefaultMinUpperBound   = 1000
)

// exhaustiveSpan is the bracket width at which remaining candidates are
// evaluated one by one.
const exhaustiveSpan = 2

// Options bounds the calibration search.
type Options struct {
	MaxIterations   int
	StagnationLimit int
	MinUpperBound   int
}

// DefaultOptions returns the standard search limits.
func DefaultOptions() Options {
	return Options{
		MaxIterations:   DefaultMaxIterations,
		StagnationLimit: DefaultStagnationLimit,
		MinUpperBound:   DefaultMinUpperBound,
	}
}

func (o Options) normalized() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.StagnationLimit <= 0 {
		o.StagnationLimit = DefaultStagnationLimit
	}
	if o.MinUpperBound < 0 {
		o.MinUpperBound = DefaultMinUpperBound
	}
	return o
}

// Result describes a finished calibration.
type Result struct {
	FillerCount    int        `json:"filler_count"`
	BaseTokens     int        `json:"base_tokens"`
	TargetTokens   int        `json:"target_tokens"`
	ObservedTokens int        `json:"observed_tokens"`
	Error          int        `json:"error"`
	Tolerance      int        `json:"tolerance"`
	UpperBound     int        `json:"upper_bound"`
	Iterations     int        `json:"iterations"`
	EstimatorCalls int        `json:"estimator_calls"`
	Reason         ExitReason `json:"reason"`
}

// WithinTolerance reports whether the observed count met the tolerance.
func (r Result) WithinTolerance() bool {
	return r.Error <= r.Tolerance
}

// FillTokens returns the tokens contributed by filler.
func (r Result) FillTokens() int {
	return r.ObservedTokens - r.BaseTokens
}

// UpperBoundMultiplier returns how many filler units per needed token the
// initial search range allows. Tokenizers that merge runs of invisible
// characters need a wider range.
func UpperBoundMultiplier(kind tokens.Kind) int {
	switch kind {
	case tokens.KindQwen:
		return 8
	case tokens.KindOpenAI:
		return 5
	default:
		return 10
	}
}

// CalibrateOption adjusts a single Calibrate call.
type CalibrateOption func(*callParams)

type callParams struct {
	ratioHint float64
}

// WithRatioHint supplies a previously observed tokens-per-filler ratio for
// the same tokenizer, letting the search start from a tighter bound.
func WithRatioHint(ratio float64) CalibrateOption {
	return func(p *callParams) {
		p.ratioHint = ratio
	}
}

// probeKey identifies a cached observation. Observations are only valid
// for the tokenizer that produced them.
type probeKey struct {
	count    int
	identity string
}

type candidate struct {
	count  int
	tokens int
	err    int
}

// Calibrator searches for the filler count that brings a text to a target
// token count under a given estimator.
type Calibrator struct {
	estimator tokens.Estimator
	scatterer *Scatterer
	opts      Options
}

// NewCalibrator creates a Calibrator. Zero-valued options take defaults.
func NewCalibrator(estimator tokens.Estimator, scatterer *Scatterer, opts Options) *Calibrator {
	return &Calibrator{
		estimator: estimator,
		scatterer: scatterer,
		opts:      opts.normalized(),
	}
}

// Estimator returns the estimator the calibrator probes.
func (c *Calibrator) Estimator() tokens.Estimator {
	return c.estimator
}

// Options returns the effective search limits.
func (c *Calibrator) Options() Options {
	return c.opts
}

// UpperBound returns the top of the search range for needed tokens.
func (c *Calibrator) UpperBound(needed int, ratioHint float64) int {
	bound := needed * UpperBoundMultiplier(tokens.KindOf(c.estimator))
	if ratioHint > 0 {
		hinted := int(math.Ceil(2 * float64(needed) / ratioHint))
		if hinted < bound {
			bound = hinted
		}
	}
	return max(bound, c.opts.MinUpperBound)
}

// Calibrate finds the filler count whose scattered text estimates closest to
// target. It always returns; the iteration and stagnation caps bound the
// number of estimator calls even for non-monotonic estimators.
func (c *Calibrator) Calibrate(base string, target int, opts ...CalibrateOption) Result {
	var params callParams
	for _, opt := range opts {
		opt(&params)
	}

	res := Result{TargetTokens: target}
	res.BaseTokens = c.estimator.CountTokens(base)
	res.EstimatorCalls = 1

	if target <= res.BaseTokens {
		res.ObservedTokens = res.BaseTokens
		res.Error = res.BaseTokens - target
		res.Reason = ExitNoPaddingNeeded
		return res
	}

	needed := target - res.BaseTokens
	res.Tolerance = Tolerance(target)
	res.UpperBound = c.UpperBound(needed, params.ratioHint)

	identity := c.estimator.Identity()
	cache := make(map[probeKey]int)
	probe := func(count int) candidate {
		key := probeKey{count: count, identity: identity}
		observed, ok := cache[key]
		if !ok {
			observed = c.estimator.CountTokens(c.scatterer.Scatter(base, count))
			cache[key] = observed
			res.EstimatorCalls++
		}
		return candidate{count: count, tokens: observed, err: absInt(observed - target)}
	}

	finish := func(best candidate, reason ExitReason) Result {
		res.FillerCount = best.count
		res.ObservedTokens = best.tokens
		res.Error = best.err
		res.Reason = reason
		return res
	}

	best := candidate{err: math.MaxInt}
	low, high := 0, res.UpperBound
	stagnant := 0

	for iter := 1; iter <= c.opts.MaxIterations; iter++ {
		res.Iterations = iter
		mid := low + (high-low)/2
		cand := probe(mid)

		if cand.err < best.err {
			best = cand
			stagnant = 0
		} else {
			stagnant++
		}

		if cand.err <= res.Tolerance {
			return finish(cand, ExitToleranceMet)
		}

		if cand.tokens < target {
			low = mid + 1
		} else {
			high = mid - 1
		}

		if low > high {
			return finish(best, ExitBracketCrossed)
		}

		if high-low <= exhaustiveSpan {
			for n := low; n <= high; n++ {
				if cand := probe(n); cand.err < best.err {
					best = cand
				}
			}
			return finish(best, ExitBracketExhausted)
		}

		if stagnant >= c.opts.StagnationLimit {
			return finish(best, ExitStagnation)
		}
	}

	return finish(best, ExitIterationCap)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
