package padding

import (
	"testing"

	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/testutil"
	"pgregory.net/rapid"
)

// slope20 charges one token for the two-rune base and twenty per filler unit.
func slope20(runes int) int {
	if runes <= 2 {
		return 1
	}
	return 1 + 20*(runes-2)
}

// plateau jumps straight past any reasonable target once filler appears.
func plateau(runes int) int {
	if runes <= 2 {
		return 1
	}
	return 1_000_000
}

func TestTolerance(t *testing.T) {
	tests := []struct {
		target int
		want   int
	}{
		{10, 5},
		{999, 5},
		{1000, 10},
		{4000, 40},
		{9999, 99},
		{10000, 50},
		{50000, 250},
		{1000000, 5000},
	}

	for _, tt := range tests {
		if got := Tolerance(tt.target); got != tt.want {
			t.Errorf("Tolerance(%d) = %d, expected %d", tt.target, got, tt.want)
		}
	}
}

func TestUpperBoundMultiplier(t *testing.T) {
	tests := []struct {
		kind tokens.Kind
		want int
	}{
		{tokens.KindQwen, 8},
		{tokens.KindOpenAI, 5},
		{tokens.KindHeuristic, 10},
		{tokens.Kind("other"), 10},
	}

	for _, tt := range tests {
		if got := UpperBoundMultiplier(tt.kind); got != tt.want {
			t.Errorf("UpperBoundMultiplier(%q) = %d, expected %d", tt.kind, got, tt.want)
		}
	}
}

func TestCalibrator_UpperBound(t *testing.T) {
	c := NewCalibrator(testutil.NewRuneEstimator(2), NewSeededScatterer(1), DefaultOptions())

	tests := []struct {
		name   string
		needed int
		hint   float64
		want   int
	}{
		{"kind bound", 10000, 0, 80000},
		{"floor", 10, 0, 1000},
		{"hint tightens", 10000, 0.5, 40000},
		{"hint never below floor", 10000, 100, 1000},
		{"hint never above kind bound", 10000, 0.01, 80000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.UpperBound(tt.needed, tt.hint); got != tt.want {
				t.Errorf("UpperBound(%d, %v) = %d, expected %d", tt.needed, tt.hint, got, tt.want)
			}
		})
	}
}

func TestCalibrate_NoPaddingNeeded(t *testing.T) {
	est := testutil.NewRuneEstimator(1)
	c := NewCalibrator(est, NewSeededScatterer(1), DefaultOptions())

	res := c.Calibrate("already long enough", 5)

	if res.Reason != ExitNoPaddingNeeded {
		t.Errorf("Reason = %s, expected %s", res.Reason, ExitNoPaddingNeeded)
	}
	if res.FillerCount != 0 {
		t.Errorf("FillerCount = %d, expected 0", res.FillerCount)
	}
	if est.Calls() != 1 {
		t.Errorf("estimator calls = %d, expected 1", est.Calls())
	}
}

func TestCalibrate_ShortPayload(t *testing.T) {
	est := testutil.NewRuneEstimator(2)
	scatterer := NewSeededScatterer(1)
	c := NewCalibrator(est, scatterer, DefaultOptions())

	res := c.Calibrate("OK", 100)

	if res.Reason != ExitToleranceMet {
		t.Fatalf("Reason = %s, expected %s", res.Reason, ExitToleranceMet)
	}
	if !res.WithinTolerance() {
		t.Errorf("Error = %d exceeds tolerance %d", res.Error, res.Tolerance)
	}
	padded := scatterer.Scatter("OK", res.FillerCount)
	if got := est.CountTokens(padded); got != res.ObservedTokens {
		t.Errorf("padded text counts %d tokens, result reports %d", got, res.ObservedTokens)
	}
	if got := est.CountTokens(padded); got < 95 || got > 105 {
		t.Errorf("padded text counts %d tokens, expected within 5 of 100", got)
	}
}

func TestCalibrate_Convergence(t *testing.T) {
	targets := []int{10, 11, 57, 99, 100, 500, 999, 1000, 1001, 4321, 9999, 10000, 12345, 33333, 50000}
	base := "OK"

	for _, target := range targets {
		est := testutil.NewRuneEstimator(2)
		c := NewCalibrator(est, NewSeededScatterer(uint64(target)), DefaultOptions())

		res := c.Calibrate(base, target)
		if !res.WithinTolerance() {
			t.Errorf("target %d: error %d exceeds tolerance %d (reason %s)",
				target, res.Error, res.Tolerance, res.Reason)
		}
		if res.FillerCount < 0 || res.FillerCount > res.UpperBound {
			t.Errorf("target %d: filler %d outside [0, %d]", target, res.FillerCount, res.UpperBound)
		}
	}
}

func TestCalibrate_ExitReasons(t *testing.T) {
	t.Run("bracket exhausted", func(t *testing.T) {
		c := NewCalibrator(testutil.NewFuncEstimator(slope20), NewSeededScatterer(1), DefaultOptions())
		res := c.Calibrate("OK", 1010)

		if res.Reason != ExitBracketExhausted {
			t.Fatalf("Reason = %s, expected %s", res.Reason, ExitBracketExhausted)
		}
		if res.FillerCount != 50 {
			t.Errorf("FillerCount = %d, expected 50", res.FillerCount)
		}
		if res.ObservedTokens != 1001 {
			t.Errorf("ObservedTokens = %d, expected 1001", res.ObservedTokens)
		}
	})

	t.Run("stagnation", func(t *testing.T) {
		est := testutil.NewFuncEstimator(plateau)
		c := NewCalibrator(est, NewSeededScatterer(1), DefaultOptions())
		res := c.Calibrate("OK", 500)

		if res.Reason != ExitStagnation {
			t.Fatalf("Reason = %s, expected %s", res.Reason, ExitStagnation)
		}
		if res.EstimatorCalls != 7 {
			t.Errorf("EstimatorCalls = %d, expected 7", res.EstimatorCalls)
		}
	})

	t.Run("iteration cap", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxIterations = 3
		c := NewCalibrator(testutil.NewFuncEstimator(slope20), NewSeededScatterer(1), opts)
		res := c.Calibrate("OK", 1010)

		if res.Reason != ExitIterationCap {
			t.Fatalf("Reason = %s, expected %s", res.Reason, ExitIterationCap)
		}
		if res.Iterations != 3 {
			t.Errorf("Iterations = %d, expected 3", res.Iterations)
		}
	})

	t.Run("bracket crossed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MinUpperBound = 0
		est := &testutil.SequenceEstimator{First: 1, Rest: 1_000_000}
		c := NewCalibrator(est, NewSeededScatterer(1), opts)
		res := c.Calibrate("OK", 500, WithRatioHint(1e9))

		if res.Reason != ExitBracketCrossed {
			t.Fatalf("Reason = %s, expected %s", res.Reason, ExitBracketCrossed)
		}
		if res.UpperBound != 1 {
			t.Errorf("UpperBound = %d, expected 1", res.UpperBound)
		}
	})
}

func TestCalibrate_ProbeCache(t *testing.T) {
	est := testutil.NewFuncEstimator(slope20)
	c := NewCalibrator(est, NewSeededScatterer(1), DefaultOptions())
	res := c.Calibrate("OK", 1010)

	if est.Calls() != res.EstimatorCalls {
		t.Errorf("estimator ran %d times, result reports %d", est.Calls(), res.EstimatorCalls)
	}
}

func TestCalibrate_TerminationBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mod := rapid.IntRange(2, 100000).Draw(t, "mod")
		mult := rapid.IntRange(1, 10000).Draw(t, "mult")
		target := rapid.IntRange(0, 2000).Draw(t, "target")

		// Arbitrary and non-monotonic in the filler count.
		est := testutil.NewFuncEstimator(func(runes int) int {
			return (runes * mult) % mod
		})
		c := NewCalibrator(est, NewSeededScatterer(1), DefaultOptions())
		res := c.Calibrate("OK", target)

		limit := DefaultMaxIterations + 4
		if res.EstimatorCalls > limit {
			t.Fatalf("EstimatorCalls = %d, exceeds %d", res.EstimatorCalls, limit)
		}
		if est.Calls() != res.EstimatorCalls {
			t.Fatalf("estimator ran %d times, result reports %d", est.Calls(), res.EstimatorCalls)
		}
		if res.Reason == "" {
			t.Fatal("calibration returned without a reason")
		}
	})
}

func TestExitReason_Searched(t *testing.T) {
	if !ExitStagnation.Searched() {
		t.Error("stagnation should count as a searched exit")
	}
	if ExitDisabled.Searched() || ExitNoPaddingNeeded.Searched() {
		t.Error("disabled and no_padding_needed are not searched exits")
	}
}
