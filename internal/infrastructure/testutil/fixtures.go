package testutil

import (
	"sync/atomic"
	"unicode/utf8"

	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
)

// RuneEstimator counts one token per Divisor runes. It stands in for a real
// tokenizer that treats every filler unit as a fraction of a token.
type RuneEstimator struct {
	Divisor int
	Name    string
	Family  tokens.Kind
	calls   atomic.Int64
}

// NewRuneEstimator creates an exact RuneEstimator of the qwen family.
func NewRuneEstimator(divisor int) *RuneEstimator {
	return &RuneEstimator{Divisor: divisor, Name: "fake:runes", Family: tokens.KindQwen}
}

// CountTokens implements tokens.Estimator.
func (e *RuneEstimator) CountTokens(text string) int {
	e.calls.Add(1)
	d := e.Divisor
	if d <= 0 {
		d = 1
	}
	return utf8.RuneCountInString(text) / d
}

// Identity implements tokens.Estimator.
func (e *RuneEstimator) Identity() string { return e.Name }

// Exact implements tokens.Estimator.
func (e *RuneEstimator) Exact() bool { return true }

// Kind implements tokens.Kinded.
func (e *RuneEstimator) Kind() tokens.Kind { return e.Family }

// Calls returns how many times CountTokens ran.
func (e *RuneEstimator) Calls() int { return int(e.calls.Load()) }

// FuncEstimator delegates counting to Fn, keyed on rune count.
type FuncEstimator struct {
	Fn      func(runes int) int
	Name    string
	IsExact bool
	Family  tokens.Kind
	calls   atomic.Int64
}

// NewFuncEstimator creates an exact FuncEstimator of the heuristic family.
func NewFuncEstimator(fn func(runes int) int) *FuncEstimator {
	return &FuncEstimator{Fn: fn, Name: "fake:func", IsExact: true, Family: tokens.KindHeuristic}
}

// CountTokens implements tokens.Estimator.
func (e *FuncEstimator) CountTokens(text string) int {
	e.calls.Add(1)
	return e.Fn(utf8.RuneCountInString(text))
}

// Identity implements tokens.Estimator.
func (e *FuncEstimator) Identity() string { return e.Name }

// Exact implements tokens.Estimator.
func (e *FuncEstimator) Exact() bool { return e.IsExact }

// Kind implements tokens.Kinded.
func (e *FuncEstimator) Kind() tokens.Kind { return e.Family }

// Calls returns how many times CountTokens ran.
func (e *FuncEstimator) Calls() int { return int(e.calls.Load()) }

// SequenceEstimator returns First for its first call and Rest afterwards,
// regardless of input. It models a tokenizer whose counts do not follow
// the filler count at all.
type SequenceEstimator struct {
	First int
	Rest  int
	calls atomic.Int64
}

// CountTokens implements tokens.Estimator.
func (e *SequenceEstimator) CountTokens(string) int {
	if e.calls.Add(1) == 1 {
		return e.First
	}
	return e.Rest
}

// Identity implements tokens.Estimator.
func (e *SequenceEstimator) Identity() string { return "fake:sequence" }

// Exact implements tokens.Estimator.
func (e *SequenceEstimator) Exact() bool { return true }

// Calls returns how many times CountTokens ran.
func (e *SequenceEstimator) Calls() int { return int(e.calls.Load()) }
