// Package window tracks simulated context-window usage across tool calls.
package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
)

// ResetPolicy decides when the accumulated counter is cleared.
type ResetPolicy string

const (
	// PolicyPerCall clears the counter after every fill and every tool call,
	// so each request sees the whole window.
	PolicyPerCall ResetPolicy = "per_call"
	// PolicyCumulative keeps accumulating and only relies on the threshold
	// auto-reset.
	PolicyCumulative ResetPolicy = "cumulative"
)

// Defaults for a simulated window.
const (
	DefaultTargetWindow   = 32768
	DefaultReservedMargin = 100
	DefaultResetThreshold = 0.8
)

// ParseResetPolicy parses a policy name. Empty selects PolicyPerCall.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch p := ResetPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPerCall, nil
	case PolicyPerCall, PolicyCumulative:
		return p, nil
	default:
		return "", fmt.Errorf("unknown reset policy %q", s)
	}
}

// Config configures a Tracker.
type Config struct {
	Enabled        bool
	TargetWindow   int
	ReservedMargin int
	ResetThreshold float64
	Policy         ResetPolicy
}

// DefaultConfig returns an enabled per-call tracker over a 32k window.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		TargetWindow:   DefaultTargetWindow,
		ReservedMargin: DefaultReservedMargin,
		ResetThreshold: DefaultResetThreshold,
		Policy:         PolicyPerCall,
	}
}

// State is a snapshot of the tracker.
type State struct {
	AccumulatedTokens   int         `json:"accumulated_tokens"`
	LastContribution    int         `json:"last_contribution"`
	TargetWindow        int         `json:"target_window"`
	ReservedMargin      int         `json:"reserved_margin"`
	ResetThresholdRatio float64     `json:"reset_threshold_ratio"`
	Policy              ResetPolicy `json:"policy"`
	Resets              int         `json:"resets"`
}

// Tracker accumulates the token cost of request/response pairs.
// All methods are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	estimator tokens.Estimator
	cfg       Config
	state     State
}

// NewTracker creates a Tracker counting with estimator.
func NewTracker(estimator tokens.Estimator, cfg Config) *Tracker {
	t := &Tracker{estimator: estimator}
	t.apply(cfg)
	return t
}

func (t *Tracker) apply(cfg Config) {
	if cfg.TargetWindow <= 0 {
		cfg.TargetWindow = DefaultTargetWindow
	}
	if cfg.ReservedMargin < 0 {
		cfg.ReservedMargin = 0
	}
	if cfg.ResetThreshold <= 0 || cfg.ResetThreshold > 1 {
		cfg.ResetThreshold = DefaultResetThreshold
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyPerCall
	}
	t.cfg = cfg
	t.state.TargetWindow = cfg.TargetWindow
	t.state.ReservedMargin = cfg.ReservedMargin
	t.state.ResetThresholdRatio = cfg.ResetThreshold
	t.state.Policy = cfg.Policy
}

// Reconfigure swaps in new settings, keeping the accumulated count.
func (t *Tracker) Reconfigure(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apply(cfg)
}

// SetEstimator replaces the estimator used by Record.
func (t *Tracker) SetEstimator(estimator tokens.Estimator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.estimator = estimator
}

// Enabled reports whether usage is being tracked.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Enabled
}

// Policy returns the active reset policy.
func (t *Tracker) Policy() ResetPolicy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Policy
}

// Record adds the cost of one request/response pair and applies the
// threshold auto-reset. It returns the pair's contribution, or 0 when
// tracking is disabled.
func (t *Tracker) Record(request, response string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.cfg.Enabled {
		return 0
	}

	contribution := t.estimator.CountTokens(request) + t.estimator.CountTokens(response)
	t.state.AccumulatedTokens += contribution
	t.state.LastContribution = contribution
	t.autoResetLocked()
	return contribution
}

// AvailableHeadroom returns the tokens left in the window after the
// accumulated usage and the reserved margin. It may be negative.
func (t *Tracker) AvailableHeadroom() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.TargetWindow - t.state.AccumulatedTokens - t.cfg.ReservedMargin
}

// MaybeAutoReset resets the counter to the last contribution when usage
// exceeds the threshold share of the window. It reports whether it reset.
func (t *Tracker) MaybeAutoReset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.autoResetLocked()
}

func (t *Tracker) autoResetLocked() bool {
	limit := t.cfg.ResetThreshold * float64(t.cfg.TargetWindow)
	if float64(t.state.AccumulatedTokens) <= limit {
		return false
	}
	t.state.AccumulatedTokens = t.state.LastContribution
	t.state.Resets++
	return true
}

// ForceReset zeroes the counter.
func (t *Tracker) ForceReset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.AccumulatedTokens = 0
	t.state.Resets++
}

// EndCall applies the reset policy at a fill or tool-call boundary.
// It reports whether the counter was cleared.
func (t *Tracker) EndCall() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.Policy != PolicyPerCall {
		return false
	}
	t.state.AccumulatedTokens = 0
	t.state.Resets++
	return true
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
