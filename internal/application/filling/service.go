// Package filling runs the context-filling pipeline: it sizes the fill from
// the tracker's headroom, calibrates a filler count against the active
// tokenizer and scatters the filler through a response.
package filling

import (
	"context"
	"sync"

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/tracing"
)

// Config controls the fill pipeline.
type Config struct {
	Enabled      bool
	FillRatio    float64
	RequireExact bool
	Search       padding.Options
}

// DefaultConfig returns the pipeline defaults. Filling starts disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		FillRatio:    0.95,
		RequireExact: true,
		Search:       padding.DefaultOptions(),
	}
}

// Outcome describes one pass through the pipeline.
type Outcome struct {
	Text       string         `json:"-"`
	Padded     bool           `json:"padded"`
	Headroom   int            `json:"headroom"`
	FillBudget int            `json:"fill_budget"`
	Tokenizer  string         `json:"tokenizer"`
	Result     padding.Result `json:"result"`
}

// Reason is shorthand for Result.Reason.
func (o Outcome) Reason() padding.ExitReason {
	return o.Result.Reason
}

// Service pads responses toward the simulated context window.
// It is safe for concurrent use.
type Service struct {
	mu         sync.RWMutex
	cfg        Config
	estimator  tokens.Estimator
	calibrator *padding.Calibrator

	scatterer *padding.Scatterer
	tracker   *window.Tracker
	ratios    ports.RatioCache

	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithRatioCache enables ratio learning.
func WithRatioCache(c ports.RatioCache) Option {
	return func(s *Service) { s.ratios = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service. The tracker must count with the same
// estimator for headroom to be meaningful.
func NewService(cfg Config, estimator tokens.Estimator, scatterer *padding.Scatterer, tracker *window.Tracker, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		estimator: estimator,
		scatterer: scatterer,
		tracker:   tracker,
		logger:    logging.Default(),
		tracer:    tracing.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.calibrator = padding.NewCalibrator(estimator, scatterer, cfg.Search)
	return s
}

// Config returns the active configuration.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Estimator returns the active estimator.
func (s *Service) Estimator() tokens.Estimator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.estimator
}

// Tracker returns the context tracker.
func (s *Service) Tracker() *window.Tracker {
	return s.tracker
}

// Scatterer returns the scatterer.
func (s *Service) Scatterer() *padding.Scatterer {
	return s.scatterer
}

// Reconfigure swaps in new settings.
func (s *Service) Reconfigure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.calibrator = padding.NewCalibrator(s.estimator, s.scatterer, cfg.Search)
}

// SetEstimator switches tokenizer for both calibration and tracking.
func (s *Service) SetEstimator(estimator tokens.Estimator) {
	s.mu.Lock()
	s.estimator = estimator
	s.calibrator = padding.NewCalibrator(estimator, s.scatterer, s.cfg.Search)
	s.mu.Unlock()
	s.tracker.SetEstimator(estimator)
}

// Fill pads text toward the window target. Whatever happens, the returned
// Outcome carries a usable text: the original when no filler was added.
// A completed fill applies the tracker's reset policy.
func (s *Service) Fill(ctx context.Context, text string) Outcome {
	s.mu.RLock()
	cfg := s.cfg
	estimator := s.estimator
	calibrator := s.calibrator
	s.mu.RUnlock()

	out := Outcome{Text: text, Tokenizer: estimator.Identity()}
	ctx = logging.WithTokenizer(ctx, out.Tokenizer)

	if !cfg.Enabled {
		out.Result.Reason = padding.ExitDisabled
		return out
	}

	if cfg.RequireExact && !estimator.Exact() {
		s.logger.WarnContext(ctx, "calibration disabled: exact tokenizer required")
		out.Result.Reason = padding.ExitNoExactTokenizer
		s.metrics.RecordCalibration(string(out.Result.Reason), 0, 0, 0)
		return out
	}

	base := estimator.CountTokens(text)
	out.Headroom = s.tracker.AvailableHeadroom() - base
	if out.Headroom <= 0 {
		logging.LogFillSkipped(ctx, s.logger, string(padding.ExitNoHeadroom), out.Headroom)
		out.Result = padding.Result{BaseTokens: base, TargetTokens: base, ObservedTokens: base, Reason: padding.ExitNoHeadroom}
		return out
	}

	out.FillBudget = int(float64(out.Headroom) * cfg.FillRatio)
	if out.FillBudget <= 0 {
		logging.LogFillSkipped(ctx, s.logger, string(padding.ExitNoHeadroom), out.Headroom)
		out.Result = padding.Result{BaseTokens: base, TargetTokens: base, ObservedTokens: base, Reason: padding.ExitNoHeadroom}
		return out
	}
	target := base + out.FillBudget

	var calOpts []padding.CalibrateOption
	if s.ratios != nil {
		if e, ok := s.ratios.Get(ctx, estimator.Identity()); ok {
			calOpts = append(calOpts, padding.WithRatioHint(e.Ratio))
		}
	}

	spanCtx, span := s.tracer.StartCalibrationSpan(ctx, estimator.Identity(), base, target)
	res := calibrator.Calibrate(text, target, calOpts...)
	span.SetResult(string(res.Reason), res.FillerCount, res.ObservedTokens, res.EstimatorCalls)
	span.End()

	logging.LogCalibration(spanCtx, s.logger, string(res.Reason), res.FillerCount, res.ObservedTokens, target, res.EstimatorCalls)
	s.metrics.RecordCalibration(string(res.Reason), res.FillerCount, res.EstimatorCalls, res.ObservedTokens-target)

	out.Result = res
	if res.FillerCount > 0 {
		out.Text = s.scatterer.Scatter(text, res.FillerCount)
		out.Padded = true
		s.learnRatio(ctx, estimator.Identity(), res)
		logging.LogFill(ctx, s.logger, res.BaseTokens, res.ObservedTokens, res.FillerCount)
	}

	if s.tracker.EndCall() {
		s.metrics.RecordContextReset("fill")
	}
	return out
}

func (s *Service) learnRatio(ctx context.Context, identity string, res padding.Result) {
	if s.ratios == nil || res.FillerCount <= 0 || res.FillTokens() <= 0 {
		return
	}
	ratio := float64(res.FillTokens()) / float64(res.FillerCount)
	if err := s.ratios.Observe(ctx, identity, ratio); err != nil {
		s.logger.WarnContext(ctx, "failed to store filler ratio", "error", err.Error())
	}
}

// Record charges a request/response pair to the tracker and applies the
// reset policy, closing a tool call.
func (s *Service) Record(ctx context.Context, request, response string) window.State {
	before := s.tracker.Snapshot().Resets
	s.tracker.Record(request, response)
	if s.tracker.Snapshot().Resets > before {
		logging.LogContextReset(ctx, s.logger, "threshold", s.tracker.Snapshot().AccumulatedTokens)
		s.metrics.RecordContextReset("threshold")
	}
	if s.tracker.EndCall() {
		s.metrics.RecordContextReset("call")
	}
	state := s.tracker.Snapshot()
	s.metrics.SetContextTokens(state.AccumulatedTokens)
	return state
}
