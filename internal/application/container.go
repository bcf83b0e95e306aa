// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jbctechsolutions/tokenpad/internal/adapters/cache"
	adapterMCP "github.com/jbctechsolutions/tokenpad/internal/adapters/mcp"
	adapterTranslation "github.com/jbctechsolutions/tokenpad/internal/adapters/translation"
	"github.com/jbctechsolutions/tokenpad/internal/application/filling"
	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
	"github.com/jbctechsolutions/tokenpad/internal/application/translation"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/config"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/tokenizer"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	mu sync.RWMutex

	// Configuration
	config  *config.Config
	verbose bool
	opts    containerOptions

	// Observability
	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics *metrics.Collector

	// Padding engine
	selection tokenizer.Selection
	tracker   *window.Tracker
	scatterer *padding.Scatterer
	ratios    ports.RatioCache

	// Application services
	remote      ports.Translator
	filling     *filling.Service
	translation *translation.Service

	// Protocol
	registry *adapterMCP.Registry
	server   *adapterMCP.Server
}

type containerOptions struct {
	estimator tokens.Estimator
	logOutput io.Writer
	loaders   *tokenizer.Loaders
	remote    ports.Translator
}

// ContainerOption customizes container construction.
type ContainerOption func(*containerOptions)

// WithEstimator bypasses tokenizer selection.
func WithEstimator(est tokens.Estimator) ContainerOption {
	return func(o *containerOptions) { o.estimator = est }
}

// WithLogOutput redirects logs. The default is stderr.
func WithLogOutput(w io.Writer) ContainerOption {
	return func(o *containerOptions) { o.logOutput = w }
}

// WithTokenizerLoaders replaces the tokenizer loaders used for selection.
func WithTokenizerLoaders(l tokenizer.Loaders) ContainerOption {
	return func(o *containerOptions) { o.loaders = &l }
}

// WithTranslator sets the remote translation backend, overriding the
// configured one.
func WithTranslator(t ports.Translator) ContainerOption {
	return func(o *containerOptions) { o.remote = t }
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, verbose bool, opts ...ContainerOption) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}
	for _, opt := range opts {
		opt(&c.opts)
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	c.initTokenizer()
	c.initRatioCache()
	c.initServices()

	if err := c.initProtocol(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize protocol: %w", err)
	}

	return c, nil
}

// initObservability initializes logging, tracing and metrics.
func (c *Container) initObservability() error {
	level := logging.ParseLevel(c.config.Logging.Level)
	if c.verbose {
		level = logging.LevelDebug
	}

	output := c.opts.logOutput
	if output == nil {
		output = os.Stderr
	}

	c.logger = logging.New(logging.Config{
		Level:  level,
		Format: logging.Format(c.config.Logging.Format),
		Output: output,
	})

	tc := c.config.Observability.Tracing
	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      tc.Enabled,
		ExporterType: tracing.ExporterType(tc.ExporterType),
		OTLPEndpoint: tc.OTLPEndpoint,
		ServiceName:  tc.ServiceName,
		Environment:  "production",
		SampleRate:   tc.SampleRate,
		Output:       output,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	c.tracer = tracer

	c.metrics = metrics.NewCollector("tokenpad")
	return nil
}

// initTokenizer selects the estimator and builds the tracker and scatterer.
func (c *Container) initTokenizer() {
	cal := c.config.Calibration

	if c.opts.estimator != nil {
		c.selection = tokenizer.Selection{Estimator: c.opts.estimator, Requested: cal.Method}
	} else {
		c.selection = c.selectTokenizer(cal)
	}

	c.logger.Info("tokenizer selected",
		"requested", c.selection.Requested,
		"identity", c.selection.Estimator.Identity(),
		"exact", c.selection.Exact(),
		"fallbacks", c.selection.Fallbacks,
	)

	c.tracker = window.NewTracker(c.selection.Estimator, windowConfig(c.config))

	if cal.Seed != 0 {
		c.scatterer = padding.NewSeededScatterer(cal.Seed)
	} else {
		c.scatterer = padding.NewRandomScatterer()
	}
}

func (c *Container) selectTokenizer(cal config.CalibrationConfig) tokenizer.Selection {
	loaders := tokenizer.DefaultLoaders()
	if c.opts.loaders != nil {
		loaders = *c.opts.loaders
	}
	return loaders.Select(tokenizer.Options{
		Method:    cal.Method,
		ModelPath: cal.QwenModelPath,
		Encoding:  cal.Encoding,
		Logger:    c.logger,
	})
}

// initRatioCache opens the learned ratio store. A SQLite store that cannot
// be opened degrades to memory.
func (c *Container) initRatioCache() {
	cc := c.config.Cache
	if !cc.Enabled {
		return
	}

	if cc.Backend == "sqlite" {
		store, err := cache.OpenSQLiteRatioCache(cc.Path)
		if err == nil {
			c.ratios = store
			return
		}
		c.logger.Warn("failed to open ratio cache, using memory", "path", cc.Path, "error", err.Error())
	}
	c.ratios = cache.NewMemoryRatioCache()
}

// initServices creates the filling and translation services.
func (c *Container) initServices() {
	fillOpts := []filling.Option{
		filling.WithLogger(c.logger),
		filling.WithTracer(c.tracer),
		filling.WithMetrics(c.metrics),
	}
	if c.ratios != nil {
		fillOpts = append(fillOpts, filling.WithRatioCache(c.ratios))
	}
	c.filling = filling.NewService(fillingConfig(c.config), c.selection.Estimator, c.scatterer, c.tracker, fillOpts...)

	c.remote = c.opts.remote
	if c.remote == nil {
		c.remote = baiduClient(c.config.Translation.Baidu, c.logger)
	}

	trOpts := []translation.Option{
		translation.WithLogger(c.logger),
		translation.WithInterference(interferenceConfig(c.config), c.scatterer, func() bool {
			return c.filling.Config().Enabled
		}),
	}
	if c.remote != nil {
		trOpts = append(trOpts, translation.WithRemote(c.remote))
	}
	c.translation = translation.NewService(nil, trOpts...)
}

// initProtocol registers the tools and builds the dispatcher.
func (c *Container) initProtocol() error {
	c.registry = adapterMCP.NewRegistry()
	if err := adapterMCP.RegisterTranslationTools(c.registry, c.translation); err != nil {
		return err
	}

	c.server = adapterMCP.NewServer(c.registry, c.filling,
		adapterMCP.WithServerLogger(c.logger),
		adapterMCP.WithServerTracer(c.tracer),
		adapterMCP.WithServerMetrics(c.metrics),
	)
	return nil
}

func baiduClient(bc config.BaiduConfig, logger *logging.Logger) ports.Translator {
	if !bc.Enabled {
		return nil
	}
	if bc.AppID == "" || bc.SecretKey == "" {
		logger.Warn("baidu translation enabled without credentials, using dictionary")
		return nil
	}
	return adapterTranslation.NewBaiduClient(adapterTranslation.BaiduConfig{
		AppID:     bc.AppID,
		SecretKey: bc.SecretKey,
		URL:       bc.URL,
		Timeout:   bc.Timeout,
		RateLimit: bc.RateLimit,
	})
}

func fillingConfig(cfg *config.Config) filling.Config {
	cal := cfg.Calibration
	return filling.Config{
		Enabled:      cal.Enabled,
		FillRatio:    cal.FillRatio,
		RequireExact: cal.RequireExact,
		Search: padding.Options{
			MaxIterations:   cal.MaxIterations,
			StagnationLimit: padding.DefaultStagnationLimit,
			MinUpperBound:   padding.DefaultMinUpperBound,
		},
	}
}

func windowConfig(cfg *config.Config) window.Config {
	cal := cfg.Calibration
	// Validate has already rejected unknown policies.
	policy, _ := window.ParseResetPolicy(cal.ResetPolicy)
	return window.Config{
		Enabled:        cal.Enabled,
		TargetWindow:   cal.TargetWindow,
		ReservedMargin: cal.ReservedMargin,
		ResetThreshold: cal.ResetThreshold,
		Policy:         policy,
	}
}

func interferenceConfig(cfg *config.Config) translation.InterferenceConfig {
	ic := cfg.Interference
	return translation.InterferenceConfig{
		Enabled: ic.Enabled,
		Level:   padding.InterferenceLevel(ic.Level),
		Target:  padding.InterferenceTarget(ic.Target),
	}
}

// Apply swaps in a reloaded configuration. Calibration, interference and
// log level take effect immediately; a changed tokenizer selection is
// reloaded. Cache, tracing and backend settings need a restart.
func (c *Container) Apply(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.mu.Lock()
	prev := c.config
	c.config = cfg
	c.mu.Unlock()

	if !c.verbose {
		c.logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	}

	if c.opts.estimator == nil && tokenizerChanged(prev.Calibration, cfg.Calibration) {
		sel := c.selectTokenizer(cfg.Calibration)
		c.mu.Lock()
		c.selection = sel
		c.mu.Unlock()
		c.filling.SetEstimator(sel.Estimator)
		c.logger.Info("tokenizer reloaded", "identity", sel.Estimator.Identity(), "exact", sel.Exact())
	}

	if cfg.Calibration.Seed != 0 && cfg.Calibration.Seed != prev.Calibration.Seed {
		c.scatterer.Reseed(cfg.Calibration.Seed)
	}

	c.tracker.Reconfigure(windowConfig(cfg))
	c.filling.Reconfigure(fillingConfig(cfg))
	c.translation.SetInterference(interferenceConfig(cfg))
	return nil
}

func tokenizerChanged(a, b config.CalibrationConfig) bool {
	return a.Method != b.Method || a.QwenModelPath != b.QwenModelPath || a.Encoding != b.Encoding
}

// Close releases resources held by the container.
func (c *Container) Close() error {
	var errs []error

	if c.ratios != nil {
		if err := c.ratios.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ratio cache: %w", err))
		}
	}
	if c.tracer != nil {
		if err := c.tracer.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Config returns the active configuration.
func (c *Container) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// Metrics returns the metrics collector.
func (c *Container) Metrics() *metrics.Collector {
	return c.metrics
}

// Selection returns the tokenizer selection.
func (c *Container) Selection() tokenizer.Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

// Estimator returns the active token estimator.
func (c *Container) Estimator() tokens.Estimator {
	return c.filling.Estimator()
}

// Tracker returns the context usage tracker.
func (c *Container) Tracker() *window.Tracker {
	return c.tracker
}

// Scatterer returns the filler scatterer.
func (c *Container) Scatterer() *padding.Scatterer {
	return c.scatterer
}

// RatioCache returns the learned ratio store, or nil when disabled.
func (c *Container) RatioCache() ports.RatioCache {
	return c.ratios
}

// Filling returns the context filling service.
func (c *Container) Filling() *filling.Service {
	return c.filling
}

// Translation returns the translation service.
func (c *Container) Translation() *translation.Service {
	return c.translation
}

// Registry returns the tool registry.
func (c *Container) Registry() *adapterMCP.Registry {
	return c.registry
}

// Server returns the protocol dispatcher.
func (c *Container) Server() *adapterMCP.Server {
	return c.server
}
