// Package metrics exposes Prometheus metrics for the dispatcher and the
// padding engine.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "tokenpad"

// Collector owns a private registry so several collectors can coexist in
// one process (tests, embedded servers).
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	toolCallsTotal   *prometheus.CounterVec
	calibrations     *prometheus.CounterVec
	estimatorCalls   prometheus.Histogram
	fillerUnits      prometheus.Counter
	calibrationError prometheus.Histogram
	contextTokens    prometheus.Gauge
	contextResets    *prometheus.CounterVec
	malformedLines   prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and outcome",
		}, []string{"method", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "JSON-RPC request handling time",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method"}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		calibrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Calibration searches by exit reason",
		}, []string{"reason"}),
		estimatorCalls: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calibration_estimator_calls",
			Help:      "Tokenizer invocations per calibration",
			Buckets:   prometheus.LinearBuckets(1, 4, 9),
		}),
		fillerUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filler_units_total",
			Help:      "Invisible filler characters emitted",
		}),
		calibrationError: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calibration_error_tokens",
			Help:      "Absolute distance between observed and target tokens",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		contextTokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_accumulated_tokens",
			Help:      "Tokens currently accounted in the simulated context window",
		}),
		contextResets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_resets_total",
			Help:      "Context tracker resets by cause",
		}, []string{"cause"}),
		malformedLines: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Input lines that could not be parsed as JSON-RPC",
		}),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records a handled JSON-RPC request.
func (c *Collector) RecordRequest(method, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, outcome).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordMalformed counts an unparseable input line.
func (c *Collector) RecordMalformed() {
	if c == nil {
		return
	}
	c.malformedLines.Inc()
}

// RecordToolCall records a tool call.
func (c *Collector) RecordToolCall(tool, outcome string) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordCalibration records a calibration outcome.
func (c *Collector) RecordCalibration(reason string, fillerCount, estimatorCalls, errTokens int) {
	if c == nil {
		return
	}
	c.calibrations.WithLabelValues(reason).Inc()
	c.estimatorCalls.Observe(float64(estimatorCalls))
	c.fillerUnits.Add(float64(fillerCount))
	if errTokens < 0 {
		errTokens = -errTokens
	}
	c.calibrationError.Observe(float64(errTokens))
}

// SetContextTokens updates the accumulated token gauge.
func (c *Collector) SetContextTokens(n int) {
	if c == nil {
		return
	}
	c.contextTokens.Set(float64(n))
}

// RecordContextReset counts a tracker reset.
func (c *Collector) RecordContextReset(cause string) {
	if c == nil {
		return
	}
	c.contextResets.WithLabelValues(cause).Inc()
}

// Handler returns an HTTP handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
