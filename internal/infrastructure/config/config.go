// Package config provides configuration structs and utilities for tokenpad.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents the root configuration for tokenpad.
type Config struct {
	Calibration   CalibrationConfig   `yaml:"calibration" toml:"calibration"`
	Interference  InterferenceConfig  `yaml:"interference" toml:"interference"`
	Translation   TranslationConfig   `yaml:"translation" toml:"translation"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Cache         CacheConfig         `yaml:"cache" toml:"cache"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

// CalibrationConfig controls context filling.
type CalibrationConfig struct {
	Enabled        bool    `yaml:"enabled" toml:"enabled"`
	TargetWindow   int     `yaml:"target_window" toml:"target_window"`
	FillRatio      float64 `yaml:"fill_ratio" toml:"fill_ratio"`           // share of the headroom to fill, 0..1
	ReservedMargin int     `yaml:"reserved_margin" toml:"reserved_margin"` // tokens kept free
	Method         string  `yaml:"method" toml:"method"`                   // qwen, openai, heuristic
	QwenModelPath  string  `yaml:"qwen_model_path" toml:"qwen_model_path"`
	Encoding       string  `yaml:"encoding" toml:"encoding"` // tiktoken encoding
	RequireExact   bool    `yaml:"require_exact" toml:"require_exact"`
	ResetPolicy    string  `yaml:"reset_policy" toml:"reset_policy"` // per_call, cumulative
	ResetThreshold float64 `yaml:"reset_threshold" toml:"reset_threshold"`
	MaxIterations  int     `yaml:"max_iterations" toml:"max_iterations"`
	Seed           uint64  `yaml:"seed" toml:"seed"` // 0 means random
}

// InterferenceConfig controls the legacy fixed-density filler mode.
type InterferenceConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Level   string `yaml:"level" toml:"level"`   // light, medium, heavy
	Target  string `yaml:"target" toml:"target"` // translation, all
}

// TranslationConfig holds translation backend settings.
type TranslationConfig struct {
	Baidu BaiduConfig `yaml:"baidu" toml:"baidu"`
}

// BaiduConfig holds Baidu Translate API credentials and limits.
type BaiduConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	AppID     string        `yaml:"app_id" toml:"app_id"`
	SecretKey string        `yaml:"secret_key" toml:"secret_key"`
	URL       string        `yaml:"url" toml:"url"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	RateLimit float64       `yaml:"rate_limit" toml:"rate_limit"` // requests per second
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, text
}

// CacheConfig holds configuration for the learned ratio cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Backend string `yaml:"backend" toml:"backend"` // memory, sqlite
	Path    string `yaml:"path" toml:"path"`       // SQLite database file
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"` // empty keeps metrics in-process only
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	ExporterType string  `yaml:"exporter_type" toml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" toml:"sample_rate"`
	ServiceName  string  `yaml:"service_name" toml:"service_name"`
}

// Default configuration values.
const (
	DefaultTargetWindow   = 32768
	DefaultFillRatio      = 0.95
	DefaultReservedMargin = 100
	DefaultMethod         = "qwen"
	DefaultQwenModelPath  = "/home/ubuntu/model/Qwen3/Qwen3-1.7B"
	DefaultEncoding       = "cl100k_base"
	DefaultResetPolicy    = "per_call"
	DefaultResetThreshold = 0.8
	DefaultMaxIterations  = 30

	DefaultInterferenceLevel  = "medium"
	DefaultInterferenceTarget = "translation"

	DefaultBaiduURL       = "https://fanyi-api.baidu.com/api/trans/vip/translate"
	DefaultBaiduTimeout   = 10 * time.Second
	DefaultBaiduRateLimit = 1.0

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultCacheEnabled = true
	DefaultCacheBackend = "sqlite"
	DefaultCacheFile    = "ratios.db"

	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "tokenpad"
)

var validMethods = map[string]bool{
	"qwen":      true,
	"openai":    true,
	"heuristic": true,
}

var validResetPolicies = map[string]bool{
	"per_call":   true,
	"cumulative": true,
}

var validInterferenceLevels = map[string]bool{
	"light":  true,
	"medium": true,
	"heavy":  true,
}

var validInterferenceTargets = map[string]bool{
	"translation": true,
	"all":         true,
}

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

var validCacheBackends = map[string]bool{
	"memory": true,
	"sqlite": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
// Context filling starts disabled.
func NewDefaultConfig() *Config {
	return &Config{
		Calibration: CalibrationConfig{
			Enabled:        false,
			TargetWindow:   DefaultTargetWindow,
			FillRatio:      DefaultFillRatio,
			ReservedMargin: DefaultReservedMargin,
			Method:         DefaultMethod,
			QwenModelPath:  DefaultQwenModelPath,
			Encoding:       DefaultEncoding,
			RequireExact:   true,
			ResetPolicy:    DefaultResetPolicy,
			ResetThreshold: DefaultResetThreshold,
			MaxIterations:  DefaultMaxIterations,
		},
		Interference: InterferenceConfig{
			Enabled: false,
			Level:   DefaultInterferenceLevel,
			Target:  DefaultInterferenceTarget,
		},
		Translation: TranslationConfig{
			Baidu: BaiduConfig{
				Enabled:   false,
				URL:       DefaultBaiduURL,
				Timeout:   DefaultBaiduTimeout,
				RateLimit: DefaultBaiduRateLimit,
			},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Cache: CacheConfig{
			Enabled: DefaultCacheEnabled,
			Backend: DefaultCacheBackend,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      false,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Calibration.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calibration: %w", err))
	}

	if err := c.Interference.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("interference: %w", err))
	}

	if err := c.Translation.Baidu.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("translation.baidu: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks if the CalibrationConfig is valid.
func (c *CalibrationConfig) Validate() error {
	var errs []error

	if c.TargetWindow <= 0 {
		errs = append(errs, errors.New("target_window must be positive"))
	}
	if c.FillRatio < 0 || c.FillRatio > 1 {
		errs = append(errs, errors.New("fill_ratio must be between 0.0 and 1.0"))
	}
	if c.ReservedMargin < 0 {
		errs = append(errs, errors.New("reserved_margin must be non-negative"))
	}
	if c.Method != "" && !validMethods[c.Method] {
		errs = append(errs, fmt.Errorf("invalid method %q: must be one of qwen, openai, heuristic", c.Method))
	}
	if c.ResetPolicy != "" && !validResetPolicies[c.ResetPolicy] {
		errs = append(errs, fmt.Errorf("invalid reset_policy %q: must be one of per_call, cumulative", c.ResetPolicy))
	}
	if c.ResetThreshold <= 0 || c.ResetThreshold > 1 {
		errs = append(errs, errors.New("reset_threshold must be in (0.0, 1.0]"))
	}
	if c.MaxIterations < 0 {
		errs = append(errs, errors.New("max_iterations must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the InterferenceConfig is valid.
func (i *InterferenceConfig) Validate() error {
	var errs []error

	if i.Level != "" && !validInterferenceLevels[i.Level] {
		errs = append(errs, fmt.Errorf("invalid level %q: must be one of light, medium, heavy", i.Level))
	}
	if i.Target != "" && !validInterferenceTargets[i.Target] {
		errs = append(errs, fmt.Errorf("invalid target %q: must be one of translation, all", i.Target))
	}

	return errors.Join(errs...)
}

// Validate checks if the BaiduConfig is valid.
func (b *BaiduConfig) Validate() error {
	var errs []error

	if b.Enabled {
		if b.AppID == "" {
			errs = append(errs, errors.New("app_id is required when enabled"))
		}
		if b.SecretKey == "" {
			errs = append(errs, errors.New("secret_key is required when enabled"))
		}
	}

	if b.URL != "" {
		parsedURL, err := url.Parse(b.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid url: %w", err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errs = append(errs, errors.New("url must use http or https scheme"))
		}
	}

	if b.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	if b.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	return errors.Join(errs...)
}

// Validate checks if the CacheConfig is valid.
func (c *CacheConfig) Validate() error {
	if c.Enabled && c.Backend != "" && !validCacheBackends[c.Backend] {
		return fmt.Errorf("invalid backend %q: must be one of memory, sqlite", c.Backend)
	}
	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	var errs []error

	if err := o.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	return errors.Join(errs...)
}
