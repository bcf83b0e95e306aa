package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg == nil {
		t.Fatal("NewDefaultConfig returned nil")
	}

	c := cfg.Calibration
	if c.Enabled {
		t.Error("expected context filling to be disabled by default")
	}
	if c.TargetWindow != DefaultTargetWindow {
		t.Errorf("expected target window %d, got %d", DefaultTargetWindow, c.TargetWindow)
	}
	if c.FillRatio != DefaultFillRatio {
		t.Errorf("expected fill ratio %v, got %v", DefaultFillRatio, c.FillRatio)
	}
	if c.ReservedMargin != DefaultReservedMargin {
		t.Errorf("expected reserved margin %d, got %d", DefaultReservedMargin, c.ReservedMargin)
	}
	if c.Method != "qwen" {
		t.Errorf("expected method qwen, got %q", c.Method)
	}
	if !c.RequireExact {
		t.Error("expected require_exact to default to true")
	}
	if c.ResetPolicy != "per_call" {
		t.Errorf("expected reset policy per_call, got %q", c.ResetPolicy)
	}

	if cfg.Interference.Enabled {
		t.Error("expected interference to be disabled by default")
	}
	if cfg.Interference.Level != "medium" || cfg.Interference.Target != "translation" {
		t.Errorf("unexpected interference defaults %+v", cfg.Interference)
	}

	if cfg.Translation.Baidu.Enabled {
		t.Error("expected baidu to be disabled by default")
	}
	if cfg.Translation.Baidu.URL != DefaultBaiduURL {
		t.Errorf("expected baidu url %q, got %q", DefaultBaiduURL, cfg.Translation.Baidu.URL)
	}

	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("expected log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("expected log format %q, got %q", DefaultLogFormat, cfg.Logging.Format)
	}
}

func TestConfig_Validate_DefaultIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestCalibrationConfig_Validate(t *testing.T) {
	valid := NewDefaultConfig().Calibration

	tests := []struct {
		name    string
		mutate  func(c *CalibrationConfig)
		wantErr string
	}{
		{"defaults", func(c *CalibrationConfig) {}, ""},
		{"zero window", func(c *CalibrationConfig) { c.TargetWindow = 0 }, "target_window"},
		{"ratio above one", func(c *CalibrationConfig) { c.FillRatio = 1.5 }, "fill_ratio"},
		{"negative ratio", func(c *CalibrationConfig) { c.FillRatio = -0.1 }, "fill_ratio"},
		{"ratio of one", func(c *CalibrationConfig) { c.FillRatio = 1 }, ""},
		{"negative margin", func(c *CalibrationConfig) { c.ReservedMargin = -1 }, "reserved_margin"},
		{"unknown method", func(c *CalibrationConfig) { c.Method = "bert" }, "invalid method"},
		{"unknown policy", func(c *CalibrationConfig) { c.ResetPolicy = "never" }, "reset_policy"},
		{"zero threshold", func(c *CalibrationConfig) { c.ResetThreshold = 0 }, "reset_threshold"},
		{"negative iterations", func(c *CalibrationConfig) { c.MaxIterations = -1 }, "max_iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, expected to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_AggregatesErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Calibration.TargetWindow = -1
	cfg.Logging.Level = "loud"
	cfg.Interference.Level = "extreme"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"calibration:", "logging:", "interference:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{"valid debug level", LoggingConfig{Level: "debug", Format: "json"}, false},
		{"valid error level", LoggingConfig{Level: "error", Format: "text"}, false},
		{"invalid log level", LoggingConfig{Level: "invalid", Format: "json"}, true},
		{"invalid log format", LoggingConfig{Level: "info", Format: "invalid"}, true},
		{"empty values are valid", LoggingConfig{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaiduConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  BaiduConfig
		wantErr bool
	}{
		{"disabled without credentials", BaiduConfig{URL: DefaultBaiduURL}, false},
		{"enabled with credentials", BaiduConfig{Enabled: true, AppID: "id", SecretKey: "k", URL: DefaultBaiduURL}, false},
		{"enabled without app id", BaiduConfig{Enabled: true, SecretKey: "k"}, true},
		{"enabled without secret", BaiduConfig{Enabled: true, AppID: "id"}, true},
		{"bad scheme", BaiduConfig{URL: "ftp://example.com"}, true},
		{"negative timeout", BaiduConfig{Timeout: -time.Second}, true},
		{"negative rate", BaiduConfig{RateLimit: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInterferenceAndCacheConfig_Validate(t *testing.T) {
	if err := (&InterferenceConfig{Level: "heavy", Target: "all"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&InterferenceConfig{Target: "everything"}).Validate(); err == nil {
		t.Error("expected error for unknown target")
	}
	if err := (&CacheConfig{Enabled: true, Backend: "redis"}).Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}
	if err := (&CacheConfig{Enabled: false, Backend: "redis"}).Validate(); err != nil {
		t.Errorf("disabled cache should not validate backend: %v", err)
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
	}{
		{"disabled config is always valid", TracingConfig{Enabled: false, ExporterType: "invalid"}, false},
		{"valid stdout exporter", TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 1, ServiceName: "tokenpad"}, false},
		{"otlp requires endpoint", TracingConfig{Enabled: true, ExporterType: "otlp", SampleRate: 1, ServiceName: "tokenpad"}, true},
		{"invalid exporter", TracingConfig{Enabled: true, ExporterType: "zipkin", SampleRate: 1, ServiceName: "tokenpad"}, true},
		{"sample rate out of range", TracingConfig{Enabled: true, ExporterType: "none", SampleRate: 2, ServiceName: "tokenpad"}, true},
		{"service name required", TracingConfig{Enabled: true, ExporterType: "none", SampleRate: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
