package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jbctechsolutions/tokenpad/internal/adapters/cache"
	adapterMCP "github.com/jbctechsolutions/tokenpad/internal/adapters/mcp"
	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/domain/tokens"
	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/config"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/testutil"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/tokenizer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Cache.Path = filepath.Join(t.TempDir(), "ratios.db")
	cfg.Calibration.Seed = 42
	return cfg
}

func newTestContainer(t *testing.T, cfg *config.Config, opts ...ContainerOption) *Container {
	t.Helper()
	opts = append([]ContainerOption{
		WithEstimator(testutil.NewRuneEstimator(1)),
		WithLogOutput(io.Discard),
	}, opts...)

	c, err := NewContainer(cfg, false, opts...)
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer(t *testing.T) {
	c := newTestContainer(t, testConfig(t))

	if c.Config() == nil {
		t.Error("Config should not be nil")
	}
	if c.Logger() == nil || c.Tracer() == nil || c.Metrics() == nil {
		t.Error("observability should be initialized")
	}
	if c.Filling() == nil || c.Translation() == nil {
		t.Error("services should be initialized")
	}
	if c.Tracker() == nil || c.Scatterer() == nil {
		t.Error("padding engine should be initialized")
	}
	if c.Server() == nil {
		t.Error("Server should not be nil")
	}
	if got := c.Registry().Len(); got != 3 {
		t.Errorf("Registry().Len() = %d, expected 3", got)
	}
	if _, ok := c.RatioCache().(*cache.SQLiteRatioCache); !ok {
		t.Errorf("RatioCache() = %T, expected *cache.SQLiteRatioCache", c.RatioCache())
	}
	if c.Estimator().Identity() != "fake:runes" {
		t.Errorf("Estimator() = %q", c.Estimator().Identity())
	}
	if c.Filling().Config().Enabled {
		t.Error("filling should start disabled")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Calibration.FillRatio = 2

	if _, err := NewContainer(cfg, false, WithLogOutput(io.Discard)); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestNewContainer_CacheBackends(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantNil bool
		want    string
	}{
		{"disabled", func(c *config.Config) { c.Cache.Enabled = false }, true, ""},
		{"memory", func(c *config.Config) { c.Cache.Backend = "memory" }, false, "*cache.MemoryRatioCache"},
		{"sqlite without path degrades", func(c *config.Config) { c.Cache.Path = "" }, false, "*cache.MemoryRatioCache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			c := newTestContainer(t, cfg)

			if tt.wantNil {
				if c.RatioCache() != nil {
					t.Errorf("RatioCache() = %T, expected nil", c.RatioCache())
				}
				return
			}
			if _, ok := c.RatioCache().(*cache.MemoryRatioCache); !ok {
				t.Errorf("RatioCache() = %T, expected %s", c.RatioCache(), tt.want)
			}
		})
	}
}

func TestNewContainer_TokenizerFallback(t *testing.T) {
	fail := errors.New("unavailable")
	loaders := tokenizer.Loaders{
		HuggingFace: func(string, *logging.Logger) (tokens.Estimator, error) { return nil, fail },
		Tiktoken:    func(string, *logging.Logger) (tokens.Estimator, error) { return nil, fail },
	}

	c, err := NewContainer(testConfig(t), false, WithLogOutput(io.Discard), WithTokenizerLoaders(loaders))
	if err != nil {
		t.Fatalf("NewContainer failed: %v", err)
	}
	defer c.Close()

	sel := c.Selection()
	if !sel.Degraded() || sel.Exact() {
		t.Errorf("Selection() = %+v, expected degraded heuristic", sel)
	}
	if got := tokens.KindOf(c.Estimator()); got != tokens.KindQwen {
		t.Errorf("heuristic kind = %q, expected qwen ratio", got)
	}
}

func TestContainer_Apply(t *testing.T) {
	c := newTestContainer(t, testConfig(t))

	next := testConfig(t)
	next.Calibration.Enabled = true
	next.Calibration.TargetWindow = 2048
	next.Calibration.ResetPolicy = "cumulative"
	next.Interference.Enabled = true

	if err := c.Apply(next); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if !c.Filling().Config().Enabled {
		t.Error("filling should be enabled after Apply")
	}
	st := c.Tracker().Snapshot()
	if st.TargetWindow != 2048 || st.Policy != window.PolicyCumulative {
		t.Errorf("tracker state = %+v", st)
	}
	if c.Config() != next {
		t.Error("Config() should return the applied config")
	}

	bad := testConfig(t)
	bad.Calibration.TargetWindow = 0
	if err := c.Apply(bad); err == nil {
		t.Error("Apply() should reject an invalid config")
	}
	if c.Config() != next {
		t.Error("a rejected config must not replace the active one")
	}
}

func TestContainer_ServesPaddedTools(t *testing.T) {
	cfg := testConfig(t)
	cfg.Calibration.Enabled = true
	cfg.Calibration.TargetWindow = 600
	cfg.Calibration.ReservedMargin = 50
	c := newTestContainer(t, cfg)

	line, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  domainMCP.MethodToolsCall,
		"params": map[string]any{
			"name":      adapterMCP.ToolTranslateText,
			"arguments": map[string]any{"text": "hello", "source_language": "en", "target_language": "zh"},
		},
	})

	resp, ok := c.Server().HandleLine(context.Background(), line)
	if !ok || resp.Error != nil {
		t.Fatalf("HandleLine() = %+v, %v", resp, ok)
	}

	var result domainMCP.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	text := result.TextContent()
	if padding.CountFiller(text) == 0 {
		t.Error("expected filler in the response")
	}
	if !strings.Contains(padding.StripFiller(text), "你好") {
		t.Errorf("stripped text = %q", padding.StripFiller(text))
	}

	entries, err := c.RatioCache().List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Identity != "fake:runes" {
		t.Errorf("learned ratios = %+v", entries)
	}
}
