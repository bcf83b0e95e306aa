package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/testutil"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoader_LoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	loader, err := NewLoader(dir)
	testutil.AssertNoError(t, err)
	loader.WithEnv(nil)

	cfg, err := loader.Load("")
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, cfg.Calibration.TargetWindow, DefaultTargetWindow)
	testutil.AssertEqual(t, cfg.Cache.Path, filepath.Join(dir, DefaultCacheFile))
	testutil.AssertEqual(t, loader.DefaultConfigPath(), filepath.Join(dir, "config.yaml"))
}

func TestLoader_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "config.yaml", `
calibration:
  enabled: true
  target_window: 8192
  fill_ratio: 0.5
  method: openai
  seed: 42
translation:
  baidu:
    timeout: 3s
logging:
  level: debug
`)

	loader, _ := NewLoader(dir)
	cfg, err := loader.WithEnv(nil).Load(path)
	testutil.AssertNoError(t, err)

	testutil.AssertTrue(t, cfg.Calibration.Enabled, "calibration should be enabled")
	testutil.AssertEqual(t, cfg.Calibration.TargetWindow, 8192)
	testutil.AssertEqual(t, cfg.Calibration.FillRatio, 0.5)
	testutil.AssertEqual(t, cfg.Calibration.Method, "openai")
	testutil.AssertEqual(t, cfg.Calibration.Seed, uint64(42))
	testutil.AssertEqual(t, cfg.Translation.Baidu.Timeout, 3*time.Second)
	testutil.AssertEqual(t, cfg.Logging.Level, "debug")
	// Unset fields keep their defaults.
	testutil.AssertEqual(t, cfg.Calibration.ReservedMargin, DefaultReservedMargin)
}

func TestLoader_LoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "config.toml", `
[calibration]
enabled = true
target_window = 4096
reset_policy = "cumulative"

[interference]
level = "heavy"
`)

	loader, _ := NewLoader(dir)
	cfg, err := loader.WithEnv(nil).Load(path)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, cfg.Calibration.TargetWindow, 4096)
	testutil.AssertEqual(t, cfg.Calibration.ResetPolicy, "cumulative")
	testutil.AssertEqual(t, cfg.Interference.Level, "heavy")
}

func TestLoader_LoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "config.yaml", "calibration: [unclosed")

	loader, _ := NewLoader(dir)
	if _, err := loader.WithEnv(nil).Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "config.yaml", "calibration:\n  target_window: 1000\n")

	loader, _ := NewLoader(dir)
	loader.WithEnv(envMap(map[string]string{
		EnvFillingEnabled:    "TRUE",
		EnvWindowTarget:      "65536",
		EnvFillingRatio:      "0.5",
		EnvSafetyMargin:      "50",
		EnvEstimationMethod:  "OpenAI",
		EnvQwenModelPath:     "/models/qwen",
		EnvInterference:      "true",
		EnvInterferenceLevel: "light",
		EnvBaiduAppID:        "app",
		EnvResetPolicy:       "cumulative",
		EnvSeed:              "7",
	}))

	cfg, err := loader.Load(path)
	testutil.AssertNoError(t, err)

	c := cfg.Calibration
	testutil.AssertTrue(t, c.Enabled, "enabled from env")
	testutil.AssertEqual(t, c.TargetWindow, 65536)
	testutil.AssertEqual(t, c.FillRatio, 0.5)
	testutil.AssertEqual(t, c.ReservedMargin, 50)
	testutil.AssertEqual(t, c.Method, "openai")
	testutil.AssertEqual(t, c.QwenModelPath, "/models/qwen")
	testutil.AssertEqual(t, c.ResetPolicy, "cumulative")
	testutil.AssertEqual(t, c.Seed, uint64(7))
	testutil.AssertTrue(t, cfg.Interference.Enabled, "interference from env")
	testutil.AssertEqual(t, cfg.Interference.Level, "light")
	testutil.AssertEqual(t, cfg.Translation.Baidu.AppID, "app")
}

func TestConfig_ApplyEnvErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvWindowTarget:   "big",
		EnvFillingEnabled: "maybe",
		EnvSafetyMargin:   "25",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), EnvWindowTarget) || !strings.Contains(err.Error(), EnvFillingEnabled) {
		t.Errorf("error %q should name both variables", err)
	}
	// Valid overrides still apply.
	testutil.AssertEqual(t, cfg.Calibration.ReservedMargin, 25)
	testutil.AssertEqual(t, cfg.Calibration.TargetWindow, DefaultTargetWindow)
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			loader, _ := NewLoader(dir)
			loader.WithEnv(nil)

			cfg := NewDefaultConfig()
			cfg.Calibration.TargetWindow = 2048
			cfg.Interference.Target = "all"

			path := filepath.Join(dir, "nested", name)
			testutil.AssertNoError(t, loader.Save(cfg, path))

			info, err := os.Stat(path)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, info.Mode().Perm(), os.FileMode(0600))

			got, err := loader.LoadFromFile(path)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got.Calibration.TargetWindow, 2048)
			testutil.AssertEqual(t, got.Interference.Target, "all")
		})
	}
}

func TestLoader_LoadFromFileMissing(t *testing.T) {
	loader, _ := NewLoader(t.TempDir())
	if _, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIsConfigFile(t *testing.T) {
	tests := map[string]bool{
		"a.yaml": true,
		"a.YML":  true,
		"a.toml": true,
		"a.json": false,
		"a":      false,
	}
	for path, want := range tests {
		if got := IsConfigFile(path); got != want {
			t.Errorf("IsConfigFile(%q) = %v, expected %v", path, got, want)
		}
	}
}
