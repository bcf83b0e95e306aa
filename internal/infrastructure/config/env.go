package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Environment variable names recognized as overrides.
const (
	EnvFillingEnabled     = "CONTEXT_FILLING_ENABLED"
	EnvWindowTarget       = "CONTEXT_WINDOW_TARGET"
	EnvFillingRatio       = "CONTEXT_FILLING_RATIO"
	EnvSafetyMargin       = "SAFETY_MARGIN_TOKENS"
	EnvEstimationMethod   = "TOKEN_ESTIMATION_METHOD"
	EnvQwenModelPath      = "QWEN_MODEL_PATH"
	EnvInterference       = "INTERFERENCE_ENABLED"
	EnvInterferenceLevel  = "INTERFERENCE_LEVEL"
	EnvInterferenceTarget = "INTERFERENCE_TARGET"
	EnvBaiduEnabled       = "BAIDU_TRANSLATE_ENABLED"
	EnvBaiduAppID         = "BAIDU_TRANSLATE_APP_ID"
	EnvBaiduSecretKey     = "BAIDU_TRANSLATE_SECRET_KEY"
	EnvResetPolicy        = "TOKENPAD_RESET_POLICY"
	EnvSeed               = "TOKENPAD_SEED"
	EnvLogLevel           = "TOKENPAD_LOG_LEVEL"
)

// ApplyEnv overrides fields from environment variables read through getenv.
// Unset or empty variables leave the field alone. Malformed values are
// collected and returned together; the remaining overrides still apply.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	lower := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = strings.ToLower(v)
		}
	}
	boolean := func(name string, dst *bool) {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid boolean %q", name, v))
			return
		}
		*dst = b
	}
	integer := func(name string, dst *int) {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", name, v))
			return
		}
		*dst = n
	}
	float := func(name string, dst *float64) {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid number %q", name, v))
			return
		}
		*dst = f
	}

	boolean(EnvFillingEnabled, &c.Calibration.Enabled)
	integer(EnvWindowTarget, &c.Calibration.TargetWindow)
	float(EnvFillingRatio, &c.Calibration.FillRatio)
	integer(EnvSafetyMargin, &c.Calibration.ReservedMargin)
	lower(EnvEstimationMethod, &c.Calibration.Method)
	str(EnvQwenModelPath, &c.Calibration.QwenModelPath)
	lower(EnvResetPolicy, &c.Calibration.ResetPolicy)

	if v := strings.TrimSpace(getenv(EnvSeed)); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid seed %q", EnvSeed, v))
		} else {
			c.Calibration.Seed = seed
		}
	}

	boolean(EnvInterference, &c.Interference.Enabled)
	lower(EnvInterferenceLevel, &c.Interference.Level)
	lower(EnvInterferenceTarget, &c.Interference.Target)

	boolean(EnvBaiduEnabled, &c.Translation.Baidu.Enabled)
	str(EnvBaiduAppID, &c.Translation.Baidu.AppID)
	str(EnvBaiduSecretKey, &c.Translation.Baidu.SecretKey)

	lower(EnvLogLevel, &c.Logging.Level)

	return errors.Join(errs...)
}
