package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the file name looked up in the config directory.
const DefaultConfigFile = "config.yaml"

// Loader handles loading configuration from files and the environment.
type Loader struct {
	configDir string
	getenv    func(string) string
}

// NewLoader creates a new configuration loader.
// If configDir is empty, it defaults to ~/.tokenpad.
func NewLoader(configDir string) (*Loader, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".tokenpad")
	}

	return &Loader{configDir: configDir, getenv: os.Getenv}, nil
}

// WithEnv replaces the environment lookup. A nil func disables overrides.
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	l.getenv = getenv
	return l
}

// Load loads configuration from the specified file or default location and
// applies environment overrides. A missing file yields the defaults.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	cfg := NewDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := decodeFile(configPath, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.ApplyEnv(l.getenv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	l.fillPaths(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
// Returns an error if the file doesn't exist. The environment is not consulted.
func (l *Loader) LoadFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	cfg := NewDefaultConfig()
	if err := decodeFile(configPath, cfg); err != nil {
		return nil, err
	}

	l.fillPaths(cfg)
	return cfg, nil
}

// Save writes cfg as YAML or TOML depending on the path extension.
func (l *Loader) Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(configPath) {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(cfg)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	content := "# tokenpad configuration\n#\n" + string(data)

	// Credentials may be stored here.
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigDir returns the configuration directory path.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the default configuration file path.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, DefaultConfigFile)
}

func (l *Loader) fillPaths(cfg *Config) {
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(l.configDir, DefaultCacheFile)
	}
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// IsConfigFile reports whether path has an extension the loader understands.
func IsConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}
