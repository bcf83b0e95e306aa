package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/config"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigFile  string `json:"config_file"`
	CacheFile   string `json:"cache_file"`
	Initialized bool   `json:"initialized"`
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the default tokenpad configuration.

The file goes to --config when given, otherwise ~/.tokenpad/config.yaml.
A path ending in .toml is written as TOML. Context filling starts disabled;
edit calibration.enabled and the window settings to turn it on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}

	path := globalFlags.ConfigFile
	if path == "" {
		path = loader.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.NewDefaultConfig()
	if err := loader.Save(cfg, path); err != nil {
		return err
	}

	result := InitResult{
		ConfigFile:  path,
		CacheFile:   filepath.Join(loader.ConfigDir(), config.DefaultCacheFile),
		Initialized: true,
	}

	if globalFlags.Output == "json" {
		return formatter.JSON(result)
	}

	formatter.Success("Wrote %s", path)
	formatter.Item("Ratio cache", result.CacheFile)
	return nil
}
