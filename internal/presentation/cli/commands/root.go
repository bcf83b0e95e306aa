// Package commands implements the CLI commands for tokenpad.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/tokenpad/internal/application"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/config"
	"github.com/jbctechsolutions/tokenpad/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var errNotInitialized = errors.New("application not initialized")

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config     *config.Config
	ConfigPath string
	Loader     *config.Loader
	Formatter  *output.Formatter
	Flags      *GlobalFlags
	Container  *application.Container
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// NewRootCmd creates the root command for the tokenpad CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tokenpad",
		Short: "Tokenpad - context-calibrated translation tools over stdio",
		Long: `Tokenpad serves translation tools to a model host over JSON-RPC on stdio.

Tool responses can be padded with invisible zero-width characters so that
each call consumes a calibrated share of the model's context window, or
lightly scattered with filler to interfere with naive text matching.

Key features:
  • Binary-search calibration against a real tokenizer (Qwen, tiktoken)
  • Per-call or cumulative context window accounting
  • Learned filler ratios persisted in SQLite
  • Dictionary translation with an optional Baidu backend`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip initialization for help, version, init, and completion commands
			switch cmd.Name() {
			case "help", "version", "completion", "init":
				return nil
			}
			return initializeApp(cmd.OutOrStdout())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.tokenpad/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, table, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCalibrateCmd())
	rootCmd.AddCommand(NewInspectCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewProbeCmd())
	rootCmd.AddCommand(NewCacheCmd())

	return rootCmd
}

// newFormatter builds a formatter for the global output flag.
func newFormatter(w io.Writer) (*output.Formatter, error) {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(
		output.WithWriter(w),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.ColorEnabledFor(w)),
	), nil
}

// initializeApp loads the configuration and builds the container.
func initializeApp(w io.Writer) error {
	formatter, err := newFormatter(w)
	if err != nil {
		return err
	}

	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}

	configPath := globalFlags.ConfigFile
	if configPath == "" {
		configPath = loader.DefaultConfigPath()
	}

	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	container, err := application.NewContainer(cfg, globalFlags.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	appCtxMu.Lock()
	prev := appCtx
	appCtx = &AppContext{
		Config:     cfg,
		ConfigPath: configPath,
		Loader:     loader,
		Formatter:  formatter,
		Flags:      &globalFlags,
		Container:  container,
	}
	appCtxMu.Unlock()

	if prev != nil && prev.Container != nil {
		_ = prev.Container.Close()
	}
	return nil
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter()
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// Shutdown releases the container and forgets the application context.
func Shutdown() {
	appCtxMu.Lock()
	ctx := appCtx
	appCtx = nil
	appCtxMu.Unlock()

	if ctx != nil && ctx.Container != nil {
		if err := ctx.Container.Close(); err != nil {
			ctx.Container.Logger().Warn("shutdown incomplete", "error", err.Error())
		}
	}
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so serve can drain and exit cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	Shutdown()

	if err != nil {
		// stdout may be carrying protocol frames.
		formatter := output.NewFormatter(output.WithWriter(os.Stderr), output.WithColor(output.ColorEnabledFor(os.Stderr)))
		formatter.Error("%s", err.Error())
		os.Exit(1)
	}
}
