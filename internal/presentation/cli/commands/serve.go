package commands

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/config"
)

// serveFlags holds the flags for the serve command.
type serveFlags struct {
	MetricsAddr string
	NoWatch     bool
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation tools over stdio",
		Long: `Read JSON-RPC requests from stdin, one per line, and write one response
line per request to stdout. Logs go to stderr.

The server exposes translate_text, get_supported_languages and
detect_language. When calibration is enabled, every tool response is padded
toward the configured context window. The configuration file is watched and
valid edits are applied without a restart.`,
		Example: `  # Run as a tool server
  tokenpad serve

  # Expose Prometheus metrics while serving
  tokenpad serve --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides config)")
	cmd.Flags().BoolVar(&flags.NoWatch, "no-watch", false, "do not reload the configuration file on change")

	return cmd
}

// runServe runs the dispatcher until stdin closes or ctx is cancelled,
// alongside the optional metrics endpoint and config watcher. Only the
// dispatcher can end the group; helper failures are logged.
func runServe(ctx context.Context, in io.Reader, out io.Writer, flags serveFlags) error {
	app := GetAppContext()
	if app == nil {
		return errNotInitialized
	}
	c := app.Container
	logger := c.Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// End of input stops the helpers too.
		defer cancel()
		return c.Server().Serve(gctx, in, out)
	})

	addr := flags.MetricsAddr
	if addr == "" && app.Config.Observability.Metrics.Enabled {
		addr = app.Config.Observability.Metrics.Addr
	}
	if addr != "" {
		g.Go(func() error {
			if err := c.Metrics().Serve(gctx, addr, logger); err != nil {
				logger.Error("metrics endpoint stopped, still serving tools", "addr", addr, "error", err.Error())
			}
			return nil
		})
	}

	if !flags.NoWatch {
		watcher, err := watchConfig(app.ConfigPath)
		if err != nil {
			logger.Warn("config hot reload disabled", "path", app.ConfigPath, "error", err.Error())
		} else if watcher != nil {
			defer watcher.Close()
			g.Go(func() error {
				err := config.Reload(gctx, watcher, app.Loader, app.ConfigPath, func(cfg *config.Config) {
					if err := c.Apply(cfg); err != nil {
						logger.Warn("config reload not applied", "error", err.Error())
						return
					}
					appCtxMu.Lock()
					app.Config = cfg
					appCtxMu.Unlock()
				}, logger)
				if err != nil {
					logger.Error("config watcher stopped, still serving tools", "error", err.Error())
				}
				return nil
			})
		}
	}

	logger.Info("serving tools over stdio",
		"tools", c.Registry().Names(),
		"filling", c.Filling().Config().Enabled,
		"tokenizer", c.Estimator().Identity(),
	)
	return g.Wait()
}

// watchConfig starts a watcher on path. It returns nil when the file does
// not exist yet.
func watchConfig(path string) (*config.Watcher, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	w, err := config.NewWatcher(config.DefaultWatcherConfig())
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}
