package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
	"github.com/jbctechsolutions/tokenpad/internal/presentation/cli/output"
)

// NewCacheCmd creates the ratio cache management command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the learned filler ratio cache",
		Long: `Manage the learned tokens-per-filler ratios.

Each successful fill records how many tokens one filler character cost
under the active tokenizer. Later calibrations use the running average to
narrow their search range.`,
	}

	cmd.AddCommand(NewCacheListCmd())
	cmd.AddCommand(NewCacheClearCmd())

	return cmd
}

// ratioCache returns the configured cache or an error when disabled.
func ratioCache() (ports.RatioCache, *output.Formatter, error) {
	container := GetContainer()
	if container == nil {
		return nil, nil, errNotInitialized
	}
	cache := container.RatioCache()
	if cache == nil {
		return nil, GetFormatter(), errors.New("ratio cache is disabled")
	}
	return cache, GetFormatter(), nil
}

// NewCacheListCmd creates the cache list command.
func NewCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned ratios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, formatter, err := ratioCache()
			if err != nil {
				return err
			}

			entries, err := cache.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list ratios: %w", err)
			}

			if formatter.Format() == output.FormatJSON {
				if entries == nil {
					entries = []ports.RatioEntry{}
				}
				return formatter.JSON(entries)
			}
			if len(entries) == 0 {
				formatter.Info("No learned ratios")
				return nil
			}
			return formatter.Table(output.RatioTable(entries))
		},
	}
}

// NewCacheClearCmd creates the cache clear command.
func NewCacheClearCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget all learned ratios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to clear without --yes")
			}

			cache, formatter, err := ratioCache()
			if err != nil {
				return err
			}

			if err := cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear ratios: %w", err)
			}
			formatter.Success("Ratio cache cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "confirm clearing the cache")

	return cmd
}
