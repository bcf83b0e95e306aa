package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
	"github.com/jbctechsolutions/tokenpad/internal/presentation/cli/output"
)

// TokenizerStatus describes the selected tokenizer.
type TokenizerStatus struct {
	Requested string   `json:"requested"`
	Identity  string   `json:"identity"`
	Exact     bool     `json:"exact"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// SystemStatus is the effective runtime configuration.
type SystemStatus struct {
	Version      string          `json:"version"`
	ConfigPath   string          `json:"config_path"`
	Tokenizer    TokenizerStatus `json:"tokenizer"`
	Filling      bool            `json:"filling"`
	FillRatio    float64         `json:"fill_ratio"`
	RequireExact bool            `json:"require_exact"`
	Window       window.State    `json:"window"`
	Interference string          `json:"interference"`
	Cache        string          `json:"cache"`
	Baidu        bool            `json:"baidu"`
	Tools        []string        `json:"tools"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration and tokenizer",
		Long: `Display the tokenizer that was selected (and any fallbacks taken), the
context window settings, interference, the ratio cache backend and the
registered tools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func collectStatus(app *AppContext) SystemStatus {
	c := app.Container
	cfg := c.Config()
	sel := c.Selection()

	interference := "off"
	if cfg.Interference.Enabled {
		interference = fmt.Sprintf("%s (%s)", cfg.Interference.Level, cfg.Interference.Target)
	}

	cache := "disabled"
	if c.RatioCache() != nil {
		cache = cfg.Cache.Backend
		if cfg.Cache.Backend == "sqlite" {
			cache += " " + cfg.Cache.Path
		}
	}

	return SystemStatus{
		Version:    Version,
		ConfigPath: app.ConfigPath,
		Tokenizer: TokenizerStatus{
			Requested: sel.Requested,
			Identity:  c.Estimator().Identity(),
			Exact:     c.Estimator().Exact(),
			Fallbacks: sel.Fallbacks,
		},
		Filling:      cfg.Calibration.Enabled,
		FillRatio:    cfg.Calibration.FillRatio,
		RequireExact: cfg.Calibration.RequireExact,
		Window:       c.Tracker().Snapshot(),
		Interference: interference,
		Cache:        cache,
		Baidu:        cfg.Translation.Baidu.Enabled,
		Tools:        c.Registry().Names(),
	}
}

func runStatus() error {
	app := GetAppContext()
	if app == nil {
		return errNotInitialized
	}
	formatter := app.Formatter
	st := collectStatus(app)

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(st)
	}

	formatter.Header("Tokenpad Status")
	formatter.Item("Config", st.ConfigPath)
	formatter.Item("Tokenizer", fmt.Sprintf("%s (exact: %v)", st.Tokenizer.Identity, st.Tokenizer.Exact))
	if len(st.Tokenizer.Fallbacks) > 0 {
		formatter.Warning("requested %s, fell back past: %s", st.Tokenizer.Requested, strings.Join(st.Tokenizer.Fallbacks, ", "))
	}
	formatter.Item("Filling", fmt.Sprintf("%v (ratio %.2f, require exact: %v)", st.Filling, st.FillRatio, st.RequireExact))
	formatter.Item("Interference", st.Interference)
	formatter.Item("Ratio cache", st.Cache)
	formatter.Item("Baidu", fmt.Sprintf("%v", st.Baidu))
	formatter.Item("Tools", strings.Join(st.Tools, ", "))

	formatter.Println("")
	formatter.SubHeader("Context window")
	return formatter.Table(output.WindowTable(st.Window))
}
