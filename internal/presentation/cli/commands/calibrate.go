package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/presentation/cli/output"
)

// calibrateFlags holds the flags for the calibrate command.
type calibrateFlags struct {
	Text   string
	Target int
	Emit   bool
}

// CalibrationReport is the JSON form of a calibrate run.
type CalibrationReport struct {
	Tokenizer string         `json:"tokenizer"`
	Exact     bool           `json:"exact"`
	RatioHint float64        `json:"ratio_hint,omitempty"`
	Result    padding.Result `json:"result"`
	Padded    string         `json:"padded,omitempty"`
}

// NewCalibrateCmd creates the calibrate command.
func NewCalibrateCmd() *cobra.Command {
	var flags calibrateFlags

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Find the filler count that brings text to a token target",
		Long: `Search for the number of invisible filler characters that, scattered
through the text, bring its token count to --target under the configured
tokenizer. The text comes from --text or stdin.

With --emit the padded text is written to stdout instead of the report.`,
		Example: `  # Report the calibration for a 2000-token target
  tokenpad calibrate --target 2000 --text "你好"

  # Pad a file and save the result
  tokenpad calibrate --target 4096 --emit < reply.txt > padded.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Text, "text", "t", "", "text to pad (default: read stdin)")
	cmd.Flags().IntVar(&flags.Target, "target", 0, "target token count")
	cmd.Flags().BoolVar(&flags.Emit, "emit", false, "write the padded text instead of the report")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runCalibrate(cmd *cobra.Command, flags calibrateFlags) error {
	app := GetAppContext()
	if app == nil {
		return errNotInitialized
	}
	if flags.Target <= 0 {
		return errors.New("--target must be positive")
	}

	text, err := inputText(cmd, flags.Text, nil)
	if err != nil {
		return err
	}

	c := app.Container
	est := c.Estimator()
	calibrator := padding.NewCalibrator(est, c.Scatterer(), padding.Options{
		MaxIterations:   app.Config.Calibration.MaxIterations,
		StagnationLimit: padding.DefaultStagnationLimit,
		MinUpperBound:   padding.DefaultMinUpperBound,
	})

	report := CalibrationReport{Tokenizer: est.Identity(), Exact: est.Exact()}

	var opts []padding.CalibrateOption
	if ratios := c.RatioCache(); ratios != nil {
		if e, ok := ratios.Get(cmd.Context(), est.Identity()); ok {
			report.RatioHint = e.Ratio
			opts = append(opts, padding.WithRatioHint(e.Ratio))
		}
	}

	report.Result = calibrator.Calibrate(text, flags.Target, opts...)
	padded := c.Scatterer().Scatter(text, report.Result.FillerCount)

	formatter := app.Formatter
	if flags.Emit {
		_, err := io.WriteString(cmd.OutOrStdout(), padded)
		return err
	}

	if formatter.Format() == output.FormatJSON {
		report.Padded = padded
		return formatter.JSON(report)
	}

	formatter.Header("Calibration")
	formatter.Item("Tokenizer", fmt.Sprintf("%s (exact: %v)", report.Tokenizer, report.Exact))
	if report.RatioHint > 0 {
		formatter.Item("Ratio hint", fmt.Sprintf("%.4f tokens/filler", report.RatioHint))
	}
	formatter.Println("")
	if err := formatter.Table(output.CalibrationTable(report.Result)); err != nil {
		return err
	}
	if !est.Exact() {
		formatter.Warning("token counts are heuristic estimates")
	}
	return nil
}

// inputText returns flagValue, the joined args, or stdin, in that order.
func inputText(cmd *cobra.Command, flagValue string, args []string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		return "", errors.New("no input text")
	}
	return text, nil
}
