package commands

import (
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/presentation/cli/output"
)

// inspectFlags holds the flags for the inspect command.
type inspectFlags struct {
	Strip  bool
	Reveal bool
}

// InspectReport describes filler found in a piece of text.
type InspectReport struct {
	Tokenizer      string `json:"tokenizer"`
	Runes          int    `json:"runes"`
	Filler         int    `json:"filler"`
	Tokens         int    `json:"tokens"`
	StrippedTokens int    `json:"stripped_tokens"`
	FillerTokens   int    `json:"filler_tokens"`
	EndMarker      bool   `json:"end_marker"`
}

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var flags inspectFlags

	cmd := &cobra.Command{
		Use:   "inspect [text]",
		Short: "Count or remove filler in a tool response",
		Long: `Report how much invisible filler a text carries and how many tokens it
costs under the configured tokenizer. The text comes from the arguments or
stdin.

--strip writes the text with all filler removed; --reveal writes it with
filler shown as visible glyphs.`,
		Example: `  # Inspect a captured response
  tokenpad inspect < response.txt

  # Remove filler
  tokenpad inspect --strip < response.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.Strip, "strip", false, "write the text without filler")
	cmd.Flags().BoolVar(&flags.Reveal, "reveal", false, "write the text with filler made visible")
	cmd.MarkFlagsMutuallyExclusive("strip", "reveal")

	return cmd
}

func runInspect(cmd *cobra.Command, args []string, flags inspectFlags) error {
	app := GetAppContext()
	if app == nil {
		return errNotInitialized
	}

	text, err := inputText(cmd, "", args)
	if err != nil {
		return err
	}

	formatter := app.Formatter
	switch {
	case flags.Strip:
		_, err := io.WriteString(cmd.OutOrStdout(), padding.StripFiller(text)+"\n")
		return err
	case flags.Reveal:
		formatter.Println("%s", formatter.Reveal(text))
		return nil
	}

	est := app.Container.Estimator()
	stripped := padding.StripFiller(text)
	report := InspectReport{
		Tokenizer:      est.Identity(),
		Runes:          utf8.RuneCountInString(text),
		Filler:         padding.CountFiller(text),
		Tokens:         est.CountTokens(text),
		StrippedTokens: est.CountTokens(stripped),
		EndMarker:      strings.HasSuffix(strings.TrimRight(stripped, "\r\n"), padding.ResponseEndMarker),
	}
	report.FillerTokens = report.Tokens - report.StrippedTokens

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(report)
	}

	formatter.Header("Inspection")
	formatter.Item("Tokenizer", report.Tokenizer)
	formatter.Item("Runes", strconv.Itoa(report.Runes))
	formatter.Item("Filler", strconv.Itoa(report.Filler))
	formatter.Item("Tokens", strconv.Itoa(report.Tokens))
	formatter.Item("Without filler", strconv.Itoa(report.StrippedTokens))
	formatter.Item("Filler tokens", strconv.Itoa(report.FillerTokens))
	if report.EndMarker {
		formatter.Item("End marker", "present")
	} else {
		formatter.Item("End marker", "missing")
	}
	return nil
}
