package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/tokenpad/internal/application/ports"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
)

// Glyphs used by Reveal for each filler character.
var revealGlyphs = map[rune]string{
	padding.ZeroWidthSpace:     "·",
	padding.ZeroWidthJoiner:    "+",
	padding.ZeroWidthNonJoiner: "-",
}

// Reveal replaces filler characters with visible glyphs, dimmed when color
// is enabled, so padded text can be inspected.
func (f *Formatter) Reveal(text string) string {
	var sb strings.Builder
	for _, r := range text {
		glyph, ok := revealGlyphs[r]
		if !ok {
			sb.WriteRune(r)
			continue
		}
		sb.WriteString(f.Dim(glyph))
	}
	return sb.String()
}

// CalibrationTable lays out a calibration result as key/value rows.
func CalibrationTable(res padding.Result) TableData {
	within := "no"
	if res.WithinTolerance() {
		within = "yes"
	}
	return keyValueTable([][2]string{
		{"reason", string(res.Reason)},
		{"filler", fmt.Sprintf("%d", res.FillerCount)},
		{"base tokens", fmt.Sprintf("%d", res.BaseTokens)},
		{"target tokens", fmt.Sprintf("%d", res.TargetTokens)},
		{"observed tokens", fmt.Sprintf("%d", res.ObservedTokens)},
		{"error", fmt.Sprintf("%d (tolerance %d, within: %s)", res.Error, res.Tolerance, within)},
		{"upper bound", fmt.Sprintf("%d", res.UpperBound)},
		{"iterations", fmt.Sprintf("%d", res.Iterations)},
		{"estimator calls", fmt.Sprintf("%d", res.EstimatorCalls)},
	})
}

// WindowTable lays out a tracker snapshot.
func WindowTable(st window.State) TableData {
	return keyValueTable([][2]string{
		{"policy", string(st.Policy)},
		{"target window", fmt.Sprintf("%d", st.TargetWindow)},
		{"reserved margin", fmt.Sprintf("%d", st.ReservedMargin)},
		{"reset threshold", fmt.Sprintf("%.2f", st.ResetThresholdRatio)},
		{"accumulated", fmt.Sprintf("%d", st.AccumulatedTokens)},
		{"resets", fmt.Sprintf("%d", st.Resets)},
	})
}

// RatioTable lists learned filler ratios.
func RatioTable(entries []ports.RatioEntry) TableData {
	data := TableData{
		Columns: []TableColumn{
			{Header: "TOKENIZER"},
			{Header: "RATIO", Align: AlignRight},
			{Header: "SAMPLES", Align: AlignRight},
			{Header: "UPDATED"},
		},
	}
	for _, e := range entries {
		data.Rows = append(data.Rows, []string{
			e.Identity,
			fmt.Sprintf("%.4f", e.Ratio),
			fmt.Sprintf("%d", e.Samples),
			e.UpdatedAt.Format(time.RFC3339),
		})
	}
	return data
}

func keyValueTable(rows [][2]string) TableData {
	data := TableData{
		Columns: []TableColumn{{Header: "FIELD"}, {Header: "VALUE"}},
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, []string{r[0], r[1]})
	}
	return data
}
