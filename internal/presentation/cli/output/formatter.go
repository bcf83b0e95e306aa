// Package output renders tokenpad reports for the terminal. Text, table and
// JSON formats are supported; invisible filler can be revealed as glyphs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
)

// Format is a report layout selected with --output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatText  Format = "text"
)

// ParseFormat parses an --output value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatTable, FormatJSON, FormatText:
		return f, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", s)
	}
}

// Style is an ANSI escape sequence.
type Style string

const (
	StyleReset  Style = "\033[0m"
	StyleRed    Style = "\033[31m"
	StyleGreen  Style = "\033[32m"
	StyleYellow Style = "\033[33m"
	StyleBlue   Style = "\033[34m"
	StyleCyan   Style = "\033[36m"
	StyleBold   Style = "\033[1m"
	StyleDim    Style = "\033[2m"
)

// Formatter writes reports. It is safe for concurrent use; each call writes
// whole lines.
type Formatter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	color  bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithWriter sets the destination. The default is stdout.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.w = w }
}

// WithFormat sets the report format.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithColor turns ANSI styling on or off.
func WithColor(enabled bool) Option {
	return func(f *Formatter) { f.color = enabled }
}

// NewFormatter creates a text formatter on stdout with color on.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{w: os.Stdout, format: FormatText, color: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format returns the report format.
func (f *Formatter) Format() Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

// Colorize wraps text in style when color is on.
func (f *Formatter) Colorize(text string, style Style) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.styled(text, style)
}

func (f *Formatter) styled(text string, style Style) string {
	if !f.color || text == "" {
		return text
	}
	return string(style) + text + string(StyleReset)
}

// Dim mutes text.
func (f *Formatter) Dim(text string) string {
	return f.Colorize(text, StyleDim)
}

func (f *Formatter) writeLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := io.WriteString(f.w, line+"\n")
	return err
}

// Println writes a formatted line.
func (f *Formatter) Println(format string, args ...any) error {
	return f.writeLine(fmt.Sprintf(format, args...))
}

func (f *Formatter) message(symbol string, style Style, format string, args []any) error {
	return f.writeLine(f.Colorize(symbol+" "+fmt.Sprintf(format, args...), style))
}

// Success writes a green check line.
func (f *Formatter) Success(format string, args ...any) error {
	return f.message("✓", StyleGreen, format, args)
}

// Error writes a red cross line.
func (f *Formatter) Error(format string, args ...any) error {
	return f.message("✗", StyleRed, format, args)
}

// Warning writes a yellow warning line.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.message("⚠", StyleYellow, format, args)
}

// Info writes a blue note line.
func (f *Formatter) Info(format string, args ...any) error {
	return f.message("ℹ", StyleBlue, format, args)
}

// Header writes a bold title underlined to its display width.
func (f *Formatter) Header(title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.w, "%s\n%s\n", f.styled(title, StyleBold), strings.Repeat("─", displayWidth(title)))
	return err
}

// SubHeader writes a cyan section title.
func (f *Formatter) SubHeader(title string) error {
	return f.writeLine(f.Colorize(title, StyleCyan))
}

// Item writes an indented "key: value" line.
func (f *Formatter) Item(key, value string) error {
	return f.writeLine("  " + f.Colorize(key, StyleDim) + ": " + value)
}

// JSON writes v as indented JSON. HTML characters and CJK text are left
// unescaped.
func (f *Formatter) JSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Alignment is a table cell alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableColumn describes one table column. Width is a minimum.
type TableColumn struct {
	Header string
	Width  int
	Align  Alignment
}

// TableData is a table to render. Cells beyond the last column are ignored.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

// widths returns each column's display width.
func (d TableData) widths() []int {
	widths := make([]int, len(d.Columns))
	for i, col := range d.Columns {
		widths[i] = max(col.Width, displayWidth(col.Header))
	}
	for _, row := range d.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], displayWidth(row[i]))
		}
	}
	return widths
}

// Table writes data with a bold header and a dashed rule. Widths account for
// wide CJK runes and zero-width filler.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}
	widths := data.widths()

	headers := make([]string, len(data.Columns))
	rules := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = padCell(col.Header, widths[i], col.Align)
		rules[i] = strings.Repeat("-", widths[i])
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var sb strings.Builder
	sb.WriteString(f.styled(strings.Join(headers, "  "), StyleBold) + "\n")
	sb.WriteString(strings.Join(rules, "  ") + "\n")
	for _, row := range data.Rows {
		cells := make([]string, 0, len(data.Columns))
		for i, col := range data.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells = append(cells, padCell(cell, widths[i], col.Align))
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " ") + "\n")
	}

	_, err := io.WriteString(f.w, sb.String())
	return err
}

func padCell(text string, width int, align Alignment) string {
	gap := width - displayWidth(text)
	if gap <= 0 {
		return text
	}
	if align == AlignRight {
		return strings.Repeat(" ", gap) + text
	}
	return text + strings.Repeat(" ", gap)
}

// displayWidth counts terminal columns: wide CJK runes take two, filler
// characters take none.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case padding.IsFiller(r):
		case r >= 0x1100 && (r <= 0x115f || (r >= 0x2e80 && r <= 0xa4cf) ||
			(r >= 0xac00 && r <= 0xd7a3) || (r >= 0xf900 && r <= 0xfaff) ||
			(r >= 0xfe30 && r <= 0xfe4f) || (r >= 0xff00 && r <= 0xff60) ||
			(r >= 0xffe0 && r <= 0xffe6)):
			n += 2
		default:
			n++
		}
	}
	return n
}
