package output

import (
	"io"
	"os"
)

// ColorEnabledFor reports whether styled output should be written to w.
// NO_COLOR wins over FORCE_COLOR; otherwise only a terminal with a usable
// TERM gets color. Pipes never do, so serve frames stay clean.
func ColorEnabledFor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if _, ok := os.LookupEnv("FORCE_COLOR"); ok {
		return true
	}
	if term := os.Getenv("TERM"); term == "" || term == "dumb" {
		return false
	}
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
