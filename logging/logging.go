// Package logging builds the [slog.Logger] used by patternbus commands.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	ErrFormat = errors.New("unknown log format")
)

const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// New creates a deduplicating logger writing to w.
// The auto format writes text to a terminal, and JSON to anything else.
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatAuto, "":
		if IsTerminal(w) {
			handler = slog.NewTextHandler(w, opts)
		} else {
			handler = slog.NewJSONHandler(w, opts)
		}
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrFormat, format)
	}
	return slog.New(NewDedupeHandler(handler)), nil
}
