package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Log output formats accepted by NewLogger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger builds a logger writing to w.
//
// Parameters:
//   - level: debug, info, warn or error (case insensitive)
//   - format: LogFormatText or LogFormatJSON
//   - w: destination
//
// Returns:
//   - *slog.Logger: the logger
//   - error: if level or format is not recognized
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case LogFormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want %s or %s", format, LogFormatText, LogFormatJSON)
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
