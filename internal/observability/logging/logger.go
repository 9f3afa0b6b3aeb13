// Package logging builds the process logger: JSON records on stderr, each
// tagged with the service name.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger logs to stderr so that command output on stdout stays parseable.
func NewJSONLogger(service, level string) *slog.Logger {
	return New(os.Stderr, service, level)
}

// New falls back to info for an unknown level. At debug the call site is
// recorded as well.
func New(w io.Writer, service, level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel accepts slog level names in any case, the "warning" alias and
// offsets such as "info+2". An empty value is info.
func ParseLevel(raw string) (slog.Level, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return slog.LevelInfo, nil
	case strings.EqualFold(s, "warning"):
		return slog.LevelWarn, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
	return lvl, nil
}
