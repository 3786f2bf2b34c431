package core

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// NewLogger returns a slog.Logger writing to w (stderr when nil).
// Verbose enables debug records; format "json" selects the JSON handler.
func NewLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// GetTZ returns a *time.Location for the given timezone name.
// An empty name is the local zone. An unknown name also yields the local
// zone, together with the lookup error for the caller to report.
func GetTZ(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParseDate parses a YYYY-MM-DD string into a time.Time at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(APIDateFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(APIDateFmt)
}

// MonthStart returns the first day of now's month.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of now's month.
func MonthEnd(now time.Time) time.Time {
	return MonthStart(now).AddDate(0, 1, -1)
}

// CurrentMonth returns the first and last day of now's month.
func CurrentMonth(now time.Time) (time.Time, time.Time) {
	return MonthStart(now), MonthEnd(now)
}

// PreviousMonth returns the first and last day of the month before now's.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	first := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}
