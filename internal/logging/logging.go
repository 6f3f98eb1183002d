// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process logger: a charmbracelet/log handler
// behind log/slog, so library packages only ever see *slog.Logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

const (
	// FormatText is the human-readable colored format.
	FormatText Format = "text"
	// FormatLogfmt emits key=value lines.
	FormatLogfmt Format = "logfmt"
	// FormatJSON emits one JSON object per line.
	FormatJSON Format = "json"
)

// ErrInvalidFormat is returned for an unrecognized Format.
var ErrInvalidFormat = errors.New("invalid log format")

type (
	// Format selects the log line encoding.
	Format string

	// Options configures New.
	Options struct {
		// Verbose lowers the level to Debug and adds timestamps.
		Verbose bool
		// Quiet raises the level to Warn. Verbose wins when both are set.
		Quiet  bool
		Format Format
		// NoColor disables ANSI styling in text output.
		NoColor bool
	}
)

// IsValid returns whether f is a known format. The empty Format means text.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case "", FormatText, FormatLogfmt, FormatJSON:
		return true, nil
	default:
		return false, []error{fmt.Errorf("%w: %q (valid: text, logfmt, json)", ErrInvalidFormat, f)}
	}
}

// Level returns the slog level for the options.
func (o Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w.
func New(w io.Writer, o Options) (*slog.Logger, error) {
	if ok, errs := o.Format.IsValid(); !ok {
		return nil, errors.Join(errs...)
	}

	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "provisio",
		Level:           log.Level(o.Level()),
		ReportTimestamp: o.Verbose,
		Formatter:       formatter(o.Format),
	})
	if o.NoColor {
		handler.SetColorProfile(termenv.Ascii)
	}
	return slog.New(handler), nil
}

func formatter(f Format) log.Formatter {
	switch f {
	case FormatJSON:
		return log.JSONFormatter
	case FormatLogfmt:
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
