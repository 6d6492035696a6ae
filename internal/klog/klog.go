// Package klog is the kernel core's structured diagnostic logger.
//
// Every subsystem that needs to log a degraded-but-recoverable condition
// (double-unblock, foreign unlock, invalid thread id) takes a
// zerolog.Logger dependency rather than writing to a package-level global,
// so unit tests can assert on emitted diagnostics instead of scraping
// stderr.
package klog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w at the given level. Kernel subsystems
// are constructed with a zerolog.Logger value (or zerolog.Nop(), which
// discards everything) rather than reaching for a
// global, so unit tests can assert on emitted diagnostics.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, the default for
// constructors that receive no explicit logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Console returns a human-readable console logger, used by the demo
// harness the way main.go configures log.SetFlags(0) for clean CLI output.
func Console(level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}
