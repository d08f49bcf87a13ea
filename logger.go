// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package default logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger sets the default logger of renderers created without
// WithLogger. By default nothing is logged. Pass nil to restore that.
//
// SetLogger is safe for concurrent use. Renderers keep the logger they
// were created with.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame diagnostics (drained commands, batches)
//   - [slog.LevelInfo]: lifecycle (renderer started, device reset)
//   - [slog.LevelWarn]: dropped commands and primitives
//   - [slog.LevelError]: unrecoverable device state
//
// Example:
//
//	mana.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the package default logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
