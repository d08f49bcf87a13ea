// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"log/slog"
	"time"
)

// Status is the result of Render.
type Status int

const (
	// StatusInProgress means no frame was drawn yet: the device is waiting
	// to be reset, or an asynchronous frame was scheduled without waiting.
	StatusInProgress Status = iota
	// StatusSuccess means a frame was presented.
	StatusSuccess
	// StatusDeviceLost means the device was lost during this call. Its
	// resources have been released; following calls retry the reset.
	StatusDeviceLost
	// StatusFatal means the device cannot be recovered. The renderer is
	// unusable from now on.
	StatusFatal
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "InProgress"
	case StatusSuccess:
		return "Success"
	case StatusDeviceLost:
		return "DeviceLost"
	case StatusFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// FrameStats describes the last presented frame.
type FrameStats struct {
	// Commands is the number of commands executed.
	Commands int
	// Sprites is the number of primitives queued for drawing.
	Sprites int
	// Culled is the number of primitives outside their render target.
	Culled int
	// Dropped is the number of commands and primitives skipped on error.
	Dropped int
	// Batches is the number of draw-call batches built.
	Batches int
	// DrawCalls is the number of batches submitted to the device.
	DrawCalls int
	// Duration is the time spent in the frame step.
	Duration time.Duration
}

// LogValue implements slog.LogValuer.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("commands", s.Commands),
		slog.Int("sprites", s.Sprites),
		slog.Int("culled", s.Culled),
		slog.Int("dropped", s.Dropped),
		slog.Int("batches", s.Batches),
		slog.Int("draw_calls", s.DrawCalls),
		slog.Duration("duration", s.Duration),
	)
}
