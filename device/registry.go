// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gpucontext"
)

// Config holds the parameters a backend opens a device with.
type Config struct {
	// Width and Height are the window size in pixels.
	Width, Height int
	Fullscreen    bool
	// Label names the device in logs and debug tools.
	Label string
	// Logger receives backend diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Log returns cfg.Logger, or a logger discarding everything when it is nil.
func (cfg Config) Log() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// OpenFunc opens a device of a registered backend.
type OpenFunc func(cfg Config) (Device, error)

var registry = gpucontext.NewRegistry[OpenFunc](
	gpucontext.WithPriority("wgpu", "soft", "null"),
)

// Register makes a backend available under name.
// It is typically called from init() in the backend package.
//
// Register panics if open is nil or if name is already registered.
func Register(name string, open OpenFunc) {
	if open == nil {
		panic("device: Register open func is nil")
	}
	if registry.Has(name) {
		panic("device: Register called twice for " + name)
	}
	registry.Register(name, func() OpenFunc { return open })
}

// Unregister removes a backend. It is a no-op for unknown names.
func Unregister(name string) {
	registry.Unregister(name)
}

// Open opens a device of the named backend.
func Open(name string, cfg Config) (Device, error) {
	open := registry.Get(name)
	if open == nil {
		return nil, fmt.Errorf("%w %q (forgotten import?)", ErrUnknownDevice, name)
	}
	return open(cfg)
}

// OpenBest opens a device of the highest-priority registered backend and
// returns its name.
func OpenBest(cfg Config) (Device, string, error) {
	name := registry.BestName()
	if name == "" {
		return nil, "", fmt.Errorf("%w: no backend registered", ErrUnknownDevice)
	}
	dev, err := Open(name, cfg)
	return dev, name, err
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}

func init() {
	Register("null", func(cfg Config) (Device, error) {
		return NewNull(cfg), nil
	})
}
