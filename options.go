// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/internal/sprite"
	"github.com/katze7514/ManaGameFramework-sub000/internal/texture"
)

// Default configuration values.
const (
	DefaultMaxSprites       = 8192
	DefaultReservedTextures = 64
	DefaultReservedFonts    = 8
	DefaultWindowWidth      = 640
	DefaultWindowHeight     = 480
	DefaultCommandCapacity  = 1024
)

// OpaqueGroupOrder selects how groups of same-texture opaque sprites are
// ordered against each other.
type OpaqueGroupOrder = sprite.GroupOrder

// Opaque group orders.
const (
	// GroupOrderSumZ orders groups by the sum of their members' Z.
	GroupOrderSumZ = sprite.GroupOrderSumZ
	// GroupOrderMeanZ orders groups by the mean of their members' Z.
	GroupOrderMeanZ = sprite.GroupOrderMeanZ
)

// Config holds the resolved renderer configuration.
type Config struct {
	// MaxSprites is the number of sprite primitives accepted per frame.
	MaxSprites int
	// MaxPrimitivesPerDraw caps the triangles of one draw call. 0 takes
	// the device limit; larger values are clamped to it.
	MaxPrimitivesPerDraw int
	// ReservedTextures and ReservedFonts size the registries.
	ReservedTextures int
	ReservedFonts    int
	// TextureBudget is the GPU memory budget of sampled textures in bytes.
	TextureBudget uint64
	// ClearColor is the initial back buffer clear color.
	ClearColor command.Color
	// EffectPath is the sprite effect source. Empty selects the device's
	// built-in effect.
	EffectPath string
	// RenderWidth and RenderHeight are the render area. 0 takes the window
	// size. When they differ from the window the output is letterboxed.
	RenderWidth, RenderHeight int
	// WindowWidth and WindowHeight are the presentation size.
	WindowWidth, WindowHeight int
	// CommandCapacity is the reserved size of each command buffer.
	CommandCapacity int
	// Async runs frames on a goroutine started by Renderer.Start.
	Async bool
	// OpaqueGroupOrder orders opaque texture groups.
	OpaqueGroupOrder OpaqueGroupOrder

	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxSprites:       DefaultMaxSprites,
		ReservedTextures: DefaultReservedTextures,
		ReservedFonts:    DefaultReservedFonts,
		TextureBudget:    texture.DefaultBudget,
		ClearColor:       gputypes.Color{A: 1},
		WindowWidth:      DefaultWindowWidth,
		WindowHeight:     DefaultWindowHeight,
		CommandCapacity:  DefaultCommandCapacity,
		OpaqueGroupOrder: GroupOrderSumZ,
	}
}

// normalize replaces invalid values with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MaxSprites <= 0 {
		c.MaxSprites = def.MaxSprites
	}
	c.MaxPrimitivesPerDraw = max(c.MaxPrimitivesPerDraw, 0)
	if c.ReservedTextures < 0 {
		c.ReservedTextures = def.ReservedTextures
	}
	if c.ReservedFonts < 0 {
		c.ReservedFonts = def.ReservedFonts
	}
	if c.TextureBudget < texture.MinBudget {
		c.TextureBudget = def.TextureBudget
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = def.WindowWidth, def.WindowHeight
	}
	if c.RenderWidth <= 0 || c.RenderHeight <= 0 {
		c.RenderWidth, c.RenderHeight = c.WindowWidth, c.WindowHeight
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = def.CommandCapacity
	}
	if c.OpaqueGroupOrder != GroupOrderSumZ && c.OpaqueGroupOrder != GroupOrderMeanZ {
		c.OpaqueGroupOrder = def.OpaqueGroupOrder
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
}

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := mana.NewRenderer(dev,
//	    mana.WithRenderSize(320, 240),
//	    mana.WithWindowSize(1280, 720),
//	    mana.WithAsync(),
//	)
type Option func(*Config)

// WithMaxSprites sets the number of sprite primitives accepted per frame.
func WithMaxSprites(n int) Option {
	return func(c *Config) { c.MaxSprites = n }
}

// WithMaxPrimitivesPerDraw caps the triangles of one draw call.
func WithMaxPrimitivesPerDraw(n int) Option {
	return func(c *Config) { c.MaxPrimitivesPerDraw = n }
}

// WithReservedTextures sizes the texture registry.
func WithReservedTextures(n int) Option {
	return func(c *Config) { c.ReservedTextures = n }
}

// WithReservedFonts sizes the font registry.
func WithReservedFonts(n int) Option {
	return func(c *Config) { c.ReservedFonts = n }
}

// WithTextureBudget sets the GPU memory budget of sampled textures.
// Values below 16 MB select the 256 MB default.
func WithTextureBudget(bytes uint64) Option {
	return func(c *Config) { c.TextureBudget = bytes }
}

// WithClearColor sets the initial back buffer clear color.
func WithClearColor(col command.Color) Option {
	return func(c *Config) { c.ClearColor = col }
}

// WithEffectPath loads the sprite effect from a file.
func WithEffectPath(path string) Option {
	return func(c *Config) { c.EffectPath = path }
}

// WithRenderSize sets the render area.
func WithRenderSize(width, height int) Option {
	return func(c *Config) { c.RenderWidth, c.RenderHeight = width, height }
}

// WithWindowSize sets the presentation size.
func WithWindowSize(width, height int) Option {
	return func(c *Config) { c.WindowWidth, c.WindowHeight = width, height }
}

// WithCommandCapacity reserves room for n commands per buffer.
func WithCommandCapacity(n int) Option {
	return func(c *Config) { c.CommandCapacity = n }
}

// WithAsync runs frames on a render goroutine started by Renderer.Start.
func WithAsync() Option {
	return func(c *Config) { c.Async = true }
}

// WithLogger sets the renderer logger. nil keeps the package default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithOpaqueGroupOrder selects the ordering of opaque texture groups.
func WithOpaqueGroupOrder(o OpaqueGroupOrder) Option {
	return func(c *Config) { c.OpaqueGroupOrder = o }
}
