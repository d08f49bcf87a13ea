// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/internal/exec"
	"github.com/katze7514/ManaGameFramework-sub000/internal/glyph"
	"github.com/katze7514/ManaGameFramework-sub000/internal/queue"
	"github.com/katze7514/ManaGameFramework-sub000/internal/recovery"
	"github.com/katze7514/ManaGameFramework-sub000/internal/sprite"
	"github.com/katze7514/ManaGameFramework-sub000/internal/texture"
)

// Errors returned by Renderer.
var (
	ErrNilDevice    = errors.New("mana: nil device")
	ErrNotAsync     = errors.New("mana: renderer not created with WithAsync")
	ErrStarted      = errors.New("mana: renderer already started")
	ErrClosed       = errors.New("mana: renderer closed")
	ErrEffectSource = errors.New("mana: effect source unreadable")
)

// Renderer executes render commands against a device.
//
// StartRequest, Request and EndRequest are called by one producer
// goroutine. Render, DeviceReset, Start and Close are called by the host.
// TextureID, FontID, IsDeviceLost and LastFrameStats are safe from any
// goroutine. Everything else runs on the render goroutine.
type Renderer struct {
	cfg Config
	log *slog.Logger
	dev device.Device

	queue    *queue.Queue
	sprites  *sprite.Queue
	textures *texture.Manager
	glyphs   *glyph.Engine
	exec     *exec.Executor
	recovery *recovery.Machine

	// Device objects, recreated after a reset.
	buffer device.Handle
	effect device.Handle
	source []byte

	maxPrims int
	windowW  int
	windowH  int
	viewport device.Viewport

	// Scratch reused across frames.
	batches  []sprite.Batch
	handles  []device.Handle
	vertices []device.Vertex
	frame    FrameStats

	stats atomic.Pointer[FrameStats]

	// Asynchronous mode.
	loop      *renderLoop
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewRenderer creates a renderer drawing on dev. The renderer does not own
// dev; the caller closes it after Close.
func NewRenderer(dev device.Device, opts ...Option) (*Renderer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	caps := dev.Capabilities()
	maxPrims := cfg.MaxPrimitivesPerDraw
	if limit := caps.MaxPrimitivesPerDraw; limit > 0 && (maxPrims == 0 || maxPrims > limit) {
		maxPrims = limit
	}
	maxAtlas := glyph.DefaultMaxAtlasSize
	if limit := int(caps.Limits.MaxTextureDimension2D); limit > 0 {
		maxAtlas = min(maxAtlas, limit)
	}

	r := &Renderer{
		cfg:      cfg,
		log:      cfg.Logger,
		dev:      dev,
		queue:    queue.New(cfg.CommandCapacity),
		sprites:  sprite.New(cfg.MaxSprites, cfg.MaxSprites/4, cfg.OpaqueGroupOrder),
		glyphs:   glyph.NewEngine(maxAtlas, cfg.ReservedFonts),
		maxPrims: maxPrims,
		windowW:  cfg.WindowWidth,
		windowH:  cfg.WindowHeight,
	}
	r.textures = texture.New(dev, texture.Config{
		Budget:   cfg.TextureBudget,
		Reserved: cfg.ReservedTextures,
	}, r.log)
	r.exec = exec.New(r.textures, r.glyphs, r.sprites, cfg.RenderWidth, cfg.RenderHeight, r.log)
	r.exec.SetClearColor(cfg.ClearColor)

	if cfg.EffectPath != "" {
		src, err := os.ReadFile(cfg.EffectPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEffectSource, err)
		}
		r.source = src
	}

	r.recovery = recovery.New(dev, r.log)
	r.registerResources()
	if err := r.createDeviceObjects(); err != nil {
		r.releaseDeviceObjects()
		return nil, err
	}
	r.applyViewport()

	if cfg.Async {
		r.loop = newRenderLoop(r)
	}

	r.log.Info("mana: renderer created",
		slog.String("adapter", caps.Adapter.Name),
		slog.Int("render_width", cfg.RenderWidth),
		slog.Int("render_height", cfg.RenderHeight),
		slog.Int("max_primitives", maxPrims),
		slog.Bool("async", cfg.Async))
	return r, nil
}

// registerResources lists what a device reset releases, dependencies
// first. Release runs in reverse.
func (r *Renderer) registerResources() {
	r.recovery.Register(recovery.Resource{
		Name:     "device objects",
		Release:  r.releaseDeviceObjects,
		Recreate: r.createDeviceObjects,
	})
	r.recovery.Register(recovery.Resource{
		Name:     "textures",
		Release:  r.textures.InvalidateAll,
		Recreate: r.textures.RecreateAll,
	})
	r.recovery.Register(recovery.Resource{
		Name: "screen state",
		Recreate: func() error {
			if p := r.recovery.Params(); p.Width > 0 && p.Height > 0 {
				r.windowW, r.windowH = p.Width, p.Height
			}
			r.applyViewport()
			return nil
		},
	})
}

func (r *Renderer) createDeviceObjects() error {
	buf, err := r.dev.CreateBuffer("mana.sprites", r.cfg.MaxSprites+1)
	if err != nil {
		return fmt.Errorf("mana: vertex buffer: %w", err)
	}
	r.buffer = buf
	fx, err := r.dev.CreateEffect("mana.sprite", r.source)
	if err != nil {
		return fmt.Errorf("mana: sprite effect: %w", err)
	}
	r.effect = fx
	return nil
}

func (r *Renderer) releaseDeviceObjects() {
	if r.effect != 0 {
		r.dev.DestroyResource(r.effect)
		r.effect = 0
	}
	if r.buffer != 0 {
		r.dev.DestroyResource(r.buffer)
		r.buffer = 0
	}
}

func (r *Renderer) applyViewport() {
	r.viewport = backBufferViewport(r.cfg.RenderWidth, r.cfg.RenderHeight, r.windowW, r.windowH)
}

// Config returns the resolved configuration.
func (r *Renderer) Config() Config {
	return r.cfg
}

// StartRequest opens a batch of commands. It reports false when the
// device is lost, the renderer is closed, a batch is already open, or
// wait is false and the command buffer is busy.
func (r *Renderer) StartRequest(wait bool) bool {
	if r.closed.Load() || r.IsDeviceLost() {
		return false
	}
	return r.queue.StartRequest(wait)
}

// Request appends cmd to the open batch. It reports false outside a batch.
func (r *Renderer) Request(cmd command.Command) bool {
	return r.queue.Request(cmd)
}

// EndRequest closes the batch and hands it to the render goroutine.
func (r *Renderer) EndRequest() {
	r.queue.EndRequest()
}

// IsDeviceLost reports whether the device is lost or being reset.
func (r *Renderer) IsDeviceLost() bool {
	return r.recovery.State() != recovery.StateNormal
}

// DeviceReset requests a device reset with new presentation parameters,
// e.g. to toggle fullscreen. The reset happens during the following Render
// calls; done, if not nil, is called on the render goroutine with the
// outcome. It reports false once the device state is fatal.
func (r *Renderer) DeviceReset(fullscreen bool, width, height int, done func(ok bool)) bool {
	return r.recovery.RequestReset(device.ResetParams{
		Fullscreen: fullscreen,
		Width:      width,
		Height:     height,
	}, done)
}

// TextureID returns the id of a registered texture or render target.
func (r *Renderer) TextureID(name string) (uint32, bool) {
	return r.textures.ID(name)
}

// FontID returns the id of a registered font.
func (r *Renderer) FontID(name string) (uint32, bool) {
	return r.glyphs.ID(name)
}

// LastFrameStats returns the statistics of the last presented frame.
func (r *Renderer) LastFrameStats() FrameStats {
	if s := r.stats.Load(); s != nil {
		return *s
	}
	return FrameStats{}
}

// Render runs one frame: it advances device recovery, executes pending
// commands, then sorts, draws and presents.
//
// In asynchronous mode with the render goroutine running, Render schedules
// a frame. It returns StatusInProgress at once unless wait is true, in
// which case it returns the frame's status. Otherwise the frame runs on
// the calling goroutine and wait is ignored.
func (r *Renderer) Render(wait bool) Status {
	if r.closed.Load() {
		return StatusFatal
	}
	if r.loop != nil && r.loop.running() {
		return r.loop.render(wait)
	}
	return r.step()
}

// Close stops the render goroutine and releases every device resource.
// It does not close the device.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.loop != nil {
			r.loop.stop()
		}
		r.textures.Close()
		r.releaseDeviceObjects()
		r.queue.Reset()
		r.sprites.Clear()
		r.log.Info("mana: renderer closed")
	})
	return nil
}
