// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/internal/exec"
	"github.com/katze7514/ManaGameFramework-sub000/internal/recovery"
	"github.com/katze7514/ManaGameFramework-sub000/internal/sprite"
)

// step runs one frame on the render goroutine.
func (r *Renderer) step() Status {
	if st, ok := r.tick(); !ok {
		return st
	}

	start := time.Now()
	r.frame = FrameStats{}
	r.queue.Drain(r.exec.Execute)
	r.sprites.Sort()

	err := r.draw()
	r.sprites.Clear()
	if err != nil {
		if errors.Is(err, device.ErrDeviceLost) {
			r.log.Warn("mana: device lost during frame")
			if st, ok := r.tick(); !ok {
				return st
			}
			return StatusInProgress
		}
		r.log.Error("mana: frame failed", slog.Any("error", err))
		return StatusInProgress
	}
	r.takeScreenshots()

	// Executor counters include commands drained between frames.
	xs := r.exec.Stats()
	r.exec.ResetStats()
	r.frame.Commands = xs.Commands
	r.frame.Sprites = xs.Sprites
	r.frame.Culled = xs.Culled
	r.frame.Dropped += xs.Dropped
	r.frame.Duration = time.Since(start)
	stats := r.frame
	r.stats.Store(&stats)
	r.log.Debug("mana: frame", slog.Any("stats", stats))
	return StatusSuccess
}

// tick advances device recovery. It reports false with the status to
// return when no frame can be drawn.
func (r *Renderer) tick() (Status, bool) {
	switch r.recovery.Tick() {
	case recovery.StatusNormal, recovery.StatusRecovered:
		return StatusSuccess, true
	case recovery.StatusLost:
		// Queued primitives may name released textures; commands stay queued.
		r.sprites.Clear()
		return StatusDeviceLost, false
	case recovery.StatusWaiting:
		return StatusInProgress, false
	default:
		return StatusFatal, false
	}
}

func (r *Renderer) draw() error {
	defer r.textures.UnpinAll()
	if err := r.dev.BeginFrame(); err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}
	screen := r.exec.Screen()
	r.appendOverlay(screen.Overlay)

	for it := r.sprites.Iterator(); it.Next(); {
		if err := r.drawBucket(it.Bucket(), screen); err != nil {
			return err
		}
	}

	if err := r.dev.EndFrame(); err != nil {
		return fmt.Errorf("end frame: %w", err)
	}
	if err := r.dev.Present(); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// appendOverlay queues a quad over the whole render area, drawn after
// everything else on the back buffer.
func (r *Renderer) appendOverlay(c command.Color) {
	if c.A <= 0 {
		return
	}
	w, h := float32(r.cfg.RenderWidth), float32(r.cfg.RenderHeight)
	p := sprite.Param{
		Pos:  [4]mgl32.Vec3{{0, 0, 0}, {w, 0, 0}, {w, h, 0}, {0, h, 0}},
		Mode: command.ModeFlatAlpha,
	}
	p.SetColors(c, gputypes.ColorTransparent)
	b := r.sprites.Bucket(command.BackBuffer)
	b.Transparent = append(b.Transparent, p)
}

func (r *Renderer) drawBucket(b *sprite.Bucket, screen *exec.Screen) error {
	back := b.Target == command.BackBuffer
	if !back && b.Len() == 0 {
		// Render targets keep their content when nothing is drawn to them.
		return nil
	}

	var target device.Handle
	vp, clearColor := r.viewport, screen.Clear
	if !back {
		h, err := r.textures.Acquire(b.Target)
		if err != nil {
			return r.skip(err, b.Len(), "render target", b.Target)
		}
		info, _ := r.textures.Lookup(b.Target)
		target = h
		vp, clearColor = targetViewport(info.Width, info.Height), gputypes.ColorTransparent
	}
	if err := r.dev.SetRenderTarget(target); err != nil {
		return r.skip(err, b.Len(), "render target", b.Target)
	}
	if err := r.dev.SetViewport(vp); err != nil {
		return r.skip(err, b.Len(), "viewport", b.Target)
	}
	if err := r.dev.Clear(clearColor); err != nil {
		return r.skip(err, 0, "clear", b.Target)
	}
	if b.Len() == 0 {
		return nil
	}

	r.batches = sprite.AppendBatches(r.batches[:0], b, r.maxPrims)
	r.frame.Batches += len(r.batches)
	r.vertices = r.vertices[:0]
	for _, bt := range r.batches {
		tw, th := float32(1), float32(1)
		if bt.Texture != command.NoTexture {
			if info, ok := r.textures.Lookup(bt.Texture); ok {
				tw, th = float32(info.Width), float32(info.Height)
			}
		}
		for i := bt.First; i < bt.First+bt.Count; i++ {
			r.vertices = appendQuad(r.vertices, b.At(i), tw, th)
		}
	}
	if err := r.dev.UploadVertices(r.buffer, r.vertices); err != nil {
		return r.skip(err, b.Len(), "vertex upload", b.Target)
	}

	// Textures of the recorded draws stay pinned until the frame ends.
	r.handles = r.handles[:0]
	for _, bt := range r.batches {
		var tex device.Handle
		if bt.Texture != command.NoTexture {
			h, err := r.textures.Acquire(bt.Texture)
			if err != nil {
				if err := r.skip(err, bt.Count, "texture", bt.Texture); err != nil {
					return err
				}
				r.handles = append(r.handles, 0)
				continue
			}
			r.textures.Pin(bt.Texture)
			tex = h
		}
		r.handles = append(r.handles, tex)
	}

	for i, bt := range r.batches {
		tex := r.handles[i]
		if tex == 0 && bt.Texture != command.NoTexture {
			continue
		}
		err := r.dev.Draw(device.DrawCall{
			Buffer:  r.buffer,
			Effect:  r.effect,
			Texture: tex,
			Blend:   bt.Mode.BlendState(),
			First:   bt.First,
			Count:   bt.Count,
		})
		if err != nil {
			if err := r.skip(err, bt.Count, "draw", bt.Texture); err != nil {
				return err
			}
			continue
		}
		r.frame.DrawCalls++
	}
	return nil
}

// skip logs a failed step and counts its primitives as dropped. A lost
// device is returned so the frame stops.
func (r *Renderer) skip(err error, primitives int, what string, id uint32) error {
	if errors.Is(err, device.ErrDeviceLost) {
		return err
	}
	r.frame.Dropped += primitives
	r.log.Warn("mana: skipped "+what, slog.Uint64("id", uint64(id)),
		slog.Int("primitives", primitives), slog.Any("error", err))
	return nil
}

// appendQuad appends the vertices of p with texel coordinates normalised
// to a tw×th texture.
func appendQuad(dst []device.Vertex, p *sprite.Param, tw, th float32) []device.Vertex {
	for k := range 4 {
		dst = append(dst, device.Vertex{
			X:   p.Pos[k].X(),
			Y:   p.Pos[k].Y(),
			Z:   p.Pos[k].Z(),
			U:   p.UV[k].X() / tw,
			V:   p.UV[k].Y() / th,
			Mod: p.Colors[0][k],
			Add: p.Colors[1][k],
		})
	}
	return dst
}

func (r *Renderer) takeScreenshots() {
	screen := r.exec.Screen()
	if len(screen.Shots) == 0 {
		return
	}
	img, err := r.dev.ReadBackBuffer()
	for _, s := range screen.Shots {
		werr := err
		if werr == nil {
			werr = writePNG(s.Path, img)
		}
		if werr != nil {
			r.log.Warn("mana: screenshot failed", slog.String("path", s.Path), slog.Any("error", werr))
		} else {
			r.log.Info("mana: screenshot written", slog.String("path", s.Path))
		}
		if s.Done != nil {
			s.Done(werr)
		}
	}
	clear(screen.Shots)
	screen.Shots = screen.Shots[:0]
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
