// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

type recorded struct {
	buffer *buffer
	effect *effect
	tex    *texture
	blend  gputypes.BlendState
	first  int
	count  int
}

// pass collects the work of one render target until it is submitted.
type pass struct {
	open     bool
	view     *wgpu.TextureView
	target   *texture // nil for the back buffer
	clear    *gputypes.Color
	viewport device.Viewport
	draws    []recorded
}

// forget drops recorded draws using r.
func (p *pass) forget(r resource) {
	if t, ok := r.(*texture); ok && p.target == t {
		p.open, p.view, p.target = false, nil, nil
		p.draws = p.draws[:0]
		return
	}
	kept := p.draws[:0]
	for _, dr := range p.draws {
		if resource(dr.buffer) == r || resource(dr.effect) == r || resource(dr.tex) == r {
			continue
		}
		kept = append(kept, dr)
	}
	p.draws = kept
}

func (d *Device) ready() error {
	if err := d.usable(); err != nil {
		return err
	}
	if !d.inFrame {
		return device.ErrNotInFrame
	}
	return nil
}

// BeginFrame implements device.Device.
func (d *Device) BeginFrame() error {
	if err := d.usable(); err != nil {
		return err
	}
	d.inFrame = true
	d.begin(d.backView, nil)
	return nil
}

func (d *Device) begin(view *wgpu.TextureView, target *texture) {
	d.pass.open = true
	d.pass.view = view
	d.pass.target = target
	d.pass.clear = nil
	d.pass.viewport = device.Viewport{Width: d.width, Height: d.height}
	if target != nil {
		d.pass.viewport = device.Viewport{Width: target.desc.Width, Height: target.desc.Height}
	}
	d.pass.draws = d.pass.draws[:0]
}

// EndFrame implements device.Device.
func (d *Device) EndFrame() error {
	if err := d.ready(); err != nil {
		return err
	}
	d.inFrame = false
	return d.flush()
}

// Present implements device.Device. The back buffer stays offscreen; the
// frame is complete once its passes are submitted.
func (d *Device) Present() error {
	if err := d.usable(); err != nil {
		return err
	}
	return nil
}

// SetRenderTarget implements device.Device. The current pass is submitted.
func (d *Device) SetRenderTarget(h device.Handle) error {
	if err := d.ready(); err != nil {
		return err
	}
	if h == 0 {
		if err := d.flush(); err != nil {
			return err
		}
		d.begin(d.backView, nil)
		return nil
	}
	t, ok := d.resources[h].(*texture)
	if !ok || !t.desc.IsRenderTarget() {
		return device.ErrInvalidHandle
	}
	if err := d.flush(); err != nil {
		return err
	}
	d.begin(t.view, t)
	return nil
}

// Clear implements device.Device.
func (d *Device) Clear(c gputypes.Color) error {
	if err := d.ready(); err != nil {
		return err
	}
	if len(d.pass.draws) > 0 {
		// Later clears wipe what was recorded before.
		d.pass.draws = d.pass.draws[:0]
	}
	d.pass.clear = &c
	return nil
}

// SetViewport implements device.Device.
func (d *Device) SetViewport(vp device.Viewport) error {
	if err := d.usable(); err != nil {
		return err
	}
	d.pass.viewport = vp
	if err := d.queue.WriteBuffer(d.uniform, 0, projectionBytes(vp)); err != nil {
		return d.check(fmt.Errorf("wgpu: projection upload: %w", err))
	}
	return nil
}

// projectionBytes returns the column-major projection of vp.
func projectionBytes(vp device.Viewport) []byte {
	out := make([]byte, 0, uniformSize)
	m := vp.Projection
	if m == ([16]float32{}) {
		// Render coordinates are target pixels.
		w, h := float32(max(vp.Width, 1)), float32(max(vp.Height, 1))
		m = [16]float32{2 / w, 0, 0, 0, 0, -2 / h, 0, 0, 0, 0, 1, 0, -1, 1, 0, 1}
	}
	for _, f := range m {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

// Draw implements device.Device.
func (d *Device) Draw(call device.DrawCall) error {
	if err := d.ready(); err != nil {
		return err
	}
	b, ok := d.resources[call.Buffer].(*buffer)
	if !ok {
		return device.ErrInvalidHandle
	}
	e, ok := d.resources[call.Effect].(*effect)
	if !ok {
		return device.ErrInvalidHandle
	}
	tex := d.white
	if call.Texture != 0 {
		if tex, ok = d.resources[call.Texture].(*texture); !ok {
			return device.ErrInvalidHandle
		}
		if tex == d.pass.target {
			return fmt.Errorf("wgpu: texture %q sampled while it is the render target", tex.desc.Label)
		}
	}
	if call.First < 0 || call.First+call.Count > b.uploaded {
		return fmt.Errorf("wgpu: draw of quads [%d, %d) outside %d uploaded", call.First, call.First+call.Count, b.uploaded)
	}
	d.pass.draws = append(d.pass.draws, recorded{
		buffer: b, effect: e, tex: tex, blend: call.Blend,
		first: call.First, count: call.Count,
	})
	return nil
}

// flush records and submits the current pass.
func (d *Device) flush() error {
	p := &d.pass
	if !p.open || (p.clear == nil && len(p.draws) == 0) {
		p.open = false
		return nil
	}
	p.open = false

	enc, err := d.dev.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "mana.pass"})
	if err != nil {
		return d.check(fmt.Errorf("wgpu: command encoder: %w", err))
	}
	attachment := wgpu.RenderPassColorAttachment{View: p.view, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore}
	if p.clear != nil {
		attachment.LoadOp = gputypes.LoadOpClear
		attachment.ClearValue = *p.clear
	}
	rp, err := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:            "mana.pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{attachment},
	})
	if err != nil {
		enc.DiscardEncoding()
		return d.check(fmt.Errorf("wgpu: begin pass: %w", err))
	}

	vp := p.viewport
	if len(p.draws) > 0 && vp.Width > 0 && vp.Height > 0 {
		rp.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	}
	for _, dr := range p.draws {
		pl, err := d.pipeline(dr.effect, dr.blend)
		if err != nil {
			_ = rp.End()
			enc.DiscardEncoding()
			return err
		}
		rp.SetPipeline(pl)
		rp.SetBindGroup(0, d.uniformGroup, nil)
		rp.SetBindGroup(1, dr.tex.group, nil)
		rp.SetVertexBuffer(0, dr.buffer.vertex, 0)
		rp.SetIndexBuffer(dr.buffer.index, gputypes.IndexFormatUint32, 0)
		rp.DrawIndexed(uint32(dr.count*6), 1, uint32(dr.first*6), 0, 0)
	}
	if err := rp.End(); err != nil {
		enc.DiscardEncoding()
		return d.check(fmt.Errorf("wgpu: end pass: %w", err))
	}
	cmd, err := enc.Finish()
	if err != nil {
		return d.check(fmt.Errorf("wgpu: finish pass: %w", err))
	}
	if _, err := d.queue.Submit(cmd); err != nil {
		return d.check(fmt.Errorf("wgpu: submit: %w", err))
	}
	p.draws = p.draws[:0]
	p.clear = nil
	return nil
}
