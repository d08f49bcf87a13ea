// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

const (
	// vertexStride is the size of one encoded device.Vertex.
	vertexStride = 28
	// uniformSize holds the projection matrix.
	uniformSize = 64
)

type resource interface {
	release()
}

type texture struct {
	desc  device.TextureDesc
	tex   *wgpu.Texture
	view  *wgpu.TextureView
	group *wgpu.BindGroup
}

func (t *texture) release() {
	t.group.Release()
	t.view.Release()
	t.tex.Release()
}

type buffer struct {
	quads   int
	vertex  *wgpu.Buffer
	index   *wgpu.Buffer
	scratch []byte
	// uploaded is the number of quads of the last upload.
	uploaded int
}

func (b *buffer) release() {
	b.index.Release()
	b.vertex.Release()
}

func (d *Device) add(r resource) device.Handle {
	d.next++
	d.resources[d.next] = r
	return d.next
}

func (d *Device) usable() error {
	if d.lost || d.dev == nil {
		return device.ErrDeviceLost
	}
	return nil
}

// CreateBuffer implements device.Device. The buffer comes with a static
// index buffer splitting each quad into two triangles.
func (d *Device) CreateBuffer(label string, quads int) (device.Handle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	if quads <= 0 {
		return 0, fmt.Errorf("wgpu: buffer %q of %d quads", label, quads)
	}
	vb, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(quads * 4 * vertexStride),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, d.check(fmt.Errorf("wgpu: vertex buffer %q: %w", label, err))
	}
	ib, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + ".indices",
		Size:  uint64(quads * 6 * 4),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		vb.Release()
		return 0, d.check(fmt.Errorf("wgpu: index buffer %q: %w", label, err))
	}
	if err := d.queue.WriteBuffer(ib, 0, quadIndices(quads)); err != nil {
		ib.Release()
		vb.Release()
		return 0, d.check(fmt.Errorf("wgpu: index upload %q: %w", label, err))
	}
	return d.add(&buffer{quads: quads, vertex: vb, index: ib}), nil
}

// quadIndices returns the little-endian uint32 indices of quads quads.
func quadIndices(quads int) []byte {
	out := make([]byte, 0, quads*6*4)
	for q := range uint32(quads) {
		base := q * 4
		for _, i := range [6]uint32{0, 1, 2, 0, 2, 3} {
			out = binary.LittleEndian.AppendUint32(out, base+i)
		}
	}
	return out
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc device.TextureDesc, img *image.RGBA) (device.Handle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	var pix []byte
	if img != nil {
		pix = tightPixels(img, desc.Width, desc.Height)
	}
	t, err := d.newTexture(desc, pix)
	if err != nil {
		return 0, d.check(err)
	}
	return d.add(t), nil
}

// tightPixels returns the w×h RGBA pixels of img without row padding.
func tightPixels(img *image.RGBA, w, h int) []byte {
	if img.Rect.Min == (image.Point{}) && img.Rect.Dx() == w && img.Rect.Dy() == h && img.Stride == 4*w {
		return img.Pix
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Rect, img, img.Rect.Min, draw.Src)
	return dst.Pix
}

func (d *Device) newTexture(desc device.TextureDesc, pix []byte) (*texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("wgpu: texture %q of %dx%d", desc.Label, desc.Width, desc.Height)
	}
	size := wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1}
	tex, err := d.dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         desc.Usage | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: texture %q: %w", desc.Label, err)
	}
	if pix != nil {
		err := d.queue.WriteTexture(&wgpu.ImageCopyTexture{Texture: tex, Aspect: gputypes.TextureAspectAll},
			pix, &wgpu.ImageDataLayout{BytesPerRow: uint32(4 * desc.Width), RowsPerImage: uint32(desc.Height)}, &size)
		if err != nil {
			tex.Release()
			return nil, fmt.Errorf("wgpu: texture %q upload: %w", desc.Label, err)
		}
	}
	view, err := d.dev.CreateTextureView(tex, nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("wgpu: texture %q view: %w", desc.Label, err)
	}
	group, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  desc.Label,
		Layout: d.textureLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Sampler: d.sampler},
		},
	})
	if err != nil {
		view.Release()
		tex.Release()
		return nil, fmt.Errorf("wgpu: texture %q bind group: %w", desc.Label, err)
	}
	return &texture{desc: desc, tex: tex, view: view, group: group}, nil
}

// DestroyResource implements device.Device.
func (d *Device) DestroyResource(h device.Handle) {
	r, ok := d.resources[h]
	if !ok {
		return
	}
	delete(d.resources, h)
	d.pass.forget(r)
	r.release()
}

// UploadVertices implements device.Device.
func (d *Device) UploadVertices(h device.Handle, vertices []device.Vertex) error {
	if err := d.ready(); err != nil {
		return err
	}
	b, ok := d.resources[h].(*buffer)
	if !ok {
		return device.ErrInvalidHandle
	}
	if len(vertices) > b.quads*4 {
		return fmt.Errorf("wgpu: %d vertices, room for %d", len(vertices), b.quads*4)
	}
	b.scratch = encodeVertices(b.scratch[:0], vertices)
	if len(b.scratch) > 0 {
		if err := d.queue.WriteBuffer(b.vertex, 0, b.scratch); err != nil {
			return d.check(fmt.Errorf("wgpu: vertex upload: %w", err))
		}
	}
	b.uploaded = len(vertices) / 4
	return nil
}

// encodeVertices appends the GPU layout of vertices to dst.
func encodeVertices(dst []byte, vertices []device.Vertex) []byte {
	le := binary.LittleEndian
	for _, v := range vertices {
		for _, f := range [5]float32{v.X, v.Y, v.Z, v.U, v.V} {
			dst = le.AppendUint32(dst, math.Float32bits(f))
		}
		dst = le.AppendUint32(dst, v.Mod)
		dst = le.AppendUint32(dst, v.Add)
	}
	return dst
}
