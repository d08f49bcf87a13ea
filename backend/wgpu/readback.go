// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/wgpu"
)

// readbackTimeout bounds the wait for a mapped readback buffer.
const readbackTimeout = 5 * time.Second

// ReadBackBuffer implements device.Device.
func (d *Device) ReadBackBuffer() (*image.RGBA, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	w, h := uint32(d.width), uint32(d.height)
	// Rows of a texture copy are 256-byte aligned.
	bytesPerRow := (w*4 + 255) / 256 * 256
	size := uint64(bytesPerRow) * uint64(h)

	staging, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "mana.readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback buffer: %w", err))
	}
	defer staging.Release()

	enc, err := d.dev.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "mana.readback"})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback encoder: %w", err))
	}
	enc.CopyTextureToBuffer(d.back, staging, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{BytesPerRow: bytesPerRow, RowsPerImage: h},
		TextureBase:  wgpu.ImageCopyTexture{Texture: d.back},
		Size:         wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cmd, err := enc.Finish()
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback copy: %w", err))
	}
	if _, err := d.queue.Submit(cmd); err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback submit: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), readbackTimeout)
	defer cancel()
	if err := staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback map: %w", err))
	}
	defer func() { _ = staging.Unmap() }()
	rng, err := staging.MappedRange(0, size)
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback range: %w", err))
	}
	src := rng.Bytes()

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := range int(h) {
		row := src[y*int(bytesPerRow) : y*int(bytesPerRow)+int(w)*4]
		copy(img.Pix[y*img.Stride:], row)
	}
	return img, nil
}
