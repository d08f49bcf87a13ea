// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Null is a device that accepts every call and draws nothing.
// It is used when no real device is available, e.g. on servers.
type Null struct {
	width, height int
	next          Handle
	live          map[Handle]struct{}
}

// NewNull creates a null device with the window size of cfg.
func NewNull(cfg Config) *Null {
	return &Null{
		width:  max(cfg.Width, 1),
		height: max(cfg.Height, 1),
		live:   make(map[Handle]struct{}),
	}
}

// Capabilities implements Device.
func (n *Null) Capabilities() Capabilities {
	return Capabilities{
		Limits:               gputypes.DefaultLimits(),
		MaxPrimitivesPerDraw: 1 << 16,
		Adapter:              gpucontext.AdapterInfo{Name: "Null Device", Type: gpucontext.AdapterTypeSoftware},
		Format:               gputypes.TextureFormatRGBA8Unorm,
	}
}

// BeginFrame implements Device.
func (*Null) BeginFrame() error { return nil }

// EndFrame implements Device.
func (*Null) EndFrame() error { return nil }

// Present implements Device.
func (*Null) Present() error { return nil }

// IsLost implements Device. A null device is never lost.
func (*Null) IsLost() bool { return false }

// Reset implements Device.
func (n *Null) Reset(p ResetParams) ResetResult {
	if p.Width > 0 && p.Height > 0 {
		n.width, n.height = p.Width, p.Height
	}
	return ResetSuccess
}

func (n *Null) alloc() Handle {
	n.next++
	n.live[n.next] = struct{}{}
	return n.next
}

// CreateBuffer implements Device.
func (n *Null) CreateBuffer(string, int) (Handle, error) { return n.alloc(), nil }

// CreateEffect implements Device.
func (n *Null) CreateEffect(string, []byte) (Handle, error) { return n.alloc(), nil }

// CreateTexture implements Device.
func (n *Null) CreateTexture(TextureDesc, *image.RGBA) (Handle, error) { return n.alloc(), nil }

// DestroyResource implements Device.
func (n *Null) DestroyResource(h Handle) { delete(n.live, h) }

// SetRenderTarget implements Device.
func (n *Null) SetRenderTarget(h Handle) error {
	if _, ok := n.live[h]; h != 0 && !ok {
		return ErrInvalidHandle
	}
	return nil
}

// Clear implements Device.
func (*Null) Clear(gputypes.Color) error { return nil }

// SetViewport implements Device.
func (*Null) SetViewport(Viewport) error { return nil }

// UploadVertices implements Device.
func (*Null) UploadVertices(Handle, []Vertex) error { return nil }

// Draw implements Device.
func (*Null) Draw(DrawCall) error { return nil }

// ReadBackBuffer implements Device. The null device returns a transparent
// image of the window size.
func (n *Null) ReadBackBuffer() (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, n.width, n.height)), nil
}

// Close implements Device.
func (n *Null) Close() error {
	clear(n.live)
	return nil
}

var _ Device = (*Null)(nil)
