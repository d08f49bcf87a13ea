// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"errors"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Errors returned by devices.
var (
	// ErrDeviceLost is returned by calls made while the device is lost.
	ErrDeviceLost = errors.New("device: device lost")

	// ErrInvalidHandle is returned for unknown or destroyed handles.
	ErrInvalidHandle = errors.New("device: invalid handle")

	// ErrNotInFrame is returned by drawing calls outside BeginFrame/EndFrame.
	ErrNotInFrame = errors.New("device: not inside a frame")

	// ErrUnknownDevice is returned by Open for unregistered names.
	ErrUnknownDevice = errors.New("device: unknown device")
)

// Handle identifies a resource created by a Device. The zero Handle is
// never valid; as a render target it selects the back buffer.
type Handle uint64

// ResetResult is the outcome of Device.Reset.
type ResetResult uint8

const (
	// ResetNotReady means the device cannot be reset yet; try again later.
	ResetNotReady ResetResult = iota
	// ResetSuccess means the device is usable again. Every resource
	// created before the loss must be created again.
	ResetSuccess
	// ResetFatal means the device cannot be recovered.
	ResetFatal
)

// String returns the string representation of a ResetResult.
func (r ResetResult) String() string {
	switch r {
	case ResetNotReady:
		return "NotReady"
	case ResetSuccess:
		return "Success"
	case ResetFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// ResetParams describes the presentation parameters to reset to.
type ResetParams struct {
	Fullscreen bool
	// Width and Height are the new window size. Zero keeps the current size.
	Width, Height int
}

// Capabilities describes the limits of a device.
type Capabilities struct {
	Limits gputypes.Limits

	// MaxPrimitivesPerDraw is the largest number of triangles one draw
	// call may submit.
	MaxPrimitivesPerDraw int

	// MaxTextures is the number of textures that may exist at once,
	// 0 meaning no fixed limit.
	MaxTextures int

	// EffectLanguage names the effect source language, e.g. "wgsl".
	// Empty when the device does not compile effects.
	EffectLanguage string

	Adapter gpucontext.AdapterInfo
	Format  gputypes.TextureFormat
}

// TextureDesc describes a texture to create.
type TextureDesc struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// IsRenderTarget reports whether the texture can be rendered to.
func (d TextureDesc) IsRenderTarget() bool {
	return d.Usage&gputypes.TextureUsageRenderAttachment != 0
}

// SampledTexture returns the descriptor of an RGBA texture sampled by sprites.
func SampledTexture(label string, w, h int) TextureDesc {
	return TextureDesc{
		Label:  label,
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	}
}

// RenderTarget returns the descriptor of an RGBA offscreen render target
// that sprites can also sample.
func RenderTarget(label string, w, h int) TextureDesc {
	return TextureDesc{
		Label:  label,
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageCopySrc,
	}
}

// Vertex is one vertex of a sprite quad.
type Vertex struct {
	X, Y, Z float32
	U, V    float32
	// Mod and Add are the modulate and additive colors as 0xAARRGGBB.
	Mod, Add uint32
}

// Viewport maps render coordinates to the window.
type Viewport struct {
	// X, Y, Width and Height are the destination rectangle in window pixels.
	X, Y, Width, Height int
	// Projection maps render coordinates to clip space.
	Projection mgl32.Mat4
}

// DrawCall is one batch of quads taken from a vertex buffer.
type DrawCall struct {
	Buffer  Handle
	Effect  Handle
	Texture Handle // 0 for untextured draws
	Blend   gputypes.BlendState
	// First and Count select quads in the buffer. Each quad is two triangles.
	First, Count int
}

// Device is the graphics device the renderer draws with.
//
// Every method is called from the render goroutine only.
type Device interface {
	// Capabilities reports the device limits.
	Capabilities() Capabilities

	// BeginFrame starts recording a frame.
	BeginFrame() error
	// EndFrame finishes recording a frame.
	EndFrame() error
	// Present shows the back buffer.
	Present() error

	// IsLost reports whether the device lost its resources.
	IsLost() bool
	// Reset tries to bring a lost device back with the given parameters.
	Reset(params ResetParams) ResetResult

	// CreateBuffer creates a vertex buffer holding up to quads quads.
	CreateBuffer(label string, quads int) (Handle, error)
	// CreateEffect compiles an effect from source. A nil source selects the
	// device's built-in sprite effect.
	CreateEffect(label string, source []byte) (Handle, error)
	// CreateTexture creates a texture. img may be nil, in which case the
	// texture starts transparent.
	CreateTexture(desc TextureDesc, img *image.RGBA) (Handle, error)
	// DestroyResource releases a resource. Destroying an unknown handle is
	// a no-op.
	DestroyResource(h Handle)

	// SetRenderTarget selects the texture to draw to; 0 selects the back buffer.
	SetRenderTarget(h Handle) error
	// Clear fills the current render target.
	Clear(c gputypes.Color) error
	// SetViewport sets the mapping for subsequent draws.
	SetViewport(vp Viewport) error
	// UploadVertices replaces the content of a vertex buffer.
	UploadVertices(buffer Handle, vertices []Vertex) error
	// Draw submits one batch.
	Draw(call DrawCall) error
	// ReadBackBuffer returns a copy of the last presented frame.
	ReadBackBuffer() (*image.RGBA, error)

	// Close releases the device.
	Close() error
}
