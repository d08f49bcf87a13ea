// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft provides a CPU device.
//
// The back buffer and render targets are RGBA images in memory. Textured
// quads are drawn with an affine bilinear transform and untextured
// polygons with a coverage rasteriser, so the device renders without any
// GPU and is used for headless runs and image tests.
//
// Importing the package registers the device as "soft":
//
//	import _ "github.com/katze7514/ManaGameFramework-sub000/device/soft"
//
//	dev, err := device.Open("soft", device.Config{Width: 640, Height: 480})
package soft

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

// Name is the registry name of the device.
const Name = "soft"

// ErrBufferTooSmall is returned when more vertices are uploaded than the
// buffer was created for.
var ErrBufferTooSmall = errors.New("soft: vertex buffer too small")

func init() {
	device.Register(Name, func(cfg device.Config) (device.Device, error) {
		return New(cfg), nil
	})
}

type texture struct {
	desc device.TextureDesc
	img  *image.RGBA
}

type buffer struct {
	quads    int
	vertices []device.Vertex
}

type effect struct {
	label string
}

// Device is a device.Device drawing into memory.
//
// It is safe for concurrent use, so loss can be simulated from another
// goroutine while the renderer draws.
type Device struct {
	mu sync.Mutex

	label string
	back  *image.RGBA
	front *image.RGBA

	next      device.Handle
	resources map[device.Handle]any

	target   *image.RGBA
	viewport device.Viewport
	inFrame  bool

	lost     bool
	fatal    bool
	notReady int

	// scratch
	raster *vector.Rasterizer
	layer  *image.RGBA
	tinted *image.RGBA
}

// New creates a device with a back buffer of the window size of cfg.
func New(cfg device.Config) *Device {
	w, h := max(cfg.Width, 1), max(cfg.Height, 1)
	d := &Device{
		label:     cfg.Label,
		resources: make(map[device.Handle]any),
		raster:    vector.NewRasterizer(w, h),
	}
	d.resize(w, h)
	return d
}

func (d *Device) resize(w, h int) {
	d.back = image.NewRGBA(image.Rect(0, 0, w, h))
	d.front = image.NewRGBA(image.Rect(0, 0, w, h))
	d.target = d.back
	d.viewport = device.Viewport{Width: w, Height: h}
}

// SimulateLoss marks the device lost. Every resource becomes invalid and
// the next notReady calls to Reset report ResetNotReady.
func (d *Device) SimulateLoss(notReady int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.notReady = max(notReady, 0)
	clear(d.resources)
}

// SimulateFatal marks the device lost for good: Reset reports ResetFatal.
func (d *Device) SimulateFatal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.fatal = true
	clear(d.resources)
}

// Capabilities implements device.Device.
func (d *Device) Capabilities() device.Capabilities {
	return device.Capabilities{
		Limits:               gputypes.DefaultLimits(),
		MaxPrimitivesPerDraw: 1 << 16,
		Adapter:              gpucontext.AdapterInfo{Name: "Mana Software Device", Type: gpucontext.AdapterTypeSoftware},
		Format:               gputypes.TextureFormatRGBA8Unorm,
	}
}

// BeginFrame implements device.Device.
func (d *Device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return device.ErrDeviceLost
	}
	d.inFrame = true
	d.target = d.back
	return nil
}

// EndFrame implements device.Device.
func (d *Device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFrame = false
	if d.lost {
		return device.ErrDeviceLost
	}
	return nil
}

// Present implements device.Device. The back buffer is copied to the
// front buffer returned by ReadBackBuffer.
func (d *Device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return device.ErrDeviceLost
	}
	copy(d.front.Pix, d.back.Pix)
	return nil
}

// IsLost implements device.Device.
func (d *Device) IsLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Reset implements device.Device.
func (d *Device) Reset(p device.ResetParams) device.ResetResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.fatal:
		return device.ResetFatal
	case d.notReady > 0:
		d.notReady--
		return device.ResetNotReady
	}
	d.lost = false
	d.inFrame = false
	if p.Width > 0 && p.Height > 0 && (p.Width != d.back.Rect.Dx() || p.Height != d.back.Rect.Dy()) {
		d.resize(p.Width, p.Height)
	}
	return device.ResetSuccess
}

func (d *Device) add(r any) (device.Handle, error) {
	if d.lost {
		return 0, device.ErrDeviceLost
	}
	d.next++
	d.resources[d.next] = r
	return d.next, nil
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(_ string, quads int) (device.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if quads <= 0 {
		return 0, fmt.Errorf("soft: buffer of %d quads", quads)
	}
	return d.add(&buffer{quads: quads, vertices: make([]device.Vertex, 0, quads*4)})
}

// CreateEffect implements device.Device. The source is not compiled;
// every effect draws with the fixed sprite pipeline.
func (d *Device) CreateEffect(label string, _ []byte) (device.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.add(&effect{label: label})
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc device.TextureDesc, img *image.RGBA) (device.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Width <= 0 || desc.Height <= 0 {
		return 0, fmt.Errorf("soft: texture %q of %dx%d", desc.Label, desc.Width, desc.Height)
	}
	t := &texture{desc: desc, img: image.NewRGBA(image.Rect(0, 0, desc.Width, desc.Height))}
	if img != nil {
		draw.Draw(t.img, t.img.Rect, img, img.Rect.Min, draw.Src)
	}
	return d.add(t)
}

// DestroyResource implements device.Device.
func (d *Device) DestroyResource(h device.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resources, h)
}

// Live returns the number of live resources.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

func (d *Device) ready() error {
	if d.lost {
		return device.ErrDeviceLost
	}
	if !d.inFrame {
		return device.ErrNotInFrame
	}
	return nil
}

// SetRenderTarget implements device.Device.
func (d *Device) SetRenderTarget(h device.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	if h == 0 {
		d.target = d.back
		return nil
	}
	t, ok := d.resources[h].(*texture)
	if !ok || !t.desc.IsRenderTarget() {
		return device.ErrInvalidHandle
	}
	d.target = t.img
	return nil
}

// Clear implements device.Device.
func (d *Device) Clear(c gputypes.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	draw.Draw(d.target, d.target.Rect, image.NewUniform(toRGBA(c)), image.Point{}, draw.Src)
	return nil
}

// SetViewport implements device.Device.
func (d *Device) SetViewport(vp device.Viewport) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewport = vp
	return nil
}

// UploadVertices implements device.Device.
func (d *Device) UploadVertices(h device.Handle, vertices []device.Vertex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	b, ok := d.resources[h].(*buffer)
	if !ok {
		return device.ErrInvalidHandle
	}
	if len(vertices) > b.quads*4 {
		return fmt.Errorf("%w: %d vertices, room for %d", ErrBufferTooSmall, len(vertices), b.quads*4)
	}
	b.vertices = append(b.vertices[:0], vertices...)
	return nil
}

// Draw implements device.Device.
func (d *Device) Draw(call device.DrawCall) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	b, ok := d.resources[call.Buffer].(*buffer)
	if !ok {
		return device.ErrInvalidHandle
	}
	if _, ok := d.resources[call.Effect].(*effect); !ok {
		return device.ErrInvalidHandle
	}
	var src *image.RGBA
	if call.Texture != 0 {
		t, ok := d.resources[call.Texture].(*texture)
		if !ok {
			return device.ErrInvalidHandle
		}
		src = t.img
	}
	if call.First < 0 || (call.First+call.Count)*4 > len(b.vertices) {
		return fmt.Errorf("soft: draw of quads [%d, %d) outside %d uploaded", call.First, call.First+call.Count, len(b.vertices)/4)
	}

	blend := blendOf(call.Blend)
	for q := call.First; q < call.First+call.Count; q++ {
		quad := b.vertices[q*4 : q*4+4]
		if src != nil {
			d.drawTextured(quad, src, blend)
		} else {
			d.drawFlat(quad, blend)
		}
	}
	return nil
}

// ReadBackBuffer implements device.Device.
func (d *Device) ReadBackBuffer() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, device.ErrDeviceLost
	}
	out := image.NewRGBA(d.front.Rect)
	copy(out.Pix, d.front.Pix)
	return out, nil
}

// Close implements device.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.resources)
	return nil
}

var _ device.Device = (*Device)(nil)
