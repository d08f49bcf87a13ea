// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package devicetest provides a scripted device for tests.
package devicetest

import (
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

// Device is a device.Device that records calls and follows a reset script.
//
// It is safe for concurrent use so tests can inspect it while a renderer
// goroutine drives it.
type Device struct {
	mu sync.Mutex

	caps device.Capabilities

	lost   bool
	script []device.ResetResult

	next      device.Handle
	live      map[device.Handle]string
	target    device.Handle
	inFrame   bool
	width     int
	height    int
	clearCol  gputypes.Color
	viewport  device.Viewport
	vertices  map[device.Handle][]device.Vertex
	draws     []device.DrawCall
	drawnQuad int

	// Counters.
	Creates   int
	Destroys  int
	Resets    int
	Frames    int
	Presents  int
	ResetArgs []device.ResetParams
}

// New creates a mock device of the given window size.
func New(width, height int) *Device {
	return &Device{
		caps: device.Capabilities{
			Limits:               gputypes.DefaultLimits(),
			MaxPrimitivesPerDraw: 1 << 12,
			Adapter:              gpucontext.AdapterInfo{Name: "devicetest", Type: gpucontext.AdapterTypeUnknown},
			Format:               gputypes.TextureFormatRGBA8Unorm,
		},
		live:     make(map[device.Handle]string),
		vertices: make(map[device.Handle][]device.Vertex),
		width:    width,
		height:   height,
	}
}

// SetCapabilities overrides the reported capabilities.
func (d *Device) SetCapabilities(c device.Capabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = c
}

// Lose marks the device lost. Every live handle becomes invalid.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// ScriptResets queues the results of upcoming Reset calls. When the script
// is exhausted Reset reports ResetSuccess.
func (d *Device) ScriptResets(results ...device.ResetResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

// Live returns the number of live resources.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// LiveLabels returns the labels of live resources.
func (d *Device) LiveLabels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.live))
	for _, l := range d.live {
		out = append(out, l)
	}
	return out
}

// Draws returns a copy of the draw calls since the last BeginFrame.
func (d *Device) Draws() []device.DrawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]device.DrawCall(nil), d.draws...)
}

// DrawnQuads returns the number of quads drawn since the last BeginFrame.
func (d *Device) DrawnQuads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawnQuad
}

// ClearColor returns the last clear color.
func (d *Device) ClearColor() gputypes.Color {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearCol
}

// Viewport returns the last viewport.
func (d *Device) Viewport() device.Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

// Counters returns creates, destroys and resets under the lock.
func (d *Device) Counters() (creates, destroys, resets int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Creates, d.Destroys, d.Resets
}

// Capabilities implements device.Device.
func (d *Device) Capabilities() device.Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

// BeginFrame implements device.Device.
func (d *Device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return device.ErrDeviceLost
	}
	d.inFrame = true
	d.target = 0
	d.draws = d.draws[:0]
	d.drawnQuad = 0
	d.Frames++
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

// Present implements device.Device.
func (d *Device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return device.ErrDeviceLost
	}
	d.Presents++
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
	d.Resets++
	d.ResetArgs = append(d.ResetArgs, p)

	r := device.ResetSuccess
	if len(d.script) > 0 {
		r = d.script[0]
		d.script = d.script[1:]
	}
	if r == device.ResetSuccess {
		d.lost = false
		if p.Width > 0 && p.Height > 0 {
			d.width, d.height = p.Width, p.Height
		}
	}
	return r
}

func (d *Device) create(label string) (device.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, device.ErrDeviceLost
	}
	d.next++
	d.live[d.next] = label
	d.Creates++
	return d.next, nil
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(label string, _ int) (device.Handle, error) {
	return d.create(label)
}

// CreateEffect implements device.Device.
func (d *Device) CreateEffect(label string, _ []byte) (device.Handle, error) {
	return d.create(label)
}

// CreateTexture implements device.Device.
func (d *Device) CreateTexture(desc device.TextureDesc, _ *image.RGBA) (device.Handle, error) {
	return d.create(desc.Label)
}

// DestroyResource implements device.Device.
func (d *Device) DestroyResource(h device.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[h]; ok {
		delete(d.live, h)
		delete(d.vertices, h)
		d.Destroys++
	}
}

func (d *Device) check(h device.Handle) error {
	if d.lost {
		return device.ErrDeviceLost
	}
	if !d.inFrame {
		return device.ErrNotInFrame
	}
	if h != 0 {
		if _, ok := d.live[h]; !ok {
			return device.ErrInvalidHandle
		}
	}
	return nil
}

// SetRenderTarget implements device.Device.
func (d *Device) SetRenderTarget(h device.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(h); err != nil {
		return err
	}
	d.target = h
	return nil
}

// Clear implements device.Device.
func (d *Device) Clear(c gputypes.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(0); err != nil {
		return err
	}
	if d.target == 0 {
		d.clearCol = c
	}
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
func (d *Device) UploadVertices(buffer device.Handle, vertices []device.Vertex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(buffer); err != nil {
		return err
	}
	d.vertices[buffer] = append(d.vertices[buffer][:0], vertices...)
	return nil
}

// Draw implements device.Device.
func (d *Device) Draw(call device.DrawCall) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(call.Buffer); err != nil {
		return err
	}
	if err := d.check(call.Texture); err != nil {
		return err
	}
	d.draws = append(d.draws, call)
	d.drawnQuad += call.Count
	return nil
}

// ReadBackBuffer implements device.Device.
func (d *Device) ReadBackBuffer() (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, device.ErrDeviceLost
	}
	return image.NewRGBA(image.Rect(0, 0, d.width, d.height)), nil
}

// Close implements device.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.live)
	return nil
}

var _ device.Device = (*Device)(nil)
