// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

// Name is the registry name of the device.
const Name = "wgpu"

// maxPrimitivesPerDraw caps one indexed draw; indices are 32-bit.
const maxPrimitivesPerDraw = 1 << 20

// ErrSoftwareAdapter is returned by New when the only adapter is a CPU
// implementation. Its render passes do not rasterise, so the "soft" device
// is used instead.
var ErrSoftwareAdapter = errors.New("wgpu: software adapter does not render")

func init() {
	device.Register(Name, func(cfg device.Config) (device.Device, error) {
		return New(cfg)
	})
}

// Device is a device.Device rendering with WebGPU.
//
// Like every device.Device it is used from the render goroutine only.
type Device struct {
	log *slog.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	info     wgpu.AdapterInfo

	width, height int

	// Fixed objects, rebuilt with the logical device.
	back          *wgpu.Texture
	backView      *wgpu.TextureView
	sampler       *wgpu.Sampler
	uniform       *wgpu.Buffer
	uniformGroup  *wgpu.BindGroup
	globalLayout  *wgpu.BindGroupLayout
	textureLayout *wgpu.BindGroupLayout
	layout        *wgpu.PipelineLayout
	white         *texture

	next      device.Handle
	resources map[device.Handle]resource

	pass    pass
	inFrame bool
	lost    bool
}

// New opens the best adapter and creates a device with a back buffer of
// the window size of cfg.
func New(cfg device.Config) (*Device, error) {
	d := &Device{
		log:       cfg.Log().With(slog.String("device", Name)),
		width:     max(cfg.Width, 1),
		height:    max(cfg.Height, 1),
		resources: make(map[device.Handle]resource),
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	d.instance = instance

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("wgpu: request adapter: %w", err)
	}
	d.adapter = adapter
	d.info = adapter.Info()
	if err := checkAdapter(d.info); err != nil {
		d.Close()
		return nil, err
	}

	if err := d.open(); err != nil {
		d.Close()
		return nil, err
	}
	d.log.Info("wgpu: device opened",
		slog.String("adapter", d.info.Name),
		slog.String("backend", d.info.Backend.String()),
		slog.String("type", d.info.DeviceType.String()))
	return d, nil
}

// checkAdapter refuses adapters that cannot draw.
func checkAdapter(info wgpu.AdapterInfo) error {
	if info.DeviceType == gputypes.DeviceTypeCPU {
		return fmt.Errorf("%w: %s", ErrSoftwareAdapter, info.Name)
	}
	return nil
}

// open creates the logical device and the fixed objects.
func (d *Device) open() error {
	dev, err := d.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "mana",
		RequiredLimits: wgpu.DefaultLimits(),
	})
	if err != nil {
		return fmt.Errorf("wgpu: request device: %w", err)
	}
	d.dev = dev
	d.queue = dev.Queue()

	if err := d.createLayouts(); err != nil {
		return err
	}
	if err := d.createBackBuffer(); err != nil {
		return err
	}
	white, err := d.newTexture(device.SampledTexture("mana.white", 1, 1), []byte{0xff, 0xff, 0xff, 0xff})
	if err != nil {
		return err
	}
	d.white = white
	return nil
}

func (d *Device) createLayouts() error {
	var err error
	d.globalLayout, err = d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "mana.globals",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: uniformSize},
		}},
	})
	if err != nil {
		return fmt.Errorf("wgpu: globals layout: %w", err)
	}
	d.textureLayout, err = d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "mana.texture",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: texture layout: %w", err)
	}
	d.layout, err = d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "mana.sprites",
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.globalLayout, d.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: pipeline layout: %w", err)
	}

	d.sampler, err = d.dev.CreateSampler(&wgpu.SamplerDescriptor{
		Label:        "mana.linear",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return fmt.Errorf("wgpu: sampler: %w", err)
	}

	d.uniform, err = d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "mana.projection",
		Size:  uniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: uniform buffer: %w", err)
	}
	d.uniformGroup, err = d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "mana.globals",
		Layout:  d.globalLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: d.uniform, Size: uniformSize}},
	})
	if err != nil {
		return fmt.Errorf("wgpu: globals bind group: %w", err)
	}
	return nil
}

func (d *Device) createBackBuffer() error {
	back, err := d.dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "mana.backbuffer",
		Size:          wgpu.Extent3D{Width: uint32(d.width), Height: uint32(d.height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("wgpu: back buffer: %w", err)
	}
	view, err := d.dev.CreateTextureView(back, nil)
	if err != nil {
		back.Release()
		return fmt.Errorf("wgpu: back buffer view: %w", err)
	}
	d.back, d.backView = back, view
	return nil
}

// release drops every object of the logical device.
func (d *Device) release() {
	d.pass = pass{}
	for h, r := range d.resources {
		r.release()
		delete(d.resources, h)
	}
	if d.white != nil {
		d.white.release()
		d.white = nil
	}
	if d.backView != nil {
		d.backView.Release()
		d.backView = nil
	}
	if d.back != nil {
		d.back.Release()
		d.back = nil
	}
	if d.uniformGroup != nil {
		d.uniformGroup.Release()
		d.uniformGroup = nil
	}
	if d.uniform != nil {
		d.uniform.Release()
		d.uniform = nil
	}
	if d.sampler != nil {
		d.sampler.Release()
		d.sampler = nil
	}
	if d.layout != nil {
		d.layout.Release()
		d.layout = nil
	}
	if d.textureLayout != nil {
		d.textureLayout.Release()
		d.textureLayout = nil
	}
	if d.globalLayout != nil {
		d.globalLayout.Release()
		d.globalLayout = nil
	}
	if d.dev != nil {
		d.dev.Release()
		d.dev, d.queue = nil, nil
	}
}

// check maps a lost device to device.ErrDeviceLost.
func (d *Device) check(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, wgpu.ErrDeviceLost) || errors.Is(err, wgpu.ErrReleased) {
		if !d.lost {
			d.log.Warn("wgpu: device lost", slog.Any("error", err))
		}
		d.lost = true
		return fmt.Errorf("%w: %w", device.ErrDeviceLost, err)
	}
	return err
}

// Capabilities implements device.Device.
func (d *Device) Capabilities() device.Capabilities {
	limits := wgpu.DefaultLimits()
	if d.dev != nil {
		limits = d.dev.Limits()
	}
	return device.Capabilities{
		Limits:               limits,
		MaxPrimitivesPerDraw: maxPrimitivesPerDraw,
		EffectLanguage:       "wgsl",
		Adapter:              gpucontext.AdapterInfo{Name: d.info.Name, Type: adapterType(d.info.DeviceType)},
		Format:               gputypes.TextureFormatRGBA8Unorm,
	}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// IsLost implements device.Device.
func (d *Device) IsLost() bool {
	return d.lost
}

// Reset implements device.Device. The logical device is recreated even
// when it was not lost, which is how a window size change is applied.
func (d *Device) Reset(p device.ResetParams) device.ResetResult {
	if d.adapter == nil {
		return device.ResetFatal
	}
	d.release()
	if p.Width > 0 && p.Height > 0 {
		d.width, d.height = p.Width, p.Height
	}
	if err := d.open(); err != nil {
		d.release()
		d.lost = true
		if errors.Is(err, wgpu.ErrNoAdapters) || errors.Is(err, wgpu.ErrNoBackends) {
			d.log.Error("wgpu: reset failed", slog.Any("error", err))
			return device.ResetFatal
		}
		d.log.Warn("wgpu: reset not ready", slog.Any("error", err))
		return device.ResetNotReady
	}
	d.lost = false
	d.inFrame = false
	d.log.Info("wgpu: device reset", slog.Int("width", d.width), slog.Int("height", d.height))
	return device.ResetSuccess
}

// Close implements device.Device.
func (d *Device) Close() error {
	d.release()
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	return nil
}

var _ device.Device = (*Device)(nil)
