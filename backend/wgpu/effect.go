// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

//go:embed shaders/sprite.wgsl
var spriteWGSL string

// ErrEffect is returned by CreateEffect for sources that do not compile.
var ErrEffect = errors.New("wgpu: invalid effect")

// DefaultEffect returns the WGSL source of the built-in sprite effect.
func DefaultEffect() []byte {
	return []byte(spriteWGSL)
}

// ValidateEffect compiles WGSL source with naga and reports the first
// error. The SPIR-V output is discarded; the device compiles the source
// itself for its own backend.
func ValidateEffect(source string) error {
	if _, err := naga.Compile(source); err != nil {
		return fmt.Errorf("%w: %w", ErrEffect, err)
	}
	return nil
}

// vertexLayout matches device.Vertex as written by encodeVertices.
var vertexLayout = wgpu.VertexBufferLayout{
	ArrayStride: vertexStride,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
		{Format: gputypes.VertexFormatUnorm8x4, Offset: 20, ShaderLocation: 2},
		{Format: gputypes.VertexFormatUnorm8x4, Offset: 24, ShaderLocation: 3},
	},
}

type effect struct {
	label     string
	module    *wgpu.ShaderModule
	pipelines map[gputypes.BlendState]*wgpu.RenderPipeline
}

func (e *effect) release() {
	for _, p := range e.pipelines {
		p.Release()
	}
	clear(e.pipelines)
	e.module.Release()
}

// CreateEffect implements device.Device.
func (d *Device) CreateEffect(label string, source []byte) (device.Handle, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	src := spriteWGSL
	if source != nil {
		src = string(source)
	}
	if err := ValidateEffect(src); err != nil {
		return 0, fmt.Errorf("effect %q: %w", label, err)
	}
	module, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: label, WGSL: src})
	if err != nil {
		return 0, d.check(fmt.Errorf("wgpu: effect %q: %w", label, err))
	}
	e := &effect{label: label, module: module, pipelines: make(map[gputypes.BlendState]*wgpu.RenderPipeline)}
	return d.add(e), nil
}

// pipeline returns the pipeline of e for one blend state, creating it on
// first use.
func (d *Device) pipeline(e *effect, blend gputypes.BlendState) (*wgpu.RenderPipeline, error) {
	if p, ok := e.pipelines[blend]; ok {
		return p, nil
	}
	p, err := d.dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  e.label,
		Layout: d.layout,
		Vertex: wgpu.VertexState{
			Module:     e.module,
			EntryPoint: "vs_main",
			Buffers:    []wgpu.VertexBufferLayout{vertexLayout},
		},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &wgpu.FragmentState{
			Module:     e.module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: pipeline %q: %w", e.label, err))
	}
	e.pipelines[blend] = p
	return p, nil
}
