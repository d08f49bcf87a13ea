// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides a GPU device backed by gogpu/wgpu.
//
// gogpu/wgpu is a pure Go WebGPU implementation running on Vulkan, Metal,
// DX12, GLES or its own software rasteriser. The device renders into an
// offscreen back buffer; Present submits the frame and ReadBackBuffer
// copies it back to memory.
//
// Importing the package registers the device as "wgpu", the
// highest-priority backend:
//
//	import _ "github.com/katze7514/ManaGameFramework-sub000/backend/wgpu"
//
//	dev, name, err := device.OpenBest(device.Config{Width: 1280, Height: 720})
//
// # Effects
//
// Effects are WGSL with a vs_main vertex and an fs_main fragment entry
// point. Sources are validated with naga before the pipeline is built, so
// a broken effect fails CreateEffect with ErrEffect instead of failing a
// later draw. The bind groups and vertex layout are fixed:
//
//	@group(0) @binding(0) var<uniform> u: Uniforms;   // projection: mat4x4<f32>
//	@group(1) @binding(0) var tex: texture_2d<f32>;
//	@group(1) @binding(1) var samp: sampler;
//
//	@location(0) position: vec3<f32>
//	@location(1) uv: vec2<f32>
//	@location(2) modulate: vec4<f32>   // BGRA
//	@location(3) additive: vec4<f32>   // BGRA
//
// DefaultEffect returns the built-in source, used for a nil source.
//
// # Device loss
//
// Any call failing with wgpu.ErrDeviceLost marks the device lost and
// returns device.ErrDeviceLost. Reset requests a new logical device from
// the same adapter; every handle created before is invalid afterwards.
//
// # Drawing order
//
// Drawing calls are recorded per render target and submitted when the
// target changes or the frame ends. Vertex uploads and viewport changes
// are queue writes, so each render target pass takes one upload.
package wgpu
