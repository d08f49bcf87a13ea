// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device defines the graphics device the renderer draws with.
//
// A Device hides the native graphics API: it begins and ends frames,
// creates and destroys GPU resources, draws batches of quads and reports
// device loss. The renderer never shares a Device between goroutines.
//
// # Backends
//
// Backends register themselves by name, following the database/sql driver
// pattern:
//
//	import _ "github.com/katze7514/ManaGameFramework-sub000/device/soft"
//
//	dev, err := device.Open("soft", device.Config{Width: 640, Height: 480})
//
// OpenBest picks the highest-priority registered backend: "wgpu", then
// "soft", then "null".
//
// # Device loss
//
// When IsLost reports true every resource handle becomes invalid. The
// caller releases its handles, calls Reset until it reports ResetSuccess
// (or ResetFatal) and then creates its resources again.
package device
