// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mana is the rendering core of the Mana game framework.
//
// # Overview
//
// Game logic produces render commands on one goroutine; a Renderer executes
// them against a graphics device on another. The two sides only share a
// double-buffered command queue, so commands are plain values and the
// device is touched exclusively by the render goroutine.
//
// # Quick Start
//
//	import (
//	    "github.com/katze7514/ManaGameFramework-sub000"
//	    "github.com/katze7514/ManaGameFramework-sub000/command"
//	    "github.com/katze7514/ManaGameFramework-sub000/device"
//	    _ "github.com/katze7514/ManaGameFramework-sub000/device/soft"
//	)
//
//	dev, err := device.Open("soft", device.Config{Width: 640, Height: 480})
//	r, err := mana.NewRenderer(dev, mana.WithWindowSize(640, 480))
//	defer r.Close()
//
//	// Producer side.
//	if r.StartRequest(true) {
//	    r.Request(command.NewSprite(hero, command.Rect{W: 32, H: 32}, 100, 100, 0))
//	    r.EndRequest()
//	}
//
//	// Host side, once per frame.
//	switch r.Render(true) {
//	case mana.StatusFatal:
//	    // shut down
//	}
//
// # Requests
//
// StartRequest, Request and EndRequest bracket a batch of commands. Batches
// are executed in submission order, and commands within a batch in the
// order they were requested. StartRequest refuses new batches while the
// device is lost; batches submitted earlier are kept and executed once the
// device is back.
//
// # Sorting
//
// Drawing commands become sprite primitives collected per render target.
// Opaque primitives are grouped by texture; blended primitives are drawn
// back to front. Render targets are drawn in priority order with the back
// buffer last, then the frame is presented.
//
// # Device loss
//
// Render checks the device every frame. A lost device, or a reset requested
// with DeviceReset, releases every device resource and retries the reset on
// each following Render until it succeeds (resources are recreated) or
// fails for good (StatusFatal, after which the renderer stays unusable).
//
// # Asynchronous rendering
//
// With WithAsync the frame step runs on a goroutine started by Start. Render
// then schedules a frame and, when asked to wait, returns its status.
//
// # Logging
//
// The renderer logs through log/slog. Use WithLogger to inject a logger or
// SetLogger to change the package default, which is silent.
package mana
