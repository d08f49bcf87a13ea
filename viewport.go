// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"seehuhn.de/go/geom/rect"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

// letterbox fits a renderW×renderH area into a windowW×windowH window,
// centred and with the aspect ratio kept. The result is in window pixels
// with the origin at the top-left.
func letterbox(renderW, renderH, windowW, windowH int) rect.Rect {
	if renderW <= 0 || renderH <= 0 || windowW <= 0 || windowH <= 0 {
		return rect.Rect{}
	}
	scale := math.Min(float64(windowW)/float64(renderW), float64(windowH)/float64(renderH))
	w := math.Floor(float64(renderW) * scale)
	h := math.Floor(float64(renderH) * scale)
	x := math.Floor((float64(windowW) - w) / 2)
	y := math.Floor((float64(windowH) - h) / 2)
	return rect.Rect{LLx: x, LLy: y, URx: x + w, URy: y + h}
}

// backBufferViewport maps the render area into its letterbox.
func backBufferViewport(renderW, renderH, windowW, windowH int) device.Viewport {
	box := letterbox(renderW, renderH, windowW, windowH)
	return device.Viewport{
		X:          int(box.LLx),
		Y:          int(box.LLy),
		Width:      int(box.URx - box.LLx),
		Height:     int(box.URy - box.LLy),
		Projection: mgl32.Ortho2D(0, float32(renderW), float32(renderH), 0),
	}
}

// targetViewport maps a render target onto itself.
func targetViewport(w, h int) device.Viewport {
	return device.Viewport{
		Width:      w,
		Height:     h,
		Projection: mgl32.Ortho2D(0, float32(w), float32(h), 0),
	}
}
