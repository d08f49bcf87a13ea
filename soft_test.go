// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/device/soft"
)

func TestRenderer_SoftDevice(t *testing.T) {
	dev, err := device.Open(soft.Name, device.Config{Width: 128, Height: 64})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	r, err := NewRenderer(dev, WithRenderSize(64, 64), WithWindowSize(128, 64))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	red := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(red, red.Rect, image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	submit(t, r, command.InfoAdd{Info: command.InfoTexture, Name: "red", Image: red})
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}
	id, _ := r.TextureID("red")

	s := opaque(id, 8, 8, 1)
	s.Src = command.Rect{W: 8, H: 8}
	poly := command.PolygonDraw{
		Vertices: [4]mgl32.Vec3{{32, 32, 0}, {48, 32, 0}, {48, 48, 0}, {32, 48, 0}},
		Count:    4,
		Colors:   [2]command.Color{gputypes.NewColor(0, 1, 0, 1), gputypes.ColorTransparent},
		Mode:     command.ModeFlat,
	}
	submit(t, r, s, poly)
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}

	img, err := dev.ReadBackBuffer()
	if err != nil {
		t.Fatal(err)
	}
	// The 64x64 render area is pillarboxed at x = 32 in the 128x64 window.
	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"sprite", 32 + 12, 12, color.RGBA{255, 0, 0, 255}},
		{"polygon", 32 + 40, 40, color.RGBA{0, 255, 0, 255}},
		{"background", 32 + 2, 2, color.RGBA{0, 0, 0, 255}},
		{"bar", 4, 30, color.RGBA{0, 0, 0, 255}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("%s pixel (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}
