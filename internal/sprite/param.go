// Package sprite holds the render-ready primitives of a frame.
//
// Primitives are collected per render target into buckets. Each bucket keeps
// opaque and blended primitives apart because they sort differently: opaque
// primitives are grouped by texture to minimise state changes, blended
// primitives are ordered back to front. Buckets are visited in render target
// priority order with the back buffer last.
package sprite

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/command"
)

// Param is one device-ready quad.
//
// Triangles are stored as quads whose last vertex repeats the third.
// The Z of vertex 0 is the sort key.
type Param struct {
	Pos [4]mgl32.Vec3
	// UV is in texels of Texture; it is normalised when vertices are built
	// because a texture may be resized within a frame.
	UV [4]mgl32.Vec2
	// Colors holds the four modulate and the four additive vertex colors,
	// packed as 0xAARRGGBB.
	Colors  [2][4]uint32
	Texture uint32
	Mode    command.DrawMode
}

// Z returns the sort key of the primitive.
func (p *Param) Z() float32 {
	return p.Pos[0].Z()
}

// SetColors fills all four vertices with the modulate and additive colors.
func (p *Param) SetColors(mod, add command.Color) {
	m, a := PackColor(mod), PackColor(add)
	for i := range 4 {
		p.Colors[0][i] = m
		p.Colors[1][i] = a
	}
}

// Bounds returns the axis-aligned bounds of the four positions.
func (p *Param) Bounds() (minX, minY, maxX, maxY float32) {
	minX, minY = float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY = float32(math.Inf(-1)), float32(math.Inf(-1))
	for _, v := range p.Pos {
		minX = min(minX, v.X())
		minY = min(minY, v.Y())
		maxX = max(maxX, v.X())
		maxY = max(maxY, v.Y())
	}
	return minX, minY, maxX, maxY
}

// PackColor converts a float color to 0xAARRGGBB.
func PackColor(c command.Color) uint32 {
	return uint32(channel(c.A))<<24 | uint32(channel(c.R))<<16 |
		uint32(channel(c.G))<<8 | uint32(channel(c.B))
}

// UnpackColor converts 0xAARRGGBB back to a float color.
func UnpackColor(v uint32) command.Color {
	return gputypes.NewColor(
		float64(v>>16&0xff)/255,
		float64(v>>8&0xff)/255,
		float64(v&0xff)/255,
		float64(v>>24)/255,
	)
}

func channel(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	default:
		return uint8(f*255 + 0.5)
	}
}
