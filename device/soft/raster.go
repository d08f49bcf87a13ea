// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/katze7514/ManaGameFramework-sub000/device"
)

type blendMode uint8

const (
	blendReplace blendMode = iota
	blendAlpha
	blendAdd
)

func blendOf(b gputypes.BlendState) blendMode {
	switch b.Color.DstFactor {
	case gputypes.BlendFactorOne:
		return blendAdd
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return blendAlpha
	default:
		return blendReplace
	}
}

func (m blendMode) op() draw.Op {
	if m == blendAlpha {
		return draw.Over
	}
	return draw.Src
}

func toRGBA(c gputypes.Color) color.NRGBA {
	return color.NRGBA{R: unit(c.R), G: unit(c.G), B: unit(c.B), A: unit(c.A)}
}

func unit(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 1) * 255))
}

// argb splits a 0xAARRGGBB color.
func argb(c uint32) (a, r, g, b uint32) {
	return c >> 24, c >> 16 & 0xff, c >> 8 & 0xff, c & 0xff
}

// project maps a vertex to target pixels.
func (d *Device) project(v device.Vertex) (x, y float64) {
	vp := d.viewport
	if vp.Projection == (mgl32.Mat4{}) {
		return float64(vp.X) + float64(v.X), float64(vp.Y) + float64(v.Y)
	}
	c := vp.Projection.Mul4x1(mgl32.Vec4{v.X, v.Y, v.Z, 1})
	if w := c.W(); w != 0 && w != 1 {
		c = c.Mul(1 / w)
	}
	x = float64(vp.X) + (float64(c.X())+1)/2*float64(vp.Width)
	y = float64(vp.Y) + (1-float64(c.Y()))/2*float64(vp.Height)
	return x, y
}

// clip returns the part of the current target inside the viewport.
func (d *Device) clip() image.Rectangle {
	vp := d.viewport
	r := image.Rect(vp.X, vp.Y, vp.X+vp.Width, vp.Y+vp.Height)
	if vp.Width <= 0 || vp.Height <= 0 {
		r = d.target.Rect
	}
	return r.Intersect(d.target.Rect)
}

// bounds returns the pixel bounding box of projected points within clip.
func bounds(pts [4][2]float64, clip image.Rectangle) image.Rectangle {
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		x0, y0 = min(x0, p[0]), min(y0, p[1])
		x1, y1 = max(x1, p[0]), max(y1, p[1])
	}
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	return r.Intersect(clip)
}

func (d *Device) corners(quad []device.Vertex) (pts [4][2]float64) {
	for i, v := range quad {
		pts[i][0], pts[i][1] = d.project(v)
	}
	return pts
}

// drawTextured draws a quad as the affine image of its texture rectangle.
// Corners 0, 1 and 3 define the mapping; corner 2 is assumed to complete
// the parallelogram.
func (d *Device) drawTextured(quad []device.Vertex, src *image.RGBA, mode blendMode) {
	clip := d.clip()
	pts := d.corners(quad)
	box := bounds(pts, clip)
	if box.Empty() {
		return
	}

	tw, th := float64(src.Rect.Dx()), float64(src.Rect.Dy())
	var uv [4][2]float64
	for i, v := range quad {
		uv[i] = [2]float64{float64(v.U) * tw, float64(v.V) * th}
	}
	s2d, ok := affine(uv[0], uv[1], uv[3], pts[0], pts[1], pts[3])
	if !ok {
		return
	}

	sr := bounds(uv, src.Rect)
	if sr.Empty() {
		return
	}
	img := d.tint(src, sr, quad[0].Mod, quad[0].Add)

	dst := d.target.SubImage(box).(*image.RGBA)
	if mode == blendAdd {
		layer := d.scratchLayer(box)
		draw.ApproxBiLinear.Transform(layer, s2d, img, sr, draw.Src, nil)
		addLayer(dst, layer)
		return
	}
	draw.ApproxBiLinear.Transform(dst, s2d, img, sr, mode.op(), nil)
}

// drawFlat fills a quad with the color of its first vertex.
func (d *Device) drawFlat(quad []device.Vertex, mode blendMode) {
	clip := d.clip()
	pts := d.corners(quad)
	box := bounds(pts, clip)
	if box.Empty() {
		return
	}

	fill := image.NewUniform(flatColor(quad[0].Mod, quad[0].Add))
	ox, oy := float32(box.Min.X), float32(box.Min.Y)
	d.raster.Reset(box.Dx(), box.Dy())
	d.raster.MoveTo(float32(pts[0][0])-ox, float32(pts[0][1])-oy)
	for _, p := range pts[1:] {
		d.raster.LineTo(float32(p[0])-ox, float32(p[1])-oy)
	}
	d.raster.ClosePath()

	if mode == blendAdd {
		layer := d.scratchLayer(box)
		d.raster.DrawOp = draw.Src
		d.raster.Draw(layer, box, fill, image.Point{})
		addLayer(d.target.SubImage(box).(*image.RGBA), layer)
		return
	}
	d.raster.DrawOp = mode.op()
	d.raster.Draw(d.target, box, fill, image.Point{})
}

// affine solves the transform taking s0, s1, s3 to d0, d1, d3.
func affine(s0, s1, s3, d0, d1, d3 [2]float64) (f64.Aff3, bool) {
	sx := [2]float64{s1[0] - s0[0], s1[1] - s0[1]}
	sy := [2]float64{s3[0] - s0[0], s3[1] - s0[1]}
	dx := [2]float64{d1[0] - d0[0], d1[1] - d0[1]}
	dy := [2]float64{d3[0] - d0[0], d3[1] - d0[1]}

	det := sx[0]*sy[1] - sy[0]*sx[1]
	if math.Abs(det) < 1e-9 {
		return f64.Aff3{}, false
	}
	m00 := (dx[0]*sy[1] - dy[0]*sx[1]) / det
	m01 := (dy[0]*sx[0] - dx[0]*sy[0]) / det
	m10 := (dx[1]*sy[1] - dy[1]*sx[1]) / det
	m11 := (dy[1]*sx[0] - dx[1]*sy[0]) / det
	tx := d0[0] - m00*s0[0] - m01*s0[1]
	ty := d0[1] - m10*s0[0] - m11*s0[1]
	return f64.Aff3{m00, m01, tx, m10, m11, ty}, true
}

// tint applies the modulate and additive vertex colors to the sr part of
// src. The result shares src's coordinate space.
func (d *Device) tint(src *image.RGBA, sr image.Rectangle, mod, add uint32) *image.RGBA {
	if mod == 0xffffffff && add&0x00ffffff == 0 {
		return src
	}
	if d.tinted == nil || !sr.In(d.tinted.Rect) || d.tinted.Rect != src.Rect {
		d.tinted = image.NewRGBA(src.Rect)
	}
	ma, mr, mg, mb := argb(mod)
	_, ar, ag, ab := argb(add)
	for y := sr.Min.Y; y < sr.Max.Y; y++ {
		for x := sr.Min.X; x < sr.Max.X; x++ {
			i := src.PixOffset(x, y)
			s := src.Pix[i : i+4 : i+4]
			t := d.tinted.Pix[i : i+4 : i+4]
			a := uint32(s[3]) * ma / 255
			t[0] = addChannel(uint32(s[0])*mr*ma/(255*255), ar, a)
			t[1] = addChannel(uint32(s[1])*mg*ma/(255*255), ag, a)
			t[2] = addChannel(uint32(s[2])*mb*ma/(255*255), ab, a)
			t[3] = uint8(a)
		}
	}
	return d.tinted
}

// addChannel adds a straight color channel to a premultiplied one.
func addChannel(premul, add, alpha uint32) uint8 {
	return uint8(min(premul+add*alpha/255, alpha))
}

func flatColor(mod, add uint32) color.NRGBA {
	a, r, g, b := argb(mod)
	_, ar, ag, ab := argb(add)
	return color.NRGBA{
		R: uint8(min(r+ar, 255)),
		G: uint8(min(g+ag, 255)),
		B: uint8(min(b+ab, 255)),
		A: uint8(a),
	}
}

// scratchLayer returns a transparent image covering r.
func (d *Device) scratchLayer(r image.Rectangle) *image.RGBA {
	if d.layer == nil || !r.In(d.layer.Rect) {
		d.layer = image.NewRGBA(d.target.Rect.Union(r))
	}
	l := d.layer.SubImage(r).(*image.RGBA)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := l.PixOffset(r.Min.X, y)
		clear(l.Pix[i : i+r.Dx()*4])
	}
	return l
}

// addLayer adds the premultiplied color of layer to dst, keeping dst alpha.
func addLayer(dst, layer *image.RGBA) {
	r := dst.Rect.Intersect(layer.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			di, li := dst.PixOffset(x, y), layer.PixOffset(x, y)
			dp, lp := dst.Pix[di:di+4:di+4], layer.Pix[li:li+4:li+4]
			for c := range 3 {
				dp[c] = uint8(min(uint32(dp[c])+uint32(lp[c]), 255))
			}
		}
	}
}
