package glyph

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const (
	defaultAtlasSize = 256
	atlasPadding     = 1
)

type glyphKey struct {
	font uint32
	gid  sfnt.GlyphIndex
}

// slot locates a rasterised glyph in the atlas.
type slot struct {
	src image.Rectangle
	// offset is the top-left of the glyph relative to the pen on the baseline.
	offset image.Point
}

// atlas packs glyph coverage into rows of a square RGBA image.
// Glyphs are stored as premultiplied white, so the sprite color tints them.
type atlas struct {
	img     *image.RGBA
	maxSize int
	slots   map[glyphKey]slot
	x, y    int
	rowH    int
	dirty   bool
	// generation changes whenever existing slots are invalidated.
	generation int

	raster *vector.Rasterizer
	mask   *image.Alpha
}

func newAtlas(maxSize int) *atlas {
	size := min(defaultAtlasSize, maxSize)
	return &atlas{
		img:     image.NewRGBA(image.Rect(0, 0, size, size)),
		maxSize: maxSize,
		slots:   make(map[glyphKey]slot),
		raster:  vector.NewRasterizer(1, 1),
	}
}

// reserve finds room for a w×h glyph, growing or clearing the atlas when
// needed. It reports false when the glyph can never fit.
func (a *atlas) reserve(w, h int) (image.Point, bool) {
	w += atlasPadding
	h += atlasPadding
	size := a.img.Rect.Dx()
	if w > a.maxSize || h > a.maxSize {
		return image.Point{}, false
	}
	for {
		if a.x+w > size {
			a.x = 0
			a.y += a.rowH
			a.rowH = 0
		}
		if a.x+w <= size && a.y+h <= size {
			p := image.Pt(a.x, a.y)
			a.x += w
			a.rowH = max(a.rowH, h)
			return p, true
		}
		if size < a.maxSize {
			a.grow(min(size*2, a.maxSize))
		} else {
			a.reset()
		}
		size = a.img.Rect.Dx()
	}
}

// grow copies the atlas into a larger image. Existing slots stay valid.
func (a *atlas) grow(size int) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range a.img.Rect.Dy() {
		copy(img.Pix[y*img.Stride:], a.img.Pix[y*a.img.Stride:y*a.img.Stride+a.img.Rect.Dx()*4])
	}
	// Packing restarts below the old content.
	a.x, a.y, a.rowH = 0, a.img.Rect.Dy(), 0
	a.img = img
	a.dirty = true
}

// reset drops every glyph.
func (a *atlas) reset() {
	clear(a.img.Pix)
	clear(a.slots)
	a.x, a.y, a.rowH = 0, 0, 0
	a.dirty = true
	a.generation++
}

// rasterize renders glyph gid of f into the atlas and returns its slot.
func (a *atlas) rasterize(f *Font, gid sfnt.GlyphIndex, buf *sfnt.Buffer) (slot, error) {
	key := glyphKey{font: f.ID, gid: gid}
	if s, ok := a.slots[key]; ok {
		return s, nil
	}

	segs, err := f.outlines.LoadGlyph(buf, gid, f.ppem, nil)
	if err != nil {
		return slot{}, err
	}
	b := segs.Bounds()
	x0 := int(math.Floor(fixedToFloat(b.Min.X)))
	y0 := int(math.Floor(fixedToFloat(b.Min.Y)))
	x1 := int(math.Ceil(fixedToFloat(b.Max.X)))
	y1 := int(math.Ceil(fixedToFloat(b.Max.Y)))
	w, h := x1-x0, y1-y0
	if len(segs) == 0 || w <= 0 || h <= 0 {
		// Whitespace: nothing to draw.
		s := slot{}
		a.slots[key] = s
		return s, nil
	}

	at, ok := a.reserve(w, h)
	if !ok {
		return slot{}, ErrAtlasFull
	}

	a.raster.Reset(w, h)
	dx, dy := float32(-x0), float32(-y0)
	for _, seg := range segs {
		p := seg.Args
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			a.raster.MoveTo(fx(p[0].X)+dx, fx(p[0].Y)+dy)
		case sfnt.SegmentOpLineTo:
			a.raster.LineTo(fx(p[0].X)+dx, fx(p[0].Y)+dy)
		case sfnt.SegmentOpQuadTo:
			a.raster.QuadTo(fx(p[0].X)+dx, fx(p[0].Y)+dy, fx(p[1].X)+dx, fx(p[1].Y)+dy)
		case sfnt.SegmentOpCubeTo:
			a.raster.CubeTo(fx(p[0].X)+dx, fx(p[0].Y)+dy, fx(p[1].X)+dx, fx(p[1].Y)+dy,
				fx(p[2].X)+dx, fx(p[2].Y)+dy)
		}
	}
	a.raster.ClosePath()

	if a.mask == nil || a.mask.Rect.Dx() < w || a.mask.Rect.Dy() < h {
		a.mask = image.NewAlpha(image.Rect(0, 0, max(w, 64), max(h, 64)))
	}
	clear(a.mask.Pix)
	a.raster.Draw(a.mask, image.Rect(0, 0, w, h), image.Opaque, image.Point{})

	for y := range h {
		for x := range w {
			c := a.mask.AlphaAt(x, y).A
			a.img.SetRGBA(at.X+x, at.Y+y, color.RGBA{R: c, G: c, B: c, A: c})
		}
	}

	s := slot{src: image.Rect(at.X, at.Y, at.X+w, at.Y+h), offset: image.Pt(x0, y0)}
	a.slots[key] = s
	a.dirty = true
	return s, nil
}

// forget drops the glyphs of one font. Their atlas space is not reclaimed
// until the next reset.
func (a *atlas) forget(fontID uint32) {
	for k := range a.slots {
		if k.font == fontID {
			delete(a.slots, k)
		}
	}
}

func fx(v fixed.Int26_6) float32 {
	return float32(v) / 64
}
