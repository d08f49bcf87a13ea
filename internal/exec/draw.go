package exec

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"seehuhn.de/go/geom/rect"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/internal/sprite"
)

func (x *Executor) spriteDraw(c command.SpriteDraw) {
	if !c.Mode.Valid() || !c.Mode.Textured() {
		x.drop("sprite with untextured mode", "mode", c.Mode)
		return
	}
	info, ok := x.textures.Lookup(c.Texture)
	if !ok {
		x.drop("sprite with unknown texture", "texture", c.Texture)
		return
	}
	src := c.Src
	if src.Empty() {
		src = command.Rect{W: float32(info.Width), H: float32(info.Height)}
	}

	p := sprite.Param{Texture: c.Texture, Mode: c.Mode}
	m := transform(c.Transform)
	corners := [4]mgl32.Vec2{{0, 0}, {src.W, 0}, {src.W, src.H}, {0, src.H}}
	for i, v := range corners {
		p.Pos[i] = m.Mul4x1(v.Vec4(0, 1)).Vec3()
		p.UV[i] = mgl32.Vec2{src.X + v.X(), src.Y + v.Y()}
	}
	p.SetColors(c.Colors[0], c.Colors[1])
	x.submit(p, c.Target)
}

func (x *Executor) polygonDraw(c command.PolygonDraw) {
	if c.Count < 3 || c.Count > 4 {
		x.drop("polygon vertex count", "count", c.Count)
		return
	}
	if !c.Mode.Valid() || c.Mode.Textured() {
		x.drop("polygon with textured mode", "mode", c.Mode)
		return
	}
	p := sprite.Param{Mode: c.Mode}
	m := transform(c.Transform)
	for i := range 4 {
		v := c.Vertices[min(i, c.Count-1)]
		p.Pos[i] = m.Mul4x1(v.Vec4(1)).Vec3()
	}
	p.SetColors(c.Colors[0], c.Colors[1])
	x.submit(p, c.Target)
}

func (x *Executor) textDraw(c command.TextDraw) {
	var err error
	x.quads, err = x.glyphs.Layout(x.quads[:0], c.Font, c.Text)
	if err != nil {
		x.drop("text layout", "font", c.Font, "error", err)
		return
	}
	if len(x.quads) == 0 {
		return
	}
	if err := x.syncAtlas(); err != nil {
		x.drop("glyph atlas upload", "error", err)
		return
	}

	// Glyph coverage lives in the atlas alpha channel.
	mode := c.Mode
	if !mode.Textured() || !mode.Blended() {
		mode = command.ModeAlpha
	}
	for _, q := range x.quads {
		w, h := float32(q.Src.Dx()), float32(q.Src.Dy())
		x0, y0 := c.X+q.X, c.Y+q.Y
		p := sprite.Param{Texture: x.atlasID, Mode: mode}
		p.Pos = [4]mgl32.Vec3{{x0, y0, c.Z}, {x0 + w, y0, c.Z}, {x0 + w, y0 + h, c.Z}, {x0, y0 + h, c.Z}}
		u0, v0 := float32(q.Src.Min.X), float32(q.Src.Min.Y)
		p.UV = [4]mgl32.Vec2{{u0, v0}, {u0 + w, v0}, {u0 + w, v0 + h}, {u0, v0 + h}}
		p.SetColors(c.Color, gputypes.ColorTransparent)
		x.submit(p, c.Target)
	}
}

// syncAtlas registers the glyph atlas as a texture and uploads it again
// when glyphs were added.
func (x *Executor) syncAtlas() error {
	if !x.glyphs.Dirty() && x.atlasID != 0 {
		return nil
	}
	img := x.glyphs.Atlas()
	if x.atlasID == 0 {
		id, err := x.textures.AddImage(atlasName, "", img)
		if err != nil {
			return err
		}
		x.atlasID = id
	} else if err := x.textures.Update(x.atlasID, img); err != nil {
		return err
	}
	x.glyphs.ClearDirty()
	return nil
}

// submit culls p against its target and queues it.
func (x *Executor) submit(p sprite.Param, target uint32) {
	area, ok := x.targetArea(target)
	if !ok {
		x.drop("unknown render target", "target", target)
		return
	}
	minX, minY, maxX, maxY := p.Bounds()
	if float64(maxX) <= area.LLx || float64(minX) >= area.URx ||
		float64(maxY) <= area.LLy || float64(minY) >= area.URy {
		x.stats.Culled++
		return
	}
	if err := x.sprites.Add(p, target); err != nil {
		x.drop("sprite queue", "target", target, "error", err)
		return
	}
	x.stats.Sprites++
}

func (x *Executor) targetArea(target uint32) (rect.Rect, bool) {
	if target == command.BackBuffer {
		return x.area, true
	}
	info, ok := x.textures.Lookup(target)
	if !ok || !info.Target {
		return rect.Rect{}, false
	}
	return rect.Rect{URx: float64(info.Width), URy: float64(info.Height)}, true
}

func (x *Executor) drop(msg string, args ...any) {
	x.stats.Dropped++
	x.log.Warn("exec: dropped "+msg, args...)
}

// transform returns m, or the identity when m is zero.
func transform(m mgl32.Mat4) mgl32.Mat4 {
	if m == (mgl32.Mat4{}) {
		return mgl32.Ident4()
	}
	return m
}
