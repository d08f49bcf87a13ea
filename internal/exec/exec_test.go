package exec

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/device/devicetest"
	"github.com/katze7514/ManaGameFramework-sub000/internal/glyph"
	"github.com/katze7514/ManaGameFramework-sub000/internal/sprite"
	"github.com/katze7514/ManaGameFramework-sub000/internal/texture"
)

type fixture struct {
	x        *Executor
	textures *texture.Manager
	glyphs   *glyph.Engine
	sprites  *sprite.Queue
	tex      uint32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := devicetest.New(640, 480)
	f := &fixture{
		textures: texture.New(dev, texture.Config{}, nil),
		glyphs:   glyph.NewEngine(0, 0),
		sprites:  sprite.New(0, 16, sprite.GroupOrderSumZ),
	}
	f.x = New(f.textures, f.glyphs, f.sprites, 640, 480, nil)

	id, err := f.textures.AddImage("hero", "stage", image.NewRGBA(image.Rect(0, 0, 100, 50)))
	if err != nil {
		t.Fatal(err)
	}
	f.tex = id
	return f
}

func TestExecute_SpriteCulled(t *testing.T) {
	f := newFixture(t)

	// X spans [-500, -400] against a 640 wide render area.
	f.x.Execute(command.NewSprite(f.tex, command.Rect{W: 100, H: 50}, -500, 10, 0))
	if f.sprites.Len() != 0 {
		t.Fatalf("culled sprite was queued")
	}
	if s := f.x.Stats(); s.Culled != 1 || s.Sprites != 0 || s.Dropped != 0 {
		t.Errorf("Stats() = %+v", s)
	}

	// Partially visible sprites are kept.
	f.x.Execute(command.NewSprite(f.tex, command.Rect{W: 100, H: 50}, -50, 10, 0))
	if f.sprites.Len() != 1 {
		t.Errorf("partially visible sprite not queued")
	}
}

func TestExecute_SpriteTransform(t *testing.T) {
	f := newFixture(t)

	cmd := command.NewSprite(f.tex, command.Rect{X: 10, Y: 5, W: 20, H: 10}, 100, 200, 3)
	cmd.Transform = cmd.Transform.Mul4(mgl32.Scale3D(2, 2, 1))
	f.x.Execute(cmd)

	b := f.sprites.Bucket(command.BackBuffer)
	if b.Len() != 1 {
		t.Fatalf("bucket len = %d, want 1", b.Len())
	}
	p := b.At(0)
	want := [4]mgl32.Vec3{{100, 200, 3}, {140, 200, 3}, {140, 220, 3}, {100, 220, 3}}
	for i := range want {
		if !p.Pos[i].ApproxEqual(want[i]) {
			t.Errorf("Pos[%d] = %v, want %v", i, p.Pos[i], want[i])
		}
	}
	if p.UV[0] != (mgl32.Vec2{10, 5}) || p.UV[2] != (mgl32.Vec2{30, 15}) {
		t.Errorf("UV = %v", p.UV)
	}
	if p.Z() != 3 {
		t.Errorf("Z() = %v, want 3", p.Z())
	}
}

func TestExecute_ZeroTransformIsIdentity(t *testing.T) {
	f := newFixture(t)
	f.x.Execute(command.SpriteDraw{Texture: f.tex, Mode: command.ModeOpaque})

	b := f.sprites.Bucket(command.BackBuffer)
	if len(b.Opaque) != 1 {
		t.Fatalf("opaque len = %d, want 1", len(b.Opaque))
	}
	// An empty source rect draws the whole texture.
	if got := b.Opaque[0].Pos[2]; got != (mgl32.Vec3{100, 50, 0}) {
		t.Errorf("Pos[2] = %v, want {100 50 0}", got)
	}
}

func TestExecute_Dropped(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
	}{
		{"unknown texture", command.NewSprite(99, command.Rect{W: 1, H: 1}, 0, 0, 0)},
		{"untextured sprite", command.SpriteDraw{Texture: 1, Mode: command.ModeFlat}},
		{"unknown target", func() command.Command {
			c := command.NewSprite(1, command.Rect{W: 1, H: 1}, 0, 0, 0)
			c.Target = 42
			return c
		}()},
		{"polygon count", command.PolygonDraw{Count: 2, Mode: command.ModeFlat}},
		{"textured polygon", command.PolygonDraw{Count: 3, Mode: command.ModeAlpha}},
		{"unknown font", command.TextDraw{Font: 7, Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.x.Execute(tt.cmd)
			if f.sprites.Len() != 0 {
				t.Error("dropped command queued a sprite")
			}
			if s := f.x.Stats(); s.Dropped != 1 || s.Commands != 1 {
				t.Errorf("Stats() = %+v", s)
			}
		})
	}
}

func TestExecute_Polygon(t *testing.T) {
	f := newFixture(t)
	f.x.Execute(command.PolygonDraw{
		Vertices: [4]mgl32.Vec3{{10, 10, 1}, {50, 10, 1}, {30, 40, 1}},
		Count:    3,
		Colors:   [2]command.Color{gputypes.ColorWhite, gputypes.ColorTransparent},
		Mode:     command.ModeFlat,
	})
	b := f.sprites.Bucket(command.BackBuffer)
	if len(b.Opaque) != 1 {
		t.Fatalf("opaque len = %d, want 1", len(b.Opaque))
	}
	p := b.Opaque[0]
	if p.Pos[3] != p.Pos[2] {
		t.Errorf("triangle not padded: %v", p.Pos)
	}
	if p.Colors[0][0] != 0xFFFFFFFF {
		t.Errorf("modulate color = %#x", p.Colors[0][0])
	}
}

func TestExecute_FIFO(t *testing.T) {
	f := newFixture(t)
	var got []int
	for i := range 5 {
		f.x.Execute(command.InfoAdd{
			Info:  command.InfoTexture,
			Name:  string(rune('a' + i)),
			Image: image.NewRGBA(image.Rect(0, 0, 4, 4)),
			Done: func(id uint32, ok bool) {
				if ok {
					got = append(got, int(id))
				}
			},
		})
	}
	// Ids are assigned in execution order after the fixture texture.
	for i, id := range got {
		if id != int(f.tex)+1+i {
			t.Fatalf("ids = %v, not in submission order", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("got %d callbacks, want 5", len(got))
	}
}

func TestExecute_RenderTargets(t *testing.T) {
	f := newFixture(t)

	var rt uint32
	f.x.Execute(command.InfoAdd{
		Info: command.InfoRenderTarget, Name: "minimap", Group: "hud",
		Width: 64, Height: 64, Priority: 1,
		Done: func(id uint32, ok bool) {
			if ok {
				rt = id
			}
		},
	})
	if rt == 0 || !f.sprites.HasTarget(rt) {
		t.Fatalf("render target %d has no bucket", rt)
	}

	// A second target with the same priority is rejected and unregistered.
	var dupOK bool
	f.x.Execute(command.InfoAdd{
		Info: command.InfoRenderTarget, Name: "other", Width: 8, Height: 8, Priority: 1,
		Done: func(_ uint32, ok bool) { dupOK = ok },
	})
	if dupOK {
		t.Error("duplicate priority accepted")
	}
	if _, ok := f.textures.ID("other"); ok {
		t.Error("rejected target stayed registered")
	}

	// Culling uses the target's own size.
	s := command.NewSprite(f.tex, command.Rect{W: 10, H: 10}, 100, 0, 0)
	s.Target = rt
	f.x.Execute(s)
	if f.x.Stats().Culled != 1 {
		t.Errorf("sprite outside a 64x64 target not culled")
	}

	f.x.Execute(command.GroupControl{Op: command.GroupRemove, Group: "hud"})
	if f.sprites.HasTarget(rt) {
		t.Error("group remove kept the target bucket")
	}
}

func TestExecute_RemoveAndRelease(t *testing.T) {
	f := newFixture(t)
	if _, err := f.textures.Acquire(f.tex); err != nil {
		t.Fatal(err)
	}

	f.x.Execute(command.GroupControl{Op: command.GroupRelease, Group: "stage"})
	if info, _ := f.textures.Lookup(f.tex); info.Resident {
		t.Error("group release kept the GPU copy")
	}

	f.x.Execute(command.InfoRemove{Info: command.InfoTexture, Name: "hero"})
	if _, ok := f.textures.ID("hero"); ok {
		t.Error("texture still registered")
	}
	// Unknown names are ignored.
	f.x.Execute(command.InfoRemove{Info: command.InfoFont, Name: "nope"})
}

func TestExecute_Screen(t *testing.T) {
	f := newFixture(t)
	red := gputypes.NewColor(1, 0, 0, 1)
	f.x.Execute(command.ScreenControl{Op: command.ScreenClearColor, Color: red})
	f.x.Execute(command.ScreenControl{Op: command.ScreenOverlayColor, Color: gputypes.NewColor(0, 0, 0, 0.5)})
	f.x.Execute(command.ScreenControl{Op: command.ScreenScreenshot, Path: "a.png"})

	s := f.x.Screen()
	if s.Clear != red {
		t.Errorf("Clear = %v", s.Clear)
	}
	if s.Overlay.A != 0.5 {
		t.Errorf("Overlay = %v", s.Overlay)
	}
	if len(s.Shots) != 1 || s.Shots[0].Path != "a.png" {
		t.Errorf("Shots = %v", s.Shots)
	}
}

func TestExecute_Text(t *testing.T) {
	f := newFixture(t)
	var font uint32
	f.x.Execute(command.InfoAdd{
		Info: command.InfoFont, Name: "ui", Path: glyph.BuiltinGoRegular, Size: 16,
		Done: func(id uint32, ok bool) {
			if ok {
				font = id
			}
		},
	})
	if font == 0 {
		t.Fatal("font registration failed")
	}

	f.x.Execute(command.TextDraw{Font: font, Text: "Hello", X: 20, Y: 40, Color: gputypes.ColorWhite, Mode: command.ModeOpaque})
	atlas := f.x.AtlasTexture()
	if atlas == 0 {
		t.Fatal("glyph atlas not registered")
	}
	b := f.sprites.Bucket(command.BackBuffer)
	if len(b.Transparent) != 5 || len(b.Opaque) != 0 {
		t.Fatalf("text produced %d transparent / %d opaque sprites", len(b.Transparent), len(b.Opaque))
	}
	for _, p := range b.Transparent {
		if p.Texture != atlas || p.Mode != command.ModeAlpha {
			t.Errorf("glyph sprite = texture %d mode %v", p.Texture, p.Mode)
		}
	}
	if f.glyphs.Dirty() {
		t.Error("atlas still dirty after upload")
	}
}

func TestExecute_InfoLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), pngBytes(t), 0o600); err != nil {
		t.Fatal(err)
	}
	doc := `{
		"textures": [{"name": "a", "path": "a.png", "group": "g"}],
		"targets": [{"name": "rt", "width": 32, "height": 32, "priority": 5}],
		"fonts": [{"name": "ui", "path": "builtin:goregular", "size": 12}]
	}`
	path := filepath.Join(dir, "defs.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	f := newFixture(t)
	var result []bool
	done := func(ok bool) { result = append(result, ok) }
	f.x.Execute(command.InfoLoad{Path: path, Done: done})
	f.x.Execute(command.InfoLoad{Data: []byte(`{"textures": [{"name": "b", "path": "missing.png"}]}`), Dir: dir, Done: done})
	f.x.Execute(command.InfoLoad{Data: []byte(`not json`), Done: done})

	if len(result) != 3 || !result[0] || result[1] || result[2] {
		t.Fatalf("results = %v, want [true false false]", result)
	}
	if _, ok := f.textures.ID("a"); !ok {
		t.Error("texture a not registered")
	}
	if id, ok := f.textures.ID("rt"); !ok || !f.sprites.HasTarget(id) {
		t.Error("render target rt not registered")
	}
	if _, ok := f.glyphs.ID("ui"); !ok {
		t.Error("font ui not registered")
	}
}
