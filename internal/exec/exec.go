// Package exec applies render commands to the renderer state.
//
// Executor.Execute is the single dispatch point for every command kind.
// Resource commands change the texture and font registries, screen
// commands change the per-frame screen state, and drawing commands become
// sprite primitives in the sprite queue. A command that cannot be applied
// is logged and skipped.
package exec

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"seehuhn.de/go/geom/rect"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/internal/glyph"
	"github.com/katze7514/ManaGameFramework-sub000/internal/sprite"
	"github.com/katze7514/ManaGameFramework-sub000/internal/texture"
)

// atlasName registers the glyph atlas in the texture manager. The leading
// NUL keeps it out of the name space reachable from definition files.
const atlasName = "\x00glyph-atlas"

// Screenshot is a pending back buffer capture.
type Screenshot struct {
	Path string
	Done func(err error)
}

// Screen is the screen-wide state set by ScreenControl commands.
type Screen struct {
	Clear   command.Color
	Overlay command.Color
	Shots   []Screenshot
}

// Stats counts what the executor did since the last ResetStats.
type Stats struct {
	Commands int
	Sprites  int
	Culled   int
	Dropped  int
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("commands", s.Commands),
		slog.Int("sprites", s.Sprites),
		slog.Int("culled", s.Culled),
		slog.Int("dropped", s.Dropped),
	)
}

// Executor applies commands on the render goroutine. It is not safe for
// concurrent use.
type Executor struct {
	textures *texture.Manager
	glyphs   *glyph.Engine
	sprites  *sprite.Queue
	log      *slog.Logger

	area    rect.Rect
	screen  Screen
	stats   Stats
	atlasID uint32

	quads []glyph.Quad
}

// New creates an executor culling against a width×height render area.
func New(textures *texture.Manager, glyphs *glyph.Engine, sprites *sprite.Queue, width, height int, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	x := &Executor{
		textures: textures,
		glyphs:   glyphs,
		sprites:  sprites,
		log:      log,
		screen: Screen{
			Clear:   gputypes.Color{A: 1},
			Overlay: gputypes.ColorTransparent,
		},
	}
	x.SetArea(width, height)
	return x
}

// SetArea changes the back buffer render area.
func (x *Executor) SetArea(width, height int) {
	x.area = rect.Rect{URx: float64(max(width, 0)), URy: float64(max(height, 0))}
}

// Area returns the back buffer render area.
func (x *Executor) Area() rect.Rect {
	return x.area
}

// Screen returns the screen state. The caller may consume Shots.
func (x *Executor) Screen() *Screen {
	return &x.screen
}

// SetClearColor sets the clear color without a command, used to restore
// state after a device reset.
func (x *Executor) SetClearColor(c command.Color) {
	x.screen.Clear = c
}

// Stats returns the counters since the last ResetStats.
func (x *Executor) Stats() Stats {
	return x.stats
}

// ResetStats zeroes the counters.
func (x *Executor) ResetStats() {
	x.stats = Stats{}
}

// AtlasTexture returns the texture id of the glyph atlas, 0 until text has
// been drawn.
func (x *Executor) AtlasTexture() uint32 {
	return x.atlasID
}

// Execute applies one command.
func (x *Executor) Execute(cmd command.Command) {
	x.stats.Commands++
	switch c := cmd.(type) {
	case command.ScreenControl:
		x.screenControl(c)
	case command.InfoLoad:
		x.infoLoad(c)
	case command.InfoAdd:
		x.infoAdd(c)
	case command.InfoRemove:
		x.infoRemove(c)
	case command.GroupControl:
		x.groupControl(c)
	case command.SpriteDraw:
		x.spriteDraw(c)
	case command.PolygonDraw:
		x.polygonDraw(c)
	case command.TextDraw:
		x.textDraw(c)
	default:
		x.stats.Dropped++
		x.log.Warn("exec: unknown command", "type", fmt.Sprintf("%T", cmd))
	}
}

func (x *Executor) screenControl(c command.ScreenControl) {
	switch c.Op {
	case command.ScreenClearColor:
		x.screen.Clear = c.Color
	case command.ScreenOverlayColor:
		x.screen.Overlay = c.Color
	case command.ScreenScreenshot:
		x.screen.Shots = append(x.screen.Shots, Screenshot{Path: c.Path, Done: c.Done})
	default:
		x.log.Warn("exec: unknown screen op", "op", c.Op)
	}
}
