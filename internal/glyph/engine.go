package glyph

import (
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/text/unicode/bidi"

	"github.com/katze7514/ManaGameFramework-sub000/internal/cache"
)

// DefaultMaxAtlasSize is the atlas side used when no device limit applies.
const DefaultMaxAtlasSize = 2048

// layoutCacheSize is the number of laid out strings kept per engine.
const layoutCacheSize = 512

// Quad is one glyph placed relative to the text origin on the baseline.
type Quad struct {
	// Src is the glyph rectangle in the atlas image.
	Src image.Rectangle
	// X and Y are the top-left destination corner.
	X, Y float32
}

// Engine registers fonts and lays text out into glyph quads.
//
// Name lookups are safe for concurrent use. Layout and registration run on
// the render goroutine.
type Engine struct {
	mu     sync.RWMutex
	byName map[string]uint32
	fonts  map[uint32]*Font
	nextID uint32

	atlas  *atlas
	shaper shaping.HarfbuzzShaper
	buf    sfnt.Buffer
	para   bidi.Paragraph

	layouts *cache.Cache[layoutKey, layoutEntry]
}

type layoutKey struct {
	font uint32
	text string
}

// layoutEntry is valid while the atlas generation is unchanged.
type layoutEntry struct {
	generation int
	quads      []Quad
}

// NewEngine creates an engine whose atlas grows up to maxAtlas pixels per
// side. A value of 0 selects DefaultMaxAtlasSize.
func NewEngine(maxAtlas, reserved int) *Engine {
	if maxAtlas <= 0 {
		maxAtlas = DefaultMaxAtlasSize
	}
	reserved = max(reserved, 0)
	return &Engine{
		byName: make(map[string]uint32, reserved),
		fonts:  make(map[uint32]*Font, reserved),
		atlas:  newAtlas(maxAtlas),

		layouts: cache.New[layoutKey, layoutEntry](layoutCacheSize),
	}
}

// AddFont parses data and registers it under name at size pixels.
func (e *Engine) AddFont(name, group string, data []byte, size float64) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.byName[name]; dup {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	f, err := parseFont(data, size, &e.buf)
	if err != nil {
		return 0, err
	}
	e.nextID++
	f.ID = e.nextID
	f.Name = name
	f.Group = group
	e.byName[name] = f.ID
	e.fonts[f.ID] = f
	return f.ID, nil
}

// AddFile reads the font at path (or BuiltinGoRegular) and registers it.
func (e *Engine) AddFile(name, group, path string, size float64) (uint32, error) {
	data, err := readFontSource(path)
	if err != nil {
		return 0, err
	}
	return e.AddFont(name, group, data, size)
}

// ID returns the id registered for name.
func (e *Engine) ID(name string) (uint32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byName[name]
	return id, ok
}

// Font returns the font registered as id.
func (e *Engine) Font(id uint32) (*Font, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.fonts[id]
	return f, ok
}

// Group returns the ids of fonts tagged with group, ascending.
func (e *Engine) Group(group string) []uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []uint32
	for id, f := range e.fonts {
		if f.Group == group {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Remove unregisters a font and forgets its glyphs.
func (e *Engine) Remove(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fonts[id]
	if !ok {
		return ErrNotFound
	}
	delete(e.fonts, id)
	delete(e.byName, f.Name)
	e.atlas.forget(id)
	e.layouts.DeleteFunc(func(k layoutKey) bool { return k.font == id })
	return nil
}

// LayoutStats returns the statistics of the layout cache.
func (e *Engine) LayoutStats() cache.Stats {
	return e.layouts.Stats()
}

// Atlas returns the atlas image. The image may be replaced when the
// atlas grows, so callers fetch it again after Dirty reports true.
func (e *Engine) Atlas() *image.RGBA {
	return e.atlas.img
}

// Dirty reports whether the atlas changed since the last ClearDirty.
func (e *Engine) Dirty() bool {
	return e.atlas.dirty
}

// ClearDirty marks the atlas as uploaded.
func (e *Engine) ClearDirty() {
	e.atlas.dirty = false
}

// Layout shapes text with font id and appends its glyph quads to dst.
// Positions are relative to the pen origin on the baseline.
func (e *Engine) Layout(dst []Quad, id uint32, text string) ([]Quad, error) {
	f, ok := e.Font(id)
	if !ok {
		return dst, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if text == "" {
		return dst, nil
	}

	key := layoutKey{font: id, text: text}
	if c, ok := e.layouts.Get(key); ok && c.generation == e.atlas.generation {
		return append(dst, c.quads...), nil
	}

	start := len(dst)
	for range 2 {
		gen := e.atlas.generation
		out, err := e.layout(dst[:start], f, text)
		if err != nil {
			return dst[:start], err
		}
		// A reset while placing glyphs invalidates the earlier ones; the
		// second pass fits in the cleared atlas.
		if gen == e.atlas.generation {
			e.layouts.Set(key, layoutEntry{generation: gen, quads: slices.Clone(out[start:])})
			return out, nil
		}
		dst = out
	}
	return dst[:start], ErrAtlasFull
}

func (e *Engine) layout(dst []Quad, f *Font, text string) ([]Quad, error) {
	runes := []rune(text)
	var pen float64

	for _, r := range e.runs(text, len(runes)) {
		in := shaping.Input{
			Text:      runes,
			RunStart:  r.start,
			RunEnd:    r.end,
			Direction: r.dir,
			Face:      f.shaping,
			Size:      f.ppem,
			Script:    detectScript(runes[r.start:r.end]),
			Language:  language.NewLanguage("en"),
		}
		out := e.shaper.Shape(in)
		for _, g := range out.Glyphs {
			s, err := e.atlas.rasterize(f, sfnt.GlyphIndex(g.GlyphID), &e.buf)
			if err != nil {
				return dst, err
			}
			if !s.src.Empty() {
				x := pen + fixedToFloat(g.XOffset) + float64(s.offset.X)
				y := -fixedToFloat(g.YOffset) + float64(s.offset.Y)
				dst = append(dst, Quad{Src: s.src, X: float32(x), Y: float32(y)})
			}
			pen += fixedToFloat(g.Advance)
		}
	}
	return dst, nil
}

type run struct {
	start, end int
	dir        di.Direction
}

// runs splits text into bidi runs in visual order.
func (e *Engine) runs(text string, n int) []run {
	whole := []run{{start: 0, end: n, dir: di.DirectionLTR}}
	if _, err := e.para.SetString(text, bidi.DefaultDirection(bidi.LeftToRight)); err != nil {
		return whole
	}
	order, err := e.para.Order()
	if err != nil || order.NumRuns() == 0 {
		return whole
	}
	out := make([]run, 0, order.NumRuns())
	for i := range order.NumRuns() {
		r := order.Run(i)
		s, end := r.Pos() // rune indices, end inclusive
		dir := di.DirectionLTR
		if r.Direction() == bidi.RightToLeft {
			dir = di.DirectionRTL
		}
		out = append(out, run{start: s, end: min(end+1, n), dir: dir})
	}
	return out
}

// detectScript returns the script of the first non-space rune.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}
