// Package glyph turns text runs into positioned glyph quads.
//
// Text is split into bidi runs, each run is shaped with HarfBuzz (go-text)
// and every glyph not yet seen is rasterised into an atlas image with the
// x/image vector rasteriser. The atlas is an ordinary texture; callers
// upload it when Dirty reports true.
package glyph

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gtfont "github.com/go-text/typesetting/font"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// BuiltinGoRegular is the font path selecting the embedded Go Regular font.
const BuiltinGoRegular = "builtin:goregular"

// Errors returned by the engine.
var (
	ErrDuplicateName = errors.New("glyph: font name already registered")
	ErrNotFound      = errors.New("glyph: font not registered")
	ErrInvalidSize   = errors.New("glyph: invalid font size")
	ErrAtlasFull     = errors.New("glyph: atlas full")
)

// Font is a parsed font at one pixel size.
type Font struct {
	ID    uint32
	Name  string
	Group string
	Size  float64

	outlines *sfnt.Font
	shaping  *gtfont.Face
	ppem     fixed.Int26_6
	ascent   float64
	descent  float64
	height   float64
}

// Ascent returns the distance from the baseline to the top of the line.
func (f *Font) Ascent() float64 { return f.ascent }

// LineHeight returns the recommended distance between baselines.
func (f *Font) LineHeight() float64 { return f.height }

// parseFont parses TrueType/OpenType data for outlines and shaping.
func parseFont(data []byte, size float64, buf *sfnt.Buffer) (*Font, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}
	outlines, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("glyph: parse outlines: %w", err)
	}
	face, err := gtfont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("glyph: parse for shaping: %w", err)
	}

	ppem := floatToFixed(size)
	m, err := outlines.Metrics(buf, ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("glyph: metrics: %w", err)
	}
	return &Font{
		Size:     size,
		outlines: outlines,
		shaping:  face,
		ppem:     ppem,
		ascent:   fixedToFloat(m.Ascent),
		descent:  fixedToFloat(m.Descent),
		height:   fixedToFloat(m.Height),
	}, nil
}

// readFontSource returns the font bytes for path.
func readFontSource(path string) ([]byte, error) {
	if path == BuiltinGoRegular {
		return goregular.TTF, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("glyph: read font: %w", err)
	}
	return data, nil
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
