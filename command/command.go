// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command defines the render commands that producers hand to the
// renderer.
//
// Commands are plain values. Once a command is passed to Renderer.Request it
// is copied into the command queue and may be consumed later on another
// goroutine, so a command must not reference producer-local state. Fields
// that hold references (callbacks, images) transfer ownership to the renderer.
//
// # Kinds
//
//   - State commands: ScreenControl, InfoLoad, InfoAdd, InfoRemove, GroupControl
//   - Drawing commands: SpriteDraw, PolygonDraw, TextDraw
//
// The renderer consumes commands with a single type switch; see Kind for the
// closed set of command types.
package command

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// Kind identifies the type of a command.
type Kind uint8

const (
	KindScreenControl Kind = iota // Clear color, overlay color, screenshot
	KindInfoLoad                  // Load a definition source
	KindInfoAdd                   // Register one texture, render target or font
	KindInfoRemove                // Unregister one texture, render target or font
	KindGroupControl              // Bulk remove/release by group tag
	KindTextDraw                  // Positioned text run
	KindSpriteDraw                // One textured quad
	KindPolygonDraw               // Three or four untextured vertices
)

// kindNames maps Kind values to their string representation.
var kindNames = [...]string{
	KindScreenControl: "ScreenControl",
	KindInfoLoad:      "InfoLoad",
	KindInfoAdd:       "InfoAdd",
	KindInfoRemove:    "InfoRemove",
	KindGroupControl:  "GroupControl",
	KindTextDraw:      "TextDraw",
	KindSpriteDraw:    "SpriteDraw",
	KindPolygonDraw:   "PolygonDraw",
}

// String returns the string representation of a Kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Command is implemented by every render command.
type Command interface {
	// Kind returns the Kind for this command.
	Kind() Kind
}

// Color is an RGBA color with float components in [0, 1].
type Color = gputypes.Color

// BackBuffer is the render target id of the final back buffer.
// Offscreen render targets share the texture id space and are never 0.
const BackBuffer uint32 = 0

// NoTexture is the texture id meaning "no texture". It is only valid for
// untextured draw modes.
const NoTexture uint32 = 0

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X, Y, W, H float32
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// --------------------------------------------------------------------------
// State Commands
// --------------------------------------------------------------------------

// ScreenOp selects what a ScreenControl command changes.
type ScreenOp uint8

const (
	// ScreenClearColor sets the color the back buffer is cleared to.
	ScreenClearColor ScreenOp = iota
	// ScreenOverlayColor sets a color drawn over the whole render area after
	// the back buffer content. A zero alpha disables the overlay.
	ScreenOverlayColor
	// ScreenScreenshot writes the next presented frame to Path as PNG.
	ScreenScreenshot
)

// ScreenControl changes screen-wide state.
type ScreenControl struct {
	Op    ScreenOp
	Color Color
	// Path is the PNG destination for ScreenScreenshot.
	Path string
	// Done is called on the render goroutine once the screenshot has been
	// written (or failed). May be nil.
	Done func(err error)
}

// Kind implements Command.
func (ScreenControl) Kind() Kind { return KindScreenControl }

// InfoLoad loads a definition source listing textures, render targets and
// fonts. Exactly one of Path or Data is used; Data wins when both are set.
type InfoLoad struct {
	Path string
	Data []byte
	// Dir resolves relative paths inside Data. Ignored when Path is used.
	Dir string
	// Done is called on the render goroutine with the load result. May be nil.
	Done func(ok bool)
}

// Kind implements Command.
func (InfoLoad) Kind() Kind { return KindInfoLoad }

// InfoKind selects the kind of resource an InfoAdd or InfoRemove refers to.
type InfoKind uint8

const (
	InfoTexture InfoKind = iota
	InfoRenderTarget
	InfoFont
)

// String returns the string representation of an InfoKind.
func (k InfoKind) String() string {
	switch k {
	case InfoTexture:
		return "Texture"
	case InfoRenderTarget:
		return "RenderTarget"
	case InfoFont:
		return "Font"
	default:
		return "Unknown"
	}
}

// InfoAdd registers one texture, render target or font.
type InfoAdd struct {
	Info  InfoKind
	Name  string
	Group string

	// Path is the image (InfoTexture) or font file (InfoFont) to load.
	// A font path of "builtin:goregular" selects the embedded Go font.
	Path string

	// Image is used instead of Path for InfoTexture when non-nil.
	// The renderer takes ownership; the producer must not modify it afterwards.
	Image *image.RGBA

	// Width and Height size an InfoRenderTarget.
	Width, Height int

	// Priority orders an InfoRenderTarget relative to other targets.
	// Lower priorities are drawn first; the back buffer is always last.
	Priority int

	// Size is the pixel size of an InfoFont.
	Size float64

	// Done is called on the render goroutine with the assigned id.
	// ok is false when registration failed. May be nil.
	Done func(id uint32, ok bool)
}

// Kind implements Command.
func (InfoAdd) Kind() Kind { return KindInfoAdd }

// InfoRemove unregisters one texture, render target or font by name.
type InfoRemove struct {
	Info InfoKind
	Name string
}

// Kind implements Command.
func (InfoRemove) Kind() Kind { return KindInfoRemove }

// GroupOp selects what a GroupControl command does.
type GroupOp uint8

const (
	// GroupRemove unregisters every texture, render target and font in the group.
	GroupRemove GroupOp = iota
	// GroupRelease drops the GPU copies of the group's textures but keeps
	// them registered; they are uploaded again on next use.
	GroupRelease
)

// GroupControl applies a bulk operation to every resource tagged with Group.
type GroupControl struct {
	Op    GroupOp
	Group string
}

// Kind implements Command.
func (GroupControl) Kind() Kind { return KindGroupControl }

// --------------------------------------------------------------------------
// Drawing Commands
// --------------------------------------------------------------------------

// SpriteDraw draws one textured quad.
//
// The quad spans Src.W × Src.H pixels with its top-left corner at the origin
// of the world transform. A zero Transform is treated as the identity.
// The Z component of the transformed origin is the sort key.
type SpriteDraw struct {
	Texture   uint32
	Src       Rect
	Transform mgl32.Mat4
	// Colors holds the modulate color and the additive color, in that order.
	Colors [2]Color
	Mode   DrawMode
	Target uint32
}

// Kind implements Command.
func (SpriteDraw) Kind() Kind { return KindSpriteDraw }

// NewSprite returns a SpriteDraw of the whole src rect at (x, y, z) with a
// white modulate color, drawn in alpha mode to the back buffer.
func NewSprite(texture uint32, src Rect, x, y, z float32) SpriteDraw {
	return SpriteDraw{
		Texture:   texture,
		Src:       src,
		Transform: mgl32.Translate3D(x, y, z),
		Colors:    [2]Color{gputypes.ColorWhite, gputypes.ColorTransparent},
		Mode:      ModeAlpha,
		Target:    BackBuffer,
	}
}

// PolygonDraw draws three or four untextured vertices.
// A zero Transform is treated as the identity.
type PolygonDraw struct {
	Vertices  [4]mgl32.Vec3
	Count     int
	Transform mgl32.Mat4
	// Colors holds the modulate color and the additive color, in that order.
	Colors [2]Color
	Mode   DrawMode
	Target uint32
}

// Kind implements Command.
func (PolygonDraw) Kind() Kind { return KindPolygonDraw }

// TextDraw draws a run of text with its baseline origin at (X, Y).
type TextDraw struct {
	Font   uint32
	Text   string
	X, Y   float32
	Z      float32
	Color  Color
	Mode   DrawMode
	Target uint32
}

// Kind implements Command.
func (TextDraw) Kind() Kind { return KindTextDraw }

// Compile-time checks.
var (
	_ Command = ScreenControl{}
	_ Command = InfoLoad{}
	_ Command = InfoAdd{}
	_ Command = InfoRemove{}
	_ Command = GroupControl{}
	_ Command = SpriteDraw{}
	_ Command = PolygonDraw{}
	_ Command = TextDraw{}
)
