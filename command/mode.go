// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import "github.com/gogpu/gputypes"

// DrawMode selects texturing and blending for a primitive.
type DrawMode uint8

const (
	ModeOpaque    DrawMode = iota // Textured, no blending
	ModeAlpha                     // Textured, alpha blending
	ModeAdd                       // Textured, additive blending
	ModeFlat                      // Untextured, no blending
	ModeFlatAlpha                 // Untextured, alpha blending
	ModeFlatAdd                   // Untextured, additive blending
)

var modeNames = [...]string{
	ModeOpaque:    "Opaque",
	ModeAlpha:     "Alpha",
	ModeAdd:       "Add",
	ModeFlat:      "Flat",
	ModeFlatAlpha: "FlatAlpha",
	ModeFlatAdd:   "FlatAdd",
}

// String returns the string representation of a DrawMode.
func (m DrawMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "Unknown"
}

// Valid reports whether m is a known draw mode.
func (m DrawMode) Valid() bool {
	return int(m) < len(modeNames)
}

// Textured reports whether the mode samples a texture.
func (m DrawMode) Textured() bool {
	return m <= ModeAdd
}

// Blended reports whether the mode blends with the destination.
// Blended primitives are sorted back to front.
func (m DrawMode) Blended() bool {
	switch m {
	case ModeAlpha, ModeAdd, ModeFlatAlpha, ModeFlatAdd:
		return true
	default:
		return false
	}
}

// BlendState returns the GPU blend state for the mode.
func (m DrawMode) BlendState() gputypes.BlendState {
	switch m {
	case ModeAlpha, ModeFlatAlpha:
		return gputypes.BlendStateAlpha()
	case ModeAdd, ModeFlatAdd:
		return gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorZero,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	default:
		return gputypes.BlendStateReplace()
	}
}
