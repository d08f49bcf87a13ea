// Package defs reads definition documents listing textures, render
// targets and fonts.
//
// A document is JSON:
//
//	{
//	  "textures": [{"name": "hero", "path": "img/hero.png", "group": "stage1"}],
//	  "targets":  [{"name": "minimap", "width": 128, "height": 128, "priority": 1}],
//	  "fonts":    [{"name": "ui", "path": "builtin:goregular", "size": 16}]
//	}
//
// Relative paths resolve against the document's directory.
package defs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalid is returned for documents with missing or invalid fields.
var ErrInvalid = errors.New("defs: invalid definition")

// Texture defines a sampled texture loaded from an image file.
type Texture struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Group string `json:"group,omitempty"`
}

// Target defines an offscreen render target.
type Target struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Priority int    `json:"priority"`
	Group    string `json:"group,omitempty"`
}

// Font defines a font at one pixel size.
type Font struct {
	Name  string  `json:"name"`
	Path  string  `json:"path"`
	Size  float64 `json:"size"`
	Group string  `json:"group,omitempty"`
}

// Document is a parsed definition document.
type Document struct {
	Textures []Texture `json:"textures"`
	Targets  []Target  `json:"targets"`
	Fonts    []Font    `json:"fonts"`
}

// Len returns the number of definitions.
func (d *Document) Len() int {
	return len(d.Textures) + len(d.Targets) + len(d.Fonts)
}

// LoadFile reads and parses the document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("defs: read: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse parses a document. Relative paths are joined to dir.
func Parse(data []byte, dir string) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("defs: decode: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	for i := range doc.Textures {
		doc.Textures[i].Path = resolve(dir, doc.Textures[i].Path)
	}
	for i := range doc.Fonts {
		doc.Fonts[i].Path = resolve(dir, doc.Fonts[i].Path)
	}
	return &doc, nil
}

func (d *Document) validate() error {
	seen := make(map[string]bool, d.Len())
	check := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%w: %s without name", ErrInvalid, kind)
		}
		if seen[kind+"\x00"+name] {
			return fmt.Errorf("%w: duplicate %s %q", ErrInvalid, kind, name)
		}
		seen[kind+"\x00"+name] = true
		return nil
	}

	for _, t := range d.Textures {
		if err := check("texture", t.Name); err != nil {
			return err
		}
		if t.Path == "" {
			return fmt.Errorf("%w: texture %q without path", ErrInvalid, t.Name)
		}
	}
	for _, t := range d.Targets {
		// Targets share the texture name space.
		if err := check("texture", t.Name); err != nil {
			return err
		}
		if t.Width <= 0 || t.Height <= 0 {
			return fmt.Errorf("%w: target %q size %dx%d", ErrInvalid, t.Name, t.Width, t.Height)
		}
	}
	for _, f := range d.Fonts {
		if err := check("font", f.Name); err != nil {
			return err
		}
		if f.Path == "" || f.Size <= 0 {
			return fmt.Errorf("%w: font %q needs path and size", ErrInvalid, f.Name)
		}
	}
	return nil
}

// resolve joins relative file paths to dir. Scheme-like paths such as
// "builtin:goregular" are kept.
func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, ":") || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
