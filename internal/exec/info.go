package exec

import (
	"errors"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/internal/defs"
)

func (x *Executor) infoLoad(c command.InfoLoad) {
	var (
		doc *defs.Document
		err error
	)
	if c.Data != nil {
		doc, err = defs.Parse(c.Data, c.Dir)
	} else {
		doc, err = defs.LoadFile(c.Path)
	}
	if err != nil {
		x.log.Warn("exec: definition load failed", "path", c.Path, "error", err)
		if c.Done != nil {
			c.Done(false)
		}
		return
	}

	// Every entry is attempted; one failure fails the whole load.
	ok := true
	for _, t := range doc.Textures {
		if _, err := x.textures.AddFile(t.Name, t.Group, t.Path); err != nil {
			x.log.Warn("exec: texture definition", "name", t.Name, "error", err)
			ok = false
		}
	}
	for _, t := range doc.Targets {
		if _, err := x.addTarget(t.Name, t.Group, t.Width, t.Height, t.Priority); err != nil {
			x.log.Warn("exec: render target definition", "name", t.Name, "error", err)
			ok = false
		}
	}
	for _, f := range doc.Fonts {
		if _, err := x.glyphs.AddFile(f.Name, f.Group, f.Path, f.Size); err != nil {
			x.log.Warn("exec: font definition", "name", f.Name, "error", err)
			ok = false
		}
	}
	x.log.Debug("exec: definitions loaded", "path", c.Path, "entries", doc.Len(), "ok", ok)
	if c.Done != nil {
		c.Done(ok)
	}
}

func (x *Executor) infoAdd(c command.InfoAdd) {
	var (
		id  uint32
		err error
	)
	switch c.Info {
	case command.InfoTexture:
		if c.Image != nil {
			id, err = x.textures.AddImage(c.Name, c.Group, c.Image)
		} else {
			id, err = x.textures.AddFile(c.Name, c.Group, c.Path)
		}
	case command.InfoRenderTarget:
		id, err = x.addTarget(c.Name, c.Group, c.Width, c.Height, c.Priority)
	case command.InfoFont:
		id, err = x.glyphs.AddFile(c.Name, c.Group, c.Path, c.Size)
	default:
		err = errors.New("unknown info kind")
	}
	if err != nil {
		x.log.Warn("exec: add failed", "info", c.Info, "name", c.Name, "error", err)
	}
	if c.Done != nil {
		c.Done(id, err == nil)
	}
}

// addTarget registers a render target texture and its sprite bucket.
func (x *Executor) addTarget(name, group string, w, h, priority int) (uint32, error) {
	id, err := x.textures.AddTarget(name, group, w, h, priority)
	if err != nil {
		return 0, err
	}
	if err := x.sprites.AddTarget(id, priority, 0); err != nil {
		_, _ = x.textures.Remove(id)
		return 0, err
	}
	return id, nil
}

func (x *Executor) infoRemove(c command.InfoRemove) {
	switch c.Info {
	case command.InfoTexture, command.InfoRenderTarget:
		id, ok := x.textures.ID(c.Name)
		if !ok {
			x.log.Warn("exec: remove of unknown texture", "name", c.Name)
			return
		}
		x.removeTexture(id)
	case command.InfoFont:
		id, ok := x.glyphs.ID(c.Name)
		if !ok {
			x.log.Warn("exec: remove of unknown font", "name", c.Name)
			return
		}
		_ = x.glyphs.Remove(id)
	}
}

func (x *Executor) removeTexture(id uint32) {
	info, err := x.textures.Remove(id)
	if err != nil {
		return
	}
	if info.Target {
		_ = x.sprites.RemoveTarget(id)
	}
}

func (x *Executor) groupControl(c command.GroupControl) {
	switch c.Op {
	case command.GroupRemove:
		for _, id := range x.textures.Group(c.Group) {
			x.removeTexture(id)
		}
		for _, id := range x.glyphs.Group(c.Group) {
			_ = x.glyphs.Remove(id)
		}
	case command.GroupRelease:
		for _, id := range x.textures.Group(c.Group) {
			x.textures.Release(id)
		}
	default:
		x.log.Warn("exec: unknown group op", "op", c.Op)
	}
}
