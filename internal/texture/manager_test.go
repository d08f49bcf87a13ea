package texture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/device/devicetest"
)

// mb is the size of a 512x512 RGBA image.
const mb = 1 << 20

func square(side int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, side, side))
}

func newManager(t *testing.T, budget uint64) (*Manager, *devicetest.Device) {
	t.Helper()
	dev := devicetest.New(64, 64)
	m := New(dev, Config{Budget: budget}, nil)
	t.Cleanup(m.Close)
	return m, dev
}

func TestManager_AddAndLookup(t *testing.T) {
	m, dev := newManager(t, MinBudget)

	id, err := m.AddImage("hero", "stage1", square(8))
	if err != nil {
		t.Fatalf("AddImage() = %v", err)
	}
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}
	if got, ok := m.ID("hero"); !ok || got != id {
		t.Errorf("ID(hero) = %d, %v", got, ok)
	}
	if _, err := m.AddImage("hero", "", square(8)); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate AddImage = %v, want ErrDuplicateName", err)
	}
	if _, err := m.AddImage("empty", "", image.NewRGBA(image.Rectangle{})); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("empty AddImage = %v, want ErrInvalidSize", err)
	}

	info, ok := m.Lookup(id)
	if !ok || info.Resident || info.Width != 8 || info.Group != "stage1" {
		t.Errorf("Lookup() = %+v, %v", info, ok)
	}
	if dev.Live() != 0 {
		t.Error("AddImage uploaded eagerly")
	}

	h, err := m.Acquire(id)
	if err != nil || h == 0 {
		t.Fatalf("Acquire() = %v, %v", h, err)
	}
	if info, _ := m.Lookup(id); !info.Resident {
		t.Error("texture not resident after Acquire")
	}
	h2, _ := m.Acquire(id)
	if h2 != h {
		t.Errorf("second Acquire() = %v, want cached %v", h2, h)
	}
	if creates, _, _ := dev.Counters(); creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}

	if _, err := m.Acquire(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Acquire(unknown) = %v, want ErrNotFound", err)
	}
}

func TestManager_LRUEviction(t *testing.T) {
	// Each 1024x1024 texture takes 4 MB; the budget holds four.
	m, dev := newManager(t, MinBudget)

	var ids []uint32
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		id, err := m.AddImage(name, "", square(1024))
		if err != nil {
			t.Fatalf("AddImage(%s) = %v", name, err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids[:4] {
		if _, err := m.Acquire(id); err != nil {
			t.Fatalf("Acquire(%d) = %v", id, err)
		}
	}
	// Touch "a" so "b" becomes least recently used.
	_, _ = m.Acquire(ids[0])

	if _, err := m.Acquire(ids[4]); err != nil {
		t.Fatalf("Acquire(e) = %v", err)
	}
	if info, _ := m.Lookup(ids[1]); info.Resident {
		t.Error("least recently used texture b still resident")
	}
	if info, _ := m.Lookup(ids[0]); !info.Resident {
		t.Error("recently touched texture a evicted")
	}
	st := m.Stats()
	if st.Evictions != 1 || st.Resident != 4 || st.UsedBytes != 16*mb {
		t.Errorf("Stats() = %+v", st)
	}
	if dev.Live() != 4 {
		t.Errorf("live device textures = %d, want 4", dev.Live())
	}

	// Evicted textures come back on demand.
	if _, err := m.Acquire(ids[1]); err != nil {
		t.Errorf("re-Acquire(b) = %v", err)
	}
}

func TestManager_BudgetTooSmall(t *testing.T) {
	m, _ := newManager(t, MinBudget)
	id, _ := m.AddImage("huge", "", square(4096))
	if _, err := m.Acquire(id); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Acquire(huge) = %v, want ErrBudgetExceeded", err)
	}
}

func TestManager_ReleaseAndRemove(t *testing.T) {
	m, dev := newManager(t, MinBudget)
	a, _ := m.AddImage("a", "g", square(4))
	b, _ := m.AddImage("b", "g", square(4))
	_, _ = m.AddImage("c", "other", square(4))
	_, _ = m.Acquire(a)
	_, _ = m.Acquire(b)

	if got := m.Group("g"); len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Group(g) = %v", got)
	}

	m.Release(a)
	if info, ok := m.Lookup(a); !ok || info.Resident {
		t.Errorf("after Release: %+v, %v", info, ok)
	}

	if _, err := m.Remove(b); err != nil {
		t.Fatalf("Remove(b) = %v", err)
	}
	if _, ok := m.ID("b"); ok {
		t.Error("b still registered after Remove")
	}
	if _, err := m.Remove(b); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove(b) = %v, want ErrNotFound", err)
	}
	if dev.Live() != 0 {
		t.Errorf("live = %d, want 0", dev.Live())
	}
}

func TestManager_RenderTargets(t *testing.T) {
	m, dev := newManager(t, MinBudget)

	id, err := m.AddTarget("minimap", "", 128, 128, 1)
	if err != nil {
		t.Fatalf("AddTarget() = %v", err)
	}
	if dev.Live() != 1 {
		t.Error("render target not created eagerly")
	}
	if _, err := m.AddTarget("bad", "", 0, 10, 2); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("AddTarget(0x10) = %v, want ErrInvalidSize", err)
	}
	if err := m.Update(id, square(2)); !errors.Is(err, ErrRenderTarget) {
		t.Errorf("Update(target) = %v, want ErrRenderTarget", err)
	}

	// Targets are not counted against the budget nor evicted.
	if m.Stats().UsedBytes != 0 {
		t.Errorf("UsedBytes = %d, want 0", m.Stats().UsedBytes)
	}
	m.Release(id)
	if info, _ := m.Lookup(id); !info.Resident {
		t.Error("Release dropped a render target")
	}
	if got := m.Targets(); len(got) != 1 || got[0].Priority != 1 {
		t.Errorf("Targets() = %+v", got)
	}
}

func TestManager_InvalidateRecreate(t *testing.T) {
	m, dev := newManager(t, MinBudget)
	tex, _ := m.AddImage("tex", "", square(4))
	rt, _ := m.AddTarget("rt", "", 16, 16, 0)
	_, _ = m.Acquire(tex)

	m.InvalidateAll()
	if dev.Live() != 0 {
		t.Errorf("live after InvalidateAll = %d, want 0", dev.Live())
	}
	if m.Stats().Resident != 0 {
		t.Error("resident textures after InvalidateAll")
	}

	if err := m.RecreateAll(); err != nil {
		t.Fatalf("RecreateAll() = %v", err)
	}
	if info, _ := m.Lookup(rt); !info.Resident {
		t.Error("render target not recreated")
	}
	if info, _ := m.Lookup(tex); info.Resident {
		t.Error("sampled texture recreated eagerly")
	}
	if _, err := m.Acquire(tex); err != nil {
		t.Errorf("Acquire after recreate = %v", err)
	}
}

func TestManager_DeviceLimits(t *testing.T) {
	dev := devicetest.New(8, 8)
	limits := gputypes.DefaultLimits()
	limits.MaxTextureDimension2D = 64
	dev.SetCapabilities(device.Capabilities{Limits: limits, MaxTextures: 2})
	m := New(dev, Config{}, nil)
	defer m.Close()

	id, err := m.AddImage("big", "", image.NewRGBA(image.Rect(0, 0, 256, 128)))
	if err != nil {
		t.Fatalf("AddImage() = %v", err)
	}
	if info, _ := m.Lookup(id); info.Width != 64 || info.Height != 32 {
		t.Errorf("downscaled size = %dx%d, want 64x32", info.Width, info.Height)
	}
	_, _ = m.AddImage("two", "", square(2))
	if _, err := m.AddImage("three", "", square(2)); !errors.Is(err, ErrTooManyTextures) {
		t.Errorf("AddImage over limit = %v, want ErrTooManyTextures", err)
	}
}

func TestManager_Closed(t *testing.T) {
	m, _ := newManager(t, 0)
	id, _ := m.AddImage("a", "", square(2))
	m.Close()
	if _, err := m.Acquire(id); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Acquire after Close = %v", err)
	}
	if _, err := m.AddImage("b", "", square(2)); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("AddImage after Close = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tex.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	img, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() = %v", err)
	}
	if img.Rect.Dx() != 3 || img.Rect.Dy() != 2 {
		t.Errorf("size = %v", img.Rect)
	}
	if got := img.RGBAAt(1, 1); got.R != 255 || got.A != 255 {
		t.Errorf("pixel = %v", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("LoadFile(missing) succeeded")
	}
	if _, err := LoadBytes(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("LoadBytes(nil) = %v, want ErrEmptyData", err)
	}
	if _, err := LoadBytes([]byte("not an image")); err == nil {
		t.Error("LoadBytes(garbage) succeeded")
	}
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	if got := Fit(img, 200); got != img {
		t.Error("Fit changed an image that fits")
	}
	got := Fit(img, 20)
	if got.Rect.Dx() != 20 || got.Rect.Dy() != 10 {
		t.Errorf("Fit() size = %v, want 20x10", got.Rect)
	}
}

func TestManager_PinnedNotEvicted(t *testing.T) {
	m, dev := newManager(t, MinBudget)

	// Each 2048x2048 texture fills the whole budget.
	a, _ := m.AddImage("a", "", square(2048))
	b, _ := m.AddImage("b", "", square(2048))

	ha, err := m.Acquire(a)
	if err != nil {
		t.Fatal(err)
	}
	m.Pin(a)
	if _, err := m.Acquire(b); err != nil {
		t.Fatal(err)
	}
	if _, destroys, _ := dev.Counters(); destroys != 0 {
		t.Fatalf("destroys = %d, want 0 while a is pinned", destroys)
	}
	if info, _ := m.Lookup(a); !info.Resident {
		t.Error("pinned texture evicted")
	}
	if h, _ := m.Acquire(a); h != ha {
		t.Errorf("Acquire(a) = %v, want resident handle %v", h, ha)
	}

	m.UnpinAll()
	if n := m.EvictIfOverBudget(); n != 1 {
		t.Errorf("EvictIfOverBudget() = %d, want 1 after UnpinAll", n)
	}
	if info, _ := m.Lookup(b); info.Resident {
		t.Error("least recently used texture b still resident")
	}
}
