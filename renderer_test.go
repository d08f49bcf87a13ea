// Copyright 2026 The ManaGameFramework Authors
// SPDX-License-Identifier: BSD-3-Clause

package mana

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/device/devicetest"
)

func newRenderer(t *testing.T, opts ...Option) (*Renderer, *devicetest.Device) {
	t.Helper()
	dev := devicetest.New(640, 480)
	r, err := NewRenderer(dev, opts...)
	if err != nil {
		t.Fatalf("NewRenderer() = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, dev
}

func submit(t *testing.T, r *Renderer, cmds ...command.Command) {
	t.Helper()
	if !r.StartRequest(true) {
		t.Fatal("StartRequest(true) = false")
	}
	for _, c := range cmds {
		if !r.Request(c) {
			t.Fatalf("Request(%v) = false", c.Kind())
		}
	}
	r.EndRequest()
}

func addTexture(name string, w, h int) command.InfoAdd {
	return command.InfoAdd{Info: command.InfoTexture, Name: name, Image: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func opaque(tex uint32, x, y, z float32) command.SpriteDraw {
	s := command.NewSprite(tex, command.Rect{W: 16, H: 16}, x, y, z)
	s.Mode = command.ModeOpaque
	return s
}

func TestNewRenderer(t *testing.T) {
	if _, err := NewRenderer(nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("NewRenderer(nil) = %v, want ErrNilDevice", err)
	}
	if _, err := NewRenderer(devicetest.New(1, 1), WithEffectPath("/nonexistent/sprite.wgsl")); !errors.Is(err, ErrEffectSource) {
		t.Errorf("NewRenderer(bad effect) = %v, want ErrEffectSource", err)
	}

	r, dev := newRenderer(t, WithMaxPrimitivesPerDraw(1<<20), WithRenderSize(320, 240))
	cfg := r.Config()
	if r.maxPrims != 1<<12 {
		t.Errorf("maxPrims = %d, want device limit %d", r.maxPrims, 1<<12)
	}
	if cfg.RenderWidth != 320 || cfg.WindowWidth != DefaultWindowWidth {
		t.Errorf("config sizes = %+v", cfg)
	}
	if dev.Live() != 2 {
		t.Errorf("live resources = %d, want vertex buffer and effect", dev.Live())
	}
}

func TestRenderer_Frame(t *testing.T) {
	r, dev := newRenderer(t)

	submit(t, r, addTexture("a", 32, 32), addTexture("b", 32, 32))
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}
	a, okA := r.TextureID("a")
	b, okB := r.TextureID("b")
	if !okA || !okB {
		t.Fatal("textures not registered")
	}

	submit(t, r,
		opaque(a, 0, 0, 1),
		opaque(b, 10, 0, 2),
		opaque(a, 20, 0, 3),
		opaque(b, 30, 0, 4),
		opaque(a, 40, 0, 5),
	)
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}

	draws := dev.Draws()
	if len(draws) != 2 {
		t.Fatalf("draw calls = %d, want 2 (one per texture)", len(draws))
	}
	if dev.DrawnQuads() != 5 {
		t.Errorf("drawn quads = %d, want 5", dev.DrawnQuads())
	}
	if draws[0].First != 0 || draws[1].First != draws[0].Count {
		t.Errorf("batches not contiguous: %+v", draws)
	}

	s := r.LastFrameStats()
	if s.Commands != 5 || s.Sprites != 5 || s.Batches != 2 || s.DrawCalls != 2 {
		t.Errorf("LastFrameStats() = %+v", s)
	}
}

func TestRenderer_MaxPrimitivesSplitsBatches(t *testing.T) {
	r, dev := newRenderer(t, WithMaxPrimitivesPerDraw(4))
	submit(t, r, addTexture("a", 8, 8))
	r.Render(true)
	a, _ := r.TextureID("a")

	cmds := make([]command.Command, 5)
	for i := range cmds {
		cmds[i] = opaque(a, float32(i*10), 0, 0)
	}
	submit(t, r, cmds...)
	r.Render(true)

	// Two quads per draw call.
	if got := len(dev.Draws()); got != 3 {
		t.Errorf("draw calls = %d, want 3", got)
	}
}

func TestRenderer_FrameTexturesNotEvicted(t *testing.T) {
	// Two 2048x2048 textures, each filling the whole budget.
	r, dev := newRenderer(t, WithTextureBudget(16<<20))
	submit(t, r, addTexture("a", 2048, 2048), addTexture("b", 2048, 2048))
	r.Render(true)
	a, _ := r.TextureID("a")
	b, _ := r.TextureID("b")

	submit(t, r, opaque(a, 0, 0, 1), opaque(b, 20, 0, 2))
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}
	if _, destroys, _ := dev.Counters(); destroys != 0 {
		t.Errorf("destroys during frame = %d, want 0", destroys)
	}
	draws := dev.Draws()
	if len(draws) != 2 {
		t.Fatalf("draw calls = %d, want 2", len(draws))
	}
	for _, d := range draws {
		if d.Texture == 0 {
			t.Errorf("draw without texture: %+v", d)
		}
	}
	if s := r.LastFrameStats(); s.DrawCalls != 2 || s.Dropped != 0 {
		t.Errorf("LastFrameStats() = %+v", s)
	}

	// Pins end with the frame: the next upload may evict again.
	if n := r.textures.EvictIfOverBudget(); n != 1 {
		t.Errorf("EvictIfOverBudget() after frame = %d, want 1", n)
	}
}

func TestRenderer_StartRequestNonBlocking(t *testing.T) {
	r, _ := newRenderer(t)
	if !r.StartRequest(false) {
		t.Fatal("first StartRequest(false) = false")
	}

	done := make(chan bool, 1)
	go func() { done <- r.StartRequest(false) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("second StartRequest(false) = true")
		}
	case <-time.After(time.Second):
		t.Fatal("second StartRequest(false) blocked")
	}
	r.EndRequest()
}

func TestRenderer_DeviceLostRecovery(t *testing.T) {
	r, dev := newRenderer(t)
	submit(t, r, command.InfoAdd{Info: command.InfoRenderTarget, Name: "rt", Width: 64, Height: 64, Priority: 1})
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}
	liveBefore := dev.Live()

	// Submitted before the loss; must survive it.
	submit(t, r, addTexture("late", 4, 4))

	dev.Lose()
	dev.ScriptResets(device.ResetNotReady, device.ResetNotReady)

	if st := r.Render(true); st != StatusDeviceLost {
		t.Fatalf("Render() after loss = %v, want DeviceLost", st)
	}
	if !r.IsDeviceLost() {
		t.Error("IsDeviceLost() = false")
	}
	if r.StartRequest(false) {
		t.Error("StartRequest accepted while the device is lost")
	}
	if dev.Live() != 0 {
		t.Errorf("live resources after loss = %d, want 0", dev.Live())
	}

	for i := range 2 {
		if st := r.Render(true); st != StatusInProgress {
			t.Fatalf("Render() #%d while waiting = %v, want InProgress", i, st)
		}
	}
	if _, ok := r.TextureID("late"); ok {
		t.Error("queued commands executed while the device was lost")
	}

	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() after reset = %v, want Success", st)
	}
	if r.IsDeviceLost() {
		t.Error("IsDeviceLost() = true after recovery")
	}
	if _, ok := r.TextureID("late"); !ok {
		t.Error("commands queued before the loss were dropped")
	}
	if dev.Live() != liveBefore {
		t.Errorf("live resources = %d, want %d recreated", dev.Live(), liveBefore)
	}
	if _, _, resets := dev.Counters(); resets != 3 {
		t.Errorf("resets = %d, want 3", resets)
	}
}

func TestRenderer_DeviceResetResize(t *testing.T) {
	r, dev := newRenderer(t)

	var outcome []bool
	if !r.DeviceReset(true, 1280, 720, func(ok bool) { outcome = append(outcome, ok) }) {
		t.Fatal("DeviceReset() = false")
	}
	if st := r.Render(true); st != StatusDeviceLost {
		t.Fatalf("Render() = %v, want DeviceLost", st)
	}
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v, want Success", st)
	}
	if len(outcome) != 1 || !outcome[0] {
		t.Fatalf("reset outcome = %v", outcome)
	}
	if got := dev.ResetArgs[0]; !got.Fullscreen || got.Width != 1280 {
		t.Errorf("reset params = %+v", got)
	}

	// 640x480 letterboxed into 1280x720.
	vp := dev.Viewport()
	if vp.X != 160 || vp.Y != 0 || vp.Width != 960 || vp.Height != 720 {
		t.Errorf("viewport = %+v", vp)
	}
}

func TestRenderer_Fatal(t *testing.T) {
	r, dev := newRenderer(t)
	dev.ScriptResets(device.ResetFatal)

	var outcome []bool
	r.DeviceReset(false, 0, 0, func(ok bool) { outcome = append(outcome, ok) })
	if st := r.Render(true); st != StatusDeviceLost {
		t.Fatalf("Render() = %v, want DeviceLost", st)
	}
	for range 3 {
		if st := r.Render(true); st != StatusFatal {
			t.Fatalf("Render() = %v, want Fatal", st)
		}
	}
	if len(outcome) != 1 || outcome[0] {
		t.Errorf("reset outcome = %v, want [false]", outcome)
	}
	if r.DeviceReset(false, 0, 0, nil) {
		t.Error("DeviceReset accepted after a fatal failure")
	}
	if _, _, resets := dev.Counters(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestRenderer_ScreenControl(t *testing.T) {
	r, dev := newRenderer(t)
	path := filepath.Join(t.TempDir(), "shot.png")
	red := gputypes.NewColor(1, 0, 0, 1)

	var shotErr error
	called := false
	submit(t, r,
		command.ScreenControl{Op: command.ScreenClearColor, Color: red},
		command.ScreenControl{Op: command.ScreenOverlayColor, Color: gputypes.NewColor(0, 0, 0, 0.5)},
		command.ScreenControl{Op: command.ScreenScreenshot, Path: path, Done: func(err error) {
			called, shotErr = true, err
		}},
	)
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}

	if dev.ClearColor() != red {
		t.Errorf("clear color = %v", dev.ClearColor())
	}
	draws := dev.Draws()
	if len(draws) != 1 || draws[0].Texture != 0 || draws[0].Blend != gputypes.BlendStateAlpha() {
		t.Errorf("overlay draws = %+v", draws)
	}
	if !called || shotErr != nil {
		t.Fatalf("screenshot callback called=%v err=%v", called, shotErr)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("screenshot file: %v", err)
	}
}

func TestRenderer_DroppedCommandsDoNotAbort(t *testing.T) {
	r, dev := newRenderer(t)
	submit(t, r, addTexture("a", 8, 8))
	r.Render(true)
	a, _ := r.TextureID("a")

	submit(t, r,
		opaque(99, 0, 0, 0), // unknown texture
		opaque(a, 0, 0, 0),
		command.PolygonDraw{Count: 9},
		opaque(a, 900, 0, 0), // culled
	)
	if st := r.Render(true); st != StatusSuccess {
		t.Fatalf("Render() = %v", st)
	}
	s := r.LastFrameStats()
	if s.Dropped != 2 || s.Culled != 1 || s.Sprites != 1 {
		t.Errorf("LastFrameStats() = %+v", s)
	}
	if dev.DrawnQuads() != 1 {
		t.Errorf("drawn quads = %d, want 1", dev.DrawnQuads())
	}
}

func TestRenderer_Async(t *testing.T) {
	r, dev := newRenderer(t, WithAsync())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start() = %v, want ErrStarted", err)
	}

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		if r.StartRequest(true) {
			r.Request(addTexture("a", 8, 8))
			r.EndRequest()
		}
	}()
	<-produced

	deadline := time.Now().Add(5 * time.Second)
	for {
		if st := r.Render(true); st != StatusSuccess {
			t.Fatalf("Render() = %v", st)
		}
		if _, ok := r.TextureID("a"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command never executed")
		}
	}
	if r.Render(false) != StatusInProgress {
		t.Error("Render(false) did not return InProgress")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if dev.Live() != 0 {
		t.Errorf("live resources after Close = %d, want 0", dev.Live())
	}
	if r.StartRequest(false) {
		t.Error("StartRequest accepted after Close")
	}
	if r.Render(true) != StatusFatal {
		t.Error("Render after Close did not report Fatal")
	}
}

func TestRenderer_StartRequiresAsync(t *testing.T) {
	r, _ := newRenderer(t)
	if err := r.Start(context.Background()); !errors.Is(err, ErrNotAsync) {
		t.Errorf("Start() = %v, want ErrNotAsync", err)
	}
}

func TestRenderer_AsyncStopsOnCancel(t *testing.T) {
	r, _ := newRenderer(t, WithAsync())
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for r.loop.running() {
		if time.Now().After(deadline) {
			t.Fatal("render goroutine did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	// Frames run inline once the goroutine is gone.
	if st := r.Render(true); st != StatusSuccess {
		t.Errorf("Render() = %v", st)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusInProgress, "InProgress"},
		{StatusSuccess, "Success"},
		{StatusDeviceLost, "DeviceLost"},
		{StatusFatal, "Fatal"},
		{Status(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
