// Command manademo renders a few frames with the mana renderer and saves a
// screenshot of the last one.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"os/signal"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	mana "github.com/katze7514/ManaGameFramework-sub000"
	_ "github.com/katze7514/ManaGameFramework-sub000/backend/wgpu"
	"github.com/katze7514/ManaGameFramework-sub000/command"
	"github.com/katze7514/ManaGameFramework-sub000/device"
	"github.com/katze7514/ManaGameFramework-sub000/device/soft"
)

func main() {
	var (
		width   = flag.Int("width", 800, "window width")
		height  = flag.Int("height", 600, "window height")
		frames  = flag.Int("frames", 60, "frames to render")
		backend = flag.String("device", "", "device backend (empty picks the best available)")
		output  = flag.String("output", "demo.png", "screenshot file")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	mana.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, *backend, *width, *height, *frames, *output); err != nil {
		log.Error("manademo failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, backend string, width, height, frames int, output string) error {
	dev, name, err := openDevice(log, backend, device.Config{Width: width, Height: height, Logger: log})
	if err != nil {
		return err
	}
	defer dev.Close()
	log.Info("device opened", slog.String("backend", name), slog.String("adapter", dev.Capabilities().Adapter.Name))

	r, err := mana.NewRenderer(dev,
		mana.WithAsync(),
		mana.WithLogger(log),
		mana.WithRenderSize(width, height),
		mana.WithWindowSize(width, height),
		mana.WithClearColor(gputypes.NewColor(0.1, 0.15, 0.3, 1)),
	)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := r.Start(ctx); err != nil {
		return err
	}

	ball, err := register(r)
	if err != nil {
		return err
	}

	shot := make(chan error, 1)
	for i := range frames {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		last := i == frames-1
		if !r.StartRequest(true) {
			// Lost devices refuse commands until the reset completes.
			if st := r.Render(true); st == mana.StatusFatal {
				return fmt.Errorf("render: %v", st)
			}
			continue
		}
		scene(r, ball, i, width, height)
		if last {
			r.Request(command.ScreenControl{
				Op:   command.ScreenScreenshot,
				Path: output,
				Done: func(err error) { shot <- err },
			})
		}
		r.EndRequest()

		switch st := r.Render(true); st {
		case mana.StatusSuccess, mana.StatusInProgress, mana.StatusDeviceLost:
			log.Debug("frame", slog.Int("n", i), slog.String("status", st.String()), slog.Any("stats", r.LastFrameStats()))
		default:
			return fmt.Errorf("render: %v", st)
		}
	}

	select {
	case err := <-shot:
		if err != nil {
			return fmt.Errorf("screenshot: %w", err)
		}
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	log.Info("demo saved", slog.String("path", output), slog.Int("width", width), slog.Int("height", height))
	return nil
}

// openDevice opens the named backend, or the best registered one with a
// fallback to the software device.
func openDevice(log *slog.Logger, name string, cfg device.Config) (device.Device, string, error) {
	if name != "" {
		dev, err := device.Open(name, cfg)
		return dev, name, err
	}
	dev, best, err := device.OpenBest(cfg)
	if err == nil {
		return dev, best, nil
	}
	log.Warn("best device unavailable, using software", slog.String("backend", best), slog.Any("err", err))
	dev, err = device.Open(soft.Name, cfg)
	return dev, soft.Name, err
}

// register uploads the sprite texture and waits for its id.
func register(r *mana.Renderer) (uint32, error) {
	type result struct {
		id uint32
		ok bool
	}
	done := make(chan result, 1)
	if !r.StartRequest(true) {
		return 0, fmt.Errorf("renderer refused commands")
	}
	r.Request(command.InfoAdd{
		Info:  command.InfoTexture,
		Name:  "ball",
		Group: "demo",
		Image: disc(32, color.RGBA{255, 200, 40, 255}),
		Done:  func(id uint32, ok bool) { done <- result{id, ok} },
	})
	r.EndRequest()
	if st := r.Render(true); st == mana.StatusFatal {
		return 0, fmt.Errorf("render: %v", st)
	}
	res := <-done
	if !res.ok {
		return 0, fmt.Errorf("texture %q not registered", "ball")
	}
	return res.id, nil
}

// disc returns a size×size image of a filled circle.
func disc(size int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Rect, image.Transparent, image.Point{}, draw.Src)
	r := float64(size) / 2
	for y := range size {
		for x := range size {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return img
}

// scene queues the commands of frame n.
func scene(r *mana.Renderer, ball uint32, n, w, h int) {
	fw, fh := float32(w), float32(h)
	t := float64(n) / 30

	// Floor.
	r.Request(command.PolygonDraw{
		Vertices: [4]mgl32.Vec3{{0, fh * 0.8, 0}, {fw, fh * 0.8, 0}, {fw, fh, 0}, {0, fh, 0}},
		Count:    4,
		Colors:   [2]command.Color{gputypes.NewColor(0.2, 0.5, 0.2, 1), gputypes.ColorTransparent},
		Mode:     command.ModeFlat,
	})

	// Rotating translucent triangle behind the balls.
	rot := mgl32.Translate3D(fw/2, fh/2, 5).Mul4(mgl32.HomogRotate3DZ(float32(t)))
	r.Request(command.PolygonDraw{
		Vertices:  [4]mgl32.Vec3{{0, -120, 0}, {104, 60, 0}, {-104, 60, 0}},
		Count:     3,
		Transform: rot,
		Colors:    [2]command.Color{gputypes.NewColor(0.9, 0.3, 0.5, 0.6), gputypes.ColorTransparent},
		Mode:      command.ModeFlatAlpha,
	})

	// Bouncing balls, brighter ones added on top.
	src := command.Rect{W: 32, H: 32}
	for i := range 8 {
		phase := t + float64(i)*0.6
		x := fw*0.1 + float32(i)*fw*0.1
		y := fh*0.8 - 32 - float32(math.Abs(math.Sin(phase)))*fh*0.5
		s := command.NewSprite(ball, src, x, y, 10+float32(i))
		if i%2 == 1 {
			s.Mode = command.ModeAdd
			s.Colors[0] = gputypes.NewColor(0.5, 0.7, 1, 1)
		}
		r.Request(s)
	}
}
