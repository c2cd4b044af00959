package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"shadowstage/internal/config"
	"shadowstage/internal/graphics/device"
	"shadowstage/internal/graphics/device/soft"
	"shadowstage/internal/graphics/gldevice"
	"shadowstage/internal/graphics/renderer"
	"shadowstage/internal/input"
	"shadowstage/internal/logging"
	"shadowstage/internal/scene"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// renderLoop owns the GL context of window until it returns. The renderer
// is handed to the main thread through ready once the scene is built.
func renderLoop(ctx context.Context, window *glfw.Window, cfg config.Config, ready chan<- *renderer.Renderer) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	window.MakeContextCurrent()
	defer glfw.DetachCurrentContext()
	if cfg.Render.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	dev, err := gldevice.New()
	if err != nil {
		return err
	}
	w, h := window.GetFramebufferSize()
	r := renderer.New(dev, int32(w), int32(h), nil)
	r.SlowFrame = time.Duration(cfg.Render.SlowFrameMS * float64(time.Millisecond))
	buildScene(r, cfg)
	defer r.Dispose()
	ready <- r

	limiter := NewFPSLimiter()
	err = r.Run(ctx, func() error {
		window.SwapBuffers()
		limiter.Wait()
		return nil
	})
	if errors.Is(err, context.Canceled) {
		logging.Logger().Info("renderLoop: canceled", "frames", r.Frames())
		return nil
	}
	return err
}

// runHeadless renders frames on the software device at a fixed 60 Hz step
// and logs what the last frame drew.
func runHeadless(cfg config.Config, frames int) error {
	w, h := int32(cfg.Window.Width), int32(cfg.Window.Height)
	dev := soft.New(soft.WithViewport(device.Rect{Width: w, Height: h}))
	r := renderer.New(dev, w, h, nil)
	d := buildScene(r, cfg)
	defer r.Dispose()
	r.Events().Push(input.ResizeEvent(w, h))

	const step = time.Second / 60
	for i := 0; i < frames && !r.Terminated(); i++ {
		dev.ResetLog()
		if err := r.Frame(step); err != nil {
			return err
		}
	}

	var shadow, composite, quads int
	for _, dc := range dev.Draws {
		switch {
		case dc.Composite:
			composite++
		case dc.Framebuffer != 0:
			shadow++
		case dc.Kind == soft.DrawQuads:
			quads++
		}
	}
	logging.Logger().Info("runHeadless: done",
		"frames", r.Frames(),
		"draws", len(dev.Draws),
		"shadow_draws", shadow,
		"composite_draws", composite,
		"quads", quads,
		"clears", len(dev.Clears),
		"passes", fmt.Sprint(d.stage.Passes()),
		"timings", r.Timings(),
	)
	if !r.Context().Balanced() {
		return errors.New("headless: device guards unbalanced")
	}
	if slices.Contains(d.stage.Passes(), scene.PassShadowMap) && len(d.stage.World().Lights()) > 0 && shadow == 0 {
		return errors.New("headless: shadow pass drew nothing")
	}
	return nil
}
