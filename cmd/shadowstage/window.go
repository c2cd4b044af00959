package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"shadowstage/internal/config"
	"shadowstage/internal/graphics/renderer"
	"shadowstage/internal/input"
	"shadowstage/internal/logging"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/xlab/closer"
)

var keyMap = map[glfw.Key]input.Key{
	glfw.KeyEscape:   input.KeyEscape,
	glfw.KeyEnter:    input.KeyEnter,
	glfw.KeySpace:    input.KeySpace,
	glfw.KeyLeft:     input.KeyArrowLeft,
	glfw.KeyRight:    input.KeyArrowRight,
	glfw.KeyUp:       input.KeyArrowUp,
	glfw.KeyDown:     input.KeyArrowDown,
	glfw.KeyPageUp:   input.KeyPageUp,
	glfw.KeyPageDown: input.KeyPageDown,
	glfw.KeyHome:     input.KeyHome,
	glfw.KeyEnd:      input.KeyEnd,
	glfw.KeyF1:       input.KeyF1,
	glfw.KeyF2:       input.KeyF2,
	glfw.KeyF3:       input.KeyF3,
	glfw.KeyF4:       input.KeyF4,
}

// contextHints is one attempt at a GL context.
type contextHints struct {
	major, minor int
	profile      int
}

// contextAttempts are tried in order. The device binds the 3.2
// compatibility profile: fixed-function state plus core framebuffer
// objects. Some drivers refuse an explicit compatibility request but hand
// out their newest compatibility context for the default hints.
var contextAttempts = []contextHints{
	{major: 3, minor: 2, profile: glfw.OpenGLCompatProfile},
	{major: 1, minor: 0, profile: glfw.OpenGLAnyProfile},
}

func setupWindow(cfg config.WindowConfig) (*glfw.Window, error) {
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.DepthBits, 24)

	var err error
	for _, h := range contextAttempts {
		glfw.WindowHint(glfw.ContextVersionMajor, h.major)
		glfw.WindowHint(glfw.ContextVersionMinor, h.minor)
		glfw.WindowHint(glfw.OpenGLProfile, h.profile)

		var window *glfw.Window
		window, err = glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
		if err == nil {
			return window, nil
		}
		logging.Logger().Warn("setupWindow: context refused", "version", fmt.Sprintf("%d.%d", h.major, h.minor), "err", err)
	}
	return nil, fmt.Errorf("glfw: create window: %w", err)
}

// setupCallbacks forwards window events to q. GLFW calls them on the main
// thread from PollEvents; the queue hands them to the render thread.
func setupCallbacks(window *glfw.Window, q *input.Queue) {
	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		k, ok := keyMap[key]
		if !ok {
			return
		}
		switch action {
		case glfw.Press:
			q.Push(input.KeyDownEvent(k))
		case glfw.Release:
			q.Push(input.KeyUpEvent(k))
		}
	})
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		q.Push(input.ResizeEvent(int32(w), int32(h)))
	})
	window.SetCloseCallback(func(*glfw.Window) {
		q.Push(input.QuitEvent())
	})
}

// joystickPoller turns the state of one joystick into events. GLFW has no
// joystick callbacks for buttons and axes, so it is polled after every
// PollEvents.
type joystickPoller struct {
	joy     glfw.Joystick
	q       *input.Queue
	present bool
	axes    []float32
	buttons []glfw.Action
	hat     glfw.JoystickHatState
}

func (p *joystickPoller) poll() {
	present := p.joy.Present()
	if present != p.present {
		logging.Logger().Info("joystick: presence changed", "joystick", int(p.joy), "present", present)
		p.present = present
		p.axes, p.buttons, p.hat = nil, nil, glfw.HatCentered
	}
	if !present {
		return
	}
	id := int(p.joy)

	axes := p.joy.GetAxes()
	for i, v := range axes {
		if i < len(p.axes) && p.axes[i] == v {
			continue
		}
		p.q.Push(input.Event{Kind: input.AxisMotion, Joystick: id, Axis: i, Value: v})
	}
	p.axes = slices.Clone(axes)

	buttons := p.joy.GetButtons()
	for i, b := range buttons {
		prev := glfw.Release
		if i < len(p.buttons) {
			prev = p.buttons[i]
		}
		if b == prev {
			continue
		}
		kind := input.ButtonUp
		if b == glfw.Press {
			kind = input.ButtonDown
		}
		p.q.Push(input.Event{Kind: kind, Joystick: id, Button: i})
	}
	p.buttons = slices.Clone(buttons)

	if hats := p.joy.GetHats(); len(hats) > 0 && hats[0] != p.hat {
		p.hat = hats[0]
		p.q.Push(input.Event{Kind: input.HatMotion, Joystick: id, Hat: input.Hat(p.hat)})
	}
}

// runWindowed opens the window and runs the renderer on its own locked
// thread. The main thread keeps polling the window system until the render
// thread finishes.
func runWindowed(cfg config.Config) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw: init: %w", err)
	}
	defer glfw.Terminate()

	window, err := setupWindow(cfg.Window)
	if err != nil {
		return err
	}
	defer window.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan *renderer.Renderer, 1)
	done := make(chan error, 1)
	finished := make(chan struct{})
	closer.Bind(func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
		}
	})

	go func() {
		defer close(finished)
		done <- renderLoop(ctx, window, cfg, ready)
	}()

	var r *renderer.Renderer
	select {
	case r = <-ready:
	case err := <-done:
		return err
	}

	setupCallbacks(window, r.Events())
	w, h := window.GetFramebufferSize()
	r.Events().Push(input.ResizeEvent(int32(w), int32(h)))

	joy := &joystickPoller{joy: glfw.Joystick1, q: r.Events()}
	for {
		select {
		case err := <-done:
			return err
		default:
		}
		glfw.WaitEventsTimeout(0.01)
		joy.poll()
	}
}
