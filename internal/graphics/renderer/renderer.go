package renderer

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"shadowstage/internal/graphics/device"
	"shadowstage/internal/input"
	"shadowstage/internal/logging"
	"shadowstage/internal/profiling"
	"shadowstage/internal/scene"
)

type handler struct {
	id HandlerID
	fn EventHandlerFunc
}

// Renderer owns the render tree and drives it one frame at a time:
//
//  1. drain the input queue and dispatch every event
//  2. sweep destroyed entities
//  3. initialize entities added since the last frame
//  4. run the update callbacks
//  5. render the tree
//
// Everything but Events, Terminate and Terminated must be called from the
// render thread.
type Renderer struct {
	rc       *scene.Context
	root     *scene.Entity
	events   *input.Queue
	bindings *input.Bindings
	prof     *profiling.Profiler

	updates     map[scene.UpdateToken]scene.UpdateFunc
	updateOrder []scene.UpdateToken
	nextToken   scene.UpdateToken

	subscribers map[scene.EntityID]*scene.Entity
	subOrder    []scene.EntityID

	handlers    []handler
	nextHandler HandlerID

	terminated atomic.Bool
	frames     uint64
	pending    []input.Event
	timings    string

	// SlowFrame, when positive, logs the pass timings of every frame that
	// takes longer.
	SlowFrame time.Duration
}

var (
	_ scene.UpdateRegistry = (*Renderer)(nil)
	_ scene.EventRegistry  = (*Renderer)(nil)
)

// New creates a renderer drawing through dev onto a surface of the given
// size. bindings nil selects the defaults.
func New(dev device.Device, width, height int32, bindings *input.Bindings) *Renderer {
	if bindings == nil {
		bindings = input.NewBindings()
	}
	r := &Renderer{
		rc:          scene.NewContext(dev),
		root:        scene.NewEntity(nil, nil),
		events:      &input.Queue{},
		bindings:    bindings,
		prof:        profiling.Default(),
		updates:     make(map[scene.UpdateToken]scene.UpdateFunc),
		subscribers: make(map[scene.EntityID]*scene.Entity),
	}
	r.root.SetName("root")
	r.rc.Updates = r
	r.rc.Events = r
	r.rc.SetSurface(width, height)
	return r
}

func (r *Renderer) Context() *scene.Context   { return r.rc }
func (r *Renderer) Root() *scene.Entity       { return r.root }
func (r *Renderer) Bindings() *input.Bindings { return r.bindings }
func (r *Renderer) Frames() uint64            { return r.frames }

// Events returns the input queue. It may be fed from any goroutine.
func (r *Renderer) Events() *input.Queue { return r.events }

// Timings returns the pass timings of the last finished frame, largest
// first.
func (r *Renderer) Timings() string { return r.timings }

// AddEntity attaches e under the root. It is initialized at the start of
// the next frame.
func (r *Renderer) AddEntity(e *scene.Entity, priority int) {
	r.root.AddEntity(e, priority)
}

// FindEntity returns the first entity named name.
func (r *Renderer) FindEntity(name string) *scene.Entity {
	return r.root.Find(name)
}

// RegisterUpdateFunction adds fn to the per-frame callbacks. Callbacks run
// in registration order.
func (r *Renderer) RegisterUpdateFunction(fn scene.UpdateFunc) scene.UpdateToken {
	r.nextToken++
	r.updates[r.nextToken] = fn
	r.updateOrder = append(r.updateOrder, r.nextToken)
	return r.nextToken
}

// UnRegisterUpdateFunction removes a callback. It is safe to call from a
// callback; an unregistered callback does not run again, even later in the
// same frame.
func (r *Renderer) UnRegisterUpdateFunction(tok scene.UpdateToken) {
	if _, ok := r.updates[tok]; !ok {
		return
	}
	delete(r.updates, tok)
	r.updateOrder = slices.DeleteFunc(r.updateOrder, func(t scene.UpdateToken) bool { return t == tok })
}

// Subscribe delivers input events to e, in subscription order.
func (r *Renderer) Subscribe(e *scene.Entity) {
	if _, ok := r.subscribers[e.ID()]; ok {
		return
	}
	r.subscribers[e.ID()] = e
	r.subOrder = append(r.subOrder, e.ID())
}

func (r *Renderer) Unsubscribe(id scene.EntityID) {
	if _, ok := r.subscribers[id]; !ok {
		return
	}
	delete(r.subscribers, id)
	r.subOrder = slices.DeleteFunc(r.subOrder, func(s scene.EntityID) bool { return s == id })
}

// AddEventHandler adds a handler consulted after the subscribed entities.
func (r *Renderer) AddEventHandler(fn EventHandlerFunc) HandlerID {
	r.nextHandler++
	r.handlers = append(r.handlers, handler{id: r.nextHandler, fn: fn})
	return r.nextHandler
}

func (r *Renderer) RemoveEventHandler(id HandlerID) {
	r.handlers = slices.DeleteFunc(r.handlers, func(h handler) bool { return h.id == id })
}

// HandleEvent dispatches one event and reports whether something consumed
// it. A resize reaches every entity of the tree and is never consumed.
// Other events go to the subscribers, then the handlers; the first to
// return true stops the dispatch. Unconsumed quit requests and events bound
// to ActionQuit terminate the renderer.
func (r *Renderer) HandleEvent(ev input.Event) bool {
	if ev.Kind == input.Resize {
		r.broadcastResize(ev)
		return false
	}

	r.bindings.Apply(ev)
	for _, id := range slices.Clone(r.subOrder) {
		e, ok := r.subscribers[id]
		if !ok || e.PendingDelete() {
			continue
		}
		if e.HandleEvent(ev) {
			return true
		}
	}
	for _, h := range slices.Clone(r.handlers) {
		if h.fn(ev) {
			return true
		}
	}

	if ev.Kind == input.Quit || r.quitRequested(ev) {
		logging.Logger().Info("renderer.HandleEvent: quit", "event", ev.Kind.String())
		r.Terminate()
	}
	return false
}

func (r *Renderer) quitRequested(ev input.Event) bool {
	switch ev.Kind {
	case input.KeyDown, input.ButtonDown:
		return r.bindings.Bound(ev, input.ActionQuit)
	}
	return false
}

func (r *Renderer) broadcastResize(ev input.Event) {
	r.rc.SetSurface(ev.Width, ev.Height)
	seen := make(map[scene.EntityID]bool)
	r.root.Walk(func(e *scene.Entity) bool {
		if seen[e.ID()] {
			return true
		}
		seen[e.ID()] = true
		e.HandleEvent(ev)
		return true
	})
}

// Frame runs one frame. elapsed is the time since the previous frame.
func (r *Renderer) Frame(elapsed time.Duration) error {
	r.prof.ResetFrame()

	r.pending = r.events.Drain(r.pending[:0])
	for _, ev := range r.pending {
		r.HandleEvent(ev)
	}

	r.root.CheckDestroy(r.rc)
	if err := r.root.Initialize(r.rc); err != nil {
		return fmt.Errorf("renderer: initialize: %w", err)
	}

	stop := r.prof.Track("renderer.update")
	for _, tok := range slices.Clone(r.updateOrder) {
		if fn, ok := r.updates[tok]; ok {
			fn(elapsed)
		}
	}
	stop()

	r.root.Render(r.rc, scene.PassLighting)
	if !r.rc.Balanced() {
		return fmt.Errorf("renderer: frame %d left device guards unbalanced", r.frames)
	}

	r.bindings.PostUpdate()
	r.timings = r.prof.TopN(4)
	r.frames++
	return nil
}

// Run calls Frame and present until Terminate is called, ctx is done or a
// frame fails. It returns the frame or present error, or ctx.Err().
func (r *Renderer) Run(ctx context.Context, present PresentFunc) error {
	last := time.Now()
	for !r.Terminated() {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		elapsed := start.Sub(last)
		last = start

		if err := r.Frame(elapsed); err != nil {
			r.Terminate()
			return err
		}
		if present != nil {
			if err := present(); err != nil {
				r.Terminate()
				return fmt.Errorf("renderer: present: %w", err)
			}
		}
		if d := time.Since(start); r.SlowFrame > 0 && d > r.SlowFrame {
			logging.Logger().Warn("renderer.Run: slow frame", "frame", r.frames, "took", d, "passes", r.timings)
		}
	}
	return nil
}

// Terminate makes Run return after the current frame. Safe for concurrent
// use.
func (r *Renderer) Terminate()       { r.terminated.Store(true) }
func (r *Renderer) Terminated() bool { return r.terminated.Load() }

// Dispose tears down the whole tree, releasing every device handle.
func (r *Renderer) Dispose() {
	r.root.Dispose(r.rc)
	clear(r.updates)
	r.updateOrder = nil
	clear(r.subscribers)
	r.subOrder = nil
	r.handlers = nil
}
