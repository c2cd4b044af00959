// Package scene implements the render tree: entities with a deferred
// initialization lifecycle, render-state propagation through the device
// context, and the concrete nodes that compose the shadow-mapping stage.
//
// Every call into this package must come from the render thread.
package scene

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"shadowstage/internal/input"
	"shadowstage/internal/logging"
)

// EntityID is a stable, process-unique entity identity.
type EntityID uint64

var nextEntityID atomic.Uint64

// Flags are the per-entity state bits.
type Flags uint8

const (
	Enabled Flags = 1 << iota
	Visible
	PendingDelete
)

// InitState tracks the one-time initialization of an entity.
type InitState uint8

const (
	Uninitialized InitState = iota
	Initializing
	Ready
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("initstate(%d)", uint8(s))
}

// Hooks is the capability set every node implements. Embed BaseHooks for
// the default behavior and override what the node specializes.
type Hooks interface {
	// DoInitialize runs exactly once, after the children were initialized.
	DoInitialize(rc *Context, e *Entity) error
	// SetupRender establishes the node's device state before its content.
	SetupRender(rc *Context, e *Entity, pass Pass)
	// RenderContent draws the children and then the node itself.
	RenderContent(rc *Context, e *Entity, pass Pass)
	// CleanupRender undoes SetupRender.
	CleanupRender(rc *Context, e *Entity, pass Pass)
	// DoUpdate advances the node by one frame.
	DoUpdate(e *Entity, elapsed time.Duration)
}

// Drawer is implemented by nodes with their own draw call.
type Drawer interface {
	DoRender(rc *Context, e *Entity, pass Pass)
}

// EventHandler is implemented by nodes that consume input events.
type EventHandler interface {
	DoHandleEvent(ev input.Event) bool
}

// Disposer is implemented by nodes owning device handles. DoDispose runs on
// the render thread when the last owner drops the node.
type Disposer interface {
	DoDispose(rc *Context)
}

// BaseHooks provides the default template: push the transform and diff the
// alpha and blend flags, render the children and then the node's own
// DoRender, restore.
type BaseHooks struct{}

func (BaseHooks) DoInitialize(*Context, *Entity) error { return nil }

func (BaseHooks) SetupRender(rc *Context, e *Entity, _ Pass) {
	rc.Acquire(e.State())
}

func (BaseHooks) RenderContent(rc *Context, e *Entity, pass Pass) {
	e.RenderChildren(rc, pass)
	e.DrawSelf(rc, pass)
}

func (BaseHooks) CleanupRender(rc *Context, _ *Entity, _ Pass) {
	rc.Release()
}

func (BaseHooks) DoUpdate(*Entity, time.Duration) {}

// Entity is a node of the render tree.
//
// Children are added to a pending list and move to the active list, sorted
// by priority, when the tree is initialized. Only active children are
// rendered.
type Entity struct {
	id        EntityID
	name      string
	flags     Flags
	order     int
	state     *RenderState
	hooks     Hooks
	initState InitState

	pending []*Entity
	active  []*Entity

	owners     int
	updateTok  UpdateToken
	subscribed bool
}

// NewEntity creates an enabled, visible entity. state is the node's render
// state, usually embedded in a larger node-specific struct; nil allocates a
// plain one. hooks nil selects BaseHooks.
func NewEntity(hooks Hooks, state *RenderState) *Entity {
	if hooks == nil {
		hooks = BaseHooks{}
	}
	if state == nil {
		rs := NewRenderState()
		state = &rs
	}
	return &Entity{
		id:    EntityID(nextEntityID.Add(1)),
		flags: Enabled | Visible,
		state: state,
		hooks: hooks,
	}
}

func (e *Entity) ID() EntityID        { return e.id }
func (e *Entity) Name() string        { return e.name }
func (e *Entity) SetName(name string) { e.name = name }
func (e *Entity) Order() int          { return e.order }
func (e *Entity) State() *RenderState { return e.state }
func (e *Entity) Hooks() Hooks        { return e.hooks }
func (e *Entity) InitState() InitState {
	return e.initState
}

func (e *Entity) String() string {
	if e.name != "" {
		return fmt.Sprintf("%s#%d", e.name, e.id)
	}
	return fmt.Sprintf("entity#%d", e.id)
}

// Flags returns the state bits.
func (e *Entity) Flags() Flags { return e.flags }

func (e *Entity) Enabled() bool       { return e.flags&Enabled != 0 }
func (e *Entity) Visible() bool       { return e.flags&Visible != 0 }
func (e *Entity) PendingDelete() bool { return e.flags&PendingDelete != 0 }

func (e *Entity) SetEnabled(on bool) { e.setFlag(Enabled, on) }
func (e *Entity) SetVisible(on bool) { e.setFlag(Visible, on) }

// Destroy flags the entity for removal by the next CheckDestroy sweep.
func (e *Entity) Destroy() { e.flags |= PendingDelete }

func (e *Entity) setFlag(f Flags, on bool) {
	if on {
		e.flags |= f
	} else {
		e.flags &^= f
	}
}

// Renderable reports whether a parent descends into e.
func (e *Entity) Renderable() bool {
	return e.flags&(Enabled|Visible|PendingDelete) == Enabled|Visible && e.initState == Ready
}

// AddEntity sets the child's priority and queues it for initialization. An
// entity may be added under several parents; it is then shared and disposed
// when the last parent drops it.
func (e *Entity) AddEntity(child *Entity, priority int) {
	if child == nil {
		panic("scene: AddEntity with nil child")
	}
	if child == e {
		panic(fmt.Sprintf("scene: %s added to itself", e))
	}
	child.order = priority
	child.owners++
	e.pending = append(e.pending, child)
}

// Children returns the active children in render order.
func (e *Entity) Children() []*Entity {
	return slices.Clone(e.active)
}

// NumPending returns the number of children awaiting initialization.
func (e *Entity) NumPending() int { return len(e.pending) }

// Initialize drains the pending list in FIFO order, initializing each child
// before moving it to the active list, stable-sorts the active list by
// priority and then runs the node's DoInitialize once. Every pending child
// is attempted; failures are joined with the node's own error.
func (e *Entity) Initialize(rc *Context) error {
	if e.initState == Initializing {
		return nil
	}
	prev := e.initState
	e.initState = Initializing

	var errs []error
	for _, c := range e.active {
		if err := c.Initialize(rc); err != nil {
			errs = append(errs, err)
		}
	}
	if len(e.pending) > 0 {
		pending := e.pending
		e.pending = nil
		for _, c := range pending {
			if err := c.Initialize(rc); err != nil {
				errs = append(errs, err)
			}
			e.active = append(e.active, c)
		}
		slices.SortStableFunc(e.active, func(a, b *Entity) int {
			return cmp.Compare(a.order, b.order)
		})
	}

	if prev != Uninitialized {
		e.initState = prev
		return errors.Join(errs...)
	}
	if err := e.hooks.DoInitialize(rc, e); err != nil {
		e.initState = Uninitialized
		logging.Logger().Error("scene.Initialize: failed", "entity", e.String(), "err", err)
		errs = append(errs, fmt.Errorf("initialize %s: %w", e, err))
		return errors.Join(errs...)
	}
	e.initState = Ready
	return errors.Join(errs...)
}

// Render runs the node's SetupRender, RenderContent and CleanupRender.
func (e *Entity) Render(rc *Context, pass Pass) {
	e.hooks.SetupRender(rc, e, pass)
	e.hooks.RenderContent(rc, e, pass)
	e.hooks.CleanupRender(rc, e, pass)
}

// RenderChildren renders every active child that is enabled, visible, not
// pending deletion and initialized.
func (e *Entity) RenderChildren(rc *Context, pass Pass) {
	for _, c := range e.active {
		if c.Renderable() {
			c.Render(rc, pass)
		}
	}
}

// RenderChild renders one child under the same filter as RenderChildren.
func (e *Entity) RenderChild(rc *Context, child *Entity, pass Pass) {
	if child.Renderable() {
		child.Render(rc, pass)
	}
}

// DrawSelf invokes the node's DoRender, if it has one.
func (e *Entity) DrawSelf(rc *Context, pass Pass) {
	if d, ok := e.hooks.(Drawer); ok {
		d.DoRender(rc, e, pass)
	}
}

// Update advances the node when it is enabled. The tree does not propagate
// updates; nodes register Update with the context's UpdateRegistry.
func (e *Entity) Update(elapsed time.Duration) {
	if e.Enabled() {
		e.hooks.DoUpdate(e, elapsed)
	}
}

// HandleEvent offers ev to the node. Disabled nodes only see resizes, so
// their layout is current when they are enabled again.
func (e *Entity) HandleEvent(ev input.Event) bool {
	if !e.Enabled() && ev.Kind != input.Resize {
		return false
	}
	if h, ok := e.hooks.(EventHandler); ok {
		return h.DoHandleEvent(ev)
	}
	return false
}

// RegisterUpdate registers e.Update with the context's update registry. It
// is undone when the entity is disposed.
func (e *Entity) RegisterUpdate(rc *Context) {
	if e.updateTok != 0 {
		return
	}
	e.updateTok = rc.registerUpdate(e.Update)
}

// Subscribe subscribes e to input events. It is undone when the entity is
// disposed.
func (e *Entity) Subscribe(rc *Context) {
	if e.subscribed {
		return
	}
	e.subscribed = rc.subscribe(e)
}

// CheckDestroy sweeps the subtree depth-first: each child's own subtree is
// swept first, then children flagged PendingDelete are unlinked.
func (e *Entity) CheckDestroy(rc *Context) {
	kept := e.active[:0]
	for _, c := range e.active {
		c.CheckDestroy(rc)
		if c.PendingDelete() {
			e.unlink(rc, c)
			continue
		}
		kept = append(kept, c)
	}
	clear(e.active[len(kept):])
	e.active = kept
}

func (e *Entity) unlink(rc *Context, c *Entity) {
	logging.Logger().Debug("scene.CheckDestroy: unlinked", "parent", e.String(), "child", c.String())
	if rc.OnRemove != nil {
		rc.OnRemove(e, c)
	}
	c.release(rc)
}

func (e *Entity) release(rc *Context) {
	e.owners--
	if e.owners > 0 {
		return
	}
	e.dispose(rc)
}

func (e *Entity) dispose(rc *Context) {
	for _, c := range e.active {
		c.release(rc)
	}
	for _, c := range e.pending {
		c.release(rc)
	}
	e.active, e.pending = nil, nil

	if e.updateTok != 0 && rc.Updates != nil {
		rc.Updates.UnRegisterUpdateFunction(e.updateTok)
	}
	e.updateTok = 0
	if e.subscribed && rc.Events != nil {
		rc.Events.Unsubscribe(e.id)
	}
	e.subscribed = false
	if d, ok := e.hooks.(Disposer); ok {
		d.DoDispose(rc)
	}
	e.initState = Uninitialized
}

// Dispose tears down the whole subtree regardless of ownership. Used for
// the tree root at shutdown.
func (e *Entity) Dispose(rc *Context) {
	e.owners = 0
	e.dispose(rc)
}

// Find returns the first entity named name in the subtree, e included.
func (e *Entity) Find(name string) *Entity {
	var found *Entity
	e.walk(func(n *Entity) bool {
		if n.name == name {
			found = n
			return false
		}
		return true
	})
	return found
}

// Walk visits e and its descendants pre-order, active children in render
// order followed by pending ones. Returning false stops the walk. A shared
// entity is visited once per parent.
func (e *Entity) Walk(fn func(*Entity) bool) {
	e.walk(fn)
}

func (e *Entity) walk(fn func(*Entity) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.active {
		if !c.walk(fn) {
			return false
		}
	}
	for _, c := range e.pending {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}
