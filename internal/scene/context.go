package scene

import (
	"fmt"
	"time"

	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
)

// Pass identifies one pass of the frame.
type Pass int

const (
	PassShadowMap Pass = iota
	PassLighting
	PassShadowTest
	NumPasses
)

func (p Pass) String() string {
	switch p {
	case PassShadowMap:
		return "shadowmap"
	case PassLighting:
		return "lighting"
	case PassShadowTest:
		return "composite"
	}
	return fmt.Sprintf("pass(%d)", int(p))
}

// UpdateFunc is a per-frame callback.
type UpdateFunc func(elapsed time.Duration)

// UpdateToken identifies a registered UpdateFunc. The zero token is never
// issued.
type UpdateToken uint64

// UpdateRegistry drives callbacks once per frame outside the render walk.
type UpdateRegistry interface {
	RegisterUpdateFunction(fn UpdateFunc) UpdateToken
	UnRegisterUpdateFunction(tok UpdateToken)
}

// EventRegistry delivers input events to subscribed entities, keyed by
// entity ID.
type EventRegistry interface {
	Subscribe(e *Entity)
	Unsubscribe(id EntityID)
}

// ShadowState is produced by the shadow-map pass and consumed by the
// composite pass.
type ShadowState struct {
	Texture  uint32
	Matrix   mgl32.Mat4
	Darkness float32
	Filter   device.Filter
}

// Context is the render context threaded through initialization, rendering
// and teardown. It owns the guard stacks that save device state at setup and
// restore it at cleanup. A Context belongs to the render thread.
type Context struct {
	Device device.Device

	// SurfaceWidth and SurfaceHeight are the window surface size. Viewport
	// rectangles use a top-left origin and are flipped against the height.
	SurfaceWidth, SurfaceHeight int32

	Updates UpdateRegistry
	Events  EventRegistry

	// Shadow is set by the shadow-map pass of the current frame, nil when no
	// shadow map was rendered.
	Shadow *ShadowState

	// OnRemove, if set, is called for every entity unlinked by CheckDestroy.
	OnRemove func(parent, child *Entity)

	guards []guard
	views  []viewGuard
	flags  []flagGuard
}

// NewContext returns a context for dev without registries.
func NewContext(dev device.Device) *Context {
	return &Context{Device: dev}
}

// SetSurface records the window surface size.
func (rc *Context) SetSurface(width, height int32) {
	rc.SurfaceWidth, rc.SurfaceHeight = width, height
}

// Balanced reports whether every guard acquired so far was released.
func (rc *Context) Balanced() bool {
	return len(rc.guards) == 0 && len(rc.views) == 0 && len(rc.flags) == 0
}

type guard struct {
	changed  [2]bool
	was      [2]bool
	src, dst device.BlendFactor
}

var toggled = [2]device.Capability{device.AlphaTest, device.Blend}

// Acquire pushes the modelview stack, concatenates the transform of rs and
// brings alpha test and blend in line with rs, touching the device only
// where it disagrees.
func (rc *Context) Acquire(rs *RenderState) {
	d := rc.Device
	d.PushMatrix()
	d.MultMatrix(rs.Transform.Matrix())

	var g guard
	g.src, g.dst = d.BlendFunc()
	for i, want := range [2]Toggle{rs.AlphaTest, rs.Blend} {
		c := toggled[i]
		on := d.IsEnabled(c)
		switch {
		case want == On && !on:
			d.SetBlendFunc(device.SrcAlpha, device.OneMinusSrcAlpha)
			d.Enable(c)
		case want == Off && on:
			d.Disable(c)
		default:
			continue
		}
		g.changed[i], g.was[i] = true, on
	}
	rc.guards = append(rc.guards, g)
}

// Release undoes the matching Acquire.
func (rc *Context) Release() {
	n := len(rc.guards) - 1
	if n < 0 {
		panic("scene: Release without Acquire")
	}
	g := rc.guards[n]
	rc.guards = rc.guards[:n]

	d := rc.Device
	for i, changed := range g.changed {
		if !changed {
			continue
		}
		if g.was[i] {
			d.Enable(toggled[i])
		} else {
			d.Disable(toggled[i])
		}
	}
	if src, dst := d.BlendFunc(); src != g.src || dst != g.dst {
		d.SetBlendFunc(g.src, g.dst)
	}
	d.PopMatrix()
}

type viewGuard struct {
	viewport   device.Rect
	projection mgl32.Mat4
	modelview  mgl32.Mat4
}

// SaveView saves the device viewport, projection and modelview matrices.
func (rc *Context) SaveView() {
	d := rc.Device
	rc.views = append(rc.views, viewGuard{
		viewport:   d.Viewport(),
		projection: d.Matrix(device.Projection),
		modelview:  d.Matrix(device.Modelview),
	})
}

// RestoreView restores the state saved by the matching SaveView.
func (rc *Context) RestoreView() {
	n := len(rc.views) - 1
	if n < 0 {
		panic("scene: RestoreView without SaveView")
	}
	v := rc.views[n]
	rc.views = rc.views[:n]

	d := rc.Device
	d.SetViewport(v.viewport)
	d.LoadMatrix(device.Projection, v.projection)
	d.LoadMatrix(device.Modelview, v.modelview)
}

type flagGuard []struct {
	c  device.Capability
	on bool
}

// PushFlags saves the enable state of caps.
func (rc *Context) PushFlags(caps ...device.Capability) {
	fg := make(flagGuard, len(caps))
	for i, c := range caps {
		fg[i].c, fg[i].on = c, rc.Device.IsEnabled(c)
	}
	rc.flags = append(rc.flags, fg)
}

// PopFlags restores the flags saved by the matching PushFlags.
func (rc *Context) PopFlags() {
	n := len(rc.flags) - 1
	if n < 0 {
		panic("scene: PopFlags without PushFlags")
	}
	fg := rc.flags[n]
	rc.flags = rc.flags[:n]
	for _, f := range fg {
		if f.on {
			rc.Device.Enable(f.c)
		} else {
			rc.Device.Disable(f.c)
		}
	}
}

// SurfaceRect converts a top-left-origin rectangle into a device viewport.
func (rc *Context) SurfaceRect(r device.Rect) device.Rect {
	if rc.SurfaceHeight > 0 {
		r.Y = rc.SurfaceHeight - r.Y - r.Height
	}
	return r
}

func (rc *Context) registerUpdate(fn UpdateFunc) UpdateToken {
	if rc.Updates == nil {
		return 0
	}
	return rc.Updates.RegisterUpdateFunction(fn)
}

func (rc *Context) subscribe(e *Entity) bool {
	if rc.Events == nil {
		return false
	}
	rc.Events.Subscribe(e)
	return true
}
