package scene

import (
	"shadowstage/internal/graphics/device"
	"shadowstage/internal/input"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Frustum defaults.
const (
	DefaultFOV  = 45
	DefaultNear = 1
	DefaultFar  = 100
)

// DefaultClearColor is the background of a freshly created view.
var DefaultClearColor = mgl32.Vec4{0.25, 0.25, 0.25, 1}

// Frustum is a symmetric perspective projection.
type Frustum struct {
	FOV, Near, Far float32
	Aspect         float32
	Matrix         mgl32.Mat4
}

// NewFrustum returns a frustum with the default planes and aspect 1.
func NewFrustum() Frustum {
	f := Frustum{FOV: DefaultFOV, Near: DefaultNear, Far: DefaultFar, Aspect: 1}
	f.update()
	return f
}

// Set changes the field of view (degrees) and the clip planes.
func (f *Frustum) Set(fov, near, far float32) {
	f.FOV, f.Near, f.Far = fov, near, far
	f.update()
}

// Resize recomputes the aspect ratio from a rectangle size.
func (f *Frustum) Resize(width, height int32) {
	if width <= 0 || height <= 0 {
		return
	}
	f.Aspect = float32(width) / float32(height)
	f.update()
}

func (f *Frustum) update() {
	fH := math32.Tan(f.FOV/360*math32.Pi) * f.Near
	fW := fH * f.Aspect
	f.Matrix = mgl32.Frustum(-fW, fW, -fH, fH, f.Near, f.Far)
}

// ViewState is the render state of a Viewport or Ortho node.
type ViewState struct {
	RenderState
	// Rect is the node's rectangle in surface pixels, origin top-left.
	Rect       device.Rect
	ClearColor mgl32.Vec4
}

// Layout computes a view rectangle from the surface size.
type Layout func(width, height int32) device.Rect

// Viewport installs a device viewport rectangle and a perspective
// projection for its subtree and restores the previous ones afterward.
type Viewport struct {
	*Entity
	BaseHooks

	state   ViewState
	frustum Frustum
	layout  Layout
}

// NewViewport creates a viewport covering the given rectangle.
func NewViewport(x, y, width, height int32) *Viewport {
	v := &Viewport{
		state: ViewState{
			RenderState: NewRenderState(),
			ClearColor:  DefaultClearColor,
		},
		frustum: NewFrustum(),
	}
	v.Entity = NewEntity(v, &v.state.RenderState)
	v.Set(x, y, width, height)
	return v
}

// Set moves and resizes the rectangle and recomputes the projection.
func (v *Viewport) Set(x, y, width, height int32) {
	v.state.Rect = device.Rect{X: x, Y: y, Width: width, Height: height}
	v.frustum.Resize(width, height)
}

// SetSize resizes the rectangle and recomputes the projection.
func (v *Viewport) SetSize(width, height int32) {
	v.Set(v.state.Rect.X, v.state.Rect.Y, width, height)
}

// Reset changes the field of view and clip planes.
func (v *Viewport) Reset(fov, near, far float32) {
	v.frustum.Set(fov, near, far)
}

func (v *Viewport) SetClearColor(c mgl32.Vec4)       { v.state.ClearColor = c }
func (v *Viewport) SetClearFlags(m device.ClearMask) { v.state.ClearFlags = m }
func (v *Viewport) SetLayout(l Layout)               { v.layout = l }
func (v *Viewport) Rect() device.Rect                { return v.state.Rect }
func (v *Viewport) Frustum() Frustum                 { return v.frustum }
func (v *Viewport) Projection() mgl32.Mat4           { return v.frustum.Matrix }
func (v *Viewport) ViewState() *ViewState            { return &v.state }

func (v *Viewport) SetupRender(rc *Context, e *Entity, pass Pass) {
	beginView(rc, &v.state, v.frustum.Matrix, pass)
	rc.Acquire(e.State())
}

func (v *Viewport) CleanupRender(rc *Context, _ *Entity, _ Pass) {
	rc.Release()
	rc.RestoreView()
}

// DoHandleEvent applies the layout on resize. The event is never consumed so
// every view sees it.
func (v *Viewport) DoHandleEvent(ev input.Event) bool {
	if ev.Kind == input.Resize && v.layout != nil {
		r := v.layout(ev.Width, ev.Height)
		v.Set(r.X, r.Y, r.Width, r.Height)
	}
	return false
}

// Ortho installs a device viewport and a screen-space projection with the
// origin at the top-left corner and one unit per pixel. Lighting and depth
// testing are off inside it.
type Ortho struct {
	*Entity
	BaseHooks

	state      ViewState
	projection mgl32.Mat4
	layout     Layout
}

// NewOrtho creates an orthographic view covering the given rectangle.
func NewOrtho(x, y, width, height int32) *Ortho {
	o := &Ortho{
		state: ViewState{
			RenderState: NewRenderState(),
			ClearColor:  DefaultClearColor,
		},
	}
	o.Entity = NewEntity(o, &o.state.RenderState)
	o.Set(x, y, width, height)
	return o
}

// Set moves and resizes the rectangle and recomputes the projection.
func (o *Ortho) Set(x, y, width, height int32) {
	o.state.Rect = device.Rect{X: x, Y: y, Width: width, Height: height}
	o.projection = mgl32.Ortho(0, float32(width), float32(height), 0, -100, 100)
}

// SetSize resizes the rectangle and recomputes the projection.
func (o *Ortho) SetSize(width, height int32) {
	o.Set(o.state.Rect.X, o.state.Rect.Y, width, height)
}

func (o *Ortho) SetClearColor(c mgl32.Vec4)       { o.state.ClearColor = c }
func (o *Ortho) SetClearFlags(m device.ClearMask) { o.state.ClearFlags = m }
func (o *Ortho) SetLayout(l Layout)               { o.layout = l }
func (o *Ortho) Rect() device.Rect                { return o.state.Rect }
func (o *Ortho) Projection() mgl32.Mat4           { return o.projection }
func (o *Ortho) ViewState() *ViewState            { return &o.state }

func (o *Ortho) SetupRender(rc *Context, e *Entity, pass Pass) {
	beginView(rc, &o.state, o.projection, pass)
	rc.PushFlags(device.Lighting, device.DepthTest)
	rc.Device.Disable(device.Lighting)
	rc.Device.Disable(device.DepthTest)
	rc.Acquire(e.State())
}

func (o *Ortho) CleanupRender(rc *Context, _ *Entity, _ Pass) {
	rc.Release()
	rc.PopFlags()
	rc.RestoreView()
}

// DoHandleEvent applies the layout on resize and never consumes the event.
func (o *Ortho) DoHandleEvent(ev input.Event) bool {
	if ev.Kind == input.Resize && o.layout != nil {
		r := o.layout(ev.Width, ev.Height)
		o.Set(r.X, r.Y, r.Width, r.Height)
	}
	return false
}

// beginView saves the view state and installs the node's. The composite
// pass draws over the finished lighting pass, so nothing is cleared in it.
func beginView(rc *Context, st *ViewState, projection mgl32.Mat4, pass Pass) {
	rc.SaveView()
	d := rc.Device
	d.SetViewport(rc.SurfaceRect(st.Rect))
	d.LoadMatrix(device.Projection, projection)
	d.LoadMatrix(device.Modelview, mgl32.Ident4())
	if st.ClearFlags != 0 && pass != PassShadowTest {
		if st.ClearFlags&device.ColorBuffer != 0 {
			d.SetClearColor(st.ClearColor)
		}
		d.Clear(st.ClearFlags)
	}
}
