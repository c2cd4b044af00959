package scene

import (
	"time"

	"shadowstage/internal/input"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

const (
	defaultRotateSpeed = 90 // degrees per second
	defaultZoomSpeed   = 20 // units per second
	axisDeadzone       = 0.15
	homeDuration       = 0.5 // seconds
)

// CameraState is the render state of a Camera: an orbit around the origin.
type CameraState struct {
	RenderState
	Distance float32
	Pitch    float32
	Yaw      float32
}

// Camera orbits its subtree. Its transform is a translation by -Distance
// along Z followed by the pitch and yaw rotations. Arrow keys, the joystick
// hat and the first two joystick axes rotate it, PageUp/PageDown zoom and
// Home animates back to the initial placement.
type Camera struct {
	*Entity
	BaseHooks

	state    CameraState
	home     [3]float32
	bindings *input.Bindings
	axes     [2]float32
	hat      input.Hat
	homing   []*gween.Tween

	RotateSpeed float32
	ZoomSpeed   float32
	MinDistance float32
	MaxDistance float32
}

// NewCamera creates a camera at the given orbit. A nil bindings uses the
// defaults.
func NewCamera(distance, pitch, yaw float32, bindings *input.Bindings) *Camera {
	if bindings == nil {
		bindings = input.NewBindings()
	}
	c := &Camera{
		state: CameraState{
			RenderState: NewRenderState(),
			Distance:    distance,
			Pitch:       pitch,
			Yaw:         yaw,
		},
		home:        [3]float32{distance, pitch, yaw},
		bindings:    bindings,
		RotateSpeed: defaultRotateSpeed,
		ZoomSpeed:   defaultZoomSpeed,
		MinDistance: 1,
		MaxDistance: 90,
	}
	c.Entity = NewEntity(c, &c.state.RenderState)
	c.apply()
	return c
}

func (c *Camera) Distance() float32 { return c.state.Distance }
func (c *Camera) Pitch() float32    { return c.state.Pitch }
func (c *Camera) Yaw() float32      { return c.state.Yaw }
func (c *Camera) Homing() bool      { return c.homing != nil }

// View returns the camera's view matrix.
func (c *Camera) View() mgl32.Mat4 { return c.state.Transform.Matrix() }

// SetOrbit moves the camera immediately, cancelling a running Home.
func (c *Camera) SetOrbit(distance, pitch, yaw float32) {
	c.homing = nil
	c.state.Distance, c.state.Pitch, c.state.Yaw = distance, pitch, yaw
	c.apply()
}

// Home starts the animation back to the initial orbit.
func (c *Camera) Home() {
	c.homing = []*gween.Tween{
		gween.New(c.state.Distance, c.home[0], homeDuration, ease.OutCubic),
		gween.New(c.state.Pitch, c.home[1], homeDuration, ease.OutCubic),
		gween.New(c.state.Yaw, c.home[2], homeDuration, ease.OutCubic),
	}
}

func (c *Camera) DoInitialize(rc *Context, e *Entity) error {
	e.Subscribe(rc)
	e.RegisterUpdate(rc)
	return nil
}

func (c *Camera) DoHandleEvent(ev input.Event) bool {
	switch ev.Kind {
	case input.KeyDown, input.KeyUp, input.ButtonDown, input.ButtonUp:
		handled := false
		for _, a := range c.bindings.Apply(ev) {
			switch a {
			case input.ActionRotateLeft, input.ActionRotateRight,
				input.ActionRotateUp, input.ActionRotateDown,
				input.ActionZoomIn, input.ActionZoomOut:
				handled = true
			case input.ActionHome:
				if ev.Kind == input.KeyDown || ev.Kind == input.ButtonDown {
					c.Home()
				}
				handled = true
			}
		}
		return handled
	case input.AxisMotion:
		if ev.Axis < 0 || ev.Axis >= len(c.axes) {
			return false
		}
		v := ev.Value
		if v > -axisDeadzone && v < axisDeadzone {
			v = 0
		}
		c.axes[ev.Axis] = v
		return true
	case input.HatMotion:
		c.hat = ev.Hat
		return true
	}
	return false
}

func (c *Camera) DoUpdate(_ *Entity, elapsed time.Duration) {
	dt := float32(elapsed.Seconds())

	if c.homing != nil {
		done := true
		vals := [3]*float32{&c.state.Distance, &c.state.Pitch, &c.state.Yaw}
		for i, tw := range c.homing {
			v, finished := tw.Update(dt)
			*vals[i] = v
			done = done && finished
		}
		if done {
			c.homing = nil
		}
		c.apply()
		return
	}

	yaw := c.axes[0]
	pitch := c.axes[1]
	zoom := float32(0)
	b := c.bindings
	if b.IsActive(input.ActionRotateLeft) || c.hat&input.HatLeft != 0 {
		yaw--
	}
	if b.IsActive(input.ActionRotateRight) || c.hat&input.HatRight != 0 {
		yaw++
	}
	if b.IsActive(input.ActionRotateUp) || c.hat&input.HatUp != 0 {
		pitch--
	}
	if b.IsActive(input.ActionRotateDown) || c.hat&input.HatDown != 0 {
		pitch++
	}
	if b.IsActive(input.ActionZoomIn) {
		zoom--
	}
	if b.IsActive(input.ActionZoomOut) {
		zoom++
	}
	if yaw == 0 && pitch == 0 && zoom == 0 {
		return
	}

	c.state.Yaw += yaw * c.RotateSpeed * dt
	c.state.Pitch = mgl32.Clamp(c.state.Pitch+pitch*c.RotateSpeed*dt, -89, 89)
	c.state.Distance = mgl32.Clamp(c.state.Distance+zoom*c.ZoomSpeed*dt, c.MinDistance, c.MaxDistance)
	c.apply()
}

func (c *Camera) apply() {
	c.state.Transform.Position = mgl32.Vec3{0, 0, -c.state.Distance}
	c.state.Transform.Rotation = mgl32.Vec3{c.state.Pitch, c.state.Yaw, 0}
}
