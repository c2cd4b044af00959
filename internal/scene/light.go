package scene

import (
	"errors"
	"fmt"
	"sync"

	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrLightUnitsExhausted reports a light whose unit exceeds the device's
// light-unit count.
var ErrLightUnitsExhausted = errors.New("scene: light units exhausted")

// LightUnits is the process-wide allocator of fixed-function light units.
// Allocation returns the lowest free unit; without releases the units handed
// out are strictly increasing.
var LightUnits = &UnitPool{}

// UnitPool hands out small non-negative integers.
type UnitPool struct {
	mu   sync.Mutex
	used []bool
}

// Acquire returns the lowest free unit.
func (p *UnitPool) Acquire() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, u := range p.used {
		if !u {
			p.used[i] = true
			return i
		}
	}
	p.used = append(p.used, true)
	return len(p.used) - 1
}

// Release frees a unit. Releasing a free unit is a no-op.
func (p *UnitPool) Release(unit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if unit >= 0 && unit < len(p.used) {
		p.used[unit] = false
	}
}

// InUse returns the number of allocated units.
func (p *UnitPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, u := range p.used {
		if u {
			n++
		}
	}
	return n
}

// LightState is the render state of a Light.
type LightState struct {
	RenderState
	Ambient  mgl32.Vec4
	Diffuse  mgl32.Vec4
	Specular mgl32.Vec4
}

// Light is a positional fixed-function light. The light sits at the origin
// of its own transform; its position is uploaded every render under the
// accumulated modelview.
type Light struct {
	*Entity
	BaseHooks

	state    LightState
	unit     int
	released bool
	uploaded bool

	suspended bool
	saved     Flags
}

// NewLight creates a light and assigns it the next free unit.
func NewLight() *Light {
	l := &Light{
		state: LightState{
			RenderState: NewRenderState(),
			Ambient:     mgl32.Vec4{0.2, 0.2, 0.2, 1},
			Diffuse:     mgl32.Vec4{0.7, 0.7, 0.7, 1},
			Specular:    mgl32.Vec4{1, 1, 1, 1},
		},
		unit: LightUnits.Acquire(),
	}
	l.Entity = NewEntity(l, &l.state.RenderState)
	return l
}

// Unit returns the light's unit index.
func (l *Light) Unit() int { return l.unit }

// LightState returns the light's state for modification before the first
// render; color changes after that require Invalidate.
func (l *Light) LightState() *LightState { return &l.state }

// Invalidate makes the next render upload the colors again.
func (l *Light) Invalidate() { l.uploaded = false }

// Matrix returns the light's local transform.
func (l *Light) Matrix() mgl32.Mat4 { return l.state.Transform.Matrix() }

// Release returns the unit to LightUnits. The light must not be rendered
// afterward.
func (l *Light) Release() {
	if !l.released {
		LightUnits.Release(l.unit)
		l.released = true
	}
}

func (l *Light) DoInitialize(rc *Context, e *Entity) error {
	if n := rc.Device.MaxLights(); l.unit >= n {
		return fmt.Errorf("light unit %d of %d: %w", l.unit, n, ErrLightUnitsExhausted)
	}
	e.RegisterUpdate(rc)
	rc.Device.Enable(device.Light(l.unit))
	return nil
}

func (l *Light) DoRender(rc *Context, _ *Entity, _ Pass) {
	d := rc.Device
	if !l.uploaded {
		d.SetLight(l.unit, device.LightParams{
			Ambient:  l.state.Ambient,
			Diffuse:  l.state.Diffuse,
			Specular: l.state.Specular,
		})
		l.uploaded = true
	}
	d.SetLightPosition(l.unit, mgl32.Vec4{0, 0, 0, 1})
}

// Suspend clears the light's flags and switches its unit off so the scene
// can be rendered from the light's point of view. Resume undoes it.
func (l *Light) Suspend(rc *Context) {
	if l.suspended {
		return
	}
	l.saved = l.Flags() & (Enabled | Visible)
	l.SetEnabled(false)
	l.SetVisible(false)
	rc.Device.Disable(device.Light(l.unit))
	l.suspended = true
}

// Resume restores the flags saved by Suspend and switches the unit on.
func (l *Light) Resume(rc *Context) {
	if !l.suspended {
		return
	}
	l.SetEnabled(l.saved&Enabled != 0)
	l.SetVisible(l.saved&Visible != 0)
	rc.Device.Enable(device.Light(l.unit))
	l.suspended = false
}

func (l *Light) DoDispose(rc *Context) {
	rc.Device.Disable(device.Light(l.unit))
	l.Release()
}
