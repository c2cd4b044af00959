package scene

import (
	"slices"

	"shadowstage/internal/graphics/device"
)

// World is the shared scene content. It may be attached under several
// views; its DoInitialize still runs once. Lights are rendered before the
// rest of the content in every pass.
type World struct {
	*Entity
	BaseHooks

	lights      []*Light
	lightIDs    map[EntityID]bool
	inits       int
	compositing []bool
}

// NewWorld creates an empty world.
func NewWorld() *World {
	w := &World{lightIDs: make(map[EntityID]bool)}
	w.Entity = NewEntity(w, nil)
	return w
}

// AddLight records the light and attaches it as a child.
func (w *World) AddLight(l *Light, priority int) {
	w.lights = append(w.lights, l)
	w.lightIDs[l.ID()] = true
	w.AddEntity(l.Entity, priority)
}

// Lights returns the lights in insertion order, without the ones that were
// destroyed.
func (w *World) Lights() []*Light {
	w.pruneLights()
	return slices.Clone(w.lights)
}

// InitCount returns how many times DoInitialize ran.
func (w *World) InitCount() int { return w.inits }

func (w *World) pruneLights() {
	w.lights = slices.DeleteFunc(w.lights, func(l *Light) bool {
		gone := l.PendingDelete() || l.owners == 0
		if gone {
			delete(w.lightIDs, l.ID())
		}
		return gone
	})
}

func (w *World) DoInitialize(*Context, *Entity) error {
	w.inits++
	return nil
}

// SetupRender switches the device into shadow-composite mode for the
// composite pass. The modelview then maps world coordinates to eye space,
// which is where the shadow matrix is anchored.
func (w *World) SetupRender(rc *Context, e *Entity, pass Pass) {
	rc.Acquire(e.State())
	composite := pass == PassShadowTest && rc.Shadow != nil
	w.compositing = append(w.compositing, composite)
	if !composite {
		return
	}
	rc.PushFlags(device.Lighting)
	rc.Device.Disable(device.Lighting)
	rc.Device.BeginShadowComposite(device.ShadowComposite{
		Texture:  rc.Shadow.Texture,
		Matrix:   rc.Shadow.Matrix,
		Darkness: rc.Shadow.Darkness,
		Filter:   rc.Shadow.Filter,
	})
}

func (w *World) RenderContent(rc *Context, e *Entity, pass Pass) {
	for _, l := range w.lights {
		e.RenderChild(rc, l.Entity, pass)
	}
	for _, c := range e.active {
		if !w.lightIDs[c.ID()] {
			e.RenderChild(rc, c, pass)
		}
	}
	e.DrawSelf(rc, pass)
}

func (w *World) CleanupRender(rc *Context, _ *Entity, _ Pass) {
	n := len(w.compositing) - 1
	if w.compositing[n] {
		rc.Device.EndShadowComposite()
		rc.PopFlags()
	}
	w.compositing = w.compositing[:n]
	rc.Release()
}
