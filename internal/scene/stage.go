package scene

import (
	"fmt"
	"slices"

	"shadowstage/internal/graphics"
	"shadowstage/internal/graphics/device"
	"shadowstage/internal/input"
	"shadowstage/internal/profiling"

	"github.com/go-gl/mathgl/mgl32"
)

// StageOptions configure the shadow passes of a Stage.
type StageOptions struct {
	// Passes is the ordered pass table. Empty selects all three passes.
	Passes []Pass
	// ShadowSize is the edge length of the square depth target.
	ShadowSize int32
	// ShadowBPP selects the depth format, 8 or 16.
	ShadowBPP int
	// Darkness is the opacity of the shadow layer in the composite pass.
	// Zero selects the default; leave PassShadowTest out to disable shadows.
	Darkness float32
	// Filter is the depth-compare filter.
	Filter device.Filter
	// LightingOffset is how far the lighting preview sits from the world.
	LightingOffset float32
}

// DefaultStageOptions returns the options used when none are given.
func DefaultStageOptions() StageOptions {
	return StageOptions{
		Passes:         []Pass{PassShadowMap, PassLighting, PassShadowTest},
		ShadowSize:     512,
		ShadowBPP:      16,
		Darkness:       0.5,
		Filter:         device.Linear,
		LightingOffset: 10,
	}
}

// mainWidthFraction is the share of the surface width given to the main view.
const mainWidthFraction = 0.8

var shadowBias = mgl32.Translate3D(0.5, 0.5, 0.5).Mul4(mgl32.Scale3D(0.5, 0.5, 0.5))

// Stage composes the camera and world into three views and runs the shadow
// algorithm over them every frame:
//
//   - main view: Camera -> World, 80% of the width
//   - shadow preview: the depth target drawn as a texture, top right
//   - lighting preview: the World seen from a fixed offset, bottom right
//   - overlay: screen-space HUD over the whole surface
type Stage struct {
	*Entity
	BaseHooks

	opts StageOptions

	main          *Viewport
	camera        *Camera
	world         *World
	lighting      *Viewport
	shadowPreview *Ortho
	shadowQuad    *TextureQuad
	overlay       *Ortho

	target *graphics.FrameBuffer
	shadow ShadowState
}

// NewStage wires camera and world into the stage views. overlay may be nil.
func NewStage(camera *Camera, world *World, overlay *Ortho, opts StageOptions) *Stage {
	def := DefaultStageOptions()
	if len(opts.Passes) == 0 {
		opts.Passes = def.Passes
	}
	if opts.ShadowSize <= 0 {
		opts.ShadowSize = def.ShadowSize
	}
	if opts.ShadowBPP == 0 {
		opts.ShadowBPP = def.ShadowBPP
	}
	if opts.Darkness <= 0 {
		opts.Darkness = def.Darkness
	}
	if opts.LightingOffset == 0 {
		opts.LightingOffset = def.LightingOffset
	}
	if overlay == nil {
		overlay = NewOrtho(0, 0, 1, 1)
	}

	s := &Stage{
		opts:          opts,
		camera:        camera,
		world:         world,
		main:          NewViewport(0, 0, 1, 1),
		lighting:      NewViewport(0, 0, 1, 1),
		shadowPreview: NewOrtho(0, 0, 1, 1),
		shadowQuad:    NewTextureQuad(nil, 0, 0, 1, 1),
		overlay:       overlay,
	}
	s.Entity = NewEntity(s, nil)
	s.SetName("stage")

	s.main.SetName("main")
	s.main.SetClearFlags(device.ColorBuffer | device.DepthBuffer)
	s.main.AddEntity(camera.Entity, 10)
	camera.AddEntity(world.Entity, 20)

	s.lighting.SetName("lighting")
	s.lighting.SetClearFlags(device.ColorBuffer | device.DepthBuffer)
	offset := NewEntity(nil, nil)
	offset.SetName("lighting.offset")
	offset.State().Transform.Position = mgl32.Vec3{0, 0, -opts.LightingOffset}
	offset.AddEntity(world.Entity, 20)
	s.lighting.AddEntity(offset, 10)

	s.shadowPreview.SetName("shadow.preview")
	s.shadowPreview.SetClearFlags(device.ColorBuffer)
	s.shadowPreview.AddEntity(s.shadowQuad.Entity, 10)

	s.overlay.SetName("overlay")

	s.AddEntity(s.main.Entity, 10)
	s.AddEntity(s.lighting.Entity, 20)
	s.AddEntity(s.shadowPreview.Entity, 30)
	s.AddEntity(s.overlay.Entity, 40)
	return s
}

func (s *Stage) Main() *Viewport               { return s.main }
func (s *Stage) Lighting() *Viewport           { return s.lighting }
func (s *Stage) ShadowPreview() *Ortho         { return s.shadowPreview }
func (s *Stage) Overlay() *Ortho               { return s.overlay }
func (s *Stage) Camera() *Camera               { return s.camera }
func (s *Stage) World() *World                 { return s.world }
func (s *Stage) Target() *graphics.FrameBuffer { return s.target }
func (s *Stage) Passes() []Pass                { return slices.Clone(s.opts.Passes) }

// SetPasses replaces the pass table.
func (s *Stage) SetPasses(passes ...Pass) { s.opts.Passes = slices.Clone(passes) }

func (s *Stage) DoInitialize(rc *Context, _ *Entity) error {
	if !slices.Contains(s.opts.Passes, PassShadowMap) {
		return nil
	}
	s.target = graphics.NewFrameBuffer(rc.Device, graphics.WithDepthTexture)
	s.target.Texture().SetWrapMode(device.ClampToEdge)
	s.target.Texture().SetFilter(s.opts.Filter)
	if err := s.target.Allocate(s.opts.ShadowSize, s.opts.ShadowSize, s.opts.ShadowBPP); err != nil {
		return fmt.Errorf("stage shadow target: %w", err)
	}
	s.shadowQuad.SetTexture(s.target.Texture())
	return nil
}

// RenderContent runs the pass table, then draws the overlay.
func (s *Stage) RenderContent(rc *Context, e *Entity, _ Pass) {
	rc.PushFlags(device.Lighting)
	rc.Shadow = nil
	for _, p := range s.opts.Passes {
		switch p {
		case PassShadowMap:
			stop := profiling.Track("stage.shadowmap")
			s.renderShadowMap(rc)
			stop()
		case PassLighting:
			stop := profiling.Track("stage.lighting")
			e.RenderChild(rc, s.main.Entity, PassLighting)
			e.RenderChild(rc, s.lighting.Entity, PassLighting)
			e.RenderChild(rc, s.shadowPreview.Entity, PassLighting)
			stop()
		case PassShadowTest:
			if rc.Shadow == nil {
				continue
			}
			stop := profiling.Track("stage.composite")
			e.RenderChild(rc, s.main.Entity, PassShadowTest)
			stop()
		}
	}
	e.RenderChild(rc, s.overlay.Entity, PassLighting)
	rc.PopFlags()
}

// renderShadowMap renders the world depth-only from every light into the
// target and records the shadow state for the first light.
func (s *Stage) renderShadowMap(rc *Context) {
	lights := s.world.Lights()
	if len(lights) == 0 || s.target == nil || s.target.ID() == 0 || !s.world.Renderable() {
		return
	}
	d := rc.Device

	rc.PushFlags(device.Lighting)
	d.Disable(device.Lighting)
	rc.SaveView()
	s.target.Enable()
	d.SetViewport(s.target.Resolution())
	d.LoadMatrix(device.Projection, s.main.Projection())
	d.Clear(device.DepthBuffer)
	r, g, b, a := d.ColorMask()
	d.SetColorMask(false, false, false, false)

	worldM := s.world.State().Transform.Matrix()
	for _, l := range lights {
		l.Suspend(rc)
		d.PushMatrix()
		d.LoadMatrix(device.Modelview, worldM.Mul4(l.Matrix()).Inv())
		s.world.Render(rc, PassShadowMap)
		d.PopMatrix()
		l.Resume(rc)
	}

	d.SetColorMask(r, g, b, a)
	s.target.Disable()
	rc.RestoreView()
	rc.PopFlags()

	s.shadow = ShadowState{
		Texture:  s.target.Texture().ID(),
		Matrix:   shadowBias.Mul4(s.main.Projection()).Mul4(lights[0].Matrix().Inv()),
		Darkness: s.opts.Darkness,
		Filter:   s.opts.Filter,
	}
	rc.Shadow = &s.shadow
}

// Resize splits the surface: the main view takes 80% of the width and the
// full height, the remaining column is shared by the shadow preview (top)
// and the lighting preview (bottom). The overlay covers everything.
func (s *Stage) Resize(width, height int32) {
	mainW := int32(float32(width) * mainWidthFraction)
	sideW := width - mainW
	topH := height / 2

	s.main.Set(0, 0, mainW, height)
	s.shadowPreview.Set(mainW, 0, sideW, topH)
	s.shadowQuad.SetRect(0, 0, float32(sideW), float32(topH))
	s.lighting.Set(mainW, topH, sideW, height-topH)
	s.overlay.Set(0, 0, width, height)
}

// DoHandleEvent re-lays out the views on resize and never consumes events.
func (s *Stage) DoHandleEvent(ev input.Event) bool {
	if ev.Kind == input.Resize {
		s.Resize(ev.Width, ev.Height)
	}
	return false
}

func (s *Stage) DoDispose(*Context) {
	if s.target != nil {
		s.target.Dispose()
	}
}
