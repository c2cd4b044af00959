// Package soft implements device.Device entirely in memory.
//
// It tracks the full fixed-function state and records every draw and clear
// together with the state that was current when it was issued. The renderer
// uses it for headless runs; the tests use it to observe what a render pass
// did to the context.
package soft

import (
	"fmt"

	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
)

// DrawKind distinguishes recorded draw calls.
type DrawKind int

const (
	DrawVertices DrawKind = iota
	DrawQuads
)

// DrawCall is one recorded draw with the state it was issued under.
type DrawCall struct {
	Kind        DrawKind
	Buffer      uint32
	Count       int32
	Viewport    device.Rect
	Modelview   mgl32.Mat4
	Projection  mgl32.Mat4
	Framebuffer uint32
	Texture     uint32
	ColorWrite  bool
	Lighting    bool
	DepthTest   bool
	Composite   bool
	Color       mgl32.Vec4
}

// ClearCall is one recorded clear.
type ClearCall struct {
	Mask        device.ClearMask
	Color       mgl32.Vec4
	Viewport    device.Rect
	Framebuffer uint32
}

// Texture is the tracked state of a texture object.
type Texture struct {
	Width, Height int32
	Format        device.PixelFormat
	Pixels        []byte
	Filter        device.Filter
	Wrap          device.WrapMode
	Allocations   int
	SubUploads    int
}

// Framebuffer is the tracked state of a framebuffer object.
type Framebuffer struct {
	ColorTexture      uint32
	DepthTexture      uint32
	DepthRenderbuffer uint32
	DrawColor         bool
}

// Renderbuffer is the tracked state of a renderbuffer object.
type Renderbuffer struct {
	Width, Height int32
}

// Light is the tracked state of a light unit.
type Light struct {
	Params   device.LightParams
	Position mgl32.Vec4
	Uploads  int
}

// Option configures a Device.
type Option func(*Device)

// WithoutFeature makes Supports report f as unavailable.
func WithoutFeature(f device.Feature) Option {
	return func(d *Device) { d.features[f] = false }
}

// WithMaxLights sets the number of light units.
func WithMaxLights(n int) Option {
	return func(d *Device) { d.maxLights = n }
}

// WithViewport sets the initial viewport.
func WithViewport(r device.Rect) Option {
	return func(d *Device) { d.viewport = r }
}

// WithIncompleteFramebuffers makes every completeness check fail.
func WithIncompleteFramebuffers() Option {
	return func(d *Device) { d.incomplete = true }
}

// WithFailingAllocations makes every Gen*/Create* call return 0.
func WithFailingAllocations() Option {
	return func(d *Device) { d.failAlloc = true }
}

// Device is an in-memory device.Device.
type Device struct {
	features  map[device.Feature]bool
	maxLights int

	caps       map[device.Capability]bool
	blendSrc   device.BlendFactor
	blendDst   device.BlendFactor
	viewport   device.Rect
	projection mgl32.Mat4
	modelview  []mgl32.Mat4
	clearColor mgl32.Vec4
	colorMask  [4]bool
	depthWrite bool
	color      mgl32.Vec4
	savedColor mgl32.Vec4

	lights        map[int]*Light
	nextID        uint32
	textures      map[uint32]*Texture
	boundTexture  uint32
	framebuffers  map[uint32]*Framebuffer
	boundFB       uint32
	renderbuffers map[uint32]*Renderbuffer
	buffers       map[uint32][]float32
	composite     *device.ShadowComposite

	incomplete bool
	failAlloc  bool

	// Draws and Clears record every draw and clear in issue order.
	Draws  []DrawCall
	Clears []ClearCall
}

var _ device.Device = (*Device)(nil)

// New creates a device with every feature available, eight light units and
// the GL initial state.
func New(opts ...Option) *Device {
	d := &Device{
		features: map[device.Feature]bool{
			device.FeatureFramebufferObject:  true,
			device.FeatureVertexBufferObject: true,
			device.FeatureDepthTexture:       true,
		},
		maxLights:     8,
		caps:          make(map[device.Capability]bool),
		blendSrc:      device.One,
		blendDst:      device.Zero,
		projection:    mgl32.Ident4(),
		modelview:     []mgl32.Mat4{mgl32.Ident4()},
		colorMask:     [4]bool{true, true, true, true},
		depthWrite:    true,
		color:         mgl32.Vec4{1, 1, 1, 1},
		lights:        make(map[int]*Light),
		textures:      make(map[uint32]*Texture),
		framebuffers:  make(map[uint32]*Framebuffer),
		renderbuffers: make(map[uint32]*Renderbuffer),
		buffers:       make(map[uint32][]float32),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Supports(f device.Feature) bool { return d.features[f] }

func (d *Device) MaxLights() int { return d.maxLights }

func (d *Device) IsEnabled(c device.Capability) bool { return d.caps[c] }

func (d *Device) Enable(c device.Capability) { d.caps[c] = true }

func (d *Device) Disable(c device.Capability) { d.caps[c] = false }

func (d *Device) BlendFunc() (device.BlendFactor, device.BlendFactor) {
	return d.blendSrc, d.blendDst
}

func (d *Device) SetBlendFunc(src, dst device.BlendFactor) {
	d.blendSrc, d.blendDst = src, dst
}

func (d *Device) Viewport() device.Rect { return d.viewport }

func (d *Device) SetViewport(r device.Rect) { d.viewport = r }

func (d *Device) Matrix(mode device.MatrixMode) mgl32.Mat4 {
	if mode == device.Projection {
		return d.projection
	}
	return d.modelview[len(d.modelview)-1]
}

func (d *Device) LoadMatrix(mode device.MatrixMode, m mgl32.Mat4) {
	if mode == device.Projection {
		d.projection = m
		return
	}
	d.modelview[len(d.modelview)-1] = m
}

func (d *Device) PushMatrix() {
	d.modelview = append(d.modelview, d.modelview[len(d.modelview)-1])
}

func (d *Device) PopMatrix() {
	if len(d.modelview) == 1 {
		panic("soft: modelview stack underflow")
	}
	d.modelview = d.modelview[:len(d.modelview)-1]
}

func (d *Device) MultMatrix(m mgl32.Mat4) {
	top := len(d.modelview) - 1
	d.modelview[top] = d.modelview[top].Mul4(m)
}

// StackDepth returns the modelview stack depth, 1 when balanced.
func (d *Device) StackDepth() int { return len(d.modelview) }

func (d *Device) SetClearColor(c mgl32.Vec4) { d.clearColor = c }

// ClearColor returns the current clear color.
func (d *Device) ClearColor() mgl32.Vec4 { return d.clearColor }

func (d *Device) Clear(mask device.ClearMask) {
	d.Clears = append(d.Clears, ClearCall{
		Mask:        mask,
		Color:       d.clearColor,
		Viewport:    d.viewport,
		Framebuffer: d.boundFB,
	})
}

func (d *Device) SetColorMask(r, g, b, a bool) { d.colorMask = [4]bool{r, g, b, a} }

func (d *Device) ColorMask() (bool, bool, bool, bool) {
	return d.colorMask[0], d.colorMask[1], d.colorMask[2], d.colorMask[3]
}

func (d *Device) SetDepthMask(write bool) { d.depthWrite = write }

// DepthMask returns whether depth writes are enabled.
func (d *Device) DepthMask() bool { return d.depthWrite }

// SetColor sets the primary color. It is pinned while a shadow composite is
// active.
func (d *Device) SetColor(c mgl32.Vec4) {
	if d.composite == nil {
		d.color = c
	} else {
		d.savedColor = c
	}
}

func (d *Device) SetLight(unit int, p device.LightParams) {
	l := d.light(unit)
	l.Params = p
	l.Uploads++
}

func (d *Device) SetLightPosition(unit int, pos mgl32.Vec4) {
	d.light(unit).Position = d.Matrix(device.Modelview).Mul4x1(pos)
}

func (d *Device) light(unit int) *Light {
	if unit < 0 || unit >= d.maxLights {
		panic(fmt.Sprintf("soft: light unit %d out of range [0,%d)", unit, d.maxLights))
	}
	l, ok := d.lights[unit]
	if !ok {
		l = &Light{}
		d.lights[unit] = l
	}
	return l
}

// LightState returns the tracked state of a light unit.
func (d *Device) LightState(unit int) (Light, bool) {
	l, ok := d.lights[unit]
	if !ok {
		return Light{}, false
	}
	return *l, true
}

func (d *Device) gen() uint32 {
	if d.failAlloc {
		return 0
	}
	d.nextID++
	return d.nextID
}

func (d *Device) GenTexture() uint32 {
	id := d.gen()
	if id != 0 {
		d.textures[id] = &Texture{}
	}
	return id
}

func (d *Device) DeleteTexture(id uint32) {
	delete(d.textures, id)
	if d.boundTexture == id {
		d.boundTexture = 0
	}
}

func (d *Device) BindTexture(id uint32) { d.boundTexture = id }

// BoundTexture returns the bound texture.
func (d *Device) BoundTexture() uint32 { return d.boundTexture }

func (d *Device) TexImage2D(width, height int32, format device.PixelFormat, pixels []byte) {
	t := d.mustTexture("TexImage2D")
	t.Width, t.Height, t.Format = width, height, format
	switch {
	case pixels != nil:
		t.Pixels = append([]byte(nil), pixels...)
	case !format.IsDepth():
		t.Pixels = make([]byte, int(width*height)*format.BytesPerPixel())
	default:
		t.Pixels = nil
	}
	t.Allocations++
}

func (d *Device) TexSubImage2D(x, y, width, height int32, format device.PixelFormat, pixels []byte) {
	t := d.mustTexture("TexSubImage2D")
	if x < 0 || y < 0 || x+width > t.Width || y+height > t.Height {
		panic(fmt.Sprintf("soft: sub-image %dx%d+%d+%d exceeds texture %dx%d", width, height, x, y, t.Width, t.Height))
	}
	t.SubUploads++
	bpp := int32(format.BytesPerPixel())
	if len(t.Pixels) == 0 || format != t.Format || bpp > 4 {
		return
	}
	for row := int32(0); row < height; row++ {
		dst := ((y+row)*t.Width + x) * bpp
		src := row * width * bpp
		if int(src+width*bpp) > len(pixels) {
			return
		}
		copy(t.Pixels[dst:dst+width*bpp], pixels[src:src+width*bpp])
	}
}

func (d *Device) TexParameters(filter device.Filter, wrap device.WrapMode) {
	t := d.mustTexture("TexParameters")
	t.Filter, t.Wrap = filter, wrap
}

func (d *Device) mustTexture(op string) *Texture {
	t, ok := d.textures[d.boundTexture]
	if !ok {
		panic("soft: " + op + " without a bound texture")
	}
	return t
}

// Texture returns the tracked state of a texture.
func (d *Device) Texture(id uint32) (*Texture, bool) {
	t, ok := d.textures[id]
	return t, ok
}

func (d *Device) GenFramebuffer() uint32 {
	id := d.gen()
	if id != 0 {
		d.framebuffers[id] = &Framebuffer{DrawColor: true}
	}
	return id
}

func (d *Device) DeleteFramebuffer(id uint32) {
	delete(d.framebuffers, id)
	if d.boundFB == id {
		d.boundFB = 0
	}
}

func (d *Device) BindFramebuffer(id uint32) {
	if id != 0 {
		if _, ok := d.framebuffers[id]; !ok {
			panic(fmt.Sprintf("soft: bind of unknown framebuffer %d", id))
		}
	}
	d.boundFB = id
}

func (d *Device) Framebuffer() uint32 { return d.boundFB }

// FramebufferState returns the tracked state of a framebuffer.
func (d *Device) FramebufferState(id uint32) (*Framebuffer, bool) {
	fb, ok := d.framebuffers[id]
	return fb, ok
}

func (d *Device) GenRenderbuffer() uint32 {
	id := d.gen()
	if id != 0 {
		d.renderbuffers[id] = &Renderbuffer{}
	}
	return id
}

func (d *Device) DeleteRenderbuffer(id uint32) { delete(d.renderbuffers, id) }

func (d *Device) DepthRenderbufferStorage(id uint32, width, height int32) {
	rb, ok := d.renderbuffers[id]
	if !ok {
		panic(fmt.Sprintf("soft: storage for unknown renderbuffer %d", id))
	}
	rb.Width, rb.Height = width, height
}

func (d *Device) FramebufferRenderbuffer(att device.Attachment, rb uint32) {
	fb := d.mustFramebuffer("FramebufferRenderbuffer")
	if att == device.DepthAttachment {
		fb.DepthRenderbuffer = rb
	}
}

func (d *Device) FramebufferTexture(att device.Attachment, tex uint32) {
	fb := d.mustFramebuffer("FramebufferTexture")
	switch att {
	case device.ColorAttachment:
		fb.ColorTexture = tex
	case device.DepthAttachment:
		fb.DepthTexture = tex
	}
}

func (d *Device) SetDrawColorBuffer(enabled bool) {
	d.mustFramebuffer("SetDrawColorBuffer").DrawColor = enabled
}

func (d *Device) FramebufferComplete() bool {
	fb, ok := d.framebuffers[d.boundFB]
	if !ok || d.incomplete {
		return false
	}
	if fb.DrawColor && fb.ColorTexture == 0 {
		return false
	}
	return fb.ColorTexture != 0 || fb.DepthTexture != 0 || fb.DepthRenderbuffer != 0
}

func (d *Device) mustFramebuffer(op string) *Framebuffer {
	fb, ok := d.framebuffers[d.boundFB]
	if !ok {
		panic("soft: " + op + " without a bound framebuffer")
	}
	return fb
}

func (d *Device) CreateVertexBuffer(data []float32) uint32 {
	id := d.gen()
	if id != 0 {
		d.buffers[id] = append([]float32(nil), data...)
	}
	return id
}

func (d *Device) DeleteVertexBuffer(id uint32) { delete(d.buffers, id) }

func (d *Device) DrawVertexBuffer(id uint32, format device.VertexFormat, prim device.Primitive, count int32) {
	data, ok := d.buffers[id]
	if !ok {
		panic(fmt.Sprintf("soft: draw from unknown vertex buffer %d", id))
	}
	if int(count*format.Stride()) > len(data) {
		panic(fmt.Sprintf("soft: draw of %d vertices overruns buffer %d", count, id))
	}
	d.record(DrawVertices, id, count)
}

func (d *Device) DrawQuads(vertices []float32) {
	d.record(DrawQuads, 0, int32(len(vertices)/4))
}

func (d *Device) record(kind DrawKind, buf uint32, count int32) {
	tex := uint32(0)
	if d.caps[device.Texture2D] {
		tex = d.boundTexture
	}
	d.Draws = append(d.Draws, DrawCall{
		Kind:        kind,
		Buffer:      buf,
		Count:       count,
		Viewport:    d.viewport,
		Modelview:   d.Matrix(device.Modelview),
		Projection:  d.projection,
		Framebuffer: d.boundFB,
		Texture:     tex,
		ColorWrite:  d.colorMask[0] || d.colorMask[1] || d.colorMask[2] || d.colorMask[3],
		Lighting:    d.caps[device.Lighting],
		DepthTest:   d.caps[device.DepthTest],
		Composite:   d.composite != nil,
		Color:       d.color,
	})
}

func (d *Device) BeginShadowComposite(sc device.ShadowComposite) {
	if d.composite != nil {
		panic("soft: nested shadow composite")
	}
	d.composite = &sc
	d.savedColor = d.color
	d.color = mgl32.Vec4{0, 0, 0, sc.Darkness}
}

func (d *Device) EndShadowComposite() {
	if d.composite == nil {
		return
	}
	d.composite = nil
	d.color = d.savedColor
}

// Composite returns the active shadow-composite state, if any.
func (d *Device) Composite() (device.ShadowComposite, bool) {
	if d.composite == nil {
		return device.ShadowComposite{}, false
	}
	return *d.composite, true
}

// Live returns the number of live textures, framebuffers, renderbuffers and
// vertex buffers.
func (d *Device) Live() (textures, framebuffers, renderbuffers, buffers int) {
	return len(d.textures), len(d.framebuffers), len(d.renderbuffers), len(d.buffers)
}

// ResetLog drops the recorded draws and clears.
func (d *Device) ResetLog() {
	d.Draws = d.Draws[:0]
	d.Clears = d.Clears[:0]
}
