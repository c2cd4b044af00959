// Package gldevice implements device.Device on an OpenGL compatibility
// context. The context must be current on the calling thread for the whole
// life of the Device.
package gldevice

import (
	"fmt"
	"strings"
	"unsafe"

	"shadowstage/internal/graphics/device"
	"shadowstage/internal/logging"

	"github.com/go-gl/gl/v3.2-compatibility/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// Device drives the fixed-function pipeline. Cheap state that GL would make
// us query (blend function, viewport, color mask, bindings) is shadowed
// locally.
type Device struct {
	features  map[device.Feature]bool
	maxLights int

	blendSrc, blendDst device.BlendFactor
	viewport           device.Rect
	colorMask          [4]bool
	framebuffer        uint32
	color              mgl32.Vec4

	composite *compositeState
}

type compositeState struct {
	blend              bool
	depthTest          bool
	texture            bool
	blendSrc, blendDst device.BlendFactor
}

var _ device.Device = (*Device)(nil)

// New initializes the GL function pointers and queries the context features.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gldevice: init: %w", err)
	}
	version := gl.GoStr(gl.GetString(gl.VERSION))
	renderer := gl.GoStr(gl.GetString(gl.RENDERER))

	d := &Device{
		blendSrc:  device.One,
		blendDst:  device.Zero,
		colorMask: [4]bool{true, true, true, true},
		color:     mgl32.Vec4{1, 1, 1, 1},
	}
	d.features = probeFeatures()

	var n int32
	gl.GetIntegerv(gl.MAX_LIGHTS, &n)
	d.maxLights = int(n)

	var vp [4]int32
	gl.GetIntegerv(gl.VIEWPORT, &vp[0])
	d.viewport = device.Rect{X: vp[0], Y: vp[1], Width: vp[2], Height: vp[3]}

	gl.AlphaFunc(gl.GREATER, 0)
	gl.DepthFunc(gl.LESS)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.NORMALIZE)

	logging.Logger().Info("gldevice: context ready",
		"version", version,
		"renderer", renderer,
		"max_lights", d.maxLights,
		"fbo", d.features[device.FeatureFramebufferObject],
		"vbo", d.features[device.FeatureVertexBufferObject],
		"depth_texture", d.features[device.FeatureDepthTexture],
	)
	return d, nil
}

// probeFeatures treats every feature as core from GL 3.0 on and falls back
// to the extension string before that.
func probeFeatures() map[device.Feature]bool {
	var major int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	if gl.GetError() == gl.NO_ERROR && major >= 3 {
		return map[device.Feature]bool{
			device.FeatureFramebufferObject:  true,
			device.FeatureVertexBufferObject: true,
			device.FeatureDepthTexture:       true,
		}
	}
	ext := " " + gl.GoStr(gl.GetString(gl.EXTENSIONS)) + " "
	has := func(names ...string) bool {
		for _, n := range names {
			if strings.Contains(ext, " "+n+" ") {
				return true
			}
		}
		return false
	}
	return map[device.Feature]bool{
		device.FeatureFramebufferObject:  has("GL_ARB_framebuffer_object", "GL_EXT_framebuffer_object"),
		device.FeatureVertexBufferObject: has("GL_ARB_vertex_buffer_object"),
		device.FeatureDepthTexture:       has("GL_ARB_depth_texture"),
	}
}

func (d *Device) Supports(f device.Feature) bool { return d.features[f] }
func (d *Device) MaxLights() int                 { return d.maxLights }

func glCap(c device.Capability) uint32 {
	if unit, ok := c.LightUnit(); ok {
		return gl.LIGHT0 + uint32(unit)
	}
	switch c {
	case device.Lighting:
		return gl.LIGHTING
	case device.DepthTest:
		return gl.DEPTH_TEST
	case device.AlphaTest:
		return gl.ALPHA_TEST
	case device.Blend:
		return gl.BLEND
	case device.Texture2D:
		return gl.TEXTURE_2D
	case device.CullFace:
		return gl.CULL_FACE
	}
	panic(fmt.Sprintf("gldevice: unknown capability %d", c))
}

func (d *Device) IsEnabled(c device.Capability) bool { return gl.IsEnabled(glCap(c)) }
func (d *Device) Enable(c device.Capability)         { gl.Enable(glCap(c)) }
func (d *Device) Disable(c device.Capability)        { gl.Disable(glCap(c)) }

var blendFactors = [...]uint32{
	device.Zero:             gl.ZERO,
	device.One:              gl.ONE,
	device.SrcAlpha:         gl.SRC_ALPHA,
	device.OneMinusSrcAlpha: gl.ONE_MINUS_SRC_ALPHA,
	device.DstAlpha:         gl.DST_ALPHA,
	device.OneMinusDstAlpha: gl.ONE_MINUS_DST_ALPHA,
	device.SrcColor:         gl.SRC_COLOR,
	device.OneMinusSrcColor: gl.ONE_MINUS_SRC_COLOR,
}

func (d *Device) BlendFunc() (device.BlendFactor, device.BlendFactor) {
	return d.blendSrc, d.blendDst
}

func (d *Device) SetBlendFunc(src, dst device.BlendFactor) {
	gl.BlendFunc(blendFactors[src], blendFactors[dst])
	d.blendSrc, d.blendDst = src, dst
}

func (d *Device) Viewport() device.Rect { return d.viewport }

func (d *Device) SetViewport(r device.Rect) {
	gl.Viewport(r.X, r.Y, r.Width, r.Height)
	d.viewport = r
}

func glMatrixMode(mode device.MatrixMode) (set, get uint32) {
	if mode == device.Projection {
		return gl.PROJECTION, gl.PROJECTION_MATRIX
	}
	return gl.MODELVIEW, gl.MODELVIEW_MATRIX
}

func (d *Device) Matrix(mode device.MatrixMode) mgl32.Mat4 {
	var m mgl32.Mat4
	_, get := glMatrixMode(mode)
	gl.GetFloatv(get, &m[0])
	return m
}

// LoadMatrix leaves the modelview stack selected.
func (d *Device) LoadMatrix(mode device.MatrixMode, m mgl32.Mat4) {
	set, _ := glMatrixMode(mode)
	gl.MatrixMode(set)
	gl.LoadMatrixf(&m[0])
	if set != gl.MODELVIEW {
		gl.MatrixMode(gl.MODELVIEW)
	}
}

func (d *Device) PushMatrix() { gl.PushMatrix() }
func (d *Device) PopMatrix()  { gl.PopMatrix() }

func (d *Device) MultMatrix(m mgl32.Mat4) { gl.MultMatrixf(&m[0]) }

func (d *Device) SetClearColor(c mgl32.Vec4) { gl.ClearColor(c[0], c[1], c[2], c[3]) }

// Clear is confined to the viewport with the scissor test, since glClear
// ignores the viewport.
func (d *Device) Clear(mask device.ClearMask) {
	var bits uint32
	if mask&device.ColorBuffer != 0 {
		bits |= gl.COLOR_BUFFER_BIT
	}
	if mask&device.DepthBuffer != 0 {
		bits |= gl.DEPTH_BUFFER_BIT
	}
	if bits == 0 {
		return
	}
	r := d.viewport
	gl.Scissor(r.X, r.Y, r.Width, r.Height)
	gl.Enable(gl.SCISSOR_TEST)
	gl.Clear(bits)
	gl.Disable(gl.SCISSOR_TEST)
}

func (d *Device) SetColorMask(r, g, b, a bool) {
	gl.ColorMask(r, g, b, a)
	d.colorMask = [4]bool{r, g, b, a}
}

func (d *Device) ColorMask() (bool, bool, bool, bool) {
	m := d.colorMask
	return m[0], m[1], m[2], m[3]
}

func (d *Device) SetDepthMask(write bool) { gl.DepthMask(write) }

// SetColor sets the primary color. It is pinned while a shadow composite is
// active.
func (d *Device) SetColor(c mgl32.Vec4) {
	d.color = c
	if d.composite == nil {
		gl.Color4f(c[0], c[1], c[2], c[3])
	}
}

func (d *Device) SetLight(unit int, p device.LightParams) {
	l := gl.LIGHT0 + uint32(unit)
	gl.Lightfv(l, gl.AMBIENT, &p.Ambient[0])
	gl.Lightfv(l, gl.DIFFUSE, &p.Diffuse[0])
	gl.Lightfv(l, gl.SPECULAR, &p.Specular[0])
}

func (d *Device) SetLightPosition(unit int, pos mgl32.Vec4) {
	gl.Lightfv(gl.LIGHT0+uint32(unit), gl.POSITION, &pos[0])
}

func (d *Device) GenTexture() uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	return id
}

func (d *Device) DeleteTexture(id uint32) { gl.DeleteTextures(1, &id) }
func (d *Device) BindTexture(id uint32)   { gl.BindTexture(gl.TEXTURE_2D, id) }

// glFormat returns the internal format, pixel format and component type.
func glFormat(f device.PixelFormat) (int32, uint32, uint32) {
	switch f {
	case device.Luminance:
		return gl.LUMINANCE, gl.LUMINANCE, gl.UNSIGNED_BYTE
	case device.LuminanceAlpha:
		return gl.LUMINANCE_ALPHA, gl.LUMINANCE_ALPHA, gl.UNSIGNED_BYTE
	case device.RGB:
		return gl.RGB, gl.RGB, gl.UNSIGNED_BYTE
	case device.RGBA:
		return gl.RGBA, gl.RGBA, gl.UNSIGNED_BYTE
	case device.Depth8, device.Depth16:
		return gl.DEPTH_COMPONENT16, gl.DEPTH_COMPONENT, gl.UNSIGNED_SHORT
	}
	panic(fmt.Sprintf("gldevice: invalid pixel format %d", f))
}

func pixelPtr(p []byte) unsafe.Pointer {
	if len(p) == 0 {
		return nil
	}
	return gl.Ptr(p)
}

func (d *Device) TexImage2D(width, height int32, format device.PixelFormat, pixels []byte) {
	internal, f, typ := glFormat(format)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, width, height, 0, f, typ, pixelPtr(pixels))
}

func (d *Device) TexSubImage2D(x, y, width, height int32, format device.PixelFormat, pixels []byte) {
	_, f, typ := glFormat(format)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, x, y, width, height, f, typ, pixelPtr(pixels))
}

func (d *Device) TexParameters(filter device.Filter, wrap device.WrapMode) {
	f := int32(gl.LINEAR)
	if filter == device.Nearest {
		f = gl.NEAREST
	}
	w := int32(gl.REPEAT)
	if wrap == device.ClampToEdge {
		w = gl.CLAMP_TO_EDGE
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, f)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, f)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, w)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, w)
}

func (d *Device) GenFramebuffer() uint32 {
	var id uint32
	gl.GenFramebuffers(1, &id)
	return id
}

func (d *Device) DeleteFramebuffer(id uint32) {
	if d.framebuffer == id {
		d.BindFramebuffer(0)
	}
	gl.DeleteFramebuffers(1, &id)
}

func (d *Device) BindFramebuffer(id uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, id)
	d.framebuffer = id
}

func (d *Device) Framebuffer() uint32 { return d.framebuffer }

func (d *Device) GenRenderbuffer() uint32 {
	var id uint32
	gl.GenRenderbuffers(1, &id)
	return id
}

func (d *Device) DeleteRenderbuffer(id uint32) { gl.DeleteRenderbuffers(1, &id) }

func (d *Device) DepthRenderbufferStorage(id uint32, width, height int32) {
	gl.BindRenderbuffer(gl.RENDERBUFFER, id)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT16, width, height)
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
}

func glAttachment(att device.Attachment) uint32 {
	if att == device.DepthAttachment {
		return gl.DEPTH_ATTACHMENT
	}
	return gl.COLOR_ATTACHMENT0
}

func (d *Device) FramebufferRenderbuffer(att device.Attachment, rb uint32) {
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, glAttachment(att), gl.RENDERBUFFER, rb)
}

func (d *Device) FramebufferTexture(att device.Attachment, tex uint32) {
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, glAttachment(att), gl.TEXTURE_2D, tex, 0)
}

func (d *Device) SetDrawColorBuffer(enabled bool) {
	buf := uint32(gl.NONE)
	if enabled {
		buf = gl.COLOR_ATTACHMENT0
	}
	gl.DrawBuffer(buf)
	gl.ReadBuffer(buf)
}

func (d *Device) FramebufferComplete() bool {
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		logging.Logger().Warn("gldevice: framebuffer incomplete", "status", fmt.Sprintf("0x%x", status))
		return false
	}
	return true
}

func (d *Device) CreateVertexBuffer(data []float32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	if id == 0 {
		return 0
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	if len(data) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return id
}

func (d *Device) DeleteVertexBuffer(id uint32) { gl.DeleteBuffers(1, &id) }

func (d *Device) DrawVertexBuffer(id uint32, format device.VertexFormat, prim device.Primitive, count int32) {
	stride := format.Stride() * 4
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.EnableClientState(gl.VERTEX_ARRAY)
	gl.VertexPointer(3, gl.FLOAT, stride, gl.PtrOffset(0))
	offset := 3 * 4
	if format&device.WithNormal != 0 {
		gl.EnableClientState(gl.NORMAL_ARRAY)
		gl.NormalPointer(gl.FLOAT, stride, gl.PtrOffset(offset))
		offset += 3 * 4
	}
	if format&device.WithColor != 0 {
		gl.EnableClientState(gl.COLOR_ARRAY)
		gl.ColorPointer(4, gl.FLOAT, stride, gl.PtrOffset(offset))
	}

	mode := uint32(gl.TRIANGLES)
	if prim == device.Lines {
		mode = gl.LINES
	}
	gl.DrawArrays(mode, 0, count)

	gl.DisableClientState(gl.COLOR_ARRAY)
	gl.DisableClientState(gl.NORMAL_ARRAY)
	gl.DisableClientState(gl.VERTEX_ARRAY)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

func (d *Device) DrawQuads(vertices []float32) {
	gl.Begin(gl.QUADS)
	for i := 0; i+3 < len(vertices); i += 4 {
		gl.TexCoord2f(vertices[i+2], vertices[i+3])
		gl.Vertex2f(vertices[i], vertices[i+1])
	}
	gl.End()
}

var texGen = [4]struct{ coord, enable uint32 }{
	{gl.S, gl.TEXTURE_GEN_S},
	{gl.T, gl.TEXTURE_GEN_T},
	{gl.R, gl.TEXTURE_GEN_R},
	{gl.Q, gl.TEXTURE_GEN_Q},
}

// BeginShadowComposite generates shadow-map coordinates from eye space,
// compares them against the depth texture and lays a black layer of alpha
// Darkness over the fragments the comparison puts in shadow. The planes are
// transformed by the current modelview, so sc.Matrix is relative to the
// coordinate system current at this call.
func (d *Device) BeginShadowComposite(sc device.ShadowComposite) {
	if d.composite != nil {
		panic("gldevice: nested shadow composite")
	}
	d.composite = &compositeState{
		blend:     gl.IsEnabled(gl.BLEND),
		depthTest: gl.IsEnabled(gl.DEPTH_TEST),
		texture:   gl.IsEnabled(gl.TEXTURE_2D),
		blendSrc:  d.blendSrc,
		blendDst:  d.blendDst,
	}

	for i, tg := range texGen {
		row := sc.Matrix.Row(i)
		gl.TexGeni(tg.coord, gl.TEXTURE_GEN_MODE, gl.EYE_LINEAR)
		gl.TexGenfv(tg.coord, gl.EYE_PLANE, &row[0])
		gl.Enable(tg.enable)
	}

	gl.BindTexture(gl.TEXTURE_2D, sc.Texture)
	filter := int32(gl.LINEAR)
	if sc.Filter == device.Nearest {
		filter = gl.NEAREST
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
	// 1 where the fragment is farther from the light than the occluder.
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_FUNC, gl.GREATER)
	gl.TexParameteri(gl.TEXTURE_2D, gl.DEPTH_TEXTURE_MODE, gl.ALPHA)
	gl.TexEnvi(gl.TEXTURE_ENV, gl.TEXTURE_ENV_MODE, gl.MODULATE)
	gl.Enable(gl.TEXTURE_2D)

	gl.Color4f(0, 0, 0, sc.Darkness)
	d.SetBlendFunc(device.SrcAlpha, device.OneMinusSrcAlpha)
	gl.Enable(gl.BLEND)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	gl.DepthMask(false)
}

// EndShadowComposite resets everything BeginShadowComposite changed.
func (d *Device) EndShadowComposite() {
	cs := d.composite
	if cs == nil {
		return
	}
	d.composite = nil

	for _, tg := range texGen {
		gl.Disable(tg.enable)
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_COMPARE_MODE, gl.NONE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.DepthMask(true)
	gl.DepthFunc(gl.LESS)
	gl.Color4f(d.color[0], d.color[1], d.color[2], d.color[3])
	d.SetBlendFunc(cs.blendSrc, cs.blendDst)
	restore(gl.BLEND, cs.blend)
	restore(gl.DEPTH_TEST, cs.depthTest)
	restore(gl.TEXTURE_2D, cs.texture)
}

func restore(c uint32, on bool) {
	if on {
		gl.Enable(c)
	} else {
		gl.Disable(c)
	}
}
