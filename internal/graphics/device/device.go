// Package device defines the render context every scene node draws through.
//
// A Device is the single piece of mutable graphics state owned by the render
// thread: capability flags, blend function, viewport, the projection matrix
// and the modelview stack, lights and GPU object handles. It is modelled on
// the fixed-function OpenGL pipeline; implementations live in gldevice (the
// real context) and device/soft (an in-memory state tracker).
//
// A Device is not safe for concurrent use.
package device

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrMissingFeature reports that the context lacks a capability the
	// caller cannot work without.
	ErrMissingFeature = errors.New("device: missing feature")
	// ErrAllocation reports that the device returned an invalid handle.
	ErrAllocation = errors.New("device: allocation failed")
)

// Device is the explicit render context.
type Device interface {
	// Supports reports whether an optional feature is available.
	Supports(f Feature) bool
	// MaxLights returns the number of fixed-function light units.
	MaxLights() int

	IsEnabled(c Capability) bool
	Enable(c Capability)
	Disable(c Capability)

	BlendFunc() (src, dst BlendFactor)
	SetBlendFunc(src, dst BlendFactor)

	Viewport() Rect
	SetViewport(r Rect)

	// Matrix returns the current matrix of the given mode.
	Matrix(mode MatrixMode) mgl32.Mat4
	// LoadMatrix replaces the current matrix of the given mode.
	LoadMatrix(mode MatrixMode, m mgl32.Mat4)
	// PushMatrix, PopMatrix and MultMatrix operate on the modelview stack.
	PushMatrix()
	PopMatrix()
	MultMatrix(m mgl32.Mat4)

	SetClearColor(c mgl32.Vec4)
	// Clear clears the selected buffers inside the current viewport only.
	Clear(mask ClearMask)
	SetColorMask(r, g, b, a bool)
	ColorMask() (r, g, b, a bool)
	SetDepthMask(write bool)
	SetColor(c mgl32.Vec4)

	// SetLight uploads the colour parameters of a light unit.
	SetLight(unit int, p LightParams)
	// SetLightPosition uploads a position; the device transforms it by the
	// current modelview matrix, like glLightfv(GL_POSITION).
	SetLightPosition(unit int, pos mgl32.Vec4)

	GenTexture() uint32
	DeleteTexture(id uint32)
	BindTexture(id uint32)
	TexImage2D(width, height int32, format PixelFormat, pixels []byte)
	TexSubImage2D(x, y, width, height int32, format PixelFormat, pixels []byte)
	TexParameters(filter Filter, wrap WrapMode)

	GenFramebuffer() uint32
	DeleteFramebuffer(id uint32)
	BindFramebuffer(id uint32)
	// Framebuffer returns the bound framebuffer, 0 for the window surface.
	Framebuffer() uint32
	GenRenderbuffer() uint32
	DeleteRenderbuffer(id uint32)
	DepthRenderbufferStorage(id uint32, width, height int32)
	FramebufferRenderbuffer(att Attachment, rb uint32)
	FramebufferTexture(att Attachment, tex uint32)
	// SetDrawColorBuffer selects color attachment 0 (true) or no color
	// output (false) for the bound framebuffer.
	SetDrawColorBuffer(enabled bool)
	FramebufferComplete() bool

	CreateVertexBuffer(data []float32) uint32
	DeleteVertexBuffer(id uint32)
	DrawVertexBuffer(id uint32, format VertexFormat, prim Primitive, count int32)
	// DrawQuads draws screen-space quads given as x, y, u, v per corner, four
	// corners per quad, using the bound texture when Texture2D is enabled.
	DrawQuads(vertices []float32)

	// BeginShadowComposite configures depth-compare texturing so that
	// subsequent geometry darkens the fragments that lie in shadow. Until
	// EndShadowComposite the primary color stays (0, 0, 0, Darkness) and
	// SetColor is ignored; EndShadowComposite restores the last color set.
	BeginShadowComposite(sc ShadowComposite)
	EndShadowComposite()
}

// Rect is a device viewport rectangle in pixels, origin bottom-left.
type Rect struct {
	X, Y, Width, Height int32
}

// Capability is a global enable/disable flag.
type Capability uint32

const (
	Lighting Capability = iota + 1
	DepthTest
	AlphaTest
	Blend
	Texture2D
	CullFace

	lightBase Capability = 0x100
)

// Light returns the capability enabling light unit i.
func Light(i int) Capability { return lightBase + Capability(i) }

// LightUnit reports the unit index of a light capability.
func (c Capability) LightUnit() (int, bool) {
	if c < lightBase {
		return 0, false
	}
	return int(c - lightBase), true
}

// BlendFactor is a source or destination blend factor.
type BlendFactor uint32

const (
	Zero BlendFactor = iota
	One
	SrcAlpha
	OneMinusSrcAlpha
	DstAlpha
	OneMinusDstAlpha
	SrcColor
	OneMinusSrcColor
)

// ClearMask selects buffers to clear.
type ClearMask uint32

const (
	ColorBuffer ClearMask = 1 << iota
	DepthBuffer
)

// MatrixMode selects a matrix.
type MatrixMode uint32

const (
	Modelview MatrixMode = iota
	Projection
)

// Feature is an optional device capability, historically an extension.
type Feature uint32

const (
	FeatureFramebufferObject Feature = iota
	FeatureVertexBufferObject
	FeatureDepthTexture
)

func (f Feature) String() string {
	switch f {
	case FeatureFramebufferObject:
		return "ARB_framebuffer_object"
	case FeatureVertexBufferObject:
		return "ARB_vertex_buffer_object"
	case FeatureDepthTexture:
		return "ARB_depth_texture"
	}
	return "unknown feature"
}

// Filter is a texture sampling filter.
type Filter uint32

const (
	Linear Filter = iota
	Nearest
)

// WrapMode is a texture coordinate wrap mode.
type WrapMode uint32

const (
	Repeat WrapMode = iota
	ClampToEdge
)

// Attachment is a framebuffer attachment point.
type Attachment uint32

const (
	ColorAttachment Attachment = iota
	DepthAttachment
)

// Primitive is a vertex topology.
type Primitive uint32

const (
	Triangles Primitive = iota
	Lines
)

// VertexFormat describes interleaved float32 vertices: position (3),
// optionally followed by normal (3) and color (4).
type VertexFormat uint32

const (
	WithNormal VertexFormat = 1 << iota
	WithColor
)

// Stride returns the number of floats per vertex.
func (f VertexFormat) Stride() int32 {
	n := int32(3)
	if f&WithNormal != 0 {
		n += 3
	}
	if f&WithColor != 0 {
		n += 4
	}
	return n
}

// LightParams are the colour terms of a fixed-function light.
type LightParams struct {
	Ambient  mgl32.Vec4
	Diffuse  mgl32.Vec4
	Specular mgl32.Vec4
}

// ShadowComposite describes the depth-compare state for the composite pass.
type ShadowComposite struct {
	// Texture is the depth texture produced by the shadow-map pass.
	Texture uint32
	// Matrix maps scene coordinates into shadow-map texture space.
	Matrix mgl32.Mat4
	// Darkness is the alpha of the black layer laid over shadowed fragments.
	Darkness float32
	Filter   Filter
}
