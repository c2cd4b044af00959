package scene

import (
	"fmt"

	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh draws static geometry from a device vertex buffer.
type Mesh struct {
	*Entity
	BaseHooks

	vertices  []float32
	format    device.VertexFormat
	primitive device.Primitive
	count     int32
	buffer    uint32

	Color mgl32.Vec4
}

// NewMesh creates a mesh of interleaved vertices. The data is uploaded at
// initialization.
func NewMesh(vertices []float32, format device.VertexFormat, prim device.Primitive) *Mesh {
	m := &Mesh{
		vertices:  vertices,
		format:    format,
		primitive: prim,
		count:     int32(len(vertices)) / format.Stride(),
		Color:     mgl32.Vec4{1, 1, 1, 1},
	}
	m.Entity = NewEntity(m, nil)
	return m
}

// NewCube creates a lit cube with the given edge length.
func NewCube(size float32) *Mesh {
	return NewMesh(CubeVertices(size), device.WithNormal, device.Triangles)
}

// NewPlane creates a lit square in the XZ plane facing +Y.
func NewPlane(size float32) *Mesh {
	return NewMesh(PlaneVertices(size), device.WithNormal, device.Triangles)
}

func (m *Mesh) VertexCount() int32 { return m.count }
func (m *Mesh) Buffer() uint32     { return m.buffer }

func (m *Mesh) DoInitialize(rc *Context, _ *Entity) error {
	d := rc.Device
	if !d.Supports(device.FeatureVertexBufferObject) {
		return fmt.Errorf("mesh: %w: %s", device.ErrMissingFeature, device.FeatureVertexBufferObject)
	}
	m.buffer = d.CreateVertexBuffer(m.vertices)
	if m.buffer == 0 {
		return fmt.Errorf("mesh: vertex buffer: %w", device.ErrAllocation)
	}
	return nil
}

func (m *Mesh) DoRender(rc *Context, _ *Entity, pass Pass) {
	if m.count == 0 {
		return
	}
	// The composite pass draws in the shadow color.
	if pass != PassShadowTest {
		rc.Device.SetColor(m.Color)
	}
	rc.Device.DrawVertexBuffer(m.buffer, m.format, m.primitive, m.count)
}

func (m *Mesh) DoDispose(rc *Context) {
	if m.buffer != 0 {
		rc.Device.DeleteVertexBuffer(m.buffer)
		m.buffer = 0
	}
}

// cubeFaces lists each face as its normal and two in-plane axes chosen so
// that normal = u x v, which keeps the winding counter-clockwise.
var cubeFaces = [6][3]mgl32.Vec3{
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
	{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
}

// CubeVertices returns 36 position+normal vertices of a cube centered on
// the origin.
func CubeVertices(size float32) []float32 {
	h := size / 2
	out := make([]float32, 0, 36*6)
	for _, f := range cubeFaces {
		out = appendQuad(out, f[0].Mul(h), f[1].Mul(h), f[2].Mul(h), f[0])
	}
	return out
}

// PlaneVertices returns 6 position+normal vertices of a square of the given
// edge length in the XZ plane.
func PlaneVertices(size float32) []float32 {
	h := size / 2
	return appendQuad(nil, mgl32.Vec3{}, mgl32.Vec3{h, 0, 0}, mgl32.Vec3{0, 0, -h}, mgl32.Vec3{0, 1, 0})
}

func appendQuad(out []float32, center, u, v, n mgl32.Vec3) []float32 {
	corners := [4]mgl32.Vec3{
		center.Sub(u).Sub(v),
		center.Add(u).Sub(v),
		center.Add(u).Add(v),
		center.Sub(u).Add(v),
	}
	for _, i := range [6]int{0, 1, 2, 0, 2, 3} {
		p := corners[i]
		out = append(out, p[0], p[1], p[2], n[0], n[1], n[2])
	}
	return out
}
