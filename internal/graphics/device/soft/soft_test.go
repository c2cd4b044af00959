package soft

import (
	"testing"

	"shadowstage/internal/graphics/device"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixStack(t *testing.T) {
	d := New()
	require.Equal(t, 1, d.StackDepth())

	d.PushMatrix()
	d.MultMatrix(mgl32.Translate3D(1, 2, 3))
	assert.Equal(t, mgl32.Translate3D(1, 2, 3), d.Matrix(device.Modelview))
	d.PopMatrix()

	assert.Equal(t, mgl32.Ident4(), d.Matrix(device.Modelview))
	assert.Panics(t, d.PopMatrix)
}

func TestDrawRecordsState(t *testing.T) {
	d := New()
	vb := d.CreateVertexBuffer(make([]float32, 6*3))
	require.NotZero(t, vb)

	d.SetViewport(device.Rect{Width: 800, Height: 600})
	d.Enable(device.Lighting)
	d.SetColorMask(false, false, false, false)
	d.DrawVertexBuffer(vb, device.WithNormal, device.Triangles, 3)

	require.Len(t, d.Draws, 1)
	dc := d.Draws[0]
	assert.Equal(t, device.Rect{Width: 800, Height: 600}, dc.Viewport)
	assert.True(t, dc.Lighting)
	assert.False(t, dc.ColorWrite)
	assert.EqualValues(t, 3, dc.Count)

	assert.Panics(t, func() { d.DrawVertexBuffer(vb, device.WithNormal, device.Triangles, 4) })
}

func TestLightPositionUsesModelview(t *testing.T) {
	d := New()
	d.LoadMatrix(device.Modelview, mgl32.Translate3D(0, 0, -10))
	d.SetLightPosition(0, mgl32.Vec4{0, 0, 0, 1})

	l, ok := d.LightState(0)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec4{0, 0, -10, 1}, l.Position)
	assert.Panics(t, func() { d.SetLight(8, device.LightParams{}) })
}

func TestFramebufferCompleteness(t *testing.T) {
	d := New()
	fb := d.GenFramebuffer()
	d.BindFramebuffer(fb)
	assert.False(t, d.FramebufferComplete(), "no attachments")

	tex := d.GenTexture()
	d.SetDrawColorBuffer(false)
	d.FramebufferTexture(device.DepthAttachment, tex)
	assert.True(t, d.FramebufferComplete())

	d2 := New(WithIncompleteFramebuffers())
	fb2 := d2.GenFramebuffer()
	d2.BindFramebuffer(fb2)
	d2.FramebufferTexture(device.ColorAttachment, d2.GenTexture())
	assert.False(t, d2.FramebufferComplete())
}

func TestSubImageUpload(t *testing.T) {
	d := New()
	tex := d.GenTexture()
	d.BindTexture(tex)
	d.TexImage2D(2, 2, device.Luminance, []byte{0, 0, 0, 0})
	d.TexSubImage2D(1, 1, 1, 1, device.Luminance, []byte{9})

	st, ok := d.Texture(tex)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 9}, st.Pixels)
	assert.Equal(t, 1, st.SubUploads)
	assert.Panics(t, func() { d.TexSubImage2D(1, 1, 2, 2, device.Luminance, nil) })
}

func TestOptions(t *testing.T) {
	d := New(WithoutFeature(device.FeatureFramebufferObject), WithMaxLights(2), WithFailingAllocations())
	assert.False(t, d.Supports(device.FeatureFramebufferObject))
	assert.True(t, d.Supports(device.FeatureVertexBufferObject))
	assert.Equal(t, 2, d.MaxLights())
	assert.Zero(t, d.GenTexture())
	assert.Zero(t, d.CreateVertexBuffer([]float32{1}))
}

func TestCompositePinsColor(t *testing.T) {
	d := New()
	red := mgl32.Vec4{0.9, 0.2, 0.2, 1}
	d.SetColor(red)
	buf := d.CreateVertexBuffer(make([]float32, 3*device.WithNormal.Stride()))

	d.BeginShadowComposite(device.ShadowComposite{Texture: 1, Darkness: 0.5})
	d.SetColor(mgl32.Vec4{0, 1, 0, 1})
	d.DrawVertexBuffer(buf, device.WithNormal, device.Triangles, 3)
	d.EndShadowComposite()
	d.DrawVertexBuffer(buf, device.WithNormal, device.Triangles, 3)

	require.Len(t, d.Draws, 2)
	assert.True(t, d.Draws[0].Composite)
	assert.Equal(t, mgl32.Vec4{0, 0, 0, 0.5}, d.Draws[0].Color)
	assert.Equal(t, mgl32.Vec4{0, 1, 0, 1}, d.Draws[1].Color, "the last color set applies afterward")
}
