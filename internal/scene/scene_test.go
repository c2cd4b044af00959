package scene

import (
	"errors"
	"testing"
	"time"

	"shadowstage/internal/graphics/device"
	"shadowstage/internal/graphics/device/soft"
	"shadowstage/internal/input"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registry is a minimal UpdateRegistry and EventRegistry.
type registry struct {
	next    UpdateToken
	updates map[UpdateToken]UpdateFunc
	subs    map[EntityID]*Entity
}

func newRegistry() *registry {
	return &registry{
		updates: make(map[UpdateToken]UpdateFunc),
		subs:    make(map[EntityID]*Entity),
	}
}

func (r *registry) RegisterUpdateFunction(fn UpdateFunc) UpdateToken {
	r.next++
	r.updates[r.next] = fn
	return r.next
}

func (r *registry) UnRegisterUpdateFunction(tok UpdateToken) { delete(r.updates, tok) }
func (r *registry) Subscribe(e *Entity)                      { r.subs[e.ID()] = e }
func (r *registry) Unsubscribe(id EntityID)                  { delete(r.subs, id) }

func (r *registry) tick(elapsed time.Duration) {
	for _, fn := range r.updates {
		fn(elapsed)
	}
}

func newTestContext(opts ...soft.Option) (*Context, *soft.Device, *registry) {
	dev := soft.New(opts...)
	rc := NewContext(dev)
	reg := newRegistry()
	rc.Updates, rc.Events = reg, reg
	return rc, dev, reg
}

// testNode records its lifecycle and issues one draw per render.
type testNode struct {
	*Entity
	BaseHooks

	initErr  error
	inits    int
	disposed int
	log      *[]string
	views    []device.Rect
}

func newTestNode(name string, log *[]string) *testNode {
	n := &testNode{log: log}
	n.Entity = NewEntity(n, nil)
	n.SetName(name)
	return n
}

func (n *testNode) DoInitialize(*Context, *Entity) error {
	n.inits++
	if n.log != nil {
		*n.log = append(*n.log, n.Name())
	}
	return n.initErr
}

func (n *testNode) DoRender(rc *Context, _ *Entity, _ Pass) {
	n.views = append(n.views, rc.Device.Viewport())
	rc.Device.DrawQuads(make([]float32, 16))
}

func (n *testNode) DoDispose(*Context) { n.disposed++ }

func names(es []*Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Name()
	}
	return out
}

func TestInitializeOrdersChildrenByPriority(t *testing.T) {
	rc, _, _ := newTestContext()
	var log []string
	root := newTestNode("root", &log)
	c := newTestNode("c", &log)
	a := newTestNode("a", &log)
	b := newTestNode("b", &log)
	root.AddEntity(c.Entity, 30)
	root.AddEntity(a.Entity, 10)
	root.AddEntity(b.Entity, 10)

	assert.Empty(t, root.Children())
	assert.Equal(t, 3, root.NumPending())

	require.NoError(t, root.Initialize(rc))
	assert.Equal(t, []string{"a", "b", "c"}, names(root.Children()))
	assert.Equal(t, 0, root.NumPending())
	// Children are initialized in insertion order, before their parent.
	assert.Equal(t, []string{"c", "a", "b", "root"}, log)
	for _, n := range []*testNode{root, a, b, c} {
		assert.Equal(t, Ready, n.InitState())
	}

	d := newTestNode("d", &log)
	root.AddEntity(d.Entity, 20)
	assert.Len(t, root.Children(), 3)
	require.NoError(t, root.Initialize(rc))
	assert.Equal(t, []string{"a", "b", "d", "c"}, names(root.Children()))
	assert.Equal(t, 1, root.inits)
}

func TestInitializeJoinsErrors(t *testing.T) {
	rc, _, _ := newTestContext()
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	root := newTestNode("root", nil)
	a := newTestNode("a", nil)
	a.initErr = errA
	b := newTestNode("b", nil)
	b.initErr = errB
	ok := newTestNode("ok", nil)
	root.AddEntity(a.Entity, 0)
	root.AddEntity(b.Entity, 0)
	root.AddEntity(ok.Entity, 0)

	err := root.Initialize(rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, Uninitialized, a.InitState())
	assert.Equal(t, Uninitialized, b.InitState())
	assert.Equal(t, Ready, ok.InitState())
	assert.Equal(t, Ready, root.InitState())
	assert.Len(t, root.Children(), 3, "failed children still move to the active list")

	a.initErr, b.initErr = nil, nil
	require.NoError(t, root.Initialize(rc))
	assert.Equal(t, Ready, a.InitState())
	assert.Equal(t, 2, a.inits)
	assert.Equal(t, 1, ok.inits)
}

func TestSharedWorldInitializedOnce(t *testing.T) {
	rc, _, _ := newTestContext()
	world := NewWorld()
	root := NewEntity(nil, nil)
	left := NewViewport(0, 0, 100, 100)
	right := NewViewport(100, 0, 100, 100)
	left.AddEntity(world.Entity, 0)
	right.AddEntity(world.Entity, 0)
	root.AddEntity(left.Entity, 0)
	root.AddEntity(right.Entity, 1)

	require.NoError(t, root.Initialize(rc))
	require.NoError(t, root.Initialize(rc))
	assert.Equal(t, 1, world.InitCount())
}

func TestCheckDestroyBottomUp(t *testing.T) {
	rc, _, _ := newTestContext()
	type removal struct{ parent, child string }
	var removed []removal
	rc.OnRemove = func(parent, child *Entity) {
		removed = append(removed, removal{parent.Name(), child.Name()})
	}

	root := newTestNode("root", nil)
	a := newTestNode("a", nil)
	b := newTestNode("b", nil)
	c := newTestNode("c", nil)
	d := newTestNode("d", nil)
	root.AddEntity(a.Entity, 0)
	a.AddEntity(b.Entity, 0)
	a.AddEntity(d.Entity, 1)
	b.AddEntity(c.Entity, 0)
	require.NoError(t, root.Initialize(rc))

	b.Destroy()
	c.Destroy()
	root.CheckDestroy(rc)

	assert.Equal(t, []removal{{"b", "c"}, {"a", "b"}}, removed)
	assert.Equal(t, []string{"d"}, names(a.Children()))
	assert.Equal(t, 1, b.disposed)
	assert.Equal(t, 1, c.disposed)
	assert.Zero(t, d.disposed)
	assert.Zero(t, a.disposed)

	removed = nil
	root.CheckDestroy(rc)
	assert.Empty(t, removed)
}

func TestCheckDestroySharedEntity(t *testing.T) {
	rc, _, _ := newTestContext()
	root := NewEntity(nil, nil)
	p1 := NewEntity(nil, nil)
	p2 := NewEntity(nil, nil)
	shared := newTestNode("shared", nil)
	p1.AddEntity(shared.Entity, 0)
	p2.AddEntity(shared.Entity, 0)
	root.AddEntity(p1, 0)
	root.AddEntity(p2, 1)
	require.NoError(t, root.Initialize(rc))

	p1.Destroy()
	root.CheckDestroy(rc)
	assert.Zero(t, shared.disposed, "still owned by p2")
	assert.Equal(t, Ready, shared.InitState())

	p2.Destroy()
	root.CheckDestroy(rc)
	assert.Equal(t, 1, shared.disposed)
	assert.Empty(t, root.Children())
}

func TestDisposeUnregisters(t *testing.T) {
	rc, _, reg := newTestContext()
	cam := NewCamera(10, 0, 0, nil)
	root := NewEntity(nil, nil)
	root.AddEntity(cam.Entity, 0)
	require.NoError(t, root.Initialize(rc))
	assert.Len(t, reg.updates, 1)
	assert.Contains(t, reg.subs, cam.ID())

	cam.Destroy()
	root.CheckDestroy(rc)
	assert.Empty(t, reg.updates)
	assert.Empty(t, reg.subs)
	assert.Equal(t, Uninitialized, cam.InitState())
}

func TestViewportRestoresState(t *testing.T) {
	surface := device.Rect{Width: 800, Height: 600}
	rc, dev, _ := newTestContext(soft.WithViewport(surface))
	rc.SetSurface(800, 600)
	proj := mgl32.Perspective(1, 2, 0.5, 50)
	mv := mgl32.Translate3D(1, 2, 3)
	dev.LoadMatrix(device.Projection, proj)
	dev.LoadMatrix(device.Modelview, mv)

	outer := NewViewport(0, 0, 400, 300)
	outer.SetClearFlags(device.ColorBuffer | device.DepthBuffer)
	outer.SetClearColor(mgl32.Vec4{1, 0, 0, 1})
	inner := NewViewport(10, 10, 100, 100)
	leaf := newTestNode("leaf", nil)
	inner.AddEntity(leaf.Entity, 0)
	outer.AddEntity(inner.Entity, 0)
	require.NoError(t, outer.Initialize(rc))

	outer.Render(rc, PassLighting)

	require.Len(t, leaf.views, 1)
	assert.Equal(t, device.Rect{X: 10, Y: 490, Width: 100, Height: 100}, leaf.views[0])
	require.Len(t, dev.Clears, 1)
	assert.Equal(t, device.Rect{X: 0, Y: 300, Width: 400, Height: 300}, dev.Clears[0].Viewport)
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 1}, dev.Clears[0].Color)
	assert.Equal(t, inner.Projection(), dev.Draws[0].Projection)

	assert.Equal(t, surface, dev.Viewport())
	assert.Equal(t, proj, dev.Matrix(device.Projection))
	assert.Equal(t, mv, dev.Matrix(device.Modelview))
	assert.Equal(t, 1, dev.StackDepth())
	assert.True(t, rc.Balanced())

	dev.ResetLog()
	outer.Render(rc, PassShadowTest)
	assert.Empty(t, dev.Clears, "the composite pass draws over the lighting pass")
	assert.Len(t, dev.Draws, 1)
}

func TestSingleViewScenario(t *testing.T) {
	rc, dev, _ := newTestContext(soft.WithViewport(device.Rect{Width: 800, Height: 600}))
	rc.SetSurface(800, 600)

	root := NewEntity(nil, nil)
	view := NewViewport(0, 0, 800, 600)
	cam := NewCamera(30, 20, 0, nil)
	world := NewWorld()
	geometry := newTestNode("geometry", nil)
	world.AddEntity(geometry.Entity, 20)
	cam.AddEntity(world.Entity, 10)
	view.AddEntity(cam.Entity, 10)
	root.AddEntity(view.Entity, 0)
	require.NoError(t, root.Initialize(rc))
	assert.Equal(t, Ready, geometry.InitState())

	before := device.Rect{X: 5, Y: 7, Width: 11, Height: 13}
	projection := mgl32.Ortho(0, 1, 0, 1, -1, 1)
	for frame := 1; frame <= 3; frame++ {
		dev.SetViewport(before)
		dev.LoadMatrix(device.Projection, projection)
		dev.ResetLog()

		root.Render(rc, PassLighting)

		require.Len(t, dev.Draws, 1)
		assert.Len(t, geometry.views, frame, "one draw hook call per frame")
		assert.Equal(t, device.Rect{Width: 800, Height: 600}, geometry.views[frame-1])
		assert.True(t, dev.Draws[0].Modelview.ApproxEqualThreshold(cam.View(), 1e-5))
		assert.Equal(t, before, dev.Viewport())
		assert.Equal(t, projection, dev.Matrix(device.Projection))
		assert.Equal(t, mgl32.Ident4(), dev.Matrix(device.Modelview))
	}
	assert.True(t, rc.Balanced())
}

func TestVisibilityTakesEffectNextFrame(t *testing.T) {
	rc, dev, _ := newTestContext()
	root := NewEntity(nil, nil)
	leaf := newTestNode("leaf", nil)
	root.AddEntity(leaf.Entity, 0)
	require.NoError(t, root.Initialize(rc))

	frame := func() int {
		dev.ResetLog()
		root.Render(rc, PassLighting)
		return len(dev.Draws)
	}

	assert.Equal(t, 1, frame())
	leaf.SetVisible(false)
	assert.Equal(t, 0, frame())
	leaf.SetVisible(true)
	leaf.SetEnabled(false)
	assert.Equal(t, 0, frame())
	leaf.SetEnabled(true)
	assert.Equal(t, 1, frame())
	leaf.Destroy()
	assert.Equal(t, 0, frame(), "pending deletion is not rendered before the sweep")
}

func TestUpdateOnlyWhenEnabled(t *testing.T) {
	rc, _, reg := newTestContext()
	cam := NewCamera(10, 0, 0, nil)
	require.NoError(t, cam.Initialize(rc))

	assert.True(t, cam.HandleEvent(input.KeyDownEvent(input.KeyArrowLeft)))
	cam.SetEnabled(false)
	reg.tick(time.Second)
	assert.Zero(t, cam.Yaw())
	cam.SetEnabled(true)
	reg.tick(time.Second)
	assert.InDelta(t, -90, cam.Yaw(), 1e-4)
}

func TestAcquireDiffsFlags(t *testing.T) {
	rc, dev, _ := newTestContext()

	rs := NewRenderState()
	rs.Blend = On
	rc.Acquire(&rs)
	assert.True(t, dev.IsEnabled(device.Blend))
	src, dst := dev.BlendFunc()
	assert.Equal(t, device.SrcAlpha, src)
	assert.Equal(t, device.OneMinusSrcAlpha, dst)

	inner := NewRenderState()
	rc.Acquire(&inner)
	assert.True(t, dev.IsEnabled(device.Blend), "inherit keeps the ancestor's blend")
	rc.Release()

	rc.Release()
	assert.False(t, dev.IsEnabled(device.Blend))
	src, dst = dev.BlendFunc()
	assert.Equal(t, device.One, src)
	assert.Equal(t, device.Zero, dst)

	dev.Enable(device.AlphaTest)
	rs = NewRenderState()
	rs.AlphaTest = Off
	rc.Acquire(&rs)
	assert.False(t, dev.IsEnabled(device.AlphaTest))
	rc.Release()
	assert.True(t, dev.IsEnabled(device.AlphaTest))
	assert.True(t, rc.Balanced())
	assert.Equal(t, 1, dev.StackDepth())
}

func TestAcquireAppliesTransform(t *testing.T) {
	rc, dev, _ := newTestContext()
	rs := NewRenderState()
	rs.Transform.Position = mgl32.Vec3{0, 0, -5}
	rc.Acquire(&rs)
	assert.Equal(t, mgl32.Translate3D(0, 0, -5), dev.Matrix(device.Modelview))
	assert.Equal(t, 2, dev.StackDepth())
	rc.Release()
	assert.Equal(t, mgl32.Ident4(), dev.Matrix(device.Modelview))

	assert.Panics(t, func() { rc.Release() })
	assert.Panics(t, func() { rc.RestoreView() })
	assert.Panics(t, func() { rc.PopFlags() })
}

func TestOrthoRestoresFlags(t *testing.T) {
	rc, dev, _ := newTestContext()
	rc.SetSurface(640, 480)
	dev.Enable(device.Lighting)
	dev.Enable(device.DepthTest)

	o := NewOrtho(0, 0, 640, 480)
	leaf := newTestNode("leaf", nil)
	o.AddEntity(leaf.Entity, 0)
	require.NoError(t, o.Initialize(rc))
	o.Render(rc, PassLighting)

	require.Len(t, dev.Draws, 1)
	assert.False(t, dev.Draws[0].Lighting)
	assert.False(t, dev.Draws[0].DepthTest)
	assert.Equal(t, mgl32.Ortho(0, 640, 480, 0, -100, 100), dev.Draws[0].Projection)
	assert.True(t, dev.IsEnabled(device.Lighting))
	assert.True(t, dev.IsEnabled(device.DepthTest))
	assert.True(t, rc.Balanced())
}

func TestViewportLayout(t *testing.T) {
	v := NewViewport(0, 0, 10, 10)
	v.SetLayout(func(w, h int32) device.Rect {
		return device.Rect{X: w / 2, Width: w / 2, Height: h}
	})
	assert.False(t, v.HandleEvent(input.ResizeEvent(800, 600)))
	assert.Equal(t, device.Rect{X: 400, Width: 400, Height: 600}, v.Rect())
	assert.InDelta(t, 400.0/600.0, v.Frustum().Aspect, 1e-6)
}

func TestDisabledViewportFollowsResize(t *testing.T) {
	v := NewViewport(0, 0, 640, 480)
	v.SetLayout(func(w, h int32) device.Rect { return device.Rect{Width: w, Height: h} })
	v.SetEnabled(false)

	assert.False(t, v.HandleEvent(input.ResizeEvent(1024, 768)))
	assert.False(t, v.HandleEvent(input.KeyDownEvent(input.KeyHome)))
	v.SetEnabled(true)
	assert.Equal(t, device.Rect{Width: 1024, Height: 768}, v.Rect())
	assert.InDelta(t, 1024.0/768.0, v.Frustum().Aspect, 1e-6)
}

func TestLightUnitsIncrease(t *testing.T) {
	prev := -1
	for range 3 {
		l := NewLight()
		t.Cleanup(l.Release)
		assert.Greater(t, l.Unit(), prev)
		prev = l.Unit()
	}
}

func TestLightUnitsExhausted(t *testing.T) {
	rc, _, _ := newTestContext(soft.WithMaxLights(0))
	world := NewWorld()
	l := NewLight()
	t.Cleanup(l.Release)
	world.AddLight(l, 0)

	err := world.Initialize(rc)
	assert.ErrorIs(t, err, ErrLightUnitsExhausted)
	assert.Equal(t, Uninitialized, l.InitState())
}

func TestLightUploadsOnce(t *testing.T) {
	rc, dev, _ := newTestContext()
	root := NewEntity(nil, nil)
	root.State().Transform.Position = mgl32.Vec3{0, 0, -10}
	l := NewLight()
	t.Cleanup(l.Release)
	l.State().Transform.Position = mgl32.Vec3{0, 5, 0}
	root.AddEntity(l.Entity, 0)
	require.NoError(t, root.Initialize(rc))
	assert.True(t, dev.IsEnabled(device.Light(l.Unit())))

	root.Render(rc, PassLighting)
	root.Render(rc, PassLighting)
	st, ok := dev.LightState(l.Unit())
	require.True(t, ok)
	assert.Equal(t, 1, st.Uploads)
	assert.InDeltaSlice(t, []float32{0, 5, -10, 1}, st.Position[:], 1e-5)

	l.Invalidate()
	root.Render(rc, PassLighting)
	st, _ = dev.LightState(l.Unit())
	assert.Equal(t, 2, st.Uploads)

	l.Destroy()
	root.CheckDestroy(rc)
	assert.False(t, dev.IsEnabled(device.Light(l.Unit())))
}

func TestMeshInitializeErrors(t *testing.T) {
	rc, _, _ := newTestContext(soft.WithoutFeature(device.FeatureVertexBufferObject))
	m := NewCube(1)
	err := m.Initialize(rc)
	assert.ErrorIs(t, err, device.ErrMissingFeature)
	assert.Equal(t, Uninitialized, m.InitState())

	rc, _, _ = newTestContext(soft.WithFailingAllocations())
	m = NewCube(1)
	assert.ErrorIs(t, m.Initialize(rc), device.ErrAllocation)
}

func TestMeshLifecycle(t *testing.T) {
	rc, dev, _ := newTestContext()
	m := NewCube(2)
	require.NoError(t, m.Initialize(rc))
	assert.EqualValues(t, 36, m.VertexCount())
	assert.NotZero(t, m.Buffer())

	m.Render(rc, PassLighting)
	require.Len(t, dev.Draws, 1)
	assert.Equal(t, soft.DrawVertices, dev.Draws[0].Kind)
	assert.EqualValues(t, 36, dev.Draws[0].Count)

	m.Dispose(rc)
	_, _, _, buffers := dev.Live()
	assert.Zero(t, buffers)
}

func TestCubeWindingFacesOutward(t *testing.T) {
	v := CubeVertices(2)
	require.Len(t, v, 36*6)
	for tri := 0; tri < 12; tri++ {
		var p [3]mgl32.Vec3
		for i := range p {
			o := (tri*3 + i) * 6
			p[i] = mgl32.Vec3{v[o], v[o+1], v[o+2]}
		}
		o := tri * 3 * 6
		n := mgl32.Vec3{v[o+3], v[o+4], v[o+5]}
		face := p[1].Sub(p[0]).Cross(p[2].Sub(p[0])).Normalize()
		assert.InDelta(t, 1, face.Dot(n), 1e-5, "triangle %d", tri)
		assert.InDelta(t, 1, p[0].Dot(n), 1e-5, "triangle %d lies on its face", tri)
	}
}

func TestTransformMatrix(t *testing.T) {
	tr := Transform{Position: mgl32.Vec3{1, 2, 3}}
	assert.Equal(t, mgl32.Translate3D(1, 2, 3), tr.Matrix())
	assert.Equal(t, Identity().Matrix(), mgl32.Ident4())

	tr = Identity()
	tr.Rotation = mgl32.Vec3{0, 90, 0}
	p := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDeltaSlice(t, []float32{0, 0, -1, 1}, p[:], 1e-6)
}

func TestLabelDraws(t *testing.T) {
	rc, dev, _ := newTestContext()
	rc.SetSurface(320, 200)
	o := NewOrtho(0, 0, 320, 200)
	l := NewLabel(nil, 4, 4)
	l.SetText("hi")
	o.AddEntity(l.Entity, 0)
	require.NoError(t, o.Initialize(rc))

	o.Render(rc, PassLighting)
	require.Len(t, dev.Draws, 1)
	assert.Equal(t, soft.DrawQuads, dev.Draws[0].Kind)
	assert.EqualValues(t, 8, dev.Draws[0].Count)
	assert.NotZero(t, dev.Draws[0].Texture)
	assert.False(t, dev.IsEnabled(device.Blend))
	assert.False(t, dev.IsEnabled(device.Texture2D))

	n := 0
	l.SetTextFunc(func() string {
		n++
		return ""
	})
	dev.ResetLog()
	o.Render(rc, PassLighting)
	assert.Empty(t, dev.Draws)
	assert.Equal(t, 1, n)

	o.Dispose(rc)
	textures, _, _, _ := dev.Live()
	assert.Zero(t, textures)
}

func BenchmarkRenderTraversal(b *testing.B) {
	rc, dev, _ := newTestContext()
	rc.SetSurface(800, 600)
	view := NewViewport(0, 0, 800, 600)
	world := NewWorld()
	for i := range 100 {
		m := NewCube(1)
		m.State().Transform.Position = mgl32.Vec3{float32(i), 0, 0}
		world.AddEntity(m.Entity, i)
	}
	view.AddEntity(world.Entity, 0)
	if err := view.Initialize(rc); err != nil {
		b.Fatal(err)
	}

	for b.Loop() {
		dev.ResetLog()
		view.Render(rc, PassLighting)
	}
}
