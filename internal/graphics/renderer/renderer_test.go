package renderer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shadowstage/internal/graphics/device"
	"shadowstage/internal/graphics/device/soft"
	"shadowstage/internal/input"
	"shadowstage/internal/scene"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyNode consumes one key and counts the events it saw.
type keyNode struct {
	*scene.Entity
	scene.BaseHooks

	key     input.Key
	seen    int
	resized int
	initErr error
}

func newKeyNode(key input.Key) *keyNode {
	n := &keyNode{key: key}
	n.Entity = scene.NewEntity(n, nil)
	return n
}

func (n *keyNode) DoInitialize(rc *scene.Context, e *scene.Entity) error {
	if n.initErr != nil {
		return n.initErr
	}
	e.Subscribe(rc)
	return nil
}

func (n *keyNode) DoHandleEvent(ev input.Event) bool {
	if ev.Kind == input.Resize {
		n.resized++
		return false
	}
	n.seen++
	return ev.Kind == input.KeyDown && ev.Key == n.key
}

func TestQuitDefaults(t *testing.T) {
	for name, ev := range map[string]input.Event{
		"escape": input.KeyDownEvent(input.KeyEscape),
		"start":  {Kind: input.ButtonDown, Button: input.ButtonStart},
		"quit":   input.QuitEvent(),
	} {
		t.Run(name, func(t *testing.T) {
			r := New(soft.New(), 640, 480, nil)
			assert.False(t, r.HandleEvent(ev))
			assert.True(t, r.Terminated())
		})
	}

	r := New(soft.New(), 640, 480, nil)
	r.HandleEvent(input.KeyUpEvent(input.KeyEscape))
	r.HandleEvent(input.KeyDownEvent(input.KeySpace))
	assert.False(t, r.Terminated())
}

func TestHandledEventsShortCircuit(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	first := newKeyNode(input.KeyEscape)
	second := newKeyNode(input.KeySpace)
	r.AddEntity(first.Entity, 0)
	r.AddEntity(second.Entity, 1)
	require.NoError(t, r.Frame(0))

	var handled []input.Key
	r.AddEventHandler(func(ev input.Event) bool {
		handled = append(handled, ev.Key)
		return ev.Key == input.KeyEnter
	})

	assert.True(t, r.HandleEvent(input.KeyDownEvent(input.KeyEscape)))
	assert.False(t, r.Terminated(), "a consumed escape does not quit")
	assert.Equal(t, 1, first.seen)
	assert.Zero(t, second.seen)
	assert.Empty(t, handled)

	assert.True(t, r.HandleEvent(input.KeyDownEvent(input.KeyEnter)))
	assert.Equal(t, 2, first.seen)
	assert.Equal(t, 1, second.seen)
	assert.Equal(t, []input.Key{input.KeyEnter}, handled)
}

func TestResizeReachesEveryEntityOnce(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	shared := newKeyNode(input.KeyUnknown)
	a := scene.NewEntity(nil, nil)
	b := scene.NewEntity(nil, nil)
	a.AddEntity(shared.Entity, 0)
	b.AddEntity(shared.Entity, 0)
	r.AddEntity(a, 0)
	r.AddEntity(b, 1)

	// Pending entities get the resize too.
	assert.False(t, r.HandleEvent(input.ResizeEvent(1024, 768)))
	assert.Equal(t, 1, shared.resized)
	assert.EqualValues(t, 1024, r.Context().SurfaceWidth)
	assert.EqualValues(t, 768, r.Context().SurfaceHeight)

	require.NoError(t, r.Frame(0))
	r.HandleEvent(input.ResizeEvent(800, 600))
	assert.Equal(t, 2, shared.resized)
}

func TestResizeReachesDisabledViews(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	stage := scene.NewStage(scene.NewCamera(30, 20, 0, nil), scene.NewWorld(), nil, scene.StageOptions{})
	r.AddEntity(stage.Entity, 0)
	require.NoError(t, r.Frame(0))

	stage.SetEnabled(false)
	r.HandleEvent(input.ResizeEvent(1000, 600))
	stage.SetEnabled(true)
	assert.Equal(t, device.Rect{Width: 800, Height: 600}, stage.Main().Rect())
	assert.Equal(t, device.Rect{Width: 1000, Height: 600}, stage.Overlay().Rect())
}

func TestFrameOrder(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	var log []string
	r.AddEventHandler(func(ev input.Event) bool {
		log = append(log, "event")
		return false
	})
	tok := r.RegisterUpdateFunction(func(time.Duration) { log = append(log, "update1") })
	r.RegisterUpdateFunction(func(elapsed time.Duration) {
		log = append(log, "update2")
		assert.Equal(t, 16*time.Millisecond, elapsed)
	})

	r.Events().Push(input.KeyDownEvent(input.KeySpace))
	require.NoError(t, r.Frame(16*time.Millisecond))
	assert.Equal(t, []string{"event", "update1", "update2"}, log)
	assert.EqualValues(t, 1, r.Frames())

	log = nil
	r.UnRegisterUpdateFunction(tok)
	r.UnRegisterUpdateFunction(tok)
	require.NoError(t, r.Frame(16*time.Millisecond))
	assert.Equal(t, []string{"update2"}, log)
}

func TestUnregisterDuringUpdate(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	var second scene.UpdateToken
	calls := 0
	r.RegisterUpdateFunction(func(time.Duration) { r.UnRegisterUpdateFunction(second) })
	second = r.RegisterUpdateFunction(func(time.Duration) { calls++ })

	require.NoError(t, r.Frame(0))
	assert.Zero(t, calls)
}

func TestEntityLifecycleAcrossFrames(t *testing.T) {
	dev := soft.New()
	r := New(dev, 640, 480, nil)
	cube := scene.NewCube(1)
	cube.SetName("cube")
	node := newKeyNode(input.KeySpace)
	cube.AddEntity(node.Entity, 0)
	r.AddEntity(cube.Entity, 0)

	require.NoError(t, r.Frame(0))
	assert.Equal(t, scene.Ready, cube.InitState())
	assert.Len(t, dev.Draws, 1)
	assert.Same(t, cube.Entity, r.FindEntity("cube"))

	cube.Destroy()
	dev.ResetLog()
	require.NoError(t, r.Frame(0))
	assert.Empty(t, dev.Draws)
	assert.Empty(t, r.Root().Children())
	assert.False(t, r.HandleEvent(input.KeyDownEvent(input.KeySpace)), "unsubscribed on removal")
	_, _, _, buffers := dev.Live()
	assert.Zero(t, buffers)
}

func TestFrameReturnsInitializeError(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	bad := newKeyNode(input.KeySpace)
	bad.initErr = device.ErrAllocation
	r.AddEntity(bad.Entity, 0)

	err := r.Run(t.Context(), nil)
	assert.ErrorIs(t, err, device.ErrAllocation)
	assert.True(t, r.Terminated())
}

func TestRunUntilTerminated(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	presents := 0
	err := r.Run(t.Context(), func() error {
		presents++
		if presents == 3 {
			r.Events().Push(input.QuitEvent())
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, presents, "the queued quit is handled by the next frame")
	assert.EqualValues(t, 4, r.Frames())
}

func TestRunStopsOnCancelAndPresentError(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, nil), context.Canceled)

	errLost := errors.New("context lost")
	r = New(soft.New(), 640, 480, nil)
	err := r.Run(t.Context(), func() error { return errLost })
	assert.ErrorIs(t, err, errLost)
	assert.EqualValues(t, 1, r.Frames())
}

func TestEventsFromOtherGoroutines(t *testing.T) {
	r := New(soft.New(), 640, 480, nil)
	var mu sync.Mutex
	seen := 0
	r.AddEventHandler(func(input.Event) bool {
		mu.Lock()
		seen++
		mu.Unlock()
		return true
	})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				r.Events().Push(input.KeyDownEvent(input.KeySpace))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, r.Frame(0))
	assert.Equal(t, 100, seen)
}

func TestStageThroughRenderer(t *testing.T) {
	dev := soft.New(soft.WithViewport(device.Rect{Width: 1000, Height: 600}))
	r := New(dev, 1000, 600, nil)

	world := scene.NewWorld()
	light := scene.NewLight()
	t.Cleanup(light.Release)
	light.State().Transform.Position = mgl32.Vec3{0, 0, 20}
	world.AddLight(light, 0)
	world.AddEntity(scene.NewCube(2).Entity, 10)
	cam := scene.NewCamera(30, 20, 0, nil)
	stage := scene.NewStage(cam, world, nil, scene.StageOptions{})
	r.AddEntity(stage.Entity, 0)

	r.Events().Push(input.ResizeEvent(1000, 600))
	require.NoError(t, r.Frame(0))

	// The camera subscribed during the first frame's initialization.
	r.Events().Push(input.KeyDownEvent(input.KeyArrowRight))
	dev.ResetLog()
	require.NoError(t, r.Frame(100*time.Millisecond))

	assert.Equal(t, device.Rect{Width: 800, Height: 600}, stage.Main().Rect())
	assert.InDelta(t, 9, cam.Yaw(), 1e-4)
	assert.Len(t, dev.Draws, 5)
	assert.True(t, r.Context().Balanced())
	assert.NotEmpty(t, r.Timings())

	r.Dispose()
	textures, fbs, _, buffers := dev.Live()
	assert.Zero(t, textures)
	assert.Zero(t, fbs)
	assert.Zero(t, buffers)
}
