package main

import (
	"testing"
	"time"

	"shadowstage/internal/config"
	"shadowstage/internal/graphics/device"
	"shadowstage/internal/graphics/device/soft"
	"shadowstage/internal/graphics/renderer"
	"shadowstage/internal/input"
	"shadowstage/internal/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOptionsFromConfig(t *testing.T) {
	c := config.Default().Shadow
	c.Passes = []string{"composite", "shadowmap"}
	c.Filter = "nearest"
	c.Size = 1024
	c.Depth = 8
	c.Darkness = 0.25

	opts := stageOptions(c)
	assert.Equal(t, []scene.Pass{scene.PassShadowTest, scene.PassShadowMap}, opts.Passes)
	assert.Equal(t, device.Nearest, opts.Filter)
	assert.EqualValues(t, 1024, opts.ShadowSize)
	assert.Equal(t, 8, opts.ShadowBPP)
	assert.InDelta(t, 0.25, opts.Darkness, 1e-6)

	assert.Equal(t, device.Linear, stageOptions(config.Default().Shadow).Filter)
}

func TestDemoScene(t *testing.T) {
	cfg := config.Default()
	dev := soft.New(soft.WithViewport(device.Rect{Width: 1000, Height: 600}))
	r := renderer.New(dev, 1000, 600, nil)
	d := buildScene(r, cfg)
	t.Cleanup(r.Dispose)

	r.Events().Push(input.ResizeEvent(1000, 600))
	for range 61 {
		require.NoError(t, r.Frame(time.Second/60))
	}
	assert.NotNil(t, r.FindEntity("cube.red"))
	assert.InDelta(t, 45*61.0/60, d.spinner.State().Transform.Rotation.Y(), 1e-3)
	assert.InDelta(t, 60, d.fps, 1)
	assert.True(t, d.hud.Visible())

	r.Events().Push(input.KeyDownEvent(input.KeyF1))
	require.NoError(t, r.Frame(0))
	assert.False(t, d.hud.Visible())
	assert.False(t, r.Terminated())
}

func TestRunHeadless(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, runHeadless(cfg, 3))

	cfg.Shadow.Passes = []string{"lighting"}
	require.NoError(t, runHeadless(cfg, 2))
	assert.Zero(t, scene.LightUnits.InUse())
}
