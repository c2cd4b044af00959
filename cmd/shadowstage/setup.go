package main

import (
	"fmt"
	"time"

	"shadowstage/internal/config"
	"shadowstage/internal/graphics/device"
	"shadowstage/internal/graphics/renderer"
	"shadowstage/internal/input"
	"shadowstage/internal/scene"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

var passByName = map[string]scene.Pass{
	"shadowmap": scene.PassShadowMap,
	"lighting":  scene.PassLighting,
	"composite": scene.PassShadowTest,
}

// stageOptions translates the shadow section of the configuration.
func stageOptions(c config.ShadowConfig) scene.StageOptions {
	opts := scene.DefaultStageOptions()
	opts.Passes = opts.Passes[:0]
	for _, name := range c.Passes {
		if p, ok := passByName[name]; ok {
			opts.Passes = append(opts.Passes, p)
		}
	}
	opts.ShadowSize = int32(c.Size)
	opts.ShadowBPP = c.Depth
	opts.Darkness = c.Darkness
	if c.Filter == "nearest" {
		opts.Filter = device.Nearest
	}
	return opts
}

// demo is the scene the binary shows: a few cubes over a floor, one light
// and a HUD.
type demo struct {
	stage   *scene.Stage
	hud     *scene.Ortho
	spinner *scene.Mesh

	fps     float32
	counted int
	window  time.Duration
}

func buildScene(r *renderer.Renderer, cfg config.Config) *demo {
	d := &demo{}

	world := scene.NewWorld()
	world.SetName("world")

	light := scene.NewLight()
	light.SetName("light")
	light.State().Transform.Position = mgl32.Vec3{0, 15, 10}
	light.State().Transform.Rotation = mgl32.Vec3{-55, 0, 0}
	world.AddLight(light, 0)

	floor := scene.NewPlane(40)
	floor.SetName("floor")
	floor.Color = mgl32.Vec4{0.6, 0.6, 0.6, 1}
	floor.State().Transform.Position = mgl32.Vec3{0, -2, 0}
	world.AddEntity(floor.Entity, 10)

	cubes := []struct {
		name  string
		size  float32
		pos   mgl32.Vec3
		color mgl32.Vec4
	}{
		{"cube.red", 4, mgl32.Vec3{0, 1, 0}, mgl32.Vec4{0.9, 0.2, 0.2, 1}},
		{"cube.green", 2, mgl32.Vec3{-7, 0, 3}, mgl32.Vec4{0.2, 0.8, 0.3, 1}},
		{"cube.blue", 3, mgl32.Vec3{6, 0.5, -4}, mgl32.Vec4{0.2, 0.4, 0.9, 1}},
	}
	for i, c := range cubes {
		m := scene.NewCube(c.size)
		m.SetName(c.name)
		m.Color = c.color
		m.State().Transform.Position = c.pos
		world.AddEntity(m.Entity, 20+i)
		if i == 0 {
			d.spinner = m
		}
	}

	cam := scene.NewCamera(cfg.Camera.Distance, cfg.Camera.Pitch, cfg.Camera.Yaw, r.Bindings())
	cam.RotateSpeed = cfg.Camera.RotateSpeed
	cam.ZoomSpeed = cfg.Camera.ZoomSpeed

	d.hud = scene.NewOrtho(0, 0, int32(cfg.Window.Width), int32(cfg.Window.Height))
	fps := scene.NewLabel(nil, 8, 8)
	fps.SetTextFunc(func() string {
		return fmt.Sprintf("%.1f fps  frame %d", d.fps, r.Frames())
	})
	timings := scene.NewLabel(nil, 8, 24)
	timings.Color = mgl32.Vec4{0.8, 0.8, 0.5, 1}
	timings.SetTextFunc(r.Timings)
	help := scene.NewLabel(nil, 8, 40)
	help.Color = mgl32.Vec4{0.7, 0.7, 0.7, 1}
	help.SetText("arrows rotate  pgup/pgdn zoom  home reset  f1 hud  esc quit")
	d.hud.AddEntity(fps.Entity, 10)
	d.hud.AddEntity(timings.Entity, 20)
	d.hud.AddEntity(help.Entity, 30)
	d.hud.SetVisible(cfg.Render.HUD)

	d.stage = scene.NewStage(cam, world, d.hud, stageOptions(cfg.Shadow))
	r.AddEntity(d.stage.Entity, 0)

	r.RegisterUpdateFunction(d.update)
	r.AddEventHandler(func(ev input.Event) bool {
		if ev.Kind != input.KeyDown && ev.Kind != input.ButtonDown {
			return false
		}
		if !r.Bindings().Bound(ev, input.ActionToggleHUD) {
			return false
		}
		d.hud.SetVisible(!d.hud.Visible())
		return true
	})
	return d
}

// update spins the red cube and refreshes the frame rate once a second.
func (d *demo) update(elapsed time.Duration) {
	rot := &d.spinner.State().Transform.Rotation
	rot[1] = math32.Mod(rot[1]+45*float32(elapsed.Seconds()), 360)

	d.counted++
	d.window += elapsed
	if d.window >= time.Second {
		d.fps = float32(d.counted) / float32(d.window.Seconds())
		d.counted, d.window = 0, 0
	}
}
