package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/pkg/profile"
	"github.com/spf13/pflag"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/cg2go/renderer/asset"
	"github.com/cg2go/renderer/config"
	"github.com/cg2go/renderer/gpu/vk"
	"github.com/cg2go/renderer/render"
	"github.com/cg2go/renderer/scene"
	"github.com/cg2go/renderer/shader"
)

type CG2Application struct {
	cfg config.Config

	window   *sdl.Window
	factory  *vk.Factory
	renderer *render.Renderer
	scene    *scene.Scene
	sphere   *scene.Object
	tweaks   *tweaker

	start      time.Duration
	titleStart time.Duration
	titleFrame uint64
}

func (app *CG2Application) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}
	defer app.cleanup()

	err = app.initRenderer()
	if err != nil {
		return err
	}

	err = app.initScene()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *CG2Application) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(app.cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.Window.Width), int32(app.cfg.Window.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	app.window = window
	return nil
}

func (app *CG2Application) initRenderer() error {
	compiler := &shader.Compiler{
		Path:  app.cfg.DXC,
		SPIRV: true,
		Debug: app.cfg.Validation,
	}
	vs, ps, err := compiler.CompilePair(app.cfg.Shader("Object3d.VS.hlsl"), app.cfg.Shader("Object3d.PS.hlsl"))
	if err != nil {
		return err
	}

	app.factory, err = vk.NewFactory(app.window, app.cfg.Validation)
	if err != nil {
		return err
	}

	opts := app.cfg.Options()
	opts.VS, opts.PS = vs, ps
	opts.Decoder = asset.NewImageDecoder()
	app.renderer, err = render.New(app.factory, opts)
	return err
}

func (app *CG2Application) initScene() error {
	r := app.renderer
	alloc := r.Allocator()

	spriteTexture, err := r.LoadTexture(app.cfg.Asset(app.cfg.Assets.SpriteTexture))
	if err != nil {
		return err
	}
	sphereTexture, err := r.LoadTexture(app.cfg.Asset(app.cfg.Assets.SphereTexture))
	if err != nil {
		return err
	}

	model, err := asset.LoadObj(app.cfg.Assets.Dir, app.cfg.Assets.Model)
	if err != nil {
		return err
	}
	modelTexture := spriteTexture
	if model.TexturePath != "" {
		modelTexture, err = r.LoadTexture(model.TexturePath)
		if err != nil {
			return err
		}
	}

	// Uploads must land before the first frame samples them.
	if err := r.Flush(); err != nil {
		return err
	}

	light, err := scene.NewLight(alloc)
	if err != nil {
		return err
	}
	width, height := r.Size()
	app.scene = scene.New(light, width, height)

	app.sphere, err = scene.NewSphere(alloc, app.cfg.Subdivision)
	if err != nil {
		return err
	}
	app.sphere.Texture = sphereTexture
	app.sphere.Transform.Translate = mgl32.Vec3{-1.5, 0, 0}
	app.scene.Add(app.sphere)

	mesh, err := scene.NewModel(alloc, app.cfg.Assets.Model, model)
	if err != nil {
		return err
	}
	mesh.Texture = modelTexture
	mesh.Transform.Translate = mgl32.Vec3{1.5, 0, 0}
	app.scene.Add(mesh)

	sprite, err := scene.NewSprite(alloc, 320, 180)
	if err != nil {
		return err
	}
	sprite.Texture = spriteTexture
	app.scene.Add(sprite)

	app.tweaks = newTweaker(app.scene)
	return nil
}

func (app *CG2Application) mainLoop() error {
	app.start = hrtime.Now()
	app.titleStart = app.start

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.KeyboardEvent:
				if e.Type == sdl.KEYDOWN {
					if e.Keysym.Sym == sdl.K_ESCAPE {
						break appLoop
					}
					app.tweaks.apply(keyAction(e.Keysym.Sym))
				}
			}
		}

		err := app.drawFrame()
		if err != nil {
			return err
		}
	}

	return app.renderer.Flush()
}

func (app *CG2Application) drawFrame() error {
	if !app.tweaks.paused {
		seconds := hrtime.Since(app.start).Seconds()
		app.sphere.Transform.Rotate[1] = float32(seconds) * 0.5
	}
	app.scene.Update()

	cl, err := app.renderer.BeginFrame()
	if err != nil {
		return err
	}
	app.scene.Record(cl, app.renderer.Pipeline(), app.renderer.Textures())
	if err := app.renderer.EndFrame(); err != nil {
		return err
	}

	app.updateTitle()
	return nil
}

// updateTitle shows the frame rate of the last second in the title bar.
func (app *CG2Application) updateTitle() {
	stats := app.renderer.Stats()
	elapsed := hrtime.Since(app.titleStart)
	if elapsed < time.Second {
		return
	}
	fps := float64(stats.Frames-app.titleFrame) / elapsed.Seconds()
	app.window.SetTitle(fmt.Sprintf("%s - %.1f fps, %.2f ms cpu", app.cfg.Window.Title, fps, float64(stats.Last)/float64(time.Millisecond)))
	app.titleStart = hrtime.Now()
	app.titleFrame = stats.Frames
}

func keyAction(key sdl.Keycode) action {
	switch key {
	case sdl.K_TAB:
		return actionNextObject
	case sdl.K_LEFT:
		return actionRotateLeft
	case sdl.K_RIGHT:
		return actionRotateRight
	case sdl.K_UP:
		return actionRotateUp
	case sdl.K_DOWN:
		return actionRotateDown
	case sdl.K_a:
		return actionMoveLeft
	case sdl.K_d:
		return actionMoveRight
	case sdl.K_w:
		return actionMoveUp
	case sdl.K_s:
		return actionMoveDown
	case sdl.K_q:
		return actionMoveNear
	case sdl.K_e:
		return actionMoveFar
	case sdl.K_v:
		return actionToggleVisible
	case sdl.K_l:
		return actionToggleLighting
	case sdl.K_j:
		return actionLightLeft
	case sdl.K_k:
		return actionLightRight
	case sdl.K_MINUS:
		return actionLightDimmer
	case sdl.K_EQUALS:
		return actionLightBrighter
	case sdl.K_SPACE:
		return actionTogglePause
	}
	return actionNone
}

func (app *CG2Application) cleanup() {
	if app.renderer != nil {
		if err := app.renderer.Flush(); err != nil {
			log.Printf("Flush before shutdown: %+v", err)
		}
		if app.scene != nil {
			app.scene.Release()
		}
		if err := app.renderer.Close(); err != nil {
			log.Printf("Close renderer: %+v", err)
		}
	}

	if app.factory != nil {
		app.factory.Release()
	}

	if app.window != nil {
		app.window.Destroy()
	}
	sdl.Quit()
}

// run parses args, runs the application and returns the process exit
// code. Deferred cleanup, including the CPU profile, completes before it
// returns.
func run(args []string) int {
	flags := pflag.NewFlagSet("cg2", pflag.ContinueOnError)
	configPath := flags.String("config", "cg2.toml", "path of the TOML configuration file")
	cpuProfile := flags.Bool("profile", false, "write a CPU profile to the working directory")
	validation := flags.Bool("validation", false, "enable the Vulkan validation layer")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("%+v\n", err)
		return 1
	}
	if *validation {
		cfg.Validation = true
	}

	if *cpuProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	app := &CG2Application{cfg: cfg}

	err = app.Run()
	if err != nil {
		log.Printf("%+v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
