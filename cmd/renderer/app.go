package main

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/config"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu/headless"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu/vulkan"
	"github.com/vkngwrapper/deferred-renderer/internal/logging"
	"github.com/vkngwrapper/deferred-renderer/internal/platform"
	"github.com/vkngwrapper/deferred-renderer/internal/render"
	"github.com/vkngwrapper/deferred-renderer/internal/watch"
)

// errInit marks failures that happen before the first frame.
var errInit = errors.New("initialization failed")

func initErr(err error) error {
	return errors.Mark(err, errInit)
}

type fixedSurface core1_0.Extent2D

func (s fixedSurface) FramebufferSize() (int, int) { return s.Width, s.Height }

type application struct {
	cfg    config.Config
	logger *log.Logger

	headless bool
	frames   int

	window   *platform.Window
	ctx      *render.DeviceContext
	renderer *render.Renderer
	watcher  *watch.Watcher

	placements []placement
	start      time.Duration
}

func (app *application) Run() error {
	defer app.cleanup()

	if err := app.initRenderer(); err != nil {
		return initErr(err)
	}
	if err := app.loadScene(); err != nil {
		return initErr(err)
	}
	if app.cfg.Assets.WatchShaders {
		w, err := watch.New(app.cfg.Assets.ShaderDir, func(string) {
			app.renderer.MarkPipelinesStale()
		}, logging.Component(app.logger, "watch"))
		if err != nil {
			return initErr(err)
		}
		app.watcher = w
	}

	if app.headless {
		return app.runFrames()
	}
	return app.mainLoop()
}

func (app *application) createDevice() (gpu.Device, render.Surface, error) {
	gpuLogger := logging.Component(app.logger, "gpu")
	if app.headless {
		extent := core1_0.Extent2D{Width: app.cfg.Window.Width, Height: app.cfg.Window.Height}
		dev := headless.New(headless.Options{Extent: extent, Logger: gpuLogger})
		return dev, fixedSurface(extent), nil
	}

	window, err := platform.Open(app.cfg.Window, logging.Component(app.logger, "window"))
	if err != nil {
		return nil, nil, err
	}
	app.window = window

	loader, err := window.Loader()
	if err != nil {
		return nil, nil, err
	}
	dev, err := vulkan.New(loader, vulkan.Options{
		ApplicationName:    app.cfg.Window.Title,
		Validation:         app.cfg.Renderer.Validation,
		InstanceExtensions: window.InstanceExtensions(),
		CreateSurface:      window.CreateSurface,
		FramebufferSize:    window.FramebufferSize,
		Logger:             gpuLogger,
	})
	if err != nil {
		return nil, nil, err
	}
	return dev, window, nil
}

func (app *application) initRenderer() error {
	dev, surface, err := app.createDevice()
	if err != nil {
		return err
	}
	app.ctx, err = render.NewDeviceContext(dev, app.logger)
	if err != nil {
		dev.Destroy()
		return err
	}

	app.renderer, err = render.New(app.ctx, app.cfg, render.Deps{
		Shaders: assets.NewShaderDir(app.cfg.Assets.ShaderDir),
		Surface: surface,
		Logger:  logging.Component(app.logger, "render"),
	})
	if err != nil {
		return err
	}
	return app.renderer.Init()
}

func (app *application) loadScene() error {
	for _, m := range app.cfg.Assets.Models {
		id, err := app.renderer.LoadModel(m.Path)
		if err != nil {
			return errors.Wrapf(err, "load model %s", m.Path)
		}
		p := placement{id: id, model: m}
		if err := app.renderer.UpdateModelTransform(id, p.transform(0)); err != nil {
			return err
		}
		app.placements = append(app.placements, p)
		app.logger.Info("model loaded", "path", m.Path, "id", id)
	}
	return nil
}

func (app *application) animate() error {
	elapsed := hrtime.Since(app.start)
	for _, p := range app.placements {
		if !p.spins() {
			continue
		}
		if err := app.renderer.UpdateModelTransform(p.id, p.transform(elapsed)); err != nil {
			return err
		}
	}
	return nil
}

func (app *application) drawFrame() error {
	if err := app.animate(); err != nil {
		return err
	}
	return app.renderer.DrawFrame()
}

// runFrames draws a fixed number of frames without a window.
func (app *application) runFrames() error {
	app.start = hrtime.Now()
	for i := 0; i < app.frames; i++ {
		if err := app.drawFrame(); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
	}
	app.logger.Info("headless run complete", "frames", app.renderer.FramesDrawn(), "elapsed", hrtime.Since(app.start))
	return nil
}

func (app *application) mainLoop() error {
	app.start = hrtime.Now()
	rendering := true
	for {
		events := app.window.PollEvents()
		if events.Quit {
			return nil
		}
		if events.Minimized {
			rendering = false
		}
		if events.Restored {
			rendering = true
		}
		if events.Resized {
			w, h := app.window.FramebufferSize()
			rendering = w > 0 && h > 0
			if rendering {
				if err := app.renderer.SurfaceChanged(); err != nil {
					return err
				}
			}
		}

		if rendering {
			if err := app.drawFrame(); err != nil {
				return err
			}
		}
	}
}

// cleanup releases everything in reverse order of creation. The renderer
// waits for the device to go idle before tearing down.
func (app *application) cleanup() {
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.logger.Warn("closing shader watcher", "err", err)
		}
	}
	if app.renderer != nil {
		if err := app.renderer.Shutdown(); err != nil {
			app.logger.Error("renderer shutdown", "err", err)
		}
	}
	if app.ctx != nil {
		app.ctx.Destroy()
	}
	if app.window != nil {
		app.window.Close()
	}
}
