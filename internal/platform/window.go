// Package platform owns the SDL2 window: creation, the event pump and the
// pieces of Vulkan setup that depend on the window system.
package platform

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"

	"github.com/vkngwrapper/deferred-renderer/internal/config"
)

type Window struct {
	window *sdl.Window
	logger *log.Logger
}

// Open initializes SDL video and creates a Vulkan-capable window.
func Open(cfg config.Window, logger *log.Logger) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	flags := uint32(sdl.WINDOW_SHOWN | sdl.WINDOW_VULKAN)
	if cfg.Resizable {
		flags |= sdl.WINDOW_RESIZABLE
	}
	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), flags)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrapf(err, "create %dx%d window", cfg.Width, cfg.Height)
	}
	logger.Debug("window open", "title", cfg.Title, "width", cfg.Width, "height", cfg.Height)
	return &Window{window: window, logger: logger}, nil
}

// Loader resolves Vulkan entry points through SDL's loader.
func (w *Window) Loader() (core.Loader, error) {
	loader, err := core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "create vulkan loader")
	}
	return loader, nil
}

// InstanceExtensions lists what the window system needs enabled on the
// instance to create a surface.
func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) CreateSurface(instance core1_0.Instance, ext khr_surface.Extension) (khr_surface.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(instance, ext, w.window)
	if err != nil {
		return nil, errors.Wrap(err, "create sdl surface")
	}
	return surface, nil
}

// FramebufferSize is the drawable size in pixels, zero while minimized.
func (w *Window) FramebufferSize() (width, height int) {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	wi, hi := w.window.VulkanGetDrawableSize()
	return int(wi), int(hi)
}

func (w *Window) Close() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
