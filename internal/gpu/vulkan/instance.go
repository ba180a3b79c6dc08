// Package vulkan implements gpu.Device on top of vkngwrapper. It owns the
// instance, the optional validation messenger, the presentation surface and
// the logical device, and translates the gpu interfaces one to one into
// core1_0 calls.
package vulkan

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// SurfaceFactory creates the presentation surface for a freshly created
// instance. The window system provides it.
type SurfaceFactory func(instance core1_0.Instance, ext khr_surface.Extension) (khr_surface.Surface, error)

type Options struct {
	ApplicationName string
	Validation      bool
	// InstanceExtensions are the extensions the window system requires.
	InstanceExtensions []string
	CreateSurface      SurfaceFactory
	// FramebufferSize is consulted when the surface leaves the swapchain
	// extent up to the application.
	FramebufferSize func() (width, height int)
	Logger          *log.Logger
}

// instanceCreateInfo checks every requested extension and layer against
// what the loader reports, by exact name.
func instanceCreateInfo(loader core.Loader, opts Options) (core1_0.InstanceCreateInfo, error) {
	info := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "deferred-renderer",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return info, errors.Wrap(err, "enumerate instance extensions")
	}
	required := append([]string{}, opts.InstanceExtensions...)
	if opts.Validation {
		required = append(required, ext_debug_utils.ExtensionName)
	}
	for _, ext := range required {
		if _, ok := extensions[ext]; !ok {
			return info, errors.Wrapf(gpu.ErrMissingExtension, "instance extension %s", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if !opts.Validation {
		return info, nil
	}

	layers, _, err := loader.AvailableLayers()
	if err != nil {
		return info, errors.Wrap(err, "enumerate instance layers")
	}
	for _, layer := range validationLayers {
		if _, ok := layers[layer]; !ok {
			return info, errors.Wrapf(gpu.ErrMissingLayer, "%s (install the Vulkan SDK or disable renderer.validation)", layer)
		}
		info.EnabledLayerNames = append(info.EnabledLayerNames, layer)
	}
	info.Next = debugMessengerCreateInfo(opts.Logger)
	return info, nil
}

func debugMessengerCreateInfo(logger *log.Logger) ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    debugCallback(logger),
	}
}

// debugCallback forwards validation output to logger. Info messages from the
// loader are only interesting at debug level.
func debugCallback(logger *log.Logger) func(ext_debug_utils.DebugUtilsMessageTypeFlags, ext_debug_utils.DebugUtilsMessageSeverityFlags, *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	return func(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
		level := messageLevel(severity)
		logger.Log(level, data.Message, "type", msgType.String())
		return false
	}
}

func messageLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) log.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return log.ErrorLevel
	case severity&ext_debug_utils.SeverityWarning != 0:
		return log.WarnLevel
	case severity&ext_debug_utils.SeverityInfo != 0:
		return log.DebugLevel
	}
	return log.DebugLevel
}
