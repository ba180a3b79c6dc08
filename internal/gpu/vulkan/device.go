package vulkan

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/core/core1_2"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Device is a gpu.Device backed by a real Vulkan driver.
type Device struct {
	logger *log.Logger
	opts   Options

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surface        khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	adapter        gpu.AdapterInfo
	families       queueFamilies
	memoryTypes    []core1_0.MemoryType

	device       core1_0.Device
	device12     core1_2.Device
	swapchainExt khr_swapchain.Extension

	graphics *queue
	present  *queue
}

var _ gpu.Device = (*Device)(nil)

// New creates the instance, surface and logical device. On failure every
// object created so far is destroyed again.
func New(loader core.Loader, opts Options) (_ *Device, err error) {
	if opts.CreateSurface == nil {
		return nil, errors.New("vulkan: no surface factory")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	d := &Device{logger: opts.Logger, opts: opts}
	defer func() {
		if err != nil {
			d.Destroy()
		}
	}()

	info, err := instanceCreateInfo(loader, opts)
	if err != nil {
		return nil, err
	}
	d.instance, _, err = loader.CreateInstance(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create instance")
	}

	if opts.Validation {
		debugLoader := ext_debug_utils.CreateExtensionFromInstance(d.instance)
		d.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(d.instance, nil, debugMessengerCreateInfo(d.logger))
		if err != nil {
			return nil, errors.Wrap(err, "create debug messenger")
		}
	}

	d.surface, err = opts.CreateSurface(d.instance, khr_surface.CreateExtensionFromInstance(d.instance))
	if err != nil {
		return nil, errors.Wrap(err, "create surface")
	}

	if err := d.pickPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	d.logger.Info("selected adapter", "name", d.adapter.Name,
		"graphics_family", d.families.graphics, "present_family", d.families.present)
	return d, nil
}

type queueFamilies struct {
	graphics, present int
}

func (f queueFamilies) unique() []int {
	if f.graphics == f.present {
		return []int{f.graphics}
	}
	return []int{f.graphics, f.present}
}

// candidate is what adapter selection knows about one physical device.
type candidate struct {
	index    int
	name     string
	discrete bool
	suitable bool
}

// chooseAdapter returns the first suitable discrete device, else the first
// suitable device of any kind.
func chooseAdapter(candidates []candidate) (int, bool) {
	best := -1
	for _, c := range candidates {
		if !c.suitable {
			continue
		}
		if c.discrete {
			return c.index, true
		}
		if best < 0 {
			best = c.index
		}
	}
	return best, best >= 0
}

func (d *Device) pickPhysicalDevice() error {
	physicalDevices, _, err := d.instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	candidates := make([]candidate, len(physicalDevices))
	for i, pd := range physicalDevices {
		candidates[i] = candidate{index: i}
		props, err := pd.Properties()
		if err != nil {
			d.logger.Warn("skipping physical device", "index", i, "err", err)
			continue
		}
		candidates[i].name = props.DeviceName
		candidates[i].discrete = props.DriverType == core1_0.PhysicalDeviceTypeDiscreteGPU
		candidates[i].suitable = props.APIVersion.IsAtLeast(common.Vulkan1_2) && d.isDeviceSuitable(pd)
		d.logger.Debug("physical device", "name", props.DeviceName, "suitable", candidates[i].suitable)
	}

	idx, ok := chooseAdapter(candidates)
	if !ok {
		return errors.Wrapf(gpu.ErrNoSuitableDevice, "none of %d devices supports graphics, presentation and anisotropic sampling", len(physicalDevices))
	}

	pd := physicalDevices[idx]
	props, err := pd.Properties()
	if err != nil {
		return errors.Wrap(err, "read adapter properties")
	}
	families, _ := d.findQueueFamilies(pd)

	d.physicalDevice = pd
	d.families = families
	d.memoryTypes = pd.MemoryProperties().MemoryTypes
	d.adapter = gpu.AdapterInfo{
		Name:                         props.DeviceName,
		FramebufferColorSampleCounts: props.Limits.FramebufferColorSampleCounts,
		FramebufferDepthSampleCounts: props.Limits.FramebufferDepthSampleCounts,
		MaxSamplerAnisotropy:         props.Limits.MaxSamplerAnisotropy,
	}
	return nil
}

func (d *Device) isDeviceSuitable(pd core1_0.PhysicalDevice) bool {
	if _, ok := d.findQueueFamilies(pd); !ok {
		return false
	}
	if !hasDeviceExtensions(pd) {
		return false
	}
	formats, _, err := d.surface.PhysicalDeviceSurfaceFormats(pd)
	if err != nil || len(formats) == 0 {
		return false
	}
	modes, _, err := d.surface.PhysicalDeviceSurfacePresentModes(pd)
	if err != nil || len(modes) == 0 {
		return false
	}
	return pd.Features().SamplerAnisotropy
}

func hasDeviceExtensions(pd core1_0.PhysicalDevice) bool {
	extensions, _, err := pd.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}
	for _, ext := range deviceExtensions {
		if _, ok := extensions[ext]; !ok {
			return false
		}
	}
	return true
}

// findQueueFamilies prefers a single family that can both draw and present.
func (d *Device) findQueueFamilies(pd core1_0.PhysicalDevice) (queueFamilies, bool) {
	graphics, present := -1, -1
	for idx, family := range pd.QueueFamilyProperties() {
		isGraphics := family.QueueFlags&core1_0.QueueGraphics != 0
		supported, _, err := d.surface.PhysicalDeviceSurfaceSupport(pd, idx)
		if err != nil {
			return queueFamilies{}, false
		}
		if isGraphics && supported {
			return queueFamilies{graphics: idx, present: idx}, true
		}
		if isGraphics && graphics < 0 {
			graphics = idx
		}
		if supported && present < 0 {
			present = idx
		}
	}
	return queueFamilies{graphics: graphics, present: present}, graphics >= 0 && present >= 0
}

func (d *Device) createLogicalDevice() error {
	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range d.families.unique() {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)
	extensions, _, err := d.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}
	// Portability implementations such as MoltenVK must have it enabled.
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.device, _, err = d.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueInfos,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	d.device12 = core1_2.PromoteDevice(d.device)
	if d.device12 == nil {
		return errors.Wrap(gpu.ErrNoSuitableDevice, "device does not expose Vulkan 1.2")
	}
	d.swapchainExt = khr_swapchain.CreateExtensionFromDevice(d.device)
	d.graphics = &queue{dev: d, queue: d.device.GetQueue(d.families.graphics, 0)}
	d.present = &queue{dev: d, queue: d.device.GetQueue(d.families.present, 0)}
	return nil
}

func (d *Device) Adapter() gpu.AdapterInfo { return d.adapter }

func (d *Device) FormatFeatures(format core1_0.Format, tiling core1_0.ImageTiling) core1_0.FormatFeatureFlags {
	props := d.physicalDevice.FormatProperties(format)
	if tiling == core1_0.ImageTilingLinear {
		return props.LinearTilingFeatures
	}
	return props.OptimalTilingFeatures
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	caps, _, err := d.surface.PhysicalDeviceSurfaceCapabilities(d.physicalDevice)
	if err != nil {
		return gpu.SurfaceSupport{}, errors.Wrap(err, "surface capabilities")
	}
	formats, _, err := d.surface.PhysicalDeviceSurfaceFormats(d.physicalDevice)
	if err != nil {
		return gpu.SurfaceSupport{}, errors.Wrap(err, "surface formats")
	}
	modes, _, err := d.surface.PhysicalDeviceSurfacePresentModes(d.physicalDevice)
	if err != nil {
		return gpu.SurfaceSupport{}, errors.Wrap(err, "surface present modes")
	}

	current := caps.CurrentExtent
	if current.Width == -1 && d.opts.FramebufferSize != nil {
		w, h := d.opts.FramebufferSize()
		current = core1_0.Extent2D{Width: w, Height: h}
	}
	return gpu.SurfaceSupport{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  current,
		MinImageExtent: caps.MinImageExtent,
		MaxImageExtent: caps.MaxImageExtent,
		Formats:        formats,
		PresentModes:   modes,
	}, nil
}

// findMemoryType returns the first type allowed by typeFilter that has every
// flag in properties.
func findMemoryType(types []core1_0.MemoryType, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range types {
		typeBit := uint32(1 << i)
		if typeFilter&typeBit != 0 && memoryType.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Wrapf(gpu.ErrNoMemoryType, "filter %b, properties %s", typeFilter, properties)
}

func (d *Device) allocate(reqs *core1_0.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	typeIndex, err := findMemoryType(d.memoryTypes, reqs.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}
	memory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes", reqs.Size)
	}
	return memory, nil
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphics }
func (d *Device) PresentQueue() gpu.Queue  { return d.present }

func (d *Device) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return errors.Wrap(err, "device wait idle")
}

// Destroy tears down the device, surface and instance. Objects created from
// the device must already be destroyed.
func (d *Device) Destroy() {
	if d.device != nil {
		d.device.Destroy(nil)
		d.device = nil
	}
	if d.debugMessenger != nil {
		d.debugMessenger.Destroy(nil)
		d.debugMessenger = nil
	}
	if d.surface != nil {
		d.surface.Destroy(nil)
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Destroy(nil)
		d.instance = nil
	}
}
