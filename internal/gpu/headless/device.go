// Package headless is an in-process software implementation of gpu.Device.
//
// Transfers execute against host memory when a command buffer is submitted.
// Everything else is validated rather than rasterized: image layouts per mip
// level, render pass and subpass state, descriptor pool capacity, and the
// fence and semaphore protocol. Each synchronization operation is appended
// to an event log so callers can assert on ordering.
package headless

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type Options struct {
	// SwapchainImages is the number of images every swapchain is created
	// with, regardless of what the caller asks for. Defaults to 2.
	SwapchainImages int
	// Extent is the surface size. Defaults to 800x600.
	Extent core1_0.Extent2D
	// ColorSamples and DepthSamples are the framebuffer sample counts the
	// adapter advertises. Both default to 1 through 8.
	ColorSamples core1_0.SampleCountFlags
	DepthSamples core1_0.SampleCountFlags
	// OptimalFeatures overrides the optimal tiling features per format.
	// Formats absent from the map get defaultFeatures.
	OptimalFeatures map[core1_0.Format]core1_0.FormatFeatureFlags
	MaxAnisotropy   float32
	Logger          *log.Logger
}

func (o Options) withDefaults() Options {
	if o.SwapchainImages <= 0 {
		o.SwapchainImages = 2
	}
	if o.Extent.Width == 0 || o.Extent.Height == 0 {
		o.Extent = core1_0.Extent2D{Width: 800, Height: 600}
	}
	allSamples := core1_0.Samples1 | core1_0.Samples2 | core1_0.Samples4 | core1_0.Samples8
	if o.ColorSamples == 0 {
		o.ColorSamples = allSamples
	}
	if o.DepthSamples == 0 {
		o.DepthSamples = allSamples
	}
	if o.MaxAnisotropy == 0 {
		o.MaxAnisotropy = 16
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

const defaultFeatures = core1_0.FormatFeatureSampledImage |
	core1_0.FormatFeatureSampledImageFilterLinear |
	core1_0.FormatFeatureColorAttachment |
	core1_0.FormatFeatureDepthStencilAttachment

type EventKind int

const (
	EventAcquire EventKind = iota
	EventSubmit
	EventPresent
	EventFenceWait
	EventFenceReset
	EventFenceSignal
	EventSemaphoreSignal
	EventSemaphoreWait
)

var eventNames = map[EventKind]string{
	EventAcquire:         "acquire",
	EventSubmit:          "submit",
	EventPresent:         "present",
	EventFenceWait:       "fence-wait",
	EventFenceReset:      "fence-reset",
	EventFenceSignal:     "fence-signal",
	EventSemaphoreSignal: "semaphore-signal",
	EventSemaphoreWait:   "semaphore-wait",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one entry of the synchronization log. Object is the ID of the
// fence or semaphore involved; Image is the swapchain image index for
// acquire and present events and -1 otherwise.
type Event struct {
	Kind   EventKind
	Object uint64
	Image  int
}

func (e Event) String() string {
	if e.Image >= 0 {
		return fmt.Sprintf("%s(#%d, image %d)", e.Kind, e.Object, e.Image)
	}
	return fmt.Sprintf("%s(#%d)", e.Kind, e.Object)
}

// BlitRecord describes one executed blit, in execution order.
type BlitRecord struct {
	Image     gpu.Image
	SrcLevel  int
	DstLevel  int
	SrcExtent core1_0.Extent2D
	DstExtent core1_0.Extent2D
	Filter    core1_0.Filter
}

// DrawRecord describes one executed draw call.
type DrawRecord struct {
	Subpass  int
	Indexed  bool
	Count    int
	Pipeline gpu.Pipeline
	Push     []byte
}

type Device struct {
	opts   Options
	logger *log.Logger

	mu        sync.Mutex
	nextID    uint64
	live      map[uint64]string
	events    []Event
	blits     []BlitRecord
	draws     []DrawRecord
	submits   int
	destroyed bool

	surfaceExtent core1_0.Extent2D
	staleSurface  bool

	queue *queue
}

var _ gpu.Device = (*Device)(nil)

func New(opts Options) *Device {
	opts = opts.withDefaults()
	d := &Device{
		opts:          opts,
		logger:        opts.Logger,
		live:          map[uint64]string{},
		surfaceExtent: opts.Extent,
	}
	d.queue = &queue{dev: d}
	return d
}

// object is embedded in every resource the device hands out.
type object struct {
	id        uint64
	kind      string
	dev       *Device
	destroyed bool
}

func (d *Device) track(kind string) object {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.live[d.nextID] = kind
	return object{id: d.nextID, kind: kind, dev: d}
}

func (o *object) release() {
	if o.destroyed {
		return
	}
	o.destroyed = true
	o.dev.mu.Lock()
	delete(o.dev.live, o.id)
	o.dev.mu.Unlock()
}

func (o *object) ID() uint64 { return o.id }

// ObjectID returns the identifier the device assigned to v, or 0 when v was
// not created by a headless device.
func ObjectID(v any) uint64 {
	if o, ok := v.(interface{ ID() uint64 }); ok {
		return o.ID()
	}
	return 0
}

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), gpu.ErrInvalidUsage)
}

func (d *Device) record(kind EventKind, obj uint64, image int) {
	d.events = append(d.events, Event{Kind: kind, Object: obj, Image: image})
}

// Events returns a copy of the synchronization log.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

func (d *Device) ClearEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

func (d *Device) Blits() []BlitRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]BlitRecord(nil), d.blits...)
}

func (d *Device) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

func (d *Device) ClearDraws() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws = nil
}

// Submits is the number of successful queue submissions so far.
func (d *Device) Submits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

// Live counts objects that have been created and not destroyed, by kind.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := map[string]int{}
	for _, kind := range d.live {
		counts[kind]++
	}
	return counts
}

// LiveCount returns the number of live objects of one kind.
func (d *Device) LiveCount(kind string) int {
	return d.Live()[kind]
}

// Resize changes the surface extent and makes the next acquire report the
// swapchain as out of date.
func (d *Device) Resize(extent core1_0.Extent2D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surfaceExtent = extent
	d.staleSurface = true
}

func (d *Device) Adapter() gpu.AdapterInfo {
	return gpu.AdapterInfo{
		Name:                         "headless",
		FramebufferColorSampleCounts: d.opts.ColorSamples,
		FramebufferDepthSampleCounts: d.opts.DepthSamples,
		MaxSamplerAnisotropy:         d.opts.MaxAnisotropy,
	}
}

func (d *Device) FormatFeatures(format core1_0.Format, tiling core1_0.ImageTiling) core1_0.FormatFeatureFlags {
	if tiling == core1_0.ImageTilingLinear {
		return core1_0.FormatFeatureSampledImage
	}
	if features, ok := d.opts.OptimalFeatures[format]; ok {
		return features
	}
	return defaultFeatures
}

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	d.mu.Lock()
	extent := d.surfaceExtent
	d.mu.Unlock()
	return gpu.SurfaceSupport{
		MinImageCount:  d.opts.SwapchainImages,
		MaxImageCount:  d.opts.SwapchainImages,
		CurrentExtent:  extent,
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 16384, Height: 16384},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}, nil
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.queue }
func (d *Device) PresentQueue() gpu.Queue  { return d.queue }

func (d *Device) WaitIdle() error { return nil }

// Destroy logs any objects still alive. It does not fail: leak checks are
// made by tests through Live.
func (d *Device) Destroy() {
	leaked := d.Live()
	if len(leaked) == 0 {
		d.logger.Debug("headless device destroyed")
		return
	}
	kinds := make([]string, 0, len(leaked))
	for kind := range leaked {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		d.logger.Warn("object leaked at device destruction", "kind", kind, "count", leaked[kind])
	}
}
