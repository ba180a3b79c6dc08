package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type semaphore struct {
	semaphore core1_0.Semaphore
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	s, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &semaphore{semaphore: s}, nil
}

func (s *semaphore) Destroy() { s.semaphore.Destroy(nil) }

type fence struct {
	fence core1_0.Fence
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	f, _, err := d.device.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &fence{fence: f}, nil
}

func (f *fence) Destroy() { f.fence.Destroy(nil) }

func rawFences(fences []gpu.Fence) ([]core1_0.Fence, error) {
	raw := make([]core1_0.Fence, len(fences))
	for i, f := range fences {
		fc, ok := f.(*fence)
		if !ok {
			return nil, foreign("fence", f)
		}
		raw[i] = fc.fence
	}
	return raw, nil
}

func rawSemaphores(sems []gpu.Semaphore) ([]core1_0.Semaphore, error) {
	raw := make([]core1_0.Semaphore, len(sems))
	for i, s := range sems {
		sm, ok := s.(*semaphore)
		if !ok {
			return nil, foreign("semaphore", s)
		}
		raw[i] = sm.semaphore
	}
	return raw, nil
}

func (d *Device) WaitForFences(fences ...gpu.Fence) error {
	raw, err := rawFences(fences)
	if err != nil {
		return err
	}
	_, err = d.device.WaitForFences(true, common.NoTimeout, raw)
	return errors.Wrap(err, "wait for fences")
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	raw, err := rawFences(fences)
	if err != nil {
		return err
	}
	_, err = d.device.ResetFences(raw)
	return errors.Wrap(err, "reset fences")
}

type queue struct {
	dev   *Device
	queue core1_0.Queue
}

func (q *queue) WaitIdle() error {
	_, err := q.queue.WaitIdle()
	return errors.Wrap(err, "queue wait idle")
}

func (q *queue) Submit(f gpu.Fence, submits ...gpu.SubmitInfo) error {
	var raw core1_0.Fence
	if f != nil {
		fc, ok := f.(*fence)
		if !ok {
			return foreign("fence", f)
		}
		raw = fc.fence
	}

	infos := make([]core1_0.SubmitInfo, 0, len(submits))
	for _, s := range submits {
		wait, err := rawSemaphores(s.WaitSemaphores)
		if err != nil {
			return err
		}
		signal, err := rawSemaphores(s.SignalSemaphores)
		if err != nil {
			return err
		}
		buffers := make([]core1_0.CommandBuffer, len(s.CommandBuffers))
		for i, b := range s.CommandBuffers {
			cb, ok := b.(*commandBuffer)
			if !ok {
				return foreign("command buffer", b)
			}
			buffers[i] = cb.buffer
		}
		infos = append(infos, core1_0.SubmitInfo{
			WaitSemaphores:   wait,
			WaitDstStageMask: s.WaitStages,
			CommandBuffers:   buffers,
			SignalSemaphores: signal,
		})
	}

	_, err := q.queue.Submit(raw, infos)
	return errors.Wrap(err, "queue submit")
}

func (q *queue) Present(info gpu.PresentInfo) error {
	sc, ok := info.Swapchain.(*swapchain)
	if !ok {
		return foreign("swapchain", info.Swapchain)
	}
	wait, err := rawSemaphores(info.WaitSemaphores)
	if err != nil {
		return err
	}
	res, err := q.dev.swapchainExt.QueuePresent(q.queue, khr_swapchain.PresentInfo{
		WaitSemaphores: wait,
		Swapchains:     []khr_swapchain.Swapchain{sc.swapchain},
		ImageIndices:   []int{info.ImageIndex},
	})
	return presentResult(res, err)
}

// presentResult maps the swapchain status codes onto the gpu sentinels.
// Suboptimal is a success code, so it arrives without an error.
func presentResult(res common.VkResult, err error) error {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(gpu.ErrOutOfDate, "present")
	case khr_swapchain.VKSuboptimal:
		return errors.Wrap(gpu.ErrSuboptimal, "present")
	}
	return errors.Wrap(err, "present")
}

type swapchain struct {
	swapchain khr_swapchain.Swapchain
	images    []gpu.Image
	desc      gpu.SwapchainDesc
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	caps, _, err := d.surface.PhysicalDeviceSurfaceCapabilities(d.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "surface capabilities")
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if d.families.graphics != d.families.present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = d.families.unique()
	}

	sc, _, err := d.swapchainExt.CreateSwapchain(d.device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    desc.ImageCount,
		ImageFormat:      desc.Format.Format,
		ImageColorSpace:  desc.Format.ColorSpace,
		ImageExtent:      desc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    desc.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d swapchain", desc.Extent.Width, desc.Extent.Height)
	}

	raw, _, err := sc.SwapchainImages()
	if err != nil {
		sc.Destroy(nil)
		return nil, errors.Wrap(err, "swapchain images")
	}
	images := make([]gpu.Image, len(raw))
	for i, img := range raw {
		images[i] = &image{image: img, desc: gpu.ImageDesc{
			Width:     desc.Extent.Width,
			Height:    desc.Extent.Height,
			MipLevels: 1,
			Format:    desc.Format.Format,
			Tiling:    core1_0.ImageTilingOptimal,
			Usage:     core1_0.ImageUsageColorAttachment,
			Samples:   core1_0.Samples1,
		}}
	}
	return &swapchain{swapchain: sc, images: images, desc: desc}, nil
}

func (s *swapchain) Images() []gpu.Image      { return s.images }
func (s *swapchain) Format() core1_0.Format   { return s.desc.Format.Format }
func (s *swapchain) Extent() core1_0.Extent2D { return s.desc.Extent }
func (s *swapchain) Destroy()                 { s.swapchain.Destroy(nil) }

func (s *swapchain) AcquireNextImage(signal gpu.Semaphore) (int, error) {
	sem, ok := signal.(*semaphore)
	if !ok {
		return 0, foreign("semaphore", signal)
	}
	idx, res, err := s.swapchain.AcquireNextImage(common.NoTimeout, sem.semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, errors.Wrap(gpu.ErrOutOfDate, "acquire")
	}
	if err != nil {
		return 0, errors.Wrap(err, "acquire")
	}
	return idx, nil
}
