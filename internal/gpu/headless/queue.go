package headless

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type semaphore struct {
	object
	signaled bool
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	return &semaphore{object: d.track("semaphore")}, nil
}

func (s *semaphore) Destroy() { s.release() }

type fence struct {
	object
	signaled bool
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	return &fence{object: d.track("fence"), signaled: signaled}, nil
}

func (f *fence) Destroy() { f.release() }

// Signaled reports whether a fence created by a headless device is signaled.
func Signaled(v any) bool {
	switch o := v.(type) {
	case *fence:
		return o.signaled
	case *semaphore:
		return o.signaled
	}
	return false
}

// WaitForFences returns immediately for signaled fences. Work executes at
// submission, so an unsignaled fence can never become signaled and waiting
// on it is reported as a deadlock.
func (d *Device) WaitForFences(fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		fc, ok := f.(*fence)
		if !ok || fc.destroyed {
			return invalid("wait on a dead fence")
		}
		d.record(EventFenceWait, fc.id, -1)
		if !fc.signaled {
			return invalid("waiting on fence #%d would deadlock: it has no pending submission", fc.id)
		}
	}
	return nil
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		fc, ok := f.(*fence)
		if !ok || fc.destroyed {
			return invalid("reset a dead fence")
		}
		fc.signaled = false
		d.record(EventFenceReset, fc.id, -1)
	}
	return nil
}

type queue struct {
	dev *Device
}

func (q *queue) WaitIdle() error { return nil }

func (q *queue) Submit(f gpu.Fence, submits ...gpu.SubmitInfo) error {
	d := q.dev
	var fc *fence
	if f != nil {
		var ok bool
		if fc, ok = f.(*fence); !ok || fc.destroyed {
			return invalid("submit with a dead fence")
		}
		if fc.signaled {
			return invalid("submit with fence #%d that is still signaled", fc.id)
		}
	}

	for i, s := range submits {
		if len(s.WaitStages) != len(s.WaitSemaphores) {
			return invalid("submit %d has %d wait stages for %d semaphores", i, len(s.WaitStages), len(s.WaitSemaphores))
		}
		for _, sem := range s.WaitSemaphores {
			sm, ok := sem.(*semaphore)
			if !ok || sm.destroyed || !sm.signaled {
				return invalid("submit %d waits on a semaphore nothing will signal", i)
			}
		}
		for _, sem := range s.SignalSemaphores {
			sm, ok := sem.(*semaphore)
			if !ok || sm.destroyed || sm.signaled {
				return invalid("submit %d signals a semaphore that is already signaled", i)
			}
		}
		for _, b := range s.CommandBuffers {
			cb, ok := b.(*commandBuffer)
			if !ok || cb.destroyed || cb.state != stateExecutable {
				return invalid("submit %d contains a command buffer that is not executable", i)
			}
		}
	}

	for _, s := range submits {
		d.mu.Lock()
		for _, sem := range s.WaitSemaphores {
			sem.(*semaphore).signaled = false
			d.record(EventSemaphoreWait, sem.(*semaphore).id, -1)
		}
		d.mu.Unlock()

		for _, b := range s.CommandBuffers {
			if err := b.(*commandBuffer).execute(); err != nil {
				return errors.Wrap(err, "queue submit")
			}
		}

		d.mu.Lock()
		for _, sem := range s.SignalSemaphores {
			sem.(*semaphore).signaled = true
			d.record(EventSemaphoreSignal, sem.(*semaphore).id, -1)
		}
		d.mu.Unlock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits++
	var fenceID uint64
	if fc != nil {
		fenceID = fc.id
	}
	d.record(EventSubmit, fenceID, -1)
	if fc != nil {
		fc.signaled = true
		d.record(EventFenceSignal, fc.id, -1)
	}
	return nil
}

func (q *queue) Present(info gpu.PresentInfo) error {
	d := q.dev
	sc, ok := info.Swapchain.(*swapchain)
	if !ok || sc.destroyed {
		return invalid("present to a dead swapchain")
	}
	if info.ImageIndex < 0 || info.ImageIndex >= len(sc.images) {
		return invalid("present of image %d out of %d", info.ImageIndex, len(sc.images))
	}
	if !sc.acquired[info.ImageIndex] {
		return invalid("present of image %d that was not acquired", info.ImageIndex)
	}
	for _, sem := range info.WaitSemaphores {
		sm, ok := sem.(*semaphore)
		if !ok || sm.destroyed || !sm.signaled {
			return invalid("present waits on a semaphore nothing will signal")
		}
	}
	img := sc.images[info.ImageIndex]
	if img.layouts[0] != khr_swapchain.ImageLayoutPresentSrc {
		return invalid("present of image %d in layout %s", info.ImageIndex, img.layouts[0])
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sem := range info.WaitSemaphores {
		sem.(*semaphore).signaled = false
		d.record(EventSemaphoreWait, sem.(*semaphore).id, -1)
	}
	sc.acquired[info.ImageIndex] = false
	d.record(EventPresent, sc.id, info.ImageIndex)
	if d.staleSurface {
		return errors.Wrap(gpu.ErrSuboptimal, "surface changed")
	}
	return nil
}

type swapchain struct {
	object
	desc     gpu.SwapchainDesc
	images   []*image
	acquired []bool
	next     int
}

func (d *Device) CreateSwapchain(desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	support, _ := d.SurfaceSupport()
	if desc.ImageCount < support.MinImageCount || support.MaxImageCount > 0 && desc.ImageCount > support.MaxImageCount {
		return nil, invalid("swapchain of %d images outside %d..%d", desc.ImageCount, support.MinImageCount, support.MaxImageCount)
	}
	if desc.Extent.Width < 1 || desc.Extent.Height < 1 ||
		desc.Extent.Width > support.MaxImageExtent.Width || desc.Extent.Height > support.MaxImageExtent.Height {
		return nil, invalid("swapchain extent %dx%d outside surface limits", desc.Extent.Width, desc.Extent.Height)
	}

	sc := &swapchain{object: d.track("swapchain"), desc: desc}
	for i := 0; i < desc.ImageCount; i++ {
		img := newImage(d.track("swapchain-image"), gpu.ImageDesc{
			Width:     desc.Extent.Width,
			Height:    desc.Extent.Height,
			MipLevels: 1,
			Format:    desc.Format.Format,
			Tiling:    core1_0.ImageTilingOptimal,
			Usage:     core1_0.ImageUsageColorAttachment,
			Memory:    core1_0.MemoryPropertyDeviceLocal,
			Samples:   core1_0.Samples1,
		})
		img.swapchain = true
		sc.images = append(sc.images, img)
	}
	sc.acquired = make([]bool, len(sc.images))

	d.mu.Lock()
	d.staleSurface = false
	d.mu.Unlock()
	return sc, nil
}

func (s *swapchain) Images() []gpu.Image {
	out := make([]gpu.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

func (s *swapchain) Format() core1_0.Format   { return s.desc.Format.Format }
func (s *swapchain) Extent() core1_0.Extent2D { return s.desc.Extent }

func (s *swapchain) AcquireNextImage(signal gpu.Semaphore) (int, error) {
	d := s.dev
	if s.destroyed {
		return 0, invalid("acquire from a destroyed swapchain")
	}
	sem, ok := signal.(*semaphore)
	if !ok || sem.destroyed || sem.signaled {
		return 0, invalid("acquire must signal an unsignaled semaphore")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staleSurface {
		return 0, errors.Wrap(gpu.ErrOutOfDate, "surface changed")
	}
	for n := 0; n < len(s.images); n++ {
		idx := (s.next + n) % len(s.images)
		if s.acquired[idx] {
			continue
		}
		s.acquired[idx] = true
		s.next = idx + 1
		sem.signaled = true
		d.record(EventAcquire, sem.id, idx)
		return idx, nil
	}
	return 0, invalid("every swapchain image is already acquired")
}

func (s *swapchain) Destroy() {
	for _, img := range s.images {
		img.release()
	}
	s.release()
}
