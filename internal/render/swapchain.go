package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"golang.org/x/exp/constraints"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// swapchainResources is everything whose shape depends on the swapchain.
// It is built and torn down as a unit.
type swapchainResources struct {
	stack releaseStack

	swapchain gpu.Swapchain
	format    core1_0.Format
	extent    core1_0.Extent2D

	views          []gpu.ImageView
	attachments    []attachmentSet
	renderPass     gpu.RenderPass
	pipelines      pipelines
	framebuffers   []gpu.Framebuffer
	uniforms       uniformSets
	inputSets      []gpu.DescriptorSet
	commandBuffers []gpu.CommandBuffer
}

func (s *swapchainResources) imageCount() int { return len(s.views) }

func (s *swapchainResources) release() {
	s.stack.release()
}

func chooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, f := range formats {
		if f.Format == core1_0.FormatB8G8R8A8SRGB && f.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode falls back to FIFO, which every surface supports.
func choosePresentMode(modes []khr_surface.PresentMode, preferred string) khr_surface.PresentMode {
	if preferred == "mailbox" {
		for _, m := range modes {
			if m == khr_surface.PresentModeMailbox {
				return m
			}
		}
	}
	return khr_surface.PresentModeFIFO
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

func chooseExtent(support gpu.SurfaceSupport, surface Surface) core1_0.Extent2D {
	if support.CurrentExtent.Width != -1 {
		return support.CurrentExtent
	}
	width, height := surface.FramebufferSize()
	return core1_0.Extent2D{
		Width:  clamp(width, support.MinImageExtent.Width, support.MaxImageExtent.Width),
		Height: clamp(height, support.MinImageExtent.Height, support.MaxImageExtent.Height),
	}
}

func chooseImageCount(support gpu.SurfaceSupport) int {
	count := support.MinImageCount + 1
	if support.MaxImageCount > 0 && count > support.MaxImageCount {
		count = support.MaxImageCount
	}
	return count
}

// createSwapchainResources builds the swapchain and, per image, its view,
// attachment set, framebuffer, uniform buffer and descriptor sets and
// command buffer. A partial build is released before returning an error.
func (r *Renderer) createSwapchainResources() (_ *swapchainResources, err error) {
	res := &swapchainResources{}
	defer func() {
		if err != nil {
			res.release()
		}
	}()

	support, err := r.ctx.Device.SurfaceSupport()
	if err != nil {
		return nil, errors.Wrap(err, "query surface")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, errors.Wrap(gpu.ErrNoSuitableDevice, "surface reports no formats or present modes")
	}
	surfaceFormat := chooseSurfaceFormat(support.Formats)
	res.extent = chooseExtent(support, r.surface)
	res.format = surfaceFormat.Format

	sc, err := r.ctx.Device.CreateSwapchain(gpu.SwapchainDesc{
		ImageCount:  chooseImageCount(support),
		Format:      surfaceFormat,
		Extent:      res.extent,
		PresentMode: choosePresentMode(support.PresentModes, r.cfg.Renderer.PresentMode),
	})
	if err != nil {
		return nil, resourceErr(err, "create swapchain")
	}
	res.stack.push(sc.Destroy)
	res.swapchain = sc

	for i, img := range sc.Images() {
		view, err := r.ctx.CreateImageView(img, res.format, core1_0.ImageAspectColor, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "swapchain image %d", i)
		}
		res.stack.push(view.Destroy)
		res.views = append(res.views, view)

		set, err := r.ctx.createAttachmentSet(res.extent, r.formats)
		if err != nil {
			return nil, errors.Wrapf(err, "attachments for swapchain image %d", i)
		}
		res.stack.push(set.destroy)
		res.attachments = append(res.attachments, set)
	}

	res.renderPass, err = r.ctx.createRenderPass(res.format, r.formats)
	if err != nil {
		return nil, err
	}
	res.stack.push(res.renderPass.Destroy)

	res.pipelines, err = r.ctx.createPipelines(r.shaders, r.pipelineLayouts, res.targets(r.formats.samples))
	if err != nil {
		return nil, err
	}
	res.stack.push(func() { res.pipelines.destroy() })

	for i, view := range res.views {
		a := res.attachments[i]
		attachments := make([]gpu.ImageView, attachmentCount)
		attachments[attachSwapchain] = view
		attachments[attachColour] = a.colour.view
		attachments[attachDepth] = a.depth.view
		attachments[attachResolvedColour] = a.resolvedColour.view
		attachments[attachResolvedDepth] = a.resolvedDepth.view

		fb, err := r.ctx.Device.CreateFramebuffer(gpu.FramebufferDesc{
			RenderPass:  res.renderPass,
			Attachments: attachments,
			Width:       res.extent.Width,
			Height:      res.extent.Height,
		})
		if err != nil {
			return nil, resourceErr(err, "create framebuffer %d", i)
		}
		res.stack.push(fb.Destroy)
		res.framebuffers = append(res.framebuffers, fb)
	}

	res.uniforms, err = r.ctx.createUniformSets(r.layouts.viewProjection, res.imageCount(), &res.stack)
	if err != nil {
		return nil, err
	}
	res.inputSets, err = r.ctx.createInputSets(r.layouts.input, res.attachments, &res.stack)
	if err != nil {
		return nil, err
	}

	res.commandBuffers, err = r.ctx.CommandPool.Allocate(res.imageCount())
	if err != nil {
		return nil, resourceErr(err, "allocate frame command buffers")
	}
	cbs := res.commandBuffers
	res.stack.push(func() { r.ctx.CommandPool.Free(cbs...) })

	r.logger.Debug("swapchain created",
		"images", res.imageCount(), "width", res.extent.Width, "height", res.extent.Height,
		"format", res.format, "samples", r.formats.samples)
	return res, nil
}

func (s *swapchainResources) targets(samples core1_0.SampleCountFlags) pipelineTargets {
	return pipelineTargets{renderPass: s.renderPass, extent: s.extent, samples: samples}
}

// recreateSwapchain rebuilds every swapchain-sized resource after the
// surface changed. A zero-sized surface (a minimized window) is left alone
// until it has an area again.
func (r *Renderer) recreateSwapchain() error {
	support, err := r.ctx.Device.SurfaceSupport()
	if err != nil {
		return errors.Wrap(err, "query surface")
	}
	if extent := chooseExtent(support, r.surface); extent.Width == 0 || extent.Height == 0 {
		r.logger.Debug("surface has no area, postponing swapchain recreation")
		return nil
	}

	if err := r.ctx.Device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for idle before swapchain recreation")
	}
	if r.swap != nil {
		r.swap.release()
		r.swap = nil
	}
	swap, err := r.createSwapchainResources()
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	r.swap = swap
	r.imagesInFlight = make([]gpu.Fence, swap.imageCount())
	r.logger.Info("swapchain recreated", "width", swap.extent.Width, "height", swap.extent.Height)
	return nil
}
