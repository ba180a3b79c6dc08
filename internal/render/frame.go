package render

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// frameSlot bounds how far the CPU may run ahead: a slot is reused only
// after its fence reports the GPU finished with it.
type frameSlot struct {
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
	inFlight       gpu.Fence
}

func (c *DeviceContext) createFrameSlots(count int, stack *releaseStack) ([]frameSlot, error) {
	slots := make([]frameSlot, count)
	for i := range slots {
		var err error
		if slots[i].imageAvailable, err = c.Device.CreateSemaphore(); err != nil {
			return nil, resourceErr(err, "create image available semaphore %d", i)
		}
		stack.push(slots[i].imageAvailable.Destroy)
		if slots[i].renderFinished, err = c.Device.CreateSemaphore(); err != nil {
			return nil, resourceErr(err, "create render finished semaphore %d", i)
		}
		stack.push(slots[i].renderFinished.Destroy)
		if slots[i].inFlight, err = c.Device.CreateFence(true); err != nil {
			return nil, resourceErr(err, "create in flight fence %d", i)
		}
		stack.push(slots[i].inFlight.Destroy)
	}
	return slots, nil
}

const statsInterval = 120

type frameStats struct {
	frames   uint64
	window   time.Duration
	slowest  time.Duration
	lastDraw time.Duration
}

// record adds one frame and reports whether a full interval has passed.
func (s *frameStats) record(d time.Duration) bool {
	s.frames++
	s.window += d
	s.lastDraw = d
	s.slowest = max(s.slowest, d)
	return s.frames%statsInterval == 0
}

func (s *frameStats) reset() {
	s.window, s.slowest = 0, 0
}

// DrawFrame renders and presents one frame. A swapchain that no longer
// matches the surface is rebuilt instead of drawn to; any other failure is
// fatal.
func (r *Renderer) DrawFrame() error {
	if !r.initialized {
		return errors.Mark(errors.New("draw before init"), ErrInvalidState)
	}
	if r.stale.Swap(false) {
		r.reloadPipelines()
	}
	start := hrtime.Now()

	slot := r.slots[r.frame%len(r.slots)]
	if err := r.ctx.Device.WaitForFences(slot.inFlight); err != nil {
		return errors.Wrap(err, "wait for frame slot")
	}

	image, err := r.swap.swapchain.AcquireNextImage(slot.imageAvailable)
	if errors.Is(err, gpu.ErrOutOfDate) {
		return r.recreateSwapchain()
	} else if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}

	if previous := r.imagesInFlight[image]; previous != nil && previous != slot.inFlight {
		if err := r.ctx.Device.WaitForFences(previous); err != nil {
			return errors.Wrapf(err, "wait for swapchain image %d", image)
		}
	}
	r.imagesInFlight[image] = slot.inFlight

	if err := r.swap.uniforms.write(image, r.camera.ViewProjection(r.swap.extent)); err != nil {
		return err
	}
	if err := r.recordCommands(image); err != nil {
		return errors.Wrapf(err, "record frame for image %d", image)
	}

	if err := r.ctx.Device.ResetFences(slot.inFlight); err != nil {
		return errors.Wrap(err, "reset frame fence")
	}
	err = r.ctx.Graphics.Submit(slot.inFlight, gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{slot.imageAvailable},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []gpu.CommandBuffer{r.swap.commandBuffers[image]},
		SignalSemaphores: []gpu.Semaphore{slot.renderFinished},
	})
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}

	err = r.ctx.Present.Present(gpu.PresentInfo{
		WaitSemaphores: []gpu.Semaphore{slot.renderFinished},
		Swapchain:      r.swap.swapchain,
		ImageIndex:     image,
	})
	r.frame++
	if r.stats.record(hrtime.Since(start)) {
		r.logger.Debug("frame stats",
			"frames", r.stats.frames,
			"avg", r.stats.window/statsInterval,
			"slowest", r.stats.slowest)
		r.stats.reset()
	}

	if gpu.IsSwapchainStale(err) {
		return r.recreateSwapchain()
	}
	return errors.Wrap(err, "present frame")
}

func (r *Renderer) clearValues() []core1_0.ClearValue {
	c := r.cfg.Renderer.ClearColor
	values := make([]core1_0.ClearValue, attachmentCount)
	values[attachSwapchain] = core1_0.ClearValueFloat{c[0], c[1], c[2], c[3]}
	values[attachColour] = core1_0.ClearValueFloat{c[0], c[1], c[2], c[3]}
	values[attachDepth] = core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0}
	values[attachResolvedColour] = core1_0.ClearValueFloat{0, 0, 0, 0}
	values[attachResolvedDepth] = core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0}
	return values
}

// recordCommands re-records the command buffer of one swapchain image with
// the current models and transforms.
func (r *Renderer) recordCommands(image int) error {
	cb := r.swap.commandBuffers[image]
	if err := cb.Begin(false); err != nil {
		return err
	}

	pass := beginPass(cb, gpu.RenderPassBegin{
		RenderPass:  r.swap.renderPass,
		Framebuffer: r.swap.framebuffers[image],
		Extent:      r.swap.extent,
		ClearValues: r.clearValues(),
	})

	if pass.bind(SubpassGeometry, r.swap.pipelines.geometry) {
		layout := r.pipelineLayouts.geometry
		for _, model := range r.models.live() {
			push, err := encode(&model.Transform)
			if err != nil {
				return err
			}
			cb.PushConstants(layout, core1_0.StageVertex, 0, push)
			for _, mesh := range model.Meshes {
				cb.BindVertexBuffers(mesh.vertices)
				cb.BindIndexBuffer(mesh.indices, core1_0.IndexTypeUInt32)
				cb.BindDescriptorSets(layout, r.swap.uniforms.sets[image], r.textures.set(mesh.texture))
				cb.DrawIndexed(mesh.indexCount, 1)
			}
		}
	}

	pass.next()
	if pass.bind(SubpassComposite, r.swap.pipelines.composite) {
		cb.BindDescriptorSets(r.pipelineLayouts.composite, r.swap.inputSets[image])
		cb.Draw(3, 1)
	}

	if err := pass.end(); err != nil {
		return err
	}
	return cb.End()
}
