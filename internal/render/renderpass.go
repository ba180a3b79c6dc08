package render

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// Subpass identifies a phase of the deferred render pass.
type Subpass int

const (
	// SubpassGeometry rasterizes the scene into the multisampled targets and
	// resolves them.
	SubpassGeometry Subpass = iota
	// SubpassComposite reads the resolved targets and writes the swapchain.
	SubpassComposite

	subpassCount = 2
)

func (s Subpass) String() string {
	switch s {
	case SubpassGeometry:
		return "geometry"
	case SubpassComposite:
		return "composite"
	}
	return fmt.Sprintf("Subpass(%d)", int(s))
}

// Attachment slots of the render pass and of every framebuffer.
const (
	attachSwapchain = iota
	attachColour
	attachDepth
	attachResolvedColour
	attachResolvedDepth

	attachmentCount
)

func renderPassDesc(swapFormat core1_0.Format, f attachmentFormats) gpu.RenderPassDesc {
	colourRef := func(a int) gpu.AttachmentRef {
		return gpu.AttachmentRef{Attachment: a, Layout: core1_0.ImageLayoutColorAttachmentOptimal}
	}
	depthRef := func(a int) *gpu.AttachmentRef {
		return &gpu.AttachmentRef{Attachment: a, Layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal}
	}
	inputRef := func(a int) gpu.AttachmentRef {
		return gpu.AttachmentRef{Attachment: a, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal}
	}

	attachments := make([]gpu.AttachmentDesc, attachmentCount)
	attachments[attachSwapchain] = gpu.AttachmentDesc{
		Format:         swapFormat,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
	}
	attachments[attachColour] = gpu.AttachmentDesc{
		Format:         f.colour,
		Samples:        f.samples,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
	}
	attachments[attachDepth] = gpu.AttachmentDesc{
		Format:         f.depth,
		Samples:        f.samples,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	}
	attachments[attachResolvedColour] = gpu.AttachmentDesc{
		Format:         f.colour,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpDontCare,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutShaderReadOnlyOptimal,
	}
	attachments[attachResolvedDepth] = gpu.AttachmentDesc{
		Format:         f.depth,
		Samples:        core1_0.Samples1,
		LoadOp:         core1_0.AttachmentLoadOpDontCare,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutShaderReadOnlyOptimal,
	}

	subpasses := make([]gpu.SubpassDesc, subpassCount)
	subpasses[SubpassGeometry] = gpu.SubpassDesc{
		Colors:       []gpu.AttachmentRef{colourRef(attachColour)},
		Resolves:     []gpu.AttachmentRef{colourRef(attachResolvedColour)},
		DepthStencil: depthRef(attachDepth),
		DepthResolve: depthRef(attachResolvedDepth),
	}
	subpasses[SubpassComposite] = gpu.SubpassDesc{
		Inputs: []gpu.AttachmentRef{inputRef(attachResolvedColour), inputRef(attachResolvedDepth)},
		Colors: []gpu.AttachmentRef{colourRef(attachSwapchain)},
	}

	attachmentOutput := core1_0.PipelineStageColorAttachmentOutput |
		core1_0.PipelineStageEarlyFragmentTests | core1_0.PipelineStageLateFragmentTests
	attachmentWrite := core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite

	return gpu.RenderPassDesc{
		Attachments: attachments,
		Subpasses:   subpasses,
		Dependencies: []gpu.Dependency{
			{
				Src:       gpu.SubpassExternal,
				Dst:       int(SubpassGeometry),
				SrcStages: core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageLateFragmentTests,
				DstStages: attachmentOutput,
				SrcAccess: 0,
				DstAccess: attachmentWrite | core1_0.AccessDepthStencilAttachmentRead,
			},
			{
				Src:       int(SubpassGeometry),
				Dst:       int(SubpassComposite),
				SrcStages: core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageLateFragmentTests,
				DstStages: core1_0.PipelineStageFragmentShader,
				SrcAccess: attachmentWrite,
				DstAccess: core1_0.AccessInputAttachmentRead | core1_0.AccessShaderRead,
				ByRegion:  true,
			},
			{
				Src:       int(SubpassComposite),
				Dst:       gpu.SubpassExternal,
				SrcStages: core1_0.PipelineStageColorAttachmentOutput,
				DstStages: core1_0.PipelineStageBottomOfPipe,
				SrcAccess: core1_0.AccessColorAttachmentWrite,
				DstAccess: core1_0.AccessMemoryRead,
			},
		},
	}
}

func (c *DeviceContext) createRenderPass(swapFormat core1_0.Format, f attachmentFormats) (gpu.RenderPass, error) {
	rp, err := c.Device.CreateRenderPass(renderPassDesc(swapFormat, f))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create render pass"), ErrPipeline)
	}
	return rp, nil
}

// passRecorder records one instance of the render pass and refuses any
// operation that does not belong to the subpass it is in.
type passRecorder struct {
	cb      gpu.CommandBuffer
	subpass Subpass
	active  bool
	err     error
}

func beginPass(cb gpu.CommandBuffer, info gpu.RenderPassBegin) *passRecorder {
	cb.BeginRenderPass(info)
	return &passRecorder{cb: cb, subpass: SubpassGeometry, active: true}
}

func (p *passRecorder) fail(format string, args ...any) {
	if p.err == nil {
		p.err = errors.Mark(errors.Newf(format, args...), ErrInvalidState)
	}
}

// bind binds a pipeline built for subpass s; s must be the current subpass.
func (p *passRecorder) bind(s Subpass, pipeline gpu.Pipeline) bool {
	switch {
	case p.err != nil:
		return false
	case !p.active:
		p.fail("bind %s pipeline outside the render pass", s)
		return false
	case s != p.subpass:
		p.fail("bind %s pipeline during %s subpass", s, p.subpass)
		return false
	case pipeline.Subpass() != int(s):
		p.fail("pipeline built for subpass %d bound as %s", pipeline.Subpass(), s)
		return false
	}
	p.cb.BindPipeline(pipeline)
	return true
}

func (p *passRecorder) next() {
	if p.err != nil {
		return
	}
	if !p.active || p.subpass != SubpassGeometry {
		p.fail("next subpass from %s", p.subpass)
		return
	}
	p.cb.NextSubpass()
	p.subpass = SubpassComposite
}

func (p *passRecorder) end() error {
	if p.err != nil {
		return p.err
	}
	if !p.active || p.subpass != SubpassComposite {
		p.fail("render pass ended in %s subpass", p.subpass)
		return p.err
	}
	p.cb.EndRenderPass()
	p.active = false
	return nil
}
