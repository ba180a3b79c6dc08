package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/core/core1_2"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type renderPass struct {
	renderPass core1_0.RenderPass
	desc       gpu.RenderPassDesc
}

func (r *renderPass) Desc() gpu.RenderPassDesc { return r.desc }
func (r *renderPass) Destroy()                 { r.renderPass.Destroy(nil) }

func isDepthFormat(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatD16UnsignedNormalized,
		core1_0.FormatD32SignedFloat,
		core1_0.FormatD16UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD32SignedFloatS8UnsignedInt:
		return true
	}
	return false
}

func subpassIndex(i int) int {
	if i == gpu.SubpassExternal {
		return int(core1_0.SubpassExternal)
	}
	return i
}

// CreateRenderPass goes through vkCreateRenderPass2 so a subpass can resolve
// its depth attachment as well as its colour attachments.
func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	ref := func(r gpu.AttachmentRef) core1_2.AttachmentReference2 {
		aspect := core1_0.ImageAspectColor
		if isDepthFormat(desc.Attachments[r.Attachment].Format) {
			aspect = core1_0.ImageAspectDepth
		}
		return core1_2.AttachmentReference2{Attachment: r.Attachment, Layout: r.Layout, AspectMask: aspect}
	}
	refs := func(in []gpu.AttachmentRef) []core1_2.AttachmentReference2 {
		var out []core1_2.AttachmentReference2
		for _, r := range in {
			out = append(out, ref(r))
		}
		return out
	}

	info := core1_2.RenderPassCreateInfo2{}
	for _, a := range desc.Attachments {
		info.Attachments = append(info.Attachments, core1_2.AttachmentDescription2{
			Format:         a.Format,
			Samples:        a.Samples,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  a.StencilLoadOp,
			StencilStoreOp: a.StencilStoreOp,
			InitialLayout:  a.InitialLayout,
			FinalLayout:    a.FinalLayout,
		})
	}

	for _, s := range desc.Subpasses {
		sub := core1_2.SubpassDescription2{
			PipelineBindPoint:  core1_0.PipelineBindPointGraphics,
			InputAttachments:   refs(s.Inputs),
			ColorAttachments:   refs(s.Colors),
			ResolveAttachments: refs(s.Resolves),
		}
		if s.DepthStencil != nil {
			depth := ref(*s.DepthStencil)
			sub.DepthStencilAttachment = &depth
		}
		if s.DepthResolve != nil {
			resolve := ref(*s.DepthResolve)
			sub.Next = core1_2.SubpassDescriptionDepthStencilResolve{
				DepthResolveMode:              core1_2.ResolveModeSampleZero,
				StencilResolveMode:            core1_2.ResolveModeSampleZero,
				DepthStencilResolveAttachment: &resolve,
			}
		}
		info.Subpasses = append(info.Subpasses, sub)
	}

	for _, dep := range desc.Dependencies {
		var flags core1_0.DependencyFlags
		if dep.ByRegion {
			flags = core1_0.DependencyByRegion
		}
		info.Dependencies = append(info.Dependencies, core1_2.SubpassDependency2{
			SrcSubpass:      subpassIndex(dep.Src),
			DstSubpass:      subpassIndex(dep.Dst),
			SrcStageMask:    dep.SrcStages,
			DstStageMask:    dep.DstStages,
			SrcAccessMask:   dep.SrcAccess,
			DstAccessMask:   dep.DstAccess,
			DependencyFlags: flags,
		})
	}

	rp, _, err := d.device12.CreateRenderPass2(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	return &renderPass{renderPass: rp, desc: desc}, nil
}
