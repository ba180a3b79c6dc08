package headless

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type renderPass struct {
	object
	desc gpu.RenderPassDesc
}

func (r *renderPass) Desc() gpu.RenderPassDesc { return r.desc }
func (r *renderPass) Destroy()                 { r.release() }

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	if err := validateRenderPass(desc); err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	return &renderPass{object: d.track("render-pass"), desc: desc}, nil
}

func validateRenderPass(desc gpu.RenderPassDesc) error {
	if len(desc.Subpasses) == 0 {
		return invalid("render pass has no subpasses")
	}
	inRange := func(ref gpu.AttachmentRef) error {
		if ref.Attachment < 0 || ref.Attachment >= len(desc.Attachments) {
			return invalid("attachment reference %d out of range", ref.Attachment)
		}
		return nil
	}

	for s, sp := range desc.Subpasses {
		refs := append(append(append([]gpu.AttachmentRef(nil), sp.Inputs...), sp.Colors...), sp.Resolves...)
		if sp.DepthStencil != nil {
			refs = append(refs, *sp.DepthStencil)
		}
		if sp.DepthResolve != nil {
			refs = append(refs, *sp.DepthResolve)
		}
		for _, ref := range refs {
			if err := inRange(ref); err != nil {
				return errors.Wrapf(err, "subpass %d", s)
			}
		}

		if len(sp.Resolves) > 0 && len(sp.Resolves) != len(sp.Colors) {
			return invalid("subpass %d has %d resolve targets for %d colour attachments", s, len(sp.Resolves), len(sp.Colors))
		}
		for i, res := range sp.Resolves {
			if err := checkResolve(desc, sp.Colors[i], res); err != nil {
				return errors.Wrapf(err, "subpass %d colour %d", s, i)
			}
		}
		if sp.DepthResolve != nil {
			if sp.DepthStencil == nil {
				return invalid("subpass %d resolves depth without a depth attachment", s)
			}
			if err := checkResolve(desc, *sp.DepthStencil, *sp.DepthResolve); err != nil {
				return errors.Wrapf(err, "subpass %d depth", s)
			}
		}

		for _, in := range sp.Inputs {
			if in.Layout != core1_0.ImageLayoutShaderReadOnlyOptimal {
				return invalid("subpass %d reads attachment %d in layout %s", s, in.Attachment, in.Layout)
			}
			if err := checkInputProducer(desc, s, in.Attachment); err != nil {
				return err
			}
		}
	}

	for _, dep := range desc.Dependencies {
		if dep.Src != gpu.SubpassExternal && dep.Src >= len(desc.Subpasses) ||
			dep.Dst != gpu.SubpassExternal && dep.Dst >= len(desc.Subpasses) {
			return invalid("dependency %d->%d names a missing subpass", dep.Src, dep.Dst)
		}
		if dep.Src == gpu.SubpassExternal && dep.Dst == gpu.SubpassExternal {
			return invalid("dependency cannot be external on both sides")
		}
		if dep.Src != gpu.SubpassExternal && dep.Dst != gpu.SubpassExternal && dep.Src > dep.Dst {
			return invalid("dependency %d->%d points backwards", dep.Src, dep.Dst)
		}
		if dep.SrcStages == 0 || dep.DstStages == 0 {
			return invalid("dependency %d->%d has an empty stage mask", dep.Src, dep.Dst)
		}
	}
	return nil
}

func checkResolve(desc gpu.RenderPassDesc, src, dst gpu.AttachmentRef) error {
	from, to := desc.Attachments[src.Attachment], desc.Attachments[dst.Attachment]
	if from.Samples == core1_0.Samples1 {
		return invalid("resolve source %d is single-sampled", src.Attachment)
	}
	if to.Samples != core1_0.Samples1 {
		return invalid("resolve target %d is multisampled", dst.Attachment)
	}
	if from.Format != to.Format {
		return invalid("resolve %d->%d changes format %s to %s", src.Attachment, dst.Attachment, from.Format, to.Format)
	}
	return nil
}

// checkInputProducer requires that an input attachment of subpass s was
// written by an earlier subpass, and that a dependency makes those writes
// visible to fragment shader input reads.
func checkInputProducer(desc gpu.RenderPassDesc, s, attachment int) error {
	for p := s - 1; p >= 0; p-- {
		if !desc.Subpasses[p].Writes(attachment) {
			continue
		}
		dep, ok := desc.FindDependency(p, s)
		if !ok {
			return invalid("no dependency from subpass %d to %d for input attachment %d", p, s, attachment)
		}
		if dep.DstStages&core1_0.PipelineStageFragmentShader == 0 {
			return invalid("dependency %d->%d does not reach the fragment shader", p, s)
		}
		if dep.DstAccess&core1_0.AccessInputAttachmentRead == 0 {
			return invalid("dependency %d->%d does not make attachment %d visible to input reads", p, s, attachment)
		}
		if !dep.ByRegion {
			return invalid("dependency %d->%d for input attachment %d must be by region", p, s, attachment)
		}
		return nil
	}
	return invalid("subpass %d reads attachment %d that no earlier subpass writes", s, attachment)
}
