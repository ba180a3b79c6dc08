package gpu

import "github.com/vkngwrapper/core/core1_0"

// SubpassExternal names the implicit subpass outside the render pass in a
// Dependency.
const SubpassExternal = -1

type RenderPass interface {
	Desc() RenderPassDesc
	Destroy()
}

type RenderPassDesc struct {
	Attachments  []AttachmentDesc
	Subpasses    []SubpassDesc
	Dependencies []Dependency
}

type AttachmentDesc struct {
	Format         core1_0.Format
	Samples        core1_0.SampleCountFlags
	LoadOp         core1_0.AttachmentLoadOp
	StoreOp        core1_0.AttachmentStoreOp
	StencilLoadOp  core1_0.AttachmentLoadOp
	StencilStoreOp core1_0.AttachmentStoreOp
	InitialLayout  core1_0.ImageLayout
	FinalLayout    core1_0.ImageLayout
}

type AttachmentRef struct {
	Attachment int
	Layout     core1_0.ImageLayout
}

// SubpassDesc lists the attachments one subpass touches. Resolves parallels
// Colors; DepthResolve receives the sample-zero resolve of DepthStencil.
type SubpassDesc struct {
	Inputs       []AttachmentRef
	Colors       []AttachmentRef
	Resolves     []AttachmentRef
	DepthStencil *AttachmentRef
	DepthResolve *AttachmentRef
}

type Dependency struct {
	Src, Dst  int
	SrcStages core1_0.PipelineStageFlags
	DstStages core1_0.PipelineStageFlags
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	ByRegion  bool
}

// Writes reports whether the subpass writes attachment a in any role.
func (s SubpassDesc) Writes(a int) bool {
	for _, refs := range [][]AttachmentRef{s.Colors, s.Resolves} {
		for _, r := range refs {
			if r.Attachment == a {
				return true
			}
		}
	}
	return (s.DepthStencil != nil && s.DepthStencil.Attachment == a) ||
		(s.DepthResolve != nil && s.DepthResolve.Attachment == a)
}

// Reads reports whether the subpass reads attachment a as an input.
func (s SubpassDesc) Reads(a int) bool {
	for _, r := range s.Inputs {
		if r.Attachment == a {
			return true
		}
	}
	return false
}

// FindDependency returns the first dependency from src to dst.
func (d RenderPassDesc) FindDependency(src, dst int) (Dependency, bool) {
	for _, dep := range d.Dependencies {
		if dep.Src == src && dep.Dst == dst {
			return dep, true
		}
	}
	return Dependency{}, false
}
