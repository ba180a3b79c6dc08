package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

func (c *DeviceContext) CreateImage(width, height int, format core1_0.Format, tiling core1_0.ImageTiling,
	usage core1_0.ImageUsageFlags, memory core1_0.MemoryPropertyFlags, mipLevels int, samples core1_0.SampleCountFlags) (gpu.Image, error) {
	img, err := c.Device.CreateImage(gpu.ImageDesc{
		Width:     width,
		Height:    height,
		MipLevels: mipLevels,
		Format:    format,
		Tiling:    tiling,
		Usage:     usage,
		Memory:    memory,
		Samples:   samples,
	})
	if err != nil {
		return nil, resourceErr(err, "create %dx%d %s image", width, height, format)
	}
	return img, nil
}

func (c *DeviceContext) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (gpu.ImageView, error) {
	view, err := c.Device.CreateImageView(gpu.ImageViewDesc{
		Image:     image,
		Format:    format,
		Aspect:    aspect,
		MipLevels: mipLevels,
	})
	if err != nil {
		return nil, resourceErr(err, "create %s image view", format)
	}
	return view, nil
}

// ChooseSupportedFormat returns the first candidate whose features for the
// given tiling include all of required.
func (c *DeviceContext) ChooseSupportedFormat(candidates []core1_0.Format, tiling core1_0.ImageTiling, required core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range candidates {
		if c.Device.FormatFeatures(format, tiling)&required == required {
			return format, nil
		}
	}
	return 0, errors.Wrapf(ErrNoMatchingFormat, "%d candidates, tiling %s, features %s", len(candidates), tiling, required)
}

var sampleCounts = []core1_0.SampleCountFlags{
	core1_0.Samples64,
	core1_0.Samples32,
	core1_0.Samples16,
	core1_0.Samples8,
	core1_0.Samples4,
	core1_0.Samples2,
}

// MaxUsableSampleCount is the highest count supported for both colour and
// depth framebuffers, capped at ceiling.
func (c *DeviceContext) MaxUsableSampleCount(ceiling int) core1_0.SampleCountFlags {
	info := c.Device.Adapter()
	counts := info.FramebufferColorSampleCounts & info.FramebufferDepthSampleCounts
	for _, n := range sampleCounts {
		if int(n) <= ceiling && counts&n != 0 {
			return n
		}
	}
	return core1_0.Samples1
}

// attachment is one image with its view.
type attachment struct {
	image gpu.Image
	view  gpu.ImageView
}

func (a attachment) destroy() {
	if a.view != nil {
		a.view.Destroy()
	}
	if a.image != nil {
		a.image.Destroy()
	}
}

// attachmentSet holds the off-screen targets of one swapchain image.
type attachmentSet struct {
	colour, depth                 attachment
	resolvedColour, resolvedDepth attachment
}

func (s attachmentSet) destroy() {
	s.resolvedDepth.destroy()
	s.resolvedColour.destroy()
	s.depth.destroy()
	s.colour.destroy()
}

type attachmentFormats struct {
	colour  core1_0.Format
	depth   core1_0.Format
	samples core1_0.SampleCountFlags
}

var (
	colourCandidates = []core1_0.Format{core1_0.FormatR8G8B8A8UnsignedNormalized}
	depthCandidates  = []core1_0.Format{
		core1_0.FormatD32SignedFloatS8UnsignedInt,
		core1_0.FormatD32SignedFloat,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	}
)

func (c *DeviceContext) chooseAttachmentFormats(maxSamples int) (attachmentFormats, error) {
	colour, err := c.ChooseSupportedFormat(colourCandidates, core1_0.ImageTilingOptimal, core1_0.FormatFeatureColorAttachment)
	if err != nil {
		return attachmentFormats{}, errors.Wrap(err, "colour attachment")
	}
	depth, err := c.ChooseSupportedFormat(depthCandidates, core1_0.ImageTilingOptimal, core1_0.FormatFeatureDepthStencilAttachment)
	if err != nil {
		return attachmentFormats{}, errors.Wrap(err, "depth attachment")
	}
	samples := c.MaxUsableSampleCount(maxSamples)
	if samples == core1_0.Samples1 {
		return attachmentFormats{}, errors.Wrap(gpu.ErrNoSuitableDevice, "device cannot multisample colour and depth attachments")
	}
	return attachmentFormats{colour: colour, depth: depth, samples: samples}, nil
}

func (c *DeviceContext) createAttachment(extent core1_0.Extent2D, format core1_0.Format, usage core1_0.ImageUsageFlags,
	aspect core1_0.ImageAspectFlags, samples core1_0.SampleCountFlags) (attachment, error) {
	img, err := c.CreateImage(extent.Width, extent.Height, format, core1_0.ImageTilingOptimal, usage,
		core1_0.MemoryPropertyDeviceLocal, 1, samples)
	if err != nil {
		return attachment{}, err
	}
	view, err := c.CreateImageView(img, format, aspect, 1)
	if err != nil {
		img.Destroy()
		return attachment{}, err
	}
	return attachment{image: img, view: view}, nil
}

// createAttachmentSet builds the multisampled targets of the geometry
// subpass and the single-sample images they resolve into, which the
// composite subpass reads as input attachments.
func (c *DeviceContext) createAttachmentSet(extent core1_0.Extent2D, f attachmentFormats) (attachmentSet, error) {
	var set attachmentSet
	specs := []struct {
		dst     *attachment
		format  core1_0.Format
		usage   core1_0.ImageUsageFlags
		aspect  core1_0.ImageAspectFlags
		samples core1_0.SampleCountFlags
	}{
		{&set.colour, f.colour, core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransientAttachment, core1_0.ImageAspectColor, f.samples},
		{&set.depth, f.depth, core1_0.ImageUsageDepthStencilAttachment | core1_0.ImageUsageTransientAttachment, core1_0.ImageAspectDepth, f.samples},
		{&set.resolvedColour, f.colour, core1_0.ImageUsageColorAttachment | core1_0.ImageUsageInputAttachment, core1_0.ImageAspectColor, core1_0.Samples1},
		{&set.resolvedDepth, f.depth, core1_0.ImageUsageDepthStencilAttachment | core1_0.ImageUsageInputAttachment, core1_0.ImageAspectDepth, core1_0.Samples1},
	}
	for _, s := range specs {
		a, err := c.createAttachment(extent, s.format, s.usage, s.aspect, s.samples)
		if err != nil {
			set.destroy()
			return attachmentSet{}, err
		}
		*s.dst = a
	}
	return set, nil
}
