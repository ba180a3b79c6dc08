package headless

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

const spirvMagic = 0x07230203

// maxPushConstantsSize is the minimum every conformant device guarantees.
const maxPushConstantsSize = 128

type buffer struct {
	object
	desc gpu.BufferDesc
	data []byte
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, invalid("buffer size must be positive, got %d", desc.Size)
	}
	if desc.Usage == 0 {
		return nil, invalid("buffer usage must not be empty")
	}
	if desc.Memory == 0 {
		return nil, errors.Wrap(gpu.ErrNoMemoryType, "buffer memory properties must not be empty")
	}
	return &buffer{object: d.track("buffer"), desc: desc, data: make([]byte, desc.Size)}, nil
}

func (b *buffer) Size() int                       { return b.desc.Size }
func (b *buffer) Usage() core1_0.BufferUsageFlags { return b.desc.Usage }
func (b *buffer) Destroy()                        { b.release() }

func (b *buffer) hostVisible() bool {
	return b.desc.Memory&core1_0.MemoryPropertyHostVisible != 0
}

func (b *buffer) Write(offset int, data []byte) error {
	if b.destroyed {
		return invalid("write to destroyed buffer #%d", b.id)
	}
	if !b.hostVisible() {
		return errors.Wrapf(gpu.ErrNotHostVisible, "write to buffer #%d", b.id)
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return invalid("write of %d bytes at %d overruns buffer #%d of %d bytes", len(data), offset, b.id, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) Read(offset, size int) ([]byte, error) {
	if b.destroyed {
		return nil, invalid("read from destroyed buffer #%d", b.id)
	}
	if !b.hostVisible() {
		return nil, errors.Wrapf(gpu.ErrNotHostVisible, "read from buffer #%d", b.id)
	}
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		return nil, invalid("read of %d bytes at %d overruns buffer #%d of %d bytes", size, offset, b.id, len(b.data))
	}
	return append([]byte(nil), b.data[offset:offset+size]...), nil
}

type image struct {
	object
	desc      gpu.ImageDesc
	layouts   []core1_0.ImageLayout
	swapchain bool
}

func maxMipLevels(width, height int) int {
	levels := 1
	for n := max(width, height); n > 1; n >>= 1 {
		levels++
	}
	return levels
}

func mipExtent(width, height, level int) core1_0.Extent2D {
	return core1_0.Extent2D{Width: max(1, width>>level), Height: max(1, height>>level)}
}

func isDepthFormat(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatD32SignedFloat,
		core1_0.FormatD32SignedFloatS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt:
		return true
	}
	return false
}

func bytesPerPixel(format core1_0.Format) int {
	switch format {
	case core1_0.FormatR8G8B8A8SRGB, core1_0.FormatR8G8B8A8UnsignedNormalized,
		core1_0.FormatB8G8R8A8SRGB, core1_0.FormatB8G8R8A8UnsignedNormalized,
		core1_0.FormatD32SignedFloat:
		return 4
	}
	return 0
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, invalid("image extent %dx%d is empty", desc.Width, desc.Height)
	}
	if desc.Samples == 0 {
		desc.Samples = core1_0.Samples1
	}
	if desc.MipLevels < 1 || desc.MipLevels > maxMipLevels(desc.Width, desc.Height) {
		return nil, invalid("%d mip levels is out of range for %dx%d", desc.MipLevels, desc.Width, desc.Height)
	}
	if desc.Samples != core1_0.Samples1 && desc.MipLevels != 1 {
		return nil, invalid("multisampled images must have exactly one mip level")
	}
	if desc.Memory == 0 {
		return nil, errors.Wrap(gpu.ErrNoMemoryType, "image memory properties must not be empty")
	}
	features := d.FormatFeatures(desc.Format, desc.Tiling)
	required := map[core1_0.ImageUsageFlags]core1_0.FormatFeatureFlags{
		core1_0.ImageUsageColorAttachment:        core1_0.FormatFeatureColorAttachment,
		core1_0.ImageUsageDepthStencilAttachment: core1_0.FormatFeatureDepthStencilAttachment,
		core1_0.ImageUsageSampled:                core1_0.FormatFeatureSampledImage,
	}
	for usage, feature := range required {
		if desc.Usage&usage != 0 && features&feature == 0 {
			return nil, invalid("format %s does not support usage %s with tiling %s", desc.Format, usage, desc.Tiling)
		}
	}
	if desc.Samples != core1_0.Samples1 {
		counts := d.opts.ColorSamples
		if isDepthFormat(desc.Format) {
			counts = d.opts.DepthSamples
		}
		if counts&desc.Samples == 0 {
			return nil, invalid("sample count %s is not supported", desc.Samples)
		}
	}
	return newImage(d.track("image"), desc), nil
}

func newImage(obj object, desc gpu.ImageDesc) *image {
	layouts := make([]core1_0.ImageLayout, desc.MipLevels)
	for i := range layouts {
		layouts[i] = core1_0.ImageLayoutUndefined
	}
	return &image{object: obj, desc: desc, layouts: layouts}
}

func (i *image) Format() core1_0.Format            { return i.desc.Format }
func (i *image) MipLevels() int                    { return i.desc.MipLevels }
func (i *image) Samples() core1_0.SampleCountFlags { return i.desc.Samples }
func (i *image) Extent() core1_0.Extent2D {
	return core1_0.Extent2D{Width: i.desc.Width, Height: i.desc.Height}
}

func (i *image) Destroy() {
	if i.swapchain {
		return
	}
	i.release()
}

// Layout reports the current layout of one mip level of an image created by
// a headless device.
func Layout(img gpu.Image, level int) core1_0.ImageLayout {
	i, ok := img.(*image)
	if !ok || level < 0 || level >= len(i.layouts) {
		return core1_0.ImageLayoutUndefined
	}
	return i.layouts[level]
}

type imageView struct {
	object
	img  *image
	desc gpu.ImageViewDesc
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	img, ok := desc.Image.(*image)
	if !ok || img.destroyed {
		return nil, invalid("image view needs a live image")
	}
	if desc.MipLevels < 1 || desc.MipLevels > img.desc.MipLevels {
		return nil, invalid("view of %d mip levels exceeds image with %d", desc.MipLevels, img.desc.MipLevels)
	}
	wantAspect := core1_0.ImageAspectFlags(core1_0.ImageAspectColor)
	if isDepthFormat(desc.Format) {
		wantAspect = core1_0.ImageAspectDepth
	}
	if desc.Aspect&wantAspect == 0 {
		return nil, invalid("aspect %s does not match format %s", desc.Aspect, desc.Format)
	}
	return &imageView{object: d.track("image-view"), img: img, desc: desc}, nil
}

func (v *imageView) Image() gpu.Image { return v.img }
func (v *imageView) Destroy()         { v.release() }

type sampler struct {
	object
	desc gpu.SamplerDesc
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	if desc.Anisotropy > d.opts.MaxAnisotropy {
		return nil, invalid("anisotropy %.1f exceeds device limit %.1f", desc.Anisotropy, d.opts.MaxAnisotropy)
	}
	if desc.MaxLod < 0 {
		return nil, invalid("negative max lod %f", desc.MaxLod)
	}
	return &sampler{object: d.track("sampler"), desc: desc}, nil
}

func (s *sampler) Destroy() { s.release() }

type shaderModule struct {
	object
	words int
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	if len(code) == 0 || code[0] != spirvMagic {
		return nil, invalid("shader code is not SPIR-V")
	}
	return &shaderModule{object: d.track("shader-module"), words: len(code)}, nil
}

func (s *shaderModule) Destroy() { s.release() }

type descriptorSetLayout struct {
	object
	bindings []gpu.DescriptorBinding
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	seen := map[int]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			return nil, invalid("binding %d declared twice", b.Binding)
		}
		if b.Count < 1 {
			return nil, invalid("binding %d has count %d", b.Binding, b.Count)
		}
		seen[b.Binding] = true
	}
	return &descriptorSetLayout{
		object:   d.track("descriptor-set-layout"),
		bindings: append([]gpu.DescriptorBinding(nil), bindings...),
	}, nil
}

func (l *descriptorSetLayout) Bindings() []gpu.DescriptorBinding { return l.bindings }
func (l *descriptorSetLayout) Destroy()                          { l.release() }

func (l *descriptorSetLayout) binding(n int) (gpu.DescriptorBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return gpu.DescriptorBinding{}, false
}

type descriptorPool struct {
	object
	setsLeft int
	left     map[core1_0.DescriptorType]int
	sets     []*descriptorSet
}

func (d *Device) CreateDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.DescriptorPool, error) {
	if desc.MaxSets < 1 {
		return nil, invalid("descriptor pool needs at least one set, got %d", desc.MaxSets)
	}
	left := map[core1_0.DescriptorType]int{}
	for _, size := range desc.Sizes {
		left[size.Type] += size.DescriptorCount
	}
	return &descriptorPool{object: d.track("descriptor-pool"), setsLeft: desc.MaxSets, left: left}, nil
}

func (p *descriptorPool) Allocate(layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	if p.destroyed {
		return nil, invalid("allocate from destroyed descriptor pool #%d", p.id)
	}
	if len(layouts) > p.setsLeft {
		return nil, invalid("descriptor pool #%d exhausted: %d sets requested, %d left", p.id, len(layouts), p.setsLeft)
	}
	need := map[core1_0.DescriptorType]int{}
	for _, l := range layouts {
		layout, ok := l.(*descriptorSetLayout)
		if !ok || layout.destroyed {
			return nil, invalid("allocate with a dead descriptor set layout")
		}
		for _, b := range layout.bindings {
			need[b.Type] += b.Count
		}
	}
	for typ, n := range need {
		if p.left[typ] < n {
			return nil, invalid("descriptor pool #%d exhausted for %s: %d requested, %d left", p.id, typ, n, p.left[typ])
		}
	}
	for typ, n := range need {
		p.left[typ] -= n
	}
	p.setsLeft -= len(layouts)

	sets := make([]gpu.DescriptorSet, len(layouts))
	for i, l := range layouts {
		set := &descriptorSet{
			object: p.dev.track("descriptor-set"),
			layout: l.(*descriptorSetLayout),
			writes: map[int]gpu.DescriptorWrite{},
		}
		p.sets = append(p.sets, set)
		sets[i] = set
	}
	return sets, nil
}

func (p *descriptorPool) Destroy() {
	for _, set := range p.sets {
		set.release()
	}
	p.sets = nil
	p.release()
}

type descriptorSet struct {
	object
	layout *descriptorSetLayout
	writes map[int]gpu.DescriptorWrite
}

func (s *descriptorSet) Layout() gpu.DescriptorSetLayout { return s.layout }

// Bound returns the last write made to one binding of a set.
func Bound(set gpu.DescriptorSet, binding int) (gpu.DescriptorWrite, bool) {
	s, ok := set.(*descriptorSet)
	if !ok {
		return gpu.DescriptorWrite{}, false
	}
	w, ok := s.writes[binding]
	return w, ok
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) error {
	for i, w := range writes {
		if err := d.checkWrite(w); err != nil {
			return errors.Wrapf(err, "descriptor write %d", i)
		}
	}
	for _, w := range writes {
		w.Set.(*descriptorSet).writes[w.Binding] = w
	}
	return nil
}

func (d *Device) checkWrite(w gpu.DescriptorWrite) error {
	set, ok := w.Set.(*descriptorSet)
	if !ok || set.destroyed {
		return invalid("write to a dead descriptor set")
	}
	b, ok := set.layout.binding(w.Binding)
	if !ok {
		return invalid("set #%d has no binding %d", set.id, w.Binding)
	}
	if b.Type != w.Type {
		return invalid("binding %d is %s, written as %s", w.Binding, b.Type, w.Type)
	}
	switch w.Type {
	case core1_0.DescriptorTypeUniformBuffer:
		buf, ok := w.Buffer.(*buffer)
		if !ok || buf.destroyed {
			return invalid("uniform write needs a live buffer")
		}
		if buf.desc.Usage&core1_0.BufferUsageUniformBuffer == 0 {
			return invalid("buffer #%d lacks uniform usage", buf.id)
		}
		if w.Range <= 0 || w.Range > buf.desc.Size {
			return invalid("uniform range %d is outside buffer #%d of %d bytes", w.Range, buf.id, buf.desc.Size)
		}
	case core1_0.DescriptorTypeCombinedImageSampler, core1_0.DescriptorTypeInputAttachment:
		view, ok := w.View.(*imageView)
		if !ok || view.destroyed {
			return invalid("image write needs a live view")
		}
		usage := core1_0.ImageUsageFlags(core1_0.ImageUsageSampled)
		if w.Type == core1_0.DescriptorTypeInputAttachment {
			usage = core1_0.ImageUsageInputAttachment
		} else if s, ok := w.Sampler.(*sampler); !ok || s.destroyed {
			return invalid("combined image sampler write needs a live sampler")
		}
		if view.img.desc.Usage&usage == 0 {
			return invalid("image #%d lacks usage %s", view.img.id, usage)
		}
		if w.Layout != core1_0.ImageLayoutShaderReadOnlyOptimal {
			return invalid("image descriptors must be read in shader-read-only layout, got %s", w.Layout)
		}
	default:
		return invalid("descriptor type %s is not supported", w.Type)
	}
	return nil
}

type pipelineLayout struct {
	object
	desc gpu.PipelineLayoutDesc
}

func (d *Device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	for i, l := range desc.SetLayouts {
		if layout, ok := l.(*descriptorSetLayout); !ok || layout.destroyed {
			return nil, invalid("set layout %d is not live", i)
		}
	}
	for _, r := range desc.PushConstants {
		if r.Size <= 0 || r.Size%4 != 0 || r.Offset%4 != 0 {
			return nil, invalid("push constant range %d+%d is not 4-byte aligned", r.Offset, r.Size)
		}
		if r.Offset+r.Size > maxPushConstantsSize {
			return nil, invalid("push constant range %d+%d exceeds %d bytes", r.Offset, r.Size, maxPushConstantsSize)
		}
	}
	return &pipelineLayout{object: d.track("pipeline-layout"), desc: desc}, nil
}

func (l *pipelineLayout) Destroy() { l.release() }

type pipeline struct {
	object
	desc gpu.GraphicsPipelineDesc
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if layout, ok := desc.Layout.(*pipelineLayout); !ok || layout.destroyed {
		return nil, invalid("pipeline needs a live layout")
	}
	rp, ok := desc.RenderPass.(*renderPass)
	if !ok || rp.destroyed {
		return nil, invalid("pipeline needs a live render pass")
	}
	if desc.Subpass < 0 || desc.Subpass >= len(rp.desc.Subpasses) {
		return nil, invalid("subpass %d does not exist in a render pass with %d subpasses", desc.Subpass, len(rp.desc.Subpasses))
	}
	for _, stage := range []gpu.ShaderModule{desc.VertexShader, desc.FragmentShader} {
		if m, ok := stage.(*shaderModule); !ok || m.destroyed {
			return nil, invalid("pipeline needs live vertex and fragment shaders")
		}
	}
	bindings := map[int]bool{}
	for _, b := range desc.VertexBindings {
		bindings[b.Binding] = true
	}
	for _, a := range desc.VertexAttributes {
		if !bindings[a.Binding] {
			return nil, invalid("vertex attribute at location %d uses undeclared binding %d", a.Location, a.Binding)
		}
	}

	subpass := rp.desc.Subpasses[desc.Subpass]
	if desc.ColorAttachments != len(subpass.Colors) {
		return nil, invalid("pipeline blends %d colour attachments, subpass %d has %d", desc.ColorAttachments, desc.Subpass, len(subpass.Colors))
	}
	samples := desc.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}
	for _, ref := range subpass.Colors {
		if got := rp.desc.Attachments[ref.Attachment].Samples; got != samples {
			return nil, invalid("pipeline rasterizes with %s, colour attachment %d has %s", samples, ref.Attachment, got)
		}
	}
	if (desc.DepthTest || desc.DepthWrite) && subpass.DepthStencil == nil {
		return nil, invalid("depth testing in subpass %d without a depth attachment", desc.Subpass)
	}
	return &pipeline{object: d.track("pipeline"), desc: desc}, nil
}

func (p *pipeline) Subpass() int { return p.desc.Subpass }
func (p *pipeline) Destroy()     { p.release() }

type framebuffer struct {
	object
	rp    *renderPass
	views []*imageView
	desc  gpu.FramebufferDesc
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	rp, ok := desc.RenderPass.(*renderPass)
	if !ok || rp.destroyed {
		return nil, invalid("framebuffer needs a live render pass")
	}
	if len(desc.Attachments) != len(rp.desc.Attachments) {
		return nil, invalid("framebuffer has %d attachments, render pass expects %d", len(desc.Attachments), len(rp.desc.Attachments))
	}
	views := make([]*imageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		view, ok := a.(*imageView)
		if !ok || view.destroyed {
			return nil, invalid("framebuffer attachment %d is not a live view", i)
		}
		want := rp.desc.Attachments[i]
		if view.desc.Format != want.Format {
			return nil, invalid("attachment %d format %s, render pass expects %s", i, view.desc.Format, want.Format)
		}
		if view.img.desc.Samples != want.Samples {
			return nil, invalid("attachment %d has %s, render pass expects %s", i, view.img.desc.Samples, want.Samples)
		}
		if view.img.desc.Width < desc.Width || view.img.desc.Height < desc.Height {
			return nil, invalid("attachment %d is smaller than the framebuffer", i)
		}
		views[i] = view
	}
	return &framebuffer{object: d.track("framebuffer"), rp: rp, views: views, desc: desc}, nil
}

func (f *framebuffer) Destroy() { f.release() }
