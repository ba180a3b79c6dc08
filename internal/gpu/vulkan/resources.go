package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

func foreign(kind string, v any) error {
	return errors.Wrapf(gpu.ErrInvalidUsage, "%s %T was not created by the vulkan backend", kind, v)
}

type buffer struct {
	dev    *Device
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	desc   gpu.BufferDesc
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	buf, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        desc.Size,
		Usage:       desc.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %d byte buffer", desc.Size)
	}

	memory, err := d.allocate(buf.MemoryRequirements(), desc.Memory)
	if err != nil {
		buf.Destroy(nil)
		return nil, err
	}
	if _, err := buf.BindBufferMemory(memory, 0); err != nil {
		buf.Destroy(nil)
		memory.Free(nil)
		return nil, errors.Wrap(err, "bind buffer memory")
	}
	return &buffer{dev: d, buffer: buf, memory: memory, desc: desc}, nil
}

func (b *buffer) Size() int                       { return b.desc.Size }
func (b *buffer) Usage() core1_0.BufferUsageFlags { return b.desc.Usage }

func (b *buffer) mapped(offset, size int, fn func(mem []byte)) error {
	if b.desc.Memory&core1_0.MemoryPropertyHostVisible == 0 {
		return errors.Wrapf(gpu.ErrNotHostVisible, "buffer memory %s", b.desc.Memory)
	}
	if offset < 0 || size < 0 || offset+size > b.desc.Size {
		return errors.Wrapf(gpu.ErrInvalidUsage, "range %d+%d outside %d byte buffer", offset, size, b.desc.Size)
	}
	if size == 0 {
		return nil
	}
	ptr, _, err := b.memory.Map(offset, size, 0)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer b.memory.Unmap()
	fn(unsafe.Slice((*byte)(ptr), size))
	return nil
}

func (b *buffer) Write(offset int, data []byte) error {
	return b.mapped(offset, len(data), func(mem []byte) { copy(mem, data) })
}

func (b *buffer) Read(offset, size int) ([]byte, error) {
	out := make([]byte, size)
	err := b.mapped(offset, size, func(mem []byte) { copy(out, mem) })
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *buffer) Destroy() {
	b.buffer.Destroy(nil)
	b.memory.Free(nil)
}

type image struct {
	image  core1_0.Image
	memory core1_0.DeviceMemory // nil for swapchain images
	desc   gpu.ImageDesc
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	img, _, err := d.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   1,
		Format:        desc.Format,
		Tiling:        desc.Tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         desc.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       desc.Samples,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d image", desc.Width, desc.Height)
	}

	memory, err := d.allocate(img.MemoryRequirements(), desc.Memory)
	if err != nil {
		img.Destroy(nil)
		return nil, err
	}
	if _, err := img.BindImageMemory(memory, 0); err != nil {
		img.Destroy(nil)
		memory.Free(nil)
		return nil, errors.Wrap(err, "bind image memory")
	}
	return &image{image: img, memory: memory, desc: desc}, nil
}

func (i *image) Format() core1_0.Format            { return i.desc.Format }
func (i *image) MipLevels() int                    { return i.desc.MipLevels }
func (i *image) Samples() core1_0.SampleCountFlags { return i.desc.Samples }
func (i *image) Extent() core1_0.Extent2D {
	return core1_0.Extent2D{Width: i.desc.Width, Height: i.desc.Height}
}

func (i *image) Destroy() {
	if i.memory == nil {
		return
	}
	i.image.Destroy(nil)
	i.memory.Free(nil)
}

type imageView struct {
	view core1_0.ImageView
	img  gpu.Image
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	img, ok := desc.Image.(*image)
	if !ok {
		return nil, foreign("image", desc.Image)
	}
	view, _, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    img.image,
		ViewType: core1_0.ImageViewType2D,
		Format:   desc.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     desc.Aspect,
			BaseMipLevel:   0,
			LevelCount:     desc.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &imageView{view: view, img: img}, nil
}

func (v *imageView) Image() gpu.Image { return v.img }
func (v *imageView) Destroy()         { v.view.Destroy(nil) }

type sampler struct {
	sampler core1_0.Sampler
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	s, _, err := d.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		AddressModeU: desc.AddressMode,
		AddressModeV: desc.AddressMode,
		AddressModeW: desc.AddressMode,

		AnisotropyEnable: desc.Anisotropy > 0,
		MaxAnisotropy:    desc.Anisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     desc.MaxLod,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &sampler{sampler: s}, nil
}

func (s *sampler) Destroy() { s.sampler.Destroy(nil) }

type shaderModule struct {
	module core1_0.ShaderModule
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create shader module")
	}
	return &shaderModule{module: module}, nil
}

func (s *shaderModule) Destroy() { s.module.Destroy(nil) }

type framebuffer struct {
	framebuffer core1_0.Framebuffer
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	rp, ok := desc.RenderPass.(*renderPass)
	if !ok {
		return nil, foreign("render pass", desc.RenderPass)
	}
	views := make([]core1_0.ImageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		v, ok := a.(*imageView)
		if !ok {
			return nil, foreign("image view", a)
		}
		views[i] = v.view
	}
	fb, _, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  rp.renderPass,
		Layers:      1,
		Attachments: views,
		Width:       desc.Width,
		Height:      desc.Height,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d framebuffer", desc.Width, desc.Height)
	}
	return &framebuffer{framebuffer: fb}, nil
}

func (f *framebuffer) Destroy() { f.framebuffer.Destroy(nil) }
