// Package gpu is the narrow hardware interface the renderer drives. It mirrors
// the Vulkan object model one to one (instance-level selection happens inside
// a backend; everything from the logical device down is exposed here) and
// reuses the core1_0 enumeration and flag types so values pass straight
// through to the driver.
//
// Two backends implement it: package vulkan, on top of vkngwrapper, and
// package headless, a software device used by tests and smoke runs.
package gpu

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
)

// AdapterInfo describes the selected physical device.
type AdapterInfo struct {
	Name                         string
	FramebufferColorSampleCounts core1_0.SampleCountFlags
	FramebufferDepthSampleCounts core1_0.SampleCountFlags
	MaxSamplerAnisotropy         float32
}

// SurfaceSupport is what the presentation surface allows for swapchains.
// A CurrentExtent width of -1 means the surface size follows the swapchain.
type SurfaceSupport struct {
	MinImageCount  int
	MaxImageCount  int // 0 means unbounded
	CurrentExtent  core1_0.Extent2D
	MinImageExtent core1_0.Extent2D
	MaxImageExtent core1_0.Extent2D
	Formats        []khr_surface.SurfaceFormat
	PresentModes   []khr_surface.PresentMode
}

// Device is a logical device plus the queues the renderer uses.
type Device interface {
	Adapter() AdapterInfo
	FormatFeatures(format core1_0.Format, tiling core1_0.ImageTiling) core1_0.FormatFeatureFlags
	SurfaceSupport() (SurfaceSupport, error)

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateImage(desc ImageDesc) (Image, error)
	CreateImageView(desc ImageViewDesc) (ImageView, error)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	CreateShaderModule(code []uint32) (ShaderModule, error)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	UpdateDescriptorSets(writes []DescriptorWrite) error
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)

	// CreateCommandPool returns a pool on the graphics queue family whose
	// buffers may be re-recorded individually.
	CreateCommandPool() (CommandPool, error)
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	WaitForFences(fences ...Fence) error
	ResetFences(fences ...Fence) error

	GraphicsQueue() Queue
	PresentQueue() Queue

	WaitIdle() error
	Destroy()
}

// Queue submits recorded work and presents swapchain images.
type Queue interface {
	Submit(fence Fence, submits ...SubmitInfo) error
	Present(info PresentInfo) error
	WaitIdle() error
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	WaitSemaphores []Semaphore
	Swapchain      Swapchain
	ImageIndex     int
}

// Swapchain owns its images; their Destroy is a no-op.
type Swapchain interface {
	Images() []Image
	Format() core1_0.Format
	Extent() core1_0.Extent2D
	// AcquireNextImage returns the index immediately; signal is signaled once
	// the image may actually be written.
	AcquireNextImage(signal Semaphore) (int, error)
	Destroy()
}

type SwapchainDesc struct {
	ImageCount  int
	Format      khr_surface.SurfaceFormat
	Extent      core1_0.Extent2D
	PresentMode khr_surface.PresentMode
}

type Buffer interface {
	Size() int
	Usage() core1_0.BufferUsageFlags
	// Write and Read map the backing memory; both fail for memory that is
	// not host visible.
	Write(offset int, data []byte) error
	Read(offset, size int) ([]byte, error)
	Destroy()
}

type BufferDesc struct {
	Size   int
	Usage  core1_0.BufferUsageFlags
	Memory core1_0.MemoryPropertyFlags
}

type Image interface {
	Format() core1_0.Format
	Extent() core1_0.Extent2D
	MipLevels() int
	Samples() core1_0.SampleCountFlags
	Destroy()
}

type ImageDesc struct {
	Width, Height int
	MipLevels     int
	Format        core1_0.Format
	Tiling        core1_0.ImageTiling
	Usage         core1_0.ImageUsageFlags
	Memory        core1_0.MemoryPropertyFlags
	Samples       core1_0.SampleCountFlags
}

type ImageView interface {
	Image() Image
	Destroy()
}

type ImageViewDesc struct {
	Image     Image
	Format    core1_0.Format
	Aspect    core1_0.ImageAspectFlags
	MipLevels int
}

type Sampler interface {
	Destroy()
}

type SamplerDesc struct {
	MagFilter   core1_0.Filter
	MinFilter   core1_0.Filter
	AddressMode core1_0.SamplerAddressMode
	// Anisotropy of zero disables anisotropic filtering.
	Anisotropy float32
	MaxLod     float32
}

type ShaderModule interface {
	Destroy()
}

type DescriptorSetLayout interface {
	Bindings() []DescriptorBinding
	Destroy()
}

type DescriptorBinding struct {
	Binding int
	Type    core1_0.DescriptorType
	Count   int
	Stages  core1_0.ShaderStageFlags
}

type DescriptorPool interface {
	Allocate(layouts ...DescriptorSetLayout) ([]DescriptorSet, error)
	Destroy()
}

type DescriptorPoolDesc struct {
	MaxSets int
	Sizes   []core1_0.DescriptorPoolSize
}

// DescriptorSet is freed with its pool.
type DescriptorSet interface {
	Layout() DescriptorSetLayout
}

// DescriptorWrite fills one binding. Buffer writes use Buffer and Range;
// image writes use View, Layout and, for combined image samplers, Sampler.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding int
	Type    core1_0.DescriptorType
	Buffer  Buffer
	Range   int
	View    ImageView
	Sampler Sampler
	Layout  core1_0.ImageLayout
}

type PushConstantRange struct {
	Stages core1_0.ShaderStageFlags
	Offset int
	Size   int
}

type PipelineLayout interface {
	Destroy()
}

type PipelineLayoutDesc struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type Pipeline interface {
	Subpass() int
	Destroy()
}

type GraphicsPipelineDesc struct {
	Layout         PipelineLayout
	RenderPass     RenderPass
	Subpass        int
	VertexShader   ShaderModule
	FragmentShader ShaderModule

	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription
	Topology         core1_0.PrimitiveTopology

	Extent    core1_0.Extent2D
	Samples   core1_0.SampleCountFlags
	CullMode  core1_0.CullModeFlags
	FrontFace core1_0.FrontFace

	DepthTest    bool
	DepthWrite   bool
	DepthCompare core1_0.CompareOp

	ColorAttachments int
}

type Framebuffer interface {
	Destroy()
}

type FramebufferDesc struct {
	RenderPass    RenderPass
	Attachments   []ImageView
	Width, Height int
}

type CommandPool interface {
	Allocate(count int) ([]CommandBuffer, error)
	Free(buffers ...CommandBuffer)
	Destroy()
}

// CommandBuffer records GPU work. Recording calls do not return errors; the
// first failure is kept and reported by End.
type CommandBuffer interface {
	// Begin implicitly resets a previously recorded buffer.
	Begin(oneTimeSubmit bool) error
	End() error

	PipelineBarrier(srcStages, dstStages core1_0.PipelineStageFlags, barriers ...ImageBarrier)
	CopyBuffer(src, dst Buffer, regions ...core1_0.BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy)
	BlitImage(src Image, srcLayout core1_0.ImageLayout, dst Image, dstLayout core1_0.ImageLayout, filter core1_0.Filter, regions ...core1_0.ImageBlit)

	BeginRenderPass(info RenderPassBegin)
	NextSubpass()
	EndRenderPass()

	BindPipeline(pipeline Pipeline)
	BindVertexBuffers(buffers ...Buffer)
	BindIndexBuffer(buffer Buffer, indexType core1_0.IndexType)
	// BindDescriptorSets binds sets starting at set index 0.
	BindDescriptorSets(layout PipelineLayout, sets ...DescriptorSet)
	PushConstants(layout PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte)
	Draw(vertexCount, instanceCount int)
	DrawIndexed(indexCount, instanceCount int)
}

type ImageBarrier struct {
	Image        Image
	OldLayout    core1_0.ImageLayout
	NewLayout    core1_0.ImageLayout
	SrcAccess    core1_0.AccessFlags
	DstAccess    core1_0.AccessFlags
	Aspect       core1_0.ImageAspectFlags
	BaseMipLevel int
	LevelCount   int
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue
}

type Semaphore interface {
	Destroy()
}

type Fence interface {
	Destroy()
}
