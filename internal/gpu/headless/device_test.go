package headless

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// assertMarked checks err against a sentinel attached with errors.Mark,
// which the standard library's errors.Is cannot see.
func assertMarked(t *testing.T, err, target error, msgAndArgs ...any) bool {
	t.Helper()
	if errors.Is(err, target) {
		return true
	}
	return assert.Fail(t, fmt.Sprintf("error %q is not marked %q", err, target), msgAndArgs...)
}

func requireMarked(t *testing.T, err, target error, msgAndArgs ...any) {
	t.Helper()
	if !assertMarked(t, err, target, msgAndArgs...) {
		t.FailNow()
	}
}

func hostBuffer(t *testing.T, d *Device, size int, usage core1_0.BufferUsageFlags) gpu.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(gpu.BufferDesc{
		Size:   size,
		Usage:  usage,
		Memory: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	})
	require.NoError(t, err)
	return b
}

func oneShot(t *testing.T, d *Device, record func(cb gpu.CommandBuffer)) error {
	t.Helper()
	pool, err := d.CreateCommandPool()
	require.NoError(t, err)
	defer pool.Destroy()
	cbs, err := pool.Allocate(1)
	require.NoError(t, err)
	require.NoError(t, cbs[0].Begin(true))
	record(cbs[0])
	if err := cbs[0].End(); err != nil {
		return err
	}
	return d.GraphicsQueue().Submit(nil, gpu.SubmitInfo{CommandBuffers: cbs})
}

func TestCopyBufferExecutesOnSubmit(t *testing.T) {
	d := New(Options{})
	src := hostBuffer(t, d, 8, core1_0.BufferUsageTransferSrc)
	dst := hostBuffer(t, d, 8, core1_0.BufferUsageTransferDst)
	require.NoError(t, src.Write(0, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	err := oneShot(t, d, func(cb gpu.CommandBuffer) {
		cb.CopyBuffer(src, dst, core1_0.BufferCopy{SrcOffset: 2, DstOffset: 0, Size: 4})
	})
	require.NoError(t, err)

	got, err := dst.Read(0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6, 0, 0, 0, 0}, got)
}

func TestCopyBufferRequiresTransferUsage(t *testing.T) {
	d := New(Options{})
	src := hostBuffer(t, d, 8, core1_0.BufferUsageVertexBuffer)
	dst := hostBuffer(t, d, 8, core1_0.BufferUsageTransferDst)

	err := oneShot(t, d, func(cb gpu.CommandBuffer) {
		cb.CopyBuffer(src, dst, core1_0.BufferCopy{Size: 8})
	})
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Contains(t, err.Error(), "transfer-src")
}

func TestDeviceLocalMemoryIsNotMappable(t *testing.T) {
	d := New(Options{})
	b, err := d.CreateBuffer(gpu.BufferDesc{Size: 4, Usage: core1_0.BufferUsageVertexBuffer, Memory: core1_0.MemoryPropertyDeviceLocal})
	require.NoError(t, err)
	assertMarked(t, b.Write(0, []byte{1}), gpu.ErrNotHostVisible)
	_, err = b.Read(0, 4)
	assertMarked(t, err, gpu.ErrNotHostVisible)
}

func TestBarrierChecksOldLayout(t *testing.T) {
	d := New(Options{})
	img, err := d.CreateImage(gpu.ImageDesc{
		Width: 4, Height: 4, MipLevels: 3,
		Format: core1_0.FormatR8G8B8A8SRGB, Tiling: core1_0.ImageTilingOptimal,
		Usage:  core1_0.ImageUsageSampled | core1_0.ImageUsageTransferDst,
		Memory: core1_0.MemoryPropertyDeviceLocal,
	})
	require.NoError(t, err)

	err = oneShot(t, d, func(cb gpu.CommandBuffer) {
		cb.PipelineBarrier(core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, gpu.ImageBarrier{
			Image: img, OldLayout: core1_0.ImageLayoutUndefined, NewLayout: core1_0.ImageLayoutTransferDstOptimal,
			Aspect: core1_0.ImageAspectColor, LevelCount: 3,
		})
	})
	require.NoError(t, err)
	for level := 0; level < 3; level++ {
		assert.Equal(t, core1_0.ImageLayoutTransferDstOptimal, Layout(img, level))
	}

	err = oneShot(t, d, func(cb gpu.CommandBuffer) {
		cb.PipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, gpu.ImageBarrier{
			Image: img, OldLayout: core1_0.ImageLayoutTransferSrcOptimal, NewLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			Aspect: core1_0.ImageAspectColor, BaseMipLevel: 1, LevelCount: 1,
		})
	})
	requireMarked(t, err, gpu.ErrInvalidUsage)
}

func TestCreateImageRejectsTooManyMips(t *testing.T) {
	d := New(Options{})
	_, err := d.CreateImage(gpu.ImageDesc{
		Width: 8, Height: 2, MipLevels: 5,
		Format: core1_0.FormatR8G8B8A8SRGB, Usage: core1_0.ImageUsageSampled,
		Memory: core1_0.MemoryPropertyDeviceLocal,
	})
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Equal(t, 4, maxMipLevels(8, 2))
	assert.Equal(t, 1, maxMipLevels(1, 1))
}

func TestUnsupportedSampleCount(t *testing.T) {
	d := New(Options{ColorSamples: core1_0.Samples1 | core1_0.Samples2})
	_, err := d.CreateImage(gpu.ImageDesc{
		Width: 8, Height: 8, MipLevels: 1, Samples: core1_0.Samples4,
		Format: core1_0.FormatR8G8B8A8SRGB, Usage: core1_0.ImageUsageColorAttachment,
		Memory: core1_0.MemoryPropertyDeviceLocal,
	})
	requireMarked(t, err, gpu.ErrInvalidUsage)
}

func TestRenderPassRejectsInputWithoutDependency(t *testing.T) {
	d := New(Options{})
	desc := gpu.RenderPassDesc{
		Attachments: []gpu.AttachmentDesc{
			{Format: core1_0.FormatB8G8R8A8SRGB, Samples: core1_0.Samples1, FinalLayout: khr_swapchain.ImageLayoutPresentSrc},
			{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Samples: core1_0.Samples1, FinalLayout: core1_0.ImageLayoutColorAttachmentOptimal},
		},
		Subpasses: []gpu.SubpassDesc{
			{Colors: []gpu.AttachmentRef{{Attachment: 1, Layout: core1_0.ImageLayoutColorAttachmentOptimal}}},
			{
				Inputs: []gpu.AttachmentRef{{Attachment: 1, Layout: core1_0.ImageLayoutShaderReadOnlyOptimal}},
				Colors: []gpu.AttachmentRef{{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal}},
			},
		},
	}
	_, err := d.CreateRenderPass(desc)
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Contains(t, err.Error(), "no dependency")

	desc.Dependencies = []gpu.Dependency{{
		Src: 0, Dst: 1,
		SrcStages: core1_0.PipelineStageColorAttachmentOutput,
		DstStages: core1_0.PipelineStageFragmentShader,
		SrcAccess: core1_0.AccessColorAttachmentWrite,
		DstAccess: core1_0.AccessShaderRead,
		ByRegion:  true,
	}}
	_, err = d.CreateRenderPass(desc)
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Contains(t, err.Error(), "input reads")

	desc.Dependencies[0].DstAccess |= core1_0.AccessInputAttachmentRead
	rp, err := d.CreateRenderPass(desc)
	require.NoError(t, err)
	rp.Destroy()
}

func TestRenderPassRejectsResolveIntoMultisampled(t *testing.T) {
	d := New(Options{})
	_, err := d.CreateRenderPass(gpu.RenderPassDesc{
		Attachments: []gpu.AttachmentDesc{
			{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Samples: core1_0.Samples4},
			{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, Samples: core1_0.Samples4},
		},
		Subpasses: []gpu.SubpassDesc{{
			Colors:   []gpu.AttachmentRef{{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal}},
			Resolves: []gpu.AttachmentRef{{Attachment: 1, Layout: core1_0.ImageLayoutColorAttachmentOptimal}},
		}},
	})
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Contains(t, err.Error(), "multisampled")
}

func TestDescriptorPoolCapacity(t *testing.T) {
	d := New(Options{})
	layout, err := d.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0, Type: core1_0.DescriptorTypeCombinedImageSampler, Count: 1, Stages: core1_0.StageFragment,
	}})
	require.NoError(t, err)
	pool, err := d.CreateDescriptorPool(gpu.DescriptorPoolDesc{
		MaxSets: 2,
		Sizes:   []core1_0.DescriptorPoolSize{{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: 2}},
	})
	require.NoError(t, err)

	_, err = pool.Allocate(layout, layout)
	require.NoError(t, err)
	assert.Equal(t, 2, d.LiveCount("descriptor-set"))

	_, err = pool.Allocate(layout)
	requireMarked(t, err, gpu.ErrInvalidUsage)

	pool.Destroy()
	layout.Destroy()
	assert.Empty(t, d.Live())
}

func TestFenceProtocol(t *testing.T) {
	d := New(Options{})
	f, err := d.CreateFence(false)
	require.NoError(t, err)

	err = d.WaitForFences(f)
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Contains(t, err.Error(), "deadlock")

	require.NoError(t, d.GraphicsQueue().Submit(f))
	require.NoError(t, d.WaitForFences(f))
	requireMarked(t, d.GraphicsQueue().Submit(f), gpu.ErrInvalidUsage)

	require.NoError(t, d.ResetFences(f))
	require.NoError(t, d.GraphicsQueue().Submit(f))

	id := ObjectID(f)
	assert.Equal(t, []Event{
		{Kind: EventFenceWait, Object: id, Image: -1},
		{Kind: EventSubmit, Object: id, Image: -1},
		{Kind: EventFenceSignal, Object: id, Image: -1},
		{Kind: EventFenceWait, Object: id, Image: -1},
		{Kind: EventFenceReset, Object: id, Image: -1},
		{Kind: EventSubmit, Object: id, Image: -1},
		{Kind: EventFenceSignal, Object: id, Image: -1},
	}, d.Events())
}

func TestSwapchainAcquirePresent(t *testing.T) {
	d := New(Options{SwapchainImages: 2, Extent: core1_0.Extent2D{Width: 64, Height: 32}})
	sc, err := d.CreateSwapchain(gpu.SwapchainDesc{
		ImageCount:  2,
		Format:      khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		Extent:      core1_0.Extent2D{Width: 64, Height: 32},
		PresentMode: khr_surface.PresentModeFIFO,
	})
	require.NoError(t, err)
	require.Len(t, sc.Images(), 2)

	sem, err := d.CreateSemaphore()
	require.NoError(t, err)
	idx, err := sc.AcquireNextImage(sem)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.True(t, Signaled(sem))

	_, err = sc.AcquireNextImage(sem)
	requireMarked(t, err, gpu.ErrInvalidUsage, "semaphore is still signaled")

	err = d.PresentQueue().Present(gpu.PresentInfo{WaitSemaphores: []gpu.Semaphore{sem}, Swapchain: sc, ImageIndex: idx})
	requireMarked(t, err, gpu.ErrInvalidUsage, "image was never rendered to present layout")

	d.Resize(core1_0.Extent2D{Width: 128, Height: 64})
	other, err := d.CreateSemaphore()
	require.NoError(t, err)
	_, err = sc.AcquireNextImage(other)
	requireMarked(t, err, gpu.ErrOutOfDate)
	assert.True(t, gpu.IsSwapchainStale(err))

	support, err := d.SurfaceSupport()
	require.NoError(t, err)
	assert.Equal(t, core1_0.Extent2D{Width: 128, Height: 64}, support.CurrentExtent)

	sc.Destroy()
	sem.Destroy()
	other.Destroy()
	assert.Empty(t, d.Live())
}

func TestPresentSourceLayoutAfterRenderPass(t *testing.T) {
	d := New(Options{SwapchainImages: 2, Extent: core1_0.Extent2D{Width: 16, Height: 16}})
	format := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	sc, err := d.CreateSwapchain(gpu.SwapchainDesc{ImageCount: 2, Format: format, Extent: core1_0.Extent2D{Width: 16, Height: 16}})
	require.NoError(t, err)

	rp, err := d.CreateRenderPass(gpu.RenderPassDesc{
		Attachments: []gpu.AttachmentDesc{{
			Format: format.Format, Samples: core1_0.Samples1,
			LoadOp: core1_0.AttachmentLoadOpClear, StoreOp: core1_0.AttachmentStoreOpStore,
			InitialLayout: core1_0.ImageLayoutUndefined, FinalLayout: khr_swapchain.ImageLayoutPresentSrc,
		}},
		Subpasses: []gpu.SubpassDesc{{Colors: []gpu.AttachmentRef{{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal}}}},
	})
	require.NoError(t, err)
	view, err := d.CreateImageView(gpu.ImageViewDesc{Image: sc.Images()[0], Format: format.Format, Aspect: core1_0.ImageAspectColor, MipLevels: 1})
	require.NoError(t, err)
	fb, err := d.CreateFramebuffer(gpu.FramebufferDesc{RenderPass: rp, Attachments: []gpu.ImageView{view}, Width: 16, Height: 16})
	require.NoError(t, err)

	sem, err := d.CreateSemaphore()
	require.NoError(t, err)
	idx, err := sc.AcquireNextImage(sem)
	require.NoError(t, err)

	err = oneShot(t, d, func(cb gpu.CommandBuffer) {
		cb.BeginRenderPass(gpu.RenderPassBegin{
			RenderPass: rp, Framebuffer: fb, Extent: core1_0.Extent2D{Width: 16, Height: 16},
			ClearValues: []core1_0.ClearValue{core1_0.ClearValueFloat{0, 0, 0, 1}},
		})
		cb.EndRenderPass()
	})
	require.NoError(t, err)
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, Layout(sc.Images()[idx], 0))
	require.NoError(t, d.PresentQueue().Present(gpu.PresentInfo{WaitSemaphores: []gpu.Semaphore{sem}, Swapchain: sc, ImageIndex: idx}))
}

func TestRecordingErrorsAreSticky(t *testing.T) {
	d := New(Options{})
	pool, err := d.CreateCommandPool()
	require.NoError(t, err)
	cbs, err := pool.Allocate(1)
	require.NoError(t, err)
	cb := cbs[0]

	require.NoError(t, cb.Begin(false))
	cb.NextSubpass()
	cb.EndRenderPass()
	err = cb.End()
	requireMarked(t, err, gpu.ErrInvalidUsage)
	assert.Contains(t, err.Error(), "next subpass outside")

	err = d.GraphicsQueue().Submit(nil, gpu.SubmitInfo{CommandBuffers: cbs})
	requireMarked(t, err, gpu.ErrInvalidUsage)

	require.NoError(t, cb.Begin(false))
	require.NoError(t, cb.End())
	require.NoError(t, d.GraphicsQueue().Submit(nil, gpu.SubmitInfo{CommandBuffers: cbs}))

	pool.Destroy()
	assert.Zero(t, d.LiveCount("command-buffer"))
}
