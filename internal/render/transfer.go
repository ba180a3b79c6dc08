package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

const stagingMemory = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// MipLevels is the length of a full mip chain for a width x height image.
func MipLevels(width, height int) int {
	levels := 1
	for n := max(width, height); n > 1; n >>= 1 {
		levels++
	}
	return levels
}

// MipExtent is the size of one level of a mip chain.
func MipExtent(width, height, level int) core1_0.Extent2D {
	return core1_0.Extent2D{Width: max(1, width>>level), Height: max(1, height>>level)}
}

// TransferUnit moves data between host and device-local memory. Every call
// is synchronous: it returns after the graphics queue has gone idle.
type TransferUnit struct {
	ctx *DeviceContext
}

func NewTransferUnit(ctx *DeviceContext) *TransferUnit {
	return &TransferUnit{ctx: ctx}
}

func (t *TransferUnit) createBuffer(size int, usage core1_0.BufferUsageFlags, memory core1_0.MemoryPropertyFlags) (gpu.Buffer, error) {
	buf, err := t.ctx.Device.CreateBuffer(gpu.BufferDesc{Size: size, Usage: usage, Memory: memory})
	if err != nil {
		return nil, resourceErr(err, "create %d byte buffer", size)
	}
	return buf, nil
}

func (t *TransferUnit) staging(data []byte) (gpu.Buffer, error) {
	buf, err := t.createBuffer(len(data), core1_0.BufferUsageTransferSrc, stagingMemory)
	if err != nil {
		return nil, errors.Wrap(err, "staging buffer")
	}
	if err := buf.Write(0, data); err != nil {
		buf.Destroy()
		return nil, resourceErr(err, "fill staging buffer")
	}
	return buf, nil
}

// oneShot records and submits a single command buffer, then waits for the
// queue to drain.
func (t *TransferUnit) oneShot(record func(cb gpu.CommandBuffer)) error {
	cbs, err := t.ctx.CommandPool.Allocate(1)
	if err != nil {
		return resourceErr(err, "allocate transfer command buffer")
	}
	defer t.ctx.CommandPool.Free(cbs...)

	cb := cbs[0]
	if err := cb.Begin(true); err != nil {
		return errors.Wrap(err, "begin transfer commands")
	}
	record(cb)
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "record transfer commands")
	}
	if err := t.ctx.Graphics.Submit(nil, gpu.SubmitInfo{CommandBuffers: cbs}); err != nil {
		return errors.Wrap(err, "submit transfer commands")
	}
	return errors.Wrap(t.ctx.Graphics.WaitIdle(), "wait for transfer")
}

// Upload copies data into a new device-local buffer. The buffer is created
// with usage plus both transfer bits, so it can later be read back.
func (t *TransferUnit) Upload(data []byte, usage core1_0.BufferUsageFlags) (gpu.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.Mark(errors.New("upload of zero bytes"), ErrResource)
	}
	stage, err := t.staging(data)
	if err != nil {
		return nil, err
	}
	defer stage.Destroy()

	dst, err := t.createBuffer(len(data), usage|core1_0.BufferUsageTransferDst|core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}
	err = t.oneShot(func(cb gpu.CommandBuffer) {
		cb.CopyBuffer(stage, dst, core1_0.BufferCopy{Size: len(data)})
	})
	if err != nil {
		dst.Destroy()
		return nil, resourceErr(err, "upload %d bytes", len(data))
	}
	return dst, nil
}

// Download reads size bytes back from a buffer with transfer-src usage.
func (t *TransferUnit) Download(src gpu.Buffer, size int) ([]byte, error) {
	if size <= 0 || size > src.Size() {
		return nil, errors.Mark(errors.Newf("download of %d bytes from a %d byte buffer", size, src.Size()), ErrResource)
	}
	readback, err := t.createBuffer(size, core1_0.BufferUsageTransferDst, stagingMemory)
	if err != nil {
		return nil, errors.Wrap(err, "readback buffer")
	}
	defer readback.Destroy()

	err = t.oneShot(func(cb gpu.CommandBuffer) {
		cb.CopyBuffer(src, readback, core1_0.BufferCopy{Size: size})
	})
	if err != nil {
		return nil, resourceErr(err, "download %d bytes", size)
	}
	data, err := readback.Read(0, size)
	if err != nil {
		return nil, resourceErr(err, "map readback buffer")
	}
	return data, nil
}

// UploadTexture creates a sampled image from RGBA8 pixels. With mipmaps the
// full chain is generated on the device; either way every level ends in
// shader-read-only layout.
func (t *TransferUnit) UploadTexture(px assets.Pixels, format core1_0.Format, mipmaps bool) (gpu.Image, error) {
	if px.Width <= 0 || px.Height <= 0 || len(px.Data) != px.Size() {
		return nil, errors.Mark(errors.Newf("pixel buffer of %d bytes does not match %dx%d", len(px.Data), px.Width, px.Height), ErrResource)
	}
	levels := 1
	usage := core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled
	if mipmaps {
		levels = MipLevels(px.Width, px.Height)
		usage |= core1_0.ImageUsageTransferSrc
		features := t.ctx.Device.FormatFeatures(format, core1_0.ImageTilingOptimal)
		if features&core1_0.FormatFeatureSampledImageFilterLinear == 0 {
			return nil, errors.Mark(errors.Newf("format %s does not support linear blitting", format), ErrResource)
		}
	}

	stage, err := t.staging(px.Data)
	if err != nil {
		return nil, err
	}
	defer stage.Destroy()

	img, err := t.ctx.CreateImage(px.Width, px.Height, format, core1_0.ImageTilingOptimal, usage,
		core1_0.MemoryPropertyDeviceLocal, levels, core1_0.Samples1)
	if err != nil {
		return nil, err
	}

	err = t.oneShot(func(cb gpu.CommandBuffer) {
		cb.PipelineBarrier(core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, gpu.ImageBarrier{
			Image:      img,
			OldLayout:  core1_0.ImageLayoutUndefined,
			NewLayout:  core1_0.ImageLayoutTransferDstOptimal,
			DstAccess:  core1_0.AccessTransferWrite,
			Aspect:     core1_0.ImageAspectColor,
			LevelCount: levels,
		})
		cb.CopyBufferToImage(stage, img, core1_0.ImageLayoutTransferDstOptimal, core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask: core1_0.ImageAspectColor,
				LayerCount: 1,
			},
			ImageExtent: core1_0.Extent3D{Width: px.Width, Height: px.Height, Depth: 1},
		})
		if levels > 1 {
			generateMipmaps(cb, img, px.Width, px.Height, levels)
			return
		}
		cb.PipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, gpu.ImageBarrier{
			Image:      img,
			OldLayout:  core1_0.ImageLayoutTransferDstOptimal,
			NewLayout:  core1_0.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess:  core1_0.AccessTransferWrite,
			DstAccess:  core1_0.AccessShaderRead,
			Aspect:     core1_0.ImageAspectColor,
			LevelCount: 1,
		})
	})
	if err != nil {
		img.Destroy()
		return nil, resourceErr(err, "upload %dx%d texture", px.Width, px.Height)
	}
	return img, nil
}

// generateMipmaps expects every level in transfer-dst layout with level 0
// filled. Each level is blitted from the one above it, which is then handed
// to the fragment shader.
func generateMipmaps(cb gpu.CommandBuffer, img gpu.Image, width, height, levels int) {
	level := func(i int, from, to core1_0.ImageLayout, src, dst core1_0.AccessFlags) gpu.ImageBarrier {
		return gpu.ImageBarrier{
			Image:        img,
			OldLayout:    from,
			NewLayout:    to,
			SrcAccess:    src,
			DstAccess:    dst,
			Aspect:       core1_0.ImageAspectColor,
			BaseMipLevel: i,
			LevelCount:   1,
		}
	}

	for i := 1; i < levels; i++ {
		cb.PipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer,
			level(i-1, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutTransferSrcOptimal,
				core1_0.AccessTransferWrite, core1_0.AccessTransferRead))

		src, dst := MipExtent(width, height, i-1), MipExtent(width, height, i)
		cb.BlitImage(img, core1_0.ImageLayoutTransferSrcOptimal, img, core1_0.ImageLayoutTransferDstOptimal, core1_0.FilterLinear,
			core1_0.ImageBlit{
				SrcSubresource: core1_0.ImageSubresourceLayers{AspectMask: core1_0.ImageAspectColor, MipLevel: i - 1, LayerCount: 1},
				SrcOffsets:     [2]core1_0.Offset3D{{}, {X: src.Width, Y: src.Height, Z: 1}},
				DstSubresource: core1_0.ImageSubresourceLayers{AspectMask: core1_0.ImageAspectColor, MipLevel: i, LayerCount: 1},
				DstOffsets:     [2]core1_0.Offset3D{{}, {X: dst.Width, Y: dst.Height, Z: 1}},
			})

		cb.PipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader,
			level(i-1, core1_0.ImageLayoutTransferSrcOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal,
				core1_0.AccessTransferRead, core1_0.AccessShaderRead))
	}

	cb.PipelineBarrier(core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader,
		level(levels-1, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal,
			core1_0.AccessTransferWrite, core1_0.AccessShaderRead))
}
