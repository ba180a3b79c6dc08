package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type commandPool struct {
	dev  *Device
	pool core1_0.CommandPool
}

func (d *Device) CreateCommandPool() (gpu.CommandPool, error) {
	pool, _, err := d.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: d.families.graphics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &commandPool{dev: d, pool: pool}, nil
}

func (p *commandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	raw, _, err := p.dev.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d command buffers", count)
	}
	out := make([]gpu.CommandBuffer, len(raw))
	for i, cb := range raw {
		out[i] = &commandBuffer{buffer: cb}
	}
	return out, nil
}

func (p *commandPool) Free(buffers ...gpu.CommandBuffer) {
	raw := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		if cb, ok := b.(*commandBuffer); ok {
			raw = append(raw, cb.buffer)
		}
	}
	if len(raw) > 0 {
		p.dev.device.FreeCommandBuffers(raw)
	}
}

func (p *commandPool) Destroy() { p.pool.Destroy(nil) }

// commandBuffer keeps the first recording error and reports it from End.
type commandBuffer struct {
	buffer core1_0.CommandBuffer
	err    error
}

func (c *commandBuffer) fail(err error) {
	if c.err == nil && err != nil {
		c.err = err
	}
}

func (c *commandBuffer) Begin(oneTimeSubmit bool) error {
	c.err = nil
	var info core1_0.CommandBufferBeginInfo
	if oneTimeSubmit {
		info.Flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err := c.buffer.Begin(info)
	return errors.Wrap(err, "begin command buffer")
}

func (c *commandBuffer) End() error {
	if c.err != nil {
		return errors.Wrap(c.err, "record command buffer")
	}
	_, err := c.buffer.End()
	return errors.Wrap(err, "end command buffer")
}

func unwrapImage(c *commandBuffer, img gpu.Image) core1_0.Image {
	i, ok := img.(*image)
	if !ok {
		c.fail(foreign("image", img))
		return nil
	}
	return i.image
}

func unwrapBuffer(c *commandBuffer, buf gpu.Buffer) core1_0.Buffer {
	b, ok := buf.(*buffer)
	if !ok {
		c.fail(foreign("buffer", buf))
		return nil
	}
	return b.buffer
}

func unwrapLayout(c *commandBuffer, layout gpu.PipelineLayout) core1_0.PipelineLayout {
	l, ok := layout.(*pipelineLayout)
	if !ok {
		c.fail(foreign("pipeline layout", layout))
		return nil
	}
	return l.layout
}

func (c *commandBuffer) PipelineBarrier(srcStages, dstStages core1_0.PipelineStageFlags, barriers ...gpu.ImageBarrier) {
	raw := make([]core1_0.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		raw = append(raw, core1_0.ImageMemoryBarrier{
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               unwrapImage(c, b.Image),
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     b.Aspect,
				BaseMipLevel:   b.BaseMipLevel,
				LevelCount:     b.LevelCount,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: b.SrcAccess,
			DstAccessMask: b.DstAccess,
		})
	}
	if c.err != nil {
		return
	}
	c.fail(c.buffer.CmdPipelineBarrier(srcStages, dstStages, 0, nil, nil, raw))
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, regions ...core1_0.BufferCopy) {
	s, d := unwrapBuffer(c, src), unwrapBuffer(c, dst)
	if c.err != nil {
		return
	}
	c.fail(c.buffer.CmdCopyBuffer(s, d, regions))
}

func (c *commandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) {
	s, d := unwrapBuffer(c, src), unwrapImage(c, dst)
	if c.err != nil {
		return
	}
	c.fail(c.buffer.CmdCopyBufferToImage(s, d, layout, regions))
}

func (c *commandBuffer) BlitImage(src gpu.Image, srcLayout core1_0.ImageLayout, dst gpu.Image, dstLayout core1_0.ImageLayout, filter core1_0.Filter, regions ...core1_0.ImageBlit) {
	s, d := unwrapImage(c, src), unwrapImage(c, dst)
	if c.err != nil {
		return
	}
	c.fail(c.buffer.CmdBlitImage(s, srcLayout, d, dstLayout, regions, filter))
}

func (c *commandBuffer) BeginRenderPass(info gpu.RenderPassBegin) {
	rp, ok := info.RenderPass.(*renderPass)
	if !ok {
		c.fail(foreign("render pass", info.RenderPass))
		return
	}
	fb, ok := info.Framebuffer.(*framebuffer)
	if !ok {
		c.fail(foreign("framebuffer", info.Framebuffer))
		return
	}
	c.fail(c.buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  rp.renderPass,
		Framebuffer: fb.framebuffer,
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: info.Extent,
		},
		ClearValues: info.ClearValues,
	}))
}

func (c *commandBuffer) NextSubpass()   { c.buffer.CmdNextSubpass(core1_0.SubpassContentsInline) }
func (c *commandBuffer) EndRenderPass() { c.buffer.CmdEndRenderPass() }

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	pl, ok := p.(*pipeline)
	if !ok {
		c.fail(foreign("pipeline", p))
		return
	}
	c.buffer.CmdBindPipeline(core1_0.PipelineBindPointGraphics, pl.pipeline)
}

func (c *commandBuffer) BindVertexBuffers(buffers ...gpu.Buffer) {
	raw := make([]core1_0.Buffer, len(buffers))
	offsets := make([]int, len(buffers))
	for i, b := range buffers {
		raw[i] = unwrapBuffer(c, b)
	}
	if c.err != nil {
		return
	}
	c.buffer.CmdBindVertexBuffers(0, raw, offsets)
}

func (c *commandBuffer) BindIndexBuffer(buf gpu.Buffer, indexType core1_0.IndexType) {
	b := unwrapBuffer(c, buf)
	if c.err != nil {
		return
	}
	c.buffer.CmdBindIndexBuffer(b, 0, indexType)
}

func (c *commandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, sets ...gpu.DescriptorSet) {
	l := unwrapLayout(c, layout)
	raw := make([]core1_0.DescriptorSet, len(sets))
	for i, s := range sets {
		set, ok := s.(*descriptorSet)
		if !ok {
			c.fail(foreign("descriptor set", s))
			return
		}
		raw[i] = set.set
	}
	if c.err != nil {
		return
	}
	c.buffer.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, l, raw, nil)
}

func (c *commandBuffer) PushConstants(layout gpu.PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) {
	l := unwrapLayout(c, layout)
	if c.err != nil {
		return
	}
	c.buffer.CmdPushConstants(l, stages, offset, data)
}

func (c *commandBuffer) Draw(vertexCount, instanceCount int) {
	c.buffer.CmdDraw(vertexCount, instanceCount, 0, 0)
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount int) {
	c.buffer.CmdDrawIndexed(indexCount, instanceCount, 0, 0, 0)
}
