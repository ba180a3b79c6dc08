package headless

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type commandPool struct {
	object
	buffers map[*commandBuffer]struct{}
}

func (d *Device) CreateCommandPool() (gpu.CommandPool, error) {
	return &commandPool{object: d.track("command-pool"), buffers: map[*commandBuffer]struct{}{}}, nil
}

func (p *commandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	if p.destroyed {
		return nil, invalid("allocate from destroyed command pool #%d", p.id)
	}
	if count < 1 {
		return nil, invalid("allocate %d command buffers", count)
	}
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		cb := &commandBuffer{object: p.dev.track("command-buffer"), pool: p}
		p.buffers[cb] = struct{}{}
		out[i] = cb
	}
	return out, nil
}

func (p *commandPool) Free(buffers ...gpu.CommandBuffer) {
	for _, b := range buffers {
		cb, ok := b.(*commandBuffer)
		if !ok || cb.pool != p {
			continue
		}
		delete(p.buffers, cb)
		cb.release()
	}
}

func (p *commandPool) Destroy() {
	for cb := range p.buffers {
		cb.release()
	}
	p.buffers = nil
	p.release()
}

type cmdState int

const (
	stateInitial cmdState = iota
	stateRecording
	stateExecutable
	stateInvalid
)

// op runs when the buffer is submitted.
type op func() error

type commandBuffer struct {
	object
	pool    *commandPool
	state   cmdState
	oneTime bool
	err     error
	ops     []op

	rp        *renderPass
	fb        *framebuffer
	subpass   int
	inPass    bool
	pipeline  *pipeline
	setsBound int
	vertex    bool
	index     bool
	push      []byte
}

func (c *commandBuffer) fail(format string, args ...any) {
	if c.err == nil {
		c.err = invalid(format, args...)
	}
}

func (c *commandBuffer) recording() bool {
	if c.destroyed {
		c.fail("record into freed command buffer #%d", c.id)
		return false
	}
	if c.state != stateRecording {
		c.fail("command buffer #%d is not recording", c.id)
		return false
	}
	return c.err == nil
}

func (c *commandBuffer) outsidePass(what string) bool {
	if c.inPass {
		c.fail("%s inside a render pass", what)
		return false
	}
	return true
}

func (c *commandBuffer) Begin(oneTimeSubmit bool) error {
	if c.destroyed {
		return invalid("begin freed command buffer #%d", c.id)
	}
	*c = commandBuffer{object: c.object, pool: c.pool, state: stateRecording, oneTime: oneTimeSubmit}
	return nil
}

func (c *commandBuffer) End() error {
	if c.state != stateRecording {
		return invalid("end command buffer #%d that is not recording", c.id)
	}
	if c.err == nil && c.inPass {
		c.fail("command buffer #%d ended inside a render pass", c.id)
	}
	if c.err != nil {
		c.state = stateInvalid
		return c.err
	}
	c.state = stateExecutable
	return nil
}

func (c *commandBuffer) PipelineBarrier(srcStages, dstStages core1_0.PipelineStageFlags, barriers ...gpu.ImageBarrier) {
	if !c.recording() || !c.outsidePass("pipeline barrier") {
		return
	}
	if srcStages == 0 || dstStages == 0 {
		c.fail("pipeline barrier with an empty stage mask")
		return
	}
	for _, b := range barriers {
		img, ok := b.Image.(*image)
		if !ok || img.destroyed {
			c.fail("barrier on a dead image")
			return
		}
		if b.LevelCount < 1 || b.BaseMipLevel < 0 || b.BaseMipLevel+b.LevelCount > img.desc.MipLevels {
			c.fail("barrier levels %d+%d outside image #%d with %d levels", b.BaseMipLevel, b.LevelCount, img.id, img.desc.MipLevels)
			return
		}
		b := b
		c.ops = append(c.ops, func() error {
			for level := b.BaseMipLevel; level < b.BaseMipLevel+b.LevelCount; level++ {
				if b.OldLayout != core1_0.ImageLayoutUndefined && img.layouts[level] != b.OldLayout {
					return invalid("image #%d level %d is %s, barrier expects %s", img.id, level, img.layouts[level], b.OldLayout)
				}
				img.layouts[level] = b.NewLayout
			}
			return nil
		})
	}
}

func (c *commandBuffer) CopyBuffer(src, dst gpu.Buffer, regions ...core1_0.BufferCopy) {
	if !c.recording() || !c.outsidePass("buffer copy") {
		return
	}
	from, ok1 := src.(*buffer)
	to, ok2 := dst.(*buffer)
	if !ok1 || !ok2 || from.destroyed || to.destroyed {
		c.fail("buffer copy between dead buffers")
		return
	}
	if from.desc.Usage&core1_0.BufferUsageTransferSrc == 0 {
		c.fail("copy source #%d lacks transfer-src usage", from.id)
		return
	}
	if to.desc.Usage&core1_0.BufferUsageTransferDst == 0 {
		c.fail("copy destination #%d lacks transfer-dst usage", to.id)
		return
	}
	for _, r := range regions {
		if r.Size <= 0 || r.SrcOffset < 0 || r.DstOffset < 0 ||
			r.SrcOffset+r.Size > from.desc.Size || r.DstOffset+r.Size > to.desc.Size {
			c.fail("copy region %d+%d -> %d overruns a buffer", r.SrcOffset, r.Size, r.DstOffset)
			return
		}
	}
	c.ops = append(c.ops, func() error {
		for _, r := range regions {
			copy(to.data[r.DstOffset:r.DstOffset+r.Size], from.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
		return nil
	})
}

func (c *commandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) {
	if !c.recording() || !c.outsidePass("buffer to image copy") {
		return
	}
	from, ok1 := src.(*buffer)
	to, ok2 := dst.(*image)
	if !ok1 || !ok2 || from.destroyed || to.destroyed {
		c.fail("buffer to image copy with dead objects")
		return
	}
	if layout != core1_0.ImageLayoutTransferDstOptimal {
		c.fail("buffer to image copy into layout %s", layout)
		return
	}
	if from.desc.Usage&core1_0.BufferUsageTransferSrc == 0 {
		c.fail("copy source #%d lacks transfer-src usage", from.id)
		return
	}
	if to.desc.Usage&core1_0.ImageUsageTransferDst == 0 {
		c.fail("copy destination image #%d lacks transfer-dst usage", to.id)
		return
	}
	for _, r := range regions {
		level := r.ImageSubresource.MipLevel
		if level < 0 || level >= to.desc.MipLevels {
			c.fail("copy into missing level %d of image #%d", level, to.id)
			return
		}
		ext := mipExtent(to.desc.Width, to.desc.Height, level)
		if r.ImageOffset.X+r.ImageExtent.Width > ext.Width || r.ImageOffset.Y+r.ImageExtent.Height > ext.Height {
			c.fail("copy region exceeds level %d of image #%d", level, to.id)
			return
		}
		if bpp := bytesPerPixel(to.desc.Format); bpp > 0 {
			if need := r.BufferOffset + r.ImageExtent.Width*r.ImageExtent.Height*bpp; need > from.desc.Size {
				c.fail("copy reads %d bytes from buffer #%d of %d", need, from.id, from.desc.Size)
				return
			}
		}
	}
	c.ops = append(c.ops, func() error {
		for _, r := range regions {
			if got := to.layouts[r.ImageSubresource.MipLevel]; got != layout {
				return invalid("image #%d level %d is %s during copy, expected %s", to.id, r.ImageSubresource.MipLevel, got, layout)
			}
		}
		return nil
	})
}

func (c *commandBuffer) BlitImage(src gpu.Image, srcLayout core1_0.ImageLayout, dst gpu.Image, dstLayout core1_0.ImageLayout, filter core1_0.Filter, regions ...core1_0.ImageBlit) {
	if !c.recording() || !c.outsidePass("blit") {
		return
	}
	from, ok1 := src.(*image)
	to, ok2 := dst.(*image)
	if !ok1 || !ok2 || from.destroyed || to.destroyed {
		c.fail("blit with dead images")
		return
	}
	if srcLayout != core1_0.ImageLayoutTransferSrcOptimal || dstLayout != core1_0.ImageLayoutTransferDstOptimal {
		c.fail("blit from %s to %s", srcLayout, dstLayout)
		return
	}
	if from.desc.Usage&core1_0.ImageUsageTransferSrc == 0 || to.desc.Usage&core1_0.ImageUsageTransferDst == 0 {
		c.fail("blit between images without transfer usage")
		return
	}
	if filter == core1_0.FilterLinear &&
		from.dev.FormatFeatures(from.desc.Format, from.desc.Tiling)&core1_0.FormatFeatureSampledImageFilterLinear == 0 {
		c.fail("format %s does not support linear blits", from.desc.Format)
		return
	}

	records := make([]BlitRecord, 0, len(regions))
	for _, r := range regions {
		sl, dl := r.SrcSubresource.MipLevel, r.DstSubresource.MipLevel
		if sl < 0 || sl >= from.desc.MipLevels || dl < 0 || dl >= to.desc.MipLevels {
			c.fail("blit level %d -> %d out of range", sl, dl)
			return
		}
		srcExt := core1_0.Extent2D{Width: r.SrcOffsets[1].X - r.SrcOffsets[0].X, Height: r.SrcOffsets[1].Y - r.SrcOffsets[0].Y}
		dstExt := core1_0.Extent2D{Width: r.DstOffsets[1].X - r.DstOffsets[0].X, Height: r.DstOffsets[1].Y - r.DstOffsets[0].Y}
		srcMax := mipExtent(from.desc.Width, from.desc.Height, sl)
		dstMax := mipExtent(to.desc.Width, to.desc.Height, dl)
		if srcExt.Width > srcMax.Width || srcExt.Height > srcMax.Height ||
			dstExt.Width > dstMax.Width || dstExt.Height > dstMax.Height {
			c.fail("blit region %dx%d -> %dx%d exceeds levels %d and %d", srcExt.Width, srcExt.Height, dstExt.Width, dstExt.Height, sl, dl)
			return
		}
		records = append(records, BlitRecord{Image: to, SrcLevel: sl, DstLevel: dl, SrcExtent: srcExt, DstExtent: dstExt, Filter: filter})
	}
	c.ops = append(c.ops, func() error {
		for _, rec := range records {
			if got := from.layouts[rec.SrcLevel]; got != srcLayout {
				return invalid("blit source image #%d level %d is %s", from.id, rec.SrcLevel, got)
			}
			if got := to.layouts[rec.DstLevel]; got != dstLayout {
				return invalid("blit destination image #%d level %d is %s", to.id, rec.DstLevel, got)
			}
		}
		c.pool.dev.mu.Lock()
		c.pool.dev.blits = append(c.pool.dev.blits, records...)
		c.pool.dev.mu.Unlock()
		return nil
	})
}

func (c *commandBuffer) BeginRenderPass(info gpu.RenderPassBegin) {
	if !c.recording() || !c.outsidePass("begin render pass") {
		return
	}
	rp, ok1 := info.RenderPass.(*renderPass)
	fb, ok2 := info.Framebuffer.(*framebuffer)
	if !ok1 || !ok2 || rp.destroyed || fb.destroyed {
		c.fail("begin render pass with dead objects")
		return
	}
	if fb.rp != rp {
		c.fail("framebuffer #%d was created for another render pass", fb.id)
		return
	}
	if info.Extent.Width > fb.desc.Width || info.Extent.Height > fb.desc.Height {
		c.fail("render area exceeds framebuffer #%d", fb.id)
		return
	}
	for i, a := range rp.desc.Attachments {
		if a.LoadOp == core1_0.AttachmentLoadOpClear && i >= len(info.ClearValues) {
			c.fail("attachment %d is cleared but only %d clear values were given", i, len(info.ClearValues))
			return
		}
	}
	c.rp, c.fb, c.subpass, c.inPass = rp, fb, 0, true
	c.pipeline, c.setsBound = nil, 0

	c.ops = append(c.ops, func() error {
		for i, a := range rp.desc.Attachments {
			img := fb.views[i].img
			if a.InitialLayout != core1_0.ImageLayoutUndefined && img.layouts[0] != a.InitialLayout {
				return invalid("attachment %d (image #%d) is %s, render pass expects %s", i, img.id, img.layouts[0], a.InitialLayout)
			}
		}
		return nil
	})
}

func (c *commandBuffer) NextSubpass() {
	if !c.recording() {
		return
	}
	if !c.inPass {
		c.fail("next subpass outside a render pass")
		return
	}
	if c.subpass+1 >= len(c.rp.desc.Subpasses) {
		c.fail("next subpass past the last subpass %d", c.subpass)
		return
	}
	c.subpass++
}

func (c *commandBuffer) EndRenderPass() {
	if !c.recording() {
		return
	}
	if !c.inPass {
		c.fail("end render pass outside a render pass")
		return
	}
	if last := len(c.rp.desc.Subpasses) - 1; c.subpass != last {
		c.fail("render pass ended in subpass %d of %d", c.subpass, last+1)
		return
	}
	rp, fb := c.rp, c.fb
	c.inPass, c.rp, c.fb = false, nil, nil
	c.ops = append(c.ops, func() error {
		for i, a := range rp.desc.Attachments {
			img := fb.views[i].img
			for level := 0; level < fb.views[i].desc.MipLevels; level++ {
				img.layouts[level] = a.FinalLayout
			}
		}
		return nil
	})
}

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	if !c.recording() {
		return
	}
	pl, ok := p.(*pipeline)
	if !ok || pl.destroyed {
		c.fail("bind a dead pipeline")
		return
	}
	c.pipeline = pl
}

func (c *commandBuffer) BindVertexBuffers(buffers ...gpu.Buffer) {
	if !c.recording() {
		return
	}
	for _, b := range buffers {
		buf, ok := b.(*buffer)
		if !ok || buf.destroyed || buf.desc.Usage&core1_0.BufferUsageVertexBuffer == 0 {
			c.fail("bind vertex buffer without vertex usage")
			return
		}
	}
	c.vertex = len(buffers) > 0
}

func (c *commandBuffer) BindIndexBuffer(b gpu.Buffer, indexType core1_0.IndexType) {
	if !c.recording() {
		return
	}
	buf, ok := b.(*buffer)
	if !ok || buf.destroyed || buf.desc.Usage&core1_0.BufferUsageIndexBuffer == 0 {
		c.fail("bind index buffer without index usage")
		return
	}
	c.index = true
}

func (c *commandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, sets ...gpu.DescriptorSet) {
	if !c.recording() {
		return
	}
	pl, ok := layout.(*pipelineLayout)
	if !ok || pl.destroyed {
		c.fail("bind descriptor sets with a dead pipeline layout")
		return
	}
	if len(sets) > len(pl.desc.SetLayouts) {
		c.fail("binding %d sets to a layout with %d", len(sets), len(pl.desc.SetLayouts))
		return
	}
	for i, s := range sets {
		set, ok := s.(*descriptorSet)
		if !ok || set.destroyed {
			c.fail("bind a dead descriptor set at index %d", i)
			return
		}
		if set.layout != pl.desc.SetLayouts[i] {
			c.fail("descriptor set #%d at index %d does not match the pipeline layout", set.id, i)
			return
		}
	}
	c.setsBound = len(sets)
}

func (c *commandBuffer) PushConstants(layout gpu.PipelineLayout, stages core1_0.ShaderStageFlags, offset int, data []byte) {
	if !c.recording() {
		return
	}
	pl, ok := layout.(*pipelineLayout)
	if !ok || pl.destroyed {
		c.fail("push constants with a dead pipeline layout")
		return
	}
	for _, r := range pl.desc.PushConstants {
		if r.Stages&stages == stages && offset >= r.Offset && offset+len(data) <= r.Offset+r.Size {
			c.push = append([]byte(nil), data...)
			return
		}
	}
	c.fail("push constant update %d+%d is not covered by the layout", offset, len(data))
}

func (c *commandBuffer) checkDraw() bool {
	if !c.recording() {
		return false
	}
	if !c.inPass {
		c.fail("draw outside a render pass")
		return false
	}
	if c.pipeline == nil {
		c.fail("draw without a bound pipeline")
		return false
	}
	if c.pipeline.desc.RenderPass != gpu.RenderPass(c.rp) {
		c.fail("pipeline #%d was built for another render pass", c.pipeline.id)
		return false
	}
	if c.pipeline.desc.Subpass != c.subpass {
		c.fail("pipeline for subpass %d drawn in subpass %d", c.pipeline.desc.Subpass, c.subpass)
		return false
	}
	if want := len(c.pipeline.desc.Layout.(*pipelineLayout).desc.SetLayouts); c.setsBound < want {
		c.fail("draw with %d of %d descriptor sets bound", c.setsBound, want)
		return false
	}
	if len(c.pipeline.desc.VertexBindings) > 0 && !c.vertex {
		c.fail("draw without vertex buffers")
		return false
	}
	return true
}

func (c *commandBuffer) Draw(vertexCount, instanceCount int) {
	if !c.checkDraw() {
		return
	}
	c.recordDraw(false, vertexCount*instanceCount)
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount int) {
	if !c.checkDraw() {
		return
	}
	if !c.index {
		c.fail("indexed draw without an index buffer")
		return
	}
	c.recordDraw(true, indexCount*instanceCount)
}

func (c *commandBuffer) recordDraw(indexed bool, count int) {
	rec := DrawRecord{
		Subpass:  c.subpass,
		Indexed:  indexed,
		Count:    count,
		Pipeline: c.pipeline,
		Push:     append([]byte(nil), c.push...),
	}
	c.ops = append(c.ops, func() error {
		c.pool.dev.mu.Lock()
		c.pool.dev.draws = append(c.pool.dev.draws, rec)
		c.pool.dev.mu.Unlock()
		return nil
	})
}

// execute runs the recorded operations. It is called by the queue with the
// submission already validated.
func (c *commandBuffer) execute() error {
	for i, run := range c.ops {
		if err := run(); err != nil {
			return errors.Wrapf(err, "command buffer #%d op %d", c.id, i)
		}
	}
	if c.oneTime {
		c.state = stateInvalid
	}
	return nil
}
