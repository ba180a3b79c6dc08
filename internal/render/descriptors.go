package render

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// ViewProjection is the per-image uniform block read by the geometry vertex
// shader.
type ViewProjection struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

var viewProjectionSize = binary.Size(ViewProjection{})

// encode serializes v in the device's byte order. v must be fixed size.
func encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, v); err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return buf.Bytes(), nil
}

// setLayouts are the three descriptor set layout families. They outlive
// every swapchain.
type setLayouts struct {
	viewProjection gpu.DescriptorSetLayout
	sampler        gpu.DescriptorSetLayout
	input          gpu.DescriptorSetLayout
}

func (c *DeviceContext) createSetLayouts(stack *releaseStack) (setLayouts, error) {
	var layouts setLayouts
	specs := []struct {
		dst      *gpu.DescriptorSetLayout
		name     string
		bindings []gpu.DescriptorBinding
	}{
		{&layouts.viewProjection, "view projection", []gpu.DescriptorBinding{
			{Binding: 0, Type: core1_0.DescriptorTypeUniformBuffer, Count: 1, Stages: core1_0.StageVertex},
		}},
		{&layouts.sampler, "texture sampler", []gpu.DescriptorBinding{
			{Binding: 0, Type: core1_0.DescriptorTypeCombinedImageSampler, Count: 1, Stages: core1_0.StageFragment},
		}},
		{&layouts.input, "input attachment", []gpu.DescriptorBinding{
			{Binding: 0, Type: core1_0.DescriptorTypeInputAttachment, Count: 1, Stages: core1_0.StageFragment},
			{Binding: 1, Type: core1_0.DescriptorTypeInputAttachment, Count: 1, Stages: core1_0.StageFragment},
		}},
	}
	for _, s := range specs {
		layout, err := c.Device.CreateDescriptorSetLayout(s.bindings)
		if err != nil {
			return setLayouts{}, resourceErr(err, "create %s set layout", s.name)
		}
		stack.push(layout.Destroy)
		*s.dst = layout
	}
	return layouts, nil
}

// uniformSets is descriptor family one: a host-visible uniform buffer and a
// set pointing at it for each swapchain image.
type uniformSets struct {
	buffers []gpu.Buffer
	pool    gpu.DescriptorPool
	sets    []gpu.DescriptorSet
}

func (c *DeviceContext) createUniformSets(layout gpu.DescriptorSetLayout, count int, stack *releaseStack) (uniformSets, error) {
	var u uniformSets
	for i := 0; i < count; i++ {
		buf, err := c.Device.CreateBuffer(gpu.BufferDesc{
			Size:   viewProjectionSize,
			Usage:  core1_0.BufferUsageUniformBuffer,
			Memory: stagingMemory,
		})
		if err != nil {
			return uniformSets{}, resourceErr(err, "create uniform buffer %d", i)
		}
		stack.push(buf.Destroy)
		u.buffers = append(u.buffers, buf)
	}

	pool, err := c.Device.CreateDescriptorPool(gpu.DescriptorPoolDesc{
		MaxSets: count,
		Sizes:   []core1_0.DescriptorPoolSize{{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: count}},
	})
	if err != nil {
		return uniformSets{}, resourceErr(err, "create uniform descriptor pool")
	}
	stack.push(pool.Destroy)
	u.pool = pool

	u.sets, err = pool.Allocate(repeatLayout(layout, count)...)
	if err != nil {
		return uniformSets{}, resourceErr(err, "allocate uniform descriptor sets")
	}
	writes := make([]gpu.DescriptorWrite, count)
	for i, set := range u.sets {
		writes[i] = gpu.DescriptorWrite{
			Set:     set,
			Binding: 0,
			Type:    core1_0.DescriptorTypeUniformBuffer,
			Buffer:  u.buffers[i],
			Range:   viewProjectionSize,
		}
	}
	if err := c.Device.UpdateDescriptorSets(writes); err != nil {
		return uniformSets{}, resourceErr(err, "write uniform descriptor sets")
	}
	return u, nil
}

// write copies the view projection block for one swapchain image. The
// memory is host coherent, so no flush is needed.
func (u uniformSets) write(image int, vp ViewProjection) error {
	data, err := encode(&vp)
	if err != nil {
		return err
	}
	return errors.Wrapf(u.buffers[image].Write(0, data), "write uniform buffer %d", image)
}

// createInputSets is descriptor family three: the resolved colour and depth
// of each swapchain image, read by the composite subpass.
func (c *DeviceContext) createInputSets(layout gpu.DescriptorSetLayout, attachments []attachmentSet, stack *releaseStack) ([]gpu.DescriptorSet, error) {
	count := len(attachments)
	pool, err := c.Device.CreateDescriptorPool(gpu.DescriptorPoolDesc{
		MaxSets: count,
		Sizes:   []core1_0.DescriptorPoolSize{{Type: core1_0.DescriptorTypeInputAttachment, DescriptorCount: 2 * count}},
	})
	if err != nil {
		return nil, resourceErr(err, "create input descriptor pool")
	}
	stack.push(pool.Destroy)

	sets, err := pool.Allocate(repeatLayout(layout, count)...)
	if err != nil {
		return nil, resourceErr(err, "allocate input descriptor sets")
	}
	writes := make([]gpu.DescriptorWrite, 0, 2*count)
	for i, set := range sets {
		for binding, view := range []gpu.ImageView{attachments[i].resolvedColour.view, attachments[i].resolvedDepth.view} {
			writes = append(writes, gpu.DescriptorWrite{
				Set:     set,
				Binding: binding,
				Type:    core1_0.DescriptorTypeInputAttachment,
				View:    view,
				Layout:  core1_0.ImageLayoutShaderReadOnlyOptimal,
			})
		}
	}
	if err := c.Device.UpdateDescriptorSets(writes); err != nil {
		return nil, resourceErr(err, "write input descriptor sets")
	}
	return sets, nil
}

func repeatLayout(layout gpu.DescriptorSetLayout, n int) []gpu.DescriptorSetLayout {
	layouts := make([]gpu.DescriptorSetLayout, n)
	for i := range layouts {
		layouts[i] = layout
	}
	return layouts
}
