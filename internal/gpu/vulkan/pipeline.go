package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

type descriptorSetLayout struct {
	layout   core1_0.DescriptorSetLayout
	bindings []gpu.DescriptorBinding
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	info := core1_0.DescriptorSetLayoutCreateInfo{}
	for _, b := range bindings {
		info.Bindings = append(info.Bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: b.Count,

			StageFlags: b.Stages,
		})
	}
	layout, _, err := d.device.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	return &descriptorSetLayout{layout: layout, bindings: bindings}, nil
}

func (l *descriptorSetLayout) Bindings() []gpu.DescriptorBinding { return l.bindings }
func (l *descriptorSetLayout) Destroy()                          { l.layout.Destroy(nil) }

type descriptorPool struct {
	dev  *Device
	pool core1_0.DescriptorPool
}

func (d *Device) CreateDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.DescriptorPool, error) {
	pool, _, err := d.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   desc.MaxSets,
		PoolSizes: desc.Sizes,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create descriptor pool of %d sets", desc.MaxSets)
	}
	return &descriptorPool{dev: d, pool: pool}, nil
}

type descriptorSet struct {
	set    core1_0.DescriptorSet
	layout gpu.DescriptorSetLayout
}

func (s *descriptorSet) Layout() gpu.DescriptorSetLayout { return s.layout }

func (p *descriptorPool) Allocate(layouts ...gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	handles := make([]core1_0.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		layout, ok := l.(*descriptorSetLayout)
		if !ok {
			return nil, foreign("descriptor set layout", l)
		}
		handles[i] = layout.layout
	}
	raw, _, err := p.dev.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.pool,
		SetLayouts:     handles,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d descriptor sets", len(layouts))
	}
	sets := make([]gpu.DescriptorSet, len(raw))
	for i, s := range raw {
		sets[i] = &descriptorSet{set: s, layout: layouts[i]}
	}
	return sets, nil
}

func (p *descriptorPool) Destroy() { p.pool.Destroy(nil) }

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) error {
	out := make([]core1_0.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := w.Set.(*descriptorSet)
		if !ok {
			return foreign("descriptor set", w.Set)
		}
		write := core1_0.WriteDescriptorSet{
			DstSet:          set.set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  w.Type,
		}
		switch w.Type {
		case core1_0.DescriptorTypeUniformBuffer, core1_0.DescriptorTypeStorageBuffer:
			buf, ok := w.Buffer.(*buffer)
			if !ok {
				return foreign("buffer", w.Buffer)
			}
			write.BufferInfo = []core1_0.DescriptorBufferInfo{
				{Buffer: buf.buffer, Offset: 0, Range: w.Range},
			}
		default:
			view, ok := w.View.(*imageView)
			if !ok {
				return foreign("image view", w.View)
			}
			info := core1_0.DescriptorImageInfo{ImageView: view.view, ImageLayout: w.Layout}
			if w.Sampler != nil {
				s, ok := w.Sampler.(*sampler)
				if !ok {
					return foreign("sampler", w.Sampler)
				}
				info.Sampler = s.sampler
			}
			write.ImageInfo = []core1_0.DescriptorImageInfo{info}
		}
		out = append(out, write)
	}
	return errors.Wrap(d.device.UpdateDescriptorSets(out, nil), "update descriptor sets")
}

type pipelineLayout struct {
	layout core1_0.PipelineLayout
}

func (d *Device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	info := core1_0.PipelineLayoutCreateInfo{}
	for _, l := range desc.SetLayouts {
		layout, ok := l.(*descriptorSetLayout)
		if !ok {
			return nil, foreign("descriptor set layout", l)
		}
		info.SetLayouts = append(info.SetLayouts, layout.layout)
	}
	for _, r := range desc.PushConstants {
		info.PushConstantRanges = append(info.PushConstantRanges, core1_0.PushConstantRange{
			StageFlags: r.Stages,
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}
	layout, _, err := d.device.CreatePipelineLayout(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	return &pipelineLayout{layout: layout}, nil
}

func (l *pipelineLayout) Destroy() { l.layout.Destroy(nil) }

type pipeline struct {
	pipeline core1_0.Pipeline
	subpass  int
}

func (p *pipeline) Subpass() int { return p.subpass }
func (p *pipeline) Destroy()     { p.pipeline.Destroy(nil) }

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	layout, ok := desc.Layout.(*pipelineLayout)
	if !ok {
		return nil, foreign("pipeline layout", desc.Layout)
	}
	rp, ok := desc.RenderPass.(*renderPass)
	if !ok {
		return nil, foreign("render pass", desc.RenderPass)
	}
	vert, ok := desc.VertexShader.(*shaderModule)
	if !ok {
		return nil, foreign("vertex shader", desc.VertexShader)
	}
	frag, ok := desc.FragmentShader.(*shaderModule)
	if !ok {
		return nil, foreign("fragment shader", desc.FragmentShader)
	}

	samples := desc.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}

	var depthStencil *core1_0.PipelineDepthStencilStateCreateInfo
	if desc.DepthTest || desc.DepthWrite {
		depthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  desc.DepthTest,
			DepthWriteEnable: desc.DepthWrite,
			DepthCompareOp:   desc.DepthCompare,
		}
	}

	blend := make([]core1_0.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range blend {
		blend[i] = core1_0.PipelineColorBlendAttachmentState{
			BlendEnabled:   false,
			ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
		}
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{Stage: core1_0.StageVertex, Module: vert.module, Name: "main"},
				{Stage: core1_0.StageFragment, Module: frag.module, Name: "main"},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   desc.VertexBindings,
				VertexAttributeDescriptions: desc.VertexAttributes,
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology: desc.Topology,
			},
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{
					{
						Width:    float32(desc.Extent.Width),
						Height:   float32(desc.Extent.Height),
						MinDepth: 0,
						MaxDepth: 1,
					},
				},
				Scissors: []core1_0.Rect2D{
					{Offset: core1_0.Offset2D{X: 0, Y: 0}, Extent: desc.Extent},
				},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    desc.CullMode,
				FrontFace:   desc.FrontFace,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: samples,
				MinSampleShading:     1.0,
			},
			DepthStencilState: depthStencil,
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,
				Attachments:    blend,
			},
			Layout:            layout.layout,
			RenderPass:        rp.renderPass,
			Subpass:           desc.Subpass,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create graphics pipeline for subpass %d", desc.Subpass)
	}
	return &pipeline{pipeline: pipelines[0], subpass: desc.Subpass}, nil
}
