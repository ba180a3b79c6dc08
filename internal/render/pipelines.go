package render

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// modelPushSize is one 4x4 float matrix.
const modelPushSize = 64

// Shader names, without the .spv suffix.
const (
	GeometryVertexShader    = "geometry.vert"
	GeometryFragmentShader  = "geometry.frag"
	CompositeVertexShader   = "composite.vert"
	CompositeFragmentShader = "composite.frag"
)

func vertexBindings() []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(assets.Vertex{})),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributes() []core1_0.VertexInputAttributeDescription {
	v := assets.Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
		{
			Binding:  0,
			Location: 3,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Normal)),
		},
	}
}

type pipelineLayouts struct {
	geometry  gpu.PipelineLayout
	composite gpu.PipelineLayout
}

func (c *DeviceContext) createPipelineLayouts(sets setLayouts, stack *releaseStack) (pipelineLayouts, error) {
	geometry, err := c.Device.CreatePipelineLayout(gpu.PipelineLayoutDesc{
		SetLayouts: []gpu.DescriptorSetLayout{sets.viewProjection, sets.sampler},
		PushConstants: []gpu.PushConstantRange{
			{Stages: core1_0.StageVertex, Offset: 0, Size: modelPushSize},
		},
	})
	if err != nil {
		return pipelineLayouts{}, errors.Mark(errors.Wrap(err, "create geometry pipeline layout"), ErrPipeline)
	}
	stack.push(geometry.Destroy)

	composite, err := c.Device.CreatePipelineLayout(gpu.PipelineLayoutDesc{
		SetLayouts: []gpu.DescriptorSetLayout{sets.input},
	})
	if err != nil {
		return pipelineLayouts{}, errors.Mark(errors.Wrap(err, "create composite pipeline layout"), ErrPipeline)
	}
	stack.push(composite.Destroy)

	return pipelineLayouts{geometry: geometry, composite: composite}, nil
}

type pipelines struct {
	geometry  gpu.Pipeline
	composite gpu.Pipeline
}

func (p pipelines) destroy() {
	if p.composite != nil {
		p.composite.Destroy()
	}
	if p.geometry != nil {
		p.geometry.Destroy()
	}
}

func (c *DeviceContext) loadShader(src assets.ShaderSource, name string) (gpu.ShaderModule, error) {
	data, err := src.LoadShaderBinary(name)
	if err != nil {
		return nil, err
	}
	words, err := assets.SPIRVWords(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %q", name)
	}
	module, err := c.Device.CreateShaderModule(words)
	if err != nil {
		return nil, errors.Wrapf(err, "shader module %q", name)
	}
	return module, nil
}

// shaderPair loads a vertex and fragment shader; the returned release
// destroys both modules once the pipeline holding them is built.
func (c *DeviceContext) shaderPair(src assets.ShaderSource, vertName, fragName string) (vert, frag gpu.ShaderModule, release func(), err error) {
	vert, err = c.loadShader(src, vertName)
	if err != nil {
		return nil, nil, nil, err
	}
	frag, err = c.loadShader(src, fragName)
	if err != nil {
		vert.Destroy()
		return nil, nil, nil, err
	}
	return vert, frag, func() { frag.Destroy(); vert.Destroy() }, nil
}

type pipelineTargets struct {
	renderPass gpu.RenderPass
	extent     core1_0.Extent2D
	samples    core1_0.SampleCountFlags
}

// createPipelines builds the geometry and composite pipelines for one render
// pass. Either both are returned or neither.
func (c *DeviceContext) createPipelines(src assets.ShaderSource, layouts pipelineLayouts, t pipelineTargets) (pipelines, error) {
	var out pipelines

	vert, frag, release, err := c.shaderPair(src, GeometryVertexShader, GeometryFragmentShader)
	if err != nil {
		return pipelines{}, errors.Mark(errors.Wrap(err, "geometry pipeline"), ErrPipeline)
	}
	out.geometry, err = c.Device.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
		Layout:           layouts.geometry,
		RenderPass:       t.renderPass,
		Subpass:          int(SubpassGeometry),
		VertexShader:     vert,
		FragmentShader:   frag,
		VertexBindings:   vertexBindings(),
		VertexAttributes: vertexAttributes(),
		Topology:         core1_0.PrimitiveTopologyTriangleList,
		Extent:           t.extent,
		Samples:          t.samples,
		CullMode:         core1_0.CullModeBack,
		FrontFace:        core1_0.FrontFaceCounterClockwise,
		DepthTest:        true,
		DepthWrite:       true,
		DepthCompare:     core1_0.CompareOpLess,
		ColorAttachments: 1,
	})
	release()
	if err != nil {
		return pipelines{}, errors.Mark(errors.Wrap(err, "create geometry pipeline"), ErrPipeline)
	}

	vert, frag, release, err = c.shaderPair(src, CompositeVertexShader, CompositeFragmentShader)
	if err != nil {
		out.destroy()
		return pipelines{}, errors.Mark(errors.Wrap(err, "composite pipeline"), ErrPipeline)
	}
	out.composite, err = c.Device.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
		Layout:           layouts.composite,
		RenderPass:       t.renderPass,
		Subpass:          int(SubpassComposite),
		VertexShader:     vert,
		FragmentShader:   frag,
		Topology:         core1_0.PrimitiveTopologyTriangleList,
		Extent:           t.extent,
		Samples:          core1_0.Samples1,
		CullMode:         core1_0.CullModeNone,
		FrontFace:        core1_0.FrontFaceCounterClockwise,
		ColorAttachments: 1,
	})
	release()
	if err != nil {
		out.destroy()
		return pipelines{}, errors.Mark(errors.Wrap(err, "create composite pipeline"), ErrPipeline)
	}
	return out, nil
}
