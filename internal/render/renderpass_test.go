package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu/headless"
)

var testFormats = attachmentFormats{
	colour:  core1_0.FormatR8G8B8A8UnsignedNormalized,
	depth:   core1_0.FormatD32SignedFloat,
	samples: core1_0.Samples4,
}

func TestRenderPassLayout(t *testing.T) {
	desc := renderPassDesc(core1_0.FormatB8G8R8A8SRGB, testFormats)
	require.Len(t, desc.Attachments, 5)
	require.Len(t, desc.Subpasses, 2)

	geometry := desc.Subpasses[SubpassGeometry]
	composite := desc.Subpasses[SubpassComposite]
	for _, a := range []int{attachColour, attachDepth, attachResolvedColour, attachResolvedDepth} {
		assert.True(t, geometry.Writes(a), "geometry writes attachment %d", a)
	}
	assert.False(t, geometry.Writes(attachSwapchain))
	assert.True(t, composite.Reads(attachResolvedColour))
	assert.True(t, composite.Reads(attachResolvedDepth))
	assert.True(t, composite.Writes(attachSwapchain))

	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, desc.Attachments[attachSwapchain].FinalLayout)
	assert.Equal(t, testFormats.samples, desc.Attachments[attachColour].Samples)
	assert.Equal(t, core1_0.Samples1, desc.Attachments[attachResolvedDepth].Samples)

	dep, ok := desc.FindDependency(int(SubpassGeometry), int(SubpassComposite))
	require.True(t, ok)
	assert.True(t, dep.ByRegion)
	assert.Equal(t, core1_0.PipelineStageFragmentShader, dep.DstStages)
	assert.NotZero(t, dep.DstAccess&core1_0.AccessInputAttachmentRead)

	_, ok = desc.FindDependency(gpu.SubpassExternal, int(SubpassGeometry))
	assert.True(t, ok)
	_, ok = desc.FindDependency(int(SubpassComposite), gpu.SubpassExternal)
	assert.True(t, ok)
}

func TestRenderPassAcceptedByDevice(t *testing.T) {
	ctx, _ := newTestContext(t, headless.Options{})
	rp, err := ctx.createRenderPass(core1_0.FormatB8G8R8A8SRGB, testFormats)
	require.NoError(t, err)
	rp.Destroy()
}

func TestSubpassString(t *testing.T) {
	assert.Equal(t, "geometry", SubpassGeometry.String())
	assert.Equal(t, "composite", SubpassComposite.String())
	assert.Equal(t, "Subpass(7)", Subpass(7).String())
}

func recordingBuffer(t *testing.T, r testRenderer) (gpu.CommandBuffer, gpu.RenderPassBegin) {
	t.Helper()
	cbs, err := r.ctx.CommandPool.Allocate(1)
	require.NoError(t, err)
	t.Cleanup(func() { r.ctx.CommandPool.Free(cbs...) })
	require.NoError(t, cbs[0].Begin(true))
	return cbs[0], gpu.RenderPassBegin{
		RenderPass:  r.swap.renderPass,
		Framebuffer: r.swap.framebuffers[0],
		Extent:      r.swap.extent,
		ClearValues: r.clearValues(),
	}
}

func TestPassRecorderRejectsWrongSubpass(t *testing.T) {
	r := newTestRenderer(t, headless.Options{}, nil)

	cb, begin := recordingBuffer(t, r)
	pass := beginPass(cb, begin)
	assert.False(t, pass.bind(SubpassComposite, r.swap.pipelines.composite))
	assertMarked(t, pass.end(), ErrInvalidState)

	cb, begin = recordingBuffer(t, r)
	pass = beginPass(cb, begin)
	assert.False(t, pass.bind(SubpassGeometry, r.swap.pipelines.composite), "pipeline built for another subpass")
	assertMarked(t, pass.end(), ErrInvalidState)

	cb, begin = recordingBuffer(t, r)
	pass = beginPass(cb, begin)
	pass.next()
	pass.next()
	err := pass.end()
	requireMarked(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "next subpass from composite")
}

func TestPassRecorderEndsAfterComposite(t *testing.T) {
	r := newTestRenderer(t, headless.Options{}, nil)

	cb, begin := recordingBuffer(t, r)
	pass := beginPass(cb, begin)
	assertMarked(t, pass.end(), ErrInvalidState, "ending in the geometry subpass")

	cb, begin = recordingBuffer(t, r)
	pass = beginPass(cb, begin)
	require.True(t, pass.bind(SubpassGeometry, r.swap.pipelines.geometry))
	pass.next()
	require.True(t, pass.bind(SubpassComposite, r.swap.pipelines.composite))
	require.NoError(t, pass.end())
	require.NoError(t, cb.End())
}
