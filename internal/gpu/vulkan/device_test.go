package vulkan

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_swapchain"

	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

func TestChooseAdapterPrefersDiscrete(t *testing.T) {
	tests := []struct {
		name       string
		candidates []candidate
		want       int
		ok         bool
	}{
		{"none", nil, -1, false},
		{"nothing suitable", []candidate{{index: 0}, {index: 1, discrete: true}}, -1, false},
		{"integrated only", []candidate{{index: 0, suitable: true}}, 0, true},
		{"discrete after integrated", []candidate{
			{index: 0, suitable: true},
			{index: 1, suitable: true, discrete: true},
		}, 1, true},
		{"unsuitable discrete", []candidate{
			{index: 0, discrete: true},
			{index: 1, suitable: true},
		}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chooseAdapter(tt.candidates)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindMemoryType(t *testing.T) {
	types := []core1_0.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
	}
	host := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

	idx, err := findMemoryType(types, 0b111, host)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	idx, err = findMemoryType(types, 0b111, core1_0.MemoryPropertyHostVisible)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "first matching type wins")

	_, err = findMemoryType(types, 0b011, host)
	assert.True(t, errors.Is(err, gpu.ErrNoMemoryType), "type filter excludes the only match")
}

func TestMessageLevel(t *testing.T) {
	assert.Equal(t, log.ErrorLevel, messageLevel(ext_debug_utils.SeverityError))
	assert.Equal(t, log.WarnLevel, messageLevel(ext_debug_utils.SeverityWarning))
	assert.Equal(t, log.DebugLevel, messageLevel(ext_debug_utils.SeverityInfo))
	assert.Equal(t, log.ErrorLevel, messageLevel(ext_debug_utils.SeverityError|ext_debug_utils.SeverityWarning))
}

func TestPresentResult(t *testing.T) {
	assert.True(t, errors.Is(presentResult(khr_swapchain.VKErrorOutOfDate, errors.New("driver")), gpu.ErrOutOfDate))
	assert.True(t, errors.Is(presentResult(khr_swapchain.VKSuboptimal, nil), gpu.ErrSuboptimal))
	assert.True(t, gpu.IsSwapchainStale(presentResult(khr_swapchain.VKSuboptimal, nil)))
	assert.NoError(t, presentResult(core1_0.VKSuccess, nil))

	lost := errors.New("device lost")
	assert.True(t, errors.Is(presentResult(core1_0.VKErrorDeviceLost, lost), lost))
}

func TestQueueFamiliesUnique(t *testing.T) {
	assert.Equal(t, []int{0}, queueFamilies{graphics: 0, present: 0}.unique())
	assert.Equal(t, []int{0, 2}, queueFamilies{graphics: 0, present: 2}.unique())
}

func TestSubpassIndexMapsExternal(t *testing.T) {
	assert.Equal(t, int(core1_0.SubpassExternal), subpassIndex(gpu.SubpassExternal))
	assert.Equal(t, 1, subpassIndex(1))
}

func TestIsDepthFormat(t *testing.T) {
	assert.True(t, isDepthFormat(core1_0.FormatD32SignedFloat))
	assert.True(t, isDepthFormat(core1_0.FormatD24UnsignedNormalizedS8UnsignedInt))
	assert.False(t, isDepthFormat(core1_0.FormatR8G8B8A8UnsignedNormalized))
}

type otherBuffer struct{ gpu.Buffer }

func TestRecordingKeepsFirstError(t *testing.T) {
	cb := &commandBuffer{}
	cb.CopyBuffer(otherBuffer{}, otherBuffer{}, core1_0.BufferCopy{Size: 4})
	cb.BindIndexBuffer(otherBuffer{}, core1_0.IndexTypeUInt32)

	err := cb.End()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrInvalidUsage))
	assert.Contains(t, err.Error(), "otherBuffer")
}

func TestBufferMappingChecks(t *testing.T) {
	deviceLocal := &buffer{desc: gpu.BufferDesc{Size: 16, Memory: core1_0.MemoryPropertyDeviceLocal}}
	err := deviceLocal.Write(0, []byte{1})
	assert.True(t, errors.Is(err, gpu.ErrNotHostVisible))

	host := &buffer{desc: gpu.BufferDesc{Size: 16, Memory: core1_0.MemoryPropertyHostVisible}}
	_, err = host.Read(8, 16)
	assert.True(t, errors.Is(err, gpu.ErrInvalidUsage))

	got, err := host.Read(4, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
