package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu/headless"
)

func TestMipLevels(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{512, 512, 10},
		{300, 200, 9},
		{1, 1024, 11},
		{1023, 7, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MipLevels(tt.width, tt.height), "%dx%d", tt.width, tt.height)
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx, dev := newTestContext(t, headless.Options{})
	tu := NewTransferUnit(ctx)

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	buf, err := tu.Upload(data, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)
	assert.Equal(t, len(data), buf.Size())
	assert.NotZero(t, buf.Usage()&core1_0.BufferUsageVertexBuffer)

	// The destination is device local: only a transfer can see its contents.
	assertMarked(t, buf.Write(0, data[:1]), gpu.ErrNotHostVisible)

	got, err := tu.Download(buf, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	buf.Destroy()
	assert.Equal(t, map[string]int{"command-pool": 1}, dev.Live(), "staging and readback buffers must be freed")
}

func TestUploadRejectsEmptyData(t *testing.T) {
	ctx, _ := newTestContext(t, headless.Options{})
	_, err := NewTransferUnit(ctx).Upload(nil, core1_0.BufferUsageIndexBuffer)
	assertMarked(t, err, ErrResource)
}

func TestDownloadBounds(t *testing.T) {
	ctx, _ := newTestContext(t, headless.Options{})
	tu := NewTransferUnit(ctx)
	buf, err := tu.Upload([]byte{1, 2, 3, 4}, core1_0.BufferUsageIndexBuffer)
	require.NoError(t, err)

	_, err = tu.Download(buf, 5)
	assertMarked(t, err, ErrResource)
	_, err = tu.Download(buf, 0)
	assertMarked(t, err, ErrResource)
}

func TestUploadTextureGeneratesMipChain(t *testing.T) {
	ctx, dev := newTestContext(t, headless.Options{})
	tu := NewTransferUnit(ctx)

	img, err := tu.UploadTexture(assets.Solid(300, 200, 1, 2, 3, 4), textureFormat, true)
	require.NoError(t, err)
	require.Equal(t, 9, img.MipLevels())

	blits := dev.Blits()
	require.Len(t, blits, img.MipLevels()-1)
	for i, b := range blits {
		assert.Equal(t, i, b.SrcLevel)
		assert.Equal(t, i+1, b.DstLevel)
		assert.Equal(t, MipExtent(300, 200, i), b.SrcExtent)
		assert.Equal(t, MipExtent(300, 200, i+1), b.DstExtent)
		assert.Equal(t, core1_0.FilterLinear, b.Filter)
	}
	assert.Equal(t, core1_0.Extent2D{Width: 1, Height: 1}, blits[len(blits)-1].DstExtent)

	for level := 0; level < img.MipLevels(); level++ {
		assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, headless.Layout(img, level), "level %d", level)
	}
}

func TestUploadTextureWithoutMipmaps(t *testing.T) {
	ctx, dev := newTestContext(t, headless.Options{})
	img, err := NewTransferUnit(ctx).UploadTexture(assets.Solid(64, 64, 0, 0, 0, 255), textureFormat, false)
	require.NoError(t, err)

	assert.Equal(t, 1, img.MipLevels())
	assert.Empty(t, dev.Blits())
	assert.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, headless.Layout(img, 0))
}

func TestUploadTextureRequiresLinearFiltering(t *testing.T) {
	ctx, dev := newTestContext(t, headless.Options{
		OptimalFeatures: map[core1_0.Format]core1_0.FormatFeatureFlags{
			textureFormat: core1_0.FormatFeatureSampledImage,
		},
	})
	_, err := NewTransferUnit(ctx).UploadTexture(assets.Solid(16, 16, 0, 0, 0, 255), textureFormat, true)
	requireMarked(t, err, ErrResource)
	assert.Contains(t, err.Error(), "linear")
	assert.Equal(t, map[string]int{"command-pool": 1}, dev.Live())
}

func TestUploadTextureRejectsShortPixelData(t *testing.T) {
	ctx, _ := newTestContext(t, headless.Options{})
	px := assets.Pixels{Width: 4, Height: 4, Data: make([]byte, 10)}
	_, err := NewTransferUnit(ctx).UploadTexture(px, textureFormat, false)
	assertMarked(t, err, ErrResource)
}
