package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImagePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	px, err := DecodeImage(path)
	require.NoError(t, err)
	assert.Equal(t, 3, px.Width)
	assert.Equal(t, 2, px.Height)
	require.Len(t, px.Data, px.Size())
	off := (1*3 + 2) * Channels
	assert.Equal(t, []byte{10, 20, 30, 255}, px.Data[off:off+4])
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := DecodeImage(path)
	require.Error(t, err)
}

func TestFromImageRebasesSubImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	sub := src.SubImage(image.Rect(1, 1, 3, 3))

	px := FromImage(sub)
	assert.Equal(t, 2, px.Width)
	assert.Equal(t, 2, px.Height)
	assert.Equal(t, []byte{255, 0, 0, 255}, px.Data[:4])
}

func TestSolid(t *testing.T) {
	px := Solid(2, 1, 1, 2, 3, 4)
	assert.Equal(t, []byte{1, 2, 3, 4, 1, 2, 3, 4}, px.Data)
}
