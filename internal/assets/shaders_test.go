package assets

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPIRVWords(t *testing.T) {
	words, err := SPIRVWords([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, words)

	_, err = SPIRVWords(nil)
	require.Error(t, err)
	_, err = SPIRVWords([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestShaderDir(t *testing.T) {
	src := NewShaderFS(fstest.MapFS{
		"geometry.vert.spv": {Data: []byte{0x03, 0x02, 0x23, 0x07}},
	})
	data, err := src.LoadShaderBinary("geometry.vert")
	require.NoError(t, err)
	assert.Len(t, data, 4)

	_, err = src.LoadShaderBinary("composite.frag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "composite.frag")
}
