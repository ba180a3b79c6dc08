package assets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadOBJ = `mtllib scene.mtl
o crate
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl wood
f 1/1/1 2/2/1 3/3/1 4/4/1
o floor
v 0 0 1
v 1 0 1
v 1 1 1
usemtl plain
f 5/1/1 6/2/1 7/3/1
`

const sceneMTL = `newmtl wood
Kd 1 1 1
map_Kd C:\art\textures\wood.png
newmtl plain
Kd 0.5 0.5 0.5
`

func TestDecodeModelTriangulatesAndGroups(t *testing.T) {
	meshes, err := DecodeModel(strings.NewReader(quadOBJ), strings.NewReader(sceneMTL))
	require.NoError(t, err)
	require.Len(t, meshes, 2)

	crate := meshes[0]
	assert.Equal(t, "crate", crate.Name)
	assert.Equal(t, "wood.png", crate.Texture)
	assert.Len(t, crate.Vertices, 4, "shared corners are deduplicated")
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, crate.Indices)
	assert.Equal(t, mgl32.Vec2{1, 0}, crate.Vertices[2].TexCoord, "v is flipped")
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, crate.Vertices[0].Normal)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, crate.Vertices[0].Color)

	floor := meshes[1]
	assert.Empty(t, floor.Texture, "material without a diffuse map")
	assert.Len(t, floor.Indices, 3)
}

func TestDecodeModelRejectsEmpty(t *testing.T) {
	_, err := DecodeModel(strings.NewReader("o nothing\nv 0 0 0\n"), strings.NewReader(""))
	require.Error(t, err)
}

func TestImportModelFindsMaterialLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.obj"), []byte(quadOBJ), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(sceneMTL), 0o644))

	meshes, err := ImportModel(filepath.Join(dir, "scene.obj"))
	require.NoError(t, err)
	require.NotEmpty(t, meshes)
	assert.Equal(t, "wood.png", meshes[0].Texture)
}

func TestImportModelMissingFile(t *testing.T) {
	_, err := ImportModel(filepath.Join(t.TempDir(), "missing.obj"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTextureName(t *testing.T) {
	for in, want := range map[string]string{
		"wood.png":                 "wood.png",
		"textures/wood.png":        "wood.png",
		`C:\art\textures\wood.png`: "wood.png",
		`../mixed\dirs/wood.png`:   "wood.png",
		"":                         "",
	} {
		assert.Equal(t, want, TextureName(in), in)
	}
}
