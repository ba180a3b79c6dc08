package render

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
)

func TestModelRegistryKeepsIDsStable(t *testing.T) {
	var reg modelRegistry
	a := reg.add(&MeshModel{Path: "a"})
	b := reg.add(&MeshModel{Path: "b"})
	c := reg.add(&MeshModel{Path: "c"})

	_, err := reg.remove(b)
	require.NoError(t, err)

	m, err := reg.get(c)
	require.NoError(t, err)
	assert.Equal(t, "c", m.Path)
	_, err = reg.get(b)
	assertMarked(t, err, ErrInvalidState)
	_, err = reg.get(-1)
	assertMarked(t, err, ErrInvalidState)

	live := reg.live()
	require.Len(t, live, 2)
	assert.Equal(t, "a", live[0].Path)
	assert.Zero(t, a)
}

func TestCameraProjectsIntoVulkanClipSpace(t *testing.T) {
	cam := Camera{Eye: mgl32.Vec3{0, 0, 0}, Center: mgl32.Vec3{0, 0, -1}, Up: mgl32.Vec3{0, 1, 0}, FovY: 90, Near: 1, Far: 10}
	vp := cam.ViewProjection(core1_0.Extent2D{Width: 200, Height: 100})

	clip := func(p mgl32.Vec3) mgl32.Vec3 {
		v := vp.Projection.Mul4(vp.View).Mul4x1(p.Vec4(1))
		return v.Vec3().Mul(1 / v.W())
	}

	near := clip(mgl32.Vec3{0, 0, -1})
	far := clip(mgl32.Vec3{0, 0, -10})
	assert.InDelta(t, 0, near.Z(), 1e-5)
	assert.InDelta(t, 1, far.Z(), 1e-5)

	up := clip(mgl32.Vec3{0, 1, -1})
	assert.InDelta(t, -1, up.Y(), 1e-5, "clip space y points down")

	right := clip(mgl32.Vec3{2, 0, -1})
	assert.InDelta(t, 1, right.X(), 1e-5, "x is scaled by the aspect ratio")
}

func TestZeroHeightExtentDoesNotDivideByZero(t *testing.T) {
	vp := DefaultCamera().ViewProjection(core1_0.Extent2D{Width: 100})
	for _, v := range vp.Projection {
		assert.False(t, math.IsNaN(float64(v)), "projection contains NaN")
	}
}
