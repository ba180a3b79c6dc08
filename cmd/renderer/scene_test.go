package main

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/vkngwrapper/deferred-renderer/internal/config"
)

func assertVec(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	assert.True(t, want.ApproxEqualThreshold(got, 1e-5), "want %v, got %v", want, got)
}

func apply(m mgl32.Mat4, v mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(v.Vec4(1)).Vec3()
}

func TestPlacementIdentity(t *testing.T) {
	p := placement{model: config.Model{}}
	assert.True(t, mgl32.Ident4().ApproxEqual(p.transform(0)))
	assert.False(t, p.spins())
}

func TestPlacementTranslateAndScale(t *testing.T) {
	p := placement{model: config.Model{Position: [3]float32{1, 2, 3}, Scale: 2}}
	assertVec(t, mgl32.Vec3{3, 2, 3}, apply(p.transform(0), mgl32.Vec3{1, 0, 0}))
}

func TestPlacementSpin(t *testing.T) {
	p := placement{model: config.Model{SpinDegPerSec: 90}}
	assert.True(t, p.spins())

	// A quarter turn about Y takes +X to -Z.
	assertVec(t, mgl32.Vec3{0, 0, -1}, apply(p.transform(time.Second), mgl32.Vec3{1, 0, 0}))
	assertVec(t, mgl32.Vec3{1, 0, 0}, apply(p.transform(0), mgl32.Vec3{1, 0, 0}))
}

func TestPlacementRotationBeforeSpin(t *testing.T) {
	p := placement{model: config.Model{RotationDeg: [3]float32{90, 0, 0}}}
	assertVec(t, mgl32.Vec3{0, 0, 1}, apply(p.transform(0), mgl32.Vec3{0, 1, 0}))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitInit, exitCode(initErr(errors.New("no device"))))
	assert.Equal(t, exitInit, exitCode(errors.Wrap(initErr(errors.New("no device")), "run")))
	assert.Equal(t, exitRuntime, exitCode(errors.New("device lost")))
}

func TestRunRejectsBadFlags(t *testing.T) {
	assert.Equal(t, exitInit, run([]string{"-no-such-flag"}))
}
