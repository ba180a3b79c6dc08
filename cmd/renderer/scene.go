package main

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/deferred-renderer/internal/config"
)

// placement is a configured model once it has been loaded.
type placement struct {
	id    int
	model config.Model
}

// transform is translate * spin * rotate * scale, with the spin about Y
// growing with elapsed time.
func (p placement) transform(elapsed time.Duration) mgl32.Mat4 {
	m := p.model
	scale := m.Scale
	if scale == 0 {
		scale = 1
	}
	spin := float32(elapsed.Seconds()) * m.SpinDegPerSec

	rotate := mgl32.HomogRotate3DZ(mgl32.DegToRad(m.RotationDeg[2])).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(m.RotationDeg[1]))).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(m.RotationDeg[0])))

	return mgl32.Translate3D(m.Position[0], m.Position[1], m.Position[2]).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(spin))).
		Mul4(rotate).
		Mul4(mgl32.Scale3D(scale, scale, scale))
}

func (p placement) spins() bool { return p.model.SpinDegPerSec != 0 }
