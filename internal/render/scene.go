package render

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// Mesh is an immutable pair of device-local vertex and index buffers.
type Mesh struct {
	vertices   gpu.Buffer
	indices    gpu.Buffer
	indexCount int
	texture    int
}

func (m *Mesh) Texture() int    { return m.texture }
func (m *Mesh) IndexCount() int { return m.indexCount }

func (m *Mesh) destroy() {
	m.indices.Destroy()
	m.vertices.Destroy()
}

// MeshModel is an ordered list of meshes drawn with one world transform.
type MeshModel struct {
	Path      string
	Meshes    []*Mesh
	Transform mgl32.Mat4
}

func (m *MeshModel) destroy() {
	for i := len(m.Meshes) - 1; i >= 0; i-- {
		m.Meshes[i].destroy()
	}
	m.Meshes = nil
}

func newMesh(t *TransferUnit, desc assets.MeshDescriptor, texture int) (*Mesh, error) {
	if len(desc.Vertices) == 0 || len(desc.Indices) == 0 {
		return nil, errors.Mark(errors.Newf("mesh %q has no geometry", desc.Name), ErrInvalidModel)
	}
	for _, idx := range desc.Indices {
		if int(idx) >= len(desc.Vertices) {
			return nil, errors.Mark(errors.Newf("mesh %q index %d out of %d vertices", desc.Name, idx, len(desc.Vertices)), ErrInvalidModel)
		}
	}

	vertexData, err := encode(desc.Vertices)
	if err != nil {
		return nil, err
	}
	indexData, err := encode(desc.Indices)
	if err != nil {
		return nil, err
	}
	vertices, err := t.Upload(vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return nil, errors.Wrapf(err, "mesh %q vertices", desc.Name)
	}
	indices, err := t.Upload(indexData, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		vertices.Destroy()
		return nil, errors.Wrapf(err, "mesh %q indices", desc.Name)
	}
	return &Mesh{vertices: vertices, indices: indices, indexCount: len(desc.Indices), texture: texture}, nil
}

// modelRegistry owns the loaded models. Slots of unloaded models stay nil
// so ids remain stable.
type modelRegistry struct {
	models []*MeshModel
}

func (r *modelRegistry) add(m *MeshModel) int {
	r.models = append(r.models, m)
	return len(r.models) - 1
}

func (r *modelRegistry) get(id int) (*MeshModel, error) {
	if id < 0 || id >= len(r.models) || r.models[id] == nil {
		return nil, errors.Mark(errors.Newf("no model with id %d", id), ErrInvalidState)
	}
	return r.models[id], nil
}

func (r *modelRegistry) remove(id int) (*MeshModel, error) {
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	r.models[id] = nil
	return m, nil
}

func (r *modelRegistry) live() []*MeshModel {
	out := make([]*MeshModel, 0, len(r.models))
	for _, m := range r.models {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (r *modelRegistry) destroy() {
	for i := len(r.models) - 1; i >= 0; i-- {
		if r.models[i] != nil {
			r.models[i].destroy()
		}
	}
	r.models = nil
}

// Camera describes the view and a perspective projection.
type Camera struct {
	Eye, Center, Up mgl32.Vec3
	FovY            float32 // degrees
	Near, Far       float32
}

func DefaultCamera() Camera {
	return Camera{
		Eye:    mgl32.Vec3{0, 0, 2},
		Center: mgl32.Vec3{0, 0, -2},
		Up:     mgl32.Vec3{0, 1, 0},
		FovY:   45,
		Near:   0.1,
		Far:    100,
	}
}

// ViewProjection builds the uniform block for an extent. The projection maps
// depth to [0, 1] with Y pointing down, as Vulkan clip space expects.
func (c Camera) ViewProjection(extent core1_0.Extent2D) ViewProjection {
	aspect := float32(extent.Width) / float32(max(1, extent.Height))
	f := float32(1 / math.Tan(float64(mgl32.DegToRad(c.FovY))/2))
	fmn := c.Far - c.Near
	return ViewProjection{
		View: mgl32.LookAtV(c.Eye, c.Center, c.Up),
		Projection: mgl32.Mat4{
			f / aspect, 0, 0, 0,
			0, -f, 0, 0,
			0, 0, -c.Far / fmn, -1,
			0, 0, -(c.Far * c.Near) / fmn, 0,
		},
	}
}
