package assets

import "github.com/go-gl/mathgl/mgl32"

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
	Normal   mgl32.Vec3
}

// MeshDescriptor is one drawable group of a model: the triangles of a single
// object that share a material. Texture is a bare file name, or empty when
// the material has no diffuse map.
type MeshDescriptor struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
	Texture  string
}
