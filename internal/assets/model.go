package assets

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// ImportModel reads a Wavefront OBJ file. The material library named by the
// file, if any, is looked up next to it.
func ImportModel(path string) ([]MeshDescriptor, error) {
	objFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open model")
	}
	defer objFile.Close()

	var mtl io.Reader
	if name := materialLibrary(path); name != "" {
		mtlFile, err := os.Open(filepath.Join(filepath.Dir(path), name))
		if err == nil {
			defer mtlFile.Close()
			mtl = mtlFile
		}
	}
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	meshes, err := DecodeModel(objFile, mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "import %s", path)
	}
	return meshes, nil
}

func materialLibrary(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "mtllib" {
			return strings.Join(fields[1:], " ")
		}
	}
	return ""
}

type vertexKey struct {
	position, uv, normal int
}

type meshBuilder struct {
	desc   MeshDescriptor
	unique map[vertexKey]uint32
}

// DecodeModel builds one mesh per object and material pair, in the order
// they first appear. Polygons are fanned into triangles.
func DecodeModel(objReader, mtlReader io.Reader) ([]MeshDescriptor, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	var order []*meshBuilder
	builders := map[string]*meshBuilder{}
	for _, object := range decoder.Objects {
		for _, face := range object.Faces {
			key := object.Name + "\x00" + face.Material
			b, ok := builders[key]
			if !ok {
				b = &meshBuilder{
					desc:   MeshDescriptor{Name: object.Name, Texture: diffuseTexture(decoder, face.Material)},
					unique: map[vertexKey]uint32{},
				}
				builders[key] = b
				order = append(order, b)
			}
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range [3]int{0, i - 1, i} {
					if err := b.addVertex(decoder, face, corner); err != nil {
						return nil, errors.Wrapf(err, "object %q", object.Name)
					}
				}
			}
		}
	}

	meshes := make([]MeshDescriptor, 0, len(order))
	for _, b := range order {
		if len(b.desc.Indices) == 0 {
			continue
		}
		meshes = append(meshes, b.desc)
	}
	if len(meshes) == 0 {
		return nil, errors.New("model contains no triangles")
	}
	return meshes, nil
}

func index(list []int, i int) int {
	if i < len(list) {
		return list[i]
	}
	return -1
}

func (b *meshBuilder) addVertex(decoder *obj.Decoder, face obj.Face, corner int) error {
	key := vertexKey{
		position: face.Vertices[corner],
		uv:       index(face.Uvs, corner),
		normal:   index(face.Normals, corner),
	}
	if idx, ok := b.unique[key]; ok {
		b.desc.Indices = append(b.desc.Indices, idx)
		return nil
	}

	if key.position < 0 || key.position*3+2 >= len(decoder.Vertices) {
		return errors.Newf("vertex index %d out of range", key.position)
	}
	v := Vertex{
		Position: mgl32.Vec3{
			decoder.Vertices[key.position*3],
			decoder.Vertices[key.position*3+1],
			decoder.Vertices[key.position*3+2],
		},
		Color: mgl32.Vec3{1, 1, 1},
	}
	if key.uv >= 0 && key.uv*2+1 < len(decoder.Uvs) {
		v.TexCoord = mgl32.Vec2{decoder.Uvs[key.uv*2], 1 - decoder.Uvs[key.uv*2+1]}
	}
	if key.normal >= 0 && key.normal*3+2 < len(decoder.Normals) {
		v.Normal = mgl32.Vec3{
			decoder.Normals[key.normal*3],
			decoder.Normals[key.normal*3+1],
			decoder.Normals[key.normal*3+2],
		}
	}

	idx := uint32(len(b.desc.Vertices))
	b.desc.Vertices = append(b.desc.Vertices, v)
	b.unique[key] = idx
	b.desc.Indices = append(b.desc.Indices, idx)
	return nil
}

func diffuseTexture(decoder *obj.Decoder, material string) string {
	m, ok := decoder.Materials[material]
	if !ok || m == nil {
		return ""
	}
	return TextureName(m.MapKd)
}

// TextureName strips any directory from a texture reference, accepting both
// separator styles regardless of platform.
func TextureName(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndexAny(ref, `/\`); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
