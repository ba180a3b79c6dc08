package render

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"testing"
	"testing/fstest"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/config"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu/headless"
)

// spirv is the smallest blob the headless device accepts as a shader.
func spirv() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	return b
}

func shaderFS() fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, name := range []string{GeometryVertexShader, GeometryFragmentShader, CompositeVertexShader, CompositeFragmentShader} {
		fsys[name+".spv"] = &fstest.MapFile{Data: spirv()}
	}
	return fsys
}

type fixedSurface struct{ width, height int }

func (s fixedSurface) FramebufferSize() (int, int) { return s.width, s.height }

// decoderStub hands out solid images of one size and counts decodes per path.
// Paths in missing fail as if the file did not exist.
type decoderStub struct {
	width, height int
	calls         map[string]int
	missing       map[string]bool
}

func newDecoderStub(width, height int) *decoderStub {
	return &decoderStub{width: width, height: height, calls: map[string]int{}, missing: map[string]bool{}}
}

func (d *decoderStub) decode(path string) (assets.Pixels, error) {
	d.calls[path]++
	if d.missing[path] {
		return assets.Pixels{}, errors.Wrapf(os.ErrNotExist, "open %s", path)
	}
	return assets.Solid(d.width, d.height, 200, 100, 50, 255), nil
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestContext(t *testing.T, opts headless.Options) (*DeviceContext, *headless.Device) {
	t.Helper()
	dev := headless.New(opts)
	ctx, err := NewDeviceContext(dev, quietLogger())
	require.NoError(t, err)
	return ctx, dev
}

type testRenderer struct {
	*Renderer
	dev     *headless.Device
	shaders fstest.MapFS
	decoder *decoderStub
}

func newTestRenderer(t *testing.T, opts headless.Options, mutate func(*config.Config)) testRenderer {
	t.Helper()
	ctx, dev := newTestContext(t, opts)
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	shaders := shaderFS()
	decoder := newDecoderStub(512, 512)
	r, err := New(ctx, cfg, Deps{
		Shaders: assets.NewShaderFS(shaders),
		Images:  decoder.decode,
		Surface: fixedSurface{width: 800, height: 600},
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, r.Init())
	return testRenderer{Renderer: r, dev: dev, shaders: shaders, decoder: decoder}
}

func triangle(texture string) assets.MeshDescriptor {
	return assets.MeshDescriptor{
		Name: "triangle",
		Vertices: []assets.Vertex{
			{Position: mgl32.Vec3{0, -0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{0.5, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2},
		Texture: texture,
	}
}

var testExtent = core1_0.Extent2D{Width: 800, Height: 600}

// assertMarked checks err against a sentinel attached with errors.Mark,
// which the standard library's errors.Is cannot see.
func assertMarked(t *testing.T, err, target error, msgAndArgs ...any) bool {
	t.Helper()
	if errors.Is(err, target) {
		return true
	}
	return assert.Fail(t, fmt.Sprintf("error %q is not marked %q", err, target), msgAndArgs...)
}

func requireMarked(t *testing.T, err, target error, msgAndArgs ...any) {
	t.Helper()
	if !assertMarked(t, err, target, msgAndArgs...) {
		t.FailNow()
	}
}
