// Package render is the deferred renderer: a multisampled geometry subpass
// resolved into attachments that a composite subpass reads as inputs, a
// frames-in-flight submission loop, and the registries that own meshes and
// textures on the device.
package render

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/config"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

// Surface reports the drawable size of whatever the swapchain presents to.
type Surface interface {
	FramebufferSize() (width, height int)
}

// Deps are the collaborators the renderer reads assets through. Nil
// Images and Importer fall back to the assets package.
type Deps struct {
	Shaders  assets.ShaderSource
	Images   ImageDecoder
	Importer func(path string) ([]assets.MeshDescriptor, error)
	Surface  Surface
	Logger   *log.Logger
}

type Renderer struct {
	ctx      *DeviceContext
	cfg      config.Config
	shaders  assets.ShaderSource
	images   ImageDecoder
	importer func(path string) ([]assets.MeshDescriptor, error)
	surface  Surface
	logger   *log.Logger

	transfer        *TransferUnit
	global          releaseStack
	layouts         setLayouts
	pipelineLayouts pipelineLayouts
	formats         attachmentFormats
	textures        *textureRegistry
	models          modelRegistry

	swap           *swapchainResources
	slots          []frameSlot
	imagesInFlight []gpu.Fence
	frame          int

	camera      Camera
	stale       atomic.Bool
	stats       frameStats
	initialized bool
}

// New prepares a renderer on an existing device context. Nothing is
// created on the device until Init.
func New(ctx *DeviceContext, cfg config.Config, deps Deps) (*Renderer, error) {
	if deps.Shaders == nil {
		return nil, errors.New("renderer needs a shader source")
	}
	if deps.Surface == nil {
		return nil, errors.New("renderer needs a surface")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "renderer config")
	}
	r := &Renderer{
		ctx:      ctx,
		cfg:      cfg,
		shaders:  deps.Shaders,
		images:   deps.Images,
		importer: deps.Importer,
		surface:  deps.Surface,
		logger:   deps.Logger,
		transfer: NewTransferUnit(ctx),
		camera:   DefaultCamera(),
	}
	if r.images == nil {
		r.images = assets.DecodeImage
	}
	if r.importer == nil {
		r.importer = assets.ImportModel
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r, nil
}

// Init creates every device object the renderer needs before the first
// frame. On failure everything created so far is destroyed again.
func (r *Renderer) Init() (err error) {
	if r.initialized {
		return errors.Mark(errors.New("renderer already initialized"), ErrInvalidState)
	}
	defer func() {
		if err != nil {
			r.teardown()
		}
	}()

	adapter := r.ctx.Device.Adapter()
	r.formats, err = r.ctx.chooseAttachmentFormats(r.cfg.Renderer.MaxSamples)
	if err != nil {
		return errors.Wrapf(err, "adapter %s", adapter.Name)
	}
	r.layouts, err = r.ctx.createSetLayouts(&r.global)
	if err != nil {
		return err
	}
	r.pipelineLayouts, err = r.ctx.createPipelineLayouts(r.layouts, &r.global)
	if err != nil {
		return err
	}

	r.textures, err = newTextureRegistry(r.ctx, r.transfer, r.layouts.sampler, r.cfg.Renderer.MaxObjects,
		r.cfg.Assets.TextureDir, r.images, r.logger)
	if err != nil {
		return err
	}
	if err := r.loadFallbackTexture(); err != nil {
		return err
	}

	r.slots, err = r.ctx.createFrameSlots(r.cfg.Renderer.FramesInFlight, &r.global)
	if err != nil {
		return err
	}

	r.swap, err = r.createSwapchainResources()
	if err != nil {
		return err
	}
	r.imagesInFlight = make([]gpu.Fence, r.swap.imageCount())

	r.initialized = true
	r.logger.Info("renderer initialized",
		"adapter", adapter.Name,
		"images", r.swap.imageCount(),
		"frames_in_flight", len(r.slots),
		"samples", r.formats.samples)
	return nil
}

// loadFallbackTexture fills texture index 0. When the configured file is
// missing or unset a 1x1 white texture stands in.
func (r *Renderer) loadFallbackTexture() error {
	if name := r.cfg.Assets.FallbackTexture; name != "" {
		_, err := r.textures.load(name)
		if err == nil {
			return nil
		}
		r.logger.Warn("fallback texture unavailable, using white", "name", name, "err", err)
	}
	_, err := r.textures.addPixels(assets.Solid(1, 1, 255, 255, 255, 255))
	return err
}

// Shutdown waits for the device to go idle and destroys everything Init and
// the model API created, in reverse order. The device context itself is
// left to its owner.
func (r *Renderer) Shutdown() error {
	if !r.initialized {
		return nil
	}
	err := r.ctx.Device.WaitIdle()
	r.teardown()
	r.initialized = false
	r.logger.Info("renderer shut down", "frames", r.frame)
	return errors.Wrap(err, "wait for idle at shutdown")
}

func (r *Renderer) teardown() {
	if r.swap != nil {
		r.swap.release()
		r.swap = nil
	}
	r.models.destroy()
	if r.textures != nil {
		r.textures.destroy()
		r.textures = nil
	}
	r.global.release()
	r.slots = nil
	r.imagesInFlight = nil
}

// LoadModel imports a model file and uploads its meshes. The returned id is
// valid until UnloadModel.
func (r *Renderer) LoadModel(path string) (int, error) {
	descs, err := r.importer(path)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "import model %s", path), ErrInvalidModel)
	}
	return r.LoadMeshes(path, descs)
}

// LoadMeshes uploads already decoded meshes as one model. Textures named by
// the meshes are loaded on first use and shared afterwards.
func (r *Renderer) LoadMeshes(name string, descs []assets.MeshDescriptor) (_ int, err error) {
	if !r.initialized {
		return 0, errors.Mark(errors.New("load model before init"), ErrInvalidState)
	}
	if len(descs) == 0 {
		return 0, errors.Mark(errors.Newf("model %s has no meshes", name), ErrInvalidModel)
	}

	model := &MeshModel{Path: name, Transform: mgl32.Ident4()}
	defer func() {
		if err != nil {
			model.destroy()
		}
	}()
	for _, desc := range descs {
		texture, err := r.textures.load(desc.Texture)
		if err != nil {
			return 0, errors.Wrapf(err, "model %s", name)
		}
		mesh, err := newMesh(r.transfer, desc, texture)
		if err != nil {
			return 0, errors.Wrapf(err, "model %s", name)
		}
		model.Meshes = append(model.Meshes, mesh)
	}

	id := r.models.add(model)
	r.logger.Info("model loaded", "name", name, "id", id, "meshes", len(model.Meshes), "textures", r.textures.count())
	return id, nil
}

// UpdateModelTransform sets the world transform pushed with the model's
// draws from the next recorded frame on.
func (r *Renderer) UpdateModelTransform(id int, transform mgl32.Mat4) error {
	m, err := r.models.get(id)
	if err != nil {
		return err
	}
	m.Transform = transform
	return nil
}

// UnloadModel destroys a model's buffers once the device is idle. Its
// textures stay registered.
func (r *Renderer) UnloadModel(id int) error {
	if _, err := r.models.get(id); err != nil {
		return err
	}
	if err := r.ctx.Device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for idle before unloading model")
	}
	m, err := r.models.remove(id)
	if err != nil {
		return err
	}
	m.destroy()
	r.logger.Debug("model unloaded", "id", id, "name", m.Path)
	return nil
}

// Model returns a loaded model by id.
func (r *Renderer) Model(id int) (*MeshModel, error) {
	return r.models.get(id)
}

func (r *Renderer) SetCamera(c Camera) { r.camera = c }

func (r *Renderer) Camera() Camera { return r.camera }

// TextureCount is the number of registered textures, the fallback included.
func (r *Renderer) TextureCount() int {
	if r.textures == nil {
		return 0
	}
	return r.textures.count()
}

// Texture returns the texture registered at index.
func (r *Renderer) Texture(index int) (*Texture, error) {
	if r.textures == nil || index < 0 || index >= r.textures.count() {
		return nil, errors.Mark(errors.Newf("no texture with index %d", index), ErrInvalidState)
	}
	return r.textures.textures[index], nil
}

// FramesDrawn counts frames that reached presentation.
func (r *Renderer) FramesDrawn() int { return r.frame }

// MarkPipelinesStale asks for the pipelines to be rebuilt before the next
// frame. It is safe to call from any goroutine.
func (r *Renderer) MarkPipelinesStale() {
	r.stale.Store(true)
}

// SurfaceChanged rebuilds the swapchain right away, for platforms that
// report resizes before the swapchain does.
func (r *Renderer) SurfaceChanged() error {
	if !r.initialized {
		return nil
	}
	return r.recreateSwapchain()
}

// reloadPipelines swaps in pipelines built from the current shader
// binaries. A failed build leaves the running pipelines in place.
func (r *Renderer) reloadPipelines() {
	if r.swap == nil {
		return
	}
	if err := r.ctx.Device.WaitIdle(); err != nil {
		r.logger.Error("pipeline reload skipped", "err", err)
		return
	}
	next, err := r.ctx.createPipelines(r.shaders, r.pipelineLayouts, r.swap.targets(r.formats.samples))
	if err != nil {
		r.logger.Error("pipeline reload failed, keeping previous pipelines", "err", err)
		return
	}
	r.swap.pipelines.destroy()
	r.swap.pipelines = next
	r.logger.Info("pipelines reloaded")
}
