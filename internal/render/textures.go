package render

import (
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/deferred-renderer/internal/assets"
	"github.com/vkngwrapper/deferred-renderer/internal/gpu"
)

const textureFormat = core1_0.FormatR8G8B8A8SRGB

// lodClampNone lets one sampler serve textures with any number of mips.
const lodClampNone = 1000

// ImageDecoder turns an image file into RGBA8 pixels.
type ImageDecoder func(path string) (assets.Pixels, error)

// Texture is a sampled image and the descriptor set that binds it.
type Texture struct {
	Name      string
	Width     int
	Height    int
	MipLevels int

	image gpu.Image
	view  gpu.ImageView
	set   gpu.DescriptorSet
}

// textureRegistry is descriptor family two. Textures are deduplicated by
// name, index 0 is the fallback, and the registry only grows until the
// renderer shuts down.
type textureRegistry struct {
	ctx      *DeviceContext
	transfer *TransferUnit
	decode   ImageDecoder
	dir      string
	logger   *log.Logger

	layout  gpu.DescriptorSetLayout
	sampler gpu.Sampler
	pool    gpu.DescriptorPool
	limit   int

	textures []*Texture
	byName   map[string]int
	// spare is a set whose write failed. The pool cannot free single sets,
	// so it is handed to the next texture instead.
	spare gpu.DescriptorSet
}

func newTextureRegistry(ctx *DeviceContext, transfer *TransferUnit, layout gpu.DescriptorSetLayout,
	limit int, dir string, decode ImageDecoder, logger *log.Logger) (*textureRegistry, error) {
	anisotropy := ctx.Device.Adapter().MaxSamplerAnisotropy
	sampler, err := ctx.Device.CreateSampler(gpu.SamplerDesc{
		MagFilter:   core1_0.FilterLinear,
		MinFilter:   core1_0.FilterLinear,
		AddressMode: core1_0.SamplerAddressModeRepeat,
		Anisotropy:  anisotropy,
		MaxLod:      lodClampNone,
	})
	if err != nil {
		return nil, resourceErr(err, "create texture sampler")
	}
	pool, err := ctx.Device.CreateDescriptorPool(gpu.DescriptorPoolDesc{
		MaxSets: limit,
		Sizes:   []core1_0.DescriptorPoolSize{{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: limit}},
	})
	if err != nil {
		sampler.Destroy()
		return nil, resourceErr(err, "create texture descriptor pool")
	}
	return &textureRegistry{
		ctx:      ctx,
		transfer: transfer,
		decode:   decode,
		dir:      dir,
		logger:   logger,
		layout:   layout,
		sampler:  sampler,
		pool:     pool,
		limit:    limit,
		byName:   map[string]int{},
	}, nil
}

func (r *textureRegistry) count() int { return len(r.textures) }

func (r *textureRegistry) allocateSet() (gpu.DescriptorSet, error) {
	if set := r.spare; set != nil {
		r.spare = nil
		return set, nil
	}
	sets, err := r.pool.Allocate(r.layout)
	if err != nil {
		return nil, err
	}
	return sets[0], nil
}

func (r *textureRegistry) set(index int) gpu.DescriptorSet {
	if index < 0 || index >= len(r.textures) {
		index = 0
	}
	return r.textures[index].set
}

// load returns the index of the texture with the given file name, decoding
// and uploading it on first use. An empty name maps to the fallback.
func (r *textureRegistry) load(name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	if idx, ok := r.byName[name]; ok {
		return idx, nil
	}
	px, err := r.decode(filepath.Join(r.dir, name))
	if err != nil {
		return 0, errors.Wrapf(err, "texture %q", name)
	}
	return r.add(name, px)
}

// addPixels registers an image that has no file behind it under a fresh
// unique name.
func (r *textureRegistry) addPixels(px assets.Pixels) (int, error) {
	return r.add("pixels-"+uuid.NewString(), px)
}

func (r *textureRegistry) add(name string, px assets.Pixels) (int, error) {
	if len(r.textures) >= r.limit {
		return 0, errors.Mark(errors.Newf("texture limit of %d reached loading %q", r.limit, name), ErrResource)
	}
	img, err := r.transfer.UploadTexture(px, textureFormat, true)
	if err != nil {
		return 0, errors.Wrapf(err, "texture %q", name)
	}
	view, err := r.ctx.CreateImageView(img, textureFormat, core1_0.ImageAspectColor, img.MipLevels())
	if err != nil {
		img.Destroy()
		return 0, errors.Wrapf(err, "texture %q", name)
	}
	set, err := r.allocateSet()
	if err != nil {
		view.Destroy()
		img.Destroy()
		return 0, resourceErr(err, "allocate descriptor set for texture %q", name)
	}
	err = r.ctx.Device.UpdateDescriptorSets([]gpu.DescriptorWrite{{
		Set:     set,
		Binding: 0,
		Type:    core1_0.DescriptorTypeCombinedImageSampler,
		View:    view,
		Sampler: r.sampler,
		Layout:  core1_0.ImageLayoutShaderReadOnlyOptimal,
	}})
	if err != nil {
		r.spare = set
		view.Destroy()
		img.Destroy()
		return 0, resourceErr(err, "write descriptor set for texture %q", name)
	}

	idx := len(r.textures)
	r.textures = append(r.textures, &Texture{
		Name:      name,
		Width:     px.Width,
		Height:    px.Height,
		MipLevels: img.MipLevels(),
		image:     img,
		view:      view,
		set:       set,
	})
	r.byName[name] = idx
	r.logger.Debug("texture loaded", "name", name, "index", idx, "size", px.Width*px.Height*assets.Channels, "mips", img.MipLevels())
	return idx, nil
}

func (r *textureRegistry) destroy() {
	for i := len(r.textures) - 1; i >= 0; i-- {
		r.textures[i].view.Destroy()
		r.textures[i].image.Destroy()
	}
	r.textures = nil
	r.byName = map[string]int{}
	r.pool.Destroy()
	r.sampler.Destroy()
}
