package assets

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Pixels is a tightly packed RGBA8 image.
type Pixels struct {
	Width, Height int
	Data          []byte
}

const Channels = 4

func (p Pixels) Size() int { return p.Width * p.Height * Channels }

func DecodeImage(path string) (Pixels, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pixels{}, errors.Wrap(err, "open image")
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return Pixels{}, errors.Wrapf(err, "decode %s", path)
	}
	p := FromImage(img)
	if p.Width == 0 || p.Height == 0 {
		return Pixels{}, errors.Newf("%s image %s is empty", format, path)
	}
	return p, nil
}

func FromImage(img image.Image) Pixels {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*Channels || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return Pixels{Width: bounds.Dx(), Height: bounds.Dy(), Data: rgba.Pix}
}

// Solid returns a width x height image filled with one colour.
func Solid(width, height int, r, g, b, a byte) Pixels {
	data := make([]byte, width*height*Channels)
	for i := 0; i < len(data); i += Channels {
		data[i], data[i+1], data[i+2], data[i+3] = r, g, b, a
	}
	return Pixels{Width: width, Height: height, Data: data}
}
