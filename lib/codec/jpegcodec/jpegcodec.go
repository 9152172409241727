// Package jpegcodec is a lossy intra-only reference backend: every frame is a
// key frame holding the volume slices stacked into one JPEG picture.
package jpegcodec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/fosdem/volstream/lib/codec"
)

const DeviceType = "jpeg"

// Variants are quality profiles.
var qualities = map[string]int{
	"high":   95,
	"medium": 75,
	"low":    50,
}

const encodingJPEG uint8 = 1

type Codec struct {
	codec.Base

	keyDecoded bool
	image      *codec.Image
}

func New() (codec.Codec, error) {
	c := &Codec{}
	c.Init(DeviceType, "high", "medium", "low")
	return c, nil
}

func Register(r *codec.Registry) bool {
	return r.Register(DeviceType, New)
}

func (c *Codec) Quality() int {
	return qualities[c.CodecType()]
}

func (c *Codec) Compress(img *codec.Image, _ codec.CompressOptions) (codec.Frame, error) {
	pic, err := toPicture(img)
	if err != nil {
		return codec.Frame{}, c.fail("compress", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, pic, &jpeg.Options{Quality: c.Quality()}); err != nil {
		return codec.Frame{}, c.fail("compress", err)
	}

	frame := codec.HeaderFor(img, true, encodingJPEG).Frame(buf.Bytes())
	c.Buffer(frame, img)
	return frame, nil
}

func (c *Codec) Decompress(f codec.Frame, requireKeyFrame bool) error {
	h, payload, err := codec.ParseFrame(f.Data)
	if err != nil {
		return c.fail("decompress", err)
	}
	if !requireKeyFrame && !c.keyDecoded {
		return c.fail("decompress", codec.ErrNoKeyFrame)
	}
	if !h.Key || h.Encoding != encodingJPEG {
		return c.fail("decompress", fmt.Errorf("%w: not a jpeg key frame", codec.ErrMalformedFrame))
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return c.fail("decompress", fmt.Errorf("%w: %s", codec.ErrMalformedFrame, err))
	}
	if cfg.Width != h.Dims[0] || cfg.Height != h.Dims[1]*h.Dims[2] {
		return c.fail("decompress", fmt.Errorf("%w: picture is %dx%d, header says %v",
			codec.ErrMalformedFrame, cfg.Width, cfg.Height, h.Dims))
	}
	pic, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return c.fail("decompress", fmt.Errorf("%w: %s", codec.ErrMalformedFrame, err))
	}
	img := h.NewImage()
	if err := fromPicture(pic, img); err != nil {
		return c.fail("decompress", err)
	}

	c.keyDecoded = true
	c.image = img
	return nil
}

func (c *Codec) Image() *codec.Image {
	return c.image
}

func (c *Codec) Close() error {
	return nil
}

func (c *Codec) fail(op string, err error) error {
	return codec.NewError(op, DeviceType, err)
}

func toPicture(img *codec.Image) (image.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", codec.ErrUnsupportedImage, err)
	}
	if img.Type != codec.Uint8 {
		return nil, fmt.Errorf("%w: jpeg needs uint8 voxels, got %s", codec.ErrUnsupportedImage, img.Type)
	}

	rect := image.Rect(0, 0, img.Dims[0], img.Dims[1]*img.Dims[2])
	switch img.Components {
	case 1:
		return &image.Gray{Pix: img.Data, Stride: img.Dims[0], Rect: rect}, nil
	case 3:
		pic := image.NewNRGBA(rect)
		for i := range len(img.Data) / 3 {
			copy(pic.Pix[i*4:i*4+3], img.Data[i*3:i*3+3])
			pic.Pix[i*4+3] = 255
		}
		return pic, nil
	default:
		return nil, fmt.Errorf("%w: jpeg needs 1 or 3 components, got %d", codec.ErrUnsupportedImage, img.Components)
	}
}

func fromPicture(pic image.Image, into *codec.Image) error {
	w, h := into.Dims[0], into.Dims[1]*into.Dims[2]
	if pic.Bounds().Dx() != w || pic.Bounds().Dy() != h {
		return fmt.Errorf("%w: expected %dx%d picture but got %dx%d", codec.ErrMalformedFrame,
			w, h, pic.Bounds().Dx(), pic.Bounds().Dy())
	}

	switch into.Components {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(gray, gray.Bounds(), pic, pic.Bounds().Min, draw.Src)
		copy(into.Data, gray.Pix)
	case 3:
		rgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), pic, pic.Bounds().Min, draw.Src)
		for i := range len(into.Data) / 3 {
			copy(into.Data[i*3:i*3+3], rgba.Pix[i*4:i*4+3])
		}
	default:
		return fmt.Errorf("%w: jpeg frame with %d components", codec.ErrMalformedFrame, into.Components)
	}
	return nil
}
