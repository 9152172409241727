// Package lossless is a reference backend that reproduces volumes exactly.
// Key frames are stored as QOI images (variant "qoi", uint8 volumes with 1,
// 3 or 4 components) or as zstd-compressed voxels (variant "zstd", any
// layout). Delta frames hold the zstd-compressed XOR against the last key
// frame.
package lossless

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"github.com/klauspost/compress/zstd"
	"github.com/xfmoulet/qoi"

	"github.com/fosdem/volstream/lib/codec"
)

const (
	DeviceType = "lossless"

	VariantQOI  = "qoi"
	VariantZstd = "zstd"

	DefaultKeyFrameInterval = 30
)

// payload encodings stored in the frame header
const (
	encodingQOI uint8 = iota + 1
	encodingZstd
	encodingXorZstd
)

type Codec struct {
	codec.Base

	keyFrameInterval int

	enc *zstd.Encoder
	dec *zstd.Decoder

	// encoder side: the voxels of the last key frame and frames since then
	encRef   *codec.Image
	sinceKey int

	// decoder side
	decRef *codec.Image
	image  *codec.Image
}

func New() (codec.Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("could not create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(codec.MaxFrameBytes)),
		zstd.WithDecodeAllCapLimit(true))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("could not create zstd decoder: %w", err)
	}
	c := &Codec{
		keyFrameInterval: DefaultKeyFrameInterval,
		enc:              enc,
		dec:              dec,
	}
	c.Init(DeviceType, VariantQOI, VariantZstd)
	return c, nil
}

func Register(r *codec.Registry) bool {
	return r.Register(DeviceType, New)
}

// SetKeyFrameInterval makes every n-th frame a key frame. Zero disables
// periodic key frames.
func (c *Codec) SetKeyFrameInterval(n int) error {
	if n < 0 {
		return fmt.Errorf("key frame interval must be nonnegative, got %d", n)
	}
	c.keyFrameInterval = n
	return nil
}

func (c *Codec) Compress(img *codec.Image, opts codec.CompressOptions) (codec.Frame, error) {
	if err := img.Validate(); err != nil {
		return codec.Frame{}, c.fail("compress", fmt.Errorf("%w: %s", codec.ErrUnsupportedImage, err))
	}

	key := opts.ForceKeyFrame || c.encRef == nil || !c.encRef.SameLayout(img) ||
		(c.keyFrameInterval > 0 && c.sinceKey >= c.keyFrameInterval)

	var frame codec.Frame
	if key {
		payload, encoding, err := c.compressKey(img)
		if err != nil {
			return codec.Frame{}, c.fail("compress", err)
		}
		frame = codec.HeaderFor(img, true, encoding).Frame(payload)
		c.encRef = img.Clone()
		c.sinceKey = 1
	} else {
		diff := make([]byte, len(img.Data))
		xorInto(diff, img.Data, c.encRef.Data)
		payload := c.enc.EncodeAll(diff, nil)
		frame = codec.HeaderFor(img, false, encodingXorZstd).Frame(payload)
		c.sinceKey++
	}

	c.Buffer(frame, img)
	return frame, nil
}

func (c *Codec) compressKey(img *codec.Image) ([]byte, uint8, error) {
	if c.CodecType() == VariantZstd {
		return c.enc.EncodeAll(img.Data, nil), encodingZstd, nil
	}

	rgba, err := toNRGBA(img)
	if err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	if err := qoi.Encode(&buf, rgba); err != nil {
		return nil, 0, fmt.Errorf("qoi encoding failed: %w", err)
	}
	return buf.Bytes(), encodingQOI, nil
}

func (c *Codec) Decompress(f codec.Frame, requireKeyFrame bool) error {
	h, payload, err := codec.ParseFrame(f.Data)
	if err != nil {
		return c.fail("decompress", err)
	}
	if requireKeyFrame && !h.Key {
		return c.fail("decompress", codec.ErrNotKeyFrame)
	}
	if !requireKeyFrame && c.decRef == nil {
		return c.fail("decompress", codec.ErrNoKeyFrame)
	}

	img := h.NewImage()
	switch h.Encoding {
	case encodingQOI:
		err = decodeQOI(payload, img)
	case encodingZstd:
		err = c.decodeZstd(payload, img.Data)
	case encodingXorZstd:
		if h.Key {
			return c.fail("decompress", fmt.Errorf("%w: delta payload in key frame", codec.ErrMalformedFrame))
		}
		if !h.Matches(c.decRef) {
			return c.fail("decompress", fmt.Errorf("%w: delta frame does not match key frame layout", codec.ErrMalformedFrame))
		}
		err = c.decodeZstd(payload, img.Data)
		if err == nil {
			xorInto(img.Data, img.Data, c.decRef.Data)
		}
	default:
		err = fmt.Errorf("%w: unknown payload encoding %d", codec.ErrMalformedFrame, h.Encoding)
	}
	if err != nil {
		return c.fail("decompress", err)
	}

	if h.Key {
		c.decRef = img
	}
	c.image = img
	return nil
}

func (c *Codec) decodeZstd(payload []byte, into []byte) error {
	raw, err := c.dec.DecodeAll(payload, make([]byte, 0, len(into)))
	if err != nil {
		return fmt.Errorf("%w: %s", codec.ErrMalformedFrame, err)
	}
	if len(raw) != len(into) {
		return fmt.Errorf("%w: expected %d voxel bytes but got %d", codec.ErrMalformedFrame, len(into), len(raw))
	}
	copy(into, raw)
	return nil
}

func (c *Codec) Image() *codec.Image {
	return c.image
}

func (c *Codec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

func (c *Codec) fail(op string, err error) error {
	return codec.NewError(op, DeviceType, err)
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// toNRGBA lays the slices of a uint8 volume out below each other.
func toNRGBA(img *codec.Image) (*image.NRGBA, error) {
	if img.Type != codec.Uint8 {
		return nil, fmt.Errorf("%w: qoi needs uint8 voxels, got %s", codec.ErrUnsupportedImage, img.Type)
	}
	w, h := img.Dims[0], img.Dims[1]*img.Dims[2]
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	src := img.Data
	switch img.Components {
	case 1:
		for i, v := range src {
			out.Pix[i*4+0] = v
			out.Pix[i*4+1] = v
			out.Pix[i*4+2] = v
			out.Pix[i*4+3] = 255
		}
	case 3:
		for i := range len(src) / 3 {
			out.Pix[i*4+0] = src[i*3+0]
			out.Pix[i*4+1] = src[i*3+1]
			out.Pix[i*4+2] = src[i*3+2]
			out.Pix[i*4+3] = 255
		}
	case 4:
		copy(out.Pix, src)
	default:
		return nil, fmt.Errorf("%w: qoi needs 1, 3 or 4 components, got %d", codec.ErrUnsupportedImage, img.Components)
	}
	return out, nil
}

func decodeQOI(payload []byte, into *codec.Image) error {
	w, h := into.Dims[0], into.Dims[1]*into.Dims[2]
	cfg, err := qoi.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %s", codec.ErrMalformedFrame, err)
	}
	if cfg.Width != w || cfg.Height != h {
		return fmt.Errorf("%w: expected %dx%d picture but got %dx%d", codec.ErrMalformedFrame,
			w, h, cfg.Width, cfg.Height)
	}
	decoded, err := qoi.Decode(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %s", codec.ErrMalformedFrame, err)
	}
	if decoded.Bounds().Dx() != w || decoded.Bounds().Dy() != h {
		return fmt.Errorf("%w: expected %dx%d picture but got %dx%d", codec.ErrMalformedFrame,
			w, h, decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}

	rgba, ok := decoded.(*image.NRGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != 4*w {
		rgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	}

	dst := into.Data
	switch into.Components {
	case 1:
		for i := range dst {
			dst[i] = rgba.Pix[i*4]
		}
	case 3:
		for i := range len(dst) / 3 {
			dst[i*3+0] = rgba.Pix[i*4+0]
			dst[i*3+1] = rgba.Pix[i*4+1]
			dst[i*3+2] = rgba.Pix[i*4+2]
		}
	case 4:
		copy(dst, rgba.Pix)
	default:
		return fmt.Errorf("%w: qoi frame with %d components", codec.ErrMalformedFrame, into.Components)
	}
	return nil
}
