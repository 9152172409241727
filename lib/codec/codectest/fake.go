// Package codectest provides an in-memory backend for tests of code that
// drives codecs. Frames carry the raw voxel data, so round trips are exact.
package codectest

import (
	"errors"
	"fmt"

	"github.com/fosdem/volstream/lib/codec"
)

const DeviceType = "fake"

var ErrInjected = errors.New("injected failure")

type Fake struct {
	codec.Base

	// KeyFrameInterval makes every n-th compressed frame a key frame; 0 means
	// only the first one and forced ones.
	KeyFrameInterval int

	FailCompress   bool
	FailDecompress bool
	PanicOnDecode  bool

	Compressed   int
	Decompressed int
	Closed       bool

	sinceKey   int
	keyDecoded bool
	image      *codec.Image
}

func New() *Fake {
	f := &Fake{}
	f.Init(DeviceType, "plain", "alt")
	return f
}

func Factory() (codec.Codec, error) {
	return New(), nil
}

func (f *Fake) SetKeyFrameInterval(n int) error {
	if n < 0 {
		return fmt.Errorf("key frame interval must be nonnegative")
	}
	f.KeyFrameInterval = n
	return nil
}

func (f *Fake) Compress(img *codec.Image, opts codec.CompressOptions) (codec.Frame, error) {
	if f.FailCompress {
		return codec.Frame{}, codec.NewError("compress", DeviceType, ErrInjected)
	}
	if err := img.Validate(); err != nil {
		return codec.Frame{}, codec.NewError("compress", DeviceType, err)
	}

	key := opts.ForceKeyFrame || f.Compressed == 0 ||
		(f.KeyFrameInterval > 0 && f.sinceKey >= f.KeyFrameInterval)
	if key {
		f.sinceKey = 0
	}
	f.sinceKey++
	f.Compressed++

	frame := codec.HeaderFor(img, key, 0).Frame(img.Data)
	f.Buffer(frame, img)
	return frame, nil
}

func (f *Fake) Decompress(frame codec.Frame, requireKeyFrame bool) error {
	if f.PanicOnDecode {
		panic("fake codec exploded")
	}
	if f.FailDecompress {
		return codec.NewError("decompress", DeviceType, ErrInjected)
	}
	h, payload, err := codec.ParseFrame(frame.Data)
	if err != nil {
		return codec.NewError("decompress", DeviceType, err)
	}
	if requireKeyFrame && !h.Key {
		return codec.NewError("decompress", DeviceType, codec.ErrNotKeyFrame)
	}
	if !requireKeyFrame && !f.keyDecoded {
		return codec.NewError("decompress", DeviceType, codec.ErrNoKeyFrame)
	}

	if len(payload) != h.NumBytes() {
		return codec.NewError("decompress", DeviceType, fmt.Errorf("%w: payload size %d", codec.ErrMalformedFrame, len(payload)))
	}
	img := h.NewImage()
	copy(img.Data, payload)

	f.image = img
	if h.Key {
		f.keyDecoded = true
	}
	f.Decompressed++
	return nil
}

func (f *Fake) Image() *codec.Image {
	return f.image
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Gradient returns a uint8 volume whose voxels depend on position and seed.
func Gradient(dims [3]int, components int, seed int) *codec.Image {
	img := codec.NewImage(dims, components, codec.Uint8)
	i := 0
	for z := range dims[2] {
		for y := range dims[1] {
			for x := range dims[0] {
				for c := range components {
					img.Data[i] = byte(x*3 + y*2 + z*5 + c*7 + seed)
					i++
				}
			}
		}
	}
	return img
}
