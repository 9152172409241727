// Package codec defines the pluggable compression backend abstraction used by
// streaming volume nodes, together with the registry that creates backends by
// name and the reference-counted handle used to share one backend instance
// between several nodes.
package codec

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

type ComponentType uint8

const (
	Uint8 ComponentType = iota
	Int16
	Uint16
	Float32
)

func (c ComponentType) Size() int {
	switch c {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Float32:
		return 4
	default:
		return 0
	}
}

func (c ComponentType) String() string {
	switch c {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("ComponentType(%d)", uint8(c))
	}
}

// Image is an uncompressed volume. Data holds Dims[0]*Dims[1]*Dims[2] voxels
// of Components interleaved values each, in native byte order.
// Images handed out by codecs and nodes are shared and must not be modified.
type Image struct {
	Data       []byte
	Dims       [3]int
	Components int
	Type       ComponentType
	IJKToRAS   mgl64.Mat4
}

func NewImage(dims [3]int, components int, t ComponentType) *Image {
	img := &Image{
		Dims:       dims,
		Components: components,
		Type:       t,
		IJKToRAS:   mgl64.Ident4(),
	}
	img.Data = make([]byte, img.NumBytes())
	return img
}

func (i *Image) NumVoxels() int {
	return i.Dims[0] * i.Dims[1] * i.Dims[2]
}

func (i *Image) NumBytes() int {
	return i.NumVoxels() * i.Components * i.Type.Size()
}

func (i *Image) Validate() error {
	if i == nil {
		return fmt.Errorf("no image")
	}
	for axis, d := range i.Dims {
		if d < 1 {
			return fmt.Errorf("dimension %d must be at least 1, got %d", axis, d)
		}
	}
	if i.Components < 1 || i.Components > 255 {
		return fmt.Errorf("unsupported number of components: %d", i.Components)
	}
	if i.Type.Size() == 0 {
		return fmt.Errorf("unsupported component type: %s", i.Type)
	}
	if len(i.Data) != i.NumBytes() {
		return fmt.Errorf("expected %d bytes of voxel data but got %d", i.NumBytes(), len(i.Data))
	}
	return nil
}

// SameLayout reports whether both images have the same dimensions and voxel format.
func (i *Image) SameLayout(o *Image) bool {
	return o != nil && i.Dims == o.Dims && i.Components == o.Components && i.Type == o.Type
}

func (i *Image) Clone() *Image {
	c := *i
	c.Data = append([]byte(nil), i.Data...)
	return &c
}

// Frame is one compressed volume frame. A key frame decodes on its own, a
// delta frame needs the most recently decoded key frame as reference.
type Frame struct {
	Data       []byte
	IsKeyFrame bool
}

func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

type CompressOptions struct {
	// ForceKeyFrame makes the backend emit a key frame regardless of its interval.
	ForceKeyFrame bool
}

// Content is what a codec has buffered most recently: the last produced or
// ingested frame, the key frame it depends on and the matching image.
type Content struct {
	Frame           []byte
	KeyFrame        []byte
	KeyFrameUpdated bool
	Image           *Image
	DeviceName      string
	CodecType       string
}

func (c Content) HasFrames() bool {
	return len(c.Frame) > 0 || len(c.KeyFrame) > 0
}

// Codec is implemented by compression backends. Failures are reported as
// error values; implementations must not panic across this interface.
//
// DeviceType and CodecType may be called at any time. All other methods
// need the caller to hold the codec's Ref lock when the codec is shared.
type Codec interface {
	// Compress encodes img. The backend decides whether the result is a key
	// frame: on the first compression, when opts.ForceKeyFrame is set, or
	// according to its own key frame interval.
	Compress(img *Image, opts CompressOptions) (Frame, error)

	// Decompress decodes f and replaces the image returned by Image.
	// With requireKeyFrame the bytes must be self-contained; otherwise a key
	// frame must have been decoded before or ErrNoKeyFrame is returned.
	// On failure the previously decoded image and reference are kept.
	Decompress(f Frame, requireKeyFrame bool) error

	// Image returns the most recently decoded image, or nil.
	Image() *Image

	// DeviceType is the name the backend registers under.
	DeviceType() string

	// CodecType is the selected variant within the device, such as a
	// quality profile.
	CodecType() string
	SetCodecType(name string) error
	CodecTypes() []string

	Content() Content
	// Subscribe registers fn to be called whenever the buffered content changes.
	Subscribe(fn func(Content)) (cancel func())

	Close() error
}

// KeyFrameIntervaler is implemented by backends with a configurable key frame interval.
type KeyFrameIntervaler interface {
	SetKeyFrameInterval(n int) error
}
