package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Every frame starts with a fixed header so that it can be decoded without
// any out-of-band description of the volume.
//
//	0  magic "VSF1"
//	4  flags (bit 0: key frame)
//	5  component type
//	6  components
//	7  payload encoding, backend specific
//	8  dims, 3 x uint32 big endian
const HeaderSize = 20

var frameMagic = []byte("VSF1")

// MaxFrameBytes caps the voxel data a frame header may announce. Decoders
// allocate the image from the header, so larger headers are rejected.
var MaxFrameBytes = 1 << 30

const flagKeyFrame = 1

type Header struct {
	Key        bool
	Type       ComponentType
	Components int
	Encoding   uint8
	Dims       [3]int
}

func HeaderFor(img *Image, key bool, encoding uint8) Header {
	return Header{
		Key:        key,
		Type:       img.Type,
		Components: img.Components,
		Encoding:   encoding,
		Dims:       img.Dims,
	}
}

// NewImage allocates an empty image with the layout described by the header.
func (h Header) NewImage() *Image {
	return NewImage(h.Dims, h.Components, h.Type)
}

// NumBytes is the size of the voxel data the header describes.
func (h Header) NumBytes() int {
	return h.Dims[0] * h.Dims[1] * h.Dims[2] * h.Components * h.Type.Size()
}

func (h Header) Matches(img *Image) bool {
	return img != nil && img.Dims == h.Dims && img.Components == h.Components && img.Type == h.Type
}

// Frame prepends the header to payload.
func (h Header) Frame(payload []byte) Frame {
	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(buf, frameMagic)
	if h.Key {
		buf[4] = flagKeyFrame
	}
	buf[5] = byte(h.Type)
	buf[6] = byte(h.Components)
	buf[7] = h.Encoding
	for i, d := range h.Dims {
		binary.BigEndian.PutUint32(buf[8+4*i:], uint32(d))
	}
	return Frame{Data: append(buf, payload...), IsKeyFrame: h.Key}
}

// ParseFrame splits frame bytes into header and payload.
func ParseFrame(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedFrame, len(data))
	}
	if !bytes.Equal(data[:4], frameMagic) {
		return h, nil, fmt.Errorf("%w: bad magic %q", ErrMalformedFrame, data[:4])
	}
	h.Key = data[4]&flagKeyFrame != 0
	h.Type = ComponentType(data[5])
	h.Components = int(data[6])
	h.Encoding = data[7]
	for i := range h.Dims {
		h.Dims[i] = int(binary.BigEndian.Uint32(data[8+4*i:]))
	}
	if h.Type.Size() == 0 {
		return h, nil, fmt.Errorf("%w: unknown component type %d", ErrMalformedFrame, data[5])
	}
	if h.Components < 1 {
		return h, nil, fmt.Errorf("%w: no components", ErrMalformedFrame)
	}
	size := h.Components * h.Type.Size()
	for _, d := range h.Dims {
		if d < 1 {
			return h, nil, fmt.Errorf("%w: bad dimensions %v", ErrMalformedFrame, h.Dims)
		}
		if size > MaxFrameBytes/d {
			return h, nil, fmt.Errorf("%w: dimensions %v exceed %d bytes", ErrMalformedFrame, h.Dims, MaxFrameBytes)
		}
		size *= d
	}
	return h, data[HeaderSize:], nil
}
