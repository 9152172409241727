package codec

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCodec     = errors.New("unknown codec")
	ErrUnknownCodecType = errors.New("unknown codec type")
	ErrNoKeyFrame       = errors.New("missing key frame")
	ErrNotKeyFrame      = errors.New("frame is not a key frame")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnsupportedImage = errors.New("unsupported image")
	ErrReleased         = errors.New("codec reference already released")
)

// CodecError reports a failure inside a backend.
type CodecError struct {
	Op     string
	Device string
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s codec: %s failed: %s", e.Device, e.Op, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func NewError(op, device string, err error) error {
	return &CodecError{Op: op, Device: device, Err: err}
}
