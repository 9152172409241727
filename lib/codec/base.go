package codec

import (
	"fmt"
	"slices"
	"sync"

	"github.com/fosdem/volstream/lib/event"
)

// Base implements the bookkeeping shared by all backends: variant selection,
// buffered content and content-changed notification. Backends embed it and
// call Init from their constructor.
type Base struct {
	device     string
	codecTypes []string

	// codecType may be read without holding the codec's Ref lock
	mu        sync.RWMutex
	codecType string

	content Content
	changes event.Bus[Content]
}

// Init sets the device type and the supported variants. The first variant is
// selected.
func (b *Base) Init(device string, codecTypes ...string) {
	b.device = device
	b.codecTypes = codecTypes
	if len(codecTypes) > 0 {
		b.codecType = codecTypes[0]
	}
	b.content.CodecType = b.codecType
}

func (b *Base) DeviceType() string {
	return b.device
}

func (b *Base) CodecType() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.codecType
}

func (b *Base) CodecTypes() []string {
	return slices.Clone(b.codecTypes)
}

func (b *Base) SetCodecType(name string) error {
	if !slices.Contains(b.codecTypes, name) {
		return fmt.Errorf("%w %q for %s (have %v)", ErrUnknownCodecType, name, b.device, b.codecTypes)
	}
	b.mu.Lock()
	b.codecType = name
	b.mu.Unlock()
	b.content.CodecType = name
	return nil
}

func (b *Base) Content() Content {
	return b.content
}

// SetDeviceName names the stream the codec carries, for instance the name of
// the remote device feeding it.
func (b *Base) SetDeviceName(name string) {
	b.content.DeviceName = name
}

func (b *Base) Subscribe(fn func(Content)) (cancel func()) {
	return b.changes.Subscribe(fn)
}

// Buffer stores f as the latest content and notifies subscribers.
// A key frame also replaces the buffered key frame.
func (b *Base) Buffer(f Frame, img *Image) {
	b.content.Frame = f.Data
	b.content.KeyFrameUpdated = f.IsKeyFrame
	if f.IsKeyFrame {
		b.content.KeyFrame = f.Data
	}
	if img != nil {
		b.content.Image = img
	}
	b.changes.Publish(b.content)
}

// Ingest buffers a frame pushed from outside, such as a receiver that feeds
// the codec directly.
func (b *Base) Ingest(f Frame) error {
	if _, _, err := ParseFrame(f.Data); err != nil {
		return NewError("ingest", b.device, err)
	}
	b.Buffer(Frame{Data: append([]byte(nil), f.Data...), IsKeyFrame: f.IsKeyFrame}, nil)
	return nil
}
