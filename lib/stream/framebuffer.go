package stream

import "github.com/fosdem/volstream/lib/codec"

// ErrNoKeyFrame is returned when a delta frame is decoded before any key
// frame. It is the same error the backends report for this condition.
var ErrNoKeyFrame = codec.ErrNoKeyFrame

type State int

const (
	Empty State = iota
	KeyFrameReceived
	Steady
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case KeyFrameReceived:
		return "key-frame-received"
	case Steady:
		return "steady"
	default:
		return "unknown"
	}
}

// FrameBuffer keeps only the latest frame and the latest key frame. It never
// queues: a frame written before the previous one was consumed replaces it.
//
// Byte slices stored in a FrameBuffer are replaced, never modified, so a
// FrameBuffer value copy is a consistent snapshot.
type FrameBuffer struct {
	currentFrame    []byte
	currentKeyFrame []byte

	keyFrameReceived bool
	keyFrameUpdated  bool
	keyFrameDecoded  bool
	frameUpdated     bool

	haveFrame bool
}

// UpdateFrame replaces the current frame. It reports whether a frame that was
// never consumed got overwritten.
func (b *FrameBuffer) UpdateFrame(data []byte) (overwroteUnconsumed bool) {
	overwroteUnconsumed = b.frameUpdated
	b.currentFrame = clone(data)
	b.frameUpdated = true
	b.haveFrame = true
	return overwroteUnconsumed
}

// UpdateKeyFrame replaces the key frame. Anything decoded from the previous
// key frame chain is invalid from here on, so the key frame has to be
// decoded again before delta frames can be trusted.
func (b *FrameBuffer) UpdateKeyFrame(data []byte) {
	b.currentKeyFrame = clone(data)
	b.keyFrameReceived = true
	b.keyFrameUpdated = true
	b.keyFrameDecoded = false
}

// ConsumeForDecode hands out the current frame and key frame and marks both
// as consumed.
func (b *FrameBuffer) ConsumeForDecode() (frame []byte, keyFrame []byte, err error) {
	if !b.keyFrameReceived {
		return nil, nil, ErrNoKeyFrame
	}
	b.frameUpdated = false
	b.keyFrameUpdated = false
	return b.currentFrame, b.currentKeyFrame, nil
}

func (b *FrameBuffer) MarkKeyFrameDecoded() {
	if b.keyFrameReceived {
		b.keyFrameDecoded = true
	}
}

func (b FrameBuffer) State() State {
	switch {
	case !b.keyFrameReceived:
		return Empty
	case !b.haveFrame:
		return KeyFrameReceived
	default:
		return Steady
	}
}

func (b FrameBuffer) Frame() []byte          { return b.currentFrame }
func (b FrameBuffer) KeyFrame() []byte       { return b.currentKeyFrame }
func (b FrameBuffer) KeyFrameReceived() bool { return b.keyFrameReceived }
func (b FrameBuffer) KeyFrameUpdated() bool  { return b.keyFrameUpdated }
func (b FrameBuffer) KeyFrameDecoded() bool  { return b.keyFrameDecoded }
func (b FrameBuffer) FrameUpdated() bool     { return b.frameUpdated }

type FrameBufferStatus struct {
	State            string `json:"state"`
	FrameSize        int    `json:"frame_size"`
	KeyFrameSize     int    `json:"key_frame_size"`
	KeyFrameReceived bool   `json:"key_frame_received"`
	KeyFrameUpdated  bool   `json:"key_frame_updated"`
	KeyFrameDecoded  bool   `json:"key_frame_decoded"`
	FrameUpdated     bool   `json:"frame_updated"`
}

func (b FrameBuffer) Status() FrameBufferStatus {
	return FrameBufferStatus{
		State:            b.State().String(),
		FrameSize:        len(b.currentFrame),
		KeyFrameSize:     len(b.currentKeyFrame),
		KeyFrameReceived: b.keyFrameReceived,
		KeyFrameUpdated:  b.keyFrameUpdated,
		KeyFrameDecoded:  b.keyFrameDecoded,
		FrameUpdated:     b.frameUpdated,
	}
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append(make([]byte, 0, len(data)), data...)
}
