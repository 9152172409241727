package stream

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/event"
	"github.com/fosdem/volstream/lib/log"
	"github.com/fosdem/volstream/lib/metrics"
)

var ErrNoCodec = errors.New("no codec attached")

type NodeState int

const (
	Uninitialized NodeState = iota
	CodecAttached
	Encoding
	Decoding
	Detached
)

func (s NodeState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case CodecAttached:
		return "codec-attached"
	case Encoding:
		return "encoding"
	case Decoding:
		return "decoding"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

type EventKind int

const (
	EventCodecAttached EventKind = iota
	EventCodecDetached
	// EventFrameEncoded carries the produced frame in Event.Frame
	EventFrameEncoded
	EventImageUpdated
	// EventFramesBuffered fires when the attached codec pushed new content
	// into the node's frame buffer
	EventFramesBuffered
)

func (k EventKind) String() string {
	switch k {
	case EventCodecAttached:
		return "codec-attached"
	case EventCodecDetached:
		return "codec-detached"
	case EventFrameEncoded:
		return "frame-encoded"
	case EventImageUpdated:
		return "image-updated"
	case EventFramesBuffered:
		return "frames-buffered"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Node  *Node
	Kind  EventKind
	Frame codec.Frame
}

type NodeStats struct {
	FramesEncoded uint64 `json:"frames_encoded"`
	FramesDecoded uint64 `json:"frames_decoded"`
	KeyFrames     uint64 `json:"key_frames"`
	FramesDropped uint64 `json:"frames_dropped"`
	Failures      uint64 `json:"failures"`
}

// Node binds a volume image to a compressed frame stream. It either
// produces frames from images it is given (Encode) or reconstructs the
// image from frames (Decode, DecodePending). The codec may be shared with
// other nodes.
//
// The node lock is never held across codec calls or listener callbacks.
type Node struct {
	ID   uuid.UUID
	Name string

	mu          sync.Mutex
	ref         *codec.Ref
	cancelCodec func()
	frames      FrameBuffer
	image       *codec.Image
	ijkToRAS    mgl64.Mat4
	state       NodeState

	codecName       string
	codecDeviceType string

	forceKeyFrame bool
	// set while this node holds the codec lock; content the codec pushes
	// meanwhile was caused by us and is handled by the caller
	busy bool

	stats   NodeStats
	metrics metrics.NodeMetrics
	events  event.Bus[Event]
	log     *slog.Logger
}

func NewNode(name string) *Node {
	return &Node{
		ID:       uuid.New(),
		Name:     name,
		ijkToRAS: mgl64.Ident4(),
		metrics:  metrics.NewNodeMetrics(name),
		log:      log.Module("node").With(slog.String("node", name)),
	}
}

// Subscribe registers fn for node events. Callbacks run synchronously on the
// goroutine that caused the event and may read the node. EventFramesBuffered
// is delivered while the shared codec is busy, so its listeners must not
// Encode, Decode or SetCodecType on nodes sharing that codec.
func (n *Node) Subscribe(fn func(Event)) (cancel func()) {
	return n.events.Subscribe(fn)
}

func (n *Node) publish(kind EventKind, f codec.Frame) {
	n.events.Publish(Event{Node: n, Kind: kind, Frame: f})
}

// AttachCodec takes a reference on ref and makes it the node's codec,
// releasing the previous one. Content the codec already buffered is pulled
// into the frame buffer, and the codec's device name becomes the node's
// codec name.
func (n *Node) AttachCodec(ref *codec.Ref) error {
	if ref == nil {
		return fmt.Errorf("attach codec to %s: %w", n.Name, ErrNoCodec)
	}
	if ref.Acquire() == nil {
		return fmt.Errorf("attach codec to %s: %w", n.Name, codec.ErrReleased)
	}
	c := ref.Codec()
	ref.Lock()
	content := c.Content()
	ref.Unlock()

	n.mu.Lock()
	oldRef, oldCancel := n.ref, n.cancelCodec
	n.ref = ref
	// a key frame decoded by the old codec means nothing to the new one
	n.frames.keyFrameDecoded = false
	if content.HasFrames() {
		n.ingest(content)
	}
	if content.Image != nil {
		n.setImage(content.Image)
	}
	n.codecDeviceType = c.DeviceType()
	if content.DeviceName != "" {
		n.codecName = content.DeviceName
	}
	n.state = CodecAttached
	n.cancelCodec = c.Subscribe(func(content codec.Content) {
		n.onCodecContent(ref, content)
	})
	n.mu.Unlock()

	n.releaseCodec(oldRef, oldCancel)
	n.log.Debug("codec attached", "device", c.DeviceType(), "type", content.CodecType, "refs", ref.Refs())
	n.publish(EventCodecAttached, codec.Frame{})
	return nil
}

// CreateCodec instantiates a backend from reg and attaches it exclusively.
func (n *Node) CreateCodec(reg *codec.Registry, device string) error {
	c, err := reg.CreateByName(device)
	if err != nil {
		n.fail(metrics.ClassConfiguration, "create codec", err)
		return err
	}
	ref := codec.Share(c)
	err = n.AttachCodec(ref)
	if relErr := ref.Release(); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

// RestoreCodec recreates the codec named by the node's device type
// property, as set by ApplyProperties.
func (n *Node) RestoreCodec(reg *codec.Registry) error {
	device := n.CodecDeviceType()
	if device == "" {
		return fmt.Errorf("restore codec for %s: no codec device type set", n.Name)
	}
	return n.CreateCodec(reg, device)
}

// Detach drops the node's codec reference. The last image and the buffered
// frames stay available.
func (n *Node) Detach() error {
	n.mu.Lock()
	ref, cancel := n.ref, n.cancelCodec
	if ref == nil {
		n.mu.Unlock()
		return nil
	}
	n.ref, n.cancelCodec = nil, nil
	n.frames.keyFrameDecoded = false
	n.state = Detached
	n.mu.Unlock()

	err := n.releaseCodec(ref, cancel)
	n.publish(EventCodecDetached, codec.Frame{})
	return err
}

func (n *Node) Close() error {
	return n.Detach()
}

func (n *Node) releaseCodec(ref *codec.Ref, cancel func()) error {
	if cancel != nil {
		cancel()
	}
	if ref == nil {
		return nil
	}
	err := ref.Release()
	if err != nil {
		n.log.Warn("releasing codec failed", "err", err)
	}
	return err
}

// Encode compresses img with the attached codec and buffers the result. A
// key frame is forced when the node has none yet or one was requested.
func (n *Node) Encode(img *codec.Image) error {
	n.mu.Lock()
	if n.ref == nil {
		n.mu.Unlock()
		return n.fail(metrics.ClassConfiguration, "encode", ErrNoCodec)
	}
	ref := n.ref
	c := ref.Codec()
	opts := codec.CompressOptions{
		ForceKeyFrame: n.forceKeyFrame || !n.frames.KeyFrameReceived(),
	}
	n.mu.Unlock()

	var f codec.Frame
	err := n.callCodec("compress", ref, func() (err error) {
		f, err = c.Compress(img, opts)
		return err
	})
	if err == nil && f.Empty() {
		err = codec.NewError("compress", c.DeviceType(), errors.New("codec produced an empty frame"))
	}
	if err != nil {
		return n.fail(metrics.ClassCodec, "encode", err)
	}

	n.mu.Lock()
	if n.ref != ref {
		// detached or replaced while compressing, the frame belongs to no one
		n.mu.Unlock()
		n.log.Debug("dropping frame of a codec that is no longer attached")
		return nil
	}
	if f.IsKeyFrame || !n.frames.KeyFrameReceived() {
		n.frames.UpdateKeyFrame(f.Data)
		n.stats.KeyFrames++
		n.metrics.KeyFrames.Inc()
	} else {
		n.frames.UpdateFrame(f.Data)
	}
	n.setImage(img)
	if f.IsKeyFrame {
		n.forceKeyFrame = false
	}
	n.state = Encoding
	n.stats.FramesEncoded++
	n.metrics.FramesEncoded.Inc()
	n.mu.Unlock()

	n.publish(EventFrameEncoded, f)
	return nil
}

// Decode decompresses one frame received from elsewhere and replaces the
// node's image with the result. Delta frames are rejected until a key frame
// has been decoded. On failure the frame buffer and image are left as they
// were.
func (n *Node) Decode(data []byte, isKeyFrame bool) error {
	n.mu.Lock()
	if n.ref == nil {
		n.mu.Unlock()
		return n.fail(metrics.ClassConfiguration, "decode", ErrNoCodec)
	}
	if !isKeyFrame && !n.frames.KeyFrameDecoded() {
		n.mu.Unlock()
		return n.fail(metrics.ClassSequence, "decode", ErrNoKeyFrame)
	}
	ref := n.ref
	c := ref.Codec()
	n.mu.Unlock()

	f := codec.Frame{Data: data, IsKeyFrame: isKeyFrame}
	err := n.callCodec("decompress", ref, func() error {
		return c.Decompress(f, isKeyFrame)
	})
	if err != nil {
		return n.fail(classOf(err), "decode", err)
	}

	n.mu.Lock()
	if n.ref != ref {
		n.mu.Unlock()
		return nil
	}
	if isKeyFrame {
		n.frames.UpdateKeyFrame(data)
		n.frames.MarkKeyFrameDecoded()
		n.stats.KeyFrames++
		n.metrics.KeyFrames.Inc()
	} else {
		n.frames.UpdateFrame(data)
	}
	n.frames.ConsumeForDecode()
	n.commitDecode(c.Image())
	n.mu.Unlock()

	n.publish(EventImageUpdated, codec.Frame{})
	return nil
}

// DecodePending decodes whatever the attached codec pushed into the frame
// buffer: the key frame first if it has not been decoded, then the current
// frame if it is newer. It is a no-op when nothing new arrived.
func (n *Node) DecodePending() error {
	n.mu.Lock()
	if n.ref == nil {
		n.mu.Unlock()
		return n.fail(metrics.ClassConfiguration, "decode", ErrNoCodec)
	}
	ref := n.ref
	c := ref.Codec()
	work := n.frames
	n.mu.Unlock()

	frameUpdated := work.FrameUpdated()
	frame, key, err := work.ConsumeForDecode()
	if err != nil {
		return n.fail(metrics.ClassSequence, "decode", err)
	}
	decodeKey := !work.KeyFrameDecoded()
	decodeFrame := len(frame) > 0 && !bytes.Equal(frame, key) && (frameUpdated || decodeKey)
	if !decodeKey && !decodeFrame {
		return nil
	}

	if decodeKey {
		err = n.callCodec("decompress", ref, func() error {
			return c.Decompress(codec.Frame{Data: key, IsKeyFrame: true}, true)
		})
	}
	if err == nil && decodeFrame {
		err = n.callCodec("decompress", ref, func() error {
			return c.Decompress(codec.Frame{Data: frame}, false)
		})
	}
	if err != nil {
		return n.fail(classOf(err), "decode", err)
	}

	n.mu.Lock()
	if n.ref != ref {
		// the codec was swapped while we were decoding
		n.mu.Unlock()
		return nil
	}
	// content the codec pushed meanwhile stays pending
	if sameBuffer(n.frames.currentKeyFrame, key) {
		n.frames.keyFrameUpdated = false
		if decodeKey {
			n.frames.MarkKeyFrameDecoded()
		}
	}
	if sameBuffer(n.frames.currentFrame, frame) {
		n.frames.frameUpdated = false
	}
	n.commitDecode(c.Image())
	n.mu.Unlock()

	n.publish(EventImageUpdated, codec.Frame{})
	return nil
}

func (n *Node) commitDecode(img *codec.Image) {
	n.setImage(img)
	n.state = Decoding
	n.stats.FramesDecoded++
	n.metrics.FramesDecoded.Inc()
}

// sameBuffer reports whether a and b are the same buffered frame. The frame
// buffer copies every frame it stores, so identity is enough.
func sameBuffer(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return len(a) == len(b) && &a[0] == &b[0]
}

func (n *Node) onCodecContent(ref *codec.Ref, content codec.Content) {
	n.mu.Lock()
	if n.busy || n.ref != ref {
		n.mu.Unlock()
		return
	}
	n.ingest(content)
	if content.DeviceName != "" {
		n.codecName = content.DeviceName
	}
	n.mu.Unlock()

	n.publish(EventFramesBuffered, codec.Frame{})
}

// ingest copies codec content into the frame buffer. The key frame is only
// taken when the node has none yet or the codec replaced it.
func (n *Node) ingest(content codec.Content) {
	if len(content.Frame) > 0 {
		if n.frames.UpdateFrame(content.Frame) {
			n.stats.FramesDropped++
			n.metrics.FramesDropped.Inc()
		}
	}
	if len(content.KeyFrame) > 0 && (!n.frames.KeyFrameReceived() || content.KeyFrameUpdated) {
		n.frames.UpdateKeyFrame(content.KeyFrame)
	}
}

// setImage keeps a shallow copy of img carrying the node's geometry.
func (n *Node) setImage(img *codec.Image) {
	if img == nil {
		return
	}
	c := *img
	c.IJKToRAS = n.ijkToRAS
	n.image = &c
}

// callCodec runs fn under the codec lock and turns panics and foreign
// errors into codec errors.
func (n *Node) callCodec(op string, ref *codec.Ref, fn func() error) (err error) {
	c := ref.Codec()
	ref.Lock()
	n.setBusy(true)
	defer func() {
		n.setBusy(false)
		ref.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = codec.NewError(op, c.DeviceType(), fmt.Errorf("panic: %v", r))
		}
	}()
	err = fn()
	var ce *codec.CodecError
	if err != nil && !errors.As(err, &ce) {
		err = codec.NewError(op, c.DeviceType(), err)
	}
	return err
}

func (n *Node) setBusy(busy bool) {
	n.mu.Lock()
	n.busy = busy
	n.mu.Unlock()
}

func (n *Node) fail(class string, op string, err error) error {
	n.mu.Lock()
	n.stats.Failures++
	n.mu.Unlock()
	n.metrics.Failure(class)
	n.log.Warn(op+" failed", "class", class, "err", err)
	return err
}

func classOf(err error) string {
	if errors.Is(err, codec.ErrNoKeyFrame) || errors.Is(err, codec.ErrNotKeyFrame) {
		return metrics.ClassSequence
	}
	return metrics.ClassCodec
}

// RequestKeyFrame makes the next Encode produce a key frame.
func (n *Node) RequestKeyFrame() {
	n.mu.Lock()
	n.forceKeyFrame = true
	n.mu.Unlock()
}

// Image returns the node's current image. Callers must not modify it.
func (n *Node) Image() *codec.Image {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.image
}

// SetImage replaces the image without encoding it.
func (n *Node) SetImage(img *codec.Image) {
	n.mu.Lock()
	n.image = img
	n.mu.Unlock()
	n.publish(EventImageUpdated, codec.Frame{})
}

func (n *Node) IJKToRAS() mgl64.Mat4 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ijkToRAS
}

// SetIJKToRAS sets the geometry stamped on decoded images.
func (n *Node) SetIJKToRAS(m mgl64.Mat4) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ijkToRAS = m
	if n.image != nil {
		n.setImage(n.image)
	}
}

// FrameBuffer returns a snapshot of the node's frame buffer.
func (n *Node) FrameBuffer() FrameBuffer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frames
}

func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) Codec() codec.Codec {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ref == nil {
		return nil
	}
	return n.ref.Codec()
}

func (n *Node) CodecType() string {
	n.mu.Lock()
	ref := n.ref
	n.mu.Unlock()
	if ref == nil {
		return ""
	}
	return codecType(ref)
}

// codecType does not take the ref lock: listeners of EventFramesBuffered
// run while another node holds it.
func codecType(ref *codec.Ref) string {
	return ref.Codec().CodecType()
}

func (n *Node) SetCodecType(name string) error {
	n.mu.Lock()
	ref := n.ref
	n.mu.Unlock()
	if ref == nil {
		return n.fail(metrics.ClassConfiguration, "set codec type", ErrNoCodec)
	}
	ref.Lock()
	err := ref.Codec().SetCodecType(name)
	ref.Unlock()
	if err != nil {
		return n.fail(metrics.ClassConfiguration, "set codec type", err)
	}
	return nil
}

func (n *Node) CodecName() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codecName
}

func (n *Node) SetCodecName(name string) {
	n.mu.Lock()
	n.codecName = name
	n.mu.Unlock()
}

func (n *Node) CodecDeviceType() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codecDeviceType
}

func (n *Node) SetCodecDeviceType(device string) {
	n.mu.Lock()
	n.codecDeviceType = device
	n.mu.Unlock()
}

const (
	PropCodecName       = "codecName"
	PropCodecDeviceType = "codecDeviceType"
)

// Properties returns the node's persisted attributes.
func (n *Node) Properties() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	props := map[string]string{}
	if n.codecName != "" {
		props[PropCodecName] = n.codecName
	}
	if n.codecDeviceType != "" {
		props[PropCodecDeviceType] = n.codecDeviceType
	}
	return props
}

// ApplyProperties restores attributes written by Properties. Unknown keys
// are ignored.
func (n *Node) ApplyProperties(props map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := props[PropCodecName]; ok {
		n.codecName = v
	}
	if v, ok := props[PropCodecDeviceType]; ok {
		n.codecDeviceType = v
	}
}

func (n *Node) Stats() NodeStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

type ImageInfo struct {
	Dims       [3]int `json:"dims"`
	Components int    `json:"components"`
	Type       string `json:"type"`
}

type NodeStatus struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	State           string            `json:"state"`
	CodecDeviceType string            `json:"codec_device_type,omitempty"`
	CodecName       string            `json:"codec_name,omitempty"`
	CodecType       string            `json:"codec_type,omitempty"`
	CodecRefs       int               `json:"codec_refs"`
	Frames          FrameBufferStatus `json:"frames"`
	Image           *ImageInfo        `json:"image,omitempty"`
	Stats           NodeStats         `json:"stats"`
}

func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	st := NodeStatus{
		ID:              n.ID.String(),
		Name:            n.Name,
		State:           n.state.String(),
		CodecDeviceType: n.codecDeviceType,
		CodecName:       n.codecName,
		Frames:          n.frames.Status(),
		Stats:           n.stats,
	}
	ref := n.ref
	if n.image != nil {
		st.Image = &ImageInfo{
			Dims:       n.image.Dims,
			Components: n.image.Components,
			Type:       n.image.Type.String(),
		}
	}
	n.mu.Unlock()

	if ref != nil {
		st.CodecType = codecType(ref)
		st.CodecRefs = ref.Refs()
	}
	return st
}
