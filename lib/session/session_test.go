package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/backends"
	"github.com/fosdem/volstream/lib/codec/codectest"
	"github.com/fosdem/volstream/lib/config"
	"github.com/fosdem/volstream/lib/stream"
)

var dims = [3]int{4, 4, 2}

func testRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	reg := codec.NewRegistry()
	test.That(t, backends.RegisterAll(reg), test.ShouldBeNil)
	test.That(t, reg.Register(codectest.DeviceType, codectest.Factory), test.ShouldBeTrue)
	return reg
}

func newSession(t *testing.T, yaml string) *Session {
	t.Helper()
	cfg, err := config.ParseBytes([]byte(yaml), t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	s, err := New(cfg, testRegistry(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { s.Close() })
	return s
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFollowerDecodesProducer(t *testing.T) {
	s := newSession(t, `
nodes:
  producer:
    codec_device: lossless
    source: {type: image, width: 4, height: 4, depth: 2}
  mirror:
    codec_device: lossless
    follow: producer
`)
	test.That(t, s.NodeNames(), test.ShouldResemble, []string{"mirror", "producer"})
	test.That(t, s.Start(context.Background()), test.ShouldBeNil)

	producer, _ := s.Node("producer")
	mirror, _ := s.Node("mirror")
	test.That(t, mirror.Image().Data, test.ShouldResemble, make([]byte, 32))

	img := codectest.Gradient(dims, 1, 3)
	test.That(t, producer.Encode(img), test.ShouldBeNil)
	test.That(t, mirror.Image().Data, test.ShouldResemble, img.Data)
	test.That(t, mirror.Stats().FramesDecoded, test.ShouldEqual, uint64(2))
}

func TestFollowerRequestsKeyFrame(t *testing.T) {
	s := newSession(t, `
nodes:
  producer:
    codec_device: lossless
  mirror:
    codec_device: lossless
    follow: producer
`)
	producer, _ := s.Node("producer")
	mirror, _ := s.Node("mirror")
	var frames []codec.Frame
	producer.Subscribe(func(e stream.Event) {
		if e.Kind == stream.EventFrameEncoded {
			frames = append(frames, e.Frame)
		}
	})

	test.That(t, producer.Encode(codectest.Gradient(dims, 1, 1)), test.ShouldBeNil)
	// a fresh codec has not seen the key frame
	test.That(t, mirror.CreateCodec(s.Registry, "lossless"), test.ShouldBeNil)
	test.That(t, producer.Encode(codectest.Gradient(dims, 1, 2)), test.ShouldBeNil)
	test.That(t, mirror.Image().Data, test.ShouldResemble, codectest.Gradient(dims, 1, 1).Data)

	img := codectest.Gradient(dims, 1, 3)
	test.That(t, producer.Encode(img), test.ShouldBeNil)
	test.That(t, frames[1].IsKeyFrame, test.ShouldBeFalse)
	test.That(t, frames[2].IsKeyFrame, test.ShouldBeTrue)
	test.That(t, mirror.Image().Data, test.ShouldResemble, img.Data)
}

func TestViewerDecodesSharedCodec(t *testing.T) {
	s := newSession(t, `
codecs:
  main:
    device: lossless
    codec_type: zstd
    key_frame_interval: 5
nodes:
  producer:
    codec: main
  viewer:
    codec: main
`)
	ctx, cancel := context.WithCancel(context.Background())
	test.That(t, s.Start(ctx), test.ShouldBeNil)

	producer, _ := s.Node("producer")
	viewer, _ := s.Node("viewer")
	test.That(t, producer.CodecType(), test.ShouldEqual, "zstd")
	test.That(t, s.Codecs["main"].Refs(), test.ShouldEqual, 3)

	var last *codec.Image
	for seed := range 8 {
		last = codectest.Gradient(dims, 1, seed)
		test.That(t, producer.Encode(last), test.ShouldBeNil)
	}
	eventually(t, func() bool {
		img := viewer.Image()
		return img != nil && string(img.Data) == string(last.Data)
	})

	cancel()
	s.Wait()
}

func TestSessionEvents(t *testing.T) {
	s := newSession(t, `
nodes:
  producer:
    codec_device: fake
`)
	events := make(chan EventNodeData, 10)
	s.AddEventListener(EventNodeUpdated, func(_ *Session, data interface{}) {
		events <- data.(EventNodeData)
	})

	producer, _ := s.Node("producer")
	test.That(t, producer.Encode(codectest.Gradient(dims, 1, 0)), test.ShouldBeNil)
	select {
	case ev := <-events:
		test.That(t, ev.Node, test.ShouldEqual, "producer")
		test.That(t, ev.Kind, test.ShouldEqual, "frame-encoded")
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
}

func TestSessionStats(t *testing.T) {
	s := newSession(t, `
nodes:
  a: {codec_device: fake}
  b: {codec_device: fake, follow: a}
`)
	a, _ := s.Node("a")
	test.That(t, a.Encode(codectest.Gradient(dims, 1, 0)), test.ShouldBeNil)
	stats := s.Stats()
	test.That(t, stats, test.ShouldHaveLength, 2)
	test.That(t, stats[0].FramesEncoded, test.ShouldEqual, uint64(1))
	test.That(t, stats[1].FramesDecoded, test.ShouldEqual, uint64(1))
}

func TestSessionRejects(t *testing.T) {
	for name, tc := range map[string]struct {
		yaml string
		err  error
	}{
		"unknown device": {
			yaml: "nodes:\n  a: {codec_device: vp9}\n",
			err:  codec.ErrUnknownCodec,
		},
		"unknown shared device": {
			yaml: "codecs:\n  c: {device: vp9}\nnodes:\n  a: {codec: c}\n",
			err:  codec.ErrUnknownCodec,
		},
		"unknown codec type": {
			yaml: "nodes:\n  a: {codec_device: jpeg, codec_type: ultra}\n",
			err:  codec.ErrUnknownCodecType,
		},
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.ParseBytes([]byte(tc.yaml), "/")
			test.That(t, err, test.ShouldBeNil)
			s, err := New(cfg, testRegistry(t))
			test.That(t, s, test.ShouldBeNil)
			test.That(t, errors.Is(err, tc.err), test.ShouldBeTrue)
		})
	}

	cfg, err := config.ParseBytes([]byte("nodes:\n  a: {codec_device: jpeg, key_frame_interval: 3}\n"), "/")
	test.That(t, err, test.ShouldBeNil)
	_, err = New(cfg, testRegistry(t))
	test.That(t, err.Error(), test.ShouldContainSubstring, "no configurable key frame interval")
}

func TestCloseReleasesCodecs(t *testing.T) {
	cfg, err := config.ParseBytes([]byte(`
codecs:
  main: {device: fake}
nodes:
  a: {codec: main}
  b: {codec: main}
`), "/")
	test.That(t, err, test.ShouldBeNil)
	s, err := New(cfg, testRegistry(t))
	test.That(t, err, test.ShouldBeNil)

	a, _ := s.Node("a")
	fake := a.Codec().(*codectest.Fake)
	test.That(t, s.Close(), test.ShouldBeNil)
	test.That(t, fake.Closed, test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, stream.Detached)
	// closing twice is harmless
	test.That(t, s.Close(), test.ShouldBeNil)
}

func TestRequestShutdown(t *testing.T) {
	s := newSession(t, "nodes:\n  a: {codec_device: fake}\n")
	select {
	case <-s.ShutdownRequested():
		t.Fatal("shutdown requested too early")
	default:
	}
	s.RequestShutdown()
	s.RequestShutdown()
	<-s.ShutdownRequested()
}
