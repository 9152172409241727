package codec_test

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/codectest"
)

func TestBaseCodecTypes(t *testing.T) {
	c := codectest.New()
	test.That(t, c.CodecType(), test.ShouldEqual, "plain")
	test.That(t, c.CodecTypes(), test.ShouldResemble, []string{"plain", "alt"})

	test.That(t, c.SetCodecType("alt"), test.ShouldBeNil)
	test.That(t, c.CodecType(), test.ShouldEqual, "alt")
	test.That(t, c.Content().CodecType, test.ShouldEqual, "alt")

	err := c.SetCodecType("nope")
	test.That(t, errors.Is(err, codec.ErrUnknownCodecType), test.ShouldBeTrue)
	test.That(t, c.CodecType(), test.ShouldEqual, "alt")
}

func TestBaseBufferNotifies(t *testing.T) {
	c := codectest.New()
	var seen []codec.Content
	cancel := c.Subscribe(func(content codec.Content) { seen = append(seen, content) })

	img := codectest.Gradient([3]int{4, 4, 1}, 1, 0)
	key, err := c.Compress(img, codec.CompressOptions{})
	test.That(t, err, test.ShouldBeNil)
	delta, err := c.Compress(img, codec.CompressOptions{})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, seen, test.ShouldHaveLength, 2)
	test.That(t, seen[0].KeyFrameUpdated, test.ShouldBeTrue)
	test.That(t, seen[0].KeyFrame, test.ShouldResemble, key.Data)
	test.That(t, seen[1].KeyFrameUpdated, test.ShouldBeFalse)
	test.That(t, seen[1].Frame, test.ShouldResemble, delta.Data)
	test.That(t, seen[1].KeyFrame, test.ShouldResemble, key.Data)
	test.That(t, seen[1].Image, test.ShouldEqual, img)

	cancel()
	_, err = c.Compress(img, codec.CompressOptions{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, seen, test.ShouldHaveLength, 2)
}

func TestBaseIngest(t *testing.T) {
	c := codectest.New()
	c.SetDeviceName("scanner")

	notified := 0
	c.Subscribe(func(codec.Content) { notified++ })

	err := c.Ingest(codec.Frame{Data: []byte("garbage")})
	test.That(t, errors.Is(err, codec.ErrMalformedFrame), test.ShouldBeTrue)
	test.That(t, notified, test.ShouldEqual, 0)

	img := codectest.Gradient([3]int{2, 2, 2}, 1, 3)
	f := codec.HeaderFor(img, true, 0).Frame(img.Data)
	test.That(t, c.Ingest(f), test.ShouldBeNil)
	test.That(t, notified, test.ShouldEqual, 1)

	content := c.Content()
	test.That(t, content.HasFrames(), test.ShouldBeTrue)
	test.That(t, content.KeyFrame, test.ShouldResemble, f.Data)
	test.That(t, content.DeviceName, test.ShouldEqual, "scanner")
}

func TestRefCounting(t *testing.T) {
	c := codectest.New()
	ref := codec.Share(c)
	test.That(t, ref.Refs(), test.ShouldEqual, 1)

	test.That(t, ref.Acquire(), test.ShouldEqual, ref)
	test.That(t, ref.Refs(), test.ShouldEqual, 2)

	test.That(t, ref.Release(), test.ShouldBeNil)
	test.That(t, c.Closed, test.ShouldBeFalse)

	test.That(t, ref.Release(), test.ShouldBeNil)
	test.That(t, c.Closed, test.ShouldBeTrue)

	test.That(t, ref.Acquire(), test.ShouldBeNil)
	test.That(t, errors.Is(ref.Release(), codec.ErrReleased), test.ShouldBeTrue)
}
