package codec_test

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/codectest"
)

func TestRegistryLifecycle(t *testing.T) {
	r := codec.NewRegistry()

	test.That(t, r.Register("vp9", codectest.Factory), test.ShouldBeTrue)

	c, err := r.CreateByName("vp9")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldNotBeNil)

	other := func() (codec.Codec, error) { return nil, errors.New("should never be called") }
	test.That(t, r.Register("vp9", other), test.ShouldBeFalse)

	test.That(t, r.Unregister("vp9"), test.ShouldBeTrue)

	c, err = r.CreateByName("vp9")
	test.That(t, c, test.ShouldBeNil)
	test.That(t, errors.Is(err, codec.ErrUnknownCodec), test.ShouldBeTrue)
}

func TestRegistryKeepsFirstFactory(t *testing.T) {
	r := codec.NewRegistry()
	fCalls, gCalls := 0, 0
	f := func() (codec.Codec, error) { fCalls++; return codectest.New(), nil }
	g := func() (codec.Codec, error) { gCalls++; return codectest.New(), nil }

	test.That(t, r.Register("vp9", f), test.ShouldBeTrue)
	test.That(t, r.Register("vp9", g), test.ShouldBeFalse)

	_, err := r.CreateByName("vp9")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fCalls, test.ShouldEqual, 1)
	test.That(t, gCalls, test.ShouldEqual, 0)
}

func TestRegistryUnregisterUnknown(t *testing.T) {
	r := codec.NewRegistry()
	test.That(t, r.Register("a", codectest.Factory), test.ShouldBeTrue)

	test.That(t, r.Unregister("doesnotexist"), test.ShouldBeFalse)
	test.That(t, r.List(), test.ShouldResemble, []string{"a"})
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := codec.NewRegistry()
	test.That(t, r.Register("", codectest.Factory), test.ShouldBeFalse)
	test.That(t, r.Register("nil", nil), test.ShouldBeFalse)
	test.That(t, r.List(), test.ShouldBeEmpty)
}

func TestRegistryList(t *testing.T) {
	r := codec.NewRegistry()
	for _, name := range []string{"zstd", "jpeg", "lossless"} {
		test.That(t, r.Register(name, codectest.Factory), test.ShouldBeTrue)
	}
	test.That(t, r.List(), test.ShouldResemble, []string{"jpeg", "lossless", "zstd"})

	d, ok := r.Lookup("jpeg")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Name, test.ShouldEqual, "jpeg")
}

func TestRegistryFactoryError(t *testing.T) {
	r := codec.NewRegistry()
	boom := errors.New("no device")
	r.Register("broken", func() (codec.Codec, error) { return nil, boom })

	_, err := r.CreateByName("broken")
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "broken")
}

func TestUnregisterKeepsInstances(t *testing.T) {
	r := codec.NewRegistry()
	r.Register("fake", codectest.Factory)
	c, err := r.CreateByName("fake")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Unregister("fake"), test.ShouldBeTrue)

	_, err = c.Compress(codectest.Gradient([3]int{4, 4, 1}, 1, 0), codec.CompressOptions{})
	test.That(t, err, test.ShouldBeNil)
}

func TestDefaultRegistryLifecycle(t *testing.T) {
	test.That(t, codec.Default(), test.ShouldBeNil)
	test.That(t, errors.Is(codec.Shutdown(), codec.ErrNotInitialized), test.ShouldBeTrue)

	setupErr := errors.New("backend failed")
	_, err := codec.Init(func(r *codec.Registry) error { return setupErr })
	test.That(t, errors.Is(err, setupErr), test.ShouldBeTrue)
	test.That(t, codec.Default(), test.ShouldBeNil)

	r, err := codec.Init(func(r *codec.Registry) error {
		r.Register("fake", codectest.Factory)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, codec.Default(), test.ShouldEqual, r)
	test.That(t, r.List(), test.ShouldResemble, []string{"fake"})

	_, err = codec.Init(nil)
	test.That(t, errors.Is(err, codec.ErrAlreadyInitialized), test.ShouldBeTrue)

	test.That(t, codec.Shutdown(), test.ShouldBeNil)
	test.That(t, codec.Default(), test.ShouldBeNil)
	test.That(t, r.List(), test.ShouldBeEmpty)
}
