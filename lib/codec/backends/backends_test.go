package backends

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/codectest"
)

func TestRegisterAll(t *testing.T) {
	r := codec.NewRegistry()
	test.That(t, RegisterAll(r), test.ShouldBeNil)
	test.That(t, r.List(), test.ShouldResemble, []string{"jpeg", "lossless"})

	test.That(t, RegisterAll(r), test.ShouldNotBeNil)
}

// A delta decode on a fresh codec fails for every bundled backend.
func TestDeltaBeforeKeyFails(t *testing.T) {
	r := codec.NewRegistry()
	test.That(t, RegisterAll(r), test.ShouldBeNil)

	img := codectest.Gradient([3]int{8, 8, 1}, 1, 0)
	for _, name := range r.List() {
		enc, err := r.CreateByName(name)
		test.That(t, err, test.ShouldBeNil)
		dec, err := r.CreateByName(name)
		test.That(t, err, test.ShouldBeNil)

		f, err := enc.Compress(img, codec.CompressOptions{})
		test.That(t, err, test.ShouldBeNil)

		err = dec.Decompress(f, false)
		test.That(t, errors.Is(err, codec.ErrNoKeyFrame), test.ShouldBeTrue)
	}
}
