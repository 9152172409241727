package imgsource

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/codectest"
	"github.com/fosdem/volstream/lib/config"
	"github.com/fosdem/volstream/lib/stream"
)

func testNode(t *testing.T) *stream.Node {
	t.Helper()
	reg := codec.NewRegistry()
	reg.Register(codectest.DeviceType, codectest.Factory)
	n := stream.NewNode("test")
	test.That(t, n.CreateCodec(reg, codectest.DeviceType), test.ShouldBeNil)
	t.Cleanup(func() { n.Close() })
	return n
}

func checker(w, h int, on color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, on)
			} else {
				img.SetNRGBA(x, y, color.NRGBA{A: 0xff})
			}
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, png.Encode(f, img), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

func TestToVolumeGray(t *testing.T) {
	img := image.NewGray(image.Rect(2, 3, 6, 5))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	vol := ToVolume(img)
	test.That(t, vol.Dims, test.ShouldResemble, [3]int{4, 2, 1})
	test.That(t, vol.Components, test.ShouldEqual, 1)
	test.That(t, vol.Data, test.ShouldResemble, img.Pix)

	back, err := Slice(vol, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.(*image.Gray).Pix, test.ShouldResemble, img.Pix)
}

func TestToVolumeColour(t *testing.T) {
	img := checker(5, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 0xff})
	vol := ToVolume(img)
	test.That(t, vol.Validate(), test.ShouldBeNil)
	test.That(t, vol.Components, test.ShouldEqual, 3)
	test.That(t, vol.Data[:6], test.ShouldResemble, []byte{10, 20, 30, 0, 0, 0})

	back, err := Slice(vol, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.(*image.NRGBA).Pix, test.ShouldResemble, img.Pix)
}

func TestSliceRejects(t *testing.T) {
	vol := codec.NewImage([3]int{2, 2, 2}, 1, codec.Uint16)
	_, err := Slice(vol, 0)
	test.That(t, errors.Is(err, codec.ErrUnsupportedImage), test.ShouldBeTrue)

	vol = codec.NewImage([3]int{2, 2, 2}, 2, codec.Uint8)
	_, err = Slice(vol, 1)
	test.That(t, errors.Is(err, codec.ErrUnsupportedImage), test.ShouldBeTrue)

	_, err = Slice(codectest.Gradient([3]int{2, 2, 2}, 1, 0), 2)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Slice(nil, 0)
	test.That(t, errors.Is(err, codec.ErrUnsupportedImage), test.ShouldBeTrue)
}

func TestSliceSelectsDepth(t *testing.T) {
	vol := codectest.Gradient([3]int{3, 2, 4}, 1, 0)
	img, err := Slice(vol, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.(*image.Gray).Pix, test.ShouldResemble, vol.Data[12:18])
}

func TestBlankSource(t *testing.T) {
	n := testNode(t)
	s := New("blank", &config.ImgSourceCfg{Width: 4, Height: 3, Depth: 2}, n)
	test.That(t, s.Start(context.Background()), test.ShouldBeNil)
	test.That(t, n.Image().Dims, test.ShouldResemble, [3]int{4, 3, 2})
	test.That(t, n.FrameBuffer().KeyFrameReceived(), test.ShouldBeTrue)

	test.That(t, s.SetImage(checker(2, 2, color.NRGBA{R: 1, A: 0xff})), test.ShouldBeNil)
	test.That(t, n.Image().Dims, test.ShouldResemble, [3]int{2, 2, 1})
	test.That(t, n.Stats().FramesEncoded, test.ShouldEqual, uint64(2))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	writePNG(t, path, checker(4, 4, color.NRGBA{R: 200, A: 0xff}))

	n := testNode(t)
	s := New("file", &config.ImgSourceCfg{Path: config.CfgPath(path)}, n)
	test.That(t, s.Start(context.Background()), test.ShouldBeNil)
	test.That(t, n.Image().Data[:3], test.ShouldResemble, []byte{200, 0, 0})

	writePNG(t, path, checker(4, 4, color.NRGBA{G: 100, A: 0xff}))
	test.That(t, s.Reload(), test.ShouldBeNil)
	test.That(t, n.Image().Data[:3], test.ShouldResemble, []byte{0, 100, 0})
}

func TestMissingFile(t *testing.T) {
	n := testNode(t)
	s := New("missing", &config.ImgSourceCfg{Path: "/nonexistent/scan.png"}, n)
	test.That(t, s.Start(context.Background()), test.ShouldNotBeNil)
	test.That(t, n.Image(), test.ShouldBeNil)
}

func TestInotifyReload(t *testing.T) {
	ReloadDelay = 0
	path := filepath.Join(t.TempDir(), "scan.png")
	writePNG(t, path, checker(4, 4, color.NRGBA{R: 200, A: 0xff}))

	n := testNode(t)
	encoded := make(chan struct{}, 10)
	n.Subscribe(func(e stream.Event) {
		if e.Kind == stream.EventFrameEncoded {
			encoded <- struct{}{}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New("watched", &config.ImgSourceCfg{Path: config.CfgPath(path), Inotify: true}, n)
	test.That(t, s.Start(ctx), test.ShouldBeNil)
	<-encoded

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writePNG(t, path, checker(4, 4, color.NRGBA{B: 50, A: 0xff}))
	select {
	case <-encoded:
	case <-time.After(5 * time.Second):
		t.Fatal("image was not reloaded")
	}
	test.That(t, n.Image().Data[:3], test.ShouldResemble, []byte{0, 0, 50})
}
