// Package imgsource feeds still images into a streaming node. A 2D image
// becomes a volume with a single slice.
package imgsource

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"time"

	"github.com/jhenstridge/go-inotify"
	_ "github.com/xfmoulet/qoi"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/config"
	"github.com/fosdem/volstream/lib/log"
	"github.com/fosdem/volstream/lib/stream"
)

// ReloadDelay gives writers a moment to settle before a changed file is read.
var ReloadDelay = 100 * time.Millisecond

type ImgSource struct {
	name    string
	path    string
	size    [3]int
	inotify bool

	node *stream.Node
	log  *slog.Logger
}

func New(name string, cfg *config.ImgSourceCfg, node *stream.Node) *ImgSource {
	s := &ImgSource{
		name:    name,
		path:    string(cfg.Path),
		inotify: cfg.Inotify,
		node:    node,
		log:     log.Module("imgsource").With(slog.String("source", name)),
	}
	if s.path == "" {
		s.size = [3]int{cfg.Width, cfg.Height, max(cfg.Depth, 1)}
	}
	return s
}

// Start encodes the initial image and, when enabled, keeps watching the file
// until ctx is done.
func (s *ImgSource) Start(ctx context.Context) error {
	err := s.Reload()
	if err != nil {
		return err
	}
	if s.inotify {
		go s.watch(ctx)
	}
	return nil
}

// Reload reads the source again and encodes it into the node.
func (s *ImgSource) Reload() error {
	vol, err := s.load()
	if err != nil {
		s.log.Error("loading image failed", "err", err)
		return err
	}
	s.log.Debug("encoding image", "dims", vol.Dims, "components", vol.Components)
	return s.node.Encode(vol)
}

// SetImage encodes img into the node in place of the configured source.
func (s *ImgSource) SetImage(img image.Image) error {
	return s.node.Encode(ToVolume(img))
}

func (s *ImgSource) load() (*codec.Image, error) {
	if s.path == "" {
		return codec.NewImage(s.size, 1, codec.Uint8), nil
	}
	return LoadFile(s.path)
}

func (s *ImgSource) watch(ctx context.Context) {
	watcher, err := inotify.NewWatcher()
	if err != nil {
		s.log.Error("could not create inotify watcher", "err", err)
		return
	}
	defer func(watcher *inotify.Watcher) {
		err := watcher.Close()
		if err != nil {
			s.log.Warn("closing inotify watcher failed", "err", err)
		}
	}(watcher)

	_, err = watcher.Watch(s.path)
	if err != nil {
		s.log.Error("could not start inotify watcher", "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Event:
			if !ok {
				return
			}
			if ev.Mask&inotify.IN_CLOSE_WRITE == 0 {
				continue
			}
			s.log.Debug("reloading image due to inotify event")
			time.Sleep(ReloadDelay)
			if err := s.Reload(); err != nil {
				s.log.Error("reloading image failed", "err", err)
			}
		}
	}
}

// LoadFile decodes a png, jpeg or qoi file into a single-slice volume.
func LoadFile(path string) (*codec.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", path, err)
	}
	return ToVolume(img), nil
}

// ToVolume converts img into a uint8 volume of depth one. Grayscale images
// keep a single component, everything else becomes RGB.
func ToVolume(img image.Image) *codec.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if gray, ok := img.(*image.Gray); ok {
		vol := codec.NewImage([3]int{w, h, 1}, 1, codec.Uint8)
		for y := range h {
			off := gray.PixOffset(b.Min.X, b.Min.Y+y)
			copy(vol.Data[y*w:(y+1)*w], gray.Pix[off:off+w])
		}
		return vol
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	vol := codec.NewImage([3]int{w, h, 1}, 3, codec.Uint8)
	for i := range w * h {
		copy(vol.Data[i*3:i*3+3], nrgba.Pix[i*4:i*4+3])
	}
	return vol
}

// Slice renders slice z of a uint8 volume with one, three or four
// components as a 2D image.
func Slice(vol *codec.Image, z int) (image.Image, error) {
	if vol == nil {
		return nil, fmt.Errorf("%w: no image", codec.ErrUnsupportedImage)
	}
	if z < 0 || z >= vol.Dims[2] {
		return nil, fmt.Errorf("slice %d out of range [0, %d)", z, vol.Dims[2])
	}
	if vol.Type != codec.Uint8 {
		return nil, fmt.Errorf("%w: cannot render %s voxels", codec.ErrUnsupportedImage, vol.Type)
	}

	w, h := vol.Dims[0], vol.Dims[1]
	n := w * h * vol.Components
	data := vol.Data[z*n : (z+1)*n]
	rect := image.Rect(0, 0, w, h)
	switch vol.Components {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, data)
		return img, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i := range w * h {
			img.Pix[i*4] = data[i*3]
			img.Pix[i*4+1] = data[i*3+1]
			img.Pix[i*4+2] = data[i*3+2]
			img.Pix[i*4+3] = 0xff
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, data)
		return img, nil
	default:
		return nil, fmt.Errorf("%w: cannot render %d components", codec.ErrUnsupportedImage, vol.Components)
	}
}
