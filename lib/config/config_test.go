package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.viam.com/test"
)

const example = `
log_level: debug
codecs:
  main:
    device: lossless
    codec_type: qoi
    key_frame_interval: 10
nodes:
  producer:
    codec: main
    source:
      type: image
      path: scan.png
      inotify: true
    geometry:
      spacing: [0.5, 0.5, 2]
      origin: [10, 20, 30]
  viewer:
    codec: main
  mirror:
    codec_device: jpeg
    codec_type: high
    follow: producer
api:
  bind: ":8000"
`

func TestParseExample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volstream.yaml")
	test.That(t, os.WriteFile(path, []byte(example), 0o644), test.ShouldBeNil)

	cfg, err := Parse(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.LogLevel, test.ShouldEqual, "debug")
	test.That(t, cfg.NodeNames(), test.ShouldResemble, []string{"mirror", "producer", "viewer"})

	main := cfg.Codecs["main"]
	test.That(t, main.Device, test.ShouldEqual, "lossless")
	test.That(t, main.CodecType, test.ShouldEqual, "qoi")
	test.That(t, *main.KeyFrameInterval, test.ShouldEqual, 10)

	producer := cfg.Nodes["producer"]
	test.That(t, producer.Codec, test.ShouldEqual, "main")
	src, ok := producer.Source.Cfg.(*ImgSourceCfg)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, string(src.Path), test.ShouldEqual, filepath.Join(dir, "scan.png"))
	test.That(t, src.Inotify, test.ShouldBeTrue)

	m := producer.Geometry.IJKToRAS()
	test.That(t, m.Mul4x1(mgl64.Vec4{2, 2, 1, 1}), test.ShouldResemble, mgl64.Vec4{11, 21, 32, 1})

	mirror := cfg.Nodes["mirror"]
	test.That(t, mirror.Follow, test.ShouldEqual, "producer")
	test.That(t, mirror.OwnCodec().Device, test.ShouldEqual, "jpeg")
	test.That(t, mirror.OwnCodec().CodecType, test.ShouldEqual, "high")

	test.That(t, cfg.Devices(), test.ShouldResemble, []string{"jpeg", "lossless"})
	test.That(t, cfg.Api.Bind, test.ShouldEqual, ":8000")
	test.That(t, cfg.String(), test.ShouldContainSubstring, "mirror (jpeg) <- producer")
}

func TestParseDefaults(t *testing.T) {
	cfg, err := ParseBytes([]byte("nodes:\n  a:\n    codec_device: lossless\n"), "/")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.LogLevel, test.ShouldEqual, "info")
	test.That(t, cfg.Api, test.ShouldBeNil)
	test.That(t, cfg.Nodes["a"].Geometry, test.ShouldBeNil)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateRejects(t *testing.T) {
	for name, tc := range map[string]struct {
		yaml string
		msg  string
	}{
		"no nodes": {
			yaml: "log_level: info\n",
			msg:  "at least one node",
		},
		"bad log level": {
			yaml: "log_level: loud\nnodes:\n  a: {codec_device: lossless}\n",
			msg:  "invalid log level",
		},
		"no codec": {
			yaml: "nodes:\n  a: {follow: b}\n  b: {codec_device: lossless}\n",
			msg:  "either codec or codec_device",
		},
		"both codecs": {
			yaml: "codecs:\n  c: {device: lossless}\nnodes:\n  a: {codec: c, codec_device: jpeg}\n",
			msg:  "can't both be specified",
		},
		"unknown shared codec": {
			yaml: "nodes:\n  a: {codec: c}\n",
			msg:  "non-existent codec c",
		},
		"codec type on shared codec": {
			yaml: "codecs:\n  c: {device: lossless}\nnodes:\n  a: {codec: c, codec_type: qoi}\n",
			msg:  "belong to the shared codec",
		},
		"codec without device": {
			yaml: "codecs:\n  c: {codec_type: qoi}\nnodes:\n  a: {codec: c}\n",
			msg:  "device must be specified",
		},
		"negative interval": {
			yaml: "nodes:\n  a: {codec_device: lossless, key_frame_interval: -1}\n",
			msg:  "nonnegative",
		},
		"follow self": {
			yaml: "nodes:\n  a: {codec_device: lossless, follow: a}\n",
			msg:  "cannot follow itself",
		},
		"follow unknown": {
			yaml: "nodes:\n  a: {codec_device: lossless, follow: b}\n",
			msg:  "non-existent node b",
		},
		"follow with source": {
			yaml: "nodes:\n  a: {codec_device: lossless}\n  b:\n    codec_device: lossless\n    follow: a\n    source: {type: image, width: 4, height: 4}\n",
			msg:  "cannot both follow",
		},
		"unknown source": {
			yaml: "nodes:\n  a:\n    codec_device: lossless\n    source: {type: dicom}\n",
			msg:  "unknown source type",
		},
		"image without path or size": {
			yaml: "nodes:\n  a:\n    codec_device: lossless\n    source: {type: image}\n",
			msg:  "path or size must be specified",
		},
		"inotify without path": {
			yaml: "nodes:\n  a:\n    codec_device: lossless\n    source: {type: image, width: 4, height: 4, inotify: true}\n",
			msg:  "inotify",
		},
		"bad spacing": {
			yaml: "nodes:\n  a:\n    codec_device: lossless\n    geometry: {spacing: [1, 0, 1]}\n",
			msg:  "spacing must be positive",
		},
		"api without bind": {
			yaml: "nodes:\n  a: {codec_device: lossless}\napi: {enable_profiler: true}\n",
			msg:  "bind address",
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tc.yaml), "/")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, strings.ToLower(err.Error()), test.ShouldContainSubstring, strings.ToLower(tc.msg))
		})
	}
}
