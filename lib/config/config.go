package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	yaml "github.com/goccy/go-yaml"

	"github.com/fosdem/volstream/lib/log"
)

type Config struct {
	LogLevel string `yaml:"log_level"`
	Codecs   map[string]*CodecCfg
	Nodes    map[string]*NodeCfg
	Api      *ApiCfg
}

func Parse(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", filename, err)
	}

	absFilename, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("somehow, %s is malformed: %w", filename, err)
	}
	return ParseBytes(data, filepath.Dir(absFilename))
}

// ParseBytes decodes and validates a config. Relative paths inside it are
// resolved against base.
func ParseBytes(data []byte, base string) (*Config, error) {
	UnmarshalBase = base

	cfg := &Config{}
	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var err error
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err = log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if len(c.Nodes) < 1 {
		return fmt.Errorf("at least one node should be defined")
	}
	for k, v := range c.Codecs {
		if v == nil {
			return fmt.Errorf("codec %s is empty", k)
		}
		err = v.Validate()
		if err != nil {
			return fmt.Errorf("codec %s is invalid: %w", k, err)
		}
	}
	for k, v := range c.Nodes {
		if v == nil {
			return fmt.Errorf("node %s is empty", k)
		}
		err = v.Validate()
		if err != nil {
			return fmt.Errorf("node %s is invalid: %w", k, err)
		}
		if v.Codec != "" {
			if _, ok := c.Codecs[v.Codec]; !ok {
				return fmt.Errorf("node %s refers to non-existent codec %s", k, v.Codec)
			}
		}
		if v.Follow != "" {
			if v.Follow == k {
				return fmt.Errorf("node %s cannot follow itself", k)
			}
			if _, ok := c.Nodes[v.Follow]; !ok {
				return fmt.Errorf("node %s follows non-existent node %s", k, v.Follow)
			}
		}
	}
	if c.Api != nil && c.Api.Bind == "" {
		return fmt.Errorf("api bind address must be specified")
	}
	return nil
}

// NodeNames lists the nodes in a stable order.
func (c *Config) NodeNames() []string {
	names := make([]string, 0, len(c.Nodes))
	for k := range c.Nodes {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Devices lists every codec device the config refers to, sorted and without
// duplicates.
func (c *Config) Devices() []string {
	var devs []string
	for _, v := range c.Codecs {
		devs = append(devs, v.Device)
	}
	for _, v := range c.Nodes {
		if v.CodecDevice != "" {
			devs = append(devs, v.CodecDevice)
		}
	}
	slices.Sort(devs)
	return slices.Compact(devs)
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Codecs:\n")
	for k, v := range c.Codecs {
		b.WriteString(fmt.Sprintf("  %s (%s)\n", k, v.Device))
	}

	b.WriteString("\nNodes:\n")
	for _, k := range c.NodeNames() {
		v := c.Nodes[k]
		b.WriteString(fmt.Sprintf("  %s", k))
		switch {
		case v.Codec != "":
			b.WriteString(fmt.Sprintf(" (codec %s)", v.Codec))
		case v.CodecDevice != "":
			b.WriteString(fmt.Sprintf(" (%s)", v.CodecDevice))
		}
		if v.Follow != "" {
			b.WriteString(fmt.Sprintf(" <- %s", v.Follow))
		}
		if v.Source != nil {
			b.WriteString(fmt.Sprintf(" [%s source]", v.Source.Type))
		}
		b.WriteString("\n")
	}
	return b.String()
}

type Valid interface {
	Validate() error
}

type CodecCfg struct {
	Device           string
	CodecType        string `yaml:"codec_type"`
	DeviceName       string `yaml:"device_name"`
	KeyFrameInterval *int   `yaml:"key_frame_interval"`
}

func (c *CodecCfg) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("codec device must be specified")
	}
	if c.KeyFrameInterval != nil && *c.KeyFrameInterval < 0 {
		return fmt.Errorf("key_frame_interval must be nonnegative")
	}
	return nil
}

type NodeCfg struct {
	// Codec names a shared codec from the codecs section
	Codec string
	// CodecDevice creates a codec owned by this node alone
	CodecDevice      string `yaml:"codec_device"`
	CodecType        string `yaml:"codec_type"`
	KeyFrameInterval *int   `yaml:"key_frame_interval"`

	Follow   string
	Source   *SourceCfg
	Geometry *GeometryCfg
}

// OwnCodec describes the exclusive codec of a node using codec_device.
func (n *NodeCfg) OwnCodec() *CodecCfg {
	return &CodecCfg{
		Device:           n.CodecDevice,
		CodecType:        n.CodecType,
		KeyFrameInterval: n.KeyFrameInterval,
	}
}

func (n *NodeCfg) Validate() error {
	if n.Codec != "" && n.CodecDevice != "" {
		return fmt.Errorf("codec and codec_device can't both be specified")
	}
	if n.Codec == "" && n.CodecDevice == "" {
		return fmt.Errorf("either codec or codec_device must be specified")
	}
	if n.Codec != "" && (n.CodecType != "" || n.KeyFrameInterval != nil) {
		return fmt.Errorf("codec_type and key_frame_interval belong to the shared codec %s", n.Codec)
	}
	if n.CodecDevice != "" {
		if err := n.OwnCodec().Validate(); err != nil {
			return err
		}
	}
	if n.Follow != "" && n.Source != nil {
		return fmt.Errorf("a node cannot both follow another node and have a source")
	}
	if n.Source != nil {
		if err := n.Source.Validate(); err != nil {
			return fmt.Errorf("source is invalid: %w", err)
		}
	}
	if n.Geometry != nil {
		return n.Geometry.Validate()
	}
	return nil
}

// GeometryCfg places the voxel grid in patient space.
type GeometryCfg struct {
	Spacing *[3]float64
	Origin  [3]float64
}

func (g *GeometryCfg) Validate() error {
	if g.Spacing != nil {
		for _, s := range g.Spacing {
			if s <= 0 {
				return fmt.Errorf("voxel spacing must be positive")
			}
		}
	}
	return nil
}

// IJKToRAS maps voxel indices to RAS coordinates.
func (g *GeometryCfg) IJKToRAS() mgl64.Mat4 {
	spacing := [3]float64{1, 1, 1}
	if g.Spacing != nil {
		spacing = *g.Spacing
	}
	return mgl64.Translate3D(g.Origin[0], g.Origin[1], g.Origin[2]).
		Mul4(mgl64.Scale3D(spacing[0], spacing[1], spacing[2]))
}

type SourceCfgStub struct {
	Type string
}

type SourceCfg struct {
	SourceCfgStub
	Cfg Valid
}

type ImgSourceCfg struct {
	Path    CfgPath
	Width   int
	Height  int
	Depth   int
	Inotify bool
}

func (s *SourceCfg) UnmarshalYAML(b []byte) error {
	err := yaml.Unmarshal(b, &s.SourceCfgStub)
	if err != nil {
		return err
	}

	switch s.Type {
	case "image":
		cfg := ImgSourceCfg{}
		s.Cfg = &cfg
		return yaml.Unmarshal(b, &cfg)
	default:
		return fmt.Errorf("unknown source type: %s", s.Type)
	}
}

func (s *SourceCfg) Validate() error {
	return s.Cfg.Validate()
}

func (s *ImgSourceCfg) Validate() error {
	if s.Path == "" {
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("image path or size must be specified")
		}
		if s.Depth < 0 {
			return fmt.Errorf("depth must be nonnegative")
		}
		if s.Inotify {
			return fmt.Errorf("cannot enable inotify for an image source without path")
		}
	} else {
		if s.Width != 0 || s.Height != 0 || s.Depth != 0 {
			return fmt.Errorf("image path or size can't both be specified")
		}
	}
	return nil
}

type ApiCfg struct {
	Bind           string
	EnableProfiler bool `yaml:"enable_profiler"`
}
