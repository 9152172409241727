// Package session builds the codecs and nodes described by a config and
// keeps them running: image sources feed producers, viewers decode whatever
// a shared codec buffers, and followers decode every frame of the node they
// follow.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/config"
	"github.com/fosdem/volstream/lib/log"
	"github.com/fosdem/volstream/lib/source/imgsource"
	"github.com/fosdem/volstream/lib/stream"
)

type Session struct {
	Registry *codec.Registry
	Codecs   map[string]*codec.Ref
	Nodes    map[string]*stream.Node
	NodeList []*stream.Node
	Sources  map[string]*imgsource.ImgSource

	// viewers decode content pushed by a shared codec they do not drive
	viewers map[string]chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once

	listenerMu sync.RWMutex
	listener   map[string][]EventListener
	cancel     []func()
	wg         sync.WaitGroup
	log        *slog.Logger
}

func New(cfg *config.Config, reg *codec.Registry) (s *Session, err error) {
	s = &Session{
		Registry: reg,
		Codecs:   make(map[string]*codec.Ref),
		Nodes:    make(map[string]*stream.Node),
		Sources:  make(map[string]*imgsource.ImgSource),
		viewers:  make(map[string]chan struct{}),
		shutdown: make(chan struct{}),
		listener: make(map[string][]EventListener),
		log:      log.Module("session"),
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, s.Close())
			s = nil
		}
	}()

	err = s.buildCodecs(cfg)
	if err != nil {
		return s, err
	}
	err = s.buildNodes(cfg)
	if err != nil {
		return s, err
	}
	s.buildFollowers(cfg)
	return s, nil
}

func (s *Session) buildCodecs(cfg *config.Config) error {
	for name, codecCfg := range cfg.Codecs {
		c, err := s.Registry.CreateByName(codecCfg.Device)
		if err != nil {
			return fmt.Errorf("codec %s: %w", name, err)
		}
		ref := codec.Share(c)
		s.Codecs[name] = ref
		err = configureCodec(c, codecCfg)
		if err != nil {
			return fmt.Errorf("codec %s: %w", name, err)
		}
	}
	return nil
}

// deviceNamer is implemented by backends embedding codec.Base.
type deviceNamer interface {
	SetDeviceName(name string)
}

func configureCodec(c codec.Codec, cfg *config.CodecCfg) error {
	if cfg.CodecType != "" {
		err := c.SetCodecType(cfg.CodecType)
		if err != nil {
			return err
		}
	}
	if cfg.KeyFrameInterval != nil {
		kf, ok := c.(codec.KeyFrameIntervaler)
		if !ok {
			return fmt.Errorf("%s codecs have no configurable key frame interval", c.DeviceType())
		}
		err := kf.SetKeyFrameInterval(*cfg.KeyFrameInterval)
		if err != nil {
			return err
		}
	}
	if cfg.DeviceName != "" {
		if dn, ok := c.(deviceNamer); ok {
			dn.SetDeviceName(cfg.DeviceName)
		}
	}
	return nil
}

func (s *Session) buildNodes(cfg *config.Config) error {
	for _, name := range cfg.NodeNames() {
		nodeCfg := cfg.Nodes[name]
		n := stream.NewNode(name)
		s.Nodes[name] = n
		s.NodeList = append(s.NodeList, n)

		if nodeCfg.Geometry != nil {
			n.SetIJKToRAS(nodeCfg.Geometry.IJKToRAS())
		}

		if nodeCfg.Codec != "" {
			err := n.AttachCodec(s.Codecs[nodeCfg.Codec])
			if err != nil {
				return fmt.Errorf("node %s: %w", name, err)
			}
		} else {
			err := n.CreateCodec(s.Registry, nodeCfg.CodecDevice)
			if err != nil {
				return fmt.Errorf("node %s: %w", name, err)
			}
			err = configureCodec(n.Codec(), nodeCfg.OwnCodec())
			if err != nil {
				return fmt.Errorf("node %s: %w", name, err)
			}
		}

		if nodeCfg.Source != nil {
			switch sc := nodeCfg.Source.Cfg.(type) {
			case *config.ImgSourceCfg:
				s.Sources[name] = imgsource.New(name, sc, n)
			default:
				return fmt.Errorf("node %s: unhandled source type %s", name, nodeCfg.Source.Type)
			}
		} else if nodeCfg.Codec != "" && nodeCfg.Follow == "" {
			s.viewers[name] = make(chan struct{}, 1)
		}

		s.cancel = append(s.cancel, n.Subscribe(s.onNodeEvent))
	}
	return nil
}

func (s *Session) buildFollowers(cfg *config.Config) {
	for _, name := range cfg.NodeNames() {
		target := cfg.Nodes[name].Follow
		if target == "" {
			continue
		}
		follower, producer := s.Nodes[name], s.Nodes[target]
		s.cancel = append(s.cancel, producer.Subscribe(func(e stream.Event) {
			if e.Kind != stream.EventFrameEncoded {
				return
			}
			err := follower.Decode(e.Frame.Data, e.Frame.IsKeyFrame)
			if errors.Is(err, stream.ErrNoKeyFrame) {
				s.log.Debug("follower needs a key frame", "node", name, "producer", target)
				producer.RequestKeyFrame()
			} else if err != nil {
				s.log.Error("follower could not decode frame", "node", name, "producer", target, "err", err)
			}
		}))
	}
}

func (s *Session) onNodeEvent(e stream.Event) {
	if pending, ok := s.viewers[e.Node.Name]; ok && e.Kind == stream.EventFramesBuffered {
		select {
		case pending <- struct{}{}:
		default:
			// a decode is already queued and will pick up the newest frame
		}
	}
	switch e.Kind {
	case stream.EventFrameEncoded, stream.EventImageUpdated, stream.EventCodecAttached, stream.EventCodecDetached:
		s.invoke(EventNodeUpdated, EventNodeData{Node: e.Node.Name, Kind: e.Kind.String()})
	}
}

// Start runs the viewers and loads all sources. Viewers stop when ctx is
// done.
func (s *Session) Start(ctx context.Context) error {
	for _, name := range slices.Sorted(maps.Keys(s.viewers)) {
		n, pending := s.Nodes[name], s.viewers[name]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runViewer(ctx, n, pending)
		}()
	}

	var err error
	for _, name := range slices.Sorted(maps.Keys(s.Sources)) {
		err = multierr.Append(err, s.Sources[name].Start(ctx))
	}
	return err
}

func (s *Session) runViewer(ctx context.Context, n *stream.Node, pending <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-pending:
			err := n.DecodePending()
			if err != nil {
				s.log.Warn("viewer could not decode", "node", n.Name, "err", err)
			}
		}
	}
}

// RequestShutdown asks whoever runs the session to stop it.
func (s *Session) RequestShutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Info("shutdown requested")
		close(s.shutdown)
	})
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (s *Session) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// Wait blocks until all viewers have stopped.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) Node(name string) (*stream.Node, bool) {
	n, ok := s.Nodes[name]
	return n, ok
}

func (s *Session) NodeNames() []string {
	names := make([]string, len(s.NodeList))
	for i, n := range s.NodeList {
		names[i] = n.Name
	}
	return names
}

func (s *Session) Stats() []stream.NodeStats {
	stats := make([]stream.NodeStats, len(s.NodeList))
	for i, n := range s.NodeList {
		stats[i] = n.Stats()
	}
	return stats
}

// Close detaches every node and drops the session's codec references.
func (s *Session) Close() error {
	for _, cancel := range s.cancel {
		cancel()
	}
	s.cancel = nil

	var err error
	for _, n := range s.NodeList {
		err = multierr.Append(err, n.Close())
	}
	for name, ref := range s.Codecs {
		err = multierr.Append(err, ref.Release())
		delete(s.Codecs, name)
	}
	return err
}
