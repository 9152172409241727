package stats

import (
	"time"

	"github.com/fosdem/volstream/lib/stream"
)

type Stats struct {
	Uptime        float64 `json:"uptime"`
	EncodeFPS     float64 `json:"encode_fps"`
	DecodeFPS     float64 `json:"decode_fps"`
	Nodes         int     `json:"nodes"`
	WsClients     int     `json:"ws_clients"`
	FramesEncoded uint64  `json:"frames_encoded"`
	FramesDecoded uint64  `json:"frames_decoded"`
	KeyFrames     uint64  `json:"key_frames"`
	FramesDropped uint64  `json:"frames_dropped"`
	Failures      uint64  `json:"failures"`

	lastEncoded uint64
	lastDecoded uint64
	rateTimer   time.Time
	start       time.Time
}

func New() *Stats {
	s := &Stats{}
	s.start = time.Now()
	s.rateTimer = s.start
	return s
}

// Update folds the per-node counters into the totals. The frame rates are
// refreshed at most once per second.
func (s *Stats) Update(nodes []stream.NodeStats) {
	s.update(nodes, time.Now())
}

func (s *Stats) update(nodes []stream.NodeStats, now time.Time) {
	var total stream.NodeStats
	for _, n := range nodes {
		total.FramesEncoded += n.FramesEncoded
		total.FramesDecoded += n.FramesDecoded
		total.KeyFrames += n.KeyFrames
		total.FramesDropped += n.FramesDropped
		total.Failures += n.Failures
	}
	s.Nodes = len(nodes)
	s.FramesEncoded = total.FramesEncoded
	s.FramesDecoded = total.FramesDecoded
	s.KeyFrames = total.KeyFrames
	s.FramesDropped = total.FramesDropped
	s.Failures = total.Failures

	if elapsed := now.Sub(s.rateTimer); elapsed >= time.Second {
		secs := elapsed.Seconds()
		s.EncodeFPS = float64(s.FramesEncoded-s.lastEncoded) / secs
		s.DecodeFPS = float64(s.FramesDecoded-s.lastDecoded) / secs
		s.lastEncoded = s.FramesEncoded
		s.lastDecoded = s.FramesDecoded
		s.rateTimer = now
	}

	s.Uptime = now.Sub(s.start).Seconds()
}
