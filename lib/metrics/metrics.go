package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volstream_frames_encoded_total",
		Help: "Total number of frames compressed by a node",
	}, []string{"node"})
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volstream_frames_decoded_total",
		Help: "Total number of frames successfully decompressed by a node",
	}, []string{"node"})
	KeyFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volstream_key_frames_total",
		Help: "Total number of key frames received or produced by a node",
	}, []string{"node"})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volstream_frames_dropped_total",
		Help: "Total number of buffered frames overwritten before they were decoded",
	}, []string{"node"})
	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volstream_failures_total",
		Help: "Total number of failed encode or decode calls, by error class",
	}, []string{"node", "class"})
)

// Error classes used for the Failures counter
const (
	ClassConfiguration = "configuration"
	ClassSequence      = "sequence"
	ClassCodec         = "codec"
)

type NodeMetrics struct {
	FramesEncoded prometheus.Counter
	FramesDecoded prometheus.Counter
	KeyFrames     prometheus.Counter
	FramesDropped prometheus.Counter

	name string
}

func NewNodeMetrics(name string) NodeMetrics {
	m := NodeMetrics{
		FramesEncoded: FramesEncoded.WithLabelValues(name),
		FramesDecoded: FramesDecoded.WithLabelValues(name),
		KeyFrames:     KeyFrames.WithLabelValues(name),
		FramesDropped: FramesDropped.WithLabelValues(name),
		name:          name,
	}
	m.FramesEncoded.Add(0)
	m.FramesDecoded.Add(0)
	m.KeyFrames.Add(0)
	m.FramesDropped.Add(0)
	for _, class := range []string{ClassConfiguration, ClassSequence, ClassCodec} {
		Failures.WithLabelValues(name, class).Add(0)
	}
	return m
}

func (m NodeMetrics) Failure(class string) {
	Failures.WithLabelValues(m.name, class).Inc()
}

// Handler should usually be mounted at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
