package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for one capture pipeline. Pass it
// in Config to have the pump publish counter deltas as it runs.
type Metrics struct {
	Frames         prometheus.Counter
	DroppedFrames  prometheus.Counter
	DiscardedUnits prometheus.Counter
	ShortFrames    prometheus.Counter
	PayloadBytes   prometheus.Counter
	Completions    *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oveye",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Complete frames published to the ring buffer.",
		}),
		DroppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oveye",
			Subsystem: "stream",
			Name:      "dropped_frames_total",
			Help:      "Frames overwritten in the ring because the consumer fell behind.",
		}),
		DiscardedUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oveye",
			Subsystem: "stream",
			Name:      "discarded_units_total",
			Help:      "Protocol units rejected during frame reassembly.",
		}),
		ShortFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oveye",
			Subsystem: "stream",
			Name:      "short_frames_total",
			Help:      "Forced frame finalizations dropped as under-filled.",
		}),
		PayloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oveye",
			Subsystem: "stream",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes accepted into frames.",
		}),
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oveye",
			Subsystem: "stream",
			Name:      "transfer_completions_total",
			Help:      "Bulk transfer completions by status.",
		}, []string{"status"}),
	}
}
