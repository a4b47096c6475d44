package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports Prometheus instrumentation for a bridge's pipelines,
// grounded on the teacher's pkg/dialog/metrics.go MetricsCollector
// pattern. A MediaBridge constructed without metrics leaves this nil;
// every call site nil-checks before recording.
type Metrics struct {
	downlinkPacketsQueued prometheus.Counter
	downlinkQueueDepth    prometheus.Gauge
	downlinkPauses        prometheus.Counter
	uplinkChunksSent      prometheus.Counter
	uplinkSendErrors      prometheus.Counter
}

// NewMetrics registers a fresh set of bridge metrics on reg. Pass a
// dedicated *prometheus.Registry per call if many bridges coexist in one
// process, or prometheus.DefaultRegisterer for a single-process gateway.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		downlinkPacketsQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "voicegateway",
			Subsystem: "downlink",
			Name:      "packets_queued_total",
			Help:      "RTP payload packets enqueued onto the downlink queue.",
		}),
		downlinkQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicegateway",
			Subsystem: "downlink",
			Name:      "queue_depth_packets",
			Help:      "Current downlink queue depth in packets.",
		}),
		downlinkPauses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "voicegateway",
			Subsystem: "downlink",
			Name:      "pauses_total",
			Help:      "Times the downlink reader entered the Paused state.",
		}),
		uplinkChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "voicegateway",
			Subsystem: "uplink",
			Name:      "chunks_sent_total",
			Help:      "Uplink audio chunks dispatched to the session sink.",
		}),
		uplinkSendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "voicegateway",
			Subsystem: "uplink",
			Name:      "send_errors_total",
			Help:      "Non-transient uplink send failures.",
		}),
	}
}
