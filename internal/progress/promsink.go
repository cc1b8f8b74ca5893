package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromSink publishes transfer progress as Prometheus gauges, for the
// supplemented long-running/daemon use case where an operator scrapes
// fastcp instead of watching a terminal.
type PromSink struct {
	transferred  prometheus.Gauge
	total        prometheus.Gauge
	speed        prometheus.Gauge
	etaSeconds   prometheus.Gauge
	activeChunks prometheus.Gauge
}

// NewPromSink registers its gauges with reg, labeled by taskID, and returns
// a Sink that updates them. reg is typically a dedicated
// prometheus.NewRegistry() per transfer so repeated transfers in the same
// process don't collide on metric registration.
func NewPromSink(reg prometheus.Registerer, taskID string) *PromSink {
	labels := prometheus.Labels{"task_id": taskID}
	f := promauto.With(reg)

	return &PromSink{
		transferred: f.NewGauge(prometheus.GaugeOpts{
			Name: "fastcp_bytes_transferred", Help: "Bytes transferred so far.", ConstLabels: labels,
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Name: "fastcp_bytes_total", Help: "Total bytes to transfer.", ConstLabels: labels,
		}),
		speed: f.NewGauge(prometheus.GaugeOpts{
			Name: "fastcp_speed_bytes_per_second", Help: "Current transfer speed.", ConstLabels: labels,
		}),
		etaSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "fastcp_eta_seconds", Help: "Estimated seconds remaining.", ConstLabels: labels,
		}),
		activeChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "fastcp_active_chunks", Help: "Chunks currently in flight.", ConstLabels: labels,
		}),
	}
}

func (p *PromSink) Update(s Snapshot) {
	p.transferred.Set(float64(s.Transferred))
	p.total.Set(float64(s.TotalSize))
	p.speed.Set(s.SpeedBps)
	p.etaSeconds.Set(s.ETA.Seconds())
	p.activeChunks.Set(float64(s.ActiveChunks))
}

func (p *PromSink) Finish(s Snapshot) {
	p.Update(s)
}
