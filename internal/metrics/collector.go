// Package metrics exports pipeline counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/ayusman/headtrack/internal/app"
	"github.com/ayusman/headtrack/internal/frame"
	"github.com/ayusman/headtrack/internal/lifecycle"
	"github.com/ayusman/headtrack/internal/pose"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "headtrack"

// Source provides the values read on every scrape.
type Source interface {
	State() lifecycle.State
	FrameStats() frame.Stats
	PollStats() app.PollStats
	Pose() pose.Sample
}

// Collector is a prometheus.Collector reading from a Source at scrape time.
type Collector struct {
	src Source

	frames  *prometheus.Desc
	polls   *prometheus.Desc
	angle   *prometheus.Desc
	resumed *prometheus.Desc
}

// NewCollector creates a Collector over src.
func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		frames: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "frames", "total"),
			"Frame dispatcher events by kind.",
			[]string{"event"}, nil,
		),
		polls: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "polls", "total"),
			"Poll loop cycles by outcome.",
			[]string{"outcome"}, nil,
		),
		angle: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pose", "degrees"),
			"Last published head pose angle.",
			[]string{"axis"}, nil,
		),
		resumed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "resumed"),
			"1 while the pipeline is resumed.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frames
	ch <- c.polls
	ch <- c.angle
	ch <- c.resumed
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	fs := c.src.FrameStats()
	counter := func(d *prometheus.Desc, v uint64, label string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), label)
	}
	counter(c.frames, fs.Notifications, "notified")
	counter(c.frames, fs.Delivered, "delivered")
	counter(c.frames, fs.Coalesced, "coalesced")
	counter(c.frames, fs.Refreshes, "refreshed")
	counter(c.frames, fs.Failed, "failed")

	ps := c.src.PollStats()
	counter(c.polls, ps.Firings, "fired")
	counter(c.polls, ps.Skipped, "skipped")
	counter(c.polls, ps.Published, "published")

	p := c.src.Pose()
	ch <- prometheus.MustNewConstMetric(c.angle, prometheus.GaugeValue, p.Turn, "turn")
	ch <- prometheus.MustNewConstMetric(c.angle, prometheus.GaugeValue, p.Tilt, "tilt")
	ch <- prometheus.MustNewConstMetric(c.angle, prometheus.GaugeValue, p.Nod, "nod")

	var resumed float64
	if c.src.State() == lifecycle.Resumed {
		resumed = 1
	}
	ch <- prometheus.MustNewConstMetric(c.resumed, prometheus.GaugeValue, resumed)
}

// Handler returns an HTTP handler serving src's metrics from a dedicated
// registry.
func Handler(src Source) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(src))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
