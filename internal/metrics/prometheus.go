package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "sharerelay"

type promDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(s *Collector) float64
}

func counter(name, help string, fn func(s *Collector) float64) promDesc {
	return promDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind:  prometheus.CounterValue,
		value: fn,
	}
}

func gauge(name, help string, fn func(s *Collector) float64) promDesc {
	return promDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind:  prometheus.GaugeValue,
		value: fn,
	}
}

var promDescs = []promDesc{ //nolint:gochecknoglobals
	gauge("control_sessions_active", "Open control connections.",
		func(c *Collector) float64 { return float64(c.sessionsActive.Load()) }),
	counter("control_sessions_total", "Control connections accepted.",
		func(c *Collector) float64 { return float64(c.sessionsTotal.Load()) }),
	counter("control_commands_total", "Control commands handled.",
		func(c *Collector) float64 { return float64(c.commandsTotal.Load()) }),
	counter("control_commands_rejected_total", "Control commands answered with a failure.",
		func(c *Collector) float64 { return float64(c.rejectedTotal.Load()) }),
	counter("share_list_broadcasts_total", "Share-list broadcasts sent.",
		func(c *Collector) float64 { return float64(c.broadcasts.Load()) }),
	counter("stream_publishers_matched_total", "Stream connections bound as publishers.",
		func(c *Collector) float64 { return float64(c.publishersMatched.Load()) }),
	counter("stream_viewers_matched_total", "Stream connections bound as viewers.",
		func(c *Collector) float64 { return float64(c.viewersMatched.Load()) }),
	counter("stream_unmatched_total", "Stream connections closed without a pending announcement.",
		func(c *Collector) float64 { return float64(c.unmatched.Load()) }),
	gauge("stream_links_active", "Publishers currently forwarding.",
		func(c *Collector) float64 { return float64(c.linksActive.Load()) }),
	counter("stream_viewer_drops_total", "Viewers removed after a failed write.",
		func(c *Collector) float64 { return float64(c.viewerDrops.Load()) }),
	counter("stream_bytes_in_total", "Bytes read from publishers.",
		func(c *Collector) float64 { return float64(c.bytesIn.Load()) }),
	counter("stream_bytes_out_total", "Bytes written to viewers.",
		func(c *Collector) float64 { return float64(c.bytesOut.Load()) }),
	counter("errors_total", "Errors recorded.",
		func(c *Collector) float64 { return float64(c.errorsTotal.Load()) }),
	gauge("uptime_seconds", "Seconds since the server started.",
		func(c *Collector) float64 { return c.Uptime().Seconds() }),
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range promDescs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.  Values are read from the
// same atomics that back Snapshot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	for _, d := range promDescs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(c))
	}
}

// Registry returns a fresh Prometheus registry with c and the Go
// runtime collectors registered.
func Registry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
