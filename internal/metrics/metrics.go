// Package metrics exposes hub activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Hub is the part of the room registry the collector samples.
type Hub interface {
	Len() int
	Subscribers() int
}

// Collector implements rooms.Observer and serves the metrics endpoint.
type Collector struct {
	registry   *prometheus.Registry
	created    prometheus.Counter
	removed    prometheus.Counter
	dropped    prometheus.Counter
	operations *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "rooms_created_total",
			Help:      "Live rooms created.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "rooms_removed_total",
			Help:      "Live rooms discarded after their last participant left.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "fanout_dropped_total",
			Help:      "Updates discarded for lagging subscribers.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breakout",
			Name:      "room_operations_total",
			Help:      "Room operations applied, by operation.",
		}, []string{"op"}),
	}
	c.registry.MustRegister(
		c.created, c.removed, c.dropped, c.operations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe registers gauges sampled from the hub at scrape time.
func (c *Collector) Observe(hub Hub) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "breakout",
			Name:      "live_rooms",
			Help:      "Rooms currently held in memory.",
		}, func() float64 { return float64(hub.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "breakout",
			Name:      "subscribers",
			Help:      "Connections subscribed to a room.",
		}, func() float64 { return float64(hub.Subscribers()) }),
	)
}

func (c *Collector) RoomCreated()        { c.created.Inc() }
func (c *Collector) RoomRemoved()        { c.removed.Inc() }
func (c *Collector) MessageDropped()     { c.dropped.Inc() }
func (c *Collector) Operation(op string) { c.operations.WithLabelValues(op).Inc() }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
