// Package metrics exposes collector and container gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lockfree/infra/memory"
)

const namespace = "lockfree"

// Lener is anything with an advisory length.
type Lener interface {
	Len() int
}

// RegisterCollector exports the reclamation counters of c.
func RegisterCollector(reg prometheus.Registerer, c *memory.Collector) error {
	gauge := func(name, help string, f func(memory.Stats) uint64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, func() float64 { return float64(f(c.Stats())) })
	}
	counter := func(name, help string, f func(memory.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, func() float64 { return float64(f(c.Stats())) })
	}

	for _, col := range []prometheus.Collector{
		gauge("epoch", "Current global reclamation epoch.",
			func(s memory.Stats) uint64 { return s.Epoch }),
		gauge("participants", "Registered pin participants.",
			func(s memory.Stats) uint64 { return s.Participants }),
		gauge("pending", "Retired objects awaiting reclamation.",
			memory.Stats.Pending),
		counter("retired_total", "Objects retired under a guard.",
			func(s memory.Stats) uint64 { return s.Retired }),
		counter("reclaimed_total", "Retired objects handed back to their pool.",
			func(s memory.Stats) uint64 { return s.Reclaimed }),
		counter("spilled_total", "Retirements that overflowed a participant ring.",
			func(s memory.Stats) uint64 { return s.Spilled }),
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// RegisterContainer exports the advisory length of a named container.
func RegisterContainer(reg prometheus.Registerer, name string, c Lener) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "container_len",
		Help:        "Advisory element count of a container.",
		ConstLabels: prometheus.Labels{"container": name},
	}, func() float64 { return float64(c.Len()) }))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
