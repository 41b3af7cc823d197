package monitor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dfmap/dfmap/internal/store"
)

// Collector mirrors sampled store counts into Prometheus gauges.
type Collector struct {
	gatherer prometheus.Gatherer

	Entities *prometheus.GaugeVec
	Samples  prometheus.Counter
}

// NewCollector registers the monitor metrics against reg, or the default
// registerer when reg is nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	entities := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dfmap_store_entities",
		Help: "Number of entities held by the store, by kind.",
	}, []string{"kind"})
	if err := reg.Register(entities); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("collector dfmap_store_entities already registered with incompatible type")
		}
		entities = existing
	}

	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dfmap_monitor_samples_total",
		Help: "Number of store samples taken by the monitor.",
	})
	if err := reg.Register(samples); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("collector dfmap_monitor_samples_total already registered with incompatible type")
		}
		samples = existing
	}

	return &Collector{gatherer: gatherer, Entities: entities, Samples: samples}, nil
}

// Observe records one sample.
func (c *Collector) Observe(counts store.Counts) {
	if c == nil {
		return
	}
	c.Entities.WithLabelValues("markers").Set(float64(counts.Markers))
	c.Entities.WithLabelValues("lines").Set(float64(counts.Lines))
	c.Entities.WithLabelValues("circles").Set(float64(counts.Circles))
	c.Entities.WithLabelValues("areas").Set(float64(counts.Areas))
	c.Entities.WithLabelValues("permanent").Set(float64(counts.Permanent))
	c.Entities.WithLabelValues("stations").Set(float64(counts.Stations))
	c.Samples.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
