// Package metrics exposes Prometheus metrics for the rail network.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nyiyui.ca/hato/railnet/tal/layout"
)

// Collector bundles the metrics of one guide. A nil *Collector records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Rebuilds        *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	Pathfinds       *prometheus.CounterVec
	PathfindLatency prometheus.Histogram
	ClaimConflicts  prometheus.Counter
	Trains          prometheus.Gauge
	Objects         prometheus.Gauge
	Sections        prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rebuilds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "railnet_rebuild_objects_total",
		Help: "Objects touched by network rebuilds, labeled by change (changed, removed).",
	}, []string{"change"}), "railnet_rebuild_objects_total")
	if err != nil {
		return nil, err
	}
	rebuildDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "railnet_rebuild_duration_seconds",
		Help:    "Time spent deriving a new network snapshot.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "railnet_rebuild_duration_seconds")
	if err != nil {
		return nil, err
	}
	pathfinds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "railnet_pathfinds_total",
		Help: "Route searches, labeled by result (ok, no_route).",
	}, []string{"result"}), "railnet_pathfinds_total")
	if err != nil {
		return nil, err
	}
	pathfindLatency, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "railnet_pathfind_duration_seconds",
		Help:    "Route search latency.",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}), "railnet_pathfind_duration_seconds")
	if err != nil {
		return nil, err
	}
	conflicts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railnet_claim_conflicts_total",
		Help: "Section claims refused because another train holds the section.",
	}), "railnet_claim_conflicts_total")
	if err != nil {
		return nil, err
	}
	trains, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "railnet_trains",
		Help: "Trains currently tracked.",
	}), "railnet_trains")
	if err != nil {
		return nil, err
	}
	objects, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "railnet_objects",
		Help: "Objects in the published network snapshot.",
	}), "railnet_objects")
	if err != nil {
		return nil, err
	}
	sections, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "railnet_sections",
		Help: "Sections in the published network snapshot.",
	}), "railnet_sections")
	if err != nil {
		return nil, err
	}
	stale := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "railnet_stale_neighbor_lookups_total",
		Help: "Neighbour lookups that fell back to every neighbour.",
	}, func() float64 { return float64(layout.StaleLookups()) })
	if err := reg.Register(stale); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
	}

	return &Collector{
		gatherer:        gatherer,
		Rebuilds:        rebuilds,
		RebuildDuration: rebuildDuration,
		Pathfinds:       pathfinds,
		PathfindLatency: pathfindLatency,
		ClaimConflicts:  conflicts,
		Trains:          trains,
		Objects:         objects,
		Sections:        sections,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveRebuild(d time.Duration, changed, removed int) {
	if c == nil {
		return
	}
	c.RebuildDuration.Observe(d.Seconds())
	c.Rebuilds.WithLabelValues("changed").Add(float64(changed))
	c.Rebuilds.WithLabelValues("removed").Add(float64(removed))
}

func (c *Collector) ObservePathfind(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.PathfindLatency.Observe(d.Seconds())
	if errors.Is(err, layout.ErrNoRouteFound) {
		c.Pathfinds.WithLabelValues("no_route").Inc()
	} else if err == nil {
		c.Pathfinds.WithLabelValues("ok").Inc()
	}
}

func (c *Collector) ClaimConflict() {
	if c == nil {
		return
	}
	c.ClaimConflicts.Inc()
}

func (c *Collector) SetNetwork(objects, sections int) {
	if c == nil {
		return
	}
	c.Objects.Set(float64(objects))
	c.Sections.Set(float64(sections))
}

func (c *Collector) SetTrains(n int) {
	if c == nil {
		return
	}
	c.Trains.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
