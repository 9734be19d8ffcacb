package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MobilityCollector bundles Prometheus metrics for the mobility subsystem.
// It satisfies core.Metrics so the models can record observations without
// knowing about Prometheus.
type MobilityCollector struct {
	gatherer prometheus.Gatherer

	TickDurations    prometheus.Histogram
	LinkTransitions  *prometheus.CounterVec
	ModelsRunning    prometheus.Gauge
	PendingWaypoints *prometheus.GaugeVec
	ScriptDurations  *prometheus.HistogramVec
}

// NewMobilityCollector registers mobility Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewMobilityCollector(reg prometheus.Registerer) (*MobilityCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mobility_tick_duration_seconds",
		Help:    "Duration of one movement tick across a segment, in seconds.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
	ticks, err := registerHistogram(reg, ticks, "mobility_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_link_transitions_total",
		Help: "Total number of wireless link state changes, labeled by segment and operation.",
	}, []string{"segment", "op"})
	transitions, err = registerCounterVec(reg, transitions, "mobility_link_transitions_total")
	if err != nil {
		return nil, err
	}

	running, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mobility_models_running",
		Help: "Current number of mobility models in the running state.",
	}), "mobility_models_running")
	if err != nil {
		return nil, err
	}

	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mobility_pending_waypoints",
		Help: "Waypoints still queued for a segment's mobility script.",
	}, []string{"segment"})
	pending, err = registerGaugeVec(reg, pending, "mobility_pending_waypoints")
	if err != nil {
		return nil, err
	}

	scripts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mobility_script_duration_seconds",
		Help:    "Lifecycle script execution time in seconds, labeled by transition.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"transition"})
	scripts, err = registerHistogramVec(reg, scripts, "mobility_script_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &MobilityCollector{
		gatherer:         gatherer,
		TickDurations:    ticks,
		LinkTransitions:  transitions,
		ModelsRunning:    running,
		PendingWaypoints: pending,
		ScriptDurations:  scripts,
	}, nil
}

// ObserveTick records the duration of one movement tick.
func (c *MobilityCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDurations == nil {
		return
	}
	c.TickDurations.Observe(d.Seconds())
}

// LinkTransition counts one link add or delete on a segment.
func (c *MobilityCollector) LinkTransition(segment string, added bool) {
	if c == nil || c.LinkTransitions == nil {
		return
	}
	op := "delete"
	if added {
		op = "add"
	}
	c.LinkTransitions.WithLabelValues(segment, op).Inc()
}

// SetModelsRunning publishes the running-model count.
func (c *MobilityCollector) SetModelsRunning(n int) {
	if c == nil || c.ModelsRunning == nil {
		return
	}
	c.ModelsRunning.Set(float64(n))
}

// SetPendingWaypoints publishes a segment's queued-waypoint count.
func (c *MobilityCollector) SetPendingWaypoints(segment string, n int) {
	if c == nil || c.PendingWaypoints == nil {
		return
	}
	c.PendingWaypoints.WithLabelValues(segment).Set(float64(n))
}

// ObserveLifecycleScript records the runtime of one lifecycle script.
func (c *MobilityCollector) ObserveLifecycleScript(transition string, d time.Duration) {
	if c == nil || c.ScriptDurations == nil {
		return
	}
	c.ScriptDurations.WithLabelValues(transition).Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *MobilityCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
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

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
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

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
