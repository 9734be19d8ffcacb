package core

import "time"

// Metrics receives instrumentation callbacks from the mobility models. The
// concrete Prometheus implementation lives in internal/observability; models
// depend only on this interface so they stay testable without a registry.
type Metrics interface {
	ObserveTick(d time.Duration)
	LinkTransition(segment string, added bool)
	SetModelsRunning(n int)
	SetPendingWaypoints(segment string, n int)
	ObserveLifecycleScript(transition string, d time.Duration)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveTick(time.Duration)                    {}
func (NoopMetrics) LinkTransition(string, bool)                  {}
func (NoopMetrics) SetModelsRunning(int)                         {}
func (NoopMetrics) SetPendingWaypoints(string, int)              {}
func (NoopMetrics) ObserveLifecycleScript(string, time.Duration) {}
