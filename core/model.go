package core

import (
	"github.com/haveagr8day/core/internal/logging"
	"github.com/haveagr8day/core/timectrl"
)

// Model is the behaviour common to every mobility model instance bound to a
// segment.
type Model interface {
	Name() string

	// UpdateConfig applies new configuration to a live instance. It
	// reports whether the update was absorbed in place; false means the
	// instance must be rebuilt from scratch.
	UpdateConfig(values Values) bool
}

// WirelessModel computes link state from endpoint positions.
type WirelessModel interface {
	Model

	SetPosition(ep *Endpoint)
	Update(moved []*Endpoint)
	AllLinkData() []LinkEvent
	SetLinkParams(values Values)
}

// MobilityModel repositions endpoints over time.
type MobilityModel interface {
	Model

	Startup()
	Start()
	Stop(moveInitial bool)
	Pause()
	State() ModelState
}

// SessionInfo carries the ambient session attributes models need: where the
// session lives on disk and who owns it. Master is false on slave servers in
// a distributed session, which suppresses physical-node tunnel setup.
type SessionInfo struct {
	FileName string
	User     string
	Dir      string
	Env      []string
	Master   bool
}

// ModelDeps bundles the collaborators handed to every model at construction.
// Zero-value fields are replaced with no-op implementations.
type ModelDeps struct {
	Queue       *timectrl.EventQueue
	Broadcaster Broadcaster
	Log         logging.Logger
	Metrics     Metrics
	Session     SessionInfo
}

func (d ModelDeps) normalized() ModelDeps {
	if d.Queue == nil {
		d.Queue = timectrl.NewEventQueue(nil)
	}
	if d.Broadcaster == nil {
		d.Broadcaster = NoopBroadcaster{}
	}
	if d.Log == nil {
		d.Log = logging.Noop()
	}
	if d.Metrics == nil {
		d.Metrics = NoopMetrics{}
	}
	return d
}

// ModelFactory builds a model instance for a segment from merged
// configuration values.
type ModelFactory func(seg *Segment, values Values, deps ModelDeps) (Model, error)

// DefaultFactories returns the built-in model table keyed by model name.
func DefaultFactories() map[string]ModelFactory {
	return map[string]ModelFactory{
		RangeModelName: func(seg *Segment, values Values, deps ModelDeps) (Model, error) {
			return NewRangeModel(seg, values, deps)
		},
		Ns2ModelName: func(seg *Segment, values Values, deps ModelDeps) (Model, error) {
			return NewNs2ScriptedModel(seg, values, deps)
		},
	}
}
