package core

import (
	"sync"

	"github.com/google/uuid"
)

// ModelState is the lifecycle state of a waypoint-driven mobility model.
type ModelState int

const (
	StateStopped ModelState = iota
	StateRunning
	StatePaused
)

func (s ModelState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// LinkMessageType distinguishes link-add from link-delete records.
type LinkMessageType int

const (
	LinkAdd LinkMessageType = iota
	LinkDelete
)

func (t LinkMessageType) String() string {
	if t == LinkDelete {
		return "delete"
	}
	return "add"
}

// LinkTypeWireless marks links toggled by a range model.
const LinkTypeWireless = "wireless"

// LinkEvent is a wireless link/unlink record broadcast to session observers.
type LinkEvent struct {
	ID        string
	Type      LinkMessageType
	Node1ID   int
	Node2ID   int
	NetworkID int
	LinkType  string
}

// NodeEvent records a programmatic node move.
type NodeEvent struct {
	ID       string
	NodeID   int
	Name     string
	Position Position
}

// ModelEvent is a mobility model status record carrying elapsed and end time
// in script seconds.
type ModelEvent struct {
	ID        string
	NetworkID int
	Model     string
	State     ModelState
	Start     float64
	End       float64
}

// Broadcaster delivers mobility events to session-wide observers (GUIs,
// remote sessions). Implementations must not call back into the mobility
// models synchronously.
type Broadcaster interface {
	BroadcastLink(ev LinkEvent)
	BroadcastNode(ev NodeEvent)
	BroadcastModel(ev ModelEvent)
}

func newEventID() string { return uuid.NewString() }

// Fanout is a Broadcaster that relays every event to registered handlers.
type Fanout struct {
	mu       sync.Mutex
	linkFns  []func(LinkEvent)
	nodeFns  []func(NodeEvent)
	modelFns []func(ModelEvent)
}

// NewFanout creates an empty fan-out broadcaster.
func NewFanout() *Fanout { return &Fanout{} }

// OnLink registers a handler for link events.
func (f *Fanout) OnLink(fn func(LinkEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkFns = append(f.linkFns, fn)
}

// OnNode registers a handler for node-position events.
func (f *Fanout) OnNode(fn func(NodeEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodeFns = append(f.nodeFns, fn)
}

// OnModel registers a handler for model status events.
func (f *Fanout) OnModel(fn func(ModelEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelFns = append(f.modelFns, fn)
}

func (f *Fanout) BroadcastLink(ev LinkEvent) {
	f.mu.Lock()
	fns := append(([]func(LinkEvent))(nil), f.linkFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *Fanout) BroadcastNode(ev NodeEvent) {
	f.mu.Lock()
	fns := append(([]func(NodeEvent))(nil), f.nodeFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *Fanout) BroadcastModel(ev ModelEvent) {
	f.mu.Lock()
	fns := append(([]func(ModelEvent))(nil), f.modelFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// NoopBroadcaster drops all events.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastLink(LinkEvent)   {}
func (NoopBroadcaster) BroadcastNode(NodeEvent)   {}
func (NoopBroadcaster) BroadcastModel(ModelEvent) {}
