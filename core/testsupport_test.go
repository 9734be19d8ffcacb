package core

import (
	"fmt"
	"sync"
	"time"
)

// fakeClock drives the timer queue deterministically in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder captures broadcast events for assertions.
type recorder struct {
	mu     sync.Mutex
	links  []LinkEvent
	nodes  []NodeEvent
	models []ModelEvent
}

func (r *recorder) BroadcastLink(ev LinkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, ev)
}

func (r *recorder) BroadcastNode(ev NodeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, ev)
}

func (r *recorder) BroadcastModel(ev ModelEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, ev)
}

func (r *recorder) linkEvents() []LinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LinkEvent(nil), r.links...)
}

func (r *recorder) modelEvents() []ModelEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ModelEvent(nil), r.models...)
}

// newTestSegment builds a segment with one node and endpoint per given ID.
func newTestSegment(segID int, nodeIDs ...int) (*Segment, map[int]*Endpoint) {
	seg := NewSegment(segID, "wlan-test")
	eps := make(map[int]*Endpoint, len(nodeIDs))
	for _, id := range nodeIDs {
		node := NewNode(id, fmt.Sprintf("n%d", id))
		ep := &Endpoint{ID: node.Name + "-eth0", Node: node}
		if err := seg.Attach(ep); err != nil {
			panic(err)
		}
		eps[id] = ep
	}
	return seg, eps
}
