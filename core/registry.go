package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNodeExists       = errors.New("node already exists")
	ErrNodeBadInput     = errors.New("invalid node")
	ErrSegmentExists    = errors.New("segment already exists")
	ErrSegmentBadInput  = errors.New("invalid segment")
	ErrEndpointExists   = errors.New("endpoint already exists")
	ErrEndpointBadInput = errors.New("invalid endpoint")
)

// Registry stores the nodes and network segments known to the mobility
// subsystem and resolves them by ID. It is concurrency-safe via an internal
// RWMutex as long as all access goes through these methods.
type Registry struct {
	mu sync.RWMutex

	nodes    map[int]*Node
	segments map[int]*Segment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes:    make(map[int]*Node),
		segments: make(map[int]*Segment),
	}
}

func (r *Registry) AddNode(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w", ErrNodeBadInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %d", ErrNodeExists, n.ID)
	}
	r.nodes[n.ID] = n
	return nil
}

// Node returns a node by ID, or nil if not found.
func (r *Registry) Node(id int) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[id]
}

// Nodes returns all known nodes ordered by ID.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) AddSegment(s *Segment) error {
	if s == nil {
		return fmt.Errorf("%w", ErrSegmentBadInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.segments[s.ID]; exists {
		return fmt.Errorf("%w: %d", ErrSegmentExists, s.ID)
	}
	r.segments[s.ID] = s
	return nil
}

// Segment returns a segment by ID, or nil if not found.
func (r *Registry) Segment(id int) *Segment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.segments[id]
}

// Segments returns all known segments ordered by ID.
func (r *Registry) Segments() []*Segment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Segment, 0, len(r.segments))
	for _, s := range r.segments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
