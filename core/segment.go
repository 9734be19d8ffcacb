package core

import (
	"fmt"
	"sync"
)

// pairKey canonically orders an unordered endpoint pair so A-B and B-A share
// a single link-state entry regardless of call order.
type pairKey struct {
	a, b string
}

func makePairKey(x, y string) pairKey {
	if x < y {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

// LinkParams carries opaque link-quality parameters pushed to a segment when
// a model's configuration changes. A nil field means unset (no effect);
// zero-valued configuration inputs are normalized to nil before reaching
// here.
type LinkParams struct {
	BandwidthBps *int64
	DelayUsec    *float64
	LossPct      *float64
	JitterUsec   *float64
}

// LinkConfigurer applies link-quality parameters to one endpoint of the
// owning segment. Provided by the session layer (e.g. to program tc qdiscs).
type LinkConfigurer func(ep *Endpoint, params LinkParams)

// Segment is a broadcast network segment (a WLAN in the emulation) owning
// the link-state table for the endpoints attached to it. LinkState entries
// are created on first evaluation of a pair and mutated thereafter, never
// deleted.
type Segment struct {
	ID   int
	Name string

	mu         sync.Mutex
	endpoints  []*Endpoint
	byID       map[string]*Endpoint
	linked     map[pairKey]bool
	configurer LinkConfigurer
}

// NewSegment constructs an empty segment.
func NewSegment(id int, name string) *Segment {
	return &Segment{
		ID:     id,
		Name:   name,
		byID:   make(map[string]*Endpoint),
		linked: make(map[pairKey]bool),
	}
}

// Attach adds an endpoint to the segment.
func (s *Segment) Attach(ep *Endpoint) error {
	if ep == nil || ep.ID == "" {
		return fmt.Errorf("%w", ErrEndpointBadInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[ep.ID]; exists {
		return fmt.Errorf("%w: %q", ErrEndpointExists, ep.ID)
	}
	s.byID[ep.ID] = ep
	s.endpoints = append(s.endpoints, ep)
	return nil
}

// Endpoints returns the attached endpoints in attachment order.
func (s *Segment) Endpoints() []*Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}

// Endpoint returns an attached endpoint by ID, or nil.
func (s *Segment) Endpoint(id string) *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// SetLinkConfigurer installs the callback that receives link-quality
// parameter updates.
func (s *Segment) SetLinkConfigurer(fn LinkConfigurer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configurer = fn
}

// ConfigureLink forwards link parameters for one endpoint to the installed
// configurer, if any.
func (s *Segment) ConfigureLink(ep *Endpoint, params LinkParams) {
	s.mu.Lock()
	fn := s.configurer
	s.mu.Unlock()
	if fn != nil {
		fn(ep, params)
	}
}

// Linked reports whether the pair is currently linked.
func (s *Segment) Linked(a, b *Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linked[makePairKey(a.ID, b.ID)]
}

// SetLinked records the link state for the pair.
func (s *Segment) SetLinked(a, b *Endpoint, linked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked[makePairKey(a.ID, b.ID)] = linked
}

// LinkedPairs returns a snapshot of currently linked pairs in canonical
// order. Pairs referencing detached endpoints are skipped.
func (s *Segment) LinkedPairs() [][2]*Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][2]*Endpoint, 0, len(s.linked))
	for key, linked := range s.linked {
		if !linked {
			continue
		}
		a := s.byID[key.a]
		b := s.byID[key.b]
		if a == nil || b == nil {
			continue
		}
		out = append(out, [2]*Endpoint{a, b})
	}
	return out
}
