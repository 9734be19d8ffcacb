package core

import (
	"context"
	"sync"

	"github.com/haveagr8day/core/internal/logging"
)

// RangeModelName identifies the distance-threshold wireless model.
const RangeModelName = "basic_range"

// RangeModel links and unlinks endpoint pairs on a segment as they move in
// and out of a configurable radius. Link state itself lives on the segment;
// the model keeps only a position cache for the endpoints it has seen.
//
// Locking: the position mutex and the segment's link-state mutex are never
// held together. Evaluations snapshot positions first, release, and then
// toggle link state.
type RangeModel struct {
	segment *Segment
	bcast   Broadcaster
	log     logging.Logger
	metrics Metrics

	mu         sync.RWMutex
	positions  map[*Endpoint]Position
	rangeLimit float64

	params LinkParams
}

// NewRangeModel builds a range model for the segment from merged
// configuration values.
func NewRangeModel(seg *Segment, values Values, deps ModelDeps) (*RangeModel, error) {
	deps = deps.normalized()
	m := &RangeModel{
		segment:   seg,
		bcast:     deps.Broadcaster,
		log:       logging.WithComponent(deps.Log, "range"),
		metrics:   deps.Metrics,
		positions: make(map[*Endpoint]Position),
	}
	if err := m.applyConfig(values); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RangeModel) Name() string { return RangeModelName }

func (m *RangeModel) applyConfig(values Values) error {
	merged := values.Merged(RangeModelSchema)

	rng, err := merged.Float("range")
	if err != nil {
		return err
	}

	var params LinkParams
	if bw, err := merged.Int("bandwidth"); err == nil && bw > 0 {
		v := int64(bw)
		params.BandwidthBps = &v
	}
	if d, err := merged.Float("delay"); err == nil && d > 0 {
		params.DelayUsec = &d
	}
	if j, err := merged.Float("jitter"); err == nil && j > 0 {
		params.JitterUsec = &j
	}
	if e, err := merged.Float("error"); err == nil && e > 0 {
		params.LossPct = &e
	}

	m.mu.Lock()
	m.rangeLimit = rng
	m.params = params
	m.mu.Unlock()

	m.log.Info(context.Background(), "range model configured",
		logging.Int("segment", m.segment.ID),
		logging.Float("range", rng))
	return nil
}

// UpdateConfig re-reads range and link parameters on a live instance. The
// range model always absorbs updates in place.
func (m *RangeModel) UpdateConfig(values Values) bool {
	if err := m.applyConfig(values); err != nil {
		m.log.Warn(context.Background(), "range model config rejected",
			logging.Int("segment", m.segment.ID),
			logging.Error(err))
		return true
	}
	return true
}

// SetLinkParams applies link-quality configuration and pushes the resulting
// parameters to every attached endpoint through the segment's configurer.
func (m *RangeModel) SetLinkParams(values Values) {
	if values != nil {
		if err := m.applyConfig(values); err != nil {
			m.log.Warn(context.Background(), "link params rejected",
				logging.Int("segment", m.segment.ID),
				logging.Error(err))
			return
		}
	}
	m.mu.RLock()
	params := m.params
	m.mu.RUnlock()
	for _, ep := range m.segment.Endpoints() {
		m.segment.ConfigureLink(ep, params)
	}
}

// pairEval is a deferred link-state decision computed under the position lock
// and applied after it is released.
type pairEval struct {
	a, b   *Endpoint
	within bool
}

// SetPosition records the endpoint's current node position and re-evaluates
// the endpoint against every other cached endpoint. Endpoints without a
// placed position are cached but excluded from evaluation.
func (m *RangeModel) SetPosition(ep *Endpoint) {
	pos := ep.Node.Position()

	m.mu.Lock()
	m.positions[ep] = pos
	var evals []pairEval
	if pos.Placed {
		for other, opos := range m.positions {
			if other == ep || !opos.Placed {
				continue
			}
			evals = append(evals, pairEval{
				a:      ep,
				b:      other,
				within: Distance(pos, opos) <= m.rangeLimit,
			})
		}
	}
	m.mu.Unlock()

	m.apply(evals)
}

// Update re-evaluates link state after a movement tick. Each moved endpoint
// is refreshed from its node and compared against every cached endpoint;
// pairs where both sides moved are evaluated once.
func (m *RangeModel) Update(moved []*Endpoint) {
	m.mu.Lock()

	remaining := make(map[*Endpoint]bool, len(moved))
	for _, ep := range moved {
		remaining[ep] = true
	}

	var evals []pairEval
	for _, ep := range moved {
		delete(remaining, ep)

		if _, known := m.positions[ep]; !known {
			continue
		}
		pos := ep.Node.Position()
		m.positions[ep] = pos
		if !pos.Placed {
			continue
		}

		for other, opos := range m.positions {
			if other == ep || remaining[other] || !opos.Placed {
				continue
			}
			evals = append(evals, pairEval{
				a:      ep,
				b:      other,
				within: Distance(pos, opos) <= m.rangeLimit,
			})
		}
	}
	m.mu.Unlock()

	m.apply(evals)
}

// apply turns evaluations into link toggles, emitting an event only when the
// state actually changes.
func (m *RangeModel) apply(evals []pairEval) {
	for _, ev := range evals {
		a, b := ev.a, ev.b
		// Canonical order keeps A-B and B-A on the same record.
		if b.ID < a.ID {
			a, b = b, a
		}

		linked := m.segment.Linked(a, b)
		if linked == ev.within {
			continue
		}
		m.segment.SetLinked(a, b, ev.within)

		msgType := LinkAdd
		if !ev.within {
			msgType = LinkDelete
		}
		m.bcast.BroadcastLink(LinkEvent{
			ID:        newEventID(),
			Type:      msgType,
			Node1ID:   a.Node.ID,
			Node2ID:   b.Node.ID,
			NetworkID: m.segment.ID,
			LinkType:  LinkTypeWireless,
		})
		m.metrics.LinkTransition(m.segment.Name, ev.within)

		m.log.Debug(context.Background(), "wireless link state changed",
			logging.Int("segment", m.segment.ID),
			logging.Int("node1", a.Node.ID),
			logging.Int("node2", b.Node.ID),
			logging.String("op", msgType.String()))
	}
}

// AllLinkData returns link records for every currently linked pair, for
// replay to a newly joined observer.
func (m *RangeModel) AllLinkData() []LinkEvent {
	pairs := m.segment.LinkedPairs()
	out := make([]LinkEvent, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, LinkEvent{
			ID:        newEventID(),
			Type:      LinkAdd,
			Node1ID:   p[0].Node.ID,
			Node2ID:   p[1].Node.ID,
			NetworkID: m.segment.ID,
			LinkType:  LinkTypeWireless,
		})
	}
	return out
}
