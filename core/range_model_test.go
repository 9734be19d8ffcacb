package core

import "testing"

func newRangeFixture(t *testing.T, values Values) (*RangeModel, *Segment, map[int]*Endpoint, *recorder) {
	t.Helper()
	seg, eps := newTestSegment(1, 1, 2)
	rec := &recorder{}
	m, err := NewRangeModel(seg, values, ModelDeps{Broadcaster: rec})
	if err != nil {
		t.Fatalf("NewRangeModel: %v", err)
	}
	return m, seg, eps, rec
}

// Two nodes crossing the range threshold produce exactly one link-add and,
// on the way back out, exactly one link-delete. Updates that do not change
// the in-range relation emit nothing.
func TestRangeModelLinkTransitions(t *testing.T) {
	m, seg, eps, rec := newRangeFixture(t, nil) // default range 275

	eps[1].Node.SetPosition(PlanarPosition(0, 0))
	m.SetPosition(eps[1])
	eps[2].Node.SetPosition(PlanarPosition(300, 0))
	m.SetPosition(eps[2])

	if got := len(rec.linkEvents()); got != 0 {
		t.Fatalf("events after out-of-range placement = %d, want 0", got)
	}

	// Move inside the radius.
	eps[2].Node.SetPosition(PlanarPosition(200, 0))
	m.Update([]*Endpoint{eps[2]})

	events := rec.linkEvents()
	if len(events) != 1 {
		t.Fatalf("events after entering range = %d, want 1", len(events))
	}
	if events[0].Type != LinkAdd || events[0].LinkType != LinkTypeWireless {
		t.Fatalf("unexpected event %+v, want wireless link add", events[0])
	}
	if !seg.Linked(eps[1], eps[2]) {
		t.Fatal("segment should record the pair as linked")
	}

	// Same positions again: no state change, no event.
	m.Update([]*Endpoint{eps[2]})
	if got := len(rec.linkEvents()); got != 1 {
		t.Fatalf("events after no-op update = %d, want still 1", got)
	}

	// Move back out.
	eps[2].Node.SetPosition(PlanarPosition(400, 0))
	m.Update([]*Endpoint{eps[2]})

	events = rec.linkEvents()
	if len(events) != 2 {
		t.Fatalf("events after leaving range = %d, want 2", len(events))
	}
	if events[1].Type != LinkDelete {
		t.Fatalf("second event type = %v, want delete", events[1].Type)
	}
	if seg.Linked(eps[1], eps[2]) {
		t.Fatal("segment should record the pair as unlinked")
	}
}

// A pair where both sides moved in the same tick still yields a single
// link-add, never a duplicate.
func TestRangeModelEvaluatesMovedPairOnce(t *testing.T) {
	m, _, eps, rec := newRangeFixture(t, nil)

	eps[1].Node.SetPosition(PlanarPosition(0, 0))
	m.SetPosition(eps[1])
	eps[2].Node.SetPosition(PlanarPosition(1000, 0))
	m.SetPosition(eps[2])

	eps[1].Node.SetPosition(PlanarPosition(10, 0))
	eps[2].Node.SetPosition(PlanarPosition(20, 0))
	m.Update([]*Endpoint{eps[1], eps[2]})

	if got := len(rec.linkEvents()); got != 1 {
		t.Fatalf("events after both sides moved = %d, want 1", got)
	}
}

// Endpoints without a placed position never participate in link calculation.
func TestRangeModelSkipsUnplacedEndpoints(t *testing.T) {
	m, _, eps, rec := newRangeFixture(t, nil)

	// eps[1] never gets coordinates.
	m.SetPosition(eps[1])
	eps[2].Node.SetPosition(PlanarPosition(0, 0))
	m.SetPosition(eps[2])

	m.Update([]*Endpoint{eps[1], eps[2]})
	if got := len(rec.linkEvents()); got != 0 {
		t.Fatalf("events with unplaced endpoint = %d, want 0", got)
	}
}

func TestRangeModelCustomRange(t *testing.T) {
	m, _, eps, rec := newRangeFixture(t, Values{"range": "50"})

	eps[1].Node.SetPosition(PlanarPosition(0, 0))
	m.SetPosition(eps[1])
	eps[2].Node.SetPosition(PlanarPosition(60, 0))
	m.SetPosition(eps[2])
	if got := len(rec.linkEvents()); got != 0 {
		t.Fatalf("events at 60 units with range 50 = %d, want 0", got)
	}

	eps[2].Node.SetPosition(PlanarPosition(40, 0))
	m.Update([]*Endpoint{eps[2]})
	if got := len(rec.linkEvents()); got != 1 {
		t.Fatalf("events at 40 units with range 50 = %d, want 1", got)
	}
}

func TestRangeModelAllLinkData(t *testing.T) {
	m, _, eps, _ := newRangeFixture(t, nil)

	eps[1].Node.SetPosition(PlanarPosition(0, 0))
	m.SetPosition(eps[1])
	eps[2].Node.SetPosition(PlanarPosition(10, 0))
	m.SetPosition(eps[2])

	data := m.AllLinkData()
	if len(data) != 1 {
		t.Fatalf("AllLinkData = %d records, want 1", len(data))
	}
	if data[0].Type != LinkAdd {
		t.Fatalf("AllLinkData record type = %v, want add", data[0].Type)
	}
}

// Zero-valued link parameters mean unset and are never pushed as zeros.
func TestRangeModelLinkParamNormalization(t *testing.T) {
	seg, _ := newTestSegment(1, 1)
	var got []LinkParams
	seg.SetLinkConfigurer(func(ep *Endpoint, params LinkParams) {
		got = append(got, params)
	})

	m, err := NewRangeModel(seg, Values{"jitter": "0.0", "error": "0.0"}, ModelDeps{})
	if err != nil {
		t.Fatalf("NewRangeModel: %v", err)
	}
	m.SetLinkParams(nil)

	if len(got) != 1 {
		t.Fatalf("configurer calls = %d, want 1 (one per endpoint)", len(got))
	}
	p := got[0]
	if p.JitterUsec != nil || p.LossPct != nil {
		t.Fatalf("zero jitter/error should be unset, got %+v", p)
	}
	if p.BandwidthBps == nil || *p.BandwidthBps != 54000 {
		t.Fatalf("bandwidth = %v, want default 54000", p.BandwidthBps)
	}
	if p.DelayUsec == nil || *p.DelayUsec != 5000.0 {
		t.Fatalf("delay = %v, want default 5000", p.DelayUsec)
	}
}
