package core

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/haveagr8day/core/internal/logging"
	"github.com/haveagr8day/core/timectrl"
)

// WaypointModelName identifies the generic waypoint mobility model.
const WaypointModelName = "waypoint"

// WaypointModel moves a segment's nodes along time-ordered waypoints on the
// shared timer queue. It is the base machinery for scripted mobility sources;
// Ns2ScriptedModel feeds it waypoints parsed from a trace file.
//
// All mutable state is guarded by mu. Broadcasts and the moved-set handler
// fire while mu is held; the Broadcaster contract forbids synchronous
// callbacks into the model, which keeps that safe.
type WaypointModel struct {
	segment *Segment
	queue   *timectrl.EventQueue
	bcast   Broadcaster
	log     logging.Logger
	metrics Metrics

	mu        sync.Mutex
	state     ModelState
	pending   waypointQueue
	replay    []Waypoint
	points    map[int]Waypoint
	initial   map[int]Waypoint
	timezero  time.Time
	lasttime  time.Time
	endtime   float64
	tickID    string
	refresh   time.Duration
	loop      bool
	onMoved   func([]*Endpoint)

	// emptyQueueStop controls whether an exhausted waypoint queue stops
	// the script. Sources that feed waypoints incrementally clear it so
	// the tick keeps firing.
	emptyQueueStop bool

	// transitionHook fires after every lifecycle transition with one of
	// "run", "unpause", "pause", "stop". Set by scripted sources to run
	// their lifecycle scripts.
	transitionHook func(transition string)

	// eventName overrides the model name carried in status events when a
	// scripted source embeds this base.
	eventName string
}

// NewWaypointModel builds an empty waypoint model for the segment.
func NewWaypointModel(seg *Segment, deps ModelDeps) *WaypointModel {
	deps = deps.normalized()
	return &WaypointModel{
		segment:        seg,
		queue:          deps.Queue,
		bcast:          deps.Broadcaster,
		log:            logging.WithComponent(deps.Log, "waypoint"),
		metrics:        deps.Metrics,
		points:         make(map[int]Waypoint),
		initial:        make(map[int]Waypoint),
		refresh:        50 * time.Millisecond,
		emptyQueueStop: true,
	}
}

func (m *WaypointModel) Name() string { return WaypointModelName }

// UpdateConfig always reports false: waypoint-driven models are rebuilt on
// configuration change because the script file may differ.
func (m *WaypointModel) UpdateConfig(Values) bool { return false }

// SetMovedHandler installs the callback receiving the endpoints moved by each
// tick, typically the coordinator's segment fan-out.
func (m *WaypointModel) SetMovedHandler(fn func([]*Endpoint)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMoved = fn
}

// SetRefresh sets the tick interval.
func (m *WaypointModel) SetRefresh(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.refresh = d
	}
}

// SetLoop controls whether the script replays after the last waypoint.
func (m *WaypointModel) SetLoop(loop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop = loop
}

// State returns the current lifecycle state.
func (m *WaypointModel) State() ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AddWaypoint queues a timed movement target for a node.
func (m *WaypointModel) AddWaypoint(wp Waypoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.push(wp)
}

// AddInitial records a node's starting position, replacing any earlier one.
func (m *WaypointModel) AddInitial(wp Waypoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wp.Time = 0
	wp.Speed = 0
	m.initial[wp.NodeID] = wp
}

// CopyWaypoints snapshots the queue for later replay on loop or stop.
func (m *WaypointModel) CopyWaypoints() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replay = m.pending.snapshot()
}

// SetEndTime estimates the script end from the last queued waypoint. The
// estimate is refined as the script runs, when the last moving node reaches
// its final waypoint.
func (m *WaypointModel) SetEndTime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wp, ok := m.pending.last(); ok {
		m.endtime = wp.Time
	} else {
		m.endtime = 0
	}
}

// Startup is a no-op for the plain waypoint model; scripted sources override
// it with autostart scheduling.
func (m *WaypointModel) Startup() {}

// Start runs the script from the beginning, or resumes it when paused.
func (m *WaypointModel) Start() {
	m.mu.Lock()
	last := m.state
	m.state = StateRunning
	m.log.Info(context.Background(), "starting mobility script",
		logging.Int("segment", m.segment.ID),
		logging.String("from", last.String()))

	var hooks []string
	switch last {
	case StateStopped, StateRunning:
		m.loopWaypointsLocked()
		m.timezero = time.Time{}
		m.lasttime = time.Time{}
		hooks = m.runLocked()
	case StatePaused:
		now := m.queue.Now()
		m.timezero = m.timezero.Add(now.Sub(m.lasttime))
		m.lasttime = now.Add(-m.refresh)
		hooks = m.runRoundLocked()
		hooks = append(hooks, "unpause")
	}
	m.mu.Unlock()

	m.fireHooks(hooks)
}

// Stop halts the script, restores the waypoint queue for the next run, and
// optionally snaps nodes back to their initial positions. Any in-flight
// movement targets are discarded.
func (m *WaypointModel) Stop(moveInitial bool) {
	m.mu.Lock()
	hooks := m.stopLocked(moveInitial)
	m.mu.Unlock()
	m.fireHooks(hooks)
}

func (m *WaypointModel) stopLocked(moveInitial bool) []string {
	m.state = StateStopped
	m.log.Info(context.Background(), "stopping mobility script",
		logging.Int("segment", m.segment.ID))
	m.loopWaypointsLocked()
	m.points = make(map[int]Waypoint)
	m.timezero = time.Time{}
	m.lasttime = time.Time{}
	m.cancelTickLocked()
	if moveInitial {
		m.moveNodesInitialLocked()
	}
	m.sendEventLocked()
	return []string{"stop"}
}

// Pause freezes the script; the pause instant anchors resume arithmetic.
func (m *WaypointModel) Pause() {
	m.mu.Lock()
	m.state = StatePaused
	m.lasttime = m.queue.Now()
	m.cancelTickLocked()
	m.sendEventLocked()
	m.mu.Unlock()

	m.fireHooks([]string{"pause"})
}

// MoveNodesInitial snaps every node with a recorded initial position to it
// and relays the moved set.
func (m *WaypointModel) MoveNodesInitial() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moveNodesInitialLocked()
}

// runLocked begins a round of the script from time zero.
func (m *WaypointModel) runLocked() []string {
	m.timezero = m.queue.Now()
	m.lasttime = m.timezero.Add(-m.refresh)
	m.moveNodesInitialLocked()
	hooks := m.runRoundLocked()
	m.sendEventLocked()
	return append(hooks, "run")
}

// runCb is the timer-queue entry point for autostart.
func (m *WaypointModel) runCb() {
	m.mu.Lock()
	hooks := m.runLocked()
	m.mu.Unlock()
	m.fireHooks(hooks)
}

// tickCb is the timer-queue entry point for movement ticks.
func (m *WaypointModel) tickCb() {
	began := m.queue.Now()
	m.mu.Lock()
	hooks := m.runRoundLocked()
	m.mu.Unlock()
	m.metrics.ObserveTick(m.queue.Now().Sub(began))
	m.fireHooks(hooks)
}

// runRoundLocked advances script time and moves nodes. It returns the
// lifecycle transitions the round triggered, fired by the caller after the
// lock is released.
func (m *WaypointModel) runRoundLocked() []string {
	if m.state != StateRunning {
		return nil
	}
	t := m.lasttime
	m.lasttime = m.queue.Now()
	now := m.lasttime.Sub(m.timezero).Seconds()
	dt := m.lasttime.Sub(t).Seconds()

	m.updatePointsLocked(now)
	m.metrics.SetPendingWaypoints(m.segment.Name, m.pending.len())

	if len(m.points) == 0 {
		if next, ok := m.pending.peek(); ok {
			// Sleep until the next waypoint comes due, backing off
			// one refresh so the tick lands just before it.
			wait := next.Time - now
			if wait > m.refresh.Seconds() {
				wait -= m.refresh.Seconds()
			}
			m.scheduleTickLocked(time.Duration(wait * float64(time.Second)))
			return nil
		}
		if !m.emptyQueueStop {
			m.scheduleTickLocked(m.refresh)
			return nil
		}
		if !m.loopWaypointsLocked() {
			return m.stopLocked(false)
		}
		if m.pending.len() == 0 {
			// A loop over an empty script would busy-spin.
			return nil
		}
		return m.runLocked()
	}

	var moved []*Endpoint
	for _, ep := range m.segment.Endpoints() {
		if m.moveNodeLocked(ep.Node, dt) {
			moved = append(moved, ep)
		}
	}
	if m.onMoved != nil && len(moved) > 0 {
		m.onMoved(moved)
	}

	m.scheduleTickLocked(m.refresh)
	return nil
}

// moveNodeLocked advances one node toward its active waypoint and reports
// whether its position changed.
func (m *WaypointModel) moveNodeLocked(node *Node, dt float64) bool {
	wp, ok := m.points[node.ID]
	if !ok {
		return false
	}
	pos := node.Position()
	x1, y1 := pos.X, pos.Y
	x2, y2 := wp.X, wp.Y

	// Zero speed places the node instantly and avoids the zero-step
	// deletion below.
	if wp.Velocity == nil && wp.Speed == 0 {
		m.setNodePositionLocked(node, Position{
			X: x2, Y: y2, Z: wp.Z, Placed: true, HasZ: wp.HasZ,
		})
		delete(m.points, node.ID)
		return true
	}

	var sx, sy float64
	if wp.Velocity != nil {
		sx, sy = wp.Velocity.X, wp.Velocity.Y
	} else {
		alpha := math.Atan2(y2-y1, x2-x1)
		sx = wp.Speed * math.Cos(alpha)
		sy = wp.Speed * math.Sin(alpha)
	}

	dx := sx * dt
	dy := sy * dt
	// Clamp each axis to the remaining distance so the node never
	// overshoots its target.
	if math.Abs(dx) > math.Abs(x2-x1) {
		dx = x2 - x1
	}
	if math.Abs(dy) > math.Abs(y2-y1) {
		dy = y2 - y1
	}
	if dx == 0.0 && dy == 0.0 {
		// The last node to reach its final waypoint determines the
		// script's end time.
		if elapsed := m.lasttime.Sub(m.timezero).Seconds(); m.endtime < elapsed {
			m.endtime = elapsed
		}
		delete(m.points, node.ID)
		return false
	}
	// Keep coordinates in the first quadrant.
	if x1+dx < 0.0 {
		dx = 0.0 - x1
	}
	if y1+dy < 0.0 {
		dy = 0.0 - y1
	}
	m.setNodePositionLocked(node, Position{
		X: x1 + dx, Y: y1 + dy, Z: pos.Z, Placed: true, HasZ: pos.HasZ,
	})
	return true
}

// moveNodesInitialLocked snaps nodes to their initial positions and relays
// the moved set for one range recomputation.
func (m *WaypointModel) moveNodesInitialLocked() {
	var moved []*Endpoint
	for _, ep := range m.segment.Endpoints() {
		wp, ok := m.initial[ep.Node.ID]
		if !ok {
			continue
		}
		m.setNodePositionLocked(ep.Node, Position{
			X: wp.X, Y: wp.Y, Z: wp.Z, Placed: true, HasZ: wp.HasZ,
		})
		moved = append(moved, ep)
	}
	if m.onMoved != nil && len(moved) > 0 {
		m.onMoved(moved)
	}
}

// setNodePositionLocked moves a node and notifies observers without invoking
// any per-move range recomputation; ranges are recalculated once per tick
// from the moved set.
func (m *WaypointModel) setNodePositionLocked(node *Node, pos Position) {
	node.SetPosition(pos)
	m.bcast.BroadcastNode(NodeEvent{
		ID:       newEventID(),
		NodeID:   node.ID,
		Name:     node.Name,
		Position: pos,
	})
}

// updatePointsLocked promotes queued waypoints whose time has come into the
// active target set.
func (m *WaypointModel) updatePointsLocked(now float64) {
	for {
		wp, ok := m.pending.peek()
		if !ok || wp.Time > now {
			return
		}
		m.pending.pop()
		m.points[wp.NodeID] = wp
	}
}

// loopWaypointsLocked restores the replay snapshot and reports whether the
// model is configured to loop.
func (m *WaypointModel) loopWaypointsLocked() bool {
	m.pending.restore(m.replay)
	return m.loop
}

func (m *WaypointModel) scheduleTickLocked(delay time.Duration) {
	m.cancelTickLocked()
	m.tickID = m.queue.Schedule(delay, m.tickCb)
}

func (m *WaypointModel) cancelTickLocked() {
	if m.tickID != "" {
		m.queue.Cancel(m.tickID)
		m.tickID = ""
	}
}

// sendEventLocked broadcasts a model status event carrying elapsed and end
// script time.
func (m *WaypointModel) sendEventLocked() {
	var elapsed float64
	if !m.timezero.IsZero() {
		elapsed = m.lasttime.Sub(m.timezero).Seconds()
	}
	m.bcast.BroadcastModel(ModelEvent{
		ID:        newEventID(),
		NetworkID: m.segment.ID,
		Model:     m.modelName(),
		State:     m.state,
		Start:     elapsed,
		End:       m.endtime,
	})
}

// modelName reports the name carried in status events. Scripted sources
// shadow Name(), which the embedded base cannot see, so they set eventName at
// construction instead.
func (m *WaypointModel) modelName() string {
	if m.eventName != "" {
		return m.eventName
	}
	return WaypointModelName
}

func (m *WaypointModel) fireHooks(hooks []string) {
	if m.transitionHook == nil {
		return
	}
	for _, h := range hooks {
		m.transitionHook(h)
	}
}
