package core

import "sort"

// Velocity is a per-axis speed vector in coordinate units per second.
type Velocity struct {
	X, Y float64
}

// Waypoint tells a node where to be at a given script time. Speed is a scalar
// applied along the heading toward (X, Y); Velocity, when set, overrides the
// heading computation with explicit per-axis components.
type Waypoint struct {
	Time   float64
	NodeID int
	X, Y   float64
	Z      float64
	HasZ   bool
	Speed  float64

	Velocity *Velocity
}

// waypointQueue keeps waypoints ordered by script time, breaking ties by node
// ID so replays are deterministic.
type waypointQueue struct {
	points []Waypoint
}

func waypointLess(a, b Waypoint) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.NodeID < b.NodeID
}

// push inserts a waypoint preserving order.
func (q *waypointQueue) push(wp Waypoint) {
	idx := sort.Search(len(q.points), func(i int) bool {
		return !waypointLess(q.points[i], wp)
	})
	q.points = append(q.points, Waypoint{})
	copy(q.points[idx+1:], q.points[idx:])
	q.points[idx] = wp
}

// peek returns the earliest waypoint without removing it.
func (q *waypointQueue) peek() (Waypoint, bool) {
	if len(q.points) == 0 {
		return Waypoint{}, false
	}
	return q.points[0], true
}

// pop removes and returns the earliest waypoint.
func (q *waypointQueue) pop() (Waypoint, bool) {
	if len(q.points) == 0 {
		return Waypoint{}, false
	}
	wp := q.points[0]
	q.points = q.points[1:]
	return wp, true
}

func (q *waypointQueue) len() int { return len(q.points) }

// snapshot copies the remaining waypoints in order.
func (q *waypointQueue) snapshot() []Waypoint {
	out := make([]Waypoint, len(q.points))
	copy(out, q.points)
	return out
}

// restore replaces the queue contents with the given (already ordered) set.
func (q *waypointQueue) restore(points []Waypoint) {
	q.points = make([]Waypoint, len(points))
	copy(q.points, points)
}

// last returns the latest waypoint in the queue.
func (q *waypointQueue) last() (Waypoint, bool) {
	if len(q.points) == 0 {
		return Waypoint{}, false
	}
	return q.points[len(q.points)-1], true
}
