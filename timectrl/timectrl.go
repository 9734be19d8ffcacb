package timectrl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Clock is an interface for reading the current time. The emulation normally
// runs against the wall clock, but tests substitute a fake clock so movement
// arithmetic can be driven deterministically.
type Clock interface {
	Now() time.Time
}

// WallClock reads the real system time.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// EventQueue is the process-wide cooperative timer queue driving all timed
// mobility work: ticks, autostart, waypoint promotion. Handlers run one at a
// time on the Run goroutine (or inline via RunDue), so a handler that blocks
// stalls every other scheduled callback until it returns.
type EventQueue struct {
	clock Clock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first)
	index   map[string]*scheduledEvent
	wake    chan struct{}
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// NewEventQueue creates an event queue backed by the given clock. A nil clock
// defaults to the wall clock.
func NewEventQueue(clock Clock) *EventQueue {
	if clock == nil {
		clock = WallClock{}
	}
	return &EventQueue{
		clock: clock,
		index: make(map[string]*scheduledEvent),
		wake:  make(chan struct{}, 1),
	}
}

// Now returns the current time from the underlying clock.
func (q *EventQueue) Now() time.Time { return q.clock.Now() }

// Schedule registers a callback to run after the given delay. It returns an
// opaque event ID usable with Cancel. A negative delay schedules the event
// for immediate execution on the next queue pass.
func (q *EventQueue) Schedule(delay time.Duration, f func()) string {
	return q.ScheduleAt(q.clock.Now().Add(delay), f)
}

// ScheduleAt registers a callback to run at an absolute time.
func (q *EventQueue) ScheduleAt(at time.Time, f func()) string {
	q.mu.Lock()

	q.counter++
	id := fmt.Sprintf("ev-%d", q.counter)

	ev := &scheduledEvent{
		id:   id,
		when: at,
		f:    f,
	}
	q.addEventLocked(ev)
	q.index[id] = ev
	q.mu.Unlock()

	// Nudge a blocked Run loop so it re-evaluates the head of the queue.
	select {
	case q.wake <- struct{}{}:
	default:
	}

	return id
}

// addEventLocked inserts an event into the events slice maintaining time
// order. Caller must hold q.mu.
func (q *EventQueue) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(q.events), func(i int) bool {
		return !q.events[i].when.Before(ev.when)
	})
	q.events = append(q.events, nil)
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = ev
}

// Cancel attempts to cancel a previously scheduled event. It is a no-op if
// the ID is unknown or the event already ran.
func (q *EventQueue) Cancel(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev, ok := q.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(q.index, id)
	// Removal from q.events is lazy; RunDue skips cancelled events.
}

// Len returns the number of pending (non-cancelled) events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// popDueLocked removes and returns the earliest non-cancelled event whose
// time has arrived, or nil. Caller must hold q.mu.
func (q *EventQueue) popDueLocked(now time.Time) *scheduledEvent {
	for len(q.events) > 0 {
		ev := q.events[0]
		if ev.cancelled {
			q.events = q.events[1:]
			continue
		}
		if !ev.when.After(now) {
			q.events = q.events[1:]
			return ev
		}
		// Events are ordered by time, so everything later is in the future.
		break
	}
	return nil
}

// nextLocked returns the scheduled time of the earliest pending event.
// Caller must hold q.mu.
func (q *EventQueue) nextLocked() (time.Time, bool) {
	for _, ev := range q.events {
		if !ev.cancelled {
			return ev.when, true
		}
	}
	return time.Time{}, false
}

// RunDue executes all events whose scheduled time is <= Now(). Safe to call
// repeatedly; already-run events will not run again. Callbacks execute
// outside the lock so they may schedule or cancel further events.
func (q *EventQueue) RunDue() {
	for {
		q.mu.Lock()
		ev := q.popDueLocked(q.clock.Now())
		if ev == nil {
			q.mu.Unlock()
			return
		}
		delete(q.index, ev.id)
		q.mu.Unlock()

		if ev.f != nil {
			ev.f()
		}
	}
}

// Run drives the queue until the context is cancelled: it sleeps until the
// next scheduled event (or a new Schedule call wakes it) and then runs every
// due callback serially.
func (q *EventQueue) Run(ctx context.Context) {
	for {
		q.mu.Lock()
		next, ok := q.nextLocked()
		q.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}

		delay := time.Until(next)
		if delay <= 0 {
			q.RunDue()
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
			q.RunDue()
		}
	}
}
