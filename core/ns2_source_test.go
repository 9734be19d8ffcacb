package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haveagr8day/core/timectrl"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newNs2Fixture(t *testing.T, values Values, nodeIDs ...int) (*Ns2ScriptedModel, map[int]*Endpoint, *fakeClock, *timectrl.EventQueue, *recorder) {
	t.Helper()
	seg, eps := newTestSegment(1, nodeIDs...)
	clock := newFakeClock()
	queue := timectrl.NewEventQueue(clock)
	rec := &recorder{}
	m, err := NewNs2ScriptedModel(seg, values, ModelDeps{Queue: queue, Broadcaster: rec})
	if err != nil {
		t.Fatalf("NewNs2ScriptedModel: %v", err)
	}
	return m, eps, clock, queue, rec
}

// A trace with an X_/Y_/Z_ triple and one setdest yields exactly one initial
// position and one queued waypoint.
func TestNs2ParsesInitialAndMovement(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "one.scen", `
$node_(1) set X_ 10.0
$node_(1) set Y_ 20.0
$node_(1) set Z_ 0.0
$ns_ at 2.0 "$node_(1) setdest 50.0 60.0 5.0"
`)

	m, _, _, _, _ := newNs2Fixture(t, Values{"file": path}, 1)

	if len(m.initial) != 1 {
		t.Fatalf("initial positions = %d, want 1", len(m.initial))
	}
	init := m.initial[1]
	if init.X != 10 || init.Y != 20 || !init.HasZ {
		t.Fatalf("initial = %+v, want (10, 20) with altitude", init)
	}

	if m.pending.len() != 1 {
		t.Fatalf("queued waypoints = %d, want 1", m.pending.len())
	}
	wp, _ := m.pending.peek()
	if wp.Time != 2.0 || wp.NodeID != 1 || wp.X != 50 || wp.Y != 60 || wp.Speed != 5 {
		t.Fatalf("waypoint = %+v, want t=2 node=1 (50, 60) speed 5", wp)
	}
	if wp.HasZ {
		t.Fatal("setdest waypoints carry no altitude")
	}

	if m.endtime != 2.0 {
		t.Fatalf("endtime = %v, want 2.0 (last waypoint time)", m.endtime)
	}
}

// An initial position without Z_ commits when the next record starts.
func TestNs2CommitsPendingInitialWithoutAltitude(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "noz.scen", `
$node_(1) set X_ 1.0
$node_(1) set Y_ 2.0
$node_(2) set X_ 3.0
$node_(2) set Y_ 4.0
`)

	m, _, _, _, _ := newNs2Fixture(t, Values{"file": path}, 1, 2)

	if len(m.initial) != 2 {
		t.Fatalf("initial positions = %d, want 2", len(m.initial))
	}
	if wp := m.initial[1]; wp.X != 1 || wp.Y != 2 || wp.HasZ {
		t.Fatalf("initial[1] = %+v, want (1, 2) without altitude", wp)
	}
	if wp := m.initial[2]; wp.X != 3 || wp.Y != 4 {
		t.Fatalf("initial[2] = %+v, want (3, 4)", wp)
	}
}

// Malformed lines are skipped without aborting the parse.
func TestNs2SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "bad.scen", `
$node_(1) set X_ 1.0
$node_(1) set Y_ notanumber
$ns_ at garbage "$node_(1) setdest 5 5 5"
$nonsense record here
# a comment the parser never sees
$ns_ at 1.0 "$node_(1) setdest 9.0 9.0 1.0"
`)

	m, _, _, _, _ := newNs2Fixture(t, Values{"file": path}, 1)

	if m.pending.len() != 1 {
		t.Fatalf("queued waypoints = %d, want 1 (only the valid record)", m.pending.len())
	}
	wp, _ := m.pending.peek()
	if wp.X != 9 || wp.Y != 9 {
		t.Fatalf("surviving waypoint = %+v, want (9, 9)", wp)
	}
}

// Node renumbering: "0:5" maps script node 0 onto emulation node 5; IDs
// without a mapping pass through unchanged.
func TestNs2NodeMapping(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "map.scen", `
$ns_ at 1.0 "$node_(0) setdest 1.0 1.0 1.0"
$ns_ at 2.0 "$node_(7) setdest 2.0 2.0 1.0"
`)

	m, _, _, _, _ := newNs2Fixture(t, Values{"file": path, "map": "0:5"}, 5, 7)

	wp, _ := m.pending.pop()
	if wp.NodeID != 5 {
		t.Fatalf("mapped node = %d, want 5", wp.NodeID)
	}
	wp, _ = m.pending.pop()
	if wp.NodeID != 7 {
		t.Fatalf("unmapped node = %d, want pass-through 7", wp.NodeID)
	}
}

// One malformed pair discards the whole mapping, leaving pass-through.
func TestNs2MalformedMapDiscardsAll(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "badmap.scen", `
$ns_ at 1.0 "$node_(0) setdest 1.0 1.0 1.0"
`)

	m, _, _, _, _ := newNs2Fixture(t, Values{"file": path, "map": "0:5,oops"}, 0)

	if len(m.nodeMap) != 0 {
		t.Fatalf("node map = %v, want empty after malformed pair", m.nodeMap)
	}
	wp, _ := m.pending.peek()
	if wp.NodeID != 0 {
		t.Fatalf("node = %d, want unmapped 0", wp.NodeID)
	}
}

// findFile falls back to the session descriptor's directory for relative
// script paths.
func TestNs2FindFileNextToSessionFile(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "rel.scen", `$node_(1) set X_ 1.0
$node_(1) set Y_ 1.0
`)
	sessionFile := filepath.Join(dir, "session.xml")
	if err := os.WriteFile(sessionFile, []byte("<session/>"), 0o644); err != nil {
		t.Fatalf("write session file: %v", err)
	}

	seg, _ := newTestSegment(1, 1)
	m, err := NewNs2ScriptedModel(seg, Values{"file": "rel.scen"}, ModelDeps{
		Session: SessionInfo{FileName: sessionFile},
	})
	if err != nil {
		t.Fatalf("NewNs2ScriptedModel: %v", err)
	}
	if len(m.initial) != 1 {
		t.Fatalf("initial positions = %d, want 1 (file resolved next to session)", len(m.initial))
	}
}

// With autostart set, Startup snaps nodes to their initial positions and
// schedules the run on the timer queue.
func TestNs2AutostartSchedulesRun(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "auto.scen", `
$node_(1) set X_ 10.0
$node_(1) set Y_ 10.0
$ns_ at 0.5 "$node_(1) setdest 20.0 10.0 5.0"
`)

	m, eps, clock, queue, _ := newNs2Fixture(t, Values{"file": path, "autostart": "2.0", "loop": "off"}, 1)

	m.Startup()
	if m.State() != StateRunning {
		t.Fatalf("state after autostart startup = %v, want running", m.State())
	}
	pos := eps[1].Node.Position()
	if pos.X != 10 || pos.Y != 10 {
		t.Fatalf("autostart should place nodes initially, got (%v, %v)", pos.X, pos.Y)
	}

	// Before the autostart delay nothing moves.
	clock.Advance(time.Second)
	queue.RunDue()
	if pos := eps[1].Node.Position(); pos.X != 10 {
		t.Fatalf("node moved before autostart time: %v", pos.X)
	}

	// After the delay the script runs and the node starts toward (20, 10).
	clock.Advance(2 * time.Second)
	queue.RunDue()
	clock.Advance(time.Second)
	queue.RunDue()
	if pos := eps[1].Node.Position(); pos.X == 10 {
		t.Fatal("node should be moving after autostart delay")
	}
}

// Empty autostart leaves the model stopped until an explicit start.
func TestNs2NoAutostartStaysStopped(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "manual.scen", `
$node_(1) set X_ 1.0
$node_(1) set Y_ 1.0
`)

	m, _, _, queue, _ := newNs2Fixture(t, Values{"file": path}, 1)

	m.Startup()
	if m.State() != StateStopped {
		t.Fatalf("state = %v, want stopped without autostart", m.State())
	}
	if queue.Len() != 0 {
		t.Fatalf("queue has %d scheduled events, want 0", queue.Len())
	}
}

// Lifecycle scripts run via /bin/sh with the transition name as argument.
func TestNs2LifecycleScriptRuns(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	script := writeScript(t, dir, "hook.sh", "#!/bin/sh\necho \"$1\" > "+marker+"\n")
	trace := writeScript(t, dir, "trace.scen", `
$node_(1) set X_ 1.0
$node_(1) set Y_ 1.0
`)

	m, _, _, _, _ := newNs2Fixture(t, Values{
		"file":         trace,
		"script_start": script,
	}, 1)

	m.stateScript("run")

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("lifecycle script did not run: %v", err)
	}
	if got := string(data); got != "run\n" {
		t.Fatalf("script argument = %q, want %q", got, "run\n")
	}
}

// A missing trace file is contained: the model constructs with no waypoints.
func TestNs2MissingFileIsContained(t *testing.T) {
	m, _, _, _, _ := newNs2Fixture(t, Values{"file": "/does/not/exist.scen"}, 1)
	if m.pending.len() != 0 || len(m.initial) != 0 {
		t.Fatal("missing file should yield an empty model")
	}
}
