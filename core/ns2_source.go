package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/haveagr8day/core/internal/logging"
)

// Ns2ModelName identifies the ns-2 trace-driven mobility model.
const Ns2ModelName = "ns2script"

// scriptTimeout bounds lifecycle script execution so a hung script cannot
// stall the shared timer queue indefinitely.
const scriptTimeout = 30 * time.Second

// Ns2ScriptedModel feeds waypoints parsed from an ns-2 movement trace (as
// generated by setdest, scengen, or BonnMotion) into the waypoint machinery.
type Ns2ScriptedModel struct {
	*WaypointModel

	session SessionInfo

	file        string
	autostart   string
	nodeMap     map[int]int
	scriptStart string
	scriptPause string
	scriptStop  string
}

// NewNs2ScriptedModel builds a scripted model for the segment from merged
// configuration values, reading the trace file immediately.
func NewNs2ScriptedModel(seg *Segment, values Values, deps ModelDeps) (*Ns2ScriptedModel, error) {
	deps = deps.normalized()
	merged := values.Merged(Ns2ModelSchema)

	m := &Ns2ScriptedModel{
		WaypointModel: NewWaypointModel(seg, deps),
		session:       deps.Session,
		file:          merged.String("file"),
		autostart:     merged.String("autostart"),
		scriptStart:   merged.String("script_start"),
		scriptPause:   merged.String("script_pause"),
		scriptStop:    merged.String("script_stop"),
	}
	m.log = logging.WithComponent(deps.Log, "ns2script")
	m.eventName = Ns2ModelName
	m.transitionHook = m.stateScript

	refresh, err := merged.Int("refresh_ms")
	if err != nil {
		return nil, err
	}
	m.SetRefresh(time.Duration(refresh) * time.Millisecond)
	m.SetLoop(merged.Bool("loop"))
	m.nodeMap = m.parseNodeMap(merged.String("map"))

	m.log.Info(context.Background(), "ns-2 scripted mobility configured",
		logging.Int("segment", seg.ID),
		logging.String("file", m.file))

	m.readScriptFile()
	m.CopyWaypoints()
	m.SetEndTime()
	return m, nil
}

func (m *Ns2ScriptedModel) Name() string { return Ns2ModelName }

// Startup begins the script when autostart is configured. An empty autostart
// leaves the script stopped until started explicitly.
func (m *Ns2ScriptedModel) Startup() {
	ctx := context.Background()
	if m.autostart == "" {
		m.log.Info(ctx, "not auto-starting ns-2 script",
			logging.Int("segment", m.segment.ID))
		return
	}
	t, err := strconv.ParseFloat(m.autostart, 64)
	if err != nil {
		m.log.Warn(ctx, "invalid ns-2 autostart seconds",
			logging.Int("segment", m.segment.ID),
			logging.String("autostart", m.autostart))
		return
	}

	m.MoveNodesInitial()
	m.log.Info(ctx, "scheduling ns-2 script autostart",
		logging.Int("segment", m.segment.ID),
		logging.Float("seconds", t))

	m.mu.Lock()
	m.state = StateRunning
	m.mu.Unlock()
	m.queue.Schedule(time.Duration(t*float64(time.Second)), m.runCb)
}

// readScriptFile parses the trace into waypoints. Movement records look like
//
//	$ns_ at 1.00 "$node_(6) setdest 500.0 178.0 25.0"
//
// and initial positions like
//
//	$node_(6) set X_ 780.0
//
// where X_ and Y_ are required and Z_ optional. Malformed lines are logged
// with their line number and skipped.
func (m *Ns2ScriptedModel) readScriptFile() {
	ctx := context.Background()
	filename := m.findFile(m.file)
	f, err := os.Open(filename)
	if err != nil {
		m.log.Warn(ctx, "ns-2 script file failed to load",
			logging.String("file", m.file),
			logging.Error(err))
		return
	}
	defer f.Close()
	m.log.Info(ctx, "reading ns-2 script file", logging.String("file", filename))

	// Initial positions arrive as separate X_/Y_/Z_ records; a pending
	// X/Y pair is committed when the triple completes or the node changes.
	var ix, iy, iz *float64
	var inode int

	commitInitial := func() {
		if ix == nil || iy == nil {
			return
		}
		wp := Waypoint{NodeID: m.mapNode(inode), X: *ix, Y: *iy}
		if iz != nil {
			wp.Z = *iz
			wp.HasZ = true
		}
		m.AddInitial(wp)
		ix, iy, iz = nil, nil, nil
	}

	ln := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ln++
		line := sc.Text()
		if !strings.HasPrefix(line, "$n") {
			continue
		}
		var err error
		switch {
		case strings.HasPrefix(line, "$ns_ at "):
			commitInitial()
			err = m.parseMovement(line)
		case strings.HasPrefix(line, "$node_("):
			err = m.parseInitial(line, &ix, &iy, &iz, &inode, commitInitial)
		default:
			err = fmt.Errorf("unrecognized record")
		}
		if err != nil {
			m.log.Warn(ctx, "skipping ns-2 script line",
				logging.String("file", m.file),
				logging.Int("line", ln),
				logging.Error(err))
		}
	}
	if err := sc.Err(); err != nil {
		m.log.Warn(ctx, "ns-2 script read error",
			logging.String("file", m.file),
			logging.Error(err))
	}
	commitInitial()
}

// parseMovement handles a "$ns_ at <t> "$node_(N) setdest <x> <y> <speed>""
// record.
func (m *Ns2ScriptedModel) parseMovement(line string) error {
	parts := strings.Fields(line)
	if len(parts) < 8 {
		return fmt.Errorf("short movement record")
	}
	t, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return err
	}
	node, err := parseNodeRef(parts[3])
	if err != nil {
		return err
	}
	x, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return err
	}
	y, err := strconv.ParseFloat(parts[6], 64)
	if err != nil {
		return err
	}
	speed, err := strconv.ParseFloat(strings.Trim(parts[7], `"`), 64)
	if err != nil {
		return err
	}
	m.AddWaypoint(Waypoint{
		Time:   t,
		NodeID: m.mapNode(node),
		X:      x,
		Y:      y,
		Speed:  speed,
	})
	return nil
}

// parseInitial handles a "$node_(N) set X_ <v>" axis record, accumulating the
// pending initial position.
func (m *Ns2ScriptedModel) parseInitial(line string, ix, iy, iz **float64, inode *int, commit func()) error {
	parts := strings.Fields(line)
	if len(parts) < 4 {
		return fmt.Errorf("short initial-position record")
	}
	node, err := parseNodeRef(parts[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return err
	}
	switch parts[2] {
	case "X_":
		commit()
		*ix = &v
	case "Y_":
		*iy = &v
	case "Z_":
		*iz = &v
		*inode = node
		commit()
	default:
		return fmt.Errorf("unrecognized axis %q", parts[2])
	}
	*inode = node
	return nil
}

// parseNodeRef extracts N from a "$node_(N)" token.
func parseNodeRef(tok string) (int, error) {
	open := strings.Index(tok, "(")
	end := strings.Index(tok, ")")
	if open < 0 || end < open {
		return 0, fmt.Errorf("bad node reference %q", tok)
	}
	return strconv.Atoi(tok[open+1 : end])
}

// findFile resolves a script path: as given, then alongside the session
// descriptor, then in the per-user config directory, falling back to the
// literal value.
func (m *Ns2ScriptedModel) findFile(fn string) string {
	if _, err := os.Stat(fn); err == nil {
		return fn
	}
	if m.session.FileName != "" {
		p := filepath.Join(filepath.Dir(m.session.FileName), fn)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if m.session.User != "" {
		p := filepath.Join("/home", m.session.User, ".core", "configs", fn)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return fn
}

// parseNodeMap parses a "src:dst,src:dst" node renumbering string. Any
// malformed pair discards the entire mapping.
func (m *Ns2ScriptedModel) parseNodeMap(mapstr string) map[int]int {
	nodemap := make(map[int]int)
	if strings.TrimSpace(mapstr) == "" {
		return nodemap
	}
	for _, pair := range strings.Split(mapstr, ",") {
		parts := strings.Split(pair, ":")
		if len(parts) != 2 {
			m.log.Warn(context.Background(), "ns-2 mobility node map error",
				logging.String("map", mapstr))
			return make(map[int]int)
		}
		src, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		dst, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			m.log.Warn(context.Background(), "ns-2 mobility node map error",
				logging.String("map", mapstr))
			return make(map[int]int)
		}
		nodemap[src] = dst
	}
	return nodemap
}

// mapNode renumbers a script node ID; unmapped IDs pass through.
func (m *Ns2ScriptedModel) mapNode(node int) int {
	if mapped, ok := m.nodeMap[node]; ok {
		return mapped
	}
	return node
}

// stateScript runs the configured lifecycle script for a transition via
// /bin/sh in the session directory and environment.
func (m *Ns2ScriptedModel) stateScript(transition string) {
	var filename string
	switch transition {
	case "run", "unpause":
		filename = m.scriptStart
	case "pause":
		filename = m.scriptPause
	case "stop":
		filename = m.scriptStop
	}
	if filename == "" {
		return
	}
	filename = m.findFile(filename)

	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()

	began := time.Now()
	cmd := exec.CommandContext(ctx, "/bin/sh", filename, transition)
	cmd.Dir = m.session.Dir
	cmd.Env = m.session.Env
	if err := cmd.Run(); err != nil {
		m.log.Warn(context.Background(), "mobility state script failed",
			logging.String("file", filename),
			logging.String("transition", transition),
			logging.Error(err))
	}
	m.metrics.ObserveLifecycleScript(transition, time.Since(began))
}
