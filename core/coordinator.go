package core

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/haveagr8day/core/internal/logging"
	"github.com/haveagr8day/core/timectrl"
)

// EventType is a mobility control action requested for a segment's model.
type EventType int

const (
	EventStart EventType = iota
	EventStop
	EventPause
	EventRestart
)

// eventPrefix marks control-event names addressed to mobility models,
// e.g. "mobility:ns2script".
const eventPrefix = "mobility:"

// TunnelResolver supplies the tunnel endpoint reaching a physical node hosted
// on another server, so its shadow can participate in range calculation.
type TunnelResolver interface {
	Tunnel(segmentID, nodeID int) (*Endpoint, error)
}

// ModelConfig names a model and its configuration for one segment.
type ModelConfig struct {
	Model  string
	Values Values
}

// Coordinator owns the per-segment mobility and wireless models: it
// instantiates them from stored configuration at session startup, relays
// moved sets to every wireless model once per tick, and dispatches control
// events by model name.
type Coordinator struct {
	registry  *Registry
	factories map[string]ModelFactory
	queue     *timectrl.EventQueue
	bcast     Broadcaster
	log       logging.Logger
	metrics   Metrics
	session   SessionInfo
	tunnels   TunnelResolver
	tracer    oteltrace.Tracer

	mu       sync.Mutex
	started  bool
	configs  map[int][]ModelConfig
	wireless map[int]WirelessModel
	mobility map[int]MobilityModel

	// Shadow objects for physical nodes hosted on other servers, and the
	// segments they belong to.
	phys     map[int]*Node
	physNets map[int][]int
}

// CoordinatorDeps bundles the coordinator's collaborators.
type CoordinatorDeps struct {
	Registry  *Registry
	Factories map[string]ModelFactory
	Queue     *timectrl.EventQueue
	Bcast     Broadcaster
	Log       logging.Logger
	Metrics   Metrics
	Session   SessionInfo
	Tunnels   TunnelResolver
}

// NewCoordinator builds a coordinator. Nil deps get no-op defaults; a nil
// factory table gets the built-in models.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Factories == nil {
		deps.Factories = DefaultFactories()
	}
	if deps.Queue == nil {
		deps.Queue = timectrl.NewEventQueue(nil)
	}
	if deps.Bcast == nil {
		deps.Bcast = NoopBroadcaster{}
	}
	if deps.Log == nil {
		deps.Log = logging.Noop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NoopMetrics{}
	}
	return &Coordinator{
		registry:  deps.Registry,
		factories: deps.Factories,
		queue:     deps.Queue,
		bcast:     deps.Bcast,
		log:       logging.WithComponent(deps.Log, "mobility"),
		metrics:   deps.Metrics,
		session:   deps.Session,
		tunnels:   deps.Tunnels,
		tracer:    otel.Tracer("mobility-coordinator"),
		configs:   make(map[int][]ModelConfig),
		wireless:  make(map[int]WirelessModel),
		mobility:  make(map[int]MobilityModel),
		phys:      make(map[int]*Node),
		physNets:  make(map[int][]int),
	}
}

// SetConfig stores model configuration for a segment. Once the session is
// running, matching live models absorb the update in place when they can.
func (c *Coordinator) SetConfig(segmentID int, configs []ModelConfig) {
	c.mu.Lock()
	c.configs[segmentID] = configs
	started := c.started
	wm := c.wireless[segmentID]
	c.mu.Unlock()

	if !started || wm == nil {
		return
	}
	for _, cfg := range configs {
		if cfg.Model != wm.Name() {
			continue
		}
		if wm.UpdateConfig(cfg.Values) {
			wm.SetLinkParams(nil)
		}
	}
}

// Configs returns the stored configuration for a segment.
func (c *Coordinator) Configs(segmentID int) []ModelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configs[segmentID]
}

// Startup instantiates models for every configured segment (or the given
// subset) as the session transitions to runtime. Unknown segments and model
// names are logged and skipped; mobility models get their Startup scheduled
// on the timer queue.
func (c *Coordinator) Startup(segmentIDs ...int) {
	ctx := context.Background()

	c.mu.Lock()
	if len(segmentIDs) == 0 {
		for id := range c.configs {
			segmentIDs = append(segmentIDs, id)
		}
	}
	c.started = true
	c.mu.Unlock()

	for _, id := range segmentIDs {
		seg := c.registry.Segment(id)
		if seg == nil {
			c.log.Warn(ctx, "skipping mobility configuration for unknown segment",
				logging.Int("segment", id))
			continue
		}

		c.mu.Lock()
		configs := c.configs[id]
		c.mu.Unlock()
		if len(configs) == 0 {
			c.log.Warn(ctx, "missing mobility configuration for segment",
				logging.Int("segment", id))
			continue
		}

		for _, cfg := range configs {
			factory, ok := c.factories[cfg.Model]
			if !ok {
				c.log.Warn(ctx, "skipping configuration for unknown model",
					logging.String("model", cfg.Model),
					logging.Int("segment", id))
				continue
			}
			model, err := factory(seg, cfg.Values, ModelDeps{
				Queue:       c.queue,
				Broadcaster: c.bcast,
				Log:         c.log,
				Metrics:     c.metrics,
				Session:     c.session,
			})
			if err != nil {
				c.log.Warn(ctx, "model construction failed",
					logging.String("model", cfg.Model),
					logging.Int("segment", id),
					logging.Error(err))
				continue
			}
			c.log.Info(ctx, "mobility model attached",
				logging.String("model", cfg.Model),
				logging.Int("segment", id))
			c.install(seg, model)
		}

		if c.session.Master {
			c.installPhysNodes(seg)
		}
	}
	c.updateRunningGauge()
}

func (c *Coordinator) install(seg *Segment, model Model) {
	if wm, ok := model.(WirelessModel); ok {
		c.mu.Lock()
		c.wireless[seg.ID] = wm
		c.mu.Unlock()
		wm.SetLinkParams(nil)
		for _, ep := range seg.Endpoints() {
			wm.SetPosition(ep)
		}
	}
	if mm, ok := model.(MobilityModel); ok {
		c.mu.Lock()
		c.mobility[seg.ID] = mm
		c.mu.Unlock()
		if wpm, ok := model.(interface{ SetMovedHandler(func([]*Endpoint)) }); ok {
			wpm.SetMovedHandler(c.UpdateSegments)
		}
		c.queue.Schedule(0, mm.Startup)
	}
}

// UpdateSegments relays a moved set to every segment's wireless model so link
// recomputation happens once per tick rather than per node move.
func (c *Coordinator) UpdateSegments(moved []*Endpoint) {
	_, span := c.tracer.Start(context.Background(), "mobility.update_segments",
		oteltrace.WithAttributes(attribute.Int("moved", len(moved))))
	defer span.End()

	c.mu.Lock()
	models := make([]WirelessModel, 0, len(c.wireless))
	for _, wm := range c.wireless {
		models = append(models, wm)
	}
	c.mu.Unlock()

	for _, wm := range models {
		wm.Update(moved)
	}
}

// PositionChanged notifies the endpoint's segment model of an externally
// initiated move (e.g. a GUI drag).
func (c *Coordinator) PositionChanged(segmentID int, ep *Endpoint) {
	c.mu.Lock()
	wm := c.wireless[segmentID]
	c.mu.Unlock()
	if wm != nil {
		wm.SetPosition(ep)
	}
}

// HandleEvent dispatches a control event to a segment's mobility model. The
// name is "mobility:" followed by a comma-separated model list; entries not
// matching the installed model are logged and ignored.
func (c *Coordinator) HandleEvent(eventType EventType, segmentID int, name string) {
	ctx := context.Background()
	if !strings.HasPrefix(name, eventPrefix) {
		c.log.Warn(ctx, "ignoring non-mobility event", logging.String("name", name))
		return
	}

	c.mu.Lock()
	mm := c.mobility[segmentID]
	c.mu.Unlock()
	if mm == nil {
		c.log.Warn(ctx, "ignoring event for segment with no mobility model",
			logging.Int("segment", segmentID))
		return
	}

	for _, model := range strings.Split(strings.TrimPrefix(name, eventPrefix), ",") {
		if _, ok := c.factories[model]; !ok {
			c.log.Warn(ctx, "ignoring event for unknown model",
				logging.String("model", model))
			continue
		}
		if model != mm.Name() {
			c.log.Warn(ctx, "ignoring event for wrong model",
				logging.Int("segment", segmentID),
				logging.String("model", model),
				logging.String("installed", mm.Name()))
			continue
		}

		if eventType == EventStop || eventType == EventRestart {
			mm.Stop(true)
		}
		if eventType == EventStart || eventType == EventRestart {
			mm.Start()
		}
		if eventType == EventPause {
			mm.Pause()
		}
	}
	c.updateRunningGauge()
}

// AllLinkData aggregates link records from every wireless model, for replay
// to a newly joined observer.
func (c *Coordinator) AllLinkData() []LinkEvent {
	c.mu.Lock()
	models := make([]WirelessModel, 0, len(c.wireless))
	for _, wm := range c.wireless {
		models = append(models, wm)
	}
	c.mu.Unlock()

	var out []LinkEvent
	for _, wm := range models {
		out = append(out, wm.AllLinkData()...)
	}
	return out
}

// AddPhysicalNode records a shadow for a node hosted on another server and
// the segment it belongs to. The shadow tracks position only.
func (c *Coordinator) AddPhysicalNode(segmentID int, node *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phys[node.ID] = node
	c.physNets[segmentID] = append(c.physNets[segmentID], node.ID)
}

// UpdatePhysicalPosition records a snooped position for a physical node's
// shadow.
func (c *Coordinator) UpdatePhysicalPosition(nodeID int, x, y float64) {
	c.mu.Lock()
	node := c.phys[nodeID]
	c.mu.Unlock()
	if node == nil {
		return
	}
	node.SetPosition(PlanarPosition(x, y))
}

// installPhysNodes attaches recorded physical-node shadows to the segment
// through their tunnel endpoints and seeds their positions into the model.
func (c *Coordinator) installPhysNodes(seg *Segment) {
	ctx := context.Background()

	c.mu.Lock()
	nodeIDs := append([]int(nil), c.physNets[seg.ID]...)
	c.mu.Unlock()
	if len(nodeIDs) == 0 || c.tunnels == nil {
		return
	}

	for _, nodeID := range nodeIDs {
		c.mu.Lock()
		node := c.phys[nodeID]
		c.mu.Unlock()
		if node == nil {
			continue
		}
		ep, err := c.tunnels.Tunnel(seg.ID, nodeID)
		if err != nil {
			c.log.Warn(ctx, "no tunnel for physical node",
				logging.Int("segment", seg.ID),
				logging.Int("node", nodeID),
				logging.Error(err))
			continue
		}
		ep.Node = node
		if seg.Endpoint(ep.ID) == nil {
			if err := seg.Attach(ep); err != nil {
				c.log.Warn(ctx, "physical node attach failed",
					logging.Int("segment", seg.ID),
					logging.Int("node", nodeID),
					logging.Error(err))
				continue
			}
		}
		c.PositionChanged(seg.ID, ep)
	}
}

// updateRunningGauge publishes the number of mobility models currently in the
// running state.
func (c *Coordinator) updateRunningGauge() {
	c.mu.Lock()
	models := make([]MobilityModel, 0, len(c.mobility))
	for _, mm := range c.mobility {
		models = append(models, mm)
	}
	c.mu.Unlock()

	running := 0
	for _, mm := range models {
		if mm.State() == StateRunning {
			running++
		}
	}
	c.metrics.SetModelsRunning(running)
}
