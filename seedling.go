package seedling

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/config"
	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/log"
	"github.com/pipelined/seedling/metric"
	"github.com/pipelined/seedling/node"
	"github.com/pipelined/seedling/nodes"
	"github.com/pipelined/seedling/param"
	"github.com/pipelined/seedling/pool"
	"github.com/pipelined/seedling/sample"
	"github.com/pipelined/seedling/store"
)

// Context owns the store of a graph and runs its frames.
type Context struct {
	store     *store.Store
	graph     graph.Graph
	assets    *sample.Assets
	nodes     *node.Manager
	scheduler *pool.Scheduler
	metrics   *metric.Metrics
	log       logrus.FieldLogger
	mainBus   store.Entity
	frame     uint64

	registerer  prometheus.Registerer
	defaultPool *pool.Range
	dynamic     *pool.Range
	pools       []*pool.Builder
	config      []config.Pool
}

// New creates a context of the graph. Built-in node types are registered
// and the main bus is spawned. Default and dynamic pools are sized 4 to 32
// workers unless options say otherwise.
func New(g graph.Graph, assets *sample.Assets, options ...Option) (*Context, error) {
	c := &Context{
		graph:       g,
		assets:      assets,
		log:         log.Silent(),
		defaultPool: &pool.Range{Min: 4, Max: 32},
		dynamic:     &pool.Range{Min: 4, Max: 32},
	}
	for _, option := range options {
		option(c)
	}
	for _, p := range c.config {
		b, err := builderOf(p)
		if err != nil {
			return nil, err
		}
		c.pools = append(c.pools, b)
	}

	c.metrics = metric.New(c.registerer)
	c.store = store.New(store.WithLogger(c.log))
	c.nodes = node.NewManager(c.store, g,
		node.WithLogger(c.log),
		node.WithMetrics(c.metrics),
	)
	node.Register[nodes.Volume](c.nodes)
	node.Register[nodes.Sampler](c.nodes)
	node.Register[nodes.LowPass](c.nodes)
	node.Register[nodes.BandPass](c.nodes)
	node.Register[nodes.Spatial](c.nodes)
	sample.Register(c.store)
	c.scheduler = pool.NewScheduler(c.store, g, assets,
		pool.WithLogger(c.log),
		pool.WithMetrics(c.metrics),
		pool.WithDynamicRange(c.dynamic),
	)

	c.mainBus = c.store.Spawn(nodes.Unity(), node.Labels{node.MainBus{}})
	cmds := c.store.Commands()
	if c.defaultPool != nil {
		pool.New(pool.DefaultPool{}, *c.defaultPool).Spawn(cmds)
	}
	for _, b := range c.pools {
		b.Spawn(cmds)
	}
	c.store.Apply()
	return c, nil
}

// Register adds parameter node type to the context.
func Register[T graph.Node, PT param.Params[T]](c *Context) {
	node.Register[T, PT](c.nodes)
}

// Store returns the store of the context.
func (c *Context) Store() *store.Store {
	return c.store
}

// Commands returns deferred commands of the store. They're applied at the
// start of the next frame.
func (c *Context) Commands() *store.Commands {
	return c.store.Commands()
}

// Graph returns the graph of the context.
func (c *Context) Graph() graph.Graph {
	return c.graph
}

// Assets returns the sample assets.
func (c *Context) Assets() *sample.Assets {
	return c.assets
}

// Nodes returns the node manager.
func (c *Context) Nodes() *node.Manager {
	return c.nodes
}

// MainBus returns the entity every node is connected to by default.
func (c *Context) MainBus() store.Entity {
	return c.mainBus
}

// Frame returns number of completed frames.
func (c *Context) Frame() uint64 {
	return c.frame
}

// Play spawns playback request of the sample. Components are added to the
// request, so settings, label or parameters of the request can be set
// right away.
func (c *Context) Play(h sample.Handle, components ...any) store.Entity {
	return c.store.Spawn(append([]any{sample.Player{Sample: h}}, components...)...)
}

// Playing returns number of requests with playback in progress or
// waiting for a worker. Requests kept after completion are not counted.
func (c *Context) Playing() int {
	n := len(c.store.Query(store.With[sample.Queued](), store.With[sample.Player]()))
	for _, worker := range c.store.Query(store.With[pool.Active]()) {
		active, _ := store.Get[pool.Active](c.store, worker)
		if store.Has[sample.Player](c.store, active.Request) {
			n++
		}
	}
	return n
}

// Update runs a single frame. Failures of node removal and graph update
// are returned, the frame is completed anyway.
func (c *Context) Update() error {
	timer := prometheus.NewTimer(c.metrics.UpdateDuration)
	defer timer.ObserveDuration()

	c.store.Apply()
	c.nodes.Acquire()
	c.store.Apply()
	c.nodes.Connect()
	c.store.Apply()
	c.scheduler.Schedule()
	c.nodes.Queue()
	c.store.Apply()
	c.scheduler.MonitorActive()
	c.store.Apply()

	var errs frameErrors
	events := c.nodes.FlushEvents()
	if err := c.nodes.FlushRemovals(); err != nil {
		errs = append(errs, fmt.Errorf("flush removals: %w", err))
	}
	if err := c.graph.Update(); err != nil {
		errs = append(errs, fmt.Errorf("update graph: %w", err))
	}
	c.frame++
	c.log.WithFields(logrus.Fields{
		"frame":  c.frame,
		"events": events,
	}).Trace("frame updated")
	return errs.ret()
}
