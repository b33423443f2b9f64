/*
Package engine is an in-process processing graph.

Engine is the control side, it implements graph.Graph. Processor is the
realtime side. The two communicate through a buffered channel of batches:
every Update hands over graph mutations and queued events collected since
the previous Update. The realtime side never blocks on that channel, it
drains whatever is available before processing.

Runtime state of nodes is shared memory created on the control side when
the node is added. Processors write it with atomics, the control side polls
it with NodeState.
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/log"
)

const (
	// DefaultCapacity is the default maximum number of nodes.
	DefaultCapacity = 1024
	// DefaultBacklog is the default number of batches buffered between
	// the control and realtime domains.
	DefaultBacklog = 64
)

var (
	// ErrCapacity is returned when the graph has no free node slots.
	ErrCapacity = errors.New("graph capacity exceeded")
	// ErrCycle is returned when connection would create a cycle.
	ErrCycle = errors.New("connection creates a cycle")
)

type opKind uint8

const (
	opAdd opKind = iota
	opRemove
)

// op is a graph mutation for the realtime domain.
type op struct {
	kind      opKind
	id        graph.NodeID
	processor graph.Processor
}

// batch is handed over to the realtime domain on Update. Slices of a sent
// batch are owned by the realtime domain.
type batch struct {
	ops    []op
	events []graph.NodeEvent
}

type node struct {
	id    graph.NodeID
	info  graph.Info
	state any
	outs  []graph.NodeID
}

// Engine is the control side of the graph. It's not safe for concurrent
// use.
type Engine struct {
	capacity    int
	generations []uint32
	free        []uint32
	nodes       map[uint32]*node
	pending     batch
	messages    chan batch
	paused      bool
	processor   *Processor
	log         logrus.FieldLogger
}

// Option provides a way to set functional parameters to engine.
type Option func(e *Engine)

// WithCapacity sets maximum number of nodes.
func WithCapacity(n int) Option {
	return func(e *Engine) {
		e.capacity = n
	}
}

// WithBacklog sets number of batches buffered for the realtime domain.
func WithBacklog(n int) Option {
	return func(e *Engine) {
		e.messages = make(chan batch, n)
	}
}

// WithLogger sets logger to Engine. If this option is not provided, silent
// logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates a new engine and its realtime processor.
func New(options ...Option) *Engine {
	e := &Engine{
		capacity: DefaultCapacity,
		nodes:    make(map[uint32]*node),
		log:      log.Silent(),
	}
	for _, option := range options {
		option(e)
	}
	if e.messages == nil {
		e.messages = make(chan batch, DefaultBacklog)
	}
	e.generations = make([]uint32, e.capacity)
	e.free = make([]uint32, 0, e.capacity)
	for i := e.capacity - 1; i >= 0; i-- {
		e.free = append(e.free, uint32(i))
	}
	e.processor = newProcessor(e.capacity, e.messages)
	return e
}

// Processor returns the realtime side of the engine.
func (e *Engine) Processor() *Processor {
	return e.processor
}

// Pause makes the graph refuse new nodes with graph.ErrNotReady.
func (e *Engine) Pause() {
	e.paused = true
}

// Resume makes the graph accept new nodes again.
func (e *Engine) Resume() {
	e.paused = false
}

// Len returns number of live nodes.
func (e *Engine) Len() int {
	return len(e.nodes)
}

// AddNode implements graph.Graph.
func (e *Engine) AddNode(n graph.Node, config any) (graph.NodeID, error) {
	if e.paused {
		return graph.NodeID{}, graph.ErrNotReady
	}
	if len(e.free) == 0 {
		return graph.NodeID{}, ErrCapacity
	}
	index := e.free[len(e.free)-1]
	e.free = e.free[:len(e.free)-1]
	e.generations[index]++
	id := graph.NodeID{Index: index, Generation: e.generations[index]}

	processor, state := n.Processor(config)
	e.nodes[index] = &node{
		id:    id,
		info:  n.Info(config),
		state: state,
	}
	e.pending.ops = append(e.pending.ops, op{kind: opAdd, id: id, processor: processor})
	e.log.WithField("node", id).Debugf("added %s", e.nodes[index].info.Name)
	return id, nil
}

func (e *Engine) node(id graph.NodeID) (*node, bool) {
	n, ok := e.nodes[id.Index]
	if !ok || n.id != id {
		return nil, false
	}
	return n, true
}

// RemoveNode implements graph.Graph.
func (e *Engine) RemoveNode(id graph.NodeID) error {
	if _, ok := e.node(id); !ok {
		return fmt.Errorf("remove %v: %w", id, graph.ErrNodeNotFound)
	}
	delete(e.nodes, id.Index)
	for _, n := range e.nodes {
		n.outs = without(n.outs, id)
	}
	e.free = append(e.free, id.Index)
	e.pending.ops = append(e.pending.ops, op{kind: opRemove, id: id})
	e.log.WithField("node", id).Debug("removed")
	return nil
}

// Connect implements graph.Graph.
func (e *Engine) Connect(src, dst graph.NodeID) error {
	s, ok := e.node(src)
	if !ok {
		return fmt.Errorf("connect source %v: %w", src, graph.ErrNodeNotFound)
	}
	if _, ok := e.node(dst); !ok {
		return fmt.Errorf("connect destination %v: %w", dst, graph.ErrNodeNotFound)
	}
	if src == dst || e.reaches(dst, src) {
		return fmt.Errorf("connect %v to %v: %w", src, dst, ErrCycle)
	}
	for _, out := range s.outs {
		if out == dst {
			return nil
		}
	}
	s.outs = append(s.outs, dst)
	return nil
}

// reaches returns true if there is a path from src to dst.
func (e *Engine) reaches(src, dst graph.NodeID) bool {
	visited := make(map[graph.NodeID]struct{})
	stack := []graph.NodeID{src}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == dst {
			return true
		}
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		if n, ok := e.node(id); ok {
			stack = append(stack, n.outs...)
		}
	}
	return false
}

// Outputs returns nodes the node is connected to.
func (e *Engine) Outputs(id graph.NodeID) []graph.NodeID {
	n, ok := e.node(id)
	if !ok {
		return nil
	}
	outs := make([]graph.NodeID, len(n.outs))
	copy(outs, n.outs)
	return outs
}

// Info returns description of the node.
func (e *Engine) Info(id graph.NodeID) (graph.Info, bool) {
	n, ok := e.node(id)
	if !ok {
		return graph.Info{}, false
	}
	return n.info, true
}

// QueueEvent implements graph.Graph.
func (e *Engine) QueueEvent(ev graph.NodeEvent) {
	e.pending.events = append(e.pending.events, ev)
}

// NodeState implements graph.Graph.
func (e *Engine) NodeState(id graph.NodeID) (any, bool) {
	n, ok := e.node(id)
	if !ok || n.state == nil {
		return nil, false
	}
	return n.state, true
}

// Update implements graph.Graph. If the realtime domain is lagging and the
// backlog is full, the batch is kept and sent on the next Update.
func (e *Engine) Update() error {
	if len(e.pending.ops) == 0 && len(e.pending.events) == 0 {
		return nil
	}
	select {
	case e.messages <- e.pending:
		e.pending = batch{}
	default:
		e.log.WithFields(logrus.Fields{
			"ops":    len(e.pending.ops),
			"events": len(e.pending.events),
		}).Debug("realtime backlog is full, batch deferred")
	}
	return nil
}

func without(ids []graph.NodeID, id graph.NodeID) []graph.NodeID {
	for i := range ids {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
