/*
Package node keeps parameter objects in the store synchronized with their
nodes in the processing graph.

Parameter objects

An entity becomes a parameter object when it carries a component of a
registered type. Registration installs everything needed to mirror the
component in the graph: a Baseline with the last synchronized value and
an Events queue. Once per frame the Manager:

	acquires graph nodes for new parameter objects;
	makes pending connections;
	relays changes from sources to their followers;
	diffs changed values against baselines into patch events;
	flushes event queues to the graph;
	removes graph nodes of despawned objects.

Objects marked with Excluded never get a graph node and are never diffed.
They hold plain parameter data, usually as sources for followers.

Followers

A Follower component makes the entity's parameters track another entity's
parameters of the same type. Followers are single rank: a source which
follows something itself is never relayed.
*/
package node

import (
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/log"
	"github.com/pipelined/seedling/metric"
	"github.com/pipelined/seedling/param"
	"github.com/pipelined/seedling/store"
)

// Handle is the graph node of an entity. Removing it, including by
// despawning the entity, schedules removal of the node from the graph.
type Handle struct {
	ID graph.NodeID
}

// Baseline is the last synchronized value of parameters T.
type Baseline[T any] struct {
	Value T
}

// Events is the outgoing event queue of an entity. Queued events are sent
// to the entity's graph node on flush.
type Events struct {
	queue []graph.Event
}

// Push appends event to the queue.
func (e *Events) Push(ev graph.Event) {
	e.queue = append(e.queue, ev)
}

// PushCustom appends custom event with provided payload.
func (e *Events) PushCustom(v any) {
	e.queue = append(e.queue, graph.CustomEvent(v))
}

// Len returns number of queued events.
func (e *Events) Len() int {
	return len(e.queue)
}

// Queued returns a copy of queued events.
func (e *Events) Queued() []graph.Event {
	q := make([]graph.Event, len(e.queue))
	copy(q, e.queue)
	return q
}

// Excluded keeps the entity out of the graph.
type Excluded struct{}

// Follower makes entity parameters track parameters of the source.
type Follower struct {
	Source store.Entity
}

// Config carries construction config of the entity's graph node.
type Config struct {
	Value any
}

// Manager runs node systems over the store.
type Manager struct {
	store    *store.Store
	graph    graph.Graph
	log      logrus.FieldLogger
	metrics  *metric.Metrics
	types    []*system
	removals PendingRemovals
	labels   Map
}

// system holds per-type passes.
type system struct {
	name    string
	acquire func()
	follow  func()
	diff    func()
}

// Option provides a way to set functional parameters to manager.
type Option func(m *Manager)

// WithLogger sets logger to Manager. If this option is not provided,
// silent logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithMetrics sets metrics to Manager.
func WithMetrics(mt *metric.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager returns a manager which synchronizes store with graph.
func NewManager(s *store.Store, g graph.Graph, options ...Option) *Manager {
	m := &Manager{
		store:  s,
		graph:  g,
		log:    log.Silent(),
		labels: make(Map),
	}
	for _, option := range options {
		option(m)
	}
	if m.metrics == nil {
		m.metrics = metric.New(nil)
	}
	store.OnRemove[Handle](s, func(s *store.Store, e store.Entity) {
		h, _ := store.Get[Handle](s, e)
		m.removals.Push(h.ID)
		m.labels.forget(e)
	})
	return m
}

// Graph returns the graph of the manager.
func (m *Manager) Graph() graph.Graph {
	return m.graph
}

// Labels returns the label map.
func (m *Manager) Labels() Map {
	return m.labels
}

// Removals returns the pending removal set.
func (m *Manager) Removals() *PendingRemovals {
	return &m.removals
}

// Register makes T a parameter object type with automatic diffing. Adding
// T to an entity also adds Baseline[T] and Events.
func Register[T graph.Node, PT param.Params[T]](m *Manager) {
	name := reflect.TypeOf((*T)(nil)).Elem().String()
	store.OnAdd[T](m.store, func(s *store.Store, e store.Entity) {
		v, _ := store.Get[T](s, e)
		s.Insert(e, Baseline[T]{Value: *v})
		s.InsertIfNew(e, Events{})
	})
	m.types = append(m.types, &system{
		name:    name,
		acquire: acquireSystem[T](m, true),
		follow:  followSystem[T, PT](m),
		diff:    diffSystem[T, PT](m),
	})
}

// RegisterSimple makes T a node type without diffing. Entities carrying
// T acquire graph nodes and can receive events.
func RegisterSimple[T graph.Node](m *Manager) {
	store.OnAdd[T](m.store, func(s *store.Store, e store.Entity) {
		s.InsertIfNew(e, Events{})
	})
	m.types = append(m.types, &system{
		name:    reflect.TypeOf((*T)(nil)).Elem().String(),
		acquire: acquireSystem[T](m, false),
	})
}

// Sync marks current value of T as synchronized. It's used when the value
// was delivered to the graph by other means than diffing.
func Sync[T any](s *store.Store, e store.Entity) {
	v, ok := store.Get[T](s, e)
	if !ok {
		return
	}
	if b, ok := store.Get[Baseline[T]](s, e); ok {
		b.Value = *v
	}
}

// BaselineTypes returns component types added along with T by Register.
// Removing them together with T strips the parameter object.
func BaselineTypes[T any]() []reflect.Type {
	return []reflect.Type{store.TypeOf[T](), store.TypeOf[Baseline[T]]()}
}

// Acquire adds graph nodes for new parameter objects.
func (m *Manager) Acquire() {
	for _, t := range m.types {
		t.acquire()
	}
}

// Queue relays follower changes and then diffs every registered type.
func (m *Manager) Queue() {
	for _, t := range m.types {
		if t.follow != nil {
			t.follow()
		}
	}
	for _, t := range m.types {
		if t.diff != nil {
			t.diff()
		}
	}
}
