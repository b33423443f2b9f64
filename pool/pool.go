/*
Package pool provides sampler pools, the primary playback mechanism.

A pool is a bus node and a set of worker chains. Every chain is a sampler
node followed by the pool's effects in series, its last effect is
connected to the bus:

	sampler -> effect -> ... -> effect -> bus -> main bus

Pools are spawned with Builder under a label. Playback requests carrying
the same label are assigned to the pool's workers by the Scheduler. While a
request is playing, the worker's effects follow effect parameters of the
request, so changing an effect on the request changes it in the graph.

Requests with effects and without a label are routed to dynamic pools,
one pool per unordered set of effect types. Requests without effects and
label are played by the DefaultPool.
*/
package pool

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/pipelined/seedling/node"
	"github.com/pipelined/seedling/nodes"
	"github.com/pipelined/seedling/store"
)

// Range bounds the number of worker chains of a pool. Pools are spawned
// with Min chains and grow on demand up to Max.
type Range struct {
	Min int
	Max int
}

// Fixed returns range of a pool which never grows.
func Fixed(n int) Range {
	return Range{Min: n, Max: n}
}

// Applier manages one effect type of a pool. Pools keep appliers of their
// effects, so effects of any type are handled the same way.
type Applier interface {
	// Type returns the effect component type.
	Type() reflect.Type
	// Spawn queues a new effect node with the default value.
	Spawn(cmds *store.Commands, components ...any) store.Entity
	// InsertDefault queues insertion of the default value if the entity
	// doesn't carry the effect yet.
	InsertDefault(cmds *store.Commands, e store.Entity)
	// Remove queues removal of the effect and its baseline.
	Remove(cmds *store.Commands, e store.Entity)
}

type defaultOf[T any] struct {
	value T
}

// EffectOf returns applier of the effect with provided default value. T
// must be registered as a node type.
func EffectOf[T any](value T) Applier {
	return &defaultOf[T]{value: value}
}

func (d *defaultOf[T]) Type() reflect.Type {
	return store.TypeOf[T]()
}

func (d *defaultOf[T]) Spawn(cmds *store.Commands, components ...any) store.Entity {
	return cmds.Spawn(append(components, d.value)...)
}

func (d *defaultOf[T]) InsertDefault(cmds *store.Commands, e store.Entity) {
	cmds.InsertIfNew(e, d.value)
}

func (d *defaultOf[T]) Remove(cmds *store.Commands, e store.Entity) {
	cmds.Remove(e, node.BaselineTypes[T]()...)
}

// Defaults are effects of a pool, in chain order. Requests carry defaults
// of the effects they were given.
type Defaults []Applier

// Registry is the set of effect types requested for dynamic pools.
type Registry struct {
	types []reflect.Type
}

// Insert adds effect type. It returns false if the type is already in the
// registry.
func (r *Registry) Insert(t reflect.Type) bool {
	if slices.Contains(r.types, t) {
		return false
	}
	r.types = append(r.types, t)
	return true
}

// Len returns number of effect types.
func (r *Registry) Len() int {
	return len(r.types)
}

// Key returns identity of the effect set. Registries with the same types
// have the same key regardless of insertion order.
func (r *Registry) Key() string {
	names := make([]string, 0, len(r.types))
	for _, t := range r.types {
		if t.Name() == "" {
			names = append(names, t.String())
			continue
		}
		names = append(names, t.PkgPath()+"."+t.Name())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Effect adds effect to the playback request. The request is routed to a
// dynamic pool of its effect set unless it's labeled. Effects are chained
// in the order they're added.
func Effect[T any](s *store.Store, request store.Entity, value T) {
	s.Insert(request, value)
	s.InsertIfNew(request, Registry{})
	s.InsertIfNew(request, Defaults(nil))
	r, _ := store.Get[Registry](s, request)
	if !r.Insert(store.TypeOf[T]()) {
		return
	}
	d, _ := store.Get[Defaults](s, request)
	*d = append(*d, EffectOf(value))
}

// Bus marks the pool bus.
type Bus struct{}

// Member marks nodes which belong to a pool.
type Member struct{}

// Root points a worker to the bus of its pool.
type Root struct {
	Bus store.Entity
}

// Samplers are the pool workers. Removing them despawns every worker.
type Samplers struct {
	Workers []store.Entity
}

// EffectsChain are effect nodes of a worker. Removing them despawns every
// effect.
type EffectsChain struct {
	Effects []store.Entity
}

// Active binds a worker to the request it plays.
type Active struct {
	Request store.Entity
}

// Ranked is a worker and its score.
type Ranked struct {
	Worker store.Entity
	Score  uint64
}

// Rank is the pool's worker candidates in descending score order. It's
// recomputed every frame.
type Rank struct {
	entries []Ranked
	ranked  int
}

// Entries returns copy of the ranked candidates.
func (r *Rank) Entries() []Ranked {
	return slices.Clone(r.entries)
}

func (r *Rank) peek() (Ranked, bool) {
	if len(r.entries) == 0 {
		return Ranked{}, false
	}
	return r.entries[0], true
}

func (r *Rank) pop() {
	r.entries = r.entries[1:]
}

// Builder configures a pool.
type Builder struct {
	label    any
	size     Range
	defaults Defaults
}

// New returns builder of a pool with provided label and size.
func New(label any, size Range) *Builder {
	if size.Max < size.Min {
		size.Max = size.Min
	}
	return &Builder{
		label: label,
		size:  size,
	}
}

// Effect appends effect to worker chains of the pool.
func (b *Builder) Effect(a Applier) *Builder {
	b.defaults = append(b.defaults, a)
	return b
}

// Spawn queues creation of the pool and returns its bus. A pool with the
// same label is despawned first.
func (b *Builder) Spawn(cmds *store.Commands) store.Entity {
	return spawn(cmds, b.label, b.size, slices.Clone(b.defaults))
}

func spawn(cmds *store.Commands, label any, size Range, defaults Defaults) store.Entity {
	Despawn(cmds, label)
	l := LabelOf(label)
	bus := cmds.Spawn(
		nodes.Unity(),
		Bus{},
		Member{},
		l,
		Rank{},
		size,
		defaults,
	)
	workers := make([]store.Entity, 0, size.Min)
	for i := 0; i < size.Min; i++ {
		workers = append(workers, spawnChain(cmds, bus, l, defaults))
	}
	cmds.Insert(bus, Samplers{Workers: workers})
	return bus
}

// spawnChain queues a worker with its effects connected in series into
// the bus.
func spawnChain(cmds *store.Commands, bus store.Entity, label Label, defaults Defaults) store.Entity {
	effects := make([]store.Entity, 0, len(defaults))
	for _, d := range defaults {
		effects = append(effects, d.Spawn(cmds, Member{}, label))
	}
	chain := append(slices.Clone(effects), bus)
	worker := cmds.Spawn(
		nodes.Sampler{},
		Member{},
		label,
		EffectsChain{Effects: effects},
		Root{Bus: bus},
		node.Connect(node.To(chain[0])),
	)
	for i := 0; i+1 < len(chain); i++ {
		cmds.Insert(chain[i], node.Connect(node.To(chain[i+1])))
	}
	return worker
}

// Despawn queues removal of pools with provided label. Every worker chain
// is despawned with the bus.
func Despawn(cmds *store.Commands, label any) {
	interned := Intern(label)
	cmds.Push(func(s *store.Store) {
		for _, bus := range s.Query(store.With[Bus](), store.With[Label]()) {
			if l, _ := store.Get[Label](s, bus); l.ID == interned {
				s.Despawn(bus)
			}
		}
	})
}
