/*
Package store is the host object store the scheduler runs on.

Objects are entities identified by Entity. Each entity carries a set of
typed components, at most one per Go type. Components are stored by value
and handed out as pointers. Systems find entities with Query and its
filters, and mutate the store through Commands, which are applied at phase
boundaries so that no query result is invalidated while it's being walked.

Change detection

Every component slot remembers the tick of its last insertion or mutable
access. A system keeps the tick returned by Advance after its previous run
and passes it to ChangedSince to visit only the components touched since.

Hooks

OnAdd hooks fire after a component type is first added to an entity,
OnRemove hooks fire right before a component is removed, including when the
entity is despawned. Hooks usually push further commands, this is how
cascading teardown is built.
*/
package store

import (
	"reflect"
	"sort"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/log"
)

// Entity identifies an object in the store.
type Entity struct {
	xid.ID
}

// NewEntity returns a new unique entity identifier. The entity doesn't
// exist in any store until it's spawned.
func NewEntity() Entity {
	return Entity{xid.New()}
}

// Hook is called when a component is added or removed.
type Hook func(s *Store, e Entity)

// Store holds entities and their components. It's not safe for concurrent
// use, it's owned by the control domain.
type Store struct {
	tick     uint64
	seq      uint64
	entities map[Entity]*entry
	hooks    map[reflect.Type]*hooks
	commands Commands
	log      logrus.FieldLogger
}

type entry struct {
	seq        uint64
	order      []reflect.Type
	components map[reflect.Type]*slot
}

type slot struct {
	value   reflect.Value // pointer to the component
	changed uint64
}

type hooks struct {
	onAdd    []Hook
	onRemove []Hook
}

// Option provides a way to set functional parameters to store.
type Option func(s *Store)

// WithLogger sets logger to Store. If this option is not provided, silent
// logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New returns an empty store.
func New(options ...Option) *Store {
	s := &Store{
		tick:     1,
		entities: make(map[Entity]*entry),
		hooks:    make(map[reflect.Type]*hooks),
		log:      log.Silent(),
	}
	for _, option := range options {
		option(s)
	}
	s.commands.store = s
	return s
}

// TypeOf returns the component key of type T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// OnAdd registers a hook which is called after component T is added to
// an entity that didn't have it.
func OnAdd[T any](s *Store, h Hook) {
	hs := s.hooksOf(TypeOf[T]())
	hs.onAdd = append(hs.onAdd, h)
}

// OnRemove registers a hook which is called before component T is removed
// from an entity. The component is still readable inside the hook.
func OnRemove[T any](s *Store, h Hook) {
	hs := s.hooksOf(TypeOf[T]())
	hs.onRemove = append(hs.onRemove, h)
}

func (s *Store) hooksOf(t reflect.Type) *hooks {
	hs, ok := s.hooks[t]
	if !ok {
		hs = &hooks{}
		s.hooks[t] = hs
	}
	return hs
}

// Tick returns the current change tick.
func (s *Store) Tick() uint64 {
	return s.tick
}

// Advance moves the change tick forward and returns the new value. Systems
// keep it to detect changes made after their run.
func (s *Store) Advance() uint64 {
	s.tick++
	return s.tick
}

// Commands returns the command log of the store.
func (s *Store) Commands() *Commands {
	return &s.commands
}

// Logger returns the logger of the store.
func (s *Store) Logger() logrus.FieldLogger {
	return s.log
}

// Spawn creates a new entity with provided components.
func (s *Store) Spawn(components ...any) Entity {
	e := NewEntity()
	s.spawn(e, components...)
	return e
}

func (s *Store) spawn(e Entity, components ...any) {
	if _, ok := s.entities[e]; ok {
		s.Insert(e, components...)
		return
	}
	s.seq++
	s.entities[e] = &entry{
		seq:        s.seq,
		components: make(map[reflect.Type]*slot),
	}
	s.Insert(e, components...)
}

// Contains returns true if entity is alive.
func (s *Store) Contains(e Entity) bool {
	_, ok := s.entities[e]
	return ok
}

// Len returns number of alive entities.
func (s *Store) Len() int {
	return len(s.entities)
}

// Insert adds components to the entity, replacing values of the same type.
// It returns false if entity doesn't exist.
func (s *Store) Insert(e Entity, components ...any) bool {
	en, ok := s.entities[e]
	if !ok {
		return false
	}
	for _, c := range components {
		if c == nil {
			continue
		}
		v := reflect.ValueOf(c)
		t := v.Type()
		p := reflect.New(t)
		p.Elem().Set(v)
		if sl, ok := en.components[t]; ok {
			sl.value = p
			sl.changed = s.tick
			continue
		}
		en.components[t] = &slot{value: p, changed: s.tick}
		en.order = append(en.order, t)
		if hs, ok := s.hooks[t]; ok {
			for _, h := range hs.onAdd {
				h(s, e)
			}
		}
	}
	return true
}

// InsertIfNew adds component to the entity only if the entity doesn't
// carry a component of the same type yet.
func (s *Store) InsertIfNew(e Entity, component any) bool {
	en, ok := s.entities[e]
	if !ok || component == nil {
		return false
	}
	if _, ok := en.components[reflect.TypeOf(component)]; ok {
		return false
	}
	return s.Insert(e, component)
}

// Remove deletes components of provided types from the entity. Types the
// entity doesn't carry are ignored.
func (s *Store) Remove(e Entity, types ...reflect.Type) {
	en, ok := s.entities[e]
	if !ok {
		return
	}
	for _, t := range types {
		if _, ok := en.components[t]; !ok {
			continue
		}
		if hs, ok := s.hooks[t]; ok {
			for _, h := range hs.onRemove {
				h(s, e)
			}
		}
		delete(en.components, t)
		for i := range en.order {
			if en.order[i] == t {
				en.order = append(en.order[:i], en.order[i+1:]...)
				break
			}
		}
	}
}

// Despawn removes all components from the entity and deletes it. It
// returns false if entity doesn't exist.
func (s *Store) Despawn(e Entity) bool {
	en, ok := s.entities[e]
	if !ok {
		return false
	}
	types := make([]reflect.Type, len(en.order))
	copy(types, en.order)
	s.Remove(e, types...)
	delete(s.entities, e)
	return true
}

// Has returns true if entity carries a component of type t.
func (s *Store) Has(e Entity, t reflect.Type) bool {
	en, ok := s.entities[e]
	if !ok {
		return false
	}
	_, ok = en.components[t]
	return ok
}

// Components returns types of all components the entity carries, in the
// order they were added.
func (s *Store) Components(e Entity) []reflect.Type {
	en, ok := s.entities[e]
	if !ok {
		return nil
	}
	types := make([]reflect.Type, len(en.order))
	copy(types, en.order)
	return types
}

// Get returns component T of the entity. Mutating the returned value
// doesn't mark it as changed, use GetMut for that.
func Get[T any](s *Store, e Entity) (*T, bool) {
	sl, ok := s.slot(e, TypeOf[T]())
	if !ok {
		return nil, false
	}
	return sl.value.Interface().(*T), true
}

// GetMut returns component T of the entity and marks it as changed.
func GetMut[T any](s *Store, e Entity) (*T, bool) {
	sl, ok := s.slot(e, TypeOf[T]())
	if !ok {
		return nil, false
	}
	sl.changed = s.tick
	return sl.value.Interface().(*T), true
}

// Has returns true if entity carries component T.
func Has[T any](s *Store, e Entity) bool {
	return s.Has(e, TypeOf[T]())
}

// Changed returns true if component T of the entity was inserted or
// mutably accessed at or after provided tick.
func Changed[T any](s *Store, e Entity, since uint64) bool {
	sl, ok := s.slot(e, TypeOf[T]())
	return ok && sl.changed >= since
}

func (s *Store) slot(e Entity, t reflect.Type) (*slot, bool) {
	en, ok := s.entities[e]
	if !ok {
		return nil, false
	}
	sl, ok := en.components[t]
	return sl, ok
}

// Filter selects entities in Query.
type Filter func(en *entry) bool

// With selects entities which carry component T.
func With[T any]() Filter {
	t := TypeOf[T]()
	return func(en *entry) bool {
		_, ok := en.components[t]
		return ok
	}
}

// Without selects entities which don't carry component T.
func Without[T any]() Filter {
	t := TypeOf[T]()
	return func(en *entry) bool {
		_, ok := en.components[t]
		return !ok
	}
}

// ChangedSince selects entities whose component T was inserted or mutably
// accessed at or after provided tick.
func ChangedSince[T any](tick uint64) Filter {
	t := TypeOf[T]()
	return func(en *entry) bool {
		sl, ok := en.components[t]
		return ok && sl.changed >= tick
	}
}

// Query returns entities matching all filters, in spawn order. The result
// is a snapshot, mutations of the store don't affect it.
func (s *Store) Query(filters ...Filter) []Entity {
	type match struct {
		e   Entity
		seq uint64
	}
	var matches []match
next:
	for e, en := range s.entities {
		for _, f := range filters {
			if !f(en) {
				continue next
			}
		}
		matches = append(matches, match{e: e, seq: en.seq})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].seq < matches[j].seq
	})
	result := make([]Entity, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.e)
	}
	return result
}
