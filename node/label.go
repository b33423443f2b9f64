package node

import (
	"github.com/pipelined/seedling/store"
)

// MainBus labels the node which receives output of every node without
// explicit connections.
type MainBus struct{}

// Labels component names the entity. Label values must be comparable.
type Labels []any

// Map resolves labels to entities which carry them.
type Map map[any]store.Entity

// Get returns entity with the label.
func (m Map) Get(label any) (store.Entity, bool) {
	e, ok := m[label]
	return e, ok
}

func (m Map) record(s *store.Store, e store.Entity) {
	labels, ok := store.Get[Labels](s, e)
	if !ok {
		return
	}
	for _, l := range *labels {
		m[l] = e
	}
}

func (m Map) forget(e store.Entity) {
	for l, le := range m {
		if le == e {
			delete(m, l)
		}
	}
}

func (m Map) isMainBus(s *store.Store, e store.Entity) bool {
	labels, ok := store.Get[Labels](s, e)
	if !ok {
		return false
	}
	for _, l := range *labels {
		if l == (MainBus{}) {
			return true
		}
	}
	return false
}
