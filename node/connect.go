package node

import (
	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/store"
)

// Target is a connection destination, either an entity or a label.
type Target struct {
	Entity store.Entity
	Label  any
}

// To returns target entity.
func To(e store.Entity) Target {
	return Target{Entity: e}
}

// ToLabel returns target resolved by the label.
func ToLabel(label any) Target {
	return Target{Label: label}
}

// Connections are outgoing connections of the entity's node. Targets are
// connected as soon as both ends have graph nodes. Entities without
// Connections are connected to the main bus when their node is acquired.
type Connections struct {
	Targets []Target
}

// Connect returns connections to provided targets.
func Connect(targets ...Target) Connections {
	return Connections{Targets: targets}
}

// Connect makes pending connections. Targets which aren't in the graph yet
// are retried on the next frame, targets which don't exist are dropped.
func (m *Manager) Connect() {
	for _, e := range m.store.Query(store.With[Handle](), store.With[Connections]()) {
		c, _ := store.Get[Connections](m.store, e)
		if len(c.Targets) == 0 {
			continue
		}
		src, _ := store.Get[Handle](m.store, e)
		pending := c.Targets[:0]
		for _, t := range c.Targets {
			dst, ok := m.resolve(t)
			if !ok {
				pending = append(pending, t)
				continue
			}
			if dst.IsNil() {
				m.log.WithField("entity", e).Warn("connection target doesn't exist")
				continue
			}
			h, ok := store.Get[Handle](m.store, dst)
			if !ok {
				pending = append(pending, t)
				continue
			}
			if err := m.graph.Connect(src.ID, h.ID); err != nil {
				m.log.WithError(err).WithFields(logrus.Fields{
					"source":      e,
					"destination": dst,
				}).Error("failed to connect nodes")
			}
		}
		c.Targets = pending
	}
}

// resolve returns target entity. It returns false if a label isn't known
// yet and nil entity if the target entity doesn't exist.
func (m *Manager) resolve(t Target) (store.Entity, bool) {
	if t.Label != nil {
		return m.labels.Get(t.Label)
	}
	if !m.store.Contains(t.Entity) {
		return store.Entity{}, true
	}
	return t.Entity, true
}
