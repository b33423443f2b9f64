package node

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/param"
	"github.com/pipelined/seedling/store"
)

// acquireSystem returns a pass which adds graph nodes for entities of type
// T. If the graph isn't ready, the rest of entities wait for the next frame.
func acquireSystem[T graph.Node](m *Manager, baseline bool) func() {
	return func() {
		for _, e := range m.store.Query(store.With[T](), store.Without[Handle](), store.Without[Excluded]()) {
			v, _ := store.Get[T](m.store, e)
			var config any
			if c, ok := store.Get[Config](m.store, e); ok {
				config = c.Value
			}
			id, err := m.graph.AddNode(*v, config)
			if err != nil {
				if errors.Is(err, graph.ErrNotReady) {
					m.log.Debug("graph is not ready, node acquisition postponed")
					return
				}
				m.log.WithError(err).WithField("entity", e).Error("failed to add node")
				continue
			}
			// the node is created with the current value
			if baseline {
				Sync[T](m.store, e)
			}
			m.store.Insert(e, Handle{ID: id})
			if !store.Has[Connections](m.store, e) && !m.labels.isMainBus(m.store, e) {
				m.store.Insert(e, Connect(ToLabel(MainBus{})))
			}
			m.labels.record(m.store, e)
			m.metrics.NodesAcquired.Inc()
			m.log.WithFields(logrus.Fields{
				"entity": e,
				"node":   id,
			}).Debug("node acquired")
		}
	}
}

// followSystem returns a pass which relays changes of source parameters
// to followers. Sources which follow something themselves are skipped.
func followSystem[T any, PT param.Params[T]](m *Manager) func() {
	var (
		since   uint64
		patches []param.Patch
	)
	return func() {
		for _, f := range m.store.Query(store.With[Follower](), store.With[T]()) {
			link, _ := store.Get[Follower](m.store, f)
			src, ok := store.Get[T](m.store, link.Source)
			if !ok {
				continue
			}
			if store.Has[Follower](m.store, link.Source) {
				continue
			}
			if !store.Changed[T](m.store, link.Source, since) && !store.Changed[Follower](m.store, f, since) {
				continue
			}
			dst, _ := store.Get[T](m.store, f)
			patches = patches[:0]
			PT(src).Diff(*dst, nil, &patches)
			if len(patches) == 0 {
				continue
			}
			dst, _ = store.GetMut[T](m.store, f)
			param.PatchAll(PT(dst), patches)
		}
		since = m.store.Advance()
	}
}

// diffSystem returns a pass which turns changes of T into patch events.
// Baselines are patched with the same patches, so an unchanged value
// produces no events on the next pass.
func diffSystem[T any, PT param.Params[T]](m *Manager) func() {
	var (
		since   uint64
		patches []param.Patch
	)
	return func() {
		for _, e := range m.store.Query(
			store.With[Handle](),
			store.Without[Excluded](),
			store.ChangedSince[T](since),
		) {
			v, _ := store.Get[T](m.store, e)
			b, ok := store.Get[Baseline[T]](m.store, e)
			if !ok {
				continue
			}
			events, ok := store.Get[Events](m.store, e)
			if !ok {
				continue
			}
			patches = patches[:0]
			PT(v).Diff(b.Value, nil, &patches)
			for _, p := range patches {
				events.Push(graph.PatchEvent(p))
				PT(&b.Value).Patch(p)
			}
		}
		since = m.store.Advance()
	}
}

// FlushEvents sends queued events of all nodes to the graph.
func (m *Manager) FlushEvents() int {
	n := 0
	for _, e := range m.store.Query(store.With[Handle](), store.With[Events]()) {
		h, _ := store.Get[Handle](m.store, e)
		events, _ := store.Get[Events](m.store, e)
		for _, ev := range events.queue {
			m.graph.QueueEvent(graph.NodeEvent{Node: h.ID, Event: ev})
		}
		n += len(events.queue)
		events.queue = nil
	}
	m.metrics.EventsFlushed.Add(float64(n))
	return n
}

// FlushRemovals removes nodes of despawned entities from the graph. Nodes
// which fail to be removed are logged and dropped from the pending set.
func (m *Manager) FlushRemovals() error {
	var errs removalErrors
	for _, id := range m.removals.drain() {
		if err := m.graph.RemoveNode(id); err != nil {
			m.log.WithError(err).WithField("node", id).Error("failed to remove node")
			m.metrics.RemovalFailures.Inc()
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

// PendingRemovals is a set of graph nodes scheduled for removal.
type PendingRemovals struct {
	ids []graph.NodeID
}

// Push schedules node for removal.
func (r *PendingRemovals) Push(id graph.NodeID) {
	r.ids = append(r.ids, id)
}

// Len returns number of pending removals.
func (r *PendingRemovals) Len() int {
	return len(r.ids)
}

func (r *PendingRemovals) drain() []graph.NodeID {
	ids := r.ids
	r.ids = nil
	return ids
}
