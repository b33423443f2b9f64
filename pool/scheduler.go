package pool

import (
	"cmp"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/log"
	"github.com/pipelined/seedling/metric"
	"github.com/pipelined/seedling/node"
	"github.com/pipelined/seedling/nodes"
	"github.com/pipelined/seedling/sample"
	"github.com/pipelined/seedling/store"
)

// Assets resolves samples of playback requests.
type Assets interface {
	Get(h sample.Handle) (*sample.Sample, bool)
}

// Scheduler assigns playback requests to pool workers.
type Scheduler struct {
	store      *store.Store
	graph      graph.Graph
	assets     Assets
	log        logrus.FieldLogger
	metrics    *metric.Metrics
	dynamic    *Range
	registries map[string]Interned
}

// Option provides a way to set functional parameters to scheduler.
type Option func(s *Scheduler)

// WithLogger sets logger to Scheduler. If this option is not provided,
// silent logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithMetrics sets metrics to Scheduler.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithDynamicRange enables dynamic pools with provided size. Dynamic pools
// are disabled if range is nil.
func WithDynamicRange(r *Range) Option {
	return func(s *Scheduler) {
		s.dynamic = r
	}
}

// NewScheduler returns scheduler of pools in the store.
func NewScheduler(s *store.Store, g graph.Graph, assets Assets, options ...Option) *Scheduler {
	sch := &Scheduler{
		store:      s,
		graph:      g,
		assets:     assets,
		log:        log.Silent(),
		registries: make(map[string]Interned),
	}
	for _, option := range options {
		option(sch)
	}
	if sch.metrics == nil {
		sch.metrics = metric.New(nil)
	}
	// the bus marker goes before the rest of the pool components
	store.OnRemove[Bus](s, sch.interrupt)
	Register(s)
	return sch
}

// interrupt completes requests played by workers of a removed pool.
func (s *Scheduler) interrupt(st *store.Store, bus store.Entity) {
	samplers, ok := store.Get[Samplers](st, bus)
	if !ok {
		return
	}
	for _, worker := range samplers.Workers {
		active, ok := store.Get[Active](st, worker)
		if !ok {
			continue
		}
		s.log.WithFields(logrus.Fields{
			"worker":  worker,
			"request": active.Request,
		}).Debug("pool removed, playback interrupted")
		s.complete(worker, active.Request)
	}
}

// Register installs hooks which cascade pool teardown: removing the
// samplers of a bus despawns its workers, removing the effects chain of a
// worker despawns its effects.
func Register(s *store.Store) {
	store.OnRemove[Samplers](s, func(s *store.Store, e store.Entity) {
		samplers, _ := store.Get[Samplers](s, e)
		workers := samplers.Workers
		samplers.Workers = nil
		for _, w := range workers {
			s.Commands().Despawn(w)
		}
	})
	store.OnRemove[EffectsChain](s, func(s *store.Store, e store.Entity) {
		chain, _ := store.Get[EffectsChain](s, e)
		effects := chain.Effects
		chain.Effects = nil
		for _, effect := range effects {
			s.Commands().Despawn(effect)
		}
	})
}

// Schedule runs scheduling passes of a frame. Store commands are applied
// between passes.
func (s *Scheduler) Schedule() {
	s.RemoveFinished()
	s.store.Apply()
	s.AssignDefault()
	s.store.Apply()
	s.Provision()
	s.store.Apply()
	s.Rank()
	s.Assign()
	s.store.Apply()
}

// buses returns pool buses by label.
func (s *Scheduler) buses() map[Interned]store.Entity {
	buses := make(map[Interned]store.Entity)
	for _, bus := range s.store.Query(store.With[Bus](), store.With[Label]()) {
		l, _ := store.Get[Label](s.store, bus)
		buses[l.ID] = bus
	}
	return buses
}

// Rank recomputes candidates of every pool. Workers without a node or
// runtime state are left out.
func (s *Scheduler) Rank() {
	for _, bus := range s.store.Query(store.With[Bus](), store.With[Rank](), store.With[Samplers]()) {
		rank, _ := store.Get[Rank](s.store, bus)
		samplers, _ := store.Get[Samplers](s.store, bus)
		rank.entries = rank.entries[:0]
		for _, w := range samplers.Workers {
			state, ok := s.state(w)
			if !ok {
				continue
			}
			rank.entries = append(rank.entries, Ranked{Worker: w, Score: state.WorkerScore()})
		}
		rank.ranked = len(rank.entries)
		slices.SortStableFunc(rank.entries, func(a, b Ranked) int {
			return cmp.Compare(b.Score, a.Score)
		})
		if l, ok := store.Get[Label](s.store, bus); ok {
			s.metrics.Workers.WithLabelValues(l.ID.String()).Set(float64(len(samplers.Workers)))
		}
	}
}

func (s *Scheduler) state(worker store.Entity) (*nodes.SamplerState, bool) {
	h, ok := store.Get[node.Handle](s.store, worker)
	if !ok {
		return nil, false
	}
	return graph.StateOf[*nodes.SamplerState](s.graph, h.ID)
}

// Assign assigns queued requests to the best ranked workers of their
// pools. If a pool has no idle candidates left, it grows and the request
// waits for the next frame. Busy workers are interrupted only when the pool
// can't grow anymore.
func (s *Scheduler) Assign() {
	buses := s.buses()
	queued := s.store.Query(
		store.With[sample.Queued](),
		store.With[sample.Player](),
		store.With[Label](),
	)
	s.metrics.Queued.Set(float64(len(queued)))
	for _, request := range queued {
		player, _ := store.Get[sample.Player](s.store, request)
		asset, ok := s.assets.Get(player.Sample)
		if !ok {
			continue
		}
		label, _ := store.Get[Label](s.store, request)
		bus, ok := buses[label.ID]
		if !ok {
			continue
		}
		rank, _ := store.Get[Rank](s.store, bus)
		top, ok := rank.peek()
		if !ok || top.Score != nodes.IdleScore {
			if s.grow(bus, rank, label) || !ok {
				continue
			}
		}
		rank.pop()
		s.assign(request, top, bus, asset, label)
	}
}

func (s *Scheduler) assign(request store.Entity, top Ranked, bus store.Entity, asset *sample.Sample, label *Label) {
	cmds := s.store.Commands()
	worker := top.Worker
	state, ok := s.state(worker)
	if !ok {
		return
	}
	if active, ok := store.Get[Active](s.store, worker); ok {
		s.log.WithFields(logrus.Fields{
			"pool":    label.ID,
			"worker":  worker,
			"request": active.Request,
		}).Debug("playback interrupted")
		s.metrics.Steals.WithLabelValues(label.ID.String()).Inc()
		s.complete(worker, active.Request)
	}

	settings := sample.DefaultSettings()
	if st, ok := store.Get[sample.Settings](s.store, request); ok {
		settings = *st
	}
	params, _ := store.GetMut[nodes.Sampler](s.store, worker)
	params.Set(asset, settings)
	events, _ := store.Get[node.Events](s.store, worker)
	events.Push(nodes.PlayEvent(state, *params))
	// parameters are delivered with the play event
	node.Sync[nodes.Sampler](s.store, worker)

	if chain, ok := store.Get[EffectsChain](s.store, worker); ok {
		for _, effect := range chain.Effects {
			cmds.Insert(effect, node.Follower{Source: request})
		}
	}
	if defaults, ok := store.Get[Defaults](s.store, bus); ok {
		for _, d := range *defaults {
			d.InsertDefault(cmds, request)
		}
	}
	cmds.Remove(request, store.TypeOf[sample.Queued]())
	cmds.Insert(worker, Active{Request: request})
	s.metrics.Assignments.WithLabelValues(label.ID.String()).Inc()
	s.log.WithFields(logrus.Fields{
		"pool":    label.ID,
		"worker":  worker,
		"request": request,
	}).Debug("request assigned")
}

// grow doubles the pool without exceeding its maximum size. It returns
// true if the pool has new workers which are not in the graph yet.
func (s *Scheduler) grow(bus store.Entity, rank *Rank, label *Label) bool {
	samplers, _ := store.Get[Samplers](s.store, bus)
	size, _ := store.Get[Range](s.store, bus)
	defaults, _ := store.Get[Defaults](s.store, bus)
	if samplers == nil || size == nil {
		return false
	}
	current := len(samplers.Workers)
	if rank.ranked < current {
		return true
	}
	if current >= size.Max {
		return false
	}
	next := min(max(current*2, 1), size.Max)
	var template Defaults
	if defaults != nil {
		template = *defaults
	}
	for i := current; i < next; i++ {
		samplers.Workers = append(samplers.Workers, spawnChain(s.store.Commands(), bus, *label, template))
	}
	s.metrics.Growths.WithLabelValues(label.ID.String()).Inc()
	s.log.WithFields(logrus.Fields{
		"pool": label.ID,
		"from": current,
		"to":   next,
	}).Debug("pool grown")
	return true
}

// RemoveFinished reclaims workers which are done playing and applies
// completion policies of their requests. Paused workers are still playing.
func (s *Scheduler) RemoveFinished() {
	for _, worker := range s.store.Query(store.With[Active](), store.With[node.Handle]()) {
		state, ok := s.state(worker)
		if !ok || state.Playing() {
			continue
		}
		active, _ := store.Get[Active](s.store, worker)
		s.complete(worker, active.Request)
	}
}

// complete releases the worker and applies completion policy of the
// request.
func (s *Scheduler) complete(worker, request store.Entity) {
	cmds := s.store.Commands()
	s.release(worker)

	settings, ok := store.Get[sample.Settings](s.store, request)
	if !ok {
		return
	}
	pool := "unknown"
	if l, ok := store.Get[Label](s.store, request); ok {
		pool = l.ID.String()
	}
	s.metrics.Completed.WithLabelValues(pool, settings.OnComplete.String()).Inc()
	switch settings.OnComplete {
	case sample.Preserve:
	case sample.Remove:
		if root, ok := store.Get[Root](s.store, worker); ok {
			if defaults, ok := store.Get[Defaults](s.store, root.Bus); ok {
				for _, d := range *defaults {
					d.Remove(cmds, request)
				}
			}
		}
		if defaults, ok := store.Get[Defaults](s.store, request); ok {
			for _, d := range *defaults {
				d.Remove(cmds, request)
			}
		}
		cmds.Remove(request,
			store.TypeOf[Defaults](),
			store.TypeOf[Registry](),
			store.TypeOf[Label](),
			store.TypeOf[sample.Player](),
			store.TypeOf[sample.Settings](),
			store.TypeOf[sample.Queued](),
			store.TypeOf[node.Events](),
		)
	case sample.Despawn:
		cmds.Despawn(request)
	}
}

// release clears the worker assignment and stops its effects from
// following the request.
func (s *Scheduler) release(worker store.Entity) {
	cmds := s.store.Commands()
	cmds.Remove(worker, store.TypeOf[Active]())
	if chain, ok := store.Get[EffectsChain](s.store, worker); ok {
		for _, effect := range chain.Effects {
			cmds.Remove(effect, store.TypeOf[node.Follower]())
		}
	}
}

// MonitorActive stops workers whose requests are gone.
func (s *Scheduler) MonitorActive() {
	for _, worker := range s.store.Query(store.With[Active](), store.With[node.Events]()) {
		active, _ := store.Get[Active](s.store, worker)
		if store.Has[sample.Player](s.store, active.Request) {
			continue
		}
		events, _ := store.Get[node.Events](s.store, worker)
		events.Push(graph.SequenceEvent(graph.SequenceStop))
		s.release(worker)
		s.log.WithFields(logrus.Fields{
			"worker":  worker,
			"request": active.Request,
		}).Debug("request is gone, worker stopped")
	}
}

// AssignDefault labels requests without label and effects for the default
// pool.
func (s *Scheduler) AssignDefault() {
	cmds := s.store.Commands()
	for _, request := range s.store.Query(
		store.With[sample.Player](),
		store.Without[Label](),
		store.Without[Registry](),
	) {
		cmds.Insert(request, LabelOf(DefaultPool{}))
	}
}

// Provision routes requests with effects to dynamic pools of their effect
// sets, spawning a pool on the first request of a set. Nothing is routed
// if dynamic pools are disabled.
func (s *Scheduler) Provision() {
	if s.dynamic == nil {
		return
	}
	buses := s.buses()
	cmds := s.store.Commands()
	for _, request := range s.store.Query(
		store.With[sample.Queued](),
		store.With[sample.Player](),
		store.With[Registry](),
		store.Without[Label](),
	) {
		registry, _ := store.Get[Registry](s.store, request)
		key := registry.Key()
		id, ok := s.registries[key]
		if !ok {
			id = Intern(Dynamic(len(s.registries)))
			s.registries[key] = id
		}
		if _, ok := buses[id]; !ok {
			var defaults Defaults
			if d, ok := store.Get[Defaults](s.store, request); ok {
				defaults = slices.Clone(*d)
			}
			buses[id] = spawn(cmds, id.Label(), *s.dynamic, defaults)
			s.log.WithFields(logrus.Fields{
				"pool":    id,
				"effects": key,
			}).Debug("dynamic pool spawned")
		}
		cmds.Insert(request, Label{ID: id})
	}
}
