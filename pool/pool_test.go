package pool_test

import (
	"reflect"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/seedling/engine"
	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/log"
	"github.com/pipelined/seedling/node"
	"github.com/pipelined/seedling/nodes"
	"github.com/pipelined/seedling/pool"
	"github.com/pipelined/seedling/sample"
	"github.com/pipelined/seedling/store"
)

type harness struct {
	t      *testing.T
	store  *store.Store
	engine *engine.Engine
	proc   *engine.Processor
	nodes  *node.Manager
	sched  *pool.Scheduler
	sample sample.Handle
}

func newHarness(t *testing.T, frames int, options ...pool.Option) *harness {
	s := store.New()
	e := engine.New()
	m := node.NewManager(s, e)
	node.Register[nodes.Volume](m)
	node.Register[nodes.Sampler](m)
	node.Register[nodes.LowPass](m)
	node.Register[nodes.BandPass](m)
	node.Register[nodes.Spatial](m)
	sample.Register(s)
	assets := sample.NewAssets(log.Silent())
	h := &harness{
		t:      t,
		store:  s,
		engine: e,
		proc:   e.Processor(),
		nodes:  m,
		sched:  pool.NewScheduler(s, e, assets, options...),
		sample: assets.Insert(&sample.Sample{
			Buffer: &audio.FloatBuffer{
				Format: &audio.Format{NumChannels: 1, SampleRate: 48000},
				Data:   make([]float64, frames),
			},
		}),
	}
	s.Spawn(nodes.Unity(), node.Labels{node.MainBus{}})
	h.frame()
	return h
}

func (h *harness) frame() {
	h.t.Helper()
	h.store.Apply()
	h.nodes.Acquire()
	h.store.Apply()
	h.nodes.Connect()
	h.store.Apply()
	h.sched.Schedule()
	h.nodes.Queue()
	h.store.Apply()
	h.sched.MonitorActive()
	h.store.Apply()
	h.nodes.FlushEvents()
	require.NoError(h.t, h.nodes.FlushRemovals())
	require.NoError(h.t, h.engine.Update())
}

func (h *harness) request(components ...any) store.Entity {
	return h.store.Spawn(append([]any{sample.Player{Sample: h.sample}}, components...)...)
}

func (h *harness) handle(e store.Entity) graph.NodeID {
	h.t.Helper()
	hd, ok := store.Get[node.Handle](h.store, e)
	require.True(h.t, ok, "entity has no node")
	return hd.ID
}

func (h *harness) bus(label any) store.Entity {
	h.t.Helper()
	for _, bus := range h.store.Query(store.With[pool.Bus]()) {
		if l, _ := store.Get[pool.Label](h.store, bus); l.ID == pool.Intern(label) {
			return bus
		}
	}
	h.t.Fatalf("pool %v not found", label)
	return store.Entity{}
}

func (h *harness) workers(label any) []store.Entity {
	h.t.Helper()
	samplers, ok := store.Get[pool.Samplers](h.store, h.bus(label))
	require.True(h.t, ok)
	return samplers.Workers
}

func (h *harness) queued() int {
	return len(h.store.Query(store.With[sample.Queued]()))
}

type marker struct{}

func TestFixedPool(t *testing.T) {
	h := newHarness(t, 10)
	require.Equal(t, 1, h.engine.Len())

	pool.New("P", pool.Fixed(4)).Effect(pool.EffectOf(nodes.DefaultLowPass())).Spawn(h.store.Commands())
	pool.New("Q", pool.Fixed(1)).Spawn(h.store.Commands())
	h.frame()
	// 4 samplers, 4 effects, 2 pool buses, main bus, 1 sampler of Q
	assert.Equal(t, 12, h.engine.Len())

	main, _ := h.nodes.Labels().Get(node.MainBus{})
	bus := h.bus("P")
	assert.Equal(t, []graph.NodeID{h.handle(main)}, h.engine.Outputs(h.handle(bus)))
	for _, w := range h.workers("P") {
		chain, ok := store.Get[pool.EffectsChain](h.store, w)
		require.True(t, ok)
		require.Len(t, chain.Effects, 1)
		effect := chain.Effects[0]
		assert.Equal(t, []graph.NodeID{h.handle(effect)}, h.engine.Outputs(h.handle(w)))
		assert.Equal(t, []graph.NodeID{h.handle(bus)}, h.engine.Outputs(h.handle(effect)))
	}

	pool.Despawn(h.store.Commands(), "Q")
	h.frame()
	assert.Equal(t, 10, h.engine.Len())

	pool.Despawn(h.store.Commands(), "P")
	h.frame()
	assert.Equal(t, 1, h.engine.Len())
}

func TestRespawn(t *testing.T) {
	h := newHarness(t, 10)
	pool.New("P", pool.Fixed(2)).Spawn(h.store.Commands())
	h.frame()
	assert.Equal(t, 4, h.engine.Len())

	pool.New("P", pool.Fixed(3)).Spawn(h.store.Commands())
	h.frame()
	assert.Equal(t, 5, h.engine.Len())
	assert.Len(t, h.store.Query(store.With[pool.Bus]()), 1)
}

func TestDynamic(t *testing.T) {
	h := newHarness(t, 10, pool.WithDynamicRange(&pool.Range{Min: 2, Max: 4}))
	a := h.request()
	pool.Effect(h.store, a, nodes.DefaultLowPass())
	pool.Effect(h.store, a, nodes.DefaultBandPass())
	b := h.request()
	pool.Effect(h.store, b, nodes.DefaultBandPass())
	pool.Effect(h.store, b, nodes.LowPass{Frequency: 200})
	c := h.request()
	pool.Effect(h.store, c, nodes.DefaultLowPass())
	h.frame()

	label := func(e store.Entity) pool.Interned {
		l, ok := store.Get[pool.Label](h.store, e)
		require.True(t, ok)
		return l.ID
	}
	assert.Equal(t, label(a), label(b), "same effect set")
	assert.NotEqual(t, label(a), label(c), "different effect set")
	assert.Len(t, h.store.Query(store.With[pool.Bus]()), 2)
	assert.Len(t, h.workers(label(a).Label()), 2)

	h.frame()
	assert.Equal(t, 0, h.queued())
	// 2 pools of 2 workers with 2 and 1 effects, 2 pool buses, main bus
	assert.Equal(t, 2*3+2*2+2+1, h.engine.Len())

	// a despawned dynamic pool is spawned again on demand
	lc := label(c)
	pool.Despawn(h.store.Commands(), lc.Label())
	h.frame()
	assert.False(t, h.store.Contains(c), "interrupted request is completed")
	d := h.request()
	pool.Effect(h.store, d, nodes.DefaultLowPass())
	h.frame()
	assert.Equal(t, lc, label(d))
	h.frame()
	assert.Equal(t, 0, h.queued())
}

func TestDynamicDisabled(t *testing.T) {
	h := newHarness(t, 10)
	r := h.request()
	pool.Effect(h.store, r, nodes.DefaultLowPass())
	plain := h.request()
	h.frame()
	h.frame()

	assert.False(t, store.Has[pool.Label](h.store, r))
	assert.True(t, store.Has[sample.Queued](h.store, r))
	l, ok := store.Get[pool.Label](h.store, plain)
	require.True(t, ok)
	assert.Equal(t, pool.Intern(pool.DefaultPool{}), l.ID)
}

func TestGrowth(t *testing.T) {
	h := newHarness(t, 10)
	pool.New("G", pool.Range{Min: 1, Max: 8}).Spawn(h.store.Commands())
	h.frame()
	require.Len(t, h.workers("G"), 1)

	busy := h.request(sample.Settings{Volume: 1, Repeat: sample.Forever}, pool.LabelOf("G"))
	h.frame()
	h.proc.Process(1)
	require.False(t, store.Has[sample.Queued](h.store, busy))

	for i := 0; i < 3; i++ {
		h.request(pool.LabelOf("G"))
	}
	h.frame()
	workers := len(h.workers("G"))
	assert.GreaterOrEqual(t, workers, 2)
	assert.LessOrEqual(t, workers, 8)
	assert.True(t, h.store.Contains(busy), "busy worker is not interrupted while the pool can grow")
	assert.Equal(t, 3, h.queued())

	h.frame()
	h.frame()
	assert.Equal(t, 0, h.queued())
	assert.Len(t, h.workers("G"), 4)

	for i := 0; i < 20; i++ {
		h.request(pool.LabelOf("G"))
		h.frame()
		h.proc.Process(1)
	}
	assert.Len(t, h.workers("G"), 8)
	assert.Equal(t, 0, h.queued())
}

func TestCompletion(t *testing.T) {
	tests := []struct {
		policy     sample.OnComplete
		components []reflect.Type
	}{
		{
			policy: sample.Preserve,
			components: []reflect.Type{
				store.TypeOf[marker](),
				store.TypeOf[sample.Player](),
				store.TypeOf[sample.Settings](),
				store.TypeOf[node.Excluded](),
				store.TypeOf[pool.Label](),
				store.TypeOf[nodes.LowPass](),
				store.TypeOf[node.Baseline[nodes.LowPass]](),
				store.TypeOf[node.Events](),
			},
		},
		{
			policy: sample.Remove,
			components: []reflect.Type{
				store.TypeOf[marker](),
				store.TypeOf[node.Excluded](),
			},
		},
		{
			policy: sample.Despawn,
		},
	}
	for _, test := range tests {
		t.Run(test.policy.String(), func(t *testing.T) {
			h := newHarness(t, 10)
			pool.New("C", pool.Fixed(1)).Effect(pool.EffectOf(nodes.DefaultLowPass())).Spawn(h.store.Commands())
			h.frame()
			r := h.request(marker{}, sample.Settings{Volume: 1, OnComplete: test.policy}, pool.LabelOf("C"))
			h.frame()
			worker := h.workers("C")[0]
			require.True(t, store.Has[pool.Active](h.store, worker))

			h.proc.Process(100)
			h.frame()
			assert.False(t, store.Has[pool.Active](h.store, worker))
			chain, _ := store.Get[pool.EffectsChain](h.store, worker)
			assert.False(t, store.Has[node.Follower](h.store, chain.Effects[0]))
			if test.components == nil {
				assert.False(t, h.store.Contains(r))
				return
			}
			assert.ElementsMatch(t, test.components, h.store.Components(r))
		})
	}
}

func TestRemoveDynamic(t *testing.T) {
	h := newHarness(t, 10, pool.WithDynamicRange(&pool.Range{Min: 1, Max: 2}))
	r := h.request(marker{}, sample.Settings{Volume: 1, OnComplete: sample.Remove})
	pool.Effect(h.store, r, nodes.DefaultLowPass())
	h.frame()
	h.frame()
	require.False(t, store.Has[sample.Queued](h.store, r))

	h.proc.Process(100)
	h.frame()
	assert.ElementsMatch(t, []reflect.Type{store.TypeOf[marker](), store.TypeOf[node.Excluded]()}, h.store.Components(r))
}

func TestRemoveKeepsExclusion(t *testing.T) {
	h := newHarness(t, 10)
	pool.New("C", pool.Fixed(1)).Effect(pool.EffectOf(nodes.DefaultLowPass())).Spawn(h.store.Commands())
	h.frame()
	r := h.request(marker{}, nodes.DefaultSpatial(), sample.Settings{Volume: 1, OnComplete: sample.Remove}, pool.LabelOf("C"))
	h.frame()
	require.False(t, store.Has[sample.Queued](h.store, r))
	nodesBefore := h.engine.Len()

	h.proc.Process(100)
	h.frame()
	h.frame()
	assert.ElementsMatch(t, []reflect.Type{
		store.TypeOf[marker](),
		store.TypeOf[node.Excluded](),
		store.TypeOf[nodes.Spatial](),
		store.TypeOf[node.Baseline[nodes.Spatial]](),
	}, h.store.Components(r))
	assert.False(t, store.Has[node.Handle](h.store, r), "parameters off the chain stay out of the graph")
	assert.Equal(t, nodesBefore, h.engine.Len())
}

func TestDespawnActive(t *testing.T) {
	tests := []struct {
		policy sample.OnComplete
		kept   bool
	}{
		{policy: sample.Despawn},
		{policy: sample.Preserve, kept: true},
		{policy: sample.Remove, kept: true},
	}
	for _, test := range tests {
		t.Run(test.policy.String(), func(t *testing.T) {
			h := newHarness(t, 1000)
			pool.New("X", pool.Fixed(2)).Effect(pool.EffectOf(nodes.DefaultLowPass())).Spawn(h.store.Commands())
			h.frame()
			r := h.request(sample.Settings{Volume: 1, OnComplete: test.policy}, pool.LabelOf("X"))
			h.frame()
			h.proc.Process(1)
			require.False(t, store.Has[sample.Queued](h.store, r))

			pool.Despawn(h.store.Commands(), "X")
			h.frame()
			assert.Equal(t, 1, h.engine.Len())
			assert.Empty(t, h.store.Query(store.With[pool.Active]()))
			assert.Equal(t, test.kept, h.store.Contains(r))
			if test.policy == sample.Remove {
				assert.False(t, store.Has[sample.Player](h.store, r))
				assert.False(t, store.Has[nodes.LowPass](h.store, r), "pool defaults are stripped")
			}
		})
	}
}

func TestDanglingAssignment(t *testing.T) {
	h := newHarness(t, 1000)
	pool.New("D", pool.Fixed(1)).Effect(pool.EffectOf(nodes.DefaultLowPass())).Spawn(h.store.Commands())
	h.frame()
	r := h.request(pool.LabelOf("D"))
	h.frame()
	h.proc.Process(1)
	worker := h.workers("D")[0]
	state, ok := graph.StateOf[*nodes.SamplerState](h.engine, h.handle(worker))
	require.True(t, ok)
	require.True(t, state.Playing())

	h.store.Despawn(r)
	h.frame()
	assert.False(t, store.Has[pool.Active](h.store, worker))
	chain, _ := store.Get[pool.EffectsChain](h.store, worker)
	assert.False(t, store.Has[node.Follower](h.store, chain.Effects[0]))
	h.proc.Process(1)
	assert.False(t, state.Playing())
}

func TestPendingAsset(t *testing.T) {
	h := newHarness(t, 10)
	pool.New("A", pool.Fixed(1)).Spawn(h.store.Commands())
	h.frame()
	r := h.store.Spawn(sample.Player{Sample: sample.Handle{}}, pool.LabelOf("A"))
	h.frame()
	h.frame()
	assert.True(t, store.Has[sample.Queued](h.store, r))
	assert.False(t, store.Has[pool.Active](h.store, h.workers("A")[0]))
}

func TestEffectsFollowRequest(t *testing.T) {
	h := newHarness(t, 1000)
	pool.New("F", pool.Fixed(1)).Effect(pool.EffectOf(nodes.DefaultLowPass())).Spawn(h.store.Commands())
	h.frame()
	r := h.request(nodes.LowPass{Frequency: 500}, pool.LabelOf("F"))
	h.frame()

	chain, _ := store.Get[pool.EffectsChain](h.store, h.workers("F")[0])
	effect := chain.Effects[0]
	frequency := func() float32 {
		lp, _ := store.Get[nodes.LowPass](h.store, effect)
		return lp.Frequency
	}
	assert.Equal(t, float32(500), frequency())

	lp, _ := store.GetMut[nodes.LowPass](h.store, r)
	lp.Frequency = 250
	h.frame()
	assert.Equal(t, float32(250), frequency())
}

func TestRegistryKey(t *testing.T) {
	var a, b, c pool.Registry
	a.Insert(store.TypeOf[nodes.LowPass]())
	a.Insert(store.TypeOf[nodes.BandPass]())
	b.Insert(store.TypeOf[nodes.BandPass]())
	assert.False(t, b.Insert(store.TypeOf[nodes.BandPass]()))
	b.Insert(store.TypeOf[nodes.LowPass]())
	c.Insert(store.TypeOf[nodes.LowPass]())

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, 2, b.Len())
}

func TestIntern(t *testing.T) {
	type music struct{}
	assert.Equal(t, pool.Intern("sfx"), pool.Intern("sfx"))
	assert.NotEqual(t, pool.Intern(music{}), pool.Intern(pool.DefaultPool{}))
	assert.NotEqual(t, pool.Intern(pool.Dynamic(0)), pool.Intern(0))
	assert.Equal(t, "sfx", pool.Intern("sfx").String())
	assert.Equal(t, "default", pool.Intern(pool.DefaultPool{}).String())
	assert.Equal(t, "pool_test.music", pool.Intern(music{}).String())
	assert.Equal(t, pool.DefaultPool{}, pool.Intern(pool.DefaultPool{}).Label())
}

func TestRank(t *testing.T) {
	h := newHarness(t, 1000)
	pool.New("R", pool.Fixed(2)).Spawn(h.store.Commands())
	h.frame()
	h.request(pool.LabelOf("R"))
	h.frame()
	h.proc.Process(10)
	h.frame()

	rank, ok := store.Get[pool.Rank](h.store, h.bus("R"))
	require.True(t, ok)
	entries := rank.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(nodes.IdleScore), entries[0].Score)
	assert.Less(t, entries[1].Score, entries[0].Score)
	assert.False(t, store.Has[pool.Active](h.store, entries[0].Worker))
	assert.True(t, store.Has[pool.Active](h.store, entries[1].Worker))
}
