/*
Package seedling schedules sample playback across pools of sampler nodes
and keeps parameters of the control side in sync with a realtime audio
graph.

Concept

The control side is a store of entities with typed components. Components
which implement param.Diff and param.Patcher are parameter objects: every
one of them gets a node in the audio graph and a baseline, the last value
the graph knows about. Once per frame the changes are diffed against the
baseline and sent to the graph as ordered patch events:

	store -> diff -> events -> graph

The realtime side never blocks on the control side. Mutations and events
travel through a buffered channel and the runtime state of samplers comes
back through atomics.

Playback

Sample playback is requested by spawning an entity with sample.Player:

	c.Play(handle, pool.LabelOf("sfx"))

The request is assigned to the best worker of the pool with the same
label. Requests without a label are played by the default pool, or by a
dynamic pool when they carry effects:

	e := c.Play(handle)
	pool.Effect(c.Store(), e, nodes.DefaultLowPass())

Pools are declared with pool.New and grow on demand up to their maximum
size. They never shrink.

Frame

Context.Update runs one frame. Phases are executed in the fixed order and
store commands are applied between them:

	acquire nodes
	connect nodes
	schedule requests
	relay followers and diff parameters
	monitor active assignments
	flush events and removals, update graph

Context is not safe for concurrent use. It's meant to be owned by a single
control goroutine, while the graph processor runs on its own.
*/
package seedling
