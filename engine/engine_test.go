package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pipelined/seedling/engine"
	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/nodes"
	"github.com/pipelined/seedling/param"
	"github.com/pipelined/seedling/sample"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSample(frames int) *sample.Sample {
	return &sample.Sample{
		Buffer: &audio.FloatBuffer{
			Format: &audio.Format{NumChannels: 1, SampleRate: 48000},
			Data:   make([]float64, frames),
		},
	}
}

func TestNodes(t *testing.T) {
	e := engine.New(engine.WithCapacity(2))

	a, err := e.AddNode(nodes.Unity(), nil)
	require.NoError(t, err)
	b, err := e.AddNode(nodes.DefaultLowPass(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())

	_, err = e.AddNode(nodes.Unity(), nil)
	assert.Equal(t, engine.ErrCapacity, err)

	require.NoError(t, e.Connect(b, a))
	assert.True(t, errors.Is(e.Connect(a, b), engine.ErrCycle))
	assert.Equal(t, []graph.NodeID{a}, e.Outputs(b))

	require.NoError(t, e.RemoveNode(a))
	assert.Empty(t, e.Outputs(b))
	assert.True(t, errors.Is(e.RemoveNode(a), graph.ErrNodeNotFound))

	// slot is reused with a new generation
	c, err := e.AddNode(nodes.Unity(), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Index, c.Index)
	assert.NotEqual(t, a, c)
	assert.True(t, errors.Is(e.RemoveNode(a), graph.ErrNodeNotFound))

	info, ok := e.Info(c)
	require.True(t, ok)
	assert.Equal(t, "volume", info.Name)
	assert.Equal(t, nodes.DefaultChannels, info.Outputs)
}

func TestPaused(t *testing.T) {
	e := engine.New()
	e.Pause()
	_, err := e.AddNode(nodes.Unity(), nil)
	assert.Equal(t, graph.ErrNotReady, err)
	e.Resume()
	_, err = e.AddNode(nodes.Unity(), nil)
	assert.NoError(t, err)
}

func TestSamplerPlayback(t *testing.T) {
	e := engine.New()
	p := e.Processor()

	id, err := e.AddNode(nodes.Sampler{}, nil)
	require.NoError(t, err)
	state, ok := graph.StateOf[*nodes.SamplerState](e, id)
	require.True(t, ok)
	assert.False(t, state.Playing())
	assert.Equal(t, uint64(1<<64-1), state.WorkerScore())

	params := nodes.Sampler{Sample: newSample(100), Volume: 1, Repeat: 1}
	e.QueueEvent(graph.NodeEvent{Node: id, Event: nodes.PlayEvent(state, params)})
	assert.True(t, state.Pending())
	assert.True(t, state.Playing())
	require.NoError(t, e.Update())

	p.Process(30)
	assert.False(t, state.Pending())
	assert.True(t, state.Playing())
	// one repeat: 200 frames total, 30 played
	assert.Equal(t, int64(170), state.Remaining())
	busy := state.WorkerScore()

	p.Process(100)
	assert.Equal(t, int64(70), state.Remaining())
	assert.Greater(t, state.WorkerScore(), busy, "closer to the end ranks higher")

	p.Process(100)
	assert.False(t, state.Playing())
	assert.Equal(t, int64(0), state.Remaining())
}

func TestSequence(t *testing.T) {
	e := engine.New()
	p := e.Processor()
	id, _ := e.AddNode(nodes.Sampler{}, nil)
	state, _ := graph.StateOf[*nodes.SamplerState](e, id)

	e.QueueEvent(graph.NodeEvent{Node: id, Event: nodes.PlayEvent(state, nodes.Sampler{Sample: newSample(10), Repeat: sample.Forever})})
	e.Update()
	p.Process(25)
	assert.True(t, state.Playing())
	assert.Equal(t, int64(-1), state.Remaining())
	assert.Equal(t, uint64(0), state.WorkerScore())

	e.QueueEvent(graph.NodeEvent{Node: id, Event: graph.SequenceEvent(graph.SequencePause)})
	e.Update()
	p.Process(5)
	assert.True(t, state.Paused())
	assert.True(t, state.Playing())

	e.QueueEvent(graph.NodeEvent{Node: id, Event: graph.SequenceEvent(graph.SequenceStop)})
	e.Update()
	p.Process(5)
	assert.False(t, state.Playing())
}

func TestBacklog(t *testing.T) {
	e := engine.New(engine.WithBacklog(1))
	p := e.Processor()
	id, _ := e.AddNode(nodes.Sampler{}, nil)
	state, _ := graph.StateOf[*nodes.SamplerState](e, id)
	require.NoError(t, e.Update())

	// backlog is full, this batch waits
	e.QueueEvent(graph.NodeEvent{Node: id, Event: nodes.PlayEvent(state, nodes.Sampler{Sample: newSample(10)})})
	require.NoError(t, e.Update())
	p.Process(1)
	assert.True(t, state.Pending())

	require.NoError(t, e.Update())
	p.Process(1)
	assert.False(t, state.Pending())
	assert.Equal(t, int64(9), state.Remaining())
}

func TestEventsForRemovedNode(t *testing.T) {
	e := engine.New()
	p := e.Processor()
	id, _ := e.AddNode(nodes.Sampler{}, nil)
	state, _ := graph.StateOf[*nodes.SamplerState](e, id)
	e.Update()
	p.Process(1)

	e.QueueEvent(graph.NodeEvent{Node: id, Event: graph.PatchEvent(param.Patch{Path: param.Path{1}, Value: float32(0.5)})})
	require.NoError(t, e.RemoveNode(id))
	e.Update()
	p.Process(1)
	assert.False(t, state.Playing())
	_, ok := e.NodeState(id)
	assert.False(t, ok)
}

func TestRun(t *testing.T) {
	e := engine.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- e.Processor().Run(ctx, time.Millisecond, 64)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	assert.Equal(t, context.Canceled, <-done)
}
