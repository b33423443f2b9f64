package nodes

import (
	"math"
	"sync/atomic"

	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/param"
	"github.com/pipelined/seedling/sample"
)

const (
	// IdleScore is the worker score of an idle sampler.
	IdleScore = math.MaxUint64
	// busyCeiling is the highest score a busy sampler can get.
	busyCeiling = math.MaxUint64 / 2
)

// Sampler is a sampler worker. Pools assign playback requests to samplers.
type Sampler struct {
	Sample *sample.Sample
	Volume float32
	Repeat sample.RepeatMode
}

// Set configures sampler for playback.
func (s *Sampler) Set(smp *sample.Sample, settings sample.Settings) {
	s.Sample = smp
	s.Volume = settings.Volume
	s.Repeat = settings.Repeat
}

// Diff implements param.Diff.
func (s Sampler) Diff(baseline Sampler, path param.Path, patches *[]param.Patch) {
	param.Field(s.Sample, baseline.Sample, path, 0, patches)
	param.Field(s.Volume, baseline.Volume, path, 1, patches)
	param.Field(s.Repeat, baseline.Repeat, path, 2, patches)
}

// Patch implements param.Patcher.
func (s *Sampler) Patch(p param.Patch) bool {
	index, p, ok := p.Next()
	if !ok {
		return false
	}
	switch index {
	case 0:
		return param.Apply(p, &s.Sample)
	case 1:
		return param.Apply(p, &s.Volume)
	case 2:
		return param.Apply(p, &s.Repeat)
	}
	return false
}

// Info implements graph.Node.
func (s Sampler) Info(config any) graph.Info {
	return graph.Info{Name: "sampler", Outputs: channels(config)}
}

// Processor implements graph.Node. The state is *SamplerState.
func (s Sampler) Processor(any) (graph.Processor, any) {
	state := &SamplerState{}
	return &samplerProcessor{params: s, state: state}, state
}

// Play is the load-and-play event payload. It replaces sampler parameters
// and starts playback from the beginning.
type Play struct {
	Params     Sampler
	Generation uint64
}

// PlayEvent returns load-and-play event for sampler parameters. The state
// reports playback as pending until the realtime domain receives the event.
func PlayEvent(state *SamplerState, s Sampler) graph.Event {
	return graph.CustomEvent(Play{Params: s, Generation: state.requested.Add(1)})
}

// SamplerState is runtime state of a sampler. It's written by the realtime
// domain and polled by the control domain.
type SamplerState struct {
	playing   atomic.Bool
	paused    atomic.Bool
	remaining atomic.Int64
	playhead  atomic.Uint64
	// requested is written by the control domain, started by the realtime.
	requested atomic.Uint64
	started   atomic.Uint64
}

// Pending returns true if a play event was sent but not received yet.
func (s *SamplerState) Pending() bool {
	return s.requested.Load() != s.started.Load()
}

// Playing returns true while the sampler has playback in progress,
// including pending and paused playback.
func (s *SamplerState) Playing() bool {
	return s.Pending() || s.playing.Load()
}

// Paused returns true if playback is paused.
func (s *SamplerState) Paused() bool {
	return s.paused.Load()
}

// Remaining returns number of frames left to play, -1 if sampler repeats
// forever.
func (s *SamplerState) Remaining() int64 {
	return s.remaining.Load()
}

// Playhead returns playback position in frames within the current loop.
func (s *SamplerState) Playhead() uint64 {
	return s.playhead.Load()
}

// WorkerScore ranks the sampler for new work. Idle samplers get the
// maximum score. Busy samplers score below any idle one, the fewer frames
// are left the higher the score. Samplers repeating forever score zero,
// samplers waiting for their play event score one.
func (s *SamplerState) WorkerScore() uint64 {
	if s.Pending() {
		return 1
	}
	if !s.playing.Load() {
		return IdleScore
	}
	remaining := s.Remaining()
	if remaining < 0 {
		return 0
	}
	if uint64(remaining) >= busyCeiling {
		return 0
	}
	return busyCeiling - uint64(remaining)
}

// samplerProcessor tracks playback position of a sampler.
type samplerProcessor struct {
	params   Sampler
	state    *SamplerState
	playhead int
	loops    int
	playing  bool
	paused   bool
}

// Event implements graph.Processor.
func (p *samplerProcessor) Event(e graph.Event) {
	switch e.Kind {
	case graph.EventPatch:
		p.params.Patch(e.Patch)
	case graph.EventCustom:
		if play, ok := e.Custom.(Play); ok {
			p.params = play.Params
			p.start()
			p.publish()
			p.state.started.Store(play.Generation)
			return
		}
	case graph.EventSequence:
		switch e.Sequence {
		case graph.SequenceStart:
			p.start()
		case graph.SequencePause:
			p.paused = p.playing
		case graph.SequenceResume:
			p.paused = false
		case graph.SequenceStop:
			p.playing = false
			p.paused = false
			p.playhead = 0
		}
	}
	p.publish()
}

func (p *samplerProcessor) start() {
	p.playhead = 0
	p.loops = int(p.params.Repeat)
	p.playing = p.params.Sample.Frames() > 0
	p.paused = false
}

// Process implements graph.Processor.
func (p *samplerProcessor) Process(frames int) {
	if !p.playing || p.paused {
		return
	}
	length := p.params.Sample.Frames()
	if length == 0 {
		p.playing = false
		p.playhead = 0
		p.publish()
		return
	}
	p.playhead += frames
	for p.playhead >= length {
		if p.loops == 0 {
			p.playing = false
			p.playhead = length
			break
		}
		if p.loops > 0 {
			p.loops--
		}
		p.playhead -= length
	}
	p.publish()
}

func (p *samplerProcessor) publish() {
	p.state.playing.Store(p.playing)
	p.state.paused.Store(p.paused)
	p.state.playhead.Store(uint64(p.playhead))
	if !p.playing {
		p.state.remaining.Store(0)
		return
	}
	if p.loops < 0 {
		p.state.remaining.Store(-1)
		return
	}
	length := p.params.Sample.Frames()
	p.state.remaining.Store(int64(length-p.playhead) + int64(p.loops)*int64(length))
}
