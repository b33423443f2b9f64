/*
Package nodes provides parameter types of the audio nodes used by the
scheduler: sampler workers, volume buses and simple effects.

Every type is a plain value which can be diffed and patched, and can be
added to the processing graph. Signal processing itself is out of the
scope of this package: processors only keep their parameters in sync with
the events they receive, samplers also track playback position.
*/
package nodes

import (
	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/param"
)

// DefaultChannels is the number of channels used when node config is not
// provided.
const DefaultChannels = 2

// Config is construction config shared by all nodes in this package.
type Config struct {
	Channels int
}

func channels(config any) int {
	if c, ok := config.(Config); ok && c.Channels > 0 {
		return c.Channels
	}
	return DefaultChannels
}

// paramProcessor keeps a realtime copy of parameters up to date.
type paramProcessor[T any, PT param.Params[T]] struct {
	params T
}

func newParamProcessor[T any, PT param.Params[T]](params T) *paramProcessor[T, PT] {
	return &paramProcessor[T, PT]{params: params}
}

// Event applies patch events.
func (p *paramProcessor[T, PT]) Event(e graph.Event) {
	if e.Kind == graph.EventPatch {
		PT(&p.params).Patch(e.Patch)
	}
}

// Process does nothing, signal processing is not a concern of this package.
func (p *paramProcessor[T, PT]) Process(int) {}
