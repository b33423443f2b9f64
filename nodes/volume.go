package nodes

import (
	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/param"
)

// Volume is a gain stage. Pools use it as their bus.
type Volume struct {
	// Gain is a linear gain, 1 is unity.
	Gain float32
}

// Unity returns volume with unity gain.
func Unity() Volume {
	return Volume{Gain: 1}
}

// Diff implements param.Diff.
func (v Volume) Diff(baseline Volume, path param.Path, patches *[]param.Patch) {
	param.Field(v.Gain, baseline.Gain, path, 0, patches)
}

// Patch implements param.Patcher.
func (v *Volume) Patch(p param.Patch) bool {
	index, p, ok := p.Next()
	if !ok || index != 0 {
		return false
	}
	return param.Apply(p, &v.Gain)
}

// Info implements graph.Node.
func (v Volume) Info(config any) graph.Info {
	c := channels(config)
	return graph.Info{Name: "volume", Inputs: c, Outputs: c}
}

// Processor implements graph.Node.
func (v Volume) Processor(any) (graph.Processor, any) {
	return newParamProcessor[Volume](v), nil
}
