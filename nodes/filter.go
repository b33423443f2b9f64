package nodes

import (
	"github.com/pipelined/seedling/graph"
	"github.com/pipelined/seedling/param"
)

// LowPass is a low-pass filter effect.
type LowPass struct {
	// Frequency is the cutoff frequency in Hz.
	Frequency float32
}

// DefaultLowPass returns low-pass filter with cutoff at 1 kHz.
func DefaultLowPass() LowPass {
	return LowPass{Frequency: 1000}
}

// Diff implements param.Diff.
func (f LowPass) Diff(baseline LowPass, path param.Path, patches *[]param.Patch) {
	param.Field(f.Frequency, baseline.Frequency, path, 0, patches)
}

// Patch implements param.Patcher.
func (f *LowPass) Patch(p param.Patch) bool {
	index, p, ok := p.Next()
	if !ok || index != 0 {
		return false
	}
	return param.Apply(p, &f.Frequency)
}

// Info implements graph.Node.
func (f LowPass) Info(config any) graph.Info {
	c := channels(config)
	return graph.Info{Name: "low pass", Inputs: c, Outputs: c}
}

// Processor implements graph.Node.
func (f LowPass) Processor(any) (graph.Processor, any) {
	return newParamProcessor[LowPass](f), nil
}

// BandPass is a band-pass filter effect.
type BandPass struct {
	// Frequency is the center frequency in Hz.
	Frequency float32
	// Q is the quality factor.
	Q float32
}

// DefaultBandPass returns band-pass filter centered at 1 kHz.
func DefaultBandPass() BandPass {
	return BandPass{Frequency: 1000, Q: 0.707}
}

// Diff implements param.Diff.
func (f BandPass) Diff(baseline BandPass, path param.Path, patches *[]param.Patch) {
	param.Field(f.Frequency, baseline.Frequency, path, 0, patches)
	param.Field(f.Q, baseline.Q, path, 1, patches)
}

// Patch implements param.Patcher.
func (f *BandPass) Patch(p param.Patch) bool {
	index, p, ok := p.Next()
	if !ok {
		return false
	}
	switch index {
	case 0:
		return param.Apply(p, &f.Frequency)
	case 1:
		return param.Apply(p, &f.Q)
	}
	return false
}

// Info implements graph.Node.
func (f BandPass) Info(config any) graph.Info {
	c := channels(config)
	return graph.Info{Name: "band pass", Inputs: c, Outputs: c}
}

// Processor implements graph.Node.
func (f BandPass) Processor(any) (graph.Processor, any) {
	return newParamProcessor[BandPass](f), nil
}

// Vec3 is a position in space.
type Vec3 struct {
	X, Y, Z float32
}

// Diff implements param.Diff.
func (v Vec3) Diff(baseline Vec3, path param.Path, patches *[]param.Patch) {
	param.Field(v.X, baseline.X, path, 0, patches)
	param.Field(v.Y, baseline.Y, path, 1, patches)
	param.Field(v.Z, baseline.Z, path, 2, patches)
}

// Patch implements param.Patcher.
func (v *Vec3) Patch(p param.Patch) bool {
	index, p, ok := p.Next()
	if !ok {
		return false
	}
	switch index {
	case 0:
		return param.Apply(p, &v.X)
	case 1:
		return param.Apply(p, &v.Y)
	case 2:
		return param.Apply(p, &v.Z)
	}
	return false
}

// Spatial pans and attenuates its input by emitter offset from listener.
type Spatial struct {
	Offset Vec3
	Gain   float32
}

// DefaultSpatial returns spatial effect at the listener position.
func DefaultSpatial() Spatial {
	return Spatial{Gain: 1}
}

// Diff implements param.Diff.
func (s Spatial) Diff(baseline Spatial, path param.Path, patches *[]param.Patch) {
	param.Nested(s.Offset, baseline.Offset, path, 0, patches)
	param.Field(s.Gain, baseline.Gain, path, 1, patches)
}

// Patch implements param.Patcher.
func (s *Spatial) Patch(p param.Patch) bool {
	index, p, ok := p.Next()
	if !ok {
		return false
	}
	switch index {
	case 0:
		return s.Offset.Patch(p)
	case 1:
		return param.Apply(p, &s.Gain)
	}
	return false
}

// Info implements graph.Node.
func (s Spatial) Info(config any) graph.Info {
	return graph.Info{Name: "spatial", Inputs: channels(config), Outputs: 2}
}

// Processor implements graph.Node.
func (s Spatial) Processor(any) (graph.Processor, any) {
	return newParamProcessor[Spatial](s), nil
}
