package seedling

import (
	"fmt"

	"github.com/pipelined/seedling/config"
	"github.com/pipelined/seedling/nodes"
	"github.com/pipelined/seedling/pool"
)

// Effects are effect appliers available to configured pools, by name.
var Effects = map[string]func() pool.Applier{
	"volume":   func() pool.Applier { return pool.EffectOf(nodes.Unity()) },
	"lowpass":  func() pool.Applier { return pool.EffectOf(nodes.DefaultLowPass()) },
	"bandpass": func() pool.Applier { return pool.EffectOf(nodes.DefaultBandPass()) },
	"spatial":  func() pool.Applier { return pool.EffectOf(nodes.DefaultSpatial()) },
}

// builderOf returns builder of the configured pool.
func builderOf(p config.Pool) (*pool.Builder, error) {
	b := pool.New(p.Label, pool.Range{Min: p.Size.Min, Max: p.Size.Max})
	for _, name := range p.Effects {
		effect, ok := Effects[name]
		if !ok {
			return nil, fmt.Errorf("pool %q: unknown effect %q", p.Label, name)
		}
		b.Effect(effect())
	}
	return b, nil
}
