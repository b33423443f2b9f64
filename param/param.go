// Package param provides diffing and patching of parameter values.
//
// A parameter value describes its difference against a baseline as an
// ordered list of patches. Each patch addresses a single field by path and
// carries the new value. Applying all patches of a diff to the baseline
// makes it equal to the value, so the next diff is empty.
//
// Parameter types implement Diff on the value and Patch on the pointer:
//
//	type Gain struct {
//		Level float32
//		Muted bool
//	}
//
//	func (g Gain) Diff(baseline Gain, path param.Path, patches *[]param.Patch) {
//		param.Field(g.Level, baseline.Level, path, 0, patches)
//		param.Field(g.Muted, baseline.Muted, path, 1, patches)
//	}
//
//	func (g *Gain) Patch(p param.Patch) bool {
//		index, p, ok := p.Next()
//		if !ok {
//			return false
//		}
//		switch index {
//		case 0:
//			return param.Apply(p, &g.Level)
//		case 1:
//			return param.Apply(p, &g.Muted)
//		}
//		return false
//	}
//
// Fields must be diffed in declaration order, the order of patches is
// observed by the realtime side.
package param

// Path addresses a field inside a parameter value. Each element is the
// declaration index of a field, nested values add one element per level.
type Path []uint32

// With returns a copy of the path extended with index.
func (p Path) With(index uint32) Path {
	np := make(Path, len(p)+1)
	copy(np, p)
	np[len(p)] = index
	return np
}

// Patch is a change of a single field.
type Patch struct {
	Path  Path
	Value any
}

// Next returns the first index of the path and the patch addressed to the
// rest of the path. It returns false if path is empty.
func (p Patch) Next() (uint32, Patch, bool) {
	if len(p.Path) == 0 {
		return 0, p, false
	}
	return p.Path[0], Patch{Path: p.Path[1:], Value: p.Value}, true
}

// Diff is implemented by parameter values. Diff appends patches which
// bring baseline to the value, prefixing their paths with path.
type Diff[T any] interface {
	Diff(baseline T, path Path, patches *[]Patch)
}

// Patcher applies patches. Patch returns false if patch doesn't address a
// known field or carries a value of unexpected type.
type Patcher interface {
	Patch(p Patch) bool
}

// Params is satisfied by pointers to parameter types.
type Params[T any] interface {
	*T
	Diff[T]
	Patcher
}

// Field appends a patch for the field at index if value differs from
// baseline.
func Field[V comparable](value, baseline V, path Path, index uint32, patches *[]Patch) {
	if value != baseline {
		*patches = append(*patches, Patch{Path: path.With(index), Value: value})
	}
}

// Nested appends patches of a nested parameter value at index.
func Nested[V Diff[V]](value, baseline V, path Path, index uint32, patches *[]Patch) {
	value.Diff(baseline, path.With(index), patches)
}

// Apply assigns patch value to dst. It returns false if path is not fully
// consumed or value type doesn't match.
func Apply[V any](p Patch, dst *V) bool {
	if len(p.Path) != 0 {
		return false
	}
	v, ok := p.Value.(V)
	if !ok {
		return false
	}
	*dst = v
	return true
}

// Compute returns patches which bring baseline to value.
func Compute[T Diff[T]](value, baseline T) []Patch {
	var patches []Patch
	value.Diff(baseline, nil, &patches)
	return patches
}

// PatchAll applies patches in order. It returns number of applied patches.
func PatchAll(p Patcher, patches []Patch) int {
	applied := 0
	for _, patch := range patches {
		if p.Patch(patch) {
			applied++
		}
	}
	return applied
}
