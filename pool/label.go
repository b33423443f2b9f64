package pool

import (
	"fmt"
	"sync"
)

// Interned is the runtime identity of a pool label. Equal labels intern to
// the same value.
type Interned uint32

var m = struct {
	sync.Mutex
	ids    map[any]Interned
	labels []any
}{
	ids: map[any]Interned{},
}

// Intern returns interned value of the label. Labels must be comparable.
// Interned values are cached internally, so multiple calls for equal labels
// return the same value.
func Intern(label any) Interned {
	m.Lock()
	defer m.Unlock()
	if id, ok := m.ids[label]; ok {
		return id
	}

	id := Interned(len(m.labels))
	m.ids[label] = id
	m.labels = append(m.labels, label)
	return id
}

// Label returns the label which was interned.
func (i Interned) Label() any {
	m.Lock()
	defer m.Unlock()
	if int(i) >= len(m.labels) {
		return nil
	}
	return m.labels[i]
}

func (i Interned) String() string {
	switch l := i.Label().(type) {
	case nil:
		return fmt.Sprintf("label(%d)", uint32(i))
	case fmt.Stringer:
		return l.String()
	default:
		// unit struct labels are named by their type
		if s := fmt.Sprint(l); s != "{}" {
			return s
		}
		return fmt.Sprintf("%T", l)
	}
}

// DefaultPool labels the pool which plays requests without label and
// effects.
type DefaultPool struct{}

func (DefaultPool) String() string {
	return "default"
}

// Dynamic labels pools created by dynamic provisioning.
type Dynamic int

func (d Dynamic) String() string {
	return fmt.Sprintf("dynamic(%d)", int(d))
}

// Label is the pool label component. Requests carrying it are played by
// the pool with the same label, nodes carrying it belong to that pool.
type Label struct {
	ID Interned
}

// LabelOf returns label component for provided label value.
func LabelOf(label any) Label {
	return Label{ID: Intern(label)}
}
