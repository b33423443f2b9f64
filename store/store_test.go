package store_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/seedling/store"
)

type (
	position struct{ x, y int }
	name     string
	marker   struct{}
)

func TestInsertGet(t *testing.T) {
	s := store.New()
	e := s.Spawn(position{1, 2}, name("a"))

	p, ok := store.Get[position](s, e)
	require.True(t, ok)
	assert.Equal(t, position{1, 2}, *p)

	n, ok := store.Get[name](s, e)
	require.True(t, ok)
	assert.Equal(t, name("a"), *n)

	_, ok = store.Get[marker](s, e)
	assert.False(t, ok)

	// replacement keeps a single slot
	assert.True(t, s.Insert(e, position{3, 4}))
	p, _ = store.Get[position](s, e)
	assert.Equal(t, position{3, 4}, *p)
	assert.Len(t, s.Components(e), 2)

	assert.False(t, s.InsertIfNew(e, position{5, 6}))
	p, _ = store.Get[position](s, e)
	assert.Equal(t, position{3, 4}, *p)
	assert.True(t, s.InsertIfNew(e, marker{}))
}

func TestQuery(t *testing.T) {
	s := store.New()
	a := s.Spawn(position{}, marker{})
	b := s.Spawn(position{})
	c := s.Spawn(name("c"))

	tests := []struct {
		filters  []store.Filter
		expected []store.Entity
	}{
		{
			filters:  []store.Filter{store.With[position]()},
			expected: []store.Entity{a, b},
		},
		{
			filters:  []store.Filter{store.With[position](), store.Without[marker]()},
			expected: []store.Entity{b},
		},
		{
			filters:  []store.Filter{store.Without[position]()},
			expected: []store.Entity{c},
		},
		{
			expected: []store.Entity{a, b, c},
		},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, s.Query(test.filters...))
	}
}

func TestChangeTicks(t *testing.T) {
	s := store.New()
	e := s.Spawn(position{})
	since := s.Advance()

	assert.Empty(t, s.Query(store.ChangedSince[position](since)))

	// read-only access doesn't mark the component
	p, _ := store.Get[position](s, e)
	p.x = 1
	assert.Empty(t, s.Query(store.ChangedSince[position](since)))

	p, _ = store.GetMut[position](s, e)
	p.x = 2
	assert.Equal(t, []store.Entity{e}, s.Query(store.ChangedSince[position](since)))
	assert.True(t, store.Changed[position](s, e, since))

	since = s.Advance()
	assert.False(t, store.Changed[position](s, e, since))
}

func TestHooks(t *testing.T) {
	s := store.New()
	var added, removed []store.Entity
	store.OnAdd[marker](s, func(s *store.Store, e store.Entity) {
		added = append(added, e)
	})
	store.OnRemove[marker](s, func(s *store.Store, e store.Entity) {
		// component must still be readable
		assert.True(t, store.Has[marker](s, e))
		removed = append(removed, e)
	})

	e := s.Spawn(marker{})
	s.Insert(e, marker{})
	assert.Equal(t, []store.Entity{e}, added, "add hook fires once")

	s.Remove(e, store.TypeOf[marker]())
	assert.Equal(t, []store.Entity{e}, removed)

	s.Insert(e, marker{})
	assert.True(t, s.Despawn(e))
	assert.Equal(t, []store.Entity{e, e}, removed)
	assert.False(t, s.Contains(e))
	assert.False(t, s.Despawn(e))
}

func TestCommands(t *testing.T) {
	s := store.New()
	cmds := s.Commands()

	e := cmds.Spawn(position{1, 1})
	assert.False(t, s.Contains(e), "spawn is deferred")
	cmds.Insert(e, name("x"))
	cmds.InsertIfNew(e, position{2, 2})
	assert.Equal(t, 3, cmds.Len())

	assert.Equal(t, 3, s.Apply())
	require.True(t, s.Contains(e))
	p, _ := store.Get[position](s, e)
	assert.Equal(t, position{1, 1}, *p)

	cmds.Remove(e, store.TypeOf[name]())
	s.Apply()
	assert.Equal(t, []reflect.Type{store.TypeOf[position]()}, s.Components(e))

	cmds.Despawn(e)
	cmds.Despawn(e)
	cmds.Insert(e, marker{})
	s.Apply()
	assert.Equal(t, 0, s.Len())
}

func TestCascade(t *testing.T) {
	type children []store.Entity

	s := store.New()
	store.OnRemove[children](s, func(s *store.Store, e store.Entity) {
		c, _ := store.Get[children](s, e)
		for _, child := range *c {
			s.Commands().Despawn(child)
		}
	})

	leaf := s.Spawn(marker{})
	middle := s.Spawn(children{leaf})
	root := s.Spawn(children{middle})
	other := s.Spawn(marker{})

	s.Commands().Despawn(root)
	s.Apply()

	assert.False(t, s.Contains(root))
	assert.False(t, s.Contains(middle))
	assert.False(t, s.Contains(leaf))
	assert.True(t, s.Contains(other))
}
