package store

import "reflect"

type (
	// Command is a deferred mutation of the store.
	Command func(s *Store)

	// Commands is an ordered log of deferred mutations. Commands are
	// applied in the order they were pushed when the store calls Apply.
	Commands struct {
		store *Store
		queue []Command
	}
)

// Push appends command to the log.
func (c *Commands) Push(cmd Command) {
	c.queue = append(c.queue, cmd)
}

// Len returns number of commands waiting to be applied.
func (c *Commands) Len() int {
	return len(c.queue)
}

// Spawn reserves a new entity and queues its creation with provided
// components. The returned entity can be referenced by commands pushed
// after this one.
func (c *Commands) Spawn(components ...any) Entity {
	e := NewEntity()
	c.Push(func(s *Store) {
		s.spawn(e, components...)
	})
	return e
}

// Insert queues insertion of components. Missing entities are skipped.
func (c *Commands) Insert(e Entity, components ...any) {
	c.Push(func(s *Store) {
		if !s.Insert(e, components...) {
			s.log.WithField("entity", e).Debug("insert into missing entity skipped")
		}
	})
}

// InsertIfNew queues insertion of component if the entity doesn't carry
// one of the same type at the time the command is applied.
func (c *Commands) InsertIfNew(e Entity, component any) {
	c.Push(func(s *Store) {
		s.InsertIfNew(e, component)
	})
}

// Remove queues removal of component types.
func (c *Commands) Remove(e Entity, types ...reflect.Type) {
	c.Push(func(s *Store) {
		s.Remove(e, types...)
	})
}

// Despawn queues entity removal. Despawning a missing entity is a no-op.
func (c *Commands) Despawn(e Entity) {
	c.Push(func(s *Store) {
		if !s.Despawn(e) {
			s.log.WithField("entity", e).Debug("despawn of missing entity skipped")
		}
	})
}

// Apply drains the command log. Commands pushed while applying, for
// example by hooks, are applied in the same call. It returns number of
// applied commands.
func (s *Store) Apply() int {
	applied := 0
	for len(s.commands.queue) > 0 {
		queue := s.commands.queue
		s.commands.queue = nil
		for _, cmd := range queue {
			cmd(s)
		}
		applied += len(queue)
	}
	return applied
}
