package engine

import (
	"context"
	"time"

	"github.com/pipelined/seedling/graph"
)

// Processor is the realtime side of the engine. Its methods must be called
// from a single goroutine.
type Processor struct {
	messages <-chan batch
	slots    []slot
}

type slot struct {
	id        graph.NodeID
	processor graph.Processor
}

func newProcessor(capacity int, messages <-chan batch) *Processor {
	return &Processor{
		messages: messages,
		slots:    make([]slot, capacity),
	}
}

// Process applies all handed over batches and advances every node by
// number of frames.
func (p *Processor) Process(frames int) {
	p.receive()
	for i := range p.slots {
		if p.slots[i].processor != nil {
			p.slots[i].processor.Process(frames)
		}
	}
}

// receive drains the channel without blocking.
func (p *Processor) receive() {
	for {
		select {
		case b := <-p.messages:
			p.apply(b)
		default:
			return
		}
	}
}

func (p *Processor) apply(b batch) {
	for _, o := range b.ops {
		s := &p.slots[o.id.Index]
		switch o.kind {
		case opAdd:
			s.id = o.id
			s.processor = o.processor
		case opRemove:
			if s.id == o.id {
				s.processor = nil
			}
		}
	}
	for _, ev := range b.events {
		s := &p.slots[ev.Node.Index]
		// events for removed nodes are dropped
		if s.id != ev.Node || s.processor == nil {
			continue
		}
		s.processor.Event(ev.Event)
	}
}

// Run calls Process every interval until context is done. It returns the
// context error.
func (p *Processor) Run(ctx context.Context, interval time.Duration, frames int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Process(frames)
		}
	}
}
