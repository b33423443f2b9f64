// Package graph defines the boundary between the control domain and the
// realtime processing graph.
//
// The control domain adds and removes nodes, connects them and queues
// events. Queued events are handed over to the realtime domain on Update.
// Runtime state of a node flows back through NodeState, which the control
// domain polls.
package graph

import (
	"errors"
	"fmt"

	"github.com/pipelined/seedling/param"
)

var (
	// ErrNodeNotFound is returned when the node is absent or was removed.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotReady is returned when the graph doesn't accept new nodes at
	// the moment, for example while it's paused. Callers retry later.
	ErrNotReady = errors.New("graph not ready")
)

// NodeID identifies a node in the graph.
type NodeID struct {
	Index      uint32
	Generation uint32
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d:%d", id.Index, id.Generation)
}

// Info describes a node to the graph.
type Info struct {
	Name    string
	Inputs  int
	Outputs int
}

// Node is implemented by parameter values which can be added to the graph.
// Processor is called once when the node is added, on the control side.
// The returned processor is owned by the realtime domain afterwards.
// state is the value returned for the node by NodeState.
type Node interface {
	Info(config any) Info
	Processor(config any) (p Processor, state any)
}

// Processor runs in the realtime domain. Implementations must not block,
// lock or allocate.
type Processor interface {
	// Event is called for every event addressed to the node, in order.
	Event(e Event)
	// Process advances the node by number of frames.
	Process(frames int)
}

// EventKind identifies the payload of an Event.
type EventKind uint8

const (
	// EventPatch carries a parameter patch.
	EventPatch EventKind = iota
	// EventCustom carries an opaque payload known to the node.
	EventCustom
	// EventSequence carries a playback command.
	EventSequence
)

func (k EventKind) String() string {
	switch k {
	case EventPatch:
		return "patch"
	case EventCustom:
		return "custom"
	case EventSequence:
		return "sequence"
	}
	return "unknown"
}

// SequenceCommand controls playback of nodes which support it.
type SequenceCommand uint8

const (
	// SequenceStart starts playback from the beginning.
	SequenceStart SequenceCommand = iota
	// SequencePause pauses playback.
	SequencePause
	// SequenceResume resumes paused playback.
	SequenceResume
	// SequenceStop stops playback and rewinds.
	SequenceStop
)

// Event is a message from the control domain to a node processor.
// Ownership of the event and its payload transfers to the realtime domain
// when the event is queued.
type Event struct {
	Kind     EventKind
	Patch    param.Patch
	Custom   any
	Sequence SequenceCommand
}

// PatchEvent wraps a parameter patch.
func PatchEvent(p param.Patch) Event {
	return Event{Kind: EventPatch, Patch: p}
}

// CustomEvent wraps an opaque payload.
func CustomEvent(v any) Event {
	return Event{Kind: EventCustom, Custom: v}
}

// SequenceEvent wraps a playback command.
func SequenceEvent(c SequenceCommand) Event {
	return Event{Kind: EventSequence, Sequence: c}
}

// NodeEvent is an event addressed to a node.
type NodeEvent struct {
	Node  NodeID
	Event Event
}

// Graph is the control side of the processing graph.
type Graph interface {
	// AddNode registers the node with the graph.
	AddNode(node Node, config any) (NodeID, error)
	// RemoveNode removes the node and all its connections.
	RemoveNode(id NodeID) error
	// Connect routes output of src into input of dst.
	Connect(src, dst NodeID) error
	// QueueEvent queues event to be sent on the next Update.
	QueueEvent(e NodeEvent)
	// NodeState returns runtime state of the node, if it has one.
	NodeState(id NodeID) (any, bool)
	// Update hands over queued mutations and events to the realtime domain.
	Update() error
}

// StateOf returns runtime state of the node if it exists and has type S.
func StateOf[S any](g Graph, id NodeID) (S, bool) {
	var zero S
	v, ok := g.NodeState(id)
	if !ok {
		return zero, false
	}
	s, ok := v.(S)
	if !ok {
		return zero, false
	}
	return s, true
}

// Patches wraps patches into events.
func Patches(patches []param.Patch) []Event {
	events := make([]Event, 0, len(patches))
	for _, p := range patches {
		events = append(events, PatchEvent(p))
	}
	return events
}
