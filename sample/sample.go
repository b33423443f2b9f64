// Package sample provides playback requests and the sample asset store.
//
// A playback request is an entity with a Player component. Once spawned,
// it's queued until the scheduler assigns it to a sampler worker. Settings
// control how the sample is played and what happens to the request when
// playback is complete.
package sample

import (
	"time"

	"github.com/go-audio/audio"

	"github.com/pipelined/seedling/node"
	"github.com/pipelined/seedling/store"
)

// Sample is decoded audio data.
type Sample struct {
	Buffer *audio.FloatBuffer
}

// Frames returns number of frames in the sample.
func (s *Sample) Frames() int {
	if s == nil || s.Buffer == nil {
		return 0
	}
	return s.Buffer.NumFrames()
}

// SampleRate returns sample rate of the sample.
func (s *Sample) SampleRate() int {
	if s == nil || s.Buffer == nil || s.Buffer.Format == nil {
		return 0
	}
	return s.Buffer.Format.SampleRate
}

// Duration returns playback duration of the sample.
func (s *Sample) Duration() time.Duration {
	sr := s.SampleRate()
	if sr == 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(sr)
}

// OnComplete defines what happens to the request when playback is complete.
type OnComplete uint8

const (
	// Despawn despawns the request entity.
	Despawn OnComplete = iota
	// Preserve keeps the request entity as it is.
	Preserve
	// Remove strips playback and pool components from the request entity
	// and keeps the rest.
	Remove
)

func (c OnComplete) String() string {
	switch c {
	case Despawn:
		return "despawn"
	case Preserve:
		return "preserve"
	case Remove:
		return "remove"
	}
	return "unknown"
}

// RepeatMode defines how many times the sample is repeated after the
// first playback.
type RepeatMode int

const (
	// Once plays the sample a single time.
	Once RepeatMode = 0
	// Forever repeats the sample until stopped.
	Forever RepeatMode = -1
)

// Player requests playback of a sample.
type Player struct {
	Sample Handle
}

// Settings of the playback.
type Settings struct {
	Volume     float32
	Repeat     RepeatMode
	OnComplete OnComplete
}

// DefaultSettings plays the sample once at unity gain and despawns the
// request when done.
func DefaultSettings() Settings {
	return Settings{Volume: 1, Repeat: Once, OnComplete: Despawn}
}

// Queued marks requests waiting for assignment.
type Queued struct{}

// Register installs hooks which queue new players. Players are kept out of
// the graph, their parameters are followed by the nodes they're assigned
// to.
func Register(s *store.Store) {
	store.OnAdd[Player](s, func(s *store.Store, e store.Entity) {
		s.InsertIfNew(e, DefaultSettings())
		s.Insert(e, Queued{}, node.Excluded{})
	})
}
