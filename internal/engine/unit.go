// ABOUTME: Track kinds, unit states, and the playback unit contract
// ABOUTME: Defines the per-kind variant surface the engine and transport operate on
package engine

import (
	"errors"
	"fmt"
)

// TrackKind is the tagged variant for track behavior. Every switch over it
// handles all three kinds.
type TrackKind int

const (
	KindAudio TrackKind = iota
	KindMidi
	KindDrum
)

func (k TrackKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindMidi:
		return "midi"
	case KindDrum:
		return "drum"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindFromString parses the wire/CLI spelling of a track kind.
func KindFromString(s string) (TrackKind, error) {
	switch s {
	case "audio":
		return KindAudio, nil
	case "midi":
		return KindMidi, nil
	case "drum":
		return KindDrum, nil
	default:
		return KindAudio, fmt.Errorf("unknown track kind %q", s)
	}
}

// UnitState mirrors the started/stopped flag of a playback unit.
type UnitState int

const (
	UnitStopped UnitState = iota
	UnitStarted
)

func (s UnitState) String() string {
	if s == UnitStarted {
		return "started"
	}
	return "stopped"
}

// Note is a playable note in clip-relative seconds. Musical-time conversion
// happens upstream, where the tempo lives.
type Note struct {
	Start    float64
	Duration float64
	Pitch    uint8
	Velocity uint8
}

// DrumHit is one pad strike inside a drum pattern, in pattern-relative
// seconds.
type DrumHit struct {
	Time     float64
	Row      int
	Velocity uint8
}

// NoteSink receives note events as units trigger them, e.g. to echo to an
// external MIDI port. Implementations must not block the render loop.
type NoteSink interface {
	NoteOn(channel, key, velocity uint8)
	NoteOff(channel, key uint8)
}

// ErrTrackNotFound is returned by unit operations on unknown track ids.
var ErrTrackNotFound = errors.New("engine: track not found")

// errOffsetPastEnd marks a start whose offset lies beyond the clip; the
// engine treats it as a silent no-op rather than a failure.
var errOffsetPastEnd = errors.New("start offset past clip end")

// unit is the playable source owned by a track strip. Implementations are
// not safe for concurrent use; the owning strip's lock serializes access.
type unit interface {
	// start begins playback at an intra-clip offset in seconds.
	start(offset float64) error

	// stop silences the unit; safe to call when already stopped.
	stop()

	// seek repositions a stopped or started unit.
	seek(pos float64)

	state() UnitState

	// duration is the playable length in seconds (0 when unbounded).
	duration() float64

	// render overwrites dst with the next block of interleaved samples and
	// advances the play head. ns may be nil.
	render(dst []int32, frames, rate, channels int, ns NoteSink)
}
