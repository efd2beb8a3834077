// ABOUTME: Polyphonic synth unit for MIDI tracks
// ABOUTME: Triggers sine voices from a note list with attack/release envelopes
package engine

import (
	"math"
	"sort"
)

const (
	synthAttackMs  = 4
	synthReleaseMs = 30
	// Peak amplitude of one full-velocity voice on the 24-bit bus.
	voicePeak = 2000000
)

type synthVoice struct {
	pitch    uint8
	freq     float64
	phase    float64
	amp      float64
	delay    int // frames until the voice becomes audible within this block
	age      int // frames since trigger
	sustain  int // frames of attack+hold before release
	release  int
	noteOff  bool // off event delivered
	finished bool
}

// synthUnit renders a track's note list. Notes are clip-relative seconds,
// pre-converted from beats by the owner.
type synthUnit struct {
	notes  []Note // sorted by Start
	next   int    // index of the first untriggered note
	pos    float64
	st     UnitState
	voices []*synthVoice
	midiCh uint8
	length float64
}

func newSynth() *synthUnit {
	return &synthUnit{midiCh: 0}
}

// setNotes replaces the schedule. Callers keep the unit stopped or accept
// that already-running playback picks up the new list at the next start.
func (u *synthUnit) setNotes(notes []Note) {
	sorted := make([]Note, len(notes))
	copy(sorted, notes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	u.notes = sorted
	u.length = 0
	for _, n := range sorted {
		if end := n.Start + n.Duration; end > u.length {
			u.length = end
		}
	}
}

func (u *synthUnit) start(offset float64) error {
	if offset < 0 {
		offset = 0
	}
	u.pos = offset
	u.st = UnitStarted
	u.voices = u.voices[:0]
	// Notes already past their start are skipped; the region is entered
	// mid-note, not replayed.
	u.next = sort.Search(len(u.notes), func(i int) bool { return u.notes[i].Start >= offset })
	return nil
}

func (u *synthUnit) stop() {
	u.st = UnitStopped
	u.voices = u.voices[:0]
}

func (u *synthUnit) seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	u.pos = pos
	u.voices = u.voices[:0]
	u.next = sort.Search(len(u.notes), func(i int) bool { return u.notes[i].Start >= pos })
}

func (u *synthUnit) state() UnitState { return u.st }

func (u *synthUnit) duration() float64 { return u.length }

func midiFreq(pitch uint8) float64 {
	return 440 * math.Pow(2, (float64(pitch)-69)/12)
}

func (u *synthUnit) render(dst []int32, frames, rate, channels int, ns NoteSink) {
	blockDur := float64(frames) / float64(rate)
	end := u.pos + blockDur

	for u.next < len(u.notes) && u.notes[u.next].Start < end {
		n := u.notes[u.next]
		delay := int((n.Start - u.pos) * float64(rate))
		if delay < 0 {
			delay = 0
		}
		sustain := int(n.Duration * float64(rate))
		if sustain < 1 {
			sustain = 1
		}
		u.voices = append(u.voices, &synthVoice{
			pitch:   n.Pitch,
			freq:    midiFreq(n.Pitch),
			amp:     float64(n.Velocity) / 127 * voicePeak,
			delay:   delay,
			sustain: sustain,
			release: synthReleaseMs * rate / 1000,
		})
		if ns != nil {
			ns.NoteOn(u.midiCh, n.Pitch, n.Velocity)
		}
		u.next++
	}

	attack := synthAttackMs * rate / 1000
	if attack < 1 {
		attack = 1
	}

	for i := 0; i < frames; i++ {
		var sum float64
		for _, v := range u.voices {
			if v.finished {
				continue
			}
			if v.delay > 0 {
				v.delay--
				continue
			}

			env := 1.0
			switch {
			case v.age < attack:
				env = float64(v.age) / float64(attack)
			case v.age >= v.sustain:
				rel := v.age - v.sustain
				if !v.noteOff {
					v.noteOff = true
					if ns != nil {
						ns.NoteOff(u.midiCh, v.pitch)
					}
				}
				if rel >= v.release {
					v.finished = true
					continue
				}
				env = 1 - float64(rel)/float64(v.release)
			}

			sum += math.Sin(v.phase) * v.amp * env
			v.phase += 2 * math.Pi * v.freq / float64(rate)
			v.age++
		}

		s := int32(sum)
		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = s
		}
	}

	// Compact finished voices.
	alive := u.voices[:0]
	for _, v := range u.voices {
		if !v.finished {
			alive = append(alive, v)
		}
	}
	u.voices = alive

	u.pos = end
}
