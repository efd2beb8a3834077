// ABOUTME: Drum unit rendering step patterns with synthesized kit voices
// ABOUTME: Kick/snare/hat voices use sine drops and LFSR noise, looped per pattern
package engine

import (
	"math"
)

// KitRows is the number of pad rows in a drum grid.
const KitRows = 8

// Kit row order: kick, snare, closed hat, open hat, clap, low tom, high tom,
// crash. GM note numbers for external MIDI echo.
var kitGMNotes = [KitRows]uint8{36, 38, 42, 46, 39, 45, 50, 49}

// KitRowName names a pad row for UIs.
func KitRowName(row int) string {
	names := [KitRows]string{"kick", "snare", "chat", "ohat", "clap", "ltom", "htom", "crash"}
	if row < 0 || row >= KitRows {
		return "?"
	}
	return names[row]
}

type drumVoice struct {
	row      int
	key      uint8
	age      int
	dur      int
	delay    int
	phase    float64
	noise    uint16 // LFSR state
	amp      float64
	offSent  bool
	finished bool
}

// drumUnit plays a pattern of hits, looping it across the unit's region.
type drumUnit struct {
	hits       []DrumHit // sorted by Time
	patternLen float64   // seconds; 0 disables looping
	loop       bool
	pos        float64
	st         UnitState
	voices     []*drumVoice
	midiCh     uint8
}

func newDrumKit() *drumUnit {
	return &drumUnit{midiCh: 9, loop: true}
}

func (u *drumUnit) setPattern(hits []DrumHit, patternLen float64, loop bool) {
	sorted := make([]DrumHit, len(hits))
	copy(sorted, hits)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Time < sorted[j-1].Time; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	u.hits = sorted
	u.patternLen = patternLen
	u.loop = loop && patternLen > 0
}

func (u *drumUnit) start(offset float64) error {
	if offset < 0 {
		offset = 0
	}
	u.pos = offset
	u.st = UnitStarted
	u.voices = u.voices[:0]
	return nil
}

func (u *drumUnit) stop() {
	u.st = UnitStopped
	u.voices = u.voices[:0]
}

func (u *drumUnit) seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	u.pos = pos
	u.voices = u.voices[:0]
}

func (u *drumUnit) state() UnitState { return u.st }

func (u *drumUnit) duration() float64 { return u.patternLen }

// voiceDur returns the voice length in frames for a kit row.
func voiceDur(row, rate int) int {
	ms := 120
	switch row {
	case 1:
		ms = 90
	case 2:
		ms = 25
	case 3:
		ms = 160
	case 4:
		ms = 80
	case 5, 6:
		ms = 140
	case 7:
		ms = 600
	}
	return ms * rate / 1000
}

func (u *drumUnit) trigger(hit DrumHit, delay, rate int, ns NoteSink) {
	key := uint8(0)
	if hit.Row >= 0 && hit.Row < KitRows {
		key = kitGMNotes[hit.Row]
	}
	u.voices = append(u.voices, &drumVoice{
		row:   hit.Row,
		key:   key,
		dur:   voiceDur(hit.Row, rate),
		delay: delay,
		noise: 0xACE1,
		amp:   float64(hit.Velocity) / 127 * voicePeak * 1.4,
	})
	if ns != nil && key != 0 {
		ns.NoteOn(u.midiCh, key, hit.Velocity)
	}
}

func (u *drumUnit) render(dst []int32, frames, rate, channels int, ns NoteSink) {
	blockDur := float64(frames) / float64(rate)
	end := u.pos + blockDur

	if u.loop && u.patternLen > 0 {
		firstCycle := int(math.Floor(u.pos / u.patternLen))
		lastCycle := int(math.Floor(end / u.patternLen))
		for k := firstCycle; k <= lastCycle; k++ {
			base := float64(k) * u.patternLen
			for _, h := range u.hits {
				t := base + h.Time
				if t >= u.pos && t < end {
					u.trigger(h, int((t-u.pos)*float64(rate)), rate, ns)
				}
			}
		}
	} else {
		for _, h := range u.hits {
			if h.Time >= u.pos && h.Time < end {
				u.trigger(h, int((h.Time-u.pos)*float64(rate)), rate, ns)
			}
		}
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
			if v.age >= v.dur {
				v.finished = true
				if !v.offSent {
					v.offSent = true
					if ns != nil && v.key != 0 {
						ns.NoteOff(u.midiCh, v.key)
					}
				}
				continue
			}

			decay := 1 - float64(v.age)/float64(v.dur)
			sum += v.sample(rate) * v.amp * decay * decay
			v.age++
		}

		s := int32(sum)
		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = s
		}
	}

	alive := u.voices[:0]
	for _, v := range u.voices {
		if !v.finished {
			alive = append(alive, v)
		}
	}
	u.voices = alive

	u.pos = end
}

// sample produces one frame of the row's raw timbre in [-1, 1].
func (v *drumVoice) sample(rate int) float64 {
	switch v.row {
	case 0: // kick: sine dropping 120Hz -> 45Hz
		t := float64(v.age) / float64(v.dur)
		freq := 120 - 75*t
		v.phase += 2 * math.Pi * freq / float64(rate)
		return math.Sin(v.phase)
	case 1: // snare: noise over a 190Hz body
		v.phase += 2 * math.Pi * 190 / float64(rate)
		return 0.6*v.nextNoise() + 0.4*math.Sin(v.phase)
	case 5: // low tom
		v.phase += 2 * math.Pi * 110 / float64(rate)
		return math.Sin(v.phase)
	case 6: // high tom
		v.phase += 2 * math.Pi * 180 / float64(rate)
		return math.Sin(v.phase)
	default: // hats, clap, crash: shaped noise
		return v.nextNoise()
	}
}

// nextNoise steps a 16-bit Fibonacci LFSR and maps the state to [-1, 1].
func (v *drumVoice) nextNoise() float64 {
	bit := (v.noise ^ (v.noise >> 1) ^ (v.noise >> 3) ^ (v.noise >> 12)) & 1
	v.noise = (v.noise >> 1) | (bit << 15)
	return float64(int32(v.noise))/32768 - 1
}
