// ABOUTME: Sampler unit playing a decoded clip for audio tracks
// ABOUTME: Tracks a frame head through the clip and auto-stops at the end
package engine

import (
	"github.com/pranav100000/beatgen/pkg/audio"
)

// samplerUnit plays a decoded clip from an arbitrary intra-clip offset.
// Clips arrive conformed to the engine rate and channel count, so rendering
// is a straight copy.
type samplerUnit struct {
	clip *audio.Clip
	head int // frame index into the clip
	st   UnitState
}

func newSampler(clip *audio.Clip) *samplerUnit {
	return &samplerUnit{clip: clip}
}

func (u *samplerUnit) start(offset float64) error {
	if offset < 0 {
		offset = 0
	}
	frame := int(offset * float64(u.clip.Format.SampleRate))
	if frame >= u.clip.Frames() {
		u.st = UnitStopped
		return errOffsetPastEnd
	}
	u.head = frame
	u.st = UnitStarted
	return nil
}

func (u *samplerUnit) stop() {
	u.st = UnitStopped
}

func (u *samplerUnit) seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	frame := int(pos * float64(u.clip.Format.SampleRate))
	if frame > u.clip.Frames() {
		frame = u.clip.Frames()
	}
	u.head = frame
}

func (u *samplerUnit) state() UnitState { return u.st }

func (u *samplerUnit) duration() float64 { return u.clip.Duration() }

func (u *samplerUnit) render(dst []int32, frames, rate, channels int, _ NoteSink) {
	clipChannels := u.clip.Format.Channels
	remaining := u.clip.Frames() - u.head
	n := frames
	if remaining < n {
		n = remaining
	}

	for i := 0; i < n; i++ {
		src := (u.head + i) * clipChannels
		for ch := 0; ch < channels; ch++ {
			// Conform guarantees clipChannels == channels; guard anyway.
			sc := ch
			if sc >= clipChannels {
				sc = clipChannels - 1
			}
			dst[i*channels+ch] = u.clip.Samples[src+sc]
		}
	}
	for i := n * channels; i < frames*channels; i++ {
		dst[i] = 0
	}

	u.head += n
	if u.head >= u.clip.Frames() {
		u.st = UnitStopped
	}
}
