// ABOUTME: Per-track mixing channel with gain ramps, balance pan, and mute
// ABOUTME: Ramp completion is observable so transport transitions can await fades
package engine

import (
	"math"
	"sync"
)

// Channel holds the mixing parameters of one track: nominal volume in dB,
// balance pan, mute, and the current linear gain with an optional ramp in
// flight. Gain moves in per-frame steps so level changes never click.
type Channel struct {
	mu       sync.Mutex
	volumeDB float64
	muted    bool
	pan      float64 // -1 (left) .. +1 (right)
	panL     float64
	panR     float64

	gain     float64 // current linear gain
	target   float64
	rampStep float64
	rampLeft int
	done     chan struct{} // closed when the active ramp lands
}

func newChannel() *Channel {
	c := &Channel{volumeDB: 0, gain: 1, target: 1, panL: 1, panR: 1}
	return c
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// NominalGain is the gain the channel settles at: silence when muted,
// otherwise the dB volume as a linear factor.
func (c *Channel) NominalGain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nominalLocked()
}

func (c *Channel) nominalLocked() float64 {
	if c.muted {
		return 0
	}
	return dbToGain(c.volumeDB)
}

// SetVolumeDB updates the nominal volume. rampFrames > 0 declicks the jump.
func (c *Channel) SetVolumeDB(db float64, rampFrames int) {
	c.mu.Lock()
	c.volumeDB = db
	c.retargetLocked(c.nominalLocked(), rampFrames)
	c.mu.Unlock()
}

// SetMute flips mute, moving gain to or from silence.
func (c *Channel) SetMute(muted bool, rampFrames int) {
	c.mu.Lock()
	c.muted = muted
	c.retargetLocked(c.nominalLocked(), rampFrames)
	c.mu.Unlock()
}

// SetPan sets the stereo balance. Center keeps both sides at unity; panning
// attenuates the far side only.
func (c *Channel) SetPan(pan float64) {
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	c.mu.Lock()
	c.pan = pan
	c.panL = math.Min(1, 1-pan)
	c.panR = math.Min(1, 1+pan)
	c.mu.Unlock()
}

// RampTo moves gain to target over rampFrames; the returned channel closes
// when the ramp lands. rampFrames <= 0 snaps immediately.
func (c *Channel) RampTo(target float64, rampFrames int) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rampLocked(target, rampFrames)
}

// SnapTo jumps gain without ramping (teardown/reset paths).
func (c *Channel) SnapTo(target float64) {
	c.mu.Lock()
	c.rampLocked(target, 0)
	c.mu.Unlock()
}

func (c *Channel) retargetLocked(target float64, rampFrames int) {
	c.rampLocked(target, rampFrames)
}

func (c *Channel) rampLocked(target float64, rampFrames int) <-chan struct{} {
	// A new ramp supersedes the old one; release prior waiters.
	if c.done != nil {
		close(c.done)
		c.done = nil
	}

	if rampFrames <= 0 || c.gain == target {
		c.gain = target
		c.target = target
		c.rampLeft = 0
		closed := make(chan struct{})
		close(closed)
		return closed
	}

	c.target = target
	c.rampLeft = rampFrames
	c.rampStep = (target - c.gain) / float64(rampFrames)
	c.done = make(chan struct{})
	return c.done
}

// step advances the ramp one frame and returns the gain to apply.
func (c *Channel) step() float64 {
	g := c.gain
	if c.rampLeft > 0 {
		c.gain += c.rampStep
		c.rampLeft--
		if c.rampLeft == 0 {
			c.gain = c.target
			if c.done != nil {
				close(c.done)
				c.done = nil
			}
		}
	}
	return g
}

// apply mixes src into the int64 bus with gain and pan applied per frame.
func (c *Channel) apply(bus []int64, src []int32, frames, channels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < frames; i++ {
		g := c.step()
		l := float64(src[i*channels]) * g * c.panL
		bus[i*channels] += int64(l)
		if channels > 1 {
			r := float64(src[i*channels+1]) * g * c.panR
			bus[i*channels+1] += int64(r)
		}
	}
}

// applyBus scales the whole bus in place (master stage, pan ignored).
func (c *Channel) applyBus(bus []int64, frames, channels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < frames; i++ {
		g := c.step()
		for ch := 0; ch < channels; ch++ {
			bus[i*channels+ch] = int64(float64(bus[i*channels+ch]) * g)
		}
	}
}

// advance moves ramp bookkeeping forward when the track produced no audio
// this block, so fades land on schedule either way.
func (c *Channel) advance(frames int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < frames && c.rampLeft > 0; i++ {
		c.step()
	}
}

// Gain returns the current linear gain.
func (c *Channel) Gain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

// VolumeDB returns the nominal volume.
func (c *Channel) VolumeDB() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volumeDB
}

// Muted reports the mute flag.
func (c *Channel) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Pan returns the balance position.
func (c *Channel) Pan() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pan
}
