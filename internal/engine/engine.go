// ABOUTME: Mixing engine owning per-track channels, playback units, and the master bus
// ABOUTME: Renders 20ms blocks to a sink and exposes the unit control surface the transport drives
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pranav100000/beatgen/pkg/audio"
	"github.com/pranav100000/beatgen/pkg/audio/decode"
	"github.com/pranav100000/beatgen/pkg/audio/output"
)

const (
	defaultSampleRate = 48000
	defaultBlockMs    = 20
	declickMs         = 5
)

// Config controls engine construction. Zero values get sensible defaults.
type Config struct {
	SampleRate int
	BlockMs    int
	Sink       output.Sink

	// OnTrackReady fires after an async decode binds a clip to its track.
	OnTrackReady func(trackID string, duration float64)

	// OnError receives render-path and decode failures.
	OnError func(err error)
}

// strip is the per-track mixing state: one channel, one optional unit, and
// the synced flag the transport maintains.
type strip struct {
	id      string
	kind    TrackKind
	channel *Channel

	mu     sync.Mutex
	unit   unit
	clip   *audio.Clip
	synced bool
}

// Engine owns the mixing graph. One instance per session, injected into
// everything that needs it.
type Engine struct {
	cfg         Config
	format      audio.Format
	blockFrames int

	mu     sync.RWMutex
	strips map[string]*strip
	order  []string

	master *Channel

	tapMu sync.Mutex
	taps  map[int]func(block []int32)
	tapID int

	noteSinkMu sync.RWMutex
	noteSink   NoteSink

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New constructs an engine. The sink is not opened until Start.
func New(cfg Config) *Engine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.BlockMs == 0 {
		cfg.BlockMs = defaultBlockMs
	}
	if cfg.Sink == nil {
		cfg.Sink = output.Null{}
	}

	e := &Engine{
		cfg: cfg,
		format: audio.Format{
			Codec:      "pcm",
			SampleRate: cfg.SampleRate,
			Channels:   2,
			BitDepth:   16,
		},
		strips: make(map[string]*strip),
		master: newChannel(),
		taps:   make(map[int]func(block []int32)),
	}
	e.blockFrames = cfg.SampleRate * cfg.BlockMs / 1000
	return e
}

// Format returns the bus layout (always stereo).
func (e *Engine) Format() audio.Format { return e.format }

// Running reports whether the render loop is live.
func (e *Engine) Running() bool { return e.running.Load() }

// Start opens the sink and begins rendering. A sink failure here is the
// fatal initialization error: playback cannot work, but nothing else is
// corrupted.
func (e *Engine) Start() error {
	if e.running.Load() {
		return nil
	}
	if err := e.cfg.Sink.Start(e.format); err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running.Store(true)
	e.wg.Add(1)
	go e.renderLoop()

	log.Printf("[engine] render loop started: %dHz stereo, %dms blocks", e.format.SampleRate, e.cfg.BlockMs)
	return nil
}

// Close stops rendering and releases the sink.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.running.Store(false)
		e.wg.Wait()
		err = e.cfg.Sink.Close()
	})
	return err
}

func (e *Engine) renderLoop() {
	defer e.wg.Done()

	bus := make([]int64, e.blockFrames*2)
	scratch := make([]int32, e.blockFrames*2)
	tapBlock := make([]int32, e.blockFrames*2)
	pcm := make([]byte, e.blockFrames*2*2)

	writeBlock := func() bool {
		e.renderBlock(bus, scratch, tapBlock, pcm)
		if _, err := e.cfg.Sink.Write(pcm); err != nil {
			select {
			case <-e.ctx.Done():
			default:
				log.Printf("[engine] sink write failed: %v", err)
				e.reportError(fmt.Errorf("sink write: %w", err))
			}
			return false
		}
		return true
	}

	if e.cfg.Sink.Paced() {
		// The device paces us through Write backpressure.
		for {
			select {
			case <-e.ctx.Done():
				return
			default:
			}
			if !writeBlock() {
				select {
				case <-e.ctx.Done():
					return
				case <-time.After(time.Duration(e.cfg.BlockMs) * time.Millisecond):
				}
			}
		}
	}

	ticker := time.NewTicker(time.Duration(e.cfg.BlockMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			writeBlock()
		}
	}
}

// renderBlock mixes one block: units into the bus through their channels,
// master stage, taps, then int16 conversion into pcm.
func (e *Engine) renderBlock(bus []int64, scratch []int32, tapBlock []int32, pcm []byte) {
	frames := e.blockFrames
	rate := e.format.SampleRate
	channels := 2

	for i := range bus {
		bus[i] = 0
	}

	e.mu.RLock()
	strips := make([]*strip, 0, len(e.order))
	for _, id := range e.order {
		strips = append(strips, e.strips[id])
	}
	e.mu.RUnlock()

	ns := e.currentNoteSink()

	for _, s := range strips {
		s.mu.Lock()
		if s.unit != nil && s.unit.state() == UnitStarted {
			s.unit.render(scratch, frames, rate, channels, ns)
			s.channel.apply(bus, scratch, frames, channels)
		} else {
			s.channel.advance(frames)
		}
		s.mu.Unlock()
	}

	e.master.applyBus(bus, frames, channels)

	for i := range bus {
		tapBlock[i] = audio.Clamp24(bus[i])
	}

	e.tapMu.Lock()
	for _, fn := range e.taps {
		fn(tapBlock)
	}
	e.tapMu.Unlock()

	for i, s := range tapBlock {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(audio.SampleToInt16(s)))
	}
}

func (e *Engine) reportError(err error) {
	if e.cfg.OnError != nil {
		e.cfg.OnError(err)
	}
}

func (e *Engine) currentNoteSink() NoteSink {
	e.noteSinkMu.RLock()
	defer e.noteSinkMu.RUnlock()
	return e.noteSink
}

// SetNoteSink routes unit note events (synth/drum triggers) to ns; nil
// disconnects.
func (e *Engine) SetNoteSink(ns NoteSink) {
	e.noteSinkMu.Lock()
	e.noteSink = ns
	e.noteSinkMu.Unlock()
}

// AddTap registers a master-bus observer; the returned func removes it.
// Taps run on the render goroutine and must be fast.
func (e *Engine) AddTap(fn func(block []int32)) (remove func()) {
	e.tapMu.Lock()
	id := e.tapID
	e.tapID++
	e.taps[id] = fn
	e.tapMu.Unlock()
	return func() {
		e.tapMu.Lock()
		delete(e.taps, id)
		e.tapMu.Unlock()
	}
}

// declickFrames is the ramp length for parameter changes; zero when the
// render loop is not running so ramps cannot strand waiters.
func (e *Engine) declickFrames() int {
	if !e.running.Load() {
		return 0
	}
	return declickMs * e.format.SampleRate / 1000
}

func (e *Engine) framesFor(d time.Duration) int {
	if !e.running.Load() {
		return 0
	}
	return int(d.Seconds() * float64(e.format.SampleRate))
}

// --- track lifecycle ---

// CreateTrack builds a strip for the id, replacing any existing one. Audio
// tracks with a source path decode asynchronously; midi/drum tracks get
// their units immediately.
func (e *Engine) CreateTrack(id string, kind TrackKind, sourcePath string) error {
	// Idempotent cleanup of a same-id leftover.
	e.RemoveTrack(id)

	s := &strip{id: id, kind: kind, channel: newChannel()}
	switch kind {
	case KindAudio:
		// Unit arrives when the decode completes.
	case KindMidi:
		s.unit = newSynth()
	case KindDrum:
		s.unit = newDrumKit()
	}

	e.mu.Lock()
	e.strips[id] = s
	e.order = append(e.order, id)
	e.mu.Unlock()

	if kind == KindAudio && sourcePath != "" {
		go e.decodeInto(id, sourcePath)
	}
	return nil
}

// CreateTrackWithClip builds an audio strip bound to an already-decoded clip.
func (e *Engine) CreateTrackWithClip(id string, kind TrackKind, clip *audio.Clip) error {
	if err := e.CreateTrack(id, kind, ""); err != nil {
		return err
	}
	if kind == KindAudio && clip != nil {
		e.BindClip(id, clip)
	}
	return nil
}

func (e *Engine) decodeInto(id, path string) {
	clip, err := decode.File(path, e.format.SampleRate, 2)
	if err != nil {
		log.Printf("[engine] decode for track %s failed: %v", id, err)
		e.reportError(fmt.Errorf("decode track %s: %w", id, err))
		return
	}
	e.BindClip(id, clip)
}

// BindClip attaches a decoded clip to an audio track. A track removed while
// decoding discards the clip silently.
func (e *Engine) BindClip(id string, clip *audio.Clip) {
	s := e.strip(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.clip = clip
	s.unit = newSampler(clip)
	s.mu.Unlock()

	if e.cfg.OnTrackReady != nil {
		e.cfg.OnTrackReady(id, clip.Duration())
	}
}

// ClipOf returns the decoded clip bound to a track, or nil.
func (e *Engine) ClipOf(id string) *audio.Clip {
	s := e.strip(id)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// RemoveTrack stops and disposes a strip; no-op for unknown ids.
func (e *Engine) RemoveTrack(id string) {
	e.mu.Lock()
	s, ok := e.strips[id]
	if ok {
		delete(e.strips, id)
		for i, oid := range e.order {
			if oid == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	if ok {
		s.mu.Lock()
		if s.unit != nil {
			s.unit.stop()
		}
		s.synced = false
		s.mu.Unlock()
	}
}

// HasTrack reports whether a strip exists for the id.
func (e *Engine) HasTrack(id string) bool {
	return e.strip(id) != nil
}

func (e *Engine) strip(id string) *strip {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strips[id]
}

// --- channel parameters ---

// SetTrackVolume sets the nominal volume in dB.
func (e *Engine) SetTrackVolume(id string, db float64) {
	if s := e.strip(id); s != nil {
		s.channel.SetVolumeDB(db, e.declickFrames())
	}
}

// SetTrackPan sets stereo balance in [-1, 1].
func (e *Engine) SetTrackPan(id string, pan float64) {
	if s := e.strip(id); s != nil {
		s.channel.SetPan(pan)
	}
}

// SetTrackMute flips the channel mute; audible volume is mute ? silence :
// volume.
func (e *Engine) SetTrackMute(id string, muted bool) {
	if s := e.strip(id); s != nil {
		s.channel.SetMute(muted, e.declickFrames())
	}
}

// SetMasterVolume sets the master stage in dB.
func (e *Engine) SetMasterVolume(db float64) {
	e.master.SetVolumeDB(db, e.declickFrames())
}

// MasterVolume returns the master stage dB value.
func (e *Engine) MasterVolume() float64 {
	return e.master.VolumeDB()
}

// Channel exposes a track's channel (tests, UI meters).
func (e *Engine) Channel(id string) *Channel {
	if s := e.strip(id); s != nil {
		return s.channel
	}
	return nil
}

// --- snapshots ---

// TrackSnapshot is a point-in-time view of one strip.
type TrackSnapshot struct {
	ID       string
	Kind     TrackKind
	State    UnitState
	Synced   bool
	Duration float64
	VolumeDB float64
	Pan      float64
	Muted    bool
}

// Tracks returns snapshots in creation order.
func (e *Engine) Tracks() []TrackSnapshot {
	e.mu.RLock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	e.mu.RUnlock()

	out := make([]TrackSnapshot, 0, len(ids))
	for _, id := range ids {
		s := e.strip(id)
		if s == nil {
			continue
		}
		s.mu.Lock()
		snap := TrackSnapshot{
			ID:       s.id,
			Kind:     s.kind,
			Synced:   s.synced,
			VolumeDB: s.channel.VolumeDB(),
			Pan:      s.channel.Pan(),
			Muted:    s.channel.Muted(),
		}
		if s.unit != nil {
			snap.State = s.unit.state()
			snap.Duration = s.unit.duration()
		}
		s.mu.Unlock()
		out = append(out, snap)
	}
	return out
}

// UnitState reports a track's unit state; unknown or unbound units read as
// stopped.
func (e *Engine) UnitState(id string) UnitState {
	s := e.strip(id)
	if s == nil {
		return UnitStopped
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unit == nil {
		return UnitStopped
	}
	return s.unit.state()
}

// StartedCount counts strips whose units are started.
func (e *Engine) StartedCount() int {
	e.mu.RLock()
	strips := make([]*strip, 0, len(e.strips))
	for _, s := range e.strips {
		strips = append(strips, s)
	}
	e.mu.RUnlock()

	n := 0
	for _, s := range strips {
		s.mu.Lock()
		if s.unit != nil && s.unit.state() == UnitStarted {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// --- unit control (the transport's surface) ---

// StartUnit starts a track's unit at an intra-clip offset. fadeIn > 0 ramps
// the channel up from silence (deferred starts); zero snaps to nominal
// volume (immediate starts). A track whose clip is still decoding stays
// silent and returns nil: that is absence, not failure.
func (e *Engine) StartUnit(id string, offset float64, fadeIn time.Duration) error {
	s := e.strip(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unit == nil {
		log.Printf("[engine] track %s has no unit yet, staying silent", id)
		return nil
	}
	if s.unit.state() == UnitStarted {
		s.unit.stop()
	}

	if err := s.unit.start(offset); err != nil {
		if err == errOffsetPastEnd {
			log.Printf("[engine] track %s offset %.3fs is past clip end, skipping", id, offset)
			return nil
		}
		return fmt.Errorf("start track %s: %w", id, err)
	}

	nominal := s.channel.NominalGain()
	if fadeIn > 0 {
		s.channel.SnapTo(0)
		s.channel.RampTo(nominal, e.framesFor(fadeIn))
	} else {
		s.channel.SnapTo(nominal)
	}
	return nil
}

// StopUnit stops a track's unit; idempotent.
func (e *Engine) StopUnit(id string) {
	if s := e.strip(id); s != nil {
		s.mu.Lock()
		if s.unit != nil {
			s.unit.stop()
		}
		s.mu.Unlock()
	}
}

// SeekUnit repositions a track's unit head.
func (e *Engine) SeekUnit(id string, pos float64) {
	if s := e.strip(id); s != nil {
		s.mu.Lock()
		if s.unit != nil {
			s.unit.seek(pos)
		}
		s.mu.Unlock()
	}
}

// SyncUnit marks the unit as following the clock.
func (e *Engine) SyncUnit(id string) {
	if s := e.strip(id); s != nil {
		s.mu.Lock()
		s.synced = true
		s.mu.Unlock()
	}
}

// UnsyncUnit detaches the unit from the clock.
func (e *Engine) UnsyncUnit(id string) {
	if s := e.strip(id); s != nil {
		s.mu.Lock()
		s.synced = false
		s.mu.Unlock()
	}
}

// Synced reports the sync flag.
func (e *Engine) Synced(id string) bool {
	s := e.strip(id)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// ResetUnit force-stops, unsyncs, and restores nominal volume: the
// idempotent teardown used before rescheduling.
func (e *Engine) ResetUnit(id string) {
	s := e.strip(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.unit != nil {
		s.unit.stop()
	}
	s.synced = false
	s.channel.SnapTo(s.channel.NominalGain())
	s.mu.Unlock()
}

// ResetAll applies ResetUnit to every strip.
func (e *Engine) ResetAll() {
	for _, id := range e.trackIDs() {
		e.ResetUnit(id)
	}
}

// StopStarted stops only units currently started, keeping them synced for
// the next play.
func (e *Engine) StopStarted() {
	for _, id := range e.trackIDs() {
		s := e.strip(id)
		if s == nil {
			continue
		}
		s.mu.Lock()
		if s.unit != nil && s.unit.state() == UnitStarted {
			s.unit.stop()
		}
		s.mu.Unlock()
	}
}

// PauseAll performs no unit manipulation: paused playback relies on units
// staying synced to a clock that is no longer advancing.
func (e *Engine) PauseAll() {
	log.Printf("[engine] pause: units remain synced to the paused clock")
}

// FadeOutStarted ramps every started track to silence over d and returns
// one completion channel per ramp. With the render loop stopped the ramps
// snap and the channels come back already closed.
func (e *Engine) FadeOutStarted(d time.Duration) []<-chan struct{} {
	frames := e.framesFor(d)
	var dones []<-chan struct{}
	for _, id := range e.trackIDs() {
		s := e.strip(id)
		if s == nil {
			continue
		}
		s.mu.Lock()
		if s.unit != nil && s.unit.state() == UnitStarted {
			dones = append(dones, s.channel.RampTo(0, frames))
		}
		s.mu.Unlock()
	}
	return dones
}

func (e *Engine) trackIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	return ids
}

// --- musical unit data ---

// SetUnitNotes replaces a midi track's note schedule (clip-relative
// seconds).
func (e *Engine) SetUnitNotes(id string, notes []Note) {
	s := e.strip(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.unit.(*synthUnit); ok {
		u.setNotes(notes)
	} else {
		log.Printf("[engine] SetUnitNotes on non-midi track %s (%s)", id, s.kind)
	}
}

// SetUnitPattern replaces a drum track's pattern.
func (e *Engine) SetUnitPattern(id string, hits []DrumHit, patternLen float64, loop bool) {
	s := e.strip(id)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.unit.(*drumUnit); ok {
		u.setPattern(hits, patternLen, loop)
	} else {
		log.Printf("[engine] SetUnitPattern on non-drum track %s (%s)", id, s.kind)
	}
}
