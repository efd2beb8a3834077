// ABOUTME: Playback transport coordinating the clock, scheduler, and engine units
// ABOUTME: Every transition tears down pending callbacks before touching units
package transport

import (
	"log"
	"sync"
	"time"

	"github.com/pranav100000/beatgen/internal/engine"
)

const (
	// Deferred starts land this much after their computed delay so the
	// scheduler never has to hit an exact boundary.
	safetyBuffer = 10 * time.Millisecond
	stopFade     = 15 * time.Millisecond
	startFade    = 8 * time.Millisecond
	// Transitions never block longer than this waiting on fades.
	fadeWaitLimit = 250 * time.Millisecond
)

// State is the transport's coarse mode.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Placement locates one track on the shared timeline.
type Placement struct {
	TrackID string
	X       float64 // horizontal offset in pixels
}

// Layout supplies the current arrangement. The transport reads it fresh on
// every transition, never caching positions across plays.
type Layout interface {
	Placements() []Placement
}

// Config seeds the transport's musical parameters.
type Config struct {
	Tempo           float64
	BeatsPerMeasure int
	BeatUnit        int

	// OnStateChange fires after a transition completes, outside the
	// transport lock.
	OnStateChange func(State)

	// OnError receives per-track start failures that playback survives.
	OnError func(err error)
}

// Transport drives playback. All transitions are serialized under one lock,
// and deferred starts carry a generation stamp so a start scheduled before a
// teardown can never fire after it.
type Transport struct {
	engine *engine.Engine
	layout Layout
	clock  *Clock
	sched  *Scheduler

	mu              sync.Mutex
	state           State
	tempo           float64
	beatsPerMeasure int
	beatUnit        int
	gen             uint64
	pending         map[string]Handle

	onStateChange func(State)
	onError       func(error)
}

// New builds a transport over an engine and a layout. The scheduler
// goroutine starts immediately; Close releases it.
func New(eng *engine.Engine, layout Layout, cfg Config) *Transport {
	if cfg.Tempo == 0 {
		cfg.Tempo = 120
	}
	if cfg.BeatsPerMeasure == 0 {
		cfg.BeatsPerMeasure = 4
	}
	if cfg.BeatUnit == 0 {
		cfg.BeatUnit = 4
	}
	return &Transport{
		engine:          eng,
		layout:          layout,
		clock:           NewClock(),
		sched:           NewScheduler(),
		state:           StateStopped,
		tempo:           ClampTempo(cfg.Tempo),
		beatsPerMeasure: cfg.BeatsPerMeasure,
		beatUnit:        cfg.BeatUnit,
		pending:         make(map[string]Handle),
		onStateChange:   cfg.OnStateChange,
		onError:         cfg.OnError,
	}
}

// Close stops the scheduler. The transport is unusable afterwards.
func (t *Transport) Close() {
	t.sched.Stop()
}

// State returns the current mode.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Playing reports whether the playhead is advancing.
func (t *Transport) Playing() bool {
	return t.State() == StatePlaying
}

// Position returns the playhead in seconds.
func (t *Transport) Position() float64 {
	return t.clock.Position()
}

// Tempo returns the playable tempo in BPM.
func (t *Transport) Tempo() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tempo
}

// TimeSignature returns the meter.
func (t *Transport) TimeSignature() (num, den int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.beatsPerMeasure, t.beatUnit
}

// PendingCount reports deferred starts still waiting to fire.
func (t *Transport) PendingCount() int {
	return t.sched.PendingCount()
}

// SchedulerStats exposes dispatch counters.
func (t *Transport) SchedulerStats() (fired, canceled, late int) {
	return t.sched.GetStats()
}

// MaxPosition returns the session length (furthest track end) in seconds.
func (t *Transport) MaxPosition() float64 {
	t.mu.Lock()
	t.refreshLengthLocked()
	t.mu.Unlock()
	return t.clock.MaxPosition()
}

// Play starts playback from the current position. Tracks whose offset has
// already passed start immediately partway in; tracks still ahead get a
// deferred start with a fade-in.
func (t *Transport) Play() error {
	t.mu.Lock()
	err := t.playFromLocked(t.clock.Position())
	st := t.state
	t.mu.Unlock()
	t.notify(st)
	return err
}

// Pause ramps the mix to silence, stops units while keeping them synced,
// and freezes the clock.
func (t *Transport) Pause() {
	t.mu.Lock()
	if t.state != StatePlaying {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.cancelPendingLocked()
	waitFades(t.engine.FadeOutStarted(stopFade))
	t.engine.StopStarted()
	t.engine.PauseAll()
	t.clock.Pause()
	t.state = StatePaused
	st := t.state
	t.mu.Unlock()

	log.Printf("[transport] paused at %.3fs", t.clock.Position())
	t.notify(st)
}

// Stop halts playback and resets the playhead to zero. Safe from any state;
// the position reset always happens.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.teardownLocked()
	t.clock.Pause()
	t.clock.SetPosition(0)
	t.state = StateStopped
	st := t.state
	t.mu.Unlock()

	log.Printf("[transport] stopped, playhead reset")
	t.notify(st)
}

// Seek moves the playhead, clamped to [0, session length]. If playback was
// running it resumes from the new position before Seek returns.
func (t *Transport) Seek(pos float64) error {
	t.mu.Lock()
	t.refreshLengthLocked()
	wasPlaying := t.state == StatePlaying

	var err error
	if wasPlaying {
		err = t.playFromLocked(pos)
	} else {
		t.teardownLocked()
		t.clock.Pause()
		t.clock.SetPosition(pos)
	}
	st := t.state
	t.mu.Unlock()

	log.Printf("[transport] seek to %.3fs (resumed=%v)", t.clock.Position(), wasPlaying)
	t.notify(st)
	return err
}

// SetTempo clamps bpm to the playable range and applies it. A tempo change
// while playing reschedules everything from the current position, since
// every pixel offset now maps to a different second.
func (t *Transport) SetTempo(bpm float64) float64 {
	t.mu.Lock()
	clamped := ClampTempo(bpm)
	if clamped != bpm {
		log.Printf("[transport] tempo %.1f clamped to %.1f", bpm, clamped)
	}
	t.tempo = clamped
	t.refreshLengthLocked()

	var err error
	if t.state == StatePlaying {
		err = t.playFromLocked(t.clock.Position())
	}
	st := t.state
	t.mu.Unlock()

	if err != nil {
		t.reportError(err)
	}
	t.notify(st)
	return clamped
}

// SetTimeSignature applies a new meter; while playing this reschedules like
// a tempo change because the pixel mapping moves.
func (t *Transport) SetTimeSignature(num, den int) {
	if num < 1 || den < 1 {
		return
	}
	t.mu.Lock()
	t.beatsPerMeasure = num
	t.beatUnit = den
	t.refreshLengthLocked()

	var err error
	if t.state == StatePlaying {
		err = t.playFromLocked(t.clock.Position())
	}
	st := t.state
	t.mu.Unlock()

	if err != nil {
		t.reportError(err)
	}
	t.notify(st)
}

// HandleTrackMoved reacts to a track changing its timeline offset. Nothing
// happens unless playback is running; then the whole schedule rebuilds from
// the current position.
func (t *Transport) HandleTrackMoved(trackID string) {
	t.mu.Lock()
	if t.state != StatePlaying {
		t.mu.Unlock()
		return
	}
	log.Printf("[transport] track %s moved mid-play, rescheduling", trackID)
	err := t.playFromLocked(t.clock.Position())
	st := t.state
	t.mu.Unlock()

	if err != nil {
		t.reportError(err)
	}
	t.notify(st)
}

// playFromLocked is the one path that starts playback: full teardown, fresh
// layout read, immediate or deferred start per track, clock resume.
func (t *Transport) playFromLocked(pos float64) error {
	t.teardownLocked()
	t.clock.Pause()
	t.refreshLengthLocked()
	t.clock.SetPosition(pos)
	pos = t.clock.Position()

	placements := t.layout.Placements()
	gen := t.gen
	immediate, deferred := 0, 0

	for _, p := range placements {
		offset := PixelsToSeconds(p.X, t.tempo, t.beatsPerMeasure)
		playTime := pos - offset

		if playTime >= 0 {
			if err := t.engine.StartUnit(p.TrackID, playTime, 0); err != nil {
				// One track failing must not silence the rest.
				log.Printf("[transport] start %s failed: %v", p.TrackID, err)
				t.reportError(err)
				continue
			}
			t.engine.SyncUnit(p.TrackID)
			immediate++
			continue
		}

		delay := time.Duration(-playTime*float64(time.Second)) + safetyBuffer
		id := p.TrackID
		h := t.sched.Schedule(delay, func() { t.deferredStart(gen, id) })
		t.pending[id] = h
		t.engine.SyncUnit(id)
		deferred++
	}

	t.clock.Resume()
	t.state = StatePlaying
	log.Printf("[transport] playing from %.3fs: %d immediate, %d deferred", pos, immediate, deferred)
	return nil
}

// deferredStart runs on the scheduler goroutine when a track's timeline
// offset arrives. A generation mismatch means a teardown happened after
// this was scheduled, so it must do nothing.
func (t *Transport) deferredStart(gen uint64, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.state != StatePlaying {
		return
	}
	delete(t.pending, id)
	if err := t.engine.StartUnit(id, 0, startFade); err != nil {
		log.Printf("[transport] deferred start %s failed: %v", id, err)
		t.reportError(err)
	}
}

// teardownLocked is the invariant every transition relies on: no callback
// scheduled before this point may touch a unit after it. Cancels everything
// pending, fades out, force-stops, unsyncs, restores volumes.
func (t *Transport) teardownLocked() {
	t.gen++
	t.cancelPendingLocked()
	waitFades(t.engine.FadeOutStarted(stopFade))
	t.engine.ResetAll()
}

func (t *Transport) cancelPendingLocked() {
	if n := t.sched.CancelAll(); n > 0 {
		log.Printf("[transport] canceled %d pending starts", n)
	}
	t.pending = make(map[string]Handle)
}

// refreshLengthLocked recomputes the session length from the layout and the
// engine's clip durations.
func (t *Transport) refreshLengthLocked() {
	durations := make(map[string]float64)
	for _, snap := range t.engine.Tracks() {
		durations[snap.ID] = snap.Duration
	}

	maxPos := 0.0
	for _, p := range t.layout.Placements() {
		end := PixelsToSeconds(p.X, t.tempo, t.beatsPerMeasure) + durations[p.TrackID]
		if end > maxPos {
			maxPos = end
		}
	}
	t.clock.SetMaxPosition(maxPos)
}

func (t *Transport) notify(st State) {
	if t.onStateChange != nil {
		t.onStateChange(st)
	}
}

func (t *Transport) reportError(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}

// waitFades blocks until every fade signals completion, bounded so a dead
// render loop cannot wedge a transition.
func waitFades(dones []<-chan struct{}) {
	if len(dones) == 0 {
		return
	}
	limit := time.NewTimer(fadeWaitLimit)
	defer limit.Stop()
	for _, d := range dones {
		select {
		case <-d:
		case <-limit.C:
			log.Printf("[transport] fade wait hit %v limit", fadeWaitLimit)
			return
		}
	}
}
