// ABOUTME: Tests for transport transitions over a real engine with clip tracks
// ABOUTME: Covers immediate vs deferred starts, teardown, clamps, and rescheduling
package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/pranav100000/beatgen/internal/engine"
	"github.com/pranav100000/beatgen/pkg/audio"
)

const testRate = 1000

type fakeLayout struct {
	mu         sync.Mutex
	placements []Placement
}

func (l *fakeLayout) Placements() []Placement {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Placement, len(l.placements))
	copy(out, l.placements)
	return out
}

func (l *fakeLayout) place(id string, x float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.placements {
		if l.placements[i].TrackID == id {
			l.placements[i].X = x
			return
		}
	}
	l.placements = append(l.placements, Placement{TrackID: id, X: x})
}

func newRig(t *testing.T, tempo float64) (*engine.Engine, *fakeLayout, *Transport) {
	t.Helper()
	eng := engine.New(engine.Config{SampleRate: testRate})
	layout := &fakeLayout{}
	tr := New(eng, layout, Config{Tempo: tempo})
	t.Cleanup(tr.Close)
	return eng, layout, tr
}

func addClipTrack(t *testing.T, eng *engine.Engine, id string, seconds float64) {
	t.Helper()
	frames := int(seconds * testRate)
	samples := make([]int32, frames*2)
	for i := range samples {
		samples[i] = 1000
	}
	clip := &audio.Clip{
		Samples: samples,
		Format:  audio.Format{Codec: "pcm", SampleRate: testRate, Channels: 2, BitDepth: 24},
	}
	if err := eng.CreateTrackWithClip(id, engine.KindAudio, clip); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestSetTempoClamps(t *testing.T) {
	_, _, tr := newRig(t, 120)

	if got := tr.SetTempo(500); got != 300 {
		t.Errorf("expected 500 clamped to 300, got %v", got)
	}
	if got := tr.SetTempo(5); got != 20 {
		t.Errorf("expected 5 clamped to 20, got %v", got)
	}
	if tr.Tempo() != 20 {
		t.Errorf("expected tempo 20, got %v", tr.Tempo())
	}
}

func TestPlayStartsTrackUnderPlayheadImmediately(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	if err := tr.Seek(10); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if tr.State() != StateStopped {
		t.Fatal("seek while stopped must not start playback")
	}
	if err := tr.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}

	if eng.UnitState("a") != engine.UnitStarted {
		t.Error("expected track under the playhead started")
	}
	if !eng.Synced("a") {
		t.Error("expected started track synced")
	}
	if tr.PendingCount() != 0 {
		t.Errorf("expected nothing deferred, got %d", tr.PendingCount())
	}
}

func TestPlayDefersTrackAheadOfPlayhead(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	addClipTrack(t, eng, "b", 5)
	layout.place("a", 0)
	layout.place("b", 1500) // 15s at 120 BPM in 4/4

	if err := tr.Seek(10); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := tr.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}

	if eng.UnitState("a") != engine.UnitStarted {
		t.Error("expected a started")
	}
	if eng.UnitState("b") != engine.UnitStopped {
		t.Error("expected b waiting for its offset")
	}
	if !eng.Synced("b") {
		t.Error("expected b synced while waiting")
	}
	if tr.PendingCount() != 1 {
		t.Errorf("expected one deferred start, got %d", tr.PendingCount())
	}
}

func TestDeferredStartFiresWhenOffsetArrives(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "b", 5)
	// 5px is 50ms at 120 BPM in 4/4; well inside the test's patience.
	layout.place("b", 5)

	if err := tr.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if eng.UnitState("b") != engine.UnitStopped {
		t.Fatal("expected b deferred at play time")
	}

	deadline := time.After(2 * time.Second)
	for eng.UnitState("b") != engine.UnitStarted {
		select {
		case <-deadline:
			t.Fatal("deferred start never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if tr.PendingCount() != 0 {
		t.Errorf("expected pending drained, got %d", tr.PendingCount())
	}
}

func TestPauseCancelsPendingAndKeepsSync(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	addClipTrack(t, eng, "b", 5)
	layout.place("a", 0)
	layout.place("b", 1500)

	_ = tr.Seek(10)
	_ = tr.Play()
	tr.Pause()

	if tr.State() != StatePaused {
		t.Fatalf("expected paused, got %s", tr.State())
	}
	if tr.PendingCount() != 0 {
		t.Errorf("expected pending starts canceled, got %d", tr.PendingCount())
	}
	if eng.UnitState("a") != engine.UnitStopped {
		t.Error("expected units stopped while paused")
	}
	if !eng.Synced("a") || !eng.Synced("b") {
		t.Error("expected sync retained through pause")
	}

	p1 := tr.Position()
	time.Sleep(30 * time.Millisecond)
	if p2 := tr.Position(); p2 != p1 {
		t.Errorf("expected frozen playhead, moved %f -> %f", p1, p2)
	}
}

func TestStopAlwaysResetsPosition(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	_ = tr.Seek(10)
	tr.Stop()
	if tr.Position() != 0 {
		t.Errorf("expected position 0 after stop from stopped, got %f", tr.Position())
	}

	_ = tr.Seek(5)
	_ = tr.Play()
	tr.Stop()
	if tr.Position() != 0 {
		t.Errorf("expected position 0 after stop from playing, got %f", tr.Position())
	}
	if tr.State() != StateStopped {
		t.Errorf("expected stopped, got %s", tr.State())
	}
	if eng.Synced("a") {
		t.Error("expected sync cleared by stop")
	}
}

func TestSeekClampsToSessionBounds(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	_ = tr.Seek(500)
	if tr.Position() != 20 {
		t.Errorf("expected clamp to session end 20, got %f", tr.Position())
	}
	_ = tr.Seek(-5)
	if tr.Position() != 0 {
		t.Errorf("expected clamp to 0, got %f", tr.Position())
	}
}

func TestSeekWhilePlayingResumesFromNewPosition(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	_ = tr.Play()
	if err := tr.Seek(10); err != nil {
		t.Fatalf("seek: %v", err)
	}

	if tr.State() != StatePlaying {
		t.Fatalf("expected still playing, got %s", tr.State())
	}
	if eng.UnitState("a") != engine.UnitStarted {
		t.Error("expected a restarted after seek")
	}
	if p := tr.Position(); p < 9.9 || p > 10.5 {
		t.Errorf("expected playhead near 10, got %f", p)
	}
}

func TestTempoChangeWhilePlayingReschedules(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	addClipTrack(t, eng, "b", 5)
	layout.place("a", 0)
	layout.place("b", 1500)

	_ = tr.Seek(10)
	_ = tr.Play()
	if tr.PendingCount() != 1 {
		t.Fatalf("expected one deferred start, got %d", tr.PendingCount())
	}

	tr.SetTempo(60) // b's offset moves from 15s out to 30s out

	if tr.State() != StatePlaying {
		t.Fatalf("expected still playing, got %s", tr.State())
	}
	if tr.PendingCount() != 1 {
		t.Errorf("expected b rescheduled, got %d pending", tr.PendingCount())
	}
	_, canceled, _ := tr.SchedulerStats()
	if canceled < 1 {
		t.Error("expected the stale deferred start canceled")
	}
	if p := tr.Position(); p < 9.9 || p > 10.5 {
		t.Errorf("expected playhead preserved near 10, got %f", p)
	}
	if eng.UnitState("a") != engine.UnitStarted {
		t.Error("expected a restarted at the new tempo")
	}
}

func TestTrackMoveWhileStoppedIsIgnored(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	tr.HandleTrackMoved("a")
	if eng.UnitState("a") != engine.UnitStopped {
		t.Error("expected no playback from a move while stopped")
	}
	if tr.State() != StateStopped {
		t.Errorf("expected stopped, got %s", tr.State())
	}
}

func TestTrackMoveWhilePlayingReschedules(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	_ = tr.Play()
	layout.place("a", 1000000) // push far past the playhead
	tr.HandleTrackMoved("a")

	if eng.UnitState("a") != engine.UnitStopped {
		t.Error("expected a no longer playing after moving ahead")
	}
	if tr.PendingCount() != 1 {
		t.Errorf("expected a deferred at its new offset, got %d", tr.PendingCount())
	}
}

func TestStaleDeferredStartIsDropped(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	addClipTrack(t, eng, "b", 5)
	layout.place("a", 0)

	_ = tr.Play()

	tr.mu.Lock()
	current := tr.gen
	tr.mu.Unlock()

	// A callback stamped with an older generation must do nothing even
	// though playback is running.
	tr.deferredStart(current-1, "b")
	if eng.UnitState("b") != engine.UnitStopped {
		t.Error("stale callback started a unit")
	}

	tr.deferredStart(current, "b")
	if eng.UnitState("b") != engine.UnitStarted {
		t.Error("current-generation callback should start the unit")
	}
}

func TestStateChangeNotifications(t *testing.T) {
	eng := engine.New(engine.Config{SampleRate: testRate})
	layout := &fakeLayout{}

	var mu sync.Mutex
	var states []State
	tr := New(eng, layout, Config{Tempo: 120, OnStateChange: func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}})
	t.Cleanup(tr.Close)

	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	_ = tr.Play()
	tr.Pause()
	tr.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StatePlaying, StatePaused, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("expected %d notifications, got %v", len(want), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("notification %d: expected %s, got %s", i, want[i], states[i])
		}
	}
}

func TestPlayRestartRereadsLayout(t *testing.T) {
	eng, layout, tr := newRig(t, 120)
	addClipTrack(t, eng, "a", 20)
	layout.place("a", 0)

	_ = tr.Play()
	// Move the track while playing, then play again: the transport must
	// pick up the new offset, not a cached one.
	layout.place("a", 1000000)
	_ = tr.Play()

	if eng.UnitState("a") != engine.UnitStopped {
		t.Error("expected a deferred at its new far offset")
	}
	if tr.PendingCount() != 1 {
		t.Errorf("expected one deferred start, got %d", tr.PendingCount())
	}
}
