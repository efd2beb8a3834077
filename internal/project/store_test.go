// ABOUTME: Tests for the project store's reducers and engine synchronization
// ABOUTME: Covers width math, tempo clamps, solo muting, and schedule pushes
package project

import (
	"bytes"
	"math"
	"testing"

	"github.com/pranav100000/beatgen/internal/engine"
)

func newStore(t *testing.T) (*engine.Engine, *Store) {
	t.Helper()
	eng := engine.New(engine.Config{SampleRate: 1000})
	return eng, NewStore(eng)
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCreateTrackKindDefaults(t *testing.T) {
	eng, s := newStore(t)

	m, err := s.CreateTrack(engine.KindMidi, "keys", "")
	if err != nil {
		t.Fatalf("midi: %v", err)
	}
	if m.Beats != DefaultBeats {
		t.Errorf("expected %d beats, got %f", DefaultBeats, m.Beats)
	}
	if !almost(m.WidthPx, 200) {
		t.Errorf("expected one measure (200px) for 4 beats in 4/4, got %f", m.WidthPx)
	}

	d, err := s.CreateTrack(engine.KindDrum, "beat", "")
	if err != nil {
		t.Fatalf("drum: %v", err)
	}
	if d.Pads == nil || d.Pads.Rows != engine.KitRows || d.Pads.Steps != DefaultGridSteps {
		t.Fatalf("expected %dx%d grid, got %+v", engine.KitRows, DefaultGridSteps, d.Pads)
	}

	if !eng.HasTrack(m.ID) || !eng.HasTrack(d.ID) {
		t.Error("expected engine strips created alongside")
	}
}

func TestAudioWidthScalesWithTempo(t *testing.T) {
	_, s := newStore(t)
	a, _ := s.CreateTrack(engine.KindAudio, "vox", "")

	// Decode completes: 8 seconds of audio.
	s.HandleTrackReady(a.ID, 8)

	got, _ := s.TrackByID(a.ID)
	if !almost(got.WidthPx, 800) {
		t.Errorf("expected 800px at 120 BPM, got %f", got.WidthPx)
	}

	s.SetTempo(60)
	got, _ = s.TrackByID(a.ID)
	if !almost(got.WidthPx, 400) {
		t.Errorf("expected 400px at 60 BPM, got %f", got.WidthPx)
	}

	s.SetTempo(240)
	got, _ = s.TrackByID(a.ID)
	if !almost(got.WidthPx, 1600) {
		t.Errorf("expected 1600px at 240 BPM, got %f", got.WidthPx)
	}
}

func TestMidiWidthHoldsUnderTempoChange(t *testing.T) {
	_, s := newStore(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	before, _ := s.TrackByID(m.ID)
	s.SetTempo(60)
	after, _ := s.TrackByID(m.ID)
	if !almost(before.WidthPx, after.WidthPx) {
		t.Errorf("beat-denominated width moved with tempo: %f -> %f", before.WidthPx, after.WidthPx)
	}
}

func TestSetTempoClampsEditorRange(t *testing.T) {
	_, s := newStore(t)
	if got := s.SetTempo(0); got != MinEditorTempo {
		t.Errorf("expected clamp to %d, got %d", MinEditorTempo, got)
	}
	if got := s.SetTempo(5000); got != MaxEditorTempo {
		t.Errorf("expected clamp to %d, got %d", MaxEditorTempo, got)
	}
	if s.Tempo() != MaxEditorTempo {
		t.Errorf("expected stored tempo %d, got %d", MaxEditorTempo, s.Tempo())
	}
}

func TestRemoveInsertRoundTrip(t *testing.T) {
	_, s := newStore(t)
	first, _ := s.CreateTrack(engine.KindMidi, "one", "")
	mid, _ := s.CreateTrack(engine.KindMidi, "two", "")
	_, _ = s.CreateTrack(engine.KindMidi, "three", "")

	_, _ = s.SetTrackVolume(mid.ID, -6)
	_, _ = s.SetTrackPan(mid.ID, 0.5)
	_, _, _ = s.SetTrackPosition(mid.ID, 123, 1)
	_, _ = s.AddNote(mid.ID, NoteEvent{Start: 1, Duration: 1, Pitch: 60, Velocity: 90})

	snap, index, err := s.Remove(mid.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if index != 1 {
		t.Errorf("expected index 1, got %d", index)
	}
	if s.TrackCount() != 2 {
		t.Fatalf("expected 2 tracks, got %d", s.TrackCount())
	}

	if err := s.Insert(snap, index); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok := s.TrackByID(mid.ID)
	if !ok {
		t.Fatal("expected track restored")
	}
	if got.VolumeDB != -6 || got.Pan != 0.5 || got.X != 123 || got.Y != 1 {
		t.Errorf("fields not restored: %+v", got)
	}
	if len(got.Notes) != 1 || got.Notes[0].Pitch != 60 {
		t.Errorf("notes not restored: %+v", got.Notes)
	}
	tracks := s.Tracks()
	if tracks[1].ID != mid.ID || tracks[0].ID != first.ID {
		t.Error("expected restoration at the original index")
	}
}

func TestCreateTrackAssignsNextLane(t *testing.T) {
	_, s := newStore(t)
	a, _ := s.CreateTrack(engine.KindMidi, "a", "")
	b, _ := s.CreateTrack(engine.KindMidi, "b", "")
	if a.Y != 0 || b.Y != 1 {
		t.Errorf("expected lanes 0 and 1, got %d and %d", a.Y, b.Y)
	}
}

func TestInsertKeepsLaneZeroAtNonzeroIndex(t *testing.T) {
	_, s := newStore(t)
	_, _ = s.CreateTrack(engine.KindMidi, "one", "")
	_, _ = s.CreateTrack(engine.KindMidi, "two", "")
	last, _ := s.CreateTrack(engine.KindMidi, "three", "")

	// Lane 0 is a real position, not an unset marker.
	_, _, _ = s.SetTrackPosition(last.ID, 50, 0)

	snap, index, err := s.Remove(last.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Insert(snap, index); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _ := s.TrackByID(last.ID)
	if got.Y != 0 {
		t.Errorf("expected lane 0 restored at index %d, got %d", index, got.Y)
	}
}

func TestSoloMutesOthersInEngine(t *testing.T) {
	eng, s := newStore(t)
	a, _ := s.CreateTrack(engine.KindMidi, "a", "")
	b, _ := s.CreateTrack(engine.KindMidi, "b", "")

	_ = s.SetTrackSolo(a.ID, true)
	if !eng.Channel(b.ID).Muted() {
		t.Error("expected non-soloed track audibly muted")
	}
	if eng.Channel(a.ID).Muted() {
		t.Error("expected soloed track audible")
	}

	_ = s.SetTrackSolo(a.ID, false)
	if eng.Channel(b.ID).Muted() {
		t.Error("expected mute lifted when solo clears")
	}

	// A track's own mute survives solo arithmetic.
	_ = s.SetTrackMute(b.ID, true)
	_ = s.SetTrackSolo(b.ID, true)
	if !eng.Channel(b.ID).Muted() {
		t.Error("expected own mute to win even while soloed")
	}
}

func TestToggleDrumPad(t *testing.T) {
	_, s := newStore(t)
	d, _ := s.CreateTrack(engine.KindDrum, "beat", "")

	on, err := s.ToggleDrumPad(d.ID, 0, 0)
	if err != nil || !on {
		t.Fatalf("expected pad on, got %v %v", on, err)
	}
	off, _ := s.ToggleDrumPad(d.ID, 0, 0)
	if off {
		t.Error("expected pad off after second toggle")
	}

	if _, err := s.ToggleDrumPad("ghost", 0, 0); err == nil {
		t.Error("expected error for unknown track")
	}
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")
	if _, err := s.ToggleDrumPad(m.ID, 0, 0); err == nil {
		t.Error("expected error for a track without a grid")
	}
}

func TestDrumPadIndicesClampToGrid(t *testing.T) {
	_, s := newStore(t)
	d, _ := s.CreateTrack(engine.KindDrum, "beat", "")

	// Out-of-range indices land on the nearest cell instead of erroring.
	on, err := s.ToggleDrumPad(d.ID, 99, -3)
	if err != nil || !on {
		t.Fatalf("expected clamped toggle to land, got %v %v", on, err)
	}
	if active, _ := s.PadActive(d.ID, engine.KitRows-1, 0); !active {
		t.Error("expected the toggle clamped to the last row, first step")
	}

	// Reads clamp the same way, so both views agree on the cell.
	if active, _ := s.PadActive(d.ID, 99, -3); !active {
		t.Error("expected clamped read to see the toggled pad")
	}

	off, _ := s.ToggleDrumPad(d.ID, 99, -3)
	if off {
		t.Error("expected second clamped toggle to flip the same cell off")
	}
}

func TestGridAccessorsReturnCopies(t *testing.T) {
	_, s := newStore(t)
	d, _ := s.CreateTrack(engine.KindDrum, "beat", "")
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	_, _ = s.ToggleDrumPad(d.ID, 1, 4)
	_, _ = s.AddNote(m.ID, NoteEvent{Start: 0, Duration: 1, Pitch: 60, Velocity: 100})

	grid, err := s.DrumPads(d.ID)
	if err != nil {
		t.Fatalf("pads: %v", err)
	}
	if !grid.Pads[1][4].Active {
		t.Error("expected toggled pad in the grid copy")
	}
	grid.Pads[1][4].Active = false
	if on, _ := s.PadActive(d.ID, 1, 4); !on {
		t.Error("expected store grid unaffected by mutating the copy")
	}

	notes, err := s.NotesFor(m.ID)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Pitch != 60 {
		t.Fatalf("expected one note at pitch 60, got %+v", notes)
	}
	notes[0].Pitch = 72
	fresh, _ := s.NotesFor(m.ID)
	if fresh[0].Pitch != 60 {
		t.Error("expected store notes unaffected by mutating the copy")
	}

	if _, err := s.DrumPads("ghost"); err == nil {
		t.Error("expected error for unknown track")
	}
	if _, err := s.NotesFor("ghost"); err == nil {
		t.Error("expected error for unknown track")
	}
}

func TestNoteEditsGrowTrackLength(t *testing.T) {
	_, s := newStore(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	_, _ = s.AddNote(m.ID, NoteEvent{Start: 10, Duration: 2, Pitch: 64, Velocity: 100})
	got, _ := s.TrackByID(m.ID)
	// End at beat 12 rounds up to a whole measure in 4/4.
	if got.Beats != 12 {
		t.Errorf("expected 12 beats, got %f", got.Beats)
	}
	if !almost(got.WidthPx, 600) {
		t.Errorf("expected 600px for 3 measures, got %f", got.WidthPx)
	}
}

func TestSchedulePushedToEngine(t *testing.T) {
	eng, s := newStore(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	_, _ = s.AddNote(m.ID, NoteEvent{Start: 2, Duration: 1, Pitch: 60, Velocity: 100})

	// 3 beats at 120 BPM is 1.5 seconds of schedule.
	if d := eng.Tracks()[0].Duration; !almost(d, 1.5) {
		t.Errorf("expected unit schedule 1.5s, got %f", d)
	}

	s.SetTempo(60)
	if d := eng.Tracks()[0].Duration; !almost(d, 3.0) {
		t.Errorf("expected schedule stretched to 3s at 60 BPM, got %f", d)
	}
}

func TestDrumPatternPushedToEngine(t *testing.T) {
	eng, s := newStore(t)
	d, _ := s.CreateTrack(engine.KindDrum, "beat", "")

	_, _ = s.ToggleDrumPad(d.ID, 0, 0)
	// 16 sixteenths = 4 beats = 2 seconds at 120 BPM.
	if got := eng.Tracks()[0].Duration; !almost(got, 2.0) {
		t.Errorf("expected 2s pattern, got %f", got)
	}
}

func TestPlacementsFollowTrackOrder(t *testing.T) {
	_, s := newStore(t)
	a, _ := s.CreateTrack(engine.KindMidi, "a", "")
	b, _ := s.CreateTrack(engine.KindMidi, "b", "")
	_, _, _ = s.SetTrackPosition(b.ID, 400, 1)

	ps := s.Placements()
	if len(ps) != 2 {
		t.Fatalf("expected 2 placements, got %d", len(ps))
	}
	if ps[0].TrackID != a.ID || ps[0].X != 0 {
		t.Errorf("placement 0: %+v", ps[0])
	}
	if ps[1].TrackID != b.ID || ps[1].X != 400 {
		t.Errorf("placement 1: %+v", ps[1])
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	_, s := newStore(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")
	d, _ := s.CreateTrack(engine.KindDrum, "beat", "")
	_, _ = s.AddNote(m.ID, NoteEvent{Start: 0, Duration: 1, Pitch: 62, Velocity: 80})
	_, _ = s.ToggleDrumPad(d.ID, 2, 5)
	s.SetTempo(90)
	_, _ = s.SetTimeSignature(TimeSignature{Numerator: 3, Denominator: 4})
	s.SetKeySignature("F#m")

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	eng2 := engine.New(engine.Config{SampleRate: 1000})
	s2 := NewStore(eng2)
	if err := s2.Load(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	if s2.Tempo() != 90 {
		t.Errorf("tempo: got %d", s2.Tempo())
	}
	if sig := s2.TimeSignature(); sig.Numerator != 3 {
		t.Errorf("time signature: got %+v", sig)
	}
	if s2.KeySignature() != "F#m" {
		t.Errorf("key: got %s", s2.KeySignature())
	}
	if s2.TrackCount() != 2 {
		t.Fatalf("expected 2 tracks, got %d", s2.TrackCount())
	}

	gm, ok := s2.TrackByID(m.ID)
	if !ok || len(gm.Notes) != 1 || gm.Notes[0].Pitch != 62 {
		t.Errorf("midi track not restored: %+v", gm)
	}
	active, err := s2.PadActive(d.ID, 2, 5)
	if err != nil || !active {
		t.Errorf("pad not restored: %v %v", active, err)
	}
	if !eng2.HasTrack(m.ID) || !eng2.HasTrack(d.ID) {
		t.Error("expected engine strips rebuilt on load")
	}
}

func TestSubscribersNotified(t *testing.T) {
	_, s := newStore(t)
	calls := 0
	unsub := s.Subscribe(func() { calls++ })

	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")
	_, _ = s.SetTrackVolume(m.ID, -3)
	if calls != 2 {
		t.Errorf("expected 2 notifications, got %d", calls)
	}

	unsub()
	s.SetTempo(100)
	if calls != 2 {
		t.Errorf("expected no notification after unsubscribe, got %d", calls)
	}
}
