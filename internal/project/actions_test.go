// ABOUTME: Tests for reversible edit actions driven through the history manager
// ABOUTME: Asserts round-trip restoration of tracks, notes, pads, and tempo widths
package project

import (
	"testing"

	"github.com/pranav100000/beatgen/internal/engine"
	"github.com/pranav100000/beatgen/internal/history"
)

func newEditor(t *testing.T) (*Store, *history.Manager) {
	t.Helper()
	eng := engine.New(engine.Config{SampleRate: 1000})
	return NewStore(eng), history.NewManager()
}

func TestChangeBPMUndoRestoresWidthExactly(t *testing.T) {
	s, h := newEditor(t)
	a, _ := s.CreateTrack(engine.KindAudio, "vox", "")
	s.HandleTrackReady(a.ID, 8)

	before, _ := s.TrackByID(a.ID)
	if !almost(before.WidthPx, 800) {
		t.Fatalf("expected 800px at 120 BPM before edit, got %f", before.WidthPx)
	}

	if err := h.Do(ChangeBPM(s, 60)); err != nil {
		t.Fatalf("do: %v", err)
	}
	halved, _ := s.TrackByID(a.ID)
	if !almost(halved.WidthPx, 400) {
		t.Errorf("expected 400px at 60 BPM, got %f", halved.WidthPx)
	}

	if err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	restored, _ := s.TrackByID(a.ID)
	if restored.WidthPx != before.WidthPx {
		t.Errorf("expected width restored to exactly %f, got %f", before.WidthPx, restored.WidthPx)
	}
	if s.Tempo() != 120 {
		t.Errorf("expected tempo restored to 120, got %d", s.Tempo())
	}

	if err := h.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	again, _ := s.TrackByID(a.ID)
	if !almost(again.WidthPx, 400) || s.Tempo() != 60 {
		t.Errorf("expected redo back to 60 BPM / 400px, got %d / %f", s.Tempo(), again.WidthPx)
	}
}

func TestAddTrackUndoRedoKeepsIdentity(t *testing.T) {
	s, h := newEditor(t)

	act := AddTrack(s, engine.KindMidi, "keys", "")
	if err := h.Do(act); err != nil {
		t.Fatalf("do: %v", err)
	}
	id := act.TrackID()
	if id == "" || s.TrackCount() != 1 {
		t.Fatalf("expected one track with an ID, got %q count %d", id, s.TrackCount())
	}

	if err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if s.TrackCount() != 0 {
		t.Fatalf("expected empty project after undo, got %d", s.TrackCount())
	}

	if err := h.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	got, ok := s.TrackByID(id)
	if !ok {
		t.Fatal("expected redo to restore the same track ID")
	}
	if got.Name != "keys" {
		t.Errorf("expected name kept, got %q", got.Name)
	}
}

func TestDeleteTrackUndoRestoresEverything(t *testing.T) {
	s, h := newEditor(t)
	_, _ = s.CreateTrack(engine.KindDrum, "beat", "")
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")
	_, _ = s.SetTrackVolume(m.ID, -9)
	_, _ = s.SetTrackPan(m.ID, -0.25)
	_, _, _ = s.SetTrackPosition(m.ID, 350, 1)
	_, _ = s.AddNote(m.ID, NoteEvent{Start: 0, Duration: 2, Pitch: 67, Velocity: 110})

	if err := h.Do(DeleteTrack(s, m.ID)); err != nil {
		t.Fatalf("do: %v", err)
	}
	if s.TrackCount() != 1 {
		t.Fatalf("expected 1 track after delete, got %d", s.TrackCount())
	}

	if err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	got, ok := s.TrackByID(m.ID)
	if !ok {
		t.Fatal("expected track back after undo")
	}
	if got.VolumeDB != -9 || got.Pan != -0.25 || got.X != 350 || got.Y != 1 {
		t.Errorf("settings not restored: %+v", got)
	}
	if len(got.Notes) != 1 || got.Notes[0].Pitch != 67 {
		t.Errorf("notes not restored: %+v", got.Notes)
	}
	if s.Tracks()[1].ID != m.ID {
		t.Error("expected track restored at its original index")
	}
}

func TestDeleteTrackUndoRestoresLaneZero(t *testing.T) {
	s, h := newEditor(t)
	_, _ = s.CreateTrack(engine.KindMidi, "one", "")
	_, _ = s.CreateTrack(engine.KindMidi, "two", "")
	m, _ := s.CreateTrack(engine.KindMidi, "three", "")
	_, _, _ = s.SetTrackPosition(m.ID, 0, 0)

	if err := h.Do(DeleteTrack(s, m.ID)); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}

	got, ok := s.TrackByID(m.ID)
	if !ok {
		t.Fatal("expected track back after undo")
	}
	if got.Y != 0 {
		t.Errorf("expected lane 0 restored exactly, got %d", got.Y)
	}
}

func TestMoveTrackUndo(t *testing.T) {
	s, h := newEditor(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")
	_, _, _ = s.SetTrackPosition(m.ID, 100, 0)

	if err := h.Do(MoveTrack(s, m.ID, 700, 2)); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	got, _ := s.TrackByID(m.ID)
	if got.X != 100 || got.Y != 0 {
		t.Errorf("expected position restored to (100, 0), got (%f, %d)", got.X, got.Y)
	}
}

func TestRenameVolumePanUndo(t *testing.T) {
	s, h := newEditor(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	_ = h.Do(RenameTrack(s, m.ID, "lead"))
	_ = h.Do(ChangeVolume(s, m.ID, -12))
	_ = h.Do(ChangePan(s, m.ID, 0.75))

	got, _ := s.TrackByID(m.ID)
	if got.Name != "lead" || got.VolumeDB != -12 || got.Pan != 0.75 {
		t.Fatalf("edits not applied: %+v", got)
	}

	_ = h.Undo()
	_ = h.Undo()
	_ = h.Undo()
	got, _ = s.TrackByID(m.ID)
	if got.Name != "keys" || got.VolumeDB != 0 || got.Pan != 0 {
		t.Errorf("expected defaults restored, got %+v", got)
	}
}

func TestChangeTimeSignatureUndoRestoresWidths(t *testing.T) {
	s, h := newEditor(t)
	a, _ := s.CreateTrack(engine.KindAudio, "vox", "")
	s.HandleTrackReady(a.ID, 8)
	before, _ := s.TrackByID(a.ID)

	if err := h.Do(ChangeTimeSignature(s, TimeSignature{Numerator: 3, Denominator: 4})); err != nil {
		t.Fatalf("do: %v", err)
	}
	changed, _ := s.TrackByID(a.ID)
	if almost(changed.WidthPx, before.WidthPx) {
		t.Fatal("expected width to move with the meter")
	}

	if err := h.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	restored, _ := s.TrackByID(a.ID)
	if restored.WidthPx != before.WidthPx {
		t.Errorf("expected width %f restored exactly, got %f", before.WidthPx, restored.WidthPx)
	}
	if sig := s.TimeSignature(); sig.Numerator != 4 || sig.Denominator != 4 {
		t.Errorf("expected 4/4 restored, got %+v", sig)
	}
}

func TestChangeTimeSignatureRejectsInvalid(t *testing.T) {
	s, h := newEditor(t)
	if err := h.Do(ChangeTimeSignature(s, TimeSignature{Numerator: 0, Denominator: 4})); err == nil {
		t.Fatal("expected error for zero numerator")
	}
	if h.CanUndo() {
		t.Error("expected failed edit kept out of history")
	}
}

func TestChangeKeySignatureUndo(t *testing.T) {
	s, h := newEditor(t)
	_ = h.Do(ChangeKeySignature(s, "Eb"))
	if s.KeySignature() != "Eb" {
		t.Fatalf("expected Eb, got %s", s.KeySignature())
	}
	_ = h.Undo()
	if s.KeySignature() != "C" {
		t.Errorf("expected default C restored, got %s", s.KeySignature())
	}
}

func TestTogglePadUndoRedo(t *testing.T) {
	s, h := newEditor(t)
	d, _ := s.CreateTrack(engine.KindDrum, "beat", "")

	if err := h.Do(ToggleDrumPad(s, d.ID, 1, 4)); err != nil {
		t.Fatalf("do: %v", err)
	}
	if on, _ := s.PadActive(d.ID, 1, 4); !on {
		t.Fatal("expected pad on")
	}

	_ = h.Undo()
	if on, _ := s.PadActive(d.ID, 1, 4); on {
		t.Error("expected pad off after undo")
	}

	_ = h.Redo()
	if on, _ := s.PadActive(d.ID, 1, 4); !on {
		t.Error("expected pad on after redo")
	}
}

func TestNoteActionsRoundTrip(t *testing.T) {
	s, h := newEditor(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	create := CreateNote(s, m.ID, NoteEvent{Start: 1, Duration: 1, Pitch: 60, Velocity: 100})
	if err := h.Do(create); err != nil {
		t.Fatalf("create: %v", err)
	}
	noteID := create.NoteID()
	if noteID == "" {
		t.Fatal("expected note ID assigned on execute")
	}

	if err := h.Do(MoveNote(s, m.ID, noteID, 3, 72)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := h.Do(ResizeNote(s, m.ID, noteID, 2.5)); err != nil {
		t.Fatalf("resize: %v", err)
	}

	got, _ := s.TrackByID(m.ID)
	if n := got.Notes[0]; n.Start != 3 || n.Pitch != 72 || n.Duration != 2.5 {
		t.Fatalf("edits not applied: %+v", n)
	}

	_ = h.Undo() // resize
	_ = h.Undo() // move
	got, _ = s.TrackByID(m.ID)
	if n := got.Notes[0]; n.Start != 1 || n.Pitch != 60 || n.Duration != 1 {
		t.Errorf("expected original note restored, got %+v", n)
	}

	_ = h.Undo() // create
	got, _ = s.TrackByID(m.ID)
	if len(got.Notes) != 0 {
		t.Fatalf("expected note removed, got %+v", got.Notes)
	}

	_ = h.Redo()
	got, _ = s.TrackByID(m.ID)
	if len(got.Notes) != 1 || got.Notes[0].ID != noteID {
		t.Errorf("expected redo to restore the same note ID, got %+v", got.Notes)
	}
}

func TestDeleteNoteUndo(t *testing.T) {
	s, h := newEditor(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")
	stored, _ := s.AddNote(m.ID, NoteEvent{Start: 2, Duration: 1, Pitch: 65, Velocity: 90})

	if err := h.Do(DeleteNote(s, m.ID, stored.ID)); err != nil {
		t.Fatalf("do: %v", err)
	}
	got, _ := s.TrackByID(m.ID)
	if len(got.Notes) != 0 {
		t.Fatal("expected note gone")
	}

	_ = h.Undo()
	got, _ = s.TrackByID(m.ID)
	if len(got.Notes) != 1 || got.Notes[0].ID != stored.ID || got.Notes[0].Velocity != 90 {
		t.Errorf("expected note restored intact, got %+v", got.Notes)
	}
}

func TestFailedActionStaysOutOfHistory(t *testing.T) {
	s, h := newEditor(t)

	if err := h.Do(DeleteTrack(s, "no-such-track")); err == nil {
		t.Fatal("expected error deleting unknown track")
	}
	if h.CanUndo() || h.CanRedo() {
		t.Error("expected history untouched by the failure")
	}
}

func TestUndoLabelsReadAsMenuItems(t *testing.T) {
	s, h := newEditor(t)
	m, _ := s.CreateTrack(engine.KindMidi, "keys", "")

	_ = h.Do(RenameTrack(s, m.ID, "lead"))
	if got := h.PeekUndoName(); got != "rename track" {
		t.Errorf("expected undo label %q, got %q", "rename track", got)
	}
	_ = h.Undo()
	if got := h.PeekRedoName(); got != "rename track" {
		t.Errorf("expected redo label %q, got %q", "rename track", got)
	}
}
