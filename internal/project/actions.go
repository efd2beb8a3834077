// ABOUTME: Reversible edit commands over the project store
// ABOUTME: Each action captures at execute time exactly what its undo needs
package project

import (
	"github.com/pranav100000/beatgen/internal/engine"
)

// AddTrackAction creates a track; undo removes it, redo restores the exact
// track (same ID, same settings) at the same index.
type AddTrackAction struct {
	store      *Store
	kind       engine.TrackKind
	name       string
	sourcePath string

	id      string
	created *Track
	index   int
}

// AddTrack builds the action; the track comes into being on Execute.
func AddTrack(s *Store, kind engine.TrackKind, name, sourcePath string) *AddTrackAction {
	return &AddTrackAction{store: s, kind: kind, name: name, sourcePath: sourcePath, index: -1}
}

func (a *AddTrackAction) Name() string { return "add track" }

// TrackID is the created track's ID, available after the first Execute.
func (a *AddTrackAction) TrackID() string { return a.id }

func (a *AddTrackAction) Execute() error {
	if a.created == nil {
		t, err := a.store.CreateTrack(a.kind, a.name, a.sourcePath)
		if err != nil {
			return err
		}
		a.id = t.ID
		return nil
	}
	return a.store.Insert(a.created, a.index)
}

func (a *AddTrackAction) Undo() error {
	snap, index, err := a.store.Remove(a.id)
	if err != nil {
		return err
	}
	a.created = snap
	a.index = index
	return nil
}

// DeleteTrackAction removes a track; undo reinserts it where it was.
type DeleteTrackAction struct {
	store   *Store
	id      string
	removed *Track
	index   int
}

func DeleteTrack(s *Store, id string) *DeleteTrackAction {
	return &DeleteTrackAction{store: s, id: id}
}

func (a *DeleteTrackAction) Name() string { return "delete track" }

func (a *DeleteTrackAction) Execute() error {
	snap, index, err := a.store.Remove(a.id)
	if err != nil {
		return err
	}
	a.removed = snap
	a.index = index
	return nil
}

func (a *DeleteTrackAction) Undo() error {
	return a.store.Insert(a.removed, a.index)
}

// MoveTrackAction repositions a track on the timeline.
type MoveTrackAction struct {
	store *Store
	id    string
	x     float64
	y     int
	oldX  float64
	oldY  int
}

func MoveTrack(s *Store, id string, x float64, y int) *MoveTrackAction {
	return &MoveTrackAction{store: s, id: id, x: x, y: y}
}

func (a *MoveTrackAction) Name() string { return "move track" }

func (a *MoveTrackAction) Execute() error {
	oldX, oldY, err := a.store.SetTrackPosition(a.id, a.x, a.y)
	if err != nil {
		return err
	}
	a.oldX, a.oldY = oldX, oldY
	return nil
}

func (a *MoveTrackAction) Undo() error {
	_, _, err := a.store.SetTrackPosition(a.id, a.oldX, a.oldY)
	return err
}

// RenameTrackAction changes a track's display name.
type RenameTrackAction struct {
	store   *Store
	id      string
	name    string
	oldName string
}

func RenameTrack(s *Store, id, name string) *RenameTrackAction {
	return &RenameTrackAction{store: s, id: id, name: name}
}

func (a *RenameTrackAction) Name() string { return "rename track" }

func (a *RenameTrackAction) Execute() error {
	old, err := a.store.RenameTrack(a.id, a.name)
	if err != nil {
		return err
	}
	a.oldName = old
	return nil
}

func (a *RenameTrackAction) Undo() error {
	_, err := a.store.RenameTrack(a.id, a.oldName)
	return err
}

// ChangeVolumeAction sets a track fader value.
type ChangeVolumeAction struct {
	store *Store
	id    string
	db    float64
	oldDB float64
}

func ChangeVolume(s *Store, id string, db float64) *ChangeVolumeAction {
	return &ChangeVolumeAction{store: s, id: id, db: db}
}

func (a *ChangeVolumeAction) Name() string { return "change volume" }

func (a *ChangeVolumeAction) Execute() error {
	old, err := a.store.SetTrackVolume(a.id, a.db)
	if err != nil {
		return err
	}
	a.oldDB = old
	return nil
}

func (a *ChangeVolumeAction) Undo() error {
	_, err := a.store.SetTrackVolume(a.id, a.oldDB)
	return err
}

// ChangePanAction sets a track's stereo balance.
type ChangePanAction struct {
	store  *Store
	id     string
	pan    float64
	oldPan float64
}

func ChangePan(s *Store, id string, pan float64) *ChangePanAction {
	return &ChangePanAction{store: s, id: id, pan: pan}
}

func (a *ChangePanAction) Name() string { return "change pan" }

func (a *ChangePanAction) Execute() error {
	old, err := a.store.SetTrackPan(a.id, a.pan)
	if err != nil {
		return err
	}
	a.oldPan = old
	return nil
}

func (a *ChangePanAction) Undo() error {
	_, err := a.store.SetTrackPan(a.id, a.oldPan)
	return err
}

// ChangeBPMAction retunes the whole project. Execute recomputes every clip
// width at the new tempo; undo restores the tempo and the captured widths
// byte for byte rather than recomputing them.
type ChangeBPMAction struct {
	store     *Store
	bpm       int
	oldBPM    int
	oldWidths map[string]float64
}

func ChangeBPM(s *Store, bpm int) *ChangeBPMAction {
	return &ChangeBPMAction{store: s, bpm: bpm}
}

func (a *ChangeBPMAction) Name() string { return "change tempo" }

func (a *ChangeBPMAction) Execute() error {
	a.oldBPM = a.store.Tempo()
	a.oldWidths = a.store.WidthSnapshot()
	a.store.SetTempo(a.bpm)
	return nil
}

func (a *ChangeBPMAction) Undo() error {
	a.store.RestoreTempo(a.oldBPM, a.oldWidths)
	return nil
}

// ChangeTimeSignatureAction sets the meter, with the same exact-width undo
// as tempo changes.
type ChangeTimeSignatureAction struct {
	store     *Store
	sig       TimeSignature
	oldSig    TimeSignature
	oldWidths map[string]float64
}

func ChangeTimeSignature(s *Store, sig TimeSignature) *ChangeTimeSignatureAction {
	return &ChangeTimeSignatureAction{store: s, sig: sig}
}

func (a *ChangeTimeSignatureAction) Name() string { return "change time signature" }

func (a *ChangeTimeSignatureAction) Execute() error {
	widths := a.store.WidthSnapshot()
	old, err := a.store.SetTimeSignature(a.sig)
	if err != nil {
		return err
	}
	a.oldSig = old
	a.oldWidths = widths
	return nil
}

func (a *ChangeTimeSignatureAction) Undo() error {
	a.store.RestoreTimeSignature(a.oldSig, a.oldWidths)
	return nil
}

// ChangeKeySignatureAction sets the project key.
type ChangeKeySignatureAction struct {
	store  *Store
	key    string
	oldKey string
}

func ChangeKeySignature(s *Store, key string) *ChangeKeySignatureAction {
	return &ChangeKeySignatureAction{store: s, key: key}
}

func (a *ChangeKeySignatureAction) Name() string { return "change key signature" }

func (a *ChangeKeySignatureAction) Execute() error {
	a.oldKey = a.store.SetKeySignature(a.key)
	return nil
}

func (a *ChangeKeySignatureAction) Undo() error {
	a.store.SetKeySignature(a.oldKey)
	return nil
}

// ToggleDrumPadAction flips one pad cell; the toggle is its own inverse.
type ToggleDrumPadAction struct {
	store   *Store
	trackID string
	row     int
	step    int
}

func ToggleDrumPad(s *Store, trackID string, row, step int) *ToggleDrumPadAction {
	return &ToggleDrumPadAction{store: s, trackID: trackID, row: row, step: step}
}

func (a *ToggleDrumPadAction) Name() string { return "toggle pad" }

func (a *ToggleDrumPadAction) Execute() error {
	_, err := a.store.ToggleDrumPad(a.trackID, a.row, a.step)
	return err
}

func (a *ToggleDrumPadAction) Undo() error {
	_, err := a.store.ToggleDrumPad(a.trackID, a.row, a.step)
	return err
}

// CreateNoteAction adds a note to a midi track; redo restores the same note
// under the same ID.
type CreateNoteAction struct {
	store   *Store
	trackID string
	note    NoteEvent
}

func CreateNote(s *Store, trackID string, note NoteEvent) *CreateNoteAction {
	return &CreateNoteAction{store: s, trackID: trackID, note: note}
}

func (a *CreateNoteAction) Name() string { return "create note" }

// NoteID is the created note's ID, available after the first Execute.
func (a *CreateNoteAction) NoteID() string { return a.note.ID }

func (a *CreateNoteAction) Execute() error {
	stored, err := a.store.AddNote(a.trackID, a.note)
	if err != nil {
		return err
	}
	a.note = stored
	return nil
}

func (a *CreateNoteAction) Undo() error {
	_, err := a.store.RemoveNote(a.trackID, a.note.ID)
	return err
}

// DeleteNoteAction removes a note; undo puts it back.
type DeleteNoteAction struct {
	store   *Store
	trackID string
	noteID  string
	removed NoteEvent
}

func DeleteNote(s *Store, trackID, noteID string) *DeleteNoteAction {
	return &DeleteNoteAction{store: s, trackID: trackID, noteID: noteID}
}

func (a *DeleteNoteAction) Name() string { return "delete note" }

func (a *DeleteNoteAction) Execute() error {
	removed, err := a.store.RemoveNote(a.trackID, a.noteID)
	if err != nil {
		return err
	}
	a.removed = removed
	return nil
}

func (a *DeleteNoteAction) Undo() error {
	_, err := a.store.AddNote(a.trackID, a.removed)
	return err
}

// MoveNoteAction repositions a note in time and pitch.
type MoveNoteAction struct {
	store    *Store
	trackID  string
	noteID   string
	start    float64
	pitch    uint8
	oldStart float64
	oldPitch uint8
}

func MoveNote(s *Store, trackID, noteID string, start float64, pitch uint8) *MoveNoteAction {
	return &MoveNoteAction{store: s, trackID: trackID, noteID: noteID, start: start, pitch: pitch}
}

func (a *MoveNoteAction) Name() string { return "move note" }

func (a *MoveNoteAction) Execute() error {
	old, err := a.store.MoveNote(a.trackID, a.noteID, a.start, a.pitch)
	if err != nil {
		return err
	}
	a.oldStart, a.oldPitch = old.Start, old.Pitch
	return nil
}

func (a *MoveNoteAction) Undo() error {
	_, err := a.store.MoveNote(a.trackID, a.noteID, a.oldStart, a.oldPitch)
	return err
}

// ResizeNoteAction changes a note's duration.
type ResizeNoteAction struct {
	store       *Store
	trackID     string
	noteID      string
	duration    float64
	oldDuration float64
}

func ResizeNote(s *Store, trackID, noteID string, duration float64) *ResizeNoteAction {
	return &ResizeNoteAction{store: s, trackID: trackID, noteID: noteID, duration: duration}
}

func (a *ResizeNoteAction) Name() string { return "resize note" }

func (a *ResizeNoteAction) Execute() error {
	old, err := a.store.ResizeNote(a.trackID, a.noteID, a.duration)
	if err != nil {
		return err
	}
	a.oldDuration = old.Duration
	return nil
}

func (a *ResizeNoteAction) Undo() error {
	_, err := a.store.ResizeNote(a.trackID, a.noteID, a.oldDuration)
	return err
}
