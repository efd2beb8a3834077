// ABOUTME: Project store: single source of truth for tracks, tempo, meter, and key
// ABOUTME: Mutations push derived state into the engine and transport; actions call these reducers
package project

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/pranav100000/beatgen/internal/engine"
	"github.com/pranav100000/beatgen/internal/transport"
)

// Editor tempo bounds. The transport additionally clamps to its playable
// range; the editor keeps the wider value for display.
const (
	MinEditorTempo = 1
	MaxEditorTempo = 999
)

// DefaultBeats is the minimum musical length of a midi track.
const DefaultBeats = 4

var (
	ErrTrackNotFound  = errors.New("track not found")
	ErrNoteNotFound   = errors.New("note not found")
	ErrDuplicateTrack = errors.New("track id already exists")
	ErrNoPadGrid      = errors.New("track has no pad grid")
)

// transportControl is what the store needs from the playback side. Nil is
// allowed; the store then runs editor-only.
type transportControl interface {
	SetTempo(bpm float64) float64
	SetTimeSignature(num, den int)
	HandleTrackMoved(trackID string)
}

// Store owns the editable project. Every reducer keeps three things in step:
// the track list here, the engine's strips, and the transport's musical
// parameters.
type Store struct {
	mu     sync.RWMutex
	engine *engine.Engine
	ctl    transportControl

	tempo   int
	timeSig TimeSignature
	keySig  string
	tracks  []*Track
	byID    map[string]*Track

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewStore creates an empty project over an engine.
func NewStore(eng *engine.Engine) *Store {
	return &Store{
		engine:  eng,
		tempo:   120,
		timeSig: TimeSignature{Numerator: 4, Denominator: 4},
		keySig:  "C",
		byID:    make(map[string]*Track),
		subs:    make(map[int]func()),
	}
}

// Bind attaches the transport after construction; the store and transport
// reference each other, so one side has to come second.
func (s *Store) Bind(ctl transportControl) {
	s.mu.Lock()
	s.ctl = ctl
	s.mu.Unlock()
}

// --- layout (read by the transport on every transition) ---

// Placements implements the transport's layout source.
func (s *Store) Placements() []transport.Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transport.Placement, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, transport.Placement{TrackID: t.ID, X: t.X})
	}
	return out
}

// --- track lifecycle ---

// CreateTrack builds and inserts a new track of the given kind. Audio
// tracks start decoding sourcePath immediately; their duration arrives via
// HandleTrackReady.
func (s *Store) CreateTrack(kind engine.TrackKind, name, sourcePath string) (*Track, error) {
	t := &Track{
		ID:   uuid.New().String(),
		Name: name,
		Kind: kind,
		Y:    s.TrackCount(), // next free lane
	}
	switch kind {
	case engine.KindMidi:
		t.Beats = DefaultBeats
	case engine.KindDrum:
		t.Pads = NewDrumGrid(engine.KitRows, DefaultGridSteps)
		t.Beats = t.Pads.Beats()
	case engine.KindAudio:
		t.SourcePath = sourcePath
	}
	if err := s.Insert(t, -1); err != nil {
		return nil, err
	}
	return t, nil
}

// Insert places a track at index (negative appends) and registers it with
// the engine. Undo paths use this to restore a deleted track in place.
func (s *Store) Insert(t *Track, index int) error {
	s.mu.Lock()
	if _, exists := s.byID[t.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTrack, t.ID)
	}
	if index < 0 || index > len(s.tracks) {
		index = len(s.tracks)
	}
	s.tracks = append(s.tracks, nil)
	copy(s.tracks[index+1:], s.tracks[index:])
	s.tracks[index] = t
	s.byID[t.ID] = t
	t.WidthPx = s.widthLocked(t)

	if err := s.engine.CreateTrack(t.ID, t.Kind, t.SourcePath); err != nil {
		log.Printf("[project] engine track %s: %v", t.ID, err)
	}
	s.engine.SetTrackVolume(t.ID, t.VolumeDB)
	s.engine.SetTrackPan(t.ID, t.Pan)
	s.pushContentLocked(t)
	s.applySoloStateLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Remove deletes a track, returning a snapshot and its index so an undo can
// put it back exactly where it was.
func (s *Store) Remove(id string) (*Track, int, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, 0, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	index := -1
	for i, x := range s.tracks {
		if x.ID == id {
			index = i
			break
		}
	}
	snapshot := t.clone()
	s.tracks = append(s.tracks[:index], s.tracks[index+1:]...)
	delete(s.byID, id)
	s.engine.RemoveTrack(id)
	s.applySoloStateLocked()
	s.mu.Unlock()

	s.notify()
	return snapshot, index, nil
}

// SetTrackPosition moves a track on the timeline. The transport reschedules
// if it is mid-play.
func (s *Store) SetTrackPosition(id string, x float64, y int) (oldX float64, oldY int, err error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return 0, 0, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	oldX, oldY = t.X, t.Y
	t.X, t.Y = x, y
	ctl := s.ctl
	s.mu.Unlock()

	if ctl != nil {
		ctl.HandleTrackMoved(id)
	}
	s.notify()
	return oldX, oldY, nil
}

// RenameTrack sets the display name, returning the old one.
func (s *Store) RenameTrack(id, name string) (string, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	old := t.Name
	t.Name = name
	s.mu.Unlock()

	s.notify()
	return old, nil
}

// --- mixer parameters ---

// SetTrackVolume updates the fader, returning the old dB value.
func (s *Store) SetTrackVolume(id string, db float64) (float64, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	old := t.VolumeDB
	t.VolumeDB = db
	s.engine.SetTrackVolume(id, db)
	s.mu.Unlock()

	s.notify()
	return old, nil
}

// SetTrackPan updates stereo balance, returning the old value.
func (s *Store) SetTrackPan(id string, pan float64) (float64, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	old := t.Pan
	t.Pan = pan
	s.engine.SetTrackPan(id, pan)
	s.mu.Unlock()

	s.notify()
	return old, nil
}

// SetTrackMute flips a track's own mute flag.
func (s *Store) SetTrackMute(id string, muted bool) error {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	t.Muted = muted
	s.applySoloStateLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetTrackSolo flips solo; soloing any track audibly mutes the rest.
func (s *Store) SetTrackSolo(id string, solo bool) error {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	t.Solo = solo
	s.applySoloStateLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// applySoloStateLocked pushes the audible mute of every track: its own mute,
// or the implied mute when some other track is soloed.
func (s *Store) applySoloStateLocked() {
	anySolo := false
	for _, t := range s.tracks {
		if t.Solo {
			anySolo = true
			break
		}
	}
	for _, t := range s.tracks {
		s.engine.SetTrackMute(t.ID, t.Muted || (anySolo && !t.Solo))
	}
}

// --- tempo, meter, key ---

// SetTempo applies an editor tempo, silently clamping to the editable
// range, recomputing every clip width, and repushing note schedules. The
// transport receives the new tempo and reschedules if playing.
func (s *Store) SetTempo(bpm int) int {
	if bpm < MinEditorTempo {
		bpm = MinEditorTempo
	}
	if bpm > MaxEditorTempo {
		bpm = MaxEditorTempo
	}
	s.mu.Lock()
	s.tempo = bpm
	s.recomputeWidthsLocked()
	s.repushContentLocked()
	ctl := s.ctl
	s.mu.Unlock()

	if ctl != nil {
		ctl.SetTempo(float64(bpm))
	}
	s.notify()
	return bpm
}

// RestoreTempo is the undo path for tempo changes: it applies the old tempo
// and the exact widths captured before the change rather than recomputing.
func (s *Store) RestoreTempo(bpm int, widths map[string]float64) {
	s.mu.Lock()
	s.tempo = bpm
	for _, t := range s.tracks {
		if w, ok := widths[t.ID]; ok {
			t.WidthPx = w
		} else {
			t.WidthPx = s.widthLocked(t)
		}
	}
	s.repushContentLocked()
	ctl := s.ctl
	s.mu.Unlock()

	if ctl != nil {
		ctl.SetTempo(float64(bpm))
	}
	s.notify()
}

// SetTimeSignature applies a new meter; widths shift because the measure
// grid does.
func (s *Store) SetTimeSignature(sig TimeSignature) (TimeSignature, error) {
	if sig.Numerator < 1 || sig.Denominator < 1 {
		return TimeSignature{}, fmt.Errorf("invalid time signature %d/%d", sig.Numerator, sig.Denominator)
	}
	s.mu.Lock()
	old := s.timeSig
	s.timeSig = sig
	s.recomputeWidthsLocked()
	ctl := s.ctl
	s.mu.Unlock()

	if ctl != nil {
		ctl.SetTimeSignature(sig.Numerator, sig.Denominator)
	}
	s.notify()
	return old, nil
}

// RestoreTimeSignature is the undo path, restoring captured widths exactly.
func (s *Store) RestoreTimeSignature(sig TimeSignature, widths map[string]float64) {
	s.mu.Lock()
	s.timeSig = sig
	for _, t := range s.tracks {
		if w, ok := widths[t.ID]; ok {
			t.WidthPx = w
		} else {
			t.WidthPx = s.widthLocked(t)
		}
	}
	ctl := s.ctl
	s.mu.Unlock()

	if ctl != nil {
		ctl.SetTimeSignature(sig.Numerator, sig.Denominator)
	}
	s.notify()
}

// SetKeySignature sets the project key, returning the old one.
func (s *Store) SetKeySignature(key string) string {
	s.mu.Lock()
	old := s.keySig
	s.keySig = key
	s.mu.Unlock()

	s.notify()
	return old
}

// --- notes ---

// AddNote appends a note to a midi track, assigning an ID when absent, and
// returns the stored note.
func (s *Store) AddNote(trackID string, n NoteEvent) (NoteEvent, error) {
	s.mu.Lock()
	t, ok := s.byID[trackID]
	if !ok {
		s.mu.Unlock()
		return NoteEvent{}, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	clampNote(&n)
	t.Notes = append(t.Notes, n)
	s.refreshTrackContentLocked(t)
	s.mu.Unlock()

	s.notify()
	return n, nil
}

// RemoveNote deletes a note, returning it for undo.
func (s *Store) RemoveNote(trackID, noteID string) (NoteEvent, error) {
	s.mu.Lock()
	t, ok := s.byID[trackID]
	if !ok {
		s.mu.Unlock()
		return NoteEvent{}, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	for i := range t.Notes {
		if t.Notes[i].ID == noteID {
			removed := t.Notes[i]
			t.Notes = append(t.Notes[:i], t.Notes[i+1:]...)
			s.refreshTrackContentLocked(t)
			s.mu.Unlock()
			s.notify()
			return removed, nil
		}
	}
	s.mu.Unlock()
	return NoteEvent{}, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
}

// MoveNote repositions a note in time and pitch, returning its prior state.
func (s *Store) MoveNote(trackID, noteID string, start float64, pitch uint8) (NoteEvent, error) {
	s.mu.Lock()
	t, ok := s.byID[trackID]
	if !ok {
		s.mu.Unlock()
		return NoteEvent{}, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	n := t.noteByID(noteID)
	if n == nil {
		s.mu.Unlock()
		return NoteEvent{}, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	old := *n
	n.Start = start
	n.Pitch = pitch
	clampNote(n)
	s.refreshTrackContentLocked(t)
	s.mu.Unlock()

	s.notify()
	return old, nil
}

// ResizeNote changes a note's length, returning its prior state.
func (s *Store) ResizeNote(trackID, noteID string, duration float64) (NoteEvent, error) {
	s.mu.Lock()
	t, ok := s.byID[trackID]
	if !ok {
		s.mu.Unlock()
		return NoteEvent{}, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	n := t.noteByID(noteID)
	if n == nil {
		s.mu.Unlock()
		return NoteEvent{}, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	old := *n
	n.Duration = duration
	clampNote(n)
	s.refreshTrackContentLocked(t)
	s.mu.Unlock()

	s.notify()
	return old, nil
}

func clampNote(n *NoteEvent) {
	if n.Start < 0 {
		n.Start = 0
	}
	if n.Duration < 1.0/StepsPerBeat {
		n.Duration = 1.0 / StepsPerBeat
	}
	if n.Pitch > 127 {
		n.Pitch = 127
	}
	if n.Velocity == 0 || n.Velocity > 127 {
		n.Velocity = 100
	}
}

// --- drum pads ---

// ToggleDrumPad flips one pad cell and returns its new active state. The
// operation is its own inverse, which is what makes its undo trivial.
// Out-of-range indices are clamped into the grid, same as tempo and seek.
func (s *Store) ToggleDrumPad(trackID string, row, step int) (bool, error) {
	s.mu.Lock()
	t, ok := s.byID[trackID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	if t.Pads == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: track %s", ErrNoPadGrid, trackID)
	}
	row, step = clampCell(row, step, t.Pads.Rows, t.Pads.Steps)
	t.Pads.Pads[row][step].Active = !t.Pads.Pads[row][step].Active
	active := t.Pads.Pads[row][step].Active
	s.refreshTrackContentLocked(t)
	s.mu.Unlock()

	s.notify()
	return active, nil
}

// PadActive reads one pad cell, clamping out-of-range indices into the grid.
func (s *Store) PadActive(trackID string, row, step int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[trackID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	if t.Pads == nil {
		return false, fmt.Errorf("%w: track %s", ErrNoPadGrid, trackID)
	}
	row, step = clampCell(row, step, t.Pads.Rows, t.Pads.Steps)
	return t.Pads.Pads[row][step].Active, nil
}

// clampCell limits pad indices to the grid bounds.
func clampCell(row, step, rows, steps int) (int, int) {
	if row < 0 {
		row = 0
	}
	if row >= rows {
		row = rows - 1
	}
	if step < 0 {
		step = 0
	}
	if step >= steps {
		step = steps - 1
	}
	return row, step
}

// DrumPads returns a copy of a track's pad grid for grid editors; nil if the
// track has no grid.
func (s *Store) DrumPads(trackID string) (*DrumGrid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	return t.Pads.clone(), nil
}

// NotesFor returns a copy of a track's notes for piano-roll editors.
func (s *Store) NotesFor(trackID string) ([]NoteEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	out := make([]NoteEvent, len(t.Notes))
	copy(out, t.Notes)
	return out, nil
}

// --- decode completion ---

// HandleTrackReady records a finished decode: the clip duration is now
// known, so the width becomes real.
func (s *Store) HandleTrackReady(id string, durationSec float64) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.DurationSec = durationSec
	t.WidthPx = s.widthLocked(t)
	s.mu.Unlock()

	log.Printf("[project] track %s ready: %.2fs", id, durationSec)
	s.notify()
}

// --- derived state ---

// playbackTempo is the editor tempo clamped to what the transport will
// actually play.
func (s *Store) playbackTempo() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playTempoLocked()
}

func (s *Store) playTempoLocked() float64 {
	return transport.ClampTempo(float64(s.tempo))
}

// widthLocked derives a track's on-screen width from its content length at
// the current tempo and meter. Audio widths stretch with tempo; midi and
// drum content is denominated in beats, so their widths hold still.
func (s *Store) widthLocked(t *Track) float64 {
	bpm := float64(s.tempo)
	num := s.timeSig.Numerator
	switch t.Kind {
	case engine.KindAudio:
		return transport.SecondsToPixels(t.DurationSec, bpm, num)
	default:
		return transport.SecondsToPixels(transport.BeatsToSeconds(t.Beats, bpm), bpm, num)
	}
}

func (s *Store) recomputeWidthsLocked() {
	for _, t := range s.tracks {
		t.WidthPx = s.widthLocked(t)
	}
}

// refreshTrackContentLocked rederives a track's musical length, its width,
// and the engine-side schedule after a note or pad edit.
func (s *Store) refreshTrackContentLocked(t *Track) {
	switch t.Kind {
	case engine.KindMidi:
		end := 0.0
		for _, n := range t.Notes {
			if e := n.Start + n.Duration; e > end {
				end = e
			}
		}
		num := float64(s.timeSig.Numerator)
		beats := math.Ceil(end/num) * num
		if beats < DefaultBeats {
			beats = DefaultBeats
		}
		t.Beats = beats
	case engine.KindDrum:
		if t.Pads != nil {
			t.Beats = t.Pads.Beats()
		}
	}
	t.WidthPx = s.widthLocked(t)
	s.pushContentLocked(t)
}

func (s *Store) repushContentLocked() {
	for _, t := range s.tracks {
		s.pushContentLocked(t)
	}
}

// pushContentLocked converts beat-denominated content to seconds at the
// playback tempo and hands it to the engine's unit.
func (s *Store) pushContentLocked(t *Track) {
	bpm := s.playTempoLocked()
	switch t.Kind {
	case engine.KindMidi:
		notes := make([]engine.Note, len(t.Notes))
		for i, n := range t.Notes {
			notes[i] = engine.Note{
				Start:    transport.BeatsToSeconds(n.Start, bpm),
				Duration: transport.BeatsToSeconds(n.Duration, bpm),
				Pitch:    n.Pitch,
				Velocity: n.Velocity,
			}
		}
		s.engine.SetUnitNotes(t.ID, notes)
	case engine.KindDrum:
		if t.Pads == nil {
			return
		}
		var hits []engine.DrumHit
		for r := 0; r < t.Pads.Rows; r++ {
			for c := 0; c < t.Pads.Steps; c++ {
				p := t.Pads.Pads[r][c]
				if !p.Active {
					continue
				}
				hits = append(hits, engine.DrumHit{
					Time:     transport.BeatsToSeconds(float64(c)/StepsPerBeat, bpm),
					Row:      r,
					Velocity: p.Velocity,
				})
			}
		}
		s.engine.SetUnitPattern(t.ID, hits, transport.BeatsToSeconds(t.Pads.Beats(), bpm), true)
	}
}

// --- snapshots ---

// Tracks returns deep copies in timeline order.
func (s *Store) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, *t.clone())
	}
	return out
}

// TrackByID returns a deep copy of one track.
func (s *Store) TrackByID(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return Track{}, false
	}
	return *t.clone(), true
}

// TrackCount returns the number of tracks.
func (s *Store) TrackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Tempo returns the editor tempo.
func (s *Store) Tempo() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tempo
}

// TimeSignature returns the meter.
func (s *Store) TimeSignature() TimeSignature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeSig
}

// KeySignature returns the project key.
func (s *Store) KeySignature() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keySig
}

// WidthSnapshot captures every track's current width, keyed by ID. Tempo
// and meter actions store this for exact undo.
func (s *Store) WidthSnapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.tracks))
	for _, t := range s.tracks {
		out[t.ID] = t.WidthPx
	}
	return out
}

// --- change notification ---

// Subscribe registers a listener called after every mutation; the returned
// func unsubscribes.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
