// ABOUTME: High-level Session API tying engine, store, transport, and history together
// ABOUTME: The main entry point for embedding a beatgen session in a program
package beatgen

import (
	"fmt"
	"io"
	"log"

	"github.com/pranav100000/beatgen/internal/control"
	"github.com/pranav100000/beatgen/internal/engine"
	"github.com/pranav100000/beatgen/internal/history"
	"github.com/pranav100000/beatgen/internal/midiout"
	"github.com/pranav100000/beatgen/internal/project"
	"github.com/pranav100000/beatgen/internal/transport"
	"github.com/pranav100000/beatgen/pkg/audio/output"
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	// Name is the session's display name.
	Name string

	// SampleRate for the audio engine (default: 48000).
	SampleRate int

	// Tempo is the initial editor tempo in BPM (default: 120).
	Tempo int

	// Silent disables the audio device; rendering still runs against a
	// null sink. Useful for headless and test use.
	Silent bool

	// MIDIPort, when non-empty, routes note events to the first MIDI
	// output port whose name contains this substring.
	MIDIPort string

	// OnStateChange is called when the transport changes state.
	OnStateChange func(transport.State)

	// OnEdit is called after any project edit or history movement.
	OnEdit func()

	// OnError is called for asynchronous engine or transport errors.
	OnError func(error)
}

// Session is a complete beatgen session: an audio engine, a project store,
// the playback transport, and the undo history, wired together.
type Session struct {
	config SessionConfig

	engine    *engine.Engine
	store     *project.Store
	transport *transport.Transport
	history   *history.Manager

	router *midiout.Router

	unsubStore   func()
	unsubHistory func()
}

// NewSession builds and starts a session.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Name == "" {
		config.Name = "beatgen"
	}
	if config.Tempo == 0 {
		config.Tempo = 120
	}

	s := &Session{config: config}

	var sink output.Sink
	if !config.Silent {
		sink = output.NewDevice()
	}

	s.engine = engine.New(engine.Config{
		SampleRate: config.SampleRate,
		Sink:       sink,
		OnTrackReady: func(trackID string, duration float64) {
			s.store.HandleTrackReady(trackID, duration)
		},
		OnError: s.reportError,
	})

	s.store = project.NewStore(s.engine)
	s.store.SetTempo(config.Tempo)

	s.transport = transport.New(s.engine, s.store, transport.Config{
		Tempo:         float64(config.Tempo),
		OnStateChange: s.onTransportState,
		OnError:       s.reportError,
	})
	s.store.Bind(s.transport)

	s.history = history.NewManager()

	if config.MIDIPort != "" {
		router, err := midiout.NewRouter(config.MIDIPort)
		if err != nil {
			s.closeComponents()
			return nil, fmt.Errorf("midi routing: %w", err)
		}
		s.router = router
		s.engine.SetNoteSink(router)
	}

	s.unsubStore = s.store.Subscribe(s.notifyEdit)
	s.unsubHistory = s.history.Subscribe(s.notifyEdit)

	if err := s.engine.Start(); err != nil {
		s.closeComponents()
		return nil, err
	}

	log.Printf("[session] %s ready at %d Hz", config.Name, s.engine.Format().SampleRate)
	return s, nil
}

// onTransportState silences external MIDI gear whenever playback leaves the
// playing state, then forwards the change.
func (s *Session) onTransportState(st transport.State) {
	if s.router != nil && st != transport.StatePlaying {
		s.router.AllNotesOff()
	}
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(st)
	}
}

func (s *Session) notifyEdit() {
	if s.config.OnEdit != nil {
		s.config.OnEdit()
	}
}

func (s *Session) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
		return
	}
	log.Printf("[session] error: %v", err)
}

// --- transport surface ---

// Play starts playback from the current position.
func (s *Session) Play() {
	if err := s.transport.Play(); err != nil {
		s.reportError(err)
	}
}

// Pause freezes the playhead where it is.
func (s *Session) Pause() {
	s.transport.Pause()
}

// Stop halts playback and resets the playhead to zero.
func (s *Session) Stop() {
	s.transport.Stop()
}

// Seek moves the playhead, resuming playback if it was running.
func (s *Session) Seek(seconds float64) {
	if err := s.transport.Seek(seconds); err != nil {
		s.reportError(err)
	}
}

// Position is the playhead position in seconds.
func (s *Session) Position() float64 {
	return s.transport.Position()
}

// TransportState reports the playback state.
func (s *Session) TransportState() transport.State {
	return s.transport.State()
}

// --- edit surface ---

// Apply executes an undoable edit.
func (s *Session) Apply(a history.Action) error {
	return s.history.Do(a)
}

// Undo reverses the most recent edit.
func (s *Session) Undo() error {
	return s.history.Undo()
}

// Redo reapplies the most recently undone edit.
func (s *Session) Redo() error {
	return s.history.Redo()
}

// SetTempo changes the project tempo as an undoable edit and returns the
// clamped value now in effect.
func (s *Session) SetTempo(bpm int) int {
	if err := s.Apply(project.ChangeBPM(s.store, bpm)); err != nil {
		s.reportError(err)
	}
	return s.store.Tempo()
}

// AddAudioTrack creates an audio track that decodes sourcePath in the
// background. Returns the new track's ID.
func (s *Session) AddAudioTrack(name, sourcePath string) (string, error) {
	act := project.AddTrack(s.store, engine.KindAudio, name, sourcePath)
	if err := s.Apply(act); err != nil {
		return "", err
	}
	return act.TrackID(), nil
}

// AddMidiTrack creates an empty midi track.
func (s *Session) AddMidiTrack(name string) (string, error) {
	act := project.AddTrack(s.store, engine.KindMidi, name, "")
	if err := s.Apply(act); err != nil {
		return "", err
	}
	return act.TrackID(), nil
}

// AddDrumTrack creates a drum machine track with an empty pad grid.
func (s *Session) AddDrumTrack(name string) (string, error) {
	act := project.AddTrack(s.store, engine.KindDrum, name, "")
	if err := s.Apply(act); err != nil {
		return "", err
	}
	return act.TrackID(), nil
}

// --- persistence ---

// Save writes the project as JSON.
func (s *Session) Save(w io.Writer) error {
	return s.store.Save(w)
}

// SaveFile writes the project to path.
func (s *Session) SaveFile(path string) error {
	return s.store.SaveFile(path)
}

// Load replaces the project from JSON and clears the undo history, since
// recorded actions point at tracks that no longer exist.
func (s *Session) Load(r io.Reader) error {
	wasPlaying := s.transport.Playing()
	if wasPlaying {
		s.transport.Stop()
	}
	if err := s.store.Load(r); err != nil {
		return err
	}
	s.history.Clear()
	return nil
}

// LoadFile replaces the project from a file.
func (s *Session) LoadFile(path string) error {
	wasPlaying := s.transport.Playing()
	if wasPlaying {
		s.transport.Stop()
	}
	if err := s.store.LoadFile(path); err != nil {
		return err
	}
	s.history.Clear()
	return nil
}

// --- component access ---

// Store exposes the project store for direct reads and edit actions.
func (s *Session) Store() *project.Store {
	return s.store
}

// Engine exposes the audio engine.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Transport exposes the playback transport.
func (s *Session) Transport() *transport.Transport {
	return s.transport
}

// History exposes the undo manager.
func (s *Session) History() *history.Manager {
	return s.history
}

// MIDIPortName reports the resolved MIDI output port, if routing is active.
func (s *Session) MIDIPortName() string {
	if s.router == nil {
		return ""
	}
	return s.router.PortName()
}

// Snapshot builds the control protocol's view of the session.
func (s *Session) Snapshot() control.SessionState {
	num, den := s.transport.TimeSignature()

	playing := make(map[string]bool)
	for _, ts := range s.engine.Tracks() {
		playing[ts.ID] = ts.State == engine.UnitStarted
	}

	tracks := s.store.Tracks()
	rows := make([]control.TrackState, len(tracks))
	for i, t := range tracks {
		rows[i] = control.TrackState{
			ID:       t.ID,
			Name:     t.Name,
			Kind:     t.Kind.String(),
			X:        t.X,
			Y:        t.Y,
			WidthPx:  t.WidthPx,
			VolumeDB: t.VolumeDB,
			Pan:      t.Pan,
			Muted:    t.Muted,
			Solo:     t.Solo,
			Playing:  playing[t.ID],
		}
	}

	return control.SessionState{
		Name:          s.config.Name,
		State:         s.transport.State().String(),
		Position:      s.transport.Position(),
		Tempo:         s.store.Tempo(),
		TimeSignature: fmt.Sprintf("%d/%d", num, den),
		Key:           s.store.KeySignature(),
		CanUndo:       s.history.CanUndo(),
		CanRedo:       s.history.CanRedo(),
		UndoLabel:     s.history.PeekUndoName(),
		RedoLabel:     s.history.PeekRedoName(),
		Tracks:        rows,
	}
}

func (s *Session) closeComponents() {
	if s.unsubStore != nil {
		s.unsubStore()
	}
	if s.unsubHistory != nil {
		s.unsubHistory()
	}
	s.transport.Close()
	if s.router != nil {
		s.router.Close()
	}
	s.engine.Close()
}

// Close stops playback and releases the audio device and MIDI port.
func (s *Session) Close() error {
	s.transport.Stop()
	s.closeComponents()
	log.Printf("[session] %s closed", s.config.Name)
	return nil
}
