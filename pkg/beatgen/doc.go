// ABOUTME: High-level beatgen library API
// ABOUTME: Provides the Session facade for embedding a full DAW session
// Package beatgen provides the high-level API for running a beatgen session.
//
// A Session bundles the four pieces a host program needs:
//   - the audio engine that renders tracks to the output device
//   - the project store holding tracks, notes, and pad grids
//   - the playback transport with its timeline clock
//   - the undo history for reversible edits
//
// Example:
//
//	session, err := beatgen.NewSession(beatgen.SessionConfig{
//	    Name:  "My Song",
//	    Tempo: 100,
//	})
//	id, err := session.AddMidiTrack("keys")
//	err = session.Apply(project.CreateNote(session.Store(), id, project.NoteEvent{
//	    Start: 0, Duration: 1, Pitch: 60, Velocity: 100,
//	}))
//	session.Play()
//
// For lower-level control, see the internal engine, project, transport, and
// history packages.
package beatgen
