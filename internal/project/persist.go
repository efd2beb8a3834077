// ABOUTME: Project save/load as indented JSON
// ABOUTME: Loading swaps the whole track list and rebuilds the engine side
package project

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const fileVersion = 1

type projectFile struct {
	Version       int           `json:"version"`
	Tempo         int           `json:"tempo"`
	TimeSignature TimeSignature `json:"timeSignature"`
	KeySignature  string        `json:"keySignature"`
	Tracks        []*Track      `json:"tracks"`
}

// Save writes the project as JSON.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	pf := projectFile{
		Version:       fileVersion,
		Tempo:         s.tempo,
		TimeSignature: s.timeSig,
		KeySignature:  s.keySig,
		Tracks:        make([]*Track, 0, len(s.tracks)),
	}
	for _, t := range s.tracks {
		pf.Tracks = append(pf.Tracks, t.clone())
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

// SaveFile writes the project to a path.
func (s *Store) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create project file: %w", err)
	}
	defer f.Close()
	return s.Save(f)
}

// Load replaces the whole project from JSON. Existing tracks are removed
// from the engine first; audio tracks with source paths start re-decoding.
func (s *Store) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read project: %w", err)
	}
	var pf projectFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse project: %w", err)
	}
	if pf.Version > fileVersion {
		return fmt.Errorf("project file version %d is newer than supported %d", pf.Version, fileVersion)
	}
	if pf.Tempo == 0 {
		pf.Tempo = 120
	}
	if pf.TimeSignature.Numerator == 0 {
		pf.TimeSignature = TimeSignature{Numerator: 4, Denominator: 4}
	}

	s.mu.Lock()
	for _, t := range s.tracks {
		s.engine.RemoveTrack(t.ID)
	}
	s.tracks = nil
	s.byID = make(map[string]*Track)
	s.tempo = pf.Tempo
	s.timeSig = pf.TimeSignature
	s.keySig = pf.KeySignature

	for _, t := range pf.Tracks {
		s.tracks = append(s.tracks, t)
		s.byID[t.ID] = t
		t.WidthPx = s.widthLocked(t)
		if err := s.engine.CreateTrack(t.ID, t.Kind, t.SourcePath); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("rebuild track %s: %w", t.ID, err)
		}
		s.engine.SetTrackVolume(t.ID, t.VolumeDB)
		s.engine.SetTrackPan(t.ID, t.Pan)
		s.pushContentLocked(t)
	}
	s.applySoloStateLocked()
	ctl := s.ctl
	tempo := s.tempo
	sig := s.timeSig
	s.mu.Unlock()

	if ctl != nil {
		ctl.SetTempo(float64(tempo))
		ctl.SetTimeSignature(sig.Numerator, sig.Denominator)
	}
	s.notify()
	return nil
}

// LoadFile reads a project from a path.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open project file: %w", err)
	}
	defer f.Close()
	return s.Load(f)
}
