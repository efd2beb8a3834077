// ABOUTME: Editor-side track model: timeline placement, mixer settings, and musical content
// ABOUTME: JSON tags make the whole project serializable for save files
package project

import (
	"github.com/pranav100000/beatgen/internal/engine"
)

// StepsPerBeat is the drum grid resolution (sixteenth notes).
const StepsPerBeat = 4

// DefaultGridSteps is one 4/4 measure of sixteenths.
const DefaultGridSteps = 16

// TimeSignature is the project meter.
type TimeSignature struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// NoteEvent is one note in a piano-roll grid. Start and Duration are in
// beats; conversion to seconds happens when the schedule is pushed to the
// engine, so notes keep their musical position across tempo changes.
type NoteEvent struct {
	ID       string  `json:"id"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Pitch    uint8   `json:"pitch"`
	Velocity uint8   `json:"velocity"`
}

// PadStep is one cell of a drum grid.
type PadStep struct {
	Active   bool  `json:"active"`
	Velocity uint8 `json:"velocity"`
}

// DrumGrid is a rows-by-steps pad matrix.
type DrumGrid struct {
	Rows  int         `json:"rows"`
	Steps int         `json:"steps"`
	Pads  [][]PadStep `json:"pads"`
}

// NewDrumGrid builds an empty grid with default velocities.
func NewDrumGrid(rows, steps int) *DrumGrid {
	g := &DrumGrid{Rows: rows, Steps: steps, Pads: make([][]PadStep, rows)}
	for r := range g.Pads {
		g.Pads[r] = make([]PadStep, steps)
		for c := range g.Pads[r] {
			g.Pads[r][c].Velocity = 100
		}
	}
	return g
}

// Beats returns the grid's musical length.
func (g *DrumGrid) Beats() float64 {
	return float64(g.Steps) / StepsPerBeat
}

func (g *DrumGrid) clone() *DrumGrid {
	if g == nil {
		return nil
	}
	out := &DrumGrid{Rows: g.Rows, Steps: g.Steps, Pads: make([][]PadStep, len(g.Pads))}
	for r := range g.Pads {
		out.Pads[r] = make([]PadStep, len(g.Pads[r]))
		copy(out.Pads[r], g.Pads[r])
	}
	return out
}

// Track is the editor's view of one track. The engine holds the audio-side
// twin under the same ID.
type Track struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Kind engine.TrackKind `json:"kind"`

	// Timeline placement: X in pixels from the origin, Y the lane index.
	X float64 `json:"x"`
	Y int     `json:"y"`

	// WidthPx is the rendered clip width. Recomputed from the content
	// length whenever the tempo or meter changes.
	WidthPx float64 `json:"widthPx"`

	// DurationSec is the decoded length of an audio clip; zero until the
	// decode finishes. Midi and drum tracks use Beats instead.
	DurationSec float64 `json:"durationSec,omitempty"`
	Beats       float64 `json:"beats,omitempty"`

	VolumeDB float64 `json:"volumeDb"`
	Pan      float64 `json:"pan"`
	Muted    bool    `json:"muted"`
	Solo     bool    `json:"solo"`

	SourcePath string      `json:"sourcePath,omitempty"`
	Notes      []NoteEvent `json:"notes,omitempty"`
	Pads       *DrumGrid   `json:"pads,omitempty"`
}

func (t *Track) clone() *Track {
	out := *t
	out.Notes = make([]NoteEvent, len(t.Notes))
	copy(out.Notes, t.Notes)
	out.Pads = t.Pads.clone()
	return &out
}

// noteByID finds a note in the track; nil if absent.
func (t *Track) noteByID(id string) *NoteEvent {
	for i := range t.Notes {
		if t.Notes[i].ID == id {
			return &t.Notes[i]
		}
	}
	return nil
}
