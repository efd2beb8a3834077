// ABOUTME: Bubbletea model for the session TUI
// ABOUTME: Polls a session snapshot on a tick and maps keys to transport and history commands
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/pranav100000/beatgen/internal/control"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	refreshEvery = 100 * time.Millisecond
	seekStep     = 1.0
	tempoStep    = 5
)

var (
	topBorder    = "┌─ Beatgen Studio " + strings.Repeat("─", 39) + "┐\n"
	divider      = "├" + strings.Repeat("─", 56) + "┤\n"
	bottomBorder = "└" + strings.Repeat("─", 56) + "┘\n"
)

// Model represents the TUI state
type Model struct {
	session control.Session

	// Last snapshot pulled from the session
	snap control.SessionState

	// Transient feedback line, usually an undo/redo error
	status string

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int
}

// NewModel creates a model bound to a session. A nil session renders
// an empty view and only responds to quit keys.
func NewModel(session control.Session) Model {
	m := Model{session: session}
	m.refresh()
	return m
}

// tickMsg drives the periodic snapshot refresh
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tickCmd()
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderTracks()
	s += divider
	s += m.renderHistory()

	if m.status != "" {
		s += fmt.Sprintf("│ ! %-52s │\n", truncate(m.status, 52))
	}

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders session name, transport state and position
func (m Model) renderHeader() string {
	name := m.snap.Name
	if name == "" {
		name = "(no session)"
	}

	label := strings.ToUpper(m.snap.State)
	if label == "" {
		label = "STOPPED"
	}

	s := topBorder
	s += fmt.Sprintf("│ Session: %-45s │\n", truncate(name, 45))
	s += fmt.Sprintf("│ State: %-8s Bar %5s Clock %-7s%-15s │\n",
		label,
		formatPosition(m.snap.Position, m.snap.Tempo, m.snap.TimeSignature),
		formatClock(m.snap.Position), "")
	s += fmt.Sprintf("│ Tempo: %3d bpm   Meter: %-5s   Key: %-6s%-11s │\n",
		m.snap.Tempo, m.snap.TimeSignature, truncate(m.snap.Key, 6), "")
	s += divider

	return s
}

// renderTracks renders one row per track with mute, solo and width
func (m Model) renderTracks() string {
	if len(m.snap.Tracks) == 0 {
		return fmt.Sprintf("│ %-54s │\n", "(no tracks)")
	}

	maxWidth := 0
	for _, t := range m.snap.Tracks {
		if int(t.WidthPx) > maxWidth {
			maxWidth = int(t.WidthPx)
		}
	}
	if maxWidth == 0 {
		maxWidth = 1
	}

	s := fmt.Sprintf("│ Tracks:%-47s │\n", "")
	for _, t := range m.snap.Tracks {
		icon := " "
		if t.Playing {
			icon = ">"
		}

		flags := [2]byte{'-', '-'}
		if t.Muted {
			flags[0] = 'M'
		}
		if t.Solo {
			flags[1] = 'S'
		}

		s += fmt.Sprintf("│ %s %-12s %-5s %s %6.1fdB [%s] %5.0fpx  │\n",
			icon, truncate(t.Name, 12), t.Kind, flags[:],
			t.VolumeDB, renderBar(int(t.WidthPx), maxWidth, 10), t.WidthPx)
	}

	return s
}

// renderHistory renders the undo and redo labels
func (m Model) renderHistory() string {
	undo := "(nothing)"
	if m.snap.CanUndo {
		undo = m.snap.UndoLabel
	}
	redo := "(nothing)"
	if m.snap.CanRedo {
		redo = m.snap.RedoLabel
	}

	return fmt.Sprintf("│ Undo: %-20s  Redo: %-20s │\n",
		truncate(undo, 20), truncate(redo, 20))
}

// renderDebug renders raw snapshot details
func (m Model) renderDebug() string {
	s := fmt.Sprintf("│ DEBUG:%-48s │\n", "")
	s += fmt.Sprintf("│   Position: %8.3fs  Tracks: %2d%-21s │\n",
		m.snap.Position, len(m.snap.Tracks), "")
	s += fmt.Sprintf("│   History: undo=%-5v redo=%-5v%-22s │\n",
		m.snap.CanUndo, m.snap.CanRedo, "")
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	s := divider
	s += fmt.Sprintf("│ %-54s │\n", "space:Play/Pause  s:Stop  left/right:Seek 1s")
	s += fmt.Sprintf("│ %-54s │\n", "+/-:Tempo  u:Undo  r:Redo  d:Debug  q:Quit")
	s += bottomBorder
	return s
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
		return m, nil
	}

	if m.session == nil {
		return m, nil
	}

	m.status = ""
	switch msg.String() {
	case " ":
		if m.snap.State == "playing" {
			m.session.Pause()
		} else {
			m.session.Play()
		}
	case "s":
		m.session.Stop()
	case "left":
		pos := m.snap.Position - seekStep
		if pos < 0 {
			pos = 0
		}
		m.session.Seek(pos)
	case "right":
		m.session.Seek(m.snap.Position + seekStep)
	case "+", "=":
		m.session.SetTempo(m.snap.Tempo + tempoStep)
	case "-", "_":
		m.session.SetTempo(m.snap.Tempo - tempoStep)
	case "u":
		if err := m.session.Undo(); err != nil {
			m.status = err.Error()
		}
	case "r":
		if err := m.session.Redo(); err != nil {
			m.status = err.Error()
		}
	}
	m.refresh()

	return m, nil
}

// refresh pulls a fresh snapshot from the session
func (m *Model) refresh() {
	if m.session == nil {
		return
	}
	m.snap = m.session.Snapshot()
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

// formatPosition renders a transport position as bar.beat for the
// given tempo and meter, one-based the way musicians count.
func formatPosition(seconds float64, tempo int, sig string) string {
	beatsPerBar := 4
	var num, den int
	if _, err := fmt.Sscanf(sig, "%d/%d", &num, &den); err == nil && num > 0 {
		beatsPerBar = num
	}
	if tempo <= 0 {
		tempo = 120
	}

	beats := int(seconds * float64(tempo) / 60.0)
	bar := beats/beatsPerBar + 1
	beat := beats%beatsPerBar + 1
	return fmt.Sprintf("%03d.%d", bar, beat)
}

// formatClock renders seconds as m:ss.t
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	min := int(seconds) / 60
	rem := seconds - float64(min*60)
	return fmt.Sprintf("%d:%04.1f", min, rem)
}
