// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program around a session
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pranav100000/beatgen/internal/control"
)

// Run starts the TUI and blocks until the user quits.
func Run(session control.Session) error {
	p := tea.NewProgram(NewModel(session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
