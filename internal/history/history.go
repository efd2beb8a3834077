// ABOUTME: Reversible command history backing the editor's undo/redo
// ABOUTME: One mutex serializes all actions; failed executions never enter the stacks
package history

import (
	"fmt"
	"log"
	"sync"
)

const maxDepth = 64

// Action is one reversible edit. Execute applies it; Undo must restore the
// exact prior state. Both run serialized under the manager's lock.
type Action interface {
	Name() string
	Execute() error
	Undo() error
}

// Manager owns the undo and redo stacks. Every edit in the application goes
// through Do, which is what makes undo ordering trustworthy.
type Manager struct {
	mu   sync.Mutex
	undo []Action
	redo []Action

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int
}

// NewManager creates an empty history.
func NewManager() *Manager {
	return &Manager{subs: make(map[int]func())}
}

// Do executes the action and records it. On failure the action is not
// recorded and the stacks are untouched; the error carries the action name.
// A successful Do clears the redo stack.
func (m *Manager) Do(a Action) error {
	m.mu.Lock()
	if err := a.Execute(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("execute %s: %w", a.Name(), err)
	}
	m.undo = append(m.undo, a)
	if len(m.undo) > maxDepth {
		copy(m.undo, m.undo[len(m.undo)-maxDepth:])
		m.undo = m.undo[:maxDepth]
	}
	m.redo = m.redo[:0]
	m.mu.Unlock()

	m.notify()
	return nil
}

// Undo reverses the most recent action. An empty stack is a no-op, not an
// error. If the action's Undo fails it stays on the undo stack so the user
// can retry.
func (m *Manager) Undo() error {
	m.mu.Lock()
	if len(m.undo) == 0 {
		m.mu.Unlock()
		return nil
	}
	a := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	if err := a.Undo(); err != nil {
		m.undo = append(m.undo, a)
		m.mu.Unlock()
		log.Printf("[history] undo %s failed: %v", a.Name(), err)
		return fmt.Errorf("undo %s: %w", a.Name(), err)
	}
	m.redo = append(m.redo, a)
	m.mu.Unlock()

	m.notify()
	return nil
}

// Redo re-applies the most recently undone action; empty stack is a no-op.
func (m *Manager) Redo() error {
	m.mu.Lock()
	if len(m.redo) == 0 {
		m.mu.Unlock()
		return nil
	}
	a := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	if err := a.Execute(); err != nil {
		m.redo = append(m.redo, a)
		m.mu.Unlock()
		log.Printf("[history] redo %s failed: %v", a.Name(), err)
		return fmt.Errorf("redo %s: %w", a.Name(), err)
	}
	m.undo = append(m.undo, a)
	m.mu.Unlock()

	m.notify()
	return nil
}

// CanUndo reports whether an undo is available.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether a redo is available.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Depths returns the stack sizes.
func (m *Manager) Depths() (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo), len(m.redo)
}

// PeekUndoName returns the name of the next action Undo would reverse, for
// menu labels; empty string when there is none.
func (m *Manager) PeekUndoName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return ""
	}
	return m.undo[len(m.undo)-1].Name()
}

// PeekRedoName returns the name of the next action Redo would re-apply.
func (m *Manager) PeekRedoName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return ""
	}
	return m.redo[len(m.redo)-1].Name()
}

// Clear drops both stacks (project load, new session).
func (m *Manager) Clear() {
	m.mu.Lock()
	m.undo = nil
	m.redo = nil
	m.mu.Unlock()
	m.notify()
}

// Subscribe registers a listener called after every stack change; the
// returned func unsubscribes. Listeners run outside the manager lock.
func (m *Manager) Subscribe(fn func()) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify() {
	m.subMu.Lock()
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
