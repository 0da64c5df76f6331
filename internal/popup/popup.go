// Package popup tracks which entity info popups are open. Visibility is
// UI-local: only user activation opens a popup, and reconciliation may
// only close one.
package popup

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownEntity is returned when toggling an entity that was never registered.
var ErrUnknownEntity = errors.New("unknown entity")

// Manager maps entity ids to popup visibility.
type Manager struct {
	visible map[string]bool
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		visible: make(map[string]bool),
	}
}

// Register adds an entity with a hidden popup. Registering a known entity
// keeps its current visibility.
func (m *Manager) Register(id string) {
	if _, ok := m.visible[id]; !ok {
		m.visible[id] = false
	}
}

// Known reports whether an entity has been registered.
func (m *Manager) Known(id string) bool {
	_, ok := m.visible[id]
	return ok
}

// Toggle flips the visibility of an entity's popup and returns the new value.
func (m *Manager) Toggle(id string) (bool, error) {
	v, ok := m.visible[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	m.visible[id] = !v
	return !v, nil
}

// ForceHide hides the popup unconditionally and reports whether it was
// visible before. Unknown ids are ignored.
func (m *Manager) ForceHide(id string) bool {
	was := m.visible[id]
	if _, ok := m.visible[id]; ok {
		m.visible[id] = false
	}
	return was
}

// Visible reports whether the popup of an entity is open.
func (m *Manager) Visible(id string) bool {
	return m.visible[id]
}

// Open returns the ids of all open popups, sorted.
func (m *Manager) Open() []string {
	var ids []string
	for id, v := range m.visible {
		if v {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the visibility map.
func (m *Manager) Snapshot() map[string]bool {
	out := make(map[string]bool, len(m.visible))
	for id, v := range m.visible {
		out[id] = v
	}
	return out
}

// Clone returns an independent copy.
func (m *Manager) Clone() *Manager {
	return &Manager{visible: m.Snapshot()}
}
