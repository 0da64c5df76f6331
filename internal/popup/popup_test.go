package popup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterDefaultsHidden(t *testing.T) {
	m := NewManager()
	m.Register("p1")

	assert.True(t, m.Known("p1"))
	assert.False(t, m.Visible("p1"))
	assert.False(t, m.Known("p2"))
}

func TestManager_Toggle(t *testing.T) {
	m := NewManager()
	m.Register("p1")

	v, err := m.Toggle("p1")
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, m.Visible("p1"))

	v, err = m.Toggle("p1")
	require.NoError(t, err)
	assert.False(t, v)
}

func TestManager_ToggleUnknown(t *testing.T) {
	m := NewManager()
	_, err := m.Toggle("ghost")
	assert.ErrorIs(t, err, ErrUnknownEntity)
	assert.False(t, m.Known("ghost"), "toggle must not register")
}

func TestManager_ForceHideIdempotent(t *testing.T) {
	m := NewManager()
	m.Register("p1")
	_, err := m.Toggle("p1")
	require.NoError(t, err)

	assert.True(t, m.ForceHide("p1"))
	assert.False(t, m.Visible("p1"))
	assert.False(t, m.ForceHide("p1"))
	assert.False(t, m.Visible("p1"))

	assert.False(t, m.ForceHide("ghost"))
	assert.False(t, m.Known("ghost"))
}

func TestManager_RegisterKeepsVisibility(t *testing.T) {
	m := NewManager()
	m.Register("p1")
	_, _ = m.Toggle("p1")
	m.Register("p1")

	assert.True(t, m.Visible("p1"))
}

func TestManager_OpenSnapshotClone(t *testing.T) {
	m := NewManager()
	for _, id := range []string{"b", "a", "c"} {
		m.Register(id)
	}
	_, _ = m.Toggle("c")
	_, _ = m.Toggle("a")

	assert.Equal(t, []string{"a", "c"}, m.Open())
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, m.Snapshot())

	cp := m.Clone()
	cp.ForceHide("a")
	assert.True(t, m.Visible("a"))
	assert.False(t, cp.Visible("a"))
}
