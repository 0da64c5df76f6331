package reconcile

import (
	"testing"

	"github.com/shadowhunters/boardview/internal/layout"
	"github.com/shadowhunters/boardview/internal/registry"
	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid() *core.ZoneGrid {
	return &core.ZoneGrid{
		{{Name: "Hermit's Cabin"}, {Name: "Underworld Gate"}},
		{{Name: "Church"}, {Name: "Cemetery"}},
		{{Name: "Weird Woods"}, {Name: "Erstwhile Altar"}},
	}
}

func newEngine(viewer string) *Engine {
	return New(Config{Board: layout.DefaultBoard(), ViewerUserID: viewer})
}

func player(location string, damage, state int, equipment ...string) core.PlayerFields {
	items := make([]core.Equipment, len(equipment))
	for i, t := range equipment {
		items[i].Title = t
	}
	return core.PlayerFields{Location: location, Damage: damage, State: state, Equipment: items}
}

func withUser(f core.PlayerFields, user string) core.PlayerFields {
	f.UserID = user
	return f
}

func findKind(cs core.ChangeSet, id string, kind core.ChangeKind) (core.Change, bool) {
	for _, ch := range cs.Changes {
		if ch.EntityID == id && ch.Kind == kind {
			return ch, true
		}
	}
	return core.Change{}, false
}

func TestReconcile_FirstSnapshotNeedsZones(t *testing.T) {
	e := newEngine("")

	_, err := e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{"p1": player("", 0, 1)}})
	assert.ErrorIs(t, err, ErrNoZones)
	assert.False(t, e.Started())
	assert.Equal(t, uint64(0), e.Seq())
}

func TestReconcile_MalformedGrid(t *testing.T) {
	e := newEngine("")
	grid := testGrid()
	grid[1][0].Name = "Cemetery"

	_, err := e.Reconcile(core.Snapshot{Zones: grid})
	assert.ErrorIs(t, err, layout.ErrMalformedGrid)
	assert.False(t, e.Started())
}

func TestReconcile_ChurchScenario(t *testing.T) {
	e := newEngine("p1")

	cs, err := e.Reconcile(core.Snapshot{
		Zones: testGrid(),
		Players: map[string]core.PlayerFields{
			"p1": withUser(player("Church", 2, 1, "Knife"), "p1"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cs.Seq)

	created, ok := findKind(cs, "p1", core.ChangeCreated)
	require.True(t, ok)
	require.NotNil(t, created.Player)
	assert.Equal(t, 1, created.Player.Slot)
	assert.Equal(t, core.Point{X: 682.109, Y: 117.76}, created.Player.Position)
	assert.Equal(t, 585.0-2*40.0, created.Player.HealthMarker.Y)

	slots, ok := findKind(cs, "p1", core.ChangeSelfEquipmentChanged)
	require.True(t, ok)
	assert.Equal(t, []string{"Knife", "", "", "", "", ""}, slots.SlotLabels)

	for r := 0; r < 3; r++ {
		for c := 0; c < 2; c++ {
			_, ok := findKind(cs, layout.ZoneID(r, c), core.ChangeZoneCreated)
			assert.True(t, ok)
		}
	}

	// defeat resets to the start spot and hides the open popup
	_, err = e.Activate("p1")
	require.NoError(t, err)
	require.True(t, e.Popups().Visible("p1"))

	cs, err = e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{
		"p1": withUser(player("Church", 2, 0, "Knife"), "p1"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []core.ChangeKind{core.ChangeDefeated, core.ChangePopupHidden}, cs.Kinds("p1"))

	p, _ := e.Registry().Player("p1")
	assert.True(t, p.Dimmed)
	assert.Equal(t, p.StartPosition, p.Position)
	assert.False(t, e.Popups().Visible("p1"))
}

func TestReconcile_PopupSurvivesWhenLocationUnchanged(t *testing.T) {
	e := newEngine("")
	_, err := e.Reconcile(core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{
		"p1": withUser(player("Church", 0, 1), "a"),
	}})
	require.NoError(t, err)

	_, err = e.Activate("p1")
	require.NoError(t, err)

	cs, err := e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{
		"p1": withUser(player("Church", 4, 1, "Axe"), "CPU"),
	}})
	require.NoError(t, err)
	assert.True(t, e.Popups().Visible("p1"))
	assert.Equal(t, []core.ChangeKind{core.ChangeRenamed, core.ChangeDamageChanged, core.ChangeEquipmentChanged}, cs.Kinds("p1"))

	cs, err = e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{
		"p1": withUser(player("Cemetery", 4, 1, "Axe"), "CPU"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []core.ChangeKind{core.ChangeMoved, core.ChangePopupHidden}, cs.Kinds("p1"))
	assert.False(t, e.Popups().Visible("p1"))

	// no automatic re-show
	_, err = e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{
		"p1": withUser(player("Cemetery", 4, 1, "Axe"), "CPU"),
	}})
	require.NoError(t, err)
	assert.False(t, e.Popups().Visible("p1"))
}

func TestReconcile_MoveWithHiddenPopupEmitsNoHide(t *testing.T) {
	e := newEngine("")
	_, err := e.Reconcile(core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{
		"p1": player("Church", 0, 1),
	}})
	require.NoError(t, err)

	cs, err := e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{"p1": player("Cemetery", 0, 1)}})
	require.NoError(t, err)
	assert.Equal(t, []core.ChangeKind{core.ChangeMoved}, cs.Kinds("p1"))
}

func TestReconcile_Idempotent(t *testing.T) {
	e := newEngine("me")
	snap := core.Snapshot{
		Zones: testGrid(),
		Players: map[string]core.PlayerFields{
			"a": withUser(player("Church", 1, 1, "Axe"), "me"),
			"b": withUser(player("Weird Woods", 3, 2), "bob"),
			"c": withUser(player("", 0, 0), "carol"),
		},
	}
	_, err := e.Reconcile(snap)
	require.NoError(t, err)
	before := e.View()

	snap.Zones = nil
	cs, err := e.Reconcile(snap)
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	after := e.View()
	before.Seq, after.Seq = 0, 0
	assert.Equal(t, before, after)
}

func TestReconcile_DeterministicSlots(t *testing.T) {
	snap := core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{}}
	for _, id := range []string{"zed", "amy", "kim", "bob"} {
		snap.Players[id] = withUser(player("", 0, 1), id)
	}

	for i := 0; i < 10; i++ {
		e := newEngine("")
		_, err := e.Reconcile(snap)
		require.NoError(t, err)

		want := map[string]int{"amy": 1, "bob": 2, "kim": 3, "zed": 4}
		for id, slot := range want {
			p, ok := e.Registry().Player(id)
			require.True(t, ok)
			assert.Equal(t, slot, p.Slot, id)
		}
	}
}

func TestReconcile_AbsentPlayersUntouched(t *testing.T) {
	e := newEngine("")
	_, err := e.Reconcile(core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{
		"a": player("Church", 1, 1),
		"b": player("Cemetery", 2, 1),
	}})
	require.NoError(t, err)

	cs, err := e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{"a": player("Church", 1, 1)}})
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	b, ok := e.Registry().Player("b")
	require.True(t, ok)
	assert.Equal(t, "Cemetery", b.LocationName)
	assert.Equal(t, 2, b.Damage)
}

func TestReconcile_LaterZonesIgnored(t *testing.T) {
	e := newEngine("")
	_, err := e.Reconcile(core.Snapshot{Zones: testGrid()})
	require.NoError(t, err)

	other := testGrid()
	other[0][0].Name = "Somewhere Else"
	cs, err := e.Reconcile(core.Snapshot{Zones: other})
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	z, _ := e.Registry().ZoneAt(0, 0)
	assert.Equal(t, "Hermit's Cabin", z.Name)
}

func TestReconcile_UnknownZoneRollsBack(t *testing.T) {
	e := newEngine("")
	_, err := e.Reconcile(core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{
		"a": player("Church", 0, 1),
	}})
	require.NoError(t, err)
	_, err = e.Activate("a")
	require.NoError(t, err)
	seq := e.Seq()

	_, err = e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{
		"a": player("Cemetery", 5, 1),
		"b": player("Castle", 0, 1),
	}})
	assert.ErrorIs(t, err, layout.ErrUnknownZone)

	a, _ := e.Registry().Player("a")
	assert.Equal(t, "Church", a.LocationName)
	assert.Equal(t, 0, a.Damage)
	assert.True(t, e.Popups().Visible("a"))
	_, ok := e.Registry().Player("b")
	assert.False(t, ok)
	assert.Equal(t, seq, e.Seq())
}

func TestReconcile_DefeatThenRevive(t *testing.T) {
	e := newEngine("")
	_, err := e.Reconcile(core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{
		"p1": withUser(player("Church", 2, 1), "p1"),
	}})
	require.NoError(t, err)

	cs, err := e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{"p1": withUser(player("Church", 2, 0), "p1")}})
	require.NoError(t, err)
	assert.Equal(t, []core.ChangeKind{core.ChangeDefeated}, cs.Kinds("p1"))

	cs, err = e.Reconcile(core.Snapshot{Players: map[string]core.PlayerFields{"p1": withUser(player("Church", 2, 1), "p1")}})
	require.NoError(t, err)
	assert.Equal(t, []core.ChangeKind{core.ChangeRevived}, cs.Kinds("p1"))

	ch, ok := findKind(cs, "p1", core.ChangeRevived)
	require.True(t, ok)
	assert.True(t, ch.Player.Alive)
	assert.False(t, ch.Player.Dimmed)
	assert.Equal(t, 1.0, ch.Player.Opacity)
}

func TestReconcile_SpectatorGetsNoSelfSignals(t *testing.T) {
	e := newEngine("")
	cs, err := e.Init(core.SessionInit{
		Character: &core.CharacterMeta{Name: "Allie", Alleg: 1},
		Snapshot: core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{
			"a": withUser(player("Church", 0, 1, "Axe"), "alice"),
		}},
	})
	require.NoError(t, err)

	for _, ch := range cs.Changes {
		assert.NotEqual(t, core.ChangeSelfEquipmentChanged, ch.Kind)
		assert.NotEqual(t, core.ChangeSelfInfo, ch.Kind)
	}
	assert.Empty(t, e.View().SelfSlots)
	assert.Nil(t, e.View().Self)
}

func TestInit_BindsViewerAndSelfInfo(t *testing.T) {
	e := newEngine("")
	cs, err := e.Init(core.SessionInit{
		UserID:    "u2",
		Character: &core.CharacterMeta{Name: "Vampire", Alleg: 0, MaxDamage: 13, WinCondDesc: "Kill all hunters"},
		Snapshot: core.Snapshot{
			Zones:      testGrid(),
			Characters: []core.CharacterMeta{{Name: "Vampire", MaxDamage: 13}},
			Players: map[string]core.PlayerFields{
				"x": withUser(player("", 0, 2), "u1"),
				"y": withUser(player("", 0, 2), "u2"),
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "y", e.Registry().SelfID())

	info, ok := findKind(cs, "y", core.ChangeSelfInfo)
	require.True(t, ok)
	assert.Equal(t, "Shadow", info.Self.Team)
	assert.Equal(t, 13, info.Self.MaxDamage)

	slots, ok := findKind(cs, "y", core.ChangeSelfEquipmentChanged)
	require.True(t, ok)
	assert.Equal(t, make([]string, 6), slots.SlotLabels)
	_, ok = findKind(cs, "x", core.ChangeSelfEquipmentChanged)
	assert.False(t, ok)

	assert.Len(t, e.Registry().Characters(), 1)
	assert.Equal(t, "Player: Vampire\nDies At HP: 13", e.View().CharactersText)

	_, err = e.Init(core.SessionInit{UserID: "u3"})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestActivate(t *testing.T) {
	e := newEngine("")
	_, err := e.Activate("p1")
	require.Error(t, err)

	_, err = e.Reconcile(core.Snapshot{Zones: testGrid(), Players: map[string]core.PlayerFields{"p1": player("", 0, 1)}})
	require.NoError(t, err)

	cs, err := e.Activate(layout.ZoneID(1, 0))
	require.NoError(t, err)
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, core.ChangePopupToggled, cs.Changes[0].Kind)
	assert.True(t, cs.Changes[0].Visible)
	assert.Equal(t, uint64(2), cs.Seq)

	cs, err = e.Activate(registry.CharactersID)
	require.NoError(t, err)
	assert.True(t, cs.Changes[0].Visible)

	cs, err = e.Activate(registry.CharactersID)
	require.NoError(t, err)
	assert.False(t, cs.Changes[0].Visible)
}
