package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEquipmentSummary(t *testing.T) {
	tests := []struct {
		name  string
		items []Equipment
		want  string
	}{
		{name: "nil", items: nil, want: "None"},
		{name: "empty", items: []Equipment{}, want: "None"},
		{name: "single", items: []Equipment{{Title: "Chainsaw"}}, want: "Chainsaw"},
		{name: "ordered", items: []Equipment{{Title: "Talisman"}, {Title: "Holy Robe"}}, want: "Talisman, Holy Robe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EquipmentSummary(tt.items))
		})
	}
}

func TestEquipmentEqual(t *testing.T) {
	a := []Equipment{{Title: "Axe"}, {Title: "Spear"}}

	assert.True(t, EquipmentEqual(a, []Equipment{{Title: "Axe"}, {Title: "Spear"}}))
	assert.False(t, EquipmentEqual(a, []Equipment{{Title: "Spear"}, {Title: "Axe"}}), "order is significant")
	assert.False(t, EquipmentEqual(a, a[:1]))
	assert.True(t, EquipmentEqual(nil, []Equipment{}))

	described := []Equipment{{Title: "Axe", Description: "+1 damage"}, {Title: "Spear"}}
	assert.False(t, EquipmentEqual(a, described), "description is part of the item")
}

func TestPlayerFields_AliveAndOnBoard(t *testing.T) {
	assert.True(t, PlayerFields{State: StateAnonymous}.Alive())
	assert.True(t, PlayerFields{State: StateRevealed}.Alive())
	assert.False(t, PlayerFields{State: StateDefeated}.Alive())

	assert.False(t, PlayerFields{Location: LocationNone}.OnBoard())
	assert.False(t, PlayerFields{}.OnBoard())
	assert.True(t, PlayerFields{Location: "Church"}.OnBoard())
}

func TestAllegiance(t *testing.T) {
	assert.Equal(t, "Shadow", Allegiance(0))
	assert.Equal(t, "Neutral", Allegiance(1))
	assert.Equal(t, "Hunter", Allegiance(2))
	assert.Equal(t, "Hunter", Allegiance(-1))
}

func TestNewSelfInfo_DefaultsSpecial(t *testing.T) {
	info := NewSelfInfo(CharacterMeta{Name: "Allie", MaxDamage: 8, Alleg: 1, WinCondDesc: "Be alive"})

	assert.Equal(t, "Allie", info.Name)
	assert.Equal(t, "Neutral", info.Team)
	assert.Equal(t, 8, info.MaxDamage)
	assert.Equal(t, "none", info.Special)
}

func TestZoneGridNames(t *testing.T) {
	var g ZoneGrid
	g[0][0].Name = "Hermit's Cabin"
	g[0][1].Name = "Underworld Gate"
	g[2][1].Name = "Erstwhile Altar"

	names := g.Names()
	assert.Len(t, names, 6)
	assert.Equal(t, "Hermit's Cabin", names[0])
	assert.Equal(t, "Underworld Gate", names[1])
	assert.Equal(t, "Erstwhile Altar", names[5])
}

func TestPlayerViewStateClone(t *testing.T) {
	orig := PlayerViewState{ID: "p1", Equipment: []Equipment{{Title: "Axe"}}}
	cp := orig.Clone()
	cp.Equipment[0].Title = "Spear"

	assert.Equal(t, "Axe", orig.Equipment[0].Title)
	assert.NotNil(t, PlayerViewState{}.Clone().Equipment)
}

func TestChangeSetKinds(t *testing.T) {
	cs := ChangeSet{Changes: []Change{
		{EntityID: "p1", Kind: ChangeMoved},
		{EntityID: "p2", Kind: ChangeCreated},
		{EntityID: "p1", Kind: ChangePopupHidden},
	}}

	assert.Equal(t, []ChangeKind{ChangeMoved, ChangePopupHidden}, cs.Kinds("p1"))
	assert.Nil(t, cs.Kinds("p3"))
	assert.False(t, cs.Empty())
	assert.True(t, ChangeSet{}.Empty())
}
