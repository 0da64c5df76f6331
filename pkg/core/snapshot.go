// pkg/core/snapshot.go
package core

import (
	"slices"
	"strings"
	"time"
)

// Player state values reported by the game server.
const (
	StateDefeated   = 0
	StateRevealed   = 1
	StateAnonymous  = 2
	LocationNone    = "none"
	ZoneGridRows    = 3
	ZoneGridColumns = 2
)

// Equipment is a single item held by a player. Order within a list is significant.
type Equipment struct {
	Title       string `json:"title"`
	Description string `json:"desc,omitempty"`
}

// CharacterMeta describes a character card.
type CharacterMeta struct {
	Name        string `json:"name"`
	MaxDamage   int    `json:"max_damage"`
	Alleg       int    `json:"alleg"`
	WinCondDesc string `json:"win_cond_desc,omitempty"`
	Special     string `json:"special_desc,omitempty"`
}

// PlayerFields is the normalized per-player record carried by a snapshot.
// Location is LocationNone when the player is not on the board and
// Equipment is never nil.
type PlayerFields struct {
	UserID    string         `json:"user_id"`
	Location  string         `json:"location"`
	Damage    int            `json:"damage"`
	State     int            `json:"state"`
	Equipment []Equipment    `json:"equipment"`
	Color     string         `json:"color,omitempty"`
	AI        bool           `json:"ai,omitempty"`
	Character *CharacterMeta `json:"character,omitempty"`
}

// Alive reports whether the player is still in the game.
func (p PlayerFields) Alive() bool {
	return p.State != StateDefeated
}

// OnBoard reports whether the player currently occupies a zone.
func (p PlayerFields) OnBoard() bool {
	return p.Location != "" && p.Location != LocationNone
}

// ZoneCard is one zone of the board grid.
type ZoneCard struct {
	Name        string `json:"name"`
	Description string `json:"desc,omitempty"`
}

// ZoneGrid is the fixed 3x2 layout of zone cards, indexed [row][col].
type ZoneGrid [ZoneGridRows][ZoneGridColumns]ZoneCard

// Names returns the zone names in row-major order.
func (g ZoneGrid) Names() []string {
	names := make([]string, 0, ZoneGridRows*ZoneGridColumns)
	for r := range g {
		for c := range g[r] {
			names = append(names, g[r][c].Name)
		}
	}
	return names
}

// Snapshot is a full push of remote game state.
type Snapshot struct {
	Players    map[string]PlayerFields `json:"players"`
	Zones      *ZoneGrid               `json:"zones,omitempty"`
	Characters []CharacterMeta         `json:"characters,omitempty"`
	ReceivedAt time.Time               `json:"receivedAt"`
}

// SessionInit is the bootstrap payload for a viewer: the private part
// identifies the viewer, the public part is the first snapshot.
type SessionInit struct {
	UserID    string         `json:"user_id"`
	Character *CharacterMeta `json:"character,omitempty"`
	Snapshot  Snapshot       `json:"public"`
}

// EquipmentSummary renders an equipment list for popup text.
func EquipmentSummary(items []Equipment) string {
	if len(items) == 0 {
		return "None"
	}
	titles := make([]string, len(items))
	for i, e := range items {
		titles[i] = e.Title
	}
	return strings.Join(titles, ", ")
}

// EquipmentEqual compares two lists item by item, in order.
func EquipmentEqual(a, b []Equipment) bool {
	return slices.Equal(a, b)
}
