package parser

import (
	"encoding/json"

	"github.com/shadowhunters/boardview/pkg/core"
)

// rawLocation is {} when the player is not on the board.
type rawLocation struct {
	Name string `json:"name"`
}

type rawPlayer struct {
	UserID    string              `json:"user_id"`
	Color     string              `json:"color"`
	State     *int                `json:"state"`
	Damage    int                 `json:"damage"`
	Equipment []core.Equipment    `json:"equipment"`
	Character *core.CharacterMeta `json:"character"`
	Location  json.RawMessage     `json:"location"`
	AI        bool                `json:"ai"`
}

type rawPublic struct {
	Players    map[string]rawPlayer `json:"players"`
	Zones      [][]core.ZoneCard    `json:"zones"`
	Characters []core.CharacterMeta `json:"characters"`
}

type rawPrivate struct {
	UserID    string              `json:"user_id"`
	Character *core.CharacterMeta `json:"character"`
}

type rawInit struct {
	Private rawPrivate      `json:"private"`
	Public  json.RawMessage `json:"public"`
}

type rawActivate struct {
	EntityID string `json:"entityId"`
}
