// pkg/core/changeset.go
package core

// ChangeKind identifies what the renderer has to redraw for an entity.
type ChangeKind string

const (
	ChangeCreated              ChangeKind = "created"
	ChangeRenamed              ChangeKind = "renamed"
	ChangeMoved                ChangeKind = "moved"
	ChangeDamageChanged        ChangeKind = "damage-changed"
	ChangeDefeated             ChangeKind = "defeated"
	ChangeRevived              ChangeKind = "revived"
	ChangeEquipmentChanged     ChangeKind = "equipment-changed"
	ChangeSelfEquipmentChanged ChangeKind = "self-equipment-changed"
	ChangePopupHidden          ChangeKind = "popup-hidden"
	ChangePopupToggled         ChangeKind = "popup-toggled"
	ChangeZoneCreated          ChangeKind = "zone-created"
	ChangeSelfInfo             ChangeKind = "self-info"
)

// Change is a single per-entity diff. Player carries the post-change view
// state for player entities; SlotLabels carries the fixed equipment slot
// labels for self-equipment signals.
type Change struct {
	EntityID   string           `json:"entityId"`
	Kind       ChangeKind       `json:"kind"`
	Player     *PlayerViewState `json:"player,omitempty"`
	Zone       *ZoneCardState   `json:"zone,omitempty"`
	Self       *SelfInfo        `json:"self,omitempty"`
	SlotLabels []string         `json:"slotLabels,omitempty"`
	Visible    bool             `json:"visible"`
}

// ChangeSet is the ordered output of one reconciliation or toggle.
type ChangeSet struct {
	Seq     uint64   `json:"seq"`
	Changes []Change `json:"changes"`
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Changes) == 0
}

// Kinds returns the change kinds recorded for an entity, in order.
func (c ChangeSet) Kinds(entityID string) []ChangeKind {
	var kinds []ChangeKind
	for _, ch := range c.Changes {
		if ch.EntityID == entityID {
			kinds = append(kinds, ch.Kind)
		}
	}
	return kinds
}
