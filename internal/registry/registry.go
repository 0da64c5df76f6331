// Package registry owns the view-model of every player and zone entity.
// It is written by a single goroutine and carries no locks.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shadowhunters/boardview/internal/layout"
	"github.com/shadowhunters/boardview/pkg/core"
)

// CharactersID is the entity id of the character list panel.
const CharactersID = "characters"

var (
	// ErrNoFreeSlot is returned when more players appear than the spot table holds.
	ErrNoFreeSlot = errors.New("no free player slot")
	// ErrUnbound is returned when players are upserted before the board is bound.
	ErrUnbound = errors.New("registry has no board")
)

// Diff describes what one upsert changed.
type Diff struct {
	Created          bool
	Renamed          bool
	Moved            bool
	DamageChanged    bool
	Defeated         bool
	Revived          bool
	EquipmentChanged bool
	// PopupStale is set when the token position changed, either by a move
	// or by the defeat reset.
	PopupStale bool
	// SelfEquipment holds the fixed slot labels when the viewer's own
	// equipment has to be redrawn; nil otherwise.
	SelfEquipment []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return !d.Created && !d.Renamed && !d.Moved && !d.DamageChanged &&
		!d.Defeated && !d.Revived && !d.EquipmentChanged && d.SelfEquipment == nil
}

// Registry is the single source of truth for entity view state.
type Registry struct {
	board   layout.Board
	viewer  string
	catalog *layout.ZoneCatalog
	spots   *layout.SpotTable

	players    map[string]*core.PlayerViewState
	slots      map[int]string
	selfID     string
	selfSlots  []string
	characters []core.CharacterMeta
}

// New creates an empty registry. viewerUserID identifies the local viewer;
// an empty value means spectator mode.
func New(board layout.Board, viewerUserID string) *Registry {
	return &Registry{
		board:     board,
		viewer:    viewerUserID,
		players:   make(map[string]*core.PlayerViewState),
		slots:     make(map[int]string),
		selfSlots: make([]string, board.EquipmentSlots),
	}
}

// Bind attaches the zone catalog and spot table. Zones are fixed for the
// rest of the session.
func (r *Registry) Bind(catalog *layout.ZoneCatalog, spots *layout.SpotTable) {
	r.catalog = catalog
	r.spots = spots
}

// Bound reports whether the board has been bound.
func (r *Registry) Bound() bool {
	return r.catalog != nil && r.spots != nil
}

// UpsertPlayer materializes an unseen player or applies the field update
// policy to a known one: identity, location, damage, alive, equipment.
func (r *Registry) UpsertPlayer(id string, f core.PlayerFields) (Diff, error) {
	var diff Diff
	if !r.Bound() {
		return diff, ErrUnbound
	}
	f = Normalize(f)

	p, ok := r.players[id]
	if !ok {
		var err error
		if p, err = r.materialize(id); err != nil {
			return diff, err
		}
		diff.Created = true
	}

	// identity
	if p.UserID != f.UserID {
		diff.Renamed = !diff.Created
		p.UserID = f.UserID
	}
	p.Color = f.Color
	p.AI = f.AI
	justBound := false
	if diff.Created && r.selfID == "" && r.viewer != "" && f.UserID == r.viewer {
		r.selfID = id
		justBound = true
	}

	// location
	if f.Location != p.LocationName {
		if f.OnBoard() {
			pos, err := r.spots.PositionFor(p.Slot, f.Location)
			if err != nil {
				return diff, fmt.Errorf("player %s: %w", id, err)
			}
			p.Position = pos
			diff.Moved = true
			diff.PopupStale = true
		}
		p.LocationName = f.Location
	}

	// damage
	if f.Damage != p.Damage {
		diff.DamageChanged = true
		p.Damage = f.Damage
	}
	p.HealthMarker = r.board.HealthMarker(p.Slot, p.Damage)

	// alive
	alive := f.Alive()
	switch {
	case p.Alive && !alive:
		diff.Defeated = true
		p.Dimmed = true
		if p.Position != p.StartPosition {
			p.Position = p.StartPosition
			diff.PopupStale = true
		}
	case !p.Alive && alive:
		diff.Revived = true
		p.Dimmed = false
	}
	p.Alive = alive
	p.Opacity = 1
	if p.Dimmed {
		p.Opacity = r.board.DimmedAlpha
	}

	// equipment
	if !core.EquipmentEqual(p.Equipment, f.Equipment) {
		diff.EquipmentChanged = true
		p.Equipment = append([]core.Equipment{}, f.Equipment...)
	}
	if id == r.selfID && (diff.EquipmentChanged || justBound) {
		r.selfSlots = SlotLabels(p.Equipment, r.board.EquipmentSlots)
		diff.SelfEquipment = append([]string{}, r.selfSlots...)
	}

	p.PopupAnchor = r.board.PopupAnchor(p.Position)
	p.PopupText = PopupText(p.UserID, p.Equipment)
	return diff, nil
}

func (r *Registry) materialize(id string) (*core.PlayerViewState, error) {
	slot := 0
	for s := 1; s <= r.spots.Slots(); s++ {
		if _, taken := r.slots[s]; !taken {
			slot = s
			break
		}
	}
	if slot == 0 {
		return nil, fmt.Errorf("%w for player %s", ErrNoFreeSlot, id)
	}
	start, err := r.spots.StartSpot(slot)
	if err != nil {
		return nil, err
	}

	p := &core.PlayerViewState{
		ID:            id,
		Slot:          slot,
		LocationName:  core.LocationNone,
		Alive:         true,
		Equipment:     []core.Equipment{},
		Position:      start,
		StartPosition: start,
	}
	r.players[id] = p
	r.slots[slot] = id
	return p, nil
}

// Normalize returns a total record shape: an empty location becomes
// "none" and a nil equipment list becomes empty.
func Normalize(f core.PlayerFields) core.PlayerFields {
	if strings.TrimSpace(f.Location) == "" || strings.EqualFold(f.Location, core.LocationNone) {
		f.Location = core.LocationNone
	}
	if f.Equipment == nil {
		f.Equipment = []core.Equipment{}
	}
	return f
}

// SlotLabels fills the first k labels with equipment titles and clears the rest.
func SlotLabels(items []core.Equipment, k int) []string {
	labels := make([]string, k)
	for i := 0; i < k && i < len(items); i++ {
		labels[i] = items[i].Title
	}
	return labels
}

// PopupText is the text shown in a player's info popup.
func PopupText(name string, items []core.Equipment) string {
	return "Player: " + name + "\nEquipment: " + core.EquipmentSummary(items)
}

// Player returns a copy of a player's view state.
func (r *Registry) Player(id string) (core.PlayerViewState, bool) {
	p, ok := r.players[id]
	if !ok {
		return core.PlayerViewState{}, false
	}
	return p.Clone(), true
}

// Players returns copies of all players ordered by slot.
func (r *Registry) Players() []core.PlayerViewState {
	out := make([]core.PlayerViewState, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Len returns the number of known players.
func (r *Registry) Len() int {
	return len(r.players)
}

// ZoneAt returns the zone card at a grid cell.
func (r *Registry) ZoneAt(row, col int) (core.ZoneCardState, bool) {
	if r.catalog == nil {
		return core.ZoneCardState{}, false
	}
	return r.catalog.ZoneAt(row, col)
}

// Zones returns all zone cards in row-major order.
func (r *Registry) Zones() []core.ZoneCardState {
	if r.catalog == nil {
		return nil
	}
	return r.catalog.All()
}

// SelfID returns the id of the viewer's own entity, or "" if none was seen.
func (r *Registry) SelfID() string {
	return r.selfID
}

// SelfSlots returns the current fixed equipment slot labels.
func (r *Registry) SelfSlots() []string {
	return append([]string{}, r.selfSlots...)
}

// SetCharacters replaces the character list.
func (r *Registry) SetCharacters(list []core.CharacterMeta) {
	r.characters = append([]core.CharacterMeta{}, list...)
}

// Characters returns the character list.
func (r *Registry) Characters() []core.CharacterMeta {
	return append([]core.CharacterMeta{}, r.characters...)
}

// CharactersText is the text of the character list panel.
func (r *Registry) CharactersText() string {
	parts := make([]string, len(r.characters))
	for i, c := range r.characters {
		parts[i] = fmt.Sprintf("Player: %s\nDies At HP: %d", c.Name, c.MaxDamage)
	}
	return strings.Join(parts, "\n\n")
}

// Clone returns a deep copy sharing the immutable board.
func (r *Registry) Clone() *Registry {
	out := &Registry{
		board:      r.board,
		viewer:     r.viewer,
		catalog:    r.catalog,
		spots:      r.spots,
		players:    make(map[string]*core.PlayerViewState, len(r.players)),
		slots:      make(map[int]string, len(r.slots)),
		selfID:     r.selfID,
		selfSlots:  append([]string{}, r.selfSlots...),
		characters: append([]core.CharacterMeta{}, r.characters...),
	}
	for id, p := range r.players {
		cp := p.Clone()
		out.players[id] = &cp
	}
	for s, id := range r.slots {
		out.slots[s] = id
	}
	return out
}
