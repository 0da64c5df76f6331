// Package reconcile applies snapshots of remote game state onto the local
// view-model and reports what the renderer has to redraw.
package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shadowhunters/boardview/internal/layout"
	"github.com/shadowhunters/boardview/internal/popup"
	"github.com/shadowhunters/boardview/internal/registry"
	"github.com/shadowhunters/boardview/pkg/core"
)

var (
	// ErrNoZones is returned when the first snapshot carries no zone grid.
	ErrNoZones = errors.New("first snapshot has no zone grid")
	// ErrAlreadyStarted is returned by Init on an engine that already bound a board.
	ErrAlreadyStarted = errors.New("session already initialized")
)

// Config holds engine settings.
type Config struct {
	Board        layout.Board
	StartSpots   []core.Point
	ViewerUserID string
}

// Engine is the single writer of the registry and popup state. Callers
// must serialize Init, Reconcile and Activate.
type Engine struct {
	cfg         Config
	reg         *registry.Registry
	popups      *popup.Manager
	self        *core.SelfInfo
	selfEmitted bool
	seq         uint64
}

// New creates an engine with an empty registry.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		reg:    registry.New(cfg.Board, cfg.ViewerUserID),
		popups: popup.NewManager(),
	}
}

// Init binds the viewer from the bootstrap payload and reconciles the
// first snapshot embedded in it.
func (e *Engine) Init(init core.SessionInit) (core.ChangeSet, error) {
	if e.reg.Bound() {
		return core.ChangeSet{}, ErrAlreadyStarted
	}
	if init.UserID != "" {
		e.cfg.ViewerUserID = init.UserID
		e.reg = registry.New(e.cfg.Board, init.UserID)
	}
	if init.Character != nil {
		info := core.NewSelfInfo(*init.Character)
		e.self = &info
	}
	return e.Reconcile(init.Snapshot)
}

// Reconcile applies one snapshot. Players are processed in ascending id
// order. On error the registry and popups are left as they were.
func (e *Engine) Reconcile(s core.Snapshot) (core.ChangeSet, error) {
	reg := e.reg.Clone()
	popups := e.popups.Clone()
	var changes []core.Change

	if !reg.Bound() {
		zoneChanges, err := bindBoard(reg, popups, s.Zones, e.cfg.StartSpots)
		if err != nil {
			return core.ChangeSet{}, err
		}
		changes = append(changes, zoneChanges...)
	}
	if s.Characters != nil {
		reg.SetCharacters(s.Characters)
	}

	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		diff, err := reg.UpsertPlayer(id, s.Players[id])
		if err != nil {
			return core.ChangeSet{}, fmt.Errorf("reconcile: %w", err)
		}
		popups.Register(id)
		changes = append(changes, playerChanges(reg, popups, id, diff)...)
	}

	selfEmitted := e.selfEmitted
	if e.self != nil && !selfEmitted && reg.SelfID() != "" {
		info := *e.self
		changes = append(changes, core.Change{EntityID: reg.SelfID(), Kind: core.ChangeSelfInfo, Self: &info})
		selfEmitted = true
	}

	e.reg = reg
	e.popups = popups
	e.selfEmitted = selfEmitted
	e.seq++
	return core.ChangeSet{Seq: e.seq, Changes: changes}, nil
}

func bindBoard(reg *registry.Registry, popups *popup.Manager, grid *core.ZoneGrid, start []core.Point) ([]core.Change, error) {
	if grid == nil {
		return nil, ErrNoZones
	}
	catalog, err := layout.NewZoneCatalog(*grid)
	if err != nil {
		return nil, err
	}
	spots, err := layout.NewSpotTable(catalog, start)
	if err != nil {
		return nil, err
	}
	reg.Bind(catalog, spots)

	popups.Register(registry.CharactersID)
	zones := catalog.All()
	changes := make([]core.Change, 0, len(zones))
	for i := range zones {
		z := zones[i]
		popups.Register(z.ID)
		changes = append(changes, core.Change{EntityID: z.ID, Kind: core.ChangeZoneCreated, Zone: &z})
	}
	return changes, nil
}

func playerChanges(reg *registry.Registry, popups *popup.Manager, id string, diff registry.Diff) []core.Change {
	p, _ := reg.Player(id)
	var changes []core.Change
	add := func(kind core.ChangeKind) {
		changes = append(changes, core.Change{EntityID: id, Kind: kind, Player: &p})
	}

	if diff.Created {
		add(core.ChangeCreated)
	} else {
		if diff.Renamed {
			add(core.ChangeRenamed)
		}
		if diff.Moved {
			add(core.ChangeMoved)
		}
		if diff.DamageChanged {
			add(core.ChangeDamageChanged)
		}
		if diff.Defeated {
			add(core.ChangeDefeated)
		}
		if diff.Revived {
			add(core.ChangeRevived)
		}
		if diff.EquipmentChanged {
			add(core.ChangeEquipmentChanged)
		}
	}
	if diff.PopupStale && popups.ForceHide(id) {
		changes = append(changes, core.Change{EntityID: id, Kind: core.ChangePopupHidden})
	}
	if diff.SelfEquipment != nil {
		changes = append(changes, core.Change{EntityID: id, Kind: core.ChangeSelfEquipmentChanged, SlotLabels: diff.SelfEquipment})
	}
	return changes
}

// Activate handles a user click on an entity by toggling its popup.
func (e *Engine) Activate(id string) (core.ChangeSet, error) {
	visible, err := e.popups.Toggle(id)
	if err != nil {
		return core.ChangeSet{}, err
	}
	e.seq++
	return core.ChangeSet{
		Seq:     e.seq,
		Changes: []core.Change{{EntityID: id, Kind: core.ChangePopupToggled, Visible: visible}},
	}, nil
}

// Started reports whether the board has been bound by a first snapshot.
func (e *Engine) Started() bool {
	return e.reg.Bound()
}

// Seq returns the sequence number of the last ChangeSet.
func (e *Engine) Seq() uint64 {
	return e.seq
}

// Registry exposes the registry for reads.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Popups exposes popup state for reads.
func (e *Engine) Popups() *popup.Manager {
	return e.popups
}

// View builds a read-only copy of the current view-model.
func (e *Engine) View() core.BoardView {
	v := core.BoardView{
		Seq:            e.seq,
		SelfID:         e.reg.SelfID(),
		Players:        e.reg.Players(),
		Zones:          e.reg.Zones(),
		Characters:     e.reg.Characters(),
		CharactersText: e.reg.CharactersText(),
		Popups:         e.popups.Snapshot(),
	}
	if v.SelfID != "" {
		v.SelfSlots = e.reg.SelfSlots()
		if e.self != nil {
			info := *e.self
			v.Self = &info
		}
	}
	return v
}
