// Package layout holds the fixed board geometry: zone card anchors, the
// per-slot token spots inside each zone, and the derived marker offsets.
package layout

import (
	"errors"
	"fmt"

	"github.com/shadowhunters/boardview/internal/geo"
	"github.com/shadowhunters/boardview/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
)

var (
	// ErrUnknownZone is returned when a zone name is not one of the six
	// registered zones.
	ErrUnknownZone = errors.New("unknown zone")
	// ErrUnknownSlot is returned for a slot outside the spot table.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrMalformedGrid is returned for a zone grid that cannot back a board.
	ErrMalformedGrid = errors.New("malformed zone grid")
)

// UnknownZoneError carries the failing lookup and matches ErrUnknownZone.
type UnknownZoneError struct {
	Slot int
	Zone string
}

func (e *UnknownZoneError) Error() string {
	return fmt.Sprintf("unknown zone %q for slot %d", e.Zone, e.Slot)
}

// Is reports whether target is ErrUnknownZone.
func (e *UnknownZoneError) Is(target error) bool {
	return target == ErrUnknownZone
}

// Board holds the tunable offsets derived from token positions.
type Board struct {
	EquipmentSlots   int
	HealthBaseX      float64
	HealthSpacingX   float64
	HealthBaseY      float64
	HealthUnitHeight float64
	PopupOffsetY     float64
	DimmedAlpha      float64
}

// DefaultBoard returns the stock board settings.
func DefaultBoard() Board {
	return Board{
		EquipmentSlots:   6,
		HealthBaseX:      900,
		HealthSpacingX:   35,
		HealthBaseY:      585,
		HealthUnitHeight: 40,
		PopupOffsetY:     -60,
		DimmedAlpha:      0.4,
	}
}

// HealthMarker returns the health tracker position for a slot. The engine
// does not clamp damage; crossing the death threshold is reported by the
// snapshot itself.
func (b Board) HealthMarker(slot, damage int) core.Point {
	base := geom.XY{X: b.HealthBaseX, Y: b.HealthBaseY}
	step := geom.XY{X: b.HealthSpacingX * float64(slot-1), Y: -b.HealthUnitHeight * float64(damage)}
	return geo.FromXY(base.Add(step))
}

// PopupAnchor returns where a token's info popup is drawn.
func (b Board) PopupAnchor(pos core.Point) core.Point {
	return geo.FromXY(geo.ToXY(pos).Add(geom.XY{Y: b.PopupOffsetY}))
}

// ZoneID is the entity id of the zone card at a grid cell.
func ZoneID(row, col int) string {
	return fmt.Sprintf("zone:%d:%d", row, col)
}
