package layout

import (
	"fmt"

	"github.com/shadowhunters/boardview/internal/geo"
	"github.com/shadowhunters/boardview/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
)

// slotSpots holds, per slot, the token spot inside each grid cell as
// x,y pairs ordered (0,0) (0,1) (1,0) (1,1) (2,0) (2,1).
var slotSpots = [][12]float64{
	{336.909, 199.411, 383.466, 117.760, 682.109, 117.760, 728.666, 199.411, 457.000, 342.000, 560.000, 342.000},
	{361.909, 156.110, 408.466, 74.459, 657.109, 74.459, 703.666, 156.110, 507.000, 342.000, 610.000, 342.000},
	{382.965, 197.134, 429.522, 115.483, 636.053, 115.483, 682.610, 197.134, 482.000, 380.747, 585.000, 380.747},
	{406.191, 239.411, 452.748, 157.760, 612.827, 157.760, 659.384, 239.411, 457.000, 422.000, 560.000, 422.000},
	{431.191, 196.110, 477.748, 114.459, 587.827, 114.459, 634.384, 196.110, 507.000, 422.000, 610.000, 422.000},
}

// DefaultStartSpots are the off-board token positions, one per slot.
var DefaultStartSpots = []core.Point{
	{X: 490, Y: 220},
	{X: 530, Y: 220},
	{X: 570, Y: 220},
	{X: 510, Y: 260},
	{X: 550, Y: 260},
}

// SpotTable maps (slot, zone name) to a token position. Slots are 1-based.
type SpotTable struct {
	spots []map[string]geom.XY
	start []geom.XY
}

// NewSpotTable builds the table for the zone names of a catalog. A nil
// start list uses DefaultStartSpots.
func NewSpotTable(catalog *ZoneCatalog, start []core.Point) (*SpotTable, error) {
	if start == nil {
		start = DefaultStartSpots
	}
	if len(start) < len(slotSpots) {
		return nil, fmt.Errorf("need %d start spots, got %d", len(slotSpots), len(start))
	}

	t := &SpotTable{
		spots: make([]map[string]geom.XY, len(slotSpots)),
		start: make([]geom.XY, len(slotSpots)),
	}
	for s, row := range slotSpots {
		byZone := make(map[string]geom.XY, core.ZoneGridRows*core.ZoneGridColumns)
		for _, z := range catalog.All() {
			i := 4*z.Row + 2*z.Col
			byZone[z.Name] = geom.XY{X: row[i], Y: row[i+1]}
		}
		t.spots[s] = byZone
		t.start[s] = geo.ToXY(start[s])
	}
	return t, nil
}

// Slots returns the number of slots in the table.
func (t *SpotTable) Slots() int {
	return len(t.spots)
}

// PositionFor returns the token position of a slot inside a zone.
func (t *SpotTable) PositionFor(slot int, zone string) (core.Point, error) {
	if slot < 1 || slot > len(t.spots) {
		return core.Point{}, fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}
	xy, ok := t.spots[slot-1][zone]
	if !ok {
		return core.Point{}, &UnknownZoneError{Slot: slot, Zone: zone}
	}
	return geo.FromXY(xy), nil
}

// StartSpot returns the session-start position of a slot.
func (t *SpotTable) StartSpot(slot int) (core.Point, error) {
	if slot < 1 || slot > len(t.start) {
		return core.Point{}, fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}
	return geo.FromXY(t.start[slot-1]), nil
}
