package layout

import (
	"fmt"

	"github.com/shadowhunters/boardview/pkg/core"
)

type zoneCell struct {
	anchor core.Point
	angle  float64
}

// zoneCells are the fixed screen anchors of the 3x2 grid.
var zoneCells = [core.ZoneGridRows][core.ZoneGridColumns]zoneCell{
	{{core.Point{X: 382, Y: 201.5}, -60}, {core.Point{X: 433, Y: 113.25}, -60}},
	{{core.Point{X: 633, Y: 113.25}, 60}, {core.Point{X: 684.25, Y: 201.75}, 60}},
	{{core.Point{X: 482, Y: 382.712}, 0}, {core.Point{X: 584, Y: 382.712}, 0}},
}

type cellRef struct{ row, col int }

// ZoneCatalog is the static lookup of the zone grid.
type ZoneCatalog struct {
	cards  [core.ZoneGridRows][core.ZoneGridColumns]core.ZoneCardState
	byName map[string]cellRef
}

// NewZoneCatalog binds a snapshot's zone grid to the fixed anchors.
// Every cell needs a distinct, non-empty name.
func NewZoneCatalog(grid core.ZoneGrid) (*ZoneCatalog, error) {
	c := &ZoneCatalog{byName: make(map[string]cellRef, core.ZoneGridRows*core.ZoneGridColumns)}
	for r := range grid {
		for col := range grid[r] {
			card := grid[r][col]
			if card.Name == "" || card.Name == core.LocationNone {
				return nil, fmt.Errorf("%w: empty name at row %d col %d", ErrMalformedGrid, r, col)
			}
			if _, dup := c.byName[card.Name]; dup {
				return nil, fmt.Errorf("%w: duplicate zone %q", ErrMalformedGrid, card.Name)
			}
			c.byName[card.Name] = cellRef{r, col}
			c.cards[r][col] = core.ZoneCardState{
				ID:          ZoneID(r, col),
				Row:         r,
				Col:         col,
				Name:        card.Name,
				Description: card.Description,
				Anchor:      zoneCells[r][col].anchor,
				Angle:       zoneCells[r][col].angle,
			}
		}
	}
	return c, nil
}

// ZoneAt returns the card at a grid cell.
func (c *ZoneCatalog) ZoneAt(row, col int) (core.ZoneCardState, bool) {
	if row < 0 || row >= core.ZoneGridRows || col < 0 || col >= core.ZoneGridColumns {
		return core.ZoneCardState{}, false
	}
	return c.cards[row][col], true
}

// ByName returns the card with the given zone name.
func (c *ZoneCatalog) ByName(name string) (core.ZoneCardState, bool) {
	ref, ok := c.byName[name]
	if !ok {
		return core.ZoneCardState{}, false
	}
	return c.cards[ref.row][ref.col], true
}

// All returns every card in row-major order.
func (c *ZoneCatalog) All() []core.ZoneCardState {
	out := make([]core.ZoneCardState, 0, core.ZoneGridRows*core.ZoneGridColumns)
	for r := range c.cards {
		out = append(out, c.cards[r][:]...)
	}
	return out
}

// Names returns the zone names in row-major order.
func (c *ZoneCatalog) Names() []string {
	all := c.All()
	names := make([]string, len(all))
	for i, z := range all {
		names[i] = z.Name
	}
	return names
}
