package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shadowhunters/boardview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// BOARD POINTS
// Board space is flat screen pixels with Y growing downwards. Positions are
// persisted as WKB points without an SRID so SQLite and Postgres read them
// back the same way.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ToXY converts a board point to a geom.XY.
func ToXY(p core.Point) geom.XY {
	return geom.XY{X: p.X, Y: p.Y}
}

// FromXY converts a geom.XY to a board point.
func FromXY(xy geom.XY) core.Point {
	return core.Point{X: xy.X, Y: xy.Y}
}

// ToPoint converts a board point to a geom.Point for storage.
func ToPoint(p core.Point) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: ToXY(p)})
}

// FromPoint converts a stored geom.Point back to a board point.
// An empty point yields ErrInvalidCoordinates.
func FromPoint(p geom.Point) (core.Point, error) {
	coords, ok := p.Coordinates()
	if !ok {
		return core.Point{}, ErrInvalidCoordinates
	}
	return FromXY(coords.XY), nil
}

// PointFromString parses "x,y" into a board point.
func PointFromString(coords string) (core.Point, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return core.Point{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Point{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Point{}, ErrInvalidCoordinates
	}
	return core.Point{X: x, Y: y}, nil
}

// PointsFromStrings parses a list of "x,y" strings.
func PointsFromStrings(list []string) ([]core.Point, error) {
	out := make([]core.Point, 0, len(list))
	for _, s := range list {
		p, err := PointFromString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
