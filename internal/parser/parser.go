package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shadowhunters/boardview/internal/layout"
	"github.com/shadowhunters/boardview/internal/registry"
	"github.com/shadowhunters/boardview/pkg/core"
)

var (
	// ErrEmptyPayload is returned for an empty or null payload.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrInvalidPlayer is returned for a player record that cannot be normalized.
	ErrInvalidPlayer = errors.New("invalid player record")
)

// Parser provides pure JSON -> core struct conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger: logger,
		now:    time.Now,
	}
}

func isEmpty(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseSnapshot parses a public game state push. Player records are
// normalized: a missing location becomes "none" and missing equipment
// becomes an empty list.
func (p *Parser) ParseSnapshot(data []byte) (core.Snapshot, error) {
	var snap core.Snapshot
	if isEmpty(data) {
		return snap, ErrEmptyPayload
	}

	var raw rawPublic
	if err := json.Unmarshal(data, &raw); err != nil {
		return snap, fmt.Errorf("error unmarshalling snapshot: %w", err)
	}

	snap.ReceivedAt = p.now()
	snap.Characters = raw.Characters
	snap.Players = make(map[string]core.PlayerFields, len(raw.Players))
	for id, rp := range raw.Players {
		f, err := parsePlayer(rp)
		if err != nil {
			return core.Snapshot{}, fmt.Errorf("player %s: %w", id, err)
		}
		snap.Players[id] = f
	}

	if raw.Zones != nil {
		grid, err := parseZones(raw.Zones)
		if err != nil {
			return core.Snapshot{}, err
		}
		snap.Zones = grid
	}

	p.logger.Debug("Parsed snapshot",
		"players", len(snap.Players),
		"zones", snap.Zones != nil,
		"characters", len(snap.Characters))
	return snap, nil
}

func parsePlayer(rp rawPlayer) (core.PlayerFields, error) {
	if rp.Damage < 0 {
		return core.PlayerFields{}, fmt.Errorf("%w: negative damage %d", ErrInvalidPlayer, rp.Damage)
	}
	if rp.State == nil {
		return core.PlayerFields{}, fmt.Errorf("%w: missing state", ErrInvalidPlayer)
	}

	f := core.PlayerFields{
		UserID:    rp.UserID,
		Damage:    rp.Damage,
		State:     *rp.State,
		Equipment: rp.Equipment,
		Color:     rp.Color,
		AI:        rp.AI,
	}
	if rp.Character != nil && rp.Character.Name != "" {
		c := *rp.Character
		f.Character = &c
	}

	if !isEmpty(rp.Location) {
		var loc rawLocation
		if err := json.Unmarshal(rp.Location, &loc); err != nil {
			// some servers send the bare zone name
			var name string
			if err2 := json.Unmarshal(rp.Location, &name); err2 != nil {
				return core.PlayerFields{}, fmt.Errorf("%w: location: %v", ErrInvalidPlayer, err)
			}
			loc.Name = name
		}
		f.Location = loc.Name
	}

	return registry.Normalize(f), nil
}

func parseZones(rows [][]core.ZoneCard) (*core.ZoneGrid, error) {
	if len(rows) != core.ZoneGridRows {
		return nil, fmt.Errorf("%w: %d rows", layout.ErrMalformedGrid, len(rows))
	}
	var grid core.ZoneGrid
	for r, row := range rows {
		if len(row) != core.ZoneGridColumns {
			return nil, fmt.Errorf("%w: row %d has %d columns", layout.ErrMalformedGrid, r, len(row))
		}
		copy(grid[r][:], row)
	}
	return &grid, nil
}

// ParseInit parses the bootstrap payload {"private": {...}, "public": {...}}.
func (p *Parser) ParseInit(data []byte) (core.SessionInit, error) {
	var init core.SessionInit
	if isEmpty(data) {
		return init, ErrEmptyPayload
	}

	var raw rawInit
	if err := json.Unmarshal(data, &raw); err != nil {
		return init, fmt.Errorf("error unmarshalling init data: %w", err)
	}

	snap, err := p.ParseSnapshot(raw.Public)
	if err != nil {
		return init, fmt.Errorf("public state: %w", err)
	}

	init.UserID = raw.Private.UserID
	if raw.Private.Character != nil && raw.Private.Character.Name != "" {
		c := *raw.Private.Character
		init.Character = &c
	}
	init.Snapshot = snap

	p.logger.Debug("Parsed init data", "userId", init.UserID, "spectator", init.UserID == "")
	return init, nil
}

// ParseActivate parses an entity activation {"entityId": "..."}.
func (p *Parser) ParseActivate(data []byte) (string, error) {
	if isEmpty(data) {
		return "", ErrEmptyPayload
	}
	var raw rawActivate
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("error unmarshalling activation: %w", err)
	}
	if raw.EntityID == "" {
		return "", fmt.Errorf("activation: %w", ErrEmptyPayload)
	}
	return raw.EntityID, nil
}
