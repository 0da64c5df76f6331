// Package convert provides functions to convert between core and GORM models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shadowhunters/boardview/internal/geo"
	"github.com/shadowhunters/boardview/internal/model"
	"github.com/shadowhunters/boardview/pkg/core"
)

// CoreToSession converts a core.Session to a GORM Session.
func CoreToSession(s core.Session) model.Session {
	m := model.Session{
		UUID:         s.UUID,
		ViewerUserID: s.ViewerUserID,
		StartTime:    s.StartTime,
		Tag:          s.Tag,
	}
	m.ID = s.ID
	if !s.EndTime.IsZero() {
		m.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return m
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(m model.Session) core.Session {
	s := core.Session{
		ID:           m.ID,
		UUID:         m.UUID,
		ViewerUserID: m.ViewerUserID,
		StartTime:    m.StartTime,
		Tag:          m.Tag,
	}
	if m.EndTime.Valid {
		s.EndTime = m.EndTime.Time
	}
	return s
}

// SnapshotToRecord converts an inbound snapshot to a GORM SnapshotRecord.
func SnapshotToRecord(sessionID uint, seq uint64, s core.Snapshot) (model.SnapshotRecord, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return model.SnapshotRecord{}, fmt.Errorf("marshal snapshot %d: %w", seq, err)
	}
	at := s.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return model.SnapshotRecord{
		Time:      at,
		SessionID: sessionID,
		Seq:       seq,
		Players:   len(s.Players),
		HasZones:  s.Zones != nil,
		Payload:   payload,
	}, nil
}

// RecordToSnapshot decodes a stored snapshot.
func RecordToSnapshot(r model.SnapshotRecord) (core.Snapshot, error) {
	var s core.Snapshot
	if err := json.Unmarshal(r.Payload, &s); err != nil {
		return core.Snapshot{}, fmt.Errorf("unmarshal snapshot %d: %w", r.Seq, err)
	}
	return s, nil
}

// ChangeSetToRecords flattens a ChangeSet into one row per change.
func ChangeSetToRecords(sessionID uint, cs core.ChangeSet, at time.Time) ([]model.ChangeRecord, error) {
	records := make([]model.ChangeRecord, 0, len(cs.Changes))
	for i, c := range cs.Changes {
		payload, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("marshal change %d/%d: %w", cs.Seq, i, err)
		}
		r := model.ChangeRecord{
			Time:      at,
			SessionID: sessionID,
			Seq:       cs.Seq,
			Ordinal:   i,
			EntityID:  c.EntityID,
			Kind:      string(c.Kind),
			Visible:   c.Visible,
			Payload:   payload,
		}
		if c.Player != nil {
			r.Slot = c.Player.Slot
			r.LocationName = c.Player.LocationName
			r.Damage = c.Player.Damage
			r.Alive = c.Player.Alive
			r.Position = geo.ToPoint(c.Player.Position)
		} else if c.Zone != nil {
			r.Position = geo.ToPoint(c.Zone.Anchor)
		}
		records = append(records, r)
	}
	return records, nil
}

// RecordsToChangeSets regroups stored rows into ChangeSets ordered by Seq,
// preserving the original change order inside each set.
func RecordsToChangeSets(records []model.ChangeRecord) ([]core.ChangeSet, error) {
	sorted := make([]model.ChangeRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Seq != sorted[j].Seq {
			return sorted[i].Seq < sorted[j].Seq
		}
		return sorted[i].Ordinal < sorted[j].Ordinal
	})

	var sets []core.ChangeSet
	for _, r := range sorted {
		var c core.Change
		if err := json.Unmarshal(r.Payload, &c); err != nil {
			return nil, fmt.Errorf("unmarshal change %d/%d: %w", r.Seq, r.Ordinal, err)
		}
		if len(sets) == 0 || sets[len(sets)-1].Seq != r.Seq {
			sets = append(sets, core.ChangeSet{Seq: r.Seq})
		}
		last := &sets[len(sets)-1]
		last.Changes = append(last.Changes, c)
	}
	return sets, nil
}
