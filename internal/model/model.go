package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&SnapshotRecord{},
	&ChangeRecord{},
	&PerformanceRecord{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Session is one viewer's connection to a running game
type Session struct {
	gorm.Model
	UUID         string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	ViewerUserID string       `json:"viewerUserId" gorm:"size:64;index"`
	StartTime    time.Time    `json:"startTime" gorm:"index"`
	EndTime      sql.NullTime `json:"endTime"`
	Tag          string       `json:"tag" gorm:"size:64"`
}

func (*Session) TableName() string {
	return "sessions"
}

// SnapshotRecord stores one inbound public snapshot as received
type SnapshotRecord struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"index:idx_snapshot_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_snapshot_session_id"`
	Session   Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Seq       uint64         `json:"seq" gorm:"index:idx_snapshot_seq"`
	Players   int            `json:"players"`
	HasZones  bool           `json:"hasZones"`
	Payload   datatypes.JSON `json:"payload"`
}

func (*SnapshotRecord) TableName() string {
	return "snapshot_records"
}

// ChangeRecord stores one entry of an outbound ChangeSet. Position is the
// affected player token's board position (empty for zone and panel
// entries).
type ChangeRecord struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time" gorm:"index:idx_change_time"`
	SessionID    uint           `json:"sessionId" gorm:"index:idx_change_session_id"`
	Session      Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Seq          uint64         `json:"seq" gorm:"index:idx_change_seq"`
	Ordinal      int            `json:"ordinal"`
	EntityID     string         `json:"entityId" gorm:"size:64;index:idx_change_entity_id"`
	Kind         string         `json:"kind" gorm:"size:32"`
	Slot         int            `json:"slot"`
	LocationName string         `json:"locationName" gorm:"size:64"`
	Damage       int            `json:"damage"`
	Alive        bool           `json:"alive"`
	Position     geom.Point     `json:"position"`
	Visible      bool           `json:"visible"`
	Payload      datatypes.JSON `json:"payload"`
}

func (*ChangeRecord) TableName() string {
	return "change_records"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// PerformanceRecord is a periodic sample of pipeline health
type PerformanceRecord struct {
	ID                  uint              `json:"id" gorm:"primarykey;autoIncrement;"`
	Time                time.Time         `json:"time" gorm:"index:idx_perf_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_perf_session_id"`
	InboxLength         int               `json:"inboxLength"`
	Players             int               `json:"players"`
	LastSeq             uint64            `json:"lastSeq"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*PerformanceRecord) TableName() string {
	return "performance_records"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Snapshots uint16 `json:"snapshots"`
	Changes   uint16 `json:"changes"`
}
