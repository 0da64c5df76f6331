// Package gormstorage implements the storage.Backend interface on top of GORM
// with internal queues and a background DB writer goroutine. The postgres and
// sqlite backends embed it and only differ in how the connection is opened.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadowhunters/boardview/internal/logging"
	"github.com/shadowhunters/boardview/internal/model"
	"github.com/shadowhunters/boardview/internal/model/convert"
	"github.com/shadowhunters/boardview/internal/queue"
	"github.com/shadowhunters/boardview/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultWriteInterval is used when Dependencies.WriteInterval is zero.
const DefaultWriteInterval = 2 * time.Second

const maxBatch = 5000

// ErrNoSession is returned when recording before StartSession.
var ErrNoSession = errors.New("no session started")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	WriteInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Snapshots *queue.Queue[model.SnapshotRecord]
	Changes   *queue.Queue[model.ChangeRecord]
}

func newQueues() *queues {
	return &queues{
		Snapshots: queue.New[model.SnapshotRecord](),
		Changes:   queue.New[model.ChangeRecord](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
// Without a DB it runs in queue-only mode.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	lastWrite atomic.Int64
	writeMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{deps: deps}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB != nil {
		if err := b.setupDB(); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	go b.writeLoop()
	return nil
}

func (b *Backend) setupDB() error {
	log := b.deps.LogManager

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close stops the DB writer goroutine and flushes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	b.Flush()
	return nil
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// StartSession inserts the session row and assigns the generated ID back.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		b.sessionID.Add(1)
		s.ID = uint(b.sessionID.Load())
		return nil
	}

	row := convert.CoreToSession(*s)
	row.ID = 0
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}
	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// EndSession flushes pending rows and stamps the session's end time.
func (b *Backend) EndSession(s *core.Session) error {
	if b.sessionID.Load() == 0 {
		return ErrNoSession
	}
	b.Flush()

	if b.deps.DB == nil || s == nil || s.EndTime.IsZero() {
		return nil
	}
	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", b.sessionID.Load()).
		Update("end_time", s.EndTime).Error
	if err != nil {
		return fmt.Errorf("failed to update session end time: %w", err)
	}
	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// RecordSnapshot converts and queues an inbound snapshot.
func (b *Backend) RecordSnapshot(seq uint64, s *core.Snapshot) error {
	id := b.sessionID.Load()
	if id == 0 {
		return ErrNoSession
	}
	rec, err := convert.SnapshotToRecord(uint(id), seq, *s)
	if err != nil {
		return err
	}
	b.queues.Snapshots.Push(rec)
	return nil
}

// RecordChangeSet flattens and queues an outbound change set.
func (b *Backend) RecordChangeSet(cs *core.ChangeSet) error {
	id := b.sessionID.Load()
	if id == 0 {
		return ErrNoSession
	}
	recs, err := convert.ChangeSetToRecords(uint(id), *cs, time.Now())
	if err != nil {
		return err
	}
	b.queues.Changes.Push(recs...)
	return nil
}

// QueueLengths reports how many rows are waiting to be written.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	if b.queues == nil {
		return model.WriteQueueLengths{}
	}
	return model.WriteQueueLengths{
		Snapshots: uint16(b.queues.Snapshots.Len()),
		Changes:   uint16(b.queues.Changes.Len()),
	}
}

// LastWriteDuration returns how long the last flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// LoadChangeSets reads back every change set stored for a session, in order.
func (b *Backend) LoadChangeSets(sessionID uint) ([]core.ChangeSet, error) {
	if b.deps.DB == nil {
		return nil, nil
	}
	var rows []model.ChangeRecord
	err := b.deps.DB.Where("session_id = ?", sessionID).
		Order("seq, ordinal").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load change records: %w", err)
	}
	return convert.RecordsToChangeSets(rows)
}

// writeQueue writes all items from a queue to the database, one transaction
// per batch of at most maxBatch rows. A failed batch is pushed back.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) {
	for {
		items := q.Drain(maxBatch)
		if len(items) == 0 {
			return
		}

		tx := db.Begin()
		if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
			log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
			tx.Rollback()
			q.Push(items...)
			return
		}
		tx.Commit()
	}
}

// Flush writes every queued row. In queue-only mode it is a no-op.
func (b *Backend) Flush() {
	if b.deps.DB == nil || b.queues == nil {
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	log := b.deps.LogManager.WriteLog
	writeQueue(b.deps.DB, b.queues.Snapshots, "snapshot records", log)
	writeQueue(b.deps.DB, b.queues.Changes, "change records", log)
	b.lastWrite.Store(int64(time.Since(start)))
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
