// Package monitor periodically samples pipeline health into a status file,
// the performance table and InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shadowhunters/boardview/internal/influx"
	"github.com/shadowhunters/boardview/internal/logging"
	"github.com/shadowhunters/boardview/internal/model"
	"github.com/shadowhunters/boardview/internal/session"

	"gorm.io/gorm"
)

// StatusFileName is written inside Dependencies.StatusDir.
const StatusFileName = "status.json"

// QueueReporter is implemented by storage backends that batch writes.
type QueueReporter interface {
	QueueLengths() model.WriteQueueLengths
	LastWriteDuration() time.Duration
}

// FeedReporter is implemented by the renderer change-set feed.
type FeedReporter interface {
	Subscribers() int
	Dropped() uint64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	Session    *session.Context
	Inbox      func() int
	Queues     QueueReporter
	Feed       FeedReporter
	Influx     *influx.Manager
	StatusDir  string
	Interval   time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status is the content of the status file.
type Status struct {
	Time              time.Time               `json:"time"`
	SessionUUID       string                  `json:"sessionUuid"`
	Viewer            string                  `json:"viewer"`
	InboxLength       int                     `json:"inboxLength"`
	Players           int                     `json:"players"`
	LastSeq           uint64                  `json:"lastSeq"`
	WriteQueues       model.WriteQueueLengths `json:"writeQueues"`
	LastWriteDuration string                  `json:"lastWriteDuration"`
	StreamSubscribers int                     `json:"streamSubscribers"`
	StreamDropped     uint64                  `json:"streamDropped"`
}

// Sample collects the current program status. ok is false when no session
// is active.
func (s *Service) Sample(now time.Time) (status Status, perf model.PerformanceRecord, ok bool) {
	sess, ok := s.deps.Session.Get()
	if !ok {
		return Status{}, model.PerformanceRecord{}, false
	}

	seq, players := s.deps.Session.Stats()
	status = Status{
		Time:        now,
		SessionUUID: sess.UUID,
		Viewer:      sess.ViewerUserID,
		Players:     players,
		LastSeq:     seq,
	}
	if s.deps.Inbox != nil {
		status.InboxLength = s.deps.Inbox()
	}
	if s.deps.Feed != nil {
		status.StreamSubscribers = s.deps.Feed.Subscribers()
		status.StreamDropped = s.deps.Feed.Dropped()
	}

	var lastWrite time.Duration
	if s.deps.Queues != nil {
		status.WriteQueues = s.deps.Queues.QueueLengths()
		lastWrite = s.deps.Queues.LastWriteDuration()
	}
	status.LastWriteDuration = lastWrite.String()

	perf = model.PerformanceRecord{
		Time:                now,
		SessionID:           sess.ID,
		InboxLength:         status.InboxLength,
		Players:             players,
		LastSeq:             seq,
		WriteQueueLengths:   status.WriteQueues,
		LastWriteDurationMs: float32(lastWrite.Microseconds()) / 1000,
	}
	return status, perf, true
}

// Tick takes one sample and writes it to every configured sink.
func (s *Service) Tick(now time.Time) error {
	status, perf, ok := s.Sample(now)
	if !ok {
		return nil
	}

	if s.deps.StatusDir != "" {
		if err := writeStatus(filepath.Join(s.deps.StatusDir, StatusFileName), status); err != nil {
			return err
		}
	}

	if s.deps.DB != nil && perf.SessionID != 0 {
		if err := s.deps.DB.Create(&perf).Error; err != nil {
			return fmt.Errorf("error writing performance record: %w", err)
		}
	}

	if s.deps.Influx != nil {
		point := influx.PipelinePoint(status.SessionUUID, status.InboxLength,
			int(status.WriteQueues.Snapshots), int(status.WriteQueues.Changes),
			time.Duration(float64(perf.LastWriteDurationMs)*float64(time.Millisecond)), now)
		if err := s.deps.Influx.WritePoint(influx.BucketPerformance, point); err != nil {
			return err
		}
	}
	return nil
}

func writeStatus(path string, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.LogManager.Logger()
	logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := s.Tick(now); err != nil {
				logger.Error("Status monitor tick failed", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
