package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/internal/influx"
	"github.com/shadowhunters/boardview/internal/reconcile"
	"github.com/shadowhunters/boardview/internal/storage"
	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/shadowhunters/boardview/pkg/streaming"
)

// CommandSave ends the current session.
const CommandSave = "save"

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(streaming.TypeInit, m.handleInit, dispatcher.Logged())
	d.Register(streaming.TypeUpdate, m.handleUpdate, dispatcher.Logged())
	d.Register(streaming.TypeActivate, m.handleActivate, dispatcher.Logged())
	d.Register(CommandSave, m.handleSave, dispatcher.Logged())
}

func (m *Manager) handleInit(e dispatcher.Event) (any, error) {
	if m.engine != nil {
		return nil, ErrAlreadyInitialized
	}

	init, err := m.deps.Parser.ParseInit(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse init: %w", err)
	}

	cfg := m.deps.Engine
	cfg.ViewerUserID = init.UserID
	engine := reconcile.New(cfg)

	start := time.Now()
	cs, err := engine.Init(init)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize board: %w", err)
	}
	took := time.Since(start)

	sess := m.deps.Session.Start(init.UserID, m.deps.Tag, m.deps.Now())
	if err := m.backend.StartSession(&sess); err != nil {
		m.logError("handleInit", "Failed to start session in storage", err)
	} else {
		m.deps.Session.SetID(sess.ID)
	}

	m.engine = engine
	m.record(&init.Snapshot, cs)
	m.publish(cs, took)
	return cs, nil
}

func (m *Manager) handleUpdate(e dispatcher.Event) (any, error) {
	if m.engine == nil {
		return nil, ErrNotInitialized
	}

	snap, err := m.deps.Parser.ParseSnapshot(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse update: %w", err)
	}

	start := time.Now()
	cs, err := m.engine.Reconcile(snap)
	if err != nil {
		return nil, err
	}
	took := time.Since(start)

	m.record(&snap, cs)
	m.publish(cs, took)
	return cs, nil
}

func (m *Manager) handleActivate(e dispatcher.Event) (any, error) {
	if m.engine == nil {
		return nil, ErrNotInitialized
	}

	id, err := m.deps.Parser.ParseActivate(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activate: %w", err)
	}

	start := time.Now()
	cs, err := m.engine.Activate(id)
	if err != nil {
		return nil, fmt.Errorf("activate %q: %w", id, err)
	}

	m.record(nil, cs)
	m.publish(cs, time.Since(start))
	return cs, nil
}

// handleSave ends the session, uploads the archive when the backend
// produced one, and resets the engine so a new init can follow.
func (m *Manager) handleSave(e dispatcher.Event) (any, error) {
	if m.engine == nil {
		return nil, ErrNotInitialized
	}

	sess, err := m.deps.Session.End(m.deps.Now())
	if err != nil {
		return nil, err
	}
	if err := m.backend.EndSession(&sess); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	if up, ok := m.backend.(storage.Uploadable); ok && m.deps.Uploader != nil {
		path := up.GetExportedFilePath()
		if path != "" {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			err := m.deps.Uploader.Upload(ctx, path, up.GetExportMetadata())
			cancel()
			if err != nil {
				m.logError("handleSave", "Failed to upload session archive", err)
			} else {
				m.deps.LogManager.Logger().Info("Session archive uploaded", "path", path)
			}
		}
	}

	m.engine = nil
	m.deps.Cache.Reset()
	return sess, nil
}

// record persists the inbound snapshot (when there is one) and the change
// set. Storage errors are logged; they never undo a reconciliation.
func (m *Manager) record(snap *core.Snapshot, cs core.ChangeSet) {
	if snap != nil {
		if err := m.backend.RecordSnapshot(cs.Seq, snap); err != nil {
			m.logError("record", "Failed to record snapshot", err)
		}
	}
	if err := m.backend.RecordChangeSet(&cs); err != nil {
		m.logError("record", "Failed to record change set", err)
	}
}

// publish makes the new state visible to readers, the renderer feed and metrics.
func (m *Manager) publish(cs core.ChangeSet, took time.Duration) {
	players := m.engine.Registry().Len()
	m.deps.Cache.Publish(m.engine.View(), cs)
	m.deps.Session.Observe(cs.Seq, players)

	if m.deps.Feed != nil {
		m.deps.Feed.Publish(cs)
	}

	if m.deps.Influx != nil {
		sess, _ := m.deps.Session.Get()
		point := influx.ReconcilePoint(sess.UUID, cs, players, took, m.deps.Now())
		if err := m.deps.Influx.WritePoint(influx.BucketBoard, point); err != nil {
			m.logError("publish", "Failed to write reconcile metric", err)
		}
	}
}

func (m *Manager) logError(function, msg string, err error) {
	m.deps.LogManager.Logger().Error(msg, "function", function, "error", err)
}
