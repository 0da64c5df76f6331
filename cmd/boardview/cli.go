package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shadowhunters/boardview/internal/database"
	"github.com/shadowhunters/boardview/internal/dispatcher"
	"github.com/shadowhunters/boardview/internal/layout"
	"github.com/shadowhunters/boardview/internal/logging"
	"github.com/shadowhunters/boardview/internal/model"
	"github.com/shadowhunters/boardview/internal/model/convert"
	"github.com/shadowhunters/boardview/internal/reconcile"
	"github.com/shadowhunters/boardview/internal/storage"
	gormstorage "github.com/shadowhunters/boardview/internal/storage/gorm"
	"github.com/shadowhunters/boardview/internal/storage/memory"
	"github.com/shadowhunters/boardview/internal/worker"
	"github.com/shadowhunters/boardview/pkg/core"
	"github.com/shadowhunters/boardview/pkg/streaming"

	"github.com/rs/zerolog"
)

const maxLineSize = 4 << 20

func usage(w io.Writer) {
	fmt.Fprintf(w, `usage: %s [command]

Without a command the service runs until interrupted.

commands:
  replay <file.ndjson>   feed recorded envelopes through the engine and print change sets
  inspect <path>         summarize an export (.json[.gz]), a SQLite dump (.db)
                         or every dump in a directory
  version                print version and exit
`, AppName)
}

func runCLI(args []string, out io.Writer) error {
	switch strings.ToLower(args[0]) {
	case "version":
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return nil
	case "replay":
		if len(args) < 2 {
			return errors.New("replay: no input file provided")
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		return replay(f, out, storage.Nop{})
	case "inspect":
		if len(args) < 2 {
			return errors.New("inspect: no export file provided")
		}
		return inspect(args[1], out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// replay runs every envelope in r through a fresh engine, one per line, and
// writes the resulting change sets to out as JSON lines. Rejected envelopes
// are reported and skipped, matching what the live service does.
func replay(r io.Reader, out io.Writer, backend storage.Backend) error {
	lm := logging.NewSlogManager()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()), dispatcher.Blocking())
	if err != nil {
		return err
	}

	m := worker.NewManager(worker.Dependencies{
		Engine: reconcile.Config{
			Board:      layout.DefaultBoard(),
			StartSpots: layout.DefaultStartSpots,
		},
		LogManager: lm,
	}, backend)
	m.RegisterHandlers(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var env streaming.Envelope
		if err := json.Unmarshal([]byte(text), &env); err != nil {
			fmt.Fprintf(out, "# line %d: %v\n", line, err)
			continue
		}

		res, err := d.DispatchWait(ctx, dispatcher.Event{Command: env.Type, Payload: env.Payload})
		if err != nil {
			fmt.Fprintf(out, "# line %d (%s): %v\n", line, env.Type, err)
			continue
		}
		if cs, ok := res.(core.ChangeSet); ok {
			if err := enc.Encode(cs); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}

// inspect summarizes a memory export, a SQLite dump, or every dump in a
// directory.
func inspect(path string, out io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if strings.HasSuffix(path, ".db") {
			return inspectDump(path, out)
		}
		return inspectExport(path, out)
	}

	dumps, err := database.DumpPaths(path)
	if err != nil {
		return err
	}
	if len(dumps) == 0 {
		return fmt.Errorf("inspect: no .db dumps in %s", path)
	}
	for i, p := range dumps {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "# %s\n", filepath.Base(p))
		if err := inspectDump(p, out); err != nil {
			return err
		}
	}
	return nil
}

type sessionSummary struct {
	session   core.Session
	players   []string
	snapshots int
	changes   int
	finalSeq  uint64
}

func (s sessionSummary) print(out io.Writer) {
	viewer := s.session.ViewerUserID
	if viewer == "" {
		viewer = "spectator"
	}
	fmt.Fprintf(out, "session   %s\n", s.session.UUID)
	fmt.Fprintf(out, "viewer    %s\n", viewer)
	fmt.Fprintf(out, "started   %s\n", s.session.StartTime.Format("2006-01-02 15:04:05"))
	if !s.session.EndTime.IsZero() {
		fmt.Fprintf(out, "duration  %s\n", s.session.EndTime.Sub(s.session.StartTime))
	}
	fmt.Fprintf(out, "players   %s\n", strings.Join(s.players, ", "))
	fmt.Fprintf(out, "snapshots %d\n", s.snapshots)
	fmt.Fprintf(out, "changes   %d (final seq %d)\n", s.changes, s.finalSeq)
}

func inspectExport(path string, out io.Writer) error {
	export, err := memory.ReadExport(path)
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	sessionSummary{
		session:   export.Session,
		players:   export.Players,
		snapshots: len(export.Snapshots),
		changes:   len(export.ChangeSets),
		finalSeq:  export.FinalSeq,
	}.print(out)
	return nil
}

// inspectDump reads a SQLite dump written by the sqlite backend. A dump may
// hold several sessions; each gets its own summary.
func inspectDump(path string, out io.Writer) error {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var sessions []model.Session
	if err := db.Order("id").Find(&sessions).Error; err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("inspect: no session in %s", path)
	}

	reader := gormstorage.New(gormstorage.Dependencies{DB: db})
	for i, m := range sessions {
		var snapshots int64
		if err := db.Model(&model.SnapshotRecord{}).Where("session_id = ?", m.ID).Count(&snapshots).Error; err != nil {
			return fmt.Errorf("failed to count snapshots: %w", err)
		}
		sets, err := reader.LoadChangeSets(m.ID)
		if err != nil {
			return err
		}

		sum := sessionSummary{
			session:   convert.SessionToCore(m),
			players:   []string{},
			snapshots: int(snapshots),
			changes:   len(sets),
		}
		for _, cs := range sets {
			sum.finalSeq = max(sum.finalSeq, cs.Seq)
			for _, c := range cs.Changes {
				if c.Kind == core.ChangeCreated {
					sum.players = append(sum.players, c.EntityID)
				}
			}
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		sum.print(out)
	}
	return nil
}
