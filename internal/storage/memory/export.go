// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shadowhunters/boardview/pkg/core"
)

// ExportVersion is bumped on incompatible archive changes.
const ExportVersion = 1

// SessionExport is the root JSON structure of a session archive
type SessionExport struct {
	Version    int              `json:"version"`
	Session    core.Session     `json:"session"`
	FinalSeq   uint64           `json:"finalSeq"`
	Players    []string         `json:"players"`
	Snapshots  []SnapshotEntry  `json:"snapshots"`
	ChangeSets []core.ChangeSet `json:"changeSets"`
}

// sanitize keeps file names portable.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func sessionName(s core.Session) string {
	viewer := s.ViewerUserID
	if viewer == "" {
		viewer = "spectator"
	}
	id := s.UUID
	if len(id) > 8 {
		id = id[:8]
	}
	return sanitize(fmt.Sprintf("board_%s_%s", viewer, id))
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := sessionName(*b.session)
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = core.UploadMetadata{
		SessionName: name,
		Viewer:      b.session.ViewerUserID,
		Tag:         b.session.Tag,
	}
	if !b.session.EndTime.IsZero() {
		b.lastExportMeta.Duration = b.session.EndTime.Sub(b.session.StartTime).Seconds()
	}
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Version:    ExportVersion,
		Session:    *b.session,
		Players:    make([]string, 0),
		Snapshots:  make([]SnapshotEntry, len(b.snapshots)),
		ChangeSets: make([]core.ChangeSet, len(b.changeSets)),
	}
	copy(export.Snapshots, b.snapshots)
	copy(export.ChangeSets, b.changeSets)

	seen := make(map[string]bool)
	for _, cs := range b.changeSets {
		if cs.Seq > export.FinalSeq {
			export.FinalSeq = cs.Seq
		}
		for _, c := range cs.Changes {
			if c.Kind == core.ChangeCreated && !seen[c.EntityID] {
				seen[c.EntityID] = true
				export.Players = append(export.Players, c.EntityID)
			}
		}
	}
	return export
}

func writeExport(path string, data SessionExport, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer gzWriter.Close()
		w = gzWriter
	}

	return json.NewEncoder(w).Encode(data)
}

// ReadExport loads an archive written by EndSession. Files ending in .gz
// are decompressed.
func ReadExport(path string) (SessionExport, error) {
	var export SessionExport

	f, err := os.Open(path)
	if err != nil {
		return export, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}
