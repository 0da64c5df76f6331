package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowhunters/boardview/pkg/core"
)

func TestConnect_Disabled(t *testing.T) {
	viper.Set("influx.enabled", false)
	t.Cleanup(viper.Reset)

	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "backup.lp.gz"))
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	viper.Set("influx.enabled", true)
	viper.Set("influx.protocol", "http")
	viper.Set("influx.host", "127.0.0.1")
	viper.Set("influx.port", "1")
	t.Cleanup(viper.Reset)

	backup := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(zerolog.Nop(), backup)
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	at := time.Unix(1700000000, 0)
	cs := core.ChangeSet{Seq: 3, Changes: []core.Change{
		{EntityID: "1", Kind: core.ChangeMoved},
		{EntityID: "2", Kind: core.ChangeMoved},
	}}
	require.NoError(t, m.WritePoint(BucketBoard, ReconcilePoint("abc", cs, 2, time.Millisecond, at)))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	line := string(bytes.TrimSpace(data))
	assert.True(t, strings.HasPrefix(line, "reconcile,session=abc "), line)
	assert.Contains(t, line, "moved=2i")
	assert.Contains(t, line, "seq=3i")
	assert.True(t, strings.HasSuffix(line, "1700000000000000000"), line)
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.WritePoint(BucketBoard, PipelinePoint("abc", 1, 2, 3, time.Second, time.Now()))
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}

func TestPipelinePoint(t *testing.T) {
	p := PipelinePoint("abc", 4, 1, 7, 1500*time.Microsecond, time.Unix(0, 0))
	assert.Equal(t, MeasurementPipeline, p.Name())

	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(4), fields["inbox"])
	assert.Equal(t, int64(7), fields["queue_changes"])
	assert.InDelta(t, 1.5, fields["last_write_ms"], 0.0001)
}
