package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shadowhunters/boardview/internal/config"
	"github.com/shadowhunters/boardview/internal/logging"
	"github.com/shadowhunters/boardview/internal/storage"
	"github.com/shadowhunters/boardview/internal/storage/memory"
	pgstorage "github.com/shadowhunters/boardview/internal/storage/postgres"
	sqlitestorage "github.com/shadowhunters/boardview/internal/storage/sqlite"
	wsstorage "github.com/shadowhunters/boardview/internal/storage/websocket"
	"github.com/spf13/viper"
)

func createStorageBackend(storageCfg config.StorageConfig, lm *logging.SlogManager, start time.Time) (storage.Backend, error) {
	logger := lm.Logger()

	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend selected")
		return pgstorage.New(pgstorage.Dependencies{LogManager: lm}), nil

	case "sqlite":
		dumpPath := filepath.Join(storageCfg.Memory.OutputDir,
			fmt.Sprintf("%s_%s.db", AppName, start.Format("20060102_150405")))
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, lm)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected", "dump", dumpPath)
		return backend, nil

	case "websocket":
		url := storageCfg.WebSocket.URL
		if url == "" {
			url = httpToWS(viper.GetString("api.serverUrl")) + "/renderer"
		}
		logger.Info("WebSocket storage backend selected", "url", url)
		return wsstorage.New(wsstorage.Config{
			URL:    url,
			Secret: storageCfg.WebSocket.Secret,
			Logger: logger,
		}), nil

	case "none":
		return storage.Nop{}, nil

	default:
		logger.Info("Memory storage backend selected", "dir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
