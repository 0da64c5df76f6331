package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigFileName is the JSON config file looked up in the config directory.
const ConfigFileName = "boardview.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. BOARDVIEW_STORAGE_TYPE.
const EnvPrefix = "BOARDVIEW"

// BoardConfig holds the board geometry constants
type BoardConfig struct {
	EquipmentSlots   int     `json:"equipmentSlots" mapstructure:"equipmentSlots"`
	HealthBaseX      float64 `json:"healthBaseX" mapstructure:"healthBaseX"`
	HealthSpacingX   float64 `json:"healthSpacingX" mapstructure:"healthSpacingX"`
	HealthBaseY      float64 `json:"healthBaseY" mapstructure:"healthBaseY"`
	HealthUnitHeight float64 `json:"healthUnitHeight" mapstructure:"healthUnitHeight"`
	PopupOffsetY     float64 `json:"popupOffsetY" mapstructure:"popupOffsetY"`
	DimmedAlpha      float64 `json:"dimmedAlpha" mapstructure:"dimmedAlpha"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds settings for the renderer push backend
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry log export settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// TransportConfig holds the game server connection settings
type TransportConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
}

// HTTPConfig holds the local HTTP API settings
type HTTPConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("defaultTag", "casual")

	viper.SetDefault("board.equipmentSlots", 6)
	viper.SetDefault("board.healthBaseX", 900)
	viper.SetDefault("board.healthSpacingX", 35)
	viper.SetDefault("board.healthBaseY", 585)
	viper.SetDefault("board.healthUnitHeight", 40)
	viper.SetDefault("board.popupOffsetY", -60)
	viper.SetDefault("board.dimmedAlpha", 0.4)

	viper.SetDefault("transport.enabled", false)
	viper.SetDefault("transport.url", "ws://localhost:5000/socket")

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.address", ":8090")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:8091/renderer")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "boardview")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "boardview-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "boardview")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.interval", "5s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. An optional .env
// file in the same directory is loaded into the process environment first.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetBoardConfig returns the board geometry.
func GetBoardConfig() BoardConfig {
	return BoardConfig{
		EquipmentSlots:   viper.GetInt("board.equipmentSlots"),
		HealthBaseX:      viper.GetFloat64("board.healthBaseX"),
		HealthSpacingX:   viper.GetFloat64("board.healthSpacingX"),
		HealthBaseY:      viper.GetFloat64("board.healthBaseY"),
		HealthUnitHeight: viper.GetFloat64("board.healthUnitHeight"),
		PopupOffsetY:     viper.GetFloat64("board.popupOffsetY"),
		DimmedAlpha:      viper.GetFloat64("board.dimmedAlpha"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetTransportConfig returns the game server connection settings.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		Enabled: viper.GetBool("transport.enabled"),
		URL:     viper.GetString("transport.url"),
	}
}

// GetHTTPConfig returns the local HTTP API settings.
func GetHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Enabled: viper.GetBool("http.enabled"),
		Address: viper.GetString("http.address"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:  viper.GetBool("monitor.enabled"),
		Interval: viper.GetDuration("monitor.interval"),
	}
}
