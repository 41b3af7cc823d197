// Package config loads dfmap.cfg.json through viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file searched for in the config dir.
const FileName = "dfmap.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. DFMAP_API_SERVERURL
// overrides api.serverUrl.
const EnvPrefix = "DFMAP"

// EngineConfig holds the state engine's runtime parameters.
type EngineConfig struct {
	PollInterval       time.Duration
	BatchWindow        time.Duration
	DecayRate          time.Duration
	SignalLineDistance float64
	FeedLineDistance   float64
	ManualLineDistance float64
	CircleRadius       float64
	FixRadius          float64
	FixEnabled         bool
	ReplayWindow       time.Duration
	ReplayStep         time.Duration
	AreaTolerancePx    float64
	AreaToleranceM     float64
	MonitorInterval    time.Duration
}

// APIConfig describes the signal backend.
type APIConfig struct {
	ServerURL string
	Timeout   time.Duration
}

// FeedConfig configures the rendering feed server.
type FeedConfig struct {
	Listen   string
	Interval time.Duration
}

// ServerConfig configures the signal server's HTTP listener.
type ServerConfig struct {
	Listen string
}

// StorageConfig selects the signal server's storage backend.
type StorageConfig struct {
	Type   string `json:"type" mapstructure:"type"`
	SQLite SQLiteConfig
	Memory MemoryConfig
	Badger BadgerConfig
}

// BadgerConfig holds badger storage backend settings
type BadgerConfig struct {
	Path     string `json:"path" mapstructure:"path"`
	InMemory bool   `json:"inMemory" mapstructure:"inMemory"`
}

// MemoryConfig holds memory storage backend settings
type MemoryConfig struct {
	ExportPath string `json:"exportPath" mapstructure:"exportPath"` // empty disables persistence, .gz compresses
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds the Postgres connection used by the postgres backend.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings for the count monitor.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	Bucket   string
}

// StaticRFF is a receiver station seeded from config. Lat and Lng accept
// decimal degrees or DMS.
type StaticRFF struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Lat  string `mapstructure:"lat"`
	Lng  string `mapstructure:"lng"`
}

// SetDefaults registers every default. Load calls it; tests may call it
// directly to work without a file.
func SetDefaults() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./dfmaplogs")

	viper.SetDefault("api.serverUrl", "http://localhost:8000")
	viper.SetDefault("api.timeout", "10s")

	viper.SetDefault("engine.pollInterval", "3s")
	viper.SetDefault("engine.batchWindow", "300ms")
	viper.SetDefault("engine.decayRate", "5m")
	viper.SetDefault("engine.signalLineDistance", 160934.4)
	viper.SetDefault("engine.feedLineDistance", 100000.0)
	viper.SetDefault("engine.manualLineDistance", 20000.0)
	viper.SetDefault("engine.circleRadius", 200.0)
	viper.SetDefault("engine.fixRadius", 500.0)
	viper.SetDefault("engine.fixEnabled", true)
	viper.SetDefault("engine.monitorInterval", "30s")

	viper.SetDefault("replay.window", "5m")
	viper.SetDefault("replay.step", "1s")

	viper.SetDefault("area.tolerancePx", 7.0)
	viper.SetDefault("area.toleranceMeters", 0.0)

	viper.SetDefault("feed.listen", ":8080")
	viper.SetDefault("server.listen", ":8000")
	viper.SetDefault("feed.interval", "250ms")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "./dfmap.db")
	viper.SetDefault("storage.memory.exportPath", "")
	viper.SetDefault("storage.badger.path", "./dfmap-badger")
	viper.SetDefault("storage.badger.inMemory", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "dfmap")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "dfmap")
	viper.SetDefault("influx.bucket", "dfmap-engine")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "dfmap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Variables already set win, and a
// missing file is not an error.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
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

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetEngineConfig returns the engine parameters.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		PollInterval:       viper.GetDuration("engine.pollInterval"),
		BatchWindow:        viper.GetDuration("engine.batchWindow"),
		DecayRate:          viper.GetDuration("engine.decayRate"),
		SignalLineDistance: viper.GetFloat64("engine.signalLineDistance"),
		FeedLineDistance:   viper.GetFloat64("engine.feedLineDistance"),
		ManualLineDistance: viper.GetFloat64("engine.manualLineDistance"),
		CircleRadius:       viper.GetFloat64("engine.circleRadius"),
		FixRadius:          viper.GetFloat64("engine.fixRadius"),
		FixEnabled:         viper.GetBool("engine.fixEnabled"),
		ReplayWindow:       viper.GetDuration("replay.window"),
		ReplayStep:         viper.GetDuration("replay.step"),
		AreaTolerancePx:    viper.GetFloat64("area.tolerancePx"),
		AreaToleranceM:     viper.GetFloat64("area.toleranceMeters"),
		MonitorInterval:    viper.GetDuration("engine.monitorInterval"),
	}
}

// GetAPIConfig returns the signal backend settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		Timeout:   viper.GetDuration("api.timeout"),
	}
}

// GetFeedConfig returns the rendering feed settings.
func GetFeedConfig() FeedConfig {
	return FeedConfig{
		Listen:   viper.GetString("feed.listen"),
		Interval: viper.GetDuration("feed.interval"),
	}
}

// GetServerConfig returns the signal server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{Listen: viper.GetString("server.listen")}
}

// GetStorageConfig returns the storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Memory: MemoryConfig{
			ExportPath: viper.GetString("storage.memory.exportPath"),
		},
		Badger: BadgerConfig{
			Path:     viper.GetString("storage.badger.path"),
			InMemory: viper.GetBool("storage.badger.inMemory"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetStaticRFFs returns the receiver stations listed under "rffs".
func GetStaticRFFs() ([]StaticRFF, error) {
	var rffs []StaticRFF
	if err := viper.UnmarshalKey("rffs", &rffs); err != nil {
		return nil, fmt.Errorf("invalid rffs config: %w", err)
	}
	return rffs, nil
}
