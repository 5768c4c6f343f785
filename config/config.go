// Package config loads runner settings from defaults, an optional YAML file and
// STACKHUT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "STACKHUT"

// Config is the root runner configuration.
type Config struct {
	// WorkDir is where input.json, output.json and the shim files live in local mode
	WorkDir string `mapstructure:"work_dir"`
	// HutfilePath points at the service descriptor
	HutfilePath string `mapstructure:"hutfile"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Shim      ShimConfig      `mapstructure:"shim"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Server    ServerConfig    `mapstructure:"server"`
}

// StorageConfig configures the remote object store.
type StorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	// MaxBlobBytes caps how much of a fetched object is held in memory
	MaxBlobBytes int64 `mapstructure:"max_blob_bytes"`
}

// ShimConfig controls the cross-language worker spawn.
type ShimConfig struct {
	Timeout      time.Duration     `mapstructure:"timeout"`
	Interpreters map[string]string `mapstructure:"interpreters"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// RedisConfig is used for analytics events and completion notices. Empty Addr disables it.
type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	AnalyticsList string        `mapstructure:"analytics_list"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"`
}

// DatabaseConfig enables the task_runs history table. Empty DSN disables it.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AnalyticsConfig configures the background telemetry worker.
type AnalyticsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	QueueSize    int           `mapstructure:"queue_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// ServerConfig is used by the local harness.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		WorkDir:     ".",
		HutfilePath: "./Hutfile",
		Storage: StorageConfig{
			Bucket:       "stackhut-payloads",
			Region:       "eu-west-1",
			MaxBlobBytes: 64 << 20,
		},
		Shim: ShimConfig{
			Timeout: 5 * time.Minute,
			Interpreters: map[string]string{
				"python3": "/usr/bin/python3",
				"nodejs":  "/usr/bin/node",
			},
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Redis: RedisConfig{
			AnalyticsList: "stackhut:analytics",
			ResultTTL:     10 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			QueueSize:    64,
			DrainTimeout: 2 * time.Second,
		},
		Server: ServerConfig{Port: "8080"},
	}
}

// Load merges defaults, the optional config file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Shim.Timeout <= 0 {
		return nil, fmt.Errorf("shim.timeout must be positive, got %s", cfg.Shim.Timeout)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override nested values.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("hutfile", d.HutfilePath)

	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.max_blob_bytes", d.Storage.MaxBlobBytes)

	v.SetDefault("shim.timeout", d.Shim.Timeout)
	v.SetDefault("shim.interpreters", d.Shim.Interpreters)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.outputs", d.Log.Outputs)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.rotation.enable", d.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", d.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", d.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.analytics_list", d.Redis.AnalyticsList)
	v.SetDefault("redis.result_ttl", d.Redis.ResultTTL)

	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("analytics.enabled", d.Analytics.Enabled)
	v.SetDefault("analytics.url", d.Analytics.URL)
	v.SetDefault("analytics.queue_size", d.Analytics.QueueSize)
	v.SetDefault("analytics.drain_timeout", d.Analytics.DrainTimeout)

	v.SetDefault("server.port", d.Server.Port)
}
