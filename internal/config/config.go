package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// Server
	Port string `yaml:"port"`

	// Database
	DBDriver string `yaml:"db_driver"` // "sqlite" | "postgres" | "memory"
	DBPath   string `yaml:"db_path"`   // SQLite path
	DBUrl    string `yaml:"db_url"`    // Postgres DSN

	// Quota
	RedisAddr           string `yaml:"redis_addr"` // empty = in-memory counters
	RedisPassword       string `yaml:"redis_password"`
	DailyExecutionLimit int64  `yaml:"daily_execution_limit"` // per user per agent; 0 = unlimited

	// Artifacts
	MinioEndpoint  string `yaml:"minio_endpoint"` // empty = in-memory artifacts
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	// Execution
	RemoteCallTimeout Duration `yaml:"remote_call_timeout"`

	// Streaming
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`
	SweepInterval    Duration `yaml:"sweep_interval"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load layers configuration: built-in defaults, then the YAML file named by
// EDUHU_CONFIG_PATH (if any), then EDUHU_* environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                "8080",
		DBDriver:            "sqlite",
		DBPath:              "./data/eduhu.db",
		DailyExecutionLimit: 50,
		MinioBucket:         "eduhu-artifacts",
		RemoteCallTimeout:   Duration(90 * time.Second),
		HeartbeatTimeout:    Duration(60 * time.Second),
		SweepInterval:       Duration(30 * time.Second),
		LogLevel:            "info",
	}

	if path := os.Getenv("EDUHU_CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("EDUHU_PORT", cfg.Port)
	cfg.DBDriver = getEnv("EDUHU_DB_DRIVER", cfg.DBDriver)
	cfg.DBPath = getEnv("EDUHU_DB_PATH", cfg.DBPath)
	cfg.DBUrl = getEnv("EDUHU_DATABASE_URL", cfg.DBUrl)
	cfg.RedisAddr = getEnv("EDUHU_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("EDUHU_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.DailyExecutionLimit = getEnvInt64("EDUHU_DAILY_EXECUTION_LIMIT", cfg.DailyExecutionLimit)
	cfg.MinioEndpoint = getEnv("EDUHU_MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getEnv("EDUHU_MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getEnv("EDUHU_MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getEnv("EDUHU_MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getEnvBool("EDUHU_MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.RemoteCallTimeout = getEnvDuration("EDUHU_REMOTE_CALL_TIMEOUT", cfg.RemoteCallTimeout)
	cfg.HeartbeatTimeout = getEnvDuration("EDUHU_HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)
	cfg.SweepInterval = getEnvDuration("EDUHU_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.LogLevel = getEnv("EDUHU_LOG_LEVEL", getEnv("LOG_LEVEL", cfg.LogLevel))

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
