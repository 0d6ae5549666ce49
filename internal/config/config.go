// Package config loads runtime configuration from YAML, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"transfer-stats/internal/generator"
	"transfer-stats/internal/logging"
)

// Storage backends.
const (
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
)

// Config holds all app configuration.
type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	Redis     RedisConfig      `yaml:"redis"`
	Kafka     KafkaConfig      `yaml:"kafka"`
	HTTP      HTTPConfig       `yaml:"http"`
	Log       logging.Config   `yaml:"log"`
	Generator generator.Config `yaml:"generator"`
	Stats     StatsConfig      `yaml:"stats"`
}

// StorageConfig selects the transfer store.
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	ClickHouseDSN    string `yaml:"clickhouse_dsn"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`
}

// RedisConfig configures the stats cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig configures the transfer topic. The seeder produces to it and
// the server consumes from it when Consume is set.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	Consume       bool          `yaml:"consume"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RecomputeEvery  time.Duration `yaml:"recompute_every"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StatsConfig controls a statistics run.
type StatsConfig struct {
	Chronological bool `yaml:"chronological"`
	SeedCount     int  `yaml:"seed_count"`
}

// Default returns a configuration that runs entirely in memory.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:          BackendMemory,
			PostgresMaxConns: 10,
		},
		Redis: RedisConfig{
			TTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:         "transfers",
			ConsumerGroup: "transfer-stats",
			BatchSize:     500,
			BatchTimeout:  time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RecomputeEvery:  time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:       logging.DefaultConfig(),
		Generator: generator.DefaultConfig(),
		Stats: StatsConfig{
			SeedCount: 10_000,
		},
	}
}

// Load reads an optional .env file, an optional YAML file on top of the
// defaults, then applies environment overrides and validates the result.
// Empty paths are skipped; a named file that does not exist is an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("load env file: %w", err)
		}
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.ClickHouseDSN = getEnv("CLICKHOUSE_DSN", cfg.Storage.ClickHouseDSN)
	cfg.Storage.PostgresDSN = getEnv("POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Kafka.Brokers = getEnvAsSlice("KAFKA_BROKERS", cfg.Kafka.Brokers, ",")
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", cfg.Kafka.ConsumerGroup)
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	var err error
	if cfg.Redis.DB, err = getEnvAsInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Stats.SeedCount, err = getEnvAsInt("SEED_COUNT", cfg.Stats.SeedCount); err != nil {
		return err
	}
	if cfg.Stats.Chronological, err = getEnvAsBool("STATS_CHRONOLOGICAL", cfg.Stats.Chronological); err != nil {
		return err
	}
	if cfg.Kafka.Consume, err = getEnvAsBool("KAFKA_CONSUME", cfg.Kafka.Consume); err != nil {
		return err
	}
	return nil
}

// Validate ensures the selected backends have what they need.
func Validate(cfg Config) error {
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendClickHouse:
		if cfg.Storage.ClickHouseDSN == "" {
			return errors.New("storage.clickhouse_dsn is required for the clickhouse backend")
		}
	case BackendPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Redis.Addr != "" && cfg.Redis.TTL < 0 {
		return errors.New("redis.ttl must be >= 0")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	if cfg.Kafka.Consume && (len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.ConsumerGroup == "") {
		return errors.New("kafka.consume requires brokers and consumer_group")
	}
	if cfg.HTTP.RecomputeEvery < 0 {
		return errors.New("http.recompute_every must be >= 0")
	}
	if cfg.Stats.SeedCount < 0 {
		return errors.New("stats.seed_count must be >= 0")
	}
	if err := cfg.Generator.Validate(); err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	valStr, ok := os.LookupEnv(key)
	if !ok || valStr == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsBool(key string, defaultVal bool) (bool, error) {
	valStr, ok := os.LookupEnv(key)
	if !ok || valStr == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
