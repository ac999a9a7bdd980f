// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the index
// engine and every collaborator it can be wired to (document stores, Kafka,
// Redis, HTTP server, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document store backends understood by DocStoreConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	DocStore DocStoreConfig `yaml:"docstore"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexerConfig controls the memtable capacity, the segment directory and the
// compaction policy of the index engine.
type IndexerConfig struct {
	DataDir string `yaml:"dataDir"`
	// MemtableCapacity is the number of distinct keywords held in memory
	// before a flush is forced.
	MemtableCapacity int `yaml:"memtableCapacity"`
	// FlushInterval flushes a non-empty memtable periodically. Zero disables it.
	FlushInterval time.Duration `yaml:"flushInterval"`
	// CompactionThreshold is the live segment count above which the
	// compactor merges.
	CompactionThreshold int           `yaml:"compactionThreshold"`
	CompactionInterval  time.Duration `yaml:"compactionInterval"`
	// CompactEveryFlushes wakes the compactor after this many flushes. Zero
	// leaves it on the interval only.
	CompactEveryFlushes int           `yaml:"compactEveryFlushes"`
	MergeWidth          int           `yaml:"mergeWidth"`
	DeleteGracePeriod   time.Duration `yaml:"deleteGracePeriod"`
	// CatalogFile is the bolt file, relative to DataDir, holding the catalog.
	// Empty keeps the catalog in memory only.
	CatalogFile       string `yaml:"catalogFile"`
	SearchParallelism int    `yaml:"searchParallelism"`
}

// DocStoreConfig selects the backend that assigns document ids and keeps the
// original text.
type DocStoreConfig struct {
	Backend   string `yaml:"backend"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for asynchronous ingestion.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	IngestTopic   string   `yaml:"ingestTopic"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SearchConfig controls result limits for the HTTP search surface.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxResults   int `yaml:"maxResults"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Indexer: DefaultIndexerConfig("data/index"),
		DocStore: DocStoreConfig{
			Backend:   BackendMemory,
			KeyPrefix: "invsearch:",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "invsearch",
			User:            "invsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "invsearch-indexer",
			IngestTopic:   "document-ingest",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxResults:   1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// DefaultIndexerConfig returns engine defaults rooted at dataDir.
func DefaultIndexerConfig(dataDir string) IndexerConfig {
	return IndexerConfig{
		DataDir:             dataDir,
		MemtableCapacity:    10000,
		CompactionThreshold: 4,
		CompactionInterval:  10 * time.Second,
		MergeWidth:          2,
		DeleteGracePeriod:   30 * time.Second,
		CatalogFile:         "catalog.db",
		SearchParallelism:   8,
	}
}

// Validate reports the first setting that would leave the engine unusable.
func (c *Config) Validate() error {
	if err := c.Indexer.Validate(); err != nil {
		return err
	}
	switch c.DocStore.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("docstore.backend: unknown backend %q", c.DocStore.Backend)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.IngestTopic == "") {
		return fmt.Errorf("kafka: brokers and ingestTopic are required when enabled")
	}
	return nil
}

// Validate checks the engine settings.
func (c IndexerConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("indexer.dataDir is required")
	}
	if c.MemtableCapacity <= 0 {
		return fmt.Errorf("indexer.memtableCapacity must be positive, got %d", c.MemtableCapacity)
	}
	if c.CompactionThreshold < 1 {
		return fmt.Errorf("indexer.compactionThreshold must be at least 1, got %d", c.CompactionThreshold)
	}
	if c.MergeWidth < 2 {
		return fmt.Errorf("indexer.mergeWidth must be at least 2, got %d", c.MergeWidth)
	}
	if c.CompactionInterval < 0 || c.FlushInterval < 0 || c.DeleteGracePeriod < 0 {
		return fmt.Errorf("indexer intervals must not be negative")
	}
	if c.CompactEveryFlushes < 0 {
		return fmt.Errorf("indexer.compactEveryFlushes must not be negative")
	}
	if c.SearchParallelism < 1 {
		return fmt.Errorf("indexer.searchParallelism must be at least 1, got %d", c.SearchParallelism)
	}
	return nil
}

// applyEnvOverrides reads IS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IS_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("IS_INDEXER_MEMTABLE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MemtableCapacity = n
		}
	}
	if v := os.Getenv("IS_INDEXER_COMPACTION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.CompactionThreshold = n
		}
	}
	if v := os.Getenv("IS_INDEXER_COMPACTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.CompactionInterval = d
		}
	}
	if v := os.Getenv("IS_DOCSTORE_BACKEND"); v != "" {
		cfg.DocStore.Backend = v
	}
	if v := os.Getenv("IS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("IS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("IS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("IS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("IS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("IS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
