package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Storage struct {
	DataDir string `yaml:"data_dir"`
	// Fsync is "always", "interval" or "never"; see storage.ParseFsyncMode.
	Fsync         string        `yaml:"fsync"`
	FsyncInterval time.Duration `yaml:"fsync_interval"`
	CacheSize     int64         `yaml:"cache_size"`
	// WALFile receives one JSON line per committed batch. Empty disables it.
	WALFile string `yaml:"wal_file"`
}

type Node struct {
	// BatchInterval paces how often the mempool is drained into a batch.
	//
	// Recommended values:
	//   - Devnet:     200ms (keeps logs readable)
	//   - Production: 50ms or less when clients submit asynchronously
	BatchInterval time.Duration `yaml:"batch_interval"`
	MaxCapacity   uint64        `yaml:"max_capacity"`
	MaxBatchBytes int64         `yaml:"max_batch_bytes"`
}

type API struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Config struct {
	Storage Storage `yaml:"storage"`
	Node    Node    `yaml:"node"`
	API     API     `yaml:"api"`
	Log     Log     `yaml:"log"`
}

func Default() Config {
	return Config{
		Storage: Storage{
			DataDir:       "data/monitor",
			Fsync:         "always",
			FsyncInterval: time.Second,
			CacheSize:     64 << 20,
			WALFile:       "data/batches.log",
		},
		Node: Node{
			BatchInterval: 200 * time.Millisecond, // Devnet default
			MaxCapacity:   100_000,
			MaxBatchBytes: 1 << 20,
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Log: Log{
			Level: "info",
			File:  "logs/node.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	applyEnv(&cfg)
	return cfg
}

// LoadFromFile reads a YAML (or JSON, which YAML accepts) config over the
// defaults, then applies environment overrides.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Storage.DataDir = getEnv("OBM_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.Fsync = getEnv("OBM_FSYNC", cfg.Storage.Fsync)
	cfg.Storage.WALFile = getEnv("OBM_WAL_FILE", cfg.Storage.WALFile)
	cfg.API.Addr = getEnv("OBM_API_ADDR", cfg.API.Addr)
	cfg.Log.Level = getEnv("OBM_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("OBM_LOG_FILE", cfg.Log.File)

	if ms := os.Getenv("OBM_FSYNC_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Storage.FsyncInterval = time.Duration(n) * time.Millisecond
		}
	}
	if ms := os.Getenv("OBM_BATCH_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Node.BatchInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("OBM_MAX_CAPACITY"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Node.MaxCapacity = n
		}
	}
	if v := os.Getenv("OBM_CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = splitList(v)
	}
}

// Validate rejects configs the node cannot start with
func (c Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch c.Storage.Fsync {
	case "always", "never":
	case "interval":
		if c.Storage.FsyncInterval <= 0 {
			return fmt.Errorf("storage.fsync_interval must be positive with fsync=interval")
		}
	default:
		return fmt.Errorf("storage.fsync: unknown mode %q", c.Storage.Fsync)
	}
	if c.Node.BatchInterval <= 0 {
		return fmt.Errorf("node.batch_interval must be positive")
	}
	if c.Node.MaxCapacity == 0 {
		return fmt.Errorf("node.max_capacity must be positive")
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
