package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Memory   MemoryConfig   `yaml:"memory"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	// DocStoreCredentials is the raw JSON blob describing the conversation log backend.
	DocStoreCredentials string        `yaml:"docstore_credentials"`
	Redis               RedisConfig   `yaml:"redis"`
	Qdrant              QdrantConfig  `yaml:"qdrant"`
	MaxOpenConns        int           `yaml:"max_open_conns"`
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	TTL      time.Duration `yaml:"ttl"`
}

type QdrantConfig struct {
	// Mode is "qdrant" (default) or "memory" for a process-local index.
	Mode       string `yaml:"mode"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	UseTLS     bool   `yaml:"use_tls"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	VectorSize int    `yaml:"vector_size"`
}

type AIConfig struct {
	Generation GenerationConfig `yaml:"generation"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	// PromptDir holds *.json template overrides, see the prompts subcommand.
	PromptDir string `yaml:"prompt_dir"`
}

type GenerationConfig struct {
	// Provider is "gemini" (default) or "openai".
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type EmbeddingConfig struct {
	// Provider is "fastembed" (default) or "openai".
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// CacheSize caps the number of cached query vectors.
	CacheSize int `yaml:"cache_size"`
}

type MemoryConfig struct {
	HistoryWindow        int    `yaml:"history_window"`
	MentionHistoryWindow int    `yaml:"mention_history_window"`
	RetrieveLimit        int    `yaml:"retrieve_limit"`
	MentionRetrieveLimit int    `yaml:"mention_retrieve_limit"`
	IdentityDelimiter    string `yaml:"identity_delimiter"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DocStoreCredentials is the decoded form of the conversation log credentials blob.
type DocStoreCredentials struct {
	Provider  string `json:"provider"`
	DSN       string `json:"dsn"`
	URI       string `json:"uri"`
	Database  string `json:"database"`
	ProjectID string `json:"project_id"`
	Type      string `json:"type"`

	// Raw is the original blob, handed to the Firestore client as service-account JSON.
	Raw []byte `json:"-"`
}

const (
	ProviderFirestore = "firestore"
	ProviderMySQL     = "mysql"
	ProviderSQLite    = "sqlite"
	ProviderMongoDB   = "mongodb"
)

// Default returns a configuration with every tunable populated.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Database: DatabaseConfig{
			Redis: RedisConfig{PoolSize: 10, TTL: 0},
			Qdrant: QdrantConfig{
				Mode:       "qdrant",
				Host:       "localhost",
				Port:       6334,
				Collection: "semantic-search",
				VectorSize: 384,
			},
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		AI: AIConfig{
			Generation: GenerationConfig{
				Provider:    "gemini",
				Model:       "gemini-1.5-pro",
				MaxTokens:   1024,
				Temperature: 0.7,
			},
			Embedding: EmbeddingConfig{
				Provider:  "fastembed",
				Model:     "fast-all-MiniLM-L6-v2",
				CacheDir:  ".fastembed",
				CacheTTL:  24 * time.Hour,
				CacheSize: 10000,
			},
		},
		Memory: MemoryConfig{
			HistoryWindow:        5,
			MentionHistoryWindow: 10,
			RetrieveLimit:        5,
			MentionRetrieveLimit: 10,
			IdentityDelimiter:    ": ",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" && c.AI.Generation.Provider == "gemini" {
		c.AI.Generation.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if c.AI.Generation.Provider == "openai" {
			c.AI.Generation.APIKey = apiKey
		}
		if c.AI.Embedding.Provider == "openai" {
			c.AI.Embedding.APIKey = apiKey
		}
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		c.Database.Qdrant.APIKey = apiKey
	}
	if blob := os.Getenv("DOCSTORE_CREDENTIALS"); blob != "" {
		c.Database.DocStoreCredentials = blob
	} else if blob := os.Getenv("FIREBASE_CREDENTIALS"); blob != "" {
		c.Database.DocStoreCredentials = blob
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Database.Redis.Addr = addr
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate refuses configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.AI.Generation.APIKey == "" {
		return fmt.Errorf("missing generation API key (GEMINI_API_KEY or OPENAI_API_KEY)")
	}
	if c.Database.Qdrant.APIKey == "" && c.Database.Qdrant.Mode != "memory" {
		return fmt.Errorf("missing QDRANT_API_KEY")
	}
	if c.Database.DocStoreCredentials == "" {
		return fmt.Errorf("missing DOCSTORE_CREDENTIALS")
	}
	if _, err := c.DocStore(); err != nil {
		return err
	}
	if c.Database.Qdrant.VectorSize <= 0 {
		return fmt.Errorf("qdrant.vector_size must be positive")
	}
	if c.Memory.HistoryWindow <= 0 || c.Memory.RetrieveLimit <= 0 {
		return fmt.Errorf("memory windows must be positive")
	}
	return nil
}

// DocStore decodes the conversation log credentials blob.
func (c *Config) DocStore() (*DocStoreCredentials, error) {
	return ParseDocStoreCredentials(c.Database.DocStoreCredentials)
}

// ParseDocStoreCredentials decodes blob. A GCP service-account document selects Firestore.
func ParseDocStoreCredentials(blob string) (*DocStoreCredentials, error) {
	var creds DocStoreCredentials
	if err := json.Unmarshal([]byte(blob), &creds); err != nil {
		return nil, fmt.Errorf("invalid DOCSTORE_CREDENTIALS: %w", err)
	}
	creds.Raw = []byte(blob)
	creds.Provider = strings.ToLower(strings.TrimSpace(creds.Provider))

	if creds.Provider == "" && creds.Type == "service_account" {
		creds.Provider = ProviderFirestore
	}

	switch creds.Provider {
	case ProviderFirestore:
		if creds.ProjectID == "" {
			return nil, fmt.Errorf("firestore credentials missing project_id")
		}
	case ProviderMySQL, ProviderSQLite:
		if creds.DSN == "" {
			return nil, fmt.Errorf("%s credentials missing dsn", creds.Provider)
		}
	case ProviderMongoDB:
		if creds.URI == "" {
			return nil, fmt.Errorf("mongodb credentials missing uri")
		}
		if creds.Database == "" {
			creds.Database = "companion"
		}
	default:
		return nil, fmt.Errorf("unsupported docstore provider %q", creds.Provider)
	}

	return &creds, nil
}

// Debug reports whether prompt-level logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Logging.Level, "debug")
}
