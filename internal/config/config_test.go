package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sqliteBlob = `{"provider":"sqlite","dsn":"file::memory:"}`

func validConfig() *Config {
	cfg := Default()
	cfg.AI.Generation.APIKey = "gen-key"
	cfg.Database.Qdrant.APIKey = "qdrant-key"
	cfg.Database.DocStoreCredentials = sqliteBlob
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "semantic-search", cfg.Database.Qdrant.Collection)
	assert.Equal(t, 384, cfg.Database.Qdrant.VectorSize)
	assert.Equal(t, 5, cfg.Memory.HistoryWindow)
	assert.Equal(t, 10, cfg.Memory.MentionHistoryWindow)
	assert.Equal(t, 5, cfg.Memory.RetrieveLimit)
	assert.Equal(t, 10, cfg.Memory.MentionRetrieveLimit)
	assert.Equal(t, ": ", cfg.Memory.IdentityDelimiter)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing generation key",
			mutate:  func(c *Config) { c.AI.Generation.APIKey = "" },
			wantErr: "generation API key",
		},
		{
			name:    "missing qdrant key",
			mutate:  func(c *Config) { c.Database.Qdrant.APIKey = "" },
			wantErr: "QDRANT_API_KEY",
		},
		{
			name: "memory index needs no key",
			mutate: func(c *Config) {
				c.Database.Qdrant.APIKey = ""
				c.Database.Qdrant.Mode = "memory"
			},
		},
		{
			name:    "missing docstore",
			mutate:  func(c *Config) { c.Database.DocStoreCredentials = "" },
			wantErr: "DOCSTORE_CREDENTIALS",
		},
		{
			name:    "docstore not json",
			mutate:  func(c *Config) { c.Database.DocStoreCredentials = "not-json" },
			wantErr: "invalid DOCSTORE_CREDENTIALS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDocStoreCredentials(t *testing.T) {
	tests := []struct {
		name         string
		blob         string
		wantProvider string
		wantErr      bool
	}{
		{
			name:         "service account selects firestore",
			blob:         `{"type":"service_account","project_id":"demo"}`,
			wantProvider: ProviderFirestore,
		},
		{
			name:         "mysql",
			blob:         `{"provider":"MySQL","dsn":"u:p@tcp(localhost:3306)/chat"}`,
			wantProvider: ProviderMySQL,
		},
		{
			name:         "mongodb defaults database",
			blob:         `{"provider":"mongodb","uri":"mongodb://localhost:27017"}`,
			wantProvider: ProviderMongoDB,
		},
		{name: "firestore without project", blob: `{"type":"service_account"}`, wantErr: true},
		{name: "sqlite without dsn", blob: `{"provider":"sqlite"}`, wantErr: true},
		{name: "unknown provider", blob: `{"provider":"cassandra"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ParseDocStoreCredentials(tt.blob)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, creds.Provider)
			assert.Equal(t, []byte(tt.blob), creds.Raw)
			if creds.Provider == ProviderMongoDB {
				assert.Equal(t, "companion", creds.Database)
			}
		})
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := []byte("server:\n  port: 9090\nmemory:\n  history_window: 7\n")
	require.NoError(t, os.WriteFile(path, yml, 0o644))

	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("QDRANT_API_KEY", "q-key")
	t.Setenv("DOCSTORE_CREDENTIALS", "")
	t.Setenv("FIREBASE_CREDENTIALS", sqliteBlob)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Memory.HistoryWindow)
	assert.Equal(t, 10, cfg.Memory.MentionHistoryWindow)
	assert.Equal(t, "g-key", cfg.AI.Generation.APIKey)
	assert.Equal(t, "q-key", cfg.Database.Qdrant.APIKey)
	assert.Equal(t, sqliteBlob, cfg.Database.DocStoreCredentials)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}
