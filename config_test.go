package papergraph

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "openrouter", cfg.Chat.Provider)
	assert.Equal(t, []string{"google/gemini-2.5-pro", "openai/gpt-oss-20b:free"}, cfg.Models)
	assert.Equal(t, "google/gemini-2.5-pro", cfg.DefaultModel())
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.False(t, cfg.History)
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Models, cfg.Models)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.MaxUploadMB)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "papergraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chat:
  provider: openrouter
  base_url: http://localhost:9999/api
models:
  - openai/gpt-oss-20b:free
output_dir: /tmp/graphs
timeout: 90s
history: true
server:
  addr: ":9090"
  cors_origins: ["http://localhost:3000"]
`), 0o644))

	t.Setenv("PAPERGRAPH_MAX_RETRIES", "2")
	t.Setenv("PAPERGRAPH_SERVER_ADDR", ":7070")
	t.Setenv("OPENROUTER_API_KEY", "sk-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/api", cfg.Chat.BaseURL)
	assert.Equal(t, []string{"openai/gpt-oss-20b:free"}, cfg.Models)
	assert.Equal(t, "/tmp/graphs", cfg.OutputDir)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.True(t, cfg.History)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sk-env", cfg.Chat.APIKey)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PAPERGRAPH_OUTPUT_DIR=from-dotenv\n"), 0o644))
	t.Setenv("PAPERGRAPH_OUTPUT_DIR", "")
	os.Unsetenv("PAPERGRAPH_OUTPUT_DIR")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.OutputDir)
}

func TestLoadConfigMissingFile(t *testing.T) {
	chdir(t)
	_, err := LoadConfig("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no provider", func(c *Config) { c.Chat.Provider = "" }},
		{"no models", func(c *Config) { c.Models = nil }},
		{"blank model", func(c *Config) { c.Models = []string{"a", " "} }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero upload", func(c *Config) { c.MaxUploadMB = 0 }},
		{"embedding without dim", func(c *Config) { c.Embedding.Provider = "openai"; c.EmbeddingDim = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = nil
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := NewLogger(LogConfig{Level: "warn", Format: "text"}, &buf)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "run_id", "abc")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "run_id=abc")
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "papergraph.log")
	var buf bytes.Buffer
	logger, closer := NewLogger(LogConfig{Level: "debug", File: path, MaxSizeMB: 1}, &buf)

	logger.Debug("to both", "stage", "parse")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"stage":"parse"`))
	assert.Contains(t, buf.String(), `"msg":"to both"`)
}
