package papergraph

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/papergraph/llm"
)

// Config holds all configuration for the papergraph engine.
type Config struct {
	// Chat is the chat-completion endpoint. Its APIKey is only a fallback
	// for the CLI; the server always uses the key sent with the request.
	Chat LLMConfig `json:"chat" yaml:"chat" mapstructure:"chat"`

	// Embedding is optional. When Provider is empty, node names are not
	// embedded and similar-method search is unavailable.
	Embedding    LLMConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	EmbeddingDim int       `json:"embedding_dim" yaml:"embedding_dim" mapstructure:"embedding_dim"`

	// Models lists the model identifiers a request may select. The first
	// one is the default.
	Models []string `json:"models" yaml:"models" mapstructure:"models"`

	// OutputDir receives method_<timestamp>.* artifacts. Defaults to the
	// working directory.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// XLSX also exports each graph as a workbook.
	XLSX bool `json:"xlsx" yaml:"xlsx" mapstructure:"xlsx"`

	// History records every run in a SQLite database at DBPath. If DBPath
	// is empty the database lives in ~/.papergraph/papergraph.db.
	History bool   `json:"history" yaml:"history" mapstructure:"history"`
	DBPath  string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	MaxUploadMB int           `json:"max_upload_mb" yaml:"max_upload_mb" mapstructure:"max_upload_mb"`

	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`
	Server ServerConfig `json:"server" yaml:"server" mapstructure:"server"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"` // openrouter, openai, gemini, ollama, custom
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey   string `json:"-" yaml:"-" mapstructure:"api_key"`
	Referer  string `json:"referer" yaml:"referer" mapstructure:"referer"`
	Title    string `json:"title" yaml:"title" mapstructure:"title"`
}

// LogConfig controls the process-wide slog logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"` // json or text
	// File, when set, also writes logs to a size-rotated file.
	File       string `json:"file" yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
	// APIKey enables bearer authentication on every route except /health.
	APIKey      string   `json:"-" yaml:"-" mapstructure:"api_key"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DefaultModels are the models offered by the upload form.
var DefaultModels = []string{
	"google/gemini-2.5-pro",
	"openai/gpt-oss-20b:free",
}

// DefaultConfig returns a Config pointed at OpenRouter with history off.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "openrouter",
			BaseURL:  "https://openrouter.ai/api",
			Title:    "papergraph",
		},
		EmbeddingDim: 1536,
		Models:       append([]string(nil), DefaultModels...),
		OutputDir:    ".",
		XLSX:         true,
		Timeout:      llm.DefaultTimeout,
		MaxRetries:   0,
		MaxUploadMB:  50,
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig builds a Config from defaults, a .env file in the working
// directory, an optional YAML or JSON file at path, and PAPERGRAPH_*
// environment variables, in increasing order of precedence. Nested keys
// map to env names with dots replaced by underscores, e.g.
// PAPERGRAPH_CHAT_BASE_URL.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("PAPERGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	// Fallback: well-known provider env vars for the CLI key.
	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "openrouter":
			cfg.Chat.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("chat.provider", d.Chat.Provider)
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.base_url", d.Chat.BaseURL)
	v.SetDefault("chat.api_key", d.Chat.APIKey)
	v.SetDefault("chat.referer", d.Chat.Referer)
	v.SetDefault("chat.title", d.Chat.Title)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.referer", d.Embedding.Referer)
	v.SetDefault("embedding.title", d.Embedding.Title)
	v.SetDefault("embedding_dim", d.EmbeddingDim)
	v.SetDefault("models", d.Models)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("xlsx", d.XLSX)
	v.SetDefault("history", d.History)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("max_upload_mb", d.MaxUploadMB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Chat.Provider == "":
		return fmt.Errorf("%w: chat.provider is empty", ErrInvalidConfig)
	case len(c.Models) == 0:
		return fmt.Errorf("%w: models list is empty", ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case c.MaxUploadMB <= 0:
		return fmt.Errorf("%w: max_upload_mb must be positive", ErrInvalidConfig)
	case c.Embedding.Provider != "" && c.EmbeddingDim <= 0:
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	for _, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: models contains an empty entry", ErrInvalidConfig)
		}
	}
	return nil
}

// DefaultModel is the model used when a request does not name one.
func (c *Config) DefaultModel() string {
	if len(c.Models) == 0 {
		return ""
	}
	return c.Models[0]
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "papergraph.db" // fallback to cwd
	}
	return filepath.Join(home, ".papergraph", "papergraph.db")
}
