package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Auth
	APIKey      string
	CORSOrigins []string

	// Snapshot persistence
	StoreDriver string
	SQLitePath  string
	DatabaseURL string
	TablePrefix string

	// Image assets: HTTP provider, CSV manifest, or none
	AssetsURL      string
	AssetsAPIKey   string
	AssetsManifest string

	// AI edit producer; disabled without a key
	AnthropicAPIKey string
	AnthropicModel  string

	// Editing
	HistoryDepth       int
	SessionTTL         time.Duration
	// Numbering settings shape Section.Number only. Flat text headers are
	// always positional dot-decimal so text stays decodable.
	NumberingSeparator string
	NumberingRestart   bool
	TemplatesFile      string

	// Upload limits
	MaxUploadBytes int64

	// PDF
	PDFFallbackPdftotext bool

	MCPEnabled bool
}

// Load reads .env (if present) and then the environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        envOr("PORT", "8090"),
		Environment: envOr("ENVIRONMENT", "dev"),
		LogLevel:    os.Getenv("LOG_LEVEL"),

		APIKey:      os.Getenv("INSPECTDOC_API_KEY"),
		CORSOrigins: envList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		StoreDriver: strings.ToLower(envOr("STORE_DRIVER", StoreSQLite)),
		SQLitePath:  envOr("SQLITE_PATH", "data/inspectdoc.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		TablePrefix: os.Getenv("TABLE_PREFIX"),

		AssetsURL:      os.Getenv("ASSETS_URL"),
		AssetsAPIKey:   os.Getenv("ASSETS_API_KEY"),
		AssetsManifest: os.Getenv("ASSETS_MANIFEST"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		HistoryDepth:       envInt("HISTORY_DEPTH", 100),
		SessionTTL:         envDuration("SESSION_TTL", 1*time.Hour),
		NumberingSeparator: envOr("NUMBERING_SEPARATOR", "."),
		NumberingRestart:   envBool("NUMBERING_RESTART", true),
		TemplatesFile:      os.Getenv("TEMPLATES_FILE"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		MCPEnabled: envBool("MCP_ENABLED", true),
	}

	if cfg.HistoryDepth < 2 {
		cfg.HistoryDepth = 100
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 1 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.Environment == "dev" {
			cfg.LogLevel = "debug"
		}
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" && c.Environment != "dev" {
		return fmt.Errorf("INSPECTDOC_API_KEY is required outside dev")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AssetsURL != "" && c.AssetsManifest != "" {
		return fmt.Errorf("set only one of ASSETS_URL and ASSETS_MANIFEST")
	}
	if c.NumberingSeparator == "" {
		return fmt.Errorf("NUMBERING_SEPARATOR must not be empty")
	}
	return nil
}

// AgentEnabled reports whether the AI edit producer is configured.
func (c Config) AgentEnabled() bool {
	return c.AnthropicAPIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
