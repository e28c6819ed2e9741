// Package config loads application configuration from environment variables,
// command-line flags and an optional agent marker file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	// DataDir is the root of the sharded content tree.
	DataDir string
	// PublicHost overrides the request Host when building image URLs
	// (useful behind another server).
	PublicHost string
	// BasePath is prepended to generated URLs, e.g. "/elimage".
	BasePath string

	// DatabaseURL points at the accounting database. Empty disables
	// accounting entirely: every caller is admitted and nothing is recorded.
	DatabaseURL string
	AdminSecret string

	LogLevel string
	LogFile  string

	FileCommand      string
	TranscodeCommand []string
	ProcessTimeout   time.Duration
	ProcessWorkers   int

	MaxUploadBytes int64
	CacheMaxAge    time.Duration
	NotFoundMaxAge time.Duration

	InspectWebhookURL string
	InspectWorkers    int

	// Bots and LegacyEngines are case-sensitive User-Agent substrings.
	Bots          []string
	LegacyEngines []string
}

// Agents is the on-disk shape of the agent marker file.
type Agents struct {
	Bots          []string `yaml:"bots"`
	LegacyEngines []string `yaml:"legacy_engines"`
}

// DefaultBots is used when no agent file provides a bot list.
var DefaultBots = []string{
	"Googlebot",
	"bingbot",
	"Baiduspider",
	"YandexBot",
	"Sogou web spider",
	"360Spider",
	"DuckDuckBot",
	"Bytespider",
	"AhrefsBot",
	"SemrushBot",
	"MJ12bot",
	"DotBot",
	"PetalBot",
	"facebookexternalhit",
	"Twitterbot",
}

// DefaultLegacyEngines lists rendering engines without native WebP support.
var DefaultLegacyEngines = []string{
	"Trident/",
	"MSIE ",
	"Presto/",
	"Edge/1",
}

// Load reads configuration from a .env file (if present), environment
// variables and the given command-line arguments. Flags win over the
// environment.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "8888"),
		AppEnv:     getEnv("APP_ENV", "development"),
		DataDir:    getEnv("DATA_DIR", "/tmp"),
		PublicHost: getEnv("PUBLIC_HOST", ""),
		BasePath:   strings.TrimRight(getEnv("BASE_PATH", ""), "/"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		AdminSecret: getEnv("ADMIN_SECRET", "change_me_in_production"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		FileCommand:      getEnv("FILE_COMMAND", "file"),
		TranscodeCommand: strings.Fields(getEnv("TRANSCODE_COMMAND", "dwebp {in} -o {out}")),
		ProcessTimeout:   getDuration("PROCESS_TIMEOUT", 10*time.Second),
		ProcessWorkers:   getInt("PROCESS_WORKERS", 4),

		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 32<<20)),
		CacheMaxAge:    getDuration("CACHE_MAX_AGE", 10*365*24*time.Hour),
		NotFoundMaxAge: getDuration("NOT_FOUND_MAX_AGE", 5*time.Minute),

		InspectWebhookURL: getEnv("INSPECT_WEBHOOK_URL", ""),
		InspectWorkers:    getInt("INSPECT_WORKERS", 8),

		Bots:          DefaultBots,
		LegacyEngines: DefaultLegacyEngines,
	}

	fs := pflag.NewFlagSet("elimage", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "run on the given port")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "the directory to put uploaded data")
	fs.StringVar(&cfg.PublicHost, "host", cfg.PublicHost, "override the Host used in generated URLs")
	agentsFile := fs.String("agents", getEnv("AGENTS_FILE", ""), "YAML file listing bot and legacy engine markers")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if *agentsFile != "" {
		agents, err := LoadAgents(*agentsFile)
		if err != nil {
			return nil, err
		}
		if len(agents.Bots) > 0 {
			cfg.Bots = agents.Bots
		}
		if len(agents.LegacyEngines) > 0 {
			cfg.LegacyEngines = agents.LegacyEngines
		}
	}

	if cfg.BasePath != "" && !strings.HasPrefix(cfg.BasePath, "/") {
		cfg.BasePath = "/" + cfg.BasePath
	}
	if cfg.ProcessWorkers < 1 {
		return nil, fmt.Errorf("PROCESS_WORKERS must be positive, got %d", cfg.ProcessWorkers)
	}
	if cfg.InspectWorkers < 1 {
		return nil, fmt.Errorf("INSPECT_WORKERS must be positive, got %d", cfg.InspectWorkers)
	}
	if len(cfg.TranscodeCommand) == 0 {
		return nil, fmt.Errorf("TRANSCODE_COMMAND must not be empty")
	}

	return cfg, nil
}

// LoadAgents reads a YAML agent marker file.
func LoadAgents(path string) (*Agents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var agents Agents
	if err := yaml.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("parse agents file %q: %w", path, err)
	}
	return &agents, nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
