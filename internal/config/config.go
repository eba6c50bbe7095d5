package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	ServerName    string
	ServerVersion string
	ServerTitle   string

	ServerHost    string
	ServerPort    int
	TransportMode string // "stdio", "sse", or "stream"
	LogLevel      string
	Debug         bool

	// Authorizer configuration
	ArcadeAPIKey string
	ArcadeAPIURL string
	AuthDisabled bool

	// Default identity injected into tool contexts
	UserID    string
	UserEmail string

	// Bearer token for HTTP endpoints when worker auth is enabled
	WorkerSecret string

	// Notification manager tuning
	RateLimitPerMinute int
	DebounceMs         int

	// HTTP transport tuning
	MaxSessions        int
	SessionTimeoutSec  int
	MaxEventsPerStream int

	// Tool secrets resolved from arcade.yaml; environment takes precedence
	// at lookup time.
	Secrets map[string]string

	// Local mock authorization providers (development only)
	LocalAuthProviders []LocalAuthProvider

	// Extra metadata merged into every tool context
	Metadata map[string]string
}

// LocalAuthProvider configures the mock authorizer for one provider
type LocalAuthProvider struct {
	ProviderID   string            `yaml:"provider_id"`
	ProviderType string            `yaml:"provider_type"`
	Scopes       []string          `yaml:"scopes,omitempty"`
	MockTokens   map[string]string `yaml:"mock_tokens,omitempty"`
}

// fileConfig is the shape of the optional arcade.yaml file
type fileConfig struct {
	Server struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Title   string `yaml:"title"`
	} `yaml:"server"`
	Secrets            map[string]string   `yaml:"secrets"`
	Metadata           map[string]string   `yaml:"metadata"`
	LocalAuthProviders []LocalAuthProvider `yaml:"local_auth_providers"`
}

// Load loads configuration from an optional .env file, the environment, and
// an optional arcade.yaml in the working directory.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		// Best effort: a missing .env is fine, a present-but-broken one is not
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	port, _ := strconv.Atoi(getEnv("SERVER_PORT", "8000"))

	cfg := &Config{
		ServerName:    "Arcade MCP Server",
		ServerVersion: "0.1.0",
		ServerTitle:   "Arcade MCP Server",

		ServerHost:    getEnv("SERVER_HOST", "127.0.0.1"),
		ServerPort:    port,
		TransportMode: getEnv("TRANSPORT_MODE", "stream"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		ArcadeAPIKey: os.Getenv("ARCADE_API_KEY"),
		ArcadeAPIURL: getEnv("ARCADE_API_URL", "https://api.arcade.dev"),

		UserID:    os.Getenv("ARCADE_USER_ID"),
		UserEmail: os.Getenv("ARCADE_USER_EMAIL"),

		WorkerSecret: os.Getenv("ARCADE_WORKER_SECRET"),

		RateLimitPerMinute: 60,
		DebounceMs:         100,
		MaxSessions:        1000,
		SessionTimeoutSec:  300,
		MaxEventsPerStream: 1000,

		Secrets:  make(map[string]string),
		Metadata: make(map[string]string),
	}

	if err := loadFileConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFileConfig merges arcade.yaml into the config when present
func loadFileConfig(cfg *Config) error {
	path := getEnv("ARCADE_CONFIG_FILE", "arcade.yaml")
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Server.Name != "" {
		cfg.ServerName = fc.Server.Name
	}
	if fc.Server.Version != "" {
		cfg.ServerVersion = fc.Server.Version
	}
	if fc.Server.Title != "" {
		cfg.ServerTitle = fc.Server.Title
	}
	for k, v := range fc.Secrets {
		cfg.Secrets[k] = v
	}
	for k, v := range fc.Metadata {
		cfg.Metadata[k] = v
	}
	cfg.LocalAuthProviders = fc.LocalAuthProviders

	return nil
}

// LookupSecret resolves a secret by key: environment first, then the
// configured secrets map.
func (c *Config) LookupSecret(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	value, ok := c.Secrets[key]
	return value, ok
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
