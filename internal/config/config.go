package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mohatt/github-api-utils/internal/credential"
)

// Config holds every runtime setting. Values resolve in three layers:
// compiled defaults, then the optional YAML file, then environment
// variables.
type Config struct {
	// Pool selects where credentials persist.
	Pool PoolConfig `yaml:"pool"`
	// GitHub configures the REST client.
	GitHub GitHubConfig `yaml:"github"`
	// Crawler configures the HTML stats extractor.
	Crawler CrawlerConfig `yaml:"crawler"`
	// Server configures the serve mode.
	Server ServerConfig `yaml:"server"`
	// Logging configures the global logger.
	Logging LoggingConfig `yaml:"logging"`

	// Tokens are seeded into the pool at startup, merged without
	// overwriting existing entries.
	Tokens []credential.Descriptor `yaml:"tokens"`
}

// PoolConfig selects and parameterizes the pool backend.
type PoolConfig struct {
	// Backend is "file" or "redis".
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
}

// GitHubConfig parameterizes the REST client.
type GitHubConfig struct {
	BaseURL    string `yaml:"base_url"`
	UserAgent  string `yaml:"user_agent"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CrawlerConfig parameterizes the HTML extractor.
type CrawlerConfig struct {
	// RequestsPerSec throttles page fetches; crawling is a quota-saving
	// accessory and must stay polite.
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	TimeoutSec     int     `yaml:"timeout_sec"`
}

// ServerConfig parameterizes the serve mode.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig parameterizes the global logger.
type LoggingConfig struct {
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Backend:  "file",
			Path:     defaultPoolPath(),
			RedisKey: "github-api-utils:pool",
		},
		GitHub: GitHubConfig{
			BaseURL:    "https://api.github.com",
			UserAgent:  "github-api-utils",
			TimeoutSec: 30,
		},
		Crawler: CrawlerConfig{
			RequestsPerSec: 1,
			TimeoutSec:     30,
		},
		Server: ServerConfig{
			Listen: ":8084",
		},
	}
}

// Validate rejects settings the components cannot operate with.
func (c *Config) Validate() error {
	switch c.Pool.Backend {
	case "file":
		if c.Pool.Path == "" {
			return fmt.Errorf("config: pool.path is required for the file backend")
		}
	case "redis":
		if c.Pool.RedisURL == "" {
			return fmt.Errorf("config: pool.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown pool backend %q", c.Pool.Backend)
	}
	if c.GitHub.BaseURL == "" {
		return fmt.Errorf("config: github.base_url must not be empty")
	}
	if c.Crawler.RequestsPerSec <= 0 {
		return fmt.Errorf("config: crawler.requests_per_sec must be positive")
	}
	return nil
}

// applyEnv overlays GHUTILS_* environment variables.
func (c *Config) applyEnv() {
	setString("GHUTILS_POOL_BACKEND", &c.Pool.Backend)
	setString("GHUTILS_POOL_PATH", &c.Pool.Path)
	setString("GHUTILS_REDIS_URL", &c.Pool.RedisURL)
	setString("GHUTILS_REDIS_KEY", &c.Pool.RedisKey)
	setString("GHUTILS_API_BASE_URL", &c.GitHub.BaseURL)
	setString("GHUTILS_USER_AGENT", &c.GitHub.UserAgent)
	setInt("GHUTILS_API_TIMEOUT_SEC", &c.GitHub.TimeoutSec)
	setFloat("GHUTILS_CRAWLER_RPS", &c.Crawler.RequestsPerSec)
	setInt("GHUTILS_CRAWLER_TIMEOUT_SEC", &c.Crawler.TimeoutSec)
	setString("GHUTILS_LISTEN", &c.Server.Listen)
	setBool("GHUTILS_DEBUG", &c.Logging.Debug)
	setString("GHUTILS_LOG_FILE", &c.Logging.LogFile)

	// GHUTILS_TOKENS holds comma-separated descriptors, colon-delimited:
	// "pat:token1,client_secret:id:secret,null".
	if raw := os.Getenv("GHUTILS_TOKENS"); raw != "" {
		var descs []credential.Descriptor
		for _, part := range strings.Split(raw, ",") {
			fields := strings.Split(strings.TrimSpace(part), ":")
			if fields[0] == "" {
				continue
			}
			descs = append(descs, credential.Descriptor{Tag: fields[0], Args: fields[1:]})
		}
		if len(descs) > 0 {
			c.Tokens = descs
		}
	}
}

func defaultPoolPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".github-api-utils/pool.json"
	}
	return home + "/.github-api-utils/pool.json"
}

func setString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func setBool(key string, target *bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		*target = true
	case "0", "false", "no", "off":
		*target = false
	}
}
