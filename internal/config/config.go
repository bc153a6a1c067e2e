// Package config loads server configuration from defaults, an optional YAML
// file and the environment, in that order of precedence (lowest first).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the environment variable holding the optional YAML path.
const FileEnvVar = "ORO_CONFIG"

type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Hub         HubConfig       `yaml:"hub"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Assistant   AssistantConfig `yaml:"assistant"`
	Log         LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// HubConfig tunes the WebSocket side of the collaboration hub.
type HubConfig struct {
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

// DatabaseConfig points at the SQLite connection audit log. An empty Path
// disables auditing.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig is only used for assistant rate limiting. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AssistantConfig struct {
	URL        string        `yaml:"url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            3001,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Hub: HubConfig{
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
		},
		Database: DatabaseConfig{
			Path: "data/audit.db",
		},
		Assistant: AssistantConfig{
			Model:      "llama3.2",
			Timeout:    20 * time.Second,
			RateLimit:  20,
			RateWindow: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// ORO_CONFIG (if any), then environment variables. A .env file in the
// working directory is loaded into the environment first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv(FileEnvVar); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Hub.WriteWait = getEnvAsDuration("WS_WRITE_WAIT", c.Hub.WriteWait)
	c.Hub.PongWait = getEnvAsDuration("WS_PONG_WAIT", c.Hub.PongWait)
	c.Hub.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(c.Hub.MaxMessageSize)))
	c.Hub.SendBuffer = getEnvAsInt("WS_SEND_BUFFER", c.Hub.SendBuffer)

	// AUDIT_DB_PATH may be set to an empty string to disable auditing.
	if value, ok := os.LookupEnv("AUDIT_DB_PATH"); ok {
		c.Database.Path = value
	}

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)

	c.Assistant.URL = getEnv("ASSISTANT_URL", c.Assistant.URL)
	c.Assistant.Model = getEnv("ASSISTANT_MODEL", c.Assistant.Model)
	c.Assistant.Timeout = getEnvAsDuration("ASSISTANT_TIMEOUT", c.Assistant.Timeout)
	c.Assistant.RateLimit = getEnvAsInt("ASSISTANT_RATE_LIMIT", c.Assistant.RateLimit)
	c.Assistant.RateWindow = getEnvAsDuration("ASSISTANT_RATE_WINDOW", c.Assistant.RateWindow)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Hub.PongWait <= 0 {
		return fmt.Errorf("hub pong wait must be positive")
	}
	if c.Hub.WriteWait <= 0 {
		return fmt.Errorf("hub write wait must be positive")
	}
	if c.Hub.MaxMessageSize <= 0 {
		return fmt.Errorf("hub max message size must be positive")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub send buffer must be positive")
	}
	if c.Assistant.RateLimit < 0 {
		return fmt.Errorf("assistant rate limit must not be negative")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
