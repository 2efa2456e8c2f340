// Package config provides configuration management using the Singleton pattern.
// It loads configuration from environment variables and config.yaml using Viper.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// Store drivers accepted in store.driver.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Configuration holds all application configuration values.
type Configuration struct {
	Server       ServerConfig       `json:"server" mapstructure:"server"`
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`

	// Providers overrides endpoints and rate limits per provider.
	Providers []domain.Provider `json:"providers" mapstructure:"providers"`

	Store StoreConfig `json:"store" mapstructure:"store"`

	// Credentials are seeded into the store at startup.
	Credentials []CredentialConfig `json:"credentials" mapstructure:"credentials"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	// Host is the server bind address.
	Host string `json:"host" mapstructure:"host"`

	// Port is the server port number.
	Port int `json:"port" mapstructure:"port"`

	ReadTimeoutSeconds     int `json:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `json:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`

	// ConsoleOutput enables the coloured startup banner and per-request lines.
	ConsoleOutput bool `json:"console_output" mapstructure:"console_output"`
}

// OrchestratorConfig tunes provider resolution.
type OrchestratorConfig struct {
	// CallTimeoutSeconds bounds each provider call. Zero means no bound.
	CallTimeoutSeconds int `json:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`

	// Mode is the default resolution mode: sequential or race.
	Mode string `json:"mode" mapstructure:"mode"`
}

// CallTimeout returns the per-call timeout as a duration.
func (o OrchestratorConfig) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutSeconds) * time.Second
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver string `json:"driver" mapstructure:"driver"`

	// DSN is the sqlite path or postgres connection string.
	DSN string `json:"-" mapstructure:"dsn"`

	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
	KeyPrefix     string `json:"key_prefix" mapstructure:"key_prefix"`
}

// CredentialConfig is a credential declared in configuration.
type CredentialConfig struct {
	Name     string              `json:"name" mapstructure:"name"`
	Provider domain.ProviderType `json:"provider" mapstructure:"provider"`
	Secret   string              `json:"-" mapstructure:"secret"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty" mapstructure:"active"`
}

// ToCredential converts the entry into a domain credential ready for seeding.
func (c CredentialConfig) ToCredential() domain.Credential {
	return domain.Credential{
		Name:     c.Name,
		Provider: c.Provider,
		Secret:   c.Secret,
		IsActive: c.Active == nil || *c.Active,
	}
}

func activeByDefault() *bool {
	active := true
	return &active
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" mapstructure:"level"`

	// Format is the log format (json, text).
	Format string `json:"format" mapstructure:"format"`
}

// configInstance holds the singleton configuration instance.
var (
	configInstance *Configuration
	configOnce     sync.Once
	configErr      error
)

// GetConfig returns the singleton Configuration instance.
// It initializes the configuration on first call using the default config path.
func GetConfig() (*Configuration, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig("")
	})
	return configInstance, configErr
}

// GetConfigWithPath returns the singleton Configuration instance with a custom config path.
func GetConfigWithPath(configPath string) (*Configuration, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig(configPath)
	})
	return configInstance, configErr
}

// ResetConfig resets the singleton instance.
// This is primarily used for testing purposes.
func ResetConfig() {
	configOnce = sync.Once{}
	configInstance = nil
	configErr = nil
}

// Validate checks every section and reports all problems at once.
func (c *Configuration) Validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		validationErrors = append(validationErrors, "server.port must be between 1 and 65535")
	}

	if c.Orchestrator.CallTimeoutSeconds < 0 {
		validationErrors = append(validationErrors, "orchestrator.call_timeout_seconds cannot be negative")
	}
	if !isValidMode(c.Orchestrator.Mode) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"orchestrator.mode '%s' is invalid, must be one of: sequential, race",
			c.Orchestrator.Mode,
		))
	}

	seen := make(map[domain.ProviderType]bool, len(c.Providers))
	for i, p := range c.Providers {
		if !p.Type.IsValid() {
			validationErrors = append(validationErrors, fmt.Sprintf(
				"providers[%d].type '%s' is invalid, must be one of: openai, anthropic, google, perplexity", i, p.Type))
			continue
		}
		if seen[p.Type] {
			validationErrors = append(validationErrors, fmt.Sprintf("providers[%d].type '%s' is declared twice", i, p.Type))
		}
		seen[p.Type] = true
		if !p.IsValid() {
			validationErrors = append(validationErrors, fmt.Sprintf("providers[%d] max_tokens and rate_limit_per_minute cannot be negative", i))
		}
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("store.dsn is required for driver %s", c.Store.Driver))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			validationErrors = append(validationErrors, "store.redis_addr is required for driver redis")
		}
	default:
		validationErrors = append(validationErrors, fmt.Sprintf(
			"store.driver '%s' is invalid, must be one of: memory, sqlite, postgres, redis",
			c.Store.Driver,
		))
	}

	// Secrets that would fail at the provider are rejected here, not at call time.
	for i, cred := range c.Credentials {
		if err := domain.ValidateCredential(cred.ToCredential()); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("credentials[%d]: %v", i, err))
		}
	}

	if c.Logging.Level != "" && !isValidLogLevel(c.Logging.Level) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.level '%s' is invalid, must be one of: debug, info, warn, error",
			c.Logging.Level,
		))
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.format '%s' is invalid, must be one of: json, text",
			c.Logging.Format,
		))
	}

	if len(validationErrors) > 0 {
		return &ValidationError{Errors: validationErrors}
	}

	return nil
}

func isValidMode(mode string) bool {
	switch mode {
	case "", "sequential", "race":
		return true
	default:
		return false
	}
}

// isValidLogLevel checks if the log level is valid.
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// GetProvider returns the configured overrides for a provider.
func (c *Configuration) GetProvider(providerType domain.ProviderType) (*domain.Provider, bool) {
	for i := range c.Providers {
		if c.Providers[i].Type == providerType {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// SeedCredentials returns the configured credentials as domain values.
func (c *Configuration) SeedCredentials() []domain.Credential {
	creds := make([]domain.Credential, 0, len(c.Credentials))
	for _, cc := range c.Credentials {
		creds = append(creds, cc.ToCredential())
	}
	return creds
}
