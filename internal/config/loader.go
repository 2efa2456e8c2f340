package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

const (
	defaultConfigName = "config"
	defaultConfigType = "yaml"
	envPrefix         = "SNSMON_AI"

	// EnvCredentials is the primary credential source: a comma-separated list
	// of "provider=secret" entries or bare secrets whose provider is detected
	// from their prefix. When set, file credentials are ignored.
	EnvCredentials = "SNSMON_AI_CREDENTIALS"

	// envKeyPrefix declares single credentials as SNSMON_AI_KEY_<PROVIDER>[_<N>]=secret.
	envKeyPrefix = envPrefix + "_KEY_"
)

// loadConfig loads the configuration from environment variables and files.
// Priority order (highest to lowest):
// 1. SNSMON_AI_CREDENTIALS for credentials
// 2. SNSMON_AI_* environment variables
// 3. config.yaml
// 4. Default values
func loadConfig(configPath string) (*Configuration, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/snsmon-ai")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read config file: %w", err),
			}
		}
		fmt.Fprintf(os.Stderr, "[config] no config file found, using environment and defaults\n")
	}

	envCreds, envSet, err := primaryEnvCredentials()
	if err != nil {
		return nil, &ConfigError{Op: "load_env_credentials", Err: err}
	}
	if envSet {
		// AutomaticEnv would otherwise hand the raw string to the credentials list.
		v.Set("credentials", []any{})
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	if envSet {
		cfg.Credentials = envCreds
		fmt.Fprintf(os.Stderr, "[config] using %s (file credentials ignored)\n", EnvCredentials)
	} else if err := loadCredentialsFromKeyEnv(&cfg, os.Environ()); err != nil {
		return nil, &ConfigError{Op: "load_key_env", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 200)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.console_output", true)

	v.SetDefault("orchestrator.call_timeout_seconds", 60)
	v.SetDefault("orchestrator.mode", "sequential")

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.key_prefix", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// primaryEnvCredentials parses SNSMON_AI_CREDENTIALS. It reports whether the
// variable was set; a set variable without a single entry is an error.
func primaryEnvCredentials() ([]CredentialConfig, bool, error) {
	envValue := strings.TrimSpace(os.Getenv(EnvCredentials))
	if envValue == "" {
		return nil, false, nil
	}

	creds, err := ParseCredentialList(envValue)
	if err != nil {
		return nil, true, err
	}
	if len(creds) == 0 {
		return nil, true, fmt.Errorf("%s has no entries", EnvCredentials)
	}

	return creds, true, nil
}

// ParseCredentialList parses "provider=secret" entries and bare secrets separated by commas.
func ParseCredentialList(s string) ([]CredentialConfig, error) {
	var creds []CredentialConfig

	for i, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		provider, secret, err := parseCredentialEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		creds = append(creds, CredentialConfig{
			Name:     fmt.Sprintf("env_%s_%d", provider, i),
			Provider: provider,
			Secret:   secret,
			Active:   activeByDefault(),
		})
	}

	return creds, nil
}

func parseCredentialEntry(entry string) (domain.ProviderType, string, error) {
	if name, secret, ok := strings.Cut(entry, "="); ok {
		if p, err := domain.ParseProviderType(name); err == nil {
			return p, strings.TrimSpace(secret), nil
		}
	}

	p, ok := domain.DetectProvider(entry)
	if !ok {
		return "", "", fmt.Errorf("cannot detect provider for secret %s, use provider=secret", domain.MaskSecret(entry))
	}
	return p, entry, nil
}

// loadCredentialsFromKeyEnv appends SNSMON_AI_KEY_<PROVIDER>[_<N>] variables
// whose secret is not already configured.
func loadCredentialsFromKeyEnv(cfg *Configuration, environ []string) error {
	known := make(map[string]bool, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		known[c.Secret] = true
	}

	// os.Environ order is unspecified; sort for stable credential order.
	sorted := append([]string(nil), environ...)
	sort.Strings(sorted)

	for _, env := range sorted {
		if !strings.HasPrefix(env, envKeyPrefix) {
			continue
		}

		name, secret, ok := strings.Cut(env, "=")
		if !ok || secret == "" || known[secret] {
			continue
		}

		keyName := strings.TrimPrefix(name, envKeyPrefix)
		providerName, _, _ := strings.Cut(keyName, "_")

		provider, err := domain.ParseProviderType(providerName)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		cfg.Credentials = append(cfg.Credentials, CredentialConfig{
			Name:     "env_" + strings.ToLower(keyName),
			Provider: provider,
			Secret:   secret,
			Active:   activeByDefault(),
		})
		known[secret] = true
	}

	return nil
}
