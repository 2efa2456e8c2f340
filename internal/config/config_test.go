package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvCredentials, "")
}

var openaiSecret = "sk-" + strings.Repeat("a", 30)
var anthropicSecret = "sk-ant-" + strings.Repeat("b", 30)

func TestLoadConfig_Defaults(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Orchestrator.Mode != "sequential" {
		t.Errorf("Orchestrator.Mode = %q, want sequential", cfg.Orchestrator.Mode)
	}
	if got := cfg.Orchestrator.CallTimeout(); got != 60*time.Second {
		t.Errorf("CallTimeout() = %v, want 60s", got)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, `
orchestrator:
  call_timeout_seconds: 15
  mode: race
providers:
  - type: google
    model: gemini-2.0-flash
    rate_limit_per_minute: 60
  - type: anthropic
    base_url: https://proxy.internal/anthropic/v1
    max_tokens: 2048
store:
  driver: sqlite
  dsn: /var/lib/snsmon/ai.db
credentials:
  - name: primary
    provider: openai
    secret: `+openaiSecret+`
    active: true
  - name: backup
    provider: anthropic
    secret: `+anthropicSecret+`
    active: false
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Orchestrator.Mode != "race" || cfg.Orchestrator.CallTimeout() != 15*time.Second {
		t.Errorf("Orchestrator = %+v", cfg.Orchestrator)
	}

	google, ok := cfg.GetProvider(domain.ProviderGoogle)
	if !ok || google.Model != "gemini-2.0-flash" || google.RateLimitPerMinute != 60 {
		t.Errorf("GetProvider(google) = %+v, %v", google, ok)
	}
	if _, ok := cfg.GetProvider(domain.ProviderPerplexity); ok {
		t.Error("GetProvider(perplexity) should not be configured")
	}

	if cfg.Store.Driver != StoreSQLite || cfg.Store.DSN != "/var/lib/snsmon/ai.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}

	seeds := cfg.SeedCredentials()
	if len(seeds) != 2 {
		t.Fatalf("len(SeedCredentials()) = %d, want 2", len(seeds))
	}
	if seeds[0].Provider != domain.ProviderOpenAI || !seeds[0].IsActive || seeds[0].Name != "primary" {
		t.Errorf("seeds[0] = %+v", seeds[0])
	}
	if seeds[1].IsActive {
		t.Error("seeds[1] should be inactive")
	}
}

func TestLoadConfig_RejectsMalformedSecrets(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, `
credentials:
  - name: wrong-prefix
    provider: openai
    secret: `+anthropicSecret+`
    active: true
`)

	_, err := loadConfig(path)
	if !IsValidationError(err) {
		t.Fatalf("loadConfig() error = %v, want ValidationError", err)
	}
	if !err.(*ValidationError).HasError("credentials[0]") {
		t.Errorf("error should name credentials[0]: %v", err)
	}
}

func TestLoadConfig_PrimaryEnvOverridesFileCredentials(t *testing.T) {
	t.Setenv(EnvCredentials, "google=AIza"+strings.Repeat("g", 30)+", "+anthropicSecret)
	path := writeConfig(t, `
credentials:
  - name: from-file
    provider: openai
    secret: `+openaiSecret+`
    active: true
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if len(cfg.Credentials) != 2 {
		t.Fatalf("Credentials = %+v, want 2 env entries", cfg.Credentials)
	}
	if cfg.Credentials[0].Provider != domain.ProviderGoogle || cfg.Credentials[1].Provider != domain.ProviderAnthropic {
		t.Errorf("providers = %s, %s", cfg.Credentials[0].Provider, cfg.Credentials[1].Provider)
	}
	for _, c := range cfg.Credentials {
		if c.Secret == openaiSecret {
			t.Error("file credential should be ignored when the env variable is set")
		}
	}
}

func TestLoadConfig_PrimaryEnvWithoutEntries(t *testing.T) {
	t.Setenv(EnvCredentials, " , ,")
	path := writeConfig(t, "server:\n  port: 8080\n")

	_, err := loadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "no entries") {
		t.Fatalf("loadConfig() error = %v, want no entries error", err)
	}
}

func TestLoadConfig_CredentialActiveDefaultsTrue(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, `
credentials:
  - name: implicit
    provider: openai
    secret: `+openaiSecret+`
  - name: disabled
    provider: anthropic
    secret: `+anthropicSecret+`
    active: false
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	seeds := cfg.SeedCredentials()
	if len(seeds) != 2 {
		t.Fatalf("SeedCredentials() = %+v, want 2", seeds)
	}
	if !seeds[0].IsActive {
		t.Error("credential without an active field should be active")
	}
	if seeds[1].IsActive {
		t.Error("credential with active: false should stay inactive")
	}
}

func TestLoadConfig_EnvOverridesStoreDriver(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("SNSMON_AI_STORE_DRIVER", "redis")
	path := writeConfig(t, "server:\n  port: 8080\n")

	_, err := loadConfig(path)
	if !IsValidationError(err) || !err.(*ValidationError).HasError("store.redis_addr") {
		t.Fatalf("loadConfig() error = %v, want store.redis_addr validation error", err)
	}
}

func TestLoadConfig_UnreadableFile(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "server: [unclosed\n")

	_, err := loadConfig(path)
	if !IsConfigError(err) {
		t.Fatalf("loadConfig() error = %v, want ConfigError", err)
	}
}

func TestParseCredentialList(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []domain.ProviderType
		wantError bool
	}{
		{
			name:  "explicit providers",
			input: "openai=" + openaiSecret + ",perplexity=pplx-" + strings.Repeat("p", 20),
			want:  []domain.ProviderType{domain.ProviderOpenAI, domain.ProviderPerplexity},
		},
		{
			name:  "bare secrets detected by prefix",
			input: anthropicSecret + " , " + openaiSecret,
			want:  []domain.ProviderType{domain.ProviderAnthropic, domain.ProviderOpenAI},
		},
		{
			name:  "empty entries skipped",
			input: ",," + openaiSecret + ",",
			want:  []domain.ProviderType{domain.ProviderOpenAI},
		},
		{
			name:      "undetectable bare secret",
			input:     strings.Repeat("x", 30),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentialList(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseCredentialList() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				if strings.Contains(err.Error(), strings.Repeat("x", 30)) {
					t.Errorf("error leaks the secret: %v", err)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if c.Provider != tt.want[i] || !c.ToCredential().IsActive {
					t.Errorf("got[%d] = %+v, want active %s", i, c, tt.want[i])
				}
			}
		})
	}
}

func TestLoadCredentialsFromKeyEnv(t *testing.T) {
	cfg := &Configuration{Credentials: []CredentialConfig{{Provider: domain.ProviderOpenAI, Secret: openaiSecret}}}
	environ := []string{
		"PATH=/usr/bin",
		"SNSMON_AI_KEY_OPENAI_0=" + openaiSecret,
		"SNSMON_AI_KEY_ANTHROPIC_1=" + anthropicSecret,
		"SNSMON_AI_KEY_GOOGLE=",
	}

	if err := loadCredentialsFromKeyEnv(cfg, environ); err != nil {
		t.Fatalf("loadCredentialsFromKeyEnv() error = %v", err)
	}

	if len(cfg.Credentials) != 2 {
		t.Fatalf("Credentials = %+v, want existing openai plus anthropic", cfg.Credentials)
	}
	if c := cfg.Credentials[1]; c.Provider != domain.ProviderAnthropic || c.Name != "env_anthropic_1" {
		t.Errorf("Credentials[1] = %+v", c)
	}

	bad := &Configuration{}
	if err := loadCredentialsFromKeyEnv(bad, []string{"SNSMON_AI_KEY_MISTRAL=abc"}); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Configuration {
		return &Configuration{
			Server:       ServerConfig{Port: 8080},
			Orchestrator: OrchestratorConfig{Mode: "sequential"},
			Store:        StoreConfig{Driver: StoreMemory},
			Logging:      LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Configuration)
		wantField string
	}{
		{"valid", func(*Configuration) {}, ""},
		{"bad port", func(c *Configuration) { c.Server.Port = 0 }, "server.port"},
		{"bad mode", func(c *Configuration) { c.Orchestrator.Mode = "parallel" }, "orchestrator.mode"},
		{"negative timeout", func(c *Configuration) { c.Orchestrator.CallTimeoutSeconds = -1 }, "orchestrator.call_timeout_seconds"},
		{"unknown provider", func(c *Configuration) {
			c.Providers = []domain.Provider{{Type: "mistral"}}
		}, "providers[0].type"},
		{"duplicate provider", func(c *Configuration) {
			c.Providers = []domain.Provider{{Type: domain.ProviderOpenAI}, {Type: domain.ProviderOpenAI}}
		}, "providers[1].type"},
		{"postgres without dsn", func(c *Configuration) { c.Store.Driver = StorePostgres }, "store.dsn"},
		{"unknown driver", func(c *Configuration) { c.Store.Driver = "mongo" }, "store.driver"},
		{"short secret", func(c *Configuration) {
			c.Credentials = []CredentialConfig{{Provider: domain.ProviderGoogle, Secret: "short"}}
		}, "credentials[0]"},
		{"bad log format", func(c *Configuration) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			ve, ok := err.(*ValidationError)
			if !ok || !ve.HasError(tt.wantField) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantField)
			}
		})
	}
}

func TestGetConfigWithPath_Singleton(t *testing.T) {
	clearCredentialEnv(t)
	ResetConfig()
	t.Cleanup(ResetConfig)

	first, err := GetConfigWithPath(writeConfig(t, "server:\n  port: 7000\n"))
	if err != nil {
		t.Fatalf("GetConfigWithPath() error = %v", err)
	}
	second, _ := GetConfigWithPath(writeConfig(t, "server:\n  port: 7001\n"))

	if first != second || second.Server.Port != 7000 {
		t.Errorf("singleton not reused: first=%p second=%p port=%d", first, second, second.Server.Port)
	}
}
