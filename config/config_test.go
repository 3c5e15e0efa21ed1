package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Providers:   ProvidersConfig{Active: ProviderGemini},
		Pipeline: PipelineConfig{
			SafetyFallback: "open",
			AuditFallback:  "open",
			MaxAuditRounds: 1,
		},
		Audit:         AuditConfig{BufferSize: 10, Workers: 1},
		Observability: ObservabilityConfig{LogLevel: "info"},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSAllowedOrigins)
				assert.Equal(t, ProviderGemini, cfg.Providers.Active)
				assert.Empty(t, cfg.Providers.Model)
				assert.Equal(t, "https://api.openai.com/v1", cfg.Providers.OpenAI.BaseURL)
				assert.Equal(t, "open", cfg.Pipeline.SafetyFallback)
				assert.Equal(t, "open", cfg.Pipeline.AuditFallback)
				assert.Equal(t, 1, cfg.Pipeline.MaxAuditRounds)
				assert.True(t, cfg.Pipeline.LocalGuard)
				assert.False(t, cfg.Pipeline.LocalGuardPII)
				assert.Equal(t, 256, cfg.Audit.BufferSize)
				assert.Equal(t, 2, cfg.Audit.Workers)
				assert.Equal(t, "info", cfg.Observability.LogLevel)
				assert.Equal(t, "json", cfg.Observability.LogFormat)
				assert.True(t, cfg.Observability.MetricsEnabled)
			},
		},
		{
			name: "gemini key from API_KEY",
			envVars: map[string]string{
				"API_KEY": "from-api-key",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-api-key", cfg.Providers.Gemini.APIKey)
			},
		},
		{
			name: "GEMINI_API_KEY wins over API_KEY",
			envVars: map[string]string{
				"API_KEY":         "from-api-key",
				"GEMINI_API_KEY":  "from-gemini",
				"GEMINI_BASE_URL": "http://localhost:9999",
				"GEMINI_TIMEOUT":  "5s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-gemini", cfg.Providers.Gemini.APIKey)
				assert.Equal(t, "http://localhost:9999", cfg.Providers.Gemini.BaseURL)
				assert.Equal(t, 5*time.Second, cfg.Providers.Gemini.Timeout)
			},
		},
		{
			name: "openai provider in production",
			envVars: map[string]string{
				"ENVIRONMENT":    "production",
				"LLM_PROVIDER":   "OpenAI",
				"LLM_MODEL":      "gpt-4o",
				"OPENAI_API_KEY": "sk-xxxxx",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.Equal(t, ProviderOpenAI, cfg.Providers.Active)
				assert.Equal(t, "gpt-4o", cfg.Providers.Model)
				assert.Equal(t, "sk-xxxxx", cfg.Providers.OpenAI.APIKey)
			},
		},
		{
			name: "pipeline tuning",
			envVars: map[string]string{
				"PIPELINE_SAFETY_FALLBACK":  "Closed",
				"PIPELINE_AUDIT_FALLBACK":   "closed",
				"PIPELINE_MAX_AUDIT_ROUNDS": "3",
				"PIPELINE_LOCAL_GUARD":      "false",
				"PIPELINE_LOCAL_GUARD_PII":  "true",
				"AUDIT_BUFFER_SIZE":         "16",
				"AUDIT_WORKERS":             "4",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "closed", cfg.Pipeline.SafetyFallback)
				assert.Equal(t, "closed", cfg.Pipeline.AuditFallback)
				assert.Equal(t, 3, cfg.Pipeline.MaxAuditRounds)
				assert.False(t, cfg.Pipeline.LocalGuard)
				assert.True(t, cfg.Pipeline.LocalGuardPII)
				assert.Equal(t, 16, cfg.Audit.BufferSize)
				assert.Equal(t, 4, cfg.Audit.Workers)
			},
		},
		{
			name: "custom timeouts and cors",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"SERVER_WRITE_TIMEOUT": "90s",
				"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":       "debug",
				"LOG_FORMAT":      "console",
				"METRICS_ENABLED": "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "SERVER_PORT env var when PORT not set",
			envVars: map[string]string{
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
			},
		},
		{
			name: "unknown provider",
			envVars: map[string]string{
				"LLM_PROVIDER": "bedrock",
			},
			wantErr: true,
		},
		{
			name: "production openai without key",
			envVars: map[string]string{
				"ENVIRONMENT":  "production",
				"LLM_PROVIDER": "openai",
			},
			wantErr: true,
		},
		{
			name: "invalid fallback policy",
			envVars: map[string]string{
				"PIPELINE_AUDIT_FALLBACK": "maybe",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid development config",
			mutate: func(*Config) {},
		},
		{
			name:   "openai without key outside production",
			mutate: func(c *Config) { c.Providers.Active = ProviderOpenAI },
		},
		{
			name:    "unsupported provider",
			mutate:  func(c *Config) { c.Providers.Active = "anthropic" },
			wantErr: true,
			errMsg:  "unsupported LLM provider",
		},
		{
			name:    "bad safety fallback",
			mutate:  func(c *Config) { c.Pipeline.SafetyFallback = "" },
			wantErr: true,
			errMsg:  "invalid safety fallback policy",
		},
		{
			name:    "zero audit rounds",
			mutate:  func(c *Config) { c.Pipeline.MaxAuditRounds = 0 },
			wantErr: true,
			errMsg:  "max audit rounds",
		},
		{
			name:    "zero audit workers",
			mutate:  func(c *Config) { c.Audit.Workers = 0 },
			wantErr: true,
			errMsg:  "audit buffer size and workers",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "" },
			wantErr: true,
			errMsg:  "log level is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"development", "development", true},
		{"dev", "dev", true},
		{"production", "production", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsDevelopment())
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "42", 10, 42},
		{"empty value", "", 10, 10},
		{"invalid int", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"empty value", "", true, true},
		{"invalid bool", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "30s", 10 * time.Second, 30 * time.Second},
		{"empty value", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	def := []string{"d"}

	t.Setenv("TEST_SLICE", "")
	assert.Equal(t, def, getEnvAsSlice("TEST_SLICE", def))

	t.Setenv("TEST_SLICE", " , ,")
	assert.Equal(t, def, getEnvAsSlice("TEST_SLICE", def))

	t.Setenv("TEST_SLICE", "a, b")
	assert.Equal(t, []string{"a", "b"}, getEnvAsSlice("TEST_SLICE", def))
}
