package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/journal"
	"github.com/davidbz/chatrelay/internal/observability"
	"github.com/davidbz/chatrelay/internal/provider/cliagent"
)

// Config represents the relay configuration.
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Provider ProviderConfig
	Agent    cliagent.Config
	Journal  journal.Config
	Log      observability.LogConfig
}

// ServerConfig contains HTTP server settings. WriteTimeout is zero by default
// since run streams outlive any fixed deadline.
type ServerConfig struct {
	Port            int `env:"SERVER_PORT"             envDefault:"8080"`
	ReadTimeout     int `env:"SERVER_READ_TIMEOUT"     envDefault:"30"`
	WriteTimeout    int `env:"SERVER_WRITE_TIMEOUT"    envDefault:"0"`
	ShutdownTimeout int `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Request-ID"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"false"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// ProviderConfig holds the default provider settings that request overrides
// resolve against.
type ProviderConfig struct {
	Kind             string  `env:"PROVIDER_KIND"               envDefault:"openai-compatible"`
	BaseURL          string  `env:"PROVIDER_BASE_URL"           envDefault:"https://api.openai.com/v1"`
	APIKeys          string  `env:"PROVIDER_API_KEYS"`
	Model            string  `env:"PROVIDER_MODEL"`
	Temperature      float64 `env:"PROVIDER_TEMPERATURE"        envDefault:"0.7"`
	MaxTokens        int     `env:"PROVIDER_MAX_TOKENS"         envDefault:"0"`
	RequestTimeoutMs int     `env:"PROVIDER_REQUEST_TIMEOUT_MS" envDefault:"60000"`
	RetryCount       int     `env:"PROVIDER_RETRY_COUNT"        envDefault:"1"`
	DebugLogging     bool    `env:"PROVIDER_DEBUG_LOGGING"      envDefault:"false"`
	WorkDir          string  `env:"PROVIDER_WORK_DIR"`
}

// Settings converts the defaults into normalized provider settings.
func (p ProviderConfig) Settings() domain.ProviderSettings {
	return domain.ProviderSettings{
		Kind:             domain.ProviderKind(p.Kind),
		BaseURL:          p.BaseURL,
		APIKeyMaterial:   p.APIKeys,
		Model:            p.Model,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		RequestTimeoutMs: p.RequestTimeoutMs,
		RetryCount:       p.RetryCount,
		DebugLogging:     p.DebugLogging,
		WorkDir:          p.WorkDir,
	}.Normalize()
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Server   *ServerConfig
	CORS     *CORSConfig
	Provider *ProviderConfig
	Agent    *cliagent.Config
	Journal  *journal.Config
	Log      *observability.LogConfig
}

// Load loads environment files and parses configuration.
func Load() (*Config, error) {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:   &cfg.Server,
		CORS:     &cfg.CORS,
		Provider: &cfg.Provider,
		Agent:    &cfg.Agent,
		Journal:  &cfg.Journal,
		Log:      &cfg.Log,
	}
}
