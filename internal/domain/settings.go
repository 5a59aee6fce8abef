package domain

import (
	"strings"
	"time"
)

const (
	MinRequestTimeoutMs = 5000
	MaxRequestTimeoutMs = 180000
	MaxRetryCount       = 3
	maxTemperature      = 2.0
)

// ProviderSettings is an immutable per-run snapshot of provider configuration.
type ProviderSettings struct {
	Kind             ProviderKind `json:"providerKind"     yaml:"providerKind"`
	BaseURL          string       `json:"baseUrl"          yaml:"baseUrl"`
	APIKeyMaterial   string       `json:"apiKey"           yaml:"apiKey"`
	Model            string       `json:"model"            yaml:"model"`
	Temperature      float64      `json:"temperature"      yaml:"temperature"`
	MaxTokens        int          `json:"maxTokens"        yaml:"maxTokens"`
	RequestTimeoutMs int          `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	RetryCount       int          `json:"retryCount"       yaml:"retryCount"`
	DebugLogging     bool         `json:"debugLogging"     yaml:"debugLogging"`
	WorkDir          string       `json:"workDir,omitempty" yaml:"workDir,omitempty"`
}

// ParseAPIKeys splits raw key material into distinct keys.
// Keys may be separated by commas or newlines and wrapped in quotes.
func ParseAPIKeys(material string) []string {
	fields := strings.FieldsFunc(material, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	keys := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		key := unquote(strings.TrimSpace(field))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	return keys
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// APIKeys returns the parsed key list.
func (s ProviderSettings) APIKeys() []string {
	return ParseAPIKeys(s.APIKeyMaterial)
}

// IsConfigured reports whether runs may be dispatched with these settings.
func (s ProviderSettings) IsConfigured() bool {
	return s.missing() == ""
}

// missing names the first required field that is absent, or "" when complete.
func (s ProviderSettings) missing() string {
	switch s.Kind {
	case ProviderCLIAgent:
		return ""
	case ProviderOpenAICompatible, ProviderAnthropic:
		if strings.TrimSpace(s.BaseURL) == "" {
			return "base URL is required"
		}
	case ProviderSDKAgent:
	default:
		return "unknown provider kind " + string(s.Kind)
	}

	if len(s.APIKeys()) == 0 {
		return "API key is required"
	}
	if strings.TrimSpace(s.Model) == "" {
		return "model is required"
	}
	return ""
}

// Validate returns a ConfigError when the settings cannot be dispatched.
func (s ProviderSettings) Validate() error {
	if reason := s.missing(); reason != "" {
		return &ConfigError{Kind: s.Kind, Reason: reason, Err: ErrProviderNotConfigured}
	}
	return nil
}

// Normalize clamps numeric fields into their supported ranges.
// A zero request timeout stays zero and disables the timeout guard.
func (s ProviderSettings) Normalize() ProviderSettings {
	if s.RequestTimeoutMs < 0 {
		s.RequestTimeoutMs = 0
	}
	if s.RequestTimeoutMs > 0 {
		s.RequestTimeoutMs = clamp(s.RequestTimeoutMs, MinRequestTimeoutMs, MaxRequestTimeoutMs)
	}
	s.RetryCount = clamp(s.RetryCount, 0, MaxRetryCount)
	if s.Temperature < 0 {
		s.Temperature = 0
	}
	if s.Temperature > maxTemperature {
		s.Temperature = maxTemperature
	}
	if s.MaxTokens < 0 {
		s.MaxTokens = 0
	}
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	s.Model = strings.TrimSpace(s.Model)
	return s
}

// SettingsOverrides are the provider settings a caller may supply for one run.
// Nil pointers and empty strings inherit the configured default, so an explicit
// zero (temperature 0, no retries, no timeout) survives resolution.
type SettingsOverrides struct {
	Kind             ProviderKind `json:"providerKind"     yaml:"providerKind"`
	BaseURL          string       `json:"baseUrl"          yaml:"baseUrl"`
	APIKeyMaterial   string       `json:"apiKey"           yaml:"apiKey"`
	Model            string       `json:"model"            yaml:"model"`
	Temperature      *float64     `json:"temperature"      yaml:"temperature"`
	MaxTokens        *int         `json:"maxTokens"        yaml:"maxTokens"`
	RequestTimeoutMs *int         `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	RetryCount       *int         `json:"retryCount"       yaml:"retryCount"`
	DebugLogging     *bool        `json:"debugLogging"     yaml:"debugLogging"`
	WorkDir          string       `json:"workDir,omitempty" yaml:"workDir,omitempty"`
}

// Resolve applies o over defaults and normalizes the result.
//
// Credentials never follow a request to another endpoint: the default key is
// inherited only when the kind matches the default kind and the base URL is
// unset or equal to the default. The default base URL and model are inherited
// only for the default kind.
func (o SettingsOverrides) Resolve(defaults ProviderSettings) ProviderSettings {
	s := ProviderSettings{
		Kind:           o.Kind,
		BaseURL:        strings.TrimSpace(o.BaseURL),
		APIKeyMaterial: o.APIKeyMaterial,
		Model:          o.Model,
		WorkDir:        o.WorkDir,
	}
	if s.Kind == "" {
		s.Kind = defaults.Kind
	}

	sameKind := s.Kind == defaults.Kind
	sameTarget := sameKind && (s.BaseURL == "" || s.BaseURL == strings.TrimSpace(defaults.BaseURL))

	if sameKind {
		if s.BaseURL == "" {
			s.BaseURL = defaults.BaseURL
		}
		if strings.TrimSpace(s.Model) == "" {
			s.Model = defaults.Model
		}
	}
	if sameTarget && strings.TrimSpace(s.APIKeyMaterial) == "" {
		s.APIKeyMaterial = defaults.APIKeyMaterial
	}
	if s.WorkDir == "" {
		s.WorkDir = defaults.WorkDir
	}

	s.Temperature = pick(o.Temperature, defaults.Temperature)
	s.MaxTokens = pick(o.MaxTokens, defaults.MaxTokens)
	s.RequestTimeoutMs = pick(o.RequestTimeoutMs, defaults.RequestTimeoutMs)
	s.RetryCount = pick(o.RetryCount, defaults.RetryCount)
	s.DebugLogging = pick(o.DebugLogging, defaults.DebugLogging)

	return s.Normalize()
}

func pick[T any](override *T, fallback T) T {
	if override != nil {
		return *override
	}
	return fallback
}

// RunInput is a run as submitted over HTTP or the CLI, before its settings
// are resolved against the configured defaults.
type RunInput struct {
	Settings SettingsOverrides `json:"settings" yaml:"settings"`
	Messages []Message         `json:"messages" yaml:"messages"`
}

// Resolve builds the immutable RunRequest for in.
func (in RunInput) Resolve(defaults ProviderSettings) RunRequest {
	return RunRequest{
		Settings: in.Settings.Resolve(defaults),
		Messages: in.Messages,
	}
}

// MaxAttempts is max(retryCount+1, number of keys); the CLI agent gets one attempt.
func (s ProviderSettings) MaxAttempts() int {
	if s.Kind == ProviderCLIAgent {
		return 1
	}
	attempts := s.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	if keys := len(s.APIKeys()); keys > attempts {
		attempts = keys
	}
	return attempts
}

// Timeout returns the per-attempt timeout; zero disables it.
func (s ProviderSettings) Timeout() time.Duration {
	if s.RequestTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
