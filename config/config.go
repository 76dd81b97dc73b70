// Package config provides configuration management for the assure chat relay.
// It covers the HTTP server, the completion provider, prompt content, upload
// limits, CORS, admission control, and logging.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default completion endpoint and model. They are the values the assistant
// was built against; both can be overridden in the llm section.
const (
	DefaultProvider = "openai-compatible"
	DefaultEndpoint = "https://api.sea-lion.ai/v1"
	DefaultModel    = "aisingapore/Gemma-SEA-LION-v3-9B-IT"

	// APIKeyEnv is the environment variable holding the completion API credential.
	APIKeyEnv = "API_KEY"
)

var validate = validator.New()

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Prompt         PromptConfig         `yaml:"prompt"`
	Chat           ChatConfig           `yaml:"chat"`
	Uploads        UploadConfig         `yaml:"uploads"`
	CORS           CORSConfig           `yaml:"cors"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Queue          QueueConfig          `yaml:"queue"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8000)
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including uploaded files (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must outlast llm.timeout (default: 90s)
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" validate:"gte=0"`

	// ShutdownTimeout specifies how long to wait for in-flight requests
	// during graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// LLMConfig holds completion provider configuration.
type LLMConfig struct {
	// Provider selects the backend: "openai-compatible", "gemini", "echo",
	// or any provider name understood by gollm ("openai", "anthropic", "ollama", ...)
	Provider string `yaml:"provider" validate:"required"`

	// Model is the model identifier sent with every completion
	Model string `yaml:"model" validate:"required"`

	// APIKey is the provider credential. Use ${API_KEY} rather than a literal.
	APIKey string `yaml:"api_key"`

	// Endpoint is the API base URL for openai-compatible and gemini backends
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// Timeout bounds a single completion call (default: 60s)
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// MaxContextTokens rejects prompts larger than this many tokens.
	// Zero disables the check.
	MaxContextTokens int `yaml:"max_context_tokens" validate:"gte=0"`

	// Temperature is passed to the provider when set
	Temperature *float64 `yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`

	// MaxTokens caps the completion length when set
	MaxTokens int `yaml:"max_tokens" validate:"gte=0"`
}

// RequiresAPIKey reports whether the configured provider needs a credential.
func (c LLMConfig) RequiresAPIKey() bool {
	switch c.Provider {
	case "echo", "ollama":
		return false
	default:
		return true
	}
}

// PromptConfig holds the prompt content sent to the model.
type PromptConfig struct {
	// System is the system instruction. Empty means DefaultSystemPrompt.
	System string `yaml:"system"`

	// SystemFile loads the system instruction from a file. It wins over System
	// and is watched for changes together with the config file.
	SystemFile string `yaml:"system_file"`

	// UserTemplate is a text/template rendering the user message from
	// .ProfileSummary, .FilesSummary and .Message. Empty means DefaultUserTemplate.
	UserTemplate string `yaml:"user_template"`
}

// ChatConfig controls the /chat endpoint.
type ChatConfig struct {
	// LogRequests emits one structured record per request with the message,
	// the non-empty profile fields and the uploaded file manifest.
	LogRequests bool `yaml:"log_requests"`
}

// UploadConfig bounds multipart form parsing.
type UploadConfig struct {
	// MaxRequestBytes caps the whole request body (default: 50MB)
	MaxRequestBytes int64 `yaml:"max_request_bytes" validate:"gt=0"`

	// MaxMemory is the portion of the form kept in memory before
	// spilling to temporary files (default: 32MB)
	MaxMemory int64 `yaml:"max_memory" validate:"gt=0"`

	// MaxFiles caps the number of file parts. Zero means unlimited.
	MaxFiles int `yaml:"max_files" validate:"gte=0"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age" validate:"gte=0"`
}

// RateLimitConfig defines a per-client token bucket in front of /chat.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"required_if=Enabled true,gte=0"`
	Burst             int  `yaml:"burst" validate:"required_if=Enabled true,gte=0"`
}

// QueueConfig defines the FIFO admission queue in front of /chat.
type QueueConfig struct {
	// Enabled determines if the queue middleware is active
	Enabled bool `yaml:"enabled"`

	// MaxConcurrent is the number of chat requests processed at once
	MaxConcurrent int `yaml:"max_concurrent" validate:"required_if=Enabled true,gte=0"`

	// MaxWaiting is the number of requests allowed to wait for a slot
	MaxWaiting int `yaml:"max_waiting" validate:"gte=0"`

	// MaxWait bounds the time a request waits for a slot. Zero leaves the
	// wait bounded only by the server write budget.
	MaxWait time.Duration `yaml:"max_wait"`
}

// CircuitBreakerConfig configures the breaker around completion calls.
type CircuitBreakerConfig struct {
	// MaxRequests is the number of requests allowed through in half-open state
	MaxRequests uint32 `yaml:"max_requests" validate:"gt=0"`

	// Interval is the cyclic period of the closed state after which
	// failure counts are cleared
	Interval time.Duration `yaml:"interval" validate:"gte=0"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// FailureThreshold is the number of consecutive failures needed to trip
	FailureThreshold uint32 `yaml:"failure_threshold" validate:"gt=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" validate:"oneof=json text"`

	// File additionally writes logs to a rotating file when set
	File string `yaml:"file"`

	MaxSizeMB  int  `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int  `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool `yaml:"compress"`
}

// DefaultConfig returns a configuration that runs the assistant against the
// default endpoint with fully open CORS, matching local frontend development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:         DefaultProvider,
			Model:            DefaultModel,
			Endpoint:         DefaultEndpoint,
			Timeout:          60 * time.Second,
			MaxContextTokens: 8192,
		},
		Uploads: UploadConfig{
			MaxRequestBytes: 50 << 20,
			MaxMemory:       32 << 20,
			MaxFiles:        20,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"*"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           600,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 30,
			Burst:             10,
		},
		Queue: QueueConfig{
			Enabled:       false,
			MaxConcurrent: 8,
			MaxWaiting:    64,
			MaxWait:       20 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// LoadFile loads configuration from a YAML file.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// LoadFileOrDefault behaves like LoadFile but falls back to the defaults,
// with environment resolution, when filename does not exist.
func LoadFileOrDefault(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.finalize(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return LoadFile(filename)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. A reference
// that is opened but never closed is a syntax error.
//
//	"${PORT:-8000}" → "8000" when PORT is unset or empty
func expandEnvVars(s string) (string, error) {
	if err := checkEnvSyntax(s); err != nil {
		return "", err
	}

	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	}), nil
}

func checkEnvSyntax(s string) error {
	for i := 0; i < len(s)-1; i++ {
		if s[i] != '$' || s[i+1] != '{' {
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			return fmt.Errorf("unterminated variable reference at offset %d", i)
		}
		if end == 0 {
			return fmt.Errorf("empty variable reference at offset %d", i)
		}
		i += end + 2
	}
	return nil
}

// Load loads configuration from an io.Reader on top of DefaultConfig.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	config := DefaultConfig()

	dec := yaml.NewDecoder(strings.NewReader(expandedData))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.finalize(); err != nil {
		return nil, err
	}
	return config, nil
}

// finalize fills values that depend on the environment or other files, then
// validates the result.
func (c *Config) finalize() error {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(APIKeyEnv)
	}

	if c.Prompt.SystemFile != "" {
		content, err := os.ReadFile(c.Prompt.SystemFile)
		if err != nil {
			return fmt.Errorf("read system prompt file: %w", err)
		}
		c.Prompt.System = strings.TrimSpace(string(content))
	}
	if strings.TrimSpace(c.Prompt.System) == "" {
		c.Prompt.System = DefaultSystemPrompt
	}
	if strings.TrimSpace(c.Prompt.UserTemplate) == "" {
		c.Prompt.UserTemplate = DefaultUserTemplate
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if c.LLM.RequiresAPIKey() && c.LLM.APIKey == "" {
		return fmt.Errorf("llm provider %q requires an API key: set llm.api_key or %s", c.LLM.Provider, APIKeyEnv)
	}
	if c.Uploads.MaxMemory > c.Uploads.MaxRequestBytes {
		return fmt.Errorf("uploads.max_memory (%d) exceeds uploads.max_request_bytes (%d)",
			c.Uploads.MaxMemory, c.Uploads.MaxRequestBytes)
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.LLM.Timeout {
		return fmt.Errorf("server.write_timeout (%v) must exceed llm.timeout (%v)",
			c.Server.WriteTimeout, c.LLM.Timeout)
	}
	if c.Queue.MaxWait < 0 {
		return fmt.Errorf("queue.max_wait (%v) must not be negative", c.Queue.MaxWait)
	}
	if c.Queue.Enabled && c.Server.WriteTimeout > 0 && c.Queue.MaxWait > 0 &&
		c.Queue.MaxWait+c.LLM.Timeout >= c.Server.WriteTimeout {
		return fmt.Errorf("queue.max_wait (%v) plus llm.timeout (%v) must stay under server.write_timeout (%v)",
			c.Queue.MaxWait, c.LLM.Timeout, c.Server.WriteTimeout)
	}
	if err := ValidateUserTemplate(c.Prompt.UserTemplate); err != nil {
		return err
	}

	return nil
}
