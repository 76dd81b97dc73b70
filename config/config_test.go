package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadValidConfig(t *testing.T) {
	yamlConfig := `
server:
  port: 9090
  read_timeout: 45s
  write_timeout: 120s
  shutdown_timeout: 10s

llm:
  provider: openai-compatible
  model: my-model
  api_key: sk-test
  endpoint: https://llm.example.com/v1
  timeout: 20s
  temperature: 0.3
  max_tokens: 512

uploads:
  max_files: 3

chat:
  log_requests: true

logging:
  level: debug
  format: text
`

	config, err := Load(strings.NewReader(yamlConfig))
	if err != nil {
		t.Fatalf("Failed to load valid config: %v", err)
	}

	if config.Server.Port != 9090 {
		t.Errorf("unexpected port: got %d, want %d", config.Server.Port, 9090)
	}
	if config.Server.ReadTimeout != 45*time.Second {
		t.Errorf("unexpected read timeout: got %v, want %v", config.Server.ReadTimeout, 45*time.Second)
	}
	if config.LLM.Model != "my-model" {
		t.Errorf("unexpected model: got %s, want %s", config.LLM.Model, "my-model")
	}
	if config.LLM.Temperature == nil || *config.LLM.Temperature != 0.3 {
		t.Errorf("unexpected temperature: got %v, want 0.3", config.LLM.Temperature)
	}
	if config.LLM.MaxTokens != 512 {
		t.Errorf("unexpected max tokens: got %d, want %d", config.LLM.MaxTokens, 512)
	}
	if config.Uploads.MaxFiles != 3 {
		t.Errorf("unexpected max files: got %d, want %d", config.Uploads.MaxFiles, 3)
	}
	// Unset sections keep their defaults.
	if config.Uploads.MaxRequestBytes != 50<<20 {
		t.Errorf("unexpected max request bytes: got %d, want %d", config.Uploads.MaxRequestBytes, 50<<20)
	}
	if !config.Chat.LogRequests {
		t.Error("expected log_requests to be enabled")
	}
	if config.Logging.Format != "text" {
		t.Errorf("unexpected log format: got %s, want %s", config.Logging.Format, "text")
	}
	if config.Prompt.System != DefaultSystemPrompt {
		t.Error("expected default system prompt when none is configured")
	}
	if config.Prompt.UserTemplate != DefaultUserTemplate {
		t.Error("expected default user template when none is configured")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-test")

	tests := []struct {
		name   string
		config string
		want   string
	}{
		{
			name: "invalid port",
			config: `
server:
  port: -1
`,
			want: "Config.Server.Port",
		},
		{
			name: "invalid log level",
			config: `
logging:
  level: invalid
`,
			want: "Config.Logging.Level",
		},
		{
			name: "empty provider",
			config: `
llm:
  provider: ""
`,
			want: "Config.LLM.Provider",
		},
		{
			name: "unknown field",
			config: `
llm:
  system_prompt: "hello"
`,
			want: "system_prompt",
		},
		{
			name: "write timeout shorter than llm timeout",
			config: `
server:
  write_timeout: 10s
llm:
  timeout: 30s
`,
			want: "must exceed llm.timeout",
		},
		{
			name: "queue wait leaves no room for the completion",
			config: `
server:
  write_timeout: 90s
llm:
  timeout: 60s
queue:
  enabled: true
  max_wait: 30s
`,
			want: "queue.max_wait",
		},
		{
			name: "negative queue wait",
			config: `
queue:
  max_wait: -1s
`,
			want: "must not be negative",
		},
		{
			name: "max memory above request limit",
			config: `
uploads:
  max_request_bytes: 1024
  max_memory: 2048
`,
			want: "uploads.max_memory",
		},
		{
			name: "broken user template",
			config: `
prompt:
  user_template: "{{.Message"
`,
			want: "parse user template",
		},
		{
			name: "unknown template field",
			config: `
prompt:
  user_template: "{{.Profile}}"
`,
			want: "execute user template",
		},
		{
			name: "missing system prompt file",
			config: `
prompt:
  system_file: /nonexistent/system.txt
`,
			want: "read system prompt file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.config))
			if err == nil {
				t.Error("expected error, got nil")
			} else if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("unexpected error: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Port != 8000 {
		t.Errorf("unexpected default port: got %d, want %d", config.Server.Port, 8000)
	}
	if config.LLM.Provider != DefaultProvider {
		t.Errorf("unexpected default provider: got %s, want %s", config.LLM.Provider, DefaultProvider)
	}
	if config.LLM.Model != "aisingapore/Gemma-SEA-LION-v3-9B-IT" {
		t.Errorf("unexpected default model: got %s", config.LLM.Model)
	}
	if config.LLM.Endpoint != "https://api.sea-lion.ai/v1" {
		t.Errorf("unexpected default endpoint: got %s", config.LLM.Endpoint)
	}
	if !config.CORS.AllowCredentials || len(config.CORS.AllowedOrigins) != 1 || config.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("expected fully open CORS with credentials, got %+v", config.CORS)
	}
	if config.Queue.MaxWait+config.LLM.Timeout >= config.Server.WriteTimeout {
		t.Errorf("default queue wait %v and llm timeout %v exceed write timeout %v",
			config.Queue.MaxWait, config.LLM.Timeout, config.Server.WriteTimeout)
	}
	if config.Logging.Level != "info" {
		t.Errorf("unexpected default log level: got %s, want %s", config.Logging.Level, "info")
	}
}

func TestAPIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-from-env")

	config, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Failed to load empty config: %v", err)
	}
	if config.LLM.APIKey != "sk-from-env" {
		t.Errorf("unexpected api key: got %q, want %q", config.LLM.APIKey, "sk-from-env")
	}
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	_, err := Load(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "requires an API key") {
		t.Fatalf("expected missing api key error, got %v", err)
	}

	// The echo provider runs without a credential.
	config, err := Load(strings.NewReader("llm:\n  provider: echo\n"))
	if err != nil {
		t.Fatalf("echo provider should not need an api key: %v", err)
	}
	if config.LLM.APIKey != "" {
		t.Errorf("unexpected api key: got %q", config.LLM.APIKey)
	}
}

func TestSystemPromptFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-test")

	dir := t.TempDir()
	promptPath := filepath.Join(dir, "system.txt")
	if err := os.WriteFile(promptPath, []byte("\n  Only talk about car insurance.  \n"), 0644); err != nil {
		t.Fatalf("Failed to write prompt file: %v", err)
	}

	config, err := Load(strings.NewReader("prompt:\n  system: ignored\n  system_file: " + promptPath + "\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Prompt.System != "Only talk about car insurance." {
		t.Errorf("unexpected system prompt: got %q", config.Prompt.System)
	}
}

func TestLoadFileOrDefault(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-test")

	config, err := LoadFileOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for a missing file, got %v", err)
	}
	if config.Server.Port != 8000 {
		t.Errorf("unexpected port: got %d, want %d", config.Server.Port, 8000)
	}
	if config.LLM.APIKey != "sk-test" {
		t.Errorf("unexpected api key: got %q", config.LLM.APIKey)
	}

	path := filepath.Join(t.TempDir(), "assure.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8123\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	config, err = LoadFileOrDefault(path)
	if err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}
	if config.Server.Port != 8123 {
		t.Errorf("unexpected port: got %d, want %d", config.Server.Port, 8123)
	}
}

func TestDefaultUserTemplateLayout(t *testing.T) {
	if err := ValidateUserTemplate(DefaultUserTemplate); err != nil {
		t.Fatalf("default template is invalid: %v", err)
	}
	if !strings.HasPrefix(DefaultUserTemplate, "User Profile Information:\n") {
		t.Errorf("unexpected template prefix: %q", DefaultUserTemplate)
	}
	if !strings.HasSuffix(DefaultUserTemplate, "\n\nUser Query:\n{{.Message}}") {
		t.Errorf("unexpected template suffix: %q", DefaultUserTemplate)
	}
}
