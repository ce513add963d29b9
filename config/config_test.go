package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/confab/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
log:
  level: debug
  format: zerolog
default: local
timeout: 30s
headers:
  X-Team: research
providers:
  openai:
    api_key: ${CONFAB_TEST_OPENAI_KEY}
    model: gpt-4o-mini
  local:
    kind: ollama
    base_url: http://gpu-box:11434
    model: llama3.2
  ollama:
    base_url: http://gpu-box:11434
    keep_alive: 5m
    model: llama3.2
  together:
    kind: compat
    base_url: https://api.together.xyz/v1
    api_key: secret
    headers:
      X-Org: lab
`

const tomlDoc = `
default = "openai"
timeout = "45s"

[log]
level = "warn"

[providers.openai]
api_key = "${CONFAB_TEST_OPENAI_KEY}"
model = "gpt-4o"
base_url = "https://proxy.internal/v1"

[providers.anthropic]
max_tokens = 2048
model = "claude-sonnet-4-5"
`

func TestParse_YAML(t *testing.T) {
	t.Setenv("CONFAB_TEST_OPENAI_KEY", "sk-test")

	// the local alias of ollama is not a valid registration
	_, err := Parse(strings.NewReader(yamlDoc), YAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local")

	doc := strings.Replace(yamlDoc, "default: local", "default: ollama", 1)
	doc = strings.Replace(doc, "  local:\n    kind: ollama\n    base_url: http://gpu-box:11434\n    model: llama3.2\n", "", 1)
	cfg, err := Parse(strings.NewReader(doc), YAML)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "5m", cfg.Providers["ollama"].KeepAlive)
	assert.Equal(t, map[string]string{"X-Org": "lab"}, cfg.Providers["together"].Headers)
}

func TestParse_TOML(t *testing.T) {
	t.Setenv("CONFAB_TEST_OPENAI_KEY", "sk-toml")

	cfg, err := Parse(strings.NewReader(tomlDoc), TOML)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, "sk-toml", cfg.Providers["openai"].APIKey)
	assert.Equal(t, 2048, cfg.Providers["anthropic"].MaxTokens)
}

func TestParse_UnknownEnvIsKept(t *testing.T) {
	cfg, err := Parse(strings.NewReader("providers:\n  openai:\n    api_key: ${CONFAB_TEST_UNSET_VARIABLE}\n"), YAML)
	require.NoError(t, err)
	assert.Equal(t, "${CONFAB_TEST_UNSET_VARIABLE}", cfg.Providers["openai"].APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "unknown kind", doc: "providers:\n  foo:\n    kind: bar\n", want: "kind"},
		{name: "compat without base url", doc: "providers:\n  foo:\n    kind: compat\n", want: "base_url"},
		{name: "headers on anthropic", doc: "providers:\n  anthropic:\n    headers:\n      X-A: b\n", want: "headers"},
		{name: "bad header name", doc: "headers:\n  \"bad header\": x\n", want: "header"},
		{name: "missing default", doc: "default: openai\n", want: "default provider"},
		{name: "negative timeout", doc: "timeout: -1s\n", want: "timeout"},
		{name: "bad log format", doc: "log:\n  format: xml\n", want: "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc), YAML)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONFAB_TEST_DOTENV_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CONFAB_TEST_DOTENV_KEY") })

	path := filepath.Join(dir, "confab.toml")
	require.NoError(t, os.WriteFile(path, []byte("[providers.groq]\napi_key = \"${CONFAB_TEST_DOTENV_KEY}\"\n"), 0o600))

	cfg, err := Load(path, envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Providers["groq"].APIKey)

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
providers:
  openai:
    base_url: https://proxy.internal/v1
  my-groq:
    kind: groq
  together:
    kind: compat
    base_url: https://api.together.xyz/v1
  ollama:
    base_url: http://gpu-box:11434
`), YAML)
	require.NoError(t, err)

	reg, err := cfg.Registry()
	require.NoError(t, err)

	a, err := reg.Lookup(provider.OpenAI)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.internal/v1/chat/completions", a.ResolveURL(provider.EndpointChat, "gpt-4o"))

	a, err = reg.Lookup("together")
	require.NoError(t, err)
	assert.Equal(t, provider.ID("together"), a.ID())
	assert.Equal(t, "https://api.together.xyz/v1/chat/completions", a.ResolveURL(provider.EndpointChat, "m"))

	a, err = reg.Lookup("my-groq")
	require.NoError(t, err)
	assert.Equal(t, provider.ID("my-groq"), a.ID())

	a, err = reg.Lookup(provider.Ollama)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434/api/chat", a.ResolveURL(provider.EndpointChat, "llama3.2"))

	// built-ins that were not configured stay available
	_, err = reg.Lookup(provider.Anthropic)
	assert.NoError(t, err)
}

func TestEndpointAndConversation(t *testing.T) {
	cfg, err := Parse(strings.NewReader("default: ollama\nproviders:\n  ollama:\n    model: llama3.2\n"), YAML)
	require.NoError(t, err)

	ep, err := cfg.Endpoint("")
	require.NoError(t, err)
	assert.Equal(t, provider.Ollama, ep.Provider())

	conv, err := cfg.Conversation("")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", conv.RequestParameters().Model)

	_, err = cfg.Endpoint("missing")
	assert.Error(t, err)
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	log := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	log.Info("dropped")
	assert.Zero(t, buf.Len())
	log.Warn("kept", slog.Int("n", 1))
	assert.Contains(t, buf.String(), `"msg":"kept"`)

	buf.Reset()
	log = LogConfig{Level: "debug", Format: "zerolog"}.Logger(&buf)
	log.Debug("zero")
	assert.Contains(t, buf.String(), `"message":"zero"`)
}
