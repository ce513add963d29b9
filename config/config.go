// Package config loads endpoint configuration from YAML or TOML files and builds
// the adapter registry, transport and endpoints it describes.
//
// Values of the form ${NAME} are expanded from the environment after the optional
// .env files were loaded, so keys never need to live in the file itself.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "confab.yaml"
	DefaultTimeout    = 2 * time.Minute
	DefaultUserAgent  = "confab"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

// Config is the root of a configuration file.
type Config struct {
	Log LogConfig `yaml:"log" toml:"log"`
	// Default names the provider Endpoint uses when called with an empty name.
	Default   string                    `yaml:"default" toml:"default"`
	Timeout   time.Duration             `yaml:"timeout" toml:"timeout"`
	UserAgent string                    `yaml:"user_agent" toml:"user_agent"`
	Headers   map[string]string         `yaml:"headers" toml:"headers"`
	Providers map[string]ProviderConfig `yaml:"providers" toml:"providers"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	// Format is one of text, json, zerolog or console.
	Format string `yaml:"format" toml:"format"`
}

// ProviderConfig configures one registered adapter. The map key of the provider
// becomes its ID.
type ProviderConfig struct {
	// Kind selects the adapter family and defaults to the provider name.
	Kind    string            `yaml:"kind" toml:"kind"`
	APIKey  string            `yaml:"api_key" toml:"api_key"`
	BaseURL string            `yaml:"base_url" toml:"base_url"`
	Model   string            `yaml:"model" toml:"model"`
	Headers map[string]string `yaml:"headers" toml:"headers"`
	// KeepAlive and ContextLength only apply to ollama.
	KeepAlive     string `yaml:"keep_alive" toml:"keep_alive"`
	ContextLength int    `yaml:"context_length" toml:"context_length"`
	// MaxTokens is the anthropic default for requests without a limit.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Load reads the configuration at path. The format follows the file extension:
// .toml is TOML, anything else YAML. envFiles are loaded into the environment
// first; missing env files are ignored, an empty list tries ".env".
func Load(path string, envFiles ...string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	if err := loadEnv(envFiles...); err != nil {
		return Config{}, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	f, err := os.Open(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}
	defer f.Close()

	cfg, err := Parse(f, formatOf(absPath))
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// Format is the encoding of a configuration document.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML
	}
	return YAML
}

// Parse decodes a configuration document, expands environment references and
// validates the result.
func Parse(r io.Reader, format Format) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	data = []byte(os.Expand(string(data), lookupEnv))

	cfg := defaults()
	switch format {
	case TOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return Config{}, err
		}
	case YAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unknown config format %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// lookupEnv leaves unknown references untouched so literal dollar signs survive.
func lookupEnv(name string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return "${" + name + "}"
}

func loadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "zerolog", "console":
	default:
		return fmt.Errorf("log.format %q must be one of text, json, zerolog or console", c.Log.Format)
	}
	if c.Default != "" {
		if _, ok := c.Providers[c.Default]; !ok {
			return fmt.Errorf("default provider %q is not configured", c.Default)
		}
	}
	for name, p := range c.Providers {
		if err := validateProvider(name, p); err != nil {
			return err
		}
	}
	for key := range c.Headers {
		if !isCanonicalHTTPHeader(key) {
			return fmt.Errorf("header %q is not a valid HTTP header name", key)
		}
	}
	return nil
}

func validateProvider(name string, p ProviderConfig) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("provider name must not be empty")
	}
	kind := p.kind(name)
	if !slices.Contains(kinds, kind) {
		return fmt.Errorf("provider %s: kind %q must be one of %s", name, kind, strings.Join(kinds, ", "))
	}
	if kind == kindCompat && strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url is required for compat providers", name)
	}
	if !isOpenAIFamily(kind) {
		if kind != name {
			return fmt.Errorf("provider %s: %s adapters can only be registered as %q", name, kind, kind)
		}
		if len(p.Headers) > 0 {
			return fmt.Errorf("provider %s: headers are only supported for openai compatible providers", name)
		}
	}
	for key := range p.Headers {
		if !isCanonicalHTTPHeader(key) {
			return fmt.Errorf("provider %s: header %q is not a valid HTTP header name", name, key)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}
	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Logger builds the logger described by the log section.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	level := slogx.ParseLevel(c.Level)
	switch strings.ToLower(c.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case "zerolog":
		return slogx.NewZerolog(w, level, false)
	case "console":
		return slogx.NewZerolog(w, level, true)
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}
