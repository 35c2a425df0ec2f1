// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// LegacyConfigPath is the path to the configuration file used in previous versions.
	LegacyConfigPath = "config.json"
	// defaultRequestTimeout is the default timeout for HTTP requests.
	defaultRequestTimeout = 600 * time.Second
	// DefaultHostURL is the inference server targeted when the config names none.
	DefaultHostURL = "http://localhost:11434"
	// DefaultModel is measured when no models are given.
	DefaultModel = "llama3.1:latest"
	// DefaultPrompt is sent when no prompts are given.
	DefaultPrompt = "Tell me a joke"
)

// Config represents the top-level application configuration.
type Config struct {
	Host           string   `json:"host,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	Models         []string `json:"models,omitempty"`
	Prompts        []string `json:"prompts,omitempty"`
	Repeats        int      `json:"repeats,omitempty"`
	Verbose        bool     `json:"verbose"`
	Debug          bool     `json:"debug"`
	JSONRecords    bool     `json:"json"`
	TUIMode        bool     `json:"tui"`
	UnloadAfter    bool     `json:"unload"`
	PromptFile     string   `json:"promptFile,omitempty"`
	TimeoutSeconds int      `json:"timeout,omitempty"`
	LogFile        string   `json:"logFile,omitempty"`
	ConfigPath     string   `json:"-"`
}

// Host identifies a single inference server endpoint.
type Host struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "tachys.log"
}

// HostURL returns the configured inference server URL, applying the default if not set.
func (c Config) HostURL() string {
	if u := strings.TrimSpace(c.Host); u != "" {
		return strings.TrimRight(u, "/")
	}
	return DefaultHostURL
}

// ProviderName returns the normalized backend name, defaulting to "ollama".
func (c Config) ProviderName() string {
	if p := strings.ToLower(strings.TrimSpace(c.Provider)); p != "" {
		return p
	}
	return "ollama"
}

// TargetHost resolves the configured host into a Host value with a display name.
func (c Config) TargetHost() Host {
	raw := c.HostURL()
	name := raw
	if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
		name = parsed.Host
	}
	return Host{Name: name, URL: raw}
}

// ModelList returns the models to measure, applying the default if none are set.
func (c Config) ModelList() []string {
	if len(c.Models) > 0 {
		return c.Models
	}
	return []string{DefaultModel}
}

// PromptList returns the prompts to send, applying the default if none are set.
func (c Config) PromptList() []string {
	if len(c.Prompts) > 0 {
		return c.Prompts
	}
	return []string{DefaultPrompt}
}

// Validate checks cross-field constraints the schema cannot express.
func (c Config) Validate() error {
	if c.Repeats < 1 {
		return fmt.Errorf("invalid configuration: repeats must be at least 1 (got %d)", c.Repeats)
	}
	switch c.ProviderName() {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("invalid configuration: unknown provider %q (want ollama or llamacpp)", c.Provider)
	}
	if c.TUIMode && c.Verbose {
		return errors.New("invalid configuration: only one of tui or verbose can be enabled")
	}
	return nil
}

// Load reads the application configuration from the specified path, with fallback to a legacy path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err == nil {
		config.ConfigPath = path
		return config, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		if path == DefaultConfigPath {
			config, legacyErr := loadFromPath(LegacyConfigPath)
			if legacyErr == nil {
				config.ConfigPath = LegacyConfigPath
				return config, nil
			}
			if errors.Is(legacyErr, os.ErrNotExist) {
				return Config{}, fmt.Errorf("no configuration file found (searched %q and %q)", DefaultConfigPath, LegacyConfigPath)
			}
			return Config{}, fmt.Errorf("could not read config file %q: %w", LegacyConfigPath, legacyErr)
		}
		return Config{}, fmt.Errorf("no configuration file found at %q", path)
	}

	return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := ValidateBytes(data); err != nil {
		return Config{}, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
