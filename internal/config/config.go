// internal/config/config.go
//
// This package handles configuration and the client home directory.
// Every user of adaapt gets a ~/.adaapt/ folder (or $ADAAPT_HOME) holding
// config.yaml, the persisted session and the rotating logs.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// HomeDirName is the directory created under the user's home directory.
	HomeDirName = ".adaapt"

	// DefaultBaseURL points at a locally running knowledge API.
	DefaultBaseURL = "http://localhost:8000/api/v1"
	// DefaultQueryPath is the answering endpoint relative to the base URL.
	DefaultQueryPath = "/query"
	// DefaultTimeout bounds every request so no workflow stays pending forever.
	DefaultTimeout = 60 * time.Second
	// DefaultLogLevel is used when logging.level is empty or unknown.
	DefaultLogLevel = "info"
)

// DefaultSuggestedPrompts are offered on the Ask AI screen before the first question.
var DefaultSuggestedPrompts = []string{
	"What is the relationship between different types of promotions and...",
	"Who are the top sales promoters based on sales amount?",
	"Which clusters have the highest average sale amount?",
}

const defaultClientConfigYAML = `# adaapt client configuration
version: 1

api:
  # Base URL of the knowledge API. ADAAPT_API_URL overrides this value.
  base_url: http://localhost:8000/api/v1
  # Per-request timeout. ADAAPT_API_TIMEOUT overrides this value.
  timeout: 60s
  # Answering endpoint, relative to base_url.
  query_path: /query

ui:
  # Prompts shown on the Ask AI screen before the first question.
  suggested_prompts:
    - "What is the relationship between different types of promotions and..."
    - "Who are the top sales promoters based on sales amount?"
    - "Which clusters have the highest average sale amount?"

logging:
  # debug, info, warn or error. ADAAPT_LOG_LEVEL overrides this value.
  level: info
`

// APIConfig describes how to reach the remote knowledge API.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	QueryPath string        `yaml:"query_path"`
}

// UIConfig captures presentation preferences.
type UIConfig struct {
	SuggestedPrompts []string `yaml:"suggested_prompts,omitempty"`
}

// LoggingConfig controls the rotating log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ClientConfig models config.yaml.
type ClientConfig struct {
	Version int           `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
}

// Config holds the runtime configuration for adaapt.
type Config struct {
	// Home is the client home directory (~/.adaapt unless overridden)
	Home string

	Client ClientConfig
}

// ResolveHome picks the client home directory. An explicit value wins, then
// $ADAAPT_HOME, then ~/.adaapt.
func ResolveHome(explicit string) (string, error) {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return filepath.Abs(trimmed)
	}
	if env := strings.TrimSpace(os.Getenv("ADAAPT_HOME")); env != "" {
		return filepath.Abs(env)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home: %w", err)
	}
	return filepath.Join(userHome, HomeDirName), nil
}

// InitHome creates the home directory structure.
//
// Structure created:
// ~/.adaapt/
// ├── config.yaml
// ├── logs/     <- adaapt.log (rotated) and journey.log
// └── state/    <- session.yaml
func InitHome(home string) error {
	dirs := []string{
		home,
		filepath.Join(home, "logs"),
		filepath.Join(home, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureClientConfig(filepath.Join(home, "config.yaml"))
}

// Load reads config.yaml from home and applies environment overrides.
func Load(home string) (*Config, error) {
	cfg := &Config{
		Home:   home,
		Client: defaultClientConfig(),
	}
	if err := cfg.loadClientConfig(); err != nil {
		return nil, err
	}
	cfg.Client.applyEnvOverrides()
	cfg.Client.normalize()
	if err := cfg.Client.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.Home, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.Home, "state")
}

// SessionPath returns the durable location of the session tokens.
func (c *Config) SessionPath() string {
	return filepath.Join(c.StateDir(), "session.yaml")
}

// LogFilePath returns the rotating structured log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "adaapt.log")
}

// JourneyPath returns the human-readable logbook shown in the TUI.
func (c *Config) JourneyPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// ConfigPath returns the on-disk location for config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Home, "config.yaml")
}

// SetBaseURL overrides the API base URL for this process only.
func (c *Config) SetBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	c.Client.API.BaseURL = raw
	c.Client.normalize()
	return c.Client.validate()
}

// SuggestedPrompts returns the configured prompts or the defaults.
func (c *Config) SuggestedPrompts() []string {
	if len(c.Client.UI.SuggestedPrompts) == 0 {
		return append([]string(nil), DefaultSuggestedPrompts...)
	}
	return append([]string(nil), c.Client.UI.SuggestedPrompts...)
}

func (c *Config) loadClientConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultClientConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	c.Client = parsed
	return nil
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Version: 1,
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			Timeout:   DefaultTimeout,
			QueryPath: DefaultQueryPath,
		},
		Logging: LoggingConfig{Level: DefaultLogLevel},
	}
}

func (cc *ClientConfig) applyDefaults() {
	if cc.Version == 0 {
		cc.Version = 1
	}
	if cc.API.Timeout <= 0 {
		cc.API.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cc.API.QueryPath) == "" {
		cc.API.QueryPath = DefaultQueryPath
	}
	if strings.TrimSpace(cc.Logging.Level) == "" {
		cc.Logging.Level = DefaultLogLevel
	}
}

func (cc *ClientConfig) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("ADAAPT_API_URL")); value != "" {
		cc.API.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("ADAAPT_API_TIMEOUT")); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			cc.API.Timeout = d
		} else if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			cc.API.Timeout = time.Duration(secs) * time.Second
		}
	}
	if value := strings.TrimSpace(os.Getenv("ADAAPT_LOG_LEVEL")); value != "" {
		cc.Logging.Level = value
	}
}

func (cc *ClientConfig) normalize() {
	cc.API.BaseURL = strings.TrimRight(strings.TrimSpace(cc.API.BaseURL), "/")
	if cc.API.BaseURL == "" {
		cc.API.BaseURL = DefaultBaseURL
	}
	cc.API.QueryPath = strings.TrimSpace(cc.API.QueryPath)
	if cc.API.QueryPath == "" {
		cc.API.QueryPath = DefaultQueryPath
	}
	if !strings.HasPrefix(cc.API.QueryPath, "/") {
		cc.API.QueryPath = "/" + cc.API.QueryPath
	}
	cc.Logging.Level = strings.ToLower(strings.TrimSpace(cc.Logging.Level))
	prompts := cc.UI.SuggestedPrompts[:0]
	for _, p := range cc.UI.SuggestedPrompts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			prompts = append(prompts, trimmed)
		}
	}
	cc.UI.SuggestedPrompts = prompts
}

func (cc *ClientConfig) validate() error {
	if cc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	u, err := url.Parse(cc.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url must include a host")
	}
	if cc.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	switch cc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

func ensureClientConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultClientConfigYAML), 0o644)
}
