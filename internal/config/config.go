// Package config loads and manages the Lucky client configuration file
// stored at ~/.lucky/config.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the directory under the user's home for client state.
const DefaultConfigDir = ".lucky"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

// DefaultAPIBaseURL is the production loyalty backend.
const DefaultAPIBaseURL = "https://apis.luckylunricants.in/api"

// DefaultSupportNumber is the WhatsApp number product orders are routed to.
const DefaultSupportNumber = "+919876543210"

// Environment overrides, applied after the file is read.
const (
	EnvAPIURL        = "LUCKY_API_URL"
	EnvStateDir      = "LUCKY_STATE_DIR"
	EnvLogLevel      = "LUCKY_LOG_LEVEL"
	EnvSupportNumber = "LUCKY_SUPPORT_NUMBER"
)

// Scanner holds voucher capture tuning.
type Scanner struct {
	FrameRate       int           `yaml:"frame_rate"`
	ConfirmDelay    time.Duration `yaml:"confirm_delay"`
	ErrorClearDelay time.Duration `yaml:"error_clear_delay"`
}

// Config represents the contents of ~/.lucky/config.yaml.
type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	StateDir       string        `yaml:"state_dir"`
	SupportNumber  string        `yaml:"support_number"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ToastDuration  time.Duration `yaml:"toast_duration"`
	LogLevel       string        `yaml:"log_level"`
	LogDir         string        `yaml:"log_dir,omitempty"`
	Scanner        Scanner       `yaml:"scanner"`
}

// configDir returns the path to the config directory.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// Path returns the full path to the default config file.
func Path() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load reads the config from ~/.lucky/config.yaml after loading a .env file from
// the working directory, if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Returns defaults if the file doesn't exist.
// Environment overrides are applied in both cases.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		APIBaseURL:     DefaultAPIBaseURL,
		SupportNumber:  DefaultSupportNumber,
		RequestTimeout: 15 * time.Second,
		ToastDuration:  5 * time.Second,
		LogLevel:       "info",
		Scanner: Scanner{
			FrameRate:       60,
			ConfirmDelay:    800 * time.Millisecond,
			ErrorClearDelay: 3 * time.Second,
		},
	}
	if dir, err := configDir(); err == nil {
		cfg.StateDir = dir
	}
	return cfg
}

// Validate checks the config for values the client cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_base_url %q is not an absolute URL", c.APIBaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api_base_url must use http or https, got %q", u.Scheme)
	}
	if c.StateDir == "" {
		return errors.New("state_dir must be set")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.Scanner.FrameRate <= 0 || c.Scanner.FrameRate > 240 {
		return fmt.Errorf("scanner.frame_rate must be between 1 and 240, got %d", c.Scanner.FrameRate)
	}
	if _, err := strconv.ParseUint(strings.TrimPrefix(c.SupportNumber, "+"), 10, 64); err != nil {
		return fmt.Errorf("support_number %q is not a phone number", c.SupportNumber)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// LogPath returns the directory log files are written to.
func (c *Config) LogPath() string {
	if c.LogDir != "" {
		return c.LogDir
	}
	return filepath.Join(c.StateDir, "logs")
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvSupportNumber); v != "" {
		c.SupportNumber = v
	}
}

// fillDefaults restores zero values a partial file may have left behind.
func (c *Config) fillDefaults() {
	def := Default()
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.SupportNumber == "" {
		c.SupportNumber = def.SupportNumber
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ToastDuration == 0 {
		c.ToastDuration = def.ToastDuration
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.StateDir == "" {
		c.StateDir = def.StateDir
	}
	if c.Scanner.FrameRate == 0 {
		c.Scanner.FrameRate = def.Scanner.FrameRate
	}
	if c.Scanner.ConfirmDelay == 0 {
		c.Scanner.ConfirmDelay = def.Scanner.ConfirmDelay
	}
	if c.Scanner.ErrorClearDelay == 0 {
		c.Scanner.ErrorClearDelay = def.Scanner.ErrorClearDelay
	}
}
