package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

const (
	xdgAppName = "taskdeck"
	configFile = "config.json"

	DefaultBaseURL       = "http://localhost:8080"
	DefaultTimeout       = 10 * time.Second
	DefaultCalendar      = "Tasks"
	DefaultWatchSchedule = "@every 1m"

	envBaseURL = "TASKDECK_BASE_URL"
	envTimeout = "TASKDECK_TIMEOUT"
)

type Config struct {
	BaseURL       string `json:"base_url"`
	Timeout       string `json:"timeout,omitempty"`
	Sorting       string `json:"sorting,omitempty"`
	Calendar      string `json:"calendar"`
	WatchSchedule string `json:"watch_schedule,omitempty"`
}

func Default() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout.String(),
		Calendar:      DefaultCalendar,
		WatchSchedule: DefaultWatchSchedule,
	}
}

// Dir is where taskdeck keeps its config, OAuth files and event index.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies environment overrides. The result is not validated so
// callers can apply their own overrides first; call Validate afterwards.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads a config file without environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
	if c.Calendar == "" {
		c.Calendar = DefaultCalendar
	}
	if c.WatchSchedule == "" {
		c.WatchSchedule = DefaultWatchSchedule
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(envTimeout); v != "" {
		c.Timeout = v
	}
}

// Validate checks every field that has a fixed format.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("invalid base_url '%s': must start with http:// or https://", c.BaseURL)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if c.Sorting != "" {
		if _, err := model.ParseSortOrder(c.Sorting); err != nil {
			return fmt.Errorf("invalid sorting: %w", err)
		}
	}
	if _, err := cron.ParseStandard(c.WatchSchedule); err != nil {
		return fmt.Errorf("invalid watch_schedule '%s': %w", c.WatchSchedule, err)
	}
	return nil
}

// TimeoutDuration parses Timeout. Zero disables the gateway timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout '%s': %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout '%s': must not be negative", c.Timeout)
	}
	return d, nil
}

// SortOrder returns the configured default sort, if any.
func (c *Config) SortOrder() (model.SortOrder, bool) {
	if c.Sorting == "" {
		return "", false
	}
	return model.SortOrder(c.Sorting), true
}

// Set assigns a value by its JSON key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "base_url":
		c.BaseURL = value
	case "timeout":
		c.Timeout = value
	case "sorting":
		c.Sorting = value
	case "calendar":
		c.Calendar = value
	case "watch_schedule":
		c.WatchSchedule = value
	default:
		return fmt.Errorf("unknown config key '%s'", key)
	}
	return c.Validate()
}

func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	return write(f, cfg)
}

// write encodes cfg and closes w, reporting a failed close.
func write(w io.WriteCloser, cfg *Config) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to write config file: %w", cerr)
		}
	}()

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}
