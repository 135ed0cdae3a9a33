// Package config loads the habitsync YAML configuration and its environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitsync/internal/constants"
)

var (
	userHomeDirFunc = os.UserHomeDir
	lookupEnvFunc   = os.LookupEnv
)

const (
	// RemoteMemory selects the in-process gateway
	RemoteMemory = "memory"
	// QueueKeyring reads the queue connection string from the OS keyring
	QueueKeyring = "keyring"
)

type Config struct {
	Queue        string        `yaml:"queue"`
	Remote       string        `yaml:"remote"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	Timezone     string        `yaml:"timezone"`
	NotifyOnLoss bool          `yaml:"notify_on_loss"`
	JWTSecret    string        `yaml:"jwt_secret,omitempty"`
	Server       ServerConfig  `yaml:"server"`

	// Token is only ever read from the environment or the keyring
	Token string `yaml:"-"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Dir returns the default configuration directory (~/.config/habitsync)
func Dir() (string, error) {
	home, err := userHomeDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".config", constants.AppName), nil
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the configuration used when no file exists
func Default(dir string) Config {
	return Config{
		Queue:        filepath.Join(dir, "queue.db"),
		Remote:       "http://127.0.0.1:8080",
		SyncInterval: constants.DefaultSyncInterval,
		Timezone:     "Local",
		Server:       ServerConfig{Addr: ":8080"},
	}
}

// Load reads the config file at path, falling back to defaults when it does
// not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default(filepath.Dir(path))

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Queue, err = ExpandPath(cfg.Queue); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := lookupEnvFunc(constants.EnvRemote); ok && v != "" {
		c.Remote = v
	}
	if v, ok := lookupEnvFunc(constants.EnvQueue); ok && v != "" {
		c.Queue = v
	}
	if v, ok := lookupEnvFunc(constants.EnvJWTSecret); ok && v != "" {
		c.JWTSecret = v
	}
	if v, ok := lookupEnvFunc(constants.EnvToken); ok && v != "" {
		c.Token = v
	}
}

// Validate checks the fields that have no sensible fallback
func (c Config) Validate() error {
	if c.Queue == "" {
		return errors.New("queue location must not be empty")
	}
	if c.Remote == "" {
		return errors.New("remote must not be empty")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone used for calendar days
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save writes the config as YAML, creating the parent directory
func (c Config) Save(path string) error {
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
// Connection strings and the memory remote are returned unchanged.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := userHomeDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
