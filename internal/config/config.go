package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AdmissionLocal = "local"
	AdmissionHost  = "host"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel   string `yaml:"log_level"`
	LogPretty  bool   `yaml:"log_pretty"`
	ListenAddr string `yaml:"listen_addr"`

	// Admission selects where allow decisions come from: the stored
	// allow-list ("local") or a round trip to the host ("host").
	Admission string   `yaml:"admission"`
	AllowList []string `yaml:"allow_list"`

	AlbumArt     bool          `yaml:"album_art"`
	ArtURLLimit  int           `yaml:"art_url_limit"`
	SeekDebounce time.Duration `yaml:"seek_debounce"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
	Queues   QueueConfig   `yaml:"queues"`
}

type TimeoutConfig struct {
	Identity  time.Duration `yaml:"identity"`
	Call      time.Duration `yaml:"call"`
	HostQuery time.Duration `yaml:"host_query"`
}

type QueueConfig struct {
	Outbound int `yaml:"outbound"`
	Commands int `yaml:"commands"`
	Tracker  int `yaml:"tracker"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		ListenAddr:   "127.0.0.1:7341",
		Admission:    AdmissionLocal,
		AllowList:    []string{},
		AlbumArt:     true,
		ArtURLLimit:  1000,
		SeekDebounce: time.Second,
		Timeouts: TimeoutConfig{
			Identity:  200 * time.Millisecond,
			Call:      2 * time.Second,
			HostQuery: 2 * time.Second,
		},
		Queues: QueueConfig{
			Outbound: 64,
			Commands: 16,
			Tracker:  8,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Admission {
	case AdmissionLocal, AdmissionHost:
	default:
		return fmt.Errorf("%w: admission must be %q or %q, got %q", ErrInvalidConfig, AdmissionLocal, AdmissionHost, c.Admission)
	}
	if c.ArtURLLimit < 0 {
		return fmt.Errorf("%w: art_url_limit must not be negative", ErrInvalidConfig)
	}
	if c.SeekDebounce < 0 {
		return fmt.Errorf("%w: seek_debounce must not be negative", ErrInvalidConfig)
	}
	return nil
}
