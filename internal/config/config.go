package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

const (
	DefaultPort           = 6970
	DefaultConfigFilename = "config.json"
	DefaultHost           = "127.0.0.1"
)

// ProviderConfig tunes one backend's credential pool and transport.
type ProviderConfig struct {
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"base_url,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	FailLimit int    `json:"fail_limit,omitempty"`
}

// AutoRefreshConfig controls the background credential expiry sweep.
type AutoRefreshConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes,omitempty"`
}

type Config struct {
	Host   string `json:"HOST,omitempty"`
	Port   int    `json:"PORT,omitempty"`
	APIKey string `json:"APIKEY,omitempty"`

	// RateLimits caps requests per provider per minute. Absent or zero
	// means unlimited.
	RateLimits map[string]int `json:"rate_limits,omitempty"`

	Providers map[string]ProviderConfig `json:"providers,omitempty"`

	AutoRefresh AutoRefreshConfig `json:"auto_refresh,omitempty"`

	// StripReasoning suppresses reasoning deltas unless a request
	// overrides it.
	StripReasoning bool `json:"strip_reasoning,omitempty"`

	// CleanMode extends citation scrubbing to reasoning text.
	CleanMode bool `json:"clean_mode,omitempty"`
}

type Manager struct {
	configPath  string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		configPath: filepath.Join(baseDir, DefaultConfigFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		// Return a config with defaults if loading fails
		cfg = &Config{}
		applyDefaults(cfg)
		return cfg
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) GetPath() string {
	return m.configPath
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{
			"deepseek": {Enabled: true},
			"claude":   {Enabled: true},
		}
	}
	if cfg.AutoRefresh.Enabled && cfg.AutoRefresh.IntervalMinutes == 0 {
		cfg.AutoRefresh.IntervalMinutes = 10
	}
}
