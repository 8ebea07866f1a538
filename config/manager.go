package config

import (
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"badsubd/logger"
)

// fileConfig mirrors the subset of Config that may be supplied through a
// TOML configuration file. Fields are pointers so an absent key in the file
// leaves the lower-priority (environment) value untouched.
type fileConfig struct {
	DataPath       *string `toml:"data_path"`
	HTTPAddr       *string `toml:"http_addr"`
	AdminTokenHash *string `toml:"admin_token_hash"`
	LogLevel       *string `toml:"log_level"`
	MaxVarcharSize *int    `toml:"max_varchar_size"`
}

// Manager builds the final Config by applying BadSUBD's three-tier
// configuration hierarchy: environment variables, an optional TOML file,
// then explicit flag overrides recorded via Override*.
//
// Thread Safety: Initialize and Config are protected by a mutex. The
// Override* methods do not lock and are called before Initialize.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	overrides map[string]any
}

// NewManager creates a Manager with no overrides recorded yet.
func NewManager() *Manager {
	return &Manager{overrides: make(map[string]any)}
}

// OverrideDataPath, OverrideHTTPAddr and OverrideLogLevel record a
// command-line flag value that should win over the file/environment tiers
// when Initialize runs. Call these before Initialize; a zero value means
// "flag not set" and is ignored.
func (m *Manager) OverrideDataPath(v string) {
	if v != "" {
		m.overrides["data_path"] = v
	}
}

func (m *Manager) OverrideHTTPAddr(v string) {
	if v != "" {
		m.overrides["http_addr"] = v
	}
}

func (m *Manager) OverrideLogLevel(v string) {
	if v != "" {
		m.overrides["log_level"] = v
	}
}

// Initialize builds the final configuration by applying the three-tier
// hierarchy:
//  1. Load base configuration from environment variables.
//  2. If filePath is non-empty and the file exists, merge its values in.
//  3. Apply any flag overrides recorded via Override*.
//
// The method is safe to call once at startup; it is not intended to be
// re-invoked for hot-reload.
func (m *Manager) Initialize(filePath string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Load()

	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(filePath, &fc); err != nil {
				return nil, err
			}
			applyFileConfig(cfg, &fc)
			logger.Debug("loaded configuration file %s", filePath)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if v, ok := m.overrides["data_path"].(string); ok {
		cfg.DataPath = v
	}
	if v, ok := m.overrides["http_addr"].(string); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := m.overrides["log_level"].(string); ok {
		cfg.LogLevel = v
	}

	m.config = cfg
	return cfg, nil
}

// Config returns the most recently built configuration, or nil if
// Initialize has not run yet.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.DataPath != nil {
		cfg.DataPath = *fc.DataPath
	}
	if fc.HTTPAddr != nil {
		cfg.HTTPAddr = *fc.HTTPAddr
	}
	if fc.AdminTokenHash != nil {
		cfg.AdminTokenHash = *fc.AdminTokenHash
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.MaxVarcharSize != nil {
		cfg.MaxVarcharSize = *fc.MaxVarcharSize
	}
}
