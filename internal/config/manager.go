package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/crosslabs/camhub/internal/logger"
)

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "camhub")
	defaultConfigPath := filepath.Join(configDir, "config.yaml")

	actualConfigPath := defaultConfigPath
	if configFile != "" {
		actualConfigPath = configFile
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			// Config file not found, create it with defaults
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("cameras", len(m.config.Cameras)).
		Int("max_streams", m.config.MaxStreams).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func getDefaults() *Config {
	return &Config{
		HTTPPort:    8080,
		ControlPort: 9000,
		LogLevel:    "info",
		MaxStreams:  4,
		SnapshotDir: "snapshots",
		Cameras:     []Camera{},
	}
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Cameras == nil {
		cfg.Cameras = []Camera{}
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.ControlPort == 0 {
		cfg.ControlPort = 9000
	}
	if cfg.MaxStreams == 0 {
		cfg.MaxStreams = 4
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "snapshots"
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()

	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	cfg.Cameras = append([]Camera(nil), m.config.Cameras...)
	return &cfg
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	// Marshal a deep copy so concurrent setters cannot mutate the
	// struct mid-write
	m.mu.RLock()
	var cfg *Config
	if m.config != nil {
		c := *m.config
		c.Cameras = append([]Camera(nil), m.config.Cameras...)
		cfg = &c
	}
	m.mu.RUnlock()

	if cfg == nil {
		cfg = getDefaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")

	return nil
}

// GetViper returns a viper instance bound to the config file, used by the
// config CLI subcommands for key-based get/set
func (m *Manager) GetViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	_ = v.ReadInConfig()
	return v
}

// SetHTTPPort overrides the HTTP listen port
func (m *Manager) SetHTTPPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.HTTPPort = port
}

// SetControlPort overrides the control listener port
func (m *Manager) SetControlPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ControlPort = port
}

// SetMaxStreams overrides the concurrent stream cap
func (m *Manager) SetMaxStreams(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.MaxStreams = n
}

// SetLogLevel overrides the log level
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// GetConfigPath returns the path of the backing config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
