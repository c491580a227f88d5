package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var DebugLog func(string, ...interface{})

var ErrNotLoaded = errors.New("configuration not loaded")

const DefaultFileName = "params.yaml"

type Config struct {
	Params        Params        `yaml:"params"`
	Database      Database      `yaml:"database"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch"`
}

type Database struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type Elasticsearch struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

func Defaults() Config {
	return Config{
		Params: PatentDefaults(),
		Database: Database{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			SSLMode: "disable",
		},
	}
}

type Manager struct {
	config     *Config
	configPath string
	fromFile   bool
	lookupEnv  func(string) (string, bool)
}

func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		lookupEnv:  os.LookupEnv,
	}
}

// Load reads the config file (if any), loads .env files and applies
// PATENTVAE_* environment overrides on top of the patent defaults.
func (m *Manager) Load() error {
	explicit := m.configPath != ""
	if !explicit {
		m.configPath = m.findConfigFile()
	}

	cfg := Defaults()

	switch _, err := os.Stat(m.configPath); {
	case err == nil:
		if DebugLog != nil {
			DebugLog("loading params from %s", m.configPath)
		}
		if err := decodeFile(m.configPath, &cfg); err != nil {
			return err
		}
		m.fromFile = true
	case os.IsNotExist(err) && explicit:
		return fmt.Errorf("config file not found at %s", m.configPath)
	case os.IsNotExist(err):
		if DebugLog != nil {
			DebugLog("no params file found, using built-in patent defaults")
		}
	default:
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := m.loadDotEnv(); err != nil {
		return err
	}

	params, err := applyEnv(cfg.Params, m.lookupEnv)
	if err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.Params = params

	if err := m.validateConfig(&cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	m.config = &cfg
	return nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Config returns a copy of the loaded configuration.
func (m *Manager) Config() (Config, error) {
	if m.config == nil {
		return Config{}, ErrNotLoaded
	}
	return *m.config, nil
}

func (m *Manager) Path() string {
	return m.configPath
}

// FromFile reports whether Load read an actual file.
func (m *Manager) FromFile() bool {
	return m.fromFile
}

// BaseDir is the directory relative data paths are resolved against.
func (m *Manager) BaseDir() string {
	if m.fromFile {
		return filepath.Dir(m.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (m *Manager) findConfigFile() string {
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}

	local := filepath.Join("config", DefaultFileName)
	if _, err := os.Stat(local); err == nil {
		return local
	}

	if _, err := os.Stat(GetDefaultConfigPath()); err == nil {
		return GetDefaultConfigPath()
	}

	return DefaultFileName
}

func (m *Manager) validateConfig(cfg *Config) error {
	if cfg.Database.Enabled {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host must be set when the database is enabled")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			return fmt.Errorf("database port must be within 1-65535 (got %d)", cfg.Database.Port)
		}
	}
	return nil
}

const defaultConfigTemplate = `# patentvae hyperparameters for the LSTM-LSTM VAE on the patent corpus.
# Keys left out keep their built-in default. Relative data paths are
# resolved against the directory holding this file.
params:
%s
# Optional run registry (PostgreSQL).
database:
  enabled: false
  host: localhost
  port: 5432
  user: postgres
  password: ""
  sslmode: disable

# Optional publishing target for "patentvae publish".
elasticsearch:
  url: ""
  index: patentvae_params
`

// WriteDefault writes a config file holding the patent defaults.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	body, err := yaml.Marshal(PatentDefaults())
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	var indented bytes.Buffer
	for _, line := range bytes.SplitAfter(body, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		indented.WriteString("  ")
		indented.Write(line)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	content := fmt.Sprintf(defaultConfigTemplate, indented.String())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
