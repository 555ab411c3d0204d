package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// AppConfig application configuration
type AppConfig struct {
	Data   DataConfig   `toml:"data"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
	Watch  WatchConfig  `toml:"watch"`
	// Forms ordered list of enabled form ids; the orchestrator runs them in this order
	Forms []string `toml:"forms"`

	// baseDir directory relative paths are resolved against
	baseDir string
}

// DataConfig data locations
type DataConfig struct {
	RawDir       string `toml:"raw_dir"`
	ProcessedDir string `toml:"processed_dir"`
	FormsDir     string `toml:"forms_dir"`
	DBPath       string `toml:"db_path"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Port       int    `toml:"port"`
	DevMode    bool   `toml:"dev_mode"`
	AdminToken string `toml:"admin_token"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level string `toml:"level"`
}

// WatchConfig raw-tree watcher configuration
type WatchConfig struct {
	Debounce string `toml:"debounce"`
}

// LoadConfigInfo metadata about how the config was loaded
type LoadConfigInfo struct {
	Path        string
	FromFile    bool
	PortDefined bool
}

// DefaultConfig default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Data: DataConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			FormsDir:     "config/forms",
			DBPath:       "data/ucc.db",
		},
		Server: ServerConfig{
			Port: 8501,
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Debounce: "2s",
		},
		Forms:   []string{"anexo2", "anexo3", "anexo4", "anexo5"},
		baseDir: ".",
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir directory of the running executable
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfigWithInfo loads config.toml and reports how it was found.
// An empty path means config.toml in the working directory, then next to the executable.
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{}
	config := DefaultConfig()

	candidates := []string{path}
	if path == "" {
		candidates = []string{"config.toml"}
		if exeDir, err := GetExeDir(); err == nil {
			candidates = append(candidates, filepath.Join(exeDir, "config.toml"))
		}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return nil, info, err
		}

		info.Path = candidate
		info.FromFile = true
		info.PortDefined = isPortSpecifiedInToml(data)

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, err
		}
		config.baseDir = filepath.Dir(candidate)
		break
	}

	// environment overrides
	if v := os.Getenv("UCC_RAW_DIR"); v != "" {
		config.Data.RawDir = v
	}
	if v := os.Getenv("UCC_ADMIN_TOKEN"); v != "" {
		config.Server.AdminToken = v
	}

	return config, info, nil
}

// LoadConfig loads the configuration from path (see LoadConfigWithInfo)
func LoadConfig(path string) (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo(path)
	return config, err
}

// SaveConfig writes the configuration as TOML
func SaveConfig(config *AppConfig, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve makes p absolute against the config file directory
func (c *AppConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}

// RawDir resolved raw input root
func (c *AppConfig) RawDir() string { return c.Resolve(c.Data.RawDir) }

// ProcessedDir resolved output directory
func (c *AppConfig) ProcessedDir() string { return c.Resolve(c.Data.ProcessedDir) }

// FormsDir resolved form settings directory
func (c *AppConfig) FormsDir() string { return c.Resolve(c.Data.FormsDir) }

// DBPath resolved run log database path
func (c *AppConfig) DBPath() string { return c.Resolve(c.Data.DBPath) }

// DebounceDelay watcher debounce as a duration
func (c *AppConfig) DebounceDelay() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// EnsureDataDirs creates the processed directory and the run log directory
func EnsureDataDirs(config *AppConfig) error {
	dirs := []string{config.ProcessedDir(), filepath.Dir(config.DBPath())}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
