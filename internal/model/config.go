package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// APIConfig holds the REST endpoint settings.
type APIConfig struct {
	// BaseURL is the root of the v1 API, without a trailing slash.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// WebathenaConfig describes the ticket the client asks Webathena for.
type WebathenaConfig struct {
	Host      string   `mapstructure:"host" yaml:"host"`
	Realm     string   `mapstructure:"realm" yaml:"realm"`
	Principal []string `mapstructure:"principal" yaml:"principal"`
}

// DisplayConfig holds UI/rendering preferences. Theme is "dark", "light" or
// "default" (follow the terminal).
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// HistoryConfig controls the local snapshot log.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	Keep   int    `mapstructure:"keep" yaml:"keep"`
}

// ProbeConfig controls IMAP reachability checks.
type ProbeConfig struct {
	Port       int `mapstructure:"port" yaml:"port"`
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Webathena WebathenaConfig `mapstructure:"webathena" yaml:"webathena"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Probe     ProbeConfig     `mapstructure:"probe" yaml:"probe"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/mailto, or the working directory when the
// home directory cannot be determined.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailto")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailto/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "https://mailto.mit.edu/api/v1",
			TimeoutSec: 30,
		},
		Webathena: WebathenaConfig{
			Host:      "https://webathena.mit.edu",
			Realm:     "ATHENA.MIT.EDU",
			Principal: []string{"moira", "moira7.mit.edu"},
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		History: HistoryConfig{
			DBPath: filepath.Join(dir, "history.db"),
			Keep:   50,
		},
		Probe: ProbeConfig{
			Port:       993,
			TimeoutSec: 10,
		},
		Log: LogConfig{
			Level: "info",
			Path:  filepath.Join(dir, "mailto.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values may be overridden with MAILTO_-prefixed environment variables,
// e.g. MAILTO_API_BASE_URL. A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	def := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mailto")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("webathena.host", def.Webathena.Host)
	v.SetDefault("webathena.realm", def.Webathena.Realm)
	v.SetDefault("webathena.principal", def.Webathena.Principal)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("history.db_path", def.History.DBPath)
	v.SetDefault("history.keep", def.History.Keep)
	v.SetDefault("probe.port", def.Probe.Port)
	v.SetDefault("probe.timeout_sec", def.Probe.TimeoutSec)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.path", def.Log.Path)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = def.API.TimeoutSec
	}
	if cfg.History.Keep <= 0 {
		cfg.History.Keep = def.History.Keep
	}
	if cfg.Probe.Port <= 0 {
		cfg.Probe.Port = def.Probe.Port
	}
	if cfg.Probe.TimeoutSec <= 0 {
		cfg.Probe.TimeoutSec = def.Probe.TimeoutSec
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout_sec", cfg.API.TimeoutSec)
	v.Set("webathena.host", cfg.Webathena.Host)
	v.Set("webathena.realm", cfg.Webathena.Realm)
	v.Set("webathena.principal", cfg.Webathena.Principal)
	v.Set("display.theme", cfg.Display.Theme)
	v.Set("history.db_path", cfg.History.DBPath)
	v.Set("history.keep", cfg.History.Keep)
	v.Set("probe.port", cfg.Probe.Port)
	v.Set("probe.timeout_sec", cfg.Probe.TimeoutSec)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.path", cfg.Log.Path)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
