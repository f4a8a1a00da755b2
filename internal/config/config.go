// Package config loads the synctogit configuration.
//
// Settings are read from a TOML or YAML file, overridden by SYNCTOGIT_*
// environment variables (SYNCTOGIT_GIT_REPO_DIR for git.repo_dir).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of environment overrides.
	EnvPrefix = "SYNCTOGIT"

	// DefaultFile is the config location relative to the XDG config dirs.
	DefaultFile = "synctogit/config.toml"
)

// Config is the complete configuration.
type Config struct {
	Git       GitConfig       `mapstructure:"git"`
	Service   ServiceConfig   `mapstructure:"service"`
	Internals InternalsConfig `mapstructure:"internals"`
	General   GeneralConfig   `mapstructure:"general"`
	Log       LogConfig       `mapstructure:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Obsidian  ObsidianConfig  `mapstructure:"obsidian"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// GitConfig binds the working copy to a repository.
type GitConfig struct {
	RepoDir    string `mapstructure:"repo_dir"`
	Branch     string `mapstructure:"branch"`
	Remote     string `mapstructure:"remote"`
	RemoteName string `mapstructure:"remote_name"`
	Push       bool   `mapstructure:"push"`
}

// ServiceConfig selects the backend.
type ServiceConfig struct {
	Name string `mapstructure:"name"`

	// CredentialsFile stores backend tokens. Defaults to an XDG path.
	CredentialsFile string `mapstructure:"credentials_file"`
}

// InternalsConfig tunes the sync engine.
type InternalsConfig struct {
	NotesDownloadThreads int           `mapstructure:"notes_download_threads"`
	MetadataTimeout      time.Duration `mapstructure:"metadata_timeout"`
}

// GeneralConfig holds user preferences.
type GeneralConfig struct {
	// Timezone is an IANA name used for timestamps in stored documents.
	Timezone string `mapstructure:"timezone"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// DaemonConfig configures periodic syncing.
type DaemonConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	WatchLocal bool          `mapstructure:"watch_local"`
}

// VaultConfig configures the local Markdown vault backend.
type VaultConfig struct {
	Path string `mapstructure:"path"`
}

// ObsidianConfig configures the Obsidian Local REST API backend.
type ObsidianConfig struct {
	URL         string        `mapstructure:"url"`
	Folder      string        `mapstructure:"folder"`
	InsecureTLS bool          `mapstructure:"insecure_tls"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

var logLevels = []any{"trace", "debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Git.Validate(); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	if err := validation.ValidateStruct(&c.Service,
		validation.Field(&c.Service.Name, validation.Required),
	); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	if err := validation.ValidateStruct(&c.Internals,
		validation.Field(&c.Internals.NotesDownloadThreads, validation.Required, validation.Min(1)),
		validation.Field(&c.Internals.MetadataTimeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("internals: %w", err)
	}
	if _, err := c.General.Location(); err != nil {
		return fmt.Errorf("general: %w", err)
	}
	if err := validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.Required, validation.In(logLevels...)),
	); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := validation.ValidateStruct(&c.Daemon,
		validation.Field(&c.Daemon.Interval, validation.Required, validation.Min(10*time.Second)),
	); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}

// Validate validates the git configuration.
func (c *GitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RepoDir, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.RemoteName, validation.Required),
	)
}

// Location returns the configured timezone, time.Local when unset.
func (c GeneralConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SetDefaults registers default values for every known key. Keys without a
// default are invisible to environment overrides during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("git.repo_dir", "")
	v.SetDefault("git.branch", "master")
	v.SetDefault("git.remote", "")
	v.SetDefault("git.remote_name", "origin")
	v.SetDefault("git.push", false)
	v.SetDefault("service.name", "")
	v.SetDefault("service.credentials_file", "")
	v.SetDefault("internals.notes_download_threads", 30)
	v.SetDefault("internals.metadata_timeout", time.Hour)
	v.SetDefault("general.timezone", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.json", false)
	v.SetDefault("daemon.interval", 15*time.Minute)
	v.SetDefault("daemon.watch_local", true)
	v.SetDefault("vault.path", "")
	v.SetDefault("obsidian.url", "https://127.0.0.1:27124")
	v.SetDefault("obsidian.folder", "")
	v.SetDefault("obsidian.insecure_tls", true)
	v.SetDefault("obsidian.timeout", 30*time.Second)
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or the default XDG location when path
// is empty. A missing default file is not an error: every setting may come
// from the environment.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		if found, err := xdg.SearchConfigFile(DefaultFile); err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = path

	if cfg.Service.CredentialsFile == "" {
		cfg.Service.CredentialsFile = filepath.Join(xdg.ConfigHome, "synctogit", "credentials.toml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	return cfg, nil
}

// ErrInvalid is returned by Load when validation fails.
var ErrInvalid = errors.New("invalid configuration")
