// Package config loads stampview settings with viper.
//
// Precedence, lowest to highest: defaults, the config file, STAMPVIEW_
// environment variables. Nested keys map to variables by replacing dots
// with underscores, so store.backend is read from STAMPVIEW_STORE_BACKEND.
package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/txn"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAMPVIEW"

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the complete stampview configuration.
type Config struct {
	// RootDir holds the transactions file and relative store paths. Empty
	// disables transaction persistence.
	RootDir      string             `mapstructure:"root_dir"`
	Store        StoreConfig        `mapstructure:"store"`
	Log          LogConfig          `mapstructure:"log"`
	Navigation   NavigationConfig   `mapstructure:"navigation"`
	Transactions TransactionsConfig `mapstructure:"transactions"`
}

// StoreConfig selects and locates the entity store.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerDir  string `mapstructure:"badger_dir"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// NavigationConfig configures navigation queries.
type NavigationConfig struct {
	// SortLocale is a BCP 47 tag. Empty collates under the view's first
	// language.
	SortLocale string `mapstructure:"sort_locale"`
}

// TransactionsConfig configures transaction persistence.
type TransactionsConfig struct {
	File string `mapstructure:"file"`
}

// SetDefaults configures default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root_dir", "")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.sqlite_path", "stampview.db")
	v.SetDefault("store.badger_dir", "badger")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("navigation.sort_locale", "")

	v.SetDefault("transactions.file", txn.DefaultFileName)
}

// NewViper returns a viper instance with defaults and environment
// overrides bound. No file is read.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the configuration at path over the defaults. An empty path
// loads defaults and environment overrides only. The file type follows
// its extension; files without one are read as TOML.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper decodes and validates the settings held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.Validationf("store.sqlite_path cannot be empty for the sqlite backend")
		}
	case BackendBadger:
		if c.Store.BadgerDir == "" {
			return errors.Validationf("store.badger_dir cannot be empty for the badger backend")
		}
	default:
		return errors.Validationf("store.backend must be one of memory, sqlite, badger; got %q", c.Store.Backend)
	}
	if _, err := c.SortLocale(); err != nil {
		return err
	}
	if c.Transactions.File == "" {
		return errors.Validationf("transactions.file cannot be empty")
	}
	if strings.ContainsRune(c.Transactions.File, filepath.Separator) {
		return errors.Validationf("transactions.file must be a bare file name, got %q", c.Transactions.File)
	}
	return nil
}

// SortLocale parses navigation.sort_locale. Empty yields language.Und.
func (c *Config) SortLocale() (language.Tag, error) {
	if c.Navigation.SortLocale == "" {
		return language.Und, nil
	}
	tag, err := language.Parse(c.Navigation.SortLocale)
	if err != nil {
		return language.Und, errors.Mark(
			errors.Wrapf(err, "navigation.sort_locale %q", c.Navigation.SortLocale),
			errors.ErrValidation)
	}
	return tag, nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	return logging.New(logging.Options{Level: c.Log.Level, JSON: c.Log.JSON})
}

// OpenStore opens the configured backend. Relative paths resolve under
// RootDir.
func (c *Config) OpenStore(logger *zap.Logger) (store.Store, error) {
	switch c.Store.Backend {
	case BackendSQLite:
		s, err := store.OpenSQLite(c.resolve(c.Store.SQLitePath))
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := store.OpenBadger(store.BadgerConfig{
			Dir:    c.resolve(c.Store.BadgerDir),
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func (c *Config) resolve(path string) string {
	if c.RootDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.RootDir, path)
}
