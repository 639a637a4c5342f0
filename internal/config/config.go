// Package config resolves litequery settings from config files, the
// environment and .env files.
//
// Precedence, highest first: explicit Set calls (command-line flags),
// LITEQUERY_* environment variables (including those loaded from .env and
// .env.local), .litequery.yaml, defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Keys understood in .litequery.yaml and as LITEQUERY_<KEY> variables.
const (
	KeyDatabase        = "database"
	KeyModels          = "models"
	KeyCaseInsensitive = "case_insensitive"
	KeyLogLevel        = "log_level"
	KeyBusyTimeoutMS   = "busy_timeout_ms"
)

// FileName is the config file name, searched for without extension.
const FileName = ".litequery"

// EnvPrefix prefixes every environment variable read.
const EnvPrefix = "LITEQUERY"

// Config holds the resolved settings.
type Config struct {
	// Database is the SQLite file path, with ~ expanded.
	Database string

	// Models is the model file or directory, with ~ expanded.
	Models string

	// CaseInsensitive is the pattern-matching default for models that do
	// not declare their own.
	CaseInsensitive bool

	LogLevel    slog.Level
	BusyTimeout time.Duration

	// File is the config file that was read, or "" when none was found.
	File string
}

// Loader resolves a Config. The zero value is not usable; call NewLoader.
type Loader struct {
	fs   afero.Fs
	v    *viper.Viper
	home string
	dir  string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFs reads config and .env files from fs.
func WithFs(fs afero.Fs) LoaderOption {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithHome overrides the home directory used for config search paths and
// ~ expansion.
func WithHome(home string) LoaderOption {
	return func(l *Loader) {
		l.home = home
	}
}

// WithWorkDir sets the directory searched first for the config file and
// .env files. Defaults to ".".
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
	}
}

// NewLoader creates a Loader with defaults applied.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{fs: afero.NewOsFs(), v: viper.New(), dir: "."}
	for _, opt := range opts {
		opt(l)
	}
	l.v.SetDefault(KeyDatabase, "litequery.db")
	l.v.SetDefault(KeyModels, "models")
	l.v.SetDefault(KeyCaseInsensitive, false)
	l.v.SetDefault(KeyLogLevel, "warn")
	l.v.SetDefault(KeyBusyTimeoutMS, 5000)
	return l
}

// Set overrides key with the highest precedence.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads .env files, the config file and the environment.
// A missing config file is not an error; a malformed one is.
func (l *Loader) Load() (*Config, error) {
	if l.home == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("config: home directory: %w", err)
		}
		l.home = home
	}

	if err := l.loadDotenv(); err != nil {
		return nil, err
	}

	l.v.SetFs(l.fs)
	l.v.SetConfigName(FileName)
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(l.dir)
	l.v.AddConfigPath(l.home)
	l.v.AddConfigPath(filepath.Join(l.home, ".config", "litequery"))
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	level, err := ParseLevel(l.v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}
	database, err := l.expand(l.v.GetString(KeyDatabase))
	if err != nil {
		return nil, err
	}
	models, err := l.expand(l.v.GetString(KeyModels))
	if err != nil {
		return nil, err
	}
	timeout := l.v.GetInt(KeyBusyTimeoutMS)
	if timeout < 0 {
		return nil, fmt.Errorf("config: %s must not be negative, got %d", KeyBusyTimeoutMS, timeout)
	}

	return &Config{
		Database:        database,
		Models:          models,
		CaseInsensitive: l.v.GetBool(KeyCaseInsensitive),
		LogLevel:        level,
		BusyTimeout:     time.Duration(timeout) * time.Millisecond,
		File:            l.v.ConfigFileUsed(),
	}, nil
}

// loadDotenv loads .env, then .env.local over it. Variables already set in
// the process environment are kept over .env but not over .env.local.
func (l *Loader) loadDotenv() error {
	for _, f := range []struct {
		name      string
		overwrite bool
	}{
		{".env", false},
		{".env.local", true},
	} {
		path := filepath.Join(l.dir, f.name)
		file, err := l.fs.Open(path)
		if err != nil {
			continue
		}
		env, err := godotenv.Parse(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
		for k, v := range env {
			if !strings.HasPrefix(k, EnvPrefix+"_") {
				continue
			}
			if _, set := os.LookupEnv(k); set && !f.overwrite {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("config: %s: %w", path, err)
			}
		}
	}
	return nil
}

// expand resolves a leading ~ against the loader's home directory.
func (l *Loader) expand(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if l.home != "" && (path == "~" || path[1] == '/' || path[1] == filepath.Separator) {
		return filepath.Join(l.home, path[1:]), nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("config: expanding %q: %w", path, err)
	}
	return expanded, nil
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}
	return level, nil
}
