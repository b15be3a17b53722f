// Package config provides configuration utilities for the application.
package config

import (
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mbellot/tally/internal/dedupe"
)

// Config is the resolved application configuration. Values come from
// the config file or TALLY_ environment variables via Viper, with
// built-in defaults underneath.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string

	// DefaultOwner is the user name that receives full ownership of
	// newly created accounts. Empty means the first active user.
	DefaultOwner string
	Currency     string

	Matcher dedupe.MatcherOptions
}

// Load resolves the full configuration from Viper.
func Load() Config {
	cfg := Config{
		DatabasePath: DefaultDBPath(),
		LogLevel:     "info",
		LogFormat:    "console",
		Currency:     "EUR",
		Matcher:      dedupe.DefaultMatcherOptions(),
	}

	if v := viper.GetString("database.path"); v != "" {
		cfg.DatabasePath = ExpandPath(v)
	}
	if v := viper.GetString("logging.level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.LogFormat = v
	}
	if v := viper.GetString("ledger.default_owner"); v != "" {
		cfg.DefaultOwner = v
	}
	if v := viper.GetString("ledger.currency"); v != "" {
		cfg.Currency = v
	}

	if v := viper.GetString("matcher.amount_tolerance"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Matcher.AmountTolerance = d
		}
	}
	if viper.IsSet("matcher.date_tolerance_days") {
		cfg.Matcher.DateToleranceDays = viper.GetInt("matcher.date_tolerance_days")
	}
	if viper.IsSet("matcher.min_record_confidence") {
		cfg.Matcher.MinRecordConfidence = viper.GetFloat64("matcher.min_record_confidence")
	}

	return cfg
}

// DefaultDBPath returns the default database location under the user's
// home directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tally.db"
	}
	return filepath.Join(home, ".local", "share", "tally", "tally.db")
}

// ExpandPath expands a leading ~ and $VAR environment references in a
// file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	} else if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
