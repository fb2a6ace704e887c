// Package config loads the engine configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Ledger        LedgerConfig
	Budget        BudgetConfig
	Import        ImportConfig
	Autosave      AutosaveConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type LedgerConfig struct {
	Currency string `validate:"required,len=3,uppercase"`
	// File is the YAML ledger document. Relative paths resolve under Dir.
	File string `validate:"required"`
	Dir  string
	// HistoryLimit bounds the undo history; 0 keeps everything.
	HistoryLimit         int  `validate:"min=0"`
	RuleCaseInsensitive  bool
	CategoryDeletePolicy string `validate:"oneof=block cascade"`
}

type BudgetConfig struct {
	SavePolicy     string `validate:"oneof=external account"`
	SavingsAccount string `validate:"required_if=SavePolicy account"`
}

type ImportConfig struct {
	Strict         bool
	UseCategories  bool
	DefaultAccount string `validate:"required"`
}

type AutosaveConfig struct {
	Enabled  bool
	Schedule string `validate:"required_if=Enabled true"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	// MetricsFile receives the registry in text format at exit, for the
	// node_exporter textfile collector. Empty disables it.
	MetricsFile string
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// LedgerPath returns the ledger file path, resolved against Dir when relative.
func (c LedgerConfig) LedgerPath() string {
	if filepath.IsAbs(c.File) || c.Dir == "" {
		return c.File
	}
	return filepath.Join(c.Dir, c.File)
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Ledger: LedgerConfig{
			Currency:             strings.ToUpper(getEnv("LEDGER_CURRENCY", "EUR")),
			File:                 getEnv("LEDGER_FILE", "ledger.yaml"),
			Dir:                  getEnv("LEDGER_DIR", ""),
			HistoryLimit:         getEnvAsInt("HISTORY_LIMIT", 100),
			RuleCaseInsensitive:  getEnvAsBool("RULE_CASE_INSENSITIVE", false),
			CategoryDeletePolicy: strings.ToLower(getEnv("CATEGORY_DELETE_POLICY", "block")),
		},
		Budget: BudgetConfig{
			SavePolicy:     strings.ToLower(getEnv("SAVE_POLICY", "external")),
			SavingsAccount: getEnv("SAVINGS_ACCOUNT", ""),
		},
		Import: ImportConfig{
			Strict:         getEnvAsBool("IMPORT_STRICT", false),
			UseCategories:  getEnvAsBool("IMPORT_USE_CATEGORIES", false),
			DefaultAccount: getEnv("IMPORT_DEFAULT_ACCOUNT", "Imported Account"),
		},
		Autosave: AutosaveConfig{
			Enabled:  getEnvAsBool("AUTOSAVE_ENABLED", false),
			Schedule: getEnv("AUTOSAVE_SCHEDULE", "@every 5m"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsFile:    getEnv("METRICS_FILE", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
