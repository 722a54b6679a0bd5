package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prsheet/internal/row"
	"prsheet/internal/structures"
)

const (
	DefaultSheetName       = "prs"
	DefaultWorkItemPattern = `[A-Z][A-Z0-9]+-\d+`
	DefaultLookback        = 14 * 24 * time.Hour
	DefaultInterval        = 30 * time.Minute
)

// Environment overrides, checked after the file is read.
const (
	EnvSheetID     = "PRSHEET_SHEET_ID"
	EnvSheetName   = "PRSHEET_SHEET_NAME"
	EnvCredentials = "PRSHEET_GOOGLE_CREDENTIALS"
)

// ErrNotConfigured is returned when no sheet or credentials are set.
var ErrNotConfigured = errors.New("configuration not found. run 'prsheet init' first")

// Default returns a config with every optional setting filled in.
func Default() structures.Config {
	return structures.Config{
		Sheet: structures.SheetConfig{Name: DefaultSheetName},
		Columns: structures.ColumnConfig{
			Key:        "A",
			Repository: "B",
			Feature:    "C",
			Team:       "D",
			Authors:    "E",
			PRs:        "F",
			MergedAt:   "G",
			AutoSync:   "H",
		},
		WorkItems: structures.WorkItemConfig{Pattern: DefaultWorkItemPattern},
		Lookback:  DefaultLookback,
		Schedule:  structures.ScheduleConfig{Interval: DefaultInterval},
		Retry: structures.RetryConfig{
			Mode:       "exponential",
			Initial:    time.Second,
			Max:        30 * time.Second,
			MaxRetries: 5,
		},
		Logging: structures.LoggingConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		Notify:  structures.NotifyConfig{OnFailure: true},
	}
}

// Path is the default config location.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "prsheet", "config.yaml"), nil
}

// Load reads the config at path (the default location when empty). A missing
// file yields the defaults. .env files in the working directory are loaded
// first and ${VAR} references in the file are expanded.
func Load(path string) (structures.Config, error) {
	loadEnvFiles(".env", ".env.local")

	if path == "" {
		p, err := Path()
		if err != nil {
			return structures.Config{}, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return structures.Config{}, err
	default:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return structures.Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes cfg to path (the default location when empty).
func Save(path string, cfg structures.Config) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate rejects configs that cannot run. It is checked before any sheet
// mutation is attempted.
func Validate(cfg structures.Config) error {
	if cfg.Sheet.ID == "" || cfg.Sheet.CredentialsPath == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(cfg.Sheet.Name) == "" {
		return errors.New("sheet name cannot be empty")
	}
	if !filepath.IsAbs(cfg.Sheet.CredentialsPath) {
		return fmt.Errorf("credentials path must be absolute: %s", cfg.Sheet.CredentialsPath)
	}
	if _, err := Columns(cfg); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	if _, err := regexp.Compile(cfg.WorkItems.Pattern); err != nil {
		return fmt.Errorf("work item pattern: %w", err)
	}
	if cfg.Lookback <= 0 {
		return errors.New("lookback must be positive")
	}
	if cfg.Schedule.Interval <= 0 {
		return errors.New("schedule interval must be positive")
	}
	return nil
}

// Columns converts the column letters into a validated mapping.
func Columns(cfg structures.Config) (row.Columns, error) {
	c := cfg.Columns
	return row.ParseColumns(map[row.Field]string{
		row.FieldKey:        c.Key,
		row.FieldRepository: c.Repository,
		row.FieldFeature:    c.Feature,
		row.FieldTeam:       c.Team,
		row.FieldAuthors:    c.Authors,
		row.FieldPRs:        c.PRs,
		row.FieldMergedAt:   c.MergedAt,
		row.FieldAutoSync:   c.AutoSync,
	})
}

// HistoryPath resolves the run history database location.
func HistoryPath(cfg structures.Config) (string, error) {
	if cfg.History.Path != "" {
		return cfg.History.Path, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "prsheet", "history.db"), nil
}

func applyEnv(cfg *structures.Config) {
	if v := os.Getenv(EnvSheetID); v != "" {
		cfg.Sheet.ID = v
	}
	if v := os.Getenv(EnvSheetName); v != "" {
		cfg.Sheet.Name = v
	}
	if v := os.Getenv(EnvCredentials); v != "" {
		cfg.Sheet.CredentialsPath = v
	}
}

// loadEnvFiles loads each file that exists. Variables already in the
// environment are never overwritten.
func loadEnvFiles(names ...string) {
	for _, name := range names {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		_ = godotenv.Load(name)
	}
}
