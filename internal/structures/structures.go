package structures

import "time"

// Config holds the application configuration
type Config struct {
	Sheet     SheetConfig     `yaml:"sheet"`
	Columns   ColumnConfig    `yaml:"columns"`
	Teams     []string        `yaml:"teams,omitempty"`
	Users     map[string]User `yaml:"users,omitempty"`
	WorkItems WorkItemConfig  `yaml:"work_items"`
	GitHub    GitHubConfig    `yaml:"github"`
	GitLab    GitLabConfig    `yaml:"gitlab"`
	Lookback  time.Duration   `yaml:"lookback"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Retry     RetryConfig     `yaml:"retry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// SheetConfig locates the Google Sheet tab that holds the PR rows
type SheetConfig struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	CredentialsPath string `yaml:"credentials_path"`

	// Strict rejects rows with no repository outside any block.
	Strict bool `yaml:"strict,omitempty"`
}

// ColumnConfig maps each logical field to a column letter
type ColumnConfig struct {
	Key        string `yaml:"key"`
	Repository string `yaml:"repository"`
	Feature    string `yaml:"feature"`
	Team       string `yaml:"team"`
	Authors    string `yaml:"authors"`
	PRs        string `yaml:"prs"`
	MergedAt   string `yaml:"merged_at"`
	AutoSync   string `yaml:"auto_sync"`
}

// User maps a platform login to a display name and team
type User struct {
	Name string `yaml:"name"`
	Team string `yaml:"team"`
}

// WorkItemConfig controls how PRs are associated with work items
type WorkItemConfig struct {
	Pattern     string `yaml:"pattern"`
	URLTemplate string `yaml:"url_template,omitempty"`
}

// GitHubConfig lists the GitHub repositories to collect merged PRs from
type GitHubConfig struct {
	APIURL      string   `yaml:"api_url,omitempty"`
	Token       string   `yaml:"token,omitempty"`
	Repos       []string `yaml:"repos,omitempty"`
	Concurrency int      `yaml:"concurrency,omitempty"`
}

// GitLabConfig lists the GitLab projects to collect merged MRs from
type GitLabConfig struct {
	BaseURL  string   `yaml:"base_url,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	Projects []string `yaml:"projects,omitempty"`
}

// ScheduleConfig controls daemon mode
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RetryConfig controls backoff for rate-limited sheet calls
type RetryConfig struct {
	Mode       string        `yaml:"mode"`
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// LoggingConfig controls the zap logger and its optional rotated file
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint in daemon mode
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// HistoryConfig locates the run history database
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig controls desktop notifications
type NotifyConfig struct {
	OnFailure bool `yaml:"on_failure"`
}
