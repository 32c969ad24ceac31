// Package config loads and validates the docsmith configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

// Defaults applied after unmarshal when the corresponding field is zero.
const (
	DefaultConcurrency  = 5
	DefaultMaxRetries   = 3
	DefaultTimeout      = 10 * time.Second
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 10 * time.Second
	DefaultDeadline     = 2 * time.Minute

	DefaultBeginMarker = "<!-- prebuilt:begin -->"
	DefaultEndMarker   = "<!-- prebuilt:end -->"
)

// Load loads configuration from the specified file.
// Environment variables referenced in the YAML ($VAR / ${VAR}) are expanded;
// a .env file next to the process is honored when present.
func Load(configPath string) (*Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, apperrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfig, apperrors.SeverityFatal, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Stats.Concurrency <= 0 {
		c.Stats.Concurrency = DefaultConcurrency
	}
	// Pointer so an explicit `max_retries: 0` survives defaulting.
	if c.Stats.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Stats.MaxRetries = &retries
	}
	if c.Stats.Timeout <= 0 {
		c.Stats.Timeout = DefaultTimeout
	}
	if c.Stats.RetryInitial <= 0 {
		c.Stats.RetryInitial = DefaultRetryInitial
	}
	if c.Stats.RetryMax <= 0 {
		c.Stats.RetryMax = DefaultRetryMax
	}
	if c.Stats.Deadline <= 0 {
		c.Stats.Deadline = DefaultDeadline
	}
	if c.Prebuilt.BeginMarker == "" {
		c.Prebuilt.BeginMarker = DefaultBeginMarker
	}
	if c.Prebuilt.EndMarker == "" {
		c.Prebuilt.EndMarker = DefaultEndMarker
	}
	if c.Sync.Mode == "" {
		c.Sync.Mode = SyncSourceArchive
	}
	if c.Sync.Selector == "" {
		c.Sync.Selector = "**"
	}
}

// Validate checks cross-field invariants. Per-command requirements (e.g. a
// sync source) are checked by the command that needs them, so a config that
// only configures flattening stays usable.
func (c *Config) Validate() error {
	if c.Sync.Mode != SyncSourceArchive && c.Sync.Mode != SyncSourceGit {
		return apperrors.New(apperrors.CategoryValidation, apperrors.SeverityFatal, "sync.mode must be archive or git").
			WithContext("mode", string(c.Sync.Mode))
	}
	if c.Stats.MaxRetries != nil && *c.Stats.MaxRetries < 0 {
		return apperrors.New(apperrors.CategoryValidation, apperrors.SeverityFatal, "stats.max_retries cannot be negative")
	}
	if c.Sync.StripComponents < 0 {
		return apperrors.New(apperrors.CategoryValidation, apperrors.SeverityFatal, "sync.strip_components cannot be negative")
	}
	if c.Prebuilt.BeginMarker == c.Prebuilt.EndMarker {
		return apperrors.New(apperrors.CategoryValidation, apperrors.SeverityFatal, "prebuilt markers must differ")
	}
	return nil
}
