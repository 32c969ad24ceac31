package config

import "time"

// Config represents the application configuration
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	Stats    StatsConfig    `yaml:"stats"`
	Prebuilt PrebuiltConfig `yaml:"prebuilt"`
	Sync     SyncConfig     `yaml:"sync"`
	Flatten  FlattenConfig  `yaml:"flatten"`
	Site     SiteConfig     `yaml:"site,omitempty"`
	Events   EventsConfig   `yaml:"events,omitempty"`
}

// CatalogConfig locates the declarative package catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// StatsConfig controls the download-stats fetcher and its persistent store.
type StatsConfig struct {
	StorePath    string        `yaml:"store_path"`
	Concurrency  int           `yaml:"concurrency,omitempty"`   // bounded worker pool size
	Timeout      time.Duration `yaml:"timeout,omitempty"`       // per registry query
	MaxRetries   *int          `yaml:"max_retries,omitempty"`   // after the first failure; 0 disables retries
	RetryInitial time.Duration `yaml:"retry_initial,omitempty"` // backoff base delay
	RetryMax     time.Duration `yaml:"retry_max,omitempty"`     // backoff cap
	Deadline     time.Duration `yaml:"deadline,omitempty"`      // whole fetch run
}

// PrebuiltConfig controls the generated prebuilt-packages page.
type PrebuiltConfig struct {
	PagePath    string `yaml:"page_path"`
	Ecosystem   string `yaml:"ecosystem"`
	BeginMarker string `yaml:"begin_marker,omitempty"`
	EndMarker   string `yaml:"end_marker,omitempty"`
}

// SyncSourceMode enumerates how the companion-repo snapshot is obtained.
type SyncSourceMode string

const (
	SyncSourceArchive SyncSourceMode = "archive"
	SyncSourceGit     SyncSourceMode = "git"
)

// SyncConfig controls the external-docs sync job.
type SyncConfig struct {
	Mode            SyncSourceMode `yaml:"mode,omitempty"` // archive|git, default archive
	Source          string         `yaml:"source"`         // archive URL or git clone URL
	Ref             string         `yaml:"ref,omitempty"`  // git mode only
	Selector        string         `yaml:"selector"`       // subtree glob over entry paths
	StripComponents int            `yaml:"strip_components,omitempty"`
	Destination     string         `yaml:"destination"`
}

// FlattenConfig controls the corpus flattener.
type FlattenConfig struct {
	Root       string   `yaml:"root"`
	Exclusions []string `yaml:"exclusions,omitempty"` // path globs relative to root
	Output     string   `yaml:"output"`
}

// SiteConfig describes the external static-site generator invocation.
// The generator is an opaque collaborator; docsmith only execs it.
type SiteConfig struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`
	Output  string   `yaml:"output,omitempty"` // directory served by `docsmith serve`
}

// EventsConfig enables optional NATS run-event publishing.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}
