package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/entryfs/internal/util"
)

// CLI verbosity values accepted for LogLvl overrides
const (
	ErrorVerbose = iota + util.MinVerbose
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// MoveSource values. See [Config.MoveSource].
const (
	MoveOriginal = "original"
	MoveCopy     = "copy"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// DefaultRootURL is an in-memory namespace private to the process
	DefaultRootURL = "mem://entryfs/"

	DefaultTestDir        = "test"
	DefaultFileName       = "file.txt"
	DefaultCopyName       = "file-copy.txt"
	DefaultMoveName       = "file-move.txt"
	DefaultMoveSource     = MoveOriginal
	DefaultContent        = "TEST"
	DefaultTruncateLength = 2

	DefaultRecursiveDir    = "recursive/dir/test"
	DefaultDownloadURL     = "https://raw.githubusercontent.com/zorn-v/cordova-electron-file-test/master/www/img/logo.png"
	DefaultDownloadName    = "logo.png"
	DefaultDownloadTimeout = 30.0
	DefaultDownloadRetries = 2

	// DefaultJournalPath empty disables the run journal
	DefaultJournalPath = ""
	DefaultCleanup     = true
)

// Config contains runtime configuration values for a smoke-test run.
type Config struct {
	LogLvl util.LogLevel // Internal log level (Default info)

	RootURL string // URL of the storage namespace under test (Default mem://entryfs/)

	TestDir        string // Directory holding the main chain's files (Default "test")
	FileName       string // File created and written by the main chain (Default "file.txt")
	CopyName       string // Name of the copy (Default "file-copy.txt")
	MoveName       string // Name the move renames to (Default "file-move.txt")
	MoveSource     string // Which file is moved: "original" or "copy" (Default "original")
	Content        string // Payload written to FileName (Default "TEST")
	TruncateLength int64  // Length the written file is truncated to (Default 2)

	RecursiveDir    string  // Nested directory ensured by side chain A (Default "recursive/dir/test")
	DownloadURL     string  // Remote file fetched into RecursiveDir; empty skips the download
	DownloadName    string  // Destination name of the download (Default "logo.png")
	DownloadTimeout float64 // Per-attempt download timeout in seconds (Default 30)
	DownloadRetries int     // Extra attempts after a connection failure (Default 2)

	JournalPath string // SQLite file recording runs; empty disables the journal
	Cleanup     bool   // Remove TestDir after the main chain (Default true)
}

// DownloadTimeoutDuration returns DownloadTimeout as a time.Duration.
// Zero or negative means no timeout.
func (c *Config) DownloadTimeoutDuration() time.Duration {
	if c.DownloadTimeout <= 0 {
		return 0
	}
	return time.Duration(c.DownloadTimeout * float64(time.Second))
}

// Validate reports the first field whose value cannot drive a run
func (c *Config) Validate() error {
	switch {
	case c.RootURL == "":
		return fmt.Errorf("root_url must be set")
	case c.TestDir == "":
		return fmt.Errorf("test_dir must be set")
	case c.FileName == "" || c.CopyName == "" || c.MoveName == "":
		return fmt.Errorf("file_name, copy_name and move_name must be set")
	case c.FileName == c.CopyName || c.FileName == c.MoveName || c.CopyName == c.MoveName:
		return fmt.Errorf("file_name, copy_name and move_name must differ")
	case c.MoveSource != MoveOriginal && c.MoveSource != MoveCopy:
		return fmt.Errorf("move_source must be %q or %q, got %q", MoveOriginal, MoveCopy, c.MoveSource)
	case c.TruncateLength < 0:
		return fmt.Errorf("truncate_length must not be negative: %d", c.TruncateLength)
	case c.DownloadRetries < 0:
		return fmt.Errorf("download_retries must not be negative: %d", c.DownloadRetries)
	}
	return nil
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	LogLvl *int `yaml:"log_level,omitempty" json:"log_level,omitempty"` // CLI verbosity 1 (error) .. 5 (trace)

	RootURL        *string `yaml:"root_url,omitempty" json:"root_url,omitempty"`
	TestDir        *string `yaml:"test_dir,omitempty" json:"test_dir,omitempty"`
	FileName       *string `yaml:"file_name,omitempty" json:"file_name,omitempty"`
	CopyName       *string `yaml:"copy_name,omitempty" json:"copy_name,omitempty"`
	MoveName       *string `yaml:"move_name,omitempty" json:"move_name,omitempty"`
	MoveSource     *string `yaml:"move_source,omitempty" json:"move_source,omitempty"`
	Content        *string `yaml:"content,omitempty" json:"content,omitempty"`
	TruncateLength *int64  `yaml:"truncate_length,omitempty" json:"truncate_length,omitempty"`

	RecursiveDir    *string  `yaml:"recursive_dir,omitempty" json:"recursive_dir,omitempty"`
	DownloadURL     *string  `yaml:"download_url,omitempty" json:"download_url,omitempty"`
	DownloadName    *string  `yaml:"download_name,omitempty" json:"download_name,omitempty"`
	DownloadTimeout *float64 `yaml:"download_timeout,omitempty" json:"download_timeout,omitempty"`
	DownloadRetries *int     `yaml:"download_retries,omitempty" json:"download_retries,omitempty"`

	JournalPath *string `yaml:"journal_path,omitempty" json:"journal_path,omitempty"`
	Cleanup     *bool   `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
}

// NewConfig creates a Config with default values and applies override if
// non-nil
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		LogLvl:          DefaultLogLvl,
		RootURL:         DefaultRootURL,
		TestDir:         DefaultTestDir,
		FileName:        DefaultFileName,
		CopyName:        DefaultCopyName,
		MoveName:        DefaultMoveName,
		MoveSource:      DefaultMoveSource,
		Content:         DefaultContent,
		TruncateLength:  DefaultTruncateLength,
		RecursiveDir:    DefaultRecursiveDir,
		DownloadURL:     DefaultDownloadURL,
		DownloadName:    DefaultDownloadName,
		DownloadTimeout: DefaultDownloadTimeout,
		DownloadRetries: DefaultDownloadRetries,
		JournalPath:     DefaultJournalPath,
		Cleanup:         DefaultCleanup,
	}
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbose(*override.LogLvl)
	}
	if override.RootURL != nil {
		c.RootURL = *override.RootURL
	}
	if override.TestDir != nil {
		c.TestDir = *override.TestDir
	}
	if override.FileName != nil {
		c.FileName = *override.FileName
	}
	if override.CopyName != nil {
		c.CopyName = *override.CopyName
	}
	if override.MoveName != nil {
		c.MoveName = *override.MoveName
	}
	if override.MoveSource != nil {
		c.MoveSource = *override.MoveSource
	}
	if override.Content != nil {
		c.Content = *override.Content
	}
	if override.TruncateLength != nil {
		c.TruncateLength = *override.TruncateLength
	}
	if override.RecursiveDir != nil {
		c.RecursiveDir = *override.RecursiveDir
	}
	if override.DownloadURL != nil {
		c.DownloadURL = *override.DownloadURL
	}
	if override.DownloadName != nil {
		c.DownloadName = *override.DownloadName
	}
	if override.DownloadTimeout != nil {
		c.DownloadTimeout = *override.DownloadTimeout
	}
	if override.DownloadRetries != nil {
		c.DownloadRetries = *override.DownloadRetries
	}
	if override.JournalPath != nil {
		c.JournalPath = *override.JournalPath
	}
	if override.Cleanup != nil {
		c.Cleanup = *override.Cleanup
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
