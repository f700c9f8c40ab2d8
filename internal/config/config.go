package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/flavorforge/internal/artifact"
	"github.com/harrison/flavorforge/internal/gradle"
)

// BuildConfig describes how a flavor is built and where its artifact lands
type BuildConfig struct {
	// Command is the build command template ({gradlew}, {task}, {flavor}, {Flavor}, {buildType}, {module})
	Command string `yaml:"command"`

	// Module is the application module directory
	Module string `yaml:"module"`

	// BuildType is the build type appended to the assemble task
	BuildType string `yaml:"build_type"`

	// OutputLayout is the artifact directory template relative to the project root
	OutputLayout string `yaml:"output_layout"`

	// ArtifactExtension filters files in the output directory
	ArtifactExtension string `yaml:"artifact_extension"`

	// ConfigFile overrides the build configuration file scanned for flavors
	ConfigFile string `yaml:"config_file"`

	// EnsureWrapper generates the Gradle wrapper when it is missing
	EnsureWrapper bool `yaml:"ensure_wrapper"`
}

// SignatureConfig controls artifact signature verification
type SignatureConfig struct {
	Enabled bool   `yaml:"enabled"`
	Require bool   `yaml:"require"`
	Command string `yaml:"command"`
}

// ValidationConfig controls which checks an artifact must pass
type ValidationConfig struct {
	// MinSizeBytes rejects artifacts smaller than this
	MinSizeBytes int64 `yaml:"min_size_bytes"`

	// Checksum records an MD5 digest of each delivered artifact
	Checksum bool `yaml:"checksum"`

	Signature SignatureConfig `yaml:"signature"`
}

// GitConfig controls the source-control step
type GitConfig struct {
	// StashLocalChanges stashes uncommitted changes across the branch switch
	StashLocalChanges bool `yaml:"stash_local_changes"`

	// DiscardPaths are generated files whose local changes are discarded
	DiscardPaths []string `yaml:"discard_paths"`
}

// Config represents flavorforge configuration options
type Config struct {
	// MaxConcurrency is the maximum number of concurrent builds (0 = auto)
	MaxConcurrency int `yaml:"max_concurrency"`

	// MaxAttempts is the number of build attempts per flavor
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the base delay between attempts
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout bounds the whole run (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where the event log is written
	LogDir string `yaml:"log_dir"`

	// DryRun prints the build plan without running it
	DryRun bool `yaml:"dry_run"`

	// ProceedOnNonZeroExit still looks for an artifact when the build exits non-zero
	ProceedOnNonZeroExit bool `yaml:"proceed_on_nonzero_exit"`

	Build      BuildConfig      `yaml:"build"`
	Validation ValidationConfig `yaml:"validation"`
	Git        GitConfig        `yaml:"git"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency:       0, // min(NumCPU, flavors)
		MaxAttempts:          3,
		RetryDelay:           2 * time.Second,
		Timeout:              2 * time.Hour,
		LogLevel:             "info",
		LogDir:               filepath.Join(StateDirName, "logs"),
		DryRun:               false,
		ProceedOnNonZeroExit: true,
		Build: BuildConfig{
			Command:           gradle.DefaultCommandTemplate,
			Module:            artifact.DefaultModule,
			BuildType:         artifact.DefaultBuildType,
			OutputLayout:      artifact.DefaultLayout,
			ArtifactExtension: artifact.DefaultExtension,
		},
		Validation: ValidationConfig{
			MinSizeBytes: artifact.DefaultMinSize,
			Checksum:     true,
			Signature: SignatureConfig{
				Command: artifact.DefaultSignatureCommand,
			},
		},
		Git: GitConfig{
			StashLocalChanges: true,
			DiscardPaths:      []string{"app/proguardMapping.txt"},
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Pointer fields distinguish "absent" from an explicit zero value
	type yamlConfig struct {
		MaxConcurrency       *int   `yaml:"max_concurrency"`
		MaxAttempts          *int   `yaml:"max_attempts"`
		RetryDelay           string `yaml:"retry_delay"`
		Timeout              string `yaml:"timeout"`
		LogLevel             string `yaml:"log_level"`
		LogDir               string `yaml:"log_dir"`
		DryRun               *bool  `yaml:"dry_run"`
		ProceedOnNonZeroExit *bool  `yaml:"proceed_on_nonzero_exit"`
		Build                struct {
			Command           string `yaml:"command"`
			Module            string `yaml:"module"`
			BuildType         string `yaml:"build_type"`
			OutputLayout      string `yaml:"output_layout"`
			ArtifactExtension string `yaml:"artifact_extension"`
			ConfigFile        string `yaml:"config_file"`
			EnsureWrapper     *bool  `yaml:"ensure_wrapper"`
		} `yaml:"build"`
		Validation struct {
			MinSizeBytes *int64 `yaml:"min_size_bytes"`
			Checksum     *bool  `yaml:"checksum"`
			Signature    struct {
				Enabled *bool  `yaml:"enabled"`
				Require *bool  `yaml:"require"`
				Command string `yaml:"command"`
			} `yaml:"signature"`
		} `yaml:"validation"`
		Git struct {
			StashLocalChanges *bool    `yaml:"stash_local_changes"`
			DiscardPaths      []string `yaml:"discard_paths"`
		} `yaml:"git"`
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setInt(&cfg.MaxConcurrency, y.MaxConcurrency)
	setInt(&cfg.MaxAttempts, y.MaxAttempts)
	if err := setDuration(&cfg.RetryDelay, "retry_delay", y.RetryDelay); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Timeout, "timeout", y.Timeout); err != nil {
		return nil, err
	}
	setString(&cfg.LogLevel, y.LogLevel)
	setString(&cfg.LogDir, y.LogDir)
	setBool(&cfg.DryRun, y.DryRun)
	setBool(&cfg.ProceedOnNonZeroExit, y.ProceedOnNonZeroExit)

	setString(&cfg.Build.Command, y.Build.Command)
	setString(&cfg.Build.Module, y.Build.Module)
	setString(&cfg.Build.BuildType, y.Build.BuildType)
	setString(&cfg.Build.OutputLayout, y.Build.OutputLayout)
	setString(&cfg.Build.ArtifactExtension, y.Build.ArtifactExtension)
	setString(&cfg.Build.ConfigFile, y.Build.ConfigFile)
	setBool(&cfg.Build.EnsureWrapper, y.Build.EnsureWrapper)

	if y.Validation.MinSizeBytes != nil {
		cfg.Validation.MinSizeBytes = *y.Validation.MinSizeBytes
	}
	setBool(&cfg.Validation.Checksum, y.Validation.Checksum)
	setBool(&cfg.Validation.Signature.Enabled, y.Validation.Signature.Enabled)
	setBool(&cfg.Validation.Signature.Require, y.Validation.Signature.Require)
	setString(&cfg.Validation.Signature.Command, y.Validation.Signature.Command)

	setBool(&cfg.Git.StashLocalChanges, y.Git.StashLocalChanges)
	// An explicit empty list disables discarding
	if y.Git.DiscardPaths != nil {
		cfg.Git.DiscardPaths = y.Git.DiscardPaths
	}

	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads configuration from .flavorforge/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(StateDir(dir), ConfigFileName))
}

// FlagOverrides carries CLI flag values. Nil fields were not set on the
// command line and leave the configuration unchanged.
type FlagOverrides struct {
	MaxConcurrency *int
	MaxAttempts    *int
	Timeout        *time.Duration
	LogDir         *string
	LogLevel       *string
	DryRun         *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
// This allows CLI flags to take precedence over config file settings
func (c *Config) MergeWithFlags(flags FlagOverrides) {
	if flags.MaxConcurrency != nil {
		c.MaxConcurrency = *flags.MaxConcurrency
	}
	if flags.MaxAttempts != nil {
		c.MaxAttempts = *flags.MaxAttempts
	}
	if flags.Timeout != nil {
		c.Timeout = *flags.Timeout
	}
	if flags.LogDir != nil {
		c.LogDir = *flags.LogDir
	}
	if flags.LogLevel != nil {
		c.LogLevel = *flags.LogLevel
	}
	if flags.DryRun != nil {
		c.DryRun = *flags.DryRun
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", c.MaxConcurrency)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0, got %v", c.RetryDelay)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	// Timeout can be 0 (no timeout) or positive, negative is invalid
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	if strings.TrimSpace(c.Build.Command) == "" {
		return fmt.Errorf("build.command cannot be empty")
	}
	if !strings.Contains(c.Build.Command, "{task}") &&
		!strings.Contains(c.Build.Command, "{flavor}") &&
		!strings.Contains(c.Build.Command, "{Flavor}") {
		return fmt.Errorf("build.command must reference the flavor through {task}, {flavor} or {Flavor}")
	}
	if !strings.Contains(c.Build.OutputLayout, "{flavor}") {
		return fmt.Errorf("build.output_layout must contain {flavor}, got %q", c.Build.OutputLayout)
	}
	if c.Build.ArtifactExtension == "" {
		return fmt.Errorf("build.artifact_extension cannot be empty")
	}

	if c.Validation.MinSizeBytes < 0 {
		return fmt.Errorf("validation.min_size_bytes must be >= 0, got %d", c.Validation.MinSizeBytes)
	}
	if c.Validation.Signature.Require && !c.Validation.Signature.Enabled {
		return fmt.Errorf("validation.signature.require needs validation.signature.enabled")
	}
	if c.Validation.Signature.Enabled && !strings.Contains(c.Validation.Signature.Command, "{path}") {
		return fmt.Errorf("validation.signature.command must contain {path}")
	}

	return nil
}
