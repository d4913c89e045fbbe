package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/dirstore-go/internal/cli/output"
	"github.com/yndnr/dirstore-go/internal/infra/confloader"
)

// Codecs lists the value codecs the CLI understands.
var Codecs = []string{"text", "bytes", "uint32", "int64", "json", "yaml"}

// Config is the resolved CLI configuration.
type Config struct {
	Dir          string `koanf:"dir" json:"dir" yaml:"dir"`
	Codec        string `koanf:"codec" json:"codec" yaml:"codec"`
	HiddenPrefix string `koanf:"hidden_prefix" json:"hidden_prefix" yaml:"hidden_prefix"`
	Atomic       bool   `koanf:"atomic" json:"atomic" yaml:"atomic"`
	FileMode     string `koanf:"file_mode" json:"file_mode" yaml:"file_mode"`
	KeyFile      string `koanf:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	Output       string `koanf:"output" json:"output" yaml:"output"`

	Log    LogConfig    `koanf:"log" json:"log" yaml:"log"`
	Backup BackupConfig `koanf:"backup" json:"backup" yaml:"backup"`
	Watch  WatchConfig  `koanf:"watch" json:"watch" yaml:"watch"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level          string `koanf:"level" json:"level" yaml:"level"`
	Format         string `koanf:"format" json:"format" yaml:"format"`
	File           string `koanf:"file" json:"file,omitempty" yaml:"file,omitempty"`
	FileMaxSizeMB  int    `koanf:"file_max_size_mb" json:"file_max_size_mb" yaml:"file_max_size_mb"`
	FileMaxBackups int    `koanf:"file_max_backups" json:"file_max_backups" yaml:"file_max_backups"`
}

// BackupConfig configures archive location and retention.
type BackupConfig struct {
	// Dir defaults to ".backups" inside the storage directory.
	Dir            string `koanf:"dir" json:"dir,omitempty" yaml:"dir,omitempty"`
	RetentionCount int    `koanf:"retention_count" json:"retention_count" yaml:"retention_count"`
	RetentionDays  int    `koanf:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce    time.Duration `koanf:"debounce" json:"debounce" yaml:"debounce"`
	MetricsAddr string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	// MaxRescansPerSecond throttles rescans triggered by bursts of changes.
	MaxRescansPerSecond float64 `koanf:"max_rescans_per_second" json:"max_rescans_per_second" yaml:"max_rescans_per_second"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dir:          ".",
		Codec:        "text",
		HiddenPrefix: ".",
		FileMode:     "0644",
		Output:       string(output.FormatTable),
		Log: LogConfig{
			Level:          "warn",
			Format:         "text",
			FileMaxSizeMB:  100,
			FileMaxBackups: 3,
		},
		Backup: BackupConfig{
			RetentionCount: 5,
			RetentionDays:  7,
		},
		Watch: WatchConfig{
			Debounce:            200 * time.Millisecond,
			MaxRescansPerSecond: 2,
		},
	}
}

// defaults mirrors Default as a nested map for the loader.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"dir":           d.Dir,
		"codec":         d.Codec,
		"hidden_prefix": d.HiddenPrefix,
		"atomic":        d.Atomic,
		"file_mode":     d.FileMode,
		"output":        d.Output,
		"log": map[string]any{
			"level":            d.Log.Level,
			"format":           d.Log.Format,
			"file_max_size_mb": d.Log.FileMaxSizeMB,
			"file_max_backups": d.Log.FileMaxBackups,
		},
		"backup": map[string]any{
			"retention_count": d.Backup.RetentionCount,
			"retention_days":  d.Backup.RetentionDays,
		},
		"watch": map[string]any{
			"debounce":               d.Watch.Debounce.String(),
			"max_rescans_per_second": d.Watch.MaxRescansPerSecond,
		},
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "dirstore", "config.yaml")
}

// Load resolves the configuration. An empty path means the default path,
// which may be absent; an explicit path must exist. overrides holds dotted
// keys set from command-line flags and wins over every other source.
func Load(path string, overrides map[string]any) (*Config, error) {
	opts := []confloader.Option{confloader.WithDefaults(defaults())}
	if path == "" {
		opts = append(opts, confloader.WithConfigFile(DefaultConfigPath()), confloader.WithOptionalFile())
	} else {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	l := confloader.NewLoader(opts...)
	cfg := &Config{}
	if err := l.Load(cfg); err != nil {
		return nil, err
	}

	if len(overrides) > 0 {
		for k, v := range overrides {
			if err := l.Set(k, v); err != nil {
				return nil, fmt.Errorf("apply flag %s: %w", k, err)
			}
		}
		if err := l.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Dir == "" {
		errs = append(errs, errors.New("dir must not be empty"))
	}
	if !slices.Contains(Codecs, c.Codec) {
		errs = append(errs, fmt.Errorf("codec %q is not one of %s", c.Codec, strings.Join(Codecs, ", ")))
	}
	if strings.ContainsAny(c.HiddenPrefix, "/\x00") || strings.ContainsRune(c.HiddenPrefix, filepath.Separator) {
		errs = append(errs, fmt.Errorf("hidden_prefix %q must not contain path separators", c.HiddenPrefix))
	}
	if _, err := c.Mode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := output.ParseFormat(c.Output); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if c.Backup.RetentionCount < 0 || c.Backup.RetentionDays < 0 {
		errs = append(errs, errors.New("backup retention must not be negative"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}
	if c.Watch.MaxRescansPerSecond <= 0 {
		errs = append(errs, errors.New("watch.max_rescans_per_second must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Mode parses FileMode as an octal permission.
func (c *Config) Mode() (os.FileMode, error) {
	m, err := strconv.ParseUint(c.FileMode, 8, 32)
	if err != nil || m > 0o777 {
		return 0, fmt.Errorf("file_mode %q is not an octal permission", c.FileMode)
	}
	return os.FileMode(m), nil
}

// BackupDir returns the archive directory.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Dir, ".backups")
}
