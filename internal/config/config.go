// Package config loads SunLapse settings from defaults, an optional YAML
// file and SUNLAPSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nir0k/SunLapse/internal/harvest"
	"github.com/nir0k/SunLapse/internal/sun"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration mistakes that abort startup.
var ErrInvalid = errors.New("invalid configuration")

// Upload targets.
const (
	UploadNone      = "none"
	UploadDropbox   = "dropbox"
	UploadDirectory = "directory"
)

// Config is the full runtime configuration.
type Config struct {
	Project ProjectConfig        `yaml:"project"`
	Capture CaptureConfig        `yaml:"capture"`
	Sun     map[string]sun.Times `yaml:"sun"`
	Upload  UploadConfig         `yaml:"upload"`
	Log     LogConfig            `yaml:"log"`
}

type ProjectConfig struct {
	Name      string `yaml:"name" env:"SUNLAPSE_PROJECT_NAME"`
	Path      string `yaml:"path" env:"SUNLAPSE_PROJECT_PATH"`
	StartHint int    `yaml:"start_hint" env:"SUNLAPSE_START_HINT"`
}

type CaptureConfig struct {
	Interval       time.Duration `yaml:"interval" env:"SUNLAPSE_INTERVAL"`
	NightMode      bool          `yaml:"night_mode" env:"SUNLAPSE_NIGHT_MODE"`
	Driver         string        `yaml:"driver" env:"SUNLAPSE_DRIVER"`
	Args           []string      `yaml:"args" env:"SUNLAPSE_DRIVER_ARGS" envSeparator:" "`
	Order          string        `yaml:"order" env:"SUNLAPSE_ORDER"`
	GracePeriod    time.Duration `yaml:"grace_period" env:"SUNLAPSE_GRACE_PERIOD"`
	RestartBackoff bool          `yaml:"restart_backoff" env:"SUNLAPSE_RESTART_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"SUNLAPSE_MAX_BACKOFF"`
	FailureAlert   int           `yaml:"failure_alert" env:"SUNLAPSE_FAILURE_ALERT"`
}

type UploadConfig struct {
	Target      string `yaml:"target" env:"SUNLAPSE_UPLOAD"`
	TokenFile   string `yaml:"token_file" env:"SUNLAPSE_TOKEN_FILE"`
	Directory   string `yaml:"directory" env:"SUNLAPSE_UPLOAD_DIR"`
	Ledger      string `yaml:"ledger" env:"SUNLAPSE_LEDGER"`
	RetryFailed bool   `yaml:"retry_failed" env:"SUNLAPSE_RETRY_FAILED"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"SUNLAPSE_LOG_LEVEL"`
	File  string `yaml:"file" env:"SUNLAPSE_LOG_FILE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			Interval:     5 * time.Second,
			Driver:       "gphoto2",
			Args:         []string{"--capture-image-and-download", "--interval", "{interval}"},
			Order:        string(harvest.OrderName),
			GracePeriod:  5 * time.Second,
			MaxBackoff:   5 * time.Minute,
			FailureAlert: 5,
		},
		Sun: DefaultSunTable(),
		Upload: UploadConfig{
			Target:    UploadNone,
			TokenFile: "access_token",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultSunTable is a mid-latitude (about 50°N) table in local time.
func DefaultSunTable() map[string]sun.Times {
	return map[string]sun.Times{
		"jan": {Sunrise: 805, Sunset: 1625},
		"feb": {Sunrise: 730, Sunset: 1715},
		"mar": {Sunrise: 630, Sunset: 1800},
		"apr": {Sunrise: 630, Sunset: 1950},
		"may": {Sunrise: 540, Sunset: 2035},
		"jun": {Sunrise: 505, Sunset: 2110},
		"jul": {Sunrise: 520, Sunset: 2105},
		"aug": {Sunrise: 605, Sunset: 2015},
		"sep": {Sunrise: 650, Sunset: 1910},
		"oct": {Sunrise: 735, Sunset: 1810},
		"nov": {Sunrise: 725, Sunset: 1625},
		"dec": {Sunrise: 805, Sunset: 1600},
	}
}

// Load applies the YAML file at path (if non-empty) and then the environment
// on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse env: %v", ErrInvalid, err)
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("%w: parse config file: %v", ErrInvalid, err)
	}
	// A sun table in the file replaces the default one instead of merging month by month.
	if fromFile.Sun != nil {
		cfg.Sun = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse config file: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks values and normalizes enumerations.
func (c *Config) Validate() error {
	c.Project.Name = strings.TrimSpace(c.Project.Name)
	c.Project.Path = strings.TrimSpace(c.Project.Path)
	c.Upload.Target = strings.ToLower(strings.TrimSpace(c.Upload.Target))

	if c.Project.Name == "" {
		return fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	if c.Project.Name == "." || c.Project.Name == ".." || strings.ContainsAny(c.Project.Name, `/\`) {
		return fmt.Errorf("%w: project name %q must be a single directory name", ErrInvalid, c.Project.Name)
	}
	if c.Project.Path == "" {
		return fmt.Errorf("%w: project path is required", ErrInvalid)
	}
	if c.Project.StartHint < 0 {
		return fmt.Errorf("%w: start hint must not be negative", ErrInvalid)
	}
	if c.Capture.Interval < time.Second || c.Capture.Interval%time.Second != 0 {
		return fmt.Errorf("%w: capture interval must be a whole number of seconds, got %s", ErrInvalid, c.Capture.Interval)
	}
	if strings.TrimSpace(c.Capture.Driver) == "" {
		return fmt.Errorf("%w: capture driver is required", ErrInvalid)
	}
	order, err := harvest.ParseOrder(c.Capture.Order)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	c.Capture.Order = string(order)
	if c.Capture.GracePeriod <= 0 {
		return fmt.Errorf("%w: grace period must be positive", ErrInvalid)
	}
	if c.Capture.RestartBackoff && c.Capture.MaxBackoff < c.Capture.Interval {
		return fmt.Errorf("%w: max backoff %s is shorter than the interval", ErrInvalid, c.Capture.MaxBackoff)
	}
	if c.Capture.FailureAlert < 0 {
		return fmt.Errorf("%w: failure alert must not be negative", ErrInvalid)
	}

	switch c.Upload.Target {
	case "", UploadNone:
		c.Upload.Target = UploadNone
	case UploadDropbox:
		if strings.TrimSpace(c.Upload.TokenFile) == "" {
			return fmt.Errorf("%w: dropbox upload needs a token file", ErrInvalid)
		}
	case UploadDirectory:
		if strings.TrimSpace(c.Upload.Directory) == "" {
			return fmt.Errorf("%w: directory upload needs a target directory", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown upload target %q (expected none, dropbox or directory)", ErrInvalid, c.Upload.Target)
	}
	if c.Upload.RetryFailed && c.Upload.Ledger == "" {
		return fmt.Errorf("%w: retry_failed needs an upload ledger", ErrInvalid)
	}
	return nil
}
