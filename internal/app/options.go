package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nir0k/SunLapse/internal/config"
)

// Options represents user-provided CLI parameters. Zero values leave the
// configuration file and environment untouched.
type Options struct {
	ConfigPath  string
	ProjectName string
	ProjectPath string
	StartHint   int
	Interval    time.Duration
	NightMode   bool
	Upload      string
	UploadDir   string
	TokenFile   string
	Ledger      string
	RetryFailed bool
	LogLevel    string
	LogFile     string
}

// Validate performs basic validation and assigns defaults where needed.
func (o *Options) Validate() error {
	o.ConfigPath = strings.TrimSpace(o.ConfigPath)
	o.ProjectName = strings.TrimSpace(o.ProjectName)
	o.ProjectPath = strings.TrimSpace(o.ProjectPath)
	o.Upload = strings.TrimSpace(o.Upload)
	o.LogLevel = strings.TrimSpace(o.LogLevel)
	o.LogFile = strings.TrimSpace(o.LogFile)

	if o.StartHint < 0 {
		return fmt.Errorf("%w: start hint must not be negative", config.ErrInvalid)
	}
	if o.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", config.ErrInvalid)
	}
	return nil
}

// apply layers the CLI values over cfg.
func (o *Options) apply(cfg *config.Config) {
	if o.ProjectName != "" {
		cfg.Project.Name = o.ProjectName
	}
	if o.ProjectPath != "" {
		cfg.Project.Path = o.ProjectPath
	}
	if o.StartHint > 0 {
		cfg.Project.StartHint = o.StartHint
	}
	if o.Interval > 0 {
		cfg.Capture.Interval = o.Interval
	}
	if o.NightMode {
		cfg.Capture.NightMode = true
	}
	if o.Upload != "" {
		cfg.Upload.Target = o.Upload
	}
	if o.UploadDir != "" {
		cfg.Upload.Directory = o.UploadDir
	}
	if o.TokenFile != "" {
		cfg.Upload.TokenFile = o.TokenFile
	}
	if o.Ledger != "" {
		cfg.Upload.Ledger = o.Ledger
	}
	if o.RetryFailed {
		cfg.Upload.RetryFailed = true
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.Log.File = o.LogFile
	}
}

// defaultLogPath keeps the log beside the storage directory, next to the
// lock file, so the photo directory itself only ever holds canonical images.
func defaultLogPath(storagePath string) string {
	storagePath = strings.TrimSpace(storagePath)
	if storagePath == "" {
		return "sunlapse.log"
	}
	abs, err := filepath.Abs(storagePath)
	if err != nil {
		abs = filepath.Clean(storagePath)
	}
	return filepath.Join(filepath.Dir(abs), filepath.Base(abs)+".sunlapse.log")
}
