package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nir0k/logger"
)

// Logger is the subset of the nir0k/logger API used across SunLapse packages.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Options controls file and console output of the process logger.
type Options struct {
	File    string
	Level   string
	Console bool
}

// New builds a rotating file logger that optionally mirrors to the console.
func New(opts Options) (Logger, error) {
	consoleLevel := "fatal"
	if opts.Console {
		consoleLevel = opts.Level
	}
	cfg := logger.LogConfig{
		FilePath:       opts.File,
		Format:         "standard",
		FileLevel:      opts.Level,
		ConsoleLevel:   consoleLevel,
		ConsoleOutput:  opts.Console,
		EnableRotation: true,
		RotationConfig: logger.RotationConfig{
			MaxSize:    25,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
	}
	logInstance, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logInstance, nil
}

// Discard drops every message.
var Discard Logger = discard{}

type discard struct{}

func (discard) Infof(string, ...any)    {}
func (discard) Warningf(string, ...any) {}
func (discard) Errorf(string, ...any)   {}

// Recorder keeps formatted messages in memory, prefixed with their level.
// It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) Infof(format string, args ...any)    { r.add("INFO", format, args) }
func (r *Recorder) Warningf(format string, args ...any) { r.add("WARN", format, args) }
func (r *Recorder) Errorf(format string, args ...any)   { r.add("ERROR", format, args) }

func (r *Recorder) add(level, format string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

// Lines returns a copy of everything recorded so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, line := range r.Lines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
