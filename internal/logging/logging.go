// Package logging builds the logrus logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, format and destination.
type Config struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json or text
	Output     string `yaml:"output"`      // stdout, stderr or a file path
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotation size for file output
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
}

var (
	defaultOnce sync.Once
	defaultLog  *logrus.Logger
)

// New builds a logger from cfg. LOG_LEVEL and LOG_FORMAT override the config.
func New(cfg Config) (*logrus.Logger, error) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		cfg.Level = env
	}
	if env := os.Getenv("LOG_FORMAT"); env != "" {
		cfg.Format = env
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	l := logrus.New()
	lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(lvl)
	l.SetReportCaller(true)

	prettyCaller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
			CallerPrettyfier: prettyCaller,
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}
	l.SetOutput(out)
	return l, nil
}

func output(cfg Config) (io.Writer, error) {
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    size,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}, nil
}

// Default returns a process-wide logger with default settings. It is used by
// components constructed without an explicit logger.
func Default() *logrus.Logger {
	defaultOnce.Do(func() {
		l, err := New(Config{})
		if err != nil {
			l = logrus.New()
		}
		defaultLog = l
	})
	return defaultLog
}

// Component tags entries with the emitting component.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	if l == nil {
		l = Default()
	}
	return l.WithField("component", name)
}

// Discard returns an entry that writes nowhere. Tests use it.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// OrDefault returns e, or a component entry on the default logger when e is nil.
func OrDefault(e *logrus.Entry, component string) *logrus.Entry {
	if e != nil {
		return e.WithField("component", component)
	}
	return Component(nil, component)
}
