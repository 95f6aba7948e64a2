package common

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/AlexanderGrooff/uplaybook/pkg/config"
	"github.com/sirupsen/logrus"
)

// LogFormat names one of the supported log renderings.
type LogFormat string

const (
	LogFormatPlain LogFormat = "plain"
	LogFormatJSON  LogFormat = "json"
	LogFormatYAML  LogFormat = "yaml"
)

const timestampLayout = "2006-01-02 15:04:05"

// Diagnostics only. Status lines are written to the run's output, never here.
var logger = logrus.New()

var formatters = map[LogFormat]func(timestamps bool) logrus.Formatter{
	LogFormatPlain: func(timestamps bool) logrus.Formatter {
		return &logrus.TextFormatter{
			TimestampFormat:  timestampLayout,
			FullTimestamp:    timestamps,
			DisableTimestamp: !timestamps,
		}
	},
	LogFormatYAML: func(timestamps bool) logrus.Formatter {
		return &logrus.TextFormatter{
			DisableColors:    true,
			TimestampFormat:  timestampLayout,
			FullTimestamp:    timestamps,
			DisableTimestamp: !timestamps,
			SortingFunc:      sort.Strings,
		}
	},
	LogFormatJSON: func(timestamps bool) logrus.Formatter {
		return &logrus.JSONFormatter{
			TimestampFormat:  timestampLayout,
			DisableTimestamp: !timestamps,
		}
	},
}

func init() {
	logger.SetFormatter(formatters[LogFormatPlain](false))
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
}

// Configure applies the logging section of the configuration. An empty format
// or level keeps plain output at info.
func Configure(cfg config.LoggingConfig) error {
	format := LogFormat(cfg.Format)
	if format == "" {
		format = LogFormatPlain
	}
	newFormatter, ok := formatters[format]
	if !ok {
		return fmt.Errorf("invalid log format %q, expected one of %s, %s or %s",
			cfg.Format, LogFormatPlain, LogFormatJSON, LogFormatYAML)
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		logger.SetOutput(file)
	}
	logger.SetFormatter(newFormatter(cfg.Timestamps))
	logger.SetLevel(level)
	return nil
}

// SetLogOutput redirects log output, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetRunID tags every following log entry with the ID of the current run.
// A later run replaces the tag of an earlier one, an empty ID removes it.
func SetRunID(id string) {
	hooks := make(logrus.LevelHooks)
	if id != "" {
		hooks.Add(runIDHook(id))
	}
	logger.ReplaceHooks(hooks)
}

type runIDHook string

func (h runIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h runIDHook) Fire(entry *logrus.Entry) error {
	entry.Data["run_id"] = string(h)
	return nil
}

func LogDebug(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Debug(msg)
}

func LogInfo(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Info(msg)
}

func LogWarn(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Warn(msg)
}

func LogError(msg string, fields map[string]interface{}) {
	logger.WithFields(fields).Error(msg)
}

// DebugOutput logs a printf style debug message.
func DebugOutput(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
