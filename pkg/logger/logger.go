// Package logger provides structured console logging with per-platform context.
package logger

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used across crossforge.
type Logger interface {
	Info(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Error(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithPlatform(platform string) Logger
}

// Field is a structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field.
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// consoleFormatter renders entries as
//
//	[12:04:05] INFO  [ios-arm64] configuring preset
//
// with the level colored and the platform prefix taken from the entry data.
type consoleFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

func (f *consoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow)
		levelText = "WARN"
	case logrus.DebugLevel:
		levelColor = color.New(color.Faint)
		levelText = "DEBUG"
	default:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	}

	prefix := ""
	if platform, ok := entry.Data["platform"]; ok {
		prefix = fmt.Sprintf("[%s] ", color.New(color.FgBlue).Sprint(platform))
		delete(entry.Data, "platform")
	}

	var line string
	ts := entry.Time.Format(f.TimestampFormat)
	if f.DisableColors {
		line = fmt.Sprintf("[%s] %-5s %s%s", ts, levelText, prefix, entry.Message)
	} else {
		line = fmt.Sprintf("[%s] %s %s%s", ts, levelColor.Sprintf("%-5s", levelText), prefix, entry.Message)
	}

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		extra := ""
		for _, k := range keys {
			extra += fmt.Sprintf(" %s=%v", k, entry.Data[k])
		}
		line += color.New(color.Faint).Sprint(extra)
	}

	return []byte(line + "\n"), nil
}

type platformLogger struct {
	logger   *logrus.Logger
	platform string
}

// New creates a logger at the given level ("debug", "info", "warn", "error").
// An unparsable level falls back to info.
func New(level string) Logger {
	log := logrus.New()

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	log.SetFormatter(&consoleFormatter{TimestampFormat: "15:04:05"})

	return &platformLogger{logger: log}
}

// NewWithOutput creates a colorless logger writing to the given writer.
// Intended for tests.
func NewWithOutput(level string, out io.Writer) Logger {
	log := logrus.New()

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	log.SetFormatter(&consoleFormatter{TimestampFormat: "15:04:05", DisableColors: true})
	log.SetOutput(out)

	return &platformLogger{logger: log}
}

// WithPlatform returns a logger that prefixes every entry with the platform.
func (l *platformLogger) WithPlatform(platform string) Logger {
	return &platformLogger{logger: l.logger, platform: platform}
}

func (l *platformLogger) fields(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields)+1)
	if l.platform != "" {
		out["platform"] = l.platform
	}
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func (l *platformLogger) Info(message string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Info(message)
}

func (l *platformLogger) Warn(message string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Warn(message)
}

func (l *platformLogger) Error(message string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Error(message)
}

func (l *platformLogger) Debug(message string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Debug(message)
}

// Success logs at info level with a success marker.
func (l *platformLogger) Success(message string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Info("✓ " + message)
}
