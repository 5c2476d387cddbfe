// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unclebandit/vendor-outreach/internal/config"
)

var (
	loggers   = make(map[string]*logrus.Logger)
	loggersMu sync.Mutex
	cfg       = config.LogConfig{Level: "info", Format: "text", Output: "stdout"}
)

// Init sets the configuration used by loggers created afterwards.
func Init(c config.LogConfig) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if c.Output == "file" || c.Output == "both" {
		if err := os.MkdirAll(c.Path, 0o755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}
	cfg = c
	loggers = make(map[string]*logrus.Logger)
	return nil
}

// GetLogger returns the named logger, creating it on first use.
func GetLogger(name string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}
	l := newLogger(name, cfg)
	loggers[name] = l
	return l
}

func GetAppLogger() *logrus.Logger   { return GetLogger("app") }
func GetAuditLogger() *logrus.Logger { return GetLogger("audit") }

func newLogger(name string, c config.LogConfig) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	var writers []io.Writer
	if c.Output == "file" || c.Output == "both" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(c.Path, name+".log"),
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		})
	}
	if c.Output != "file" {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))
	l.AddHook(serviceHook{name: name})
	return l
}

// serviceHook stamps every entry with the logger name.
type serviceHook struct{ name string }

func (serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.name
	}
	return nil
}
