// Package logging adapts the teacher's leveled, colorized console logger
// (ventosilenzioso-go-raknet/pkg/logger) onto github.com/sirupsen/logrus,
// keeping the same call-site vocabulary (Debug/Info/Warn/Error/Success)
// while gaining structured fields and optional file rotation, in the style
// sun977-NeoScan/neoMaster wires logrus to lumberjack.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a *logrus.Logger, adding the teacher's Success call and a
// Peer helper for entries scoped to one peer address.
type Logger struct {
	*logrus.Logger
}

// Config controls where logs go and how verbose they are.
type Config struct {
	Debug bool
	// LogFile, if non-empty, also writes rotated logs there (10MB/file,
	// 5 backups, 28 days), matching NeoScan's lumberjack defaults.
	LogFile string
}

// New builds a Logger per cfg. Output always includes stderr; LogFile adds
// a second, rotated destination.
func New(cfg Config) *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		l.SetLevel(logrus.DebugLevel)
	}

	out := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	l.SetOutput(out)

	return &Logger{Logger: l}
}

// Success logs at info level with a "success" marker field, mirroring the
// teacher's dedicated green Success() call.
func (l *Logger) Success(format string, args ...interface{}) {
	l.WithField("status", "success").Infof(format, args...)
}

// Peer returns an entry scoped to a single peer address, the unit of
// identity the receiver's connection table keys on.
func (l *Logger) Peer(addr string) *logrus.Entry {
	return l.WithField("peer", addr)
}
