// Package logging builds the module's leveled logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gologme/log"

	"github.com/HefnySco/droneengage-mavlink/internal/config"
)

// Logger is the leveled logger shared by every package.
type Logger = log.Logger

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to console and, when logger_enabled is set,
// to <log_dir>/log_<dd-mm-yyyy_HH-MM-SS>.log as well. The returned closer
// releases the log file.
func New(cfg config.Config, console io.Writer, now time.Time) (*Logger, io.Closer, error) {
	out := console
	var closer io.Closer = nopCloser{}

	if cfg.LoggerEnabled {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(FileName(cfg.LogDir, now), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(console, f)
		closer = f
	}

	logger := log.New(out, "", log.LstdFlags|log.Lshortfile)
	logger.EnableLevel("error")
	logger.EnableLevel("warn")
	logger.EnableLevel("info")
	if cfg.LoggerDebug {
		logger.EnableLevel("debug")
	}
	return logger, closer, nil
}

// FileName is the log file path for a process started at now.
func FileName(dir string, now time.Time) string {
	return filepath.Join(dir, "log_"+now.Format("02-01-2006_15-04-05")+".log")
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return log.New(io.Discard, "", 0)
}
