// Package logging - logrus setup for the motion recorder.
//
// Entries go to stderr and to a daily log file named motion_log_YYYYMMDD.txt
// inside the configured log directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FilePrefix is the prefix of every daily log file.
const FilePrefix = "motion_log_"

// dailyWriter creates a new log file each day.
type dailyWriter struct {
	dir         string
	now         func() time.Time
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// NewDailyWriter returns an io.WriteCloser that rotates to a new file at midnight.
func NewDailyWriter(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory %s", dir)
	}
	return &dailyWriter{dir: dir, now: time.Now}, nil
}

// Write implements io.Writer.
func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().Format("20060102")
	if w.currentFile == nil || w.currentDate != date {
		if err := w.rotate(date); err != nil {
			return 0, err
		}
	}
	return w.currentFile.Write(p)
}

func (w *dailyWriter) rotate(date string) error {
	if w.currentFile != nil {
		w.currentFile.Close()
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s%s.txt", FilePrefix, date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open log file %s", path)
	}

	w.currentFile = file
	w.currentDate = date
	return nil
}

// Close closes the current file.
func (w *dailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}

// New builds a logger writing to stderr and to the daily file in dir.
//
// Arguments:
//   - dir: Directory for the daily log files.
//   - level: A logrus level name ("debug", "info", ...).
//
// Returns:
//   - *logrus.Logger: The configured logger.
//   - io.Closer: Closes the log file; call it on shutdown.
//   - error: If the directory or level is invalid.
func New(dir, level string) (*logrus.Logger, io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	file, err := NewDailyWriter(dir)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger, file, nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
