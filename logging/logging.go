package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

var (
	logger  = newDefaultLogger()
	logFile *os.File
	logPath string
	mu      sync.Mutex
	isSetup bool
)

// newDefaultLogger reports warnings and errors on stderr until SetupLogger is called
func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetupLogger sends debug-level output to the specified log file
func SetupLogger(logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	logFile = f
	logPath = logFilePath

	logger.SetOutput(f)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logger.Infof("--- ImageTagger Debug Log Started at %s ---", time.Now().Format(time.RFC3339))

	isSetup = true
	return nil
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer, level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()

	logger.SetOutput(w)
	logger.SetLevel(level)
}

// CloseLogger closes the log file and restores the default stderr logger
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Infof("--- ImageTagger Debug Log Closed at %s ---", time.Now().Format(time.RFC3339))
		logFile.Close()
		logFile = nil
	}
	logPath = ""
	logger = newDefaultLogger()
	isSetup = false
}

// LogFilePath returns the path of the open log file, or "" when file
// logging is off
func LogFilePath() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Logger exposes the underlying logrus logger for field-based logging
func Logger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	Logger().Infof(format, args...)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	Logger().Debugf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	Logger().Errorf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	Logger().Warnf(format, args...)
}

// LogImageProcessed logs the outcome of classifying one image
func LogImageProcessed(path string, success bool, tags []string, errMsg string) {
	entry := Logger().WithField("path", path)
	if success {
		entry.WithField("tags", tags).Debug("PROCESSED")
	} else {
		entry.WithField("error", errMsg).Info("FAILED")
	}
}
