package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	return pathNextToExecutable("imagetagger.db")
}

// ResolveNearExecutable returns a relative path unchanged when it exists in
// the working directory, otherwise the same path next to the executable when
// that one exists. Absolute and unresolvable paths are returned as given.
func ResolveNearExecutable(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	candidate := pathNextToExecutable(path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}

func pathNextToExecutable(name string) string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return name
	}
	return filepath.Join(filepath.Dir(exePath), name)
}

// ParseThreshold parses and validates a confidence threshold
func ParseThreshold(thresholdStr string) (float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(thresholdStr), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid threshold value '%s'", thresholdStr)
	}
	if err := ValidateThreshold(parsed); err != nil {
		return 0, err
	}
	return parsed, nil
}

// ValidateThreshold checks that a confidence threshold lies in [0, 1]
func ValidateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return errors.Newf("threshold %v out of range, expected 0.0-1.0", threshold)
	}
	return nil
}

// FormatTags renders a tag list for console output
func FormatTags(tags []string) string {
	return "[" + strings.Join(tags, ", ") + "]"
}
