package imageprocessor

import (
	"path/filepath"
	"strings"
)

// FormatType represents a known image format type
type FormatType string

// Known image format constants
const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
)

// Map of extensions to format types
var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
}

// GetFileFormat returns the format type for a file path
func GetFileFormat(path string) FormatType {
	ext := strings.ToLower(filepath.Ext(path))
	if format, ok := formatExtensions[ext]; ok {
		return format
	}
	return FormatUnknown
}

// GetSupportedExtensions returns every extension with a registered format
func GetSupportedExtensions() []string {
	exts := make([]string, 0, len(formatExtensions))
	for ext := range formatExtensions {
		exts = append(exts, ext)
	}
	return exts
}
