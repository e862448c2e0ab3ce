package scanner

import (
	"path/filepath"
	"strings"
)

// IsImageFile checks if a path has one of the classified image extensions
func IsImageFile(path string) bool {
	switch GetFileFormat(path) {
	case "jpg", "jpeg", "png":
		return true
	default:
		return false
	}
}

// IsJPEGFormat checks if a file is a JPEG
func IsJPEGFormat(path string) bool {
	format := GetFileFormat(path)
	return format == "jpg" || format == "jpeg"
}

// GetFileFormat returns the lowercase file extension without the dot
func GetFileFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
