package scanner

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"imagetagger/logging"
)

// WalkFunc is called for every image file found. Returning an error stops the walk.
type WalkFunc func(path string) error

// WalkOptions controls directory traversal
type WalkOptions struct {
	// FollowSymlinks descends into symlinked directories. Symlinked files,
	// including dangling ones, are always yielded.
	FollowSymlinks bool
}

// Walker enumerates image files below a root directory, depth first and in
// lexical order. Directories are identified by their resolved real path so a
// directory reachable through several links is only walked once.
type Walker struct {
	opts    WalkOptions
	visited map[string]struct{}
	skipped int
}

// NewWalker creates a walker with the given options
func NewWalker(opts WalkOptions) *Walker {
	return &Walker{opts: opts}
}

// Skipped returns the number of directories skipped in the last walk
// because they could not be read or had already been visited
func (w *Walker) Skipped() int {
	return w.skipped
}

// Walk calls fn for every image file below root. Unreadable subdirectories are
// logged and skipped; an unreadable root is returned as an error.
func (w *Walker) Walk(root string, fn WalkFunc) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrapf(err, "cannot access folder %s", root)
	}
	if !info.IsDir() {
		return errors.Newf("path is not a directory: %s", root)
	}

	w.visited = make(map[string]struct{})
	w.skipped = 0

	entries, err := w.enter(root)
	if err != nil {
		return errors.Wrapf(err, "cannot read folder %s", root)
	}
	return w.walkEntries(root, entries, fn)
}

// enter marks dir as visited and lists it. A nil slice with a nil error means
// the directory was seen before.
func (w *Walker) enter(dir string) ([]fs.DirEntry, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	if _, seen := w.visited[resolved]; seen {
		logging.DebugLog("Skipping already visited directory: %s (%s)", dir, resolved)
		w.skipped++
		return nil, nil
	}
	w.visited[resolved] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil && len(entries) == 0 {
		return nil, err
	}
	if err != nil {
		logging.LogWarning("Partial listing of %s: %v", dir, err)
	}
	return entries, nil
}

func (w *Walker) walkEntries(dir string, entries []fs.DirEntry, fn WalkFunc) error {
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		isDir := entry.IsDir()
		isFile := entry.Type().IsRegular()

		if entry.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			switch {
			case err != nil:
				// Dangling links are still yielded so the failure is reported
				logging.DebugLog("Broken symlink %s: %v", path, err)
				isFile = true
			case target.IsDir() && !w.opts.FollowSymlinks:
				continue
			default:
				isDir = target.IsDir()
				isFile = target.Mode().IsRegular()
			}
		}

		switch {
		case isDir:
			children, err := w.enter(path)
			if err != nil {
				logging.LogWarning("Error accessing path %s: %v", path, err)
				w.skipped++
				continue
			}
			if err := w.walkEntries(path, children, fn); err != nil {
				return err
			}
		case isFile && IsImageFile(path):
			if err := fn(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// CountImages returns per-format counts of the image files below root
func CountImages(root string, opts WalkOptions) (FileStats, error) {
	var stats FileStats
	err := NewWalker(opts).Walk(root, func(path string) error {
		stats.totalFiles++
		if IsJPEGFormat(path) {
			stats.jpegFiles++
		} else {
			stats.pngFiles++
		}
		return nil
	})
	return stats, err
}

// Total returns the number of image files counted
func (s FileStats) Total() int {
	return s.totalFiles
}
