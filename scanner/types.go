package scanner

import (
	"io"

	"imagetagger/classifier"
	"imagetagger/types"
)

// DefaultCheckpointEvery is the number of processed files between checkpoints
const DefaultCheckpointEvery = 100

// KeyMode selects how results are keyed in the result store
type KeyMode string

const (
	// KeyByName keys results by base file name; same-named files in different
	// directories overwrite each other and the last one walked wins.
	KeyByName KeyMode = "name"
	// KeyByPath keys results by the walked path
	KeyByPath KeyMode = "path"
)

// Checkpointer receives the complete result set on every checkpoint
type Checkpointer interface {
	Name() string
	Checkpoint(records map[string]types.ImageRecord) error
}

// ScanOptions defines the options for a classification run
type ScanOptions struct {
	RunID           string // reported in the completion log, optional
	FolderPath      string
	CheckpointEvery int
	KeyBy           KeyMode
	FollowSymlinks  bool
	Mirrors         []Checkpointer // best-effort sinks written after the primary output
	Out             io.Writer      // console output, os.Stdout when nil
}

// ProcessImageResult holds the result of classifying one image. Exactly one of
// Prediction (Success) or Error is meaningful.
type ProcessImageResult struct {
	Path       string
	Name       string
	Success    bool
	Prediction classifier.Prediction
	Error      *classifier.ClassificationError
}

// FileStats tracks information about files to be processed
type FileStats struct {
	totalFiles int
	jpegFiles  int
	pngFiles   int
}

// ProgressTracker tracks progress of the classification run
type ProgressTracker struct {
	processed  int
	succeeded  int
	errors     int
	totalFiles int
	out        io.Writer
}
