package scanner

import (
	"fmt"
	"io"
	"time"

	"imagetagger/logging"
	"imagetagger/types"
	"imagetagger/utils"
)

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(stats FileStats, out io.Writer) *ProgressTracker {
	return &ProgressTracker{
		totalFiles: stats.totalFiles,
		out:        out,
	}
}

// Record counts one result and prints its console line
func (p *ProgressTracker) Record(result ProcessImageResult) {
	p.processed++

	if !result.Success {
		p.errors++
		cause := result.Error.Err.Error()
		fmt.Fprintf(p.out, "[ERROR] %s: %s\n", result.Name, cause)
		logging.LogImageProcessed(result.Path, false, nil, cause)
		return
	}

	p.succeeded++
	tags := result.Prediction.Tags()
	top := result.Prediction.Top
	fmt.Fprintf(p.out, "[OK] %s -> %s (Top: %s %.2f)\n",
		result.Name, utils.FormatTags(tags), top.Label, top.Confidence)
	logging.LogImageProcessed(result.Path, true, tags, "")
}

// PrintProgress prints a one-line progress summary
func (p *ProgressTracker) PrintProgress() {
	if p.errors > 0 {
		fmt.Fprintf(p.out, "Progress: %d/%d (Errors: %d)\n", p.processed, p.totalFiles, p.errors)
	} else {
		fmt.Fprintf(p.out, "Progress: %d/%d\n", p.processed, p.totalFiles)
	}
}

// PrintStartupInfo displays information about the run before starting
func PrintStartupInfo(out io.Writer, stats FileStats, options ScanOptions) {
	fmt.Fprintf(out, "Classifying images in: %s\n", options.FolderPath)
	fmt.Fprintf(out, "Total image files to process: %d (%d JPEG, %d PNG)\n",
		stats.totalFiles, stats.jpegFiles, stats.pngFiles)
	if options.KeyBy == KeyByPath {
		fmt.Fprintf(out, "Results keyed by: full path\n")
	}

	logging.DebugLog("Found %d image files to process (%d JPEG, %d PNG), checkpoint every %d",
		stats.totalFiles, stats.jpegFiles, stats.pngFiles, options.CheckpointEvery)
}

// PrintCompletionStats displays statistics after the run
func PrintCompletionStats(out io.Writer, stats types.ScanStats) {
	logging.DebugLog("Run %s completed in %v. Processed: %d, Tagged: %d, Errors: %d, Collisions: %d, Checkpoints: %d",
		stats.RunID, stats.Duration, stats.Processed, stats.Succeeded, stats.Failed, stats.Collisions, stats.Checkpoints)

	if stats.Interrupted {
		fmt.Fprintln(out, "\nClassification interrupted.")
	} else {
		fmt.Fprintln(out, "\nClassification complete.")
	}
	elapsed := stats.Duration.Round(time.Second)
	if stats.Processed < stats.Total {
		fmt.Fprintf(out, "Processed %d of %d images in %v.\n", stats.Processed, stats.Total, elapsed)
	} else {
		fmt.Fprintf(out, "Processed %d images in %v.\n", stats.Processed, elapsed)
	}

	if stats.Collisions > 0 {
		fmt.Fprintf(out, "%d results were overwritten by files with the same name.\n", stats.Collisions)
	}

	if stats.Failed > 0 {
		fmt.Fprintf(out, "Encountered %d errors during classification.\n", stats.Failed)
		if path := logging.LogFilePath(); path != "" {
			fmt.Fprintf(out, "Check the log file for details: %s\n", path)
		} else {
			fmt.Fprintln(out, "See the [ERROR] lines above for details.")
		}
	}
}
