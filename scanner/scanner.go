package scanner

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"imagetagger/classifier"
	"imagetagger/logging"
	"imagetagger/results"
	"imagetagger/types"
)

// ClassifyFolder walks options.FolderPath, classifies every image with c and
// keeps the results in memory. The full result set is handed to output every
// CheckpointEvery processed files and once more when the walk ends. Files that
// fail to classify are reported and left out of the results.
//
// Cancelling ctx stops the walk before the next file; the final checkpoint is
// still written and ctx.Err() is returned.
func ClassifyFolder(ctx context.Context, c classifier.Classifier, output Checkpointer, options ScanOptions) (types.ScanStats, error) {
	options = withDefaults(options)
	startTime := time.Now()

	walkOpts := WalkOptions{FollowSymlinks: options.FollowSymlinks}

	logging.DebugLog("Starting classification on folder: %s", options.FolderPath)
	fileStats, err := CountImages(options.FolderPath, walkOpts)
	if err != nil {
		logging.LogWarning("Could not count image files: %v", err)
	}

	PrintStartupInfo(options.Out, fileStats, options)

	run := &classificationRun{
		classifier: c,
		output:     output,
		options:    options,
		store:      results.NewStore(),
		tracker:    NewProgressTracker(fileStats, options.Out),
	}
	run.stats.RunID = options.RunID
	run.stats.Source = options.FolderPath
	run.stats.Total = fileStats.Total()

	walker := NewWalker(walkOpts)
	walkErr := walker.Walk(options.FolderPath, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.process(path)
		return nil
	})

	if walkErr != nil && ctx.Err() != nil && errors.Is(walkErr, ctx.Err()) {
		run.stats.Interrupted = true
		logging.LogWarning("Classification interrupted after %d files", run.counter)
	} else if walkErr != nil {
		logging.LogError("Walk of %s failed: %v", options.FolderPath, walkErr)
	}

	// Final checkpoint, even if the last batch boundary was just flushed
	finalErr := run.checkpoint()

	run.stats.Duration = time.Since(startTime)
	PrintCompletionStats(options.Out, run.stats)

	if finalErr != nil {
		return run.stats, errors.Wrap(finalErr, "final checkpoint failed")
	}
	return run.stats, walkErr
}

// classificationRun is the state of one ClassifyFolder call
type classificationRun struct {
	classifier classifier.Classifier
	output     Checkpointer
	options    ScanOptions
	store      *results.Store
	tracker    *ProgressTracker
	counter    int
	stats      types.ScanStats
}

func (r *classificationRun) process(path string) {
	result := classifyImage(r.classifier, path)
	r.tracker.Record(result)

	if result.Success {
		r.stats.Succeeded++
		r.storeResult(result)
	} else {
		r.stats.Failed++
	}

	r.counter++
	r.stats.Processed = r.counter

	if r.counter%r.options.CheckpointEvery == 0 {
		if err := r.checkpoint(); err != nil {
			// The next checkpoint rewrites everything, so keep going
			logging.LogWarning("Checkpoint after %d files failed: %v", r.counter, err)
		}
		r.tracker.PrintProgress()
	}
}

func (r *classificationRun) storeResult(result ProcessImageResult) {
	key := result.Name
	if r.options.KeyBy == KeyByPath {
		key = result.Path
	}

	rec := types.ImageRecord{Path: result.Path, AITags: result.Prediction.Tags()}
	if prev := r.store.Put(key, rec); prev != nil && prev.Path != result.Path {
		r.stats.Collisions++
		logging.LogWarning("Result for %s replaced: %s overwrites %s", key, result.Path, prev.Path)
	}
}

// checkpoint writes the full store to the primary output and then to each
// mirror. Only a primary failure is returned.
func (r *classificationRun) checkpoint() error {
	records := r.store.Records()

	err := r.output.Checkpoint(records)
	if err == nil {
		r.stats.Checkpoints++
		logging.DebugLog("Checkpoint %d: %d records written to %s", r.stats.Checkpoints, len(records), r.output.Name())
	}

	for _, mirror := range r.options.Mirrors {
		if mErr := mirror.Checkpoint(records); mErr != nil {
			logging.LogWarning("Mirror %s checkpoint failed: %v", mirror.Name(), mErr)
		}
	}
	return err
}

// classifyImage runs the classifier on one file and folds the outcome into a
// ProcessImageResult. Panics inside the classifier become failures.
func classifyImage(c classifier.Classifier, path string) (result ProcessImageResult) {
	result = ProcessImageResult{
		Path: path,
		Name: filepath.Base(path),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = classifier.NewClassificationError(path, errors.Newf("classifier panic: %v", r))
		}
	}()

	pred, err := c.Classify(path)
	if err != nil {
		result.Error = classifier.NewClassificationError(path, err)
		return result
	}

	result.Success = true
	result.Prediction = pred
	return result
}

func withDefaults(options ScanOptions) ScanOptions {
	if options.CheckpointEvery <= 0 {
		options.CheckpointEvery = DefaultCheckpointEvery
	}
	if options.KeyBy == "" {
		options.KeyBy = KeyByName
	}
	if options.Out == nil {
		options.Out = os.Stdout
	}
	return options
}
