package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"imagetagger/classifier"
	"imagetagger/config"
	"imagetagger/database"
	"imagetagger/imageprocessor"
	"imagetagger/logging"
	"imagetagger/results"
	"imagetagger/scanner"
	"imagetagger/signalhandler"
	"imagetagger/tensorprocessor"
	"imagetagger/utils"
)

// classifierFactory builds the configured backend; replaced in tests
var classifierFactory = newClassifier

func handleClassifyCommand(cmd *cobra.Command, v *viper.Viper, opts *cliOptions) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, v, opts)
	if err != nil {
		return err
	}

	closeLog := setupLogging(out, cfg)
	defer closeLog()

	// Verify folder path exists and is accessible
	folderInfo, err := os.Stat(cfg.Source)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Newf("source folder does not exist: %s", cfg.Source)
		}
		return errors.Wrapf(err, "cannot access source folder %s", cfg.Source)
	}
	if !folderInfo.IsDir() {
		return errors.Newf("source is not a directory: %s", cfg.Source)
	}

	c, err := classifierFactory(cfg)
	if err != nil {
		logging.LogError("Classifier setup failed: %v", err)
		reportSetupFailure(out, cmd.InOrStdin(), err, opts.noWait)
		return nil
	}
	defer c.Close()

	ctx, cancel := signalhandler.SetupHandler(cmd.Context())
	defer cancel()

	scanOptions := cfg.ScanOptions()
	scanOptions.Out = out
	scanOptions.RunID = uuid.NewString()

	var mirror *database.Mirror
	if cfg.Database.Enabled {
		db, m := openMirror(cfg)
		if db != nil {
			defer db.Close()
		}
		if m != nil {
			mirror = m
			scanOptions.RunID = m.RunID()
			scanOptions.Mirrors = append(scanOptions.Mirrors, m)
		}
	}

	output := results.NewJSONFile(cfg.Output)
	stats, err := scanner.ClassifyFolder(ctx, c, output, scanOptions)

	if mirror != nil {
		if finishErr := mirror.FinishRun(stats); finishErr != nil {
			logging.LogWarning("Could not record run in database: %v", finishErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if stats.Interrupted {
		fmt.Fprintf(out, "Partial results written to: %s\n", cfg.Output)
	} else {
		fmt.Fprintf(out, "Classification complete. Output written to: %s\n", cfg.Output)
	}
	if mirror != nil {
		fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)
	}
	return nil
}

// newClassifier creates the backend selected by model.backend
func newClassifier(cfg *config.Config) (classifier.Classifier, error) {
	opts := cfg.ClassifierOptions()

	switch cfg.Model.Backend {
	case config.BackendTFLite:
		return tensorprocessor.NewTFLiteClassifier(opts)
	default:
		return imageprocessor.NewDNNClassifier(imageprocessor.DNNOptions{
			Options: opts,
			Backend: cfg.Model.DNNBackend,
			Target:  cfg.Model.DNNTarget,
		})
	}
}

// openMirror opens the results database and starts a run. Database problems
// never stop a classification; they are logged and the mirror is skipped.
func openMirror(cfg *config.Config) (*sql.DB, *database.Mirror) {
	db, err := database.InitDatabase(cfg.Database.Path)
	if err != nil {
		logging.LogWarning("Database disabled: %v", err)
		return nil, nil
	}

	source, err := filepath.Abs(cfg.Source)
	if err != nil {
		source = cfg.Source
	}

	mirror := database.NewMirror(db, cfg.Database.Path)
	if _, err := mirror.BeginRun(source); err != nil {
		logging.LogWarning("Database disabled: %v", err)
		return db, nil
	}
	return db, mirror
}

// setupLogging enables the debug log file when requested and returns the
// function that closes it
func setupLogging(out io.Writer, cfg *config.Config) func() {
	if !cfg.Debug {
		return func() {}
	}
	if err := logging.SetupLogger(cfg.LogFile); err != nil {
		fmt.Fprintf(out, "Warning: Failed to setup logging: %v\n", err)
		return func() {}
	}
	fmt.Fprintf(out, "Debug mode enabled. Logging to: %s\n", cfg.LogFile)
	return logging.CloseLogger
}

// reportSetupFailure explains why no classifier is available and waits for
// the user to acknowledge, so the message stays visible when the program was
// started from a file manager
func reportSetupFailure(out io.Writer, in io.Reader, err error, noWait bool) {
	fmt.Fprintf(out, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(out, "\n%s\n", hint)
	}
	if noWait {
		return
	}
	fmt.Fprint(out, "\nPress ENTER to exit...")
	_, _ = bufio.NewReader(in).ReadString('\n')
}

func handleSearchCommand(cmd *cobra.Command, v *viper.Viper, opts *cliOptions, tag string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, v, opts)
	if err != nil {
		return err
	}
	closeLog := setupLogging(out, cfg)
	defer closeLog()

	if cfg.Database.Enabled {
		db, err := database.OpenDatabase(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		matches, err := database.FindByTag(db, tag)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Images tagged %q in %s:\n", tag, cfg.Database.Path)
		if len(matches) == 0 {
			fmt.Fprintln(out, "No matches found.")
			return nil
		}
		for i, m := range matches {
			fmt.Fprintf(out, "%d. %s %s\n", i+1, m.Path, utils.FormatTags(m.Tags))
		}
		return nil
	}

	records, err := results.Load(cfg.Output)
	if err != nil {
		return errors.WithHint(err, "run a classification first or pass --output")
	}
	keys := results.FindByTag(records, tag)
	fmt.Fprintf(out, "Images tagged %q in %s:\n", tag, cfg.Output)
	if len(keys) == 0 {
		fmt.Fprintln(out, "No matches found.")
		return nil
	}
	for i, key := range keys {
		rec := records[key]
		fmt.Fprintf(out, "%d. %s %s\n", i+1, rec.Path, utils.FormatTags(rec.AITags))
	}
	return nil
}

func handleStatsCommand(cmd *cobra.Command, v *viper.Viper, opts *cliOptions) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, v, opts)
	if err != nil {
		return err
	}
	closeLog := setupLogging(out, cfg)
	defer closeLog()

	if cfg.Database.Enabled {
		db, err := database.OpenDatabase(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := database.GetScanStats(db, opts.topTags)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)
		if run := stats.LastRun; run != nil {
			fmt.Fprintf(out, "Last run: %s (%s)\n", run.ID, run.Source)
			fmt.Fprintf(out, "- Started: %s\n", run.StartedAt)
			if run.FinishedAt != "" {
				fmt.Fprintf(out, "- Finished: %s\n", run.FinishedAt)
			} else {
				fmt.Fprintln(out, "- Finished: never (interrupted or still running)")
			}
			fmt.Fprintf(out, "- Processed: %d, errors: %d, checkpoints: %d\n", run.Processed, run.Failed, run.Checkpoints)
		}
		counts := make([]results.TagCount, 0, len(stats.TopTags))
		for _, tc := range stats.TopTags {
			counts = append(counts, results.TagCount{Tag: tc.Tag, Count: tc.Count})
		}
		printSummary(out, results.Summary{
			Images:     stats.TotalImages,
			Tagged:     stats.TaggedImages,
			UniqueTags: stats.UniqueTags,
			TopTags:    counts,
		})
		return nil
	}

	records, err := results.Load(cfg.Output)
	if err != nil {
		return errors.WithHint(err, "run a classification first or pass --output")
	}
	fmt.Fprintf(out, "Results: %s\n", cfg.Output)
	printSummary(out, results.Summarize(records, opts.topTags))
	return nil
}

func printSummary(out io.Writer, s results.Summary) {
	fmt.Fprintf(out, "\nSummary:\n")
	fmt.Fprintf(out, "- Images: %d\n", s.Images)
	fmt.Fprintf(out, "- Images with tags: %d\n", s.Tagged)
	fmt.Fprintf(out, "- Distinct tags: %d\n", s.UniqueTags)
	if len(s.TopTags) == 0 {
		return
	}
	fmt.Fprintln(out, "\nMost frequent tags:")
	for _, tc := range s.TopTags {
		fmt.Fprintf(out, "  %-24s %d\n", tc.Tag, tc.Count)
	}
}
