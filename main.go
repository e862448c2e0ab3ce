package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imagetagger/classifier"
	"imagetagger/config"
	"imagetagger/results"
	"imagetagger/scanner"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "%s\n", hint)
		}
		os.Exit(1)
	}
}

// cliOptions holds flags that are not part of the persisted configuration
type cliOptions struct {
	configFile string
	noWait     bool
	topTags    int
}

// newRootCommand builds the command tree. Running the root command without a
// subcommand classifies the configured source folder.
func newRootCommand() *cobra.Command {
	opts := &cliOptions{}
	v := config.New()

	rootCmd := &cobra.Command{
		Use:   "imagetagger",
		Short: "Tag photos with ImageNet labels using MobileNetV2",
		Long: "imagetagger walks a folder, classifies every JPEG and PNG image with a\n" +
			"pretrained MobileNetV2 model and writes the top labels per image to a JSON file.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleClassifyCommand(cmd, v, opts)
		},
	}

	setupGlobalFlags(rootCmd.PersistentFlags(), opts)
	setupClassifyFlags(rootCmd.Flags(), opts)

	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify all images below the source folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleClassifyCommand(cmd, v, opts)
		},
	}
	setupClassifyFlags(classifyCmd.Flags(), opts)

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "List images carrying a tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, _ := cmd.Flags().GetString("tag")
			return handleSearchCommand(cmd, v, opts, tag)
		},
	}
	searchCmd.Flags().String("tag", "", "Tag to search for, e.g. tabby")
	searchCmd.Flags().String("output", results.DefaultOutputFile, "Output file to search when no database is used")
	_ = searchCmd.MarkFlagRequired("tag")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the latest classification results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleStatsCommand(cmd, v, opts)
		},
	}
	statsCmd.Flags().String("output", results.DefaultOutputFile, "Output file to summarize when no database is used")
	statsCmd.Flags().IntVar(&opts.topTags, "top", 10, "Number of most frequent tags to show")

	rootCmd.AddCommand(classifyCmd, searchCmd, statsCmd)
	return rootCmd
}

// setupGlobalFlags defines flags shared by every command
func setupGlobalFlags(flags *pflag.FlagSet, opts *cliOptions) {
	flags.StringVar(&opts.configFile, "config", "", "Config file (default ./imagetagger.yaml or $HOME/.config/imagetagger/imagetagger.yaml)")
	flags.BoolP("debug", "d", false, "Enable debug logging to the log file")
	flags.String("logfile", "imagetagger.log", "Debug log file")
	flags.String("db", "", "SQLite database mirroring the results (enables the database)")
}

// setupClassifyFlags defines the flags of a classification run
func setupClassifyFlags(flags *pflag.FlagSet, opts *cliOptions) {
	flags.StringP("source", "s", ".", "Folder to classify")
	flags.StringP("output", "o", results.DefaultOutputFile, "JSON file receiving the results")
	flags.String("backend", config.BackendOpenCV, "Inference backend: opencv or tflite")
	flags.String("model", "", "Model file (default models/mobilenet_v2.onnx, or .tflite for the tflite backend)")
	flags.String("labels", "models/imagenet_class_index.json", "ImageNet labels file")
	flags.Float64("threshold", classifier.DefaultThreshold, "Minimum confidence for a tag (exclusive)")
	flags.Int("top-k", classifier.DefaultTopK, "Maximum number of tags per image")
	flags.Int("checkpoint-every", scanner.DefaultCheckpointEvery, "Write results after this many files")
	flags.String("key-by", string(scanner.KeyByName), "Result key: name (base name) or path")
	flags.Bool("follow-symlinks", false, "Descend into symlinked directories")
	flags.Bool("softmax", false, "Apply softmax to raw model outputs")
	flags.Int("threads", 0, "Inference threads, 0 picks a value from the CPU count")
	flags.BoolVar(&opts.noWait, "no-wait", false, "Do not wait for ENTER after a setup failure")
}

// loadConfig binds the command's flags and reads the configuration
func loadConfig(cmd *cobra.Command, v *viper.Viper, opts *cliOptions) (*config.Config, error) {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v, opts.configFile)
}
