// Package config loads imagetagger settings from defaults, an optional YAML
// file, IMAGETAGGER_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imagetagger/classifier"
	"imagetagger/results"
	"imagetagger/scanner"
	"imagetagger/utils"
)

// Backend names accepted by model.backend
const (
	BackendOpenCV = "opencv"
	BackendTFLite = "tflite"
)

// ConfigName is the base name of the optional config file
const ConfigName = "imagetagger"

// Config holds every setting of a run
type Config struct {
	Source          string  `mapstructure:"source"`
	Output          string  `mapstructure:"output"`
	CheckpointEvery int     `mapstructure:"checkpoint_every"`
	TopK            int     `mapstructure:"top_k"`
	Threshold       float64 `mapstructure:"threshold"`
	KeyBy           string  `mapstructure:"key_by"`
	FollowSymlinks  bool    `mapstructure:"follow_symlinks"`

	Model    ModelConfig    `mapstructure:"model"`
	Database DatabaseConfig `mapstructure:"database"`

	Debug   bool   `mapstructure:"debug"`
	LogFile string `mapstructure:"logfile"`
}

// ModelConfig selects the inference backend and its files
type ModelConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"` // empty picks the backend's default model
	Config    string `mapstructure:"config"`
	Labels    string `mapstructure:"labels"`
	InputSize int    `mapstructure:"input_size"`
	Softmax   bool   `mapstructure:"softmax"`
	Threads   int    `mapstructure:"threads"`

	// OpenCV only
	DNNBackend string `mapstructure:"dnn_backend"`
	DNNTarget  string `mapstructure:"dnn_target"`
}

// DatabaseConfig controls the optional SQLite mirror
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"source":           "source",
	"output":           "output",
	"checkpoint-every": "checkpoint_every",
	"top-k":            "top_k",
	"threshold":        "threshold",
	"key-by":           "key_by",
	"follow-symlinks":  "follow_symlinks",
	"backend":          "model.backend",
	"model":            "model.path",
	"labels":           "model.labels",
	"softmax":          "model.softmax",
	"threads":          "model.threads",
	"db":               "database.path",
	"debug":            "debug",
	"logfile":          "logfile",
}

// New returns a viper instance with defaults and environment binding applied
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMAGETAGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", ".")
	v.SetDefault("output", results.DefaultOutputFile)
	v.SetDefault("checkpoint_every", scanner.DefaultCheckpointEvery)
	v.SetDefault("top_k", classifier.DefaultTopK)
	v.SetDefault("threshold", classifier.DefaultThreshold)
	v.SetDefault("key_by", string(scanner.KeyByName))
	v.SetDefault("follow_symlinks", false)

	v.SetDefault("model.backend", BackendOpenCV)
	v.SetDefault("model.path", "")
	v.SetDefault("model.config", "")
	v.SetDefault("model.labels", filepath.Join("models", "imagenet_class_index.json"))
	v.SetDefault("model.input_size", classifier.DefaultInputSize)
	v.SetDefault("model.softmax", false)
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.dnn_backend", "")
	v.SetDefault("model.dnn_target", "")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.path", utils.GetDefaultDatabasePath())

	v.SetDefault("debug", false)
	v.SetDefault("logfile", "imagetagger.log")
}

// DefaultModelPath returns the model file used when model.path is empty
func DefaultModelPath(backend string) string {
	if backend == BackendTFLite {
		return filepath.Join("models", "mobilenet_v2.tflite")
	}
	return filepath.Join("models", "mobilenet_v2.onnx")
}

// BindFlags binds every known flag present in flags to its configuration key.
// Setting --db explicitly also enables the database.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "cannot bind flag --%s", name)
		}
	}
	if f := flags.Lookup("db"); f != nil && f.Changed {
		v.Set("database.enabled", true)
	}
	return nil
}

// Load reads the config file, if any, and returns the validated settings.
// configFile overrides the search in the working directory and
// $HOME/.config/imagetagger.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	// Flags, environment variables and quoted YAML values arrive as strings
	if raw, ok := v.Get("threshold").(string); ok {
		threshold, err := utils.ParseThreshold(raw)
		if err != nil {
			return nil, err
		}
		v.Set("threshold", threshold)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	cfg.Model.Backend = strings.ToLower(strings.TrimSpace(cfg.Model.Backend))
	if cfg.Model.Path == "" {
		cfg.Model.Path = DefaultModelPath(cfg.Model.Backend)
	}
	cfg.Model.Path = utils.ResolveNearExecutable(cfg.Model.Path)
	cfg.Model.Labels = utils.ResolveNearExecutable(cfg.Model.Labels)
	cfg.Model.Config = utils.ResolveNearExecutable(cfg.Model.Config)
	if cfg.Database.Path == "" {
		cfg.Database.Path = utils.GetDefaultDatabasePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings for values the classifier cannot work with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("source folder must not be empty")
	}
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("output file must not be empty")
	}
	if err := utils.ValidateThreshold(c.Threshold); err != nil {
		return err
	}
	if c.TopK < 1 {
		return errors.Newf("top_k must be at least 1, got %d", c.TopK)
	}
	if c.CheckpointEvery < 1 {
		return errors.Newf("checkpoint_every must be at least 1, got %d", c.CheckpointEvery)
	}
	if c.Model.InputSize < 1 {
		return errors.Newf("model.input_size must be positive, got %d", c.Model.InputSize)
	}
	switch c.Model.Backend {
	case BackendOpenCV, BackendTFLite:
	default:
		return errors.WithHint(
			errors.Newf("unknown backend %q", c.Model.Backend),
			"use \"opencv\" or \"tflite\"")
	}
	switch scanner.KeyMode(c.KeyBy) {
	case scanner.KeyByName, scanner.KeyByPath:
	default:
		return errors.WithHint(
			errors.Newf("unknown key_by %q", c.KeyBy),
			"use \"name\" or \"path\"")
	}
	return nil
}

// ClassifierOptions returns the backend-independent classifier settings
func (c *Config) ClassifierOptions() classifier.Options {
	return classifier.Options{
		ModelPath:  c.Model.Path,
		ConfigPath: c.Model.Config,
		LabelsPath: c.Model.Labels,
		InputSize:  c.Model.InputSize,
		TopK:       c.TopK,
		Threshold:  c.Threshold,
		Softmax:    c.Model.Softmax,
		Threads:    c.Model.Threads,
	}
}

// ScanOptions returns the driver settings; mirrors are attached by the caller
func (c *Config) ScanOptions() scanner.ScanOptions {
	return scanner.ScanOptions{
		FolderPath:      c.Source,
		CheckpointEvery: c.CheckpointEvery,
		KeyBy:           scanner.KeyMode(c.KeyBy),
		FollowSymlinks:  c.FollowSymlinks,
	}
}
