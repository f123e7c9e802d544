// Package config loads and validates the run configuration of the s2v driver.
package config

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration error. It is unrecoverable.
var ErrInvalid = errors.New("invalid configuration")

// Network variant names accepted in network_type.
const (
	Annotations   = "annotations"
	ArithMean     = "arith_mean"
	AttentionMean = "attention_mean"
	RNN           = "rnn"
)

// NetworkTypes lists the accepted network_type values.
var NetworkTypes = []string{Annotations, ArithMean, AttentionMean, RNN}

// Training holds the training hyperparameters.
type Training struct {
	NumEpochs  int    `yaml:"num_epochs"`
	PrintAfter int    `yaml:"print_after"`
	Batches    string `yaml:"batches"`
}

// Validation holds the validation split location.
type Validation struct {
	Batches string `yaml:"batches"`
}

// Testing holds the parallel lists of test input and output CSV files.
type Testing struct {
	FullTestsInputs  []string `yaml:"full_tests_inputs"`
	FullTestsOutputs []string `yaml:"full_tests_outputs"`
}

// Config is the run configuration. It is read-only once Load returns.
type Config struct {
	NetworkType         string `yaml:"network_type"`
	Seed                int64  `yaml:"seed"`
	PathEmbeddingMatrix string `yaml:"path_embedding_matrix"`
	RandomEmbeddings    bool   `yaml:"random_embeddings"`
	CheckpointDir       string `yaml:"checkpoint_dir"`
	GraphDir            string `yaml:"graph_dir"`
	LogLevel            string `yaml:"log_level"`

	Training   Training   `yaml:"training"`
	Validation Validation `yaml:"validation"`
	Testing    Testing    `yaml:"testing"`
}

// Default returns a configuration with the defaults applied.
func Default() Config {
	return Config{
		NetworkType: ArithMean,
		Seed:        11,
		LogLevel:    "info",
		Training: Training{
			NumEpochs:  10,
			PrintAfter: 1250,
		},
	}
}

// Parse decodes YAML or JSON configuration on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "decoding: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the configuration file at path.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "reading %s: %v", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if !IsNetworkType(c.NetworkType) {
		return errors.Wrapf(ErrInvalid, "unknown network_type %q", c.NetworkType)
	}
	if c.NetworkType != Annotations && c.PathEmbeddingMatrix == "" {
		return errors.Wrapf(ErrInvalid, "path_embedding_matrix is required for %s", c.NetworkType)
	}
	if c.CheckpointDir == "" {
		return errors.Wrap(ErrInvalid, "checkpoint_dir is required")
	}
	if c.GraphDir == "" {
		return errors.Wrap(ErrInvalid, "graph_dir is required")
	}
	if c.Training.PrintAfter <= 0 {
		return errors.Wrapf(ErrInvalid, "training.print_after must be positive, got %d", c.Training.PrintAfter)
	}
	if c.Training.NumEpochs < 0 {
		return errors.Wrapf(ErrInvalid, "training.num_epochs must not be negative, got %d", c.Training.NumEpochs)
	}
	if len(c.Testing.FullTestsInputs) != len(c.Testing.FullTestsOutputs) {
		return errors.Wrapf(ErrInvalid, "testing has %d inputs but %d outputs",
			len(c.Testing.FullTestsInputs), len(c.Testing.FullTestsOutputs))
	}
	return nil
}

// ModelName is the checkpoint name prefix, s2v-{network_type}.
func (c *Config) ModelName() string {
	return "s2v-" + c.NetworkType
}

// GraphPath is the exported graph definition of the configured variant.
func (c *Config) GraphPath() string {
	return filepath.Join(c.GraphDir, c.ModelName()+".pb")
}

// IsNetworkType reports whether name is a known network variant.
func IsNetworkType(name string) bool {
	for _, t := range NetworkTypes {
		if t == name {
			return true
		}
	}
	return false
}

// Overrides are command line values replacing the file ones when set.
type Overrides struct {
	RandomEmbeddings *bool
	Seed             *int64
	CheckpointDir    string
	LogLevel         string
}

// Apply sets the overrides on c and validates the result.
func (c *Config) Apply(o Overrides) error {
	if o.RandomEmbeddings != nil {
		c.RandomEmbeddings = *o.RandomEmbeddings
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.CheckpointDir != "" {
		c.CheckpointDir = o.CheckpointDir
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	return errors.WithMessage(c.Validate(), "command line")
}
