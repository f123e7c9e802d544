package main

import (
	"fmt"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/neurlang/s2v/config"
	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/logging"
	"github.com/neurlang/s2v/runtime/tfsession"
	"github.com/neurlang/s2v/trainer"
)

type trainCmd struct {
	Restore bool `help:"continue from the latest checkpoint"`
}

type validateCmd struct{}

type testCmd struct{}

type args struct {
	Config           string       `arg:"-c" help:"YAML or JSON configuration file"`
	RandomEmbeddings *bool        `arg:"--random-embeddings" help:"replace the embedding matrix with random values"`
	Seed             *int64       `help:"random seed"`
	CheckpointDir    string       `arg:"--checkpoint-dir" help:"checkpoint directory"`
	LogLevel         string       `arg:"--log-level" help:"debug, info, warn or error"`
	Train            *trainCmd    `arg:"subcommand:train" help:"train the network"`
	Validate         *validateCmd `arg:"subcommand:validate" help:"evaluate the latest checkpoint on the validation set"`
	Test             *testCmd     `arg:"subcommand:test" help:"score the test tables with the latest checkpoint"`
}

func (args) Description() string {
	return "Structure2vec training and evaluation driver"
}

func main() {
	a := args{Config: "s2v.yaml"}
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand: train, validate or test")
	}

	fs := afero.NewOsFs()
	cfg, err := loadConfig(fs, a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(fs, cfg, a, log); err != nil {
		log.Errorw("s2v failed", "error", err, "fatal", trainer.IsFatal(err))
		log.Sync()
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies the command line
// overrides on top of it.
func loadConfig(fs afero.Fs, a args) (*config.Config, error) {
	cfg, err := config.Load(fs, a.Config)
	if err != nil {
		return nil, err
	}
	err = cfg.Apply(config.Overrides{
		RandomEmbeddings: a.RandomEmbeddings,
		Seed:             a.Seed,
		CheckpointDir:    a.CheckpointDir,
		LogLevel:         a.LogLevel,
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(fs afero.Fs, cfg *config.Config, a args, log *zap.SugaredLogger) error {
	log.Infow("Running", "network_type", cfg.NetworkType, "seed", cfg.Seed, "checkpoint_dir", cfg.CheckpointDir)
	m := trainer.New(cfg, fs, tfsession.New(fs), datasets.FileBuilder{Fs: fs}, log)

	switch {
	case a.Train != nil:
		return m.Train(a.Train.Restore)
	case a.Validate != nil:
		_, err := m.Validate()
		return err
	case a.Test != nil:
		return m.Test()
	}
	return errors.New("no subcommand")
}
