package trainer

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/neurlang/s2v/checkpoint"
	"github.com/neurlang/s2v/config"
	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/device"
	"github.com/neurlang/s2v/embedding"
	"github.com/neurlang/s2v/network"
	"github.com/neurlang/s2v/runtime"
)

// ErrEmptyEpoch is returned when the training generator yields no batch.
var ErrEmptyEpoch = errors.New("training epoch yielded no batches")

// IsFatal reports whether err belongs to the setup failures that can not be
// fixed by running again: bad configuration, a missing embedding matrix, no
// checkpoint to restore or an empty training set.
func IsFatal(err error) bool {
	for _, target := range []error{config.ErrInvalid, embedding.ErrUnrecoverable, checkpoint.ErrNotFound, ErrEmptyEpoch} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NetworkFactory builds the configured network variant.
type NetworkFactory func(cfg *config.Config, loadMatrix network.MatrixLoader) (network.Network, error)

// Model drives one network through the runtime.
type Model struct {
	cfg  *config.Config
	fs   afero.Fs
	rt   runtime.Context
	data datasets.Builder
	log  *zap.SugaredLogger

	// NewNetwork defaults to network.New.
	NewNetwork NetworkFactory
	// Device describes the host the session is configured for.
	Device device.Info

	net  network.Network
	ckpt *checkpoint.Manager
	best BestTracker
}

// New returns a Model for cfg. The runtime is owned by the Model from now on.
func New(cfg *config.Config, fs afero.Fs, rt runtime.Context, data datasets.Builder, log *zap.SugaredLogger) *Model {
	return &Model{
		cfg:        cfg,
		fs:         fs,
		rt:         rt,
		data:       data,
		log:        log,
		NewNetwork: network.New,
		Device:     device.Discover(),
	}
}

// Network is the network built by the last initialization.
func (m *Model) Network() network.Network {
	return m.net
}

// BestAUC is the best validation AUC seen by Train.
func (m *Model) BestAUC() float64 {
	return m.best.Best()
}

// initialize discards any previous session, builds the network and runs the
// variable initializers.
func (m *Model) initialize() error {
	opts := runtime.Options{
		Seed:               m.cfg.Seed + 2,
		AllowSoftPlacement: true,
		LogDevicePlacement: false,
		Threads:            m.Device.Threads(),
		GPUs:               -1,
	}
	if m.Device.GPUs > 0 {
		opts.GPUs = m.Device.GPUs
	}
	if err := m.rt.Reset(opts); err != nil {
		return errors.Wrap(err, "resetting runtime")
	}
	m.net, m.ckpt = nil, nil

	net, err := m.NewNetwork(m.cfg, m.loadMatrix)
	if err != nil {
		return err
	}
	if err := m.rt.Load(net.GraphPath()); err != nil {
		return errors.Wrapf(err, "loading %s network", net.Type())
	}
	if err := m.rt.Initialize(net.InitFeeds(), net.InitTargets()); err != nil {
		return errors.Wrap(err, "initializing variables")
	}
	m.net = net
	m.log.Debugw("Runtime initialized", "network", net.Type(), "graph", net.GraphPath(),
		"threads", opts.Threads, "gpus", opts.GPUs, "cpu", m.Device.Brand)
	return nil
}

func (m *Model) loadMatrix() (*embedding.Matrix, error) {
	return embedding.Load(m.fs, m.cfg.PathEmbeddingMatrix, embedding.Options{
		Random: m.cfg.RandomEmbeddings,
		Seed:   m.cfg.Seed + 1,
	}, m.log)
}

// createSaver binds the checkpoint manager to the current session.
func (m *Model) createSaver() {
	m.ckpt = checkpoint.New(m.fs, m.rt, m.cfg.CheckpointDir, m.cfg.ModelName())
}

// close releases the session. A close failure is only reported when nothing
// failed before it.
func (m *Model) close(err *error) {
	cerr := m.rt.Close()
	if cerr != nil && *err == nil {
		*err = errors.Wrap(cerr, "closing session")
	}
}
