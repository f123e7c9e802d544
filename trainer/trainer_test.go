package trainer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neurlang/s2v/checkpoint"
	"github.com/neurlang/s2v/config"
	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/device"
	"github.com/neurlang/s2v/embedding"
	"github.com/neurlang/s2v/network"
	"github.com/neurlang/s2v/runtime"
	"github.com/neurlang/s2v/runtime/runtimetest"
	"github.com/neurlang/s2v/tensor"
)

type builder struct {
	training, validation datasets.Generator
	testing              map[string]datasets.Generator
}

func (b *builder) TrainValidation(*config.Config) (datasets.Generator, datasets.Generator, error) {
	return b.training, b.validation, nil
}

func (b *builder) Testing(_ *config.Config, input string) (datasets.Generator, error) {
	g, ok := b.testing[input]
	if !ok {
		return nil, errors.Errorf("no test batches for %s", input)
	}
	return g, nil
}

func batch(labels ...float32) *datasets.Batch {
	fields := map[string]*tensor.Tensor{}
	for _, side := range []string{"left", "right"} {
		fields["graph_sizes_"+side] = tensor.NewInt32([]int64{1}, []int32{1})
		fields["adj_"+side] = tensor.NewFloat32([]int64{1, 1}, []float32{0})
		fields["annotations_"+side] = tensor.NewFloat32([]int64{1, 1}, []float32{1})
	}
	return &datasets.Batch{Fields: fields, Labels: labels}
}

func trainingSet(n int) datasets.Slice {
	s := make(datasets.Slice, n)
	for i := range s {
		s[i] = batch(1, -1)
	}
	return s
}

// validationScores are scores of a {1, 1, -1, -1} batch with a known AUC.
var validationScores = map[float64][]float32{
	1:    {0.9, 0.8, 0.2, 0.1},
	0.75: {0.9, 0.3, 0.5, 0.1},
	0.5:  {0.9, 0.1, 0.5, 0.4},
	0.25: {0.1, 0.7, 0.9, 0.3},
}

type harness struct {
	rt    *runtimetest.Fake
	fs    afero.Fs
	cfg   *config.Config
	data  *builder
	logs  *observer.ObservedLogs
	model *Model

	steps int
}

// newHarness returns a Model over a fake runtime. Validation passes answer
// with the given AUCs in order, the first one being the baseline.
func newHarness(t *testing.T, trainBatches int, aucs ...float64) *harness {
	cfg := config.Default()
	cfg.NetworkType = config.Annotations
	cfg.CheckpointDir = "/ckpt"
	cfg.GraphDir = "/graphs"
	require.NoError(t, cfg.Validate())

	h := &harness{
		rt:  &runtimetest.Fake{},
		fs:  afero.NewMemMapFs(),
		cfg: &cfg,
		data: &builder{
			training:   trainingSet(trainBatches),
			validation: datasets.Slice{batch(1, 1, -1, -1)},
			testing:    map[string]datasets.Generator{},
		},
	}

	var scored int
	h.rt.OnRun = func(feeds map[string]*tensor.Tensor, fetches, targets []string) (map[string]*tensor.Tensor, error) {
		if len(targets) > 0 {
			assert.Equal(t, []string{network.TrainStepOp}, targets)
			assert.Equal(t, []string{network.LossOp, network.PairAUCOp}, fetches)
			loss := float32(h.steps)
			h.steps++
			return map[string]*tensor.Tensor{
				network.LossOp:    tensor.Scalar(loss),
				network.PairAUCOp: tensor.Scalar(0.5),
			}, nil
		}

		n := feeds["placeholders/labels"].Len()
		if n == 4 {
			if len(aucs) == 0 {
				return nil, errors.New("unexpected validation pass")
			}
			s := validationScores[aucs[0]]
			require.NotNil(t, s, "no scores for AUC %v", aucs[0])
			aucs = aucs[1:]
			return map[string]*tensor.Tensor{network.SimilarityOp: tensor.NewFloat32([]int64{4}, s)}, nil
		}

		out := make([]float32, n)
		for i := range out {
			scored++
			out[i] = float32(scored) / 10
		}
		return map[string]*tensor.Tensor{network.SimilarityOp: tensor.NewFloat32([]int64{int64(n)}, out)}, nil
	}

	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	h.model = New(h.cfg, h.fs, h.rt, h.data, zap.New(core).Sugar())
	h.model.Device = device.Info{PhysicalCores: 4, LogicalCores: 8}
	return h
}

func (h *harness) messages(prefix string) []string {
	var out []string
	for _, e := range h.logs.All() {
		if strings.HasPrefix(e.Message, prefix) {
			out = append(out, e.Message)
		}
	}
	return out
}

func (h *harness) saveCheckpoint(t *testing.T, it int) {
	require.NoError(t, afero.WriteFile(h.fs, "/ckpt/checkpoint", []byte(fmt.Sprintf(
		"model_checkpoint_path: \"s2v-annotations-%d\"\nall_model_checkpoint_paths: \"s2v-annotations-%d\"\n", it, it)), 0644))
}

func TestTrainFlushCadence(t *testing.T) {
	h := newHarness(t, 7, 0.5, 0.5)
	h.cfg.Training.NumEpochs = 1
	h.cfg.Training.PrintAfter = 3

	require.NoError(t, h.model.Train(false))

	iters := h.messages("Iter ")
	require.Len(t, iters, 2)
	// losses are the step numbers, so each window averages its middle step
	assert.True(t, strings.HasPrefix(iters[0], "Iter 3,  loss 1.0000,  pair_auc 0.5000, time "), iters[0])
	assert.True(t, strings.HasPrefix(iters[1], "Iter 6,  loss 4.0000,  pair_auc 0.5000, time "), iters[1])
	assert.Equal(t, 7, h.steps)
	assert.Equal(t, []string{"/ckpt/s2v-annotations-7"}, h.rt.Saved)
}

func TestTrainBestIsMonotone(t *testing.T) {
	h := newHarness(t, 2, 0.5, 0.75, 0.25, 1, 0.5)
	h.cfg.Training.NumEpochs = 4

	require.NoError(t, h.model.Train(false))

	assert.Equal(t, 1.0, h.model.BestAUC())
	var warnings []string
	for _, e := range h.logs.FilterLevelExact(zapcore.WarnLevel).All() {
		warnings = append(warnings, e.Message)
	}
	assert.Equal(t, []string{"best_val_auc: 0.7500", "best_val_auc: 1.0000"}, warnings)

	// a checkpoint per epoch, improving or not
	assert.Equal(t, []string{
		"/ckpt/s2v-annotations-2",
		"/ckpt/s2v-annotations-4",
		"/ckpt/s2v-annotations-6",
		"/ckpt/s2v-annotations-8",
	}, h.rt.Saved)
	assert.Len(t, h.messages("End of Epoch "), 4)
	assert.Equal(t, 1, h.rt.Closes)
	assert.False(t, h.rt.Open())
}

func TestTrainInitializesRuntime(t *testing.T) {
	h := newHarness(t, 1, 0.5, 0.5)
	h.cfg.Training.NumEpochs = 1
	h.cfg.Seed = 40

	require.NoError(t, h.model.Train(false))

	require.Len(t, h.rt.Resets, 1)
	opts := h.rt.Resets[0]
	assert.Equal(t, int64(42), opts.Seed)
	assert.True(t, opts.AllowSoftPlacement)
	assert.False(t, opts.LogDevicePlacement)
	assert.Equal(t, 4, opts.Threads)
	assert.Equal(t, -1, opts.GPUs)

	assert.Equal(t, []string{"/graphs/s2v-annotations.pb"}, h.rt.Loaded)
	assert.Equal(t, [][]string{{"init", "init_1"}}, h.rt.InitTargets)
	require.Len(t, h.rt.InitFeeds, 1)
	require.Contains(t, h.rt.InitFeeds[0], runtime.SeedOp)
	assert.Equal(t, []int64{42}, h.rt.InitFeeds[0][runtime.SeedOp].Int64s)
	assert.Empty(t, h.rt.Restored)
}

func TestTrainRestore(t *testing.T) {
	h := newHarness(t, 2, 0.5, 0.5)
	h.cfg.Training.NumEpochs = 1
	h.saveCheckpoint(t, 10)

	require.NoError(t, h.model.Train(true))

	assert.Equal(t, []string{"/ckpt/s2v-annotations-10"}, h.rt.Restored)
	assert.Equal(t, []string{"/ckpt/s2v-annotations-12"}, h.rt.Saved)
	assert.Equal(t, []string{"Loading trained model from: /ckpt/s2v-annotations-10"}, h.messages("Loading trained model"))
}

func TestTrainRestoreWithoutCheckpoint(t *testing.T) {
	h := newHarness(t, 2)
	err := h.model.Train(true)
	assert.True(t, errors.Is(err, checkpoint.ErrNotFound))
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, h.rt.Closes)
	assert.Zero(t, h.rt.Runs)
}

func TestTrainEmptyEpoch(t *testing.T) {
	h := newHarness(t, 0, 0.5)
	err := h.model.Train(false)
	assert.True(t, errors.Is(err, ErrEmptyEpoch))
	assert.Empty(t, h.rt.Saved)
	assert.Equal(t, 1, h.rt.Closes)
}

func TestTrainMissingEmbeddings(t *testing.T) {
	h := newHarness(t, 1)
	h.cfg.NetworkType = config.RNN
	h.cfg.PathEmbeddingMatrix = "/missing.npy"

	err := h.model.Train(false)
	assert.True(t, errors.Is(err, embedding.ErrUnrecoverable))
	assert.True(t, IsFatal(err))
	assert.Empty(t, h.rt.Loaded)
	assert.False(t, h.rt.Open())
}

func TestValidate(t *testing.T) {
	h := newHarness(t, 1, 0.75)
	h.saveCheckpoint(t, 3)

	res, err := h.model.Validate()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, res.AvgPairAUC, 1e-9)
	assert.Equal(t, []string{"/ckpt/s2v-annotations-3"}, h.rt.Restored)
	assert.Zero(t, h.steps)
	assert.Equal(t, 1, h.rt.Closes)

	_, err = newHarness(t, 1, 0.75).model.Validate()
	assert.True(t, errors.Is(err, checkpoint.ErrNotFound))
}

func TestTestWritesEveryTable(t *testing.T) {
	h := newHarness(t, 1)
	h.saveCheckpoint(t, 3)
	h.cfg.Testing.FullTestsInputs = []string{"/in/a.csv", "/in/b.csv"}
	h.cfg.Testing.FullTestsOutputs = []string{"/out/a.csv", "/out/b.csv"}
	require.NoError(t, afero.WriteFile(h.fs, "/in/a.csv", []byte(",fva\n0,0x1\n1,0x2\n2,0x3\n"), 0644))
	require.NoError(t, afero.WriteFile(h.fs, "/in/b.csv", []byte(",fva\n0,0x9\n"), 0644))
	h.data.testing["/in/a.csv"] = datasets.Slice{batch(1, -1), batch(1, -1)}
	h.data.testing["/in/b.csv"] = datasets.Slice{batch(1)}

	require.NoError(t, h.model.Test())

	a, err := afero.ReadFile(h.fs, "/out/a.csv")
	require.NoError(t, err)
	assert.Equal(t, ",fva,sim\n0,0x1,0.1\n1,0x2,0.2\n2,0x3,0.3\n", string(a))

	b, err := afero.ReadFile(h.fs, "/out/b.csv")
	require.NoError(t, err)
	assert.Equal(t, ",fva,sim\n0,0x9,0.5\n", string(b))

	// one session for both tables
	assert.Len(t, h.rt.Loaded, 1)
	assert.Equal(t, 1, h.rt.Closes)
	assert.Len(t, h.messages("Result CSV saved to "), 2)
}

func TestSequentialRunsReinitialize(t *testing.T) {
	h := newHarness(t, 1, 0.5, 0.5, 0.25)
	h.cfg.Training.NumEpochs = 1

	require.NoError(t, h.model.Train(false))
	_, err := h.model.Validate()
	require.NoError(t, err)

	assert.Len(t, h.rt.Resets, 2)
	assert.Len(t, h.rt.Loaded, 2)
	assert.Equal(t, 2, h.rt.Closes)
	assert.Equal(t, []string{"/ckpt/s2v-annotations-1"}, h.rt.Restored)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(errors.Wrap(config.ErrInvalid, "x")))
	assert.True(t, IsFatal(errors.Wrap(embedding.ErrUnrecoverable, "x")))
	assert.True(t, IsFatal(errors.Wrap(checkpoint.ErrNotFound, "x")))
	assert.True(t, IsFatal(ErrEmptyEpoch))
	assert.False(t, IsFatal(errors.New("session crashed")))
	assert.False(t, IsFatal(nil))
}

func TestBestTracker(t *testing.T) {
	var b BestTracker
	seen := 0.0
	for _, auc := range []float64{0.4, 0.9, 0.2, 0.9, 0.95, 0.1} {
		improved := b.Update(auc)
		assert.Equal(t, auc > seen, improved)
		if auc > seen {
			seen = auc
		}
		assert.Equal(t, seen, b.Best())
	}
}
