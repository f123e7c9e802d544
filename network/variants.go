package network

import (
	"github.com/pkg/errors"

	"github.com/neurlang/s2v/config"
	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/embedding"
	"github.com/neurlang/s2v/tensor"
)

// Graph op names shared by every exported variant.
const (
	TrainStepOp     = "train_step"
	LossOp          = "metrics/loss"
	PairAUCOp       = "metrics/pair_auc"
	SimilarityOp    = "metrics/sim"
	EmbeddingInitOp = "embedding/matrix"
	LabelsSlot      = "labels"
)

// sides of a function pair.
var sides = []string{"left", "right"}

// base carries what every variant has in common: two graphs per pair with
// their adjacency and sizes, labels, and the standard output groups.
type base struct {
	networkType  string
	graphPath    string
	placeholders map[string]string
}

func newBase(cfg *config.Config, slots ...string) base {
	b := base{
		networkType:  cfg.NetworkType,
		graphPath:    cfg.GraphPath(),
		placeholders: map[string]string{LabelsSlot: "placeholders/" + LabelsSlot},
	}
	for _, side := range sides {
		for _, slot := range append([]string{"graph_sizes", "adj"}, slots...) {
			name := slot + "_" + side
			b.placeholders[name] = "placeholders/" + name
		}
	}
	return b
}

func (b base) Type() string      { return b.networkType }
func (b base) GraphPath() string { return b.graphPath }

func (b base) Placeholders() map[string]string {
	out := make(map[string]string, len(b.placeholders))
	for k, v := range b.placeholders {
		out[k] = v
	}
	return out
}

func (b base) Tensors() Tensors {
	return Tensors{
		TrainStep: TrainStepOp,
		Training: []Output{
			{Name: "loss", Op: LossOp},
			{Name: "pair_auc", Op: PairAUCOp},
		},
		Evaluation: []Output{
			{Name: SimilarityOutput, Op: SimilarityOp},
		},
	}
}

func (b base) InitTargets() []string {
	return []string{"init", "init_1"}
}

func (b base) InitFeeds() map[string]*tensor.Tensor {
	return nil
}

// feedCommon binds the graph structure and the labels.
func (b base) feedCommon(batch *datasets.Batch) (feed, error) {
	f := feed{}
	for _, side := range sides {
		for _, field := range []string{"graph_sizes_" + side, "adj_" + side} {
			if err := f.bind(b.placeholders, field, batch, field); err != nil {
				return nil, err
			}
		}
	}
	f[b.placeholders[LabelsSlot]] = tensor.NewFloat32([]int64{int64(batch.Len())}, batch.Labels)
	return f, nil
}

// Annotations uses the manually engineered basic block features.
type Annotations struct {
	base
}

// NewAnnotations builds the annotations variant. It takes no embeddings.
func NewAnnotations(cfg *config.Config) *Annotations {
	return &Annotations{base: newBase(cfg, "features")}
}

// Feed binds annotations_{side} onto features_{side}.
func (n *Annotations) Feed(batch *datasets.Batch) (map[string]*tensor.Tensor, error) {
	f, err := n.feedCommon(batch)
	if err != nil {
		return nil, err
	}
	for _, side := range sides {
		if err := f.bind(n.placeholders, "features_"+side, batch, "annotations_"+side); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// embedded is the part of the instruction embedding variants that owns the matrix.
type embedded struct {
	base
	matrix *embedding.Matrix
}

func newEmbedded(cfg *config.Config, matrix *embedding.Matrix, slots ...string) embedded {
	return embedded{base: newBase(cfg, append([]string{"instructions"}, slots...)...), matrix: matrix}
}

// InitFeeds binds the embedding matrix to its initializer.
func (e embedded) InitFeeds() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		EmbeddingInitOp: tensor.NewFloat32(e.matrix.Shape(), e.matrix.Data),
	}
}

// Matrix returns the embedding matrix of the network.
func (e embedded) Matrix() *embedding.Matrix {
	return e.matrix
}

// feedInstructions binds the graph structure, the labels and the
// instructions of both sides, which it also returns keyed by side.
func (e embedded) feedInstructions(batch *datasets.Batch) (feed, map[string]*tensor.Tensor, error) {
	f, err := e.feedCommon(batch)
	if err != nil {
		return nil, nil, err
	}
	instructions := make(map[string]*tensor.Tensor, len(sides))
	for _, side := range sides {
		ins, err := batch.Field("instructions_" + side)
		if err != nil {
			return nil, nil, err
		}
		if err := checkVocabulary(ins, e.matrix.Rows); err != nil {
			return nil, nil, err
		}
		f[e.placeholders["instructions_"+side]] = ins
		instructions[side] = ins
	}
	return f, instructions, nil
}

// ArithMean averages the instruction embeddings of each basic block.
type ArithMean struct {
	embedded
}

// NewArithMean builds the arith_mean variant.
func NewArithMean(cfg *config.Config, matrix *embedding.Matrix) *ArithMean {
	return &ArithMean{embedded: newEmbedded(cfg, matrix, "lengths")}
}

// Feed binds the instructions and the block lengths as float divisors, at
// least 1 so empty blocks average to the zero vector.
func (n *ArithMean) Feed(batch *datasets.Batch) (map[string]*tensor.Tensor, error) {
	f, _, err := n.feedInstructions(batch)
	if err != nil {
		return nil, err
	}
	for _, side := range sides {
		lengths, err := batch.Field("lengths_" + side)
		if err != nil {
			return nil, err
		}
		div := make([]float32, 0, lengths.Len())
		for _, l := range lengths.Float64s() {
			if l < 1 {
				l = 1
			}
			div = append(div, float32(l))
		}
		f[n.placeholders["lengths_"+side]] = tensor.NewFloat32(lengths.Shape, div)
	}
	return f, nil
}

// AttentionMean weights the instruction embeddings with a learned attention.
type AttentionMean struct {
	embedded
}

// NewAttentionMean builds the attention_mean variant.
func NewAttentionMean(cfg *config.Config, matrix *embedding.Matrix) *AttentionMean {
	return &AttentionMean{embedded: newEmbedded(cfg, matrix, "mask")}
}

// Feed binds the instructions and a [blocks, max_instructions] mask with ones
// on the valid positions of each block.
func (n *AttentionMean) Feed(batch *datasets.Batch) (map[string]*tensor.Tensor, error) {
	f, instructions, err := n.feedInstructions(batch)
	if err != nil {
		return nil, err
	}
	for _, side := range sides {
		ins := instructions[side]
		lengths, err := batch.Field("lengths_" + side)
		if err != nil {
			return nil, err
		}
		mask, err := lengthMask(lengths, ins)
		if err != nil {
			return nil, err
		}
		f[n.placeholders["mask_"+side]] = mask
	}
	return f, nil
}

// RNN runs a recurrent cell over the instruction sequence of each block.
type RNN struct {
	embedded
}

// NewRNN builds the rnn variant.
func NewRNN(cfg *config.Config, matrix *embedding.Matrix) *RNN {
	return &RNN{embedded: newEmbedded(cfg, matrix, "lengths")}
}

// Feed binds the instructions and the sequence lengths clipped to the padded
// width of the instruction tensor.
func (n *RNN) Feed(batch *datasets.Batch) (map[string]*tensor.Tensor, error) {
	f, instructions, err := n.feedInstructions(batch)
	if err != nil {
		return nil, err
	}
	for _, side := range sides {
		ins := instructions[side]
		lengths, err := batch.Field("lengths_" + side)
		if err != nil {
			return nil, err
		}
		if len(ins.Shape) != 2 {
			return nil, errors.Errorf("instructions_%s must be [blocks, max_instructions], got %v", side, ins.Shape)
		}
		width := ins.Shape[1]
		seq := make([]int32, 0, lengths.Len())
		for _, l := range lengths.Float64s() {
			switch {
			case l < 0:
				l = 0
			case int64(l) > width:
				l = float64(width)
			}
			seq = append(seq, int32(l))
		}
		f[n.placeholders["lengths_"+side]] = tensor.NewInt32(lengths.Shape, seq)
	}
	return f, nil
}
