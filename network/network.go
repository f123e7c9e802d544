// Package network describes the Structure2vec network variants to the runtime:
// the graph each one is exported as, its input slots and its output ops.
package network

import (
	"github.com/pkg/errors"

	"github.com/neurlang/s2v/config"
	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/embedding"
	"github.com/neurlang/s2v/tensor"
)

// Output names one fetched op.
type Output struct {
	Name string
	Op   string
}

// Tensors are the ops a network exposes, grouped by use.
type Tensors struct {
	TrainStep  string
	Training   []Output
	Evaluation []Output
}

// Ops returns the op names of outputs, in order.
func Ops(outputs []Output) []string {
	ops := make([]string, len(outputs))
	for i, o := range outputs {
		ops[i] = o.Op
	}
	return ops
}

// SimilarityOutput is the evaluation output holding one score per pair.
const SimilarityOutput = "sim"

// Network is the capability surface shared by every variant.
type Network interface {
	// Type is the network_type of the variant.
	Type() string
	// GraphPath locates the exported graph definition.
	GraphPath() string
	// Placeholders maps input slot names to graph op names.
	Placeholders() map[string]string
	Tensors() Tensors
	// Feed binds the fields of a batch onto the placeholders.
	Feed(b *datasets.Batch) (map[string]*tensor.Tensor, error)
	// InitFeeds are bound while the variables are initialized.
	InitFeeds() map[string]*tensor.Tensor
	// InitTargets are the variable initializer ops.
	InitTargets() []string
}

// MatrixLoader returns the embedding matrix, loading it on first use.
type MatrixLoader func() (*embedding.Matrix, error)

// New builds the variant selected by cfg.NetworkType. The embedding matrix is
// only loaded for variants that use it.
func New(cfg *config.Config, loadMatrix MatrixLoader) (Network, error) {
	if cfg.NetworkType == config.Annotations {
		return NewAnnotations(cfg), nil
	}
	if !config.IsNetworkType(cfg.NetworkType) {
		return nil, errors.Wrapf(config.ErrInvalid, "Invalid network_type %q", cfg.NetworkType)
	}

	matrix, err := loadMatrix()
	if err != nil {
		return nil, err
	}

	switch cfg.NetworkType {
	case config.ArithMean:
		return NewArithMean(cfg, matrix), nil
	case config.RNN:
		return NewRNN(cfg, matrix), nil
	case config.AttentionMean:
		return NewAttentionMean(cfg, matrix), nil
	}
	return nil, errors.Wrapf(config.ErrInvalid, "Invalid network_type %q", cfg.NetworkType)
}
