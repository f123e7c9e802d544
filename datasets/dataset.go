// Package datasets implements the batch contracts of the s2v driver and a
// generator over pre-built batch files.
package datasets

import (
	"io"

	"github.com/pkg/errors"

	"github.com/neurlang/s2v/config"
	"github.com/neurlang/s2v/tensor"
)

// Batch is a group of function pairs. Fields are keyed by feature name, one
// label and one db_type per pair.
type Batch struct {
	Fields  map[string]*tensor.Tensor `json:"fields"`
	Labels  []float32                 `json:"labels"`
	DBTypes []string                  `json:"db_types,omitempty"`
}

// Len is the number of pairs in the batch.
func (b *Batch) Len() int {
	return len(b.Labels)
}

// Field returns the named field or an error naming the missing field.
func (b *Batch) Field(name string) (*tensor.Tensor, error) {
	t, ok := b.Fields[name]
	if !ok || t == nil {
		return nil, errors.Errorf("batch has no field %q", name)
	}
	return t, nil
}

// DBType returns the db_type of pair i, empty when the batch carries none.
func (b *Batch) DBType(i int) string {
	if i < len(b.DBTypes) {
		return b.DBTypes[i]
	}
	return ""
}

// Check validates the batch layout.
func (b *Batch) Check() error {
	if len(b.DBTypes) != 0 && len(b.DBTypes) != len(b.Labels) {
		return errors.Errorf("batch has %d labels but %d db_types", len(b.Labels), len(b.DBTypes))
	}
	for name, t := range b.Fields {
		if t == nil {
			return errors.Errorf("field %q is empty", name)
		}
		if err := t.Check(); err != nil {
			return errors.Wrapf(err, "field %q", name)
		}
	}
	return nil
}

// Iterator yields batches until it returns io.EOF.
type Iterator interface {
	Next() (*Batch, error)
	Close() error
}

// Generator is a finite, restartable sequence of batches. Every call to
// Pairs starts from the first batch.
type Generator interface {
	Pairs() (Iterator, error)
}

// Builder creates the generators of a run.
type Builder interface {
	TrainValidation(cfg *config.Config) (training, validation Generator, err error)
	Testing(cfg *config.Config, inputPath string) (Generator, error)
}

// ForEach calls fn with every batch of g, in order.
func ForEach(g Generator, fn func(i int, b *Batch) error) error {
	it, err := g.Pairs()
	if err != nil {
		return err
	}
	defer it.Close()

	for i := 0; ; i++ {
		b, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "batch %d", i)
		}
		if err := fn(i, b); err != nil {
			return err
		}
	}
}

// Slice is an in-memory Generator.
type Slice []*Batch

// Pairs implements Generator.
func (s Slice) Pairs() (Iterator, error) {
	return &sliceIterator{batches: s}, nil
}

type sliceIterator struct {
	batches []*Batch
	pos     int
}

func (it *sliceIterator) Next() (*Batch, error) {
	if it.pos >= len(it.batches) {
		return nil, io.EOF
	}
	b := it.batches[it.pos]
	it.pos++
	return b, nil
}

func (it *sliceIterator) Close() error {
	return nil
}
