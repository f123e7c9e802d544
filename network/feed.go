package network

import (
	"github.com/pkg/errors"

	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/tensor"
)

// feed maps graph op names to the values bound to them.
type feed map[string]*tensor.Tensor

// bind copies batch field onto the placeholder of slot.
func (f feed) bind(placeholders map[string]string, slot string, batch *datasets.Batch, field string) error {
	op, ok := placeholders[slot]
	if !ok {
		return errors.Errorf("network has no input slot %q", slot)
	}
	t, err := batch.Field(field)
	if err != nil {
		return err
	}
	f[op] = t
	return nil
}

// checkVocabulary rejects instruction ids outside the embedding matrix.
func checkVocabulary(ins *tensor.Tensor, rows int) error {
	for i, id := range ins.Float64s() {
		if id < 0 || int(id) >= rows {
			return errors.Errorf("instruction id %v at %d outside vocabulary of %d", id, i, rows)
		}
	}
	return nil
}

// lengthMask builds a [blocks, width] float mask from per block lengths.
func lengthMask(lengths, ins *tensor.Tensor) (*tensor.Tensor, error) {
	if len(ins.Shape) != 2 {
		return nil, errors.Errorf("instructions must be [blocks, max_instructions], got %v", ins.Shape)
	}
	blocks, width := int(ins.Shape[0]), int(ins.Shape[1])
	if lengths.Len() != blocks {
		return nil, errors.Errorf("%d lengths for %d blocks", lengths.Len(), blocks)
	}
	mask := make([]float32, blocks*width)
	for b, l := range lengths.Float64s() {
		for j := 0; j < width && j < int(l); j++ {
			mask[b*width+j] = 1
		}
	}
	return tensor.NewFloat32([]int64{int64(blocks), int64(width)}, mask), nil
}
