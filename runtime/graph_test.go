package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurlang/s2v/tensor"
)

func TestCheckGraph(t *testing.T) {
	ops := map[string]bool{}
	for _, op := range RequiredOps {
		ops[op] = true
	}
	require.NoError(t, CheckGraph(func(op string) bool { return ops[op] }))

	delete(ops, SeedOp)
	err := CheckGraph(func(op string) bool { return ops[op] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), SeedOp)
}

func TestInitFeedsBindsSeed(t *testing.T) {
	matrix := tensor.NewFloat32([]int64{1}, []float32{0})
	feeds := map[string]*tensor.Tensor{"embedding/matrix": matrix}

	all := Options{Seed: 13}.InitFeeds(feeds)
	require.Contains(t, all, SeedOp)
	assert.Equal(t, tensor.Int64, all[SeedOp].DType)
	assert.Empty(t, all[SeedOp].Shape)
	assert.Equal(t, []int64{13}, all[SeedOp].Int64s)
	assert.Same(t, matrix, all["embedding/matrix"])
	assert.Len(t, feeds, 1, "input feeds are not modified")

	assert.Equal(t, []int64{7}, Options{Seed: 7}.InitFeeds(nil)[SeedOp].Int64s)
}
