package runtime

import (
	"github.com/pkg/errors"

	"github.com/neurlang/s2v/tensor"
)

// SeedOp is the scalar int64 placeholder holding the graph level random
// seed. Exported graphs derive the seed of every stochastic op from it.
const SeedOp = "random_seed"

// Saver op names of a V1 tf.train.Saver.
const (
	SaverFilenameOp = "save/Const"
	SaverSaveOp     = "save/control_dependency"
	SaverRestoreOp  = "save/restore_all"
)

// RequiredOps are the ops every exported graph must declare.
var RequiredOps = []string{SeedOp, SaverFilenameOp, SaverSaveOp, SaverRestoreOp}

// CheckGraph returns an error naming the required ops has does not find.
func CheckGraph(has func(op string) bool) error {
	var missing []string
	for _, op := range RequiredOps {
		if !has(op) {
			missing = append(missing, op)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("graph does not declare %v", missing)
	}
	return nil
}

// InitFeeds returns feeds with the seed bound to SeedOp.
func (o Options) InitFeeds(feeds map[string]*tensor.Tensor) map[string]*tensor.Tensor {
	all := make(map[string]*tensor.Tensor, len(feeds)+1)
	for k, v := range feeds {
		all[k] = v
	}
	all[SeedOp] = &tensor.Tensor{DType: tensor.Int64, Int64s: []int64{o.Seed}}
	return all
}
