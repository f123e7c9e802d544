package trainer

import (
	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/evaluation"
)

// BestTracker keeps the best validation AUC. It starts at 0 and never
// decreases.
type BestTracker struct {
	best float64
}

// Update records auc and reports whether it improved on the best.
func (b *BestTracker) Update(auc float64) bool {
	if auc > b.best {
		b.best = auc
		return true
	}
	return false
}

// Best is the best AUC recorded.
func (b *BestTracker) Best() float64 {
	return b.best
}

// evaluate scores gen and returns the pair AUC averaged over batches.
func (m *Model) evaluate(gen datasets.Generator) (float64, error) {
	res, err := evaluation.Evaluate(m.rt, m.net, gen, m.log)
	if err != nil {
		return 0, err
	}
	return res.AvgPairAUC, nil
}
