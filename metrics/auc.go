package metrics

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when the labels hold only one class, where the
// ROC curve is undefined.
var ErrSingleClass = errors.New("AUC is undefined with a single class")

// PairAUC is the area under the ROC curve of scores against labels. A label
// is positive when it is > 0, so both {1, -1} and {1, 0} labelings work.
func PairAUC(scores []float64, labels []float32) (float64, error) {
	if len(scores) != len(labels) {
		return 0, errors.Errorf("%d scores for %d labels", len(scores), len(labels))
	}
	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	var pos int
	for i, l := range labels {
		classes[i] = l > 0
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, ErrSingleClass
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
