// Package evaluation scores a network over a batch generator.
package evaluation

import (
	"runtime"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/metrics"
	"github.com/neurlang/s2v/network"
	"github.com/neurlang/s2v/parallel"
	s2vruntime "github.com/neurlang/s2v/runtime"
)

// DBTypeAUC is the AUC over every pair of one data source subtype.
type DBTypeAUC struct {
	DBType string
	AUC    float64
}

// Result summarizes an evaluation pass.
type Result struct {
	AvgPairAUC float64
	ByDBType   []DBTypeAUC
	Batches    int
}

// Evaluate runs the evaluation outputs of net on every batch of gen, then
// logs and returns the pair AUC averaged over batches together with the AUC
// of each db_type, ordered by db_type.
func Evaluate(rt s2vruntime.Context, net network.Network, gen datasets.Generator, log *zap.SugaredLogger) (Result, error) {
	var (
		batchAUCs []float64
		groups    = map[string]*group{}
	)
	err := eachScored(rt, net, gen, func(b *datasets.Batch, sims []float64) error {
		auc, err := metrics.PairAUC(sims, b.Labels)
		if err != nil {
			return err
		}
		batchAUCs = append(batchAUCs, auc)

		for i, sim := range sims {
			dbType := b.DBType(i)
			if dbType == "" {
				continue
			}
			g, ok := groups[dbType]
			if !ok {
				g = &group{}
				groups[dbType] = g
			}
			g.scores = append(g.scores, sim)
			g.labels = append(g.labels, b.Labels[i])
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if len(batchAUCs) == 0 {
		return Result{}, errors.New("evaluation produced no batches")
	}

	avg, err := stats.Mean(batchAUCs)
	if err != nil {
		return Result{}, errors.Wrap(err, "averaging pair AUC")
	}
	res := Result{AvgPairAUC: avg, Batches: len(batchAUCs)}

	res.ByDBType, err = groupAUCs(groups)
	if err != nil {
		return Result{}, err
	}

	log.Infof("pair_auc (avg over batches): %.4f", res.AvgPairAUC)
	for _, item := range res.ByDBType {
		log.Infof("\t\t%s - AUC: %.4f", item.DBType, item.AUC)
	}
	return res, nil
}

// Similarities returns the similarity of every pair of gen, in order.
func Similarities(rt s2vruntime.Context, net network.Network, gen datasets.Generator) ([]float64, error) {
	var out []float64
	err := eachScored(rt, net, gen, func(_ *datasets.Batch, sims []float64) error {
		out = append(out, sims...)
		return nil
	})
	return out, err
}

type group struct {
	scores []float64
	labels []float32
}

// groupAUCs computes the AUC of each group concurrently. Groups holding a
// single class have no AUC and are left out.
func groupAUCs(groups map[string]*group) ([]DBTypeAUC, error) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	aucs := make([]DBTypeAUC, len(names))
	valid := make([]bool, len(names))
	err := parallel.ForEach(len(names), runtime.NumCPU(), func(i int) error {
		g := groups[names[i]]
		auc, err := metrics.PairAUC(g.scores, g.labels)
		if errors.Is(err, metrics.ErrSingleClass) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "db_type %s", names[i])
		}
		aucs[i] = DBTypeAUC{DBType: names[i], AUC: auc}
		valid[i] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := aucs[:0]
	for i, a := range aucs {
		if valid[i] {
			out = append(out, a)
		}
	}
	return out, nil
}

// eachScored runs the similarity output on every batch of gen.
func eachScored(rt s2vruntime.Context, net network.Network, gen datasets.Generator, fn func(b *datasets.Batch, sims []float64) error) error {
	var simOp string
	outputs := net.Tensors().Evaluation
	for _, o := range outputs {
		if o.Name == network.SimilarityOutput {
			simOp = o.Op
		}
	}
	if simOp == "" {
		return errors.Errorf("network %s has no %q evaluation output", net.Type(), network.SimilarityOutput)
	}
	fetches := network.Ops(outputs)

	return datasets.ForEach(gen, func(i int, b *datasets.Batch) error {
		feeds, err := net.Feed(b)
		if err != nil {
			return errors.Wrapf(err, "feeding batch %d", i)
		}
		res, err := rt.Run(feeds, fetches, nil)
		if err != nil {
			return errors.Wrapf(err, "evaluating batch %d", i)
		}
		sim, ok := res[simOp]
		if !ok {
			return errors.Errorf("batch %d: runtime did not return %s", i, simOp)
		}
		sims := sim.Float64s()
		if len(sims) != b.Len() {
			return errors.Errorf("batch %d: %d similarities for %d pairs", i, len(sims), b.Len())
		}
		return fn(b, sims)
	})
}
