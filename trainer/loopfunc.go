package trainer

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/neurlang/s2v/datasets"
	"github.com/neurlang/s2v/metrics"
	"github.com/neurlang/s2v/network"
	"github.com/neurlang/s2v/runtime"
)

// Train runs training.num_epochs epochs over the training set, validating
// and saving a checkpoint after each one. With restore the latest checkpoint
// is loaded first and the batch counter continues from its iteration.
func (m *Model) Train(restore bool) (err error) {
	training, validation, err := m.data.TrainValidation(m.cfg)
	if err != nil {
		return err
	}

	defer m.close(&err)
	if err := m.initialize(); err != nil {
		return err
	}
	m.createSaver()

	it := 0
	if restore {
		if it, err = m.resume(); err != nil {
			return err
		}
	}

	m.log.Info("Starting model training!")
	m.best = BestTracker{}
	loop := newLoop(m.rt, m.net, m.cfg.Training.PrintAfter, it, m.log)

	// starting values, not tracked
	if _, err := m.evaluate(validation); err != nil {
		return errors.Wrap(err, "baseline validation")
	}

	for epoch := 0; epoch < m.cfg.Training.NumEpochs; epoch++ {
		m.log.Infof("Epoch %d", epoch)

		n, err := loop.epoch(training)
		if err != nil {
			return errors.Wrapf(err, "epoch %d", epoch)
		}
		if n == 0 {
			return errors.Wrapf(ErrEmptyEpoch, "epoch %d", epoch)
		}
		m.log.Infof("End of Epoch %d (elapsed_time %.2fs)", epoch, loop.elapsed().Seconds())

		m.log.Info("Validation set")
		auc, err := m.evaluate(validation)
		if err != nil {
			return errors.Wrapf(err, "validating epoch %d", epoch)
		}
		if m.best.Update(auc) {
			m.log.Warnf("best_val_auc: %.4f", m.best.Best())
		}

		prefix, err := m.ckpt.Save(loop.it)
		if err != nil {
			return errors.Wrapf(err, "saving epoch %d", epoch)
		}
		m.log.Infof("Model saved: %s", prefix)
	}
	return nil
}

// loop runs training steps and flushes the accumulated metrics every
// printAfter batches.
type loop struct {
	rt         runtime.Context
	net        network.Network
	printAfter int
	log        *zap.SugaredLogger

	// it is the global batch counter.
	it      int
	acc     *metrics.Accumulator
	start   time.Time
	flushes int
}

func newLoop(rt runtime.Context, net network.Network, printAfter, it int, log *zap.SugaredLogger) *loop {
	return &loop{
		rt:         rt,
		net:        net,
		printAfter: printAfter,
		log:        log,
		it:         it,
		acc:        metrics.NewAccumulator(),
		start:      time.Now(),
	}
}

func (l *loop) elapsed() time.Duration {
	return time.Since(l.start)
}

// epoch consumes gen and returns the number of batches trained on.
func (l *loop) epoch(gen datasets.Generator) (int, error) {
	tensors := l.net.Tensors()
	fetches := network.Ops(tensors.Training)
	targets := []string{tensors.TrainStep}

	var n int
	err := datasets.ForEach(gen, func(i int, b *datasets.Batch) error {
		feeds, err := l.net.Feed(b)
		if err != nil {
			return errors.Wrapf(err, "feeding batch %d", i)
		}
		res, err := l.rt.Run(feeds, fetches, targets)
		if err != nil {
			return errors.Wrapf(err, "training step %d", l.it)
		}
		for _, out := range tensors.Training {
			t, ok := res[out.Op]
			if !ok {
				return errors.Errorf("training step %d: runtime did not return %s", l.it, out.Op)
			}
			v, err := t.ScalarValue()
			if err != nil {
				return errors.Wrapf(err, "metric %s", out.Name)
			}
			l.acc.Add(out.Name, v)
		}

		if (l.it+1)%l.printAfter == 0 {
			l.flush()
		}
		l.it++
		n++
		return nil
	})
	return n, err
}

// flush logs the mean of every metric since the last flush and resets them.
func (l *loop) flush() {
	l.log.Infof("Iter %d, %s, time %.2fs", l.it+1, l.acc.String(), l.elapsed().Seconds())
	l.acc.Reset()
	l.flushes++
}
