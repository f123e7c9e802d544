package trainer

import (
	"github.com/pkg/errors"

	"github.com/neurlang/s2v/evaluation"
	"github.com/neurlang/s2v/table"
)

// Validate restores the latest checkpoint and evaluates the validation set
// once.
func (m *Model) Validate() (res evaluation.Result, err error) {
	_, validation, err := m.data.TrainValidation(m.cfg)
	if err != nil {
		return evaluation.Result{}, err
	}

	defer m.close(&err)
	if err := m.initialize(); err != nil {
		return evaluation.Result{}, err
	}
	m.createSaver()
	if _, err := m.resume(); err != nil {
		return evaluation.Result{}, err
	}
	return evaluation.Evaluate(m.rt, m.net, validation, m.log)
}

// Test restores the latest checkpoint and scores every configured test
// table, writing each one back with a sim column. One session serves all the
// tables.
func (m *Model) Test() (err error) {
	defer m.close(&err)
	if err := m.initialize(); err != nil {
		return err
	}
	m.createSaver()
	if _, err := m.resume(); err != nil {
		return err
	}

	inputs, outputs := m.cfg.Testing.FullTestsInputs, m.cfg.Testing.FullTestsOutputs
	if len(inputs) != len(outputs) {
		return errors.Errorf("%d test inputs for %d outputs", len(inputs), len(outputs))
	}
	for i, input := range inputs {
		if err := m.testOne(input, outputs[i]); err != nil {
			return errors.Wrapf(err, "testing %s", input)
		}
	}
	return nil
}

func (m *Model) testOne(input, output string) error {
	tab, err := table.Read(m.fs, input)
	if err != nil {
		return err
	}
	gen, err := m.data.Testing(m.cfg, input)
	if err != nil {
		return err
	}
	sims, err := evaluation.Similarities(m.rt, m.net, gen)
	if err != nil {
		return err
	}
	if err := tab.AppendSim(sims); err != nil {
		return err
	}
	if err := tab.Write(m.fs, output); err != nil {
		return err
	}
	m.log.Infof("Result CSV saved to %s", output)
	return nil
}
