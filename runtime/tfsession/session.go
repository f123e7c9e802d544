// Package tfsession implements runtime.Context on the TensorFlow C library.
//
// Graphs are binary GraphDefs exported with a V1 Saver, so checkpoints are
// written and read by feeding the checkpoint prefix to save/Const and running
// save/control_dependency or save/restore_all.
package tfsession

import (
	"bytes"

	tf "github.com/kiteco/tensorflow/tensorflow/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/neurlang/s2v/runtime"
	"github.com/neurlang/s2v/tensor"
)

// Session is a runtime.Context backed by a TensorFlow graph and session.
type Session struct {
	fs afero.Fs

	opts    runtime.Options
	graph   *tf.Graph
	session *tf.Session
}

var _ runtime.Context = (*Session)(nil)

// New returns an empty Session reading graph definitions from fs.
func New(fs afero.Fs) *Session {
	return &Session{fs: fs}
}

// Reset implements runtime.Context.
func (s *Session) Reset(opts runtime.Options) error {
	err := s.Close()
	s.opts = opts
	return err
}

// Load implements runtime.Context.
func (s *Session) Load(graphPath string) error {
	if s.session != nil {
		return errors.New("session already loaded, Reset first")
	}
	def, err := afero.ReadFile(s.fs, graphPath)
	if err != nil {
		return errors.Wrapf(err, "reading graph definition")
	}

	graph := tf.NewGraph()
	if err := graph.Import(def, ""); err != nil {
		graph.Delete()
		return errors.Wrapf(err, "error importing graph %s", graphPath)
	}
	if err := runtime.CheckGraph(func(op string) bool { return graph.Operation(op) != nil }); err != nil {
		graph.Delete()
		return errors.Wrapf(err, "graph %s", graphPath)
	}
	sess, err := tf.NewSession(graph, &tf.SessionOptions{Config: s.opts.ConfigProto()})
	if err != nil {
		graph.Delete()
		return errors.Wrapf(err, "error creating session")
	}
	s.graph = graph
	s.session = sess
	return nil
}

// Initialize implements runtime.Context.
func (s *Session) Initialize(feeds map[string]*tensor.Tensor, targets []string) error {
	_, err := s.Run(s.opts.InitFeeds(feeds), nil, targets)
	return errors.WithMessage(err, "initializing variables")
}

// Run implements runtime.Context.
func (s *Session) Run(feeds map[string]*tensor.Tensor, fetches, targets []string) (map[string]*tensor.Tensor, error) {
	if s.session == nil {
		return nil, errors.New("no session, Load first")
	}

	tfFeeds := make(map[tf.Output]*tf.Tensor, len(feeds))
	for name, val := range feeds {
		out, err := s.output(name)
		if err != nil {
			return nil, err
		}
		t, err := toTF(val)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating tensor for value of '%s'", name)
		}
		tfFeeds[out] = t
	}
	return s.run(tfFeeds, fetches, targets)
}

func (s *Session) run(tfFeeds map[tf.Output]*tf.Tensor, fetches, targets []string) (map[string]*tensor.Tensor, error) {
	defer func() {
		for _, t := range tfFeeds {
			t.Delete()
		}
	}()

	tfFetches := make([]tf.Output, 0, len(fetches))
	for _, name := range fetches {
		out, err := s.output(name)
		if err != nil {
			return nil, err
		}
		tfFetches = append(tfFetches, out)
	}

	tfTargets := make([]*tf.Operation, 0, len(targets))
	for _, name := range targets {
		op := s.graph.Operation(name)
		if op == nil {
			return nil, errors.Errorf("unable to find target op '%s'", name)
		}
		tfTargets = append(tfTargets, op)
	}

	res, err := s.session.Run(tfFeeds, tfFetches, tfTargets)
	if err != nil {
		return nil, errors.Wrapf(err, "error running graph")
	}
	defer func() {
		for _, t := range res {
			t.Delete()
		}
	}()

	out := make(map[string]*tensor.Tensor, len(fetches))
	for i, name := range fetches {
		t, err := fromTF(res[i])
		if err != nil {
			return nil, errors.Wrapf(err, "fetch '%s'", name)
		}
		out[name] = t
	}
	return out, nil
}

// Save implements runtime.Context.
func (s *Session) Save(prefix string) error {
	return errors.WithMessagef(s.runSaver(prefix, runtime.SaverSaveOp), "saving %s", prefix)
}

// Restore implements runtime.Context.
func (s *Session) Restore(prefix string) error {
	return errors.WithMessagef(s.runSaver(prefix, runtime.SaverRestoreOp), "restoring %s", prefix)
}

// runSaver feeds the checkpoint prefix, a scalar string, to the saver and runs target.
func (s *Session) runSaver(prefix, target string) error {
	if s.session == nil {
		return errors.New("no session, Load first")
	}
	out, err := s.output(runtime.SaverFilenameOp)
	if err != nil {
		return err
	}
	filename, err := tf.NewTensor(prefix)
	if err != nil {
		return errors.Wrapf(err, "error creating filename tensor")
	}
	_, err = s.run(map[tf.Output]*tf.Tensor{out: filename}, nil, []string{target})
	return err
}

// Close implements runtime.Context.
func (s *Session) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Close()
	}
	if s.graph != nil {
		s.graph.Delete()
	}
	s.session = nil
	s.graph = nil
	return err
}

func (s *Session) output(name string) (tf.Output, error) {
	op := s.graph.Operation(name)
	if op == nil {
		return tf.Output{}, errors.Errorf("could not find op with name: %s", name)
	}
	return op.Output(0), nil
}

var dtypes = map[tensor.DType]tf.DataType{
	tensor.Float32: tf.Float,
	tensor.Int32:   tf.Int32,
	tensor.Int64:   tf.Int64,
}

func toTF(t *tensor.Tensor) (*tf.Tensor, error) {
	dt, ok := dtypes[t.DType]
	if !ok {
		return nil, errors.Errorf("unsupported dtype %q", t.DType)
	}
	raw, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	shape := t.Shape
	if shape == nil {
		shape = []int64{}
	}
	return tf.ReadTensor(dt, shape, bytes.NewReader(raw))
}

func fromTF(t *tf.Tensor) (*tensor.Tensor, error) {
	var dt tensor.DType
	for k, v := range dtypes {
		if v == t.DataType() {
			dt = k
		}
	}
	if dt == "" {
		return nil, errors.Errorf("unsupported tensorflow dtype %v", t.DataType())
	}
	var buf bytes.Buffer
	if _, err := t.WriteContentsTo(&buf); err != nil {
		return nil, err
	}
	return tensor.Read(dt, t.Shape(), &buf)
}
