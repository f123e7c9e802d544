// Package embedding loads the instruction embedding matrix used by the
// arith_mean, attention_mean and rnn networks.
package embedding

import (
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrUnrecoverable marks a matrix that cannot be loaded. The caller is
// expected to stop the process; the load is never retried.
var ErrUnrecoverable = errors.New("embedding matrix loading error")

// Matrix is a row-major vocabulary x dimension float32 matrix. Row 0 is the
// padding/unknown token and is all zeros.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// Row returns a view of row i.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Shape returns the dimensions as the runtime expects them.
func (m *Matrix) Shape() []int64 {
	return []int64{int64(m.Rows), int64(m.Cols)}
}

// Options controls Load.
type Options struct {
	// Random replaces the content with uniform [0,1) values, keeping the shape
	// and the zero row.
	Random bool
	// Seed seeds the generator used when Random is set.
	Seed int64
}

// Load reads the .npy matrix at path. Any failure is logged and returned
// wrapping ErrUnrecoverable.
func Load(fs afero.Fs, path string, opts Options, log *zap.SugaredLogger) (*Matrix, error) {
	m, err := load(fs, path, opts, log)
	if err != nil {
		log.Errorw("Embedding matrix loading error", "path", path, "error", err)
		return nil, errors.Wrapf(ErrUnrecoverable, "%s: %v", path, err)
	}
	return m, nil
}

func load(fs afero.Fs, path string, opts Options, log *zap.SugaredLogger) (*Matrix, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("embedding matrix not found")
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("embedding matrix not found")
	}

	log.Debugf("Loading embedding matrix (%s)....", humanize.Bytes(uint64(info.Size())))
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, err
	}
	log.Debugf("matrix shape: (%d, %d)", m.Rows, m.Cols)

	if opts.Random {
		Randomize(m, rand.New(rand.NewSource(opts.Seed)))
	}
	return m, nil
}

// Decode reads a 2-D float32 or float64 .npy stream into a float32 matrix.
func Decode(r io.Reader) (*Matrix, error) {
	rd, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading npy header")
	}
	shape := rd.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, errors.Errorf("expected a 2-D matrix, got shape %v", shape)
	}
	m := &Matrix{Rows: shape[0], Cols: shape[1], Data: make([]float32, shape[0]*shape[1])}

	switch typ := strings.TrimLeft(rd.Header.Descr.Type, "<=|"); typ {
	case "f4":
		var data []float32
		if err := rd.Read(&data); err != nil {
			return nil, errors.Wrap(err, "reading float32 data")
		}
		copy(m.Data, data)
	case "f8":
		var data []float64
		if err := rd.Read(&data); err != nil {
			return nil, errors.Wrap(err, "reading float64 data")
		}
		for i, v := range data {
			m.Data[i] = float32(v)
		}
	default:
		return nil, errors.Errorf("unsupported npy dtype %q", rd.Header.Descr.Type)
	}

	if rd.Header.Descr.Fortran {
		m.Data = transpose(m.Data, m.Rows, m.Cols)
	}
	return m, nil
}

// Randomize overwrites m with uniform [0,1) values and zeroes row 0.
func Randomize(m *Matrix, rng *rand.Rand) {
	for i := range m.Data {
		m.Data[i] = rng.Float32()
	}
	if m.Rows > 0 {
		row := m.Row(0)
		for i := range row {
			row[i] = 0
		}
	}
}

// transpose converts column-major data of a rows x cols matrix to row-major.
func transpose(data []float32, rows, cols int) []float32 {
	out := make([]float32, len(data))
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out[r*cols+c] = data[c*rows+r]
		}
	}
	return out
}
