// Package tensor implements the dense values exchanged with the numerical runtime.
package tensor

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"

	"github.com/pkg/errors"
)

// DType is the element type of a tensor.
type DType string

// Supported element types.
const (
	Float32 DType = "float32"
	Int32   DType = "int32"
	Int64   DType = "int64"
)

// Size is the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Int64:
		return 8
	}
	return 0
}

// Tensor is a row-major dense array. Exactly one of the data slices matching
// DType is populated.
type Tensor struct {
	DType DType
	Shape []int64

	Float32s []float32
	Int32s   []int32
	Int64s   []int64
}

// NewFloat32 wraps data with the given shape.
func NewFloat32(shape []int64, data []float32) *Tensor {
	return &Tensor{DType: Float32, Shape: shape, Float32s: data}
}

// NewInt32 wraps data with the given shape.
func NewInt32(shape []int64, data []int32) *Tensor {
	return &Tensor{DType: Int32, Shape: shape, Int32s: data}
}

// Scalar returns a rank 0 float32 tensor.
func Scalar(v float32) *Tensor {
	return NewFloat32(nil, []float32{v})
}

// Elements is the product of the shape dimensions.
func Elements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// Len is the number of stored elements.
func (t *Tensor) Len() int {
	switch t.DType {
	case Float32:
		return len(t.Float32s)
	case Int32:
		return len(t.Int32s)
	case Int64:
		return len(t.Int64s)
	}
	return 0
}

// Check verifies that the stored data matches the shape.
func (t *Tensor) Check() error {
	if t.DType.Size() == 0 {
		return errors.Errorf("unsupported dtype %q", t.DType)
	}
	for _, d := range t.Shape {
		if d < 0 {
			return errors.Errorf("negative dimension in shape %v", t.Shape)
		}
	}
	if want := Elements(t.Shape); t.Len() != want {
		return errors.Errorf("shape %v needs %d elements, got %d", t.Shape, want, t.Len())
	}
	return nil
}

// Float64s converts the elements to float64 regardless of dtype.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, 0, t.Len())
	switch t.DType {
	case Float32:
		for _, v := range t.Float32s {
			out = append(out, float64(v))
		}
	case Int32:
		for _, v := range t.Int32s {
			out = append(out, float64(v))
		}
	case Int64:
		for _, v := range t.Int64s {
			out = append(out, float64(v))
		}
	}
	return out
}

// ScalarValue returns the only element of a single element tensor.
func (t *Tensor) ScalarValue() (float64, error) {
	if t.Len() != 1 {
		return 0, errors.Errorf("expected a scalar, got shape %v", t.Shape)
	}
	return t.Float64s()[0], nil
}

// WriteTo writes the elements little endian, the layout the runtime expects.
func (t *Tensor) WriteTo(w io.Writer) (int64, error) {
	var err error
	switch t.DType {
	case Float32:
		err = binary.Write(w, binary.LittleEndian, t.Float32s)
	case Int32:
		err = binary.Write(w, binary.LittleEndian, t.Int32s)
	case Int64:
		err = binary.Write(w, binary.LittleEndian, t.Int64s)
	default:
		err = errors.Errorf("unsupported dtype %q", t.DType)
	}
	if err != nil {
		return 0, err
	}
	return int64(t.Len() * t.DType.Size()), nil
}

// Bytes returns the little endian element encoding.
func (t *Tensor) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(t.Len() * t.DType.Size())
	if _, err := t.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes a little endian element stream of the given dtype and shape.
func Read(dtype DType, shape []int64, r io.Reader) (*Tensor, error) {
	n := Elements(shape)
	t := &Tensor{DType: dtype, Shape: shape}
	var err error
	switch dtype {
	case Float32:
		t.Float32s = make([]float32, n)
		err = binary.Read(r, binary.LittleEndian, t.Float32s)
	case Int32:
		t.Int32s = make([]int32, n)
		err = binary.Read(r, binary.LittleEndian, t.Int32s)
	case Int64:
		t.Int64s = make([]int64, n)
		err = binary.Read(r, binary.LittleEndian, t.Int64s)
	default:
		err = errors.Errorf("unsupported dtype %q", dtype)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s%v", dtype, shape)
	}
	return t, nil
}

type wireTensor struct {
	DType DType           `json:"dtype"`
	Shape []int64         `json:"shape"`
	Data  json.RawMessage `json:"data"`
}

// MarshalJSON encodes {"dtype", "shape", "data"}.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	var data interface{}
	switch t.DType {
	case Float32:
		data = t.Float32s
	case Int32:
		data = t.Int32s
	case Int64:
		data = t.Int64s
	default:
		return nil, errors.Errorf("unsupported dtype %q", t.DType)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	shape := t.Shape
	if shape == nil {
		shape = []int64{}
	}
	return json.Marshal(wireTensor{DType: t.DType, Shape: shape, Data: raw})
}

// UnmarshalJSON decodes {"dtype", "shape", "data"} and checks the element count.
func (t *Tensor) UnmarshalJSON(b []byte) error {
	var w wireTensor
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.DType == "" {
		w.DType = Float32
	}
	*t = Tensor{DType: w.DType, Shape: w.Shape}
	var err error
	switch w.DType {
	case Float32:
		var vals []float64
		err = json.Unmarshal(w.Data, &vals)
		t.Float32s = make([]float32, len(vals))
		for i, v := range vals {
			if math.Abs(v) > math.MaxFloat32 {
				return errors.Errorf("value %g overflows float32", v)
			}
			t.Float32s[i] = float32(v)
		}
	case Int32:
		err = json.Unmarshal(w.Data, &t.Int32s)
	case Int64:
		err = json.Unmarshal(w.Data, &t.Int64s)
	default:
		return errors.Errorf("unsupported dtype %q", w.DType)
	}
	if err != nil {
		return errors.Wrapf(err, "decoding %s data", w.DType)
	}
	return t.Check()
}
