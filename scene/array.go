package scene

import (
	"fmt"
	"math"
	"slices"
)

// Dimension names used by area-aware operations.
const (
	DimY = "y"
	DimX = "x"
)

// -----------------------------------------------------------------------------
// Span
// -----------------------------------------------------------------------------

// Span is a half-open index range [Start, Stop) along one dimension.
type Span struct {
	Start int
	Stop  int
}

// All is the span covering a whole dimension of length n.
func All(n int) Span {
	return Span{Start: 0, Stop: n}
}

// Len returns the number of indices in the span.
func (s Span) Len() int {
	if s.Stop <= s.Start {
		return 0
	}
	return s.Stop - s.Start
}

// Scale multiplies both bounds by f.
func (s Span) Scale(f int) Span {
	return Span{Start: s.Start * f, Stop: s.Stop * f}
}

func (s Span) String() string {
	return fmt.Sprintf("[%d:%d]", s.Start, s.Stop)
}

// clamp restricts s to [0, n).
func (s Span) clamp(n int) Span {
	s.Start = min(max(s.Start, 0), n)
	s.Stop = min(max(s.Stop, s.Start), n)
	return s
}

// -----------------------------------------------------------------------------
// Array
// -----------------------------------------------------------------------------

// Array is a dense row-major N-dimensional float64 array with named
// dimensions. Missing values are NaN.
type Array struct {
	Dims   []string
	Shape  []int
	Values []float64
}

// NewArray allocates a NaN-filled array.
func NewArray(dims []string, shape []int) *Array {
	if len(dims) != len(shape) {
		panic("scene: dims and shape length mismatch")
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return &Array{Dims: slices.Clone(dims), Shape: slices.Clone(shape), Values: values}
}

// NewArray2D wraps rows*cols values as a (y, x) array. values is not copied.
func NewArray2D(rows, cols int, values []float64) *Array {
	if len(values) != rows*cols {
		panic(fmt.Sprintf("scene: %d values for %dx%d array", len(values), rows, cols))
	}
	return &Array{Dims: []string{DimY, DimX}, Shape: []int{rows, cols}, Values: values}
}

// Size returns the total number of elements.
func (a *Array) Size() int {
	return len(a.Values)
}

// Dim returns the length of the named dimension, or -1 if absent.
func (a *Array) Dim(name string) int {
	if i := slices.Index(a.Dims, name); i >= 0 {
		return a.Shape[i]
	}
	return -1
}

// At returns the value at the given per-dimension indices.
func (a *Array) At(idx ...int) float64 {
	return a.Values[a.offset(idx)]
}

// Set stores v at the given per-dimension indices.
func (a *Array) Set(v float64, idx ...int) {
	a.Values[a.offset(idx)] = v
}

func (a *Array) offset(idx []int) int {
	off := 0
	for i, n := range a.Shape {
		off = off*n + idx[i]
	}
	return off
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	if a == nil {
		return nil
	}
	return &Array{
		Dims:   slices.Clone(a.Dims),
		Shape:  slices.Clone(a.Shape),
		Values: slices.Clone(a.Values),
	}
}

// Isel selects index ranges along the named dimensions. Dimensions not named
// are kept whole; names the array lacks are ignored. Spans are clamped.
func (a *Array) Isel(sel map[string]Span) *Array {
	spans := make([]Span, len(a.Dims))
	shape := make([]int, len(a.Dims))
	for i, d := range a.Dims {
		s, ok := sel[d]
		if !ok {
			s = All(a.Shape[i])
		}
		spans[i] = s.clamp(a.Shape[i])
		shape[i] = spans[i].Len()
	}
	out := &Array{Dims: slices.Clone(a.Dims), Shape: shape}
	n := 1
	for _, s := range shape {
		n *= s
	}
	out.Values = make([]float64, 0, n)
	if n == 0 {
		return out
	}
	idx := make([]int, len(shape))
	for {
		src := make([]int, len(idx))
		for i := range idx {
			src[i] = idx[i] + spans[i].Start
		}
		out.Values = append(out.Values, a.Values[a.offset(src)])
		if !increment(idx, shape) {
			break
		}
	}
	return out
}

// Coarsen reduces the array by integer block factors along the named
// dimensions. Trailing partial blocks are dropped. reduce receives the
// values of one block and returns the output value.
func (a *Array) Coarsen(factors map[string]int, reduce func([]float64) float64) (*Array, error) {
	f := make([]int, len(a.Dims))
	shape := make([]int, len(a.Dims))
	for i, d := range a.Dims {
		f[i] = 1
		if v, ok := factors[d]; ok {
			if v < 1 {
				return nil, fmt.Errorf("scene: coarsen factor %d for %q", v, d)
			}
			f[i] = v
		}
		shape[i] = a.Shape[i] / f[i]
	}
	out := &Array{Dims: slices.Clone(a.Dims), Shape: shape}
	n := 1
	for _, s := range shape {
		n *= s
	}
	out.Values = make([]float64, 0, n)
	if n == 0 {
		return out, nil
	}
	block := make([]int, len(shape))
	blockSize := 1
	for _, v := range f {
		blockSize *= v
	}
	buf := make([]float64, 0, blockSize)
	idx := make([]int, len(shape))
	for {
		buf = buf[:0]
		clear(block)
		for {
			src := make([]int, len(idx))
			for i := range idx {
				src[i] = idx[i]*f[i] + block[i]
			}
			buf = append(buf, a.Values[a.offset(src)])
			if !increment(block, f) {
				break
			}
		}
		out.Values = append(out.Values, reduce(buf))
		if !increment(idx, shape) {
			break
		}
	}
	return out, nil
}

// increment advances a row-major index vector. It returns false after the
// last position.
func increment(idx, shape []int) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < shape[i] {
			return true
		}
		idx[i] = 0
	}
	return false
}
