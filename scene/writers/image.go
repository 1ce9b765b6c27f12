package writers

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/pithecene-io/scene/scene"
)

// DimBands is the leading dimension of multi-band datasets.
const DimBands = "bands"

// Stretch is a linear mapping of data values onto [0, 1].
type Stretch struct {
	Min, Max float64
}

// valueRange returns the range of the valid values, ok false when there are
// none.
func valueRange(values []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
	}
	return lo, hi, lo <= hi
}

// autoStretch spans the valid values of a.
func autoStretch(a *scene.Array) Stretch {
	lo, hi, ok := valueRange(a.Values)
	if !ok {
		return Stretch{Min: 0, Max: 1}
	}
	return Stretch{Min: lo, Max: hi}
}

// norm maps v into [0, 1]; ok is false for missing values.
func (s Stretch) norm(v float64) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	if s.Max == s.Min {
		return 0, true
	}
	return min(max((v-s.Min)/(s.Max-s.Min), 0), 1), true
}

// planes splits a (y, x) or (bands, y, x) array into bands.
func planes(a *scene.Array) (bands [][]float64, rows, cols int, err error) {
	switch len(a.Shape) {
	case 2:
		return [][]float64{a.Values}, a.Shape[0], a.Shape[1], nil
	case 3:
		rows, cols = a.Shape[1], a.Shape[2]
		n := rows * cols
		for b := range a.Shape[0] {
			bands = append(bands, a.Values[b*n:(b+1)*n])
		}
		return bands, rows, cols, nil
	default:
		return nil, 0, 0, fmt.Errorf("dims %v: %w", a.Dims, ErrUnsupportedShape)
	}
}

// toImage renders a dataset. One band becomes grayscale (16 bit when deep is
// set) with missing values at 0; three or four bands become NRGBA with
// missing pixels transparent.
func toImage(ds *scene.Dataset, stretch *Stretch, deep bool) (image.Image, error) {
	if ds.Data == nil {
		return nil, fmt.Errorf("%s: no data: %w", ds.Attrs.Name, ErrUnsupportedShape)
	}
	bands, rows, cols, err := planes(ds.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.Attrs.Name, err)
	}
	s := autoStretch(ds.Data)
	if stretch != nil {
		s = *stretch
	}
	rect := image.Rect(0, 0, cols, rows)

	switch len(bands) {
	case 1:
		if deep {
			img := image.NewGray16(rect)
			for i, v := range bands[0] {
				if f, ok := s.norm(v); ok {
					img.SetGray16(i%cols, i/cols, color.Gray16{Y: uint16(math.Round(f * math.MaxUint16))})
				}
			}
			return img, nil
		}
		img := image.NewGray(rect)
		for i, v := range bands[0] {
			if f, ok := s.norm(v); ok {
				img.SetGray(i%cols, i/cols, color.Gray{Y: uint8(math.Round(f * math.MaxUint8))})
			}
		}
		return img, nil
	case 3, 4:
		img := image.NewNRGBA(rect)
		for i := range rows * cols {
			var c [4]uint8
			c[3] = math.MaxUint8
			for b := range bands {
				f, ok := s.norm(bands[b][i])
				if !ok {
					c = [4]uint8{}
					break
				}
				c[b] = uint8(math.Round(f * math.MaxUint8))
			}
			img.SetNRGBA(i%cols, i/cols, color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%s: %d bands: %w", ds.Attrs.Name, len(bands), ErrUnsupportedShape)
	}
}
