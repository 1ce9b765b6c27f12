// Package composite provides ready-made compositors and modifiers, and loads
// catalogs of them from YAML.
package composite

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/pithecene-io/scene/scene"
)

// DimBands is the leading dimension of stacked composites.
const DimBands = "bands"

// -----------------------------------------------------------------------------
// Area checks
// -----------------------------------------------------------------------------

// CheckAreas returns an error wrapping scene.ErrIncompatibleAreas unless every
// dataset sits on the same area with the same (y, x) shape.
func CheckAreas(datasets ...*scene.Dataset) error {
	if len(datasets) < 2 {
		return nil
	}
	first := datasets[0]
	for _, ds := range datasets[1:] {
		switch {
		case first.Attrs.Area == nil || ds.Attrs.Area == nil:
			return fmt.Errorf("composite: %s and %s: missing area: %w", first.Attrs.Name, ds.Attrs.Name, scene.ErrIncompatibleAreas)
		case first.Attrs.Area.Key() != ds.Attrs.Area.Key():
			return fmt.Errorf("composite: %s and %s: %w", first.Attrs.Name, ds.Attrs.Name, scene.ErrIncompatibleAreas)
		case !slices.Equal(first.Data.Shape, ds.Data.Shape):
			return fmt.Errorf("composite: %s %v and %s %v: %w",
				first.Attrs.Name, first.Data.Shape, ds.Attrs.Name, ds.Data.Shape, scene.ErrIncompatibleAreas)
		}
	}
	return nil
}

// combine builds the attributes of a composite from its inputs: the union of
// sensors, the widest time span and the area of the first input.
func combine(id scene.DataID, inputs []*scene.Dataset) scene.Attributes {
	first := inputs[0].Attrs
	attrs := scene.Attributes{
		Name:       id.Name,
		Resolution: id.Resolution,
		Modifiers:  id.Modifiers,
		Area:       first.Area,
		StartTime:  first.StartTime,
		EndTime:    first.EndTime,
	}
	if attrs.Resolution == 0 && first.Area != nil {
		attrs.Resolution = first.Area.Resolution()
	}
	seen := make(map[string]bool)
	for _, ds := range inputs {
		a := ds.Attrs
		if !a.StartTime.IsZero() && (attrs.StartTime.IsZero() || a.StartTime.Before(attrs.StartTime)) {
			attrs.StartTime = a.StartTime
		}
		if a.EndTime.After(attrs.EndTime) {
			attrs.EndTime = a.EndTime
		}
		for _, s := range a.Sensors {
			if !seen[s] {
				seen[s] = true
				attrs.Sensors = append(attrs.Sensors, s)
			}
		}
	}
	slices.Sort(attrs.Sensors)
	return attrs
}

// -----------------------------------------------------------------------------
// Stack
// -----------------------------------------------------------------------------

// Stack stacks its inputs along a leading "bands" dimension. Optional inputs
// on the area of the required ones are appended after them; others are
// ignored.
type Stack struct{}

func (Stack) Compose(_ context.Context, required, optional []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
	if len(required) == 0 {
		return nil, fmt.Errorf("composite: stack %s: no inputs", id.Name)
	}
	if err := CheckAreas(required...); err != nil {
		return nil, err
	}
	bands := slices.Clone(required)
	for _, ds := range optional {
		if CheckAreas(required[0], ds) == nil {
			bands = append(bands, ds)
		}
	}
	shape := required[0].Data.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("composite: stack %s: input %s is not 2D", id.Name, required[0].Attrs.Name)
	}
	out := scene.NewArray([]string{DimBands, scene.DimY, scene.DimX}, []int{len(bands), shape[0], shape[1]})
	n := shape[0] * shape[1]
	for i, ds := range bands {
		copy(out.Values[i*n:(i+1)*n], ds.Data.Values)
	}
	return &scene.Dataset{Data: out, Attrs: combine(id, bands)}, nil
}

// -----------------------------------------------------------------------------
// Band arithmetic
// -----------------------------------------------------------------------------

// binary applies fn pixel by pixel to exactly two required inputs.
func binary(op string, required []*scene.Dataset, id scene.DataID, fn func(a, b float64) float64) (*scene.Dataset, error) {
	if len(required) != 2 {
		return nil, fmt.Errorf("composite: %s %s: want 2 inputs, got %d", op, id.Name, len(required))
	}
	a, b := required[0], required[1]
	if err := CheckAreas(a, b); err != nil {
		return nil, err
	}
	out := a.Data.Clone()
	for i, v := range out.Values {
		out.Values[i] = fn(v, b.Data.Values[i])
	}
	return &scene.Dataset{Data: out, Attrs: combine(id, required)}, nil
}

// Difference computes a - b.
type Difference struct{}

func (Difference) Compose(_ context.Context, required, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
	return binary("difference", required, id, func(a, b float64) float64 { return a - b })
}

// Ratio computes a / b. Division by zero yields NaN.
type Ratio struct{}

func (Ratio) Compose(_ context.Context, required, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
	return binary("ratio", required, id, func(a, b float64) float64 {
		if b == 0 {
			return math.NaN()
		}
		return a / b
	})
}

// NormalizedDifference computes (a - b) / (a + b), e.g. NDVI from the near
// infrared and red channels.
type NormalizedDifference struct{}

func (NormalizedDifference) Compose(_ context.Context, required, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
	return binary("normalized difference", required, id, func(a, b float64) float64 {
		if a+b == 0 {
			return math.NaN()
		}
		return (a - b) / (a + b)
	})
}

// -----------------------------------------------------------------------------
// Modifiers
// -----------------------------------------------------------------------------

// Scale is a modifier computing v*Factor + Offset on its base dataset.
type Scale struct {
	Factor float64
	Offset float64
}

func (s Scale) Compose(_ context.Context, required, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
	if len(required) == 0 {
		return nil, fmt.Errorf("composite: scale %s: no base dataset", id)
	}
	base := required[0]
	out := base.Clone()
	for i, v := range out.Data.Values {
		out.Data.Values[i] = v*s.Factor + s.Offset
	}
	out.SetID(id)
	return out, nil
}

// Clip is a modifier limiting values to [Min, Max].
type Clip struct {
	Min float64
	Max float64
}

func (c Clip) Compose(_ context.Context, required, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
	if len(required) == 0 {
		return nil, fmt.Errorf("composite: clip %s: no base dataset", id)
	}
	out := required[0].Clone()
	for i, v := range out.Data.Values {
		if !math.IsNaN(v) {
			out.Data.Values[i] = min(max(v, c.Min), c.Max)
		}
	}
	out.SetID(id)
	return out, nil
}
