package scene

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Reducer collapses one aggregation window to a value. Inputs never contain
// NaN and are never empty.
type Reducer func(window []float64) float64

var reducers = map[string]Reducer{
	"mean": func(w []float64) float64 { return stat.Mean(w, nil) },
	"median": func(w []float64) float64 {
		sorted := slices.Clone(w)
		slices.Sort(sorted)
		n := len(sorted)
		if n%2 == 1 {
			return sorted[n/2]
		}
		return stat.Mean(sorted[n/2-1:n/2+1], nil)
	},
	"std": func(w []float64) float64 {
		_, v := stat.PopMeanVariance(w, nil)
		return math.Sqrt(v)
	},
	"var": func(w []float64) float64 {
		_, v := stat.PopMeanVariance(w, nil)
		return v
	},
	"sum":  floats.Sum,
	"prod": floats.Prod,
	"min":  floats.Min,
	"max":  floats.Max,
}

// ReducerNames lists the built-in aggregation functions.
func ReducerNames() []string {
	names := make([]string, 0, len(reducers))
	for n := range reducers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// skipNaN wraps r so that NaN inputs are ignored and an all-NaN window
// yields NaN.
func skipNaN(r Reducer) func([]float64) float64 {
	return func(w []float64) float64 {
		valid := w[:0:0]
		for _, v := range w {
			if !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}
		if len(valid) == 0 {
			return math.NaN()
		}
		return r(valid)
	}
}

var meanOf = skipNaN(reducers["mean"])

// AggregateOptions controls Aggregate.
type AggregateOptions struct {
	// Datasets limits the result to these datasets. Empty keeps all.
	Datasets []Query

	// Func names a built-in reducer; empty means "mean".
	Func string

	// Reduce overrides Func with a custom reducer.
	Reduce Reducer

	// Y and X are the window sizes in pixels. Zero means 1.
	Y int
	X int
}

// Aggregate returns a copy of the Scene with each grid reduced by
// non-overlapping windows. Trailing partial windows are trimmed and the
// resolution of the datasets follows the new grid.
func (s *Scene) Aggregate(opts AggregateOptions) (*Scene, error) {
	reduce := opts.Reduce
	if reduce == nil {
		name := opts.Func
		if name == "" {
			name = "mean"
		}
		var ok bool
		if reduce, ok = reducers[name]; !ok {
			return nil, fmt.Errorf("scene: aggregate: unknown function %q", name)
		}
	}
	yf, xf := max(opts.Y, 1), max(opts.X, 1)
	c, err := s.Copy(opts.Datasets...)
	if err != nil {
		return nil, err
	}
	factors := map[string]int{DimY: yf, DimX: xf}
	fn := skipNaN(reduce)
	var olds []DataID
	var results []*Dataset
	for _, g := range c.IterByArea() {
		if g.Area == nil {
			continue
		}
		target, err := g.Area.Aggregate(yf, xf)
		if err != nil {
			return nil, err
		}
		resolution := target.Resolution()
		key := g.Area.Key()
		datasets := make([]*Dataset, 0, len(g.IDs))
		for _, id := range g.IDs {
			ds, ok := c.datasets.Lookup(id)
			if !ok {
				return nil, fmt.Errorf("scene: aggregate %s: %w", id, ErrNotFound)
			}
			datasets = append(datasets, ds)
		}
		out, err := transformDatasets(datasets, func(ds *Dataset) (*Dataset, error) {
			if ds.Attrs.Area == nil || ds.Attrs.Area.Key() != key {
				return ds, nil
			}
			data, err := ds.Data.Coarsen(factors, fn)
			if err != nil {
				return nil, err
			}
			res := ds.WithData(data)
			res.Attrs.Area = target
			res.Attrs.Resolution = resolution
			return res, nil
		})
		if err != nil {
			return nil, err
		}
		olds = append(olds, g.IDs...)
		results = append(results, out...)
	}
	c.replaceAll(olds, results)
	return c, nil
}

// replaceAll swaps the dataset stored under each olds[i] for results[i],
// which may carry a new identity. Every old identity is released before any
// new one is stored, so a new identity may reuse an old one. The wishlist
// and dependency tree follow the new identities.
func (s *Scene) replaceAll(olds []DataID, results []*Dataset) {
	handles := make([]NodeHandle, len(olds))
	inTree := make([]bool, len(olds))
	wished := make([]bool, len(olds))
	for i, old := range olds {
		handles[i], inTree[i] = s.tree.Lookup(old)
		_, wished[i] = s.wishlist[old]
	}
	for i, old := range olds {
		s.datasets.Delete(old)
		if wished[i] {
			delete(s.wishlist, old)
		}
	}
	for i, ds := range results {
		id := s.datasets.Put(ds)
		if wished[i] {
			s.wishlist[id] = struct{}{}
		}
		if inTree[i] && id != olds[i] {
			s.tree.UpdateNodeName(handles[i], id)
		}
	}
}
