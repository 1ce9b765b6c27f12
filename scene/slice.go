package scene

import (
	"fmt"
)

// Slice returns a copy of the Scene with every dataset cut to the given row
// and column spans. All datasets with an area must share it; datasets
// without an area are kept whole. Ancillary variables follow their parents.
func (s *Scene) Slice(y, x Span) (*Scene, error) {
	if !s.AllSameArea() {
		return nil, fmt.Errorf("scene: slice: datasets have different areas: %w", ErrGeometryMismatch)
	}
	c, err := s.Copy()
	if err != nil {
		return nil, err
	}
	for _, g := range c.IterByArea() {
		if g.Area == nil {
			continue
		}
		sub, err := g.Area.Slice(y, x)
		if err != nil {
			return nil, err
		}
		if err := c.sliceDatasets(g.IDs, y, x, sub); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// sliceDatasets replaces the datasets named ids, and their ancillary
// variables, by their y/x slices placed on area.
func (s *Scene) sliceDatasets(ids []DataID, y, x Span, area Area) error {
	datasets := make([]*Dataset, 0, len(ids))
	for _, id := range ids {
		ds, ok := s.datasets.Lookup(id)
		if !ok {
			return fmt.Errorf("scene: slice %s: %w", id, ErrNotFound)
		}
		datasets = append(datasets, ds)
	}
	sel := map[string]Span{DimY: y, DimX: x}
	out, err := transformDatasets(datasets, func(ds *Dataset) (*Dataset, error) {
		if ds.Attrs.Area == nil {
			return ds, nil
		}
		res := ds.WithData(ds.Data.Isel(sel))
		res.Attrs.Area = area
		return res, nil
	})
	if err != nil {
		return err
	}
	for i, id := range ids {
		s.datasets.PutAs(id, out[i])
	}
	return nil
}
