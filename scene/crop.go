package scene

import (
	"fmt"

	"go.uber.org/zap"
)

// CropOptions selects what Crop cuts to and which datasets it keeps.
type CropOptions struct {
	BBox

	// Datasets limits the result to these datasets. Empty keeps all.
	Datasets []Query
}

// Crop returns a copy of the Scene cut to an area or bounding box.
//
// The coarsest grid is sliced to the box first. Every other grid whose shape
// is an exact integer multiple of the coarsest grid reuses that slice scaled
// by the ratio, so that for example 500 m and 1000 m pixels stay aligned.
// Grids without an exact ratio are sliced against the box on their own.
func (s *Scene) Crop(opts CropOptions) (*Scene, error) {
	if opts.count() != 1 {
		return nil, fmt.Errorf("scene: crop: exactly one of area, lon/lat box or x/y box is required: %w", ErrInvalidCrop)
	}
	c, err := s.Copy(opts.Datasets...)
	if err != nil {
		return nil, err
	}
	if opts.XY != nil && !c.AllSameProj() {
		return nil, fmt.Errorf("scene: crop: datasets are not all on the same projection: %w", ErrGeometryMismatch)
	}
	coarsest, err := c.CoarsestArea()
	if err != nil {
		return nil, err
	}
	_, minY, minX, err := sliceAreaFromBBox(coarsest, opts.BBox)
	if err != nil {
		return nil, fmt.Errorf("scene: crop: %w", err)
	}
	for _, g := range c.IterByArea() {
		if g.Area == nil {
			continue
		}
		var (
			sub  Area
			y, x Span
		)
		if yf, xf, ok := exactRatio(g.Area, coarsest); ok {
			y, x = minY.Scale(yf), minX.Scale(xf)
			if sub, err = g.Area.Slice(y, x); err != nil {
				return nil, err
			}
		} else {
			s.log.Debug("cropping area without an exact ratio to the coarsest area independently",
				zap.String("area", g.Area.Key()))
			if sub, y, x, err = sliceAreaFromBBox(g.Area, opts.BBox); err != nil {
				return nil, fmt.Errorf("scene: crop: %w", err)
			}
		}
		if err := c.sliceDatasets(g.IDs, y, x, sub); err != nil {
			return nil, err
		}
	}
	return c, nil
}
