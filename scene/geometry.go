package scene

import (
	"cmp"
	"fmt"
	"math"
)

// FinestArea returns the highest resolution area among areas. All areas must
// be of the same kind and uniform grids must share a coordinate reference
// system.
func FinestArea(areas []Area) (Area, error) {
	return compareAreas(areas, 1)
}

// CoarsestArea returns the lowest resolution area among areas.
func CoarsestArea(areas []Area) (Area, error) {
	return compareAreas(areas, -1)
}

// compareAreas returns the area ranking highest when sign is 1, lowest when
// sign is -1.
func compareAreas(areas []Area, sign int) (Area, error) {
	if len(areas) == 0 {
		return nil, ErrNoAreas
	}
	var rank func(a, b Area) int
	switch first := areas[0].(type) {
	case *AreaDefinition:
		for _, a := range areas[1:] {
			ad, ok := a.(*AreaDefinition)
			if !ok {
				return nil, fmt.Errorf("scene: cannot compare %T with %T: %w", first, a, ErrGeometryMismatch)
			}
			if ad.CRS != first.CRS {
				return nil, fmt.Errorf("scene: cannot compare areas with different projections %q and %q: %w",
					first.CRS, ad.CRS, ErrGeometryMismatch)
			}
		}
		rank = func(a, b Area) int { return rankAreaDefs(a.(*AreaDefinition), b.(*AreaDefinition)) }
	case *SwathDefinition:
		for _, a := range areas[1:] {
			if _, ok := a.(*SwathDefinition); !ok {
				return nil, fmt.Errorf("scene: cannot compare %T with %T: %w", first, a, ErrGeometryMismatch)
			}
		}
		rank = func(a, b Area) int { return rankSwaths(a.(*SwathDefinition), b.(*SwathDefinition)) }
	default:
		return nil, fmt.Errorf("scene: cannot compare areas of type %T: %w", first, ErrGeometryMismatch)
	}
	best := areas[0]
	for _, a := range areas[1:] {
		if rank(a, best)*sign > 0 {
			best = a
		}
	}
	return best, nil
}

// rankAreaDefs orders uniform grids from coarse to fine: inverse x pixel
// size, inverse y pixel size, extent, then ID.
func rankAreaDefs(a, b *AreaDefinition) int {
	if c := cmp.Compare(1/math.Abs(a.PixelSizeX()), 1/math.Abs(b.PixelSizeX())); c != 0 {
		return c
	}
	if c := cmp.Compare(1/math.Abs(a.PixelSizeY()), 1/math.Abs(b.PixelSizeY())); c != 0 {
		return c
	}
	if c := compareExtents(a.Extent, b.Extent); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// rankSwaths orders swaths by reversed shape then longitude array name.
func rankSwaths(a, b *SwathDefinition) int {
	ar, ac := a.Shape()
	br, bc := b.Shape()
	if c := cmp.Compare(ac, bc); c != 0 {
		return c
	}
	if c := cmp.Compare(ar, br); c != 0 {
		return c
	}
	return cmp.Compare(a.LonsName, b.LonsName)
}

// exactRatio returns the integer factors between a fine and a coarse grid
// shape. ok is false when either axis leaves a remainder.
func exactRatio(fine, coarse Area) (yf, xf int, ok bool) {
	fr, fc := fine.Shape()
	cr, cc := coarse.Shape()
	if cr == 0 || cc == 0 || fr%cr != 0 || fc%cc != 0 {
		return 0, 0, false
	}
	yf, xf = fr/cr, fc/cc
	return yf, xf, yf > 0 && xf > 0
}

// BBox selects what Crop cuts to. Exactly one field must be set.
type BBox struct {
	// Area crops to the extent of another uniform grid.
	Area *AreaDefinition

	// LonLat is (lon_min, lat_min, lon_max, lat_max) in degrees.
	LonLat *Extent

	// XY is in projection units of the data being cropped.
	XY *Extent
}

func (b BBox) count() int {
	n := 0
	if b.Area != nil {
		n++
	}
	if b.LonLat != nil {
		n++
	}
	if b.XY != nil {
		n++
	}
	return n
}

// sliceAreaFromBBox returns the sub-area of src covered by the box together
// with the spans that produce it.
func sliceAreaFromBBox(src Area, box BBox) (Area, Span, Span, error) {
	var (
		y, x Span
		err  error
	)
	switch s := src.(type) {
	case *AreaDefinition:
		switch {
		case box.Area != nil:
			if box.Area.CRS != s.CRS {
				return nil, Span{}, Span{}, fmt.Errorf("scene: crop %s to %s: projections differ: %w", s.ID, box.Area.ID, ErrGeometryMismatch)
			}
			y, x, err = s.Slices(box.Area.Extent)
		case box.XY != nil:
			y, x, err = s.Slices(*box.XY)
		case box.LonLat != nil:
			if !s.Geographic() {
				return nil, Span{}, Span{}, fmt.Errorf("scene: crop %s (%s) by lon/lat box: %w", s.ID, s.CRS, ErrGeometryMismatch)
			}
			y, x, err = s.Slices(*box.LonLat)
		}
	case *SwathDefinition:
		if box.LonLat == nil {
			return nil, Span{}, Span{}, fmt.Errorf("scene: swath %s can only be cropped by lon/lat box: %w", s.LonsName, ErrGeometryMismatch)
		}
		y, x, err = s.SlicesLL(*box.LonLat)
	default:
		return nil, Span{}, Span{}, fmt.Errorf("scene: crop area of type %T: %w", src, ErrGeometryMismatch)
	}
	if err != nil {
		return nil, Span{}, Span{}, err
	}
	sub, err := src.Slice(y, x)
	if err != nil {
		return nil, Span{}, Span{}, err
	}
	return sub, y, x, nil
}
