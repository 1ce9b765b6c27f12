package scene

import (
	"fmt"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
)

// Area describes where the pixels of a dataset are on the Earth.
// Implementations are immutable.
type Area interface {
	// Key identifies the grid. Two areas with equal keys describe the same
	// pixels.
	Key() string

	// Shape returns the number of rows and columns.
	Shape() (rows, cols int)

	// Slice returns the sub-area covered by the given row and column spans.
	Slice(y, x Span) (Area, error)

	// Aggregate returns the area covered by blocks of yf by xf pixels.
	Aggregate(yf, xf int) (Area, error)

	// Resolution returns the nominal pixel size in the area's units.
	Resolution() float64
}

// -----------------------------------------------------------------------------
// Extent
// -----------------------------------------------------------------------------

// Extent is an axis-aligned bounding box (xmin, ymin, xmax, ymax).
type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Bounds converts the extent to go-geom bounds.
func (e Extent) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(e.MinX, e.MinY, e.MaxX, e.MaxY)
}

// Overlaps reports whether the two extents share any area.
func (e Extent) Overlaps(o Extent) bool {
	return e.Bounds().Overlaps(geom.XY, o.Bounds())
}

// Intersect returns the common part of two extents. ok is false when they do
// not overlap.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	if !e.Overlaps(o) {
		return Extent{}, false
	}
	a, b := e.Bounds(), o.Bounds()
	r := Extent{
		MinX: math.Max(a.Min(0), b.Min(0)),
		MinY: math.Max(a.Min(1), b.Min(1)),
		MaxX: math.Min(a.Max(0), b.Max(0)),
		MaxY: math.Min(a.Max(1), b.Max(1)),
	}
	if r.MaxX <= r.MinX || r.MaxY <= r.MinY {
		return Extent{}, false
	}
	return r, true
}

func compareExtents(a, b Extent) int {
	for _, p := range [][2]float64{{a.MinX, b.MinX}, {a.MinY, b.MinY}, {a.MaxX, b.MaxX}, {a.MaxY, b.MaxY}} {
		switch {
		case p[0] < p[1]:
			return -1
		case p[0] > p[1]:
			return 1
		}
	}
	return 0
}

// -----------------------------------------------------------------------------
// AreaDefinition
// -----------------------------------------------------------------------------

// AreaDefinition is a uniform grid in a projected or geographic coordinate
// reference system. Row 0 is the northern edge (MaxY).
type AreaDefinition struct {
	ID     string
	CRS    string
	Width  int
	Height int
	Extent Extent
}

func (a *AreaDefinition) Key() string {
	return fmt.Sprintf("area:%s|%s|%dx%d|%g,%g,%g,%g",
		a.ID, a.CRS, a.Width, a.Height,
		a.Extent.MinX, a.Extent.MinY, a.Extent.MaxX, a.Extent.MaxY)
}

func (a *AreaDefinition) Shape() (rows, cols int) {
	return a.Height, a.Width
}

// PixelSizeX returns the width of one pixel.
func (a *AreaDefinition) PixelSizeX() float64 {
	return (a.Extent.MaxX - a.Extent.MinX) / float64(a.Width)
}

// PixelSizeY returns the height of one pixel.
func (a *AreaDefinition) PixelSizeY() float64 {
	return (a.Extent.MaxY - a.Extent.MinY) / float64(a.Height)
}

// Resolution returns the larger of the two pixel sizes.
func (a *AreaDefinition) Resolution() float64 {
	return math.Max(math.Abs(a.PixelSizeX()), math.Abs(a.PixelSizeY()))
}

// Geographic reports whether the grid is in longitude/latitude degrees.
func (a *AreaDefinition) Geographic() bool {
	crs := strings.ToLower(a.CRS)
	return strings.Contains(crs, "4326") || strings.Contains(crs, "latlong") || strings.Contains(crs, "longlat")
}

func (a *AreaDefinition) Slice(y, x Span) (Area, error) {
	y, x = y.clamp(a.Height), x.clamp(a.Width)
	if y.Len() == 0 || x.Len() == 0 {
		return nil, fmt.Errorf("scene: slice %s %s of %s: %w", y, x, a.ID, ErrInvalidCrop)
	}
	px, py := a.PixelSizeX(), a.PixelSizeY()
	return &AreaDefinition{
		ID:     a.ID,
		CRS:    a.CRS,
		Width:  x.Len(),
		Height: y.Len(),
		Extent: Extent{
			MinX: a.Extent.MinX + float64(x.Start)*px,
			MaxX: a.Extent.MinX + float64(x.Stop)*px,
			MaxY: a.Extent.MaxY - float64(y.Start)*py,
			MinY: a.Extent.MaxY - float64(y.Stop)*py,
		},
	}, nil
}

func (a *AreaDefinition) Aggregate(yf, xf int) (Area, error) {
	if yf < 1 || xf < 1 {
		return nil, fmt.Errorf("scene: aggregate %s by %dx%d: %w", a.ID, yf, xf, ErrInvalidCrop)
	}
	h, w := a.Height/yf, a.Width/xf
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("scene: aggregate %s by %dx%d: window larger than grid: %w", a.ID, yf, xf, ErrInvalidCrop)
	}
	px, py := a.PixelSizeX(), a.PixelSizeY()
	return &AreaDefinition{
		ID:     a.ID,
		CRS:    a.CRS,
		Width:  w,
		Height: h,
		Extent: Extent{
			MinX: a.Extent.MinX,
			MaxX: a.Extent.MinX + float64(w*xf)*px,
			MaxY: a.Extent.MaxY,
			MinY: a.Extent.MaxY - float64(h*yf)*py,
		},
	}, nil
}

// Slices returns the row and column spans of the pixels intersecting e.
// e must be in the same coordinate reference system.
func (a *AreaDefinition) Slices(e Extent) (y, x Span, err error) {
	inter, ok := a.Extent.Intersect(e)
	if !ok {
		return Span{}, Span{}, fmt.Errorf("scene: %s: %w", a.ID, ErrNoOverlap)
	}
	px, py := a.PixelSizeX(), a.PixelSizeY()
	x = Span{
		Start: int(math.Floor((inter.MinX - a.Extent.MinX) / px)),
		Stop:  int(math.Ceil((inter.MaxX - a.Extent.MinX) / px)),
	}.clamp(a.Width)
	y = Span{
		Start: int(math.Floor((a.Extent.MaxY - inter.MaxY) / py)),
		Stop:  int(math.Ceil((a.Extent.MaxY - inter.MinY) / py)),
	}.clamp(a.Height)
	if x.Len() == 0 || y.Len() == 0 {
		return Span{}, Span{}, fmt.Errorf("scene: %s: %w", a.ID, ErrNoOverlap)
	}
	return y, x, nil
}

// SlicesFor returns the spans of a covering the area dst.
func (a *AreaDefinition) SlicesFor(dst Area) (y, x Span, err error) {
	d, ok := dst.(*AreaDefinition)
	if !ok {
		return Span{}, Span{}, fmt.Errorf("scene: slices of %s for %T: %w", a.ID, dst, ErrReductionNotSupported)
	}
	if d.CRS != a.CRS {
		return Span{}, Span{}, fmt.Errorf("scene: slices of %s (%s) for %s (%s): %w", a.ID, a.CRS, d.ID, d.CRS, ErrReductionNotSupported)
	}
	return a.Slices(d.Extent)
}

// -----------------------------------------------------------------------------
// SwathDefinition
// -----------------------------------------------------------------------------

// SwathDefinition is an irregular grid given by per-pixel longitudes and
// latitudes, both (y, x) arrays of the same shape.
type SwathDefinition struct {
	Lons *Array
	Lats *Array

	// LonsName names the longitude array and breaks ranking ties.
	LonsName string

	// Res is the nominal resolution in meters, 0 when unknown.
	Res float64
}

func (s *SwathDefinition) Key() string {
	rows, cols := s.Shape()
	return fmt.Sprintf("swath:%s|%dx%d|%p", s.LonsName, rows, cols, s.Lons)
}

func (s *SwathDefinition) Shape() (rows, cols int) {
	if s.Lons == nil || len(s.Lons.Shape) < 2 {
		return 0, 0
	}
	return s.Lons.Shape[0], s.Lons.Shape[1]
}

func (s *SwathDefinition) Resolution() float64 {
	return s.Res
}

func (s *SwathDefinition) Slice(y, x Span) (Area, error) {
	sel := map[string]Span{DimY: y, DimX: x}
	lons, lats := s.Lons.Isel(sel), s.Lats.Isel(sel)
	if lons.Size() == 0 {
		return nil, fmt.Errorf("scene: slice %s %s of swath %s: %w", y, x, s.LonsName, ErrInvalidCrop)
	}
	return &SwathDefinition{Lons: lons, Lats: lats, LonsName: s.LonsName, Res: s.Res}, nil
}

func (s *SwathDefinition) Aggregate(yf, xf int) (Area, error) {
	factors := map[string]int{DimY: yf, DimX: xf}
	lons, err := s.Lons.Coarsen(factors, meanOf)
	if err != nil {
		return nil, err
	}
	lats, err := s.Lats.Coarsen(factors, meanOf)
	if err != nil {
		return nil, err
	}
	return &SwathDefinition{Lons: lons, Lats: lats, LonsName: s.LonsName, Res: s.Res * float64(max(yf, xf))}, nil
}

// SlicesLL returns the smallest row and column spans holding every pixel
// whose coordinates fall inside the lon/lat box.
func (s *SwathDefinition) SlicesLL(box Extent) (y, x Span, err error) {
	rows, cols := s.Shape()
	y = Span{Start: rows, Stop: 0}
	x = Span{Start: cols, Stop: 0}
	for r := range rows {
		for c := range cols {
			lon, lat := s.Lons.At(r, c), s.Lats.At(r, c)
			if lon < box.MinX || lon > box.MaxX || lat < box.MinY || lat > box.MaxY {
				continue
			}
			y.Start, y.Stop = min(y.Start, r), max(y.Stop, r+1)
			x.Start, x.Stop = min(x.Start, c), max(x.Stop, c+1)
		}
	}
	if y.Len() == 0 || x.Len() == 0 {
		return Span{}, Span{}, fmt.Errorf("scene: swath %s: %w", s.LonsName, ErrNoOverlap)
	}
	return y, x, nil
}
