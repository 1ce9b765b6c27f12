package archive

import (
	"fmt"
	"math"
	"time"

	"github.com/pithecene-io/scene/scene"
)

// Manifest schema identifiers.
const (
	ManifestSchema  = "scene-archive"
	ManifestVersion = "1"
	manifestFile    = "manifest.json"
)

// Manifest describes the complete contents of an archive.
type Manifest struct {
	SchemaName    string    `json:"schema_name"`
	FormatVersion string    `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`

	// StartTime and EndTime span the archived observations.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Sensors   []string  `json:"sensors,omitempty"`

	// Codec and Compressor name how every data object was written.
	Codec      string `json:"codec"`
	Compressor string `json:"compressor"`

	Entries []Entry `json:"entries"`
}

// Entry describes one archived dataset.
type Entry struct {
	Name         string    `json:"name"`
	Wavelength   []float64 `json:"wavelength,omitempty"`
	Resolution   float64   `json:"resolution,omitempty"`
	Calibration  string    `json:"calibration,omitempty"`
	Polarization string    `json:"polarization,omitempty"`
	Level        float64   `json:"level,omitempty"`
	Modifiers    []string  `json:"modifiers,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Sensors   []string  `json:"sensors,omitempty"`

	// Shape is the (rows, cols) of the array.
	Shape []int `json:"shape"`

	// Path is the data object relative to the archive root.
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	ValidPixels int64  `json:"valid_pixels"`

	Area *AreaRecord `json:"area,omitempty"`

	// Ancillary names the entries, by index, this dataset references.
	Ancillary []int `json:"ancillary,omitempty"`
}

// AreaRecord is the serialized form of a scene.Area.
type AreaRecord struct {
	// Kind is "area" for uniform grids and "swath" for lon/lat arrays.
	Kind string `json:"kind"`

	ID     string    `json:"id,omitempty"`
	CRS    string    `json:"crs,omitempty"`
	Width  int       `json:"width,omitempty"`
	Height int       `json:"height,omitempty"`
	Extent []float64 `json:"extent,omitempty"`

	LonsName   string  `json:"lons_name,omitempty"`
	LonsPath   string  `json:"lons_path,omitempty"`
	LatsPath   string  `json:"lats_path,omitempty"`
	Resolution float64 `json:"resolution,omitempty"`
}

// ID returns the dataset identity recorded in e.
func (e *Entry) ID() scene.DataID {
	id := scene.DataID{
		Name:         e.Name,
		Resolution:   e.Resolution,
		Calibration:  scene.Calibration(e.Calibration),
		Polarization: e.Polarization,
		Level:        e.Level,
		Modifiers:    scene.NewModifiers(e.Modifiers...),
	}
	if len(e.Wavelength) == 3 {
		id.Wavelength = scene.Wavelength{Min: e.Wavelength[0], Central: e.Wavelength[1], Max: e.Wavelength[2]}
	}
	return id
}

func newEntry(ds *scene.Dataset) Entry {
	a := ds.Attrs
	e := Entry{
		Name:         a.Name,
		Resolution:   a.Resolution,
		Calibration:  string(a.Calibration),
		Polarization: a.Polarization,
		Level:        a.Level,
		Modifiers:    a.Modifiers.Names(),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Sensors:      a.Sensors,
	}
	if !a.Wavelength.IsZero() {
		e.Wavelength = []float64{a.Wavelength.Min, a.Wavelength.Central, a.Wavelength.Max}
	}
	return e
}

// attributes rebuilds dataset attributes from e; the area is set by the
// caller.
func (e *Entry) attributes() scene.Attributes {
	id := e.ID()
	return scene.Attributes{
		Name:         id.Name,
		Wavelength:   id.Wavelength,
		Resolution:   id.Resolution,
		Calibration:  id.Calibration,
		Polarization: id.Polarization,
		Level:        id.Level,
		Modifiers:    id.Modifiers,
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		Sensors:      e.Sensors,
	}
}

// -----------------------------------------------------------------------------
// Pixels
// -----------------------------------------------------------------------------

// pixelsOf returns the valid pixels of a 2D array.
func pixelsOf(a *scene.Array) ([]Pixel, error) {
	if a == nil || len(a.Shape) != 2 {
		return nil, fmt.Errorf("archive: only 2D arrays can be stored: %w", ErrUnsupportedData)
	}
	rows, cols := a.Shape[0], a.Shape[1]
	if rows > math.MaxInt32 || cols > math.MaxInt32 {
		return nil, fmt.Errorf("archive: array of %dx%d is too large: %w", rows, cols, ErrUnsupportedData)
	}
	pixels := make([]Pixel, 0, len(a.Values))
	for i, v := range a.Values {
		if math.IsNaN(v) {
			continue
		}
		pixels = append(pixels, Pixel{Row: int32(i / cols), Col: int32(i % cols), Value: v})
	}
	return pixels, nil
}

// arrayOf places pixels on a NaN filled array of the given (rows, cols).
func arrayOf(shape []int, pixels []Pixel) (*scene.Array, error) {
	if len(shape) != 2 {
		return nil, fmt.Errorf("archive: shape %v: %w", shape, ErrInvalidFormat)
	}
	a := scene.NewArray([]string{scene.DimY, scene.DimX}, shape)
	rows, cols := shape[0], shape[1]
	for _, p := range pixels {
		r, c := int(p.Row), int(p.Col)
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return nil, fmt.Errorf("archive: pixel (%d, %d) outside %dx%d: %w", r, c, rows, cols, ErrInvalidFormat)
		}
		a.Values[r*cols+c] = p.Value
	}
	return a, nil
}
