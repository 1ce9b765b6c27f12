// Package testutil builds synthetic scenes for examples and tests.
package testutil

import (
	"math"
	"os"
	"time"

	"github.com/pithecene-io/scene/scene"
)

// RemoveAll removes a temporary directory, ignoring errors.
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// Grid returns a square EPSG:3857 grid of n x n pixels of res meters with
// its upper left corner at (0, n*res).
func Grid(id string, n int, res float64) *scene.AreaDefinition {
	return &scene.AreaDefinition{
		ID:     id,
		CRS:    "EPSG:3857",
		Width:  n,
		Height: n,
		Extent: scene.Extent{MaxX: float64(n) * res, MaxY: float64(n) * res},
	}
}

// Channel builds a synthetic channel on area whose pixel values follow f.
// Values f returns as NaN are missing pixels.
func Channel(name string, um float64, area *scene.AreaDefinition, start time.Time, f func(row, col int) float64) *scene.Dataset {
	rows, cols := area.Shape()
	values := make([]float64, rows*cols)
	for r := range rows {
		for c := range cols {
			values[r*cols+c] = f(r, c)
		}
	}
	return &scene.Dataset{
		Data: scene.NewArray2D(rows, cols, values),
		Attrs: scene.Attributes{
			Name:        name,
			Wavelength:  scene.Wavelength{Min: um - 0.05, Central: um, Max: um + 0.05},
			Resolution:  area.Resolution(),
			Calibration: scene.Reflectance,
			Area:        area,
			StartTime:   start,
			EndTime:     start.Add(5 * time.Minute),
			Sensors:     []string{"imager"},
		},
	}
}

// Ramp returns a channel function rising from lo to hi along the columns.
func Ramp(cols int, lo, hi float64) func(row, col int) float64 {
	return func(_, col int) float64 {
		if cols < 2 {
			return lo
		}
		return lo + (hi-lo)*float64(col)/float64(cols-1)
	}
}

// WithHoles wraps f so every pixel where row == col is missing.
func WithHoles(f func(row, col int) float64) func(row, col int) float64 {
	return func(row, col int) float64 {
		if row == col {
			return math.NaN()
		}
		return f(row, col)
	}
}
