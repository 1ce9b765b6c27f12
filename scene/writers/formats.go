package writers

import (
	"fmt"
	"image/png"
	"io"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/pithecene-io/scene/scene"
)

// -----------------------------------------------------------------------------
// GeoTIFF
// -----------------------------------------------------------------------------

// NewGeoTIFF returns the geotiff writer: a deflate compressed TIFF, 16 bit
// for single band data, with a world file (.tfw) and a .prj file holding the
// CRS when the dataset sits on an AreaDefinition.
func NewGeoTIFF(opts ...Option) *Writer {
	return &Writer{
		format: format{
			name: scene.WriterGeoTIFF,
			ext:  ".tif",
			encode: func(w io.Writer, ds *scene.Dataset, stretch *Stretch) error {
				img, err := toImage(ds, stretch, true)
				if err != nil {
					return err
				}
				return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
			},
			sidecars: geoSidecars,
		},
		cfg: newConfig(opts),
	}
}

// geoSidecars georeferences the image through an ESRI world file, whose
// origin is the center of the upper left pixel.
func geoSidecars(ds *scene.Dataset) map[string][]byte {
	a, ok := ds.Attrs.Area.(*scene.AreaDefinition)
	if !ok {
		return nil
	}
	px, py := a.PixelSizeX(), a.PixelSizeY()
	lines := []float64{px, 0, 0, -py, a.Extent.MinX + px/2, a.Extent.MaxY - py/2}
	var b strings.Builder
	for _, v := range lines {
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		b.WriteByte('\n')
	}
	return map[string][]byte{
		".tfw": []byte(b.String()),
		".prj": []byte(a.CRS + "\n"),
	}
}

// -----------------------------------------------------------------------------
// MITIFF
// -----------------------------------------------------------------------------

// NewMITIFF returns the mitiff writer: an uncompressed 8 bit TIFF with a .txt
// sidecar carrying the MITIFF header fields.
func NewMITIFF(opts ...Option) *Writer {
	return &Writer{
		format: format{
			name: scene.WriterMITIFF,
			ext:  ".mitiff",
			encode: func(w io.Writer, ds *scene.Dataset, stretch *Stretch) error {
				img, err := toImage(ds, stretch, false)
				if err != nil {
					return err
				}
				return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Uncompressed})
			},
			sidecars: func(ds *scene.Dataset) map[string][]byte {
				return map[string][]byte{".txt": []byte(mitiffHeader(ds))}
			},
		},
		cfg: newConfig(opts),
	}
}

func mitiffHeader(ds *scene.Dataset) string {
	var b strings.Builder
	bands := 1
	if len(ds.Data.Shape) == 3 {
		bands = ds.Data.Shape[0]
	}
	rows, cols := ds.Data.Shape[len(ds.Data.Shape)-2], ds.Data.Shape[len(ds.Data.Shape)-1]
	fmt.Fprintf(&b, " Satellite: %s\n", strings.Join(ds.Attrs.Sensors, ","))
	fmt.Fprintf(&b, " Date and Time: %s\n", ds.Attrs.StartTime.UTC().Format("15:04 02/01-2006"))
	fmt.Fprintf(&b, " SatDir: 0\n")
	fmt.Fprintf(&b, " Channels: %d In this file: %s\n", bands, ds.Attrs.Name)
	fmt.Fprintf(&b, " Xsize: %d\n", cols)
	fmt.Fprintf(&b, " Ysize: %d\n", rows)
	if a, ok := ds.Attrs.Area.(*scene.AreaDefinition); ok {
		fmt.Fprintf(&b, " Map projection: %s\n", a.CRS)
		fmt.Fprintf(&b, " Ax: %f Ay: %f Bx: %f By: %f\n",
			a.PixelSizeX()/1000, a.PixelSizeY()/1000, a.Extent.MinX/1000, a.Extent.MaxY/1000)
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Simple image
// -----------------------------------------------------------------------------

// NewSimpleImage returns the simple_image writer: an 8 bit PNG.
func NewSimpleImage(opts ...Option) *Writer {
	return &Writer{
		format: format{
			name: scene.WriterSimpleImage,
			ext:  ".png",
			encode: func(w io.Writer, ds *scene.Dataset, stretch *Stretch) error {
				img, err := toImage(ds, stretch, false)
				if err != nil {
					return err
				}
				return png.Encode(w, img)
			},
		},
		cfg: newConfig(opts),
	}
}
