package composite

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/scene/scene"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
)

func grid(id string, n int) *scene.AreaDefinition {
	return &scene.AreaDefinition{
		ID: id, CRS: "EPSG:3857", Width: n, Height: n,
		Extent: scene.Extent{MaxX: float64(n) * 1000, MaxY: float64(n) * 1000},
	}
}

func band(name string, area *scene.AreaDefinition, values ...float64) *scene.Dataset {
	return &scene.Dataset{
		Data: scene.NewArray2D(area.Height, area.Width, values),
		Attrs: scene.Attributes{
			Name:       name,
			Resolution: 1000,
			Area:       area,
			StartTime:  t0,
			EndTime:    t1,
			Sensors:    []string{"imager"},
		},
	}
}

func TestNormalizedDifference(t *testing.T) {
	g := grid("g", 2)
	nir := band("nir", g, 3, 1, 0, 5)
	red := band("red", g, 1, 1, 0, 5)
	red.Attrs.StartTime = t0.Add(-time.Minute)
	red.Attrs.Sensors = []string{"aux"}

	out, err := NormalizedDifference{}.Compose(context.Background(), []*scene.Dataset{nir, red}, nil, scene.DataID{Name: "ndvi"})
	require.NoError(t, err)

	assert.Equal(t, "ndvi", out.Attrs.Name)
	assert.InDelta(t, 0.5, out.Data.Values[0], 1e-12)
	assert.Equal(t, 0.0, out.Data.Values[1])
	assert.True(t, math.IsNaN(out.Data.Values[2]))
	assert.Equal(t, t0.Add(-time.Minute), out.Attrs.StartTime)
	assert.Equal(t, []string{"aux", "imager"}, out.Attrs.Sensors)
	assert.Equal(t, 1000.0, out.Attrs.Resolution)
	assert.Same(t, g, out.Attrs.Area)
	// inputs untouched
	assert.Equal(t, 3.0, nir.Data.Values[0])
}

func TestBinaryCompositors(t *testing.T) {
	g := grid("g", 1)
	a, b := band("a", g, 6), band("b", g, 2)
	id := scene.DataID{Name: "x"}

	tests := []struct {
		name string
		c    scene.Compositor
		want float64
	}{
		{"difference", Difference{}, 4},
		{"ratio", Ratio{}, 3},
		{"normalized difference", NormalizedDifference{}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.c.Compose(context.Background(), []*scene.Dataset{a, b}, nil, id)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.Data.Values[0], 1e-12)

			_, err = tt.c.Compose(context.Background(), []*scene.Dataset{a}, nil, id)
			assert.Error(t, err)
		})
	}

	zero := band("z", g, 0)
	out, err := Ratio{}.Compose(context.Background(), []*scene.Dataset{a, zero}, nil, id)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.Data.Values[0]))
}

func TestIncompatibleAreas(t *testing.T) {
	a := band("a", grid("g1", 1), 1)
	b := band("b", grid("g2", 2), 1, 2, 3, 4)
	noArea := band("c", grid("g1", 1), 1)
	noArea.Attrs.Area = nil

	for _, c := range []scene.Compositor{Stack{}, Difference{}, Ratio{}, NormalizedDifference{}} {
		_, err := c.Compose(context.Background(), []*scene.Dataset{a, b}, nil, scene.DataID{Name: "x"})
		assert.ErrorIs(t, err, scene.ErrIncompatibleAreas)
		_, err = c.Compose(context.Background(), []*scene.Dataset{a, noArea}, nil, scene.DataID{Name: "x"})
		assert.ErrorIs(t, err, scene.ErrIncompatibleAreas)
	}
}

func TestStack(t *testing.T) {
	g := grid("g", 1)
	r, gr, bl := band("r", g, 1), band("g", g, 2), band("b", g, 3)
	other := band("o", grid("elsewhere", 1), 9)

	out, err := Stack{}.Compose(context.Background(), []*scene.Dataset{r, gr}, []*scene.Dataset{bl, other}, scene.DataID{Name: "rgb"})
	require.NoError(t, err)
	assert.Equal(t, []string{DimBands, scene.DimY, scene.DimX}, out.Data.Dims)
	assert.Equal(t, []int{3, 1, 1}, out.Data.Shape)
	assert.Equal(t, []float64{1, 2, 3}, out.Data.Values)
	assert.Equal(t, 3, out.Data.Dim(DimBands))
}

func TestModifiers(t *testing.T) {
	g := grid("g", 1)
	base := band("vis", g, 0.5)
	base.Attrs.Wavelength = scene.Wavelength{Min: 0.5, Central: 0.6, Max: 0.7}
	id := base.ID().WithModifiers(scene.NewModifiers("pct"))

	out, err := Scale{Factor: 100, Offset: 1}.Compose(context.Background(), []*scene.Dataset{base}, nil, id)
	require.NoError(t, err)
	assert.Equal(t, 51.0, out.Data.Values[0])
	assert.Equal(t, id, out.ID())
	assert.Equal(t, 0.5, base.Data.Values[0])

	out, err = Clip{Min: 0, Max: 0.25}.Compose(context.Background(), []*scene.Dataset{base}, nil, id)
	require.NoError(t, err)
	assert.Equal(t, 0.25, out.Data.Values[0])

	_, err = Scale{}.Compose(context.Background(), nil, nil, id)
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// Catalog loading
// -----------------------------------------------------------------------------

const catalogYAML = `
composites:
  ndvi:
    compositor: normalized_difference
    prerequisites: [nir, 0.65]
  rgb:
    compositor: stack
    prerequisites:
      - {name: red, calibration: [reflectance]}
      - green
      - {wavelength: 0.45, modifiers: [pct]}
    optional_prerequisites: [~, cloud_mask]
modifiers:
  pct:
    modifier: scale
    factor: 100
---
sensor: imager
composites:
  ndvi:
    compositor: difference
    prerequisites: [nir, red]
modifiers:
  clipped:
    modifier: clip
    min: 0
    max: 1.5
`

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(strings.NewReader(catalogYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{scene.GenericSensor, "imager"}, cat.Sensors())

	reader := &staticReader{}
	s, err := scene.New(scene.WithReaders(reader), scene.WithCatalog(cat))
	require.NoError(t, err)
	// rgb needs channels the reader does not have
	assert.Equal(t, []string{"ndvi"}, s.AllCompositeNames())
	assert.Equal(t, []string{"clipped", "pct"}, s.AllModifierNames())
}

func TestLoadCatalogQueries(t *testing.T) {
	var doc document
	require.NoError(t, yaml.Unmarshal([]byte(catalogYAML), &doc))

	rgb := doc.Composites["rgb"]
	req := queries(rgb.Required)
	require.Len(t, req, 3)
	assert.Equal(t, "red", req[0].Name)
	assert.Equal(t, []scene.Calibration{scene.Reflectance}, req[0].Calibration)
	assert.Equal(t, scene.Name("green"), req[1])
	assert.Equal(t, 0.45, req[2].Wavelength)
	require.NotNil(t, req[2].Modifiers)
	assert.Equal(t, []string{"pct"}, req[2].Modifiers.Names())

	opt := queries(rgb.Optional)
	require.Len(t, opt, 2)
	assert.True(t, opt[0].IsZero())
	assert.Equal(t, scene.Name("cloud_mask"), opt[1])

	ndvi := queries(doc.Composites["ndvi"].Required)
	assert.Equal(t, scene.Band(0.65), ndvi[1])
	assert.Equal(t, 100, doc.Modifiers["pct"].Params["factor"])
}

func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown type", "composites:\n  x:\n    compositor: magic\n", ErrUnknownCompositor},
		{"missing type", "composites:\n  x:\n    prerequisites: [a]\n", ErrInvalidDefinition},
		{"missing modifier type", "modifiers:\n  m:\n    factor: 2\n", ErrInvalidDefinition},
		{"bad parameter", "modifiers:\n  m:\n    modifier: scale\n    factor: lots\n", ErrInvalidDefinition},
		{"bad clip range", "modifiers:\n  m:\n    modifier: clip\n    min: 2\n    max: 1\n", ErrInvalidDefinition},
		{"bad prerequisite", "composites:\n  x:\n    compositor: stack\n    prerequisites: [[a]]\n", ErrInvalidDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegistryCustomFactory(t *testing.T) {
	reg := NewRegistry()
	reg.Register("constant", func(p Params) (scene.Compositor, error) {
		v, err := p.Float("value", 0)
		if err != nil {
			return nil, err
		}
		return scene.CompositorFunc(func(_ context.Context, req, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
			out := req[0].Clone()
			for i := range out.Data.Values {
				out.Data.Values[i] = v
			}
			out.SetID(id)
			return out, nil
		}), nil
	})
	assert.Contains(t, reg.Names(), "constant")

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("composites:\n  seven:\n    compositor: constant\n    value: 7\n    prerequisites: [nir]\n"), 0o600))

	cat, err := reg.LoadCatalogFiles(path)
	require.NoError(t, err)

	s, err := scene.New(scene.WithReaders(&staticReader{}), scene.WithCatalog(cat))
	require.NoError(t, err)
	require.NoError(t, s.Load(context.Background(), []scene.Query{scene.Name("seven")}))
	ds, ok := s.Get(scene.Name("seven"))
	require.True(t, ok)
	assert.Equal(t, 7.0, ds.Data.Values[0])

	_, err = reg.LoadCatalogFiles(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCatalogDrivenScene(t *testing.T) {
	cat, err := LoadCatalog(strings.NewReader(catalogYAML))
	require.NoError(t, err)
	s, err := scene.New(scene.WithReaders(&staticReader{}), scene.WithCatalog(cat))
	require.NoError(t, err)

	// the imager definition replaces the generic ndvi
	require.NoError(t, s.Load(context.Background(), []scene.Query{scene.Name("ndvi")}))
	ds, ok := s.Get(scene.Name("ndvi"))
	require.True(t, ok)
	assert.InDelta(t, 0.6, ds.Data.Values[0], 1e-12)
	assert.False(t, s.Contains(scene.Name("nir")))
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// staticReader serves nir (0.9) and red (0.3) on a single pixel grid.
type staticReader struct{}

func (staticReader) datasets() []*scene.Dataset {
	g := grid("g", 1)
	nir := band("nir", g, 0.9)
	nir.Attrs.Wavelength = scene.Wavelength{Min: 0.7, Central: 0.86, Max: 1.0}
	red := band("red", g, 0.3)
	red.Attrs.Wavelength = scene.Wavelength{Min: 0.6, Central: 0.65, Max: 0.7}
	return []*scene.Dataset{nir, red}
}

func (staticReader) Name() string          { return "static" }
func (staticReader) SensorNames() []string { return []string{"imager"} }
func (staticReader) StartTime() time.Time  { return t0 }
func (staticReader) EndTime() time.Time    { return t1 }

func (r staticReader) AvailableDatasetIDs() []scene.DataID {
	var ids []scene.DataID
	for _, ds := range r.datasets() {
		ids = append(ids, ds.ID())
	}
	return ids
}

func (r staticReader) AllDatasetIDs() []scene.DataID { return r.AvailableDatasetIDs() }

func (r staticReader) Load(_ context.Context, ids []scene.DataID) (map[scene.DataID]*scene.Dataset, error) {
	out := make(map[scene.DataID]*scene.Dataset)
	for _, ds := range r.datasets() {
		for _, id := range ids {
			if ds.ID() == id {
				out[id] = ds
			}
		}
	}
	return out, nil
}
