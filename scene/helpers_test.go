package scene

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
)

// grid returns a square uniform grid of n pixels of size px meters.
func grid(id string, n int, px float64) *AreaDefinition {
	return &AreaDefinition{
		ID:     id,
		CRS:    "EPSG:3857",
		Width:  n,
		Height: n,
		Extent: Extent{MinX: 0, MinY: 0, MaxX: float64(n) * px, MaxY: float64(n) * px},
	}
}

// filled returns a (y, x) array on area filled with v.
func filled(area Area, v float64) *Array {
	rows, cols := area.Shape()
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = v
	}
	return NewArray2D(rows, cols, values)
}

// ramp returns a (y, x) array whose values are their flat index.
func ramp(rows, cols int) *Array {
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = float64(i)
	}
	return NewArray2D(rows, cols, values)
}

func channel(name string, area Area, v float64) *Dataset {
	ds := &Dataset{Attrs: Attributes{
		Name:       name,
		Resolution: area.Resolution(),
		Area:       area,
		StartTime:  t0,
		EndTime:    t1,
		Sensors:    []string{"imager"},
	}}
	ds.Data = filled(area, v)
	return ds
}

// -----------------------------------------------------------------------------
// Fake reader
// -----------------------------------------------------------------------------

type fakeReader struct {
	name    string
	sensors []string
	data    map[DataID]*Dataset
	extra   []DataID // known but not available
	broken  map[DataID]bool
	err     error

	mu    sync.Mutex
	loads [][]DataID
}

func newFakeReader(name string, datasets ...*Dataset) *fakeReader {
	r := &fakeReader{
		name:    name,
		sensors: []string{"imager"},
		data:    make(map[DataID]*Dataset),
		broken:  make(map[DataID]bool),
	}
	for _, ds := range datasets {
		r.data[ds.ID()] = ds
	}
	return r
}

func (r *fakeReader) Name() string            { return r.name }
func (r *fakeReader) SensorNames() []string   { return r.sensors }
func (r *fakeReader) StartTime() time.Time    { return t0 }
func (r *fakeReader) EndTime() time.Time      { return t1 }
func (r *fakeReader) AllDatasetIDs() []DataID { return append(r.AvailableDatasetIDs(), r.extra...) }

func (r *fakeReader) AvailableDatasetIDs() []DataID {
	ids := make([]DataID, 0, len(r.data))
	for id := range r.data {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareIDs)
	return ids
}

func (r *fakeReader) Load(_ context.Context, ids []DataID) (map[DataID]*Dataset, error) {
	r.mu.Lock()
	r.loads = append(r.loads, slices.Clone(ids))
	r.mu.Unlock()
	out := make(map[DataID]*Dataset)
	for _, id := range ids {
		ds, ok := r.data[id]
		if !ok || r.broken[id] {
			continue
		}
		out[id] = ds.Clone()
	}
	return out, r.err
}

func (r *fakeReader) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

// -----------------------------------------------------------------------------
// Compositors
// -----------------------------------------------------------------------------

// recordingCompositor sums its inputs and records the prerequisites it saw.
type recordingCompositor struct {
	calls    int
	required [][]DataID
	optional [][]DataID
	err      error
}

func (c *recordingCompositor) Compose(_ context.Context, required, optional []*Dataset, id DataID) (*Dataset, error) {
	c.calls++
	var req, opt []DataID
	for _, ds := range required {
		req = append(req, ds.ID())
	}
	for _, ds := range optional {
		opt = append(opt, ds.ID())
	}
	c.required = append(c.required, req)
	c.optional = append(c.optional, opt)
	if c.err != nil {
		return nil, c.err
	}
	return sumDatasets(required, id)
}

func sumDatasets(inputs []*Dataset, id DataID) (*Dataset, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs for %s", id)
	}
	first := inputs[0]
	for _, ds := range inputs[1:] {
		if ds.Attrs.Area == nil || first.Attrs.Area == nil || ds.Attrs.Area.Key() != first.Attrs.Area.Key() {
			return nil, ErrIncompatibleAreas
		}
	}
	out := first.WithData(first.Data.Clone())
	for _, ds := range inputs[1:] {
		for i, v := range ds.Data.Values {
			out.Data.Values[i] += v
		}
	}
	out.Attrs.AncillaryVariables = nil
	out.Attrs.Name = id.Name
	out.Attrs.Modifiers = id.Modifiers
	out.Attrs.Calibration = ""
	out.Attrs.Wavelength = Wavelength{}
	return out, nil
}

var sum = CompositorFunc(func(_ context.Context, required, _ []*Dataset, id DataID) (*Dataset, error) {
	return sumDatasets(required, id)
})

// double is a modifier multiplying its base input by two.
var double = CompositorFunc(func(_ context.Context, required, _ []*Dataset, id DataID) (*Dataset, error) {
	base := required[0]
	out := base.WithData(base.Data.Clone())
	for i := range out.Data.Values {
		out.Data.Values[i] *= 2
	}
	out.Attrs.Modifiers = id.Modifiers
	return out, nil
})

// -----------------------------------------------------------------------------
// Resampler
// -----------------------------------------------------------------------------

// meanResampler fills the destination with the mean of the source.
type meanResampler struct {
	prepared int
	sources  []string
}

func (r *meanResampler) Prepare(_ context.Context, src, dst Area) (string, any, error) {
	r.prepared++
	r.sources = append(r.sources, src.Key())
	return src.Key() + "->" + dst.Key(), src.Key(), nil
}

func (r *meanResampler) ResampleDataset(_ context.Context, ds *Dataset, dst Area, _ any) (*Dataset, error) {
	out := ds.WithData(filled(dst, meanOf(ds.Data.Values)))
	out.Attrs.Area = dst
	return out, nil
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

type memWriter struct {
	saved [][]DataID
	opts  []SaveOptions
}

func (w *memWriter) SaveDataset(ctx context.Context, ds *Dataset, opts SaveOptions) error {
	return w.SaveDatasets(ctx, []*Dataset{ds}, opts)
}

func (w *memWriter) SaveDatasets(_ context.Context, datasets []*Dataset, opts SaveOptions) error {
	var ids []DataID
	for _, ds := range datasets {
		ids = append(ids, ds.ID())
	}
	w.saved = append(w.saved, ids)
	w.opts = append(w.opts, opts)
	return nil
}

// -----------------------------------------------------------------------------
// Assertions
// -----------------------------------------------------------------------------

func newScene(t *testing.T, opts ...Option) *Scene {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func names(ids []DataID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}

func requireUniqueIDs(t *testing.T, s *Scene) {
	t.Helper()
	seen := make(map[DataID]bool)
	for _, ds := range s.Values() {
		id := ds.ID()
		require.False(t, seen[id], "duplicate identity %s", id)
		seen[id] = true
	}
	require.Len(t, seen, s.Len())
}

func requireAllNaNFree(t *testing.T, a *Array) {
	t.Helper()
	for _, v := range a.Values {
		require.False(t, math.IsNaN(v))
	}
}
