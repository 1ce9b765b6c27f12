package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/scene/scene"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
)

func testGrid() *scene.AreaDefinition {
	return &scene.AreaDefinition{
		ID:     "g",
		CRS:    "EPSG:3857",
		Width:  3,
		Height: 2,
		Extent: scene.Extent{MaxX: 3000, MaxY: 2000},
	}
}

func testDataset(name string, values ...float64) *scene.Dataset {
	return &scene.Dataset{
		Data: scene.NewArray2D(2, 3, values),
		Attrs: scene.Attributes{
			Name:        name,
			Wavelength:  scene.Wavelength{Min: 0.6, Central: 0.65, Max: 0.7},
			Resolution:  1000,
			Calibration: scene.Reflectance,
			Modifiers:   scene.NewModifiers("sunz"),
			Area:        testGrid(),
			StartTime:   t0,
			EndTime:     t1,
			Sensors:     []string{"imager"},
		},
	}
}

func fixedClock() time.Time { return t1 }

func TestRoundTrip(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name  string
		codec Codec
		comp  Compressor
	}{
		{"jsonl gzip", NewJSONLCodec(), NewGzipCompressor()},
		{"jsonl noop", NewJSONLCodec(), NewNoOpCompressor()},
		{"parquet zstd", NewParquetCodec(), NewZstdCompressor()},
		{"parquet uncompressed", NewParquetCodec(WithParquetCompression(ParquetCompressionNone)), NewNoOpCompressor()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemory()
			ds := testDataset("C02", 1, 2, nan, 4, 5, 6)

			w := NewWriter(store, WithCodec(tt.codec), WithCompressor(tt.comp), WithClock(fixedClock))
			if err := w.SaveDataset(ctx, ds, scene.SaveOptions{Filename: "{name}", BaseDir: "out"}); err != nil {
				t.Fatalf("SaveDataset failed: %v", err)
			}

			r, err := Open(ctx, store, "out/C02")
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			m := r.Manifest()
			if m.Codec != tt.codec.Name() || m.Compressor != tt.comp.Name() {
				t.Errorf("manifest codec/compressor = %s/%s", m.Codec, m.Compressor)
			}
			if !m.CreatedAt.Equal(t1) {
				t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, t1)
			}
			if got := m.Entries[0].ValidPixels; got != 5 {
				t.Errorf("ValidPixels = %d, want 5", got)
			}

			id := ds.ID()
			loaded, err := r.Load(ctx, []scene.DataID{id})
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			got, ok := loaded[id]
			if !ok {
				t.Fatalf("Load result missing %s", id)
			}
			if got.ID() != id {
				t.Errorf("ID = %s, want %s", got.ID(), id)
			}
			for i, want := range ds.Data.Values {
				v := got.Data.Values[i]
				if math.IsNaN(want) != math.IsNaN(v) || (!math.IsNaN(want) && v != want) {
					t.Errorf("value %d = %v, want %v", i, v, want)
				}
			}
			if got.Attrs.Area.Key() != ds.Attrs.Area.Key() {
				t.Errorf("area = %s, want %s", got.Attrs.Area.Key(), ds.Attrs.Area.Key())
			}
			if !got.Attrs.StartTime.Equal(t0) || !got.Attrs.EndTime.Equal(t1) {
				t.Errorf("times = %v..%v", got.Attrs.StartTime, got.Attrs.EndTime)
			}
		})
	}
}

func TestArchiveIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	w := NewWriter(store)
	ds := testDataset("C02", 1, 2, 3, 4, 5, 6)
	opts := scene.SaveOptions{Filename: "fixed"}

	if err := w.SaveDataset(ctx, ds, opts); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	err := w.SaveDataset(ctx, ds, opts)
	if !errors.Is(err, ErrPathExists) {
		t.Fatalf("second save error = %v, want ErrPathExists", err)
	}
	if !Error.Has(err) {
		t.Errorf("error %v is not of class %q", err, "archive")
	}
}

func TestSaveNothing(t *testing.T) {
	err := NewWriter(NewMemory()).SaveDatasets(context.Background(), nil, scene.SaveOptions{})
	if !errors.Is(err, scene.ErrNoDatasets) {
		t.Fatalf("error = %v, want ErrNoDatasets", err)
	}
}

func TestAncillaryAndSwath(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	swath := &scene.SwathDefinition{
		Lons:     scene.NewArray2D(2, 3, []float64{10, 11, 12, 10, 11, 12}),
		Lats:     scene.NewArray2D(2, 3, []float64{50, 50, 50, 49, 49, 49}),
		LonsName: "lon",
		Res:      750,
	}
	quality := testDataset("quality", 0, 0, 1, 0, 1, 1)
	quality.Attrs.Area = swath
	ds := testDataset("C02", 1, 2, 3, 4, 5, 6)
	ds.Attrs.Area = swath
	ds.Attrs.AncillaryVariables = []*scene.Dataset{quality}

	if err := NewWriter(store).SaveDatasets(ctx, []*scene.Dataset{ds}, scene.SaveOptions{Filename: "swath"}); err != nil {
		t.Fatalf("SaveDatasets failed: %v", err)
	}
	paths, err := store.List(ctx, "swath/geo")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("geo objects = %v, want lons and lats once", paths)
	}

	r, err := Open(ctx, store, "swath")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if n := len(r.AvailableDatasetIDs()); n != 2 {
		t.Errorf("AvailableDatasetIDs = %d entries, want 2", n)
	}
	loaded, err := r.Load(ctx, []scene.DataID{ds.ID()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := loaded[ds.ID()]
	if len(got.Attrs.AncillaryVariables) != 1 {
		t.Fatalf("ancillary variables = %d, want 1", len(got.Attrs.AncillaryVariables))
	}
	anc := got.Attrs.AncillaryVariables[0]
	if anc.Attrs.Name != "quality" {
		t.Errorf("ancillary = %q, want quality", anc.Attrs.Name)
	}
	if anc.Attrs.Area != got.Attrs.Area {
		t.Error("datasets on one swath should share the decoded area")
	}
	sw, ok := got.Attrs.Area.(*scene.SwathDefinition)
	if !ok {
		t.Fatalf("area is %T, want swath", got.Attrs.Area)
	}
	if sw.Res != 750 || sw.Lats.At(1, 2) != 49 {
		t.Errorf("swath = res %v lat %v", sw.Res, sw.Lats.At(1, 2))
	}
}

func TestLoadSkipsUnknownAndReportsBroken(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	a := testDataset("a", 1, 2, 3, 4, 5, 6)
	b := testDataset("b", 1, 2, 3, 4, 5, 6)
	if err := NewWriter(store).SaveDatasets(ctx, []*scene.Dataset{a, b}, scene.SaveOptions{Filename: "ab"}); err != nil {
		t.Fatalf("SaveDatasets failed: %v", err)
	}
	r, err := Open(ctx, store, "ab")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// corrupt b
	bPath := "ab/" + r.Manifest().Entries[1].Path
	if err := store.Delete(ctx, bPath); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, bPath, strings.NewReader("not gzip")); err != nil {
		t.Fatal(err)
	}

	loaded, err := r.Load(ctx, []scene.DataID{a.ID(), b.ID(), {Name: "nope"}})
	if err == nil {
		t.Fatal("expected an error for the corrupt dataset")
	}
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("error = %v, want ErrInvalidFormat", err)
	}
	if _, ok := loaded[a.ID()]; !ok || len(loaded) != 1 {
		t.Errorf("loaded = %d datasets, want only a", len(loaded))
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if _, err := Open(ctx, store, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing archive error = %v, want ErrNotFound", err)
	}

	put := func(dir, manifest string) {
		t.Helper()
		if err := store.Put(ctx, dir+"/manifest.json", strings.NewReader(manifest)); err != nil {
			t.Fatal(err)
		}
	}
	put("garbage", "{")
	if _, err := Open(ctx, store, "garbage"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("garbage manifest error = %v, want ErrInvalidFormat", err)
	}
	put("other", `{"schema_name":"vector-manifest"}`)
	if _, err := Open(ctx, store, "other"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("foreign manifest error = %v, want ErrInvalidFormat", err)
	}
	put("codec", `{"schema_name":"scene-archive","codec":"csv"}`)
	if _, err := Open(ctx, store, "codec"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("unknown codec error = %v, want ErrUnknownCodec", err)
	}
}

func TestListArchives(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	w := NewWriter(store)
	for _, name := range []string{"b", "a"} {
		ds := testDataset(name, 1, 2, 3, 4, 5, 6)
		if err := w.SaveDataset(ctx, ds, scene.SaveOptions{BaseDir: "runs", Filename: "{name}_{resolution}"}); err != nil {
			t.Fatal(err)
		}
	}
	dirs, err := ListArchives(ctx, store, "runs")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"runs/a_1000", "runs/b_1000"}; !slices.Equal(dirs, want) {
		t.Errorf("ListArchives = %v, want %v", dirs, want)
	}
}

func TestSceneFromArchive(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	ch1 := testDataset("ch1", 1, 1, 1, 1, 1, 1)
	ch2 := testDataset("ch2", 2, 2, 2, 2, 2, 2)
	if err := NewWriter(store).SaveDatasets(ctx, []*scene.Dataset{ch1, ch2}, scene.SaveOptions{Filename: "in"}); err != nil {
		t.Fatal(err)
	}
	r, err := Open(ctx, store, "in", WithName("disk"))
	if err != nil {
		t.Fatal(err)
	}

	cat := scene.NewCatalog()
	cat.AddComposite(scene.GenericSensor, scene.CompositeDef{
		Name:          "total",
		Prerequisites: []scene.Query{scene.Name("ch1"), scene.Name("ch2")},
		Compositor: scene.CompositorFunc(func(_ context.Context, req, _ []*scene.Dataset, id scene.DataID) (*scene.Dataset, error) {
			out := req[0].WithData(req[0].Data.Clone())
			for i, v := range req[1].Data.Values {
				out.Data.Values[i] += v
			}
			out.Attrs.Name = id.Name
			out.Attrs.Modifiers = scene.Modifiers{}
			return out, nil
		}),
	})
	s, err := scene.New(scene.WithReaders(r), scene.WithCatalog(cat))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Load(ctx, []scene.Query{scene.Name("total")}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	total, ok := s.Get(scene.Name("total"))
	if !ok {
		t.Fatal("total was not generated")
	}
	if total.Data.Values[0] != 3 {
		t.Errorf("total = %v, want 3", total.Data.Values[0])
	}

	// and back out again
	reg := scene.NewWriterRegistry()
	reg.Register("archive", NewWriter(store))
	s2, err := scene.New(scene.WithWriters(reg))
	if err != nil {
		t.Fatal(err)
	}
	s2.Set(total)
	if err := s2.SaveDatasets(ctx, "archive", []scene.Query{scene.Name("total")}, scene.SaveOptions{Filename: "out"}); err != nil {
		t.Fatalf("SaveDatasets failed: %v", err)
	}
	if ok, _ := store.Exists(ctx, "out/manifest.json"); !ok {
		t.Error("manifest not written")
	}
}

// -----------------------------------------------------------------------------
// Stores
// -----------------------------------------------------------------------------

func TestStores(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stores := map[string]Store{"fs": fs, "memory": NewMemory()}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "a/b.txt", strings.NewReader("hello")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Put(ctx, "a/b.txt", strings.NewReader("again")); !errors.Is(err, ErrPathExists) {
				t.Errorf("Put over existing = %v, want ErrPathExists", err)
			}
			rc, err := store.Get(ctx, "a/b.txt")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !bytes.Equal(data, []byte("hello")) {
				t.Errorf("Get = %q", data)
			}
			if _, err := store.Get(ctx, "a/missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get missing = %v, want ErrNotFound", err)
			}
			for _, bad := range []string{"", "../x", "a/../../x"} {
				if err := store.Put(ctx, bad, strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
					t.Errorf("Put(%q) = %v, want ErrInvalidPath", bad, err)
				}
			}
			paths, err := store.List(ctx, "a")
			if err != nil || !slices.Equal(paths, []string{"a/b.txt"}) {
				t.Errorf("List = %v, %v", paths, err)
			}
			if err := store.Delete(ctx, "a/b.txt"); err != nil {
				t.Fatal(err)
			}
			if ok, _ := store.Exists(ctx, "a/b.txt"); ok {
				t.Error("path still exists after Delete")
			}
			if err := store.Delete(ctx, "a/b.txt"); err != nil {
				t.Errorf("Delete of missing path = %v", err)
			}
		})
	}
}

func TestCodecAndCompressorLookup(t *testing.T) {
	for _, name := range []string{"jsonl", "parquet"} {
		if c, err := CodecByName(name); err != nil || c.Name() != name {
			t.Errorf("CodecByName(%q) = %v, %v", name, c, err)
		}
	}
	for _, name := range []string{"gzip", "zstd", "noop"} {
		if c, err := CompressorByName(name); err != nil || c.Name() != name {
			t.Errorf("CompressorByName(%q) = %v, %v", name, c, err)
		}
	}
	if _, err := CompressorByName("lz4"); !errors.Is(err, ErrUnknownCompressor) {
		t.Errorf("unknown compressor = %v", err)
	}
}
