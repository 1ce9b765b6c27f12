package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/pithecene-io/scene/scene"
)

// DefaultPattern names archives when SaveOptions.Filename is empty.
const DefaultPattern = "scene_{start_time}"

// Writer saves datasets as an archive. It implements scene.Writer.
type Writer struct {
	store Store
	cfg   config
}

var _ scene.Writer = (*Writer)(nil)

// NewWriter creates a Writer on store.
func NewWriter(store Store, opts ...Option) *Writer {
	return &Writer{store: store, cfg: newConfig(opts)}
}

// SaveDataset writes a single dataset archive.
func (w *Writer) SaveDataset(ctx context.Context, ds *scene.Dataset, opts scene.SaveOptions) error {
	return w.SaveDatasets(ctx, []*scene.Dataset{ds}, opts)
}

// SaveDatasets writes datasets, and the ancillary variables they reference,
// as one archive under opts.BaseDir. opts.Filename names the archive and may
// use the scene.FormatFilename fields of the first dataset. Archives are
// immutable: saving over an existing manifest fails with ErrPathExists.
func (w *Writer) SaveDatasets(ctx context.Context, datasets []*scene.Dataset, opts scene.SaveOptions) error {
	if len(datasets) == 0 {
		return Error.Wrap(scene.ErrNoDatasets)
	}
	dir := ArchiveDir(datasets[0], opts)
	manifestPath := path.Join(dir, manifestFile)
	exists, err := w.store.Exists(ctx, manifestPath)
	if err != nil {
		return Error.Wrap(err)
	}
	if exists {
		return Error.Wrap(fmt.Errorf("%s: %w", dir, ErrPathExists))
	}

	all := flatten(datasets)
	index := make(map[*scene.Dataset]int, len(all))
	for i, ds := range all {
		index[ds] = i
	}

	m := &Manifest{
		SchemaName:    ManifestSchema,
		FormatVersion: ManifestVersion,
		CreatedAt:     w.cfg.now().UTC(),
		Codec:         w.cfg.codec.Name(),
		Compressor:    w.cfg.compressor.Name(),
	}
	geo := make(map[string]*AreaRecord)
	sensors := make(map[string]struct{})
	for i, ds := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := newEntry(ds)
		e.Path = path.Join("data", fmt.Sprintf("%04d_%s%s", i, safeName(ds.Attrs.Name), w.suffix()))
		if ds.Data != nil {
			e.Shape = slices.Clone(ds.Data.Shape)
		}
		size, valid, err := w.putArray(ctx, path.Join(dir, e.Path), ds.Data)
		if err != nil {
			return Error.Wrap(fmt.Errorf("save %s: %w", ds.ID(), err))
		}
		e.SizeBytes, e.ValidPixels = size, valid
		if e.Area, err = w.areaRecord(ctx, dir, ds.Attrs.Area, geo); err != nil {
			return Error.Wrap(fmt.Errorf("save %s: %w", ds.ID(), err))
		}
		for _, anc := range ds.Attrs.AncillaryVariables {
			e.Ancillary = append(e.Ancillary, index[anc])
		}
		m.Entries = append(m.Entries, e)
		extendSpan(m, ds.Attrs.StartTime, ds.Attrs.EndTime)
		for _, s := range ds.Attrs.Sensors {
			sensors[s] = struct{}{}
		}
		w.cfg.log.Debug("archived dataset",
			zap.Stringer("id", ds.ID()), zap.String("path", e.Path), zap.Int64("bytes", size))
	}
	for s := range sensors {
		m.Sensors = append(m.Sensors, s)
	}
	slices.Sort(m.Sensors)

	data, err := jsonCodec.MarshalIndent(m, "", "  ")
	if err != nil {
		return Error.Wrap(err)
	}
	if err := w.store.Put(ctx, manifestPath, bytes.NewReader(data)); err != nil {
		return Error.Wrap(err)
	}
	w.cfg.log.Info("archive written", zap.String("dir", dir), zap.Int("datasets", len(m.Entries)))
	return nil
}

// ArchiveDir returns the directory SaveDatasets writes to.
func ArchiveDir(first *scene.Dataset, opts scene.SaveOptions) string {
	pattern := opts.Filename
	if pattern == "" {
		pattern = DefaultPattern
	}
	return path.Join(opts.BaseDir, scene.FormatFilename(pattern, first))
}

func (w *Writer) suffix() string {
	return w.cfg.codec.Extension() + w.cfg.compressor.Extension()
}

// putArray encodes the valid pixels of a and stores them at p.
func (w *Writer) putArray(ctx context.Context, p string, a *scene.Array) (size, valid int64, err error) {
	pixels, err := pixelsOf(a)
	if err != nil {
		return 0, 0, err
	}
	var buf bytes.Buffer
	cw, err := w.cfg.compressor.Compress(&buf)
	if err != nil {
		return 0, 0, err
	}
	if err := errs.Combine(w.cfg.codec.Encode(cw, pixels), cw.Close()); err != nil {
		return 0, 0, err
	}
	size = int64(buf.Len())
	if err := w.store.Put(ctx, p, &buf); err != nil {
		return 0, 0, err
	}
	return size, int64(len(pixels)), nil
}

// areaRecord serializes area, writing swath coordinates once per archive.
func (w *Writer) areaRecord(ctx context.Context, dir string, area scene.Area, geo map[string]*AreaRecord) (*AreaRecord, error) {
	switch a := area.(type) {
	case nil:
		return nil, nil
	case *scene.AreaDefinition:
		return &AreaRecord{
			Kind:   "area",
			ID:     a.ID,
			CRS:    a.CRS,
			Width:  a.Width,
			Height: a.Height,
			Extent: []float64{a.Extent.MinX, a.Extent.MinY, a.Extent.MaxX, a.Extent.MaxY},
		}, nil
	case *scene.SwathDefinition:
		if rec, ok := geo[a.Key()]; ok {
			return rec, nil
		}
		n := len(geo)
		rec := &AreaRecord{
			Kind:       "swath",
			LonsName:   a.LonsName,
			LonsPath:   path.Join("geo", fmt.Sprintf("%04d_lons%s", n, w.suffix())),
			LatsPath:   path.Join("geo", fmt.Sprintf("%04d_lats%s", n, w.suffix())),
			Resolution: a.Res,
		}
		if _, _, err := w.putArray(ctx, path.Join(dir, rec.LonsPath), a.Lons); err != nil {
			return nil, err
		}
		if _, _, err := w.putArray(ctx, path.Join(dir, rec.LatsPath), a.Lats); err != nil {
			return nil, err
		}
		geo[a.Key()] = rec
		return rec, nil
	default:
		return nil, fmt.Errorf("area of type %T: %w", area, ErrUnsupportedData)
	}
}

// flatten lists datasets followed by any ancillary variables not already
// listed, each once.
func flatten(datasets []*scene.Dataset) []*scene.Dataset {
	var out []*scene.Dataset
	seen := make(map[*scene.Dataset]bool)
	var visit func(ds *scene.Dataset)
	visit = func(ds *scene.Dataset) {
		if ds == nil || seen[ds] {
			return
		}
		seen[ds] = true
		out = append(out, ds)
		for _, anc := range ds.Attrs.AncillaryVariables {
			visit(anc)
		}
	}
	for _, ds := range datasets {
		visit(ds)
	}
	return out
}

func extendSpan(m *Manifest, start, end time.Time) {
	if !start.IsZero() && (m.StartTime.IsZero() || start.Before(m.StartTime)) {
		m.StartTime = start
	}
	if end.After(m.EndTime) {
		m.EndTime = end
	}
}

// safeName keeps letters, digits, '-' and '_' of a dataset name.
func safeName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "unnamed"
	}
	return string(b)
}
