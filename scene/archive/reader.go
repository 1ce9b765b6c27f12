package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/pithecene-io/scene/scene"
)

// Reader loads datasets from an archive. It implements scene.Reader.
type Reader struct {
	store      Store
	dir        string
	cfg        config
	manifest   *Manifest
	codec      Codec
	compressor Compressor
	index      map[scene.DataID]int
}

var _ scene.Reader = (*Reader)(nil)

// Open reads the manifest of the archive under dir.
func Open(ctx context.Context, store Store, dir string, opts ...Option) (*Reader, error) {
	cfg := newConfig(opts)
	m, err := ReadManifest(ctx, store, dir)
	if err != nil {
		return nil, err
	}
	codec, err := CodecByName(m.Codec)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	comp, err := CompressorByName(m.Compressor)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	r := &Reader{
		store:      store,
		dir:        dir,
		cfg:        cfg,
		manifest:   m,
		codec:      codec,
		compressor: comp,
		index:      make(map[scene.DataID]int, len(m.Entries)),
	}
	for i := range m.Entries {
		r.index[m.Entries[i].ID()] = i
	}
	return r, nil
}

// ReadManifest loads and validates the manifest of the archive under dir.
func ReadManifest(ctx context.Context, store Store, dir string) (*Manifest, error) {
	rc, err := store.Get(ctx, path.Join(dir, manifestFile))
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("manifest of %q: %w", dir, err))
	}
	data, err := io.ReadAll(rc)
	if err = errs.Combine(err, rc.Close()); err != nil {
		return nil, Error.Wrap(err)
	}
	var m Manifest
	if err := jsonCodec.Unmarshal(data, &m); err != nil {
		return nil, Error.Wrap(fmt.Errorf("manifest of %q: %w: %w", dir, ErrInvalidFormat, err))
	}
	if m.SchemaName != ManifestSchema {
		return nil, Error.Wrap(fmt.Errorf("manifest of %q: schema %q: %w", dir, m.SchemaName, ErrInvalidFormat))
	}
	return &m, nil
}

// ListArchives returns the directories under prefix holding a manifest.
func ListArchives(ctx context.Context, store Store, prefix string) ([]string, error) {
	paths, err := store.List(ctx, prefix)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var dirs []string
	for _, p := range paths {
		if path.Base(p) == manifestFile {
			dirs = append(dirs, path.Dir(p))
		}
	}
	slices.Sort(dirs)
	return dirs, nil
}

// Manifest returns the archive manifest.
func (r *Reader) Manifest() *Manifest { return r.manifest }

func (r *Reader) Name() string          { return r.cfg.name }
func (r *Reader) SensorNames() []string { return slices.Clone(r.manifest.Sensors) }
func (r *Reader) StartTime() time.Time  { return r.manifest.StartTime }
func (r *Reader) EndTime() time.Time    { return r.manifest.EndTime }

func (r *Reader) AllDatasetIDs() []scene.DataID {
	return r.AvailableDatasetIDs()
}

// AvailableDatasetIDs lists every archived dataset; all of them are loadable.
func (r *Reader) AvailableDatasetIDs() []scene.DataID {
	ids := make([]scene.DataID, 0, len(r.manifest.Entries))
	for i := range r.manifest.Entries {
		ids = append(ids, r.manifest.Entries[i].ID())
	}
	slices.SortFunc(ids, scene.CompareIDs)
	return ids
}

// Load decodes the requested datasets and the ancillary variables they
// reference. Unknown identities are skipped. Datasets that fail to decode are
// left out of the result and reported together in the returned error.
func (r *Reader) Load(ctx context.Context, ids []scene.DataID) (map[scene.DataID]*scene.Dataset, error) {
	l := &load{r: r, done: make(map[int]*scene.Dataset), areas: make(map[string]scene.Area)}
	out := make(map[scene.DataID]*scene.Dataset, len(ids))
	var group errs.Group
	for _, id := range ids {
		i, ok := r.index[id]
		if !ok {
			r.cfg.log.Debug("dataset not in archive", zap.Stringer("id", id))
			continue
		}
		ds, err := l.entry(ctx, i)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			r.cfg.log.Warn("could not load archived dataset", zap.Stringer("id", id), zap.Error(err))
			group.Add(fmt.Errorf("%s: %w", id, err))
			continue
		}
		out[id] = ds
	}
	if err := group.Err(); err != nil {
		return out, Error.Wrap(err)
	}
	return out, nil
}

// load memoizes decoded entries and swath areas within one Load call.
type load struct {
	r     *Reader
	done  map[int]*scene.Dataset
	areas map[string]scene.Area
}

func (l *load) entry(ctx context.Context, i int) (*scene.Dataset, error) {
	if ds, ok := l.done[i]; ok {
		return ds, nil
	}
	e := &l.r.manifest.Entries[i]
	data, err := l.r.readArray(ctx, e.Path, e.Shape)
	if err != nil {
		return nil, err
	}
	ds := &scene.Dataset{Data: data, Attrs: e.attributes()}
	if ds.Attrs.Area, err = l.area(ctx, e.Area, e.Shape); err != nil {
		return nil, err
	}
	// registered before ancillaries so reference cycles terminate
	l.done[i] = ds
	for _, a := range e.Ancillary {
		if a < 0 || a >= len(l.r.manifest.Entries) {
			return nil, fmt.Errorf("ancillary index %d: %w", a, ErrInvalidFormat)
		}
		anc, err := l.entry(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("ancillary %s: %w", l.r.manifest.Entries[a].ID(), err)
		}
		ds.Attrs.AncillaryVariables = append(ds.Attrs.AncillaryVariables, anc)
	}
	return ds, nil
}

func (l *load) area(ctx context.Context, rec *AreaRecord, shape []int) (scene.Area, error) {
	if rec == nil {
		return nil, nil
	}
	switch rec.Kind {
	case "area":
		if len(rec.Extent) != 4 {
			return nil, fmt.Errorf("area %q extent: %w", rec.ID, ErrInvalidFormat)
		}
		return &scene.AreaDefinition{
			ID:     rec.ID,
			CRS:    rec.CRS,
			Width:  rec.Width,
			Height: rec.Height,
			Extent: scene.Extent{MinX: rec.Extent[0], MinY: rec.Extent[1], MaxX: rec.Extent[2], MaxY: rec.Extent[3]},
		}, nil
	case "swath":
		if a, ok := l.areas[rec.LonsPath]; ok {
			return a, nil
		}
		lons, err := l.r.readArray(ctx, rec.LonsPath, shape)
		if err != nil {
			return nil, err
		}
		lats, err := l.r.readArray(ctx, rec.LatsPath, shape)
		if err != nil {
			return nil, err
		}
		a := &scene.SwathDefinition{Lons: lons, Lats: lats, LonsName: rec.LonsName, Res: rec.Resolution}
		l.areas[rec.LonsPath] = a
		return a, nil
	default:
		return nil, fmt.Errorf("area kind %q: %w", rec.Kind, ErrInvalidFormat)
	}
}

func (r *Reader) readArray(ctx context.Context, p string, shape []int) (_ *scene.Array, err error) {
	rc, err := r.store.Get(ctx, path.Join(r.dir, p))
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, rc.Close()) }()

	dr, err := r.compressor.Decompress(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", p, ErrInvalidFormat, err)
	}
	defer func() { err = errs.Combine(err, dr.Close()) }()

	pixels, err := r.codec.Decode(dr)
	if err != nil {
		if errors.Is(err, ErrInvalidFormat) {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		return nil, fmt.Errorf("%s: %w: %w", p, ErrInvalidFormat, err)
	}
	return arrayOf(shape, pixels)
}
