package scene

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Writer names used for extension based selection.
const (
	WriterGeoTIFF     = "geotiff"
	WriterCF          = "cf"
	WriterMITIFF      = "mitiff"
	WriterSimpleImage = "simple_image"
)

// WriterRegistry maps writer names to writers. It is safe for concurrent use.
type WriterRegistry struct {
	mu      sync.RWMutex
	writers map[string]Writer
}

// NewWriterRegistry creates an empty registry.
func NewWriterRegistry() *WriterRegistry {
	return &WriterRegistry{writers: make(map[string]Writer)}
}

// Register adds w under name, replacing any previous registration.
func (r *WriterRegistry) Register(name string, w Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[name] = w
}

// Lookup returns the writer registered under name.
func (r *WriterRegistry) Lookup(name string) (Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.writers[name]
	if !ok {
		return nil, fmt.Errorf("scene: writer %q: %w", name, ErrUnknownWriter)
	}
	return w, nil
}

// Names lists the registered writers, sorted.
func (r *WriterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.writers))
	for n := range r.writers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// WriterNameForFilename picks a writer from the file extension.
func WriterNameForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		return WriterGeoTIFF
	case ".nc":
		return WriterCF
	case ".mitiff":
		return WriterMITIFF
	default:
		return WriterSimpleImage
	}
}

// FormatFilename expands {name}, {start_time}, {end_time}, {resolution} and
// {area} in pattern from the dataset attributes.
func FormatFilename(pattern string, ds *Dataset) string {
	area := ""
	if ds.Attrs.Area != nil {
		if ad, ok := ds.Attrs.Area.(*AreaDefinition); ok {
			area = ad.ID
		}
	}
	r := strings.NewReplacer(
		"{name}", ds.Attrs.Name,
		"{start_time}", ds.Attrs.StartTime.UTC().Format("20060102_150405"),
		"{end_time}", ds.Attrs.EndTime.UTC().Format("20060102_150405"),
		"{resolution}", strconv.FormatFloat(ds.Attrs.Resolution, 'g', -1, 64),
		"{area}", area,
	)
	return r.Replace(pattern)
}

// -----------------------------------------------------------------------------
// Saving
// -----------------------------------------------------------------------------

func (s *Scene) writerFor(name, filename string) (Writer, error) {
	if name == "" {
		if filename == "" {
			name = WriterGeoTIFF
		} else {
			name = WriterNameForFilename(filename)
		}
	}
	return s.cfg.writers.Lookup(name)
}

// SaveDataset writes the dataset matching q. An empty writer name selects one
// from the filename extension, or geotiff without a filename.
func (s *Scene) SaveDataset(ctx context.Context, q Query, writer string, opts SaveOptions) error {
	ds, ok := s.datasets.Get(q)
	if !ok {
		return fmt.Errorf("scene: save %s: %w", q, ErrNotFound)
	}
	w, err := s.writerFor(writer, opts.Filename)
	if err != nil {
		return err
	}
	return w.SaveDataset(ctx, ds, opts)
}

// SaveDatasets writes the datasets matching queries, or the contained
// wishlist datasets when none are given.
func (s *Scene) SaveDatasets(ctx context.Context, writer string, queries []Query, opts SaveOptions) error {
	var datasets []*Dataset
	if len(queries) == 0 {
		for _, id := range s.Wishlist() {
			if ds, ok := s.datasets.Lookup(id); ok {
				datasets = append(datasets, ds)
			}
		}
	}
	for _, q := range queries {
		ds, ok := s.datasets.Get(q)
		if !ok {
			return fmt.Errorf("scene: save %s: %w", q, ErrNotFound)
		}
		datasets = append(datasets, ds)
	}
	if len(datasets) == 0 {
		return fmt.Errorf("scene: save: %w", ErrNoDatasets)
	}
	w, err := s.writerFor(writer, opts.Filename)
	if err != nil {
		return err
	}
	return w.SaveDatasets(ctx, datasets, opts)
}
