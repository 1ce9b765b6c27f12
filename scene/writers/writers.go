// Package writers saves datasets as image files: geotiff, mitiff and
// simple_image (PNG).
//
// Each dataset is written to its own file named from SaveOptions.Filename,
// expanded with scene.FormatFilename, below SaveOptions.BaseDir. Multiple
// datasets are encoded concurrently.
package writers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/scene/scene"
)

// Error is the error class of this package.
var Error = errs.Class("writers")

var (
	// ErrUnsupportedShape indicates data that cannot be rendered as an image.
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrDuplicateFilename indicates two datasets of one save would be
	// written to the same file.
	ErrDuplicateFilename = errors.New("duplicate filename")
)

// DefaultPattern names files when SaveOptions.Filename is empty. The writer
// appends its extension.
const DefaultPattern = "{name}_{start_time}"

// ExtraStretch is the SaveOptions.Extra key holding a Stretch that replaces
// the automatic min/max stretch.
const ExtraStretch = "stretch"

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a Writer.
type Option func(*config)

type config struct {
	log         *zap.Logger
	concurrency int
}

func newConfig(opts []Option) config {
	c := config{log: zap.NewNop(), concurrency: 4}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithConcurrency bounds how many files are encoded at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// format encodes one dataset and lists the sidecar files that go with it,
// keyed by extension.
type format struct {
	name     string
	ext      string
	encode   func(w io.Writer, ds *scene.Dataset, stretch *Stretch) error
	sidecars func(ds *scene.Dataset) map[string][]byte
}

// Writer writes datasets to image files. It implements scene.Writer.
type Writer struct {
	format
	cfg config
}

var _ scene.Writer = (*Writer)(nil)

// Register adds the geotiff, mitiff and simple_image writers to reg.
func Register(reg *scene.WriterRegistry, opts ...Option) {
	for _, w := range []*Writer{NewGeoTIFF(opts...), NewMITIFF(opts...), NewSimpleImage(opts...)} {
		reg.Register(w.Name(), w)
	}
}

// Name returns the name the writer registers under.
func (w *Writer) Name() string { return w.name }

// Extension returns the file extension, with the leading dot.
func (w *Writer) Extension() string { return w.ext }

// Filename returns the path ds is written to.
func (w *Writer) Filename(ds *scene.Dataset, opts scene.SaveOptions) string {
	pattern := opts.Filename
	if pattern == "" {
		pattern = DefaultPattern
	}
	name := scene.FormatFilename(pattern, ds)
	if filepath.Ext(name) == "" {
		name += w.ext
	}
	if opts.BaseDir != "" && !filepath.IsAbs(name) {
		name = filepath.Join(opts.BaseDir, name)
	}
	return name
}

func (w *Writer) SaveDataset(ctx context.Context, ds *scene.Dataset, opts scene.SaveOptions) error {
	return w.SaveDatasets(ctx, []*scene.Dataset{ds}, opts)
}

// SaveDatasets writes one file per dataset.
func (w *Writer) SaveDatasets(ctx context.Context, datasets []*scene.Dataset, opts scene.SaveOptions) error {
	if len(datasets) == 0 {
		return Error.Wrap(scene.ErrNoDatasets)
	}
	stretch, err := stretchOption(opts)
	if err != nil {
		return Error.Wrap(err)
	}

	paths := make([]string, len(datasets))
	seen := make(map[string]bool, len(datasets))
	for i, ds := range datasets {
		p := w.Filename(ds, opts)
		if seen[p] {
			return Error.Wrap(fmt.Errorf("%s: %w", p, ErrDuplicateFilename))
		}
		seen[p] = true
		paths[i] = p
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.concurrency)
	for i, ds := range datasets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return w.save(ds, paths[i], stretch)
		})
	}
	return Error.Wrap(g.Wait())
}

func (w *Writer) save(ds *scene.Dataset, path string, stretch *Stretch) error {
	var buf bytes.Buffer
	if err := w.encode(&buf, ds, stretch); err != nil {
		return fmt.Errorf("%s %s: %w", w.name, ds.ID(), err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := writeFile(path, &buf); err != nil {
		return err
	}
	if w.sidecars != nil {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		for ext, data := range w.sidecars(ds) {
			if err := writeFile(base+ext, bytes.NewReader(data)); err != nil {
				return err
			}
		}
	}
	w.cfg.log.Debug("wrote image",
		zap.String("writer", w.name), zap.Stringer("id", ds.ID()), zap.String("path", path))
	return nil
}

func writeFile(path string, r io.Reader) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, f.Close()) }()
	_, err = io.Copy(f, r)
	return err
}

func stretchOption(opts scene.SaveOptions) (*Stretch, error) {
	v, ok := opts.Extra[ExtraStretch]
	if !ok {
		return nil, nil
	}
	switch s := v.(type) {
	case Stretch:
		return &s, nil
	case *Stretch:
		return s, nil
	default:
		return nil, fmt.Errorf("%s option of type %T", ExtraStretch, v)
	}
}
