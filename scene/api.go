// Package scene loads, derives, aligns and exports satellite imagery datasets.
//
// A Scene owns a set of in-memory datasets keyed by DataID. Raw channels come
// from Readers; derived products ("composites") are built on demand by
// Compositors from a dependency tree, generated lazily and deferred when
// their inputs sit on incompatible grids until a resampling step aligns them.
package scene

import (
	"context"
	"errors"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// Reader provides raw datasets from storage.
type Reader interface {
	// Name identifies the reader within a Scene.
	Name() string

	// AvailableDatasetIDs lists datasets the reader can load from its inputs.
	AvailableDatasetIDs() []DataID

	// AllDatasetIDs lists every dataset the reader knows about, loadable or not.
	AllDatasetIDs() []DataID

	// SensorNames lists the instruments the inputs come from.
	SensorNames() []string

	StartTime() time.Time
	EndTime() time.Time

	// Load reads the requested datasets. IDs absent from the result could not
	// be loaded now; that is not an error.
	Load(ctx context.Context, ids []DataID) (map[DataID]*Dataset, error)
}

// -----------------------------------------------------------------------------
// Compositor
// -----------------------------------------------------------------------------

// Compositor derives one dataset from its prerequisites.
//
// Compose must return an error wrapping ErrIncompatibleAreas when the inputs
// cannot be combined until they share a grid. Any other error is fatal to the
// generation pass.
type Compositor interface {
	Compose(ctx context.Context, required, optional []*Dataset, id DataID) (*Dataset, error)
}

// CompositorFunc adapts a function to the Compositor interface.
type CompositorFunc func(ctx context.Context, required, optional []*Dataset, id DataID) (*Dataset, error)

func (f CompositorFunc) Compose(ctx context.Context, required, optional []*Dataset, id DataID) (*Dataset, error) {
	return f(ctx, required, optional, id)
}

// -----------------------------------------------------------------------------
// Resampler
// -----------------------------------------------------------------------------

// Resampler regrids datasets between areas.
type Resampler interface {
	// Prepare builds whatever is needed to map src onto dst. The returned key
	// identifies the prepared handle for caching.
	Prepare(ctx context.Context, src, dst Area) (key string, handle any, err error)

	// ResampleDataset regrids ds onto dst using a handle from Prepare.
	ResampleDataset(ctx context.Context, ds *Dataset, dst Area, handle any) (*Dataset, error)
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// SaveOptions controls where a writer puts its output.
type SaveOptions struct {
	// Filename is the output path or a pattern with {name}, {start_time} and
	// {resolution} fields. Empty lets the writer choose.
	Filename string

	// BaseDir is prepended to relative filenames.
	BaseDir string

	// Extra holds writer specific settings.
	Extra map[string]any
}

// Writer persists datasets.
type Writer interface {
	SaveDataset(ctx context.Context, ds *Dataset, opts SaveOptions) error
	SaveDatasets(ctx context.Context, datasets []*Dataset, opts SaveOptions) error
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound indicates a requested dataset is not available.
	ErrNotFound = errors.New("not found")

	// ErrIncompatibleAreas is returned by compositors whose inputs are on
	// different grids.
	ErrIncompatibleAreas = errors.New("incompatible areas")

	// ErrGeometryMismatch indicates areas of different kinds or projections
	// were combined.
	ErrGeometryMismatch = errors.New("geometry mismatch")

	// ErrNoAreas indicates an area operation found no datasets with an area.
	ErrNoAreas = errors.New("no areas")

	// ErrNoOverlap indicates a bounding box does not intersect an area.
	ErrNoOverlap = errors.New("no overlap")

	// ErrInvalidCrop indicates an empty or malformed slice request.
	ErrInvalidCrop = errors.New("invalid crop")

	// ErrReductionNotSupported indicates an area cannot be sliced to another.
	ErrReductionNotSupported = errors.New("data reduction not supported")

	// ErrUnknownReader indicates a reader name not held by the Scene.
	ErrUnknownReader = errors.New("unknown reader")

	// ErrUnknownWriter indicates a writer name without a registration.
	ErrUnknownWriter = errors.New("unknown writer")

	// ErrUnknownResampler indicates a resampler name without a registration.
	ErrUnknownResampler = errors.New("unknown resampler")

	// ErrNoDatasets indicates there was nothing to save.
	ErrNoDatasets = errors.New("no datasets")
)

// MissingDependenciesError lists every query that could not be mapped to a
// reader or compositor.
type MissingDependenciesError struct {
	Missing []Query
}

func (e *MissingDependenciesError) Error() string {
	names := make([]string, len(e.Missing))
	for i, q := range e.Missing {
		names[i] = q.String()
	}
	return "missing dependencies: " + strings.Join(names, ", ")
}

// Is makes the error match ErrNotFound.
func (e *MissingDependenciesError) Is(target error) bool {
	return target == ErrNotFound
}
