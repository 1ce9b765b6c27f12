package scene

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ResampleOptions controls Resample.
type ResampleOptions struct {
	// Destination is the target grid. Nil means the finest area of the
	// selected datasets.
	Destination Area

	// Datasets limits the result to these datasets. Empty keeps all.
	Datasets []Query

	// Resampler names a registered resampler; empty selects the default.
	Resampler string

	// NoReduce disables slicing sources to the destination before resampling.
	NoReduce bool

	// NoGenerate skips generating composites after resampling.
	NoGenerate bool

	// NoUnload keeps intermediate datasets when generating.
	NoUnload bool
}

type reduction struct {
	y, x Span
	area Area
}

// resampleRun holds the per-call caches of one Resample.
type resampleRun struct {
	s          *Scene
	resampler  Resampler
	method     string
	dst        Area
	reduce     bool
	reductions map[string]*reduction
	handles    map[string]any
}

// Resample returns a copy of the Scene with every dataset regridded onto one
// destination. Sources are first cut to the part overlapping the destination
// when their grid supports it. Resampler handles are prepared once per
// source grid and cached on the Scene. Afterwards composites that were
// waiting on incompatible areas are generated.
func (s *Scene) Resample(ctx context.Context, opts ResampleOptions) (*Scene, error) {
	r, ok := s.cfg.resamplers[opts.Resampler]
	if !ok {
		return nil, fmt.Errorf("scene: resample: %q: %w", opts.Resampler, ErrUnknownResampler)
	}
	dst := opts.Destination
	if dst == nil {
		var err error
		if dst, err = s.FinestArea(opts.Datasets...); err != nil {
			return nil, fmt.Errorf("scene: resample: %w", err)
		}
	}
	c, err := s.Copy(opts.Datasets...)
	if err != nil {
		return nil, err
	}
	run := &resampleRun{
		s:          s,
		resampler:  r,
		method:     opts.Resampler,
		dst:        dst,
		reduce:     !opts.NoReduce,
		reductions: make(map[string]*reduction),
		handles:    make(map[string]any),
	}
	ids := c.datasets.Keys()
	out, err := transformDatasets(c.datasets.Values(), func(ds *Dataset) (*Dataset, error) {
		if ds.Attrs.Area == nil {
			return ds, nil
		}
		return run.resample(ctx, ds)
	})
	if err != nil {
		return nil, fmt.Errorf("scene: resample: %w", err)
	}
	for i, id := range ids {
		c.datasets.PutAs(id, out[i])
	}
	if !opts.NoGenerate {
		if _, err := c.GeneratePossibleComposites(ctx, !opts.NoUnload); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *resampleRun) resample(ctx context.Context, ds *Dataset) (*Dataset, error) {
	r.s.log.Debug("resampling", zap.Stringer("id", ds.ID()))
	ds, src := r.reduceData(ds)
	h, err := r.prepare(ctx, src)
	if err != nil {
		return nil, err
	}
	return r.resampler.ResampleDataset(ctx, ds, r.dst, h)
}

// reduceData cuts ds to the part of its grid overlapping the destination.
func (r *resampleRun) reduceData(ds *Dataset) (*Dataset, Area) {
	src := ds.Attrs.Area
	if !r.reduce {
		r.s.log.Debug("data reduction disabled by the user")
		return ds, src
	}
	red, ok := r.reductions[src.Key()]
	if !ok {
		var (
			y, x Span
			err  error
		)
		if ad, isDef := src.(*AreaDefinition); isDef {
			y, x, err = ad.SlicesFor(r.dst)
		} else {
			err = fmt.Errorf("%T: %w", src, ErrReductionNotSupported)
		}
		if err == nil {
			var sub Area
			if sub, err = src.Slice(y, x); err == nil {
				red = &reduction{y: y, x: x, area: sub}
			}
		}
		if err != nil {
			r.s.log.Info("not reducing data before resampling", zap.String("area", src.Key()), zap.Error(err))
		}
		r.reductions[src.Key()] = red
	}
	if red == nil {
		return ds, src
	}
	out := ds.WithData(ds.Data.Isel(map[string]Span{DimY: red.y, DimX: red.x}))
	out.Attrs.Area = red.area
	return out, red.area
}

// prepare returns the resampler handle for src, preparing it at most once per
// source grid and reusing handles cached on the Scene.
func (r *resampleRun) prepare(ctx context.Context, src Area) (any, error) {
	if h, ok := r.handles[src.Key()]; ok {
		return h, nil
	}
	cacheKey := r.method + "|" + src.Key() + "|" + r.dst.Key()
	if h, ok := r.s.resamplers.Get(cacheKey); ok {
		r.handles[src.Key()] = h
		return h, nil
	}
	key, h, err := r.resampler.Prepare(ctx, src, r.dst)
	if err != nil {
		return nil, fmt.Errorf("prepare resampler for %s: %w", src.Key(), err)
	}
	r.s.log.Debug("prepared resampler", zap.String("key", key))
	r.s.resamplers.Add(cacheKey, h)
	r.handles[src.Key()] = h
	return h, nil
}
