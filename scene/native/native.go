// Package native resamples between uniform grids of the same coordinate
// reference system without interpolation.
//
// Each destination pixel takes the block of source pixels it covers: a single
// pixel (nearest neighbour) when the destination is finer or unaligned, or
// the mean of an aligned fy x fx block when the destination is an integer
// multiple coarser. Pixels outside the source are NaN.
package native

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/pithecene-io/scene/scene"
)

// Name is the name the resampler is usually registered under.
const Name = "native"

// Resampler implements scene.Resampler for AreaDefinition pairs.
type Resampler struct {
	log *zap.Logger
}

var _ scene.Resampler = (*Resampler)(nil)

// Option configures a Resampler.
type Option func(*Resampler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(r *Resampler) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a native resampler.
func New(opts ...Option) *Resampler {
	r := &Resampler{log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// block is the run of source indices one destination index reads.
// start is -1 when the destination index falls outside the source.
type block struct {
	start, n int
}

// Plan maps a source grid onto a destination grid. It is the handle returned
// by Prepare.
type Plan struct {
	srcRows, srcCols int
	rows, cols       []block
}

// Aggregated reports whether destination pixels average source blocks.
func (p *Plan) Aggregated() bool {
	return len(p.rows) > 0 && len(p.cols) > 0 && (p.rows[0].n > 1 || p.cols[0].n > 1)
}

// Prepare computes the index plan from src to dst.
func (r *Resampler) Prepare(_ context.Context, src, dst scene.Area) (string, any, error) {
	s, ok := src.(*scene.AreaDefinition)
	if !ok {
		return "", nil, fmt.Errorf("native: source %T: %w", src, scene.ErrGeometryMismatch)
	}
	d, ok := dst.(*scene.AreaDefinition)
	if !ok {
		return "", nil, fmt.Errorf("native: destination %T: %w", dst, scene.ErrGeometryMismatch)
	}
	if s.CRS != d.CRS {
		return "", nil, fmt.Errorf("native: %s to %s: %w", s.CRS, d.CRS, scene.ErrGeometryMismatch)
	}
	p := &Plan{
		srcRows: s.Height,
		srcCols: s.Width,
		// rows count down from the northern edge
		rows: blocks(s.Extent.MaxY, -s.PixelSizeY(), s.Height, d.Extent.MaxY, -d.PixelSizeY(), d.Height),
		cols: blocks(s.Extent.MinX, s.PixelSizeX(), s.Width, d.Extent.MinX, d.PixelSizeX(), d.Width),
	}
	key := Name + "|" + src.Key() + "|" + dst.Key()
	r.log.Debug("prepared native plan", zap.String("key", key), zap.Bool("aggregated", p.Aggregated()))
	return key, p, nil
}

// blocks maps n destination pixels starting at origin d0 with step ds onto m
// source pixels starting at s0 with step ss. Steps carry the axis direction.
func blocks(s0, ss float64, m int, d0, ds float64, n int) []block {
	out := make([]block, n)
	factor := ds / ss
	offset := (d0 - s0) / ss
	k := int(math.Round(factor))
	aligned := k > 1 && nearInt(factor) && nearInt(offset)
	for i := range out {
		if aligned {
			start := int(math.Round(offset)) + i*k
			out[i] = clip(start, k, m)
			continue
		}
		center := (d0 + (float64(i)+0.5)*ds - s0) / ss
		out[i] = clip(int(math.Floor(center)), 1, m)
	}
	return out
}

func clip(start, n, m int) block {
	stop := min(start+n, m)
	start = max(start, 0)
	if stop <= start {
		return block{start: -1}
	}
	return block{start: start, n: stop - start}
}

func nearInt(v float64) bool {
	return math.Abs(v-math.Round(v)) < 1e-6
}

// ResampleDataset applies a Plan from Prepare to ds. The last two dimensions
// of the data are (y, x); leading dimensions are carried through.
func (r *Resampler) ResampleDataset(ctx context.Context, ds *scene.Dataset, dst scene.Area, handle any) (*scene.Dataset, error) {
	p, ok := handle.(*Plan)
	if !ok {
		return nil, fmt.Errorf("native: handle %T is not a plan", handle)
	}
	a := ds.Data
	nd := len(a.Shape)
	if nd < 2 || a.Shape[nd-2] != p.srcRows || a.Shape[nd-1] != p.srcCols {
		return nil, fmt.Errorf("native: %s shape %v does not match the %dx%d source grid: %w",
			ds.Attrs.Name, a.Shape, p.srcRows, p.srcCols, scene.ErrGeometryMismatch)
	}
	shape := append(a.Shape[:nd-2:nd-2], len(p.rows), len(p.cols))
	out := scene.NewArray(a.Dims, shape)

	planes := 1
	for _, s := range a.Shape[:nd-2] {
		planes *= s
	}
	srcPlane := p.srcRows * p.srcCols
	dstPlane := len(p.rows) * len(p.cols)
	for k := range planes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := a.Values[k*srcPlane : (k+1)*srcPlane]
		dstVals := out.Values[k*dstPlane : (k+1)*dstPlane]
		for i, rb := range p.rows {
			if rb.start < 0 {
				continue
			}
			for j, cb := range p.cols {
				if cb.start < 0 {
					continue
				}
				dstVals[i*len(p.cols)+j] = blockMean(src, p.srcCols, rb, cb)
			}
		}
	}

	res := ds.WithData(out)
	res.Attrs.Area = dst
	return res, nil
}

// blockMean averages the valid values of a block, NaN when there are none.
func blockMean(src []float64, cols int, rb, cb block) float64 {
	if rb.n == 1 && cb.n == 1 {
		return src[rb.start*cols+cb.start]
	}
	var sum float64
	var n int
	for y := rb.start; y < rb.start+rb.n; y++ {
		for x := cb.start; x < cb.start+cb.n; x++ {
			if v := src[y*cols+x]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
