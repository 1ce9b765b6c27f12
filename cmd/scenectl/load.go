package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pithecene-io/scene/scene"
	"github.com/pithecene-io/scene/scene/archive"
	"github.com/pithecene-io/scene/scene/native"
	"github.com/pithecene-io/scene/scene/writers"
)

var (
	loadResample  string
	loadBBox      string
	loadAggregate int
	loadWriter    string
	loadOut       string
	loadFilename  string
)

func init() {
	f := loadCmd.Flags()
	f.StringVar(&loadResample, "resample", "none", "Resample to the finest or coarsest area: none, finest or coarsest")
	f.StringVar(&loadBBox, "bbox", "", "Crop to minx,miny,maxx,maxy in projection units")
	f.IntVar(&loadAggregate, "aggregate", 0, "Average over NxN pixel windows")
	f.StringVarP(&loadWriter, "writer", "w", "", "Writer: geotiff, mitiff, simple_image or archive (default from the filename)")
	f.StringVarP(&loadOut, "out", "o", ".", "Output directory, or archive prefix for the archive writer")
	f.StringVar(&loadFilename, "filename", "", "Output filename pattern, e.g. {name}_{start_time}.tif")
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load <archive> <product>...",
	Short: "Load products from an archive, generate composites and save them",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		reg := scene.NewWriterRegistry()
		writers.Register(reg, writers.WithLogger(log.Named("writers")))
		reg.Register("archive", archive.NewWriter(store, archive.WithLogger(log.Named("archive"))))

		s, err := openScene(ctx, store, args[0], log, scene.WithWriters(reg))
		if err != nil {
			return err
		}
		queries := productQueries(args[1:])
		if err := s.Load(ctx, queries); err != nil {
			var missing *scene.MissingDependenciesError
			if !errors.As(err, &missing) {
				return err
			}
			log.Warn("some products are unknown", zap.Error(err))
		}

		if loadBBox != "" {
			box, err := parseExtent(loadBBox)
			if err != nil {
				return err
			}
			if s, err = s.Crop(scene.CropOptions{BBox: scene.BBox{XY: &box}}); err != nil {
				return err
			}
		}
		if loadAggregate > 1 {
			if s, err = s.Aggregate(scene.AggregateOptions{Y: loadAggregate, X: loadAggregate}); err != nil {
				return err
			}
		}
		switch loadResample {
		case "none":
		case "finest", "coarsest":
			dst, err := s.FinestArea()
			if loadResample == "coarsest" {
				dst, err = s.CoarsestArea()
			}
			if err != nil {
				return err
			}
			if s, err = s.Resample(ctx, scene.ResampleOptions{Destination: dst, Resampler: native.Name}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("--resample must be none, finest or coarsest, got %q", loadResample)
		}

		if missing := s.MissingDatasets(); len(missing) > 0 {
			for _, id := range missing {
				log.Warn("product could not be generated", zap.Stringer("id", id))
			}
		}
		if s.Len() == 0 {
			return fmt.Errorf("nothing to save: %w", scene.ErrNoDatasets)
		}
		return s.SaveDatasets(ctx, loadWriter, nil, scene.SaveOptions{BaseDir: loadOut, Filename: loadFilename})
	},
}

// productQueries reads each product as a wavelength in micrometers when it
// parses as a number and as a name otherwise.
func productQueries(products []string) []scene.Query {
	out := make([]scene.Query, 0, len(products))
	for _, p := range products {
		if um, err := strconv.ParseFloat(p, 64); err == nil {
			out = append(out, scene.Band(um))
			continue
		}
		out = append(out, scene.Name(p))
	}
	return out
}

func parseExtent(s string) (scene.Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return scene.Extent{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return scene.Extent{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return scene.Extent{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}
