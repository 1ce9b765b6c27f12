// Command scenectl inspects scene archives and derives products from them.
//
//	scenectl ls --root ./data
//	scenectl ls --root ./data runs/scene_20240501_120000
//	scenectl load --root ./data runs/scene_20240501_120000 ndvi --catalog composites.yaml --resample finest --out ./img
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pithecene-io/scene/scene"
	"github.com/pithecene-io/scene/scene/archive"
	s3store "github.com/pithecene-io/scene/scene/archive/s3"
	"github.com/pithecene-io/scene/scene/composite"
	"github.com/pithecene-io/scene/scene/native"
)

var (
	verbose     bool
	storeKind   string
	rootDir     string
	s3Bucket    string
	s3Prefix    string
	s3Region    string
	s3Endpoint  string
	catalogPath []string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log at debug level in development format")
	pf.StringVar(&storeKind, "store", "fs", "Archive store: fs or s3")
	pf.StringVar(&rootDir, "root", ".", "Root directory of the fs store")
	pf.StringVar(&s3Bucket, "s3-bucket", "", "Bucket of the s3 store")
	pf.StringVar(&s3Prefix, "s3-prefix", "", "Key prefix inside the bucket")
	pf.StringVar(&s3Region, "s3-region", "", "AWS region, default from the environment")
	pf.StringVar(&s3Endpoint, "s3-endpoint", "", "Custom endpoint for MinIO or LocalStack")
	pf.StringSliceVarP(&catalogPath, "catalog", "c", nil, "Composite catalog YAML files")
}

var rootCmd = &cobra.Command{
	Use:           "scenectl",
	Short:         "Inspect scene archives and generate composites from them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "scenectl:", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------
// Shared setup
// -----------------------------------------------------------------------------

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(ctx context.Context) (archive.Store, error) {
	switch storeKind {
	case "fs":
		return archive.NewFS(rootDir)
	case "s3":
		client, err := s3store.NewClient(ctx, s3store.ClientConfig{Region: s3Region, Endpoint: s3Endpoint})
		if err != nil {
			return nil, err
		}
		return s3store.New(client, s3store.Config{Bucket: s3Bucket, Prefix: s3Prefix})
	default:
		return nil, fmt.Errorf("unknown store %q", storeKind)
	}
}

func loadCatalog() (*scene.Catalog, error) {
	if len(catalogPath) == 0 {
		return scene.NewCatalog(), nil
	}
	return composite.NewRegistry().LoadCatalogFiles(catalogPath...)
}

// openScene builds a Scene reading the archive under dir.
func openScene(ctx context.Context, store archive.Store, dir string, log *zap.Logger, opts ...scene.Option) (*scene.Scene, error) {
	reader, err := archive.Open(ctx, store, dir, archive.WithLogger(log.Named("archive")))
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	base := []scene.Option{
		scene.WithReaders(reader),
		scene.WithCatalog(cat),
		scene.WithLogger(log.Named("scene")),
		scene.WithResampler(native.Name, native.New(native.WithLogger(log.Named("native")))),
	}
	return scene.New(append(base, opts...)...)
}
