package archive

import (
	"time"

	"go.uber.org/zap"
)

// DefaultReaderName is the name an archive Reader reports unless WithName is
// given.
const DefaultReaderName = "archive"

// Option configures a Writer or Reader.
type Option func(*config)

type config struct {
	codec      Codec
	compressor Compressor
	log        *zap.Logger
	name       string
	now        func() time.Time
}

func newConfig(opts []Option) config {
	c := config{
		codec:      NewJSONLCodec(),
		compressor: NewGzipCompressor(),
		log:        zap.NewNop(),
		name:       DefaultReaderName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithCodec sets the codec new archives are written with. Readers use the
// codec recorded in the manifest.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithCompressor sets the compressor new archives are written with.
func WithCompressor(comp Compressor) Option {
	return func(c *config) {
		if comp != nil {
			c.compressor = comp
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithName sets the reader name used inside a Scene.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithClock overrides the manifest creation time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
