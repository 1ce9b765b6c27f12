package scene

import (
	"go.uber.org/zap"
)

// DefaultResamplerCacheSize bounds the number of prepared resampler handles a
// Scene keeps.
const DefaultResamplerCacheSize = 32

// Option configures a Scene.
type Option func(*sceneConfig)

type sceneConfig struct {
	readers       []Reader
	catalog       *Catalog
	log           *zap.Logger
	resamplers    map[string]Resampler
	writers       *WriterRegistry
	availableOnly bool
	cacheSize     int
}

func defaultSceneConfig() sceneConfig {
	return sceneConfig{
		catalog:    NewCatalog(),
		log:        zap.NewNop(),
		resamplers: make(map[string]Resampler),
		writers:    NewWriterRegistry(),
		cacheSize:  DefaultResamplerCacheSize,
	}
}

// WithReaders adds readers to the Scene. Reader names must be unique.
func WithReaders(readers ...Reader) Option {
	return func(c *sceneConfig) {
		c.readers = append(c.readers, readers...)
	}
}

// WithCatalog sets the compositor and modifier definitions.
func WithCatalog(catalog *Catalog) Option {
	return func(c *sceneConfig) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *sceneConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithResampler registers a resampler under name. The first registered
// resampler is the default.
func WithResampler(name string, r Resampler) Option {
	return func(c *sceneConfig) {
		c.resamplers[name] = r
		if _, ok := c.resamplers[""]; !ok {
			c.resamplers[""] = r
		}
	}
}

// WithWriters sets the writer registry used by SaveDataset and SaveDatasets.
func WithWriters(r *WriterRegistry) Option {
	return func(c *sceneConfig) {
		if r != nil {
			c.writers = r
		}
	}
}

// WithAvailableOnly restricts dependency resolution to datasets the readers'
// inputs actually contain.
func WithAvailableOnly() Option {
	return func(c *sceneConfig) {
		c.availableOnly = true
	}
}

// WithResamplerCacheSize bounds the prepared resampler cache.
func WithResamplerCacheSize(n int) Option {
	return func(c *sceneConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// -----------------------------------------------------------------------------
// Load options
// -----------------------------------------------------------------------------

// LoadOption adjusts a Load call.
type LoadOption func(*loadConfig)

type loadConfig struct {
	filter   Query
	generate bool
	unload   bool
}

// WithCalibration restricts loaded datasets to the given calibrations, in order of
// preference.
func WithCalibration(c ...Calibration) LoadOption {
	return func(l *loadConfig) { l.filter.Calibration = c }
}

// WithResolution restricts loaded datasets to the given resolutions.
func WithResolution(r ...float64) LoadOption {
	return func(l *loadConfig) { l.filter.Resolution = r }
}

// WithPolarization restricts loaded datasets to the given polarizations.
func WithPolarization(p ...string) LoadOption {
	return func(l *loadConfig) { l.filter.Polarization = p }
}

// WithLevel restricts loaded datasets to the given levels.
func WithLevel(v ...float64) LoadOption {
	return func(l *loadConfig) { l.filter.Level = v }
}

// WithModifierChain requires the given modifier chain on every requested dataset.
func WithModifierChain(names ...string) LoadOption {
	return func(l *loadConfig) {
		m := NewModifiers(names...)
		l.filter.Modifiers = &m
	}
}

// WithoutGenerate loads raw datasets without generating composites.
func WithoutGenerate() LoadOption {
	return func(l *loadConfig) { l.generate = false }
}

// WithoutUnload keeps intermediate datasets after generation.
func WithoutUnload() LoadOption {
	return func(l *loadConfig) { l.unload = false }
}
