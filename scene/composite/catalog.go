package composite

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/scene/scene"
)

var (
	// ErrUnknownCompositor indicates a definition names an unregistered
	// compositor or modifier type.
	ErrUnknownCompositor = errors.New("unknown compositor")

	// ErrInvalidDefinition indicates a malformed catalog document.
	ErrInvalidDefinition = errors.New("invalid definition")
)

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Params holds the keys of a definition that are not part of the common
// schema, passed to the Factory.
type Params map[string]any

// Float returns the numeric parameter key, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("parameter %q: %v is not a number: %w", key, v, ErrInvalidDefinition)
	}
}

// Factory builds a compositor or modifier from its definition parameters.
type Factory func(params Params) (scene.Compositor, error)

// Registry maps compositor type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the compositors of this package:
// stack, difference, ratio, normalized_difference, scale and clip.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("stack", func(Params) (scene.Compositor, error) { return Stack{}, nil })
	r.Register("difference", func(Params) (scene.Compositor, error) { return Difference{}, nil })
	r.Register("ratio", func(Params) (scene.Compositor, error) { return Ratio{}, nil })
	r.Register("normalized_difference", func(Params) (scene.Compositor, error) { return NormalizedDifference{}, nil })
	r.Register("scale", func(p Params) (scene.Compositor, error) {
		factor, err := p.Float("factor", 1)
		if err != nil {
			return nil, err
		}
		offset, err := p.Float("offset", 0)
		if err != nil {
			return nil, err
		}
		return Scale{Factor: factor, Offset: offset}, nil
	})
	r.Register("clip", func(p Params) (scene.Compositor, error) {
		lo, err := p.Float("min", 0)
		if err != nil {
			return nil, err
		}
		hi, err := p.Float("max", 1)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, fmt.Errorf("clip range [%g, %g]: %w", lo, hi, ErrInvalidDefinition)
		}
		return Clip{Min: lo, Max: hi}, nil
	})
	return r
}

// Register adds f under name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) build(kind string, params Params) (scene.Compositor, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownCompositor)
	}
	return f(params)
}

// -----------------------------------------------------------------------------
// YAML documents
// -----------------------------------------------------------------------------

// document is one YAML document of a catalog file. Documents without a
// sensor hold generic definitions.
type document struct {
	Sensor     string                  `yaml:"sensor"`
	Composites map[string]compositeDoc `yaml:"composites"`
	Modifiers  map[string]modifierDoc  `yaml:"modifiers"`
}

type compositeDoc struct {
	Compositor string     `yaml:"compositor"`
	Required   []queryDoc `yaml:"prerequisites"`
	Optional   []queryDoc `yaml:"optional_prerequisites"`
	Params     Params     `yaml:",inline"`
}

type modifierDoc struct {
	Modifier string     `yaml:"modifier"`
	Required []queryDoc `yaml:"prerequisites"`
	Optional []queryDoc `yaml:"optional_prerequisites"`
	Params   Params     `yaml:",inline"`
}

// queryDoc is a prerequisite. A string is a dataset name, a number a
// wavelength in micrometers and null the empty slot; a mapping sets the
// query fields explicitly.
type queryDoc struct {
	q scene.Query
}

func (d *queryDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			d.q = scene.Query{}
		case "!!int", "!!float":
			var um float64
			if err := node.Decode(&um); err != nil {
				return err
			}
			d.q = scene.Band(um)
		default:
			d.q = scene.Name(node.Value)
		}
		return nil
	case yaml.MappingNode:
		var m struct {
			Name         string    `yaml:"name"`
			Wavelength   float64   `yaml:"wavelength"`
			Resolution   []float64 `yaml:"resolution"`
			Calibration  []string  `yaml:"calibration"`
			Polarization []string  `yaml:"polarization"`
			Level        []float64 `yaml:"level"`
			Modifiers    *[]string `yaml:"modifiers"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		q := scene.Query{
			Name:         m.Name,
			Wavelength:   m.Wavelength,
			Resolution:   m.Resolution,
			Polarization: m.Polarization,
			Level:        m.Level,
		}
		for _, c := range m.Calibration {
			q.Calibration = append(q.Calibration, scene.Calibration(c))
		}
		if m.Modifiers != nil {
			q = q.WithModifiers(*m.Modifiers...)
		}
		d.q = q
		return nil
	default:
		return fmt.Errorf("line %d: prerequisite must be a name, a wavelength or a mapping: %w", node.Line, ErrInvalidDefinition)
	}
}

func queries(docs []queryDoc) []scene.Query {
	out := make([]scene.Query, len(docs))
	for i, d := range docs {
		out[i] = d.q
	}
	return out
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// LoadCatalog reads every YAML document from r into a new catalog using the
// package compositors.
func LoadCatalog(r io.Reader) (*scene.Catalog, error) {
	cat := scene.NewCatalog()
	if err := NewRegistry().Decode(cat, r); err != nil {
		return nil, err
	}
	return cat, nil
}

// LoadCatalogFiles reads the YAML files in order into one catalog. Later
// files replace earlier definitions of the same sensor and name.
func (r *Registry) LoadCatalogFiles(paths ...string) (*scene.Catalog, error) {
	cat := scene.NewCatalog()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("composite: %w", err)
		}
		err = r.Decode(cat, f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("composite: %s: %w", p, err)
		}
	}
	return cat, nil
}

// Decode adds the definitions of every YAML document in rd to cat.
func (r *Registry) Decode(cat *scene.Catalog, rd io.Reader) error {
	dec := yaml.NewDecoder(rd)
	for {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("composite: decoding catalog: %w", err)
		}
		if err := r.add(cat, doc); err != nil {
			return err
		}
	}
}

func (r *Registry) add(cat *scene.Catalog, doc document) error {
	for _, name := range sortedKeys(doc.Composites) {
		def := doc.Composites[name]
		if def.Compositor == "" {
			return fmt.Errorf("composite: %s: no compositor: %w", name, ErrInvalidDefinition)
		}
		c, err := r.build(def.Compositor, def.Params)
		if err != nil {
			return fmt.Errorf("composite: %s: %w", name, err)
		}
		cat.AddComposite(doc.Sensor, scene.CompositeDef{
			Name:                  name,
			Prerequisites:         queries(def.Required),
			OptionalPrerequisites: queries(def.Optional),
			Compositor:            c,
		})
	}
	for _, name := range sortedKeys(doc.Modifiers) {
		def := doc.Modifiers[name]
		if def.Modifier == "" {
			return fmt.Errorf("composite: modifier %s: no modifier type: %w", name, ErrInvalidDefinition)
		}
		m, err := r.build(def.Modifier, def.Params)
		if err != nil {
			return fmt.Errorf("composite: modifier %s: %w", name, err)
		}
		cat.AddModifier(doc.Sensor, scene.ModifierDef{
			Name:                  name,
			Prerequisites:         queries(def.Required),
			OptionalPrerequisites: queries(def.Optional),
			Modifier:              m,
		})
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
