package scene

import (
	"slices"
	"sort"
)

// CompositeDef declares a derived product.
//
// A zero Query in either prerequisite list is an explicit "no dependency"
// slot: it never resolves when required and is skipped when optional.
type CompositeDef struct {
	Name                  string
	Prerequisites         []Query
	OptionalPrerequisites []Query
	Compositor            Compositor
}

// ModifierDef declares a transform applied on top of a single base dataset.
// The base dataset is always the first required input; Prerequisites lists
// any further inputs.
type ModifierDef struct {
	Name                  string
	Prerequisites         []Query
	OptionalPrerequisites []Query
	Modifier              Compositor
}

// GenericSensor holds definitions that apply to every sensor.
const GenericSensor = ""

// Catalog holds compositor and modifier definitions keyed by sensor name.
// A Catalog is built once and then only read.
type Catalog struct {
	composites map[string]map[string]CompositeDef
	modifiers  map[string]map[string]ModifierDef
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		composites: make(map[string]map[string]CompositeDef),
		modifiers:  make(map[string]map[string]ModifierDef),
	}
}

// AddComposite registers def for sensor, replacing any definition of the
// same name.
func (c *Catalog) AddComposite(sensor string, def CompositeDef) {
	m, ok := c.composites[sensor]
	if !ok {
		m = make(map[string]CompositeDef)
		c.composites[sensor] = m
	}
	m[def.Name] = def
}

// AddModifier registers def for sensor.
func (c *Catalog) AddModifier(sensor string, def ModifierDef) {
	m, ok := c.modifiers[sensor]
	if !ok {
		m = make(map[string]ModifierDef)
		c.modifiers[sensor] = m
	}
	m[def.Name] = def
}

// Sensors lists the sensors with definitions, sorted.
func (c *Catalog) Sensors() []string {
	seen := make(map[string]struct{})
	for s := range c.composites {
		seen[s] = struct{}{}
	}
	for s := range c.modifiers {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// sensorDefs is the merged view of a catalog for one set of sensors.
type sensorDefs struct {
	composites map[string]CompositeDef
	modifiers  map[string]ModifierDef
}

// forSensors merges the generic definitions with those of each sensor.
// Sensors are applied in sorted order; later sensors win on name clashes.
func (c *Catalog) forSensors(sensors []string) sensorDefs {
	defs := sensorDefs{
		composites: make(map[string]CompositeDef),
		modifiers:  make(map[string]ModifierDef),
	}
	if c == nil {
		return defs
	}
	order := []string{GenericSensor}
	sorted := slices.Clone(sensors)
	sort.Strings(sorted)
	for _, s := range sorted {
		if s != GenericSensor {
			order = append(order, s)
		}
	}
	for _, s := range order {
		for name, def := range c.composites[s] {
			defs.composites[name] = def
		}
		for name, def := range c.modifiers[s] {
			defs.modifiers[name] = def
		}
	}
	return defs
}

func (d sensorDefs) compositeNames() []string {
	names := make([]string, 0, len(d.composites))
	for n := range d.composites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d sensorDefs) modifierNames() []string {
	names := make([]string, 0, len(d.modifiers))
	for n := range d.modifiers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
