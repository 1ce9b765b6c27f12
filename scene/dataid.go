package scene

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Wavelength
// -----------------------------------------------------------------------------

// Wavelength describes a spectral band in micrometers.
// The zero value means the band is unknown.
type Wavelength struct {
	Min     float64
	Central float64
	Max     float64
}

// IsZero reports whether the wavelength is unset.
func (w Wavelength) IsZero() bool {
	return w == Wavelength{}
}

// Contains reports whether um falls inside the band.
func (w Wavelength) Contains(um float64) bool {
	if w.IsZero() {
		return false
	}
	return um >= w.Min && um <= w.Max
}

// distance returns how far um is from the band center, or +Inf when um lies
// outside the band.
func (w Wavelength) distance(um float64) float64 {
	if !w.Contains(um) {
		return math.Inf(1)
	}
	return math.Abs(w.Central - um)
}

func (w Wavelength) String() string {
	if w.IsZero() {
		return ""
	}
	return fmt.Sprintf("(%g, %g, %g)", w.Min, w.Central, w.Max)
}

// -----------------------------------------------------------------------------
// Calibration
// -----------------------------------------------------------------------------

// Calibration names the physical quantity a raw channel was calibrated to.
type Calibration string

// Known calibrations, most preferred first.
const (
	BrightnessTemperature Calibration = "brightness_temperature"
	Reflectance           Calibration = "reflectance"
	Radiance              Calibration = "radiance"
	RadianceWavenumber    Calibration = "radiance_wavenumber"
	Counts                Calibration = "counts"
)

var calibrationOrder = []Calibration{
	BrightnessTemperature,
	Reflectance,
	Radiance,
	RadianceWavenumber,
	Counts,
}

func defaultCalibrationRank(c Calibration) int {
	if c == "" {
		return len(calibrationOrder) + 1
	}
	for i, known := range calibrationOrder {
		if known == c {
			return i
		}
	}
	return len(calibrationOrder)
}

// -----------------------------------------------------------------------------
// Modifiers
// -----------------------------------------------------------------------------

const modifierSep = "\x1f"

// Modifiers is an ordered chain of modifier names applied to a dataset.
// It is comparable so that DataID can be used as a map key.
type Modifiers struct {
	chain string
}

// NewModifiers creates a modifier chain applied in the given order.
func NewModifiers(names ...string) Modifiers {
	return Modifiers{chain: strings.Join(names, modifierSep)}
}

// Names returns the modifier names in application order.
func (m Modifiers) Names() []string {
	if m.chain == "" {
		return nil
	}
	return strings.Split(m.chain, modifierSep)
}

// Len returns the number of modifiers in the chain.
func (m Modifiers) Len() int {
	if m.chain == "" {
		return 0
	}
	return strings.Count(m.chain, modifierSep) + 1
}

// With returns a new chain with name appended.
func (m Modifiers) With(name string) Modifiers {
	if m.chain == "" {
		return Modifiers{chain: name}
	}
	return Modifiers{chain: m.chain + modifierSep + name}
}

// Pop splits off the last modifier. ok is false for an empty chain.
func (m Modifiers) Pop() (rest Modifiers, last string, ok bool) {
	if m.chain == "" {
		return m, "", false
	}
	i := strings.LastIndex(m.chain, modifierSep)
	if i < 0 {
		return Modifiers{}, m.chain, true
	}
	return Modifiers{chain: m.chain[:i]}, m.chain[i+len(modifierSep):], true
}

func (m Modifiers) String() string {
	return "(" + strings.Join(m.Names(), ", ") + ")"
}

// -----------------------------------------------------------------------------
// DataID
// -----------------------------------------------------------------------------

// DataID is the immutable identity of a dataset. Two IDs are equal only when
// every field is equal; unset fields are never treated as wildcards here.
// Fuzzy matching is the job of Query.
type DataID struct {
	Name         string
	Wavelength   Wavelength
	Resolution   float64
	Calibration  Calibration
	Polarization string
	Level        float64
	Modifiers    Modifiers
}

// IsZero reports whether the ID has no fields set.
func (id DataID) IsZero() bool {
	return id == DataID{}
}

// WithModifiers returns a copy of the ID carrying the given modifier chain.
func (id DataID) WithModifiers(m Modifiers) DataID {
	id.Modifiers = m
	return id
}

// Query returns an exact query for this ID.
func (id DataID) Query() Query {
	exact := id
	return Query{exact: &exact}
}

func (id DataID) String() string {
	var b strings.Builder
	b.WriteString("DataID(name=")
	b.WriteString(strconv.Quote(id.Name))
	if !id.Wavelength.IsZero() {
		b.WriteString(", wavelength=")
		b.WriteString(id.Wavelength.String())
	}
	if id.Resolution != 0 {
		b.WriteString(", resolution=")
		b.WriteString(strconv.FormatFloat(id.Resolution, 'g', -1, 64))
	}
	if id.Calibration != "" {
		b.WriteString(", calibration=")
		b.WriteString(string(id.Calibration))
	}
	if id.Polarization != "" {
		b.WriteString(", polarization=")
		b.WriteString(id.Polarization)
	}
	if id.Level != 0 {
		b.WriteString(", level=")
		b.WriteString(strconv.FormatFloat(id.Level, 'g', -1, 64))
	}
	b.WriteString(", modifiers=")
	b.WriteString(id.Modifiers.String())
	b.WriteString(")")
	return b.String()
}

// CompareIDs orders IDs deterministically. It is the final tie-break when
// ranking query matches and the sort order for listings.
func CompareIDs(a, b DataID) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Wavelength.Central, b.Wavelength.Central); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Resolution, b.Resolution); c != 0 {
		return c
	}
	if c := cmp.Compare(defaultCalibrationRank(a.Calibration), defaultCalibrationRank(b.Calibration)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Calibration, b.Calibration); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Polarization, b.Polarization); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Level, b.Level); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Modifiers.Len(), b.Modifiers.Len()); c != 0 {
		return c
	}
	return cmp.Compare(a.Modifiers.chain, b.Modifiers.chain)
}
