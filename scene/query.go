package scene

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Query is a partially specified DataID used to pick the best matching
// dataset. Unset fields match anything; multi-valued fields match any of
// their values and express a preference order.
//
// A query built with DataID.Query is exact and only matches an equal ID.
type Query struct {
	Name         string
	Wavelength   float64 // micrometers; 0 matches any band
	Resolution   []float64
	Calibration  []Calibration
	Polarization []string
	Level        []float64
	Modifiers    *Modifiers // nil matches any chain

	exact *DataID
}

// Name returns a query matching datasets by name.
func Name(name string) Query {
	return Query{Name: name}
}

// Band returns a query matching datasets whose wavelength range contains um.
func Band(um float64) Query {
	return Query{Wavelength: um}
}

// WithModifiers returns a copy of q requiring the exact modifier chain.
func (q Query) WithModifiers(names ...string) Query {
	m := NewModifiers(names...)
	q.Modifiers = &m
	return q
}

// ID returns the identity of an exact query.
func (q Query) ID() (DataID, bool) {
	if q.exact == nil {
		return DataID{}, false
	}
	return *q.exact, true
}

// IsExact reports whether q was created from a DataID.
func (q Query) IsExact() bool {
	return q.exact != nil
}

// IsZero reports whether q constrains nothing.
func (q Query) IsZero() bool {
	return q.exact == nil && q.Name == "" && q.Wavelength == 0 &&
		len(q.Resolution) == 0 && len(q.Calibration) == 0 &&
		len(q.Polarization) == 0 && len(q.Level) == 0 && q.Modifiers == nil
}

// Matches reports whether id satisfies every constraint in q.
func (q Query) Matches(id DataID) bool {
	if q.exact != nil {
		return *q.exact == id
	}
	if q.Name != "" && q.Name != id.Name {
		return false
	}
	if q.Wavelength != 0 && !id.Wavelength.Contains(q.Wavelength) {
		return false
	}
	if len(q.Resolution) > 0 && !slices.Contains(q.Resolution, id.Resolution) {
		return false
	}
	if len(q.Calibration) > 0 && !slices.Contains(q.Calibration, id.Calibration) {
		return false
	}
	if len(q.Polarization) > 0 && !slices.Contains(q.Polarization, id.Polarization) {
		return false
	}
	if len(q.Level) > 0 && !slices.Contains(q.Level, id.Level) {
		return false
	}
	if q.Modifiers != nil && *q.Modifiers != id.Modifiers {
		return false
	}
	return true
}

// Merge fills the fields q leaves unset from filter. Name and wavelength are
// never taken from the filter, and exact queries are returned unchanged.
func (q Query) Merge(filter Query) Query {
	if q.exact != nil {
		return q
	}
	if len(q.Resolution) == 0 {
		q.Resolution = filter.Resolution
	}
	if len(q.Calibration) == 0 {
		q.Calibration = filter.Calibration
	}
	if len(q.Polarization) == 0 {
		q.Polarization = filter.Polarization
	}
	if len(q.Level) == 0 {
		q.Level = filter.Level
	}
	if q.Modifiers == nil {
		q.Modifiers = filter.Modifiers
	}
	return q
}

// Filter returns the candidates matching q, best match first.
func (q Query) Filter(candidates []DataID) []DataID {
	var out []DataID
	for _, id := range candidates {
		if q.Matches(id) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, q.compare)
	return out
}

// Best returns the preferred match among candidates.
func (q Query) Best(candidates []DataID) (DataID, bool) {
	var best DataID
	found := false
	for _, id := range candidates {
		if !q.Matches(id) {
			continue
		}
		if !found || q.compare(id, best) < 0 {
			best = id
			found = true
		}
	}
	return best, found
}

// compare ranks two matching IDs: closest band center, finest resolution,
// preferred calibration, then polarization and level in query order, fewest
// modifiers, and finally CompareIDs.
func (q Query) compare(a, b DataID) int {
	if q.Wavelength != 0 {
		if c := cmp.Compare(a.Wavelength.distance(q.Wavelength), b.Wavelength.distance(q.Wavelength)); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(resolutionRank(a.Resolution), resolutionRank(b.Resolution)); c != 0 {
		return c
	}
	if c := cmp.Compare(q.calibrationRank(a.Calibration), q.calibrationRank(b.Calibration)); c != 0 {
		return c
	}
	if len(q.Polarization) > 0 {
		if c := cmp.Compare(slices.Index(q.Polarization, a.Polarization), slices.Index(q.Polarization, b.Polarization)); c != 0 {
			return c
		}
	}
	if len(q.Level) > 0 {
		if c := cmp.Compare(slices.Index(q.Level, a.Level), slices.Index(q.Level, b.Level)); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Modifiers.Len(), b.Modifiers.Len()); c != 0 {
		return c
	}
	return CompareIDs(a, b)
}

// resolutionRank prefers the finest resolution. Unknown resolutions sort last.
func resolutionRank(r float64) float64 {
	if r == 0 {
		return math.Inf(1)
	}
	return r
}

func (q Query) calibrationRank(c Calibration) int {
	if len(q.Calibration) > 0 {
		if i := slices.Index(q.Calibration, c); i >= 0 {
			return i
		}
		return len(q.Calibration)
	}
	return defaultCalibrationRank(c)
}

func (q Query) String() string {
	if q.exact != nil {
		return q.exact.String()
	}
	var parts []string
	if q.Name != "" {
		parts = append(parts, "name="+strconv.Quote(q.Name))
	}
	if q.Wavelength != 0 {
		parts = append(parts, "wavelength="+strconv.FormatFloat(q.Wavelength, 'g', -1, 64))
	}
	if len(q.Resolution) > 0 {
		parts = append(parts, "resolution="+joinFloats(q.Resolution))
	}
	if len(q.Calibration) > 0 {
		cals := make([]string, len(q.Calibration))
		for i, c := range q.Calibration {
			cals[i] = string(c)
		}
		parts = append(parts, "calibration=["+strings.Join(cals, ", ")+"]")
	}
	if len(q.Polarization) > 0 {
		parts = append(parts, "polarization=["+strings.Join(q.Polarization, ", ")+"]")
	}
	if len(q.Level) > 0 {
		parts = append(parts, "level="+joinFloats(q.Level))
	}
	if q.Modifiers != nil {
		parts = append(parts, "modifiers="+q.Modifiers.String())
	}
	return "Query(" + strings.Join(parts, ", ") + ")"
}

func joinFloats(vs []float64) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(s, ", ") + "]"
}
