package scene

import (
	"maps"
	"slices"
	"time"
)

// Attributes is the metadata carried by a Dataset. The identity fields mirror
// DataID; everything else is descriptive.
type Attributes struct {
	Name         string
	Wavelength   Wavelength
	Resolution   float64
	Calibration  Calibration
	Polarization string
	Level        float64
	Modifiers    Modifiers

	// Area is the geolocation of the data, nil when unknown.
	Area Area

	StartTime time.Time
	EndTime   time.Time
	Sensors   []string

	// AncillaryVariables are sibling datasets such as quality flags.
	// They are referenced, not owned.
	AncillaryVariables []*Dataset

	// Extra holds reader or compositor specific metadata.
	Extra map[string]any
}

// Dataset is an in-memory array with its metadata.
type Dataset struct {
	Data  *Array
	Attrs Attributes
}

// ID derives the dataset identity from its attributes.
func (d *Dataset) ID() DataID {
	return DataID{
		Name:         d.Attrs.Name,
		Wavelength:   d.Attrs.Wavelength,
		Resolution:   d.Attrs.Resolution,
		Calibration:  d.Attrs.Calibration,
		Polarization: d.Attrs.Polarization,
		Level:        d.Attrs.Level,
		Modifiers:    d.Attrs.Modifiers,
	}
}

// SetID overwrites the identity attributes with id.
func (d *Dataset) SetID(id DataID) {
	d.Attrs.Name = id.Name
	d.Attrs.Wavelength = id.Wavelength
	d.Attrs.Resolution = id.Resolution
	d.Attrs.Calibration = id.Calibration
	d.Attrs.Polarization = id.Polarization
	d.Attrs.Level = id.Level
	d.Attrs.Modifiers = id.Modifiers
}

// Clone returns a deep copy of the data and attributes. Ancillary variable
// references are copied as references.
func (d *Dataset) Clone() *Dataset {
	return d.WithData(d.Data.Clone())
}

// WithData returns a dataset sharing d's attributes (copied) around data.
func (d *Dataset) WithData(data *Array) *Dataset {
	attrs := d.Attrs
	attrs.Sensors = slices.Clone(d.Attrs.Sensors)
	attrs.AncillaryVariables = slices.Clone(d.Attrs.AncillaryVariables)
	attrs.Extra = maps.Clone(d.Attrs.Extra)
	return &Dataset{Data: data, Attrs: attrs}
}

// -----------------------------------------------------------------------------
// Ancillary variables
// -----------------------------------------------------------------------------

// walkDatasets visits each dataset and, depth first, its ancillary variables.
// fn receives the dataset and the dataset it hangs off (nil at top level).
// Each dataset pointer is visited at most once per parent edge.
func walkDatasets(datasets []*Dataset, fn func(ds, parent *Dataset)) {
	var walk func(ds, parent *Dataset, path []*Dataset)
	walk = func(ds, parent *Dataset, path []*Dataset) {
		if slices.Contains(path, ds) {
			return
		}
		fn(ds, parent)
		path = append(path, ds)
		for _, anc := range ds.Attrs.AncillaryVariables {
			walk(anc, ds, path)
		}
	}
	for _, ds := range datasets {
		walk(ds, nil, nil)
	}
}

// ancillaryTable rebinds ancillary references after a collection of datasets
// has been replaced. Replacements are keyed by identity; links record which
// identities each parent pointed to.
type ancillaryTable struct {
	out   map[DataID]*Dataset
	links map[DataID][]DataID
}

func newAncillaryTable() *ancillaryTable {
	return &ancillaryTable{
		out:   make(map[DataID]*Dataset),
		links: make(map[DataID][]DataID),
	}
}

// transform applies fn to every dataset reachable from datasets exactly once
// per identity and relinks the ancillary variables of the results. fn may
// return the input unchanged. The returned slice is parallel to datasets.
func transformDatasets(datasets []*Dataset, fn func(*Dataset) (*Dataset, error)) ([]*Dataset, error) {
	t := newAncillaryTable()
	var err error
	walkDatasets(datasets, func(ds, parent *Dataset) {
		if err != nil {
			return
		}
		id := ds.ID()
		if parent != nil {
			pid := parent.ID()
			if !slices.Contains(t.links[pid], id) {
				t.links[pid] = append(t.links[pid], id)
			}
		}
		if _, done := t.out[id]; done {
			return
		}
		var res *Dataset
		res, err = fn(ds)
		if err != nil {
			return
		}
		if res == ds {
			res = ds.WithData(ds.Data)
		}
		t.out[id] = res
	})
	if err != nil {
		return nil, err
	}
	for pid, children := range t.links {
		parent := t.out[pid]
		anc := make([]*Dataset, 0, len(children))
		for _, cid := range children {
			anc = append(anc, t.out[cid])
		}
		parent.Attrs.AncillaryVariables = anc
	}
	result := make([]*Dataset, len(datasets))
	for i, ds := range datasets {
		result[i] = t.out[ds.ID()]
	}
	return result, nil
}
