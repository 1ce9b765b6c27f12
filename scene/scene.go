package scene

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Scene is a collection of datasets from one or more readers together with
// the composites derived from them.
//
// A Scene is not safe for concurrent use.
type Scene struct {
	cfg        sceneConfig
	log        *zap.Logger
	readers    map[string]Reader
	tree       *DependencyTree
	datasets   *Store
	wishlist   map[DataID]struct{}
	abandoned  *roaring.Bitmap
	resamplers *lru.Cache[string, any]
}

// New creates a Scene.
func New(opts ...Option) (*Scene, error) {
	cfg := defaultSceneConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	readers := make(map[string]Reader, len(cfg.readers))
	for _, r := range cfg.readers {
		if _, dup := readers[r.Name()]; dup {
			return nil, fmt.Errorf("scene: duplicate reader %q", r.Name())
		}
		readers[r.Name()] = r
	}
	cache, err := lru.New[string, any](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("scene: resampler cache: %w", err)
	}
	return &Scene{
		cfg:        cfg,
		log:        cfg.log,
		readers:    readers,
		tree:       NewDependencyTree(cfg.readers, cfg.catalog, cfg.availableOnly, cfg.log.Named("deptree")),
		datasets:   NewStore(),
		wishlist:   make(map[DataID]struct{}),
		abandoned:  roaring.New(),
		resamplers: cache,
	}, nil
}

// Tree returns the dependency tree. It is owned by the Scene.
func (s *Scene) Tree() *DependencyTree {
	return s.tree
}

func (s *Scene) String() string {
	var b strings.Builder
	for i, ds := range s.datasets.Values() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ds.ID().String())
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Container access
// -----------------------------------------------------------------------------

// Get returns the dataset best matching q.
func (s *Scene) Get(q Query) (*Dataset, bool) {
	return s.datasets.Get(q)
}

// Contains reports whether a dataset matches q.
func (s *Scene) Contains(q Query) bool {
	return s.datasets.Contains(q)
}

// Set adds ds to the Scene and the wishlist, replacing any dataset with the
// same identity.
func (s *Scene) Set(ds *Dataset) DataID {
	id := s.datasets.Put(ds)
	s.wishlist[id] = struct{}{}
	s.tree.AddLeaf(id)
	s.abandoned.Clear()
	return id
}

// Delete removes the dataset matching q from the Scene and the wishlist.
func (s *Scene) Delete(q Query) (DataID, error) {
	id, ok := s.datasets.Key(q)
	if !ok {
		return DataID{}, fmt.Errorf("scene: delete %s: %w", q, ErrNotFound)
	}
	delete(s.wishlist, id)
	s.datasets.Delete(id)
	return id, nil
}

// Keys returns the identities of the contained datasets in insertion order.
func (s *Scene) Keys() []DataID {
	return s.datasets.Keys()
}

// Values returns the contained datasets in insertion order.
func (s *Scene) Values() []*Dataset {
	return s.datasets.Values()
}

// Len returns the number of contained datasets.
func (s *Scene) Len() int {
	return s.datasets.Len()
}

// Wishlist returns the identities the caller asked to keep, sorted.
func (s *Scene) Wishlist() []DataID {
	return sortedIDs(s.wishlist)
}

// MissingDatasets returns wishlist identities not currently contained.
func (s *Scene) MissingDatasets() []DataID {
	var out []DataID
	for id := range s.wishlist {
		if !s.datasets.Has(id) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, CompareIDs)
	return out
}

func sortedIDs(set map[DataID]struct{}) []DataID {
	out := make([]DataID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.SortFunc(out, CompareIDs)
	return out
}

// -----------------------------------------------------------------------------
// Metadata
// -----------------------------------------------------------------------------

// SensorNames returns the sensors of the contained datasets and the readers.
func (s *Scene) SensorNames() []string {
	seen := make(map[string]struct{})
	for _, ds := range s.datasets.Values() {
		for _, sensor := range ds.Attrs.Sensors {
			seen[sensor] = struct{}{}
		}
	}
	for _, r := range s.cfg.readers {
		for _, sensor := range r.SensorNames() {
			seen[sensor] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sensor := range seen {
		out = append(out, sensor)
	}
	sort.Strings(out)
	return out
}

// StartTime returns the earliest start time of the contained data, falling
// back to the readers' start times.
func (s *Scene) StartTime() time.Time {
	var start time.Time
	for _, ds := range s.datasets.Values() {
		if t := ds.Attrs.StartTime; !t.IsZero() && (start.IsZero() || t.Before(start)) {
			start = t
		}
	}
	if !start.IsZero() {
		return start
	}
	for _, r := range s.cfg.readers {
		if t := r.StartTime(); !t.IsZero() && (start.IsZero() || t.Before(start)) {
			start = t
		}
	}
	return start
}

// EndTime returns the latest end time of the contained data, falling back to
// the readers' end times and then to StartTime.
func (s *Scene) EndTime() time.Time {
	var end time.Time
	for _, ds := range s.datasets.Values() {
		if t := ds.Attrs.EndTime; t.After(end) {
			end = t
		}
	}
	if !end.IsZero() {
		return end
	}
	for _, r := range s.cfg.readers {
		if t := r.EndTime(); t.After(end) {
			end = t
		}
	}
	if end.IsZero() {
		return s.StartTime()
	}
	return end
}

// -----------------------------------------------------------------------------
// Listings
// -----------------------------------------------------------------------------

func (s *Scene) selectReaders(name string) ([]Reader, error) {
	if name == "" {
		return s.cfg.readers, nil
	}
	r, ok := s.readers[name]
	if !ok {
		return nil, fmt.Errorf("scene: reader %q: %w", name, ErrUnknownReader)
	}
	return []Reader{r}, nil
}

// AvailableDatasetIDs lists datasets loadable from the readers' inputs.
// An empty reader name selects every reader. With composites, composites
// that could be generated from those datasets are included.
func (s *Scene) AvailableDatasetIDs(reader string, composites bool) ([]DataID, error) {
	return s.datasetIDs(reader, composites, true)
}

// AllDatasetIDs lists every dataset the readers know about, loadable or not.
func (s *Scene) AllDatasetIDs(reader string, composites bool) ([]DataID, error) {
	return s.datasetIDs(reader, composites, false)
}

func (s *Scene) datasetIDs(reader string, composites, availableOnly bool) ([]DataID, error) {
	readers, err := s.selectReaders(reader)
	if err != nil {
		return nil, err
	}
	seen := make(map[DataID]struct{})
	for _, r := range readers {
		ids := r.AllDatasetIDs()
		if availableOnly {
			ids = r.AvailableDatasetIDs()
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	if composites {
		for _, id := range s.knownComposites(availableOnly) {
			seen[id] = struct{}{}
		}
	}
	return sortedIDs(seen), nil
}

// AvailableDatasetNames lists the unique names of AvailableDatasetIDs.
func (s *Scene) AvailableDatasetNames(reader string, composites bool) ([]string, error) {
	ids, err := s.AvailableDatasetIDs(reader, composites)
	if err != nil {
		return nil, err
	}
	return uniqueNames(ids), nil
}

// AllDatasetNames lists the unique names of AllDatasetIDs.
func (s *Scene) AllDatasetNames(reader string, composites bool) ([]string, error) {
	ids, err := s.AllDatasetIDs(reader, composites)
	if err != nil {
		return nil, err
	}
	return uniqueNames(ids), nil
}

// AvailableCompositeIDs lists composites whose prerequisites the readers'
// inputs can satisfy.
func (s *Scene) AvailableCompositeIDs() []DataID {
	return s.knownComposites(true)
}

// AvailableCompositeNames lists the names of AvailableCompositeIDs.
func (s *Scene) AvailableCompositeNames() []string {
	return uniqueNames(s.AvailableCompositeIDs())
}

// AllCompositeIDs lists composites whose prerequisites the readers know
// about, loadable or not.
func (s *Scene) AllCompositeIDs() []DataID {
	return s.knownComposites(false)
}

// AllCompositeNames lists the names of AllCompositeIDs.
func (s *Scene) AllCompositeNames() []string {
	return uniqueNames(s.AllCompositeIDs())
}

// AllModifierNames lists the modifiers defined for the readers' sensors.
func (s *Scene) AllModifierNames() []string {
	return s.tree.ModifierNames()
}

// knownComposites resolves every public composite in a scratch tree.
// Names starting with an underscore are private.
func (s *Scene) knownComposites(availableOnly bool) []DataID {
	scratch := NewDependencyTree(s.cfg.readers, s.cfg.catalog, availableOnly, nil)
	var out []DataID
	for _, name := range scratch.CompositeNames() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		handles, err := scratch.Populate([]Query{Name(name)}, Query{})
		if err != nil {
			continue
		}
		out = append(out, scratch.Name(handles[0]))
	}
	slices.SortFunc(out, CompareIDs)
	return out
}

func uniqueNames(ids []DataID) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id.Name == "" {
			continue
		}
		if _, ok := seen[id.Name]; ok {
			continue
		}
		seen[id.Name] = struct{}{}
		out = append(out, id.Name)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------
// Copy
// -----------------------------------------------------------------------------

// Copy returns a Scene sharing the readers and datasets but with its own
// store, wishlist and dependency tree. With queries, only the matching
// datasets are copied and they become the wishlist.
func (s *Scene) Copy(queries ...Query) (*Scene, error) {
	c := &Scene{
		cfg:        s.cfg,
		log:        s.log,
		readers:    s.readers,
		tree:       s.tree.Copy(),
		abandoned:  roaring.New(),
		resamplers: s.resamplers,
	}
	if len(queries) == 0 {
		c.datasets = s.datasets.Clone()
		c.wishlist = make(map[DataID]struct{}, len(s.wishlist))
		for id := range s.wishlist {
			c.wishlist[id] = struct{}{}
		}
		return c, nil
	}
	c.datasets = NewStore()
	c.wishlist = make(map[DataID]struct{}, len(queries))
	for _, q := range queries {
		id, ok := s.datasets.Key(q)
		if !ok {
			return nil, fmt.Errorf("scene: copy %s: %w", q, ErrNotFound)
		}
		ds, _ := s.datasets.Lookup(id)
		c.datasets.PutAs(id, ds)
		c.wishlist[id] = struct{}{}
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Areas
// -----------------------------------------------------------------------------

// AreaGroup is a set of datasets sharing one area. Area is nil for datasets
// without geolocation.
type AreaGroup struct {
	Area Area
	IDs  []DataID
}

// IterByArea groups the contained datasets by area, in first-seen order.
func (s *Scene) IterByArea() []AreaGroup {
	var groups []AreaGroup
	pos := make(map[string]int)
	for _, ds := range s.datasets.Values() {
		key := ""
		if ds.Attrs.Area != nil {
			key = ds.Attrs.Area.Key()
		}
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, AreaGroup{Area: ds.Attrs.Area})
		}
		groups[i].IDs = append(groups[i].IDs, ds.ID())
	}
	return groups
}

// AllSameArea reports whether every dataset with an area shares it.
func (s *Scene) AllSameArea() bool {
	key := ""
	for _, ds := range s.datasets.Values() {
		if ds.Attrs.Area == nil {
			continue
		}
		k := ds.Attrs.Area.Key()
		if key == "" {
			key = k
		} else if k != key {
			return false
		}
	}
	return true
}

// AllSameProj reports whether every dataset with an area shares a
// coordinate reference system. Swaths count as geographic.
func (s *Scene) AllSameProj() bool {
	crs := ""
	for _, ds := range s.datasets.Values() {
		if ds.Attrs.Area == nil {
			continue
		}
		c := crsOf(ds.Attrs.Area)
		if crs == "" {
			crs = c
		} else if c != crs {
			return false
		}
	}
	return true
}

func crsOf(a Area) string {
	if ad, ok := a.(*AreaDefinition); ok {
		return ad.CRS
	}
	return "EPSG:4326"
}

// FinestArea returns the highest resolution area among the datasets matching
// queries, or among all datasets when none are given.
func (s *Scene) FinestArea(queries ...Query) (Area, error) {
	areas, err := s.gatherAreas(queries)
	if err != nil {
		return nil, err
	}
	return FinestArea(areas)
}

// CoarsestArea returns the lowest resolution area among the datasets matching
// queries, or among all datasets when none are given.
func (s *Scene) CoarsestArea(queries ...Query) (Area, error) {
	areas, err := s.gatherAreas(queries)
	if err != nil {
		return nil, err
	}
	return CoarsestArea(areas)
}

func (s *Scene) gatherAreas(queries []Query) ([]Area, error) {
	var datasets []*Dataset
	if len(queries) == 0 {
		datasets = s.datasets.Values()
	}
	for _, q := range queries {
		ds, ok := s.datasets.Get(q)
		if !ok {
			return nil, fmt.Errorf("scene: %s: %w", q, ErrNotFound)
		}
		datasets = append(datasets, ds)
	}
	var areas []Area
	for _, ds := range datasets {
		if ds.Attrs.Area != nil {
			areas = append(areas, ds.Attrs.Area)
		}
	}
	if len(areas) == 0 {
		return nil, fmt.Errorf("scene: no dataset areas available: %w", ErrNoAreas)
	}
	return areas, nil
}
