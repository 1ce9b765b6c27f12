package scene

import (
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"
)

// NodeHandle is a stable reference to a node of a DependencyTree. Handles
// survive renames.
type NodeHandle uint32

// EmptyNode is the handle of the "no dependency" sentinel.
const EmptyNode NodeHandle = 0

// NodeKind distinguishes what backs a dependency node.
type NodeKind uint8

const (
	// KindEmpty is the sentinel node.
	KindEmpty NodeKind = iota
	// KindReader nodes are raw datasets loaded by a named reader.
	KindReader
	// KindCompositor nodes are derived from their prerequisites.
	KindCompositor
	// KindLeaf nodes were added by the user and have no source.
	KindLeaf
)

func (k NodeKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindReader:
		return "reader"
	case KindCompositor:
		return "compositor"
	case KindLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

type node struct {
	kind       NodeKind
	reader     string
	compositor Compositor
	label      string
	required   []NodeHandle
	optional   []NodeHandle
}

// DependencyTree is the DAG linking requested datasets to the readers and
// compositors that produce them.
//
// Nodes live in an arena and are referenced by handle. Identities are kept in
// a side table so that renaming a node after generation leaves every edge
// valid.
type DependencyTree struct {
	readers       []Reader
	defs          sensorDefs
	availableOnly bool
	log           *zap.Logger

	nodes []node
	names []DataID
	index map[DataID]NodeHandle
	roots *roaring.Bitmap
}

// NewDependencyTree creates a tree over the given readers, resolving
// composites and modifiers from the catalog definitions for the readers'
// sensors. With availableOnly, readers only match datasets their inputs
// actually contain.
func NewDependencyTree(readers []Reader, catalog *Catalog, availableOnly bool, log *zap.Logger) *DependencyTree {
	if log == nil {
		log = zap.NewNop()
	}
	var sensors []string
	for _, r := range readers {
		sensors = append(sensors, r.SensorNames()...)
	}
	return &DependencyTree{
		readers:       readers,
		defs:          catalog.forSensors(sensors),
		availableOnly: availableOnly,
		log:           log,
		nodes:         []node{{kind: KindEmpty}},
		names:         []DataID{{}},
		index:         make(map[DataID]NodeHandle),
		roots:         roaring.New(),
	}
}

// -----------------------------------------------------------------------------
// Node access
// -----------------------------------------------------------------------------

// Len returns the number of nodes including the sentinel.
func (t *DependencyTree) Len() int {
	return len(t.nodes)
}

// Name returns the current identity of h.
func (t *DependencyTree) Name(h NodeHandle) DataID {
	return t.names[h]
}

// Kind returns what backs h.
func (t *DependencyTree) Kind(h NodeHandle) NodeKind {
	return t.nodes[h].kind
}

// Required returns the required prerequisites of h.
func (t *DependencyTree) Required(h NodeHandle) []NodeHandle {
	return t.nodes[h].required
}

// Optional returns the optional prerequisites of h.
func (t *DependencyTree) Optional(h NodeHandle) []NodeHandle {
	return t.nodes[h].optional
}

// Compositor returns the compositor of a compositor node.
func (t *DependencyTree) Compositor(h NodeHandle) Compositor {
	return t.nodes[h].compositor
}

// Label returns the catalog name of the compositor or modifier behind h.
func (t *DependencyTree) Label(h NodeHandle) string {
	return t.nodes[h].label
}

// Reader returns the reader name of a reader node.
func (t *DependencyTree) Reader(h NodeHandle) string {
	return t.nodes[h].reader
}

// Lookup returns the node currently named id.
func (t *DependencyTree) Lookup(id DataID) (NodeHandle, bool) {
	h, ok := t.index[id]
	return h, ok
}

// Roots returns the handles requested through Populate or AddLeaf.
func (t *DependencyTree) Roots() []NodeHandle {
	return toHandles(t.roots)
}

func (t *DependencyTree) add(id DataID, n node) NodeHandle {
	h := NodeHandle(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.names = append(t.names, id)
	t.index[id] = h
	return h
}

// UpdateNodeName renames h to id. Edges are unaffected.
func (t *DependencyTree) UpdateNodeName(h NodeHandle, id DataID) {
	old := t.names[h]
	if cur, ok := t.index[old]; ok && cur == h {
		delete(t.index, old)
	}
	t.names[h] = id
	t.index[id] = h
	t.log.Debug("renamed node", zap.Stringer("from", old), zap.Stringer("to", id))
}

// AddLeaf records a user supplied dataset as a root without a source.
func (t *DependencyTree) AddLeaf(id DataID) NodeHandle {
	h, ok := t.index[id]
	if !ok {
		h = t.add(id, node{kind: KindLeaf})
	}
	t.roots.Add(uint32(h))
	return h
}

// Copy returns an independent tree sharing the readers and definitions.
func (t *DependencyTree) Copy() *DependencyTree {
	c := *t
	c.nodes = make([]node, len(t.nodes))
	for i, n := range t.nodes {
		n.required = slices.Clone(n.required)
		n.optional = slices.Clone(n.optional)
		c.nodes[i] = n
	}
	c.names = slices.Clone(t.names)
	c.index = make(map[DataID]NodeHandle, len(t.index))
	for k, v := range t.index {
		c.index[k] = v
	}
	c.roots = t.roots.Clone()
	return &c
}

// CompositeNames lists the composites defined for the tree's sensors.
func (t *DependencyTree) CompositeNames() []string {
	return t.defs.compositeNames()
}

// ModifierNames lists the modifiers defined for the tree's sensors.
func (t *DependencyTree) ModifierNames() []string {
	return t.defs.modifierNames()
}

// -----------------------------------------------------------------------------
// Population
// -----------------------------------------------------------------------------

// Populate resolves each query, merged with filter, to a node, creating
// reader, modifier and compositor nodes as needed. The returned handles are
// parallel to queries, with EmptyNode for queries that did not resolve.
// Every query that cannot be resolved is reported in a single
// *MissingDependenciesError; the queries that did resolve are still added.
func (t *DependencyTree) Populate(queries []Query, filter Query) ([]NodeHandle, error) {
	var missing []Query
	handles := make([]NodeHandle, len(queries))
	for i, q := range queries {
		h, miss := t.resolve(q.Merge(filter), filter, nil)
		if len(miss) > 0 {
			missing = append(missing, miss...)
			continue
		}
		t.roots.Add(uint32(h))
		handles[i] = h
	}
	if len(missing) > 0 {
		return handles, &MissingDependenciesError{Missing: dedupeQueries(missing)}
	}
	return handles, nil
}

// resolve maps q to a node. stack holds the queries being resolved above q.
func (t *DependencyTree) resolve(q Query, filter Query, stack []string) (NodeHandle, []Query) {
	if id, ok := q.ID(); ok {
		if h, ok := t.index[id]; ok {
			return h, nil
		}
		q = looseQuery(id)
	}
	key := q.String()
	if slices.Contains(stack, key) {
		t.log.Debug("dependency cycle", zap.String("query", key))
		return 0, []Query{q}
	}
	stack = append(stack, key)

	if h, ok := t.findReaderNode(q); ok {
		return h, nil
	}
	if q.Modifiers != nil && q.Modifiers.Len() > 0 {
		return t.resolveModifier(q, filter, stack)
	}
	if def, ok := t.defs.composites[q.Name]; ok && q.Name != "" {
		return t.resolveComposite(q, def, filter, stack)
	}
	return 0, []Query{q}
}

func (t *DependencyTree) findReaderNode(q Query) (NodeHandle, bool) {
	for _, r := range t.readers {
		ids := r.AllDatasetIDs()
		if t.availableOnly {
			ids = r.AvailableDatasetIDs()
		}
		id, ok := q.Best(ids)
		if !ok {
			continue
		}
		if h, ok := t.index[id]; ok {
			return h, true
		}
		return t.add(id, node{kind: KindReader, reader: r.Name()}), true
	}
	return 0, false
}

func (t *DependencyTree) resolveModifier(q Query, filter Query, stack []string) (NodeHandle, []Query) {
	rest, last, _ := q.Modifiers.Pop()
	def, ok := t.defs.modifiers[last]
	if !ok {
		return 0, []Query{q}
	}
	base := q
	base.Modifiers = &rest
	bh, miss := t.resolve(base, filter, stack)
	if len(miss) > 0 {
		return 0, miss
	}
	baseID := t.names[bh]
	id := baseID.WithModifiers(baseID.Modifiers.With(last))
	if h, ok := t.index[id]; ok {
		return h, nil
	}
	required, miss := t.resolveRequired(def.Prerequisites, filter, stack)
	if len(miss) > 0 {
		return 0, miss
	}
	return t.add(id, node{
		kind:       KindCompositor,
		compositor: def.Modifier,
		label:      def.Name,
		required:   append([]NodeHandle{bh}, required...),
		optional:   t.resolveOptional(def.OptionalPrerequisites, filter, stack),
	}), nil
}

func (t *DependencyTree) resolveComposite(q Query, def CompositeDef, filter Query, stack []string) (NodeHandle, []Query) {
	id := DataID{Name: def.Name}
	if len(q.Resolution) == 1 {
		id.Resolution = q.Resolution[0]
	}
	if h, ok := t.index[id]; ok {
		return h, nil
	}
	required, miss := t.resolveRequired(def.Prerequisites, filter, stack)
	if len(miss) > 0 {
		return 0, miss
	}
	return t.add(id, node{
		kind:       KindCompositor,
		compositor: def.Compositor,
		label:      def.Name,
		required:   required,
		optional:   t.resolveOptional(def.OptionalPrerequisites, filter, stack),
	}), nil
}

func (t *DependencyTree) resolveRequired(prereqs []Query, filter Query, stack []string) ([]NodeHandle, []Query) {
	var (
		handles []NodeHandle
		missing []Query
	)
	for _, p := range prereqs {
		if p.IsZero() {
			handles = append(handles, EmptyNode)
			continue
		}
		h, miss := t.resolve(p.Merge(filter), filter, stack)
		if len(miss) > 0 {
			missing = append(missing, miss...)
			continue
		}
		handles = append(handles, h)
	}
	return handles, missing
}

func (t *DependencyTree) resolveOptional(prereqs []Query, filter Query, stack []string) []NodeHandle {
	var handles []NodeHandle
	for _, p := range prereqs {
		if p.IsZero() {
			handles = append(handles, EmptyNode)
			continue
		}
		h, miss := t.resolve(p.Merge(filter), filter, stack)
		if len(miss) > 0 {
			t.log.Debug("skipping unresolvable optional prerequisite", zap.Stringer("query", p))
			continue
		}
		handles = append(handles, h)
	}
	return handles
}

// looseQuery turns a concrete ID into a query on its set fields.
func looseQuery(id DataID) Query {
	q := Query{Name: id.Name}
	if id.Name == "" && !id.Wavelength.IsZero() {
		q.Wavelength = id.Wavelength.Central
	}
	if id.Resolution != 0 {
		q.Resolution = []float64{id.Resolution}
	}
	if id.Calibration != "" {
		q.Calibration = []Calibration{id.Calibration}
	}
	if id.Polarization != "" {
		q.Polarization = []string{id.Polarization}
	}
	if id.Level != 0 {
		q.Level = []float64{id.Level}
	}
	m := id.Modifiers
	q.Modifiers = &m
	return q
}

func dedupeQueries(qs []Query) []Query {
	seen := make(map[string]struct{}, len(qs))
	out := qs[:0]
	for _, q := range qs {
		k := q.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
	}
	return out
}

// -----------------------------------------------------------------------------
// Traversal
// -----------------------------------------------------------------------------

// handlesFor maps ids to nodes; a nil slice means every root.
func (t *DependencyTree) handlesFor(ids []DataID) []NodeHandle {
	if ids == nil {
		return t.Roots()
	}
	var out []NodeHandle
	for _, id := range ids {
		if h, ok := t.index[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Trunk returns the compositor nodes reachable from the nodes named by
// limitNodesTo (all roots when nil), prerequisites before dependents.
// Traversal does not descend below nodes for which satisfied returns true.
func (t *DependencyTree) Trunk(limitNodesTo []DataID, satisfied func(DataID) bool) []NodeHandle {
	visited := roaring.New()
	var out []NodeHandle
	var walk func(h NodeHandle)
	walk = func(h NodeHandle) {
		if !visited.CheckedAdd(uint32(h)) {
			return
		}
		n := t.nodes[h]
		if n.kind != KindCompositor {
			return
		}
		if satisfied == nil || !satisfied(t.names[h]) {
			for _, c := range n.required {
				walk(c)
			}
			for _, c := range n.optional {
				walk(c)
			}
		}
		out = append(out, h)
	}
	for _, h := range t.handlesFor(limitNodesTo) {
		walk(h)
	}
	return out
}

// Leaves returns the reader nodes reachable from the nodes named by
// limitNodesTo (all roots when nil).
func (t *DependencyTree) Leaves(limitNodesTo []DataID) []NodeHandle {
	visited := roaring.New()
	var out []NodeHandle
	var walk func(h NodeHandle)
	walk = func(h NodeHandle) {
		if !visited.CheckedAdd(uint32(h)) {
			return
		}
		n := t.nodes[h]
		switch n.kind {
		case KindReader:
			out = append(out, h)
		case KindCompositor:
			for _, c := range n.required {
				walk(c)
			}
			for _, c := range n.optional {
				walk(c)
			}
		}
	}
	for _, h := range t.handlesFor(limitNodesTo) {
		walk(h)
	}
	return out
}

func toHandles(b *roaring.Bitmap) []NodeHandle {
	arr := b.ToArray()
	out := make([]NodeHandle, len(arr))
	for i, v := range arr {
		out[i] = NodeHandle(v)
	}
	return out
}
