package scene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	c := NewCatalog()
	c.AddComposite(GenericSensor, CompositeDef{
		Name:          "ndvi",
		Prerequisites: []Query{Name("ch1"), Name("ch2")},
		Compositor:    sum,
	})
	c.AddComposite("imager", CompositeDef{
		Name:                  "rgb",
		Prerequisites:         []Query{Name("ndvi"), Name("ch3").WithModifiers("double")},
		OptionalPrerequisites: []Query{Name("nope"), Name("ch1")},
		Compositor:            sum,
	})
	c.AddComposite("imager", CompositeDef{
		Name:          "_private",
		Prerequisites: []Query{Name("ch1")},
		Compositor:    sum,
	})
	c.AddComposite("other_sensor", CompositeDef{
		Name:          "foreign",
		Prerequisites: []Query{Name("ch1")},
		Compositor:    sum,
	})
	c.AddModifier(GenericSensor, ModifierDef{Name: "double", Modifier: double})
	return c
}

func threeChannelReader() *fakeReader {
	area := grid("g", 4, 1000)
	return newFakeReader("r1",
		channel("ch1", area, 1),
		channel("ch2", area, 2),
		channel("ch3", area, 3),
	)
}

func TestPopulateComposite(t *testing.T) {
	tree := NewDependencyTree([]Reader{threeChannelReader()}, testCatalog(), false, nil)
	handles, err := tree.Populate([]Query{Name("rgb")}, Query{})
	require.NoError(t, err)
	require.Len(t, handles, 1)

	rgb := handles[0]
	assert.Equal(t, KindCompositor, tree.Kind(rgb))
	assert.Equal(t, DataID{Name: "rgb"}, tree.Name(rgb))
	require.Len(t, tree.Required(rgb), 2)

	ndvi := tree.Required(rgb)[0]
	assert.Equal(t, "ndvi", tree.Name(ndvi).Name)
	assert.Equal(t, "ndvi", tree.Label(ndvi))

	mod := tree.Required(rgb)[1]
	assert.Equal(t, KindCompositor, tree.Kind(mod))
	assert.Equal(t, NewModifiers("double"), tree.Name(mod).Modifiers)
	base := tree.Required(mod)[0]
	assert.Equal(t, KindReader, tree.Kind(base))
	assert.Equal(t, "r1", tree.Reader(base))

	// the unresolvable optional prerequisite is dropped
	require.Len(t, tree.Optional(rgb), 1)
	assert.Equal(t, "ch1", tree.Name(tree.Optional(rgb)[0]).Name)

	leaves := tree.Leaves(nil)
	assert.ElementsMatch(t, []string{"ch1", "ch2", "ch3"}, handleNames(tree, leaves))
}

func TestPopulateReportsEveryMissingKey(t *testing.T) {
	c := testCatalog()
	c.AddComposite(GenericSensor, CompositeDef{
		Name:          "broken",
		Prerequisites: []Query{Name("ch1"), Name("gone")},
		Compositor:    sum,
	})
	tree := NewDependencyTree([]Reader{threeChannelReader()}, c, false, nil)
	handles, err := tree.Populate([]Query{Name("missing_channel"), Name("ch1"), Name("broken")}, Query{})
	require.Error(t, err)

	var missing *MissingDependenciesError
	require.True(t, errors.As(err, &missing))
	assert.ElementsMatch(t, []string{"missing_channel", "gone"}, queryNames(missing.Missing))
	assert.ErrorIs(t, err, ErrNotFound)

	// resolvable keys are still added
	assert.Equal(t, EmptyNode, handles[0])
	assert.Equal(t, "ch1", tree.Name(handles[1]).Name)
}

func TestPopulateSharesNodes(t *testing.T) {
	tree := NewDependencyTree([]Reader{threeChannelReader()}, testCatalog(), false, nil)
	first, err := tree.Populate([]Query{Name("ndvi")}, Query{})
	require.NoError(t, err)
	n := tree.Len()
	second, err := tree.Populate([]Query{Name("ndvi"), Name("ch1")}, Query{})
	require.NoError(t, err)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, tree.Required(first[0])[0], second[1])
	assert.Equal(t, n, tree.Len())
}

func TestPopulateSensorCatalog(t *testing.T) {
	tree := NewDependencyTree([]Reader{threeChannelReader()}, testCatalog(), false, nil)
	_, err := tree.Populate([]Query{Name("foreign")}, Query{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"_private", "ndvi", "rgb"}, tree.CompositeNames())
	assert.Equal(t, []string{"double"}, tree.ModifierNames())
}

func TestPopulateModifierChain(t *testing.T) {
	c := testCatalog()
	c.AddModifier(GenericSensor, ModifierDef{Name: "again", Modifier: double})
	tree := NewDependencyTree([]Reader{threeChannelReader()}, c, false, nil)
	handles, err := tree.Populate([]Query{Name("ch1").WithModifiers("double", "again")}, Query{})
	require.NoError(t, err)

	outer := handles[0]
	assert.Equal(t, NewModifiers("double", "again"), tree.Name(outer).Modifiers)
	inner := tree.Required(outer)[0]
	assert.Equal(t, NewModifiers("double"), tree.Name(inner).Modifiers)
	assert.Equal(t, KindReader, tree.Kind(tree.Required(inner)[0]))
}

func TestPopulateAvailableOnly(t *testing.T) {
	r := threeChannelReader()
	r.extra = []DataID{{Name: "ch9"}}
	all := NewDependencyTree([]Reader{r}, testCatalog(), false, nil)
	_, err := all.Populate([]Query{Name("ch9")}, Query{})
	require.NoError(t, err)

	avail := NewDependencyTree([]Reader{r}, testCatalog(), true, nil)
	_, err = avail.Populate([]Query{Name("ch9")}, Query{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPopulateEmptyPrerequisite(t *testing.T) {
	c := NewCatalog()
	c.AddComposite(GenericSensor, CompositeDef{
		Name:                  "maybe",
		Prerequisites:         []Query{Name("ch1")},
		OptionalPrerequisites: []Query{{}},
		Compositor:            sum,
	})
	tree := NewDependencyTree([]Reader{threeChannelReader()}, c, false, nil)
	handles, err := tree.Populate([]Query{Name("maybe")}, Query{})
	require.NoError(t, err)
	assert.Equal(t, []NodeHandle{EmptyNode}, tree.Optional(handles[0]))
	assert.Equal(t, KindEmpty, tree.Kind(EmptyNode))
}

func TestTrunkOrderAndLimit(t *testing.T) {
	tree := NewDependencyTree([]Reader{threeChannelReader()}, testCatalog(), false, nil)
	handles, err := tree.Populate([]Query{Name("rgb")}, Query{})
	require.NoError(t, err)
	rgb := tree.Name(handles[0])

	trunk := tree.Trunk([]DataID{rgb}, nil)
	got := handleNames(tree, trunk)
	require.Len(t, got, 3)
	// prerequisites come before dependents
	assert.Equal(t, "rgb", got[2])
	assert.ElementsMatch(t, []string{"ndvi", "ch3"}, got[:2])

	// nodes already satisfied are not descended into
	loaded := func(id DataID) bool { return id.Name == "rgb" }
	assert.Equal(t, []string{"rgb"}, handleNames(tree, tree.Trunk([]DataID{rgb}, loaded)))
}

func TestUpdateNodeNameKeepsEdges(t *testing.T) {
	tree := NewDependencyTree([]Reader{threeChannelReader()}, testCatalog(), false, nil)
	handles, err := tree.Populate([]Query{Name("rgb")}, Query{})
	require.NoError(t, err)
	rgb := handles[0]
	ndvi := tree.Required(rgb)[0]

	concrete := DataID{Name: "ndvi", Resolution: 1000}
	tree.UpdateNodeName(ndvi, concrete)

	assert.Equal(t, concrete, tree.Name(tree.Required(rgb)[0]))
	h, ok := tree.Lookup(concrete)
	require.True(t, ok)
	assert.Equal(t, ndvi, h)
	_, ok = tree.Lookup(DataID{Name: "ndvi"})
	assert.False(t, ok)
}

func TestTreeCopyIsIndependent(t *testing.T) {
	tree := NewDependencyTree([]Reader{threeChannelReader()}, testCatalog(), false, nil)
	handles, err := tree.Populate([]Query{Name("ndvi")}, Query{})
	require.NoError(t, err)

	c := tree.Copy()
	c.UpdateNodeName(handles[0], DataID{Name: "ndvi", Resolution: 1})
	c.AddLeaf(DataID{Name: "user"})

	assert.Equal(t, DataID{Name: "ndvi"}, tree.Name(handles[0]))
	_, ok := tree.Lookup(DataID{Name: "user"})
	assert.False(t, ok)
	assert.Len(t, tree.Roots(), 1)
	assert.Len(t, c.Roots(), 2)
}

func TestPopulateFilterResolution(t *testing.T) {
	fine, coarse := grid("fine", 8, 500), grid("coarse", 4, 1000)
	r := newFakeReader("r1",
		channel("ch1", fine, 1), channel("ch1", coarse, 1),
		channel("ch2", fine, 2), channel("ch2", coarse, 2),
	)
	tree := NewDependencyTree([]Reader{r}, testCatalog(), false, nil)
	handles, err := tree.Populate([]Query{Name("ndvi")}, Query{Resolution: []float64{1000}})
	require.NoError(t, err)
	ndvi := handles[0]
	assert.Equal(t, DataID{Name: "ndvi", Resolution: 1000}, tree.Name(ndvi))
	for _, h := range tree.Required(ndvi) {
		assert.Equal(t, 1000.0, tree.Name(h).Resolution)
	}
}

func handleNames(tree *DependencyTree, hs []NodeHandle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = tree.Name(h).Name
	}
	return out
}

func queryNames(qs []Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Name
	}
	return out
}
