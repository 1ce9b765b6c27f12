package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifiers(t *testing.T) {
	m := NewModifiers("sunz", "rayleigh")
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"sunz", "rayleigh"}, m.Names())

	rest, last, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "rayleigh", last)
	assert.Equal(t, NewModifiers("sunz"), rest)
	assert.Equal(t, m, rest.With("rayleigh"))

	_, _, ok = Modifiers{}.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, Modifiers{}.Len())
}

func TestQueryMatches(t *testing.T) {
	id := DataID{
		Name:        "C02",
		Wavelength:  Wavelength{Min: 0.59, Central: 0.64, Max: 0.69},
		Resolution:  500,
		Calibration: Reflectance,
	}
	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty matches all", Query{}, true},
		{"name", Name("C02"), true},
		{"other name", Name("C03"), false},
		{"band inside", Band(0.65), true},
		{"band outside", Band(0.8), false},
		{"resolution list", Query{Resolution: []float64{1000, 500}}, true},
		{"resolution miss", Query{Resolution: []float64{1000}}, false},
		{"calibration", Query{Calibration: []Calibration{Radiance, Reflectance}}, true},
		{"calibration miss", Query{Calibration: []Calibration{Counts}}, false},
		{"empty modifier chain", Name("C02").WithModifiers(), true},
		{"modifier chain miss", Name("C02").WithModifiers("sunz"), false},
		{"exact", id.Query(), true},
		{"exact differs", DataID{Name: "C02"}.Query(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(id))
		})
	}
}

func TestQueryBestRanking(t *testing.T) {
	refl1000 := DataID{Name: "C01", Resolution: 1000, Calibration: Reflectance}
	refl500 := DataID{Name: "C01", Resolution: 500, Calibration: Reflectance}
	rad500 := DataID{Name: "C01", Resolution: 500, Calibration: Radiance}
	counts500 := DataID{Name: "C01", Resolution: 500, Calibration: Counts}
	modified := DataID{Name: "C01", Resolution: 500, Calibration: Reflectance, Modifiers: NewModifiers("sunz")}
	all := []DataID{counts500, modified, refl1000, rad500, refl500}

	t.Run("finest resolution, default calibration order, fewest modifiers", func(t *testing.T) {
		best, ok := Name("C01").Best(all)
		require.True(t, ok)
		assert.Equal(t, refl500, best)
	})

	t.Run("query calibration order wins", func(t *testing.T) {
		best, ok := Query{Name: "C01", Calibration: []Calibration{Counts, Radiance}}.Best(all)
		require.True(t, ok)
		assert.Equal(t, counts500, best)
	})

	t.Run("resolution filter", func(t *testing.T) {
		best, ok := Query{Name: "C01", Resolution: []float64{1000}}.Best(all)
		require.True(t, ok)
		assert.Equal(t, refl1000, best)
	})

	t.Run("filter sorts best first", func(t *testing.T) {
		got := Name("C01").Filter(all)
		require.Len(t, got, 5)
		assert.Equal(t, []DataID{refl500, modified, rad500, counts500, refl1000}, got)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := Name("C99").Best(all)
		assert.False(t, ok)
	})
}

func TestQueryBestWavelength(t *testing.T) {
	near := DataID{Name: "a", Wavelength: Wavelength{Min: 10, Central: 10.8, Max: 11.5}}
	far := DataID{Name: "b", Wavelength: Wavelength{Min: 9.5, Central: 12, Max: 13}}
	best, ok := Band(11).Best([]DataID{far, near})
	require.True(t, ok)
	assert.Equal(t, near, best)
}

func TestQueryMerge(t *testing.T) {
	filter := Query{Resolution: []float64{1000}, Calibration: []Calibration{Radiance}}
	q := Query{Name: "x", Calibration: []Calibration{Counts}}.Merge(filter)
	assert.Equal(t, []float64{1000}, q.Resolution)
	assert.Equal(t, []Calibration{Counts}, q.Calibration)

	exact := DataID{Name: "x"}.Query()
	assert.Equal(t, exact, exact.Merge(filter))
}

func TestCompareIDsDeterministic(t *testing.T) {
	a := DataID{Name: "a", Calibration: Reflectance}
	b := DataID{Name: "a", Calibration: Radiance}
	assert.Negative(t, CompareIDs(a, b))
	assert.Positive(t, CompareIDs(b, a))
	assert.Zero(t, CompareIDs(a, a))
}
