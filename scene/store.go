package scene

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is an insertion-ordered identity-keyed set of datasets. Every entry
// has a unique DataID; putting a dataset under an existing ID replaces it in
// place.
type Store struct {
	m *orderedmap.OrderedMap[DataID, *Dataset]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{m: orderedmap.New[DataID, *Dataset]()}
}

// Put stores ds under its own identity and returns it.
func (s *Store) Put(ds *Dataset) DataID {
	id := ds.ID()
	s.m.Set(id, ds)
	return id
}

// PutAs stores ds under id, rewriting the identity attributes of ds to match.
func (s *Store) PutAs(id DataID, ds *Dataset) {
	ds.SetID(id)
	s.m.Set(id, ds)
}

// Lookup returns the dataset stored under exactly id.
func (s *Store) Lookup(id DataID) (*Dataset, bool) {
	return s.m.Get(id)
}

// Has reports whether id is stored.
func (s *Store) Has(id DataID) bool {
	_, ok := s.m.Get(id)
	return ok
}

// Key resolves q to the stored identity it selects.
func (s *Store) Key(q Query) (DataID, bool) {
	if id, ok := q.ID(); ok {
		return id, s.Has(id)
	}
	return q.Best(s.Keys())
}

// Get returns the dataset best matching q. A miss is not an error.
func (s *Store) Get(q Query) (*Dataset, bool) {
	id, ok := s.Key(q)
	if !ok {
		return nil, false
	}
	return s.Lookup(id)
}

// Contains reports whether any stored dataset matches q.
func (s *Store) Contains(q Query) bool {
	_, ok := s.Key(q)
	return ok
}

// Delete removes id and reports whether it was present.
func (s *Store) Delete(id DataID) bool {
	_, ok := s.m.Delete(id)
	return ok
}

// Keys returns the stored identities in insertion order.
func (s *Store) Keys() []DataID {
	keys := make([]DataID, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Values returns the stored datasets in insertion order.
func (s *Store) Values() []*Dataset {
	values := make([]*Dataset, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		values = append(values, p.Value)
	}
	return values
}

// Len returns the number of stored datasets.
func (s *Store) Len() int {
	return s.m.Len()
}

// Clone returns a new store holding the same dataset references.
func (s *Store) Clone() *Store {
	c := NewStore()
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		c.m.Set(p.Key, p.Value)
	}
	return c
}
