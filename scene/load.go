package scene

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Load makes the requested datasets available in the Scene.
//
// Queries already satisfied by contained datasets are only added to the
// wishlist. The rest are resolved through the dependency tree; if any cannot
// be mapped to a reader or compositor Load returns an error wrapping
// *MissingDependenciesError that names every unresolved query. Raw datasets
// are then read, one call per reader, and composites are generated unless
// WithoutGenerate is given. Datasets that fail to load are not an error:
// they are dropped from the wishlist with a warning.
func (s *Scene) Load(ctx context.Context, queries []Query, opts ...LoadOption) error {
	cfg := loadConfig{generate: true, unload: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		found  []DataID
		needed []Query
	)
	for _, q := range queries {
		if id, ok := s.datasets.Key(q.Merge(cfg.filter)); ok {
			found = append(found, id)
			continue
		}
		needed = append(needed, q)
	}
	for _, id := range s.MissingDatasets() {
		needed = append(needed, id.Query())
	}

	handles, err := s.tree.Populate(needed, cfg.filter)
	if err != nil {
		return fmt.Errorf("scene: load: %w", err)
	}
	for _, id := range found {
		s.wishlist[id] = struct{}{}
	}
	for _, h := range handles {
		s.wishlist[s.tree.Name(h)] = struct{}{}
	}
	s.abandoned.Clear()

	if err := s.readFromStorage(ctx); err != nil {
		return err
	}
	if cfg.generate {
		if _, err := s.GeneratePossibleComposites(ctx, cfg.unload); err != nil {
			return err
		}
	}
	return nil
}

// readFromStorage loads the reader leaves of the missing wishlist entries.
func (s *Scene) readFromStorage(ctx context.Context) error {
	missing := s.MissingDatasets()
	if len(missing) == 0 {
		return nil
	}
	byReader := make(map[string][]DataID)
	for _, h := range s.tree.Leaves(missing) {
		id := s.tree.Name(h)
		if s.datasets.Has(id) {
			continue
		}
		name := s.tree.Reader(h)
		byReader[name] = append(byReader[name], id)
	}
	for _, r := range s.cfg.readers {
		ids := byReader[r.Name()]
		if len(ids) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		loaded, err := r.Load(ctx, ids)
		if err != nil {
			s.log.Warn("reader failed to load datasets",
				zap.String("reader", r.Name()), zap.Int("requested", len(ids)), zap.Error(err))
		}
		for id, ds := range loaded {
			if ds == nil {
				continue
			}
			s.datasets.PutAs(id, ds)
		}
		s.log.Debug("loaded datasets",
			zap.String("reader", r.Name()), zap.Int("requested", len(ids)), zap.Int("loaded", len(loaded)))
	}
	return nil
}
