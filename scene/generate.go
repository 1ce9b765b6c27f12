package scene

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Outcome is the result of trying to generate one composite.
type Outcome uint8

const (
	// Skipped means the composite was already present.
	Skipped Outcome = iota
	// Generated means the composite was created in this pass.
	Generated
	// Deferred means the composite may be generated later, typically after
	// resampling; its inputs are kept.
	Deferred
	// Abandoned means a required input can never be produced.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Generated:
		return "generated"
	case Deferred:
		return "deferred"
	case Abandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// GenerationResult records what happened to one compositor node.
type GenerationResult struct {
	Node    NodeHandle
	ID      DataID
	Outcome Outcome
	Reason  string
}

// GenerationReport summarizes a generation pass.
type GenerationReport struct {
	Results []GenerationResult

	// Keepables are the identities protected from unloading because deferred
	// composites need them.
	Keepables []DataID

	// Dropped are wishlist identities removed because they were not created.
	Dropped []DataID
}

// Result returns the outcome recorded for the node named id.
func (r *GenerationReport) Result(id DataID) (GenerationResult, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return GenerationResult{}, false
}

type prereqStatus uint8

const (
	prereqReady prereqStatus = iota
	prereqDelayed
	prereqMissing
)

type generation struct {
	s      *Scene
	keep   map[DataID]struct{}
	report *GenerationReport
}

// GeneratePossibleComposites generates every missing wishlist composite whose
// inputs are available. Composites waiting on incompatible areas are
// deferred and their inputs kept; wishlist entries that still could not be
// created are dropped with a warning. With unload, datasets neither wished
// for nor kept are removed afterwards.
//
// Compositor errors other than ErrIncompatibleAreas abort the pass.
func (s *Scene) GeneratePossibleComposites(ctx context.Context, unload bool) (*GenerationReport, error) {
	g := &generation{
		s:      s,
		keep:   make(map[DataID]struct{}),
		report: &GenerationReport{},
	}
	if missing := s.MissingDatasets(); len(missing) > 0 {
		for _, h := range s.tree.Trunk(missing, s.datasets.Has) {
			if s.datasets.Has(s.tree.Name(h)) {
				continue
			}
			if _, err := g.generate(ctx, h); err != nil {
				return g.report, err
			}
		}
	}
	g.report.Keepables = sortedIDs(g.keep)
	if len(s.MissingDatasets()) > 0 {
		g.report.Dropped = s.removeFailedDatasets(g.keep)
	}
	if unload {
		s.Unload(g.report.Keepables)
	}
	return g.report, nil
}

func (g *generation) record(h NodeHandle, id DataID, o Outcome, reason string) Outcome {
	g.report.Results = append(g.report.Results, GenerationResult{Node: h, ID: id, Outcome: o, Reason: reason})
	return o
}

func (g *generation) generate(ctx context.Context, h NodeHandle) (Outcome, error) {
	s, tree := g.s, g.s.tree
	cid := tree.Name(h)
	if s.datasets.Has(cid) {
		return Skipped, nil
	}
	if s.abandoned.Contains(uint32(h)) {
		return Abandoned, nil
	}
	if err := ctx.Err(); err != nil {
		return Abandoned, err
	}

	required, status, err := g.prerequisites(ctx, cid, tree.Required(h), false)
	if err != nil {
		return Abandoned, err
	}
	if status == prereqMissing {
		s.abandoned.Add(uint32(h))
		s.log.Debug("abandoning composite with missing prerequisite", zap.Stringer("composite", cid))
		return g.record(h, cid, Abandoned, "missing required prerequisite"), nil
	}
	optional, _, err := g.prerequisites(ctx, cid, tree.Optional(h), true)
	if err != nil {
		return Abandoned, err
	}
	if status == prereqDelayed {
		g.keepInputs(h)
		g.keep[cid] = struct{}{}
		s.log.Debug("delaying composite until its prerequisites are generated", zap.Stringer("composite", cid))
		return g.record(h, cid, Deferred, "prerequisite generation delayed"), nil
	}

	ds, err := tree.Compositor(h).Compose(ctx, required, optional, cid)
	switch {
	case errors.Is(err, ErrIncompatibleAreas):
		g.keepInputs(h)
		g.keep[cid] = struct{}{}
		s.log.Debug("delaying composite because of incompatible areas",
			zap.Stringer("composite", cid), zap.String("compositor", tree.Label(h)))
		return g.record(h, cid, Deferred, "incompatible areas"), nil
	case err != nil:
		return Abandoned, fmt.Errorf("scene: generate %s: %w", cid, err)
	case ds == nil:
		return Abandoned, fmt.Errorf("scene: generate %s: compositor %q returned no dataset", cid, tree.Label(h))
	}

	finalizeComposite(ds, cid)
	id := s.datasets.Put(ds)
	if _, ok := s.wishlist[cid]; ok {
		delete(s.wishlist, cid)
		s.wishlist[id] = struct{}{}
	}
	tree.UpdateNodeName(h, id)
	s.log.Debug("generated composite", zap.Stringer("composite", id))
	return g.record(h, id, Generated, ""), nil
}

// prerequisites collects the datasets of the given nodes, generating pending
// composites first. Optional prerequisites that are missing or delayed are
// left out without affecting the returned status.
func (g *generation) prerequisites(ctx context.Context, cid DataID, handles []NodeHandle, optional bool) ([]*Dataset, prereqStatus, error) {
	s, tree := g.s, g.s.tree
	var (
		out     []*Dataset
		delayed bool
	)
	for _, p := range handles {
		if p == EmptyNode {
			if optional {
				continue
			}
			s.log.Debug("required prerequisite is the empty sentinel", zap.Stringer("composite", cid))
			return nil, prereqMissing, nil
		}
		pid := tree.Name(p)
		if _, kept := g.keep[pid]; !s.datasets.Has(pid) && !kept && tree.Kind(p) == KindCompositor {
			if _, err := g.generate(ctx, p); err != nil {
				return nil, prereqMissing, err
			}
			pid = tree.Name(p)
		}
		_, kept := g.keep[pid]
		switch ds, ok := s.datasets.Lookup(pid); {
		case ok:
			out = append(out, ds)
		case tree.Kind(p) == KindCompositor && kept:
			delayed = true
		case !optional:
			s.log.Debug("missing prerequisite", zap.Stringer("composite", cid), zap.Stringer("prerequisite", pid))
			return nil, prereqMissing, nil
		default:
			s.log.Debug("missing optional prerequisite", zap.Stringer("composite", cid), zap.Stringer("prerequisite", pid))
		}
	}
	if !delayed {
		return out, prereqReady, nil
	}
	for _, p := range handles {
		if p != EmptyNode {
			g.keep[tree.Name(p)] = struct{}{}
		}
	}
	if optional {
		// the composite itself is generated without the delayed input
		s.log.Debug("optional prerequisite delayed", zap.Stringer("composite", cid))
		return out, prereqReady, nil
	}
	g.keep[cid] = struct{}{}
	return out, prereqDelayed, nil
}

// keepInputs protects the stored prerequisites of h.
func (g *generation) keepInputs(h NodeHandle) {
	tree := g.s.tree
	for _, p := range slices.Concat(tree.Required(h), tree.Optional(h)) {
		if p == EmptyNode {
			continue
		}
		if id := tree.Name(p); g.s.datasets.Has(id) {
			g.keep[id] = struct{}{}
		}
	}
}

// finalizeComposite fills identity fields the compositor left unset from the
// node's placeholder identity.
func finalizeComposite(ds *Dataset, placeholder DataID) {
	if ds.Attrs.Name == "" {
		ds.Attrs.Name = placeholder.Name
	}
	if ds.Attrs.Modifiers.Len() == 0 {
		ds.Attrs.Modifiers = placeholder.Modifiers
	}
	if ds.Attrs.Resolution == 0 {
		ds.Attrs.Resolution = placeholder.Resolution
	}
}

// -----------------------------------------------------------------------------
// Unload
// -----------------------------------------------------------------------------

// Unload removes every dataset that is neither in the wishlist nor in
// keepables.
func (s *Scene) Unload(keepables []DataID) {
	keep := make(map[DataID]struct{}, len(keepables))
	for _, id := range keepables {
		keep[id] = struct{}{}
	}
	for _, id := range s.datasets.Keys() {
		if _, ok := s.wishlist[id]; ok {
			continue
		}
		if _, ok := keep[id]; ok {
			continue
		}
		s.log.Debug("unloading dataset", zap.Stringer("id", id))
		s.datasets.Delete(id)
	}
}

// removeFailedDatasets drops missing wishlist entries that are not kept for a
// later pass and returns them.
func (s *Scene) removeFailedDatasets(keep map[DataID]struct{}) []DataID {
	missing := s.MissingDatasets()
	var dropped []DataID
	for _, id := range missing {
		if _, ok := keep[id]; ok {
			continue
		}
		delete(s.wishlist, id)
		dropped = append(dropped, id)
	}
	s.log.Warn("datasets were not created and may require resampling to be generated",
		zap.Stringers("missing", missing))
	return dropped
}
