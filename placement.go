package patternstore

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LostLegendarySoftware/patternstore/cell"
	"github.com/LostLegendarySoftware/patternstore/tier"
)

// Store compiles a manifest into a pattern projection and places it into a
// resonant cell of the manifest's home tier. It returns the id of the cell
// that received the projection.
//
// Placement is deterministic in the tier dimension: the manifest signature
// hashes to a fixed home tier. Within the tier, the store prefers a cell
// whose projections already reference one of the manifest's core patterns;
// failing that, the most stable cell with headroom. Tiers without capacity
// defer to the routing-weight ordering computed by the last maintenance
// rebalance.
//
// The manifest is validated before any mutation; an invalid manifest leaves
// the store untouched.
func (s *Store) Store(ctx context.Context, m AlgorithmManifest) (string, error) {
	const op = "Store.Store"

	if err := s.checkOpen(op); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.Validate(); err != nil {
		return "", newError(op, KindValidation, err).withContext("manifest_id", m.ID)
	}

	ctx, span := s.startSpan(ctx, "patternstore.store")
	defer span.End()

	core := m.corePatterns()
	proj := cell.CompileProjection(m.ProjectionBase, m.ContextualVariants, core, m.Affinity)
	size := proj.EstimatedSize()

	var (
		placed     *cell.Cell
		placedTier *tier.Tier
	)
	for _, ti := range s.placementOrder(s.tierFor(m.Signature)) {
		t := s.tiers[ti]
		s.passLocks[ti].RLock()
		c := s.resonantCell(t, core)
		if c == nil || t.Reserve(size) != nil {
			s.passLocks[ti].RUnlock()
			continue
		}
		now := s.now()
		c.Append(proj, now)
		variantContexts := make([]string, 0, len(m.ContextualVariants))
		for factor := range m.ContextualVariants {
			variantContexts = append(variantContexts, factor)
		}
		c.SeedContext(variantContexts...)
		t.IncWrite()
		t.RecordAccess("store", c.ID(), now)

		// Entangle every pair of co-submitted core patterns, then bind each
		// indexed key (core patterns plus the base pattern) to the chosen
		// cell. Binding is idempotent: re-submission does not duplicate
		// index entries. The index updates stay under the tier lock so a
		// maintenance pass on this tier cannot observe the projection
		// without its bindings, or the bindings without the projection.
		tun := s.cfg.Tuning
		for i, a := range core {
			for _, b := range core[i+1:] {
				s.idx.Entangle(a, b, tun.GetEntanglementIncrement())
			}
		}
		for _, pattern := range indexKeys(core, m.ProjectionBase) {
			s.linkPeers(c, pattern)
			s.idx.Entangle(pattern, c.ID(), tun.GetCellBindingStrength())
			s.idx.Bind(pattern, c.ID())
		}
		s.passLocks[ti].RUnlock()
		placed, placedTier = c, t
		break
	}
	if placed == nil {
		return "", newError(op, KindCapacity, ErrCapacityExceeded).
			withContext("signature", m.Signature).
			withContext("bytes", size)
	}

	s.algorithms.Add(1)
	s.metrics.recordStore(ctx, placedTier.Label)
	span.SetAttributes(
		attribute.String("patternstore.cell_id", placed.ID()),
		attribute.String("patternstore.tier", placedTier.Label),
	)
	s.logger.Debug("manifest stored",
		"manifest_id", m.ID,
		"signature", m.Signature,
		"tier", placedTier.Label,
		"cell_id", placed.ID(),
		"bytes", size,
	)
	return placed.ID(), nil
}

// placementOrder returns the tier visit order for a placement: the home
// tier first, then the remaining tiers by descending routing weight. The
// home tier is authoritative whenever it has capacity, keeping placement
// stable; routing weights only order the overflow fallback.
func (s *Store) placementOrder(home int) []int {
	order := make([]int, 0, len(s.tiers))
	order = append(order, home)
	rest := make([]int, 0, len(s.tiers)-1)
	for i := range s.tiers {
		if i != home {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		wa, wb := s.tiers[rest[a]].RoutingWeight(), s.tiers[rest[b]].RoutingWeight()
		if wa != wb {
			return wa > wb
		}
		return rest[a] < rest[b]
	})
	return append(order, rest...)
}

// resonantCell selects the placement target within a tier:
//
//  1. among cells whose projections already reference one of the core
//     patterns, the one with the fewest projections (slot order on ties);
//  2. otherwise the cell with the highest stability that still has
//     projection headroom;
//  3. otherwise the most stable cell outright.
//
// Quarantined cells are never selected. Returns nil when the whole tier is
// quarantined.
func (s *Store) resonantCell(t *tier.Tier, core []string) *cell.Cell {
	var (
		resonant    *cell.Cell
		resonantLen int
		stable      *cell.Cell
		stableSc    float64
		anyCell     *cell.Cell
		anySc       float64
	)
	for _, c := range t.Cells {
		if c.Quarantined() {
			continue
		}
		n := c.Len()
		if c.Resonance(core) > 0 {
			if resonant == nil || n < resonantLen {
				resonant, resonantLen = c, n
			}
		}
		st := c.Stability()
		if n < s.cfg.MaxProjections && (stable == nil || st > stableSc) {
			stable, stableSc = c, st
		}
		if anyCell == nil || st > anySc {
			anyCell, anySc = c, st
		}
	}
	if resonant != nil {
		return resonant
	}
	if stable != nil {
		return stable
	}
	return anyCell
}

// indexKeys returns the patterns a projection is indexed under: the core
// patterns plus the base pattern, without duplicating a base that is also a
// core pattern.
func indexKeys(core []string, base string) []string {
	for _, p := range core {
		if p == base {
			return core
		}
	}
	return append(append(make([]string, 0, len(core)+1), core...), base)
}

// linkPeers records symmetric temporal links between the receiving cell and
// the cells already bound to the same core pattern.
func (s *Store) linkPeers(placed *cell.Cell, pattern string) {
	for _, peerID := range s.idx.Cells(pattern) {
		peer, ok := s.cellsByID[peerID]
		if !ok || peer == placed {
			continue
		}
		placed.LinkTo(peerID)
		peer.LinkTo(placed.ID())
	}
}
