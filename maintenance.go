package patternstore

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LostLegendarySoftware/patternstore/cell"
	"github.com/LostLegendarySoftware/patternstore/tier"
)

// DefaultStabilityThreshold is the maintenance threshold used when Optimize
// is called with a non-positive threshold.
const DefaultStabilityThreshold = 0.85

// OptimizationReport summarizes one maintenance pass.
type OptimizationReport struct {
	// ID identifies the pass in logs and dashboards.
	ID string `json:"id"`

	// StabilityThreshold is the effective threshold the pass ran with.
	StabilityThreshold float64 `json:"stability_threshold"`

	// CellsRebuilt counts destructive compactions.
	CellsRebuilt int `json:"cells_rebuilt"`

	// CellsReinforced counts light Linked consolidations.
	CellsReinforced int `json:"cells_reinforced"`

	// ProjectionsPruned counts projections dropped for lost energy or
	// overflow.
	ProjectionsPruned int `json:"projections_pruned"`

	// BytesReclaimed is the capacity returned to tier budgets by pruning.
	BytesReclaimed int64 `json:"bytes_reclaimed"`

	// TiersProcessed counts tiers the pass finished. Less than the tier
	// count when the pass was cancelled between tiers.
	TiersProcessed int `json:"tiers_processed"`

	// Completed is false when the pass was cancelled.
	Completed bool `json:"completed"`

	// Duration is the wall time of the pass.
	Duration time.Duration `json:"duration"`
}

// Optimize runs one maintenance pass: per-cell decay, state transitions,
// projection pruning and coherence recomputation, followed by resonance
// graph decay and a placement rebalance across tiers.
//
// Only one pass runs at a time; a concurrent caller gets
// ErrMaintenanceInProgress instead of blocking. The pass holds one tier
// exclusively at a time and checks ctx between tiers, so retrieval is never
// starved for more than one tier's worth of latency and cancellation leaves
// already-processed tiers in their new, valid state.
//
// A non-positive stabilityThreshold selects the configured default (0.85).
func (s *Store) Optimize(ctx context.Context, stabilityThreshold float64) (*OptimizationReport, error) {
	const op = "Store.Optimize"

	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	if !s.maint.TryLock() {
		return nil, newError(op, KindBusy, ErrMaintenanceInProgress)
	}
	defer s.maint.Unlock()

	if stabilityThreshold <= 0 {
		stabilityThreshold = s.cfg.Tuning.GetStabilityThreshold()
	}

	ctx, span := s.startSpan(ctx, "patternstore.optimize")
	defer span.End()

	start := s.now()
	report := &OptimizationReport{
		ID:                 uuid.NewString(),
		StabilityThreshold: stabilityThreshold,
	}

	for i, t := range s.tiers {
		if err := ctx.Err(); err != nil {
			report.Duration = s.now().Sub(start)
			s.logger.Warn("maintenance pass cancelled",
				"report_id", report.ID,
				"tiers_processed", report.TiersProcessed,
			)
			return report, err
		}
		s.passLocks[i].Lock()
		s.optimizeTier(t, stabilityThreshold, report)
		s.passLocks[i].Unlock()
		report.TiersProcessed++
	}

	s.idx.Decay(s.cfg.Tuning.GetGraphDecay())
	s.rebalance()

	report.Completed = true
	report.Duration = s.now().Sub(start)

	s.metrics.recordOptimize(ctx, report)
	span.SetAttributes(
		attribute.Int("patternstore.cells_rebuilt", report.CellsRebuilt),
		attribute.Int("patternstore.cells_reinforced", report.CellsReinforced),
		attribute.Int("patternstore.projections_pruned", report.ProjectionsPruned),
	)
	s.logger.Info("maintenance pass complete",
		"report_id", report.ID,
		"cells_rebuilt", report.CellsRebuilt,
		"cells_reinforced", report.CellsReinforced,
		"projections_pruned", report.ProjectionsPruned,
		"bytes_reclaimed", report.BytesReclaimed,
		"duration", report.Duration,
	)
	return report, nil
}

// optimizeTier applies the maintenance pass to one tier. Caller holds the
// tier's pass lock exclusively.
func (s *Store) optimizeTier(t *tier.Tier, threshold float64, report *OptimizationReport) {
	tun := s.cfg.Tuning
	now := s.now()

	for _, c := range t.Cells {
		c.Decay()

		switch stability := c.Stability(); {
		case stability < tun.GetCompactionFloor():
			// Destructive compaction: the cell is too degraded to keep its
			// embedding. Rebuild restarts the lifecycle.
			c.Transition(cell.StateCompacted, tun.GetRephaseStability(), tun.GetActivationTightening(), tun.GetWearFactor())
			s.withRand(func(rnd *rand.Rand) { c.RebuildFields(rnd) })
			report.CellsRebuilt++
		case stability < threshold:
			c.Transition(cell.StateLinked, tun.GetRephaseStability(), tun.GetActivationTightening(), tun.GetWearFactor())
			c.Reinforce(tun.GetReinforceFloor(), tun.GetReinforceFactor())
			report.CellsReinforced++
		}

		pruned := c.Prune(now, s.halfLife, tun.GetPruneEnergy(), s.cfg.MaxProjections)
		for i := range pruned {
			size := pruned[i].EstimatedSize()
			t.Release(size)
			report.BytesReclaimed += size
			report.ProjectionsPruned++
			s.unbindPruned(c, &pruned[i])
		}
	}
}

// unbindPruned drops the index bindings a pruned projection contributed,
// keeping ErrIndexCorruption unreachable. Bindings survive while any other
// projection in the cell still references the pattern.
func (s *Store) unbindPruned(c *cell.Cell, p *cell.Projection) {
	patterns := make([]string, 0, len(p.CorePatterns)+1)
	patterns = append(patterns, p.CorePatterns...)
	patterns = append(patterns, p.BasePattern)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if c.Resonance([]string{pattern}) == 0 {
			s.idx.Unbind(pattern, c.ID())
		}
	}
}

// rebalance redistributes expected future writes across tiers
// proportionally to their free capacity. It only updates routing weights;
// stored data never moves.
func (s *Store) rebalance() {
	totalFree := int64(0)
	for _, t := range s.tiers {
		if free := t.FreeBytes(); free > 0 {
			totalFree += free
		}
	}
	if totalFree == 0 {
		for _, t := range s.tiers {
			t.SetRoutingWeight(1.0 / float64(len(s.tiers)))
		}
		return
	}
	for _, t := range s.tiers {
		free := t.FreeBytes()
		if free < 0 {
			free = 0
		}
		t.SetRoutingWeight(float64(free) / float64(totalFree))
	}
}

// verifyTier re-checks the index against one tier's cell contents after a
// corruption sighting and drops any dangling bindings it finds. Best
// effort: bindings added concurrently are re-checked by the next sighting.
func (s *Store) verifyTier(t *tier.Tier) {
	dropped := 0
	for pattern, ids := range s.idx.Entries() {
		for _, id := range ids {
			ti, ok := cell.TierOf(id)
			if !ok || ti != t.ID {
				continue
			}
			c, ok := s.cellsByID[id]
			if !ok || !c.Has(pattern) {
				s.idx.Unbind(pattern, id)
				dropped++
			}
		}
	}
	if dropped > 0 {
		s.logger.Warn("tier consistency re-check dropped dangling index entries",
			"tier", t.Label,
			"dropped", dropped,
		)
	}
}
