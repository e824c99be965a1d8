package patternstore

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/LostLegendarySoftware/patternstore/cell"
	"github.com/LostLegendarySoftware/patternstore/policy"
)

// Retrieval is the result of a successful Retrieve call.
type Retrieval struct {
	// Projection is a copy of the winning cell's projection for the
	// queried pattern.
	Projection cell.Projection `json:"projection"`

	// Output is the context-specific rendering: the harmonic variant
	// matching the dominant context factor, or the base pattern when no
	// variant matches.
	Output string `json:"output"`

	// CellID identifies the winning cell.
	CellID string `json:"cell_id"`

	// TierID is the tier holding the winning cell.
	TierID int `json:"tier_id"`

	// Score is the winning cell's context resonance score.
	Score float64 `json:"score"`
}

// SplitContext decomposes a retrieval context string into its ordered list
// of context factors, splitting on commas and whitespace. Blank and
// duplicate factors are dropped, order preserved.
func SplitContext(contextString string) []string {
	fields := strings.FieldsFunc(contextString, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Retrieve returns the best projection of a pattern for the given context.
//
// Candidate cells come from the association index, expanded with
// resonance-linked cells in tiers linked to the candidates' tiers. Each
// candidate is scored by its context resonance (context weights minus
// cross-cell interference, weighted by stability); the best score wins,
// most recently accessed cell on ties.
//
// Returns ErrPatternNotFound when the pattern has no indexed cells, or when
// a maintenance pass evicts the winning projection between candidate
// selection and the tier lock. ErrIndexCorruption is reserved for a binding
// that, with the tier lock held, names a cell without the projection. That
// should be unreachable as long as maintenance keeps index and cells
// consistent; it is logged as a defect, the dangling entry dropped, and the
// cell quarantined.
func (s *Store) Retrieve(ctx context.Context, pattern, retrievalContext string) (*Retrieval, error) {
	const op = "Store.Retrieve"

	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "patternstore.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("patternstore.pattern", pattern))

	factors := SplitContext(retrievalContext)

	candidates := s.idx.Cells(pattern)
	if len(candidates) == 0 {
		s.metrics.recordMiss(ctx)
		return nil, newError(op, KindNotFound, ErrPatternNotFound).withContext("pattern", pattern)
	}
	candidates = s.expandCandidates(pattern, candidates)

	winner := s.selectCell(pattern, candidates, factors)
	if winner.cell == nil {
		s.metrics.recordMiss(ctx)
		return nil, newError(op, KindNotFound, ErrPatternNotFound).
			withContext("pattern", pattern).
			withContext("filtered_candidates", len(candidates))
	}

	tierID, ok := cell.TierOf(winner.cell.ID())
	if !ok {
		return nil, newError(op, KindInternal,
			fmt.Errorf("cell id %q is not tier-qualified", winner.cell.ID()))
	}
	t := s.tiers[tierID]
	s.passLocks[tierID].RLock()
	defer s.passLocks[tierID].RUnlock()

	t.IncRead()
	proj, ok := winner.cell.Find(pattern)
	if !ok {
		if !s.stillBound(pattern, winner.cell.ID()) {
			// A maintenance pass pruned the winner's projection and
			// dropped its binding between candidate selection and the
			// tier lock. A benign miss, not an inconsistency.
			s.metrics.recordMiss(ctx)
			return nil, newError(op, KindNotFound, ErrPatternNotFound).withContext("pattern", pattern)
		}
		// Observed under the tier lock: the index names this cell but the
		// projection list disagrees. Surface it, drop the dangling entry,
		// and take the cell out of candidate selection until it is rebuilt.
		s.logger.Error("association index names a cell without the projection",
			"pattern", pattern,
			"cell_id", winner.cell.ID(),
			"tier", t.Label,
		)
		s.idx.Unbind(pattern, winner.cell.ID())
		winner.cell.Quarantine()
		s.verifyTier(t)
		return nil, newError(op, KindCorruption, ErrIndexCorruption).
			withContext("pattern", pattern).
			withContext("cell_id", winner.cell.ID())
	}

	now := s.now()
	winner.cell.Touch(now)
	t.IncHit()
	t.RecordAccess("retrieve", winner.cell.ID(), now)

	out := &Retrieval{
		Projection: proj,
		Output:     renderOutput(&proj, winner.cell, factors),
		CellID:     winner.cell.ID(),
		TierID:     tierID,
		Score:      winner.score,
	}
	s.metrics.recordRetrieve(ctx, t.Label, winner.score)
	span.SetAttributes(
		attribute.String("patternstore.cell_id", out.CellID),
		attribute.Float64("patternstore.score", out.Score),
	)
	return out, nil
}

// expandCandidates augments the index candidates with resonance-linked
// cells that live in tiers linked to the candidates' tiers. Expanded
// candidates are admitted only when they actually hold the pattern, so the
// exact-match step cannot trip over them.
func (s *Store) expandCandidates(pattern string, candidates []string) []string {
	linked := make(map[int]struct{})
	have := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		have[id] = struct{}{}
		if ti, ok := cell.TierOf(id); ok {
			for _, l := range s.tiers[ti].Linked {
				linked[l] = struct{}{}
			}
		}
	}
	for key, strength := range s.idx.Related(pattern) {
		if strength <= 0 {
			continue
		}
		if _, dup := have[key]; dup {
			continue
		}
		ti, ok := cell.TierOf(key)
		if !ok {
			continue
		}
		if _, ok := linked[ti]; !ok {
			continue
		}
		if c, ok := s.cellsByID[key]; ok && c.Has(pattern) {
			candidates = append(candidates, key)
			have[key] = struct{}{}
		}
	}
	return candidates
}

// stillBound re-checks, with the winner's tier lock held, that the index
// still lists the cell for the pattern.
func (s *Store) stillBound(pattern, cellID string) bool {
	for _, id := range s.idx.Cells(pattern) {
		if id == cellID {
			return true
		}
	}
	return false
}

type scoredCell struct {
	cell  *cell.Cell
	score float64
}

// selectCell scores every admissible candidate and returns the best one.
// Ties go to the most recently accessed cell.
func (s *Store) selectCell(pattern string, candidates []string, factors []string) scoredCell {
	const eps = 1e-9
	tun := s.cfg.Tuning

	var best scoredCell
	for _, id := range candidates {
		c, ok := s.cellsByID[id]
		if !ok {
			// A binding that outlived its cell cannot happen while the
			// pool is fixed; drop it anyway rather than trusting it.
			s.idx.Unbind(pattern, id)
			continue
		}
		if c.Quarantined() || !s.admit(c) {
			continue
		}
		score := c.ContextScore(factors, func(factor string) float64 {
			return s.idx.Interference(factor, c.ID(), tun.GetInterferenceScale(), tun.GetInterferenceCap())
		})
		switch {
		case best.cell == nil, score > best.score+eps:
			best = scoredCell{cell: c, score: score}
		case score > best.score-eps:
			if c.LastAccessed().After(best.cell.LastAccessed()) {
				best = scoredCell{cell: c, score: score}
			}
		}
	}
	return best
}

// admit applies the optional CEL admission policy to a candidate cell.
// Policy evaluation errors reject the candidate and are logged.
func (s *Store) admit(c *cell.Cell) bool {
	if s.admission == nil {
		return true
	}
	snap := c.Snapshot()
	tierLabel := ""
	if ti, ok := cell.TierOf(snap.ID); ok {
		tierLabel = s.tiers[ti].Label
	}
	admitted, err := s.admission.Admit(policy.Candidate{
		Stability:   snap.Stability,
		State:       string(snap.State),
		Projections: snap.Projections,
		Coherence:   snap.Coherence,
		Tier:        tierLabel,
	})
	if err != nil {
		s.logger.Warn("admission policy rejected candidate on evaluation error",
			"cell_id", snap.ID,
			"error", err,
		)
		return false
	}
	return admitted
}

// renderOutput selects the harmonic variant for the dominant context
// factor: the query factor carrying the single highest weight on the
// winning cell. Falls back to the base pattern when no factor is weighted
// or no variant matches.
func renderOutput(p *cell.Projection, c *cell.Cell, factors []string) string {
	dominant := ""
	bestWeight := 0.0
	for _, f := range factors {
		if w := c.ContextWeight(f); w > bestWeight {
			dominant, bestWeight = f, w
		}
	}
	if dominant != "" {
		if variant, ok := p.Variant(dominant); ok {
			return variant
		}
	}
	return p.BasePattern
}
