package patternstore

import "github.com/LostLegendarySoftware/patternstore/tier"

// Stats is an aggregate view of the store for dashboards. The snapshot is
// taken without exclusive locks, so counters may lag in-flight operations
// by a few updates.
type Stats struct {
	// StoreID is the store instance id.
	StoreID string `json:"store_id"`

	// TotalAlgorithms counts manifests accepted since construction.
	TotalAlgorithms int64 `json:"total_algorithms"`

	// TotalPatterns counts distinct indexed pattern keys.
	TotalPatterns int `json:"total_patterns"`

	// ActiveCells counts cells currently holding at least one projection.
	ActiveCells int `json:"active_cells"`

	// Tiers holds one entry per tier, in tier id order.
	Tiers []tier.Stats `json:"per_tier"`
}

// Stats returns an aggregate snapshot of the store.
func (s *Store) Stats() Stats {
	out := Stats{
		StoreID:         s.id,
		TotalAlgorithms: s.algorithms.Load(),
		TotalPatterns:   s.idx.Patterns(),
		Tiers:           make([]tier.Stats, len(s.tiers)),
	}
	for i, t := range s.tiers {
		snap := t.Snapshot()
		out.Tiers[i] = snap
		out.ActiveCells += snap.ActiveCells
	}
	return out
}
