// Package patternstore provides a tiered semantic pattern store: an
// in-process library that persists reusable computational patterns across
// topical storage tiers and retrieves the best-matching pattern for a given
// base pattern and runtime context.
//
// # Core Concepts
//
// The store is organized around four components:
//
//   - Tiers: fixed, named topical partitions, each owning a pre-allocated
//     pool of storage cells, a byte-capacity budget and access statistics
//   - Cells: atomic storage units holding pattern projections, per-context
//     weights and a health record driving the maintenance lifecycle
//   - Association index: an inverted index from pattern key to the cells
//     projecting it, plus a weighted resonance graph of co-occurrence
//   - Orchestrator: the Store type, which places manifests, answers
//     retrieval queries and runs the maintenance pass
//
// # Placement
//
// Callers submit an AlgorithmManifest. Its signature hashes to a fixed home
// tier, so re-submission never thrashes placements; within the tier the
// store prefers a cell whose projections already reference one of the
// manifest's core patterns. The compiled projection is appended to the
// chosen cell and every core pattern is entangled with its co-submissions
// and bound to the cell in the resonance graph.
//
// # Retrieval
//
// Retrieve(pattern, context) collects candidate cells from the association
// index, expands them through linked tiers, scores each candidate by its
// context resonance (context weights minus cross-cell interference, scaled
// by cell stability) and renders the winning projection's harmonic variant
// for the dominant context factor.
//
// # Maintenance
//
// Optimize walks every tier, applying stability decay, compacting badly
// degraded cells, reinforcing mildly degraded ones, pruning projections
// whose retention energy has lapsed, decaying the resonance graph and
// rebalancing placement routing toward tiers with free capacity. Only one
// pass runs at a time; tiers are processed one at a time so live traffic is
// never starved.
//
// # Getting Started
//
//	store, err := patternstore.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	ctx := context.Background()
//	cellID, err := store.Store(ctx, patternstore.AlgorithmManifest{
//	    ID:             "m1",
//	    Signature:      "conversation/greeting",
//	    CorePatterns:   []string{"greet"},
//	    ProjectionBase: "hello",
//	    ContextualVariants: map[string]string{
//	        "casual": "hey there",
//	    },
//	})
//
//	result, err := store.Retrieve(ctx, "greet", "casual")
//	// result.Output == "hey there"
//
// The store holds everything in process memory: no network surface, no
// external persistence. Callers own retry decisions; the store never
// retries internally.
package patternstore
