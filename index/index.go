// Package index implements the association index of the pattern store: an
// inverted mapping from pattern key to the cells holding a projection of
// that pattern, plus a weighted resonance graph recording how strongly
// patterns and cells co-occur.
//
// The index is owned exclusively by the orchestrator. Cells and tiers never
// hold a reference into it; scoring reads it through narrow lookups.
package index

import (
	"sync"

	"github.com/LostLegendarySoftware/patternstore/cell"
)

// Index is the association index and resonance graph. Safe for concurrent
// use; every method holds the lock for a short, bounded critical section.
type Index struct {
	mu sync.RWMutex

	// patternCells preserves insertion order per pattern; bindings are
	// deduplicated on insert.
	patternCells map[string][]string

	// resonance accumulates association strength between a pattern and
	// either another pattern or a cell id.
	resonance map[string]map[string]float64
}

// New returns an empty index.
func New() *Index {
	return &Index{
		patternCells: make(map[string][]string),
		resonance:    make(map[string]map[string]float64),
	}
}

// Bind records that cellID holds a projection of pattern. Idempotent:
// binding the same pair twice does not duplicate the entry. Returns true
// when a new binding was inserted.
func (x *Index) Bind(pattern, cellID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range x.patternCells[pattern] {
		if id == cellID {
			return false
		}
	}
	x.patternCells[pattern] = append(x.patternCells[pattern], cellID)
	return true
}

// Unbind drops the pattern -> cellID association, if present. Used by
// maintenance when a projection is pruned and by the corruption self-heal.
func (x *Index) Unbind(pattern, cellID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := x.patternCells[pattern]
	for i, id := range ids {
		if id == cellID {
			x.patternCells[pattern] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(x.patternCells[pattern]) == 0 {
		delete(x.patternCells, pattern)
	}
}

// Cells returns the ids of cells bound to pattern, in insertion order.
func (x *Index) Cells(pattern string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string(nil), x.patternCells[pattern]...)
}

// Entangle symmetrically adds strength between two graph keys.
func (x *Index) Entangle(a, b string, strength float64) {
	if a == b || a == "" || b == "" {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(a, b, strength)
	x.addLocked(b, a, strength)
}

func (x *Index) addLocked(from, to string, strength float64) {
	m := x.resonance[from]
	if m == nil {
		m = make(map[string]float64)
		x.resonance[from] = m
	}
	m[to] += strength
}

// Strength returns the accumulated resonance between two graph keys.
func (x *Index) Strength(a, b string) float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.resonance[a][b]
}

// Related returns a copy of the resonance entries recorded for key.
func (x *Index) Related(key string) map[string]float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	src := x.resonance[key]
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Interference sums the cross-cell noise recorded against a context factor:
// resonance entries whose key is a tier-qualified cell id other than
// selfCell, each scaled by scale, capped at limit. A factor with no recorded
// noise interferes not at all.
func (x *Index) Interference(factor, selfCell string, scale, limit float64) float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	total := 0.0
	for key, strength := range x.resonance[factor] {
		if key == selfCell || !cell.IsID(key) {
			continue
		}
		total += strength * scale
		if total >= limit {
			return limit
		}
	}
	return total
}

// Decay multiplies every resonance entry by factor and drops entries that
// have faded below a minimal strength, bounding graph growth over time.
func (x *Index) Decay(factor float64) {
	const minStrength = 1e-3
	x.mu.Lock()
	defer x.mu.Unlock()
	for from, edges := range x.resonance {
		for to, strength := range edges {
			strength *= factor
			if strength < minStrength {
				delete(edges, to)
				continue
			}
			edges[to] = strength
		}
		if len(edges) == 0 {
			delete(x.resonance, from)
		}
	}
}

// Entries returns a copy of the whole pattern -> cells mapping. Used by
// the consistency re-check after a corruption sighting.
func (x *Index) Entries() map[string][]string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string][]string, len(x.patternCells))
	for pattern, ids := range x.patternCells {
		out[pattern] = append([]string(nil), ids...)
	}
	return out
}

// Patterns returns the number of indexed pattern keys.
func (x *Index) Patterns() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.patternCells)
}

// Bindings returns the total number of pattern -> cell bindings.
func (x *Index) Bindings() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, ids := range x.patternCells {
		n += len(ids)
	}
	return n
}
