// Package cell implements the atomic storage unit of the pattern store.
//
// A Cell holds an opaque numeric embedding, a bounded list of pattern
// projections, per-context weights used during retrieval scoring, and a
// health record driving the maintenance state machine:
//
//	Volatile -> Linked -> Compacted
//
// State transitions happen only during maintenance. A Compacted cell that
// degrades again is rebuilt back to Volatile, restarting its lifecycle;
// there is no terminal state.
package cell

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// State describes a cell's position in the maintenance lifecycle.
type State string

const (
	// StateVolatile is the initial state of every cell. Volatile cells have
	// never been consolidated by a maintenance pass.
	StateVolatile State = "volatile"

	// StateLinked marks a cell whose context weights were reinforced by a
	// light consolidation. Its embedding is untouched.
	StateLinked State = "linked"

	// StateCompacted marks a cell that degraded badly enough for its
	// embedding to be destructively rebuilt.
	StateCompacted State = "compacted"
)

// Valid reports whether s is one of the defined cell states.
func (s State) Valid() bool {
	switch s {
	case StateVolatile, StateLinked, StateCompacted:
		return true
	}
	return false
}

// Health is a cell's health record. Stability is clamped to [0, 1] and only
// moves down through decay or up through an explicit rephase.
type Health struct {
	// Stability governs retrieval weighting and the compaction trigger.
	Stability float64 `json:"stability"`

	// ActivationThreshold is the minimum context score for the cell to be
	// considered activated. Each rephase tightens it by a constant factor.
	ActivationThreshold float64 `json:"activation_threshold"`

	// DecayRate is the stability lost per maintenance pass. Each rephase
	// increases it, modeling wear.
	DecayRate float64 `json:"decay_rate"`
}

// Temporal groups a cell's time-related bookkeeping.
type Temporal struct {
	CreatedAt    time.Time
	LastAccessed time.Time

	// Links holds ids of cells that received projections sharing a core
	// pattern with this cell. Symmetric.
	Links map[string]struct{}
}

// Cell is the atomic storage unit. All methods are safe for concurrent use;
// each cell carries its own mutex so operations on distinct cells never
// block one another.
type Cell struct {
	mu sync.Mutex

	id             string
	state          State
	fields         []float64
	contextWeights map[string]float64
	projections    []Projection
	temporal       Temporal
	health         Health
	coherence      float64
	quarantined    bool

	// projCount mirrors len(projections) for lock-free stats reads.
	projCount atomic.Int32
}

// Initial health values for a freshly constructed or rebuilt cell.
const (
	initialStability           = 1.0
	initialActivationThreshold = 0.5
	initialDecayRate           = 0.05
)

// New constructs a cell for the given tier slot. The embedding is filled
// with baseline values drawn from rnd; scoring never reads it (it stands in
// for an externally supplied embedding), but a rebuild must observably
// change it.
func New(tierID, slot, fieldSize int, rnd *rand.Rand, now time.Time) *Cell {
	c := &Cell{
		id:             NewID(tierID, slot, now),
		state:          StateVolatile,
		fields:         make([]float64, fieldSize),
		contextWeights: make(map[string]float64),
		temporal: Temporal{
			CreatedAt:    now,
			LastAccessed: now,
			Links:        make(map[string]struct{}),
		},
		health: Health{
			Stability:           initialStability,
			ActivationThreshold: initialActivationThreshold,
			DecayRate:           initialDecayRate,
		},
	}
	for i := range c.fields {
		c.fields[i] = rnd.Float64()
	}
	return c
}

// ID returns the cell's stable identifier.
func (c *Cell) ID() string { return c.id }

// State returns the cell's current lifecycle state.
func (c *Cell) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HealthRecord returns a copy of the cell's health record.
func (c *Cell) HealthRecord() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// Stability returns the cell's current stability.
func (c *Cell) Stability() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health.Stability
}

// Coherence returns the diagnostic coherence computed by the last
// maintenance pass: the fraction of projections whose interference map has
// a net-positive sum.
func (c *Cell) Coherence() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coherence
}

// LastAccessed returns the time of the most recent store or retrieval
// touching this cell.
func (c *Cell) LastAccessed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temporal.LastAccessed
}

// CreatedAt returns the cell's construction time.
func (c *Cell) CreatedAt() time.Time { return c.temporal.CreatedAt }

// Len returns the number of projections held by the cell. Safe to call
// without blocking on the cell mutex.
func (c *Cell) Len() int { return int(c.projCount.Load()) }

// FieldsSnapshot returns a copy of the cell's embedding.
func (c *Cell) FieldsSnapshot() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.fields))
	copy(out, c.fields)
	return out
}

// ContextWeight returns the weight recorded for a context factor, or 0 if
// the factor is unknown to this cell.
func (c *Cell) ContextWeight(factor string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextWeights[factor]
}

// SeedContext records a context factor on the cell with weight 1.0 unless
// the factor already carries a weight. Called during placement with the
// context names of the stored manifest's variants.
func (c *Cell) SeedContext(factors ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range factors {
		if f == "" {
			continue
		}
		if _, ok := c.contextWeights[f]; !ok {
			c.contextWeights[f] = 1.0
		}
	}
}

// Append adds a projection to the cell and marks it accessed.
func (c *Cell) Append(p Projection, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projections = append(c.projections, p)
	c.projCount.Store(int32(len(c.projections)))
	c.temporal.LastAccessed = now
}

// Touch updates the cell's last-accessed time.
func (c *Cell) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.temporal.LastAccessed = now
}

// LinkTo records a symmetric temporal link to another cell. The caller is
// responsible for invoking LinkTo on both ends.
func (c *Cell) LinkTo(otherID string) {
	if otherID == "" || otherID == c.id {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.temporal.Links[otherID] = struct{}{}
}

// Links returns a copy of the cell's temporal link set.
func (c *Cell) Links() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.temporal.Links))
	for id := range c.temporal.Links {
		out = append(out, id)
	}
	return out
}

// Find returns a copy of the projection referencing the given pattern. An
// exact base-pattern match wins over a core-pattern match; within each kind,
// the oldest projection wins.
func (c *Cell) Find(pattern string) (Projection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.projections {
		if c.projections[i].BasePattern == pattern {
			return c.projections[i].clone(), true
		}
	}
	for i := range c.projections {
		for _, core := range c.projections[i].CorePatterns {
			if core == pattern {
				return c.projections[i].clone(), true
			}
		}
	}
	return Projection{}, false
}

// Has reports whether any projection in the cell references the pattern,
// either as its base pattern or as a core pattern.
func (c *Cell) Has(pattern string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referencesLocked(pattern)
}

// Resonance counts how many of the given patterns are referenced by the
// cell's existing projections, either as a base pattern or as a core
// pattern. Placement prefers cells with a non-zero resonance.
func (c *Cell) Resonance(patterns []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, pat := range patterns {
		if c.referencesLocked(pat) {
			n++
		}
	}
	return n
}

func (c *Cell) referencesLocked(pattern string) bool {
	for i := range c.projections {
		p := &c.projections[i]
		if p.BasePattern == pattern {
			return true
		}
		for _, core := range p.CorePatterns {
			if core == pattern {
				return true
			}
		}
	}
	return false
}

// ContextScore computes the cell's context resonance score:
//
//	( sum over factors of weight(factor) - interference(factor) ) / |factors| * stability
//
// Unknown factors contribute weight 0 but still pick up interference, so an
// unfamiliar context can only penalize the cell. interference is supplied by
// the caller (it reads the resonance graph, which the cell never holds a
// reference into).
func (c *Cell) ContextScore(factors []string, interference func(factor string) float64) float64 {
	if len(factors) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := 0.0
	for _, f := range factors {
		sum += c.contextWeights[f] - interference(f)
	}
	return sum / float64(len(factors)) * c.health.Stability
}

// Decay applies one decay step, reducing stability by the cell's decay rate.
// Stability never drops below zero.
func (c *Cell) Decay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.Stability = clamp01(c.health.Stability - c.health.DecayRate)
}

// Transition moves the cell into the given state and applies the rephase:
// stability resets to rephaseStability, the activation threshold tightens by
// activationFactor and the decay rate grows by wearFactor. Successive
// rephases make the cell quicker to activate but faster to wear out.
//
// A cell already in StateCompacted that is compacted again restarts its
// lifecycle at StateVolatile.
func (c *Cell) Transition(to State, rephaseStability, activationFactor, wearFactor float64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to == StateCompacted && c.state == StateCompacted {
		to = StateVolatile
	}
	c.state = to
	c.health.Stability = clamp01(rephaseStability)
	c.health.ActivationThreshold = clamp01(c.health.ActivationThreshold * activationFactor)
	c.health.DecayRate = c.health.DecayRate * wearFactor
	c.quarantined = false
	return to
}

// Reinforce scales every context weight above floor by factor. Used by the
// Linked consolidation, which strengthens what the cell already knows
// without touching its embedding.
func (c *Cell) Reinforce(floor, factor float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, w := range c.contextWeights {
		if w > floor {
			c.contextWeights[k] = w * factor
		}
	}
}

// RebuildFields replaces the cell's embedding with a fresh baseline drawn
// from rnd. Destructive; only the Compacted transition calls it.
func (c *Cell) RebuildFields(rnd *rand.Rand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.fields {
		c.fields[i] = rnd.Float64()
	}
}

// Energy returns the cell's current retention energy: recency * stability,
// where recency halves every halfLife since the cell was last accessed.
func (c *Cell) Energy(now time.Time, halfLife time.Duration) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energyLocked(now, halfLife)
}

func (c *Cell) energyLocked(now time.Time, halfLife time.Duration) float64 {
	recency := 1.0
	if halfLife > 0 {
		if age := now.Sub(c.temporal.LastAccessed); age > 0 {
			recency = math.Exp2(-age.Hours() / halfLife.Hours())
		}
	}
	return recency * c.health.Stability
}

// Prune drops projections whose energy (recency * stability) has fallen
// below minEnergy, then evicts the oldest entries beyond maxKeep so the
// projection list stays bounded. It returns the pruned projections and
// recomputes the cell's coherence over the survivors.
//
// Recency is a property of the cell, not of individual projections, so the
// energy cut is all-or-nothing: a cell whose energy has collapsed sheds its
// whole projection list.
func (c *Cell) Prune(now time.Time, halfLife time.Duration, minEnergy float64, maxKeep int) []Projection {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pruned []Projection
	if c.energyLocked(now, halfLife) < minEnergy {
		pruned = c.projections
		c.projections = nil
	} else if maxKeep > 0 && len(c.projections) > maxKeep {
		drop := len(c.projections) - maxKeep
		pruned = append(pruned, c.projections[:drop]...)
		c.projections = append([]Projection(nil), c.projections[drop:]...)
	}
	c.projCount.Store(int32(len(c.projections)))
	c.recomputeCoherenceLocked()
	return pruned
}

func (c *Cell) recomputeCoherenceLocked() {
	if len(c.projections) == 0 {
		c.coherence = 0
		return
	}
	positive := 0
	for i := range c.projections {
		sum := 0.0
		for _, v := range c.projections[i].InterferenceMap {
			sum += v
		}
		if sum > 0 {
			positive++
		}
	}
	c.coherence = float64(positive) / float64(len(c.projections))
}

// Quarantine excludes the cell from future candidate selection. A later
// Compacted rebuild reclaims it.
func (c *Cell) Quarantine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quarantined = true
}

// Quarantined reports whether the cell is excluded from candidate selection.
func (c *Cell) Quarantined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quarantined
}

// Snapshot is a point-in-time diagnostic view of a cell.
type Snapshot struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	Stability    float64   `json:"stability"`
	Projections  int       `json:"projections"`
	Coherence    float64   `json:"coherence"`
	LastAccessed time.Time `json:"last_accessed"`
	Quarantined  bool      `json:"quarantined,omitempty"`
}

// Snapshot returns a point-in-time view of the cell for diagnostics.
func (c *Cell) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:           c.id,
		State:        c.state,
		Stability:    c.health.Stability,
		Projections:  len(c.projections),
		Coherence:    c.coherence,
		LastAccessed: c.temporal.LastAccessed,
		Quarantined:  c.quarantined,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
