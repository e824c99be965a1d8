// Package tier implements the topical partitions of the pattern store. A
// tier owns a fixed pool of cells, a byte-capacity budget, monotonic access
// counters and an advisory routing weight updated by maintenance
// rebalancing. Tiers are created once at store construction and never
// destroyed; their cell pools are fixed length.
package tier

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LostLegendarySoftware/patternstore/cell"
)

// Tier is a named partition of the store. ID, Label, Cells and Linked are
// fixed at construction; all mutable state is safe for concurrent use.
type Tier struct {
	// ID is the tier's stable index within the store.
	ID int

	// Label is the tier's topical name, e.g. "semantic-core".
	Label string

	// Cells is the tier's fixed-length cell pool.
	Cells []*cell.Cell

	// Linked lists 1-3 other tier ids consulted for cross-dimensional
	// candidate expansion during retrieval.
	Linked []int

	theoretical       int64
	compressionFactor float64
	utilized          atomic.Int64

	reads  atomic.Int64
	writes atomic.Int64
	hits   atomic.Int64

	// routingWeight biases future placement toward tiers with headroom.
	// Stored as float64 bits for lock-free stats reads.
	routingWeight atomic.Uint64

	history accessHistory
}

// New constructs a tier with a pool of cellCount pre-allocated cells.
func New(id int, label string, cellCount, fieldSize int, capacityBytes int64, linked []int, rnd *rand.Rand, now time.Time) *Tier {
	t := &Tier{
		ID:                id,
		Label:             label,
		Linked:            append([]int(nil), linked...),
		theoretical:       capacityBytes,
		compressionFactor: 1.0,
	}
	t.Cells = make([]*cell.Cell, cellCount)
	for slot := range t.Cells {
		t.Cells[slot] = cell.New(id, slot, fieldSize, rnd, now)
	}
	t.SetRoutingWeight(1.0)
	return t
}

// TheoreticalBytes returns the tier's fixed capacity budget.
func (t *Tier) TheoreticalBytes() int64 { return t.theoretical }

// UtilizedBytes returns the bytes currently accounted against the tier.
func (t *Tier) UtilizedBytes() int64 { return t.utilized.Load() }

// FreeBytes returns the tier's remaining capacity.
func (t *Tier) FreeBytes() int64 { return t.theoretical - t.utilized.Load() }

// Reserve accounts n bytes against the tier's capacity. It fails without
// mutating when the reservation would push utilization past the theoretical
// budget; utilized <= theoretical holds after every call.
func (t *Tier) Reserve(n int64) error {
	for {
		cur := t.utilized.Load()
		if cur+n > t.theoretical {
			return fmt.Errorf("tier %d (%s): reserving %d bytes exceeds capacity (%d/%d used)",
				t.ID, t.Label, n, cur, t.theoretical)
		}
		if t.utilized.CompareAndSwap(cur, cur+n) {
			return nil
		}
	}
}

// Release returns n bytes to the tier's budget, clamping at zero.
func (t *Tier) Release(n int64) {
	for {
		cur := t.utilized.Load()
		next := cur - n
		if next < 0 {
			next = 0
		}
		if t.utilized.CompareAndSwap(cur, next) {
			return
		}
	}
}

// IncRead, IncWrite and IncHit bump the tier's monotonic access counters.
// They reset only through ResetCounters.
func (t *Tier) IncRead() int64  { return t.reads.Add(1) }
func (t *Tier) IncWrite() int64 { return t.writes.Add(1) }
func (t *Tier) IncHit() int64   { return t.hits.Add(1) }

// ResetCounters zeroes the access counters. Explicit admin action only.
func (t *Tier) ResetCounters() {
	t.reads.Store(0)
	t.writes.Store(0)
	t.hits.Store(0)
}

// RoutingWeight returns the tier's advisory placement weight.
func (t *Tier) RoutingWeight() float64 {
	return math.Float64frombits(t.routingWeight.Load())
}

// SetRoutingWeight records the weight computed by maintenance rebalancing.
func (t *Tier) SetRoutingWeight(w float64) {
	t.routingWeight.Store(math.Float64bits(w))
}

// RecordAccess appends an operation to the tier's bounded access history.
func (t *Tier) RecordAccess(op, cellID string, at time.Time) {
	t.history.record(Access{Op: op, CellID: cellID, At: at})
}

// RecentAccesses returns the tier's access history, oldest first.
func (t *Tier) RecentAccesses() []Access {
	return t.history.snapshot()
}

// ActiveCells counts cells currently holding at least one projection.
func (t *Tier) ActiveCells() int {
	n := 0
	for _, c := range t.Cells {
		if c.Len() > 0 {
			n++
		}
	}
	return n
}

// Stats is a point-in-time view of a tier, safe to take while operations
// are in flight (counters may lag by a few operations).
type Stats struct {
	ID                int     `json:"id"`
	Label             string  `json:"label"`
	TheoreticalBytes  int64   `json:"theoretical_bytes"`
	UtilizedBytes     int64   `json:"utilized_bytes"`
	CompressionFactor float64 `json:"compression_factor"`
	Reads             int64   `json:"reads"`
	Writes            int64   `json:"writes"`
	Hits              int64   `json:"hits"`
	RoutingWeight     float64 `json:"routing_weight"`
	ActiveCells       int     `json:"active_cells"`
	LinkedTiers       []int   `json:"linked_tiers,omitempty"`

	// RecentOps is the tier's bounded operation history, oldest first.
	RecentOps []Access `json:"recent_ops,omitempty"`
}

// Snapshot returns the tier's current stats.
func (t *Tier) Snapshot() Stats {
	return Stats{
		ID:                t.ID,
		Label:             t.Label,
		TheoreticalBytes:  t.theoretical,
		UtilizedBytes:     t.utilized.Load(),
		CompressionFactor: t.compressionFactor,
		Reads:             t.reads.Load(),
		Writes:            t.writes.Load(),
		Hits:              t.hits.Load(),
		RoutingWeight:     t.RoutingWeight(),
		ActiveCells:       t.ActiveCells(),
		LinkedTiers:       append([]int(nil), t.Linked...),
		RecentOps:         t.RecentAccesses(),
	}
}

// Access is one entry in a tier's bounded operation history.
type Access struct {
	Op     string    `json:"op"`
	CellID string    `json:"cell_id"`
	At     time.Time `json:"at"`
}

// historySize bounds the per-tier access ring.
const historySize = 100

type accessHistory struct {
	mu      sync.Mutex
	entries [historySize]Access
	next    int
	full    bool
}

func (h *accessHistory) record(a Access) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = a
	h.next = (h.next + 1) % historySize
	if h.next == 0 {
		h.full = true
	}
}

func (h *accessHistory) snapshot() []Access {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Access(nil), h.entries[:h.next]...)
	}
	out := make([]Access, 0, historySize)
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}
