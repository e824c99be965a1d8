package index

import (
	"testing"
	"time"

	"github.com/LostLegendarySoftware/patternstore/cell"
)

func cellID(tier, slot int) string {
	return cell.NewID(tier, slot, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
}

func TestBindIsIdempotent(t *testing.T) {
	x := New()
	id := cellID(0, 1)

	if !x.Bind("greet", id) {
		t.Error("first bind should insert")
	}
	if x.Bind("greet", id) {
		t.Error("second bind of the same pair should be a no-op")
	}
	if cells := x.Cells("greet"); len(cells) != 1 {
		t.Errorf("expected 1 bound cell, got %d", len(cells))
	}
}

func TestCellsPreservesInsertionOrder(t *testing.T) {
	x := New()
	a, b, c := cellID(0, 1), cellID(1, 2), cellID(2, 3)
	x.Bind("p", a)
	x.Bind("p", b)
	x.Bind("p", c)

	got := x.Cells("p")
	want := []string{a, b, c}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cells out of insertion order: got %v, want %v", got, want)
		}
	}
}

func TestUnbind(t *testing.T) {
	x := New()
	a, b := cellID(0, 1), cellID(0, 2)
	x.Bind("p", a)
	x.Bind("p", b)

	x.Unbind("p", a)
	if cells := x.Cells("p"); len(cells) != 1 || cells[0] != b {
		t.Errorf("expected only %q bound after unbind, got %v", b, cells)
	}

	x.Unbind("p", b)
	if x.Patterns() != 0 {
		t.Error("expected pattern key removed once its last binding is dropped")
	}
	// Unbinding a missing pair is harmless.
	x.Unbind("p", a)
}

func TestEntangleIsSymmetric(t *testing.T) {
	x := New()
	x.Entangle("a", "b", 0.15)
	x.Entangle("a", "b", 0.15)

	if got := x.Strength("a", "b"); got != 0.3 {
		t.Errorf("expected accumulated strength 0.3, got %v", got)
	}
	if x.Strength("a", "b") != x.Strength("b", "a") {
		t.Error("entanglement should be symmetric")
	}

	// Self and empty entanglement are ignored.
	x.Entangle("a", "a", 1.0)
	if got := x.Strength("a", "a"); got != 0 {
		t.Errorf("self-entanglement should be ignored, got %v", got)
	}
}

func TestInterferenceSumsOnlyCrossCellNoise(t *testing.T) {
	x := New()
	self := cellID(0, 1)
	other := cellID(1, 2)

	x.Entangle("fast", self, 1.0)    // binding to the candidate itself: not noise
	x.Entangle("fast", other, 1.0)   // cross-cell: noise
	x.Entangle("fast", "slow", 10.0) // pattern key: not a cell id, not noise

	got := x.Interference("fast", self, 0.3, 1.0)
	if got != 0.3 {
		t.Errorf("expected interference 0.3, got %v", got)
	}
}

func TestInterferenceCap(t *testing.T) {
	x := New()
	self := cellID(0, 1)
	for slot := 0; slot < 10; slot++ {
		x.Entangle("fast", cellID(1, slot+2), 1.0)
	}

	if got := x.Interference("fast", self, 0.3, 1.0); got != 1.0 {
		t.Errorf("expected interference capped at 1.0, got %v", got)
	}
}

func TestInterferenceUnknownFactor(t *testing.T) {
	x := New()
	if got := x.Interference("never-seen", cellID(0, 1), 0.3, 1.0); got != 0 {
		t.Errorf("expected zero interference for an unknown factor, got %v", got)
	}
}

func TestDecayBoundsGraphGrowth(t *testing.T) {
	x := New()
	x.Entangle("a", "b", 0.15)
	x.Entangle("c", "d", 1.0)

	x.Decay(0.95)
	if got := x.Strength("c", "d"); got != 0.95 {
		t.Errorf("expected strength 0.95 after one decay, got %v", got)
	}

	// Enough decay rounds drop faded entries entirely.
	for i := 0; i < 200; i++ {
		x.Decay(0.95)
	}
	if got := x.Strength("a", "b"); got != 0 {
		t.Errorf("expected faded entry dropped, got %v", got)
	}
}

func TestEntriesSnapshotIsACopy(t *testing.T) {
	x := New()
	a := cellID(0, 1)
	x.Bind("p", a)

	entries := x.Entries()
	entries["p"][0] = "mutated"

	if got := x.Cells("p"); got[0] != a {
		t.Error("Entries should return a copy, not the live mapping")
	}
}

func TestBindings(t *testing.T) {
	x := New()
	x.Bind("p", cellID(0, 1))
	x.Bind("p", cellID(0, 2))
	x.Bind("q", cellID(1, 1))

	if got := x.Bindings(); got != 3 {
		t.Errorf("expected 3 bindings, got %d", got)
	}
	if got := x.Patterns(); got != 2 {
		t.Errorf("expected 2 patterns, got %d", got)
	}
}
