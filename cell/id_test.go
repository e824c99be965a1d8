package cell

import (
	"testing"
	"time"
)

func TestNewIDShape(t *testing.T) {
	id := NewID(3, 17, time.Unix(0, 0x18f2a4c91b0d))
	if id != "t03-s017-18f2a4c91b0d" {
		t.Errorf("unexpected id %q", id)
	}
	if !IsID(id) {
		t.Errorf("IsID(%q) = false", id)
	}
}

func TestTierOf(t *testing.T) {
	id := NewID(5, 2, time.Now())
	tier, ok := TierOf(id)
	if !ok || tier != 5 {
		t.Errorf("TierOf(%q) = %d, %v", id, tier, ok)
	}
}

func TestIsIDRejectsPatternKeys(t *testing.T) {
	for _, s := range []string{"", "greet", "t3-s17-abc", "t03-s017-XYZ", "t03-s017-18f2a4c91b0d0"} {
		if IsID(s) {
			t.Errorf("IsID(%q) = true", s)
		}
	}
}
