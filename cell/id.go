package cell

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Cell ids are tier-qualified and derived from (tier, slot, creation time)
// so a log line or a resonance graph key identifies a cell without a lookup:
//
//	t03-s017-18f2a4c91b0d
//
// The trailing component is the low 48 bits of the creation time in
// nanoseconds, enough to disambiguate rebuilds within a process lifetime.
// Two tier digits and three slot digits address 100 tiers of 1000 cells;
// configuration validation enforces those bounds.
var idPattern = regexp.MustCompile(`^t(\d{2})-s(\d{3})-[0-9a-f]{12}$`)

// NewID derives a cell id from its tier, slot and creation time.
func NewID(tierID, slot int, created time.Time) string {
	return fmt.Sprintf("t%02d-s%03d-%012x", tierID, slot, uint64(created.UnixNano())&0xffffffffffff)
}

// IsID reports whether s has the tier-qualified cell id shape. The
// resonance graph keys both patterns and cell ids; interference scoring
// uses this to tell them apart.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// TierOf extracts the tier index from a cell id. ok is false when s is not
// a cell id.
func TierOf(s string) (int, bool) {
	m := idPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
